package session

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"investflow/internal/api"
	"investflow/internal/catalog"
	"investflow/internal/model"
	"investflow/internal/quote"
	"investflow/internal/scheduler"
	"investflow/internal/simulator"
	"investflow/internal/sink"
)

var (
	ErrAlreadyStarted = errors.New("session already started")
	ErrClosed         = errors.New("session closed")
)

// Options 会话参数
type Options struct {
	Catalog       catalog.Catalog
	SimInterval   time.Duration // 默认 3s
	QuoteInterval time.Duration // 默认 30s
	DefaultView   model.ViewMode
}

type Option func(*Session)

// WithConnector 启用 WS 实时行情
func WithConnector(c *api.Connector) Option {
	return func(s *Session) { s.connector = c }
}

// WithPublishers 每次更新后把快照推给这些 publisher
func WithPublishers(p ...sink.Publisher) Option {
	return func(s *Session) { s.publishers = append(s.publishers, p...) }
}

// Session 持有两张标的列表、总市值和定时器，替代全局状态。
// 列表只做整表替换，读者拿到的永远是完整的快照。
type Session struct {
	id         string
	opts       Options
	sim        *simulator.PriceSimulator
	fetcher    *quote.QuoteFetcher
	connector  *api.Connector
	publishers []sink.Publisher
	logger     *zap.Logger

	equities  atomic.Pointer[[]model.Instrument]
	crypto    atomic.Pointer[[]model.Instrument]
	marketCap atomic.Uint64 // math.Float64bits
	view      atomic.Pointer[model.ViewMode]

	mu      sync.Mutex
	sched   *scheduler.Scheduler
	started bool
	closed  bool
}

func New(opts Options, sim *simulator.PriceSimulator, fetcher *quote.QuoteFetcher, logger *zap.Logger, options ...Option) *Session {
	if opts.SimInterval <= 0 {
		opts.SimInterval = 3 * time.Second
	}
	if opts.QuoteInterval <= 0 {
		opts.QuoteInterval = 30 * time.Second
	}
	if opts.DefaultView == "" {
		opts.DefaultView = model.ViewDashboard
	}

	id := uuid.NewString()
	s := &Session{
		id:      id,
		opts:    opts,
		sim:     sim,
		fetcher: fetcher,
		logger:  logger.With(zap.String("session", id)),
	}
	for _, o := range options {
		o(s)
	}

	equities := model.CloneList(opts.Catalog.Equities)
	crypto := model.CloneList(opts.Catalog.Crypto)
	s.equities.Store(&equities)
	s.crypto.Store(&crypto)
	s.setMarketCap(opts.Catalog.MarketCap)
	view := opts.DefaultView
	s.view.Store(&view)

	return s
}

func (s *Session) ID() string { return s.id }

// Start 注册模拟和行情两个周期任务；行情任务立即执行一次
func (s *Session) Start(ctx context.Context, clock scheduler.Clock) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return ErrClosed
	case s.started:
		return ErrAlreadyStarted
	}

	sched := scheduler.New(ctx, clock, s.logger)

	err := sched.Schedule(scheduler.Task{
		Name:     "simulate_equities",
		Interval: s.opts.SimInterval,
		Run:      s.TickPrices,
	})
	if err == nil {
		err = sched.Schedule(scheduler.Task{
			Name:      "refresh_crypto",
			Interval:  s.opts.QuoteInterval,
			Immediate: true,
			Overlap:   true, // 上一次请求未返回不影响下一次
			Run:       s.RefreshQuotes,
		})
	}
	if err == nil && s.connector != nil {
		err = sched.Go("okx_stream", s.connector.Run)
		if err == nil {
			err = sched.Go("okx_stream_consumer", s.consumeStream)
		}
	}
	if err != nil {
		sched.Stop()
		return err
	}

	s.sched = sched
	s.started = true
	s.logger.Info("Session started",
		zap.Duration("simInterval", s.opts.SimInterval),
		zap.Duration("quoteInterval", s.opts.QuoteInterval),
		zap.Bool("stream", s.connector != nil))
	return nil
}

// Close 停止所有定时器并关闭 publisher；可重复调用
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	sched := s.sched
	s.mu.Unlock()

	if sched != nil {
		sched.Stop()
	}
	for _, p := range s.publishers {
		if err := p.Close(); err != nil {
			s.logger.Warn("Failed to close publisher", zap.Error(err))
		}
	}
	s.logger.Info("Session closed")
}

// TickPrices 股票列表和总市值各扰动一次
func (s *Session) TickPrices(ctx context.Context) {
	next := s.sim.Tick(*s.equities.Load())
	s.equities.Store(&next)
	s.setMarketCap(s.sim.PerturbMarketCap(s.MarketCap()))

	s.publish(ctx)
}

// RefreshQuotes 拉取一次 crypto 报价并合并；失败时保留上一份快照
func (s *Session) RefreshQuotes(ctx context.Context) {
	if err := s.fetcher.Update(ctx, s.applyQuotes); err != nil {
		return
	}
	s.publish(ctx)
}

// applyQuotes CAS 循环，避免并发的刷新与 WS 推送互相覆盖
func (s *Session) applyQuotes(quotes quote.Quotes) {
	for {
		old := s.crypto.Load()
		next := quote.ApplyQuotes(*old, quotes)
		if s.crypto.CompareAndSwap(old, &next) {
			return
		}
	}
}

func (s *Session) consumeStream(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case q, ok := <-s.connector.Quotes():
			if !ok {
				return
			}
			s.applyQuotes(quote.Quotes{q.ID: q})
			s.publish(ctx)
		}
	}
}

func (s *Session) publish(ctx context.Context) {
	if len(s.publishers) == 0 {
		return
	}
	snap := s.Snapshot()
	for _, p := range s.publishers {
		if err := p.Publish(ctx, snap); err != nil {
			s.logger.Warn("Failed to publish snapshot", zap.Error(err))
		}
	}
}

// Snapshot 当前数据的只读副本
func (s *Session) Snapshot() model.Snapshot {
	// 先读加载状态，再读列表
	loading := s.fetcher.Loading()
	return model.Snapshot{
		SessionID: s.id,
		Equities:  model.CloneList(*s.equities.Load()),
		Crypto:    model.CloneList(*s.crypto.Load()),
		MarketCap: s.MarketCap(),
		Loading:   loading,
		View:      s.View(),
		TakenAt:   time.Now(),
	}
}

// Loaded 首次行情拉取结束时关闭
func (s *Session) Loaded() <-chan struct{} {
	return s.fetcher.Loaded()
}

func (s *Session) MarketCap() float64 {
	return math.Float64frombits(s.marketCap.Load())
}

func (s *Session) setMarketCap(v float64) {
	s.marketCap.Store(math.Float64bits(v))
}

// SelectView 切换视图，只影响展示
func (s *Session) SelectView(v model.ViewMode) error {
	mode, err := model.ParseViewMode(string(v))
	if err != nil {
		return err
	}
	s.view.Store(&mode)
	s.logger.Debug("View selected", zap.String("view", string(mode)))
	return nil
}

func (s *Session) View() model.ViewMode {
	return *s.view.Load()
}
