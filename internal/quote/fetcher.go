package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"investflow/internal/catalog"
	"investflow/internal/model"
)

// ErrSourceUnavailable 网络错误、非 2xx、解码失败统一归为这一种
var ErrSourceUnavailable = errors.New("quote source unavailable")

// HTTPClient 便于测试注入，*http.Client 即满足
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config 行情接口配置
type Config struct {
	BaseURL  string // 例如 https://api.coingecko.com/api/v3
	Currency string // 计价货币，例如 usd
}

// Quote 单个资产的报价
type Quote struct {
	ID            string
	Price         float64
	ChangePercent float64
}

// Quotes 以资产 ID 为 key
type Quotes map[string]Quote

// QuoteFetcher 批量拉取 crypto 报价
type QuoteFetcher struct {
	client HTTPClient
	cfg    Config
	ids    []string // 启动时从目录推导一次
	logger *zap.Logger

	loaded   atomic.Bool
	once     sync.Once
	loadedCh chan struct{}
}

func New(client HTTPClient, cfg Config, crypto []model.Instrument, logger *zap.Logger) *QuoteFetcher {
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	cfg.Currency = strings.ToLower(cfg.Currency)
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &QuoteFetcher{
		client:   client,
		cfg:      cfg,
		ids:      catalog.IDs(crypto),
		logger:   logger.With(zap.String("component", "quote_fetcher")),
		loadedCh: make(chan struct{}),
	}
}

// Loading 首次拉取结束前为 true，之后永远为 false
func (f *QuoteFetcher) Loading() bool {
	return !f.loaded.Load()
}

// Loaded 首次拉取结束 (无论成败) 时关闭
func (f *QuoteFetcher) Loaded() <-chan struct{} {
	return f.loadedCh
}

func (f *QuoteFetcher) settle() {
	f.once.Do(func() {
		f.loaded.Store(true)
		close(f.loadedCh)
	})
}

// Refresh 拉取并合并；任何失败都原样返回输入列表，不向调用方报错
func (f *QuoteFetcher) Refresh(ctx context.Context, list []model.Instrument) []model.Instrument {
	out := list
	_ = f.Update(ctx, func(quotes Quotes) {
		out = ApplyQuotes(list, quotes)
	})
	return out
}

// Update 拉取一次报价并交给 store 合并，失败时只记日志、不调用 store。
// 首次加载在 store 返回之后才结束，读者看到 Loading=false 时合并结果已经可见
func (f *QuoteFetcher) Update(ctx context.Context, store func(Quotes)) error {
	defer f.settle()

	quotes, err := f.Fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			f.logger.Debug("Quote refresh cancelled", zap.Error(err))
		} else {
			f.logger.Warn("Quote refresh failed, keeping last snapshot", zap.Error(err))
		}
		return err
	}

	store(quotes)
	return nil
}

// Fetch 发出一次批量请求，不影响加载状态
func (f *QuoteFetcher) Fetch(ctx context.Context) (Quotes, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.requestURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// 读掉响应体，连接可复用
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: unexpected status %d", ErrSourceUnavailable, resp.StatusCode)
	}

	var raw map[string]map[string]*float64
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrSourceUnavailable, err)
	}

	priceKey := f.cfg.Currency
	changeKey := f.cfg.Currency + "_24h_change"

	quotes := make(Quotes, len(raw))
	for id, fields := range raw {
		price := fields[priceKey]
		// 没有价格字段 (或价格为负) 视同响应中不存在该资产
		if price == nil || *price < 0 {
			continue
		}
		q := Quote{ID: id, Price: *price}
		if change := fields[changeKey]; change != nil {
			q.ChangePercent = *change
		}
		quotes[id] = q
	}

	f.logger.Debug("Quotes fetched", zap.Int("requested", len(f.ids)), zap.Int("received", len(quotes)))
	return quotes, nil
}

func (f *QuoteFetcher) requestURL() string {
	q := url.Values{}
	q.Set("ids", strings.Join(f.ids, ","))
	q.Set("vs_currencies", f.cfg.Currency)
	q.Set("include_24hr_change", "true")
	return f.cfg.BaseURL + "/simple/price?" + q.Encode()
}

// ApplyQuotes 返回新列表：命中的标的更新价格、涨跌幅并推入历史，其余原样保留
func ApplyQuotes(list []model.Instrument, quotes Quotes) []model.Instrument {
	out := make([]model.Instrument, len(list))
	for i, inst := range list {
		q, ok := quotes[inst.ID]
		if !ok {
			out[i] = inst.Clone()
			continue
		}
		next := inst.WithPrice(q.Price)
		next.ChangePercent = q.ChangePercent
		out[i] = next
	}
	return out
}
