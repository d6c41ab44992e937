package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"investflow/internal/api"
	"investflow/internal/catalog"
	"investflow/internal/model"
	"investflow/internal/quote"
	"investflow/internal/scheduler"
	"investflow/internal/service"
	"investflow/internal/session"
	"investflow/internal/simulator"
	"investflow/internal/sink"
	"investflow/internal/view"
)

func main() {
	cfg, err := service.LoadConfig("config")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := service.InitLogger(cfg.Log.Level); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer service.Logger.Sync()

	if err := run(cfg); err != nil {
		service.Logger.Fatal("InvestFlow exited", zap.Error(err))
	}
}

func run(cfg *service.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. 种子数据
	cat := catalog.Default()
	if cfg.Catalog.Path != "" {
		loaded, err := catalog.LoadFile(cfg.Catalog.Path)
		if err != nil {
			return err
		}
		cat = loaded
	}
	if cfg.Simulator.MarketCap > 0 {
		cat.MarketCap = cfg.Simulator.MarketCap
	}

	defaultView, err := model.ParseViewMode(cfg.View.Default)
	if err != nil {
		return err
	}

	// 2. 模拟器和行情
	sim := simulator.New(simulator.Config{
		Band:          cfg.Simulator.Band,
		MarketCapStep: cfg.Simulator.MarketCapStep,
	}, simulator.NewRealRand())

	fetcher := quote.New(&http.Client{Timeout: cfg.Quotes.Timeout}, quote.Config{
		BaseURL:  cfg.Quotes.BaseURL,
		Currency: cfg.Quotes.Currency,
	}, cat.Crypto, service.Logger)

	// 3. 可选组件
	var options []session.Option
	if cfg.Stream.Enabled {
		options = append(options, session.WithConnector(api.NewConnector(api.StreamConfig{
			WSURL:          cfg.Stream.WSURL,
			QuoteCurrency:  cfg.Stream.QuoteCurrency,
			ReconnectDelay: cfg.Stream.ReconnectDelay,
		}, cat.Crypto, service.Logger)))
	}
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		options = append(options, session.WithPublishers(sink.NewRedisPublisher(client, cfg.Redis.Key, cfg.Redis.Channel)))
	}
	if cfg.Kafka.Enabled {
		writer := sink.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic, service.Logger)
		options = append(options, session.WithPublishers(sink.NewKafkaPublisher(writer)))
	}

	// 4. 启动会话
	s := session.New(session.Options{
		Catalog:       cat,
		SimInterval:   cfg.Simulator.Interval,
		QuoteInterval: cfg.Quotes.Interval,
		DefaultView:   defaultView,
	}, sim, fetcher, service.Logger, options...)
	defer s.Close()

	if err := s.Start(ctx, scheduler.RealClock{}); err != nil {
		return err
	}

	// 5. 渲染循环，直到收到退出信号；stdin 每行一个视图名称
	ticker := time.NewTicker(cfg.View.RenderInterval)
	defer ticker.Stop()
	loaded := s.Loaded()
	views := readViews(ctx, os.Stdin)
	service.Logger.Info("Type dashboard, all-stocks or all-crypto to switch views")
	for {
		select {
		case <-ctx.Done():
			service.Logger.Info("Shutting down")
			return nil
		case <-loaded:
			// 首次加载完成立即重绘一次，之后不再监听
			loaded = nil
			render(s.Snapshot(), cfg.View.DashboardLimit)
		case name, ok := <-views:
			if !ok {
				views = nil // stdin 已关闭，只保留定时渲染
				continue
			}
			if err := s.SelectView(model.ViewMode(name)); err != nil {
				service.Logger.Warn("Ignoring view command", zap.String("input", name), zap.Error(err))
				continue
			}
			render(s.Snapshot(), cfg.View.DashboardLimit)
		case <-ticker.C:
			render(s.Snapshot(), cfg.View.DashboardLimit)
		}
	}
}

// readViews 逐行读取视图名称，忽略空行；r 读完或 ctx 结束时关闭通道
func readViews(ctx context.Context, r io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			name := strings.ToLower(strings.TrimSpace(scanner.Text()))
			if name == "" {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			select {
			case out <- name:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func render(snap model.Snapshot, limit int) {
	page := view.Render(snap, limit)
	service.Logger.Info(page.Ticker,
		zap.String("view", string(page.View)),
		zap.String("marketCap", page.Headline),
		zap.Bool("loading", page.Loading))
	for _, section := range page.Sections {
		for _, card := range section.Cards {
			service.Logger.Debug(section.Title,
				zap.String("symbol", card.Symbol),
				zap.String("price", card.Price),
				zap.String("change", card.Change),
				zap.Float64("sma", card.Trend.SMA))
		}
	}
}
