package api

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"investflow/internal/model"
	"investflow/internal/quote"
	"investflow/internal/service"
)

// OkxWsData 适用于 Okx V5 的通用响应结构
type OkxWsData struct {
	Arg struct {
		Channel string `json:"channel"`
		InstId  string `json:"instId"`
	} `json:"arg"`
	Data  json.RawMessage `json:"data"` // 使用 RawMessage 延迟解析
	Event string          `json:"event"`
	Msg   string          `json:"msg"`
}

// OkxTickerData 结构体，用于解析 tickers 频道数据
type OkxTickerData struct {
	LastPrice string `json:"last"`    // 最新成交价
	Open24h   string `json:"open24h"` // 24 小时前的开盘价
	Timestamp string `json:"ts"`
	InstId    string `json:"instId"`
}

// 映射 InstId 到资产 ID (例如 BTC-USDT -> bitcoin)
type InstMap map[string]string

// StreamConfig 连接器配置
type StreamConfig struct {
	WSURL          string
	QuoteCurrency  string        // 例如 USDT
	ReconnectDelay time.Duration // 断线后重连间隔
}

// Connector 订阅 Okx 公共 tickers 频道，把推送转换成 quote.Quote
type Connector struct {
	cfg       StreamConfig
	instToID  InstMap
	quoteChan chan quote.Quote
	dialer    *websocket.Dialer
	logger    *zap.Logger
}

// NewConnector 根据 crypto 目录构造 instId
func NewConnector(cfg StreamConfig, crypto []model.Instrument, logger *zap.Logger) *Connector {
	if cfg.QuoteCurrency == "" {
		cfg.QuoteCurrency = "USDT"
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}

	// 构造 instId: 例如 BTC -> BTC-USDT
	instToID := make(InstMap, len(crypto))
	for _, inst := range crypto {
		instID := strings.ToUpper(inst.Symbol) + "-" + strings.ToUpper(cfg.QuoteCurrency)
		instToID[instID] = inst.ID
	}

	c := &Connector{
		cfg:       cfg,
		instToID:  instToID,
		quoteChan: make(chan quote.Quote, 256),
		dialer:    websocket.DefaultDialer,
		logger:    logger.With(zap.String("component", "okx_connector")),
	}
	c.logger.Info("Connector initialized", zap.Int("instruments", len(instToID)))
	return c
}

// Quotes 报价输出通道，Run 返回后关闭
func (c *Connector) Quotes() <-chan quote.Quote {
	return c.quoteChan
}

// Run 连接、订阅并读取，断线后按 ReconnectDelay 重连，直到 ctx 结束
func (c *Connector) Run(ctx context.Context) {
	defer close(c.quoteChan)

	for {
		if err := c.session(ctx); err != nil && ctx.Err() == nil {
			c.logger.Warn("WS session ended, reconnecting...", zap.Error(err), zap.Duration("delay", c.cfg.ReconnectDelay))
		}

		select {
		case <-ctx.Done():
			c.logger.Info("Connector stopped")
			return
		case <-time.After(c.cfg.ReconnectDelay):
		}
	}
}

// session 一次完整的连接生命周期
func (c *Connector) session(ctx context.Context) error {
	c.logger.Info("Starting Okx WS connection...", zap.String("URL", c.cfg.WSURL))

	conn, _, err := c.dialer.DialContext(ctx, c.cfg.WSURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// ctx 结束时关闭连接，解除 ReadMessage 的阻塞
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	args := make([]map[string]string, 0, len(c.instToID))
	for instID := range c.instToID {
		args = append(args, map[string]string{"channel": "tickers", "instId": instID})
	}
	subscribeMsg := map[string]interface{}{
		"op":   "subscribe",
		"args": args,
	}
	if err := conn.WriteJSON(subscribeMsg); err != nil {
		return err
	}
	c.logger.Info("Subscribed to Okx TICKERS streams", zap.Int("count", len(args)))

	return c.readLoop(ctx, conn)
}

// readLoop 持续读取 WS 消息并处理
func (c *Connector) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		q, ok := c.parse(message)
		if !ok {
			continue
		}

		// 使用 select/default 防止阻塞 Connector
		select {
		case c.quoteChan <- q:
		case <-ctx.Done():
			return ctx.Err()
		default:
			c.logger.Warn("Quote channel full! Dropping ticker", zap.String("id", q.ID))
		}
	}
}

// parse 把一条 tickers 推送转换成报价
func (c *Connector) parse(message []byte) (quote.Quote, bool) {
	var wsResp OkxWsData
	if err := json.Unmarshal(message, &wsResp); err != nil {
		return quote.Quote{}, false
	}

	if wsResp.Event != "" {
		if wsResp.Event == "error" {
			c.logger.Error("Okx WS error event", zap.String("msg", wsResp.Msg))
		}
		return quote.Quote{}, false // 忽略订阅成功等事件
	}
	if wsResp.Arg.Channel != "tickers" || len(wsResp.Data) == 0 {
		return quote.Quote{}, false
	}

	id, ok := c.instToID[wsResp.Arg.InstId]
	if !ok {
		return quote.Quote{}, false
	}

	var tickers []OkxTickerData
	if err := json.Unmarshal(wsResp.Data, &tickers); err != nil {
		c.logger.Error("Tickers data unmarshal error", zap.Error(err))
		return quote.Quote{}, false
	}
	if len(tickers) == 0 {
		return quote.Quote{}, false
	}
	okxTicker := tickers[0] // 仅处理最新的快照

	price, err := service.StringToFloat(okxTicker.LastPrice)
	if err != nil || price < 0 {
		return quote.Quote{}, false
	}
	// open24h 缺失时涨跌幅记为 0
	open, _ := service.StringToFloat(okxTicker.Open24h)

	return quote.Quote{
		ID:            id,
		Price:         price,
		ChangePercent: service.PercentChange(open, price),
	}, true
}
