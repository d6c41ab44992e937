package testutils

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"investflow/internal/scheduler"
)

// MockRand 依次返回 Values 中的值，用完后循环
type MockRand struct {
	Values []float64
	idx    int
}

func (m *MockRand) Float64() float64 {
	if len(m.Values) == 0 {
		return 0.5
	}
	v := m.Values[m.idx%len(m.Values)]
	m.idx++
	return v
}

// MockHTTPClient 按顺序返回预设的响应体；Err 非空时每次都失败
type MockHTTPClient struct {
	Mu       sync.Mutex
	Bodies   []string
	Status   int
	Err      error
	Requests []*http.Request
}

var ErrNetwork = errors.New("network unreachable")

func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	m.Requests = append(m.Requests, req)
	if m.Err != nil {
		return nil, m.Err
	}

	body := "{}"
	if len(m.Bodies) > 0 {
		body = m.Bodies[0]
		if len(m.Bodies) > 1 {
			m.Bodies = m.Bodies[1:]
		}
	}
	status := m.Status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

// Calls 已发出的请求数
func (m *MockHTTPClient) Calls() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return len(m.Requests)
}

// MockKafkaWriter 记录写入的消息
type MockKafkaWriter struct {
	Mu       sync.Mutex
	Messages []kafka.Message
	Err      error
	Closed   bool
}

func (m *MockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Messages = append(m.Messages, msgs...)
	return nil
}

func (m *MockKafkaWriter) Close() error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
	return nil
}

// FakeTicker 由测试手动触发
type FakeTicker struct {
	Interval time.Duration
	ch       chan time.Time

	mu      sync.Mutex
	stopped bool
}

func (f *FakeTicker) C() <-chan time.Time { return f.ch }

func (f *FakeTicker) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

// Stopped 是否已被 Stop
func (f *FakeTicker) Stopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

// Fire 阻塞直到调度循环收到这次触发
func (f *FakeTicker) Fire() {
	f.ch <- time.Unix(0, 0)
}

// FakeClock 记录创建过的 ticker
type FakeClock struct {
	mu      sync.Mutex
	tickers []*FakeTicker
}

var _ scheduler.Clock = (*FakeClock)(nil)

func (c *FakeClock) NewTicker(d time.Duration) scheduler.Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &FakeTicker{Interval: d, ch: make(chan time.Time)}
	c.tickers = append(c.tickers, t)
	return t
}

// Tickers 按创建顺序返回
func (c *FakeClock) Tickers() []*FakeTicker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*FakeTicker(nil), c.tickers...)
}

// TickerFor 返回第一个指定周期的 ticker
func (c *FakeClock) TickerFor(d time.Duration) *FakeTicker {
	for _, t := range c.Tickers() {
		if t.Interval == d {
			return t
		}
	}
	return nil
}
