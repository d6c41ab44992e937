package simulator

import (
	"math/rand"
	"sync"
	"time"

	"investflow/internal/model"
)

// Rand 随机源，测试时注入固定值
type Rand interface {
	Float64() float64
}

// RealRand 适配 *rand.Rand
type RealRand struct{ *rand.Rand }

func (r RealRand) Float64() float64 { return r.Rand.Float64() }

// NewRealRand 以当前时间为种子
func NewRealRand() RealRand {
	return RealRand{rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Config 模拟器参数
type Config struct {
	Band          float64 // 单次乘性扰动的半宽，例如 0.002 即 (−0.2%, +0.2%)
	MarketCapStep float64 // 总市值单次加性扰动的半宽
}

// DefaultConfig 默认参数
func DefaultConfig() Config {
	return Config{Band: 0.002, MarketCapStep: 0.005}
}

// PriceSimulator 在没有真实数据源的情况下制造"实时"股票行情
type PriceSimulator struct {
	cfg Config

	mu   sync.Mutex // *rand.Rand 不是并发安全的
	rand Rand
}

func New(cfg Config, rnd Rand) *PriceSimulator {
	return &PriceSimulator{cfg: cfg, rand: rnd}
}

// Tick 对每个标的做一次独立的乘性扰动，返回全新的列表。
// ChangePercent 保持种子值不变。
func (s *PriceSimulator) Tick(list []model.Instrument) []model.Instrument {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Instrument, len(list))
	for i, inst := range list {
		v := s.sample(s.cfg.Band)
		out[i] = inst.WithPrice(inst.Price * (1 + v))
	}
	return out
}

// PerturbMarketCap 总市值加性扰动，不低于 0
func (s *PriceSimulator) PerturbMarketCap(marketCap float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := marketCap + s.sample(s.cfg.MarketCapStep)
	if next < 0 {
		return 0
	}
	return next
}

// sample 在开区间 (−half, +half) 内均匀取样
func (s *PriceSimulator) sample(half float64) float64 {
	u := s.rand.Float64()
	// Float64 落在 [0, 1)，丢弃 0 使左端点也开
	for u <= 0 {
		u = s.rand.Float64()
	}
	return (2*u - 1) * half
}
