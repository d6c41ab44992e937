package model

import (
	"errors"
	"fmt"
	"time"
)

// Kind 标的类型
type Kind string

const (
	KindIndex  Kind = "index"  // 指数
	KindEquity Kind = "equity" // 个股
	KindCrypto Kind = "crypto" // 加密资产
)

// Instrument 代表看板上的一个标的 (股票/指数/加密资产共用)
type Instrument struct {
	ID            string    `json:"id" yaml:"id"`                        // 稳定的小写标识，crypto 用作行情接口的 join key
	Symbol        string    `json:"symbol" yaml:"symbol"`                // 展示用代码，列表内唯一
	DisplayName   string    `json:"displayName" yaml:"display_name"`     // 展示名称
	Kind          Kind      `json:"kind" yaml:"kind"`                    // 类型
	Price         float64   `json:"price" yaml:"price"`                  // 当前价格，0 表示 crypto 尚未加载
	ChangePercent float64   `json:"changePercent" yaml:"change_percent"` // 涨跌幅 (%)，符号决定涨跌展示
	History       []float64 `json:"history" yaml:"history"`              // 固定长度的滑动窗口
}

// IsUp 涨跌方向 (0 视为上涨)
func (i Instrument) IsUp() bool {
	return i.ChangePercent >= 0
}

// Clone 深拷贝，History 不与原对象共享底层数组
func (i Instrument) Clone() Instrument {
	c := i
	c.History = append([]float64(nil), i.History...)
	return c
}

// WithPrice 返回新价格的副本，并把新价格推入滑动窗口
func (i Instrument) WithPrice(price float64) Instrument {
	c := i
	c.Price = price
	c.History = PushHistory(i.History, price)
	return c
}

// PushHistory 丢弃最旧的样本，追加最新样本；返回新切片，长度不变
func PushHistory(history []float64, sample float64) []float64 {
	out := make([]float64, len(history))
	if len(history) == 0 {
		return out
	}
	copy(out, history[1:])
	out[len(out)-1] = sample
	return out
}

// CloneList 整表深拷贝
func CloneList(list []Instrument) []Instrument {
	if list == nil {
		return nil
	}
	out := make([]Instrument, len(list))
	for i, inst := range list {
		out[i] = inst.Clone()
	}
	return out
}

// ViewMode 视图选择，纯 UI 状态，不影响数据
type ViewMode string

const (
	ViewDashboard ViewMode = "dashboard"
	ViewAllStocks ViewMode = "all-stocks"
	ViewAllCrypto ViewMode = "all-crypto"
)

var ErrUnknownView = errors.New("unknown view")

// ParseViewMode 解析视图名称
func ParseViewMode(s string) (ViewMode, error) {
	switch v := ViewMode(s); v {
	case ViewDashboard, ViewAllStocks, ViewAllCrypto:
		return v, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownView, s)
	}
}

// Snapshot 一次渲染所读取的完整、自洽的数据快照
type Snapshot struct {
	SessionID string       `json:"sessionId"`
	Equities  []Instrument `json:"equities"`
	Crypto    []Instrument `json:"crypto"`
	MarketCap float64      `json:"marketCap"` // 单位：万亿，纯装饰性数字
	Loading   bool         `json:"loading"`   // crypto 首次加载是否仍在进行
	View      ViewMode     `json:"view"`
	TakenAt   time.Time    `json:"takenAt"`
}
