package ta

import (
	"github.com/markcheno/go-talib"
)

// Trend 基于价格滑动窗口计算出的走势指标
type Trend struct {
	SMA float64 // 整个窗口的简单均线
	ROC float64 // 最旧样本到最新样本的变化率 (%)
	Up  bool    // 最新价格不低于均线
}

// Compute 对历史窗口计算指标；窗口少于 2 个样本时返回零值
func Compute(history []float64) Trend {
	n := len(history)
	if n < 2 {
		return Trend{}
	}

	// --- 均线 (周期 = 窗口长度) ---
	sma := talib.Sma(history, n)

	// --- 变化率 (周期 = 窗口长度 - 1，即首尾比较) ---
	roc := talib.Roc(history, n-1)

	t := Trend{
		SMA: sma[n-1],
		ROC: roc[n-1],
	}
	t.Up = history[n-1] >= t.SMA
	return t
}
