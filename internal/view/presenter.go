package view

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"investflow/internal/model"
	"investflow/pkg/ta"
)

// Card 单个标的的展示数据
type Card struct {
	Symbol string
	Name   string
	Kind   model.Kind
	Price  string // 例如 $64,230.50；加载中为 "loading"
	Change string // 例如 ▲ 4.5%
	Up     bool
	Trend  ta.Trend
}

// Section 页面中的一个分组
type Section struct {
	Title   string
	Cards   []Card
	ViewAll model.ViewMode // 非空时展示 "View All" 入口
}

// Page 一次渲染的结果
type Page struct {
	View     model.ViewMode
	Headline string // 总市值
	Ticker   string // 滚动行情条
	Sections []Section
	Loading  bool
}

// Render 只读地把快照转换成页面；dashboard 每组最多展示 limit 个
func Render(snap model.Snapshot, limit int) Page {
	p := Page{
		View:     snap.View,
		Headline: FormatMarketCap(snap.MarketCap),
		Ticker:   TickerLine(snap),
		Loading:  snap.Loading,
	}

	stocks := Section{Title: "US Markets", Cards: cards(snap.Equities, snap.Loading)}
	crypto := Section{Title: "Crypto Assets", Cards: cards(snap.Crypto, snap.Loading)}

	switch snap.View {
	case model.ViewAllStocks:
		p.Sections = []Section{stocks}
	case model.ViewAllCrypto:
		p.Sections = []Section{crypto}
	default:
		if limit > 0 {
			if len(stocks.Cards) > limit {
				stocks.Cards = stocks.Cards[:limit]
			}
			if len(crypto.Cards) > limit {
				crypto.Cards = crypto.Cards[:limit]
			}
		}
		stocks.ViewAll = model.ViewAllStocks
		crypto.ViewAll = model.ViewAllCrypto
		p.Sections = []Section{stocks, crypto}
	}
	return p
}

func cards(list []model.Instrument, loading bool) []Card {
	out := make([]Card, 0, len(list))
	for _, inst := range list {
		c := Card{
			Symbol: inst.Symbol,
			Name:   inst.DisplayName,
			Kind:   inst.Kind,
			Price:  FormatPrice(inst.Price),
			Change: FormatChange(inst.ChangePercent),
			Up:     inst.IsUp(),
			Trend:  ta.Compute(inst.History),
		}
		if inst.Kind == model.KindCrypto && inst.Price == 0 && loading {
			c.Price = "loading"
		}
		out = append(out, c)
	}
	return out
}

// TickerLine 滚动行情条，例如 "BTC $64,230.50 ▲ 4.5% | SPX $4,783.45 ▲ 1.2%"
// crypto 尚未加载 (价格为 0) 时跳过
func TickerLine(snap model.Snapshot) string {
	parts := make([]string, 0, len(snap.Equities)+len(snap.Crypto))
	for _, list := range [][]model.Instrument{snap.Crypto, snap.Equities} {
		for _, inst := range list {
			if inst.Kind == model.KindCrypto && inst.Price == 0 {
				continue
			}
			parts = append(parts, inst.Symbol+" "+FormatPrice(inst.Price)+" "+FormatChange(inst.ChangePercent))
		}
	}
	return strings.Join(parts, " | ")
}

// FormatPrice 保留两位小数并加千分位；小于 1 的价格保留四位
func FormatPrice(price float64) string {
	d := decimal.NewFromFloat(price)
	places := int32(2)
	if d.Abs().LessThan(decimal.NewFromInt(1)) && !d.IsZero() {
		places = 4
	}
	s := d.StringFixed(places)

	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	intPart, frac, _ := strings.Cut(s, ".")
	out := "$" + groupThousands(intPart)
	if frac != "" {
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}

// FormatChange 例如 ▲ 4.5% / ▼ 0.5%
func FormatChange(pct float64) string {
	d := decimal.NewFromFloat(pct).Round(2)
	arrow := "▲"
	if d.IsNegative() {
		arrow = "▼"
	}
	return arrow + " " + d.Abs().String() + "%"
}

// FormatMarketCap 例如 $2.45 Trillion
func FormatMarketCap(trillions float64) string {
	return "$" + decimal.NewFromFloat(trillions).StringFixed(2) + " Trillion"
}

var printer = message.NewPrinter(language.English)

// groupThousands 按英文习惯加千分位，例如 1234567 -> 1,234,567
func groupThousands(digits string) string {
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return digits
	}
	return printer.Sprintf("%d", n)
}
