package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"investflow/internal/model"
)

// DefaultMarketCap 总市值初始值 (万亿)
const DefaultMarketCap = 2.45

var ErrInvalidCatalog = errors.New("invalid catalog")

// Catalog 会话启动时的种子数据
type Catalog struct {
	Equities  []model.Instrument `yaml:"equities"`
	Crypto    []model.Instrument `yaml:"crypto"`
	MarketCap float64            `yaml:"market_cap"`
}

var defaultEquities = []model.Instrument{
	{ID: "spx", Symbol: "SPX", DisplayName: "S&P 500", Kind: model.KindIndex, Price: 4783.45, ChangePercent: 1.2, History: []float64{4700, 4720, 4710, 4750, 4783}},
	{ID: "ndx", Symbol: "NDX", DisplayName: "Nasdaq 100", Kind: model.KindIndex, Price: 16832.92, ChangePercent: -0.5, History: []float64{16900, 16850, 16880, 16800, 16832}},
	{ID: "dji", Symbol: "DJI", DisplayName: "Dow Jones", Kind: model.KindIndex, Price: 37468.61, ChangePercent: 0.8, History: []float64{37200, 37300, 37250, 37400, 37468}},
	{ID: "aapl", Symbol: "AAPL", DisplayName: "Apple Inc.", Kind: model.KindEquity, Price: 189.95, ChangePercent: 0.6, History: []float64{186.2, 187.4, 188.1, 188.9, 189.9}},
	{ID: "msft", Symbol: "MSFT", DisplayName: "Microsoft", Kind: model.KindEquity, Price: 376.04, ChangePercent: -0.3, History: []float64{378.5, 377.9, 377.2, 376.6, 376.0}},
	{ID: "nvda", Symbol: "NVDA", DisplayName: "NVIDIA", Kind: model.KindEquity, Price: 495.22, ChangePercent: 2.7, History: []float64{476.1, 481.5, 485.9, 490.3, 495.2}},
	{ID: "tsla", Symbol: "TSLA", DisplayName: "Tesla", Kind: model.KindEquity, Price: 248.48, ChangePercent: -1.4, History: []float64{254.0, 252.7, 251.1, 249.9, 248.5}},
	{ID: "amzn", Symbol: "AMZN", DisplayName: "Amazon", Kind: model.KindEquity, Price: 153.38, ChangePercent: 0.9, History: []float64{150.9, 151.6, 152.2, 152.8, 153.4}},
}

// crypto 的 ID 即行情接口的资产 ID；价格 0 表示尚未拉取
var defaultCrypto = []model.Instrument{
	{ID: "bitcoin", Symbol: "BTC", DisplayName: "Bitcoin", Kind: model.KindCrypto, History: []float64{61000, 62500, 61800, 63500, 64230}},
	{ID: "ethereum", Symbol: "ETH", DisplayName: "Ethereum", Kind: model.KindCrypto, History: []float64{3300, 3350, 3320, 3400, 3450}},
	{ID: "solana", Symbol: "SOL", DisplayName: "Solana", Kind: model.KindCrypto, History: []float64{138, 141, 139, 144, 146}},
	{ID: "binancecoin", Symbol: "BNB", DisplayName: "BNB", Kind: model.KindCrypto, History: []float64{560, 566, 571, 569, 575}},
	{ID: "ripple", Symbol: "XRP", DisplayName: "XRP", Kind: model.KindCrypto, History: []float64{0.52, 0.53, 0.51, 0.54, 0.55}},
	{ID: "cardano", Symbol: "ADA", DisplayName: "Cardano", Kind: model.KindCrypto, History: []float64{0.45, 0.46, 0.44, 0.47, 0.48}},
	{ID: "dogecoin", Symbol: "DOGE", DisplayName: "Dogecoin", Kind: model.KindCrypto, History: []float64{0.15, 0.16, 0.15, 0.17, 0.16}},
	{ID: "polkadot", Symbol: "DOT", DisplayName: "Polkadot", Kind: model.KindCrypto, History: []float64{6.9, 7.1, 7.0, 7.3, 7.4}},
}

// Default 返回内置目录的副本，调用方可以自由持有
func Default() Catalog {
	return Catalog{
		Equities:  model.CloneList(defaultEquities),
		Crypto:    model.CloneList(defaultCrypto),
		MarketCap: DefaultMarketCap,
	}
}

// LoadFile 从 YAML 文件读取目录
func LoadFile(filename string) (Catalog, error) {
	var c Catalog
	input, err := os.ReadFile(filename)
	if err != nil {
		return c, fmt.Errorf("%w: can't read catalog file", err)
	}

	if err := yaml.Unmarshal(input, &c); err != nil {
		return c, fmt.Errorf("%w: can't unmarshal catalog", err)
	}

	if c.MarketCap == 0 {
		c.MarketCap = DefaultMarketCap
	}
	for i := range c.Crypto {
		if c.Crypto[i].Kind == "" {
			c.Crypto[i].Kind = model.KindCrypto
		}
	}
	for i := range c.Equities {
		if c.Equities[i].Kind == "" {
			c.Equities[i].Kind = model.KindEquity
		}
	}

	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// Validate 检查两张列表
func (c Catalog) Validate() error {
	if len(c.Equities) == 0 && len(c.Crypto) == 0 {
		return fmt.Errorf("%w: empty catalog", ErrInvalidCatalog)
	}
	if c.MarketCap < 0 {
		return fmt.Errorf("%w: negative market cap", ErrInvalidCatalog)
	}
	if err := validateList("equities", c.Equities); err != nil {
		return err
	}
	return validateList("crypto", c.Crypto)
}

func validateList(name string, list []model.Instrument) error {
	symbols := make(map[string]struct{}, len(list))
	ids := make(map[string]struct{}, len(list))

	for _, inst := range list {
		switch {
		case inst.ID == "":
			return fmt.Errorf("%w: %s: empty id for symbol %q", ErrInvalidCatalog, name, inst.Symbol)
		case inst.ID != strings.ToLower(inst.ID):
			// 行情接口按小写 ID 返回，大写 ID 永远匹配不上
			return fmt.Errorf("%w: %s: id %q must be lowercase", ErrInvalidCatalog, name, inst.ID)
		case inst.Symbol == "":
			return fmt.Errorf("%w: %s: empty symbol for id %q", ErrInvalidCatalog, name, inst.ID)
		case inst.Price < 0:
			return fmt.Errorf("%w: %s: negative price for %s", ErrInvalidCatalog, name, inst.Symbol)
		case len(inst.History) == 0:
			return fmt.Errorf("%w: %s: empty history for %s", ErrInvalidCatalog, name, inst.Symbol)
		}
		if _, dup := symbols[inst.Symbol]; dup {
			return fmt.Errorf("%w: %s: duplicate symbol %s", ErrInvalidCatalog, name, inst.Symbol)
		}
		if _, dup := ids[inst.ID]; dup {
			return fmt.Errorf("%w: %s: duplicate id %s", ErrInvalidCatalog, name, inst.ID)
		}
		symbols[inst.Symbol] = struct{}{}
		ids[inst.ID] = struct{}{}
	}
	return nil
}

// IDs 按目录顺序返回 ID
func IDs(list []model.Instrument) []string {
	ids := make([]string, 0, len(list))
	for _, inst := range list {
		ids = append(ids, inst.ID)
	}
	return ids
}
