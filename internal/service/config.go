// internal/service/config.go
package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config 根配置
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Simulator SimulatorConfig `mapstructure:"simulator"`
	Quotes    QuotesConfig    `mapstructure:"quotes"`
	Stream    StreamConfig    `mapstructure:"stream"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	View      ViewConfig      `mapstructure:"view"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// SimulatorConfig 股票模拟参数
type SimulatorConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	Band          float64       `mapstructure:"band"`            // 乘性扰动半宽
	MarketCap     float64       `mapstructure:"market_cap"`      // 总市值初始值 (万亿)，0 表示使用目录中的值
	MarketCapStep float64       `mapstructure:"market_cap_step"` // 总市值加性扰动半宽
}

// QuotesConfig crypto 行情接口
type QuotesConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Currency string        `mapstructure:"currency"`
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"` // 0 表示不设超时
}

// StreamConfig Okx 公共 WS 行情 (可选)
type StreamConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	WSURL          string        `mapstructure:"ws_url"`
	QuoteCurrency  string        `mapstructure:"quote_currency"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
}

type CatalogConfig struct {
	Path string `mapstructure:"path"` // 空表示使用内置目录
}

type ViewConfig struct {
	Default        string        `mapstructure:"default"`
	DashboardLimit int           `mapstructure:"dashboard_limit"`
	RenderInterval time.Duration `mapstructure:"render_interval"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
	Channel  string `mapstructure:"channel"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")

	v.SetDefault("simulator.interval", 3*time.Second)
	v.SetDefault("simulator.band", 0.002)
	v.SetDefault("simulator.market_cap", 0.0)
	v.SetDefault("simulator.market_cap_step", 0.005)

	v.SetDefault("quotes.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("quotes.currency", "usd")
	v.SetDefault("quotes.interval", 30*time.Second)
	v.SetDefault("quotes.timeout", time.Duration(0))

	v.SetDefault("stream.enabled", false)
	v.SetDefault("stream.ws_url", "wss://ws.okx.com:8443/ws/v5/public")
	v.SetDefault("stream.quote_currency", "USDT")
	v.SetDefault("stream.reconnect_delay", 5*time.Second)

	v.SetDefault("catalog.path", "")

	v.SetDefault("view.default", "dashboard")
	v.SetDefault("view.dashboard_limit", 4)
	v.SetDefault("view.render_interval", 3*time.Second)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key", "investflow:snapshot")
	v.SetDefault("redis.channel", "investflow.snapshots")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "investflow_snapshots")
}

// LoadConfig 依次读取 .env、configPath/config.yaml 和 INVESTFLOW_ 前缀的环境变量。
// 配置文件不存在时使用默认值。
func LoadConfig(configPath string) (*Config, error) {
	// .env 不存在时忽略，直接使用系统环境变量
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config") // 文件名是 config
	v.SetConfigType("yaml")   // 文件类型是 yaml
	if configPath != "" {
		v.AddConfigPath(configPath)
	}

	v.SetEnvPrefix("INVESTFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: can't read config file", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: can't decode config into struct", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 基础校验
func (c *Config) Validate() error {
	switch {
	case c.Simulator.Interval <= 0:
		return fmt.Errorf("%w: simulator.interval must be positive", ErrInvalidConfig)
	case c.Simulator.Band <= 0 || c.Simulator.Band >= 1:
		return fmt.Errorf("%w: simulator.band must be in (0, 1)", ErrInvalidConfig)
	case c.Simulator.MarketCap < 0:
		return fmt.Errorf("%w: simulator.market_cap can't be negative", ErrInvalidConfig)
	case c.Simulator.MarketCapStep < 0:
		return fmt.Errorf("%w: simulator.market_cap_step can't be negative", ErrInvalidConfig)
	case c.Quotes.BaseURL == "":
		return fmt.Errorf("%w: empty quotes.base_url", ErrInvalidConfig)
	case c.Quotes.Currency == "":
		return fmt.Errorf("%w: empty quotes.currency", ErrInvalidConfig)
	case c.Quotes.Interval <= 0:
		return fmt.Errorf("%w: quotes.interval must be positive", ErrInvalidConfig)
	case c.Quotes.Timeout < 0:
		return fmt.Errorf("%w: quotes.timeout can't be negative", ErrInvalidConfig)
	case c.View.DashboardLimit <= 0:
		return fmt.Errorf("%w: view.dashboard_limit must be positive", ErrInvalidConfig)
	case c.View.RenderInterval <= 0:
		return fmt.Errorf("%w: view.render_interval must be positive", ErrInvalidConfig)
	case c.Stream.Enabled && c.Stream.WSURL == "":
		return fmt.Errorf("%w: empty stream.ws_url", ErrInvalidConfig)
	case c.Redis.Enabled && c.Redis.Addr == "":
		return fmt.Errorf("%w: empty redis.addr", ErrInvalidConfig)
	case c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == ""):
		return fmt.Errorf("%w: kafka brokers and topic are required", ErrInvalidConfig)
	}
	return nil
}
