package service_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zapcore"

	"investflow/internal/service"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := service.LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Simulator.Interval != 3*time.Second {
		t.Errorf("Expected 3s simulator interval, got %s", cfg.Simulator.Interval)
	}
	if cfg.Quotes.Interval != 30*time.Second {
		t.Errorf("Expected 30s quote interval, got %s", cfg.Quotes.Interval)
	}
	if cfg.Simulator.Band != 0.002 || cfg.Simulator.MarketCapStep != 0.005 {
		t.Errorf("Unexpected simulator defaults %+v", cfg.Simulator)
	}
	if cfg.Quotes.Currency != "usd" || cfg.Quotes.Timeout != 0 {
		t.Errorf("Unexpected quote defaults %+v", cfg.Quotes)
	}
	if cfg.View.Default != "dashboard" || cfg.View.DashboardLimit != 4 {
		t.Errorf("Unexpected view defaults %+v", cfg.View)
	}
	if cfg.Stream.Enabled || cfg.Redis.Enabled || cfg.Kafka.Enabled {
		t.Errorf("Optional integrations must be disabled by default")
	}
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	body := `
simulator:
  interval: 1s
quotes:
  currency: eur
  interval: 1m
redis:
  enabled: true
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("INVESTFLOW_QUOTES_CURRENCY", "gbp")

	cfg, err := service.LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Simulator.Interval != time.Second {
		t.Errorf("Expected 1s, got %s", cfg.Simulator.Interval)
	}
	if cfg.Quotes.Interval != time.Minute {
		t.Errorf("Expected 1m, got %s", cfg.Quotes.Interval)
	}
	if cfg.Quotes.Currency != "gbp" {
		t.Errorf("Environment must override file, got %s", cfg.Quotes.Currency)
	}
	if !cfg.Redis.Enabled || cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("Unexpected redis config %+v", cfg.Redis)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	dir := t.TempDir()
	body := `
quotes:
  interval: 0s
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := service.LoadConfig(dir); !errors.Is(err, service.ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}
}

func TestInitLogger(t *testing.T) {
	if err := service.InitLogger("debug"); err != nil {
		t.Fatalf("InitLogger failed: %v", err)
	}
	if !service.Logger.Core().Enabled(zapcore.DebugLevel) {
		t.Error("Debug level must be enabled")
	}
	if err := service.InitLogger("loud"); !errors.Is(err, service.ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}
}

func TestPercentChange(t *testing.T) {
	if got := service.PercentChange(100, 104.5); got < 4.4999 || got > 4.5001 {
		t.Errorf("Expected 4.5, got %f", got)
	}
	if got := service.PercentChange(0, 10); got != 0 {
		t.Errorf("Expected 0 for zero base, got %f", got)
	}
}
