package infra

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"exchange_core/internal/domain"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds every setting of the exchange core.
// LoadConfig reads the YAML file, then .env and environment variables override it.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Storage struct {
		Driver string `yaml:"driver"` // "sqlite" or "postgres"
		DSN    string `yaml:"dsn"`
	} `yaml:"storage"`

	Market MarketConfig `yaml:"market"`

	Dispatch struct {
		Driver     string `yaml:"driver"` // "memory" or "kafka"
		Workers    int    `yaml:"workers"`
		BufferSize int    `yaml:"buffer_size"`
		Kafka      struct {
			Brokers []string `yaml:"brokers"`
			Topic   string   `yaml:"topic"`
			GroupID string   `yaml:"group_id"`
		} `yaml:"kafka"`
	} `yaml:"dispatch"`

	Server struct {
		Addr string `yaml:"addr"` // REST API, websocket and /metrics
	} `yaml:"server"`

	Seed struct {
		Users []SeedUser `yaml:"users"`
	} `yaml:"seed"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`
}

// MarketConfig is the tradeable symbol allow-list and fee schedule.
type MarketConfig struct {
	Symbols []string     `yaml:"symbols"`
	FeeRate domain.Money `yaml:"fee_rate"`
}

// IsTradable reports whether symbol is on the allow-list.
// The caller layer checks this before calling PlaceOrder.
func (m MarketConfig) IsTradable(symbol string) bool {
	for _, s := range m.Symbols {
		if s == symbol {
			return true
		}
	}
	return false
}

// SeedUser is an account created on first start of an empty ledger.
type SeedUser struct {
	Name      string                  `yaml:"name"`
	Balance   domain.Money            `yaml:"balance"`
	Inventory map[string]domain.Money `yaml:"inventory"`
}

// DefaultConfig returns the settings used when the file omits a value.
func DefaultConfig() *Config {
	var cfg Config
	cfg.App.Name = "exchange-core"
	cfg.Storage.Driver = "sqlite"
	cfg.Market.Symbols = []string{"BTC", "ETH"}
	cfg.Market.FeeRate = domain.MustMoney("0.015")
	cfg.Dispatch.Driver = "memory"
	cfg.Dispatch.Workers = 4
	cfg.Dispatch.BufferSize = 1024
	cfg.Dispatch.Kafka.Topic = "order-matches"
	cfg.Dispatch.Kafka.GroupID = "exchange-core-matcher"
	cfg.Server.Addr = "localhost:8080"
	cfg.Logging.Level = "info"
	cfg.Logging.Dir = "logs"
	return &cfg
}

// LoadConfig는 설정 파일을 읽고 파싱합니다.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
	}
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()
	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite":
	case "postgres":
		if c.Storage.DSN == "" {
			return &domain.ConfigError{Field: "storage.dsn", Err: errors.New("required for postgres")}
		}
	default:
		return &domain.ConfigError{Field: "storage.driver", Err: fmt.Errorf("unknown driver %q", c.Storage.Driver)}
	}

	if len(c.Market.Symbols) == 0 {
		return &domain.ConfigError{Field: "market.symbols", Err: errors.New("at least one symbol is required")}
	}
	if c.Market.FeeRate.IsNegative() || !c.Market.FeeRate.LessThan(domain.MoneyFromInt(1)) {
		return &domain.ConfigError{Field: "market.fee_rate", Err: fmt.Errorf("must be in [0, 1), got %s", c.Market.FeeRate)}
	}

	switch c.Dispatch.Driver {
	case "memory":
	case "kafka":
		if len(c.Dispatch.Kafka.Brokers) == 0 {
			return &domain.ConfigError{Field: "dispatch.kafka.brokers", Err: errors.New("at least one broker is required")}
		}
		if c.Dispatch.Kafka.Topic == "" {
			return &domain.ConfigError{Field: "dispatch.kafka.topic", Err: errors.New("required")}
		}
	default:
		return &domain.ConfigError{Field: "dispatch.driver", Err: fmt.Errorf("unknown driver %q", c.Dispatch.Driver)}
	}
	if c.Dispatch.Workers <= 0 {
		return &domain.ConfigError{Field: "dispatch.workers", Err: errors.New("must be positive")}
	}
	if c.Dispatch.BufferSize < 0 {
		return &domain.ConfigError{Field: "dispatch.buffer_size", Err: errors.New("must not be negative")}
	}

	for _, u := range c.Seed.Users {
		if u.Name == "" {
			return &domain.ConfigError{Field: "seed.users", Err: errors.New("name is required")}
		}
	}

	return nil
}

// overrideWithEnv는 환경 변수가 존재할 경우 설정 값을 덮어씁니다.
func overrideWithEnv(cfg *Config) {
	if driver := os.Getenv("EXCHANGE_DB_DRIVER"); driver != "" {
		cfg.Storage.Driver = driver
	}
	if dsn := os.Getenv("EXCHANGE_DB_DSN"); dsn != "" {
		cfg.Storage.DSN = dsn
	}
	if brokers := os.Getenv("EXCHANGE_KAFKA_BROKERS"); brokers != "" {
		cfg.Dispatch.Driver = "kafka"
		cfg.Dispatch.Kafka.Brokers = strings.Split(brokers, ",")
	}
	if workers := os.Getenv("EXCHANGE_DISPATCH_WORKERS"); workers != "" {
		if n, err := strconv.Atoi(workers); err == nil {
			cfg.Dispatch.Workers = n
		}
	}
	if addr := os.Getenv("EXCHANGE_SERVER_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}
	if level := os.Getenv("EXCHANGE_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}
