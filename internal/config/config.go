// Package config loads dexcore's process configuration from a YAML file,
// environment variables, and built-in defaults, in that precedence order.
package config

import (
	"fmt"
	"sync"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config is the root configuration for a coreengine process.
type Config struct {
	Server struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
	} `mapstructure:"server"`

	Storage StorageConfig `mapstructure:"storage"`

	Pairs []string `mapstructure:"pairs"`

	PriceBand struct {
		// MaxDeviationBps bounds how far an order's effective price may
		// deviate from the last trade price before it is rejected (§4.4
		// step 2). Default 5000 bps == 50%, per spec.md.
		MaxDeviationBps int64 `mapstructure:"max_deviation_bps"`
	} `mapstructure:"price_band"`

	Fees FeeConfig `mapstructure:"fees"`

	Funding struct {
		IntervalHours int64 `mapstructure:"interval_hours"`
		// MaxRateBps bounds the signed funding rate magnitude (§4.5).
		MaxRateBps int64 `mapstructure:"max_rate_bps"`
	} `mapstructure:"funding"`

	Margin struct {
		MaintenanceMarginBps int64 `mapstructure:"maintenance_margin_bps"`
		MaxLeverage          int64 `mapstructure:"max_leverage"`
	} `mapstructure:"margin"`

	Settlement SettlementConfig `mapstructure:"settlement"`

	Events EventsConfig `mapstructure:"events"`

	PrivacySwap PrivacySwapConfig `mapstructure:"privacy_swap"`

	Monitoring struct {
		PrometheusPort int    `mapstructure:"prometheus_port"`
		LogLevel       string `mapstructure:"log_level"`
	} `mapstructure:"monitoring"`
}

// StorageConfig names the three tiers from spec.md §6. An empty Host
// disables that tier.
type StorageConfig struct {
	Redis struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`

	Postgres struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		Database string `mapstructure:"database"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Max      int    `mapstructure:"max"`
	} `mapstructure:"postgresql"`

	IPFS struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		Protocol string `mapstructure:"protocol"`
	} `mapstructure:"ipfs"`

	Archival struct {
		ThresholdDays int `mapstructure:"threshold_days"`
		BatchSize     int `mapstructure:"batch_size"`
	} `mapstructure:"archival"`

	HotTTLSeconds int `mapstructure:"hot_ttl_seconds"`
}

// FeeConfig is the basis-point fee schedule and the validator/company/
// development revenue split (spec.md §6). Shares must sum to 1.0 within
// 1e-3; enforced by Validate.
type FeeConfig struct {
	SpotMakerBps       int64   `mapstructure:"spot_maker_bps"`
	SpotTakerBps       int64   `mapstructure:"spot_taker_bps"`
	PerpMakerBps       int64   `mapstructure:"perp_maker_bps"`
	PerpTakerBps       int64   `mapstructure:"perp_taker_bps"`
	ValidatorShare     float64 `mapstructure:"validator_share"`
	CompanyShare       float64 `mapstructure:"company_share"`
	DevelopmentShare   float64 `mapstructure:"development_share"`
}

// Validate checks the fee split invariant from spec.md §6.
func (f FeeConfig) Validate() error {
	sum := f.ValidatorShare + f.CompanyShare + f.DevelopmentShare
	if diff := sum - 1.0; diff > 1e-3 || diff < -1e-3 {
		return fmt.Errorf("fee shares must sum to 1.0 within 1e-3, got %f", sum)
	}
	return nil
}

// SettlementConfig bounds the batch settlement planner (spec.md §4.6).
type SettlementConfig struct {
	ContractGatewayURL string `mapstructure:"contract_gateway_url"`
	MaxTradesPerBatch  int    `mapstructure:"max_trades_per_batch"`
	GasBudget          int64  `mapstructure:"gas_budget"`
	RetryMaxAttempts   int    `mapstructure:"retry_max_attempts"`
	RetryBaseDelayMS   int    `mapstructure:"retry_base_delay_ms"`
	DeadlineSeconds    int    `mapstructure:"deadline_seconds"`
}

// PrivacySwapConfig points the encrypted-matching oracle adapter at an MPC
// node (spec.md's privacy variant). An empty OracleURL means the privacy
// variant is disabled outright: privacy orders are rejected and regular
// matching continues, the same outcome as a reachable-but-erroring oracle.
type PrivacySwapConfig struct {
	OracleURL        string `mapstructure:"oracle_url"`
	RetryMaxAttempts int    `mapstructure:"retry_max_attempts"`
	RetryBaseDelayMS int    `mapstructure:"retry_base_delay_ms"`
	DeadlineSeconds  int    `mapstructure:"deadline_seconds"`
}

// EventsConfig points the egress bus (internal/events) at a NATS deployment
// (spec.md §6). An empty URL falls back to an in-process pub/sub, matching
// the storage tiers' empty-host-disables-the-tier convention.
type EventsConfig struct {
	NatsURL     string `mapstructure:"nats_url"`
	TopicPrefix string `mapstructure:"topic_prefix"`
}

var (
	config *Config
	once   sync.Once
)

// Load loads configuration from configPath (a directory containing
// config.yaml), environment variables prefixed DEXCORE_, and defaults.
func Load(configPath string) (*Config, error) {
	var err error

	once.Do(func() {
		config = &Config{}
		setDefaults(config)

		v := viper.New()
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		if configPath != "" {
			v.AddConfigPath(configPath)
		} else {
			v.AddConfigPath(".")
			v.AddConfigPath("./config")
			v.AddConfigPath("/etc/dexcore")
		}

		v.AutomaticEnv()
		v.SetEnvPrefix("DEXCORE")

		if readErr := v.ReadInConfig(); readErr != nil {
			if _, ok := readErr.(viper.ConfigFileNotFoundError); !ok {
				err = fmt.Errorf("failed to read config file: %w", readErr)
				return
			}
		}

		if unmarshalErr := v.Unmarshal(config); unmarshalErr != nil {
			err = fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
			return
		}

		if validateErr := config.Fees.Validate(); validateErr != nil {
			err = validateErr
			return
		}
	})

	return config, err
}

// Get returns the process-wide configuration, loading it with defaults if
// it has not been loaded yet.
func Get() *Config {
	if config == nil {
		if _, err := Load(""); err != nil {
			panic(fmt.Sprintf("failed to load config: %v", err))
		}
	}
	return config
}

func setDefaults(c *Config) {
	c.Server.Host = "0.0.0.0"
	c.Server.Port = 8080

	c.Storage.Redis.Host = ""
	c.Storage.Postgres.Host = ""
	c.Storage.Postgres.Port = 5432
	c.Storage.Postgres.Database = "dexcore"
	c.Storage.Postgres.User = "postgres"
	c.Storage.Postgres.Max = 20
	c.Storage.IPFS.Host = ""
	c.Storage.Archival.ThresholdDays = 7
	c.Storage.Archival.BatchSize = 500
	c.Storage.HotTTLSeconds = 24 * 60 * 60

	c.Pairs = []string{"BTC-USDT", "ETH-USDT"}

	c.PriceBand.MaxDeviationBps = 5000

	c.Fees.SpotMakerBps = 10
	c.Fees.SpotTakerBps = 20
	c.Fees.PerpMakerBps = 2
	c.Fees.PerpTakerBps = 6
	c.Fees.ValidatorShare = 0.70
	c.Fees.CompanyShare = 0.20
	c.Fees.DevelopmentShare = 0.10

	c.Funding.IntervalHours = 8
	c.Funding.MaxRateBps = 100

	c.Margin.MaintenanceMarginBps = 250
	c.Margin.MaxLeverage = 100

	c.Settlement.MaxTradesPerBatch = 200
	c.Settlement.GasBudget = 8_000_000
	c.Settlement.RetryMaxAttempts = 5
	c.Settlement.RetryBaseDelayMS = 200
	c.Settlement.DeadlineSeconds = 30

	c.Events.TopicPrefix = "dexcore."

	c.PrivacySwap.RetryMaxAttempts = 2
	c.PrivacySwap.RetryBaseDelayMS = 100
	c.PrivacySwap.DeadlineSeconds = 5

	c.Monitoring.PrometheusPort = 9090
	c.Monitoring.LogLevel = "info"
}

// NewLogger builds the process logger per Monitoring.LogLevel.
func NewLogger(cfg *Config) (*zap.Logger, error) {
	switch cfg.Monitoring.LogLevel {
	case "debug":
		return zap.NewDevelopment()
	default:
		return zap.NewProduction()
	}
}
