// Package config loads application configuration from config.yaml and
// ZONESCOPE_-prefixed environment variables, and initializes the global
// zap logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lionmetrics/zonescope/internal/ingest"
	"github.com/lionmetrics/zonescope/internal/model"
	"github.com/lionmetrics/zonescope/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Ingest  IngestConfig  `yaml:"ingest" mapstructure:"ingest"`
	Aliases AliasConfig   `yaml:"aliases" mapstructure:"aliases"`
	Scoring ScoringConfig `yaml:"scoring" mapstructure:"scoring"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the read-only HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// IngestConfig configures the ingestion pipeline.
type IngestConfig struct {
	// Workers processing records within one dataset.
	Workers int `yaml:"workers" mapstructure:"workers"`
	// Datasets ingested concurrently.
	Concurrency int            `yaml:"concurrency" mapstructure:"concurrency"`
	UserAgent   string         `yaml:"user_agent" mapstructure:"user_agent"`
	Datasets    DatasetsConfig `yaml:"datasets" mapstructure:"datasets"`
}

// DatasetsConfig holds the source location for each dataset: a remote URL,
// a local fallback path, or both.
type DatasetsConfig struct {
	Zones      ingest.Source `yaml:"zones" mapstructure:"zones"`
	Hawkers    ingest.Source `yaml:"hawkers" mapstructure:"hawkers"`
	MRTExits   ingest.Source `yaml:"mrt_exits" mapstructure:"mrt_exits"`
	BusStops   ingest.Source `yaml:"bus_stops" mapstructure:"bus_stops"`
	Population ingest.Source `yaml:"population" mapstructure:"population"`
}

// AliasConfig configures the zone name alias table.
type AliasConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ScoringConfig configures the opportunity scoring engine.
type ScoringConfig struct {
	Kernel KernelDefaults `yaml:"kernel" mapstructure:"kernel"`
}

// KernelDefaults is the kernel config seeded on the first `score` run.
// Once stored it is immutable; changing these values takes effect under a
// new name only.
type KernelDefaults struct {
	Name            string  `yaml:"name" mapstructure:"name"`
	BandwidthDemand float64 `yaml:"bandwidth_demand" mapstructure:"bandwidth_demand"`
	BandwidthSupply float64 `yaml:"bandwidth_supply" mapstructure:"bandwidth_supply"`
	BandwidthMRT    float64 `yaml:"bandwidth_mrt" mapstructure:"bandwidth_mrt"`
	BandwidthBus    float64 `yaml:"bandwidth_bus" mapstructure:"bandwidth_bus"`
	BetaMRT         float64 `yaml:"beta_mrt" mapstructure:"beta_mrt"`
	BetaBus         float64 `yaml:"beta_bus" mapstructure:"beta_bus"`
}

// Model converts the defaults to a model.KernelConfig for persistence.
func (k KernelDefaults) Model() model.KernelConfig {
	return model.KernelConfig{
		Name:            k.Name,
		BandwidthDemand: k.BandwidthDemand,
		BandwidthSupply: k.BandwidthSupply,
		BandwidthMRT:    k.BandwidthMRT,
		BandwidthBus:    k.BandwidthBus,
		BetaMRT:         k.BetaMRT,
		BetaBus:         k.BetaBus,
	}
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ZONESCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "zonescope.db")
	v.SetDefault("store.pool.max_conns", 10)
	v.SetDefault("store.pool.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("ingest.workers", 4)
	v.SetDefault("ingest.concurrency", 3)
	v.SetDefault("ingest.user_agent", "zonescope/1.0")
	v.SetDefault("aliases.path", "")
	v.SetDefault("scoring.kernel.name", "default")
	v.SetDefault("scoring.kernel.bandwidth_demand", 1500)
	v.SetDefault("scoring.kernel.bandwidth_supply", 800)
	v.SetDefault("scoring.kernel.bandwidth_mrt", 1000)
	v.SetDefault("scoring.kernel.bandwidth_bus", 400)
	v.SetDefault("scoring.kernel.beta_mrt", 0.7)
	v.SetDefault("scoring.kernel.beta_bus", 0.3)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
