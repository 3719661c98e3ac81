// Package config loads application configuration from config.yaml and
// DENTEXA_-prefixed environment variables.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dentexa/import-cli/internal/commit"
	"github.com/dentexa/import-cli/internal/resilience"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	History HistoryConfig `yaml:"history" mapstructure:"history"`
	Commit  CommitConfig  `yaml:"commit" mapstructure:"commit"`
	Import  ImportConfig  `yaml:"import" mapstructure:"import"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the practice records API.
type StoreConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	APIKey      string  `yaml:"api_key" mapstructure:"api_key"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// HistoryConfig configures the import-run audit database.
type HistoryConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// CommitConfig bounds the batch commit engine.
type CommitConfig struct {
	BatchSize      int `yaml:"batch_size" mapstructure:"batch_size"`
	Concurrency    int `yaml:"concurrency" mapstructure:"concurrency"`
	MaxAttempts    int `yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseDelayMS    int `yaml:"base_delay_ms" mapstructure:"base_delay_ms"`
	MaxDelayMS     int `yaml:"max_delay_ms" mapstructure:"max_delay_ms"`
	MaxRounds      int `yaml:"max_rounds" mapstructure:"max_rounds"`
	RoundPauseSecs int `yaml:"round_pause_secs" mapstructure:"round_pause_secs"`
}

// ImportConfig holds file-parsing settings.
type ImportConfig struct {
	Encoding string `yaml:"encoding" mapstructure:"encoding"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads config.yaml (optional) and the environment into a Config.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DENTEXA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Empty defaults register the key so AutomaticEnv can
	// populate it without a config file.
	v.SetDefault("store.base_url", "")
	v.SetDefault("store.api_key", "")
	v.SetDefault("store.rate_limit", 10.0)
	v.SetDefault("store.timeout_secs", 30)
	v.SetDefault("history.driver", "sqlite")
	v.SetDefault("history.path", "import-history.db")
	v.SetDefault("history.database_url", "")
	v.SetDefault("import.encoding", "")
	v.SetDefault("commit.batch_size", 50)
	v.SetDefault("commit.concurrency", 8)
	v.SetDefault("commit.max_attempts", 4)
	v.SetDefault("commit.base_delay_ms", 250)
	v.SetDefault("commit.max_delay_ms", 8000)
	v.SetDefault("commit.max_rounds", 3)
	v.SetDefault("commit.round_pause_secs", 2)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// EngineConfig converts the commit section into engine settings.
func (c CommitConfig) EngineConfig() commit.Config {
	return commit.Config{
		BatchSize:   c.BatchSize,
		Concurrency: c.Concurrency,
		MaxRounds:   c.MaxRounds,
		RoundPause:  time.Duration(c.RoundPauseSecs) * time.Second,
		Retry: resilience.Policy{
			MaxAttempts: c.MaxAttempts,
			BaseDelay:   time.Duration(c.BaseDelayMS) * time.Millisecond,
			MaxDelay:    time.Duration(c.MaxDelayMS) * time.Millisecond,
		},
	}
}

// InitLogger configures the global zap logger.
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
