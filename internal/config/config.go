package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Judge     JudgeConfig     `yaml:"judge" mapstructure:"judge"`
	Retrieval RetrievalConfig `yaml:"retrieval" mapstructure:"retrieval"`
	Rules     RulesConfig     `yaml:"rules" mapstructure:"rules"`
	Payments  PaymentsConfig  `yaml:"payments" mapstructure:"payments"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the claim store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// JudgeConfig configures the text-generation judgment backend.
type JudgeConfig struct {
	Provider     string  `yaml:"provider" mapstructure:"provider"` // "anthropic" or "openai"
	Model        string  `yaml:"model" mapstructure:"model"`
	APIKey       string  `yaml:"api_key" mapstructure:"api_key"`
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"` // OpenAI-compatible endpoint, e.g. local Ollama
	MaxTokens    int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimitRPS float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	Retries      int     `yaml:"retries" mapstructure:"retries"`
}

// RetrievalConfig configures the candidate code retrieval client.
type RetrievalConfig struct {
	BaseURL      string `yaml:"base_url" mapstructure:"base_url"`
	TopK         int    `yaml:"top_k" mapstructure:"top_k"`
	TimeoutSecs  int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Retries      int    `yaml:"retries" mapstructure:"retries"`
	CacheTTLSecs int    `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
}

// RulesConfig configures the payer rule engine.
type RulesConfig struct {
	ConfidenceThreshold  float64 `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
	RequireGroundedCodes bool    `yaml:"require_grounded_codes" mapstructure:"require_grounded_codes"`
	CrosswalkFile        string  `yaml:"crosswalk_file" mapstructure:"crosswalk_file"`
}

// PaymentsConfig configures the external settlement collaborator.
type PaymentsConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	Key         string `yaml:"key" mapstructure:"key"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// BatchConfig configures concurrent intake of independent claims.
type BatchConfig struct {
	MaxConcurrentClaims int `yaml:"max_concurrent_claims" mapstructure:"max_concurrent_claims"`
}

// ServerConfig configures the HTTP intake server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CLAIMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "claims.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("judge.provider", "anthropic")
	v.SetDefault("judge.model", "claude-haiku-4-5-20251001")
	v.SetDefault("judge.max_tokens", 1024)
	v.SetDefault("judge.timeout_secs", 60)
	v.SetDefault("judge.rate_limit_rps", 2)
	v.SetDefault("judge.retries", 2)
	v.SetDefault("retrieval.base_url", "http://localhost:8765")
	v.SetDefault("retrieval.top_k", 3)
	v.SetDefault("retrieval.timeout_secs", 15)
	v.SetDefault("retrieval.retries", 3)
	v.SetDefault("retrieval.cache_ttl_secs", 300)
	v.SetDefault("rules.confidence_threshold", 0.80)
	v.SetDefault("rules.require_grounded_codes", false)
	v.SetDefault("payments.timeout_secs", 30)
	v.SetDefault("batch.max_concurrent_claims", 4)
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
