// Package config loads application configuration from file and
// environment, and materializes the named analysis profiles.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pathways-group/skillmap-cli/internal/dedup"
	"github.com/pathways-group/skillmap-cli/internal/facet"
	"github.com/pathways-group/skillmap-cli/internal/resilience"
	"github.com/pathways-group/skillmap-cli/internal/similarity"
	"github.com/pathways-group/skillmap-cli/internal/store"
	"github.com/pathways-group/skillmap-cli/internal/transfer"
)

// Config holds the full application configuration.
type Config struct {
	Profile    string             `yaml:"profile" mapstructure:"profile"`
	Store      StoreConfig        `yaml:"store" mapstructure:"store"`
	Jina       JinaConfig         `yaml:"jina" mapstructure:"jina"`
	Anthropic  AnthropicConfig    `yaml:"anthropic" mapstructure:"anthropic"`
	Similarity similarity.Config  `yaml:"similarity" mapstructure:"similarity"`
	Dedup      dedup.Config       `yaml:"dedup" mapstructure:"dedup"`
	Facet      facet.Config       `yaml:"facet" mapstructure:"facet"`
	Family     facet.FamilyConfig `yaml:"family" mapstructure:"family"`
	Transfer   TransferConfig     `yaml:"transfer" mapstructure:"transfer"`
	Retry      RetryConfig        `yaml:"retry" mapstructure:"retry"`
	Circuit    CircuitConfig      `yaml:"circuit" mapstructure:"circuit"`
	Server     ServerConfig       `yaml:"server" mapstructure:"server"`
	Log        LogConfig          `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver        string            `yaml:"driver" mapstructure:"driver"`
	DatabaseURL   string            `yaml:"database_url" mapstructure:"database_url"`
	Pool          *store.PoolConfig `yaml:"pool" mapstructure:"pool"`
	CacheTTLHours int               `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
}

// JinaConfig holds the embeddings API settings.
type JinaConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	Model     string `yaml:"model" mapstructure:"model"`
	BatchSize int    `yaml:"batch_size" mapstructure:"batch_size"`
}

// AnthropicConfig holds the generation API settings.
type AnthropicConfig struct {
	Key          string `yaml:"key" mapstructure:"key"`
	Model        string `yaml:"model" mapstructure:"model"`
	MaxTokens    int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	MaxBatchSize int    `yaml:"max_batch_size" mapstructure:"max_batch_size"`
}

// TransferConfig configures credit-transfer matching.
type TransferConfig struct {
	transfer.Config `yaml:",inline" mapstructure:",squash"`

	// EmbeddingOnly disables the GenAI coverage judge even when an API
	// key is configured.
	EmbeddingOnly bool `yaml:"embedding_only" mapstructure:"embedding_only"`
}

// RetryConfig holds external-call retry tuning.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// CircuitConfig holds circuit breaker tuning for external services.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// ServerConfig configures the coverage-scoring HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment, then applies the
// selected profile on top of the defaults.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SKILLMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("profile", "balanced")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "skillmap.db")
	v.SetDefault("store.cache_ttl_hours", 168)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("jina.base_url", "https://api.jina.ai/v1/embeddings")
	v.SetDefault("jina.model", "jina-embeddings-v3")
	v.SetDefault("jina.batch_size", 128)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.max_batch_size", 50)
	v.SetDefault("similarity.weights.semantic", 0.6)
	v.SetDefault("similarity.weights.level", 0.25)
	v.SetDefault("similarity.weights.context", 0.15)
	v.SetDefault("dedup.similarity_floor", 0.5)
	v.SetDefault("dedup.direct_threshold", 0.9)
	v.SetDefault("dedup.partial_threshold", 0.8)
	v.SetDefault("dedup.top_k", 20)
	v.SetDefault("dedup.max_level_gap", 1)
	v.SetDefault("facet.embedding_threshold", 0.3)
	v.SetDefault("facet.rerank_floor", 0.25)
	v.SetDefault("facet.rerank_top_k", 3)
	v.SetDefault("facet.max_multi_values", 3)
	v.SetDefault("facet.batch_size", 50)
	v.SetDefault("family.embedding_threshold", 0.5)
	v.SetDefault("family.rerank_floor", 0.35)
	v.SetDefault("family.rerank_top_k", 5)
	v.SetDefault("family.keyword_threshold", 2)
	v.SetDefault("family.batch_size", 50)
	v.SetDefault("transfer.coverage_threshold", 0.7)
	v.SetDefault("transfer.max_combination", 3)
	v.SetDefault("transfer.short_circuit", 0.95)
	v.SetDefault("transfer.full_threshold", 0.8)
	v.SetDefault("transfer.partial_threshold", 0.5)
	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.2)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)

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

	if err := ApplyProfile(&cfg, cfg.Profile); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Build converts the tuning values into a resilience.RetryConfig.
func (r RetryConfig) Build() resilience.RetryConfig {
	return resilience.FromRetryConfig(
		r.MaxAttempts, r.InitialBackoffMs, r.MaxBackoffMs, r.Multiplier, r.JitterFraction,
	)
}

// Build converts the tuning values into a CircuitBreakerConfig.
func (c CircuitConfig) Build() resilience.CircuitBreakerConfig {
	return resilience.FromCircuitConfig(c.FailureThreshold, c.ResetTimeoutSecs)
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
