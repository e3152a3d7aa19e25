/**
 * Configuration for the OCR engine
 *
 * Sources, highest precedence first:
 * - Environment variables (OCR_ prefix, plus the bare names shared with
 *   the rest of the platform such as OPENAI_API_KEY and REDIS_URL)
 * - ocrengine.yaml in ., ./config, $HOME/.ocrengine or /etc/ocrengine
 * - Defaults
 */

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/adverant/nexus/ocr-engine/internal/cache"
	"github.com/adverant/nexus/ocr-engine/internal/fusion"
	"github.com/adverant/nexus/ocr-engine/internal/ocr"
	"github.com/adverant/nexus/ocr-engine/internal/orchestrator"
	"github.com/adverant/nexus/ocr-engine/internal/processor"
	"github.com/adverant/nexus/ocr-engine/internal/providers"
)

const (
	// ConfigFileName is the base name of the config file (without extension)
	ConfigFileName = "ocrengine"

	// EnvPrefix is the prefix for environment variables
	EnvPrefix = "OCR"
)

// Config holds engine configuration
type Config struct {
	Providers    ProvidersConfig          `mapstructure:"providers"`
	Fallback     providers.FallbackConfig `mapstructure:"fallback"`
	Fusion       fusion.Config            `mapstructure:"fusion"`
	Orchestrator orchestrator.Config      `mapstructure:"orchestrator"`
	Cache        CacheConfig              `mapstructure:"cache"`
	Service      processor.ServiceConfig  `mapstructure:"service"`
	Queue        QueueConfig              `mapstructure:"queue"`
	Database     DatabaseConfig           `mapstructure:"database"`
	Log          LogConfig                `mapstructure:"log"`
	Metrics      MetricsConfig            `mapstructure:"metrics"`
}

// ProvidersConfig lists the real providers in priority order
type ProvidersConfig struct {
	Order     []string         `mapstructure:"order"`
	OpenAI    providers.Config `mapstructure:"openai"`
	Anthropic providers.Config `mapstructure:"anthropic"`
}

// CacheConfig configures the result cache. RedisURL enables the shared L2.
type CacheConfig struct {
	TTL       time.Duration `mapstructure:"ttl"`
	Capacity  uint64        `mapstructure:"capacity"`
	RedisURL  string        `mapstructure:"redis_url"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

// QueueConfig configures async extraction jobs
type QueueConfig struct {
	RedisURL    string        `mapstructure:"redis_url"`
	Concurrency int           `mapstructure:"concurrency"`
	JobTimeout  time.Duration `mapstructure:"job_timeout"`
	Retention   time.Duration `mapstructure:"retention"`
}

// DatabaseConfig configures job tracking; an empty URL disables it
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Port int `mapstructure:"port"`
}

// LoadConfig loads configuration from the default search paths
func LoadConfig() (*Config, error) {
	return LoadConfigFile("")
}

// LoadConfigFile loads configuration from configFile, or from the search
// paths when it is empty
func LoadConfigFile(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if configFile != "" {
		if _, err := os.Stat(configFile); err != nil {
			return nil, fmt.Errorf("config file does not exist: %s", configFile)
		}
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(ConfigFileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".ocrengine"))
		}
		v.AddConfigPath("/etc/ocrengine")
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine; defaults and env vars still apply
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("providers.order", []string{string(ocr.ProviderOpenAI), string(ocr.ProviderAnthropic)})
	v.SetDefault("providers.openai.api_key", "")
	v.SetDefault("providers.openai.daily_quota", 0)
	v.SetDefault("providers.openai.rate_limit.requests_per_minute", 60)
	v.SetDefault("providers.anthropic.api_key", "")
	v.SetDefault("providers.anthropic.daily_quota", 0)
	v.SetDefault("providers.anthropic.rate_limit.requests_per_minute", 50)

	v.SetDefault("fallback.languages", []string{"eng"})
	v.SetDefault("fallback.disable_engine", false)

	fc := fusion.DefaultConfig()
	v.SetDefault("fusion.high_similarity", fc.HighSimilarity)
	v.SetDefault("fusion.low_similarity", fc.LowSimilarity)
	v.SetDefault("fusion.max_penalty", fc.MaxPenalty)
	v.SetDefault("fusion.max_compare_runes", fc.MaxCompareRunes)

	oc := orchestrator.DefaultConfig()
	v.SetDefault("orchestrator.default_max_retries", oc.DefaultMaxRetries)
	v.SetDefault("orchestrator.initial_backoff", oc.InitialBackoff)
	v.SetDefault("orchestrator.max_backoff", oc.MaxBackoff)
	v.SetDefault("orchestrator.fallback_penalty", oc.FallbackPenalty)
	v.SetDefault("orchestrator.ping_on_health_check", false)

	v.SetDefault("cache.ttl", cache.DefaultTTL)
	v.SetDefault("cache.capacity", cache.DefaultCapacity)
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.key_prefix", cache.DefaultKeyPrefix)

	v.SetDefault("service.degraded_ttl", 5*time.Minute)
	v.SetDefault("service.flight_timeout", 3*time.Minute)
	v.SetDefault("service.loader.max_bytes", 50*1024*1024)
	v.SetDefault("service.loader.max_retries", 5)
	v.SetDefault("service.loader.timeout", 2*time.Minute)

	v.SetDefault("queue.redis_url", "redis://localhost:6379")
	v.SetDefault("queue.concurrency", 10)
	v.SetDefault("queue.job_timeout", 5*time.Minute)
	v.SetDefault("queue.retention", 24*time.Hour)

	v.SetDefault("database.url", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("metrics.port", 9090)
}

// bindEnv wires OCR_* variables plus the platform-wide names
func bindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindings := map[string][]string{
		"providers.openai.api_key":    {"OCR_PROVIDERS_OPENAI_API_KEY", "OPENAI_API_KEY"},
		"providers.anthropic.api_key": {"OCR_PROVIDERS_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY"},
		"queue.redis_url":             {"OCR_QUEUE_REDIS_URL", "REDIS_URL"},
		"database.url":                {"OCR_DATABASE_URL", "DATABASE_URL"},
		"log.level":                   {"OCR_LOG_LEVEL", "LOG_LEVEL"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	return nil
}

// ProviderConfigs returns the per-provider settings keyed by type
func (c *Config) ProviderConfigs() map[ocr.ProviderType]providers.Config {
	return map[ocr.ProviderType]providers.Config{
		ocr.ProviderOpenAI:    c.Providers.OpenAI,
		ocr.ProviderAnthropic: c.Providers.Anthropic,
	}
}

// ProviderOrder returns the configured priority order
func (c *Config) ProviderOrder() []ocr.ProviderType {
	order := make([]ocr.ProviderType, 0, len(c.Providers.Order))
	for _, name := range c.Providers.Order {
		order = append(order, ocr.ProviderType(strings.ToLower(strings.TrimSpace(name))))
	}
	return order
}

// RateLimits returns the scheduler limits of every provider
func (c *Config) RateLimits() map[ocr.ProviderType]providers.RateLimit {
	limits := make(map[ocr.ProviderType]providers.RateLimit)
	for t, pc := range c.ProviderConfigs() {
		if pc.RateLimit.Enabled() {
			limits[t] = pc.RateLimit
		}
	}
	return limits
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	seen := make(map[ocr.ProviderType]bool)
	for _, t := range c.ProviderOrder() {
		if t != ocr.ProviderOpenAI && t != ocr.ProviderAnthropic {
			return fmt.Errorf("providers.order contains unknown provider %q", t)
		}
		if seen[t] {
			return fmt.Errorf("providers.order lists %q twice", t)
		}
		seen[t] = true
	}

	for t, pc := range c.ProviderConfigs() {
		if pc.DailyQuota < 0 {
			return fmt.Errorf("providers.%s.daily_quota must not be negative, got %d", t, pc.DailyQuota)
		}
		if pc.RateLimit.RequestsPerMinute < 0 || pc.RateLimit.RequestsPerHour < 0 {
			return fmt.Errorf("providers.%s.rate_limit must not be negative", t)
		}
	}

	if c.Fusion.LowSimilarity < 0 || c.Fusion.HighSimilarity > 1 || c.Fusion.LowSimilarity > c.Fusion.HighSimilarity {
		return fmt.Errorf("fusion similarity thresholds must satisfy 0 <= low <= high <= 1, got low=%.2f high=%.2f",
			c.Fusion.LowSimilarity, c.Fusion.HighSimilarity)
	}
	if c.Orchestrator.FallbackPenalty < 0 || c.Orchestrator.FallbackPenalty > 1 {
		return fmt.Errorf("orchestrator.fallback_penalty must be between 0 and 1, got %.2f", c.Orchestrator.FallbackPenalty)
	}

	if c.Queue.Concurrency < 1 || c.Queue.Concurrency > 100 {
		return fmt.Errorf("queue.concurrency must be between 1 and 100, got %d", c.Queue.Concurrency)
	}

	if c.Service.Loader.MaxBytes < 1024 {
		return fmt.Errorf("service.loader.max_bytes must be at least 1KB, got %d", c.Service.Loader.MaxBytes)
	}

	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 0 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}
