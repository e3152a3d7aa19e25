package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/ocr-engine/internal/ocr"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ocrengine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, []ocr.ProviderType{ocr.ProviderOpenAI, ocr.ProviderAnthropic}, cfg.ProviderOrder())
	assert.Equal(t, 0.8, cfg.Fusion.HighSimilarity)
	assert.Equal(t, 0.5, cfg.Fusion.LowSimilarity)
	assert.Equal(t, 3, cfg.Orchestrator.DefaultMaxRetries)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 10, cfg.Queue.Concurrency)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 60, cfg.Providers.OpenAI.RateLimit.RequestsPerMinute)
}

func TestLoadConfigFile_YAML(t *testing.T) {
	path := writeConfig(t, `
providers:
  order: [anthropic, openai]
  anthropic:
    api_key: file-key
    daily_quota: 250
    timeout: 45s
fusion:
  high_similarity: 0.9
cache:
  ttl: 10m
queue:
  concurrency: 4
`)

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)

	assert.Equal(t, []ocr.ProviderType{ocr.ProviderAnthropic, ocr.ProviderOpenAI}, cfg.ProviderOrder())
	assert.Equal(t, "file-key", cfg.Providers.Anthropic.APIKey)
	assert.Equal(t, 250, cfg.Providers.Anthropic.DailyQuota)
	assert.Equal(t, 45*time.Second, cfg.Providers.Anthropic.Timeout)
	assert.Equal(t, 0.9, cfg.Fusion.HighSimilarity)
	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 4, cfg.Queue.Concurrency)
}

func TestLoadConfigFile_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
providers:
  openai:
    api_key: from-file
`)
	t.Setenv("OPENAI_API_KEY", "from-env")
	t.Setenv("REDIS_URL", "redis://queue:6379/2")
	t.Setenv("OCR_CACHE_REDIS_URL", "redis://cache:6379/0")
	t.Setenv("OCR_QUEUE_CONCURRENCY", "7")

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Providers.OpenAI.APIKey)
	assert.Equal(t, "redis://queue:6379/2", cfg.Queue.RedisURL)
	assert.Equal(t, "redis://cache:6379/0", cfg.Cache.RedisURL)
	assert.Equal(t, 7, cfg.Queue.Concurrency)

	configs := cfg.ProviderConfigs()
	assert.True(t, configs[ocr.ProviderOpenAI].Configured())
}

func TestLoadConfigFile_Missing(t *testing.T) {
	_, err := LoadConfigFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestLoadConfigFile_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "providers: [unterminated")
	_, err := LoadConfigFile(path)
	require.Error(t, err)
}

func TestRateLimits(t *testing.T) {
	path := writeConfig(t, `
providers:
  anthropic:
    rate_limit:
      requests_per_minute: 0
`)
	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)

	limits := cfg.RateLimits()
	assert.Contains(t, limits, ocr.ProviderOpenAI)
	assert.NotContains(t, limits, ocr.ProviderAnthropic)
}

func TestValidate(t *testing.T) {
	valid := func(t *testing.T) *Config {
		t.Setenv("HOME", t.TempDir())
		cfg, err := LoadConfig()
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Providers.Order = []string{"openai", "tesseract"} },
			wantErr: "unknown provider",
		},
		{
			name:    "duplicate provider",
			mutate:  func(c *Config) { c.Providers.Order = []string{"openai", "OpenAI"} },
			wantErr: "twice",
		},
		{
			name:    "negative quota",
			mutate:  func(c *Config) { c.Providers.Anthropic.DailyQuota = -1 },
			wantErr: "daily_quota",
		},
		{
			name: "inverted thresholds",
			mutate: func(c *Config) {
				c.Fusion.LowSimilarity = 0.9
				c.Fusion.HighSimilarity = 0.6
			},
			wantErr: "thresholds",
		},
		{
			name:    "concurrency out of range",
			mutate:  func(c *Config) { c.Queue.Concurrency = 0 },
			wantErr: "queue.concurrency",
		},
		{
			name:    "tiny download limit",
			mutate:  func(c *Config) { c.Service.Loader.MaxBytes = 10 },
			wantErr: "max_bytes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
