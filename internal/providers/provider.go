package providers

import (
	"context"
	"time"

	"github.com/adverant/nexus/ocr-engine/internal/ocr"
)

// Provider is the uniform extraction contract implemented once per backend
type Provider interface {
	Type() ocr.ProviderType
	Initialize(ctx context.Context) error
	ExtractText(ctx context.Context, image []byte, opts ocr.Options) (*ocr.Result, error)
	IsAvailable() bool
	Status() ocr.ProviderStatus
	Destroy() error
}

// RetryBudget is implemented by providers with a configured per-provider retry count
type RetryBudget interface {
	MaxRetries() int
}

// Pinger is implemented by providers that can verify their backend out of band
type Pinger interface {
	Ping(ctx context.Context) error
}

// RateLimit of a provider; zero values mean unlimited
type RateLimit struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute" json:"requestsPerMinute"`
	RequestsPerHour   int `mapstructure:"requests_per_hour" json:"requestsPerHour"`
}

// Enabled reports whether any limit is configured
func (r RateLimit) Enabled() bool {
	return r.RequestsPerMinute > 0 || r.RequestsPerHour > 0
}

// MinInterval is the stricter of 60s/rpm and 1h/rph
func (r RateLimit) MinInterval() time.Duration {
	var interval time.Duration
	if r.RequestsPerMinute > 0 {
		interval = time.Minute / time.Duration(r.RequestsPerMinute)
	}
	if r.RequestsPerHour > 0 {
		if hourly := time.Hour / time.Duration(r.RequestsPerHour); hourly > interval {
			interval = hourly
		}
	}
	return interval
}

// Config holds the settings of one network provider
type Config struct {
	APIKey        string        `mapstructure:"api_key"`
	Endpoint      string        `mapstructure:"endpoint"`
	Model         string        `mapstructure:"model"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxRetries    int           `mapstructure:"max_retries"`
	DailyQuota    int           `mapstructure:"daily_quota"`
	MaxImageBytes int           `mapstructure:"max_image_bytes"`
	MaxDimension  int           `mapstructure:"max_dimension"`
	MaxTokens     int           `mapstructure:"max_tokens"`
	RateLimit     RateLimit     `mapstructure:"rate_limit"`
}

// Configured reports whether credentials are present
func (c Config) Configured() bool {
	return c.APIKey != ""
}

// DefaultTimeout bounds a provider call when neither the request nor the config sets one
const DefaultTimeout = 30 * time.Second

// Clock returns the current time; injectable for quota tests
type Clock func() time.Time
