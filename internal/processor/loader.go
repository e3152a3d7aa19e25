package processor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/adverant/nexus/ocr-engine/internal/logging"
)

// LoaderConfig controls remote image downloads
type LoaderConfig struct {
	MaxBytes       int64         `mapstructure:"max_bytes"`
	MaxRetries     int           `mapstructure:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

const (
	defaultDownloadRetries  = 5
	defaultDownloadBackoff  = time.Second
	defaultDownloadMaxWait  = 32 * time.Second
	defaultDownloadTimeout  = 2 * time.Minute
	defaultDownloadMaxBytes = 50 * 1024 * 1024
)

// ImageLoader fetches images referenced by URL with retry
type ImageLoader struct {
	cfg    LoaderConfig
	client *http.Client
	logger *logging.Logger
}

// NewImageLoader creates a loader; zero config fields take defaults
func NewImageLoader(cfg LoaderConfig) *ImageLoader {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultDownloadMaxBytes
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultDownloadRetries
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaultDownloadBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultDownloadMaxWait
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultDownloadTimeout
	}
	return &ImageLoader{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logging.NewLogger("image-loader"),
	}
}

// Load downloads url, retrying transport errors, 5xx and 429 with exponential backoff
func (l *ImageLoader) Load(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	backoff := l.cfg.InitialBackoff

	for attempt := 1; attempt <= l.cfg.MaxRetries; attempt++ {
		data, retry, err := l.fetch(ctx, url)
		if err == nil {
			l.logger.Debug("Download successful", "attempt", attempt, "bytes", len(data))
			return data, nil
		}
		lastErr = err
		l.logger.Warn("Download attempt failed",
			"attempt", attempt,
			"maxRetries", l.cfg.MaxRetries,
			"error", err)

		if !retry || attempt == l.cfg.MaxRetries {
			break
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled during retry backoff: %w", ctx.Err())
		}
		backoff *= 2
		if backoff > l.cfg.MaxBackoff {
			backoff = l.cfg.MaxBackoff
		}
	}

	return nil, fmt.Errorf("failed to download image: %w", lastErr)
}

// fetch makes one request; retry reports whether the failure is transient
func (l *ImageLoader) fetch(ctx context.Context, url string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		retry := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return nil, retry, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	if resp.ContentLength > l.cfg.MaxBytes {
		return nil, false, fmt.Errorf("image size exceeds maximum: %d > %d bytes", resp.ContentLength, l.cfg.MaxBytes)
	}

	// Read one byte past the limit to detect oversized bodies without Content-Length
	data, err := io.ReadAll(io.LimitReader(resp.Body, l.cfg.MaxBytes+1))
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(data)) > l.cfg.MaxBytes {
		return nil, false, fmt.Errorf("image size exceeds maximum of %d bytes", l.cfg.MaxBytes)
	}

	return data, false, nil
}
