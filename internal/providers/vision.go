package providers

import (
	"context"
	"encoding/base64"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/adverant/nexus/ocr-engine/internal/clients"
	ocrerrors "github.com/adverant/nexus/ocr-engine/internal/errors"
	"github.com/adverant/nexus/ocr-engine/internal/logging"
	"github.com/adverant/nexus/ocr-engine/internal/ocr"
)

const (
	openAIMaxImageBytes    = 20 * 1024 * 1024
	openAIMaxDimension     = 2048
	anthropicMaxImageBytes = 5 * 1024 * 1024
	anthropicMaxDimension  = 1568
)

// VisionProvider adapts a hosted vision model to the Provider contract
type VisionProvider struct {
	providerType ocr.ProviderType
	cfg          Config
	client       clients.VisionClient
	quota        *QuotaTracker
	logger       *logging.Logger

	mu          sync.Mutex
	initialized bool
}

// NewVisionProvider wraps client; a nil clock means time.Now
func NewVisionProvider(providerType ocr.ProviderType, cfg Config, client clients.VisionClient, clock Clock) *VisionProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &VisionProvider{
		providerType: providerType,
		cfg:          cfg,
		client:       client,
		quota:        NewQuotaTracker(cfg.DailyQuota, clock),
		logger:       logging.NewLogger(string(providerType) + "-provider"),
	}
}

// NewOpenAIProvider creates adapter A over the chat completions API
func NewOpenAIProvider(cfg Config, clock Clock) *VisionProvider {
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = openAIMaxImageBytes
	}
	if cfg.MaxDimension <= 0 {
		cfg.MaxDimension = openAIMaxDimension
	}
	client := clients.NewOpenAIClient(clients.ClientConfig{
		APIKey:   cfg.APIKey,
		Endpoint: cfg.Endpoint,
		Model:    cfg.Model,
		Timeout:  cfg.Timeout,
	})
	return NewVisionProvider(ocr.ProviderOpenAI, cfg, client, clock)
}

// NewAnthropicProvider creates adapter B over the messages API
func NewAnthropicProvider(cfg Config, clock Clock) *VisionProvider {
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = anthropicMaxImageBytes
	}
	if cfg.MaxDimension <= 0 {
		cfg.MaxDimension = anthropicMaxDimension
	}
	client := clients.NewAnthropicClient(clients.ClientConfig{
		APIKey:   cfg.APIKey,
		Endpoint: cfg.Endpoint,
		Model:    cfg.Model,
		Timeout:  cfg.Timeout,
	})
	return NewVisionProvider(ocr.ProviderAnthropic, cfg, client, clock)
}

func (p *VisionProvider) Type() ocr.ProviderType {
	return p.providerType
}

// Initialize validates configuration; it never touches the network
func (p *VisionProvider) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return nil
	}
	if !p.cfg.Configured() {
		return fmt.Errorf("%s: api key is not configured", p.providerType)
	}
	if p.client == nil {
		return fmt.Errorf("%s: no client", p.providerType)
	}

	p.initialized = true
	p.logger.Info("Provider initialized",
		"dailyQuota", p.cfg.DailyQuota,
		"timeout", p.cfg.Timeout.String(),
		"maxImageBytes", p.cfg.MaxImageBytes)
	return nil
}

func (p *VisionProvider) Destroy() error {
	p.mu.Lock()
	p.initialized = false
	p.mu.Unlock()
	return nil
}

// IsAvailable is true iff credentials are configured and today's quota is not spent
func (p *VisionProvider) IsAvailable() bool {
	return p.cfg.Configured() && !p.quota.Exhausted()
}

func (p *VisionProvider) Status() ocr.ProviderStatus {
	return ocr.ProviderStatus{
		Available:      p.IsAvailable(),
		RateLimited:    p.quota.RateLimited(),
		LastError:      p.quota.LastError(),
		QuotaRemaining: p.quota.Remaining(),
	}
}

// MaxRetries is the per-provider retry budget; 0 defers to the orchestrator default
func (p *VisionProvider) MaxRetries() int {
	return p.cfg.MaxRetries
}

// RateLimit returns the configured pacing for the scheduler
func (p *VisionProvider) RateLimit() RateLimit {
	return p.cfg.RateLimit
}

// Ping verifies the backend credential
func (p *VisionProvider) Ping(ctx context.Context) error {
	return p.client.HealthCheck(ctx)
}

// ExtractText sends one image to the backend and normalizes the reply
func (p *VisionProvider) ExtractText(ctx context.Context, image []byte, opts ocr.Options) (*ocr.Result, error) {
	start := time.Now()
	name := string(p.providerType)

	if !p.cfg.Configured() {
		return nil, ocrerrors.NewProviderUnavailableError(name, "api key is not configured")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = p.cfg.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Fit the image to the provider's limits
	prepared, err := PrepareImage(image, p.cfg.MaxImageBytes, p.cfg.MaxDimension)
	if err != nil {
		return nil, p.fail(ocrerrors.NewAPIError(name, 0, false, err))
	}

	// Quota is checked last so rejected images do not consume it
	if !p.quota.Reserve() {
		return nil, ocrerrors.NewQuotaExceededError(name, 0, "daily quota exhausted")
	}

	resp, err := p.client.Extract(ctx, &clients.VisionRequest{
		ImageBase64: base64.StdEncoding.EncodeToString(prepared.Data),
		MediaType:   prepared.MediaType,
		Prompt:      BuildPrompt(opts),
		MaxTokens:   p.cfg.MaxTokens,
	})
	if err != nil {
		return nil, p.fail(p.classify(ctx, timeout, err))
	}

	text := strings.TrimSpace(resp.Text)
	confidence := EstimateConfidence(text, resp.Truncated)

	result := &ocr.Result{
		Text:             text,
		Confidence:       confidence,
		Provider:         p.providerType,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		Blocks:           ocr.ParseBlocks(text, ocr.Float64(confidence)),
		Raw:              resp.Raw,
	}
	if opts.DetectTables {
		result.Tables = ocr.DetectTables(text)
	}

	p.quota.SetLastError("")
	p.logger.Debug("Extraction complete",
		"model", resp.Model,
		"confidence", confidence,
		"truncated", resp.Truncated,
		"reencoded", prepared.Reencoded,
		"textLength", len(text),
		"durationMs", result.ProcessingTimeMs)

	return result, nil
}

// classify makes sure every failure leaving the adapter carries a taxonomy code
func (p *VisionProvider) classify(ctx context.Context, timeout time.Duration, err error) error {
	if _, ok := ocrerrors.As(err); ok {
		return err
	}
	if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ocrerrors.NewTimeoutError(string(p.providerType), timeout, err)
	}
	return ocrerrors.NewAPIError(string(p.providerType), 0, true, err)
}

// fail updates quota and cool-down state from a classified error
func (p *VisionProvider) fail(err error) error {
	if ocrErr, ok := ocrerrors.As(err); ok {
		switch ocrErr.Code {
		case ocrerrors.ErrorQuotaExceeded:
			p.quota.MarkExhausted()
		case ocrerrors.ErrorRateLimited:
			p.quota.MarkRateLimited(ocrErr.RetryAfter)
		}
	}

	p.quota.SetLastError(err.Error())
	p.logger.Warn("Extraction failed",
		"code", string(ocrerrors.CodeOf(err)),
		"retryable", ocrerrors.IsRetryable(err),
		"error", err)
	return err
}
