/**
 * Fallback Orchestrator - Priority chain over the registered providers
 *
 * Chain: preferred provider, then the other real providers in registry
 * order. Each provider gets a bounded number of attempts with exponential
 * backoff on retryable errors. When every real provider fails the request
 * degrades to the fallback adapter's local analysis.
 */

package orchestrator

import (
	"context"
	stderrors "errors"
	"time"

	"golang.org/x/sync/errgroup"

	ocrerrors "github.com/adverant/nexus/ocr-engine/internal/errors"
	"github.com/adverant/nexus/ocr-engine/internal/fusion"
	"github.com/adverant/nexus/ocr-engine/internal/logging"
	"github.com/adverant/nexus/ocr-engine/internal/metrics"
	"github.com/adverant/nexus/ocr-engine/internal/ocr"
	"github.com/adverant/nexus/ocr-engine/internal/providers"
	"github.com/adverant/nexus/ocr-engine/internal/registry"
	"github.com/adverant/nexus/ocr-engine/internal/scheduler"
)

// Config of the retry policy
type Config struct {
	DefaultMaxRetries int           `mapstructure:"default_max_retries"`
	InitialBackoff    time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff"`
	FallbackPenalty   float64       `mapstructure:"fallback_penalty"`
	PingOnHealthCheck bool          `mapstructure:"ping_on_health_check"`
}

const (
	DefaultMaxRetries      = 3
	DefaultInitialBackoff  = time.Second
	DefaultMaxBackoff      = 5 * time.Second
	DefaultFallbackPenalty = 0.1
)

// DefaultConfig returns the stock retry policy
func DefaultConfig() Config {
	return Config{
		DefaultMaxRetries: DefaultMaxRetries,
		InitialBackoff:    DefaultInitialBackoff,
		MaxBackoff:        DefaultMaxBackoff,
		FallbackPenalty:   DefaultFallbackPenalty,
	}
}

var errEmptyText = stderrors.New("provider returned no text")

// Orchestrator runs the fallback chain
type Orchestrator struct {
	registry  *registry.Registry
	scheduler *scheduler.Scheduler
	fusion    *fusion.Engine
	cfg       Config
	logger    *logging.Logger
}

// New creates an orchestrator and wires it as the fallback adapter's delegate
func New(reg *registry.Registry, sched *scheduler.Scheduler, engine *fusion.Engine, cfg Config) *Orchestrator {
	if cfg.DefaultMaxRetries <= 0 {
		cfg.DefaultMaxRetries = DefaultMaxRetries
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultInitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	if cfg.FallbackPenalty < 0 {
		cfg.FallbackPenalty = 0
	}

	o := &Orchestrator{
		registry:  reg,
		scheduler: sched,
		fusion:    engine,
		cfg:       cfg,
		logger:    logging.NewLogger("orchestrator"),
	}
	reg.Fallback().SetDelegate(o)
	return o
}

// Extract always returns a result. When every real provider fails the result
// is degraded, carries ALL_PROVIDERS_FAILED and has confidence <= 0.3.
func (o *Orchestrator) Extract(ctx context.Context, image []byte, opts ocr.Options) *ocr.Result {
	if opts.Provider == ocr.ProviderFallback {
		result, _ := o.registry.Fallback().ExtractText(ctx, image, opts)
		if result.Degraded {
			result.Error = ocrerrors.NewAllProvidersFailedError(o.realNames(), nil)
		}
		return result
	}

	if opts.Consensus > 1 {
		return o.consensus(ctx, image, opts)
	}

	result, err := o.ExtractWithProviders(ctx, image, opts)
	if err != nil {
		return o.degrade(ctx, image, opts, err)
	}
	return result
}

// ExtractWithProviders walks the real providers only. It returns
// ALL_PROVIDERS_FAILED when none produced text.
func (o *Orchestrator) ExtractWithProviders(ctx context.Context, image []byte, opts ocr.Options) (*ocr.Result, error) {
	chain := o.chain(opts.Provider)
	attempted := make([]string, 0, len(chain))
	var lastErr error

	for i, p := range chain {
		name := string(p.Type())

		if !p.IsAvailable() {
			o.logger.Info("Skipping unavailable provider", "provider", name)
			metrics.RecordProviderSkip(name, "unavailable")
			lastErr = ocrerrors.NewProviderUnavailableError(name, "quota exhausted or not configured")
			continue
		}
		if p.Status().RateLimited {
			o.logger.Info("Skipping rate-limited provider", "provider", name)
			metrics.RecordProviderSkip(name, "rate_limited")
			lastErr = ocrerrors.NewRateLimitedError(name, 0)
			continue
		}

		attempted = append(attempted, name)
		result, err := o.runProvider(ctx, p, image, opts)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil || stderrors.Is(err, scheduler.ErrClosed) {
				break
			}
			continue
		}

		if i > 0 {
			result.Confidence = ocr.ClampConfidence(result.Confidence-o.cfg.FallbackPenalty, 0, 1)
			o.logger.Info("Result from lower-priority provider",
				"provider", name,
				"position", i,
				"confidence", result.Confidence)
		}
		return result, nil
	}

	return nil, ocrerrors.NewAllProvidersFailedError(attempted, lastErr)
}

// runProvider makes up to maxAttempts calls through the scheduler
func (o *Orchestrator) runProvider(ctx context.Context, p providers.Provider, image []byte, opts ocr.Options) (*ocr.Result, error) {
	name := string(p.Type())
	maxAttempts := o.maxAttempts(p, opts)
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if opts.Timeout > 0 {
			// The deadline covers the time spent queued
			attemptCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		}

		result, err := o.scheduler.Submit(attemptCtx, p.Type(), func(ctx context.Context) (*ocr.Result, error) {
			return p.ExtractText(ctx, image, opts)
		})
		cancel()

		if err == nil {
			if !result.HasText() {
				metrics.RecordProviderAttempt(name, "empty")
				o.logger.Warn("Provider returned empty text", "provider", name, "attempt", attempt)
				return nil, ocrerrors.NewInvalidResponseError(name, errEmptyText)
			}
			metrics.RecordProviderAttempt(name, "ok")
			return result, nil
		}

		lastErr = err
		code := ocrerrors.CodeOf(err)
		metrics.RecordProviderAttempt(name, string(code))
		o.logger.Warn("Provider attempt failed",
			"provider", name,
			"attempt", attempt,
			"maxAttempts", maxAttempts,
			"code", string(code),
			"error", err)

		if stderrors.Is(err, scheduler.ErrClosed) || !ocrerrors.IsRetryable(err) {
			return nil, err
		}
		// The cool-down outlasts any backoff; move on to the next provider
		if code == ocrerrors.ErrorRateLimited {
			return nil, err
		}
		if attempt == maxAttempts {
			break
		}

		if err := o.sleep(ctx, o.backoff(attempt)); err != nil {
			return nil, lastErr
		}
	}

	return nil, lastErr
}

// maxAttempts: request override, then the provider budget, then the default
func (o *Orchestrator) maxAttempts(p providers.Provider, opts ocr.Options) int {
	if opts.MaxRetries > 0 {
		return opts.MaxRetries
	}
	if budget, ok := p.(providers.RetryBudget); ok && budget.MaxRetries() > 0 {
		return budget.MaxRetries()
	}
	return o.cfg.DefaultMaxRetries
}

// backoff doubles from InitialBackoff and is capped at MaxBackoff
func (o *Orchestrator) backoff(attempt int) time.Duration {
	d := o.cfg.InitialBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= o.cfg.MaxBackoff {
			return o.cfg.MaxBackoff
		}
	}
	if d > o.cfg.MaxBackoff {
		return o.cfg.MaxBackoff
	}
	return d
}

func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// chain orders the real providers with the preferred one first
func (o *Orchestrator) chain(preferred ocr.ProviderType) []providers.Provider {
	realProviders := o.registry.Real()
	if preferred == "" || preferred == ocr.ProviderFallback {
		return realProviders
	}

	chain := make([]providers.Provider, 0, len(realProviders))
	for _, p := range realProviders {
		if p.Type() == preferred {
			chain = append(chain, p)
		}
	}
	for _, p := range realProviders {
		if p.Type() != preferred {
			chain = append(chain, p)
		}
	}
	return chain
}

func (o *Orchestrator) realNames() []string {
	realProviders := o.registry.Real()
	names := make([]string, len(realProviders))
	for i, p := range realProviders {
		names[i] = string(p.Type())
	}
	return names
}

// degrade runs the fallback adapter's local stages only; the real providers
// have already been tried
func (o *Orchestrator) degrade(ctx context.Context, image []byte, opts ocr.Options, cause error) *ocr.Result {
	o.logger.Warn("All providers failed, degrading to local analysis", "error", cause)

	result := o.registry.Fallback().Analyze(ctx, image, opts)
	if ocrErr, ok := ocrerrors.As(cause); ok && ocrErr.Code == ocrerrors.ErrorAllProvidersFailed {
		result.Error = ocrErr
	} else {
		result.Error = ocrerrors.NewAllProvidersFailedError(o.realNames(), cause)
	}
	return result
}

// consensus runs up to opts.Consensus available providers in parallel and fuses
// every success
func (o *Orchestrator) consensus(ctx context.Context, image []byte, opts ocr.Options) *ocr.Result {
	candidates := make([]providers.Provider, 0, opts.Consensus)
	for _, p := range o.chain(opts.Provider) {
		if len(candidates) == opts.Consensus {
			break
		}
		if p.IsAvailable() && !p.Status().RateLimited {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) < 2 {
		o.logger.Info("Not enough providers for consensus, using fallback chain",
			"requested", opts.Consensus,
			"available", len(candidates))
		single := opts
		single.Consensus = 0
		return o.Extract(ctx, image, single)
	}

	results := make([]*ocr.Result, len(candidates))
	errs := make([]error, len(candidates))

	// Failures are collected per provider; one failure never cancels the others
	var g errgroup.Group
	for i, p := range candidates {
		i, p := i, p
		g.Go(func() error {
			results[i], errs[i] = o.runProvider(ctx, p, image, opts)
			return nil
		})
	}
	_ = g.Wait()

	successes := make([]*ocr.Result, 0, len(candidates))
	attempted := make([]string, 0, len(candidates))
	var lastErr error
	for i, p := range candidates {
		attempted = append(attempted, string(p.Type()))
		if errs[i] != nil {
			lastErr = errs[i]
			continue
		}
		successes = append(successes, results[i])
	}

	if len(successes) == 0 {
		return o.degrade(ctx, image, opts, ocrerrors.NewAllProvidersFailedError(attempted, lastErr))
	}

	o.logger.Info("Consensus collected",
		"providers", len(candidates),
		"successes", len(successes))
	return o.fusion.Fuse(successes)
}
