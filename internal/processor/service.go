/**
 * OCR Service - Public entry point of the extraction engine
 *
 * Pipeline per request:
 * - Content type correction from magic bytes
 * - Cache lookup (fingerprint of image + output-affecting options)
 * - In-flight dedup of identical requests
 * - Fallback chain / consensus via the orchestrator
 * - Structured extraction and final scoring
 * - Cache write
 *
 * Extraction failures never surface as errors: the caller gets a
 * low-confidence result with Error set.
 */

package processor

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/adverant/nexus/ocr-engine/internal/cache"
	ocrerrors "github.com/adverant/nexus/ocr-engine/internal/errors"
	"github.com/adverant/nexus/ocr-engine/internal/fusion"
	"github.com/adverant/nexus/ocr-engine/internal/logging"
	"github.com/adverant/nexus/ocr-engine/internal/metrics"
	"github.com/adverant/nexus/ocr-engine/internal/ocr"
	"github.com/adverant/nexus/ocr-engine/internal/orchestrator"
	"github.com/adverant/nexus/ocr-engine/internal/registry"
)

var errEmptyImage = stderrors.New("image is empty")

// ServiceConfig holds facade settings
type ServiceConfig struct {
	// DegradedTTL keeps placeholder results shorter than real ones
	DegradedTTL   time.Duration `mapstructure:"degraded_ttl"`
	// FlightTimeout bounds one shared extraction, independent of any caller
	FlightTimeout time.Duration `mapstructure:"flight_timeout"`
	Loader        LoaderConfig  `mapstructure:"loader"`
}

const (
	defaultDegradedTTL   = 5 * time.Minute
	defaultFlightTimeout = 3 * time.Minute
)

// Service is the OCR facade
type Service struct {
	cfg          ServiceConfig
	registry     *registry.Registry
	orchestrator *orchestrator.Orchestrator
	fusion       *fusion.Engine
	cache        *cache.Cache
	loader       *ImageLoader
	logger       *logging.Logger

	inflight singleflight.Group
}

// NewService wires the facade over its collaborators
func NewService(cfg ServiceConfig, reg *registry.Registry, orch *orchestrator.Orchestrator, engine *fusion.Engine, c *cache.Cache) *Service {
	if cfg.DegradedTTL <= 0 {
		cfg.DegradedTTL = defaultDegradedTTL
	}
	if cfg.FlightTimeout <= 0 {
		cfg.FlightTimeout = defaultFlightTimeout
	}
	if c == nil {
		c = cache.New(nil, nil, 0)
	}
	return &Service{
		cfg:          cfg,
		registry:     reg,
		orchestrator: orch,
		fusion:       engine,
		cache:        c,
		loader:       NewImageLoader(cfg.Loader),
		logger:       logging.NewLogger("ocr-service"),
	}
}

// ExtractText runs one request through the pipeline and always returns a result
func (s *Service) ExtractText(ctx context.Context, req *ocr.Request) *ocr.Result {
	start := time.Now()
	requestID := uuid.NewString()
	logger := s.logger.With("requestId", requestID)

	// Step 1: Correct the content type
	contentType := ocr.ResolveContentType(req.ContentType, req.Image)
	if contentType != req.ContentType {
		logger.Debug("Corrected content type", "declared", req.ContentType, "detected", contentType)
	}
	logger.Info("Extraction requested",
		"contentType", contentType,
		"bytes", len(req.Image),
		"provider", string(req.Options.Provider),
		"priority", req.Options.Priority.String(),
		"consensus", req.Options.Consensus)

	// Step 2: Reject empty input without touching providers
	if len(req.Image) == 0 {
		result := s.registry.Fallback().Analyze(ctx, nil, req.Options)
		result.Error = ocrerrors.NewAPIError("", 0, false, errEmptyImage)
		metrics.RecordExtraction(string(result.Provider), "rejected", time.Since(start).Seconds(), result.Confidence)
		return result
	}
	if !ocr.IsImageType(contentType) {
		logger.Warn("Content type is not an image, providers may reject it", "contentType", contentType)
	}

	// Step 3: Cache lookup
	key := cache.GenerateKey(req.Image, req.Options)
	if cached, ok := s.cache.Get(ctx, key); ok {
		logger.Info("Cache hit", "provider", string(cached.Provider), "confidence", cached.Confidence)
		metrics.RecordExtraction(string(cached.Provider), "cache_hit", time.Since(start).Seconds(), cached.Confidence)
		return cached
	}

	// Step 4: Extract, sharing the work with identical in-flight requests.
	// The flight is detached from the caller and bounded by FlightTimeout.
	flight := s.inflight.DoChan(key, func() (interface{}, error) {
		return s.runFlight(context.WithoutCancel(ctx), key, req), nil
	})

	var result *ocr.Result
	var shared bool
	select {
	case res := <-flight:
		result = res.Val.(*ocr.Result)
		shared = res.Shared
		if shared {
			result = result.Clone()
		}
	case <-ctx.Done():
		logger.Warn("Caller gave up before extraction finished", "error", ctx.Err())
		result = s.registry.Fallback().Analyze(ctx, nil, req.Options)
		result.Error = ocrerrors.NewTimeoutError("", time.Since(start), ctx.Err())
		metrics.RecordExtraction(string(result.Provider), "cancelled", time.Since(start).Seconds(), result.Confidence)
		return result
	}

	outcome := "success"
	if result.Degraded {
		outcome = "degraded"
	}
	metrics.RecordExtraction(string(result.Provider), outcome, time.Since(start).Seconds(), result.Confidence)

	logger.Info("Extraction complete",
		"provider", string(result.Provider),
		"confidence", result.Confidence,
		"degraded", result.Degraded,
		"shared", shared,
		"textLength", len(result.Text),
		"durationMs", time.Since(start).Milliseconds())

	return result
}

// ExtractFromURL downloads the image first; download failures are reported in the result
func (s *Service) ExtractFromURL(ctx context.Context, url, contentType string, opts ocr.Options) *ocr.Result {
	image, err := s.loader.Load(ctx, url)
	if err != nil {
		s.logger.Error("Image download failed", "error", err)
		result := s.registry.Fallback().Analyze(ctx, nil, opts)
		result.Error = ocrerrors.NewAPIError("", 0, false, err)
		return result
	}
	return s.ExtractText(ctx, &ocr.Request{Image: image, ContentType: contentType, Options: opts})
}

// runFlight extracts once for every caller sharing key. A flight that ran
// out of time is returned but not cached.
func (s *Service) runFlight(ctx context.Context, key string, req *ocr.Request) *ocr.Result {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.FlightTimeout)
	defer cancel()

	// A concurrent flight may have finished between the lookup and here
	if cached, ok := s.cache.Get(ctx, key); ok {
		return cached
	}
	result := s.extract(ctx, req.Image, req.Options)

	if ctx.Err() != nil {
		s.logger.Warn("Extraction flight timed out, result not cached",
			"timeout", s.cfg.FlightTimeout.String(),
			"degraded", result.Degraded)
		return result
	}
	if result.Degraded {
		s.cache.SetWithTTL(ctx, key, result, s.cfg.DegradedTTL)
	} else {
		s.cache.Set(ctx, key, result)
	}
	return result
}

// extract runs the orchestrator and the post-processing stages
func (s *Service) extract(ctx context.Context, image []byte, opts ocr.Options) *ocr.Result {
	start := time.Now()

	raw := s.orchestrator.Extract(ctx, image, opts)
	result := s.fusion.Finalize(raw, opts)
	result.ProcessingTimeMs = time.Since(start).Milliseconds()
	return result
}

// HealthCheck reports whether at least one real provider is usable
func (s *Service) HealthCheck(ctx context.Context) orchestrator.HealthReport {
	return s.orchestrator.HealthCheck(ctx)
}

// ProviderStatuses returns a fresh status of every registered provider
func (s *Service) ProviderStatuses() map[ocr.ProviderType]ocr.ProviderStatus {
	return s.registry.Statuses()
}

// CacheStats exposes cache counters
func (s *Service) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// InvalidateCache drops the cached result of one request
func (s *Service) InvalidateCache(ctx context.Context, image []byte, opts ocr.Options) error {
	return s.cache.Invalidate(ctx, cache.GenerateKey(image, opts))
}
