package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/adverant/nexus/ocr-engine/internal/cache"
	"github.com/adverant/nexus/ocr-engine/internal/config"
	"github.com/adverant/nexus/ocr-engine/internal/fusion"
	"github.com/adverant/nexus/ocr-engine/internal/logging"
	"github.com/adverant/nexus/ocr-engine/internal/ocr"
	"github.com/adverant/nexus/ocr-engine/internal/orchestrator"
	"github.com/adverant/nexus/ocr-engine/internal/processor"
	"github.com/adverant/nexus/ocr-engine/internal/providers"
	"github.com/adverant/nexus/ocr-engine/internal/registry"
	"github.com/adverant/nexus/ocr-engine/internal/scheduler"
)

// engine is the fully wired OCR service and what it must release
type engine struct {
	service   *processor.Service
	registry  *registry.Registry
	scheduler *scheduler.Scheduler
	cache     *cache.Cache
}

// newEngine wires registry, scheduler, orchestrator, fusion and cache
func newEngine(ctx context.Context, cfg *config.Config) (*engine, error) {
	logger := logging.NewLogger("engine")

	// Step 1: Providers
	fallback := providers.NewFallbackProvider(cfg.Fallback)
	reg := registry.New(cfg.ProviderConfigs(), cfg.ProviderOrder(), fallback, nil)
	if err := reg.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	// Step 2: Pacing and fallback chain
	sched := scheduler.New(cfg.RateLimits())
	fusionEngine := fusion.NewEngine(cfg.Fusion, nil)
	orch := orchestrator.New(reg, sched, fusionEngine, cfg.Orchestrator)

	// Step 3: Result cache; redis is optional
	var l2 cache.Store
	if cfg.Cache.RedisURL != "" {
		store, err := cache.NewRedisStore(cfg.Cache.RedisURL, cfg.Cache.KeyPrefix)
		if err != nil {
			logger.Warn("Shared cache disabled", "error", err)
		} else {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := store.Ping(pingCtx); err != nil {
				logger.Warn("Shared cache unreachable, continuing with the in-process cache", "error", err)
			}
			cancel()
			l2 = store
		}
	}
	resultCache := cache.New(cache.NewMemoryStore(cfg.Cache.TTL, cfg.Cache.Capacity), l2, cfg.Cache.TTL)

	logger.Info("OCR engine ready",
		"providers", reg.Available(),
		"sharedCache", l2 != nil)

	return &engine{
		service:   processor.NewService(cfg.Service, reg, orch, fusionEngine, resultCache),
		registry:  reg,
		scheduler: sched,
		cache:     resultCache,
	}, nil
}

// Close stops the scheduler queues and releases providers and cache connections
func (e *engine) Close() error {
	e.scheduler.Close()
	cacheErr := e.cache.Close()
	if err := e.registry.Destroy(); err != nil {
		return err
	}
	return cacheErr
}

// addOptionFlags registers the per-request extraction flags
func addOptionFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("provider", "", "preferred provider (openai, anthropic, fallback)")
	f.String("language", "", "language hint, e.g. eng or deu")
	f.Bool("tables", false, "detect tables")
	f.String("priority", "normal", "priority (low, normal, high)")
	f.Duration("timeout", 0, "per-attempt provider timeout")
	f.Int("max-retries", 0, "attempts per provider (0 uses the provider budget)")
	f.Int("consensus", 0, "fan out to this many providers and fuse the results")
	f.Bool("aggressive", false, "wider title and entity rules")
	f.String("content-type", "", "declared content type (sniffed when empty)")
}

// optionsFromFlags builds request options from addOptionFlags
func optionsFromFlags(cmd *cobra.Command) (ocr.Options, error) {
	f := cmd.Flags()
	provider, _ := f.GetString("provider")
	language, _ := f.GetString("language")
	tables, _ := f.GetBool("tables")
	priority, _ := f.GetString("priority")
	timeout, _ := f.GetDuration("timeout")
	maxRetries, _ := f.GetInt("max-retries")
	consensus, _ := f.GetInt("consensus")
	aggressive, _ := f.GetBool("aggressive")

	opts := ocr.Options{
		Provider:     ocr.ProviderType(strings.ToLower(provider)),
		Language:     language,
		DetectTables: tables,
		Priority:     ocr.ParsePriority(priority),
		Timeout:      timeout,
		MaxRetries:   maxRetries,
		Consensus:    consensus,
		Aggressive:   aggressive,
	}

	switch opts.Provider {
	case "", ocr.ProviderOpenAI, ocr.ProviderAnthropic, ocr.ProviderFallback:
	default:
		return opts, fmt.Errorf("unknown provider %q", provider)
	}
	if timeout < 0 || maxRetries < 0 || consensus < 0 {
		return opts, fmt.Errorf("timeout, max-retries and consensus must not be negative")
	}
	return opts, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
