package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/adverant/nexus/ocr-engine/internal/logging"
	"github.com/adverant/nexus/ocr-engine/internal/ocr"
	"github.com/adverant/nexus/ocr-engine/internal/providers"
)

// Factory builds the adapter of one provider type
type Factory func(cfg providers.Config) providers.Provider

// Registry owns every adapter for which configuration exists.
// Order is stable: real providers in configuration order, fallback last.
type Registry struct {
	configs   map[ocr.ProviderType]providers.Config
	order     []ocr.ProviderType
	factories map[ocr.ProviderType]Factory
	fallback  *providers.FallbackProvider
	logger    *logging.Logger

	mu          sync.RWMutex
	providers   map[ocr.ProviderType]providers.Provider
	initialized bool
}

// New creates a registry. order lists the real providers in priority order;
// providers without an api key are never registered.
func New(configs map[ocr.ProviderType]providers.Config, order []ocr.ProviderType, fallback *providers.FallbackProvider, clock providers.Clock) *Registry {
	if len(order) == 0 {
		order = ocr.KnownProviders
	}
	if fallback == nil {
		fallback = providers.NewFallbackProvider(providers.FallbackConfig{})
	}
	return &Registry{
		configs: configs,
		order:   order,
		factories: map[ocr.ProviderType]Factory{
			ocr.ProviderOpenAI: func(cfg providers.Config) providers.Provider {
				return providers.NewOpenAIProvider(cfg, clock)
			},
			ocr.ProviderAnthropic: func(cfg providers.Config) providers.Provider {
				return providers.NewAnthropicProvider(cfg, clock)
			},
		},
		fallback:  fallback,
		logger:    logging.NewLogger("registry"),
		providers: make(map[ocr.ProviderType]providers.Provider),
	}
}

// WithFactory overrides how a provider type is built
func (r *Registry) WithFactory(t ocr.ProviderType, f Factory) *Registry {
	r.factories[t] = f
	return r
}

// Initialize builds and initializes every configured adapter.
// One adapter's failure is logged and does not stop the others.
// Calling it again after a successful run is a no-op.
func (r *Registry) Initialize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		return nil
	}

	for _, t := range r.order {
		cfg, ok := r.configs[t]
		if !ok || !cfg.Configured() {
			r.logger.Info("Provider not configured, skipping", "provider", string(t))
			continue
		}
		factory, ok := r.factories[t]
		if !ok {
			r.logger.Warn("No factory for provider", "provider", string(t))
			continue
		}

		p := factory(cfg)
		if err := p.Initialize(ctx); err != nil {
			r.logger.Error("Provider initialization failed", "provider", string(t), "error", err)
			continue
		}
		r.providers[t] = p
	}

	if err := r.fallback.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize fallback provider: %w", err)
	}
	r.providers[ocr.ProviderFallback] = r.fallback

	r.initialized = true
	r.logger.Info("Registry initialized", "providers", len(r.providers))
	return nil
}

// Get returns the adapter of type t
func (r *Registry) Get(t ocr.ProviderType) (providers.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[t]
	return p, ok
}

// Fallback returns the local adapter
func (r *Registry) Fallback() *providers.FallbackProvider {
	return r.fallback
}

// Types returns registered provider types in priority order, fallback last
func (r *Registry) Types() []ocr.ProviderType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]ocr.ProviderType, 0, len(r.providers))
	for _, t := range r.order {
		if _, ok := r.providers[t]; ok {
			types = append(types, t)
		}
	}
	if _, ok := r.providers[ocr.ProviderFallback]; ok {
		types = append(types, ocr.ProviderFallback)
	}
	return types
}

// Real returns the registered network adapters in priority order
func (r *Registry) Real() []providers.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]providers.Provider, 0, len(r.order))
	for _, t := range r.order {
		if p, ok := r.providers[t]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Available returns the types whose adapters currently report availability
func (r *Registry) Available() []ocr.ProviderType {
	types := r.Types()
	available := make([]ocr.ProviderType, 0, len(types))
	for _, t := range types {
		if p, ok := r.Get(t); ok && p.IsAvailable() {
			available = append(available, t)
		}
	}
	return available
}

// Status returns the status of one provider
func (r *Registry) Status(t ocr.ProviderType) (ocr.ProviderStatus, bool) {
	p, ok := r.Get(t)
	if !ok {
		return ocr.ProviderStatus{}, false
	}
	return p.Status(), true
}

// Statuses returns a fresh status of every registered provider
func (r *Registry) Statuses() map[ocr.ProviderType]ocr.ProviderStatus {
	types := r.Types()
	statuses := make(map[ocr.ProviderType]ocr.ProviderStatus, len(types))
	for _, t := range types {
		if p, ok := r.Get(t); ok {
			statuses[t] = p.Status()
		}
	}
	return statuses
}

// Destroy releases every adapter; the registry may be initialized again afterwards
func (r *Registry) Destroy() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for t, p := range r.providers {
		if err := p.Destroy(); err != nil {
			r.logger.Warn("Provider destroy failed", "provider", string(t), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	r.providers = make(map[ocr.ProviderType]providers.Provider)
	r.initialized = false
	return firstErr
}
