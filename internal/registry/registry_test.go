package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/ocr-engine/internal/ocr"
	"github.com/adverant/nexus/ocr-engine/internal/providers"
)

type stubProvider struct {
	t         ocr.ProviderType
	initErr   error
	inits     int
	available bool
	destroyed bool
}

func (s *stubProvider) Type() ocr.ProviderType { return s.t }
func (s *stubProvider) Initialize(ctx context.Context) error {
	s.inits++
	return s.initErr
}
func (s *stubProvider) ExtractText(ctx context.Context, image []byte, opts ocr.Options) (*ocr.Result, error) {
	return &ocr.Result{Text: "x", Provider: s.t}, nil
}
func (s *stubProvider) IsAvailable() bool { return s.available }
func (s *stubProvider) Status() ocr.ProviderStatus {
	return ocr.ProviderStatus{Available: s.available}
}
func (s *stubProvider) Destroy() error {
	s.destroyed = true
	return nil
}

func newTestRegistry(configs map[ocr.ProviderType]providers.Config, stubs map[ocr.ProviderType]*stubProvider) *Registry {
	r := New(configs, nil, providers.NewFallbackProvider(providers.FallbackConfig{DisableEngine: true}), nil)
	for t, s := range stubs {
		s := s
		r.WithFactory(t, func(cfg providers.Config) providers.Provider { return s })
	}
	return r
}

func TestRegistry_OnlyConfiguredProvidersRegistered(t *testing.T) {
	openai := &stubProvider{t: ocr.ProviderOpenAI, available: true}
	anthropic := &stubProvider{t: ocr.ProviderAnthropic, available: true}

	r := newTestRegistry(map[ocr.ProviderType]providers.Config{
		ocr.ProviderOpenAI:    {APIKey: "k"},
		ocr.ProviderAnthropic: {},
	}, map[ocr.ProviderType]*stubProvider{
		ocr.ProviderOpenAI:    openai,
		ocr.ProviderAnthropic: anthropic,
	})

	require.NoError(t, r.Initialize(context.Background()))

	assert.Equal(t, []ocr.ProviderType{ocr.ProviderOpenAI, ocr.ProviderFallback}, r.Types())
	_, ok := r.Get(ocr.ProviderAnthropic)
	assert.False(t, ok)
	assert.Zero(t, anthropic.inits)
}

func TestRegistry_InitFailureIsIsolated(t *testing.T) {
	openai := &stubProvider{t: ocr.ProviderOpenAI, initErr: errors.New("bad endpoint")}
	anthropic := &stubProvider{t: ocr.ProviderAnthropic, available: true}

	r := newTestRegistry(map[ocr.ProviderType]providers.Config{
		ocr.ProviderOpenAI:    {APIKey: "k1"},
		ocr.ProviderAnthropic: {APIKey: "k2"},
	}, map[ocr.ProviderType]*stubProvider{
		ocr.ProviderOpenAI:    openai,
		ocr.ProviderAnthropic: anthropic,
	})

	require.NoError(t, r.Initialize(context.Background()))

	assert.Equal(t, []ocr.ProviderType{ocr.ProviderAnthropic, ocr.ProviderFallback}, r.Types())
	assert.Equal(t, []ocr.ProviderType{ocr.ProviderAnthropic, ocr.ProviderFallback}, r.Available())
	assert.Len(t, r.Real(), 1)
}

func TestRegistry_InitializeIsIdempotent(t *testing.T) {
	openai := &stubProvider{t: ocr.ProviderOpenAI, available: true}
	r := newTestRegistry(map[ocr.ProviderType]providers.Config{
		ocr.ProviderOpenAI: {APIKey: "k"},
	}, map[ocr.ProviderType]*stubProvider{ocr.ProviderOpenAI: openai})

	require.NoError(t, r.Initialize(context.Background()))
	require.NoError(t, r.Initialize(context.Background()))
	assert.Equal(t, 1, openai.inits)
}

func TestRegistry_StatusesAndDestroy(t *testing.T) {
	openai := &stubProvider{t: ocr.ProviderOpenAI, available: false}
	r := newTestRegistry(map[ocr.ProviderType]providers.Config{
		ocr.ProviderOpenAI: {APIKey: "k"},
	}, map[ocr.ProviderType]*stubProvider{ocr.ProviderOpenAI: openai})
	require.NoError(t, r.Initialize(context.Background()))

	statuses := r.Statuses()
	require.Len(t, statuses, 2)
	assert.False(t, statuses[ocr.ProviderOpenAI].Available)
	assert.True(t, statuses[ocr.ProviderFallback].Available)

	status, ok := r.Status(ocr.ProviderFallback)
	assert.True(t, ok)
	assert.True(t, status.Available)

	_, ok = r.Status(ocr.ProviderAnthropic)
	assert.False(t, ok)

	require.NoError(t, r.Destroy())
	assert.True(t, openai.destroyed)
	assert.Empty(t, r.Types())
}

func TestRegistry_InitializeAfterDestroy(t *testing.T) {
	openai := &stubProvider{t: ocr.ProviderOpenAI, available: true}
	r := newTestRegistry(map[ocr.ProviderType]providers.Config{
		ocr.ProviderOpenAI: {APIKey: "k"},
	}, map[ocr.ProviderType]*stubProvider{ocr.ProviderOpenAI: openai})
	ctx := context.Background()

	require.NoError(t, r.Initialize(ctx))
	require.NoError(t, r.Destroy())
	require.NoError(t, r.Initialize(ctx))

	assert.Equal(t, []ocr.ProviderType{ocr.ProviderOpenAI, ocr.ProviderFallback}, r.Types())
	assert.Equal(t, 2, openai.inits)
	result := r.Fallback().Analyze(ctx, []byte("undecodable"), ocr.Options{})
	assert.Equal(t, providers.ManualInputPlaceholder, result.Text)
}

func TestRegistry_DefaultFactories(t *testing.T) {
	r := New(map[ocr.ProviderType]providers.Config{
		ocr.ProviderAnthropic: {APIKey: "k"},
	}, nil, nil, nil)
	require.NoError(t, r.Initialize(context.Background()))

	p, ok := r.Get(ocr.ProviderAnthropic)
	require.True(t, ok)
	assert.Equal(t, ocr.ProviderAnthropic, p.Type())
	assert.True(t, p.IsAvailable())
}
