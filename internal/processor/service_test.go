package processor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/ocr-engine/internal/cache"
	ocrerrors "github.com/adverant/nexus/ocr-engine/internal/errors"
	"github.com/adverant/nexus/ocr-engine/internal/fusion"
	"github.com/adverant/nexus/ocr-engine/internal/ocr"
	"github.com/adverant/nexus/ocr-engine/internal/orchestrator"
	"github.com/adverant/nexus/ocr-engine/internal/providers"
	"github.com/adverant/nexus/ocr-engine/internal/registry"
	"github.com/adverant/nexus/ocr-engine/internal/scheduler"
)

type countingProvider struct {
	typ     ocr.ProviderType
	fail    bool
	delay   time.Duration
	release chan struct{}
	calls   atomic.Int32
}

func (c *countingProvider) Type() ocr.ProviderType               { return c.typ }
func (c *countingProvider) Initialize(ctx context.Context) error { return nil }
func (c *countingProvider) Destroy() error                       { return nil }
func (c *countingProvider) IsAvailable() bool                    { return true }
func (c *countingProvider) Status() ocr.ProviderStatus {
	return ocr.ProviderStatus{Available: true}
}
func (c *countingProvider) ExtractText(ctx context.Context, image []byte, opts ocr.Options) (*ocr.Result, error) {
	c.calls.Add(1)
	if c.release != nil {
		<-c.release
	}
	if c.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ocrerrors.NewTimeoutError(string(c.typ), c.delay, ctx.Err())
		case <-time.After(c.delay):
		}
	}
	if c.fail {
		return nil, ocrerrors.NewAPIError(string(c.typ), 400, false, nil)
	}
	return &ocr.Result{
		Text:             "Invoice #7\nContact: jane@example.com",
		Confidence:       0.85,
		Provider:         c.typ,
		ProcessingTimeMs: 1200,
	}, nil
}

func newTestService(t *testing.T, p *countingProvider) *Service {
	t.Helper()

	reg := registry.New(
		map[ocr.ProviderType]providers.Config{p.typ: {APIKey: "key"}},
		[]ocr.ProviderType{p.typ},
		providers.NewFallbackProvider(providers.FallbackConfig{DisableEngine: true}),
		nil,
	)
	reg.WithFactory(p.typ, func(providers.Config) providers.Provider { return p })
	require.NoError(t, reg.Initialize(context.Background()))

	sched := scheduler.New(nil)
	t.Cleanup(sched.Close)

	engine := fusion.NewEngine(fusion.DefaultConfig(), nil)
	orch := orchestrator.New(reg, sched, engine, orchestrator.Config{
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	})

	c := cache.New(nil, nil, time.Minute)
	t.Cleanup(func() { _ = c.Close() })

	return NewService(ServiceConfig{
		Loader: LoaderConfig{MaxRetries: 3, InitialBackoff: time.Millisecond},
	}, reg, orch, engine, c)
}

func TestService_CacheIdempotence(t *testing.T) {
	p := &countingProvider{typ: ocr.ProviderOpenAI}
	svc := newTestService(t, p)
	req := &ocr.Request{Image: []byte("image-one"), ContentType: "image/png", Options: ocr.Options{Language: "eng"}}

	first := svc.ExtractText(context.Background(), req)
	second := svc.ExtractText(context.Background(), req)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), p.calls.Load())
	assert.Equal(t, uint64(1), svc.CacheStats().Hits)
}

func TestService_DifferentImagesDoNotShareCache(t *testing.T) {
	p := &countingProvider{typ: ocr.ProviderOpenAI}
	svc := newTestService(t, p)

	svc.ExtractText(context.Background(), &ocr.Request{Image: []byte("image-one")})
	svc.ExtractText(context.Background(), &ocr.Request{Image: []byte("image-two")})
	svc.ExtractText(context.Background(), &ocr.Request{Image: []byte("image-one"), Options: ocr.Options{DetectTables: true}})

	assert.Equal(t, int32(3), p.calls.Load())
}

func TestService_InvalidateCache(t *testing.T) {
	p := &countingProvider{typ: ocr.ProviderOpenAI}
	svc := newTestService(t, p)
	req := &ocr.Request{Image: []byte("image-one")}

	svc.ExtractText(context.Background(), req)
	require.NoError(t, svc.InvalidateCache(context.Background(), req.Image, req.Options))
	svc.ExtractText(context.Background(), req)

	assert.Equal(t, int32(2), p.calls.Load())
}

func TestService_ResultIsEnriched(t *testing.T) {
	p := &countingProvider{typ: ocr.ProviderOpenAI}
	svc := newTestService(t, p)

	result := svc.ExtractText(context.Background(), &ocr.Request{Image: []byte("image-one")})

	require.NotNil(t, result.Structured)
	assert.Equal(t, "Invoice #7", result.Structured.Title)
	require.NotEmpty(t, result.Structured.Entities)
	assert.Equal(t, ocr.EntityEmail, result.Structured.Entities[0].Type)
	assert.Nil(t, result.Error)
	assert.Greater(t, result.Confidence, 0.0)
	assert.LessOrEqual(t, result.Confidence, 1.0)
}

func TestService_EmptyImageReturnsPlaceholder(t *testing.T) {
	p := &countingProvider{typ: ocr.ProviderOpenAI}
	svc := newTestService(t, p)

	result := svc.ExtractText(context.Background(), &ocr.Request{})

	assert.Zero(t, p.calls.Load())
	assert.Equal(t, providers.ManualInputPlaceholder, result.Text)
	assert.True(t, result.Degraded)
	require.NotNil(t, result.Error)
}

func TestService_AllProvidersFailedIsNotAnError(t *testing.T) {
	p := &countingProvider{typ: ocr.ProviderOpenAI, fail: true}
	svc := newTestService(t, p)

	result := svc.ExtractText(context.Background(), &ocr.Request{Image: []byte("garbage")})

	require.NotNil(t, result)
	assert.True(t, result.Degraded)
	assert.LessOrEqual(t, result.Confidence, providers.MaxDegradedConfidence)
	require.NotNil(t, result.Error)
	assert.Equal(t, ocrerrors.ErrorAllProvidersFailed, result.Error.Code)
}

func TestService_ConcurrentIdenticalRequestsShareOneExtraction(t *testing.T) {
	p := &countingProvider{typ: ocr.ProviderOpenAI, release: make(chan struct{})}
	svc := newTestService(t, p)
	req := &ocr.Request{Image: []byte("same-image")}

	var wg sync.WaitGroup
	results := make([]*ocr.Result, 5)
	for i := range results {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = svc.ExtractText(context.Background(), req)
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(p.release)
	wg.Wait()

	assert.Equal(t, int32(1), p.calls.Load())
	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, results[0].Text, r.Text)
	}
}

func TestService_CancelledCallerDoesNotPoisonCache(t *testing.T) {
	p := &countingProvider{typ: ocr.ProviderOpenAI, delay: 50 * time.Millisecond}
	svc := newTestService(t, p)
	req := &ocr.Request{Image: []byte("slow-image")}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	impatient := svc.ExtractText(ctx, req)
	assert.True(t, impatient.Degraded)
	require.NotNil(t, impatient.Error)
	assert.Equal(t, ocrerrors.ErrorTimeout, impatient.Error.Code)

	patient := svc.ExtractText(context.Background(), req)
	assert.False(t, patient.Degraded)
	assert.Equal(t, ocr.ProviderOpenAI, patient.Provider)
	assert.Nil(t, patient.Error)
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestService_TimedOutFlightIsNotCached(t *testing.T) {
	p := &countingProvider{typ: ocr.ProviderOpenAI, delay: 50 * time.Millisecond}
	svc := newTestService(t, p)
	svc.cfg.FlightTimeout = 10 * time.Millisecond
	req := &ocr.Request{Image: []byte("slow-image")}

	first := svc.ExtractText(context.Background(), req)
	assert.True(t, first.Degraded)

	svc.cfg.FlightTimeout = time.Minute
	second := svc.ExtractText(context.Background(), req)
	assert.False(t, second.Degraded)
	assert.Equal(t, int32(2), p.calls.Load())
	assert.Zero(t, svc.CacheStats().Hits)
}

func TestService_ExtractFromURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("remote-image"))
	}))
	defer server.Close()

	p := &countingProvider{typ: ocr.ProviderOpenAI}
	svc := newTestService(t, p)

	result := svc.ExtractFromURL(context.Background(), server.URL+"/scan.png", "", ocr.Options{})
	assert.Equal(t, ocr.ProviderOpenAI, result.Provider)
	assert.Equal(t, int32(1), p.calls.Load())

	missing := svc.ExtractFromURL(context.Background(), server.URL+"/missing", "", ocr.Options{})
	assert.True(t, missing.Degraded)
	require.NotNil(t, missing.Error)
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestService_Introspection(t *testing.T) {
	p := &countingProvider{typ: ocr.ProviderOpenAI}
	svc := newTestService(t, p)

	statuses := svc.ProviderStatuses()
	assert.Contains(t, statuses, ocr.ProviderOpenAI)
	assert.Contains(t, statuses, ocr.ProviderFallback)

	report := svc.HealthCheck(context.Background())
	assert.True(t, report.Healthy)
	assert.Equal(t, []ocr.ProviderType{ocr.ProviderOpenAI}, report.AvailableProviders)
}

func TestImageLoader_RetriesTransientFailures(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("payload"))
	}))
	defer server.Close()

	loader := NewImageLoader(LoaderConfig{MaxRetries: 5, InitialBackoff: time.Millisecond})
	data, err := loader.Load(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
	assert.Equal(t, int32(3), hits.Load())
}

func TestImageLoader_DoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	loader := NewImageLoader(LoaderConfig{MaxRetries: 5, InitialBackoff: time.Millisecond})
	_, err := loader.Load(context.Background(), server.URL)

	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestImageLoader_EnforcesSizeLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 64))
	}))
	defer server.Close()

	loader := NewImageLoader(LoaderConfig{MaxBytes: 16, MaxRetries: 1})
	_, err := loader.Load(context.Background(), server.URL)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds maximum")
}
