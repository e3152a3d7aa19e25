package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ocrerrors "github.com/adverant/nexus/ocr-engine/internal/errors"
	"github.com/adverant/nexus/ocr-engine/internal/ocr"
	"github.com/adverant/nexus/ocr-engine/internal/providers"
)

func TestScheduler_SpacingRespectsRequestsPerMinute(t *testing.T) {
	// 1200 rpm => 50ms between dispatches
	s := New(map[ocr.ProviderType]providers.RateLimit{
		ocr.ProviderOpenAI: {RequestsPerMinute: 1200},
	})
	defer s.Close()

	var mu sync.Mutex
	var dispatched []time.Time
	s.onDispatch = func(provider ocr.ProviderType, at time.Time) {
		mu.Lock()
		dispatched = append(dispatched, at)
		mu.Unlock()
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Submit(context.Background(), ocr.ProviderOpenAI, func(ctx context.Context) (*ocr.Result, error) {
				return &ocr.Result{Text: "ok"}, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Len(t, dispatched, 5)
	for i := 1; i < len(dispatched); i++ {
		gap := dispatched[i].Sub(dispatched[i-1])
		assert.GreaterOrEqual(t, gap, 50*time.Millisecond, "gap %d", i)
	}
}

func TestScheduler_FIFOAndSerialized(t *testing.T) {
	s := New(map[ocr.ProviderType]providers.RateLimit{
		ocr.ProviderAnthropic: {RequestsPerMinute: 6000},
	})
	defer s.Close()

	var mu sync.Mutex
	var order []int
	running := 0
	maxRunning := 0

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			_, _ = s.Submit(context.Background(), ocr.ProviderAnthropic, func(ctx context.Context) (*ocr.Result, error) {
				mu.Lock()
				running++
				if running > maxRunning {
					maxRunning = running
				}
				order = append(order, i)
				mu.Unlock()

				time.Sleep(5 * time.Millisecond)

				mu.Lock()
				running--
				mu.Unlock()
				return nil, nil
			})
		}()
		// Stagger submissions so queue order is known
		time.Sleep(2 * time.Millisecond)
	}
	wg.Wait()

	assert.Equal(t, 1, maxRunning)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestScheduler_UnlimitedRunsImmediately(t *testing.T) {
	s := New(map[ocr.ProviderType]providers.RateLimit{
		ocr.ProviderOpenAI: {},
	})
	defer s.Close()

	assert.False(t, s.Paced(ocr.ProviderOpenAI))

	start := time.Now()
	for i := 0; i < 10; i++ {
		_, err := s.Submit(context.Background(), ocr.ProviderOpenAI, func(ctx context.Context) (*ocr.Result, error) {
			return &ocr.Result{}, nil
		})
		require.NoError(t, err)
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestScheduler_TimeoutWhileQueued(t *testing.T) {
	// 60 rpm => the second job would wait a full second
	s := New(map[ocr.ProviderType]providers.RateLimit{
		ocr.ProviderOpenAI: {RequestsPerMinute: 60},
	})
	defer s.Close()

	_, err := s.Submit(context.Background(), ocr.ProviderOpenAI, func(ctx context.Context) (*ocr.Result, error) {
		return &ocr.Result{}, nil
	})
	require.NoError(t, err)

	ran := false
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = s.Submit(ctx, ocr.ProviderOpenAI, func(ctx context.Context) (*ocr.Result, error) {
		ran = true
		return &ocr.Result{}, nil
	})

	assert.Equal(t, ocrerrors.ErrorTimeout, ocrerrors.CodeOf(err))
	assert.True(t, ocrerrors.IsRetryable(err))
	assert.False(t, ran)
}

func TestScheduler_ExpiredContextRejected(t *testing.T) {
	s := New(map[ocr.ProviderType]providers.RateLimit{
		ocr.ProviderOpenAI: {RequestsPerMinute: 60},
	})
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Submit(ctx, ocr.ProviderOpenAI, func(ctx context.Context) (*ocr.Result, error) {
		t.Fatal("task must not run")
		return nil, nil
	})
	assert.Equal(t, ocrerrors.ErrorTimeout, ocrerrors.CodeOf(err))
}

func TestScheduler_ProvidersIndependent(t *testing.T) {
	s := New(map[ocr.ProviderType]providers.RateLimit{
		ocr.ProviderOpenAI:    {RequestsPerMinute: 60},
		ocr.ProviderAnthropic: {RequestsPerMinute: 60},
	})
	defer s.Close()

	block := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_, _ = s.Submit(context.Background(), ocr.ProviderOpenAI, func(ctx context.Context) (*ocr.Result, error) {
			close(started)
			<-block
			return nil, nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := s.Submit(ctx, ocr.ProviderAnthropic, func(ctx context.Context) (*ocr.Result, error) {
		return &ocr.Result{Text: "b"}, nil
	})
	assert.NoError(t, err)
	close(block)
}

func TestScheduler_SubmitAfterClose(t *testing.T) {
	s := New(map[ocr.ProviderType]providers.RateLimit{
		ocr.ProviderOpenAI: {RequestsPerMinute: 60},
	})
	s.Close()

	_, err := s.Submit(context.Background(), ocr.ProviderOpenAI, func(ctx context.Context) (*ocr.Result, error) {
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrClosed)
}
