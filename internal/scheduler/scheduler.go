package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	ocrerrors "github.com/adverant/nexus/ocr-engine/internal/errors"
	"github.com/adverant/nexus/ocr-engine/internal/logging"
	"github.com/adverant/nexus/ocr-engine/internal/metrics"
	"github.com/adverant/nexus/ocr-engine/internal/ocr"
	"github.com/adverant/nexus/ocr-engine/internal/providers"
)

// ErrClosed is returned for work submitted after Close
var ErrClosed = errors.New("scheduler closed")

const queueCapacity = 1024

// Task is one unit of work against a single provider
type Task func(ctx context.Context) (*ocr.Result, error)

type outcome struct {
	result *ocr.Result
	err    error
}

type job struct {
	ctx      context.Context
	task     Task
	enqueued time.Time
	done     chan outcome
}

// queue serializes one rate-limited provider; lastDispatch is owned by its goroutine
type queue struct {
	provider     ocr.ProviderType
	interval     time.Duration
	limiter      *rate.Limiter
	jobs         chan *job
	lastDispatch time.Time
}

// Scheduler paces calls per provider. Providers with a rate limit get a FIFO
// queue executed one job at a time; others run immediately. Queues of
// different providers are independent.
type Scheduler struct {
	queues map[ocr.ProviderType]*queue
	logger *logging.Logger

	// onDispatch observes every paced dispatch
	onDispatch func(provider ocr.ProviderType, at time.Time)

	stop      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New starts one worker per provider with an enabled limit
func New(limits map[ocr.ProviderType]providers.RateLimit) *Scheduler {
	s := &Scheduler{
		queues: make(map[ocr.ProviderType]*queue),
		logger: logging.NewLogger("scheduler"),
		stop:   make(chan struct{}),
	}

	for p, limit := range limits {
		if !limit.Enabled() {
			continue
		}
		interval := limit.MinInterval()
		q := &queue{
			provider: p,
			interval: interval,
			limiter:  rate.NewLimiter(rate.Every(interval), 1),
			jobs:     make(chan *job, queueCapacity),
		}
		s.queues[p] = q

		s.wg.Add(1)
		go s.run(q)

		s.logger.Info("Provider queue started",
			"provider", string(p),
			"minInterval", interval.String(),
			"requestsPerMinute", limit.RequestsPerMinute,
			"requestsPerHour", limit.RequestsPerHour)
	}

	return s
}

// Paced reports whether provider has a queue
func (s *Scheduler) Paced(provider ocr.ProviderType) bool {
	_, ok := s.queues[provider]
	return ok
}

// Submit runs task for provider, waiting its turn in the provider's queue.
// A request whose ctx expires while queued is rejected with a retryable TIMEOUT.
func (s *Scheduler) Submit(ctx context.Context, provider ocr.ProviderType, task Task) (*ocr.Result, error) {
	q, ok := s.queues[provider]
	if !ok {
		return task(ctx)
	}

	if err := ctx.Err(); err != nil {
		return nil, queuedTimeout(provider, 0, err)
	}

	j := &job{ctx: ctx, task: task, enqueued: time.Now(), done: make(chan outcome, 1)}

	select {
	case <-s.stop:
		return nil, ErrClosed
	default:
	}

	select {
	case q.jobs <- j:
	case <-ctx.Done():
		return nil, queuedTimeout(provider, time.Since(j.enqueued), ctx.Err())
	case <-s.stop:
		return nil, ErrClosed
	}

	select {
	case out := <-j.done:
		return out.result, out.err
	case <-ctx.Done():
		metrics.RecordQueueTimeout(string(provider))
		return nil, queuedTimeout(provider, time.Since(j.enqueued), ctx.Err())
	case <-s.stop:
		// The worker may still be finishing this job
		select {
		case out := <-j.done:
			return out.result, out.err
		case <-time.After(q.interval):
			return nil, ErrClosed
		}
	}
}

func (s *Scheduler) run(q *queue) {
	defer s.wg.Done()

	for {
		select {
		case <-s.stop:
			s.drain(q)
			return
		case j := <-q.jobs:
			s.dispatch(q, j)
		}
	}
}

func (s *Scheduler) dispatch(q *queue, j *job) {
	// Expired while queued: never executed
	if err := j.ctx.Err(); err != nil {
		j.done <- outcome{err: queuedTimeout(q.provider, time.Since(j.enqueued), err)}
		return
	}

	// Wait fails fast when the pacing delay would overrun the deadline
	if err := q.limiter.Wait(j.ctx); err != nil {
		j.done <- outcome{err: queuedTimeout(q.provider, time.Since(j.enqueued), err)}
		return
	}

	// Dispatch spacing never drops below interval
	if !q.lastDispatch.IsZero() {
		if wait := q.interval - time.Since(q.lastDispatch); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-j.ctx.Done():
				timer.Stop()
				j.done <- outcome{err: queuedTimeout(q.provider, time.Since(j.enqueued), j.ctx.Err())}
				return
			}
		}
	}

	q.lastDispatch = time.Now()
	if s.onDispatch != nil {
		s.onDispatch(q.provider, q.lastDispatch)
	}
	metrics.RecordQueueWaitTime(string(q.provider), time.Since(j.enqueued).Seconds())

	result, err := j.task(j.ctx)
	j.done <- outcome{result: result, err: err}
}

func (s *Scheduler) drain(q *queue) {
	for {
		select {
		case j := <-q.jobs:
			j.done <- outcome{err: ErrClosed}
		default:
			return
		}
	}
}

// Close stops every worker; queued jobs fail with ErrClosed
func (s *Scheduler) Close() {
	s.closeOnce.Do(func() {
		close(s.stop)
		s.wg.Wait()
	})
}

func queuedTimeout(provider ocr.ProviderType, waited time.Duration, cause error) error {
	return ocrerrors.NewTimeoutError(string(provider), waited, cause)
}
