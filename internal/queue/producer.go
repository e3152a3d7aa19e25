package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/adverant/nexus/ocr-engine/internal/logging"
	"github.com/adverant/nexus/ocr-engine/internal/storage"
)

// ProducerConfig holds producer configuration
type ProducerConfig struct {
	RedisURL string
	// Retention keeps completed tasks (and their results) inspectable
	Retention time.Duration
	MaxRetry  int
	// Tracker records the queued status; nil disables tracking
	Tracker JobTracker
}

const defaultMaxRetry = 3

// Producer submits async extraction jobs
type Producer struct {
	client  *asynq.Client
	cfg     ProducerConfig
	tracker JobTracker
	logger  *logging.Logger
}

// NewProducer creates a producer connected to cfg.RedisURL
func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if cfg.MaxRetry <= 0 {
		cfg.MaxRetry = defaultMaxRetry
	}

	return &Producer{
		client:  asynq.NewClient(redisOpt),
		cfg:     cfg,
		tracker: cfg.Tracker,
		logger:  logging.NewLogger("queue-producer"),
	}, nil
}

// taskOptions builds the enqueue options of one job
func (p *Producer) taskOptions(payload *ExtractPayload) []asynq.Option {
	opts := []asynq.Option{
		asynq.TaskID(payload.JobID),
		asynq.Queue(QueueFor(payload.Options.Priority)),
		asynq.MaxRetry(p.cfg.MaxRetry),
	}
	if p.cfg.Retention > 0 {
		opts = append(opts, asynq.Retention(p.cfg.Retention))
	}
	if payload.Options.Timeout > 0 {
		// Leave room for queueing and retries inside the handler
		opts = append(opts, asynq.Timeout(payload.Options.Timeout*time.Duration(max(payload.Options.MaxRetries, 1)+1)))
	}
	return opts
}

// Enqueue submits payload and returns its job id. A missing JobID is generated.
func (p *Producer) Enqueue(ctx context.Context, payload *ExtractPayload) (string, error) {
	if payload.JobID == "" {
		payload.JobID = uuid.NewString()
	}

	task, err := NewExtractTask(payload)
	if err != nil {
		return "", err
	}

	info, err := p.client.EnqueueContext(ctx, task, p.taskOptions(payload)...)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue job %s: %w", payload.JobID, err)
	}

	p.logger.Info("Job enqueued",
		"jobId", payload.JobID,
		"queue", info.Queue,
		"priority", payload.Options.Priority.String(),
		"bytes", len(payload.Image),
		"imageUrl", payload.ImageURL)

	if p.tracker != nil {
		if err := p.tracker.UpdateJobStatus(ctx, &storage.JobUpdate{
			JobID:  payload.JobID,
			Status: storage.JobStatusQueued,
			Metadata: map[string]interface{}{
				"queue":    info.Queue,
				"mimeType": payload.MimeType,
			},
		}); err != nil {
			p.logger.Warn("Failed to record queued status", "jobId", payload.JobID, "error", err)
		}
	}

	return payload.JobID, nil
}

// Close closes the redis connection
func (p *Producer) Close() error {
	return p.client.Close()
}
