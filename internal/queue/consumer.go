/**
 * Queue Consumer for async OCR extraction
 *
 * Consumes ocr:extract jobs from Redis (asynq) and runs them through the
 * OCR service. A degraded extraction is a completed job, not a failed task:
 * the only task failures are malformed payloads.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"github.com/adverant/nexus/ocr-engine/internal/logging"
	"github.com/adverant/nexus/ocr-engine/internal/metrics"
	"github.com/adverant/nexus/ocr-engine/internal/ocr"
	"github.com/adverant/nexus/ocr-engine/internal/storage"
)

// Extractor is the part of the OCR service the consumer needs
type Extractor interface {
	ExtractText(ctx context.Context, req *ocr.Request) *ocr.Result
	ExtractFromURL(ctx context.Context, url, contentType string, opts ocr.Options) *ocr.Result
}

// JobTracker persists job status; storage.PostgresClient implements it
type JobTracker interface {
	UpdateJobStatus(ctx context.Context, update *storage.JobUpdate) error
}

// Consumer handles job consumption from Redis queue
type Consumer struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	extractor Extractor
	tracker   JobTracker
	config    *ConsumerConfig
	logger    *logging.Logger
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL    string
	Concurrency int
	Extractor   Extractor
	// Tracker is optional
	Tracker    JobTracker
	JobTimeout time.Duration
}

const defaultJobTimeout = 5 * time.Minute

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.Extractor == nil {
		return nil, fmt.Errorf("Extractor is required")
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = defaultJobTimeout
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := logging.NewLogger("queue-consumer")

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues:      QueueWeights,
			// Exponential backoff: 5s, 10s, 20s ... capped at 60s
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				delay := time.Duration(5*(1<<uint(n))) * time.Second
				if delay > 60*time.Second {
					delay = 60 * time.Second
				}
				return delay
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task processing error", "type", task.Type(), "error", err)
			}),
			Logger: &asynqLogger{logger: logging.NewLogger("asynq")},
		},
	)

	consumer := &Consumer{
		server:    server,
		mux:       asynq.NewServeMux(),
		extractor: cfg.Extractor,
		tracker:   cfg.Tracker,
		config:    cfg,
		logger:    logger,
	}
	consumer.mux.HandleFunc(TaskTypeExtract, consumer.HandleExtract)

	return consumer, nil
}

// Start starts the queue consumer
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("Starting queue consumer", "concurrency", c.config.Concurrency)
	if err := c.server.Start(c.mux); err != nil {
		return fmt.Errorf("failed to start queue consumer: %w", err)
	}
	return nil
}

// Stop waits for in-flight jobs and stops the consumer
func (c *Consumer) Stop(ctx context.Context) error {
	c.logger.Info("Stopping queue consumer")
	c.server.Shutdown()
	c.logger.Info("Queue consumer stopped")
	return nil
}

// HandleExtract processes one ocr:extract task
func (c *Consumer) HandleExtract(ctx context.Context, task *asynq.Task) error {
	startTime := time.Now()

	payload, err := parseExtractPayload(task)
	if err != nil {
		// Retrying a malformed payload cannot succeed
		metrics.RecordJob(storage.JobStatusFailed)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	logger := c.logger.With("jobId", payload.JobID)

	logger.Info("Processing job",
		"bytes", len(payload.Image),
		"imageUrl", payload.ImageURL,
		"provider", string(payload.Options.Provider))

	c.track(ctx, logger, &storage.JobUpdate{JobID: payload.JobID, Status: storage.JobStatusProcessing})

	processCtx, cancel := context.WithTimeout(ctx, c.config.JobTimeout)
	defer cancel()

	var result *ocr.Result
	if payload.ImageURL != "" {
		result = c.extractor.ExtractFromURL(processCtx, payload.ImageURL, payload.MimeType, payload.Options)
	} else {
		result = c.extractor.ExtractText(processCtx, &ocr.Request{
			Image:       payload.Image,
			ContentType: payload.MimeType,
			Options:     payload.Options,
		})
	}

	duration := time.Since(startTime)

	if w := task.ResultWriter(); w != nil {
		if data, err := json.Marshal(result); err == nil {
			if _, err := w.Write(data); err != nil {
				logger.Warn("Failed to write task result", "error", err)
			}
		}
	}

	update := jobUpdateFor(payload.JobID, result, duration)
	c.track(ctx, logger, update)
	metrics.RecordJob(update.Status)

	logger.Info("Job finished",
		"status", update.Status,
		"provider", string(result.Provider),
		"confidence", result.Confidence,
		"degraded", result.Degraded,
		"durationMs", duration.Milliseconds())

	return nil
}

func (c *Consumer) track(ctx context.Context, logger *logging.Logger, update *storage.JobUpdate) {
	if c.tracker == nil {
		return
	}
	if err := c.tracker.UpdateJobStatus(ctx, update); err != nil {
		logger.Warn("Failed to update job status", "status", update.Status, "error", err)
	}
}

// jobUpdateFor summarizes a finished extraction
func jobUpdateFor(jobID string, result *ocr.Result, duration time.Duration) *storage.JobUpdate {
	update := &storage.JobUpdate{
		JobID:            jobID,
		Status:           storage.JobStatusCompleted,
		Provider:         string(result.Provider),
		Confidence:       result.Confidence,
		ProcessingTimeMs: duration.Milliseconds(),
		TextLength:       len([]rune(result.Text)),
		Degraded:         result.Degraded,
		Metadata: map[string]interface{}{
			"blocks": len(result.Blocks),
			"tables": len(result.Tables),
		},
	}
	if result.Degraded {
		update.Status = storage.JobStatusDegraded
	}
	if result.Structured != nil {
		update.DocumentType = string(result.Structured.DocumentType)
		if result.Structured.Title != "" {
			update.Metadata["title"] = result.Structured.Title
		}
	}
	if result.Error != nil {
		update.ErrorCode = string(result.Error.Code)
		update.ErrorMessage = result.Error.Message
		update.ProvidersAttempted = attemptedProviders(result.Error.Details)
	}
	return update
}

func attemptedProviders(details map[string]interface{}) []string {
	switch v := details["attempted"].(type) {
	case []string:
		return v
	case []interface{}:
		names := make([]string, 0, len(v))
		for _, n := range v {
			if s, ok := n.(string); ok {
				names = append(names, s)
			}
		}
		return names
	}
	return nil
}

// asynqLogger routes asynq's internal logging through zap
type asynqLogger struct {
	logger *logging.Logger
}

func (l *asynqLogger) Debug(args ...interface{}) { l.logger.Debug(fmt.Sprint(args...)) }
func (l *asynqLogger) Info(args ...interface{})  { l.logger.Info(fmt.Sprint(args...)) }
func (l *asynqLogger) Warn(args ...interface{})  { l.logger.Warn(fmt.Sprint(args...)) }
func (l *asynqLogger) Error(args ...interface{}) { l.logger.Error(fmt.Sprint(args...)) }
func (l *asynqLogger) Fatal(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
	logging.Sync()
	os.Exit(1)
}
