/**
 * PostgreSQL Client for async extraction jobs
 *
 * Tracks status and a result summary of every job submitted through the
 * queue. Extracted text itself is not stored here; consumers read it from
 * the result cache or the task's result writer.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"math"
	"time"

	"github.com/lib/pq"
)

// Job statuses
const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusDegraded   = "degraded"
	JobStatusFailed     = "failed"
)

// Schema creates the job table when missing
const Schema = `
	CREATE SCHEMA IF NOT EXISTS ocr;
	CREATE TABLE IF NOT EXISTS ocr.extraction_jobs (
		id                  UUID PRIMARY KEY,
		status              TEXT NOT NULL,
		provider            TEXT,
		providers_attempted TEXT[] NOT NULL DEFAULT '{}',
		confidence          NUMERIC(5,4),
		processing_time_ms  BIGINT,
		text_length         INTEGER,
		degraded            BOOLEAN NOT NULL DEFAULT FALSE,
		document_type       TEXT,
		error_code          TEXT,
		error_message       TEXT,
		metadata            JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS extraction_jobs_status_idx ON ocr.extraction_jobs (status);
`

// PostgresClient handles database operations
type PostgresClient struct {
	db *sql.DB
}

// JobUpdate represents a job status update
type JobUpdate struct {
	JobID              string
	Status             string
	Provider           string
	ProvidersAttempted []string
	Confidence         float64
	ProcessingTimeMs   int64
	TextLength         int
	Degraded           bool
	DocumentType       string
	ErrorCode          string
	ErrorMessage       string
	Metadata           map[string]interface{}
}

// Job is a stored job row
type Job struct {
	ID                 string                 `json:"id"`
	Status             string                 `json:"status"`
	Provider           string                 `json:"provider,omitempty"`
	ProvidersAttempted []string               `json:"providersAttempted,omitempty"`
	Confidence         *float64               `json:"confidence,omitempty"`
	ProcessingTimeMs   *int64                 `json:"processingTimeMs,omitempty"`
	TextLength         *int64                 `json:"textLength,omitempty"`
	Degraded           bool                   `json:"degraded"`
	DocumentType       string                 `json:"documentType,omitempty"`
	ErrorCode          string                 `json:"errorCode,omitempty"`
	ErrorMessage       string                 `json:"errorMessage,omitempty"`
	Metadata           map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt          time.Time              `json:"createdAt"`
	UpdatedAt          time.Time              `json:"updatedAt"`
}

// ErrJobNotFound is returned by GetJob for unknown ids
var ErrJobNotFound = stderrors.New("job not found")

// sanitizeConfidence clamps to [0, 1] and rounds to 4 decimals so the value
// fits NUMERIC(5,4) (0.9632000000000001 → 0.9632)
func sanitizeConfidence(confidence float64) float64 {
	if math.IsNaN(confidence) || confidence < 0.0 {
		return 0.0
	}
	if confidence > 1.0 {
		return 1.0
	}
	return float64(int(confidence*10000+0.5)) / 10000
}

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// EnsureSchema creates the job table if it does not exist
func (p *PostgresClient) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create job schema: %w", err)
	}
	return nil
}

func validateUpdate(update *JobUpdate) error {
	if update == nil {
		return fmt.Errorf("job update is required")
	}
	if update.JobID == "" {
		return fmt.Errorf("job ID is required")
	}
	switch update.Status {
	case JobStatusQueued, JobStatusProcessing, JobStatusCompleted, JobStatusDegraded, JobStatusFailed:
		return nil
	case "":
		return fmt.Errorf("status is required")
	default:
		return fmt.Errorf("unknown job status: %s", update.Status)
	}
}

// UpdateJobStatus upserts the job row. Zero-valued result fields keep the
// stored value so progress updates do not erase an earlier summary.
func (p *PostgresClient) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if err := validateUpdate(update); err != nil {
		return err
	}

	confidence := sanitizeConfidence(update.Confidence)

	metadata := update.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	attempted := update.ProvidersAttempted
	if attempted == nil {
		attempted = []string{}
	}

	query := `
		INSERT INTO ocr.extraction_jobs (
			id, status, provider, providers_attempted, confidence,
			processing_time_ms, text_length, degraded, document_type,
			error_code, error_message, metadata, created_at, updated_at
		) VALUES (
			$1::uuid, $2, NULLIF($3, ''), $4, NULLIF($5::NUMERIC(5,4), 0),
			NULLIF($6, 0), NULLIF($7, 0), $8, NULLIF($9, ''),
			NULLIF($10, ''), NULLIF($11, ''), $12::jsonb, NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			provider = COALESCE(EXCLUDED.provider, ocr.extraction_jobs.provider),
			providers_attempted = CASE
				WHEN cardinality(EXCLUDED.providers_attempted) > 0 THEN EXCLUDED.providers_attempted
				ELSE ocr.extraction_jobs.providers_attempted
			END,
			confidence = COALESCE(EXCLUDED.confidence, ocr.extraction_jobs.confidence),
			processing_time_ms = COALESCE(EXCLUDED.processing_time_ms, ocr.extraction_jobs.processing_time_ms),
			text_length = COALESCE(EXCLUDED.text_length, ocr.extraction_jobs.text_length),
			degraded = EXCLUDED.degraded,
			document_type = COALESCE(EXCLUDED.document_type, ocr.extraction_jobs.document_type),
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			metadata = ocr.extraction_jobs.metadata || EXCLUDED.metadata,
			updated_at = NOW()
		RETURNING id
	`

	var returnedID string
	err = p.db.QueryRowContext(
		ctx,
		query,
		update.JobID,            // $1
		update.Status,           // $2
		update.Provider,         // $3
		pq.Array(attempted),     // $4
		confidence,              // $5
		update.ProcessingTimeMs, // $6
		update.TextLength,       // $7
		update.Degraded,         // $8
		update.DocumentType,     // $9
		update.ErrorCode,        // $10
		update.ErrorMessage,     // $11
		metadataJSON,            // $12
	).Scan(&returnedID)

	if err != nil {
		return fmt.Errorf("failed to update job status (job=%s, status=%s, confidence=%.4f): %w",
			update.JobID, update.Status, confidence, err)
	}

	return nil
}

// GetJob retrieves a job by ID
func (p *PostgresClient) GetJob(ctx context.Context, jobID string) (*Job, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}

	query := `
		SELECT
			id, status, provider, providers_attempted, confidence,
			processing_time_ms, text_length, degraded, document_type,
			error_code, error_message, metadata, created_at, updated_at
		FROM ocr.extraction_jobs
		WHERE id = $1::uuid
	`

	var (
		job                          Job
		provider, documentType       sql.NullString
		errorCode, errorMessage      sql.NullString
		confidence                   sql.NullFloat64
		processingTimeMs, textLength sql.NullInt64
		metadataJSON                 []byte
	)

	err := p.db.QueryRowContext(ctx, query, jobID).Scan(
		&job.ID, &job.Status, &provider, pq.Array(&job.ProvidersAttempted), &confidence,
		&processingTimeMs, &textLength, &job.Degraded, &documentType,
		&errorCode, &errorMessage, &metadataJSON, &job.CreatedAt, &job.UpdatedAt,
	)

	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	job.Provider = provider.String
	job.DocumentType = documentType.String
	job.ErrorCode = errorCode.String
	job.ErrorMessage = errorMessage.String
	if confidence.Valid {
		job.Confidence = &confidence.Float64
	}
	if processingTimeMs.Valid {
		job.ProcessingTimeMs = &processingTimeMs.Int64
	}
	if textLength.Valid {
		job.TextLength = &textLength.Int64
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &job.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &job, nil
}

// Ping checks database connectivity
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresClient) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// GetStats returns connection pool statistics
func (p *PostgresClient) GetStats() sql.DBStats {
	return p.db.Stats()
}
