package storage

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeConfidence(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0.9632000000000001, 0.9632},
		{0.12345, 0.1235},
		{-0.2, 0},
		{1.7, 1},
		{math.NaN(), 0},
		{1, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeConfidence(tt.in))
	}
}

func TestValidateUpdate(t *testing.T) {
	assert.Error(t, validateUpdate(nil))
	assert.ErrorContains(t, validateUpdate(&JobUpdate{Status: JobStatusQueued}), "job ID is required")
	assert.ErrorContains(t, validateUpdate(&JobUpdate{JobID: "a"}), "status is required")
	assert.ErrorContains(t, validateUpdate(&JobUpdate{JobID: "a", Status: "exploded"}), "unknown job status")

	for _, status := range []string{JobStatusQueued, JobStatusProcessing, JobStatusCompleted, JobStatusDegraded, JobStatusFailed} {
		assert.NoError(t, validateUpdate(&JobUpdate{JobID: "a", Status: status}))
	}
}

func TestUpdateJobStatus_RejectsInvalidWithoutDatabase(t *testing.T) {
	p := &PostgresClient{}
	err := p.UpdateJobStatus(context.Background(), &JobUpdate{Status: JobStatusCompleted})
	require.Error(t, err)

	_, err = p.GetJob(context.Background(), "")
	require.Error(t, err)
}

func TestNewPostgresClient(t *testing.T) {
	_, err := NewPostgresClient("")
	require.ErrorContains(t, err, "database URL is required")

	_, err = NewPostgresClient("postgres://ocr@127.0.0.1:1/ocr?sslmode=disable&connect_timeout=1")
	require.ErrorContains(t, err, "failed to ping database")
}
