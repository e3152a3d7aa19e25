package queue

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/adverant/nexus/ocr-engine/internal/ocr"
)

// TaskTypeExtract is the asynq task type of an async extraction
const TaskTypeExtract = "ocr:extract"

// Queue names; request priority picks one
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// QueueWeights are the relative polling weights of the queues
var QueueWeights = map[string]int{
	QueueCritical: 6,
	QueueDefault:  3,
	QueueLow:      1,
}

// ExtractPayload is the job data of an ocr:extract task.
// Exactly one of Image and ImageURL is set.
type ExtractPayload struct {
	JobID    string      `json:"jobId"`
	Image    []byte      `json:"image,omitempty"`
	ImageURL string      `json:"imageUrl,omitempty"`
	MimeType string      `json:"mimeType,omitempty"`
	Options  ocr.Options `json:"options"`
}

// Validate checks the payload before it is enqueued or processed
func (p *ExtractPayload) Validate() error {
	if p.JobID == "" {
		return fmt.Errorf("jobId is required")
	}
	if len(p.Image) == 0 && p.ImageURL == "" {
		return fmt.Errorf("either image or imageUrl is required")
	}
	if len(p.Image) > 0 && p.ImageURL != "" {
		return fmt.Errorf("image and imageUrl are mutually exclusive")
	}
	return nil
}

// QueueFor maps a request priority to its queue
func QueueFor(p ocr.Priority) string {
	switch {
	case p > ocr.PriorityNormal:
		return QueueCritical
	case p < ocr.PriorityNormal:
		return QueueLow
	default:
		return QueueDefault
	}
}

// NewExtractTask encodes payload as an ocr:extract task
func NewExtractTask(payload *ExtractPayload) (*asynq.Task, error) {
	if err := payload.Validate(); err != nil {
		return nil, fmt.Errorf("invalid extract payload: %w", err)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal extract payload: %w", err)
	}
	return asynq.NewTask(TaskTypeExtract, data), nil
}

func parseExtractPayload(task *asynq.Task) (*ExtractPayload, error) {
	var payload ExtractPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job data: %w", err)
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	return &payload, nil
}
