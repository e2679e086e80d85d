package pipelineerrors

import "time"

// Phase of the pipeline in which an error happened.
type Phase string

const (
	PhaseClassify Phase = "classify"
	PhaseEnrich   Phase = "enrich"
	PhaseStore    Phase = "store"
)

// PipelineError represents a persisted pipeline error entry
type PipelineError struct {
	ID          int64     `json:"id"`
	DetectionID string    `json:"detection_id,omitempty"`
	Phase       Phase     `json:"phase"`
	Kind        string    `json:"kind"`
	Message     string    `json:"message"`
	CreatedAt   time.Time `json:"created_at"`
}
