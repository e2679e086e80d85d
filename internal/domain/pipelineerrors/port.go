package pipelineerrors

import (
	"context"
)

// Repository defines persistence for pipeline errors
type Repository interface {
	Save(ctx context.Context, e *PipelineError) error
	ListByDetection(ctx context.Context, detectionID string, limit int) ([]*PipelineError, error)
}
