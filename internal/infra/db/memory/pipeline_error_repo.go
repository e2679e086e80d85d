package memory

import (
	"context"
	"sync"
	"time"

	"github.com/bryanwahyu/pestwatch/internal/domain/pipelineerrors"
)

type PipelineErrorRepository struct {
	mu     sync.Mutex
	nextID int64
	items  []pipelineerrors.PipelineError
}

func NewPipelineErrorRepository() *PipelineErrorRepository { return &PipelineErrorRepository{} }

func (r *PipelineErrorRepository) Save(_ context.Context, e *pipelineerrors.PipelineError) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	e.ID = r.nextID
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	r.items = append(r.items, *e)
	return nil
}

// ListByDetection returns newest entries first.
func (r *PipelineErrorRepository) ListByDetection(_ context.Context, detectionID string, limit int) ([]*pipelineerrors.PipelineError, error) {
	if limit <= 0 {
		limit = 20
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*pipelineerrors.PipelineError
	for i := len(r.items) - 1; i >= 0 && len(out) < limit; i-- {
		if r.items[i].DetectionID == detectionID {
			e := r.items[i]
			out = append(out, &e)
		}
	}
	return out, nil
}
