// Package memory holds process-local repositories for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/bryanwahyu/pestwatch/internal/domain/detection"
)

const maxRecent = 100

// DetectionRepository stores deep copies so callers cannot mutate stored state.
type DetectionRepository struct {
	mu      sync.RWMutex
	records map[detection.ID]*detection.Detection
	patches map[detection.ID]int
}

func NewDetectionRepository() *DetectionRepository {
	return &DetectionRepository{
		records: make(map[detection.ID]*detection.Detection),
		patches: make(map[detection.ID]int),
	}
}

func (r *DetectionRepository) Create(_ context.Context, d *detection.Detection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[d.ID]; ok {
		return fmt.Errorf("detection %s already exists", d.ID)
	}
	r.records[d.ID] = clone(d)
	return nil
}

func (r *DetectionRepository) PatchReferenceImages(_ context.Context, id detection.ID, images []detection.ReferenceImage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", detection.ErrNotFound, id)
	}
	d.ReferenceImages = append([]detection.ReferenceImage(nil), images...)
	r.patches[id]++
	return nil
}

func (r *DetectionRepository) Get(_ context.Context, id detection.ID) (*detection.Detection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", detection.ErrNotFound, id)
	}
	return clone(d), nil
}

func (r *DetectionRepository) Recent(_ context.Context, limit int) ([]*detection.Detection, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > maxRecent {
		limit = maxRecent
	}
	r.mu.RLock()
	out := make([]*detection.Detection, 0, len(r.records))
	for _, d := range r.records {
		out = append(out, clone(d))
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PatchCount reports how many times the reference images of id were written.
func (r *DetectionRepository) PatchCount(id detection.ID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.patches[id]
}

func clone(d *detection.Detection) *detection.Detection {
	c := *d
	if d.Coordinates != nil {
		coords := *d.Coordinates
		c.Coordinates = &coords
	}
	c.AnalysisFeatures = append([]string(nil), d.AnalysisFeatures...)
	c.ReferenceImages = append([]detection.ReferenceImage(nil), d.ReferenceImages...)
	return &c
}
