package memory

import (
	"context"
	"sync"

	"github.com/bryanwahyu/pestwatch/internal/domain/species"
)

// SpeciesRepository is an in-process species source. Save replaces by ID.
type SpeciesRepository struct {
	mu   sync.RWMutex
	list []species.Species
}

func NewSpeciesRepository(seed ...species.Species) *SpeciesRepository {
	return &SpeciesRepository{list: append([]species.Species(nil), seed...)}
}

func (r *SpeciesRepository) Save(_ context.Context, s *species.Species) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.list {
		if r.list[i].ID == s.ID {
			r.list[i] = *s
			return nil
		}
	}
	r.list = append(r.list, *s)
	return nil
}

func (r *SpeciesRepository) List(context.Context) ([]species.Species, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]species.Species(nil), r.list...), nil
}
