package species

import "context"

// Source port for reading the species configuration
type Source interface {
	List(ctx context.Context) ([]Species, error)
}
