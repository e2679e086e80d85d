package detection

import "context"

// Repository port (interface untuk persistence)
type Repository interface {
	Create(ctx context.Context, d *Detection) error
	// PatchReferenceImages overwrites the whole reference image field.
	PatchReferenceImages(ctx context.Context, id ID, images []ReferenceImage) error
	Get(ctx context.Context, id ID) (*Detection, error)
	Recent(ctx context.Context, limit int) ([]*Detection, error)
}

// ImageStore port (penyimpanan foto yang diunggah)
type ImageStore interface {
	Put(ctx context.Context, key string, data []byte, mimeType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	// URL returns a time-limited link to the stored object.
	URL(ctx context.Context, key string) (string, error)
}

// Classifier sends one request to the vision model and returns its raw text.
type Classifier interface {
	Classify(ctx context.Context, req ClassificationRequest) (string, error)
}

// ReferenceFinder looks up reference photographs. It never fails; problems
// reduce the result set.
type ReferenceFinder interface {
	Find(ctx context.Context, q ReferenceQuery) []ReferenceImage
}
