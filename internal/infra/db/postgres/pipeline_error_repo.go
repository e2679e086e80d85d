package postgres

import (
	"context"
	"database/sql"
	"time"

	domain "github.com/bryanwahyu/pestwatch/internal/domain/pipelineerrors"
)

type PipelineErrorRepository struct{ db *sql.DB }

func NewPipelineErrorRepository(db *sql.DB) *PipelineErrorRepository {
	return &PipelineErrorRepository{db: db}
}

// Save uses RETURNING since lib/pq does not support LastInsertId.
func (r *PipelineErrorRepository) Save(ctx context.Context, e *domain.PipelineError) error {
	const q = `
INSERT INTO pipeline_errors (detection_id, phase, kind, message, created_at)
VALUES ($1,$2,$3,$4,$5)
RETURNING id;`
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return r.db.QueryRowContext(ctx, q, e.DetectionID, string(e.Phase), e.Kind, e.Message, created).Scan(&e.ID)
}

func (r *PipelineErrorRepository) ListByDetection(ctx context.Context, detectionID string, limit int) ([]*domain.PipelineError, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, detection_id, phase, kind, message, created_at
FROM pipeline_errors
WHERE detection_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2;`
	rows, err := r.db.QueryContext(ctx, q, detectionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.PipelineError
	for rows.Next() {
		var e domain.PipelineError
		if err := rows.Scan(&e.ID, &e.DetectionID, &e.Phase, &e.Kind, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
