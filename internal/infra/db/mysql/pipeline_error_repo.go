package mysql

import (
	"context"
	"database/sql"
	"time"

	domain "github.com/bryanwahyu/pestwatch/internal/domain/pipelineerrors"
)

type PipelineErrorRepository struct {
	db *sql.DB
}

func NewPipelineErrorRepository(db *sql.DB) *PipelineErrorRepository {
	return &PipelineErrorRepository{db: db}
}

func (r *PipelineErrorRepository) Save(ctx context.Context, e *domain.PipelineError) error {
	const q = `
INSERT INTO pipeline_errors
  (detection_id, phase, kind, message, created_at)
VALUES (?,?,?,?,?)
`
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, q,
		stringOrDash(e.DetectionID), stringOrDash(string(e.Phase)), stringOrDash(e.Kind), stringOrDash(e.Message), created)
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		e.ID = id
	}
	return nil
}

func (r *PipelineErrorRepository) ListByDetection(ctx context.Context, detectionID string, limit int) ([]*domain.PipelineError, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, detection_id, phase, kind, message, created_at
FROM pipeline_errors
WHERE detection_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?;`
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
