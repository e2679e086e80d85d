package postgres

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"

	"github.com/bryanwahyu/pestwatch/internal/infra/db"
)

// Connect opens the Postgres pool through lib/pq.
func Connect(ctx context.Context, dsn string, pool db.Pool) (*sql.DB, error) {
	return db.Open(ctx, "postgres", dsn, pool)
}
