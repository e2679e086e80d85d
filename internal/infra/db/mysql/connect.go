package mysql

import (
	"context"
	"database/sql"

	_ "github.com/go-sql-driver/mysql"

	"github.com/bryanwahyu/pestwatch/internal/infra/db"
)

// Connect opens the MySQL pool. The DSN must carry parseTime=true and
// clientFoundRows=true; PatchReferenceImages relies on matched-row counts.
func Connect(ctx context.Context, dsn string, pool db.Pool) (*sql.DB, error) {
	return db.Open(ctx, "mysql", dsn, pool)
}
