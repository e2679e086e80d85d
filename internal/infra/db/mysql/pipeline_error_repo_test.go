package mysql_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/pestwatch/internal/domain/pipelineerrors"
	"github.com/bryanwahyu/pestwatch/internal/infra/db/mysql"
)

func TestPipelineErrorRepository_SaveAndList(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := mysql.NewPipelineErrorRepository(db)

	mock.ExpectExec("INSERT INTO pipeline_errors").
		WithArgs("d-1", "classify", "ClassificationTimeout", "classification timed out", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(7, 1))

	e := &pipelineerrors.PipelineError{
		DetectionID: "d-1",
		Phase:       pipelineerrors.PhaseClassify,
		Kind:        "ClassificationTimeout",
		Message:     "classification timed out",
	}
	require.NoError(t, repo.Save(context.Background(), e))
	assert.Equal(t, int64(7), e.ID)

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectQuery("SELECT (.+) FROM pipeline_errors").
		WithArgs("d-1", 20).
		WillReturnRows(sqlmock.NewRows([]string{"id", "detection_id", "phase", "kind", "message", "created_at"}).
			AddRow(7, "d-1", "classify", "ClassificationTimeout", "classification timed out", created))

	list, err := repo.ListByDetection(context.Background(), "d-1", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, pipelineerrors.PhaseClassify, list[0].Phase)
	assert.Equal(t, created, list[0].CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPipelineErrorRepository_DashDefaults(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO pipeline_errors").
		WithArgs("-", "enrich", "-", "-", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = mysql.NewPipelineErrorRepository(db).Save(context.Background(), &pipelineerrors.PipelineError{Phase: pipelineerrors.PhaseEnrich})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
