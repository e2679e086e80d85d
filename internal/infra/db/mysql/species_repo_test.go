package mysql_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/pestwatch/internal/domain/species"
	"github.com/bryanwahyu/pestwatch/internal/infra/db/mysql"
)

func TestSpeciesRepository_List(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cols := []string{"id", "common_name", "scientific_name", "abbreviation", "characteristics", "detection", "biosecurity", "sort_order", "is_active"}
	mock.ExpectQuery("SELECT (.+) FROM target_species").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("qfly", "Queensland fruit fly", "Bactrocera tryoni", "Qfly",
				[]byte(`{"sizeRange":"6-8mm"}`),
				[]byte(`{"alertThreshold":2,"matchingCriteria":["Yellow scutellum"]}`),
				[]byte(`{"isReportable":true,"recentDetections":"Auckland"}`),
				1, true))

	list, err := mysql.NewSpeciesRepository(db).List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, species.ID("qfly"), list[0].ID)
	assert.Equal(t, 2, list[0].Detection.AlertThreshold)
	assert.Equal(t, []string{"Yellow scutellum"}, list[0].Detection.MatchingCriteria)
	assert.Equal(t, "Auckland", list[0].Biosecurity.RecentDetections)
	assert.True(t, list[0].Display.IsActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSpeciesRepository_Save(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO target_species").
		WithArgs("medfly", "Mediterranean fruit fly", "Ceratitis capitata", "",
			sqlmock.AnyArg(), `{"alertThreshold":2,"matchingCriteria":null,"exclusionCriteria":null}`, sqlmock.AnyArg(), 3, true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = mysql.NewSpeciesRepository(db).Save(context.Background(), &species.Species{
		ID:             "medfly",
		CommonName:     "Mediterranean fruit fly",
		ScientificName: "Ceratitis capitata",
		Detection:      species.Detection{AlertThreshold: 2},
		Display:        species.Display{SortOrder: 3, IsActive: true},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
