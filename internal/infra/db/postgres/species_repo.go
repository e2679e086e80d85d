package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	domain "github.com/bryanwahyu/pestwatch/internal/domain/species"
)

type SpeciesRepository struct{ db *sql.DB }

func NewSpeciesRepository(db *sql.DB) *SpeciesRepository { return &SpeciesRepository{db: db} }

// Save insert/update species record
func (r *SpeciesRepository) Save(ctx context.Context, s *domain.Species) error {
	const q = `
INSERT INTO target_species
(id, common_name, scientific_name, abbreviation, characteristics, detection, biosecurity, sort_order, is_active)
VALUES ($1,$2,$3,$4,$5::jsonb,$6::jsonb,$7::jsonb,$8,$9)
ON CONFLICT (id) DO UPDATE SET
 common_name = EXCLUDED.common_name,
 scientific_name = EXCLUDED.scientific_name,
 abbreviation = EXCLUDED.abbreviation,
 characteristics = EXCLUDED.characteristics,
 detection = EXCLUDED.detection,
 biosecurity = EXCLUDED.biosecurity,
 sort_order = EXCLUDED.sort_order,
 is_active = EXCLUDED.is_active;`

	parts := make([]string, 0, 3)
	for _, v := range []any{s.Characteristics, s.Detection, s.Biosecurity} {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		parts = append(parts, string(b))
	}
	_, err := r.db.ExecContext(ctx, q,
		s.ID, s.CommonName, s.ScientificName, s.Abbreviation,
		parts[0], parts[1], parts[2], s.Display.SortOrder, s.Display.IsActive,
	)
	return err
}

func (r *SpeciesRepository) List(ctx context.Context) ([]domain.Species, error) {
	const q = `
SELECT id, common_name, scientific_name, abbreviation, characteristics, detection, biosecurity, sort_order, is_active
FROM target_species
ORDER BY sort_order ASC, id ASC;`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Species
	for rows.Next() {
		var s domain.Species
		var chars, det, bio []byte
		if err := rows.Scan(&s.ID, &s.CommonName, &s.ScientificName, &s.Abbreviation,
			&chars, &det, &bio, &s.Display.SortOrder, &s.Display.IsActive); err != nil {
			return nil, err
		}
		if err := unmarshalAll(map[*[]byte]any{&chars: &s.Characteristics, &det: &s.Detection, &bio: &s.Biosecurity}); err != nil {
			return nil, fmt.Errorf("species %s: %w", s.ID, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func unmarshalAll(parts map[*[]byte]any) error {
	for raw, dst := range parts {
		if len(*raw) == 0 {
			continue
		}
		if err := json.Unmarshal(*raw, dst); err != nil {
			return err
		}
	}
	return nil
}
