package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	domain "github.com/bryanwahyu/pestwatch/internal/domain/species"
)

type SpeciesRepository struct {
	db *sql.DB
}

func NewSpeciesRepository(db *sql.DB) *SpeciesRepository {
	return &SpeciesRepository{db: db}
}

// Save insert/update species record
func (r *SpeciesRepository) Save(ctx context.Context, s *domain.Species) error {
	const q = `
INSERT INTO target_species
(id, common_name, scientific_name, abbreviation, characteristics, detection, biosecurity, sort_order, is_active)
VALUES (?,?,?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
 common_name=VALUES(common_name), scientific_name=VALUES(scientific_name), abbreviation=VALUES(abbreviation),
 characteristics=VALUES(characteristics), detection=VALUES(detection), biosecurity=VALUES(biosecurity),
 sort_order=VALUES(sort_order), is_active=VALUES(is_active);
`
	chars, det, bio, err := encodeSpecies(s)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, q,
		s.ID, s.CommonName, s.ScientificName, s.Abbreviation,
		chars, det, bio, s.Display.SortOrder, s.Display.IsActive,
	)
	return err
}

// List returns every configured species ordered for display.
func (r *SpeciesRepository) List(ctx context.Context) ([]domain.Species, error) {
	const q = `
SELECT id, common_name, scientific_name, abbreviation, characteristics, detection, biosecurity, sort_order, is_active
FROM target_species
ORDER BY sort_order ASC, id ASC;
`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Species
	for rows.Next() {
		var s domain.Species
		var chars, det, bio []byte
		if err := rows.Scan(
			&s.ID, &s.CommonName, &s.ScientificName, &s.Abbreviation,
			&chars, &det, &bio, &s.Display.SortOrder, &s.Display.IsActive,
		); err != nil {
			return nil, err
		}
		if err := decodeSpecies(&s, chars, det, bio); err != nil {
			return nil, fmt.Errorf("species %s: %w", s.ID, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func encodeSpecies(s *domain.Species) (string, string, string, error) {
	chars, err := json.Marshal(s.Characteristics)
	if err != nil {
		return "", "", "", err
	}
	det, err := json.Marshal(s.Detection)
	if err != nil {
		return "", "", "", err
	}
	bio, err := json.Marshal(s.Biosecurity)
	if err != nil {
		return "", "", "", err
	}
	return string(chars), string(det), string(bio), nil
}

func decodeSpecies(s *domain.Species, chars, det, bio []byte) error {
	for _, part := range []struct {
		raw []byte
		dst any
	}{
		{chars, &s.Characteristics},
		{det, &s.Detection},
		{bio, &s.Biosecurity},
	} {
		if len(part.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(part.raw, part.dst); err != nil {
			return err
		}
	}
	return nil
}
