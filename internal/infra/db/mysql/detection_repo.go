package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	domain "github.com/bryanwahyu/pestwatch/internal/domain/detection"
)

const maxRecent = 100

type DetectionRepository struct {
	db *sql.DB
}

func NewDetectionRepository(db *sql.DB) *DetectionRepository {
	return &DetectionRepository{db: db}
}

const detectionColumns = `id, storage_key, species, confidence, is_threat, threat_level, likelihood,
       latitude, longitude, ai_response, analysis_features, reference_images,
       session_id, user_agent, privacy_consent, location_consent,
       image_width, image_height, failed, error_kind, submitted_at`

// Create inserts the primary record. Records are never overwritten.
func (r *DetectionRepository) Create(ctx context.Context, d *domain.Detection) error {
	const q = `
INSERT INTO detections
(id, storage_key, species, confidence, is_threat, threat_level, likelihood,
 latitude, longitude, ai_response, analysis_features, reference_images,
 session_id, user_agent, privacy_consent, location_consent,
 image_width, image_height, failed, error_kind, submitted_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?);
`
	features, err := jsonOrEmpty(d.AnalysisFeatures)
	if err != nil {
		return fmt.Errorf("encode features: %w", err)
	}
	refs, err := jsonOrEmpty(d.ReferenceImages)
	if err != nil {
		return fmt.Errorf("encode reference images: %w", err)
	}
	lat, lng := nullableCoord(d.Coordinates)
	submitted := d.SubmittedAt
	if submitted.IsZero() {
		submitted = time.Now().UTC()
	}

	_, err = r.db.ExecContext(ctx, q,
		d.ID, d.StorageKey, stringOrDash(d.Species), d.Confidence, d.IsThreat, string(d.ThreatLevel), string(d.Likelihood),
		lat, lng, d.AIResponse, features, refs,
		d.SessionID, d.UserAgent, d.PrivacyConsentGiven, d.LocationSharingConsent,
		d.ImageWidth, d.ImageHeight, d.Failed, d.ErrorKind, submitted,
	)
	return err
}

// PatchReferenceImages overwrites the whole reference_images column.
func (r *DetectionRepository) PatchReferenceImages(ctx context.Context, id domain.ID, images []domain.ReferenceImage) error {
	const q = `UPDATE detections SET reference_images = ? WHERE id = ?;`
	refs, err := jsonOrEmpty(images)
	if err != nil {
		return fmt.Errorf("encode reference images: %w", err)
	}
	res, err := r.db.ExecContext(ctx, q, refs, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return nil
}

// Get by ID
func (r *DetectionRepository) Get(ctx context.Context, id domain.ID) (*domain.Detection, error) {
	q := `SELECT ` + detectionColumns + ` FROM detections WHERE id=? LIMIT 1;`
	d, err := scanDetection(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return d, err
}

// Recent detections, newest first
func (r *DetectionRepository) Recent(ctx context.Context, limit int) ([]*domain.Detection, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > maxRecent {
		limit = maxRecent
	}
	q := `SELECT ` + detectionColumns + ` FROM detections ORDER BY submitted_at DESC, id DESC LIMIT ?;`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Detection
	for rows.Next() {
		d, err := scanDetection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDetection(row rowScanner) (*domain.Detection, error) {
	var (
		d              domain.Detection
		threat         string
		likelihood     string
		lat, lng       sql.NullFloat64
		features, refs sql.NullString
	)
	if err := row.Scan(
		&d.ID, &d.StorageKey, &d.Species, &d.Confidence, &d.IsThreat, &threat, &likelihood,
		&lat, &lng, &d.AIResponse, &features, &refs,
		&d.SessionID, &d.UserAgent, &d.PrivacyConsentGiven, &d.LocationSharingConsent,
		&d.ImageWidth, &d.ImageHeight, &d.Failed, &d.ErrorKind, &d.SubmittedAt,
	); err != nil {
		return nil, err
	}
	d.ThreatLevel = domain.ThreatLevel(threat)
	d.Likelihood = domain.Likelihood(likelihood)
	if lat.Valid && lng.Valid {
		d.Coordinates = &domain.Coordinates{Latitude: lat.Float64, Longitude: lng.Float64}
	}
	if err := decodeList(features, &d.AnalysisFeatures); err != nil {
		return nil, fmt.Errorf("decode features: %w", err)
	}
	if err := decodeList(refs, &d.ReferenceImages); err != nil {
		return nil, fmt.Errorf("decode reference images: %w", err)
	}
	return &d, nil
}
