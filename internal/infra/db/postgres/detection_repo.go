package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	domain "github.com/bryanwahyu/pestwatch/internal/domain/detection"
)

const maxRecent = 100

type DetectionRepository struct{ db *sql.DB }

func NewDetectionRepository(db *sql.DB) *DetectionRepository { return &DetectionRepository{db: db} }

const detectionColumns = `id, storage_key, species, confidence, is_threat, threat_level, likelihood,
       latitude, longitude, ai_response, analysis_features, reference_images,
       session_id, user_agent, privacy_consent, location_consent,
       image_width, image_height, failed, error_kind, submitted_at`

func (r *DetectionRepository) Create(ctx context.Context, d *domain.Detection) error {
	const q = `
INSERT INTO detections
(id, storage_key, species, confidence, is_threat, threat_level, likelihood,
 latitude, longitude, ai_response, analysis_features, reference_images,
 session_id, user_agent, privacy_consent, location_consent,
 image_width, image_height, failed, error_kind, submitted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,
        $8,$9,$10,$11,$12,
        $13,$14,$15,$16,
        $17,$18,$19,$20,$21);`

	refs, err := referenceJSON(d.ReferenceImages)
	if err != nil {
		return err
	}
	var lat, lng sql.NullFloat64
	if d.Coordinates != nil {
		lat = sql.NullFloat64{Float64: d.Coordinates.Latitude, Valid: true}
		lng = sql.NullFloat64{Float64: d.Coordinates.Longitude, Valid: true}
	}
	features := d.AnalysisFeatures
	if features == nil {
		features = []string{}
	}
	submitted := d.SubmittedAt
	if submitted.IsZero() {
		submitted = time.Now().UTC()
	}

	_, err = r.db.ExecContext(ctx, q,
		d.ID, d.StorageKey, d.Species, d.Confidence, d.IsThreat, string(d.ThreatLevel), string(d.Likelihood),
		lat, lng, d.AIResponse, pq.Array(features), refs,
		d.SessionID, d.UserAgent, d.PrivacyConsentGiven, d.LocationSharingConsent,
		d.ImageWidth, d.ImageHeight, d.Failed, d.ErrorKind, submitted,
	)
	return err
}

func (r *DetectionRepository) PatchReferenceImages(ctx context.Context, id domain.ID, images []domain.ReferenceImage) error {
	const q = `UPDATE detections SET reference_images = $1::jsonb WHERE id = $2;`
	refs, err := referenceJSON(images)
	if err != nil {
		return err
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

func (r *DetectionRepository) Get(ctx context.Context, id domain.ID) (*domain.Detection, error) {
	q := `SELECT ` + detectionColumns + ` FROM detections WHERE id = $1;`
	d, err := scanDetection(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return d, err
}

func (r *DetectionRepository) Recent(ctx context.Context, limit int) ([]*domain.Detection, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > maxRecent {
		limit = maxRecent
	}
	q := `SELECT ` + detectionColumns + ` FROM detections ORDER BY submitted_at DESC, id DESC LIMIT $1;`
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

func referenceJSON(images []domain.ReferenceImage) (string, error) {
	if images == nil {
		images = []domain.ReferenceImage{}
	}
	b, err := json.Marshal(images)
	if err != nil {
		return "", fmt.Errorf("encode reference images: %w", err)
	}
	return string(b), nil
}

func scanDetection(row interface{ Scan(...any) error }) (*domain.Detection, error) {
	var (
		d          domain.Detection
		threat     string
		likelihood string
		lat, lng   sql.NullFloat64
		features   pq.StringArray
		refs       []byte
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
	d.AnalysisFeatures = []string(features)
	if len(strings.TrimSpace(string(refs))) > 0 {
		if err := json.Unmarshal(refs, &d.ReferenceImages); err != nil {
			return nil, fmt.Errorf("decode reference images: %w", err)
		}
	}
	return &d, nil
}
