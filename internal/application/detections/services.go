package detections

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bryanwahyu/pestwatch/internal/application"
	domain "github.com/bryanwahyu/pestwatch/internal/domain/detection"
	"github.com/bryanwahyu/pestwatch/internal/domain/pipelineerrors"
	"github.com/bryanwahyu/pestwatch/internal/domain/sanitize"
	"github.com/bryanwahyu/pestwatch/internal/domain/species"
	"github.com/bryanwahyu/pestwatch/internal/logger"
)

const (
	DefaultClassificationTimeout = 30 * time.Second
	DefaultEnrichmentTimeout     = 10 * time.Second

	defaultRecent = 20
	maxRecent     = 100
)

// Options holds the pipeline bounds. Zero values fall back to the defaults.
type Options struct {
	ClassificationTimeout time.Duration
	EnrichmentTimeout     time.Duration
	MinImageBytes         int
	MaxImageBytes         int
	AllowedImageHosts     []string
}

// Service implements use-cases untuk Detection.
// Service is safe for concurrent use; enrichment runs on detached goroutines
// that Wait drains.
type Service struct {
	Repo       domain.Repository
	Errors     pipelineerrors.Repository
	Images     domain.ImageStore
	Classifier domain.Classifier
	Species    species.Source
	References domain.ReferenceFinder
	Clock      application.Clock
	Log        logger.Logger
	Metrics    Metrics
	Options    Options

	wg sync.WaitGroup
}

//
// ==== USE CASES ====
//

// Submission carries the caller metadata shared by both entry points.
type Submission struct {
	Mode            domain.Mode
	Coordinates     *domain.Coordinates
	SessionID       string
	UserAgent       string
	PrivacyConsent  bool
	LocationConsent bool
}

// SubmitCommand untuk foto yang baru diunggah
type SubmitCommand struct {
	Image []byte
	Submission
}

// StoredCommand untuk foto yang sudah ada di storage
type StoredCommand struct {
	StorageKey string
	Submission
}

// Result is what a submission produces. Analysis is nil for failure records.
type Result struct {
	Detection         *domain.Detection      `json:"detection"`
	Analysis          *domain.AnalysisResult `json:"result,omitempty"`
	ReportRecommended bool                   `json:"reportRecommended"`
}

// EnrichedDetection is a stored record plus a time-limited link to its photo.
type EnrichedDetection struct {
	*domain.Detection
	UploadedImageURL string `json:"uploadedImageUrl,omitempty"`
}

// Submit validates, stores and classifies a fresh upload, persists the record
// and schedules enrichment. Every failure still produces a stored record,
// returned together with the error.
func (s *Service) Submit(ctx context.Context, cmd SubmitCommand) (*Result, error) {
	rec := s.newRecord(cmd.Submission)
	log := s.log().With(logger.String("detection_id", string(rec.ID)))

	mimeType, err := domain.ValidateImage(cmd.Image, s.Options.MinImageBytes, s.Options.MaxImageBytes)
	if err != nil {
		return s.fail(ctx, log, rec, pipelineerrors.PhaseClassify, err)
	}

	key := storageKey(rec.SubmittedAt, rec.ID, mimeType)
	if err := s.Images.Put(ctx, key, cmd.Image, mimeType); err != nil {
		return s.fail(ctx, log, rec, pipelineerrors.PhaseStore, err)
	}
	rec.StorageKey = key

	return s.analyze(ctx, log, rec, cmd.Image, mimeType, cmd.Mode)
}

// AnalyzeStored runs the pipeline over an image that is already in storage.
func (s *Service) AnalyzeStored(ctx context.Context, cmd StoredCommand) (*Result, error) {
	rec := s.newRecord(cmd.Submission)
	rec.StorageKey = sanitize.String(cmd.StorageKey, sanitize.MaxURL)
	log := s.log().With(logger.String("detection_id", string(rec.ID)), logger.String("storage_key", rec.StorageKey))

	if rec.StorageKey == "" {
		return s.fail(ctx, log, rec, pipelineerrors.PhaseStore, fmt.Errorf("%w: storage key is empty", domain.ErrNotFound))
	}
	data, err := s.Images.Get(ctx, rec.StorageKey)
	if err != nil {
		return s.fail(ctx, log, rec, pipelineerrors.PhaseStore, err)
	}
	mimeType, err := domain.ValidateImage(data, s.Options.MinImageBytes, s.Options.MaxImageBytes)
	if err != nil {
		return s.fail(ctx, log, rec, pipelineerrors.PhaseClassify, err)
	}
	return s.analyze(ctx, log, rec, data, mimeType, cmd.Mode)
}

func (s *Service) analyze(ctx context.Context, log logger.Logger, rec *domain.Detection, image []byte, mimeType string, mode domain.Mode) (*Result, error) {
	if w, h, ok := domain.ImageDimensions(image); ok {
		rec.ImageWidth, rec.ImageHeight = w, h
	}
	mode = domain.ParseMode(string(mode))

	var list []species.Species
	if mode == domain.ModeBiosecurity {
		all, err := s.Species.List(ctx)
		if err != nil {
			return s.fail(ctx, log, rec, pipelineerrors.PhaseClassify, fmt.Errorf("%w: load species: %v", domain.ErrConfiguration, err))
		}
		list = all
	}
	req := domain.NewClassificationRequest(image, mimeType, mode, list)
	if mode == domain.ModeBiosecurity && len(req.Species) == 0 {
		return s.fail(ctx, log, rec, pipelineerrors.PhaseClassify, domain.ErrNoTargetSpecies)
	}

	text, err := s.classify(ctx, req)
	if err != nil {
		return s.fail(ctx, log, rec, pipelineerrors.PhaseClassify, err)
	}
	raw, err := domain.ParsePayload(text)
	if err != nil {
		log.Warn("model reply could not be parsed", logger.String("reply_preview", domain.Preview(text, 300)))
		return s.fail(ctx, log, rec, pipelineerrors.PhaseClassify, err)
	}

	res := domain.Normalize(raw, domain.LikelihoodFrom(raw, mode))
	applyResult(rec, res)

	// the model already answered; a client hang-up must not lose the record
	wctx := context.WithoutCancel(ctx)
	if err := s.Repo.Create(wctx, rec); err != nil {
		log.Error("create detection failed", logger.Error(err))
		s.recordError(wctx, log, rec.ID, pipelineerrors.PhaseStore, err)
		s.metrics().CountDetection("store_error")
		return nil, fmt.Errorf("create detection: %w", err)
	}
	s.metrics().CountDetection(outcomeFor(res))
	log.Info("detection recorded",
		logger.String("species", rec.Species),
		logger.String("likelihood", string(rec.Likelihood)),
		logger.Float64("confidence", rec.Confidence),
	)

	s.startEnrichment(ctx, rec.ID, domain.ReferenceQuery{
		Species:        res.Species,
		ScientificName: res.ScientificName,
		CommonName:     res.CommonName,
	})

	return &Result{Detection: rec, Analysis: &res, ReportRecommended: res.ReportRecommended()}, nil
}

// classify races the model call against the classification deadline.
func (s *Service) classify(ctx context.Context, req domain.ClassificationRequest) (string, error) {
	timeout := s.Options.ClassificationTimeout
	if timeout <= 0 {
		timeout = DefaultClassificationTimeout
	}
	start := time.Now()
	text, err := race(ctx, timeout, func(ctx context.Context) (string, error) {
		return s.Classifier.Classify(ctx, req)
	})
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		s.metrics().ObserveClassification(time.Since(start), "timeout")
		return "", fmt.Errorf("%w after %s", domain.ErrClassificationTimeout, timeout)
	case err != nil:
		s.metrics().ObserveClassification(time.Since(start), "error")
		return "", err
	}
	s.metrics().ObserveClassification(time.Since(start), "ok")
	return text, nil
}

// fail stores the failure record and returns it with err.
func (s *Service) fail(ctx context.Context, log logger.Logger, rec *domain.Detection, phase pipelineerrors.Phase, err error) (*Result, error) {
	kind := domain.Kind(err)
	rec.Species = domain.FailedSpecies
	rec.Confidence = 0
	rec.IsThreat = false
	rec.ThreatLevel = domain.ThreatSafe
	rec.Likelihood = ""
	rec.AIResponse = sanitize.String("Error: "+err.Error(), sanitize.MaxAIResponse)
	rec.AnalysisFeatures = []string{}
	rec.Failed = true
	rec.ErrorKind = kind

	log.Warn("detection failed", logger.String("kind", kind), logger.Error(err))
	s.metrics().CountDetection("failed")

	// the record must land even when the caller has gone away
	wctx := context.WithoutCancel(ctx)
	if cerr := s.Repo.Create(wctx, rec); cerr != nil {
		log.Error("create failure record failed", logger.Error(cerr))
		s.recordError(wctx, log, "", pipelineerrors.PhaseStore, cerr)
		return nil, errors.Join(err, fmt.Errorf("create failure record: %w", cerr))
	}
	s.recordError(wctx, log, rec.ID, phase, err)
	return &Result{Detection: rec}, err
}

func (s *Service) recordError(ctx context.Context, log logger.Logger, id domain.ID, phase pipelineerrors.Phase, err error) {
	if s.Errors == nil {
		return
	}
	e := &pipelineerrors.PipelineError{
		DetectionID: string(id),
		Phase:       phase,
		Kind:        domain.Kind(err),
		Message:     sanitize.String(err.Error(), 1000),
		CreatedAt:   s.now(),
	}
	if serr := s.Errors.Save(ctx, e); serr != nil {
		log.Warn("save pipeline error failed", logger.Error(serr))
	}
}

// Get ambil 1 detection by id, plus a presigned link to the uploaded photo.
func (s *Service) Get(ctx context.Context, id domain.ID) (*EnrichedDetection, error) {
	d, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !d.LocationSharingConsent {
		d.Coordinates = nil
	}
	out := &EnrichedDetection{Detection: d}
	if d.StorageKey != "" {
		u, err := s.Images.URL(ctx, d.StorageKey)
		if err != nil {
			s.log().Warn("presign uploaded image failed", logger.String("detection_id", string(id)), logger.Error(err))
		} else {
			out.UploadedImageURL = u
		}
	}
	return out, nil
}

// Recent ambil N detection terakhir for the public feed. Model output and
// reference images are left out.
func (s *Service) Recent(ctx context.Context, limit int) ([]*domain.Detection, error) {
	if limit <= 0 {
		limit = defaultRecent
	}
	if limit > maxRecent {
		limit = maxRecent
	}
	list, err := s.Repo.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	for _, d := range list {
		d.AIResponse = ""
		d.ReferenceImages = nil
		d.SessionID = ""
		if !d.LocationSharingConsent {
			d.Coordinates = nil
		}
	}
	return list, nil
}

// ActiveSpecies returns the target species currently screened for.
func (s *Service) ActiveSpecies(ctx context.Context) ([]species.Species, error) {
	list, err := s.Species.List(ctx)
	if err != nil {
		return nil, err
	}
	return species.Active(list), nil
}

// PipelineErrors lists the logged errors of one detection, newest first.
func (s *Service) PipelineErrors(ctx context.Context, id domain.ID, limit int) ([]*pipelineerrors.PipelineError, error) {
	if s.Errors == nil {
		return nil, nil
	}
	return s.Errors.ListByDetection(ctx, string(id), limit)
}

// Wait blocks until every in-flight enrichment has finished.
func (s *Service) Wait() { s.wg.Wait() }

// helper

func (s *Service) newRecord(sub Submission) *domain.Detection {
	rec := &domain.Detection{
		ID:                     domain.ID(uuid.NewString()),
		SessionID:              sanitize.String(sub.SessionID, 100),
		UserAgent:              sanitize.String(sub.UserAgent, 300),
		PrivacyConsentGiven:    sub.PrivacyConsent,
		LocationSharingConsent: sub.LocationConsent,
		AnalysisFeatures:       []string{},
		SubmittedAt:            s.now(),
	}
	if sub.LocationConsent && sub.Coordinates != nil {
		rec.Coordinates = &domain.Coordinates{
			Latitude:  sanitize.RoundCoordinate(sub.Coordinates.Latitude),
			Longitude: sanitize.RoundCoordinate(sub.Coordinates.Longitude),
		}
	}
	return rec
}

func applyResult(rec *domain.Detection, res domain.AnalysisResult) {
	rec.Species = sanitize.SpeciesName(res.Species)
	if rec.Species == "" {
		rec.Species = "Unknown"
	}
	rec.Confidence = min(max(res.Confidence, 0), 1)
	rec.IsThreat = res.IsThreat
	rec.ThreatLevel = res.ThreatLevel
	rec.Likelihood = res.Likelihood
	rec.AnalysisFeatures = sanitize.Features(res.MatchingFeatures)
	body, _ := json.Marshal(res)
	rec.AIResponse = sanitize.String(string(body), sanitize.MaxAIResponse)
}

func storageKey(at time.Time, id domain.ID, mimeType string) string {
	return fmt.Sprintf("detections/%04d/%02d/%s.%s", at.Year(), int(at.Month()), id, domain.Extension(mimeType))
}

func outcomeFor(res domain.AnalysisResult) string {
	if res.Likelihood != "" {
		return string(res.Likelihood)
	}
	return string(res.ThreatLevel)
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now()
}

func (s *Service) log() logger.Logger {
	if s.Log == nil {
		return logger.NewNop()
	}
	return s.Log
}

func (s *Service) metrics() Metrics {
	if s.Metrics == nil {
		return nopMetrics{}
	}
	return s.Metrics
}
