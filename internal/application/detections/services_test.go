package detections_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/pestwatch/internal/application"
	"github.com/bryanwahyu/pestwatch/internal/application/detections"
	"github.com/bryanwahyu/pestwatch/internal/domain/detection"
	"github.com/bryanwahyu/pestwatch/internal/domain/pipelineerrors"
	"github.com/bryanwahyu/pestwatch/internal/domain/species"
	"github.com/bryanwahyu/pestwatch/internal/infra/db/memory"
)

const alertReply = `{"qflyLikelihood":"ALERT","confidence":0.92,"species":"Bactrocera tryoni","scientificName":"Bactrocera tryoni","commonName":"Queensland fruit fly","reasoning":"wing pattern","threatLevel":"safe","isThreat":false,"matchingFeatures":["yellow scutellum","wing band"]}`

var submittedAt = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

// --- fakes ---

type fakeClassifier struct {
	calls atomic.Int32
	reply string
	err   error
	delay time.Duration
}

func (f *fakeClassifier) Classify(ctx context.Context, _ detection.ClassificationRequest) (string, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, f.err
}

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newFakeStore() *fakeStore { return &fakeStore{objects: map[string][]byte{}} }

func (s *fakeStore) Put(_ context.Context, key string, data []byte, _ string) error {
	if s.putErr != nil {
		return s.putErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return nil
}

func (s *fakeStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[key]
	if !ok {
		return nil, detection.ErrNotFound
	}
	return b, nil
}

func (s *fakeStore) URL(_ context.Context, key string) (string, error) {
	return "https://minio.local/bucket/" + key + "?X-Amz-Expires=3600", nil
}

func (s *fakeStore) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for k := range s.objects {
		out = append(out, k)
	}
	return out
}

type fakeFinder struct {
	calls  atomic.Int32
	images []detection.ReferenceImage
	delay  time.Duration
	panics bool
	done   chan struct{}
}

func (f *fakeFinder) Find(_ context.Context, _ detection.ReferenceQuery) []detection.ReferenceImage {
	f.calls.Add(1)
	if f.done != nil {
		defer close(f.done)
	}
	if f.panics {
		panic("catalog exploded")
	}
	if f.delay > 0 {
		// ignores cancellation on purpose to model a late result
		time.Sleep(f.delay)
	}
	return f.images
}

type fakeMetrics struct {
	mu           sync.Mutex
	detections   []string
	enrichment   []string
	onClassified func()
}

func (m *fakeMetrics) ObserveClassification(time.Duration, string) {
	if m.onClassified != nil {
		m.onClassified()
	}
}

func (m *fakeMetrics) CountDetection(o string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detections = append(m.detections, o)
}

func (m *fakeMetrics) CountEnrichment(o string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enrichment = append(m.enrichment, o)
}

type harness struct {
	svc        *detections.Service
	repo       *memory.DetectionRepository
	errs       *memory.PipelineErrorRepository
	store      *fakeStore
	classifier *fakeClassifier
	finder     *fakeFinder
	metrics    *fakeMetrics
}

func qfly() species.Species {
	return species.Species{
		ID:             "qfly",
		CommonName:     "Queensland fruit fly",
		ScientificName: "Bactrocera tryoni",
		Detection:      species.Detection{AlertThreshold: 3, MatchingCriteria: []string{"yellow scutellum"}},
		Display:        species.Display{SortOrder: 1, IsActive: true},
	}
}

func newHarness(t *testing.T, seed ...species.Species) *harness {
	t.Helper()
	if seed == nil {
		seed = []species.Species{qfly()}
	}
	h := &harness{
		repo:       memory.NewDetectionRepository(),
		errs:       memory.NewPipelineErrorRepository(),
		store:      newFakeStore(),
		classifier: &fakeClassifier{reply: alertReply},
		finder: &fakeFinder{images: []detection.ReferenceImage{
			{URL: "https://inaturalist-open-data.s3.amazonaws.com/photos/1/medium.jpg", Description: "bad host", Source: "iNaturalist"},
			{URL: "https://static.inaturalist.org/photos/2/medium.jpg", Description: "Bactrocera tryoni reference photo", Source: "iNaturalist"},
		}},
		metrics: &fakeMetrics{},
	}
	h.svc = &detections.Service{
		Repo:       h.repo,
		Errors:     h.errs,
		Images:     h.store,
		Classifier: h.classifier,
		Species:    memory.NewSpeciesRepository(seed...),
		References: h.finder,
		Clock:      application.FixedClock(submittedAt),
		Metrics:    h.metrics,
		Options: detections.Options{
			ClassificationTimeout: time.Second,
			EnrichmentTimeout:     time.Second,
		},
	}
	t.Cleanup(h.svc.Wait)
	return h
}

func jpeg(size int) []byte {
	b := make([]byte, size)
	copy(b, []byte{0xFF, 0xD8, 0xFF, 0xE0})
	return b
}

// --- scenarios ---

func TestSubmit_ScenarioA_AlertIsStoredAndEnriched(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	res, err := h.svc.Submit(context.Background(), detections.SubmitCommand{
		Image:      jpeg(5 * 1024),
		Submission: detections.Submission{Mode: detection.ModeBiosecurity, PrivacyConsent: true},
	})
	require.NoError(t, err)
	require.NotNil(t, res.Analysis)

	assert.Equal(t, detection.ThreatHigh, res.Analysis.ThreatLevel)
	assert.True(t, res.Analysis.IsThreat)
	assert.InDelta(t, 0.92, res.Analysis.Confidence, 1e-9)
	assert.Len(t, res.Analysis.MatchingFeatures, 2)
	assert.True(t, res.ReportRecommended)
	assert.Equal(t, int32(1), h.classifier.calls.Load())

	id := res.Detection.ID
	key := "detections/2026/03/" + string(id) + ".jpg"
	assert.Equal(t, key, res.Detection.StorageKey)
	assert.Equal(t, []string{key}, h.store.keys())

	h.svc.Wait()
	stored, err := h.repo.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Bactrocera tryoni", stored.Species)
	assert.Equal(t, detection.LikelihoodAlert, stored.Likelihood)
	assert.Equal(t, []string{"yellow scutellum", "wing band"}, stored.AnalysisFeatures)
	assert.False(t, stored.Failed)

	var persisted detection.AnalysisResult
	require.NoError(t, json.Unmarshal([]byte(stored.AIResponse), &persisted))
	assert.Equal(t, detection.ThreatHigh, persisted.ThreatLevel)

	require.Len(t, stored.ReferenceImages, 1, "disallowed hosts are dropped before the patch")
	assert.Equal(t, "https://static.inaturalist.org/photos/2/medium.jpg", stored.ReferenceImages[0].URL)
	assert.Equal(t, 1, h.repo.PatchCount(id))
	assert.Equal(t, []string{"patched"}, h.metrics.enrichment)
	assert.Equal(t, []string{"ALERT"}, h.metrics.detections)
}

func TestSubmit_ScenarioB_FencedReplyMatchesPlain(t *testing.T) {
	t.Parallel()

	plain := newHarness(t)
	fenced := newHarness(t)
	fenced.classifier.reply = "Here you go:\n```json\n" + alertReply + "\n```"

	a, err := plain.svc.Submit(context.Background(), detections.SubmitCommand{Image: jpeg(5 * 1024)})
	require.NoError(t, err)
	b, err := fenced.svc.Submit(context.Background(), detections.SubmitCommand{Image: jpeg(5 * 1024)})
	require.NoError(t, err)

	assert.Equal(t, *a.Analysis, *b.Analysis)
}

func TestSubmit_ScenarioC_TinyBufferNeverReachesModel(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	res, err := h.svc.Submit(context.Background(), detections.SubmitCommand{Image: jpeg(50)})
	require.ErrorIs(t, err, detection.ErrInvalidImageFormat)
	require.NotNil(t, res)

	assert.Equal(t, int32(0), h.classifier.calls.Load())
	assert.Empty(t, h.store.keys(), "rejected bytes are not uploaded")

	stored, gerr := h.repo.Get(context.Background(), res.Detection.ID)
	require.NoError(t, gerr)
	assert.Equal(t, detection.FailedSpecies, stored.Species)
	assert.Equal(t, "InvalidImageFormat", stored.ErrorKind)
	assert.True(t, strings.HasPrefix(stored.AIResponse, "Error: "))
	assert.Empty(t, stored.StorageKey)

	logged, lerr := h.errs.ListByDetection(context.Background(), string(stored.ID), 10)
	require.NoError(t, lerr)
	require.Len(t, logged, 1)
	assert.Equal(t, pipelineerrors.PhaseClassify, logged[0].Phase)
}

func TestSubmit_ScenarioD_TimeoutStoresFailureWithoutEnrichment(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.classifier.delay = time.Second
	h.svc.Options.ClassificationTimeout = 20 * time.Millisecond

	res, err := h.svc.Submit(context.Background(), detections.SubmitCommand{Image: jpeg(5 * 1024)})
	require.ErrorIs(t, err, detection.ErrClassificationTimeout)
	require.NotNil(t, res)
	assert.Nil(t, res.Analysis)

	h.svc.Wait()
	stored, gerr := h.repo.Get(context.Background(), res.Detection.ID)
	require.NoError(t, gerr)
	assert.Equal(t, detection.FailedSpecies, stored.Species)
	assert.Equal(t, 0.0, stored.Confidence)
	assert.Equal(t, detection.ThreatSafe, stored.ThreatLevel)
	assert.False(t, stored.IsThreat)
	assert.Equal(t, "ClassificationTimeout", stored.ErrorKind)
	assert.Equal(t, int32(0), h.finder.calls.Load())
	assert.Equal(t, 0, h.repo.PatchCount(stored.ID))
}

func TestSubmit_LateAggregatorNeverPatches(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.finder.delay = 150 * time.Millisecond
	h.finder.done = make(chan struct{})
	h.svc.Options.EnrichmentTimeout = 20 * time.Millisecond

	res, err := h.svc.Submit(context.Background(), detections.SubmitCommand{Image: jpeg(5 * 1024)})
	require.NoError(t, err)

	h.svc.Wait()
	<-h.finder.done
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 0, h.repo.PatchCount(res.Detection.ID))
	assert.Equal(t, []string{"timeout"}, h.metrics.enrichment)

	logged, lerr := h.errs.ListByDetection(context.Background(), string(res.Detection.ID), 10)
	require.NoError(t, lerr)
	require.Len(t, logged, 1)
	assert.Equal(t, "ReferenceImageTimeout", logged[0].Kind)
}

func TestSubmit_EnrichmentPanicIsContained(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.finder.panics = true

	res, err := h.svc.Submit(context.Background(), detections.SubmitCommand{Image: jpeg(5 * 1024)})
	require.NoError(t, err)

	h.svc.Wait()
	assert.Equal(t, 0, h.repo.PatchCount(res.Detection.ID))
	assert.Equal(t, []string{"error"}, h.metrics.enrichment)
}

func TestSubmit_NoSurvivingImagesSkipsPatch(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.finder.images = []detection.ReferenceImage{{URL: "https://notinaturalist.org/a.jpg"}}

	res, err := h.svc.Submit(context.Background(), detections.SubmitCommand{Image: jpeg(5 * 1024)})
	require.NoError(t, err)

	h.svc.Wait()
	assert.Equal(t, int32(1), h.finder.calls.Load())
	assert.Equal(t, 0, h.repo.PatchCount(res.Detection.ID))
}

func TestSubmit_NoActiveSpecies(t *testing.T) {
	t.Parallel()
	inactive := qfly()
	inactive.Display.IsActive = false
	h := newHarness(t, inactive)

	res, err := h.svc.Submit(context.Background(), detections.SubmitCommand{Image: jpeg(5 * 1024)})
	require.ErrorIs(t, err, detection.ErrNoTargetSpecies)
	require.ErrorIs(t, err, detection.ErrConfiguration)
	assert.Equal(t, "NoTargetSpeciesConfigured", res.Detection.ErrorKind)
	assert.Equal(t, int32(0), h.classifier.calls.Load())
}

func TestSubmit_DefaultModeIsBiosecurity(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.classifier.reply = `{"species":"Bactrocera tryoni","commonName":"Queensland fruit fly","confidence":0.4,"reasoning":"blurry","threatLevel":"safe","isThreat":false}`

	res, err := h.svc.Submit(context.Background(), detections.SubmitCommand{Image: jpeg(5 * 1024)})
	require.NoError(t, err)
	assert.Equal(t, detection.LikelihoodUncertain, res.Analysis.Likelihood)
	assert.Equal(t, detection.ThreatMedium, res.Analysis.ThreatLevel)
	assert.True(t, res.Analysis.IsThreat)
	assert.True(t, res.ReportRecommended)

	stored, err := h.repo.Get(context.Background(), res.Detection.ID)
	require.NoError(t, err)
	assert.Equal(t, detection.LikelihoodUncertain, stored.Likelihood)
}

// cancelAwareRepo refuses writes on a cancelled context, as SQL drivers do.
type cancelAwareRepo struct {
	*memory.DetectionRepository
}

func (r cancelAwareRepo) Create(ctx context.Context, d *detection.Detection) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.DetectionRepository.Create(ctx, d)
}

func TestSubmit_ClientGoneAfterClassificationStillStores(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.svc.Repo = cancelAwareRepo{h.repo}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.metrics.onClassified = cancel

	res, err := h.svc.Submit(ctx, detections.SubmitCommand{Image: jpeg(5 * 1024)})
	require.NoError(t, err)
	require.Error(t, ctx.Err())

	stored, err := h.repo.Get(context.Background(), res.Detection.ID)
	require.NoError(t, err)
	assert.Equal(t, detection.LikelihoodAlert, stored.Likelihood)
	assert.False(t, stored.Failed)
}

func TestSubmit_GeneralModeNeedsNoSpecies(t *testing.T) {
	t.Parallel()
	h := newHarness(t, species.Species{ID: "off", Display: species.Display{IsActive: false}})
	h.classifier.reply = `{"species":"Apis mellifera","commonName":"Honey bee","confidence":0.8,"reasoning":"bee","threatLevel":"low","isThreat":false}`

	res, err := h.svc.Submit(context.Background(), detections.SubmitCommand{
		Image:      jpeg(5 * 1024),
		Submission: detections.Submission{Mode: detection.ModeGeneral},
	})
	require.NoError(t, err)
	assert.Equal(t, detection.Likelihood(""), res.Analysis.Likelihood)
	assert.Equal(t, detection.ThreatLow, res.Analysis.ThreatLevel)
	assert.False(t, res.ReportRecommended)
}

func TestSubmit_MalformedReply(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.classifier.reply = "I cannot identify this insect."

	res, err := h.svc.Submit(context.Background(), detections.SubmitCommand{Image: jpeg(5 * 1024)})
	require.ErrorIs(t, err, detection.ErrMalformedModelOutput)
	assert.Equal(t, "MalformedModelOutput", res.Detection.ErrorKind)
	assert.True(t, res.Detection.Failed)

	h.svc.Wait()
	assert.Equal(t, int32(0), h.finder.calls.Load())
}

func TestSubmit_StorageFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.store.putErr = errors.Join(detection.ErrStorage, errors.New("connection refused"))

	res, err := h.svc.Submit(context.Background(), detections.SubmitCommand{Image: jpeg(5 * 1024)})
	require.ErrorIs(t, err, detection.ErrStorage)
	assert.Equal(t, "StorageError", res.Detection.ErrorKind)
	assert.Equal(t, int32(0), h.classifier.calls.Load())
}

func TestSubmit_CoordinatesNeedConsent(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	coords := &detection.Coordinates{Latitude: -36.884512, Longitude: 174.734981}

	without, err := h.svc.Submit(context.Background(), detections.SubmitCommand{
		Image:      jpeg(5 * 1024),
		Submission: detections.Submission{Coordinates: coords},
	})
	require.NoError(t, err)
	assert.Nil(t, without.Detection.Coordinates)

	with, err := h.svc.Submit(context.Background(), detections.SubmitCommand{
		Image:      jpeg(5 * 1024),
		Submission: detections.Submission{Coordinates: coords, LocationConsent: true},
	})
	require.NoError(t, err)
	require.NotNil(t, with.Detection.Coordinates)
	assert.Equal(t, -36.885, with.Detection.Coordinates.Latitude)
	assert.Equal(t, 174.735, with.Detection.Coordinates.Longitude)
}

func TestAnalyzeStored(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	require.NoError(t, h.store.Put(context.Background(), "uploads/a.jpg", jpeg(2048), detection.MIMEJPEG))

	res, err := h.svc.AnalyzeStored(context.Background(), detections.StoredCommand{StorageKey: "uploads/a.jpg"})
	require.NoError(t, err)
	assert.Equal(t, "uploads/a.jpg", res.Detection.StorageKey)
	assert.Equal(t, detection.ThreatHigh, res.Detection.ThreatLevel)

	missing, err := h.svc.AnalyzeStored(context.Background(), detections.StoredCommand{StorageKey: "uploads/none.jpg"})
	require.ErrorIs(t, err, detection.ErrNotFound)
	assert.True(t, missing.Detection.Failed)
	assert.Equal(t, int32(1), h.classifier.calls.Load())
}

func TestGet_AddsUploadedImageURL(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	res, err := h.svc.Submit(context.Background(), detections.SubmitCommand{Image: jpeg(5 * 1024)})
	require.NoError(t, err)
	h.svc.Wait()

	got, err := h.svc.Get(context.Background(), res.Detection.ID)
	require.NoError(t, err)
	assert.Contains(t, got.UploadedImageURL, res.Detection.StorageKey)
	assert.Len(t, got.ReferenceImages, 1)

	_, err = h.svc.Get(context.Background(), "unknown")
	assert.ErrorIs(t, err, detection.ErrNotFound)
}

func TestRecent_HidesPrivateFields(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	_, err := h.svc.Submit(context.Background(), detections.SubmitCommand{
		Image:      jpeg(5 * 1024),
		Submission: detections.Submission{SessionID: "sess-1"},
	})
	require.NoError(t, err)
	h.svc.Wait()

	list, err := h.svc.Recent(context.Background(), 500)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Empty(t, list[0].AIResponse)
	assert.Empty(t, list[0].SessionID)
	assert.Nil(t, list[0].ReferenceImages)
}

func TestActiveSpecies(t *testing.T) {
	t.Parallel()
	off := qfly()
	off.ID = "medfly"
	off.Display.IsActive = false
	h := newHarness(t, qfly(), off)

	list, err := h.svc.ActiveSpecies(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, species.ID("qfly"), list[0].ID)
}
