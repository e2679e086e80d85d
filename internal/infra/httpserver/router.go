package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	appdetections "github.com/bryanwahyu/pestwatch/internal/application/detections"
	domain "github.com/bryanwahyu/pestwatch/internal/domain/detection"
	"github.com/bryanwahyu/pestwatch/internal/logger"
	"github.com/bryanwahyu/pestwatch/internal/middleware"
)

const multipartMemory = 8 << 20

// Options configures the HTTP surface. Zero values disable the optional parts.
type Options struct {
	Log            logger.Logger
	Metrics        *middleware.Metrics
	Health         map[string]middleware.HealthChecker
	Ready          func() bool
	AllowedOrigins []string
	RateLimitRPM   int
	RateLimitBurst int
	MaxImageBytes  int
	// OperatorKeys enables the pipeline error log route when non-empty.
	OperatorKeys map[string]string
}

type Router struct {
	svc      *appdetections.Service
	maxBody  int64
	maxImage int
}

// badRequest marks malformed input that never reached the pipeline.
type badRequest struct{ msg string }

func (e badRequest) Error() string { return e.msg }

func badRequestf(format string, args ...any) error {
	return badRequest{msg: fmt.Sprintf(format, args...)}
}

func NewRouter(svc *appdetections.Service, opts Options) http.Handler {
	maxImage := opts.MaxImageBytes
	if maxImage <= 0 {
		maxImage = domain.MaxImageBytes
	}
	r := &Router{svc: svc, maxImage: maxImage, maxBody: int64(maxImage) + 1<<20}
	log := opts.Log
	if log == nil {
		log = logger.NewNop()
	}

	mux := chi.NewRouter()
	mux.Use(chimw.RequestID, chimw.RealIP)
	mux.Use(middleware.RequestLogger(log))
	mux.Use(chimw.Recoverer)
	if opts.Metrics != nil {
		mux.Use(opts.Metrics.Middleware)
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	mux.Get("/health", middleware.HealthHandler(opts.Health))
	mux.Get("/ready", middleware.ReadinessHandler(opts.Ready))
	mux.Get("/live", middleware.LivenessHandler)
	if opts.Metrics != nil {
		mux.Handle("/metrics", opts.Metrics.Handler())
	}

	mux.Route("/v1", func(rt chi.Router) {
		if opts.RateLimitRPM > 0 {
			rt.Use(middleware.RateLimitMiddleware(opts.RateLimitRPM, max(opts.RateLimitBurst, 1)))
		}
		rt.Post("/detections", r.wrap(r.handleSubmit))
		rt.Post("/detections/stored", r.wrap(r.handleSubmitStored))
		rt.Get("/detections", r.wrap(r.handleRecent))
		rt.Get("/detections/{id}", r.wrap(r.handleGet))
		if len(opts.OperatorKeys) > 0 {
			rt.With(middleware.OperatorKeyAuth(opts.OperatorKeys)).
				Get("/detections/{id}/errors", r.wrap(r.handleErrors))
		}
		rt.Get("/species", r.wrap(r.handleSpecies))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			status := statusFor(err)
			if status >= http.StatusInternalServerError {
				logger.FromContext(req.Context()).Error("request failed", logger.Error(err))
			}
			writeJSON(w, status, errorBody{Error: err.Error(), Kind: kindFor(err)})
		}
	}
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var br badRequest
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &br):
		return http.StatusBadRequest
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrInvalidImageFormat):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrClassificationTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrMalformedModelOutput):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrConfiguration):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrStorage):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func kindFor(err error) string {
	var br badRequest
	if errors.As(err, &br) {
		return "BadRequest"
	}
	return domain.Kind(err)
}

// POST /v1/detections (multipart: image, latitude, longitude, sessionId,
// mode, privacyConsent, locationConsent)
func (r *Router) handleSubmit(w http.ResponseWriter, req *http.Request) error {
	req.Body = http.MaxBytesReader(w, req.Body, r.maxBody)
	if err := req.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return badRequestf("invalid multipart body: %v", err)
	}
	defer req.MultipartForm.RemoveAll()

	file, _, err := req.FormFile("image")
	if err != nil {
		return badRequestf("image file is required")
	}
	defer file.Close()

	// one byte over the cap is enough for the validator to reject it
	data, err := io.ReadAll(io.LimitReader(file, int64(r.maxImage)+1))
	if err != nil {
		return badRequestf("read image: %v", err)
	}

	sub, err := submissionFromForm(req)
	if err != nil {
		return err
	}
	res, err := r.svc.Submit(req.Context(), appdetections.SubmitCommand{Image: data, Submission: sub})
	return writeResult(w, res, err)
}

// POST /v1/detections/stored
// Body: {"storageKey": "...", "mode": "...", "latitude": 0, ...}
func (r *Router) handleSubmitStored(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		StorageKey      string   `json:"storageKey"`
		Mode            string   `json:"mode"`
		SessionID       string   `json:"sessionId"`
		Latitude        *float64 `json:"latitude"`
		Longitude       *float64 `json:"longitude"`
		PrivacyConsent  bool     `json:"privacyConsent"`
		LocationConsent bool     `json:"locationConsent"`
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		return badRequestf("invalid JSON body: %v", err)
	}
	if err := middleware.ValidateStorageKey(body.StorageKey); err != nil {
		return badRequestf("%v", err)
	}

	sub := appdetections.Submission{
		Mode:            domain.ParseMode(body.Mode),
		SessionID:       body.SessionID,
		UserAgent:       req.UserAgent(),
		PrivacyConsent:  body.PrivacyConsent,
		LocationConsent: body.LocationConsent,
	}
	if body.Latitude != nil || body.Longitude != nil {
		if body.Latitude == nil || body.Longitude == nil {
			return badRequestf("latitude and longitude must be sent together")
		}
		coords, err := middleware.NewCoordinates(*body.Latitude, *body.Longitude)
		if err != nil {
			return badRequestf("%v", err)
		}
		sub.Coordinates = coords
	}

	res, err := r.svc.AnalyzeStored(req.Context(), appdetections.StoredCommand{StorageKey: body.StorageKey, Submission: sub})
	return writeResult(w, res, err)
}

// GET /v1/detections?limit=20
func (r *Router) handleRecent(w http.ResponseWriter, req *http.Request) error {
	limit := middleware.ValidateLimit(req.URL.Query().Get("limit"))
	list, err := r.svc.Recent(req.Context(), limit)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"detections": list, "count": len(list)})
	return nil
}

// GET /v1/detections/{id}
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateDetectionID(id); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	}
	d, err := r.svc.Get(req.Context(), domain.ID(id))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, d)
	return nil
}

// GET /v1/detections/{id}/errors?limit=
func (r *Router) handleErrors(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateDetectionID(id); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	}
	list, err := r.svc.PipelineErrors(req.Context(), domain.ID(id), middleware.ValidateLimit(req.URL.Query().Get("limit")))
	if err != nil {
		return err
	}
	logger.FromContext(req.Context()).Debug("pipeline errors read",
		logger.String("operator", middleware.OperatorFromContext(req.Context())),
		logger.String("detection_id", id))
	writeJSON(w, http.StatusOK, map[string]any{"errors": list})
	return nil
}

// GET /v1/species
func (r *Router) handleSpecies(w http.ResponseWriter, req *http.Request) error {
	list, err := r.svc.ActiveSpecies(req.Context())
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"species": list})
	return nil
}

func submissionFromForm(req *http.Request) (appdetections.Submission, error) {
	coords, err := middleware.ParseCoordinates(req.FormValue("latitude"), req.FormValue("longitude"))
	if err != nil {
		return appdetections.Submission{}, badRequestf("%v", err)
	}
	return appdetections.Submission{
		Mode:            domain.ParseMode(req.FormValue("mode")),
		Coordinates:     coords,
		SessionID:       req.FormValue("sessionId"),
		UserAgent:       req.UserAgent(),
		PrivacyConsent:  middleware.ParseFlag(req.FormValue("privacyConsent")),
		LocationConsent: middleware.ParseFlag(req.FormValue("locationConsent")),
	}, nil
}

type submitResponse struct {
	*appdetections.Result
	Error *errorBody `json:"error,omitempty"`
}

// writeResult answers 201 for a stored verdict. A failure record still goes
// back to the caller, under the status its error kind maps to.
func writeResult(w http.ResponseWriter, res *appdetections.Result, err error) error {
	if res == nil {
		if err == nil {
			err = errors.New("submission produced no record")
		}
		return err
	}
	if err != nil {
		writeJSON(w, statusFor(err), submitResponse{Result: res, Error: &errorBody{Error: err.Error(), Kind: kindFor(err)}})
		return nil
	}
	w.Header().Set("Location", "/v1/detections/"+string(res.Detection.ID))
	writeJSON(w, http.StatusCreated, submitResponse{Result: res})
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// NewServer returns an http.Server with the given handler and bounds.
func NewServer(addr string, h http.Handler, read, write time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadTimeout:       read,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      write,
		IdleTimeout:       120 * time.Second,
	}
}
