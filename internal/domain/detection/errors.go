package detection

import "errors"

var (
	// ErrConfiguration indicates the pipeline cannot run with the current setup
	// (missing model credential, no active target species).
	ErrConfiguration = errors.New("configuration error")
	// ErrNoTargetSpecies is returned when the active species list is empty.
	ErrNoTargetSpecies = wrapKind(ErrConfiguration, "no target species configured")
	// ErrInvalidImageFormat is a user-input error: size out of bounds or unknown header.
	ErrInvalidImageFormat = errors.New("invalid image format")
	// ErrClassificationTimeout is returned when the model call misses its deadline.
	ErrClassificationTimeout = errors.New("classification timed out")
	// ErrReferenceImageTimeout marks an enrichment that missed its deadline. Never surfaced to callers.
	ErrReferenceImageTimeout = errors.New("reference image fetch timed out")
	// ErrMalformedModelOutput is returned when no JSON object can be isolated or parsed.
	ErrMalformedModelOutput = errors.New("malformed model output")
	// ErrStorage indicates the image store could not be reached.
	ErrStorage = errors.New("image storage error")
	// ErrNotFound is returned by repositories for unknown ids.
	ErrNotFound = errors.New("detection not found")
)

type kindError struct {
	parent error
	msg    string
}

func wrapKind(parent error, msg string) error { return &kindError{parent: parent, msg: msg} }

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.parent }

// Kind maps an error onto its taxonomy name. Unknown errors are "InternalError".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoTargetSpecies):
		return "NoTargetSpeciesConfigured"
	case errors.Is(err, ErrConfiguration):
		return "ConfigurationError"
	case errors.Is(err, ErrInvalidImageFormat):
		return "InvalidImageFormat"
	case errors.Is(err, ErrClassificationTimeout):
		return "ClassificationTimeout"
	case errors.Is(err, ErrReferenceImageTimeout):
		return "ReferenceImageTimeout"
	case errors.Is(err, ErrMalformedModelOutput):
		return "MalformedModelOutput"
	case errors.Is(err, ErrStorage):
		return "StorageError"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	default:
		return "InternalError"
	}
}
