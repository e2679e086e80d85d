package detection

import (
	"slices"
	"strings"
	"time"

	"github.com/bryanwahyu/pestwatch/internal/domain/species"
)

// ID tipe untuk Detection
type ID string

// Likelihood is the classifier verdict on whether the subject is a regulated species.
type Likelihood string

const (
	LikelihoodAlert     Likelihood = "ALERT"
	LikelihoodUnlikely  Likelihood = "UNLIKELY"
	LikelihoodUncertain Likelihood = "UNCERTAIN"
)

// ParseLikelihood returns the likelihood for s and whether it is a known value.
func ParseLikelihood(s string) (Likelihood, bool) {
	switch l := Likelihood(s); l {
	case LikelihoodAlert, LikelihoodUnlikely, LikelihoodUncertain:
		return l, true
	default:
		return "", false
	}
}

// ThreatLevel enum
type ThreatLevel string

const (
	ThreatSafe   ThreatLevel = "safe"
	ThreatLow    ThreatLevel = "low"
	ThreatMedium ThreatLevel = "medium"
	ThreatHigh   ThreatLevel = "high"
)

func (t ThreatLevel) valid() bool {
	switch t {
	case ThreatSafe, ThreatLow, ThreatMedium, ThreatHigh:
		return true
	}
	return false
}

// InvasiveRisk enum
type InvasiveRisk string

const (
	RiskNone     InvasiveRisk = "none"
	RiskLow      InvasiveRisk = "low"
	RiskModerate InvasiveRisk = "moderate"
	RiskHigh     InvasiveRisk = "high"
	RiskCritical InvasiveRisk = "critical"
)

// Mode selects the prompt and schema.
type Mode string

const (
	ModeBiosecurity Mode = "biosecurity"
	ModeGeneral     Mode = "general"
)

// ParseMode defaults to biosecurity for anything it does not recognise.
func ParseMode(s string) Mode {
	switch Mode(s) {
	case ModeGeneral, "entomology":
		return ModeGeneral
	default:
		return ModeBiosecurity
	}
}

// FailedSpecies is stored as the species of a record whose analysis failed.
const FailedSpecies = "Analysis Failed"

// ClassificationRequest is built once per submission.
type ClassificationRequest struct {
	Image    []byte
	MIMEType string
	Mode     Mode
	Species  []species.Species
}

// NewClassificationRequest snapshots the active species so the request is
// unaffected by later edits of the configuration.
func NewClassificationRequest(image []byte, mimeType string, mode Mode, list []species.Species) ClassificationRequest {
	return ClassificationRequest{
		Image:    image,
		MIMEType: mimeType,
		Mode:     mode,
		Species:  species.Active(list),
	}
}

// AnalysisResult is the canonical, sanitized verdict.
type AnalysisResult struct {
	Species            string       `json:"species"`
	Confidence         float64      `json:"confidence"`
	Likelihood         Likelihood   `json:"likelihood,omitempty"`
	IsThreat           bool         `json:"isThreat"`
	ThreatLevel        ThreatLevel  `json:"threatLevel"`
	Reasoning          string       `json:"reasoning"`
	MatchingFeatures   []string     `json:"matchingFeatures"`
	ExcludingFeatures  []string     `json:"excludingFeatures"`
	AnatomicalFeatures []string     `json:"anatomicalFeatures"`
	SimilarSpecies     []string     `json:"similarSpecies"`
	InterestingFacts   []string     `json:"interestingFacts"`
	CommonName         string       `json:"commonName"`
	ScientificName     string       `json:"scientificName"`
	Family             string       `json:"family"`
	Order              string       `json:"order"`
	Habitat            string       `json:"habitat"`
	Behavior           string       `json:"behavior"`
	EcologicalRole     string       `json:"ecologicalRole"`
	Distribution       string       `json:"distribution"`
	Size               string       `json:"size"`
	Diet               string       `json:"diet"`
	Lifecycle          string       `json:"lifecycle"`
	SafetyInfo         string       `json:"safetyInfo"`
	IsNativeToNZ       bool         `json:"isNativeToNZ"`
	InvasiveRisk       InvasiveRisk `json:"invasiveRisk"`
	NZStatus           string       `json:"nzStatus"`
	ReportingAdvice    string       `json:"reportingAdvice"`
}

// ReportRecommended reports whether the user should be routed to the reporting
// call-to-action. Only a clean UNLIKELY suppresses it.
func (r AnalysisResult) ReportRecommended() bool {
	switch r.Likelihood {
	case LikelihoodAlert, LikelihoodUncertain:
		return true
	case LikelihoodUnlikely:
		return false
	default:
		return r.IsThreat
	}
}

// ReferenceImage is an illustrative photograph of the candidate species.
type ReferenceImage struct {
	URL         string `json:"url"`
	Description string `json:"description"`
	Source      string `json:"source,omitempty"`
}

// ReferenceQuery names the species to look up, most specific first.
type ReferenceQuery struct {
	Species        string
	ScientificName string
	CommonName     string
}

// Terms returns the ordered, de-duplicated search terms.
func (q ReferenceQuery) Terms() []string {
	var terms []string
	for _, t := range []string{q.ScientificName, q.Species, q.CommonName} {
		t = strings.TrimSpace(t)
		if t == "" || slices.Contains(terms, t) {
			continue
		}
		terms = append(terms, t)
	}
	return terms
}

// Coordinates value object
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Aggregate Root: Detection
type Detection struct {
	ID                     ID               `json:"id"`
	StorageKey             string           `json:"storageKey,omitempty"`
	Species                string           `json:"species"`
	Confidence             float64          `json:"confidence"`
	IsThreat               bool             `json:"isThreat"`
	ThreatLevel            ThreatLevel      `json:"threatLevel"`
	Likelihood             Likelihood       `json:"likelihood,omitempty"`
	Coordinates            *Coordinates     `json:"coordinates,omitempty"`
	AIResponse             string           `json:"aiResponse,omitempty"`
	AnalysisFeatures       []string         `json:"analysisFeatures"`
	ReferenceImages        []ReferenceImage `json:"referenceImages,omitempty"`
	SessionID              string           `json:"sessionId,omitempty"`
	UserAgent              string           `json:"-"`
	PrivacyConsentGiven    bool             `json:"privacyConsentGiven"`
	LocationSharingConsent bool             `json:"locationSharingConsent"`
	ImageWidth             int              `json:"imageWidth,omitempty"`
	ImageHeight            int              `json:"imageHeight,omitempty"`
	Failed                 bool             `json:"failed"`
	ErrorKind              string           `json:"errorKind,omitempty"`
	SubmittedAt            time.Time        `json:"submittedAt"`
}
