package detection_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bryanwahyu/pestwatch/internal/domain/detection"
)

func TestNormalize_LikelihoodPrecedence(t *testing.T) {
	t.Parallel()

	likelihoods := []detection.Likelihood{
		detection.LikelihoodAlert,
		detection.LikelihoodUncertain,
		detection.LikelihoodUnlikely,
		"",
	}
	declaredLevels := []any{nil, "safe", "low", "medium", "high", "bogus", 7}
	declaredThreat := []any{nil, true, false, "yes"}

	for _, l := range likelihoods {
		for _, lvl := range declaredLevels {
			for _, thr := range declaredThreat {
				name := fmt.Sprintf("%s/%v/%v", l, lvl, thr)
				raw := detection.RawPayload{}
				if lvl != nil {
					raw["threatLevel"] = lvl
				}
				if thr != nil {
					raw["isThreat"] = thr
				}

				got := detection.Normalize(raw, l)

				switch l {
				case detection.LikelihoodAlert:
					assert.Equal(t, detection.ThreatHigh, got.ThreatLevel, name)
					assert.True(t, got.IsThreat, name)
				case detection.LikelihoodUncertain:
					assert.Equal(t, detection.ThreatMedium, got.ThreatLevel, name)
					assert.True(t, got.IsThreat, name)
				default:
					wantLevel := detection.ThreatSafe
					if s, ok := lvl.(string); ok && s != "bogus" {
						wantLevel = detection.ThreatLevel(s)
					}
					wantThreat := false
					if b, ok := thr.(bool); ok {
						wantThreat = b
					}
					assert.Equal(t, wantLevel, got.ThreatLevel, name)
					assert.Equal(t, wantThreat, got.IsThreat, name)
				}
			}
		}
	}
}

func TestNormalize_UnlikelyKeepsDeclaredValues(t *testing.T) {
	t.Parallel()

	got := detection.Normalize(detection.RawPayload{"threatLevel": "low", "isThreat": false}, detection.LikelihoodUnlikely)
	assert.Equal(t, detection.ThreatLow, got.ThreatLevel)
	assert.False(t, got.IsThreat)
}

func TestNormalize_ConfidenceClamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   any
		want float64
	}{
		{nil, 0},
		{"0.9", 0},
		{-3.0, 0},
		{0.0, 0},
		{0.42, 0.42},
		{1.0, 1},
		{17.5, 1},
	}
	for _, tt := range tests {
		raw := detection.RawPayload{}
		if tt.in != nil {
			raw["confidence"] = tt.in
		}
		got := detection.Normalize(raw, detection.LikelihoodUnlikely).Confidence
		assert.InDelta(t, tt.want, got, 1e-9, "input %v", tt.in)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.LessOrEqual(t, got, 1.0)
	}
}

func TestNormalize_ListCaps(t *testing.T) {
	t.Parallel()

	many := func(n int) []any {
		out := make([]any, n)
		for i := range out {
			out[i] = fmt.Sprintf("f%d", i)
		}
		return out
	}
	raw := detection.RawPayload{
		"matchingFeatures":   many(15),
		"excludingFeatures":  many(11),
		"anatomicalFeatures": many(12),
		"similarSpecies":     many(9),
		"interestingFacts":   many(6),
	}

	got := detection.Normalize(raw, detection.LikelihoodAlert)
	assert.Len(t, got.MatchingFeatures, 10)
	assert.Len(t, got.ExcludingFeatures, 10)
	assert.Len(t, got.AnatomicalFeatures, 10)
	assert.Len(t, got.SimilarSpecies, 5)
	assert.Len(t, got.InterestingFacts, 5)
	assert.Equal(t, "f0", got.MatchingFeatures[0])
}

func TestNormalize_NonArraysAndMixedElements(t *testing.T) {
	t.Parallel()

	raw := detection.RawPayload{
		"matchingFeatures":  "wing spots",
		"excludingFeatures": []any{"striped thorax", 3, nil, "fuzzy body"},
	}
	got := detection.Normalize(raw, detection.LikelihoodUnlikely)
	assert.NotNil(t, got.MatchingFeatures)
	assert.Empty(t, got.MatchingFeatures)
	assert.Equal(t, []string{"striped thorax", "fuzzy body"}, got.ExcludingFeatures)
	assert.Empty(t, got.SimilarSpecies)
}

func TestNormalize_Defaults(t *testing.T) {
	t.Parallel()

	got := detection.Normalize(detection.RawPayload{}, detection.LikelihoodUnlikely)
	assert.Equal(t, "Unknown", got.Species)
	assert.Equal(t, "Unknown", got.CommonName)
	assert.Equal(t, "No reasoning provided", got.Reasoning)
	assert.True(t, got.IsNativeToNZ)
	assert.Equal(t, detection.RiskNone, got.InvasiveRisk)

	got = detection.Normalize(detection.RawPayload{
		"species":      "Bactrocera tryoni",
		"isNativeToNZ": false,
		"invasiveRisk": "critical",
	}, detection.LikelihoodAlert)
	assert.Equal(t, "Bactrocera tryoni", got.CommonName)
	assert.False(t, got.IsNativeToNZ)
	assert.Equal(t, detection.RiskCritical, got.InvasiveRisk)
}

func TestNormalize_InvasiveRiskClosedSet(t *testing.T) {
	t.Parallel()

	for _, v := range []any{"extreme", "HIGH", 4, true} {
		got := detection.Normalize(detection.RawPayload{"invasiveRisk": v}, detection.LikelihoodUnlikely)
		assert.Equal(t, detection.RiskNone, got.InvasiveRisk, "value %v", v)
	}
}

func TestReportRecommended(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		res  detection.AnalysisResult
		want bool
	}{
		{"alert", detection.AnalysisResult{Likelihood: detection.LikelihoodAlert}, true},
		{"uncertain", detection.AnalysisResult{Likelihood: detection.LikelihoodUncertain}, true},
		{"unlikely even if threat declared", detection.AnalysisResult{Likelihood: detection.LikelihoodUnlikely, IsThreat: true}, false},
		{"missing falls back to threat", detection.AnalysisResult{IsThreat: true}, true},
		{"missing and safe", detection.AnalysisResult{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.res.ReportRecommended())
		})
	}
}
