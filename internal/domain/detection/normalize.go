package detection

import "math"

const (
	maxMatchingFeatures   = 10
	maxExcludingFeatures  = 10
	maxSimilarSpecies     = 5
	maxInterestingFacts   = 5
	maxAnatomicalFeatures = 10
)

// Normalize maps a raw payload and likelihood onto the canonical result.
// ALERT and UNCERTAIN always win over whatever threat fields the model sent.
func Normalize(raw RawPayload, l Likelihood) AnalysisResult {
	species := stringField(raw, "species", "Unknown")
	res := AnalysisResult{
		Species:            species,
		Confidence:         clampConfidence(raw["confidence"]),
		Likelihood:         l,
		Reasoning:          stringField(raw, "reasoning", "No reasoning provided"),
		MatchingFeatures:   stringList(raw["matchingFeatures"], maxMatchingFeatures),
		ExcludingFeatures:  stringList(raw["excludingFeatures"], maxExcludingFeatures),
		AnatomicalFeatures: stringList(raw["anatomicalFeatures"], maxAnatomicalFeatures),
		SimilarSpecies:     stringList(raw["similarSpecies"], maxSimilarSpecies),
		InterestingFacts:   stringList(raw["interestingFacts"], maxInterestingFacts),
		CommonName:         stringField(raw, "commonName", species),
		ScientificName:     stringField(raw, "scientificName", ""),
		Family:             stringField(raw, "family", ""),
		Order:              stringField(raw, "order", ""),
		Habitat:            stringField(raw, "habitat", ""),
		Behavior:           stringField(raw, "behavior", ""),
		EcologicalRole:     stringField(raw, "ecologicalRole", ""),
		Distribution:       stringField(raw, "distribution", ""),
		Size:               stringField(raw, "size", ""),
		Diet:               stringField(raw, "diet", ""),
		Lifecycle:          stringField(raw, "lifecycle", ""),
		SafetyInfo:         stringField(raw, "safetyInfo", ""),
		IsNativeToNZ:       boolField(raw, "isNativeToNZ", true),
		InvasiveRisk:       invasiveRisk(raw["invasiveRisk"]),
		NZStatus:           stringField(raw, "nzStatus", ""),
		ReportingAdvice:    stringField(raw, "reportingAdvice", ""),
	}

	switch l {
	case LikelihoodAlert:
		res.ThreatLevel, res.IsThreat = ThreatHigh, true
	case LikelihoodUncertain:
		res.ThreatLevel, res.IsThreat = ThreatMedium, true
	default:
		res.ThreatLevel = ThreatSafe
		if s, ok := raw["threatLevel"].(string); ok && ThreatLevel(s).valid() {
			res.ThreatLevel = ThreatLevel(s)
		}
		res.IsThreat = boolField(raw, "isThreat", false)
	}
	return res
}

func clampConfidence(v any) float64 {
	f, ok := v.(float64)
	if !ok || math.IsNaN(f) {
		return 0
	}
	return math.Min(math.Max(f, 0), 1)
}

func stringField(raw RawPayload, key, fallback string) string {
	if s, ok := raw[key].(string); ok && s != "" {
		return s
	}
	return fallback
}

func boolField(raw RawPayload, key string, fallback bool) bool {
	if b, ok := raw[key].(bool); ok {
		return b
	}
	return fallback
}

// stringList never returns nil so the stored JSON always carries arrays.
func stringList(v any, limit int) []string {
	out := []string{}
	items, ok := v.([]any)
	if !ok {
		return out
	}
	for _, it := range items {
		if len(out) == limit {
			break
		}
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func invasiveRisk(v any) InvasiveRisk {
	s, _ := v.(string)
	switch r := InvasiveRisk(s); r {
	case RiskNone, RiskLow, RiskModerate, RiskHigh, RiskCritical:
		return r
	default:
		return RiskNone
	}
}
