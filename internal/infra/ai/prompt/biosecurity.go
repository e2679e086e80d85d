// Package prompt builds the instructions and response schemas sent to the
// vision model. Builders are pure: they only read the species snapshot.
package prompt

import (
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/bryanwahyu/pestwatch/internal/domain/detection"
	"github.com/bryanwahyu/pestwatch/internal/domain/species"
)

// ReportingHotline is the MPI exotic pest and disease hotline.
const ReportingHotline = "0800 80 99 66"

// Prompt is everything needed for one classification call.
type Prompt struct {
	System     string
	Task       string
	SchemaName string
	Schema     jsonschema.Definition
}

// BuildBiosecurity renders the screening prompt for the active species in
// list. Inactive entries are ignored; an empty active set is a configuration
// error and no prompt is produced.
func BuildBiosecurity(list []species.Species) (Prompt, error) {
	active := species.Active(list)
	if len(active) == 0 {
		return Prompt{}, detection.ErrNoTargetSpecies
	}
	return Prompt{
		System:     biosecuritySystem(active),
		Task:       biosecurityTask(active),
		SchemaName: "biosecurity_detection",
		Schema:     BiosecuritySchema(),
	}, nil
}

func biosecuritySystem(active []species.Species) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a fruit fly biosecurity specialist for New Zealand MPI. Your job is to detect %d target pest species that threaten the horticulture industry.\n\n", len(active))
	b.WriteString("TARGET SPECIES (all must be reported to MPI):\n")
	for i, s := range active {
		fmt.Fprintf(&b, "%d. %s (%s)", i+1, s.CommonName, s.ScientificName)
		if s.Biosecurity.RecentDetections != "" {
			fmt.Fprintf(&b, " - RECENT DETECTION in %s", s.Biosecurity.RecentDetections)
		}
		b.WriteString("\n")
	}
	b.WriteString("\nCRITICAL: This is a biosecurity screening tool. Your PRIMARY goal is to NEVER miss any of these species.\n")
	b.WriteString("- FALSE POSITIVES are acceptable and expected\n")
	b.WriteString("- FALSE NEGATIVES are DANGEROUS and unacceptable\n\n")
	b.WriteString("When analyzing images:\n")
	b.WriteString("1. Check against ALL target species\n")
	b.WriteString("2. If features match ANY target species, set qflyLikelihood to ALERT\n")
	b.WriteString("3. In the species field, specify which target species (if identifiable)\n")
	b.WriteString("4. Only mark UNLIKELY if clear exclusion features present\n")
	b.WriteString("5. When genuinely uncertain, always choose ALERT\n\n")
	fmt.Fprintf(&b, "REPORTING ADVICE: If ALERT, advise user to call MPI hotline %s immediately.", ReportingHotline)
	return b.String()
}

func biosecurityTask(active []species.Species) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Detect BIOSECURITY THREAT FRUIT FLIES in this image. New Zealand MPI requires reporting of %d species. Err on the side of caution.\n\n", len(active))
	for i, s := range active {
		fmt.Fprintf(&b, "=== SPECIES %d: %s (%s) ===\n", i+1, strings.ToUpper(s.CommonName), s.ScientificName)
		threshold := s.Detection.AlertThreshold
		if threshold < 1 {
			threshold = 1
		}
		fmt.Fprintf(&b, "KEY FEATURES (any %d+ = ALERT):\n", threshold)
		for _, c := range s.Detection.MatchingCriteria {
			fmt.Fprintf(&b, "- %s\n", c)
		}
		if len(s.Detection.ExclusionCriteria) > 0 {
			b.WriteString("RULES OUT:\n")
			for _, c := range s.Detection.ExclusionCriteria {
				fmt.Fprintf(&b, "- %s\n", c)
			}
		}
		if s.Biosecurity.RecentDetections != "" {
			fmt.Fprintf(&b, "RECENT DETECTION: %s\n", s.Biosecurity.RecentDetections)
		}
		b.WriteString("\n")
	}
	b.WriteString(`=== COMMON LOOKALIKES (NOT threats) ===
- House fly: Much larger (8-12mm), grey, no wing markings
- Blow fly: Metallic blue/green coloring
- Common vinegar fly: No wing spots, attacks ROTTING fruit only
- Native NZ flies: Different patterns

=== FRUIT DAMAGE INDICATORS (any = ALERT) ===
- Small puncture marks on fruit skin
- Soft spots around puncture points
- Larvae (maggots) in fruit
- Premature fruit drop

=== CRITICAL RULES ===
1. If features match ANY of the target species = ALERT
2. Specify WHICH species if identifiable
3. Fruit damage consistent with fruit fly = ALERT
4. Poor image quality but COULD be threat species = ALERT
5. When in doubt = ALERT (false positives acceptable, false negatives are NOT)
6. Only mark UNLIKELY if clear exclusion features
`)
	return b.String()
}

func stringArray(desc string) jsonschema.Definition {
	return jsonschema.Definition{
		Type:        jsonschema.Array,
		Items:       &jsonschema.Definition{Type: jsonschema.String},
		Description: desc,
	}
}

func str(desc string) jsonschema.Definition {
	return jsonschema.Definition{Type: jsonschema.String, Description: desc}
}

// BiosecuritySchema is the structured-output schema for screening mode.
func BiosecuritySchema() jsonschema.Definition {
	return jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"qflyLikelihood": {
				Type: jsonschema.String,
				Enum: []string{
					string(detection.LikelihoodAlert),
					string(detection.LikelihoodUnlikely),
					string(detection.LikelihoodUncertain),
				},
				Description: "ALERT if features match any target species. UNLIKELY only with clear exclusion. UNCERTAIN if the image is poor.",
			},
			"confidence":         {Type: jsonschema.Number, Description: "Confidence 0.0-1.0"},
			"matchingFeatures":   stringArray("Features matching a target species"),
			"excludingFeatures":  stringArray("Features ruling out the target species"),
			"species":            str("Identified species"),
			"commonName":         str("Common name"),
			"scientificName":     str("Scientific name"),
			"reasoning":          str("Brief explanation"),
			"anatomicalFeatures": stringArray("Visible anatomical features"),
			"similarSpecies":     stringArray("Species this could be confused with"),
			"safetyInfo":         str("Safety advice"),
			"reportingAdvice":    str("Reporting instructions if ALERT"),
		},
		Required: []string{"qflyLikelihood", "confidence", "species", "reasoning"},
	}
}
