package prompt

import "github.com/sashabaranov/go-openai/jsonschema"

const (
	generalSystem = "You are an expert entomologist. Identify insects accurately and provide educational information."
	generalTask   = "Identify this insect. Provide species, taxonomy, habitat, behavior, and interesting facts."
)

// BuildGeneral returns the identification prompt. It needs no species list.
func BuildGeneral() Prompt {
	return Prompt{
		System:     generalSystem,
		Task:       generalTask,
		SchemaName: "insect_identification",
		Schema:     GeneralSchema(),
	}
}

// GeneralSchema is the structured-output schema for identification mode.
func GeneralSchema() jsonschema.Definition {
	props := map[string]jsonschema.Definition{
		"species":            {Type: jsonschema.String},
		"confidence":         {Type: jsonschema.Number},
		"reasoning":          {Type: jsonschema.String},
		"anatomicalFeatures": stringArray(""),
		"similarSpecies":     stringArray(""),
		"interestingFacts":   stringArray(""),
	}
	for _, k := range []string{
		"commonName", "scientificName", "family", "order", "habitat", "behavior",
		"ecologicalRole", "distribution", "size", "diet", "lifecycle", "safetyInfo",
		"nzStatus",
	} {
		props[k] = jsonschema.Definition{Type: jsonschema.String}
	}
	props["isNativeToNZ"] = jsonschema.Definition{Type: jsonschema.Boolean}
	props["invasiveRisk"] = jsonschema.Definition{
		Type: jsonschema.String,
		Enum: []string{"none", "low", "moderate", "high", "critical"},
	}
	return jsonschema.Definition{
		Type:       jsonschema.Object,
		Properties: props,
		Required:   []string{"species", "confidence", "reasoning"},
	}
}
