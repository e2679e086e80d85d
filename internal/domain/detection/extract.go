package detection

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RawPayload is the parsed but untrusted model output.
type RawPayload map[string]any

// ExtractJSON isolates the JSON object in a model reply. Fenced blocks win;
// otherwise the span from the first '{' to the last '}' is taken.
func ExtractJSON(text string) (string, error) {
	s := strings.TrimSpace(text)

	if start := strings.Index(s, "```"); start >= 0 {
		body := s[start+3:]
		if nl := strings.IndexByte(body, '\n'); nl >= 0 && isFenceTag(body[:nl]) {
			body = body[nl+1:]
		} else if strings.HasPrefix(body, "json") {
			body = body[len("json"):]
		}
		if end := strings.Index(body, "```"); end >= 0 {
			body = body[:end]
		}
		s = strings.TrimSpace(body)
	}

	if !strings.HasPrefix(s, "{") {
		first := strings.IndexByte(s, '{')
		last := strings.LastIndexByte(s, '}')
		if first < 0 || last <= first {
			return "", fmt.Errorf("%w: no JSON object in model reply", ErrMalformedModelOutput)
		}
		s = s[first : last+1]
	}
	if s == "" {
		return "", fmt.Errorf("%w: empty model reply", ErrMalformedModelOutput)
	}
	return s, nil
}

func isFenceTag(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.EqualFold(s, "json")
}

// ParsePayload extracts and decodes the model reply. The returned preview
// holds the first 300 characters of text for logging when decoding fails.
func ParsePayload(text string) (RawPayload, error) {
	body, err := ExtractJSON(text)
	if err != nil {
		return nil, err
	}
	var raw RawPayload
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v (reply starts %q)", ErrMalformedModelOutput, err, Preview(text, 300))
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: reply is not an object", ErrMalformedModelOutput)
	}
	return raw, nil
}

// Preview returns at most n runes of s.
func Preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var likelihoodKeys = []string{"qflyLikelihood", "likelihood", "asianHornetLikelihood"}

// LikelihoodFrom returns the first recognised likelihood in payload order.
// In biosecurity mode a missing or unknown value becomes UNCERTAIN.
func LikelihoodFrom(raw RawPayload, mode Mode) Likelihood {
	for _, key := range likelihoodKeys {
		v, ok := raw[key].(string)
		if !ok {
			continue
		}
		if l, ok := ParseLikelihood(strings.ToUpper(strings.TrimSpace(v))); ok {
			return l
		}
	}
	if mode == ModeBiosecurity {
		return LikelihoodUncertain
	}
	return ""
}
