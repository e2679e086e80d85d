// Package sanitize bounds and filters values before they are persisted or
// returned to clients. Nothing here returns an error: offending input is
// trimmed, truncated or dropped.
package sanitize

import (
	"math"
	"net/url"
	"strings"
	"unicode"

	"github.com/bryanwahyu/pestwatch/internal/domain/detection"
)

const (
	MaxSpeciesName      = 200
	MaxURL              = 500
	MaxImageDescription = 300
	MaxImageSource      = 100
	MaxReferenceImages  = 5
	MaxFeature          = 100
	MaxFeatures         = 10
	MaxAIResponse       = 10000
)

// DefaultAllowedHosts are the catalogs reference images may come from.
// Subdomains of each entry are accepted.
var DefaultAllowedHosts = []string{
	"inaturalist.org",
	"commons.wikimedia.org",
	"upload.wikimedia.org",
}

func isStrippedControl(r rune) bool {
	return (r >= 0x00 && r <= 0x08) || r == 0x0B || r == 0x0C || (r >= 0x0E && r <= 0x1F) || r == 0x7F
}

// String removes control characters (tab, LF and CR survive), trims and
// truncates to max runes. Applying it twice yields the same result.
func String(s string, max int) string {
	s = strings.ToValidUTF8(s, "")
	s = strings.Map(func(r rune) rune {
		if isStrippedControl(r) {
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > max {
		s = strings.TrimSpace(string(r[:max]))
	}
	return s
}

func speciesRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
		return true
	}
	return strings.ContainsRune("-().,'", r)
}

// SpeciesName keeps letters, digits, whitespace and - ( ) . , ' only.
func SpeciesName(s string) string {
	s = strings.ToValidUTF8(s, "")
	s = strings.Map(func(r rune) rune {
		if speciesRune(r) && !isStrippedControl(r) {
			return r
		}
		return -1
	}, s)
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > MaxSpeciesName {
		s = strings.TrimSpace(string(r[:MaxSpeciesName]))
	}
	return s
}

// URL returns raw unchanged when it is an http(s) URL on an allowed host and
// at most MaxURL bytes long.
func URL(raw string, allowed []string) (string, bool) {
	if raw == "" || len(raw) > MaxURL {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", false
	}
	for _, h := range allowed {
		if host == h || strings.HasSuffix(host, "."+h) {
			return raw, true
		}
	}
	return "", false
}

// RoundCoordinate rounds to 3 decimal degrees (roughly 110 m).
func RoundCoordinate(f float64) float64 {
	return math.Round(f*1000) / 1000
}

// ReferenceImages drops entries with rejected URLs, bounds the text fields
// and keeps at most MaxReferenceImages entries. With no hosts given,
// DefaultAllowedHosts applies.
func ReferenceImages(in []detection.ReferenceImage, hosts ...string) []detection.ReferenceImage {
	if len(hosts) == 0 {
		hosts = DefaultAllowedHosts
	}
	out := make([]detection.ReferenceImage, 0, min(len(in), MaxReferenceImages))
	for _, img := range in {
		if len(out) == MaxReferenceImages {
			break
		}
		u, ok := URL(img.URL, hosts)
		if !ok {
			continue
		}
		out = append(out, detection.ReferenceImage{
			URL:         u,
			Description: String(img.Description, MaxImageDescription),
			Source:      String(img.Source, MaxImageSource),
		})
	}
	return out
}

// Features bounds each feature string and the list length.
func Features(in []string) []string {
	out := make([]string, 0, min(len(in), MaxFeatures))
	for _, f := range in {
		if len(out) == MaxFeatures {
			break
		}
		out = append(out, String(f, MaxFeature))
	}
	return out
}
