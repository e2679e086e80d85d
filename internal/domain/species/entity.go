package species

import "sort"

// ID identifier type
type ID string

// Characteristics describes what the species looks like.
type Characteristics struct {
	SizeRange           string   `json:"sizeRange" yaml:"sizeRange"`
	PrimaryColor        string   `json:"primaryColor" yaml:"primaryColor"`
	KeyFeatures         []string `json:"keyFeatures" yaml:"keyFeatures"`
	DistinguishingMarks string   `json:"distinguishingMarks" yaml:"distinguishingMarks"`
}

// Detection carries the matching rules fed to the classifier prompt.
// AlertThreshold is the minimum number of matching criteria that justify ALERT.
type Detection struct {
	AlertThreshold    int      `json:"alertThreshold" yaml:"alertThreshold"`
	MatchingCriteria  []string `json:"matchingCriteria" yaml:"matchingCriteria"`
	ExclusionCriteria []string `json:"exclusionCriteria" yaml:"exclusionCriteria"`
}

// Biosecurity holds regulatory context.
type Biosecurity struct {
	ThreatLevel      string   `json:"threatLevel" yaml:"threatLevel"` // critical | high | moderate
	IsReportable     bool     `json:"isReportable" yaml:"isReportable"`
	RecentDetections string   `json:"recentDetections,omitempty" yaml:"recentDetections"`
	PrimaryHosts     []string `json:"primaryHosts" yaml:"primaryHosts"`
}

// Display controls ordering and visibility.
type Display struct {
	SortOrder int  `json:"sortOrder" yaml:"sortOrder"`
	IsActive  bool `json:"isActive" yaml:"isActive"`
}

// Species is a regulated target species the screening looks for.
type Species struct {
	ID              ID              `json:"id" yaml:"id"`
	CommonName      string          `json:"commonName" yaml:"commonName"`
	ScientificName  string          `json:"scientificName" yaml:"scientificName"`
	Abbreviation    string          `json:"abbreviation,omitempty" yaml:"abbreviation"`
	Characteristics Characteristics `json:"characteristics" yaml:"characteristics"`
	Detection       Detection       `json:"detection" yaml:"detection"`
	Biosecurity     Biosecurity     `json:"biosecurity" yaml:"biosecurity"`
	Display         Display         `json:"display" yaml:"display"`
}

// Active returns a new slice holding only active species ordered by SortOrder.
// The input is left untouched.
func Active(list []Species) []Species {
	out := make([]Species, 0, len(list))
	for _, s := range list {
		if s.Display.IsActive {
			out = append(out, s.clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Display.SortOrder < out[j].Display.SortOrder
	})
	return out
}

func (s Species) clone() Species {
	c := s
	c.Characteristics.KeyFeatures = append([]string(nil), s.Characteristics.KeyFeatures...)
	c.Detection.MatchingCriteria = append([]string(nil), s.Detection.MatchingCriteria...)
	c.Detection.ExclusionCriteria = append([]string(nil), s.Detection.ExclusionCriteria...)
	c.Biosecurity.PrimaryHosts = append([]string(nil), s.Biosecurity.PrimaryHosts...)
	return c
}
