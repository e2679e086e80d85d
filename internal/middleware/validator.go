package middleware

import (
	"fmt"
	"math"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/bryanwahyu/pestwatch/internal/domain/detection"
)

// Input validation for request parameters

// ValidateDetectionID checks that id is a UUID.
func ValidateDetectionID(id string) error {
	if id == "" {
		return fmt.Errorf("detection ID cannot be empty")
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid detection ID format")
	}
	return nil
}

// ValidateStorageKey rejects keys that try to escape the upload prefix.
func ValidateStorageKey(key string) error {
	if key == "" {
		return fmt.Errorf("storage key cannot be empty")
	}
	if len(key) > 500 {
		return fmt.Errorf("storage key too long")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("storage key must be relative")
	}
	if cleaned := path.Clean(key); cleaned != key || strings.Contains(cleaned, "..") {
		return fmt.Errorf("path traversal detected")
	}
	for _, r := range key {
		if r < 0x20 || r == 0x7F {
			return fmt.Errorf("invalid characters in storage key")
		}
	}
	return nil
}

// ParseCoordinates parses optional latitude/longitude form values. Both must
// be present together and within range.
func ParseCoordinates(lat, lon string) (*detection.Coordinates, error) {
	lat, lon = strings.TrimSpace(lat), strings.TrimSpace(lon)
	if lat == "" && lon == "" {
		return nil, nil
	}
	if lat == "" || lon == "" {
		return nil, fmt.Errorf("latitude and longitude must be sent together")
	}
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid latitude")
	}
	lo, err := strconv.ParseFloat(lon, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid longitude")
	}
	return NewCoordinates(la, lo)
}

// NewCoordinates range-checks a latitude/longitude pair.
func NewCoordinates(lat, lon float64) (*detection.Coordinates, error) {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return nil, fmt.Errorf("invalid latitude")
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return nil, fmt.Errorf("invalid longitude")
	}
	return &detection.Coordinates{Latitude: lat, Longitude: lon}, nil
}

// ParseFlag reads a checkbox-style form value.
func ParseFlag(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// ValidateLimit validates pagination limit
func ValidateLimit(raw string) int {
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 20 // default
	}
	if limit > 100 {
		return 100 // max limit
	}
	return limit
}
