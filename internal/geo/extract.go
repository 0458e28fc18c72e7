package geo

import (
	"regexp"
	"strconv"
)

// Coordinates is a WGS84 lat/lng pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the pair is within world bounds.
func (c Coordinates) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// coordPatterns is the ordered ladder of textual coordinate formats.
// Map-link query parameters come first, then bare pairs, then labeled
// pairs. The first match that passes the bounds check wins.
var coordPatterns = []*regexp.Regexp{
	// Map URLs
	regexp.MustCompile(`@(-?\d+\.\d+),(-?\d+\.\d+)`),
	regexp.MustCompile(`ll=(-?\d+\.\d+),(-?\d+\.\d+)`),
	regexp.MustCompile(`q=(-?\d+\.\d+),(-?\d+\.\d+)`),

	// Direct coordinate formats
	regexp.MustCompile(`(-?\d+\.\d+),\s*(-?\d+\.\d+)`),
	regexp.MustCompile(`(?i)lat[:\s]+(-?\d+\.\d+).*lng[:\s]+(-?\d+\.\d+)`),
	regexp.MustCompile(`(?i)latitude[:\s]+(-?\d+\.\d+).*longitude[:\s]+(-?\d+\.\d+)`),
}

// ExtractCoordinates scans free text for an embedded coordinate pair.
// Returns false when no pattern yields a pair within world bounds.
func ExtractCoordinates(text string) (Coordinates, bool) {
	if text == "" {
		return Coordinates{}, false
	}

	for _, p := range coordPatterns {
		m := p.FindStringSubmatch(text)
		if m == nil {
			continue
		}

		lat, errLat := strconv.ParseFloat(m[1], 64)
		lng, errLng := strconv.ParseFloat(m[2], 64)
		if errLat != nil || errLng != nil {
			continue
		}

		c := Coordinates{Lat: lat, Lng: lng}
		if c.Valid() {
			return c, true
		}
	}

	return Coordinates{}, false
}
