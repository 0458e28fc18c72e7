package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const geocodeDefaultURL = "https://maps.googleapis.com/maps/api/geocode/json"

// RegionRule maps an address substring to a region hint for the paid
// geocoding API. Rules are checked in order; the first match wins.
type RegionRule struct {
	Substring string
	Region    string
}

// DefaultRegionRules covers the languages this site's itineraries use.
// The default region applies when no rule matches; both are policy, not
// hard-coded logic, and callers may supply their own table.
var DefaultRegionRules = []RegionRule{
	{Substring: "日本", Region: "JP"},
	{Substring: "Korea", Region: "KR"},
	{Substring: "한국", Region: "KR"},
}

// DefaultRegion is the fallback region hint.
const DefaultRegion = "JP"

// Geocoder resolves free-text addresses to coordinates via the paid
// geocoding API.
type Geocoder struct {
	apiKey        string
	baseURL       string
	client        *http.Client
	regionRules   []RegionRule
	defaultRegion string
}

// NewGeocoder constructs a Geocoder with the default region policy.
func NewGeocoder(apiKey string) *Geocoder {
	return NewGeocoderWithURL(geocodeDefaultURL, apiKey)
}

// NewGeocoderWithURL constructs a Geocoder pointing at a custom base URL
// (for tests).
func NewGeocoderWithURL(baseURL, apiKey string) *Geocoder {
	return &Geocoder{
		apiKey:        apiKey,
		baseURL:       baseURL,
		client:        &http.Client{Timeout: 10 * time.Second},
		regionRules:   DefaultRegionRules,
		defaultRegion: DefaultRegion,
	}
}

// SetRegionPolicy replaces the region-hint rules and fallback region.
func (g *Geocoder) SetRegionPolicy(rules []RegionRule, defaultRegion string) {
	g.regionRules = rules
	g.defaultRegion = defaultRegion
}

// RegionHint derives the region hint for an address from the rule table.
func (g *Geocoder) RegionHint(address string) string {
	for _, rule := range g.regionRules {
		if strings.Contains(address, rule.Substring) {
			return rule.Region
		}
	}
	return g.defaultRegion
}

type geocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// Geocode resolves an address. Returns false with a nil error when the
// API finds no result for the address.
func (g *Geocoder) Geocode(ctx context.Context, address string) (Coordinates, bool, error) {
	params := url.Values{}
	params.Set("address", address)
	params.Set("region", g.RegionHint(address))
	params.Set("key", g.apiKey)
	endpoint := g.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Coordinates{}, false, fmt.Errorf("creating geocode request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return Coordinates{}, false, fmt.Errorf("geocoding %q: %w", address, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Coordinates{}, false, fmt.Errorf("geocoding %q returned status %d", address, resp.StatusCode)
	}

	var raw geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return Coordinates{}, false, fmt.Errorf("decoding geocode response for %q: %w", address, err)
	}

	switch raw.Status {
	case "OK":
	case "ZERO_RESULTS":
		return Coordinates{}, false, nil
	default:
		return Coordinates{}, false, fmt.Errorf("geocoding %q failed with status %s", address, raw.Status)
	}
	if len(raw.Results) == 0 {
		return Coordinates{}, false, nil
	}

	loc := raw.Results[0].Geometry.Location
	return Coordinates{Lat: loc.Lat, Lng: loc.Lng}, true, nil
}
