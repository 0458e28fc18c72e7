package trips

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	httpTimeout  = 10 * time.Second
	maxRetries   = 3
	retryWaitMin = 1 * time.Second
	retryWaitMax = 8 * time.Second

	mediaFilePrefix = "/api/media/file/"
	mediaServePath  = "/api/serve-media?file="
	placeholderIcon = "📍"
)

// Client fetches trip records from the content API and normalizes them
// into domain records. Transport failures are retried with exponential
// backoff; protocol failures (bad envelope, unexpected status) are not.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient constructs a Client for the given content API origin.
func NewClient(baseURL string) *Client {
	r := retryablehttp.NewClient()
	r.RetryMax = maxRetries
	r.RetryWaitMin = retryWaitMin
	r.RetryWaitMax = retryWaitMax
	r.HTTPClient.Timeout = httpTimeout
	r.Logger = nil

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  r.StandardClient(),
	}
}

// envelope is the content API's response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

// doGet performs a GET request, verifies the envelope, and returns the
// payload bytes. A 404 yields (nil, nil) so callers can map it to not-found.
func (c *Client) doGet(ctx context.Context, rawURL string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request for %s: %w", rawURL, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s returned status %d", rawURL, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decoding response from %s: %w", rawURL, err)
	}
	if !env.Success {
		return nil, fmt.Errorf("GET %s: response envelope reported failure", rawURL)
	}

	return env.Data, nil
}

// rawImage mirrors the API's media shape before URL rewriting.
type rawImage struct {
	URL          string              `json:"url"`
	ThumbnailURL string              `json:"thumbnailURL"`
	Alt          string              `json:"alt"`
	Width        int                 `json:"width"`
	Height       int                 `json:"height"`
	Sizes        map[string]rawImage `json:"sizes"`
}

type rawListing struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Slug            string    `json:"slug"`
	Location        string    `json:"location"`
	Country         string    `json:"country"`
	StartDate       string    `json:"startDate"`
	EndDate         string    `json:"endDate"`
	Categories      []string  `json:"categories"`
	Tags            []string  `json:"tags"`
	CoverImage      *rawImage `json:"coverImage"`
	DaysCount       int       `json:"daysCount"`
	TotalActivities int       `json:"totalActivities"`
}

type rawActivity struct {
	ID          string `json:"id"`
	Time        string `json:"time"`
	Title       string `json:"title"`
	Location    string `json:"location"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Type        string `json:"type"`
	Icon        string `json:"icon"`
	Order       int    `json:"order"`
}

type rawDay struct {
	Date       string        `json:"date"`
	Activities []rawActivity `json:"activities"`
}

type rawDetail struct {
	rawListing
	Days      []rawDay `json:"days"`
	TotalDays int      `json:"totalDays"`
}

type listPayload struct {
	Trips      []rawListing `json:"trips"`
	Pagination Pagination   `json:"pagination"`
}

// ListTrips fetches one page of trip listings.
func (c *Client) ListTrips(ctx context.Context, page, limit int) (*TripPage, error) {
	endpoint := fmt.Sprintf("%s/api/frontend/trips?page=%d&limit=%d", c.baseURL, page, limit)

	data, err := c.doGet(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("listing trips page %d: %w", page, err)
	}
	if data == nil {
		return nil, fmt.Errorf("listing trips page %d: unexpected empty response", page)
	}

	var payload listPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("unmarshaling trips page %d: %w", page, err)
	}

	listings := make([]TripListing, 0, len(payload.Trips))
	for _, raw := range payload.Trips {
		listings = append(listings, c.normalizeListing(raw))
	}

	return &TripPage{Trips: listings, Pagination: payload.Pagination}, nil
}

// GetTripBySlug fetches the full trip record for the given slug.
// Returns nil, nil when the slug does not exist.
func (c *Client) GetTripBySlug(ctx context.Context, slug string) (*Trip, error) {
	endpoint := c.baseURL + "/api/frontend/trips/" + url.PathEscape(slug)

	data, err := c.doGet(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("fetching trip %s: %w", slug, err)
	}
	if data == nil || string(data) == "null" {
		return nil, nil
	}

	var raw rawDetail
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshaling trip %s: %w", slug, err)
	}
	if raw.ID == "" && raw.Slug == "" {
		return nil, nil
	}

	trip := c.normalizeDetail(raw)
	return &trip, nil
}

// normalizeListing maps a wire listing onto the domain record, defaulting
// missing numerics to 0 and missing arrays to empty slices.
func (c *Client) normalizeListing(raw rawListing) TripListing {
	return TripListing{
		ID:            raw.ID,
		Title:         raw.Title,
		Slug:          raw.Slug,
		Location:      raw.Location,
		Country:       raw.Country,
		StartDate:     raw.StartDate,
		EndDate:       raw.EndDate,
		Categories:    orEmpty(raw.Categories),
		Tags:          orEmpty(raw.Tags),
		Status:        "published", // the API only serves published trips
		CoverImage:    c.normalizeImage(raw.CoverImage),
		DayCount:      raw.DaysCount,
		ActivityCount: raw.TotalActivities,
	}
}

// normalizeDetail denormalizes the nested day/activity records, stamping
// derived fields from the parent context where the child omits them.
func (c *Client) normalizeDetail(raw rawDetail) Trip {
	days := make([]Day, 0, len(raw.Days))
	activityCount := 0
	for _, rd := range raw.Days {
		activities := make([]Activity, 0, len(rd.Activities))
		for _, ra := range rd.Activities {
			activities = append(activities, Activity{
				ID:          ra.ID,
				Time:        ra.Time,
				Title:       ra.Title,
				Location:    ra.Location,
				Description: ra.Description,
				Category:    ra.Category,
				Type:        orDefault(ra.Type, "normal"),
				Icon:        orDefault(ra.Icon, placeholderIcon),
				Order:       ra.Order,
				Date:        rd.Date,
				Trip:        raw.ID,
			})
		}
		activityCount += len(activities)
		days = append(days, Day{Date: rd.Date, Activities: activities})
	}

	dayCount := raw.TotalDays
	if dayCount == 0 {
		dayCount = len(days)
	}
	if raw.TotalActivities > 0 {
		activityCount = raw.TotalActivities
	}

	return Trip{
		ID:            raw.ID,
		Title:         raw.Title,
		Slug:          raw.Slug,
		Location:      raw.Location,
		Country:       raw.Country,
		StartDate:     raw.StartDate,
		EndDate:       raw.EndDate,
		Categories:    orEmpty(raw.Categories),
		Tags:          orEmpty(raw.Tags),
		Status:        "published",
		CoverImage:    c.normalizeImage(raw.CoverImage),
		Days:          days,
		DayCount:      dayCount,
		ActivityCount: activityCount,
	}
}

// normalizeImage rewrites media URLs to fully-qualified serving URLs,
// recursing into size variants.
func (c *Client) normalizeImage(raw *rawImage) *Image {
	if raw == nil {
		return nil
	}

	img := Image{
		URL:          c.rewriteURL(raw.URL),
		ThumbnailURL: c.rewriteURL(raw.ThumbnailURL),
		Alt:          raw.Alt,
		Width:        raw.Width,
		Height:       raw.Height,
	}

	if len(raw.Sizes) > 0 {
		img.Sizes = make(map[string]Image, len(raw.Sizes))
		for name, size := range raw.Sizes {
			s := size
			if normalized := c.normalizeImage(&s); normalized != nil {
				img.Sizes[name] = *normalized
			}
		}
	}

	return &img
}

// rewriteURL converts the API's raw media paths to the serve-media path
// and prepends the configured origin to any remaining relative URL.
func (c *Client) rewriteURL(u string) string {
	if u == "" {
		return ""
	}
	if strings.HasPrefix(u, mediaFilePrefix) {
		// Filename arrives already URL-encoded; do not re-encode it.
		u = mediaServePath + strings.TrimPrefix(u, mediaFilePrefix)
	}
	if strings.HasPrefix(u, "/") {
		return c.baseURL + u
	}
	return u
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
