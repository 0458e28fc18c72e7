package trips

// Image is a media asset attached to a trip, with URLs already rewritten
// to fully-qualified serving URLs by the client.
type Image struct {
	URL          string           `json:"url"`
	ThumbnailURL string           `json:"thumbnailURL,omitempty"`
	Alt          string           `json:"alt,omitempty"`
	Width        int              `json:"width,omitempty"`
	Height       int              `json:"height,omitempty"`
	Sizes        map[string]Image `json:"sizes,omitempty"`
}

// TripListing is the lightweight trip record used on listing pages.
type TripListing struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Slug          string   `json:"slug"`
	Location      string   `json:"location"`
	Country       string   `json:"country"`
	StartDate     string   `json:"start_date"`
	EndDate       string   `json:"end_date"`
	Categories    []string `json:"categories"`
	Tags          []string `json:"tags"`
	Status        string   `json:"status"`
	CoverImage    *Image   `json:"cover_image,omitempty"`
	DayCount      int      `json:"day_count"`
	ActivityCount int      `json:"activity_count"`
}

// Activity is a single timeline item within a day.
type Activity struct {
	ID          string `json:"id"`
	Time        string `json:"time"`
	Title       string `json:"title"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category"`
	Type        string `json:"type"`
	Icon        string `json:"icon,omitempty"`
	Order       int    `json:"order"`
	Date        string `json:"date"`
	Trip        string `json:"trip"`
}

// Day groups the activities of one itinerary day.
type Day struct {
	Date       string     `json:"date"`
	Activities []Activity `json:"activities"`
}

// Trip is the full trip record with the day-by-day timeline.
type Trip struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Slug          string   `json:"slug"`
	Location      string   `json:"location"`
	Country       string   `json:"country"`
	StartDate     string   `json:"start_date"`
	EndDate       string   `json:"end_date"`
	Categories    []string `json:"categories"`
	Tags          []string `json:"tags"`
	Status        string   `json:"status"`
	CoverImage    *Image   `json:"cover_image,omitempty"`
	Days          []Day    `json:"days"`
	DayCount      int      `json:"day_count"`
	ActivityCount int      `json:"activity_count"`
}

// Pagination describes the position of one listing page within the full set.
type Pagination struct {
	TotalDocs   int  `json:"totalDocs"`
	TotalPages  int  `json:"totalPages"`
	Page        int  `json:"page"`
	Limit       int  `json:"limit"`
	HasNextPage bool `json:"hasNextPage"`
	HasPrevPage bool `json:"hasPrevPage"`
}

// TripPage is one page of trip listings plus its pagination envelope.
type TripPage struct {
	Trips      []TripListing `json:"trips"`
	Pagination Pagination    `json:"pagination"`
}
