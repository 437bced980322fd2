package models

import "time"

// Chart board identifiers matching the marketing feed kinds.
const (
	BoardTopFree     = "top-free"
	BoardTopPaid     = "top-paid"
	BoardTopGrossing = "top-grossing"
)

// DefaultBoards lists the boards refreshed on every pipeline pass.
var DefaultBoards = []string{BoardTopFree, BoardTopPaid, BoardTopGrossing}

// ChartEntry is one ranked position from a feed fetch. Rank is 1-based
// and unique within a single board fetch.
type ChartEntry struct {
	Rank      int          `json:"rank"`
	Name      string       `json:"name"`
	Developer string       `json:"developer"`
	IconURL   string       `json:"icon_url,omitempty"`
	DetailURL string       `json:"detail_url,omitempty"`
	Identity  AppIdentity  `json:"identity"`
	Sources   []SourceLink `json:"sources,omitempty"`
}

// EnrichedEntry is a ChartEntry merged with an optional PrivacyRecord.
// Entries are built fresh on every merge pass and never mutated after
// construction; privacy fields are absent when no record was available.
type EnrichedEntry struct {
	ChartEntry

	PrivacyAvailable bool                      `json:"privacy_available"`
	AsOf             *time.Time                `json:"as_of,omitempty"`
	Buckets          map[string][]string       `json:"buckets,omitempty"`
	Details          map[string]CategoryDetail `json:"details,omitempty"`
	PolicyURL        *string                   `json:"policy_url,omitempty"`
	DeveloperSiteURL *string                   `json:"developer_site_url,omitempty"`
	Score            IntensityScore            `json:"score"`
}

// Snapshot is the aggregate output artifact consumed by the dashboard.
type Snapshot struct {
	AsOf   time.Time                  `json:"as_of"`
	Boards map[string][]EnrichedEntry `json:"boards"`
}

// MarketingFeedResponse mirrors the Apple marketing tools RSS JSON shape.
type MarketingFeedResponse struct {
	Feed MarketingFeed `json:"feed"`
}

// MarketingFeed is the payload section of a marketing feed response.
type MarketingFeed struct {
	Title   string                `json:"title"`
	Country string                `json:"country"`
	Updated string                `json:"updated"`
	Results []MarketingFeedResult `json:"results"`
}

// MarketingFeedResult is one ranked app in a marketing feed response.
type MarketingFeedResult struct {
	ArtistName string `json:"artistName"`
	ID         string `json:"id"`
	Name       string `json:"name"`
	URL        string `json:"url"`
	ArtworkURL string `json:"artworkUrl100"`
}

// LookupResponse mirrors the iTunes lookup API shape; only the fields
// consumed as extraction fallbacks are declared.
type LookupResponse struct {
	ResultCount int            `json:"resultCount"`
	Results     []LookupResult `json:"results"`
}

// LookupResult is one app in a lookup API response.
type LookupResult struct {
	TrackID    int64  `json:"trackId"`
	TrackName  string `json:"trackName"`
	ArtistName string `json:"artistName"`
	SellerURL  string `json:"sellerUrl"`
}
