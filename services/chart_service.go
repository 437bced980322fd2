package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/applens/privacy-backend/models"
	"github.com/applens/privacy-backend/shared"
	"github.com/sirupsen/logrus"
)

// ChartServiceConfig holds configuration for the ranked chart feed and
// lookup API clients
type ChartServiceConfig struct {
	FeedBaseURL      string        // Marketing feed base URL
	LookupBaseURL    string        // iTunes lookup API base URL
	Country          string        // Storefront country code
	ChartSize        int           // Entries requested per board
	RequestTimeout   time.Duration // Per-request timeout
	MaxRetryAttempts int           // Retries for failed feed requests
}

// NewDefaultChartServiceConfig returns production-ready defaults
func NewDefaultChartServiceConfig() *ChartServiceConfig {
	return &ChartServiceConfig{
		FeedBaseURL:      "https://rss.marketingtools.apple.com",
		LookupBaseURL:    "https://itunes.apple.com",
		Country:          "us",
		ChartSize:        25,
		RequestTimeout:   20 * time.Second,
		MaxRetryAttempts: 2,
	}
}

// ChartService fetches ranked chart boards from the marketing feed API
// and supplementary metadata from the lookup API.
type ChartService struct {
	config        *ChartServiceConfig
	clientFactory *shared.HTTPClientFactory
	metrics       *shared.ServiceMetrics
}

// NewChartService creates a chart service; nil config selects defaults.
func NewChartService(config *ChartServiceConfig) *ChartService {
	if config == nil {
		config = NewDefaultChartServiceConfig()
	}
	return &ChartService{
		config:        config,
		clientFactory: shared.NewHTTPClientFactory(config.RequestTimeout),
		metrics:       shared.NewServiceMetrics("Chart_Service"),
	}
}

// Metrics exposes the chart service metrics tracker.
func (s *ChartService) Metrics() *shared.ServiceMetrics {
	return s.metrics
}

// Shutdown logs a final metrics summary and releases pooled connections.
func (s *ChartService) Shutdown() {
	s.metrics.LogSummary()
	s.clientFactory.CloseIdleConnections()
}

// FetchBoard fetches one ranked board. The returned entries carry
// 1-based ranks in feed order and identities resolved from the detail
// URL's numeric ID where possible.
func (s *ChartService) FetchBoard(ctx context.Context, board string) ([]models.ChartEntry, error) {
	startTime := time.Now()

	feedURL := fmt.Sprintf("%s/api/v2/%s/apps/%s/%d/apps.json",
		s.config.FeedBaseURL, s.config.Country, board, s.config.ChartSize)

	logger := logrus.WithFields(logrus.Fields{
		"component": "ChartService",
		"board":     board,
		"url":       feedURL,
	})
	logger.Debug("Fetching ranked chart board")

	body, err := s.fetchJSON(ctx, feedURL)
	if err != nil {
		s.metrics.RecordRequest(false, time.Since(startTime))
		return nil, shared.NewFetchError("FEED_FETCH_FAILED",
			fmt.Sprintf("failed to fetch %s board", board), "Chart_Service", "fetch_board", err)
	}

	var feedResponse models.MarketingFeedResponse
	if err := json.Unmarshal(body, &feedResponse); err != nil {
		s.metrics.RecordRequest(false, time.Since(startTime))
		return nil, shared.NewFetchError("FEED_PARSE_FAILED",
			fmt.Sprintf("failed to parse %s board response", board), "Chart_Service", "fetch_board", err)
	}

	entries := make([]models.ChartEntry, 0, len(feedResponse.Feed.Results))
	for index, result := range feedResponse.Feed.Results {
		entry := models.ChartEntry{
			Rank:      index + 1,
			Name:      result.Name,
			Developer: result.ArtistName,
			IconURL:   result.ArtworkURL,
			DetailURL: result.URL,
			Sources:   []models.SourceLink{{Label: fmt.Sprintf("%s chart", board), URL: feedURL}},
		}

		storeID := models.ParseStoreID(result.URL)
		if storeID == 0 {
			// The feed's id field is the same numeric ID as a string;
			// fall back to it when the URL shape changes.
			storeID = models.ParseStoreID("id" + result.ID)
		}
		entry.Identity = models.AppIdentity{
			StoreID:   storeID,
			Name:      result.Name,
			Developer: result.ArtistName,
		}

		entries = append(entries, entry)
	}

	s.metrics.RecordRequest(true, time.Since(startTime))
	logger.WithField("entries", len(entries)).Info("Fetched ranked chart board")

	return entries, nil
}

// LookupDeveloperSite queries the lookup API for an app's developer
// website URL. Used only as a fallback when the page extractor found
// none; an empty result is not an error.
func (s *ChartService) LookupDeveloperSite(ctx context.Context, storeID int64) (string, error) {
	lookupURL := fmt.Sprintf("%s/lookup?id=%d", s.config.LookupBaseURL, storeID)

	body, err := s.fetchJSON(ctx, lookupURL)
	if err != nil {
		return "", shared.NewFetchError("LOOKUP_FETCH_FAILED",
			fmt.Sprintf("failed to look up store ID %d", storeID), "Chart_Service", "lookup_developer_site", err)
	}

	var lookupResponse models.LookupResponse
	if err := json.Unmarshal(body, &lookupResponse); err != nil {
		return "", shared.NewFetchError("LOOKUP_PARSE_FAILED",
			fmt.Sprintf("failed to parse lookup response for store ID %d", storeID), "Chart_Service", "lookup_developer_site", err)
	}

	if lookupResponse.ResultCount == 0 || len(lookupResponse.Results) == 0 {
		return "", nil
	}
	return lookupResponse.Results[0].SellerURL, nil
}

// fetchJSON executes one GET with browser-like headers and retry.
func (s *ChartService) fetchJSON(ctx context.Context, url string) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	shared.SetBrowserLikeHeaders(request, "application/json")

	client := s.clientFactory.ClientFor(s.config.RequestTimeout)
	response, err := shared.DoWithRetry(client, request, s.config.MaxRetryAttempts)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body from %s: %w", url, err)
	}
	return body, nil
}
