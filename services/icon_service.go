package services

import (
	"strings"
	"time"

	"github.com/applens/privacy-backend/shared"
	"github.com/gocolly/colly/v2"
	"github.com/sirupsen/logrus"
)

// IconService resolves an app's icon URL from its detail page when the
// chart feed carried none. Strictly best-effort; a missing icon is not
// an error worth failing an entry for.
type IconService struct {
	delayer *shared.PolitenessDelayer
}

// NewIconService creates an icon service with conservative pacing
// against the store site.
func NewIconService() *IconService {
	return &IconService{
		delayer: shared.NewPolitenessDelayer(1*time.Second, 500*time.Millisecond),
	}
}

// FetchIconURL scrapes the detail page's social preview image URL.
// Returns an empty string when none was found.
func (s *IconService) FetchIconURL(detailURL string) (string, error) {
	if detailURL == "" {
		return "", nil
	}
	s.delayer.Wait()

	var iconURL string

	c := colly.NewCollector()
	c.SetRequestTimeout(15 * time.Second)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
	})

	c.OnHTML("meta[property='og:image']", func(e *colly.HTMLElement) {
		if iconURL == "" {
			iconURL = strings.TrimSpace(e.Attr("content"))
		}
	})

	c.OnHTML("meta[name='twitter:image']", func(e *colly.HTMLElement) {
		if iconURL == "" {
			iconURL = strings.TrimSpace(e.Attr("content"))
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		logrus.WithFields(logrus.Fields{
			"component": "IconService",
			"url":       detailURL,
			"status":    r.StatusCode,
		}).WithError(err).Debug("Icon fallback fetch failed")
	})

	if err := c.Visit(detailURL); err != nil {
		return "", shared.NewFetchError("ICON_FETCH_FAILED",
			"failed to fetch detail page for icon fallback", "Icon_Service", "fetch_icon_url", err)
	}
	c.Wait()

	return iconURL, nil
}
