package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/applens/privacy-backend/models"
	"github.com/applens/privacy-backend/shared"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"
)

// LabelExtractorConfig holds configuration parameters for the privacy
// label extractor
type LabelExtractorConfig struct {
	BaseURL           string        // Store front base URL
	Country           string        // Storefront country code
	PageLoadTimeout   time.Duration // Maximum wait for the first render attempt
	RetryTimeout      time.Duration // Longer wait for the unanchored retry attempt
	SettleDelay       time.Duration // Wait for dynamic content after navigation
	RetrySettleDelay  time.Duration // Longer settle delay on the retry attempt
	MinRegionElements int           // Minimum sub-elements for a bucket region candidate
}

// NewDefaultLabelExtractorConfig returns production-ready default configuration
func NewDefaultLabelExtractorConfig() *LabelExtractorConfig {
	return &LabelExtractorConfig{
		BaseURL:           "https://apps.apple.com",
		Country:           "us",
		PageLoadTimeout:   30 * time.Second,
		RetryTimeout:      45 * time.Second,
		SettleDelay:       2 * time.Second,
		RetrySettleDelay:  5 * time.Second,
		MinRegionElements: 4,
	}
}

// Purpose names that appear as headings in the expanded privacy detail
// breakdown.
var knownPurposeNames = []string{
	"Third-Party Advertising",
	"Developer's Advertising or Marketing",
	"Advertising",
	"Analytics",
	"Product Personalization",
	"Personalization",
	"App Functionality",
	"Other Purposes",
}

// simpleTokenPattern accepts short label-like tokens and excludes
// sentences and boilerplate harvested from leaf text nodes.
var simpleTokenPattern = regexp.MustCompile(`^[A-Za-z0-9&'’/ -]+$`)

// revealDetailsScript clicks any collapsed "see details" control on the
// privacy section. Absence of the control is not an error.
const revealDetailsScript = `
(function() {
	let clicked = 0;
	const controls = document.querySelectorAll('button, a');
	for (const control of controls) {
		const text = (control.textContent || '').trim().toLowerCase();
		if (text === 'see details' || text === 'see details for each category') {
			control.click();
			clicked++;
		}
	}
	return clicked;
})();
`

// PrivacyLabelExtractor renders an app detail page in a headless
// browser and harvests the three privacy disclosure buckets into a
// normalized PrivacyRecord. Document parsing is split from rendering so
// the harvesting steps are unit-testable against captured page
// snapshots.
type PrivacyLabelExtractor struct {
	config     *LabelExtractorConfig
	normalizer *CategoryNormalizer
	metrics    *shared.ExtractionMetrics
}

// NewPrivacyLabelExtractor creates an extractor with the given
// configuration; nil selects defaults.
func NewPrivacyLabelExtractor(config *LabelExtractorConfig) *PrivacyLabelExtractor {
	if config == nil {
		config = NewDefaultLabelExtractorConfig()
	}
	return &PrivacyLabelExtractor{
		config:     config,
		normalizer: NewCategoryNormalizer(),
		metrics:    shared.NewExtractionMetrics(),
	}
}

// Metrics exposes the extraction metrics tracker.
func (e *PrivacyLabelExtractor) Metrics() *shared.ExtractionMetrics {
	return e.metrics
}

// Extract renders the detail page for the identity's numeric store ID
// and returns its normalized privacy record. If the bucket headings are
// not found within the bounded wait, one retry runs against the
// unanchored URL variant with a longer wait before the extraction
// fails.
func (e *PrivacyLabelExtractor) Extract(ctx context.Context, identity models.AppIdentity) (*models.PrivacyRecord, error) {
	if !identity.HasStoreID() {
		return nil, shared.NewPipelineError(shared.ErrorCategoryValidation, "MISSING_STORE_ID",
			"cannot extract privacy labels without a numeric store ID", "Label_Extractor", "extract", false, nil)
	}

	logger := logrus.WithFields(logrus.Fields{
		"component": "PrivacyLabelExtractor",
		"store_id":  identity.StoreID,
		"app_name":  identity.Name,
	})

	detailURL := e.detailPageURL(identity.StoreID)
	anchoredURL := detailURL + "#app-privacy"

	logger.Debug("Starting privacy label extraction")

	record, err := e.attempt(ctx, anchoredURL, identity, e.config.PageLoadTimeout, e.config.SettleDelay)
	if err != nil {
		logger.WithError(err).Debug("Anchored extraction attempt failed, retrying against unanchored URL")
		e.metrics.RecordHeadingRetry()

		record, err = e.attempt(ctx, detailURL, identity, e.config.RetryTimeout, e.config.RetrySettleDelay)
		if err != nil {
			return nil, shared.NewExtractionError("BUCKETS_NOT_FOUND",
				fmt.Sprintf("privacy buckets not found for store ID %d after retry", identity.StoreID),
				"extract", err).WithDetails(map[string]interface{}{
				"detail_url": detailURL,
				"app_name":   identity.Name,
			})
		}
	}

	record.AddSource("App Store", detailURL)

	logger.WithFields(logrus.Fields{
		"categories": record.CategoryCount(),
		"has_policy": record.PolicyURL != nil,
	}).Info("Privacy label extraction completed")

	return record, nil
}

// attempt performs one render-and-harvest pass against a single URL.
func (e *PrivacyLabelExtractor) attempt(ctx context.Context, url string, identity models.AppIdentity, timeout, settle time.Duration) (*models.PrivacyRecord, error) {
	html, err := e.renderDetailPage(ctx, url, timeout, settle)
	if err != nil {
		e.metrics.RecordPageLoad(false)
		return nil, err
	}
	e.metrics.RecordPageLoad(true)

	return e.ExtractFromHTML(html, identity)
}

// renderDetailPage loads the page in a headless browser, reveals any
// collapsed detail panel and returns the rendered HTML. The browser
// context is released on every exit path.
func (e *PrivacyLabelExtractor) renderDetailPage(ctx context.Context, url string, timeout, settle time.Duration) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-images", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.UserAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	runCtx, cancelRun := context.WithTimeout(browserCtx, timeout)
	defer cancelRun()

	var pageHTML string
	var revealedControls int

	err := chromedp.Run(runCtx,
		chromedp.EmulateViewport(1920, 1080),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		// Reveal the collapsed "see details" panel; absence is non-fatal
		chromedp.Evaluate(revealDetailsScript, &revealedControls),
		chromedp.Sleep(settle),
		chromedp.OuterHTML("html", &pageHTML, chromedp.ByQuery),
	)
	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return "", shared.NewPipelineError(shared.ErrorCategoryTimeout, "PAGE_LOAD_TIMEOUT",
				fmt.Sprintf("detail page did not load within %v: %s", timeout, url),
				"Label_Extractor", "render_detail_page", true, err)
		}
		return "", shared.NewExtractionError("PAGE_LOAD_FAILED",
			fmt.Sprintf("failed to load detail page %s", url), "render_detail_page", err)
	}

	logrus.WithFields(logrus.Fields{
		"component":         "PrivacyLabelExtractor",
		"url":               url,
		"revealed_controls": revealedControls,
		"html_bytes":        len(pageHTML),
	}).Debug("Rendered detail page")

	return pageHTML, nil
}

// ExtractFromHTML parses rendered page HTML and harvests the privacy
// record from it.
func (e *PrivacyLabelExtractor) ExtractFromHTML(pageHTML string, identity models.AppIdentity) (*models.PrivacyRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return nil, shared.NewExtractionError("HTML_PARSE_FAILED", "failed to parse rendered page HTML", "extract_from_html", err)
	}
	return e.ExtractFromDocument(doc, identity)
}

// ExtractFromDocument harvests a privacy record from a parsed document.
// It fails only when none of the three bucket headings can be located;
// individual missing buckets degrade to empty category sets.
func (e *PrivacyLabelExtractor) ExtractFromDocument(doc *goquery.Document, identity models.AppIdentity) (*models.PrivacyRecord, error) {
	record := models.NewPrivacyRecord(identity)

	locatedBuckets := 0
	for _, bucket := range models.BucketNames {
		region := e.locateBucketRegion(doc, bucket)
		if region == nil {
			e.metrics.RecordBucket(false)
			continue
		}
		e.metrics.RecordBucket(true)
		locatedBuckets++

		for _, category := range e.harvestBucketTokens(region, identity) {
			record.AddCategory(bucket, category)
		}
	}

	if locatedBuckets == 0 {
		return nil, shared.NewExtractionError("BUCKET_HEADINGS_NOT_FOUND",
			"none of the privacy bucket headings were found in the document", "extract_from_document", nil)
	}

	e.parseCategoryDetails(doc, record)
	e.extractSourceLinks(doc, record)

	return record, nil
}

// locateBucketRegion finds the DOM region holding one bucket's
// disclosures. Among elements whose own text matches the heading
// case-insensitively, it prefers the smallest enclosing container that
// still has more than a minimal number of sub-elements, so a heading
// mentioned in boilerplate never selects the whole page body.
func (e *PrivacyLabelExtractor) locateBucketRegion(doc *goquery.Document, heading string) *goquery.Selection {
	var bestRegion *goquery.Selection
	bestSize := 0

	doc.Find("h1, h2, h3, h4, h5, div, span, p").Each(func(_ int, candidate *goquery.Selection) {
		// Exact text equality keeps only the tight heading node; every
		// ancestor also "contains" the heading text.
		if !strings.EqualFold(CleanToken(candidate.Text()), heading) {
			return
		}

		region := e.enclosingRegion(candidate)
		if region == nil {
			return
		}

		size := region.Find("*").Length()
		if bestRegion == nil || size < bestSize {
			bestRegion = region
			bestSize = size
		}
	})

	return bestRegion
}

// enclosingRegion climbs from a heading node to the nearest ancestor
// with more than the configured minimum number of sub-elements.
func (e *PrivacyLabelExtractor) enclosingRegion(heading *goquery.Selection) *goquery.Selection {
	for parent := heading.Parent(); parent.Length() > 0; parent = parent.Parent() {
		name := goquery.NodeName(parent)
		if name == "body" || name == "html" {
			return nil
		}
		if parent.Find("*").Length() > e.config.MinRegionElements {
			return parent
		}
	}
	return nil
}

// harvestBucketTokens collects leaf text nodes within a bucket region,
// filters out sentences, UI chrome, bucket headings and the bare
// developer name, and normalizes the survivors into canonical
// categories.
func (e *PrivacyLabelExtractor) harvestBucketTokens(region *goquery.Selection, identity models.AppIdentity) []string {
	harvested := 0
	seen := make(map[string]struct{})
	var categories []string

	region.Find("*").Each(func(_ int, node *goquery.Selection) {
		if node.Children().Length() > 0 {
			return
		}

		token := CleanToken(node.Text())
		if token == "" {
			return
		}
		harvested++

		if len(token) > maxTokenLength || !simpleTokenPattern.MatchString(token) {
			return
		}
		if e.isBucketHeading(token) {
			return
		}
		if identity.Developer != "" && strings.EqualFold(token, identity.Developer) {
			return
		}

		category, ok := e.normalizer.Normalize(token)
		if !ok {
			return
		}
		if _, duplicate := seen[category]; duplicate {
			return
		}
		seen[category] = struct{}{}
		categories = append(categories, category)
	})

	e.metrics.RecordTokens(harvested, len(categories))
	return categories
}

// isBucketHeading reports whether a token is one of the three fixed
// bucket headings.
func (e *PrivacyLabelExtractor) isBucketHeading(token string) bool {
	for _, bucket := range models.BucketNames {
		if strings.EqualFold(token, bucket) {
			return true
		}
	}
	return false
}

// parseCategoryDetails harvests the optional expanded breakdown that
// groups categories and their subtypes under purpose headings. Purely
// best-effort; a page without the expanded panel leaves details at the
// flags AddCategory already set.
func (e *PrivacyLabelExtractor) parseCategoryDetails(doc *goquery.Document, record *models.PrivacyRecord) {
	parsedAny := false

	for _, purpose := range knownPurposeNames {
		doc.Find("h3, h4, h5, div, span, p").Each(func(_ int, candidate *goquery.Selection) {
			if !strings.EqualFold(CleanToken(candidate.Text()), purpose) {
				return
			}

			region := e.enclosingRegion(candidate)
			if region == nil {
				return
			}

			region.Find("*").Each(func(_ int, node *goquery.Selection) {
				if node.Children().Length() > 0 {
					return
				}

				token := CleanToken(node.Text())
				if token == "" || len(token) > maxTokenLength || !simpleTokenPattern.MatchString(token) {
					return
				}

				category, ok := e.normalizer.Normalize(token)
				if !ok {
					return
				}

				detail := record.Details[category]
				detail.Purposes = appendUnique(detail.Purposes, purpose)
				// A synonym that is not the canonical name itself is a
				// concrete subtype, e.g. "Device ID" under Identifiers.
				if !strings.EqualFold(token, category) {
					detail.Subtypes = appendUnique(detail.Subtypes, token)
				}
				record.Details[category] = detail
				parsedAny = true
			})
		})
	}

	e.metrics.RecordDetailsParse(parsedAny)
}

// extractSourceLinks captures privacy policy and developer site links
// via anchor text heuristics. Absence is not an error.
func (e *PrivacyLabelExtractor) extractSourceLinks(doc *goquery.Document, record *models.PrivacyRecord) {
	doc.Find("a").Each(func(_ int, anchor *goquery.Selection) {
		href, exists := anchor.Attr("href")
		if !exists || href == "" || strings.HasPrefix(href, "#") {
			return
		}

		text := strings.ToLower(CleanToken(anchor.Text()))
		switch {
		case strings.Contains(text, "privacy policy"):
			if record.PolicyURL == nil {
				policyURL := href
				record.PolicyURL = &policyURL
				record.AddSource("Privacy Policy", href)
			}
		case strings.Contains(text, "developer website") || strings.Contains(text, "app support"):
			if record.DeveloperSiteURL == nil {
				siteURL := href
				record.DeveloperSiteURL = &siteURL
				record.AddSource("Developer Website", href)
			}
		}
	})
}

// detailPageURL builds the canonical detail page URL for a store ID.
func (e *PrivacyLabelExtractor) detailPageURL(storeID int64) string {
	return fmt.Sprintf("%s/%s/app/id%d", e.config.BaseURL, e.config.Country, storeID)
}

// appendUnique appends value to values unless already present.
func appendUnique(values []string, value string) []string {
	for _, present := range values {
		if present == value {
			return values
		}
	}
	return append(values, value)
}
