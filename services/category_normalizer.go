package services

import (
	"regexp"
	"strings"
)

// maxTokenLength bounds raw tokens; anything longer is sentence or
// boilerplate text, not a category label.
const maxTokenLength = 48

// Canonical data categories. All raw disclosure text normalizes into
// this closed taxonomy or is dropped.
const (
	CategoryContactInfo     = "Contact Info"
	CategoryHealthFitness   = "Health & Fitness"
	CategoryFinancialInfo   = "Financial Info"
	CategoryLocation        = "Location"
	CategorySensitiveInfo   = "Sensitive Info"
	CategoryContacts        = "Contacts"
	CategoryUserContent     = "User Content"
	CategoryBrowsingHistory = "Browsing History"
	CategorySearchHistory   = "Search History"
	CategoryIdentifiers     = "Identifiers"
	CategoryPurchases       = "Purchases"
	CategoryUsageData       = "Usage Data"
	CategoryDiagnostics     = "Diagnostics"
	CategoryAudioData       = "Audio Data"
	CategoryPhotosVideos    = "Photos or Videos"
	CategoryMessages        = "Messages"
	CategoryOtherData       = "Other Data Types"
)

// CanonicalCategories lists every taxonomy member.
var CanonicalCategories = []string{
	CategoryContactInfo,
	CategoryHealthFitness,
	CategoryFinancialInfo,
	CategoryLocation,
	CategorySensitiveInfo,
	CategoryContacts,
	CategoryUserContent,
	CategoryBrowsingHistory,
	CategorySearchHistory,
	CategoryIdentifiers,
	CategoryPurchases,
	CategoryUsageData,
	CategoryDiagnostics,
	CategoryAudioData,
	CategoryPhotosVideos,
	CategoryMessages,
	CategoryOtherData,
}

// CategoryRule maps a synonym pattern to its canonical category. Rules
// are evaluated in order; the first match wins, so more specific
// patterns must precede broader ones.
type CategoryRule struct {
	Pattern   *regexp.Regexp
	Canonical string
}

// categoryRules is the priority-ordered synonym table. Kept declarative
// and outside control flow so the taxonomy can be extended and tested
// independently of extraction.
var categoryRules = []CategoryRule{
	// Search History before Browsing History: "search" is the more
	// specific signal when both words appear.
	{regexp.MustCompile(`(?i)search\s*history`), CategorySearchHistory},
	{regexp.MustCompile(`(?i)(browsing|web)\s*history`), CategoryBrowsingHistory},
	{regexp.MustCompile(`(?i)(purchase|payment\s*history|order\s*history)`), CategoryPurchases},
	{regexp.MustCompile(`(?i)(identifier|device\s*id|user\s*id|advertising\s*id)`), CategoryIdentifiers},
	{regexp.MustCompile(`(?i)(usage\s*data|product\s*interaction|app\s*interaction|advertising\s*data)`), CategoryUsageData},
	{regexp.MustCompile(`(?i)(diagnostic|crash\s*data|performance\s*data)`), CategoryDiagnostics},
	{regexp.MustCompile(`(?i)(contact\s*info|email\s*address|phone\s*number|physical\s*address|\bname\b)`), CategoryContactInfo},
	{regexp.MustCompile(`(?i)(health|fitness)`), CategoryHealthFitness},
	{regexp.MustCompile(`(?i)(financial|payment\s*info|credit\s*info)`), CategoryFinancialInfo},
	{regexp.MustCompile(`(?i)(precise|coarse)?\s*location`), CategoryLocation},
	{regexp.MustCompile(`(?i)sensitive\s*info`), CategorySensitiveInfo},
	{regexp.MustCompile(`(?i)(photos?|videos?)`), CategoryPhotosVideos},
	{regexp.MustCompile(`(?i)(audio\s*data|voice\s*data|sound\s*recording)`), CategoryAudioData},
	{regexp.MustCompile(`(?i)(emails?\s*or\s*text\s*messages?|messages?\b|sms)`), CategoryMessages},
	// Contacts after Contact Info: "contact info" must not fall through
	// to the address-book category.
	{regexp.MustCompile(`(?i)contacts\b`), CategoryContacts},
	{regexp.MustCompile(`(?i)(user\s*content|customer\s*support|gameplay\s*content|other\s*user\s*content)`), CategoryUserContent},
	{regexp.MustCompile(`(?i)other\s*data(\s*types?)?`), CategoryOtherData},
}

// noisePatterns match UI chrome and boilerplate that leaks into leaf
// text harvesting and must never become a category.
var noisePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^see\s*details$`),
	regexp.MustCompile(`(?i)^learn\s*more$`),
	regexp.MustCompile(`(?i)^privacy\s*policy$`),
	regexp.MustCompile(`(?i)^app\s*privacy$`),
	regexp.MustCompile(`(?i)^privacy\s*practices`),
	regexp.MustCompile(`(?i)^the\s*developer`),
	regexp.MustCompile(`(?i)^data\s*(used\s*to\s*track|linked|not\s*linked)`),
	regexp.MustCompile(`(?i)^(more|less|close|details)$`),
}

// CategoryNormalizer maps arbitrary free-text disclosure tokens to the
// closed taxonomy. Pure; safe for concurrent use.
type CategoryNormalizer struct {
	taxonomy map[string]struct{}
}

// NewCategoryNormalizer creates a normalizer over the closed taxonomy.
func NewCategoryNormalizer() *CategoryNormalizer {
	taxonomy := make(map[string]struct{}, len(CanonicalCategories))
	for _, category := range CanonicalCategories {
		taxonomy[category] = struct{}{}
	}
	return &CategoryNormalizer{taxonomy: taxonomy}
}

// Normalize maps a raw disclosure token to its canonical category.
// Returns false for tokens that are empty, too long, UI noise, or match
// no rule; unknown data is excluded rather than invented. Idempotent
// over taxonomy members.
func (n *CategoryNormalizer) Normalize(rawToken string) (string, bool) {
	token := CleanToken(rawToken)
	if token == "" || len(token) > maxTokenLength {
		return "", false
	}

	// Exact taxonomy members pass through unchanged, which guarantees
	// normalize(normalize(x)) == normalize(x).
	if _, ok := n.taxonomy[token]; ok {
		return token, true
	}

	if n.IsNoise(token) {
		return "", false
	}

	for _, rule := range categoryRules {
		if rule.Pattern.MatchString(token) {
			return rule.Canonical, true
		}
	}

	return "", false
}

// IsNoise reports whether a cleaned token is known UI boilerplate.
func (n *CategoryNormalizer) IsNoise(token string) bool {
	for _, pattern := range noisePatterns {
		if pattern.MatchString(token) {
			return true
		}
	}
	return false
}

// IsCanonical reports whether a string is a taxonomy member.
func (n *CategoryNormalizer) IsCanonical(category string) bool {
	_, ok := n.taxonomy[category]
	return ok
}

var whitespaceRegex = regexp.MustCompile(`\s+`)

// CleanToken trims whitespace, strips non-breaking spaces and collapses
// internal whitespace runs to single spaces.
func CleanToken(text string) string {
	text = strings.ReplaceAll(text, " ", " ")
	text = whitespaceRegex.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
