package models

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// storeIDPattern matches the numeric store ID embedded in detail page URLs,
// e.g. https://apps.apple.com/us/app/acme/id1234567890
var storeIDPattern = regexp.MustCompile(`id(\d+)`)

// AppIdentity is the stable key for one app. The numeric store ID is the
// primary form; when it is absent, the normalized name|developer pair is
// the identity.
type AppIdentity struct {
	StoreID   int64  `json:"store_id,omitempty"`
	Name      string `json:"name"`
	Developer string `json:"developer"`
}

// HasStoreID reports whether the identity carries a numeric store ID.
func (a AppIdentity) HasStoreID() bool {
	return a.StoreID > 0
}

// CacheKey returns the cache key for this identity. Only identities with a
// numeric store ID are cacheable; others return an empty key.
func (a AppIdentity) CacheKey() string {
	if !a.HasStoreID() {
		return ""
	}
	return strconv.FormatInt(a.StoreID, 10)
}

// FallbackKey returns the normalized name|developer key used when no
// numeric store ID is available.
func (a AppIdentity) FallbackKey() string {
	return fmt.Sprintf("%s|%s", NormalizeIdentityText(a.Name), NormalizeIdentityText(a.Developer))
}

// NameKey returns the normalized name alone, used as the last-resort
// lookup key during merging.
func (a AppIdentity) NameKey() string {
	return NormalizeIdentityText(a.Name)
}

// Matches reports whether two identities refer to the same app. Two
// identities sharing a store ID are always the same entity even if the
// display text differs.
func (a AppIdentity) Matches(other AppIdentity) bool {
	if a.HasStoreID() && other.HasStoreID() {
		return a.StoreID == other.StoreID
	}
	return a.FallbackKey() == other.FallbackKey()
}

// NormalizeIdentityText lowercases text, replaces non-breaking spaces and
// collapses internal whitespace so cosmetic differences between chart
// sources do not split one app into two identities.
func NormalizeIdentityText(text string) string {
	text = strings.ReplaceAll(text, " ", " ")
	text = strings.ToLower(text)
	return strings.Join(strings.Fields(text), " ")
}

// ParseStoreID extracts the numeric store ID from a detail page URL.
// Returns 0 when the URL carries no recognizable ID.
func ParseStoreID(detailURL string) int64 {
	match := storeIDPattern.FindStringSubmatch(detailURL)
	if len(match) < 2 {
		return 0
	}
	id, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return 0
	}
	return id
}
