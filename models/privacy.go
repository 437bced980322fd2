package models

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// The three fixed disclosure buckets shown on every app detail page.
const (
	BucketTracked   = "Data Used to Track You"
	BucketLinked    = "Data Linked to You"
	BucketNotLinked = "Data Not Linked to You"
)

// BucketNames lists the fixed buckets in display order.
var BucketNames = []string{BucketTracked, BucketLinked, BucketNotLinked}

// SourceLink is a labeled URL pointing at where a piece of data came from.
type SourceLink struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// CategoryDetail carries the optional per-category breakdown harvested
// from the expanded "See Details" privacy panel.
type CategoryDetail struct {
	Subtypes  []string `json:"subtypes,omitempty"`
	Purposes  []string `json:"purposes,omitempty"`
	Tracked   bool     `json:"tracked"`
	Linked    bool     `json:"linked"`
	NotLinked bool     `json:"not_linked"`
}

// PrivacyRecord is the normalized capture of one app's privacy label.
// Buckets map each fixed bucket name to a sorted, deduplicated set of
// canonical category names.
type PrivacyRecord struct {
	ID        uuid.UUID `json:"id"`
	StoreID   int64     `json:"store_id"`
	Name      string    `json:"name"`
	Developer string    `json:"developer"`
	AsOf      time.Time `json:"as_of"`

	Buckets map[string][]string       `json:"buckets"`
	Details map[string]CategoryDetail `json:"details,omitempty"`

	PolicyURL        *string      `json:"policy_url,omitempty"`
	DeveloperSiteURL *string      `json:"developer_site_url,omitempty"`
	Sources          []SourceLink `json:"sources,omitempty"`
}

// NewPrivacyRecord creates an empty record for the given identity with
// all three buckets present and empty.
func NewPrivacyRecord(identity AppIdentity) *PrivacyRecord {
	record := &PrivacyRecord{
		ID:        uuid.New(),
		StoreID:   identity.StoreID,
		Name:      identity.Name,
		Developer: identity.Developer,
		AsOf:      time.Now().UTC(),
		Buckets:   make(map[string][]string, len(BucketNames)),
		Details:   make(map[string]CategoryDetail),
	}
	for _, bucket := range BucketNames {
		record.Buckets[bucket] = []string{}
	}
	return record
}

// Identity returns the identity key of the record.
func (r *PrivacyRecord) Identity() AppIdentity {
	return AppIdentity{StoreID: r.StoreID, Name: r.Name, Developer: r.Developer}
}

// IsFresh reports whether the record is still within its time-to-live.
func (r *PrivacyRecord) IsFresh(ttl time.Duration) bool {
	return time.Since(r.AsOf) < ttl
}

// IsEmpty reports whether no bucket holds any category.
func (r *PrivacyRecord) IsEmpty() bool {
	for _, categories := range r.Buckets {
		if len(categories) > 0 {
			return false
		}
	}
	return true
}

// AddCategory inserts a canonical category into a bucket, keeping the
// bucket a sorted set and the per-category flags consistent with bucket
// membership.
func (r *PrivacyRecord) AddCategory(bucket, category string) {
	if r.Buckets == nil {
		r.Buckets = make(map[string][]string, len(BucketNames))
	}
	existing := r.Buckets[bucket]
	for _, present := range existing {
		if present == category {
			return
		}
	}
	existing = append(existing, category)
	sort.Strings(existing)
	r.Buckets[bucket] = existing

	if r.Details == nil {
		r.Details = make(map[string]CategoryDetail)
	}
	detail := r.Details[category]
	switch bucket {
	case BucketTracked:
		detail.Tracked = true
	case BucketLinked:
		detail.Linked = true
	case BucketNotLinked:
		detail.NotLinked = true
	}
	r.Details[category] = detail
}

// AddSource appends a source link, deduplicated by URL.
func (r *PrivacyRecord) AddSource(label, url string) {
	if url == "" {
		return
	}
	for _, source := range r.Sources {
		if source.URL == url {
			return
		}
	}
	r.Sources = append(r.Sources, SourceLink{Label: label, URL: url})
}

// CategoryCount returns the total number of category entries across all
// buckets.
func (r *PrivacyRecord) CategoryCount() int {
	total := 0
	for _, categories := range r.Buckets {
		total += len(categories)
	}
	return total
}
