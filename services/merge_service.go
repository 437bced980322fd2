package services

import (
	"time"

	"github.com/applens/privacy-backend/models"
	"github.com/sirupsen/logrus"
)

// RecordIndex resolves privacy records by the merge lookup order: exact
// numeric store ID first, then the normalized name|developer key, then
// name alone. First match wins.
type RecordIndex struct {
	byStoreID  map[int64]*models.PrivacyRecord
	byNameDev  map[string]*models.PrivacyRecord
	byNameOnly map[string]*models.PrivacyRecord
}

// NewRecordIndex builds an index over a set of records. When two
// records collide on a fallback key, the first one indexed wins.
func NewRecordIndex(records []*models.PrivacyRecord) *RecordIndex {
	index := &RecordIndex{
		byStoreID:  make(map[int64]*models.PrivacyRecord, len(records)),
		byNameDev:  make(map[string]*models.PrivacyRecord, len(records)),
		byNameOnly: make(map[string]*models.PrivacyRecord, len(records)),
	}
	for _, record := range records {
		if record == nil {
			continue
		}
		identity := record.Identity()
		if identity.HasStoreID() {
			if _, exists := index.byStoreID[identity.StoreID]; !exists {
				index.byStoreID[identity.StoreID] = record
			}
		}
		if key := identity.FallbackKey(); key != "|" {
			if _, exists := index.byNameDev[key]; !exists {
				index.byNameDev[key] = record
			}
		}
		if key := identity.NameKey(); key != "" {
			if _, exists := index.byNameOnly[key]; !exists {
				index.byNameOnly[key] = record
			}
		}
	}
	return index
}

// Resolve returns the record for an identity, or nil when no key matches.
func (idx *RecordIndex) Resolve(identity models.AppIdentity) *models.PrivacyRecord {
	if identity.HasStoreID() {
		if record, ok := idx.byStoreID[identity.StoreID]; ok {
			return record
		}
	}
	if record, ok := idx.byNameDev[identity.FallbackKey()]; ok {
		return record
	}
	if record, ok := idx.byNameOnly[identity.NameKey()]; ok {
		return record
	}
	return nil
}

// MergeService reconciles ranked chart entries with cached privacy
// records by identity key.
type MergeService struct {
	scorer *IntensityScorer
}

// NewMergeService creates a merge service using the given scorer.
func NewMergeService(scorer *IntensityScorer) *MergeService {
	return &MergeService{scorer: scorer}
}

// Merge attaches privacy records to chart entries. Input order and rank
// values are preserved unchanged; each output entry is built fresh and
// never mutated afterwards. Entries without a resolvable record carry
// no privacy fields and score 0/Low.
func (m *MergeService) Merge(entries []models.ChartEntry, index *RecordIndex) []models.EnrichedEntry {
	enriched := make([]models.EnrichedEntry, 0, len(entries))
	matched := 0

	for _, entry := range entries {
		output := models.EnrichedEntry{ChartEntry: entry}

		record := index.Resolve(entry.Identity)
		if record != nil {
			matched++
			asOf := record.AsOf
			output.PrivacyAvailable = true
			output.AsOf = &asOf
			output.Buckets = record.Buckets
			output.Details = record.Details
			output.PolicyURL = record.PolicyURL
			output.DeveloperSiteURL = record.DeveloperSiteURL
			for _, source := range record.Sources {
				output.Sources = appendUniqueSource(output.Sources, source)
			}
		}

		output.Score = m.scorer.Score(record)
		enriched = append(enriched, output)
	}

	logrus.WithFields(logrus.Fields{
		"component":       "MergeService",
		"entries":         len(entries),
		"records_matched": matched,
	}).Debug("Merged chart entries with privacy records")

	return enriched
}

// DeduplicateEntries removes duplicate apps across combined chart
// sources by identity key; the first occurrence wins and later
// duplicates are dropped.
func (m *MergeService) DeduplicateEntries(entries []models.ChartEntry) []models.ChartEntry {
	seen := make(map[string]struct{}, len(entries))
	deduplicated := make([]models.ChartEntry, 0, len(entries))

	for _, entry := range entries {
		key := entry.Identity.CacheKey()
		if key == "" {
			key = entry.Identity.FallbackKey()
		}
		if _, duplicate := seen[key]; duplicate {
			continue
		}
		seen[key] = struct{}{}
		deduplicated = append(deduplicated, entry)
	}

	return deduplicated
}

// BuildSnapshot merges every board and assembles the aggregate output
// artifact consumed by the presentation layer.
func (m *MergeService) BuildSnapshot(boards map[string][]models.ChartEntry, index *RecordIndex) *models.Snapshot {
	snapshot := &models.Snapshot{
		AsOf:   time.Now().UTC(),
		Boards: make(map[string][]models.EnrichedEntry, len(boards)),
	}
	for board, entries := range boards {
		snapshot.Boards[board] = m.Merge(entries, index)
	}
	return snapshot
}

// appendUniqueSource appends a source link deduplicated by URL.
func appendUniqueSource(sources []models.SourceLink, source models.SourceLink) []models.SourceLink {
	for _, present := range sources {
		if present.URL == source.URL {
			return sources
		}
	}
	return append(sources, source)
}
