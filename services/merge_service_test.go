package services

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/applens/privacy-backend/models"
)

func trackedRecord(storeID int64, name, developer string, categories ...string) *models.PrivacyRecord {
	record := models.NewPrivacyRecord(models.AppIdentity{StoreID: storeID, Name: name, Developer: developer})
	for _, category := range categories {
		record.AddCategory(models.BucketTracked, category)
	}
	return record
}

func TestMergeEnrichesEntriesByStoreID(t *testing.T) {
	merger := NewMergeService(NewIntensityScorer())

	entries := []models.ChartEntry{
		{Rank: 1, Name: "Acme", Identity: models.AppIdentity{StoreID: 111, Name: "Acme"}},
		{Rank: 2, Name: "Beta", Identity: models.AppIdentity{StoreID: 222, Name: "Beta"}},
	}
	index := NewRecordIndex([]*models.PrivacyRecord{
		trackedRecord(111, "Acme", "Acme Inc", CategoryIdentifiers, CategoryLocation),
	})

	enriched := merger.Merge(entries, index)
	if len(enriched) != 2 {
		t.Fatalf("expected 2 enriched entries, got %d", len(enriched))
	}

	first := enriched[0]
	if !first.PrivacyAvailable {
		t.Fatal("entry 1 should be enriched with the cached record")
	}
	tracked := first.Buckets[models.BucketTracked]
	if len(tracked) != 2 {
		t.Errorf("entry 1 tracking bucket = %v, expected Identifiers and Location", tracked)
	}
	if first.Score.Score <= 0 {
		t.Errorf("entry 1 score = %d, expected > 0", first.Score.Score)
	}

	second := enriched[1]
	if second.PrivacyAvailable || second.Buckets != nil {
		t.Error("entry 2 must carry no privacy fields")
	}
	if second.Score.Score != 0 || second.Score.Band != models.BandLow {
		t.Errorf("entry 2 score = %+v, expected 0/Low", second.Score)
	}
}

func TestMergePreservesOrderAndRanks(t *testing.T) {
	merger := NewMergeService(NewIntensityScorer())

	entries := []models.ChartEntry{
		{Rank: 1, Name: "First", Identity: models.AppIdentity{StoreID: 1, Name: "First"}},
		{Rank: 2, Name: "Second", Identity: models.AppIdentity{StoreID: 2, Name: "Second"}},
		{Rank: 3, Name: "Third", Identity: models.AppIdentity{StoreID: 3, Name: "Third"}},
	}

	enriched := merger.Merge(entries, NewRecordIndex(nil))
	for i, entry := range enriched {
		if entry.Rank != i+1 || entry.Name != entries[i].Name {
			t.Errorf("position %d: got rank %d name %s, expected rank %d name %s",
				i, entry.Rank, entry.Name, entries[i].Rank, entries[i].Name)
		}
	}
}

func TestMergeLookupFallbackOrder(t *testing.T) {
	merger := NewMergeService(NewIntensityScorer())

	byID := trackedRecord(500, "Exact Match", "Dev A", CategoryLocation)
	byNameDev := trackedRecord(0, "Fallback App", "Dev B", CategoryPurchases)
	byNameOnly := trackedRecord(0, "Name Only", "Dev C", CategoryDiagnostics)
	index := NewRecordIndex([]*models.PrivacyRecord{byID, byNameDev, byNameOnly})

	// Numeric ID beats the name keys even when the names disagree.
	idEntry := models.ChartEntry{Rank: 1, Identity: models.AppIdentity{StoreID: 500, Name: "Renamed", Developer: "Dev Z"}}
	enriched := merger.Merge([]models.ChartEntry{idEntry}, index)
	if got := enriched[0].Buckets[models.BucketTracked]; len(got) != 1 || got[0] != CategoryLocation {
		t.Errorf("ID lookup resolved %v, expected the Location record", got)
	}

	// Name+developer with different casing and spacing still matches.
	nameDevEntry := models.ChartEntry{Rank: 1, Identity: models.AppIdentity{Name: "FALLBACK  App", Developer: "dev b"}}
	enriched = merger.Merge([]models.ChartEntry{nameDevEntry}, index)
	if got := enriched[0].Buckets[models.BucketTracked]; len(got) != 1 || got[0] != CategoryPurchases {
		t.Errorf("name+developer lookup resolved %v, expected the Purchases record", got)
	}

	// Name-only is the last resort.
	nameEntry := models.ChartEntry{Rank: 1, Identity: models.AppIdentity{Name: "name only", Developer: "Someone Else"}}
	enriched = merger.Merge([]models.ChartEntry{nameEntry}, index)
	if got := enriched[0].Buckets[models.BucketTracked]; len(got) != 1 || got[0] != CategoryDiagnostics {
		t.Errorf("name-only lookup resolved %v, expected the Diagnostics record", got)
	}
}

func TestDeduplicateEntriesSameStoreIDDifferentCasing(t *testing.T) {
	merger := NewMergeService(NewIntensityScorer())

	entries := []models.ChartEntry{
		{Rank: 1, Name: "Acme App", Identity: models.AppIdentity{StoreID: 111, Name: "Acme App", Developer: "Acme"}},
		{Rank: 7, Name: "ACME APP", Identity: models.AppIdentity{StoreID: 111, Name: "ACME APP", Developer: "ACME"}},
		{Rank: 2, Name: "Other", Identity: models.AppIdentity{StoreID: 222, Name: "Other"}},
	}

	deduplicated := merger.DeduplicateEntries(entries)
	if len(deduplicated) != 2 {
		t.Fatalf("expected 2 entries after dedupe, got %d", len(deduplicated))
	}
	// First occurrence wins.
	if deduplicated[0].Rank != 1 || deduplicated[0].Name != "Acme App" {
		t.Errorf("expected the rank-1 occurrence to win, got %+v", deduplicated[0])
	}
}

func TestBuildSnapshotIsDeterministic(t *testing.T) {
	merger := NewMergeService(NewIntensityScorer())

	boards := map[string][]models.ChartEntry{
		models.BoardTopFree: {
			{Rank: 1, Name: "Acme", Identity: models.AppIdentity{StoreID: 111, Name: "Acme"}},
			{Rank: 2, Name: "Beta", Identity: models.AppIdentity{StoreID: 222, Name: "Beta"}},
		},
		models.BoardTopPaid: {
			{Rank: 1, Name: "Gamma", Identity: models.AppIdentity{StoreID: 333, Name: "Gamma"}},
		},
	}
	index := NewRecordIndex([]*models.PrivacyRecord{
		trackedRecord(111, "Acme", "Acme Inc", CategoryIdentifiers, CategoryLocation),
		trackedRecord(333, "Gamma", "Gamma LLC", CategoryDiagnostics),
	})

	first := merger.BuildSnapshot(boards, index)
	second := merger.BuildSnapshot(boards, index)
	// The capture timestamp is the only run-dependent field.
	second.AsOf = first.AsOf

	firstJSON, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("failed to marshal first snapshot: %v", err)
	}
	secondJSON, err := json.Marshal(second)
	if err != nil {
		t.Fatalf("failed to marshal second snapshot: %v", err)
	}
	if !bytes.Equal(firstJSON, secondJSON) {
		t.Error("two merges of the same inputs must produce byte-identical output")
	}
}

func TestDeduplicateEntriesFallbackKeyIgnoresCasing(t *testing.T) {
	merger := NewMergeService(NewIntensityScorer())

	entries := []models.ChartEntry{
		{Rank: 1, Identity: models.AppIdentity{Name: "Widget  Maker", Developer: "Tools Co"}},
		{Rank: 2, Identity: models.AppIdentity{Name: "widget maker", Developer: "TOOLS CO"}},
	}

	if got := merger.DeduplicateEntries(entries); len(got) != 1 {
		t.Errorf("expected casing/spacing variants to collapse to 1 entry, got %d", len(got))
	}
}
