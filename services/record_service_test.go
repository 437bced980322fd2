package services

import (
	"context"
	"testing"
	"time"

	"github.com/applens/privacy-backend/models"
	"github.com/applens/privacy-backend/shared"
)

// fakeExtractor records how often it is invoked and returns a canned
// record or error.
type fakeExtractor struct {
	calls  int
	record *models.PrivacyRecord
	err    error
}

func (f *fakeExtractor) Extract(_ context.Context, identity models.AppIdentity) (*models.PrivacyRecord, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.record != nil {
		return f.record, nil
	}
	record := models.NewPrivacyRecord(identity)
	record.AddCategory(models.BucketTracked, CategoryIdentifiers)
	return record, nil
}

func seedRecord(t *testing.T, store RecordStore, storeID int64, age time.Duration) *models.PrivacyRecord {
	t.Helper()
	record := models.NewPrivacyRecord(models.AppIdentity{StoreID: storeID, Name: "Seeded"})
	record.AsOf = time.Now().UTC().Add(-age)
	record.AddCategory(models.BucketLinked, CategoryContactInfo)
	if err := store.Put(context.Background(), record, 14*24*time.Hour); err != nil {
		t.Fatalf("failed to seed store: %v", err)
	}
	return record
}

func TestGetOrRefreshReturnsFreshCacheWithoutExtraction(t *testing.T) {
	store := NewMemoryRecordStore()
	seeded := seedRecord(t, store, 42, 24*time.Hour)

	extractor := &fakeExtractor{}
	service := NewRecordService(store, extractor, 14*24*time.Hour)

	record, err := service.GetOrRefresh(context.Background(), models.AppIdentity{StoreID: 42, Name: "Seeded"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record == nil || !record.AsOf.Equal(seeded.AsOf) {
		t.Fatal("expected the day-old cached record back unchanged")
	}
	if extractor.calls != 0 {
		t.Errorf("extractor called %d times for a fresh record, expected 0", extractor.calls)
	}
	if hits := service.Metrics().GetCounter("cache_hits"); hits != 1 {
		t.Errorf("cache_hits counter = %d, expected 1", hits)
	}
}

func TestGetOrRefreshReExtractsExpiredRecord(t *testing.T) {
	store := NewMemoryRecordStore()
	seedRecord(t, store, 42, 15*24*time.Hour)

	extractor := &fakeExtractor{}
	service := NewRecordService(store, extractor, 14*24*time.Hour)

	record, err := service.GetOrRefresh(context.Background(), models.AppIdentity{StoreID: 42, Name: "Seeded"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if extractor.calls != 1 {
		t.Fatalf("extractor called %d times for a 15 day old record, expected 1", extractor.calls)
	}
	if record == nil || !record.IsFresh(14*24*time.Hour) {
		t.Error("expected a freshly extracted record")
	}
	if got := record.Buckets[models.BucketTracked]; len(got) != 1 || got[0] != CategoryIdentifiers {
		t.Errorf("re-extracted record buckets = %v", got)
	}
}

func TestGetOrRefreshFallsBackToStaleOnFailure(t *testing.T) {
	store := NewMemoryRecordStore()
	seeded := seedRecord(t, store, 42, 15*24*time.Hour)

	extractor := &fakeExtractor{err: shared.NewExtractionError("BUCKETS_NOT_FOUND", "no disclosure headings located", "extract", nil)}
	service := NewRecordService(store, extractor, 14*24*time.Hour)

	record, err := service.GetOrRefresh(context.Background(), models.AppIdentity{StoreID: 42, Name: "Seeded"})
	if err != nil {
		t.Fatalf("stale fallback must not surface the extraction error, got %v", err)
	}
	if record == nil || !record.AsOf.Equal(seeded.AsOf) {
		t.Fatal("expected the stale cached record back")
	}
}

func TestGetOrRefreshFailureWithoutCacheYieldsNil(t *testing.T) {
	extractor := &fakeExtractor{err: shared.NewFetchError("PAGE_LOAD_FAILED", "detail page unreachable", "Label_Extractor", "render_page", nil)}
	service := NewRecordService(NewMemoryRecordStore(), extractor, 14*24*time.Hour)

	record, err := service.GetOrRefresh(context.Background(), models.AppIdentity{StoreID: 42, Name: "Unknown"})
	if err != nil {
		t.Fatalf("absent privacy data is not an error, got %v", err)
	}
	if record != nil {
		t.Error("expected nil record when extraction fails with nothing cached")
	}
}

func TestGetOrRefreshSkipsIdentitiesWithoutStoreID(t *testing.T) {
	extractor := &fakeExtractor{}
	service := NewRecordService(NewMemoryRecordStore(), extractor, 14*24*time.Hour)

	record, err := service.GetOrRefresh(context.Background(), models.AppIdentity{Name: "No ID", Developer: "Someone"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record != nil {
		t.Error("identities without a numeric store ID cannot resolve to a record")
	}
	if extractor.calls != 0 {
		t.Errorf("extractor called %d times without a store ID, expected 0", extractor.calls)
	}
}

func TestGetOrRefreshTreatsMalformedCacheAsMiss(t *testing.T) {
	store := &malformedStore{}
	extractor := &fakeExtractor{}
	service := NewRecordService(store, extractor, 14*24*time.Hour)

	record, err := service.GetOrRefresh(context.Background(), models.AppIdentity{StoreID: 42, Name: "Corrupt"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if extractor.calls != 1 {
		t.Errorf("extractor called %d times on a malformed cache entry, expected 1", extractor.calls)
	}
	if record == nil {
		t.Error("expected a freshly extracted record replacing the corrupt entry")
	}
}

// malformedStore always reports its persisted content as unparsable.
type malformedStore struct {
	puts int
}

func (m *malformedStore) Get(_ context.Context, _ int64) (*models.PrivacyRecord, error) {
	return nil, shared.NewMalformedDataError("RECORD_UNPARSABLE",
		"persisted privacy record is not valid JSON", "Record_Store", nil)
}

func (m *malformedStore) Put(_ context.Context, _ *models.PrivacyRecord, _ time.Duration) error {
	m.puts++
	return nil
}

func (m *malformedStore) DeleteExpiredBefore(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

// fakeSiteLookup returns a canned developer website URL and counts calls.
type fakeSiteLookup struct {
	calls   int
	siteURL string
	err     error
}

func (f *fakeSiteLookup) LookupDeveloperSite(_ context.Context, _ int64) (string, error) {
	f.calls++
	return f.siteURL, f.err
}

func TestGetOrRefreshFillsDeveloperSiteFromLookup(t *testing.T) {
	extractor := &fakeExtractor{}
	lookup := &fakeSiteLookup{siteURL: "https://acme.example"}
	service := NewRecordService(NewMemoryRecordStore(), extractor, 14*24*time.Hour)
	service.SetDeveloperSiteLookup(lookup)

	record, err := service.GetOrRefresh(context.Background(), models.AppIdentity{StoreID: 42, Name: "Acme"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lookup.calls != 1 {
		t.Fatalf("lookup called %d times for a record without a site URL, expected 1", lookup.calls)
	}
	if record.DeveloperSiteURL == nil || *record.DeveloperSiteURL != "https://acme.example" {
		t.Errorf("developer site URL = %v, expected the lookup result", record.DeveloperSiteURL)
	}

	found := false
	for _, source := range record.Sources {
		if source.URL == "https://acme.example" {
			found = true
		}
	}
	if !found {
		t.Error("lookup result should be recorded as a source link")
	}
}

func TestGetOrRefreshSkipsLookupWhenExtractorFoundSite(t *testing.T) {
	extracted := models.NewPrivacyRecord(models.AppIdentity{StoreID: 42, Name: "Acme"})
	extractedSite := "https://extracted.example"
	extracted.DeveloperSiteURL = &extractedSite

	extractor := &fakeExtractor{record: extracted}
	lookup := &fakeSiteLookup{siteURL: "https://acme.example"}
	service := NewRecordService(NewMemoryRecordStore(), extractor, 14*24*time.Hour)
	service.SetDeveloperSiteLookup(lookup)

	record, err := service.GetOrRefresh(context.Background(), models.AppIdentity{StoreID: 42, Name: "Acme"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lookup.calls != 0 {
		t.Errorf("lookup called %d times although the extractor found a site URL, expected 0", lookup.calls)
	}
	if record.DeveloperSiteURL == nil || *record.DeveloperSiteURL != extractedSite {
		t.Errorf("developer site URL = %v, expected the extracted one", record.DeveloperSiteURL)
	}
}

func TestGetOrRefreshSkipsLookupOnFreshCacheHit(t *testing.T) {
	store := NewMemoryRecordStore()
	seedRecord(t, store, 42, 24*time.Hour)

	lookup := &fakeSiteLookup{siteURL: "https://acme.example"}
	service := NewRecordService(store, &fakeExtractor{}, 14*24*time.Hour)
	service.SetDeveloperSiteLookup(lookup)

	if _, err := service.GetOrRefresh(context.Background(), models.AppIdentity{StoreID: 42, Name: "Seeded"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lookup.calls != 0 {
		t.Errorf("lookup called %d times on a fresh cache hit, expected 0", lookup.calls)
	}
}

func TestGetOrRefreshToleratesLookupFailure(t *testing.T) {
	extractor := &fakeExtractor{}
	lookup := &fakeSiteLookup{err: shared.NewFetchError("LOOKUP_FETCH_FAILED", "lookup API unreachable", "Chart_Service", "lookup_developer_site", nil)}
	service := NewRecordService(NewMemoryRecordStore(), extractor, 14*24*time.Hour)
	service.SetDeveloperSiteLookup(lookup)

	record, err := service.GetOrRefresh(context.Background(), models.AppIdentity{StoreID: 42, Name: "Acme"})
	if err != nil {
		t.Fatalf("a failed lookup must not fail the refresh, got %v", err)
	}
	if record == nil || record.DeveloperSiteURL != nil {
		t.Error("expected the extracted record with no developer site URL")
	}
}

func TestCleanupExpiredRespectsGracePeriod(t *testing.T) {
	store := NewMemoryRecordStore()
	seedRecord(t, store, 1, 50*24*time.Hour) // expired well past the grace period
	seedRecord(t, store, 2, 15*24*time.Hour) // expired, but still fallback data
	seedRecord(t, store, 3, 24*time.Hour)    // fresh

	service := NewRecordService(store, &fakeExtractor{}, 14*24*time.Hour)

	removed, err := service.CleanupExpired(context.Background(), 30*24*time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed %d rows, expected only the long-expired one", removed)
	}
	for _, storeID := range []int64{2, 3} {
		record, _ := store.Get(context.Background(), storeID)
		if record == nil {
			t.Errorf("store ID %d should have survived cleanup", storeID)
		}
	}
}
