package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/applens/privacy-backend/models"
	"github.com/applens/privacy-backend/shared"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RecordExtractor produces a fresh privacy record for an identity. The
// page extractor implements it; tests substitute fakes.
type RecordExtractor interface {
	Extract(ctx context.Context, identity models.AppIdentity) (*models.PrivacyRecord, error)
}

// DeveloperSiteLookup resolves an app's developer website URL from the
// store's lookup API. The chart service implements it.
type DeveloperSiteLookup interface {
	LookupDeveloperSite(ctx context.Context, storeID int64) (string, error)
}

// RecordStore persists privacy records keyed by numeric store ID. Get
// returns the stored record regardless of freshness (stale rows are the
// fallback data) and nil without error on a miss.
type RecordStore interface {
	Get(ctx context.Context, storeID int64) (*models.PrivacyRecord, error)
	Put(ctx context.Context, record *models.PrivacyRecord, ttl time.Duration) error
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RecordService implements the cache-freshness policy around the page
// extractor: fresh cached records are returned without a network call,
// stale or missing records trigger re-extraction, and a failed
// re-extraction preserves the last good cached record instead of
// deleting it.
type RecordService struct {
	store      RecordStore
	extractor  RecordExtractor
	siteLookup DeveloperSiteLookup
	ttl        time.Duration

	memory      map[int64]*models.PrivacyRecord
	memoryMutex sync.RWMutex

	metrics *shared.ServiceMetrics
}

// NewRecordService creates a record service with the given TTL.
func NewRecordService(store RecordStore, extractor RecordExtractor, ttl time.Duration) *RecordService {
	return &RecordService{
		store:     store,
		extractor: extractor,
		ttl:       ttl,
		memory:    make(map[int64]*models.PrivacyRecord),
		metrics:   shared.NewServiceMetrics("Record_Service"),
	}
}

// SetDeveloperSiteLookup configures the lookup API fallback used to
// fill a freshly extracted record's developer site URL when the page
// extractor found none.
func (s *RecordService) SetDeveloperSiteLookup(lookup DeveloperSiteLookup) {
	s.siteLookup = lookup
}

// Metrics exposes the record service metrics tracker.
func (s *RecordService) Metrics() *shared.ServiceMetrics {
	return s.metrics
}

// TTL returns the configured record time-to-live.
func (s *RecordService) TTL() time.Duration {
	return s.ttl
}

// GetOrRefresh returns the privacy record for an identity, re-extracting
// when the cached copy has outlived its TTL. Identities without a
// numeric store ID cannot be cached or refreshed and resolve to nil;
// callers must tolerate absent privacy data.
func (s *RecordService) GetOrRefresh(ctx context.Context, identity models.AppIdentity) (*models.PrivacyRecord, error) {
	if !identity.HasStoreID() {
		s.metrics.IncrementCounter("uncacheable_identities")
		return nil, nil
	}

	logger := logrus.WithFields(logrus.Fields{
		"component": "RecordService",
		"store_id":  identity.StoreID,
	})

	cached := s.lookupCached(ctx, identity.StoreID)
	if cached != nil && cached.IsFresh(s.ttl) {
		s.metrics.IncrementCounter("cache_hits")
		logger.WithField("as_of", cached.AsOf).Debug("Returning fresh cached privacy record")
		return cached, nil
	}

	s.metrics.IncrementCounter("cache_misses")
	startTime := time.Now()

	record, err := s.extractor.Extract(ctx, identity)
	if err != nil {
		s.metrics.RecordRequest(false, time.Since(startTime))

		if cached != nil {
			// Last good record beats no record; extraction failures must
			// never delete previously captured data.
			logger.WithError(err).Warn("Extraction failed, falling back to stale cached record")
			s.metrics.IncrementCounter("stale_fallbacks")
			return cached, nil
		}

		logger.WithError(err).Warn("Extraction failed with no cached record, app proceeds without privacy data")
		return nil, nil
	}
	s.metrics.RecordRequest(true, time.Since(startTime))

	s.fillDeveloperSite(ctx, record, logger)
	s.persist(ctx, record)
	return record, nil
}

// fillDeveloperSite asks the lookup API for the developer website when
// the page extractor found none. Best-effort; runs only on fresh
// extractions so cached records never trigger lookup traffic.
func (s *RecordService) fillDeveloperSite(ctx context.Context, record *models.PrivacyRecord, logger *logrus.Entry) {
	if s.siteLookup == nil || record.DeveloperSiteURL != nil {
		return
	}

	siteURL, err := s.siteLookup.LookupDeveloperSite(ctx, record.StoreID)
	if err != nil {
		logger.WithError(err).Debug("Developer site lookup failed")
		s.metrics.IncrementCounter("site_lookup_failures")
		return
	}
	if siteURL == "" {
		return
	}

	record.DeveloperSiteURL = &siteURL
	record.AddSource("Developer Website", siteURL)
	s.metrics.IncrementCounter("site_lookups_filled")
}

// Peek returns the cached record for a store ID without triggering
// extraction, or nil when none exists. Stale records are returned as-is.
func (s *RecordService) Peek(ctx context.Context, storeID int64) *models.PrivacyRecord {
	if storeID <= 0 {
		return nil
	}
	return s.lookupCached(ctx, storeID)
}

// lookupCached checks the in-memory cache first, then the store.
// Malformed persisted content surfaces as a miss, not a failure.
func (s *RecordService) lookupCached(ctx context.Context, storeID int64) *models.PrivacyRecord {
	s.memoryMutex.RLock()
	record, ok := s.memory[storeID]
	s.memoryMutex.RUnlock()
	if ok {
		return record
	}

	if s.store == nil {
		return nil
	}

	record, err := s.store.Get(ctx, storeID)
	if err != nil {
		if shared.IsMalformedDataError(err) {
			logrus.WithFields(logrus.Fields{
				"component": "RecordService",
				"store_id":  storeID,
			}).Warn("Cached record unparsable, treating as cache miss")
			s.metrics.IncrementCounter("malformed_cache_entries")
			return nil
		}
		logrus.WithError(err).WithField("store_id", storeID).Error("Failed to read cached privacy record")
		return nil
	}

	if record != nil {
		s.memoryMutex.Lock()
		s.memory[storeID] = record
		s.memoryMutex.Unlock()
	}
	return record
}

// persist writes a record to memory and the store; writes for the same
// identity are last-write-wins.
func (s *RecordService) persist(ctx context.Context, record *models.PrivacyRecord) {
	s.memoryMutex.Lock()
	s.memory[record.StoreID] = record
	s.memoryMutex.Unlock()

	if s.store == nil {
		return
	}
	if err := s.store.Put(ctx, record, s.ttl); err != nil {
		// Persistence failure degrades to memory-only caching for this run.
		logrus.WithError(err).WithFields(logrus.Fields{
			"component": "RecordService",
			"store_id":  record.StoreID,
		}).Error("Failed to persist privacy record")
	}
}

// CleanupExpired drops stale in-memory entries and deletes store rows
// that expired more than gracePeriod ago. Recently expired rows survive
// because they are the fallback data for failed re-extractions.
func (s *RecordService) CleanupExpired(ctx context.Context, gracePeriod time.Duration) (int64, error) {
	s.memoryMutex.Lock()
	for storeID, record := range s.memory {
		if !record.IsFresh(s.ttl) {
			delete(s.memory, storeID)
		}
	}
	s.memoryMutex.Unlock()

	if s.store == nil {
		return 0, nil
	}
	return s.store.DeleteExpiredBefore(ctx, time.Now().Add(-gracePeriod))
}

// PostgresRecordStore persists privacy records as JSONB rows keyed by
// store ID.
type PostgresRecordStore struct {
	db *sql.DB
}

// NewPostgresRecordStore creates a store over an open database handle.
func NewPostgresRecordStore(db *sql.DB) *PostgresRecordStore {
	return &PostgresRecordStore{db: db}
}

// Get returns the stored record for a store ID, nil on a miss, and a
// malformed-data error when the persisted JSON no longer parses.
func (ps *PostgresRecordStore) Get(ctx context.Context, storeID int64) (*models.PrivacyRecord, error) {
	query := `SELECT record FROM privacy_record_cache WHERE store_id = $1`

	var payload []byte
	err := ps.db.QueryRowContext(ctx, query, storeID).Scan(&payload)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, shared.WrapError(err, shared.ErrorCategoryDatabase, "RECORD_READ_FAILED", "Record_Store", "get", true)
	}

	var record models.PrivacyRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, shared.NewMalformedDataError("RECORD_UNPARSABLE",
			"persisted privacy record is not valid JSON", "Record_Store", err)
	}
	return &record, nil
}

// Put upserts a record; concurrent writers for the same store ID are
// last-write-wins.
func (ps *PostgresRecordStore) Put(ctx context.Context, record *models.PrivacyRecord, ttl time.Duration) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return shared.WrapError(err, shared.ErrorCategoryProcessing, "RECORD_MARSHAL_FAILED", "Record_Store", "put", false)
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	query := `
		INSERT INTO privacy_record_cache (id, store_id, record, captured_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (store_id) DO UPDATE SET
			record = EXCLUDED.record,
			captured_at = EXCLUDED.captured_at,
			expires_at = EXCLUDED.expires_at
	`

	_, err = ps.db.ExecContext(ctx, query,
		record.ID, record.StoreID, payload, record.AsOf, record.AsOf.Add(ttl))
	if err != nil {
		return shared.WrapError(err, shared.ErrorCategoryDatabase, "RECORD_WRITE_FAILED", "Record_Store", "put", true)
	}
	return nil
}

// DeleteExpiredBefore removes rows whose expiry passed before the cutoff.
func (ps *PostgresRecordStore) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := ps.db.ExecContext(ctx,
		`DELETE FROM privacy_record_cache WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, shared.WrapError(err, shared.ErrorCategoryDatabase, "RECORD_CLEANUP_FAILED", "Record_Store", "delete_expired", true)
	}

	rowsAffected, _ := result.RowsAffected()
	return rowsAffected, nil
}

// MemoryRecordStore is an in-process RecordStore used in tests and when
// no database is configured.
type MemoryRecordStore struct {
	mutex   sync.RWMutex
	records map[int64]*models.PrivacyRecord
	expiry  map[int64]time.Time
}

// NewMemoryRecordStore creates an empty in-memory store.
func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{
		records: make(map[int64]*models.PrivacyRecord),
		expiry:  make(map[int64]time.Time),
	}
}

// Get returns the stored record or nil on a miss.
func (ms *MemoryRecordStore) Get(_ context.Context, storeID int64) (*models.PrivacyRecord, error) {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()
	return ms.records[storeID], nil
}

// Put stores a record; last write wins.
func (ms *MemoryRecordStore) Put(_ context.Context, record *models.PrivacyRecord, ttl time.Duration) error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()
	ms.records[record.StoreID] = record
	ms.expiry[record.StoreID] = record.AsOf.Add(ttl)
	return nil
}

// DeleteExpiredBefore removes entries whose expiry passed before cutoff.
func (ms *MemoryRecordStore) DeleteExpiredBefore(_ context.Context, cutoff time.Time) (int64, error) {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	var removed int64
	for storeID, expiresAt := range ms.expiry {
		if expiresAt.Before(cutoff) {
			delete(ms.records, storeID)
			delete(ms.expiry, storeID)
			removed++
		}
	}
	return removed, nil
}
