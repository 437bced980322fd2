package jobs

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/applens/privacy-backend/models"
	"github.com/applens/privacy-backend/services"
	"github.com/applens/privacy-backend/shared"
)

// fakeBoardFetcher serves canned chart entries per board and fails the
// boards listed in failing.
type fakeBoardFetcher struct {
	boards  map[string][]models.ChartEntry
	failing map[string]error
}

func (f *fakeBoardFetcher) FetchBoard(_ context.Context, board string) ([]models.ChartEntry, error) {
	if err, failed := f.failing[board]; failed {
		return nil, err
	}
	return f.boards[board], nil
}

// countingExtractor tracks total and per-app extraction calls plus the
// highest number of extractions running at once.
type countingExtractor struct {
	mutex         sync.Mutex
	callsByID     map[int64]int
	running       int64
	maxConcurrent int64
	delay         time.Duration
}

func newCountingExtractor(delay time.Duration) *countingExtractor {
	return &countingExtractor{callsByID: make(map[int64]int), delay: delay}
}

func (e *countingExtractor) Extract(_ context.Context, identity models.AppIdentity) (*models.PrivacyRecord, error) {
	current := atomic.AddInt64(&e.running, 1)
	for {
		observed := atomic.LoadInt64(&e.maxConcurrent)
		if current <= observed || atomic.CompareAndSwapInt64(&e.maxConcurrent, observed, current) {
			break
		}
	}

	e.mutex.Lock()
	e.callsByID[identity.StoreID]++
	e.mutex.Unlock()

	if e.delay > 0 {
		time.Sleep(e.delay)
	}
	atomic.AddInt64(&e.running, -1)

	record := models.NewPrivacyRecord(identity)
	record.AddCategory(models.BucketTracked, services.CategoryIdentifiers)
	return record, nil
}

func (e *countingExtractor) totalCalls() int {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	total := 0
	for _, calls := range e.callsByID {
		total += calls
	}
	return total
}

func chartEntry(rank int, name string, storeID int64) models.ChartEntry {
	return models.ChartEntry{
		Rank: rank,
		Name: name,
		Identity: models.AppIdentity{
			StoreID: storeID,
			Name:    name,
		},
	}
}

func newTestJob(fetcher *fakeBoardFetcher, extractor *countingExtractor, boards []string, concurrency int, snapshotPath string) *BoardRefreshJob {
	recordService := services.NewRecordService(services.NewMemoryRecordStore(), extractor, 14*24*time.Hour)
	mergeService := services.NewMergeService(services.NewIntensityScorer())

	job := NewBoardRefreshJob(fetcher, recordService, mergeService, nil, boards, concurrency, snapshotPath)
	job.delayer = shared.NewPolitenessDelayer(time.Millisecond, time.Millisecond)
	return job
}

func TestRunFallsBackToPreviousSnapshotEntries(t *testing.T) {
	snapshotPath := filepath.Join(t.TempDir(), "snapshot.json")

	previousAsOf := time.Now().UTC().Add(-24 * time.Hour)
	previous := models.Snapshot{
		AsOf: previousAsOf,
		Boards: map[string][]models.EnrichedEntry{
			models.BoardTopFree: {
				{ChartEntry: chartEntry(1, "Held Over", 77)},
			},
		},
	}
	payload, err := json.Marshal(&previous)
	if err != nil {
		t.Fatalf("failed to marshal previous snapshot: %v", err)
	}
	if err := os.WriteFile(snapshotPath, payload, 0o644); err != nil {
		t.Fatalf("failed to write previous snapshot: %v", err)
	}

	fetcher := &fakeBoardFetcher{
		failing: map[string]error{
			models.BoardTopFree: shared.NewFetchError("FEED_FETCH_FAILED", "feed unreachable", "Chart_Service", "fetch_board", nil),
		},
	}
	extractor := newCountingExtractor(0)
	job := newTestJob(fetcher, extractor, []string{models.BoardTopFree}, 2, snapshotPath)

	restored := job.CurrentSnapshot()
	if restored == nil || !restored.AsOf.Equal(previousAsOf) {
		t.Fatal("constructor should restore the previous snapshot artifact")
	}

	job.Run()

	snapshot := job.CurrentSnapshot()
	entries := snapshot.Boards[models.BoardTopFree]
	if len(entries) != 1 || entries[0].Name != "Held Over" || entries[0].Rank != 1 {
		t.Fatalf("failing board should keep the previous snapshot's entries, got %+v", entries)
	}
	if !entries[0].PrivacyAvailable {
		t.Error("carried-over entry should still be refreshed and enriched")
	}
	if extractor.callsByID[77] != 1 {
		t.Errorf("carried-over app extracted %d times, expected 1", extractor.callsByID[77])
	}

	// The artifact is rewritten atomically: fresh content, no temp file left.
	rewritten, err := os.ReadFile(snapshotPath)
	if err != nil {
		t.Fatalf("snapshot artifact missing after run: %v", err)
	}
	var written models.Snapshot
	if err := json.Unmarshal(rewritten, &written); err != nil {
		t.Fatalf("rewritten snapshot unparsable: %v", err)
	}
	if !written.AsOf.After(previousAsOf) {
		t.Error("rewritten snapshot should carry a newer as-of timestamp")
	}
	if _, err := os.Stat(snapshotPath + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should not survive the rename")
	}
}

func TestRunExtractsEachAppOnceAcrossBoards(t *testing.T) {
	duplicated := chartEntry(1, "On Both Boards", 500)
	fetcher := &fakeBoardFetcher{
		boards: map[string][]models.ChartEntry{
			models.BoardTopFree: {duplicated, chartEntry(2, "Free Only", 501)},
			models.BoardTopPaid: {chartEntry(1, "Paid Only", 502), {Rank: 2, Name: "ON BOTH BOARDS", Identity: models.AppIdentity{StoreID: 500, Name: "ON BOTH BOARDS"}}},
		},
	}
	extractor := newCountingExtractor(0)
	job := newTestJob(fetcher, extractor, []string{models.BoardTopFree, models.BoardTopPaid}, 2, "")

	job.Run()

	if extractor.callsByID[500] != 1 {
		t.Errorf("app on both boards extracted %d times, expected 1", extractor.callsByID[500])
	}
	if extractor.totalCalls() != 3 {
		t.Errorf("total extractions = %d, expected 3 unique apps", extractor.totalCalls())
	}

	// Dedupe covers extraction only; both boards keep their own entries.
	snapshot := job.CurrentSnapshot()
	for _, board := range []string{models.BoardTopFree, models.BoardTopPaid} {
		if got := len(snapshot.Boards[board]); got != 2 {
			t.Errorf("%s board has %d entries, expected 2", board, got)
		}
	}
}

func TestRefreshRecordsBoundsConcurrency(t *testing.T) {
	fetcher := &fakeBoardFetcher{}
	extractor := newCountingExtractor(20 * time.Millisecond)
	job := newTestJob(fetcher, extractor, []string{models.BoardTopFree}, 3, "")

	entries := make([]models.ChartEntry, 0, 9)
	for i := 0; i < 9; i++ {
		entries = append(entries, chartEntry(i+1, "App", int64(1000+i)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	records := job.refreshRecords(ctx, entries)

	if len(records) != 9 {
		t.Fatalf("refreshed %d records, expected 9", len(records))
	}
	if peak := atomic.LoadInt64(&extractor.maxConcurrent); peak > 3 {
		t.Errorf("observed %d concurrent extractions, pool is bounded at 3", peak)
	}
}
