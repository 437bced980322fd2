package jobs

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/applens/privacy-backend/models"
	"github.com/applens/privacy-backend/services"
	"github.com/applens/privacy-backend/shared"
	"github.com/sirupsen/logrus"
)

// BoardFetcher supplies ranked chart entries for one board. The chart
// service implements it; tests substitute fakes.
type BoardFetcher interface {
	FetchBoard(ctx context.Context, board string) ([]models.ChartEntry, error)
}

// BoardRefreshJob runs the full pipeline pass: fetch every chart board,
// refresh privacy records for each unique app through a bounded worker
// pool, merge, score, and rewrite the aggregate snapshot artifact.
type BoardRefreshJob struct {
	ChartService  BoardFetcher
	RecordService *services.RecordService
	MergeService  *services.MergeService
	IconService   *services.IconService

	Boards       []string
	Concurrency  int
	SnapshotPath string

	delayer *shared.PolitenessDelayer

	snapshotMutex sync.RWMutex
	snapshot      *models.Snapshot
}

// NewBoardRefreshJob creates a refresh job over the given services.
func NewBoardRefreshJob(chartService BoardFetcher, recordService *services.RecordService,
	mergeService *services.MergeService, iconService *services.IconService,
	boards []string, concurrency int, snapshotPath string) *BoardRefreshJob {
	if len(boards) == 0 {
		boards = models.DefaultBoards
	}
	if concurrency <= 0 {
		concurrency = 3
	}
	job := &BoardRefreshJob{
		ChartService:  chartService,
		RecordService: recordService,
		MergeService:  mergeService,
		IconService:   iconService,
		Boards:        boards,
		Concurrency:   concurrency,
		SnapshotPath:  snapshotPath,
		delayer:       shared.NewPolitenessDelayer(1*time.Second, 2*time.Second),
	}
	job.loadSnapshot()
	return job
}

// Start runs the job immediately and then on the given interval.
func (j *BoardRefreshJob) Start(interval time.Duration) {
	logrus.Infof("Starting Board Refresh Job (runs every %v)...", interval)
	ticker := time.NewTicker(interval)

	go func() {
		j.Run()

		for range ticker.C {
			j.Run()
		}
	}()
}

// Run executes one refresh pass.
func (j *BoardRefreshJob) Run() {
	startTime := time.Now()
	logrus.Info("Running Board Refresh Job")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	boards := j.fetchBoards(ctx)

	uniqueEntries := j.collectUniqueEntries(boards)
	logrus.Infof("Refreshing privacy records for %d unique apps across %d boards",
		len(uniqueEntries), len(boards))

	records := j.refreshRecords(ctx, uniqueEntries)

	index := services.NewRecordIndex(records)
	snapshot := j.MergeService.BuildSnapshot(boards, index)

	j.snapshotMutex.Lock()
	j.snapshot = snapshot
	j.snapshotMutex.Unlock()

	if err := j.writeSnapshot(snapshot); err != nil {
		logrus.Errorf("Board Refresh Job: failed to write snapshot artifact: %v", err)
	}

	logrus.Infof("Board Refresh Job completed: %d records refreshed (took %v)",
		len(records), time.Since(startTime))
}

// fetchBoards fetches every board independently. A failing board falls
// back to the previous snapshot's entries when available, otherwise an
// empty list; one board's failure never aborts the others.
func (j *BoardRefreshJob) fetchBoards(ctx context.Context) map[string][]models.ChartEntry {
	boards := make(map[string][]models.ChartEntry, len(j.Boards))

	for _, board := range j.Boards {
		entries, err := j.ChartService.FetchBoard(ctx, board)
		if err != nil {
			if pipelineErr, ok := err.(*shared.PipelineError); ok {
				pipelineErr.LogError()
			}
			logrus.Warnf("Falling back to previous snapshot entries for %s board", board)
			boards[board] = j.previousBoardEntries(board)
			continue
		}
		boards[board] = j.fillMissingIcons(entries)
	}

	return boards
}

// fillMissingIcons resolves icon URLs for entries the feed left blank.
func (j *BoardRefreshJob) fillMissingIcons(entries []models.ChartEntry) []models.ChartEntry {
	if j.IconService == nil {
		return entries
	}
	for i := range entries {
		if entries[i].IconURL != "" || entries[i].DetailURL == "" {
			continue
		}
		iconURL, err := j.IconService.FetchIconURL(entries[i].DetailURL)
		if err != nil {
			logrus.WithError(err).Debugf("Icon fallback failed for %s", entries[i].Name)
			continue
		}
		entries[i].IconURL = iconURL
	}
	return entries
}

// previousBoardEntries recovers the chart entries of one board from the
// last successful snapshot.
func (j *BoardRefreshJob) previousBoardEntries(board string) []models.ChartEntry {
	j.snapshotMutex.RLock()
	defer j.snapshotMutex.RUnlock()

	if j.snapshot == nil {
		return []models.ChartEntry{}
	}
	enriched := j.snapshot.Boards[board]
	entries := make([]models.ChartEntry, 0, len(enriched))
	for _, entry := range enriched {
		entries = append(entries, entry.ChartEntry)
	}
	return entries
}

// collectUniqueEntries flattens all boards into one deduplicated entry
// list so each app is extracted at most once per pass.
func (j *BoardRefreshJob) collectUniqueEntries(boards map[string][]models.ChartEntry) []models.ChartEntry {
	var combined []models.ChartEntry
	for _, board := range j.Boards {
		combined = append(combined, boards[board]...)
	}
	return j.MergeService.DeduplicateEntries(combined)
}

// refreshRecords runs GetOrRefresh for every entry through a bounded
// worker pool. Completion order is unrelated to rank order; each
// worker inserts a randomized politeness delay before touching the
// source site.
func (j *BoardRefreshJob) refreshRecords(ctx context.Context, entries []models.ChartEntry) []*models.PrivacyRecord {
	type result struct {
		record *models.PrivacyRecord
	}

	workQueue := make(chan models.ChartEntry)
	results := make(chan result)

	var workers sync.WaitGroup
	for i := 0; i < j.Concurrency; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for entry := range workQueue {
				j.delayer.Wait()

				record, err := j.RecordService.GetOrRefresh(ctx, entry.Identity)
				if err != nil {
					// GetOrRefresh only returns hard errors (cancelled
					// context); extraction failures degrade internally.
					logrus.WithError(err).Warnf("Record refresh failed for %s", entry.Name)
				}
				results <- result{record: record}
			}
		}()
	}

	go func() {
		defer close(workQueue)
		for _, entry := range entries {
			select {
			case workQueue <- entry:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		workers.Wait()
		close(results)
	}()

	var records []*models.PrivacyRecord
	for r := range results {
		if r.record != nil {
			records = append(records, r.record)
		}
	}
	return records
}

// CurrentSnapshot returns the most recent snapshot, or nil before the
// first completed pass.
func (j *BoardRefreshJob) CurrentSnapshot() *models.Snapshot {
	j.snapshotMutex.RLock()
	defer j.snapshotMutex.RUnlock()
	return j.snapshot
}

// writeSnapshot atomically rewrites the aggregate artifact: write to a
// temp file in the same directory, then rename over the target.
func (j *BoardRefreshJob) writeSnapshot(snapshot *models.Snapshot) error {
	if j.SnapshotPath == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(j.SnapshotPath), 0o755); err != nil {
		return err
	}

	payload, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}

	tempPath := j.SnapshotPath + ".tmp"
	if err := os.WriteFile(tempPath, payload, 0o644); err != nil {
		return err
	}
	return os.Rename(tempPath, j.SnapshotPath)
}

// loadSnapshot restores the previous snapshot artifact on startup so
// the API can serve data before the first refresh pass completes.
func (j *BoardRefreshJob) loadSnapshot() {
	if j.SnapshotPath == "" {
		return
	}

	payload, err := os.ReadFile(j.SnapshotPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logrus.WithError(err).Warn("Failed to read previous snapshot artifact")
		}
		return
	}

	var snapshot models.Snapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		// Unparsable snapshot is a cache miss, not a fatal error.
		logrus.WithError(err).Warn("Previous snapshot artifact unparsable, starting empty")
		return
	}

	j.snapshot = &snapshot
	logrus.Infof("Restored snapshot artifact from %s (as of %v)", j.SnapshotPath, snapshot.AsOf)
}
