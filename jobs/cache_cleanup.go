package jobs

import (
	"context"
	"time"

	"github.com/applens/privacy-backend/services"
	"github.com/sirupsen/logrus"
)

// cleanupGracePeriod is how far past expiry a persisted record must be
// before deletion. Recently expired rows are kept as fallback data for
// failed re-extractions.
const cleanupGracePeriod = 30 * 24 * time.Hour

type CacheCleanupJob struct {
	RecordService *services.RecordService
}

func NewCacheCleanupJob(recordService *services.RecordService) *CacheCleanupJob {
	return &CacheCleanupJob{RecordService: recordService}
}

func (j *CacheCleanupJob) Run() {
	logrus.Info("Starting Cache Cleanup Job")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	removed, err := j.RecordService.CleanupExpired(ctx, cleanupGracePeriod)
	if err != nil {
		logrus.Errorf("Cache Cleanup Job failed: %v", err)
		return
	}

	logrus.Infof("Cache Cleanup Job completed: removed %d long-expired records", removed)
}
