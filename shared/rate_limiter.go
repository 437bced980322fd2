package shared

import (
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// PolitenessDelayer enforces a minimum delay between successive requests
// against the same source site, with a randomized jitter on top so
// refresh passes do not produce evenly spaced request bursts.
type PolitenessDelayer struct {
	minimumDelay    time.Duration // Minimum delay between requests
	maximumJitter   time.Duration // Random extra delay added on top of the minimum
	lastRequestTime time.Time     // Timestamp of the last request
	mutex           sync.Mutex    // Ensures thread-safe access
	requestCount    int64         // Total number of requests processed
}

// NewPolitenessDelayer creates a delayer with the given minimum delay and
// jitter ceiling.
func NewPolitenessDelayer(minimumDelay, maximumJitter time.Duration) *PolitenessDelayer {
	return &PolitenessDelayer{
		minimumDelay:  minimumDelay,
		maximumJitter: maximumJitter,
	}
}

// Wait blocks until the minimum delay plus a random jitter has elapsed
// since the last request. The first call never blocks.
func (d *PolitenessDelayer) Wait() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if !d.lastRequestTime.IsZero() {
		requiredDelay := d.minimumDelay
		if d.maximumJitter > 0 {
			requiredDelay += time.Duration(rand.Int63n(int64(d.maximumJitter)))
		}

		elapsedTime := time.Since(d.lastRequestTime)
		if elapsedTime < requiredDelay {
			remainingDelay := requiredDelay - elapsedTime

			logrus.WithFields(logrus.Fields{
				"component":       "PolitenessDelayer",
				"elapsed_time":    elapsedTime,
				"required_delay":  requiredDelay,
				"remaining_delay": remainingDelay,
				"request_count":   d.requestCount + 1,
			}).Debug("Enforcing politeness delay")

			time.Sleep(remainingDelay)
		}
	}

	d.lastRequestTime = time.Now()
	d.requestCount++
}

// RequestCount returns the total number of requests processed.
func (d *PolitenessDelayer) RequestCount() int64 {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.requestCount
}
