package shared

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ServiceMetrics tracks request counts and timing for one service
type ServiceMetrics struct {
	serviceName         string
	totalRequests       int64
	successfulRequests  int64
	failedRequests      int64
	totalProcessingTime time.Duration
	customCounters      map[string]int64
	mutex               sync.RWMutex
}

// NewServiceMetrics creates a metrics tracker for the named service
func NewServiceMetrics(serviceName string) *ServiceMetrics {
	return &ServiceMetrics{
		serviceName:    serviceName,
		customCounters: make(map[string]int64),
	}
}

// RecordRequest records one request outcome and its processing time
func (m *ServiceMetrics) RecordRequest(success bool, processingTime time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.totalRequests++
	m.totalProcessingTime += processingTime
	if success {
		m.successfulRequests++
	} else {
		m.failedRequests++
	}
}

// GetSuccessRate returns the percentage of successful requests
func (m *ServiceMetrics) GetSuccessRate() float64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if m.totalRequests == 0 {
		return 0
	}
	return float64(m.successfulRequests) / float64(m.totalRequests) * 100
}

// IncrementCounter increments a named custom counter
func (m *ServiceMetrics) IncrementCounter(key string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.customCounters[key]++
}

// GetCounter returns the value of a named custom counter
func (m *ServiceMetrics) GetCounter(key string) int64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.customCounters[key]
}

// Snapshot returns the current metric values as loggable fields
func (m *ServiceMetrics) Snapshot() map[string]interface{} {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	averageProcessingTime := time.Duration(0)
	if m.totalRequests > 0 {
		averageProcessingTime = m.totalProcessingTime / time.Duration(m.totalRequests)
	}

	successRate := 0.0
	if m.totalRequests > 0 {
		successRate = float64(m.successfulRequests) / float64(m.totalRequests) * 100
	}

	snapshot := map[string]interface{}{
		"service_name":        m.serviceName,
		"total_requests":      m.totalRequests,
		"successful_requests": m.successfulRequests,
		"failed_requests":     m.failedRequests,
		"success_rate":        successRate,
		"avg_processing_time": averageProcessingTime.String(),
	}
	for key, value := range m.customCounters {
		snapshot[key] = value
	}
	return snapshot
}

// LogSummary logs a summary of the service metrics
func (m *ServiceMetrics) LogSummary() {
	fields := logrus.Fields{}
	for key, value := range m.Snapshot() {
		fields[key] = value
	}
	logrus.WithFields(fields).Info("Service metrics summary")
}

// ExtractionMetrics tracks success rates of the privacy label extraction steps
type ExtractionMetrics struct {
	PageLoadAttempts   int64
	PageLoadFailures   int64
	HeadingRetriesUsed int64
	BucketsLocated     int64
	BucketsMissing     int64
	TokensHarvested    int64
	TokensKept         int64
	DetailsParsed      int64
	ParseErrors        int64
	mutex              sync.Mutex
}

// NewExtractionMetrics creates a new extraction metrics tracker
func NewExtractionMetrics() *ExtractionMetrics {
	return &ExtractionMetrics{}
}

// RecordPageLoad records one attempt to load and render a detail page
func (m *ExtractionMetrics) RecordPageLoad(success bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.PageLoadAttempts++
	if !success {
		m.PageLoadFailures++
	}
}

// RecordHeadingRetry records a fallback attempt against the unanchored URL
func (m *ExtractionMetrics) RecordHeadingRetry() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.HeadingRetriesUsed++
}

// RecordBucket records whether one bucket heading could be located
func (m *ExtractionMetrics) RecordBucket(located bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if located {
		m.BucketsLocated++
	} else {
		m.BucketsMissing++
	}
}

// RecordTokens records how many raw tokens were harvested and how many
// survived normalization
func (m *ExtractionMetrics) RecordTokens(harvested, kept int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.TokensHarvested += int64(harvested)
	m.TokensKept += int64(kept)
}

// RecordDetailsParse records the outcome of a per-category breakdown parse
func (m *ExtractionMetrics) RecordDetailsParse(success bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if success {
		m.DetailsParsed++
	} else {
		m.ParseErrors++
	}
}

// LogSummary logs a summary of extraction metrics
func (m *ExtractionMetrics) LogSummary() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	tokenKeepRate := 0.0
	if m.TokensHarvested > 0 {
		tokenKeepRate = float64(m.TokensKept) / float64(m.TokensHarvested) * 100
	}

	logrus.WithFields(logrus.Fields{
		"page_load_attempts":   m.PageLoadAttempts,
		"page_load_failures":   m.PageLoadFailures,
		"heading_retries_used": m.HeadingRetriesUsed,
		"buckets_located":      m.BucketsLocated,
		"buckets_missing":      m.BucketsMissing,
		"tokens_harvested":     m.TokensHarvested,
		"tokens_kept":          m.TokensKept,
		"token_keep_rate":      tokenKeepRate,
		"details_parsed":       m.DetailsParsed,
		"parse_errors":         m.ParseErrors,
	}).Info("Privacy label extraction metrics summary")
}
