package shared

import (
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// HTTPClientFactory hands out pooled HTTP clients keyed by timeout so
// the feed and lookup callers share connections instead of rebuilding
// transports per request.
type HTTPClientFactory struct {
	defaultTimeout time.Duration
	mutex          sync.RWMutex
	clients        map[time.Duration]*http.Client
}

// NewHTTPClientFactory creates a factory with a default request timeout.
func NewHTTPClientFactory(defaultTimeout time.Duration) *HTTPClientFactory {
	return &HTTPClientFactory{
		defaultTimeout: defaultTimeout,
		clients:        make(map[time.Duration]*http.Client),
	}
}

// ClientFor returns the pooled client for a timeout, creating it on
// first use. A non-positive timeout selects the factory default.
func (f *HTTPClientFactory) ClientFor(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = f.defaultTimeout
	}

	f.mutex.RLock()
	client, exists := f.clients[timeout]
	f.mutex.RUnlock()
	if exists {
		return client
	}

	client = &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}

	f.mutex.Lock()
	f.clients[timeout] = client
	f.mutex.Unlock()

	logrus.WithFields(logrus.Fields{
		"component": "HTTPClientFactory",
		"timeout":   timeout,
	}).Debug("Created pooled HTTP client")

	return client
}

// SetBrowserLikeHeaders sets request headers matching what the headless
// renderer sends, so feed and page fetches present one consistent agent.
func SetBrowserLikeHeaders(request *http.Request, acceptHeader string) {
	request.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	request.Header.Set("Accept", acceptHeader)
	request.Header.Set("Accept-Language", "en-US,en;q=0.9")
	request.Header.Set("Cache-Control", "no-cache")
	request.Header.Set("Connection", "keep-alive")
}

// retryableStatus reports whether a response status is worth retrying.
// Client errors other than 429 are permanent: the feed answers unknown
// boards and delisted apps with 404, and hammering those again only
// burns the politeness budget.
func retryableStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode >= 500
}

// DoWithRetry executes a request with exponential backoff and jitter.
// Network errors and retryable statuses are retried up to maxRetries
// times; any other non-200 status fails immediately.
func DoWithRetry(client *http.Client, request *http.Request, maxRetries int) (*http.Response, error) {
	logger := logrus.WithFields(logrus.Fields{
		"component": "HTTPClientFactory",
		"method":    "DoWithRetry",
		"url":       request.URL.String(),
	})

	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			backoff += time.Duration(rand.Int63n(int64(backoff / 4)))
			logger.WithFields(logrus.Fields{
				"attempt": attempt + 1,
				"backoff": backoff,
			}).Debug("Retrying HTTP request after backoff")
			time.Sleep(backoff)
		}

		response, err := client.Do(request)
		if err != nil {
			lastErr = fmt.Errorf("attempt %d: %w", attempt+1, err)
			logger.WithError(err).Debug("HTTP request failed")
			continue
		}

		if response.StatusCode == http.StatusOK {
			return response, nil
		}

		response.Body.Close()
		lastErr = fmt.Errorf("attempt %d: HTTP %d %s", attempt+1, response.StatusCode, http.StatusText(response.StatusCode))
		if !retryableStatus(response.StatusCode) {
			logger.WithField("status_code", response.StatusCode).Debug("Non-retryable HTTP status")
			return nil, lastErr
		}
		logger.WithFields(logrus.Fields{
			"attempt":     attempt + 1,
			"status_code": response.StatusCode,
		}).Debug("Retryable HTTP status")
	}

	logger.WithError(lastErr).Error("HTTP request failed after all retry attempts")
	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries+1, lastErr)
}

// CloseIdleConnections releases pooled connections on every cached
// client; called on shutdown.
func (f *HTTPClientFactory) CloseIdleConnections() {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	for timeout, client := range f.clients {
		if transport, ok := client.Transport.(*http.Transport); ok {
			transport.CloseIdleConnections()
		}
		delete(f.clients, timeout)
	}
}
