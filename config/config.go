package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	ServerPort            string
	DatabaseURL           string
	AdminToken            string
	RecordTTLDays         string
	LogLevel              string
	FeedCountry           string
	ChartSize             string
	SnapshotPath          string
	ExtractionConcurrency string
	RefreshIntervalHours  string
}

// GetRecordTTL returns the privacy record time-to-live from environment
// or the 14 day default
func (c *Config) GetRecordTTL() time.Duration {
	if c.RecordTTLDays == "" {
		return 14 * 24 * time.Hour
	}

	days, err := strconv.Atoi(c.RecordTTLDays)
	if err != nil || days <= 0 {
		logrus.Warnf("Invalid RECORD_TTL_DAYS value: %s, using default 14 days", c.RecordTTLDays)
		return 14 * 24 * time.Hour
	}

	return time.Duration(days) * 24 * time.Hour
}

// GetExtractionConcurrency returns the bounded number of concurrent
// detail page extractions (default 3, per the source site's tolerance)
func (c *Config) GetExtractionConcurrency() int {
	if c.ExtractionConcurrency == "" {
		return 3
	}

	workers, err := strconv.Atoi(c.ExtractionConcurrency)
	if err != nil || workers <= 0 {
		logrus.Warnf("Invalid EXTRACTION_CONCURRENCY value: %s, using default 3", c.ExtractionConcurrency)
		return 3
	}

	return workers
}

// GetChartSize returns how many entries to request per chart board
func (c *Config) GetChartSize() int {
	if c.ChartSize == "" {
		return 25
	}

	size, err := strconv.Atoi(c.ChartSize)
	if err != nil || size <= 0 || size > 200 {
		logrus.Warnf("Invalid CHART_SIZE value: %s, using default 25", c.ChartSize)
		return 25
	}

	return size
}

// GetRefreshInterval returns how often the board refresh job runs
func (c *Config) GetRefreshInterval() time.Duration {
	if c.RefreshIntervalHours == "" {
		return 12 * time.Hour
	}

	hours, err := strconv.Atoi(c.RefreshIntervalHours)
	if err != nil || hours <= 0 {
		logrus.Warnf("Invalid REFRESH_INTERVAL_HOURS value: %s, using default 12 hours", c.RefreshIntervalHours)
		return 12 * time.Hour
	}

	return time.Duration(hours) * time.Hour
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		logrus.Warn("Error loading .env file, using system environment variables")
	}

	return &Config{
		ServerPort:            getEnv("SERVER_PORT", "8080"),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		AdminToken:            getEnv("ADMIN_TOKEN", ""),
		RecordTTLDays:         getEnv("RECORD_TTL_DAYS", "14"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		FeedCountry:           getEnv("FEED_COUNTRY", "us"),
		ChartSize:             getEnv("CHART_SIZE", "25"),
		SnapshotPath:          getEnv("SNAPSHOT_PATH", "data/privacy_snapshot.json"),
		ExtractionConcurrency: getEnv("EXTRACTION_CONCURRENCY", "3"),
		RefreshIntervalHours:  getEnv("REFRESH_INTERVAL_HOURS", "12"),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
