package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

var DB *sql.DB

// schemaSQL bootstraps the privacy record cache. Records are stored as
// JSONB keyed by the numeric store ID; expires_at drives re-extraction,
// expired rows are kept around as fallback data until the cleanup job
// removes them well past TTL.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS privacy_record_cache (
    id UUID PRIMARY KEY,
    store_id BIGINT NOT NULL UNIQUE,
    record JSONB NOT NULL,
    captured_at TIMESTAMPTZ NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_privacy_record_cache_expires_at
    ON privacy_record_cache (expires_at);
`

// Connect establishes the database connection with pooled configuration
func Connect(dbURL string) error {
	var err error
	DB, err = sql.Open("postgres", dbURL)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(10)
	DB.SetConnMaxLifetime(30 * time.Minute)
	DB.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := DB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	logrus.Info("Database connection established")
	return nil
}

// Bootstrap creates the cache schema if it does not exist yet
func Bootstrap(ctx context.Context) error {
	if _, err := DB.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to bootstrap schema: %w", err)
	}

	logrus.Info("Database schema bootstrapped")
	return nil
}

// Close closes the database connection
func Close() {
	if DB != nil {
		if err := DB.Close(); err != nil {
			logrus.Errorf("Error closing database connection: %v", err)
		}
	}
}
