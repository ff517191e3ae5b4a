package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Open connects to Postgres and verifies the connection
func Open(ctx context.Context, dbURL string) (*sql.DB, error) {
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required for the postgres store")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// CreateTables creates the necessary tables if they don't exist
func CreateTables(ctx context.Context, db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS monitored_items (
			id TEXT PRIMARY KEY,
			source_url TEXT NOT NULL,
			normalized_url TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			image_url TEXT NOT NULL DEFAULT '',
			currency VARCHAR(3) NOT NULL DEFAULT 'BRL',
			initial_price DECIMAL(12,2) NOT NULL,
			current_price DECIMAL(12,2) NOT NULL,
			target_price DECIMAL(12,2),
			is_monitoring BOOLEAN NOT NULL DEFAULT TRUE,
			last_checked_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS price_points (
			item_id TEXT NOT NULL REFERENCES monitored_items(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			price DECIMAL(12,2) NOT NULL,
			observed_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (item_id, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_monitored_items_created ON monitored_items (created_at)`,
	}

	for _, query := range queries {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}
