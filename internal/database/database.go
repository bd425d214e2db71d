// Package database opens the Postgres connection shared by the thread
// store and the job queue. URL resolution order: explicit config value,
// CHANGESMITH_STORE_DATABASE_URL, then plain DATABASE_URL (the .env file,
// if any, is already loaded at process start).
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// NewDB opens and pings a postgres connection.
func NewDB(ctx context.Context, dbURL string) (*sql.DB, error) {
	url, err := ResolveURL(dbURL)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return db, nil
}

// ResolveURL picks the connection string: an explicit value wins over the
// environment.
func ResolveURL(explicit string) (string, error) {
	if url := strings.TrimSpace(explicit); url != "" {
		return url, nil
	}
	for _, key := range []string{"CHANGESMITH_STORE_DATABASE_URL", "DATABASE_URL"} {
		if url := strings.TrimSpace(os.Getenv(key)); url != "" {
			return url, nil
		}
	}
	return "", fmt.Errorf("no database URL: set store.database_url or DATABASE_URL")
}
