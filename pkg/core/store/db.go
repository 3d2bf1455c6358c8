package store

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	pool *pgxpool.Pool
	once sync.Once
)

// InitDB initializes the connection pool. An empty url falls back to DATABASE_URL.
func InitDB(ctx context.Context, url string) error {
	var err error
	once.Do(func() {
		if url == "" {
			url = os.Getenv("DATABASE_URL")
		}
		if url == "" {
			err = fmt.Errorf("database url not set")
			return
		}

		config, parseErr := pgxpool.ParseConfig(url)
		if parseErr != nil {
			err = fmt.Errorf("failed to parse database config: %w", parseErr)
			return
		}

		pool, err = pgxpool.NewWithConfig(ctx, config)
		if err != nil {
			return
		}
		err = EnsureSchema(ctx, pool)
	})
	return err
}

// GetPool returns the database connection pool, nil when InitDB was not called.
func GetPool() *pgxpool.Pool {
	return pool
}

// Close closes the database connection pool
func Close() {
	if pool != nil {
		pool.Close()
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS extraction_cache (
	digest     TEXT PRIMARY KEY,
	record     JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS analysis_reports (
	id            TEXT PRIMARY KEY,
	document_name TEXT,
	media_type    TEXT,
	digest        TEXT,
	degraded      JSONB,
	report        JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL
);`

// EnsureSchema creates the tables used by the cache and the report repository.
func EnsureSchema(ctx context.Context, p *pgxpool.Pool) error {
	if _, err := p.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}
