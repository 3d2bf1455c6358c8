package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"statement_report/pkg/models"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ExtractionCache stores extracted records keyed by document digest.
// Postgres is used when a pool is given, otherwise JSON files under dir.
type ExtractionCache struct {
	pool    *pgxpool.Pool
	fileDir string
}

// CacheEntry is the file form of a cached extraction.
type CacheEntry struct {
	Digest      string                 `json:"digest"`
	Record      models.FinancialRecord `json:"record"`
	ExtractedAt time.Time              `json:"extracted_at"`
}

// NewExtractionCache creates a cache. With no pool and no dir it defaults to
// .cache/extractions.
func NewExtractionCache(pool *pgxpool.Pool, dir string) (*ExtractionCache, error) {
	if pool == nil && dir == "" {
		dir = filepath.Join(".cache", "extractions")
	}
	if pool == nil {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache dir: %w", err)
		}
	}
	return &ExtractionCache{pool: pool, fileDir: dir}, nil
}

func (c *ExtractionCache) Get(ctx context.Context, digest string) (models.FinancialRecord, bool, error) {
	if c.pool != nil {
		var data []byte
		err := c.pool.QueryRow(ctx, `SELECT record FROM extraction_cache WHERE digest = $1`, digest).Scan(&data)
		if errors.Is(err, pgx.ErrNoRows) {
			return models.FinancialRecord{}, false, nil
		}
		if err != nil {
			return models.FinancialRecord{}, false, fmt.Errorf("failed to query cache: %w", err)
		}
		var rec models.FinancialRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return models.FinancialRecord{}, false, fmt.Errorf("failed to unmarshal cached record: %w", err)
		}
		return rec, true, nil
	}

	data, err := os.ReadFile(c.path(digest))
	if errors.Is(err, os.ErrNotExist) {
		return models.FinancialRecord{}, false, nil
	}
	if err != nil {
		return models.FinancialRecord{}, false, err
	}
	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return models.FinancialRecord{}, false, fmt.Errorf("failed to unmarshal cache file: %w", err)
	}
	return entry.Record, true, nil
}

func (c *ExtractionCache) Put(ctx context.Context, digest string, rec models.FinancialRecord) error {
	if c.pool != nil {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		query := `
			INSERT INTO extraction_cache (digest, record, created_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (digest)
			DO UPDATE SET record = EXCLUDED.record, created_at = EXCLUDED.created_at
		`
		if _, err := c.pool.Exec(ctx, query, digest, data, time.Now()); err != nil {
			return fmt.Errorf("failed to save to cache: %w", err)
		}
		return nil
	}

	entry := CacheEntry{Digest: digest, Record: rec, ExtractedAt: time.Now()}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return err
	}
	if err := writeFileAtomic(c.path(digest), data); err != nil {
		return fmt.Errorf("failed to save to file cache: %w", err)
	}
	return nil
}

func (c *ExtractionCache) path(digest string) string {
	return filepath.Join(c.fileDir, filepath.Base(digest)+".json")
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
