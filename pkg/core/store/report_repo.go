package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"statement_report/pkg/models"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrReportNotFound is returned by ReportRepo.Get for unknown ids.
var ErrReportNotFound = errors.New("report not found")

// ReportEnvelope is a stored analysis with the metadata of its source document.
type ReportEnvelope struct {
	ID           string               `json:"id"`
	DocumentName string               `json:"document_name"`
	MediaType    string               `json:"media_type"`
	Digest       string               `json:"digest"`
	CreatedAt    time.Time            `json:"created_at"`
	Degraded     []models.Section     `json:"degraded,omitempty"`
	Report       *models.ReportResult `json:"report"`
}

// ReportRepo persists assembled reports.
type ReportRepo struct {
	pool    *pgxpool.Pool
	fileDir string
}

// NewReportRepo behaves like NewExtractionCache; the file default is .cache/reports.
func NewReportRepo(pool *pgxpool.Pool, dir string) (*ReportRepo, error) {
	if pool == nil && dir == "" {
		dir = filepath.Join(".cache", "reports")
	}
	if pool == nil {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create report dir: %w", err)
		}
	}
	return &ReportRepo{pool: pool, fileDir: dir}, nil
}

// Save upserts env by ID.
func (r *ReportRepo) Save(ctx context.Context, env ReportEnvelope) error {
	if env.ID == "" {
		return fmt.Errorf("report id is empty")
	}
	if env.Report == nil {
		return fmt.Errorf("report %s has no content", env.ID)
	}

	if r.pool != nil {
		report, err := json.Marshal(env.Report)
		if err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}
		degraded, err := json.Marshal(env.Degraded)
		if err != nil {
			return err
		}
		query := `
			INSERT INTO analysis_reports (id, document_name, media_type, digest, degraded, report, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id)
			DO UPDATE SET
				document_name = EXCLUDED.document_name,
				media_type = EXCLUDED.media_type,
				digest = EXCLUDED.digest,
				degraded = EXCLUDED.degraded,
				report = EXCLUDED.report,
				created_at = EXCLUDED.created_at
		`
		_, err = r.pool.Exec(ctx, query, env.ID, env.DocumentName, env.MediaType, env.Digest, degraded, report, env.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to save report: %w", err)
		}
		return nil
	}

	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	return writeFileAtomic(r.path(env.ID), data)
}

// Get loads a report by id.
func (r *ReportRepo) Get(ctx context.Context, id string) (*ReportEnvelope, error) {
	if r.pool != nil {
		query := `
			SELECT id, document_name, media_type, digest, degraded, report, created_at
			FROM analysis_reports WHERE id = $1
		`
		var env ReportEnvelope
		var degraded, report []byte
		err := r.pool.QueryRow(ctx, query, id).Scan(
			&env.ID, &env.DocumentName, &env.MediaType, &env.Digest, &degraded, &report, &env.CreatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReportNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load report: %w", err)
		}
		if len(degraded) > 0 {
			if err := json.Unmarshal(degraded, &env.Degraded); err != nil {
				return nil, err
			}
		}
		env.Report = &models.ReportResult{}
		if err := json.Unmarshal(report, env.Report); err != nil {
			return nil, fmt.Errorf("failed to unmarshal report: %w", err)
		}
		return &env, nil
	}

	return r.loadFile(r.path(id))
}

// List returns stored reports, newest first, without loading more than limit.
// A limit <= 0 returns all.
func (r *ReportRepo) List(ctx context.Context, limit int) ([]ReportEnvelope, error) {
	if r.pool != nil {
		query := `
			SELECT id, document_name, media_type, digest, created_at
			FROM analysis_reports ORDER BY created_at DESC
		`
		args := []interface{}{}
		if limit > 0 {
			query += ` LIMIT $1`
			args = append(args, limit)
		}
		rows, err := r.pool.Query(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to list reports: %w", err)
		}
		defer rows.Close()

		var out []ReportEnvelope
		for rows.Next() {
			var env ReportEnvelope
			if err := rows.Scan(&env.ID, &env.DocumentName, &env.MediaType, &env.Digest, &env.CreatedAt); err != nil {
				return nil, err
			}
			out = append(out, env)
		}
		return out, rows.Err()
	}

	entries, err := os.ReadDir(r.fileDir)
	if err != nil {
		return nil, err
	}
	var out []ReportEnvelope
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		env, err := r.loadFile(filepath.Join(r.fileDir, e.Name()))
		if err != nil {
			continue
		}
		env.Report = nil
		out = append(out, *env)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *ReportRepo) loadFile(path string) (*ReportEnvelope, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, err
	}
	var env ReportEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report file: %w", err)
	}
	return &env, nil
}

func (r *ReportRepo) path(id string) string {
	return filepath.Join(r.fileDir, filepath.Base(id)+".json")
}
