// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/pdp-auditor/internal/audit"
)

//go:embed schema.sql
var schemaSQL string

var validPrefix = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DefaultTablePrefix is prepended to every table name.
const DefaultTablePrefix = "audit_"

// Config controls the Postgres connection pool used for audit records.
type Config struct {
	DSN             string
	TablePrefix     string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// RecordStore implements audit.RecordStore with idempotent upserts keyed by
// the deterministic audit keys.
type RecordStore struct {
	pool   pool
	prefix string
}

// NewRecordStore connects to Postgres using the provided config.
func NewRecordStore(ctx context.Context, cfg Config) (*RecordStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	prefix, err := tablePrefix(cfg.TablePrefix)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &RecordStore{pool: p, prefix: prefix}, nil
}

// NewRecordStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRecordStoreWithPool(p pool, prefix string) (*RecordStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	prefix, err := tablePrefix(prefix)
	if err != nil {
		return nil, err
	}
	return &RecordStore{pool: p, prefix: prefix}, nil
}

func tablePrefix(prefix string) (string, error) {
	if prefix == "" {
		return DefaultTablePrefix, nil
	}
	if !validPrefix.MatchString(prefix) {
		return "", fmt.Errorf("invalid table prefix %q", prefix)
	}
	return prefix, nil
}

// Close releases the underlying pool resources.
func (s *RecordStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks that the database is reachable.
func (s *RecordStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Migrate creates the tables when they do not exist.
func (s *RecordStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, strings.ReplaceAll(schemaSQL, "{{prefix}}", s.prefix)); err != nil {
		return fmt.Errorf("migrate audit schema: %w", err)
	}
	return nil
}

func (s *RecordStore) table(name string) string {
	return s.prefix + name
}

// UpsertProduct writes the product row.
func (s *RecordStore) UpsertProduct(ctx context.Context, rec audit.ProductRecord) error {
	query := fmt.Sprintf(`
INSERT INTO %s (product_key, normalized_url, mode, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (product_key) DO UPDATE SET
	normalized_url = EXCLUDED.normalized_url,
	mode = EXCLUDED.mode,
	updated_at = EXCLUDED.updated_at`, s.table("products"))
	if _, err := s.pool.Exec(ctx, query, rec.Key, rec.NormalizedURL, string(rec.Mode), rec.UpdatedAt); err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

// UpsertSnapshot writes the snapshot row.
func (s *RecordStore) UpsertSnapshot(ctx context.Context, rec audit.SnapshotRecord) error {
	viewports := rec.Viewports
	if viewports == nil {
		viewports = []audit.Viewport{}
	}
	viewportsJSON, err := json.Marshal(viewports)
	if err != nil {
		return fmt.Errorf("marshal viewports: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (snapshot_key, product_key, locale, viewports, completeness, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (snapshot_key) DO UPDATE SET
	product_key = EXCLUDED.product_key,
	locale = EXCLUDED.locale,
	viewports = EXCLUDED.viewports,
	completeness = EXCLUDED.completeness,
	updated_at = EXCLUDED.updated_at`, s.table("snapshots"))
	_, err = s.pool.Exec(ctx, query,
		rec.Key, rec.ProductKey, rec.Locale, viewportsJSON, string(rec.Completeness), rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

// UpsertSource writes one viewport source row.
func (s *RecordStore) UpsertSource(ctx context.Context, rec audit.SourceRecord) error {
	query := fmt.Sprintf(`
INSERT INTO %s (snapshot_key, viewport, final_url, status_code, screenshot_url, markup_url, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (snapshot_key, viewport) DO UPDATE SET
	final_url = EXCLUDED.final_url,
	status_code = EXCLUDED.status_code,
	screenshot_url = EXCLUDED.screenshot_url,
	markup_url = EXCLUDED.markup_url,
	updated_at = EXCLUDED.updated_at`, s.table("sources"))
	_, err := s.pool.Exec(ctx, query,
		rec.SnapshotKey, string(rec.Viewport), rec.FinalURL, rec.StatusCode,
		rec.ScreenshotURL, rec.MarkupURL, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert source: %w", err)
	}
	return nil
}

// UpsertRun writes the run row including its export document.
func (s *RecordStore) UpsertRun(ctx context.Context, rec audit.RunRecord) error {
	errs := rec.Errors
	if errs == nil {
		errs = []audit.Error{}
	}
	errorsJSON, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("marshal run errors: %w", err)
	}
	var exportJSON []byte
	if rec.Export != nil {
		if exportJSON, err = json.Marshal(rec.Export); err != nil {
			return fmt.Errorf("marshal run export: %w", err)
		}
	}
	query := fmt.Sprintf(`
INSERT INTO %s (run_key, snapshot_key, status, errors, export, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (run_key) DO UPDATE SET
	snapshot_key = EXCLUDED.snapshot_key,
	status = EXCLUDED.status,
	errors = EXCLUDED.errors,
	export = EXCLUDED.export,
	updated_at = EXCLUDED.updated_at`, s.table("runs"))
	_, err = s.pool.Exec(ctx, query,
		rec.Key, rec.SnapshotKey, string(rec.Status), errorsJSON, exportJSON, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	return nil
}

// UpsertJob writes the job row.
func (s *RecordStore) UpsertJob(ctx context.Context, rec audit.JobRecord) error {
	query := fmt.Sprintf(`
INSERT INTO %s (audit_key, run_key, render_key, url, status, copy_ready, white_label, request_id, error_text, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (audit_key) DO UPDATE SET
	run_key = EXCLUDED.run_key,
	render_key = EXCLUDED.render_key,
	url = EXCLUDED.url,
	status = EXCLUDED.status,
	copy_ready = EXCLUDED.copy_ready,
	white_label = EXCLUDED.white_label,
	request_id = EXCLUDED.request_id,
	error_text = EXCLUDED.error_text,
	updated_at = EXCLUDED.updated_at`, s.table("jobs"))
	_, err := s.pool.Exec(ctx, query,
		rec.Key, rec.RunKey, rec.RenderKey, rec.URL, string(rec.Status),
		rec.CopyReady, rec.WhiteLabel, rec.RequestID, rec.ErrorText, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert job: %w", err)
	}
	return nil
}

// GetRun reads a run by key.
func (s *RecordStore) GetRun(ctx context.Context, runKey string) (audit.RunRecord, error) {
	query := fmt.Sprintf(`
SELECT run_key, snapshot_key, status, errors, export, updated_at
FROM %s WHERE run_key = $1`, s.table("runs"))

	var (
		rec        audit.RunRecord
		status     string
		errorsJSON []byte
		exportJSON []byte
	)
	err := s.pool.QueryRow(ctx, query, runKey).
		Scan(&rec.Key, &rec.SnapshotKey, &status, &errorsJSON, &exportJSON, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return audit.RunRecord{}, fmt.Errorf("run %s: %w", runKey, audit.ErrNotFound)
	}
	if err != nil {
		return audit.RunRecord{}, fmt.Errorf("select run: %w", err)
	}
	rec.Status = audit.Status(status)
	if len(errorsJSON) > 0 {
		if err := json.Unmarshal(errorsJSON, &rec.Errors); err != nil {
			return audit.RunRecord{}, fmt.Errorf("decode run errors: %w", err)
		}
	}
	if len(exportJSON) > 0 {
		rec.Export = &audit.Export{}
		if err := json.Unmarshal(exportJSON, rec.Export); err != nil {
			return audit.RunRecord{}, fmt.Errorf("decode run export: %w", err)
		}
	}
	return rec, nil
}

// GetJob reads a job by audit key.
func (s *RecordStore) GetJob(ctx context.Context, auditKey string) (audit.JobRecord, error) {
	query := fmt.Sprintf(`
SELECT audit_key, run_key, render_key, url, status, copy_ready, white_label, request_id, error_text, updated_at
FROM %s WHERE audit_key = $1`, s.table("jobs"))

	var (
		rec    audit.JobRecord
		status string
	)
	err := s.pool.QueryRow(ctx, query, auditKey).Scan(
		&rec.Key, &rec.RunKey, &rec.RenderKey, &rec.URL, &status,
		&rec.CopyReady, &rec.WhiteLabel, &rec.RequestID, &rec.ErrorText, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return audit.JobRecord{}, fmt.Errorf("job %s: %w", auditKey, audit.ErrNotFound)
	}
	if err != nil {
		return audit.JobRecord{}, fmt.Errorf("select job: %w", err)
	}
	rec.Status = audit.Status(status)
	return rec, nil
}
