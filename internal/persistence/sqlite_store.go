package persistence

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lekver/scribed/internal/costs"
	"github.com/lekver/scribed/internal/jobs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// SQLiteStore backs both the job record store and the cost ledger.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	// Bootstrap schema_migrations table so we can track applied versions.
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		content, err := migrationFiles.ReadFile(filepath.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

const jobColumns = `id, title, status, source_kind, filename, byte_size, media_kind, url,
	method, language_hint, timestamps, queued_at, started_at, transcript,
	detected_language, duration_seconds, cost, error_detail, created_at, updated_at`

func (s *SQLiteStore) CreateJob(ctx context.Context, job *jobs.Job) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	result, err := s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (
			title, status, source_kind, filename, byte_size, media_kind, url,
			method, language_hint, timestamps, queued_at, started_at, transcript,
			detected_language, duration_seconds, cost, error_detail, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.Title,
		string(job.Status),
		string(job.Source.Kind),
		job.Source.Filename,
		job.Source.ByteSize,
		string(job.Source.MediaKind),
		job.Source.URL,
		string(job.Method),
		job.LanguageHint,
		boolToInt(job.Timestamps),
		job.QueuedAt,
		job.StartedAt,
		job.Transcript,
		job.DetectedLanguage,
		job.DurationSeconds,
		job.Cost,
		job.ErrorDetail,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	job.ID = id
	return nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, id int64) (*jobs.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, jobs.ErrJobNotFound
	}
	return job, err
}

func (s *SQLiteStore) UpdateJob(ctx context.Context, job *jobs.Job) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	job.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET
			title=?, status=?, source_kind=?, filename=?, byte_size=?, media_kind=?, url=?,
			method=?, language_hint=?, timestamps=?, queued_at=?, started_at=?, transcript=?,
			detected_language=?, duration_seconds=?, cost=?, error_detail=?, updated_at=?
		WHERE id=?`,
		job.Title,
		string(job.Status),
		string(job.Source.Kind),
		job.Source.Filename,
		job.Source.ByteSize,
		string(job.Source.MediaKind),
		job.Source.URL,
		string(job.Method),
		job.LanguageHint,
		boolToInt(job.Timestamps),
		job.QueuedAt,
		job.StartedAt,
		job.Transcript,
		job.DetectedLanguage,
		job.DurationSeconds,
		job.Cost,
		job.ErrorDetail,
		job.UpdatedAt,
		job.ID,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return jobs.ErrJobNotFound
	}
	return nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context, status jobs.Status) ([]*jobs.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := make([]any, 0, 1)
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]*jobs.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		ret = append(ret, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *SQLiteStore) OldestQueued(ctx context.Context) (*jobs.Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE status = ?
		 ORDER BY queued_at ASC, id ASC
		 LIMIT 1`,
		string(jobs.StatusQueued),
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return job, err
}

func (s *SQLiteStore) CountByStatus(ctx context.Context) (map[jobs.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[jobs.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[jobs.Status(status)] = n
	}
	return counts, rows.Err()
}

func (s *SQLiteStore) DeleteJob(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) RecordCost(ctx context.Context, event costs.Event) error {
	createdAt := event.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO costs (service, category, amount, job_id, method, source_ref, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.Service,
		event.Category,
		event.Amount,
		event.Context.JobID,
		event.Context.Method,
		event.Context.SourceRef,
		createdAt,
	)
	return err
}

func (s *SQLiteStore) ListCosts(ctx context.Context) ([]costs.Event, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, service, category, amount, job_id, method, source_ref, created_at
		 FROM costs
		 ORDER BY created_at DESC, id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]costs.Event, 0)
	for rows.Next() {
		var item costs.Event
		if err := rows.Scan(
			&item.ID,
			&item.Service,
			&item.Category,
			&item.Amount,
			&item.Context.JobID,
			&item.Context.Method,
			&item.Context.SourceRef,
			&item.CreatedAt,
		); err != nil {
			return nil, err
		}
		ret = append(ret, item)
	}
	return ret, rows.Err()
}

func (s *SQLiteStore) TotalCost(ctx context.Context) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(amount), 0) FROM costs`).Scan(&total)
	return total, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*jobs.Job, error) {
	var item jobs.Job
	var status, sourceKind, mediaKind, method string
	var timestamps int
	if err := row.Scan(
		&item.ID,
		&item.Title,
		&status,
		&sourceKind,
		&item.Source.Filename,
		&item.Source.ByteSize,
		&mediaKind,
		&item.Source.URL,
		&method,
		&item.LanguageHint,
		&timestamps,
		&item.QueuedAt,
		&item.StartedAt,
		&item.Transcript,
		&item.DetectedLanguage,
		&item.DurationSeconds,
		&item.Cost,
		&item.ErrorDetail,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		return nil, err
	}
	item.Status = jobs.Status(status)
	item.Source.Kind = jobs.SourceKind(sourceKind)
	item.Source.MediaKind = jobs.MediaKind(mediaKind)
	item.Method = jobs.Method(method)
	item.Timestamps = timestamps != 0
	return &item, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
