package persistence

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/DonISO100/classical-works-processor/internal/jobs"
	"github.com/DonISO100/classical-works-processor/internal/pipeline"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// SQLiteStore is the durable job store plus the default chunk index
// backend. Single-writer sqlite via modernc driver.
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

func (s *SQLiteStore) UpsertJob(ctx context.Context, job *jobs.Job) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	metadataJSON, err := marshalMetadata(job.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (
			id, title, author, year, language, status, error_message, metadata_json, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title=excluded.title,
			author=excluded.author,
			year=excluded.year,
			language=excluded.language,
			status=excluded.status,
			error_message=excluded.error_message,
			metadata_json=excluded.metadata_json,
			updated_at=excluded.updated_at`,
		job.ID,
		job.Title,
		job.Author,
		yearValue(job.Year),
		job.Language,
		string(job.Status),
		job.ErrorMessage,
		metadataJSON,
		job.CreatedAt,
		job.UpdatedAt,
	)
	return err
}

func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*jobs.Job, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, title, author, year, language, status, error_message, metadata_json, created_at, updated_at
		 FROM jobs
		 WHERE id = ?`,
		jobID,
	)
	job, err := scanJob(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}
	return job, true, nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context) ([]*jobs.Job, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, title, author, year, language, status, error_message, metadata_json, created_at, updated_at
		 FROM jobs
		 ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

func (s *SQLiteStore) ListStaleJobs(ctx context.Context, cutoff time.Time) ([]*jobs.Job, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, title, author, year, language, status, error_message, metadata_json, created_at, updated_at
		 FROM jobs
		 WHERE status NOT IN (?, ?) AND updated_at <= ?
		 ORDER BY updated_at ASC`,
		string(jobs.StatusCompleted),
		string(jobs.StatusFailed),
		cutoff.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

func (s *SQLiteStore) PutProcessedWork(ctx context.Context, work *jobs.ProcessedWork) error {
	if work == nil {
		return fmt.Errorf("work is nil")
	}
	metadataJSON, err := marshalMetadata(work.Metadata)
	if err != nil {
		return err
	}
	structuredJSON, err := json.Marshal(work.StructuredOutput)
	if err != nil {
		return err
	}
	// Plain INSERT: exactly one processed work per job, the UNIQUE
	// constraint on job_id rejects a second write.
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO processed_works (
			job_id, title, author, year, language, metadata_json, original_text, translated_text, structured_json, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		work.JobID,
		work.Title,
		work.Author,
		yearValue(work.Year),
		work.Language,
		metadataJSON,
		work.OriginalText,
		work.TranslatedText,
		string(structuredJSON),
		work.CreatedAt,
	)
	return err
}

func (s *SQLiteStore) GetProcessedWorkByJob(ctx context.Context, jobID string) (*jobs.ProcessedWork, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT job_id, title, author, year, language, metadata_json, original_text, translated_text, structured_json, created_at
		 FROM processed_works
		 WHERE job_id = ?`,
		jobID,
	)

	var work jobs.ProcessedWork
	var year sql.NullInt64
	var metadataJSON string
	var structuredJSON string
	if err := row.Scan(
		&work.JobID,
		&work.Title,
		&work.Author,
		&year,
		&work.Language,
		&metadataJSON,
		&work.OriginalText,
		&work.TranslatedText,
		&structuredJSON,
		&work.CreatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}
	if year.Valid {
		y := int(year.Int64)
		work.Year = &y
	}
	metadata, err := unmarshalMetadata(metadataJSON)
	if err != nil {
		return nil, false, err
	}
	work.Metadata = metadata
	if structuredJSON != "" {
		if err := json.Unmarshal([]byte(structuredJSON), &work.StructuredOutput); err != nil {
			return nil, false, err
		}
	}
	return &work, true, nil
}

// UpsertIndexedChunks replaces the indexed chunks for a job in one
// transaction, keyed by chunk position.
func (s *SQLiteStore) UpsertIndexedChunks(ctx context.Context, jobID string, chunks []pipeline.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM indexed_chunks WHERE job_id = ?`, jobID); err != nil {
		return err
	}

	now := time.Now().UTC()
	for i, chunk := range chunks {
		var metadataJSON []byte
		metadataJSON, err = json.Marshal(chunk.Metadata)
		if err != nil {
			return err
		}
		if _, err = tx.ExecContext(
			ctx,
			`INSERT INTO indexed_chunks (job_id, position, content, metadata_json, updated_at)
			 VALUES (?, ?, ?, ?, ?)`,
			jobID,
			i,
			chunk.Content,
			string(metadataJSON),
			now,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadIndexedChunks returns a job's indexed chunks in position order.
func (s *SQLiteStore) LoadIndexedChunks(ctx context.Context, jobID string) ([]pipeline.Chunk, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT content, metadata_json
		 FROM indexed_chunks
		 WHERE job_id = ?
		 ORDER BY position ASC`,
		jobID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]pipeline.Chunk, 0)
	for rows.Next() {
		var chunk pipeline.Chunk
		var metadataJSON string
		if err := rows.Scan(&chunk.Content, &metadataJSON); err != nil {
			return nil, err
		}
		if metadataJSON != "" {
			if err := json.Unmarshal([]byte(metadataJSON), &chunk.Metadata); err != nil {
				return nil, err
			}
		}
		ret = append(ret, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*jobs.Job, error) {
	var job jobs.Job
	var status string
	var year sql.NullInt64
	var metadataJSON string
	if err := row.Scan(
		&job.ID,
		&job.Title,
		&job.Author,
		&year,
		&job.Language,
		&status,
		&job.ErrorMessage,
		&metadataJSON,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	job.Status = jobs.Status(status)
	if year.Valid {
		y := int(year.Int64)
		job.Year = &y
	}
	metadata, err := unmarshalMetadata(metadataJSON)
	if err != nil {
		return nil, err
	}
	job.Metadata = metadata
	return &job, nil
}

func collectJobs(rows *sql.Rows) ([]*jobs.Job, error) {
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

func marshalMetadata(metadata jobs.Metadata) (string, error) {
	if metadata == nil {
		return "", nil
	}
	payload, err := json.Marshal(metadata)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

func unmarshalMetadata(payload string) (jobs.Metadata, error) {
	if payload == "" {
		return nil, nil
	}
	var metadata jobs.Metadata
	if err := json.Unmarshal([]byte(payload), &metadata); err != nil {
		return nil, err
	}
	return metadata, nil
}

func yearValue(year *int) any {
	if year == nil {
		return nil
	}
	return *year
}
