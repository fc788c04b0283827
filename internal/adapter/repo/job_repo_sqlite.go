package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"notebook/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	output_type TEXT NOT NULL DEFAULT '',
	provider TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	payload TEXT,
	error_detail TEXT NOT NULL DEFAULT '',
	fingerprint TEXT NOT NULL DEFAULT '',
	submitted_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_jobs_fingerprint ON jobs(fingerprint, status);
CREATE INDEX IF NOT EXISTS idx_jobs_updated_at ON jobs(updated_at);
`

const sqliteJobColumns = `id, output_type, provider, status, payload, error_detail, fingerprint, submitted_at`

// JobRepositorySQLite stores jobs in a local SQLite file. It backs single
// node deployments that have no Postgres.
type JobRepositorySQLite struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLiteJobRepository opens (or creates) the database at path.
func OpenSQLiteJobRepository(path string) (*JobRepositorySQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("repo: open sqlite: %w", err)
	}
	// A single connection serializes writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("repo: create sqlite schema: %w", err)
	}
	return &JobRepositorySQLite{db: db, now: time.Now}, nil
}

func (r *JobRepositorySQLite) Close() error {
	return r.db.Close()
}

func (r *JobRepositorySQLite) Save(ctx context.Context, job *domain.Job) error {
	payload, err := encodePayload(job.Payload)
	if err != nil {
		return err
	}
	submittedAt := job.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = r.now()
	}
	res, err := r.db.ExecContext(ctx, `
	INSERT INTO jobs (id, output_type, provider, status, payload, error_detail, fingerprint, submitted_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		output_type = excluded.output_type,
		provider = excluded.provider,
		status = excluded.status,
		payload = excluded.payload,
		error_detail = excluded.error_detail,
		fingerprint = CASE WHEN excluded.fingerprint = '' THEN jobs.fingerprint ELSE excluded.fingerprint END,
		updated_at = excluded.updated_at
	WHERE `+sqliteForwardGuard("jobs.status", "excluded.status")+`
	`,
		job.ID, string(job.OutputType), job.Provider, string(job.Status), nullableText(payload),
		job.ErrorDetail, job.Fingerprint, submittedAt.UnixMilli(), r.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("repo: save job %s: %w", job.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("repo: save job %s: %w", job.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("repo: save job %s: %w", job.ID, domain.ErrStaleWrite)
	}
	return nil
}

func (r *JobRepositorySQLite) Update(ctx context.Context, job *domain.Job) error {
	payload, err := encodePayload(job.Payload)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
	UPDATE jobs
	SET status = ?, payload = ?, error_detail = ?,
		provider = CASE WHEN ? = '' THEN provider ELSE ? END,
		updated_at = ?
	WHERE id = ? AND `+sqliteForwardGuard("status", "?")+`
	`,
		string(job.Status), nullableText(payload), job.ErrorDetail,
		job.Provider, job.Provider, r.now().UnixMilli(), job.ID,
		string(job.Status), string(job.Status),
	)
	if err != nil {
		return fmt.Errorf("repo: update job %s: %w", job.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("repo: update job %s: %w", job.ID, err)
	}
	if n == 0 {
		if _, err := r.GetByID(ctx, job.ID); err != nil {
			return err
		}
		return fmt.Errorf("repo: update job %s: %w", job.ID, domain.ErrStaleWrite)
	}
	return nil
}

func (r *JobRepositorySQLite) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sqliteJobColumns+` FROM jobs WHERE id = ?`, id)
	return scanSQLiteJob(row)
}

func (r *JobRepositorySQLite) FindCompleted(ctx context.Context, fingerprint string) (*domain.Job, error) {
	if fingerprint == "" {
		return nil, domain.ErrNotFound
	}
	row := r.db.QueryRowContext(ctx, `
	SELECT `+sqliteJobColumns+`
	FROM jobs
	WHERE fingerprint = ? AND status = ?
	ORDER BY updated_at DESC
	LIMIT 1
	`, fingerprint, string(domain.JobStatusCompleted))
	return scanSQLiteJob(row)
}

func (r *JobRepositorySQLite) ListStale(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	cutoff := r.now().Add(-olderThan).UnixMilli()
	rows, err := r.db.QueryContext(ctx, `
	SELECT `+sqliteJobColumns+`
	FROM jobs
	WHERE status IN (?, ?) AND updated_at < ?
	ORDER BY updated_at ASC
	LIMIT ?
	`, string(domain.JobStatusPending), string(domain.JobStatusProcessing), cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("repo: list stale jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanSQLiteJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo: list stale jobs: %w", err)
	}
	return jobs, nil
}

// ClaimStale returns the oldest stale job and bumps its timestamp. The single
// connection makes the read and the bump atomic with respect to other callers
// of this repository.
func (r *JobRepositorySQLite) ClaimStale(ctx context.Context, olderThan time.Duration) (*domain.Job, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("repo: claim stale job: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	cutoff := r.now().Add(-olderThan).UnixMilli()
	job, err := scanSQLiteJob(tx.QueryRowContext(ctx, `
	SELECT `+sqliteJobColumns+`
	FROM jobs
	WHERE status IN (?, ?) AND updated_at < ?
	ORDER BY updated_at ASC
	LIMIT 1
	`, string(domain.JobStatusPending), string(domain.JobStatusProcessing), cutoff))
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE jobs SET updated_at = ? WHERE id = ?`, r.now().UnixMilli(), job.ID); err != nil {
		return nil, fmt.Errorf("repo: claim stale job: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("repo: claim stale job: %w", err)
	}
	return job, nil
}

// sqliteForwardGuard is the predicate that lets a write from status next
// replace status cur: same status, or a later one while cur is not terminal.
// next is referenced twice.
func sqliteForwardGuard(cur, next string) string {
	return `(` + cur + ` = ` + next + ` OR (` + cur + ` NOT IN ('completed', 'failed') AND ` +
		statusRankSQL(next) + ` > ` + statusRankSQL(cur) + `))`
}

func statusRankSQL(col string) string {
	return `(CASE ` + col + ` WHEN 'pending' THEN 1 WHEN 'processing' THEN 2 WHEN 'completed' THEN 3 WHEN 'failed' THEN 3 ELSE 0 END)`
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteJob(row rowScanner) (*domain.Job, error) {
	var (
		job         domain.Job
		outputType  string
		status      string
		payload     sql.NullString
		submittedAt int64
	)
	if err := row.Scan(&job.ID, &outputType, &job.Provider, &status, &payload, &job.ErrorDetail, &job.Fingerprint, &submittedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("repo: scan job: %w", err)
	}
	job.OutputType = domain.OutputType(outputType)
	job.Status = domain.JobStatus(status)
	job.SubmittedAt = time.UnixMilli(submittedAt).UTC()
	if payload.Valid {
		res, err := decodePayload([]byte(payload.String))
		if err != nil {
			return nil, err
		}
		job.Payload = res
	}
	return &job, nil
}

func nullableText(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

var _ domain.JobRepository = (*JobRepositorySQLite)(nil)
