package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"notebook/internal/domain"
	"notebook/internal/infra"
	"notebook/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository on Postgres.
type JobRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewJobRepository creates a job repository. sql is normally an
// *infra.SQLRunner over a pgx pool.
func NewJobRepository(sql infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{sql: sql}
}

// EnsureSchema creates the jobs table when missing.
func (r *JobRepositoryPG) EnsureSchema(ctx context.Context) error {
	if _, err := r.sql.Exec(ctx, sqlinline.QCreateJobsTable); err != nil {
		return fmt.Errorf("repo: create jobs table: %w", err)
	}
	return nil
}

// Save inserts or replaces a job. Replacing a row with an earlier status is
// refused with domain.ErrStaleWrite.
func (r *JobRepositoryPG) Save(ctx context.Context, job *domain.Job) error {
	payload, err := encodePayload(job.Payload)
	if err != nil {
		return err
	}
	submittedAt := job.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = time.Now()
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QUpsertJob,
		job.ID,
		string(job.OutputType),
		job.Provider,
		string(job.Status),
		payload,
		job.ErrorDetail,
		job.Fingerprint,
		submittedAt,
	)
	if err != nil {
		return fmt.Errorf("repo: save job %s: %w", job.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("repo: save job %s: %w", job.ID, domain.ErrStaleWrite)
	}
	return nil
}

// Update writes the mutable fields of an existing job. It returns
// domain.ErrNotFound for a missing row and domain.ErrStaleWrite when the
// stored status is already past job.Status.
func (r *JobRepositoryPG) Update(ctx context.Context, job *domain.Job) error {
	payload, err := encodePayload(job.Payload)
	if err != nil {
		return err
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QUpdateJob,
		job.ID,
		string(job.Status),
		payload,
		job.ErrorDetail,
		job.Provider,
	)
	if err != nil {
		return fmt.Errorf("repo: update job %s: %w", job.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return r.missedUpdate(ctx, job.ID)
	}
	return nil
}

func (r *JobRepositoryPG) missedUpdate(ctx context.Context, id string) error {
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("repo: update job %s: %w", id, domain.ErrStaleWrite)
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	return scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectJobByID, id))
}

// FindCompleted returns the most recent completed job with fingerprint.
func (r *JobRepositoryPG) FindCompleted(ctx context.Context, fingerprint string) (*domain.Job, error) {
	if fingerprint == "" {
		return nil, domain.ErrNotFound
	}
	return scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectCompletedJobByFingerprint, fingerprint))
}

// ListStale returns non-terminal jobs not touched for olderThan.
func (r *JobRepositoryPG) ListStale(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.sql.Query(ctx, sqlinline.QListStaleJobs, olderThan.Seconds(), limit)
	if err != nil {
		return nil, fmt.Errorf("repo: list stale jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
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

// ClaimStale locks the oldest stale job, bumps its timestamp so other
// workers skip it, and returns it. domain.ErrNotFound means nothing is due.
func (r *JobRepositoryPG) ClaimStale(ctx context.Context, olderThan time.Duration) (*domain.Job, error) {
	return scanJob(r.sql.QueryRow(ctx, sqlinline.QClaimStaleJob, olderThan.Seconds()))
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		job         domain.Job
		outputType  string
		status      string
		payload     []byte
		submittedAt time.Time
	)
	if err := row.Scan(
		&job.ID,
		&outputType,
		&job.Provider,
		&status,
		&payload,
		&job.ErrorDetail,
		&job.Fingerprint,
		&submittedAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("repo: scan job: %w", err)
	}
	job.OutputType = domain.OutputType(outputType)
	job.Status = domain.JobStatus(status)
	job.SubmittedAt = submittedAt
	result, err := decodePayload(payload)
	if err != nil {
		return nil, err
	}
	job.Payload = result
	return &job, nil
}

func encodePayload(res *domain.Result) ([]byte, error) {
	if res == nil {
		return nil, nil
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("repo: encode payload: %w", err)
	}
	return raw, nil
}

func decodePayload(raw []byte) (*domain.Result, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var res domain.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("repo: decode payload: %w", err)
	}
	return &res, nil
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
