package domain

import (
	"context"
	"time"
)

// JobRepository persists jobs so that results can be served again and jobs
// that outlived a poll deadline can be resumed later. Save and Update never
// move a stored job to an earlier status; such writes are dropped and
// reported as ErrStaleWrite.
type JobRepository interface {
	Save(ctx context.Context, job *Job) error
	Update(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, id string) (*Job, error)
	FindCompleted(ctx context.Context, fingerprint string) (*Job, error)
	ListStale(ctx context.Context, olderThan time.Duration, limit int) ([]Job, error)
}
