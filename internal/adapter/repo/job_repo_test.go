package repo

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"notebook/internal/domain"
	"notebook/internal/sqlinline"
)

type scanFunc func(dest ...any) error

func (f scanFunc) Scan(dest ...any) error { return f(dest...) }

type fakeSQL struct {
	queries []string
	args    [][]any
	tag     string
	execErr error
	rowScan scanFunc
}

func (f *fakeSQL) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	f.queries = append(f.queries, query)
	f.args = append(f.args, args)
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	return pgconn.NewCommandTag(f.tag), nil
}

func (f *fakeSQL) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	f.queries = append(f.queries, query)
	f.args = append(f.args, args)
	if f.rowScan == nil {
		return scanFunc(func(dest ...any) error { return pgx.ErrNoRows })
	}
	return f.rowScan
}

func (f *fakeSQL) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not supported")
}

func TestPGSaveEncodesPayload(t *testing.T) {
	db := &fakeSQL{tag: "INSERT 0 1"}
	r := NewJobRepository(db)
	job := &domain.Job{
		ID:          "job-1",
		OutputType:  domain.OutputBriefing,
		Provider:    "autocontent",
		Status:      domain.JobStatusCompleted,
		Payload:     &domain.Result{Content: "brief"},
		Fingerprint: "fp",
		SubmittedAt: time.Unix(100, 0),
	}
	if err := r.Save(context.Background(), job); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if db.queries[0] != sqlinline.QUpsertJob {
		t.Fatalf("unexpected query: %s", db.queries[0])
	}
	args := db.args[0]
	if args[0] != "job-1" || args[3] != "completed" || args[6] != "fp" {
		t.Fatalf("args = %#v", args)
	}
	var decoded domain.Result
	if err := json.Unmarshal(args[4].([]byte), &decoded); err != nil || decoded.Content != "brief" {
		t.Fatalf("payload = %s (%v)", args[4], err)
	}
}

func TestPGUpdateMissingRow(t *testing.T) {
	r := NewJobRepository(&fakeSQL{tag: "UPDATE 0"})
	err := r.Update(context.Background(), &domain.Job{ID: "x", Status: domain.JobStatusFailed, ErrorDetail: "boom"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestPGUpdateBehindStoredStatus(t *testing.T) {
	db := &fakeSQL{tag: "UPDATE 0", rowScan: func(dest ...any) error {
		*dest[0].(*string) = "job-7"
		*dest[3].(*string) = "completed"
		*dest[7].(*time.Time) = time.Unix(0, 0)
		return nil
	}}
	err := NewJobRepository(db).Update(context.Background(), &domain.Job{ID: "job-7", Status: domain.JobStatusProcessing})
	if !errors.Is(err, domain.ErrStaleWrite) {
		t.Fatalf("error = %v, want ErrStaleWrite", err)
	}
	if db.queries[0] != sqlinline.QUpdateJob || db.queries[1] != sqlinline.QSelectJobByID {
		t.Fatalf("queries = %v", db.queries)
	}
}

func TestPGSaveSkippedByGuard(t *testing.T) {
	r := NewJobRepository(&fakeSQL{tag: "INSERT 0 0"})
	err := r.Save(context.Background(), &domain.Job{ID: "job-8", Status: domain.JobStatusPending})
	if !errors.Is(err, domain.ErrStaleWrite) {
		t.Fatalf("error = %v, want ErrStaleWrite", err)
	}
}

func TestPGWritesGuardStatusOrder(t *testing.T) {
	for name, query := range map[string]string{"update": sqlinline.QUpdateJob, "upsert": sqlinline.QUpsertJob} {
		if !strings.Contains(query, "not in ('completed', 'failed')") {
			t.Fatalf("%s query does not guard terminal rows:\n%s", name, query)
		}
	}
}

func TestPGGetByIDScansRow(t *testing.T) {
	submitted := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	db := &fakeSQL{rowScan: func(dest ...any) error {
		*dest[0].(*string) = "job-9"
		*dest[1].(*string) = "timeline"
		*dest[2].(*string) = "gemini"
		*dest[3].(*string) = "completed"
		*dest[4].(*[]byte) = []byte(`{"content":"1990: start"}`)
		*dest[5].(*string) = ""
		*dest[6].(*string) = "fp"
		*dest[7].(*time.Time) = submitted
		return nil
	}}
	job, err := NewJobRepository(db).GetByID(context.Background(), "job-9")
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if job.OutputType != domain.OutputTimeline || job.Status != domain.JobStatusCompleted {
		t.Fatalf("unexpected job: %#v", job)
	}
	if job.Payload == nil || !strings.HasPrefix(job.Payload.Content, "1990") {
		t.Fatalf("payload = %#v", job.Payload)
	}
	if err := job.Validate(); err != nil {
		t.Fatalf("scanned job invalid: %v", err)
	}
}

func TestPGNoRowsIsNotFound(t *testing.T) {
	r := NewJobRepository(&fakeSQL{})
	if _, err := r.GetByID(context.Background(), "x"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetByID error = %v", err)
	}
	if _, err := r.ClaimStale(context.Background(), time.Minute); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ClaimStale error = %v", err)
	}
	if _, err := r.FindCompleted(context.Background(), ""); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("FindCompleted error = %v", err)
	}
}
