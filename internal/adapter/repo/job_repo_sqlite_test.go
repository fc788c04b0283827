package repo

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"notebook/internal/domain"
)

func openTestSQLite(t *testing.T) *JobRepositorySQLite {
	t.Helper()
	r, err := OpenSQLiteJobRepository(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("OpenSQLiteJobRepository returned error: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestSQLiteSaveAndGet(t *testing.T) {
	r := openTestSQLite(t)
	ctx := context.Background()
	submitted := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	job := &domain.Job{
		ID:          "job-1",
		OutputType:  domain.OutputSummary,
		Provider:    "autocontent",
		SubmittedAt: submitted,
		Status:      domain.JobStatusPending,
		Fingerprint: "abc",
	}
	if err := r.Save(ctx, job); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	got, err := r.GetByID(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if got.Status != domain.JobStatusPending || got.OutputType != domain.OutputSummary || got.Payload != nil {
		t.Fatalf("unexpected job: %#v", got)
	}
	if !got.SubmittedAt.Equal(submitted) {
		t.Fatalf("SubmittedAt = %v, want %v", got.SubmittedAt, submitted)
	}

	if _, err := r.GetByID(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetByID(missing) error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteUpdateAndFindCompleted(t *testing.T) {
	r := openTestSQLite(t)
	ctx := context.Background()
	job := &domain.Job{ID: "job-2", OutputType: domain.OutputFAQ, Status: domain.JobStatusProcessing, Fingerprint: "fp-1"}
	if err := r.Save(ctx, job); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if _, err := r.FindCompleted(ctx, "fp-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("FindCompleted before completion error = %v", err)
	}

	job.Status = domain.JobStatusCompleted
	job.Payload = &domain.Result{Content: "Q: why?\nA: because.", Metadata: map[string]any{"title": "FAQ"}}
	if err := r.Update(ctx, job); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	got, err := r.FindCompleted(ctx, "fp-1")
	if err != nil {
		t.Fatalf("FindCompleted returned error: %v", err)
	}
	if got.ID != "job-2" || got.Payload == nil || got.Payload.Content != job.Payload.Content {
		t.Fatalf("unexpected job: %#v", got)
	}
	if got.Payload.Metadata["title"] != "FAQ" {
		t.Fatalf("metadata = %#v", got.Payload.Metadata)
	}

	if err := r.Update(ctx, &domain.Job{ID: "nope", Status: domain.JobStatusFailed}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Update(missing) error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteSaveKeepsFingerprintOnOverwrite(t *testing.T) {
	r := openTestSQLite(t)
	ctx := context.Background()
	if err := r.Save(ctx, &domain.Job{ID: "job-3", Status: domain.JobStatusPending, Fingerprint: "fp"}); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if err := r.Save(ctx, &domain.Job{ID: "job-3", Status: domain.JobStatusFailed, ErrorDetail: "boom"}); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	got, err := r.GetByID(ctx, "job-3")
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if got.Fingerprint != "fp" || got.Status != domain.JobStatusFailed || got.ErrorDetail != "boom" {
		t.Fatalf("unexpected job: %#v", got)
	}
}

func TestSQLiteStaleJobs(t *testing.T) {
	r := openTestSQLite(t)
	ctx := context.Background()
	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return clock }

	for _, job := range []*domain.Job{
		{ID: "old-pending", Status: domain.JobStatusPending},
		{ID: "old-done", Status: domain.JobStatusCompleted, Payload: &domain.Result{Content: "x"}},
	} {
		if err := r.Save(ctx, job); err != nil {
			t.Fatalf("Save returned error: %v", err)
		}
	}
	clock = clock.Add(5 * time.Minute)
	if err := r.Save(ctx, &domain.Job{ID: "fresh", Status: domain.JobStatusProcessing}); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	stale, err := r.ListStale(ctx, time.Minute, 10)
	if err != nil {
		t.Fatalf("ListStale returned error: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != "old-pending" {
		t.Fatalf("stale = %#v", stale)
	}

	claimed, err := r.ClaimStale(ctx, time.Minute)
	if err != nil {
		t.Fatalf("ClaimStale returned error: %v", err)
	}
	if claimed.ID != "old-pending" {
		t.Fatalf("claimed = %s", claimed.ID)
	}
	if _, err := r.ClaimStale(ctx, time.Minute); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second ClaimStale error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteRefusesBackwardStatus(t *testing.T) {
	r := openTestSQLite(t)
	ctx := context.Background()
	done := &domain.Job{
		ID:         "job-4",
		OutputType: domain.OutputAudio,
		Status:     domain.JobStatusCompleted,
		Payload:    &domain.Result{AudioURL: "https://cdn/a.mp3"},
	}
	if err := r.Save(ctx, done); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	late := &domain.Job{ID: "job-4", OutputType: domain.OutputAudio, Status: domain.JobStatusProcessing}
	if err := r.Update(ctx, late); !errors.Is(err, domain.ErrStaleWrite) {
		t.Fatalf("Update(processing) error = %v, want ErrStaleWrite", err)
	}
	if err := r.Save(ctx, late); !errors.Is(err, domain.ErrStaleWrite) {
		t.Fatalf("Save(processing) error = %v, want ErrStaleWrite", err)
	}
	failed := &domain.Job{ID: "job-4", Status: domain.JobStatusFailed, ErrorDetail: "late failure"}
	if err := r.Update(ctx, failed); !errors.Is(err, domain.ErrStaleWrite) {
		t.Fatalf("Update(failed) error = %v, want ErrStaleWrite", err)
	}

	got, err := r.GetByID(ctx, "job-4")
	if err != nil {
		t.Fatalf("GetByID returned error: %v", err)
	}
	if got.Status != domain.JobStatusCompleted || got.Payload == nil || got.Payload.AudioURL != "https://cdn/a.mp3" {
		t.Fatalf("stored job changed: %#v", got)
	}
}

func TestSQLiteAllowsForwardStatus(t *testing.T) {
	r := openTestSQLite(t)
	ctx := context.Background()
	job := &domain.Job{ID: "job-5", Status: domain.JobStatusPending}
	if err := r.Save(ctx, job); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	for _, status := range []domain.JobStatus{domain.JobStatusProcessing, domain.JobStatusProcessing, domain.JobStatusCompleted} {
		job.Status = status
		if err := r.Update(ctx, job); err != nil {
			t.Fatalf("Update(%s) returned error: %v", status, err)
		}
	}
	if err := r.Update(ctx, &domain.Job{ID: "job-5", Status: domain.JobStatusPending}); !errors.Is(err, domain.ErrStaleWrite) {
		t.Fatalf("Update(pending) error = %v, want ErrStaleWrite", err)
	}
}
