package main

import (
	"context"
	"errors"
	"time"

	"notebook/internal/bootstrap"
	"notebook/internal/domain"
	"notebook/internal/infra"
	"notebook/internal/poller"
)

const (
	defaultWorkerInterval = 2 * time.Second
	backlogScanLimit      = 500
)

type resumer interface {
	Resume(ctx context.Context, id string, cfg poller.Config) (domain.Outcome, error)
}

// jobWorker picks up jobs whose interactive wait ended in a timeout and keeps
// polling them with the long running profile until they finish.
type jobWorker struct {
	claimer    bootstrap.StaleClaimer
	jobs       domain.JobRepository
	resumer    resumer
	logger     *infra.Logger
	profile    poller.Config
	interval   time.Duration
	staleAfter time.Duration
}

func (w *jobWorker) Run(ctx context.Context) error {
	log := infra.OrDiscard(w.logger)
	interval := w.interval
	if interval <= 0 {
		interval = defaultWorkerInterval
	}
	evt := log.Info().Dur("interval", interval).Dur("stale_after", w.staleAfter)
	if n, err := w.backlog(ctx); err == nil {
		evt = evt.Int("backlog", n)
	} else {
		log.Warn().Err(err).Msg("worker: failed to count backlog")
	}
	evt.Msg("worker: started")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		handled, err := w.step(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			log.Error().Err(err).Msg("worker: failed to claim job")
		}
		if handled {
			continue
		}
		if err := sleep(ctx, interval); err != nil {
			return err
		}
	}
}

// step claims and resumes at most one job. It reports whether a job was
// handled so the loop can drain a backlog without sleeping.
func (w *jobWorker) step(ctx context.Context) (bool, error) {
	log := infra.OrDiscard(w.logger)
	job, err := w.claimer.ClaimStale(ctx, w.staleAfter)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	log.Info().Str("job_id", job.ID).Str("provider", job.Provider).Str("status", string(job.Status)).Msg("worker: picked job")
	out, err := w.resumer.Resume(ctx, job.ID, w.profile)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return true, err
		}
		log.Error().Err(err).Str("job_id", job.ID).Msg("worker: resume failed")
		return true, nil
	}
	evt := log.Info().Str("job_id", job.ID).Int("attempts", out.Attempts)
	if out.Job != nil {
		evt = evt.Str("status", string(out.Job.Status))
	}
	evt.Bool("timed_out", out.TimedOut).Msg("worker: job resumed")
	return true, nil
}

// backlog counts stale jobs up to backlogScanLimit.
func (w *jobWorker) backlog(ctx context.Context) (int, error) {
	if w.jobs == nil {
		return 0, nil
	}
	jobs, err := w.jobs.ListStale(ctx, w.staleAfter, backlogScanLimit)
	if err != nil {
		return 0, err
	}
	return len(jobs), nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
