// Package poller waits for remote generation jobs to reach a terminal state.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"notebook/internal/domain"
	"notebook/internal/infra"
	"notebook/internal/observability"
)

// StatusFunc queries the remote status of a job once.
type StatusFunc func(ctx context.Context, id string) (*domain.Job, error)

// Config holds the polling cadence.
type Config struct {
	Interval time.Duration
	Deadline time.Duration
}

// LongRunning suits server-side waits on audio and long documents.
func LongRunning() Config {
	return Config{Interval: 5 * time.Second, Deadline: 10 * time.Minute}
}

// Interactive suits request/response waits.
func Interactive() Config {
	return Config{Interval: 2 * time.Second, Deadline: 60 * time.Second}
}

// MaxAttempts is the number of status queries a poll loop may issue.
func (c Config) MaxAttempts() int {
	if c.Interval <= 0 {
		return 1
	}
	n := int(c.Deadline / c.Interval)
	if n < 1 {
		return 1
	}
	return n
}

// Options configures a Poller.
type Options struct {
	Config    Config
	Logger    *infra.Logger
	Telemetry *observability.Telemetry
	// Now and Sleep are replaced in tests.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Poller runs poll loops. It holds no per-job state, so one Poller may serve
// many concurrent loops.
type Poller struct {
	cfg       Config
	logger    *infra.Logger
	telemetry *observability.Telemetry
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

// New constructs a Poller, filling unset options with defaults.
func New(opts Options) *Poller {
	cfg := opts.Config
	if cfg.Interval <= 0 {
		cfg.Interval = LongRunning().Interval
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = LongRunning().Deadline
	}
	p := &Poller{
		cfg:       cfg,
		logger:    infra.OrDiscard(opts.Logger),
		telemetry: opts.Telemetry,
		now:       opts.Now,
		sleep:     opts.Sleep,
	}
	if p.telemetry == nil {
		p.telemetry = observability.Default()
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.sleep == nil {
		p.sleep = sleepContext
	}
	return p
}

// Config reports the cadence this Poller was built with.
func (p *Poller) Config() Config {
	return p.cfg
}

// WithConfig returns a copy of p using cfg.
func (p *Poller) WithConfig(cfg Config) *Poller {
	clone := *p
	if cfg.Interval > 0 {
		clone.cfg.Interval = cfg.Interval
	}
	if cfg.Deadline > 0 {
		clone.cfg.Deadline = cfg.Deadline
	}
	return &clone
}

// Poll queries status until the job is terminal, the attempt budget or the
// deadline is used up, or ctx is cancelled.
//
// A terminal status returns immediately. A malformed response aborts the loop
// with that error. Any other query error is logged and the loop carries on.
// Running out of time is reported as Outcome.TimedOut, not as an error.
func (p *Poller) Poll(ctx context.Context, id string, query StatusFunc) (domain.Outcome, error) {
	ctx, span := p.telemetry.StartSpan(ctx, "generation.poll", attribute.String(observability.AttrJobID, id))
	defer span.End()

	start := p.now()
	maxAttempts := p.cfg.MaxAttempts()
	var last *domain.Job

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			observability.RecordError(span, err)
			return domain.Outcome{Job: last, Attempts: attempt - 1}, err
		}

		job, err := query(ctx, id)
		p.telemetry.CountPoll(ctx, err == nil)
		switch {
		case err == nil && job != nil:
			last = job
			if job.Status.IsTerminal() {
				span.SetAttributes(
					attribute.String(observability.AttrJobStatus, string(job.Status)),
					attribute.Int(observability.AttrAttempt, attempt),
				)
				p.telemetry.CountOutcome(ctx, string(job.Status), false)
				return domain.Outcome{Job: job, Attempts: attempt}, nil
			}
		case errors.Is(err, domain.ErrMalformedResponse):
			observability.RecordError(span, err)
			return domain.Outcome{Job: last, Attempts: attempt}, err
		case ctx.Err() != nil:
			observability.RecordError(span, ctx.Err())
			return domain.Outcome{Job: last, Attempts: attempt}, ctx.Err()
		case err != nil:
			p.logger.Warn().
				Err(err).
				Str("job_id", id).
				Int("attempt", attempt).
				Msg("poller: status query failed, will retry")
		}

		elapsed := p.now().Sub(start)
		if attempt >= maxAttempts || elapsed >= p.cfg.Deadline {
			return p.timedOut(ctx, id, last, attempt, elapsed), nil
		}

		if err := p.sleep(ctx, p.cfg.Interval); err != nil {
			observability.RecordError(span, err)
			return domain.Outcome{Job: last, Attempts: attempt}, err
		}
	}
}

func (p *Poller) timedOut(ctx context.Context, id string, last *domain.Job, attempts int, elapsed time.Duration) domain.Outcome {
	if last == nil {
		last = &domain.Job{ID: id, Status: domain.JobStatusPending}
	}
	p.telemetry.CountOutcome(ctx, string(last.Status), true)
	p.logger.Info().
		Str("job_id", id).
		Str("status", string(last.Status)).
		Int("attempts", attempts).
		Dur("elapsed", elapsed).
		Msg("poller: deadline reached before job finished")
	return domain.Outcome{
		Job:      last,
		TimedOut: true,
		Attempts: attempts,
		Message: fmt.Sprintf("job %s is still %s after %s; check back later",
			id, last.Status, p.cfg.Deadline),
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
