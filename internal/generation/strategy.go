// Package generation turns generation requests into finished jobs. It runs a
// chain of provider strategies, caches completed results and resumes jobs
// that outlived a poll deadline.
package generation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"notebook/internal/domain"
	"notebook/internal/infra"
	"notebook/internal/poller"
)

// Strategy produces an outcome for a request using one provider.
type Strategy interface {
	Name() string
	Available() bool
	Generate(ctx context.Context, req domain.GenerationRequest) (domain.Outcome, error)
}

// RemoteClient is the submit/status surface of an asynchronous provider.
type RemoteClient interface {
	Submit(ctx context.Context, req domain.GenerationRequest) (*domain.Job, error)
	Status(ctx context.Context, id string) (*domain.Job, error)
	HasCredentials() bool
}

// TextCompleter is a synchronous LLM that answers a prompt with text.
type TextCompleter interface {
	Name() string
	HasCredentials() bool
	Complete(ctx context.Context, prompt string) (string, error)
}

// RemoteStrategy submits a job and polls it until it settles.
type RemoteStrategy struct {
	name   string
	client RemoteClient
	poller *poller.Poller
	logger *infra.Logger
}

// NewRemoteStrategy wires a remote client to a poller.
func NewRemoteStrategy(name string, client RemoteClient, p *poller.Poller, logger *infra.Logger) *RemoteStrategy {
	if p == nil {
		p = poller.New(poller.Options{Logger: logger})
	}
	return &RemoteStrategy{name: name, client: client, poller: p, logger: infra.OrDiscard(logger)}
}

func (s *RemoteStrategy) Name() string { return s.name }

func (s *RemoteStrategy) Available() bool {
	return s != nil && s.client != nil && s.client.HasCredentials()
}

// Poller exposes the default poller.
func (s *RemoteStrategy) Poller() *poller.Poller { return s.poller }

// Submit only submits.
func (s *RemoteStrategy) Submit(ctx context.Context, req domain.GenerationRequest) (*domain.Job, error) {
	return s.client.Submit(ctx, req)
}

// Status runs one status query.
func (s *RemoteStrategy) Status(ctx context.Context, id string) (*domain.Job, error) {
	return s.client.Status(ctx, id)
}

func (s *RemoteStrategy) Generate(ctx context.Context, req domain.GenerationRequest) (domain.Outcome, error) {
	job, err := s.client.Submit(ctx, req)
	if err != nil {
		return domain.Outcome{}, err
	}
	return s.Resume(ctx, job, poller.Config{})
}

// Resume polls an existing job with cfg, or with the default cadence when cfg
// is zero. Remote snapshots are merged into job.
func (s *RemoteStrategy) Resume(ctx context.Context, job *domain.Job, cfg poller.Config) (domain.Outcome, error) {
	p := s.poller
	if cfg != (poller.Config{}) {
		p = p.WithConfig(cfg)
	}
	outcome, err := p.Poll(ctx, job.ID, s.client.Status)
	if outcome.Job != nil && outcome.Job != job {
		if advErr := job.Advance(outcome.Job); advErr != nil {
			s.logger.Debug().
				Err(advErr).
				Str("job_id", job.ID).
				Msg("generation: ignoring stale snapshot")
		}
	}
	outcome.Job = job
	return outcome, err
}

// LLMStrategy answers a request with one direct model call and reports it as
// an already completed job.
type LLMStrategy struct {
	completer TextCompleter
	now       func() time.Time
}

// NewLLMStrategy wraps a completer.
func NewLLMStrategy(completer TextCompleter) *LLMStrategy {
	return &LLMStrategy{completer: completer, now: time.Now}
}

func (s *LLMStrategy) Name() string { return s.completer.Name() }

func (s *LLMStrategy) Available() bool {
	return s != nil && s.completer != nil && s.completer.HasCredentials()
}

func (s *LLMStrategy) Generate(ctx context.Context, req domain.GenerationRequest) (domain.Outcome, error) {
	switch req.OutputType {
	case domain.OutputAudio, domain.OutputModifyPodcast:
		return domain.Outcome{}, fmt.Errorf("%s: %w: %s", s.Name(), domain.ErrUnsupportedOutput, req.OutputType)
	}
	text, err := s.completer.Complete(ctx, BuildPrompt(req))
	if err != nil {
		return domain.Outcome{}, err
	}
	job := &domain.Job{
		ID:          uuid.NewString(),
		OutputType:  req.OutputType,
		Provider:    s.Name(),
		SubmittedAt: s.now(),
		Status:      domain.JobStatusCompleted,
		Payload: &domain.Result{
			Content:  text,
			Metadata: map[string]any{"title": req.OutputType.Label()},
		},
	}
	return domain.Outcome{Job: job, Attempts: 1}, nil
}
