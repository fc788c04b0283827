package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"notebook/internal/domain"
	"notebook/internal/infra"
	"notebook/internal/poller"
	"notebook/internal/providers/autocontent"
	"notebook/internal/storage"
)

const defaultBatchConcurrency = 4

// ContentStore persists finished text content.
type ContentStore interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
}

// ContentReader is implemented by content stores that can serve what they
// wrote.
type ContentReader interface {
	Read(ctx context.Context, key string) ([]byte, error)
}

// PodcastModifier submits podcast rework jobs.
type PodcastModifier interface {
	Modify(ctx context.Context, req autocontent.ModifyRequest) (*domain.Job, error)
}

// Options wires the service. Only Chain is required.
type Options struct {
	Chain            *Chain
	Remote           *RemoteStrategy
	Modifier         PodcastModifier
	Repo             domain.JobRepository
	Store            ContentStore
	Logger           *infra.Logger
	BatchConcurrency int
	Now              func() time.Time
}

// Service is the entry point used by the HTTP API and the worker.
type Service struct {
	chain       *Chain
	remote      *RemoteStrategy
	modifier    PodcastModifier
	repo        domain.JobRepository
	store       ContentStore
	logger      *infra.Logger
	concurrency int
	now         func() time.Time
}

// BatchItem is one slot of a GenerateMany result.
type BatchItem struct {
	Outcome domain.Outcome
	Err     error
}

// FeatureInput is the common input of the notebook feature helpers.
type FeatureInput struct {
	Text             string
	Resources        []domain.Resource
	Language         string
	Customization    map[string]any
	IncludeCitations bool
}

func NewService(opts Options) (*Service, error) {
	if opts.Chain == nil {
		return nil, errors.New("generation: chain is required")
	}
	concurrency := opts.BatchConcurrency
	if concurrency <= 0 {
		concurrency = defaultBatchConcurrency
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		chain:       opts.Chain,
		remote:      opts.Remote,
		modifier:    opts.Modifier,
		repo:        opts.Repo,
		store:       opts.Store,
		logger:      infra.OrDiscard(opts.Logger),
		concurrency: concurrency,
		now:         now,
	}, nil
}

// Providers lists the providers that currently have credentials.
func (s *Service) Providers() []string {
	return s.chain.Names()
}

// Generate runs a request to completion or to the poll deadline. A previously
// completed job for the same request is returned without calling a provider.
func (s *Service) Generate(ctx context.Context, req domain.GenerationRequest) (domain.Outcome, error) {
	if err := req.Validate(); err != nil {
		return domain.Outcome{}, err
	}
	fingerprint, err := Fingerprint(req)
	if err != nil {
		return domain.Outcome{}, err
	}
	if cached := s.cached(ctx, fingerprint); cached != nil {
		return domain.Outcome{Job: cached, Message: "served from cache"}, nil
	}

	outcome, err := s.chain.Generate(ctx, req)
	if outcome.Job != nil {
		outcome.Job.Fingerprint = fingerprint
		s.finish(ctx, outcome.Job, true)
	}
	return outcome, err
}

// Submit starts a remote job without waiting for it.
func (s *Service) Submit(ctx context.Context, req domain.GenerationRequest) (*domain.Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !s.remote.Available() {
		return nil, fmt.Errorf("%w: no asynchronous provider configured", domain.ErrProviderFailure)
	}
	job, err := s.remote.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	if fp, err := Fingerprint(req); err == nil {
		job.Fingerprint = fp
	}
	s.finish(ctx, job, true)
	return job, nil
}

// Status refreshes a job with one remote query. When the query fails the
// stored record, if any, is returned instead.
func (s *Service) Status(ctx context.Context, id string) (*domain.Job, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: job id is required", domain.ErrInvalidRequest)
	}
	stored := s.stored(ctx, id)
	if stored != nil && (stored.Status.IsTerminal() || !s.isRemote(stored)) {
		return stored, nil
	}
	if !s.remote.Available() {
		if stored != nil {
			return stored, nil
		}
		return nil, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}

	snapshot, err := s.remote.Status(ctx, id)
	if err != nil {
		if stored != nil {
			s.logger.Warn().Err(err).Str("job_id", id).Msg("generation: status query failed, serving stored record")
			return stored, nil
		}
		return nil, err
	}
	if stored == nil {
		return snapshot, nil
	}
	if err := stored.Advance(snapshot); err != nil {
		s.logger.Debug().Err(err).Str("job_id", id).Msg("generation: ignoring stale snapshot")
		return stored, nil
	}
	s.finish(ctx, stored, false)
	return stored, nil
}

// Lookup returns the stored record for id without contacting a provider.
// Without persistence it falls back to Status.
func (s *Service) Lookup(ctx context.Context, id string) (*domain.Job, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: job id is required", domain.ErrInvalidRequest)
	}
	if s.repo == nil {
		return s.Status(ctx, id)
	}
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Content returns the text of a completed job. The content store copy wins
// over the payload when both exist.
func (s *Service) Content(ctx context.Context, job *domain.Job) []byte {
	if job == nil || job.Payload == nil {
		return nil
	}
	key, _ := job.Payload.Metadata["storage_key"].(string)
	if reader, ok := s.store.(ContentReader); ok && key != "" {
		data, err := reader.Read(ctx, key)
		if err == nil {
			return data
		}
		s.logger.Warn().Err(err).Str("job_id", job.ID).Str("key", key).Msg("generation: reading stored content failed")
	}
	if strings.TrimSpace(job.Payload.Content) == "" {
		return nil
	}
	return []byte(job.Payload.Content)
}

// Resume waits on an existing job using cfg.
func (s *Service) Resume(ctx context.Context, id string, cfg poller.Config) (domain.Outcome, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Outcome{}, fmt.Errorf("%w: job id is required", domain.ErrInvalidRequest)
	}
	job := s.stored(ctx, id)
	if job == nil {
		job = &domain.Job{ID: id, Provider: autocontent.ProviderName, Status: domain.JobStatusPending, SubmittedAt: s.now()}
	}
	if job.Status.IsTerminal() {
		return domain.Outcome{Job: job}, nil
	}
	if !s.remote.Available() {
		return domain.Outcome{}, fmt.Errorf("%w: no asynchronous provider configured", domain.ErrProviderFailure)
	}
	if !s.isRemote(job) {
		return domain.Outcome{Job: job}, nil
	}
	outcome, err := s.remote.Resume(ctx, job, cfg)
	s.finish(ctx, job, false)
	if outcome.TimedOut && job.Status.IsTerminal() {
		// another run finished the job while this one was waiting
		outcome.TimedOut = false
		outcome.Message = ""
	}
	return outcome, err
}

// GenerateMany runs independent requests concurrently. Results are in input
// order and a failure in one slot does not cancel the others.
func (s *Service) GenerateMany(ctx context.Context, reqs []domain.GenerationRequest) []BatchItem {
	items := make([]BatchItem, len(reqs))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i := range reqs {
		g.Go(func() error {
			outcome, err := s.Generate(ctx, reqs[i])
			items[i] = BatchItem{Outcome: outcome, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return items
}

// ModifyPodcast reworks an existing podcast and waits for the new audio.
func (s *Service) ModifyPodcast(ctx context.Context, audioURL, instructions string, customization map[string]any) (domain.Outcome, error) {
	if s.modifier == nil || !s.remote.Available() {
		return domain.Outcome{}, fmt.Errorf("%w: podcast modification is not configured", domain.ErrProviderFailure)
	}
	job, err := s.modifier.Modify(ctx, autocontent.ModifyRequest{
		AudioURL:      audioURL,
		Instructions:  instructions,
		Customization: customization,
	})
	if err != nil {
		return domain.Outcome{}, err
	}
	s.finish(ctx, job, true)
	outcome, err := s.remote.Resume(ctx, job, poller.LongRunning())
	s.finish(ctx, job, false)
	return outcome, err
}

// Summary condenses the sources into a short overview.
func (s *Service) Summary(ctx context.Context, in FeatureInput) (domain.Outcome, error) {
	return s.feature(ctx, domain.OutputSummary, in)
}

// FAQ drafts questions and answers from the sources.
func (s *Service) FAQ(ctx context.Context, in FeatureInput) (domain.Outcome, error) {
	return s.feature(ctx, domain.OutputFAQ, in)
}

// StudyGuide builds a study guide with key terms and review questions.
func (s *Service) StudyGuide(ctx context.Context, in FeatureInput) (domain.Outcome, error) {
	return s.feature(ctx, domain.OutputStudyGuide, in)
}

// Timeline orders the events found in the sources.
func (s *Service) Timeline(ctx context.Context, in FeatureInput) (domain.Outcome, error) {
	return s.feature(ctx, domain.OutputTimeline, in)
}

// Outline produces a hierarchical outline.
func (s *Service) Outline(ctx context.Context, in FeatureInput) (domain.Outcome, error) {
	return s.feature(ctx, domain.OutputOutline, in)
}

// Briefing writes a briefing document for a busy reader.
func (s *Service) Briefing(ctx context.Context, in FeatureInput) (domain.Outcome, error) {
	return s.feature(ctx, domain.OutputBriefing, in)
}

// AudioDeepDive asks for a two-host conversation about the sources.
func (s *Service) AudioDeepDive(ctx context.Context, in FeatureInput) (domain.Outcome, error) {
	if strings.TrimSpace(in.Text) == "" {
		in.Text = "Create an engaging deep dive conversation between two hosts about these sources."
	}
	return s.feature(ctx, domain.OutputAudio, in)
}

// Feature dispatches a feature by its URL name.
func (s *Service) Feature(ctx context.Context, name string, in FeatureInput) (domain.Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "summary":
		return s.Summary(ctx, in)
	case "faq":
		return s.FAQ(ctx, in)
	case "study-guide", "study_guide":
		return s.StudyGuide(ctx, in)
	case "timeline":
		return s.Timeline(ctx, in)
	case "outline":
		return s.Outline(ctx, in)
	case "briefing":
		return s.Briefing(ctx, in)
	case "audio", "deep-dive":
		return s.AudioDeepDive(ctx, in)
	}
	return domain.Outcome{}, fmt.Errorf("%w: unknown feature %q", domain.ErrInvalidRequest, name)
}

func (s *Service) feature(ctx context.Context, output domain.OutputType, in FeatureInput) (domain.Outcome, error) {
	customization := make(map[string]any, len(in.Customization)+1)
	for k, v := range in.Customization {
		customization[k] = v
	}
	if lang := strings.TrimSpace(in.Language); lang != "" {
		customization["language"] = lang
	}
	return s.Generate(ctx, domain.GenerationRequest{
		Text:             in.Text,
		OutputType:       output,
		Resources:        in.Resources,
		Customization:    customization,
		IncludeCitations: in.IncludeCitations,
	})
}

func (s *Service) isRemote(job *domain.Job) bool {
	return s.remote != nil && (job.Provider == "" || job.Provider == s.remote.Name())
}

func (s *Service) cached(ctx context.Context, fingerprint string) *domain.Job {
	if s.repo == nil {
		return nil
	}
	job, err := s.repo.FindCompleted(ctx, fingerprint)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn().Err(err).Str("fingerprint", fingerprint).Msg("generation: cache lookup failed")
		}
		return nil
	}
	return job
}

func (s *Service) stored(ctx context.Context, id string) *domain.Job {
	if s.repo == nil {
		return nil
	}
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn().Err(err).Str("job_id", id).Msg("generation: job lookup failed")
		}
		return nil
	}
	return job
}

// finish writes completed text to the content store and persists the job.
// Persistence failures are logged; the caller still gets its result. When the
// stored record is already further along, job is replaced by it.
func (s *Service) finish(ctx context.Context, job *domain.Job, created bool) {
	if job.Status == domain.JobStatusCompleted && job.Payload != nil && s.store != nil {
		if _, ok := job.Payload.Metadata["storage_key"]; !ok && strings.TrimSpace(job.Payload.Content) != "" {
			stored, err := s.store.Write(ctx, storage.ContentKey(job.OutputType, job.ID), []byte(job.Payload.Content))
			if err != nil {
				s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("generation: writing content failed")
			} else {
				if job.Payload.Metadata == nil {
					job.Payload.Metadata = map[string]any{}
				}
				job.Payload.Metadata["storage_key"] = stored
			}
		}
	}
	if s.repo == nil {
		return
	}
	var err error
	if created {
		err = s.repo.Save(ctx, job)
	} else {
		err = s.repo.Update(ctx, job)
		if errors.Is(err, domain.ErrNotFound) {
			err = s.repo.Save(ctx, job)
		}
	}
	if errors.Is(err, domain.ErrStaleWrite) {
		s.logger.Debug().Str("job_id", job.ID).Str("status", string(job.Status)).Msg("generation: stored job is newer, keeping it")
		if current := s.stored(ctx, job.ID); current != nil {
			*job = *current
		}
		return
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("generation: persisting job failed")
	}
}
