package generation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"notebook/internal/domain"
	"notebook/internal/poller"
	"notebook/internal/providers/autocontent"
)

type fakeRemote struct {
	mu        sync.Mutex
	creds     bool
	submitErr error
	statuses  []*domain.Job
	statusErr error
	submits   int
	queries   int
	nextID    int
	onStatus  func(id string)
}

func (f *fakeRemote) HasCredentials() bool { return f.creds }

func (f *fakeRemote) Submit(ctx context.Context, req domain.GenerationRequest) (*domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.nextID++
	return &domain.Job{
		ID:          fmt.Sprintf("remote-%d", f.nextID),
		OutputType:  req.OutputType,
		Provider:    autocontent.ProviderName,
		SubmittedAt: time.Unix(0, 0),
		Status:      domain.JobStatusPending,
	}, nil
}

func (f *fakeRemote) Modify(ctx context.Context, req autocontent.ModifyRequest) (*domain.Job, error) {
	return f.Submit(ctx, domain.GenerationRequest{OutputType: domain.OutputModifyPodcast})
}

func (f *fakeRemote) Status(ctx context.Context, id string) (*domain.Job, error) {
	if f.onStatus != nil {
		f.onStatus(id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.queries
	f.queries++
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	if len(f.statuses) == 0 {
		return &domain.Job{ID: id, Status: domain.JobStatusProcessing}, nil
	}
	if idx >= len(f.statuses) {
		idx = len(f.statuses) - 1
	}
	snap := *f.statuses[idx]
	snap.ID = id
	return &snap, nil
}

type fakeCompleter struct {
	name  string
	creds bool
	text  string
	err   error
	calls int
	mu    sync.Mutex
}

func (f *fakeCompleter) Name() string         { return f.name }
func (f *fakeCompleter) HasCredentials() bool { return f.creds }

func (f *fakeCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type memRepo struct {
	mu   sync.Mutex
	jobs map[string]domain.Job
}

func newMemRepo() *memRepo {
	return &memRepo{jobs: map[string]domain.Job{}}
}

func (r *memRepo) Save(ctx context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.jobs[job.ID]; ok && !domain.CanTransition(cur.Status, job.Status) {
		return domain.ErrStaleWrite
	}
	r.jobs[job.ID] = *job
	return nil
}

func (r *memRepo) Update(ctx context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.jobs[job.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if !domain.CanTransition(cur.Status, job.Status) {
		return domain.ErrStaleWrite
	}
	r.jobs[job.ID] = *job
	return nil
}

func (r *memRepo) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &job, nil
}

func (r *memRepo) FindCompleted(ctx context.Context, fingerprint string) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, job := range r.jobs {
		if job.Fingerprint == fingerprint && job.Status == domain.JobStatusCompleted {
			j := job
			return &j, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memRepo) ListStale(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Job, error) {
	return nil, errors.New("not implemented")
}

type memStore struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (s *memStore) Write(ctx context.Context, key string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.files == nil {
		s.files = map[string][]byte{}
	}
	s.files[key] = data
	return key, nil
}

func (s *memStore) Read(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return data, nil
}

func fastPoller(deadline time.Duration) *poller.Poller {
	return poller.New(poller.Options{
		Config: poller.Config{Interval: time.Millisecond, Deadline: deadline},
		Sleep:  func(ctx context.Context, d time.Duration) error { return ctx.Err() },
	})
}

func completed(content string) *domain.Job {
	return &domain.Job{Status: domain.JobStatusCompleted, Payload: &domain.Result{Content: content}}
}

func textRequest(output domain.OutputType) domain.GenerationRequest {
	return domain.GenerationRequest{
		Text:       "Explain the sources",
		OutputType: output,
		Resources:  []domain.Resource{{Content: "Photosynthesis converts light into chemical energy.", Type: domain.ResourceText}},
	}
}
