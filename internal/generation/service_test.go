package generation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notebook/internal/domain"
	"notebook/internal/poller"
	"notebook/internal/providers/autocontent"
)

type serviceFixture struct {
	remote    *fakeRemote
	completer *fakeCompleter
	repo      *memRepo
	store     *memStore
	svc       *Service
}

func newServiceFixture(t *testing.T, remote *fakeRemote, completer *fakeCompleter) *serviceFixture {
	t.Helper()
	f := &serviceFixture{remote: remote, completer: completer, repo: newMemRepo(), store: &memStore{}}
	remoteStrategy := NewRemoteStrategy(autocontent.ProviderName, remote, fastPoller(time.Second), nil)
	svc, err := NewService(Options{
		Chain:    NewChain(nil, remoteStrategy, NewLLMStrategy(completer)),
		Remote:   remoteStrategy,
		Modifier: remote,
		Repo:     f.repo,
		Store:    f.store,
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func TestNewServiceRequiresChain(t *testing.T) {
	_, err := NewService(Options{})
	require.Error(t, err)
}

func TestGenerateServesRepeatedRequestFromCache(t *testing.T) {
	f := newServiceFixture(t,
		&fakeRemote{creds: true, statuses: []*domain.Job{completed("notes")}},
		&fakeCompleter{name: "gemini", creds: true, text: "unused"},
	)
	req := textRequest(domain.OutputSummary)

	first, err := f.svc.Generate(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, domain.JobStatusCompleted, first.Job.Status)

	second, err := f.svc.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.Job.ID, second.Job.ID)
	assert.Equal(t, "served from cache", second.Message)
	assert.Equal(t, 1, f.remote.submits)
	assert.Zero(t, f.completer.calls)
}

func TestGenerateWritesCompletedContent(t *testing.T) {
	f := newServiceFixture(t,
		&fakeRemote{creds: false},
		&fakeCompleter{name: "gemini", creds: true, text: "# Outline"},
	)

	out, err := f.svc.Generate(context.Background(), textRequest(domain.OutputOutline))
	require.NoError(t, err)
	key, ok := out.Job.Payload.Metadata["storage_key"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(key, "jobs/outline/"))
	assert.Equal(t, "# Outline", string(f.store.files[key]))

	saved, err := f.repo.GetByID(context.Background(), out.Job.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, saved.Fingerprint)
}

func TestContentPrefersStoredCopy(t *testing.T) {
	f := newServiceFixture(t,
		&fakeRemote{creds: false},
		&fakeCompleter{name: "gemini", creds: true, text: "# Briefing"},
	)
	ctx := context.Background()
	out, err := f.svc.Generate(ctx, textRequest(domain.OutputBriefing))
	require.NoError(t, err)

	key := out.Job.Payload.Metadata["storage_key"].(string)
	f.store.files[key] = []byte("# Briefing (edited)")
	assert.Equal(t, "# Briefing (edited)", string(f.svc.Content(ctx, out.Job)))

	delete(f.store.files, key)
	assert.Equal(t, "# Briefing", string(f.svc.Content(ctx, out.Job)))
	assert.Nil(t, f.svc.Content(ctx, &domain.Job{ID: "x"}))
}

func TestLookupReadsOnlyStoredRecords(t *testing.T) {
	remote := &fakeRemote{creds: true}
	f := newServiceFixture(t, remote, &fakeCompleter{name: "gemini"})
	ctx := context.Background()
	require.NoError(t, f.repo.Save(ctx, &domain.Job{ID: "kept", Status: domain.JobStatusProcessing}))

	job, err := f.svc.Lookup(ctx, "kept")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusProcessing, job.Status)

	_, err = f.svc.Lookup(ctx, "typo")
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Zero(t, remote.queries)
}

func TestGenerateRejectsInvalidRequest(t *testing.T) {
	f := newServiceFixture(t, &fakeRemote{creds: true}, &fakeCompleter{name: "gemini"})
	_, err := f.svc.Generate(context.Background(), domain.GenerationRequest{OutputType: domain.OutputSummary})
	require.ErrorIs(t, err, domain.ErrInvalidRequest)
	assert.Zero(t, f.remote.submits)
}

func TestGenerateTimeoutIsPersistedForResume(t *testing.T) {
	remote := &fakeRemote{creds: true}
	f := newServiceFixture(t, remote, &fakeCompleter{name: "gemini"})
	f.svc.chain = NewChain(nil, NewRemoteStrategy(autocontent.ProviderName, remote, fastPoller(2*time.Millisecond), nil))

	out, err := f.svc.Generate(context.Background(), textRequest(domain.OutputAudio))
	require.NoError(t, err)
	require.True(t, out.TimedOut)

	saved, err := f.repo.GetByID(context.Background(), out.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusProcessing, saved.Status)

	remote.statuses = []*domain.Job{{Status: domain.JobStatusCompleted, Payload: &domain.Result{AudioURL: "https://cdn/a.mp3"}}}
	resumed, err := f.svc.Resume(context.Background(), out.Job.ID, poller.Interactive())
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, resumed.Job.Status)
	assert.Equal(t, domain.OutputAudio, resumed.Job.OutputType)

	saved, err = f.repo.GetByID(context.Background(), out.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/a.mp3", saved.Payload.AudioURL)
}

func TestResumeKeepsJobCompletedByAnotherRun(t *testing.T) {
	remote := &fakeRemote{creds: true}
	f := newServiceFixture(t, remote, &fakeCompleter{name: "gemini"})
	ctx := context.Background()
	require.NoError(t, f.repo.Save(ctx, &domain.Job{
		ID:         "shared",
		OutputType: domain.OutputAudio,
		Provider:   autocontent.ProviderName,
		Status:     domain.JobStatusProcessing,
	}))
	remote.onStatus = func(id string) {
		_ = f.repo.Update(ctx, &domain.Job{
			ID:         id,
			OutputType: domain.OutputAudio,
			Provider:   autocontent.ProviderName,
			Status:     domain.JobStatusCompleted,
			Payload:    &domain.Result{AudioURL: "https://cdn/done.mp3"},
		})
	}

	out, err := f.svc.Resume(ctx, "shared", poller.Config{Interval: time.Millisecond, Deadline: 2 * time.Millisecond})
	require.NoError(t, err)
	assert.False(t, out.TimedOut)
	assert.Equal(t, domain.JobStatusCompleted, out.Job.Status)

	saved, err := f.repo.GetByID(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, saved.Status)
	require.NotNil(t, saved.Payload)
	assert.Equal(t, "https://cdn/done.mp3", saved.Payload.AudioURL)
}

func TestSubmitPersistsPendingJob(t *testing.T) {
	f := newServiceFixture(t, &fakeRemote{creds: true}, &fakeCompleter{name: "gemini"})
	job, err := f.svc.Submit(context.Background(), textRequest(domain.OutputTimeline))
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, job.Status)
	assert.Zero(t, f.remote.queries)

	saved, err := f.repo.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutputTimeline, saved.OutputType)
}

func TestSubmitWithoutRemote(t *testing.T) {
	f := newServiceFixture(t, &fakeRemote{creds: false}, &fakeCompleter{name: "gemini", creds: true})
	_, err := f.svc.Submit(context.Background(), textRequest(domain.OutputTimeline))
	require.ErrorIs(t, err, domain.ErrProviderFailure)
}

func TestStatusFallsBackToStoredRecord(t *testing.T) {
	remote := &fakeRemote{creds: true}
	f := newServiceFixture(t, remote, &fakeCompleter{name: "gemini"})
	job, err := f.svc.Submit(context.Background(), textRequest(domain.OutputTimeline))
	require.NoError(t, err)

	remote.statusErr = &domain.TransportError{Op: "status", Err: errors.New("timeout")}
	got, err := f.svc.Status(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, got.Status)

	remote.statusErr = nil
	remote.statuses = []*domain.Job{completed("timeline")}
	got, err = f.svc.Status(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
	assert.Equal(t, domain.OutputTimeline, got.OutputType)
}

func TestStatusUnknownJobSurfacesError(t *testing.T) {
	remote := &fakeRemote{creds: true, statusErr: &domain.RemoteRejected{Op: "status", StatusCode: 404}}
	f := newServiceFixture(t, remote, &fakeCompleter{name: "gemini"})
	_, err := f.svc.Status(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrRemoteRejected)
}

func TestGenerateManyKeepsOrderAndIsolatesFailures(t *testing.T) {
	f := newServiceFixture(t, &fakeRemote{creds: false}, &fakeCompleter{name: "gemini", creds: true, text: "ok"})
	reqs := []domain.GenerationRequest{
		textRequest(domain.OutputSummary),
		{OutputType: "poem"},
		textRequest(domain.OutputFAQ),
	}

	items := f.svc.GenerateMany(context.Background(), reqs)
	require.Len(t, items, 3)
	require.NoError(t, items[0].Err)
	assert.Equal(t, domain.OutputSummary, items[0].Outcome.Job.OutputType)
	assert.ErrorIs(t, items[1].Err, domain.ErrInvalidRequest)
	require.NoError(t, items[2].Err)
	assert.Equal(t, domain.OutputFAQ, items[2].Outcome.Job.OutputType)
}

func TestFeatureHelpers(t *testing.T) {
	f := newServiceFixture(t, &fakeRemote{creds: false}, &fakeCompleter{name: "gemini", creds: true, text: "ok"})
	in := FeatureInput{Resources: textRequest(domain.OutputText).Resources, Language: "id"}

	out, err := f.svc.Feature(context.Background(), "study-guide", in)
	require.NoError(t, err)
	assert.Equal(t, domain.OutputStudyGuide, out.Job.OutputType)

	_, err = f.svc.Feature(context.Background(), "karaoke", in)
	require.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = f.svc.AudioDeepDive(context.Background(), in)
	require.ErrorIs(t, err, domain.ErrProviderFailure)
	assert.ErrorIs(t, err, domain.ErrUnsupportedOutput)
}

func TestModifyPodcast(t *testing.T) {
	remote := &fakeRemote{creds: true, statuses: []*domain.Job{{Status: domain.JobStatusCompleted, Payload: &domain.Result{AudioURL: "https://cdn/b.mp3"}}}}
	f := newServiceFixture(t, remote, &fakeCompleter{name: "gemini"})

	out, err := f.svc.ModifyPodcast(context.Background(), "https://cdn/a.mp3", "shorter", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.OutputModifyPodcast, out.Job.OutputType)
	assert.Equal(t, "https://cdn/b.mp3", out.Job.Payload.AudioURL)
}

func TestFingerprintIsStable(t *testing.T) {
	a := textRequest(domain.OutputSummary)
	a.Customization = map[string]any{"language": "en", "tone": "casual"}
	b := textRequest(domain.OutputSummary)
	b.Customization = map[string]any{"tone": "casual", "language": "en"}
	b.Text = "  " + b.Text + "  "

	fa, err := Fingerprint(a)
	require.NoError(t, err)
	fb, err := Fingerprint(b)
	require.NoError(t, err)
	assert.Equal(t, fa, fb)
	assert.Len(t, fa, 16)

	c := textRequest(domain.OutputFAQ)
	c.Customization = a.Customization
	fc, err := Fingerprint(c)
	require.NoError(t, err)
	assert.NotEqual(t, fa, fc)

	empty := textRequest(domain.OutputSummary)
	empty.Customization = map[string]any{}
	fe, _ := Fingerprint(empty)
	fn, _ := Fingerprint(textRequest(domain.OutputSummary))
	assert.Equal(t, fn, fe)
}

func TestBuildPrompt(t *testing.T) {
	req := textRequest(domain.OutputStudyGuide)
	req.Customization = map[string]any{"language": "id", "level": "beginner"}
	req.IncludeCitations = true

	prompt := BuildPrompt(req)
	assert.Contains(t, prompt, "Task: Study Guide")
	assert.Contains(t, prompt, "Respond in language 'id'")
	assert.Contains(t, prompt, "level=beginner")
	assert.Contains(t, prompt, "[1] (text) Photosynthesis")
	assert.Contains(t, prompt, "Cite the source number")
}
