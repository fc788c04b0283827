// Package bootstrap assembles the generation stack from configuration. The
// API and the worker share it so both see the same providers and job store.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"notebook/internal/adapter/repo"
	"notebook/internal/domain"
	"notebook/internal/generation"
	"notebook/internal/infra"
	"notebook/internal/infra/credentials"
	"notebook/internal/observability"
	"notebook/internal/poller"
	"notebook/internal/providers/autocontent"
	"notebook/internal/providers/genai"
	"notebook/internal/providers/openai"
	"notebook/internal/providers/ratelimit"
	"notebook/internal/storage"
)

// StaleClaimer hands out one non-terminal job that has not been touched
// for olderThan, or domain.ErrNotFound.
type StaleClaimer interface {
	ClaimStale(ctx context.Context, olderThan time.Duration) (*domain.Job, error)
}

type jobStore interface {
	domain.JobRepository
	StaleClaimer
}

// Runtime is the assembled stack. Close releases the database handles.
type Runtime struct {
	Service     *generation.Service
	Jobs        domain.JobRepository
	Claimer     StaleClaimer
	Credentials *credentials.Store
	Interactive poller.Config
	LongRunning poller.Config
	Store       string

	closers []func()
}

// Close releases resources in reverse order of acquisition.
func (r *Runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}

// Profiles derives the interactive and long running poll profiles.
func Profiles(cfg *infra.Config) (interactive, long poller.Config) {
	interactive = poller.Config{Interval: cfg.InteractivePollInterval, Deadline: cfg.InteractivePollDeadline}
	long = poller.Config{Interval: cfg.PollInterval, Deadline: cfg.PollDeadline}
	return interactive, long
}

// Build wires storage, credentials, providers and the generation service.
// Postgres is used when DATABASE_URL is set, SQLite when JOB_STORE_PATH is
// set, and otherwise jobs are not persisted.
func Build(ctx context.Context, cfg *infra.Config, logger *infra.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	logger = infra.OrDiscard(logger)
	rt := &Runtime{Store: "none"}
	rt.Interactive, rt.LongRunning = Profiles(cfg)

	var store jobStore
	switch {
	case strings.TrimSpace(cfg.DatabaseURL) != "":
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		rt.closers = append(rt.closers, pool.Close)
		runner := infra.NewSQLRunner(pool, logger)
		pg := repo.NewJobRepository(runner)
		if err := pg.EnsureSchema(ctx); err != nil {
			rt.Close()
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		rt.Credentials = credentials.NewStore(runner)
		if err := rt.Credentials.EnsureSchema(ctx); err != nil {
			rt.Close()
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		store, rt.Store = pg, "postgres"
	case strings.TrimSpace(cfg.JobStorePath) != "":
		lite, err := repo.OpenSQLiteJobRepository(cfg.JobStorePath)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		rt.closers = append(rt.closers, func() { _ = lite.Close() })
		store, rt.Store = lite, "sqlite"
	default:
		logger.Warn().Msg("bootstrap: no DATABASE_URL or JOB_STORE_PATH, jobs are not persisted")
	}
	if store != nil {
		rt.Jobs, rt.Claimer = store, store
	}

	keys := map[string]string{
		credentials.ProviderAutoContent: cfg.AutoContentAPIKey,
		credentials.ProviderGemini:      cfg.GeminiAPIKey,
		credentials.ProviderOpenAI:      cfg.OpenAIAPIKey,
	}
	for provider, configured := range keys {
		key, err := rt.Credentials.Resolve(ctx, provider, configured)
		if err != nil {
			logger.Warn().Err(err).Str("provider", provider).Msg("bootstrap: failed to load stored api key")
			continue
		}
		keys[provider] = key
	}

	telemetry := observability.Default()
	httpClient := &http.Client{Timeout: 90 * time.Second}

	remoteClient, err := autocontent.NewClient(autocontent.Options{
		APIKey:     keys[credentials.ProviderAutoContent],
		BaseURL:    cfg.AutoContentBaseURL,
		HTTPClient: httpClient,
		Logger:     logger,
		Telemetry:  telemetry,
	})
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	geminiClient, err := genai.NewClient(genai.Options{
		APIKey:     keys[credentials.ProviderGemini],
		BaseURL:    cfg.GeminiBaseURL,
		Model:      cfg.GeminiModel,
		HTTPClient: httpClient,
		Limiter:    ratelimit.New(cfg.LLMMinInterval),
		Logger:     logger,
	})
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	openaiClient, err := openai.NewClient(openai.Options{
		APIKey:       keys[credentials.ProviderOpenAI],
		Model:        cfg.OpenAIModel,
		BaseURL:      cfg.OpenAIBaseURL,
		Organization: cfg.OpenAIOrg,
		HTTPClient:   httpClient,
		Limiter:      ratelimit.New(cfg.LLMMinInterval),
		Logger:       logger,
	})
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	poll := poller.New(poller.Options{Config: rt.Interactive, Logger: logger, Telemetry: telemetry})
	remote := generation.NewRemoteStrategy(autocontent.ProviderName, remoteClient, poll, logger)
	byName := map[string]generation.Strategy{
		remote.Name():       remote,
		geminiClient.Name(): generation.NewLLMStrategy(geminiClient),
		openaiClient.Name(): generation.NewLLMStrategy(openaiClient),
	}
	chain := generation.NewChain(logger, orderStrategies(cfg.ProviderOrder, byName, logger)...)

	opts := generation.Options{
		Chain:    chain,
		Remote:   remote,
		Modifier: remoteClient,
		Logger:   logger,
	}
	if rt.Jobs != nil {
		opts.Repo = rt.Jobs
	}
	if fs := openFileStore(cfg.StoragePath, logger); fs != nil {
		opts.Store = fs
	}
	rt.Service, err = generation.NewService(opts)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	logger.Info().
		Str("store", rt.Store).
		Strs("providers", chain.Names()).
		Str("gemini_model", geminiClient.Model()).
		Str("openai_model", openaiClient.Model()).
		Msg("bootstrap: generation stack ready")
	return rt, nil
}

// orderStrategies follows the configured order; unknown names are logged
// and skipped, duplicates are ignored.
func orderStrategies(order []string, byName map[string]generation.Strategy, logger *infra.Logger) []generation.Strategy {
	logger = infra.OrDiscard(logger)
	seen := make(map[string]bool, len(order))
	out := make([]generation.Strategy, 0, len(order))
	for _, name := range order {
		name = strings.ToLower(strings.TrimSpace(name))
		if seen[name] {
			continue
		}
		seen[name] = true
		s, ok := byName[name]
		if !ok {
			logger.Warn().Str("provider", name).Msg("bootstrap: unknown provider in PROVIDER_ORDER")
			continue
		}
		out = append(out, s)
	}
	return out
}

func openFileStore(path string, logger *infra.Logger) *storage.FileStore {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	fs, err := storage.NewFileStore(path)
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("bootstrap: content store disabled")
		return nil
	}
	return fs
}
