package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"notebook/internal/domain"
	"notebook/internal/generation"
	"notebook/internal/infra"
	"notebook/internal/middleware"
	"notebook/internal/poller"
)

const maxBodyBytes = 4 << 20

// Generator is the slice of generation.Service the API needs.
type Generator interface {
	Providers() []string
	Generate(ctx context.Context, req domain.GenerationRequest) (domain.Outcome, error)
	Submit(ctx context.Context, req domain.GenerationRequest) (*domain.Job, error)
	Status(ctx context.Context, id string) (*domain.Job, error)
	Lookup(ctx context.Context, id string) (*domain.Job, error)
	Content(ctx context.Context, job *domain.Job) []byte
	Resume(ctx context.Context, id string, cfg poller.Config) (domain.Outcome, error)
	GenerateMany(ctx context.Context, reqs []domain.GenerationRequest) []generation.BatchItem
	Feature(ctx context.Context, name string, in generation.FeatureInput) (domain.Outcome, error)
	ModifyPodcast(ctx context.Context, audioURL, instructions string, customization map[string]any) (domain.Outcome, error)
}

type App struct {
	Service     Generator
	Logger      *infra.Logger
	Interactive poller.Config
	LongRunning poller.Config
	MaxBatch    int
}

func NewApp(svc Generator, logger *infra.Logger, interactive, long poller.Config) *App {
	return &App{
		Service:     svc,
		Logger:      infra.OrDiscard(logger),
		Interactive: interactive,
		LongRunning: long,
		MaxBatch:    20,
	}
}

type errorBody struct {
	Code           string `json:"code"`
	Message        string `json:"message"`
	UpstreamStatus int    `json:"upstream_status,omitempty"`
	UpstreamBody   string `json:"upstream_body,omitempty"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, msg string) {
	a.json(w, code, map[string]any{"error": errorBody{Code: errCode, Message: msg}})
}

// classify maps a service error onto a status code and error body.
func classify(err error) (int, errorBody) {
	var (
		rejected  *domain.RemoteRejected
		malformed *domain.MalformedResponse
		body      = errorBody{Message: err.Error()}
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		body.Code = "deadline_exceeded"
		return http.StatusGatewayTimeout, body
	case errors.Is(err, domain.ErrInvalidRequest):
		body.Code = "bad_request"
		return http.StatusBadRequest, body
	case errors.Is(err, domain.ErrUnsupportedOutput):
		body.Code = "unsupported_output"
		return http.StatusBadRequest, body
	case errors.Is(err, domain.ErrNotFound):
		body.Code = "not_found"
		return http.StatusNotFound, body
	case errors.As(err, &rejected):
		body.Code = "remote_rejected"
		body.UpstreamStatus = rejected.StatusCode
		body.UpstreamBody = rejected.Body
		return http.StatusBadGateway, body
	case errors.As(err, &malformed):
		body.Code = "malformed_response"
		body.UpstreamBody = malformed.Body
		return http.StatusBadGateway, body
	case errors.Is(err, domain.ErrTransport):
		body.Code = "transport_error"
		return http.StatusBadGateway, body
	case errors.Is(err, domain.ErrProviderFailure):
		body.Code = "provider_failure"
		return http.StatusBadGateway, body
	}
	return http.StatusInternalServerError, errorBody{Code: "internal", Message: "internal error"}
}

func errorCode(err error) string {
	_, body := classify(err)
	return body.Code
}

// fail logs err and writes the mapped error response.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) {
		// client went away
		return
	}
	status, body := classify(err)
	evt := a.Logger.Warn()
	if status == http.StatusInternalServerError {
		evt = a.Logger.Error()
	}
	evt.Err(err).
		Str("request_id", middleware.RequestIDFromContext(r.Context())).
		Int("status", status).
		Msg("request failed")
	a.json(w, status, map[string]any{"error": body})
}

// outcome writes 200 for a terminal job and 202 when the wait timed out.
func (a *App) outcome(w http.ResponseWriter, out domain.Outcome) {
	code := http.StatusOK
	if out.TimedOut {
		code = http.StatusAccepted
	}
	a.json(w, code, out)
}

func (a *App) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("invalid payload: %v", err))
		return false
	}
	return true
}

// profile picks the poll profile named by ?profile=, defaulting to def.
func (a *App) profile(r *http.Request, def poller.Config) (poller.Config, bool) {
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get("profile"))) {
	case "":
		return def, true
	case "interactive":
		return a.Interactive, true
	case "long", "long-running", "long_running":
		return a.LongRunning, true
	}
	return poller.Config{}, false
}

// withLocale sets the negotiated request language when the caller did not
// choose one explicitly.
func withLocale(ctx context.Context, req domain.GenerationRequest) domain.GenerationRequest {
	if _, ok := req.Customization["language"]; ok {
		return req
	}
	locale := middleware.LocaleFromContext(ctx)
	if locale == "" {
		return req
	}
	custom := make(map[string]any, len(req.Customization)+1)
	for k, v := range req.Customization {
		custom[k] = v
	}
	custom["language"] = locale
	req.Customization = custom
	return req
}
