package autocontent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"notebook/internal/domain"
	"notebook/internal/infra"
	"notebook/internal/observability"
)

// ProviderName identifies jobs created through this client.
const ProviderName = "autocontent"

const (
	opSubmit = "autocontent.submit"
	opModify = "autocontent.modify"
	opStatus = "autocontent.status"
)

// Options configures the AutoContent client.
type Options struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *infra.Logger
	Telemetry  *observability.Telemetry
	Now        func() time.Time
}

// Client submits generation jobs and reads their status. It performs exactly
// one HTTP call per method invocation and never retries.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
	telemetry  *observability.Telemetry
	now        func() time.Time
}

// ModifyRequest asks the service to rework an existing podcast.
type ModifyRequest struct {
	AudioURL      string         `json:"audioUrl"`
	Instructions  string         `json:"text"`
	Customization map[string]any `json:"customization,omitempty"`
}

type submitResource struct {
	Content string `json:"content"`
	Type    string `json:"type"`
}

type submitRequest struct {
	Text             string           `json:"text"`
	OutputType       string           `json:"outputType"`
	Resources        []submitResource `json:"resources"`
	Customization    map[string]any   `json:"customization,omitempty"`
	IncludeCitations bool             `json:"includeCitations"`
}

type submitResponse struct {
	ID        json.RawMessage `json:"id"`
	RequestID json.RawMessage `json:"request_id"`
}

type statusResponse struct {
	ID           json.RawMessage `json:"id"`
	RequestID    json.RawMessage `json:"request_id"`
	Status       json.RawMessage `json:"status"`
	Content      string          `json:"content"`
	ResponseText string          `json:"response_text"`
	AudioURL     string          `json:"audio_url"`
	AudioTitle   string          `json:"audio_title"`
	Citations    []any           `json:"citations"`
	Metadata     map[string]any  `json:"metadata"`
	Error        json.RawMessage `json:"error"`
	ErrorMessage json.RawMessage `json:"error_message"`
}

// NewClient constructs a client with sane defaults.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.autocontentapi.com"
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("autocontent: invalid base url: %w", err)
	}
	telemetry := opts.Telemetry
	if telemetry == nil {
		telemetry = observability.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     infra.OrDiscard(opts.Logger),
		telemetry:  telemetry,
		now:        now,
	}, nil
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// Submit posts a generation request and returns the pending job.
func (c *Client) Submit(ctx context.Context, req domain.GenerationRequest) (*domain.Job, error) {
	payload := submitRequest{
		Text:             req.Text,
		OutputType:       string(req.OutputType),
		Resources:        make([]submitResource, 0, len(req.Resources)),
		Customization:    req.Customization,
		IncludeCitations: req.IncludeCitations,
	}
	for _, res := range req.Resources {
		payload.Resources = append(payload.Resources, submitResource{Content: res.Content, Type: string(res.Type)})
	}
	return c.create(ctx, opSubmit, "/content/Create", payload, req.OutputType)
}

// Modify submits a podcast modification. It follows the Submit contract.
func (c *Client) Modify(ctx context.Context, req ModifyRequest) (*domain.Job, error) {
	if strings.TrimSpace(req.AudioURL) == "" {
		return nil, fmt.Errorf("%w: audio url is required", domain.ErrInvalidRequest)
	}
	return c.create(ctx, opModify, "/content/ModifyPodcast", req, domain.OutputModifyPodcast)
}

func (c *Client) create(ctx context.Context, op, path string, payload any, outputType domain.OutputType) (*domain.Job, error) {
	ctx, span := c.telemetry.StartSpan(ctx, op, attribute.String(observability.AttrOutputType, string(outputType)))
	defer span.End()

	raw, err := c.do(ctx, op, http.MethodPost, path, payload)
	if err != nil {
		observability.RecordError(span, err)
		c.telemetry.CountSubmission(ctx, ProviderName, resultLabel(err))
		return nil, err
	}

	var decoded submitResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		err = &domain.MalformedResponse{Op: op, Reason: "decode body", Body: string(raw), Err: err}
		observability.RecordError(span, err)
		c.telemetry.CountSubmission(ctx, ProviderName, resultLabel(err))
		return nil, err
	}
	id := firstNonEmpty(rawID(decoded.ID), rawID(decoded.RequestID))
	if id == "" {
		err := &domain.MalformedResponse{Op: op, Reason: "missing job id", Body: string(raw)}
		observability.RecordError(span, err)
		c.telemetry.CountSubmission(ctx, ProviderName, resultLabel(err))
		return nil, err
	}

	span.SetAttributes(attribute.String(observability.AttrJobID, id))
	c.telemetry.CountSubmission(ctx, ProviderName, "ok")
	c.logger.Debug().
		Str("job_id", id).
		Str("output_type", string(outputType)).
		Msg("autocontent: job submitted")

	return &domain.Job{
		ID:          id,
		OutputType:  outputType,
		Provider:    ProviderName,
		SubmittedAt: c.now(),
		Status:      domain.JobStatusPending,
	}, nil
}

// Status queries the remote status of a job once. The returned job only
// carries what the remote reported; callers merge it with their own record.
func (c *Client) Status(ctx context.Context, id string) (*domain.Job, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: job id is required", domain.ErrInvalidRequest)
	}
	ctx, span := c.telemetry.StartSpan(ctx, opStatus, attribute.String(observability.AttrJobID, id))
	defer span.End()

	raw, err := c.do(ctx, opStatus, http.MethodGet, "/content/Status/"+url.PathEscape(id), nil)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	var decoded statusResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		err = &domain.MalformedResponse{Op: opStatus, Reason: "decode body", Body: string(raw), Err: err}
		observability.RecordError(span, err)
		return nil, err
	}
	status, ok := normalizeStatus(decoded.Status)
	if !ok {
		err := &domain.MalformedResponse{Op: opStatus, Reason: fmt.Sprintf("unknown status %s", strings.TrimSpace(string(decoded.Status))), Body: string(raw)}
		observability.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String(observability.AttrJobStatus, string(status)))

	job := &domain.Job{ID: id, Provider: ProviderName, Status: status}
	switch status {
	case domain.JobStatusCompleted:
		job.Payload = decoded.result()
	case domain.JobStatusFailed:
		job.ErrorDetail = firstNonEmpty(errorText(decoded.ErrorMessage), errorText(decoded.Error), "generation failed")
	}
	return job, nil
}

func (r statusResponse) result() *domain.Result {
	res := &domain.Result{
		Content:  firstNonEmpty(r.Content, r.ResponseText),
		AudioURL: strings.TrimSpace(r.AudioURL),
	}
	meta := map[string]any{}
	for k, v := range r.Metadata {
		meta[k] = v
	}
	if r.AudioTitle != "" {
		meta["audio_title"] = r.AudioTitle
	}
	if len(r.Citations) > 0 {
		meta["citations"] = r.Citations
	}
	if len(meta) > 0 {
		res.Metadata = meta
	}
	return res
}

func (c *Client) do(ctx context.Context, op, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(encoded)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &domain.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.TransportError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &domain.RemoteRejected{Op: op, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}

func resultLabel(err error) string {
	switch err.(type) {
	case *domain.TransportError:
		return "transport"
	case *domain.RemoteRejected:
		return "rejected"
	case *domain.MalformedResponse:
		return "malformed"
	default:
		return "error"
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
