package domain

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// JobStatus enumerates the lifecycle states reported by the remote service.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further status change is expected.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Rank orders statuses along the lifecycle. Unknown values rank below pending.
func (s JobStatus) Rank() int {
	switch s {
	case JobStatusPending:
		return 1
	case JobStatusProcessing:
		return 2
	case JobStatusCompleted, JobStatusFailed:
		return 3
	default:
		return 0
	}
}

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	return s.Rank() > 0
}

// CanTransition reports whether a job may move from one status to another.
// Moves are forward only; once terminal a job never changes status again.
func CanTransition(from, to JobStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	if from.IsTerminal() {
		return false
	}
	return to.Rank() > from.Rank()
}

// OutputType tags the kind of content a generation request produces.
type OutputType string

const (
	OutputText          OutputType = "text"
	OutputAudio         OutputType = "audio"
	OutputFAQ           OutputType = "faq"
	OutputStudyGuide    OutputType = "study_guide"
	OutputTimeline      OutputType = "timeline"
	OutputOutline       OutputType = "outline"
	OutputBriefing      OutputType = "briefing"
	OutputSummary       OutputType = "summary"
	OutputModifyPodcast OutputType = "modify_podcast"
)

var knownOutputTypes = map[OutputType]struct{}{
	OutputText:          {},
	OutputAudio:         {},
	OutputFAQ:           {},
	OutputStudyGuide:    {},
	OutputTimeline:      {},
	OutputOutline:       {},
	OutputBriefing:      {},
	OutputSummary:       {},
	OutputModifyPodcast: {},
}

// Known reports whether t is a supported output type.
func (t OutputType) Known() bool {
	_, ok := knownOutputTypes[t]
	return ok
}

// Label returns a human readable title such as "Study Guide".
func (t OutputType) Label() string {
	if t == OutputFAQ {
		return "FAQ"
	}
	words := strings.ReplaceAll(string(t), "_", " ")
	return cases.Title(language.English).String(words)
}

// ResourceType tags a source handed to the generation service.
type ResourceType string

const (
	ResourceText    ResourceType = "text"
	ResourceWebsite ResourceType = "website"
	ResourceYouTube ResourceType = "youtube"
	ResourcePDF     ResourceType = "pdf"
	ResourceFile    ResourceType = "file"
)

// Valid reports whether the resource type is accepted upstream.
func (t ResourceType) Valid() bool {
	switch t {
	case ResourceText, ResourceWebsite, ResourceYouTube, ResourcePDF, ResourceFile:
		return true
	}
	return false
}

// Resource is a content blob plus a type tag.
type Resource struct {
	Content string       `json:"content"`
	Type    ResourceType `json:"type"`
}

// GenerationRequest describes one unit of content generation.
type GenerationRequest struct {
	Text             string         `json:"text"`
	OutputType       OutputType     `json:"output_type"`
	Resources        []Resource     `json:"resources"`
	Customization    map[string]any `json:"customization,omitempty"`
	IncludeCitations bool           `json:"include_citations"`
}

// Validate checks the request is well formed enough to submit.
func (r GenerationRequest) Validate() error {
	if !r.OutputType.Known() {
		return fmt.Errorf("%w: unsupported output type %q", ErrInvalidRequest, r.OutputType)
	}
	if strings.TrimSpace(r.Text) == "" && len(r.Resources) == 0 {
		return fmt.Errorf("%w: text or at least one resource is required", ErrInvalidRequest)
	}
	for i, res := range r.Resources {
		if !res.Type.Valid() {
			return fmt.Errorf("%w: resource %d has unsupported type %q", ErrInvalidRequest, i, res.Type)
		}
		if strings.TrimSpace(res.Content) == "" {
			return fmt.Errorf("%w: resource %d has empty content", ErrInvalidRequest, i)
		}
	}
	return nil
}

// Result is the payload of a completed job.
type Result struct {
	Content  string         `json:"content,omitempty"`
	AudioURL string         `json:"audio_url,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Job is one outstanding unit of remote generation work. The remote service
// is the source of truth for Status; it is never computed locally.
type Job struct {
	ID          string     `json:"id"`
	OutputType  OutputType `json:"output_type,omitempty"`
	Provider    string     `json:"provider,omitempty"`
	SubmittedAt time.Time  `json:"submitted_at"`
	Status      JobStatus  `json:"status"`
	Payload     *Result    `json:"payload,omitempty"`
	ErrorDetail string     `json:"error_detail,omitempty"`
	Fingerprint string     `json:"-"`
}

// Validate enforces that a terminal job carries exactly one of a payload or an
// error detail, and a non-terminal job carries neither.
func (j *Job) Validate() error {
	if j == nil {
		return fmt.Errorf("%w: nil job", ErrInvalidRequest)
	}
	if strings.TrimSpace(j.ID) == "" {
		return fmt.Errorf("%w: job id is required", ErrInvalidRequest)
	}
	if !j.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, j.Status)
	}
	hasPayload := j.Payload != nil
	hasError := j.ErrorDetail != ""
	switch j.Status {
	case JobStatusCompleted:
		if !hasPayload || hasError {
			return fmt.Errorf("%w: completed job must carry only a payload", ErrInvalidRequest)
		}
	case JobStatusFailed:
		if hasPayload || !hasError {
			return fmt.Errorf("%w: failed job must carry only an error detail", ErrInvalidRequest)
		}
	default:
		if hasPayload || hasError {
			return fmt.Errorf("%w: %s job must not carry a result", ErrInvalidRequest, j.Status)
		}
	}
	return nil
}

// Advance applies a freshly fetched snapshot to j. Identity fields of j are
// kept; status, payload and error detail come from the snapshot.
func (j *Job) Advance(next *Job) error {
	if next == nil {
		return fmt.Errorf("%w: nil snapshot", ErrInvalidRequest)
	}
	if !CanTransition(j.Status, next.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, next.Status)
	}
	j.Status = next.Status
	j.Payload = next.Payload
	j.ErrorDetail = next.ErrorDetail
	if j.Provider == "" {
		j.Provider = next.Provider
	}
	if j.OutputType == "" {
		j.OutputType = next.OutputType
	}
	return nil
}

// Outcome is what a caller receives after submitting and waiting on a job.
// TimedOut marks the poll deadline outcome: the job was still non-terminal
// when the wait ended, which is not an error.
type Outcome struct {
	Job      *Job   `json:"job"`
	TimedOut bool   `json:"timed_out"`
	Message  string `json:"message,omitempty"`
	Attempts int    `json:"attempts"`
}
