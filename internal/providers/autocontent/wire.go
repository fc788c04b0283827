package autocontent

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"notebook/internal/domain"
)

// normalizeStatus translates the wire status into the internal enum. The
// upstream API has been seen reporting both strings and a numeric progress
// value where 100 means done.
func normalizeStatus(raw json.RawMessage) (domain.JobStatus, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return statusFromString(s)
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", false
	}
	return statusFromNumber(n), true
}

func statusFromString(s string) (domain.JobStatus, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "pending", "queued", "created", "submitted":
		return domain.JobStatusPending, true
	case "processing", "running", "in_progress", "in-progress":
		return domain.JobStatusProcessing, true
	case "completed", "complete", "succeeded", "success", "done":
		return domain.JobStatusCompleted, true
	case "failed", "failure", "error", "errored":
		return domain.JobStatusFailed, true
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return statusFromNumber(n), true
	}
	return "", false
}

func statusFromNumber(n float64) domain.JobStatus {
	switch {
	case n < 0:
		return domain.JobStatusFailed
	case n >= 100:
		return domain.JobStatusCompleted
	case n == 0:
		return domain.JobStatusPending
	default:
		return domain.JobStatusProcessing
	}
}

// rawID accepts string or numeric identifiers.
func rawID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return ""
	}
	return n.String()
}

// errorText reads an error field that is either a plain string or an object
// such as {"message": "..."}. Other shapes are kept as compact JSON.
func errorText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		for _, key := range []string{"message", "detail", "error", "code"} {
			if text := errorText(obj[key]); text != "" {
				return text
			}
		}
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return string(raw)
	}
	return compact.String()
}
