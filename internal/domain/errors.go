package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnsupportedOutput = errors.New("unsupported output type")
	ErrMissingAPIKey     = errors.New("api key is required")
	ErrProviderFailure   = errors.New("provider failure")
	ErrStaleWrite        = errors.New("stale job write")

	// Sentinels matched by the typed errors below through Is.
	ErrTransport         = errors.New("transport error")
	ErrRemoteRejected    = errors.New("remote rejected")
	ErrMalformedResponse = errors.New("malformed response")
)

// TransportError means the request never reached the server or no response
// came back.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// RemoteRejected carries a non-success HTTP status and the verbatim body.
type RemoteRejected struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *RemoteRejected) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("%s: remote status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: remote status %d: %s", e.Op, e.StatusCode, body)
}

func (e *RemoteRejected) Is(target error) bool { return target == ErrRemoteRejected }

// MalformedResponse is a 2xx response that does not match the expected shape.
type MalformedResponse struct {
	Op     string
	Reason string
	Body   string
	Err    error
}

func (e *MalformedResponse) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: malformed response: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: malformed response: %s", e.Op, e.Reason)
}

func (e *MalformedResponse) Unwrap() error { return e.Err }

func (e *MalformedResponse) Is(target error) bool { return target == ErrMalformedResponse }
