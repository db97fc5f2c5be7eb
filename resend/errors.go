package resend

import (
	"errors"
	"fmt"
)

var errInvalidJSON = errors.New("response body is not valid JSON")

// ValidationError reports a request that was rejected locally, before any
// network call.
type ValidationError struct {
	// Field is the offending request field, e.g. "to", "body", "attachments".
	Field string
	// Index is the position of the offending list element, or -1.
	Index  int
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("resend: invalid %s[%d]: %s", e.Field, e.Index, e.Reason)
	}
	return fmt.Sprintf("resend: invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Index: -1, Reason: reason}
}

func invalidAt(field string, index int, reason string) *ValidationError {
	return &ValidationError{Field: field, Index: index, Reason: reason}
}

// TransportError reports that no usable response was obtained: the request
// could not be built or sent, or the response body was not JSON.
type TransportError struct {
	Op string
	// StatusCode is the HTTP status when a response was received.
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("resend: %s (HTTP %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("resend: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RemoteError is the remote service's own error report. The client never
// returns it from Send; see SendEmailResponse.Err.
type RemoteError struct {
	StatusCode int
	Name       string
	Message    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("resend API error (HTTP %d, %s): %s", e.StatusCode, e.Name, e.Message)
}
