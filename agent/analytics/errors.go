package analytics

import (
	"fmt"
	"net/http"
	"strings"
)

// APIError is a non-2xx response from the analytics backend.
type APIError struct {
	StatusCode int
	ErrorCode  string
	Message    string
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "genie: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	if e.ErrorCode != "" {
		b.WriteString(" (")
		b.WriteString(e.ErrorCode)
		b.WriteString(")")
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		b.WriteString(": ")
		b.WriteString(msg)
	}
	return b.String()
}

// Permanent reports auth, permission, not-found and bad-request failures,
// which propagate without retry.
func (e *APIError) Permanent() bool {
	switch e.StatusCode {
	case http.StatusBadRequest,
		http.StatusUnauthorized,
		http.StatusForbidden,
		http.StatusNotFound:
		return true
	default:
		return false
	}
}

// MessageError is a terminal FAILED or CANCELLED answer status.
type MessageError struct {
	Status  string
	Type    string
	Message string
}

func (e *MessageError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = "no error detail"
	}
	if e.Type != "" {
		return fmt.Sprintf("genie: message %s (%s): %s", strings.ToLower(e.Status), e.Type, msg)
	}
	return fmt.Sprintf("genie: message %s: %s", strings.ToLower(e.Status), msg)
}
