package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// StatusError is a non-2xx backend reply.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	if msg := e.Message(); msg != "" {
		return fmt.Sprintf("backend: %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, msg)
	}
	return fmt.Sprintf("backend: %s %s: status %d", e.Method, e.Path, e.StatusCode)
}

// Message extracts the server supplied message from the body. JSON bodies
// are searched for error, message and detail, in that order.
func (e *StatusError) Message() string {
	if e == nil {
		return ""
	}
	raw := strings.TrimSpace(string(e.Body))
	if raw == "" {
		return ""
	}
	if msg, ok := messageField([]byte(raw)); ok {
		return msg
	}
	var text string
	if err := json.Unmarshal(e.Body, &text); err == nil {
		raw = text
	}
	// Some endpoints stringify a Python dict: {'error': '...'}.
	if strings.Contains(raw, "'error':") {
		if msg, ok := messageField([]byte(strings.ReplaceAll(raw, "'", `"`))); ok {
			return msg
		}
	}
	return raw
}

func messageField(body []byte) (string, bool) {
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return "", false
	}
	for _, key := range []string{"error", "message", "detail"} {
		if s, ok := fields[key].(string); ok && s != "" {
			return s, true
		}
	}
	return string(body), true
}

// StatusCode returns the backend status carried by err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// IsAuthStatus reports a 401 or 403 backend reply.
func IsAuthStatus(err error) bool {
	code := StatusCode(err)
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

var pendingKeywords = []string{"pending", "validation", "approval", "wait for", "administrator", "verify"}

// PendingValidation reports whether err is the backend refusing an account
// that still awaits validation. The backend only signals this through the
// text of a 403 body, so the check is a keyword match on that text.
func PendingValidation(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusForbidden {
		return false
	}
	msg := strings.ToLower(se.Message())
	if msg == "" {
		return false
	}
	for _, kw := range pendingKeywords {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}

// HTTPStatus exposes the backend status to response mappers.
func (e *StatusError) HTTPStatus() int { return e.StatusCode }
