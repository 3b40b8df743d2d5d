package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// APIError carries the normalized shape of a non-2xx backend response:
// the HTTP status, the server envelope's error code and message when the
// body carried a recognizable envelope, and the raw payload otherwise.
type APIError struct {
	Status  int
	Code    string
	Message string
	Payload json.RawMessage
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// Unwrap maps the HTTP status onto the sentinel taxonomy so callers can
// branch with errors.Is without inspecting status codes.
func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized:
		return ErrUnauthorized
	case e.Status == http.StatusNotFound:
		return ErrNotFound
	case e.Status == http.StatusConflict:
		return ErrConflict
	case e.Status == http.StatusTooManyRequests:
		return ErrTooFrequent
	case e.Status == http.StatusNotModified:
		return ErrNotModified
	case e.Status >= 500:
		return ErrTransient
	case e.Status >= 400:
		return ErrInvalidInput
	default:
		return ErrInternal
	}
}

// NewAPIError builds an APIError with a fallback message from the status text.
func NewAPIError(status int, code, message string, payload json.RawMessage) *APIError {
	if message == "" {
		message = http.StatusText(status)
	}
	return &APIError{Status: status, Code: code, Message: message, Payload: payload}
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// CodeOf returns the server envelope code carried by err, or "".
func CodeOf(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

// MessageOf returns the server message carried by err, falling back to
// err.Error() for non-API errors.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

// IsCode reports whether err carries the given server envelope code.
func IsCode(err error, code string) bool {
	return CodeOf(err) == code
}
