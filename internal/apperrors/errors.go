package apperrors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Error is an HTTP-facing error with a stable code and an optional internal cause.
type Error struct {
	Status   int    `json:"-"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	internal error
}

func (e *Error) Error() string {
	if e.internal != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.internal)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.internal
}

// WithInternal attaches the underlying cause. It is never written to clients.
func (e *Error) WithInternal(err error) *Error {
	e.internal = err
	return e
}

// WriteHTTP renders the error as a JSON body.
func (e *Error) WriteHTTP(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	_ = json.NewEncoder(w).Encode(map[string]*Error{"error": e})
}

func New(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

func BadRequest(message string) *Error {
	return New(http.StatusBadRequest, "BAD_REQUEST", message)
}

func NotFound(resource string) *Error {
	return New(http.StatusNotFound, "NOT_FOUND", resource+" not found")
}

func Conflict(message string) *Error {
	return New(http.StatusConflict, "CONFLICT", message)
}

func TooManyRequests(message string) *Error {
	return New(http.StatusTooManyRequests, "TOO_MANY_REQUESTS", message)
}

func ServiceUnavailable(message string) *Error {
	return New(http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", message)
}

func Internal(message string) *Error {
	return New(http.StatusInternalServerError, "INTERNAL", message)
}
