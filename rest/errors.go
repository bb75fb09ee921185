package rest

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// StatusError is returned for replies with a 4xx or 5xx status.
type StatusError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Method  string `json:"-"`
	Key     string `json:"-"`
}

// Error implements the error interface
func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.Key, e.Code, http.StatusText(e.Code), e.Message)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Key, e.Code, http.StatusText(e.Code))
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// IsNotFound reports whether err is a 404 reply, e.g. for an expired scanner.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}
