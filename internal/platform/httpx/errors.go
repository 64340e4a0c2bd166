// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// ErrValidation marks request payloads rejected before reaching a service.
var ErrValidation = errors.New("validation failed")

// ErrorMapping binds a sentinel error to the status and title it is reported with.
type ErrorMapping struct {
	Target error
	Status int
	Title  string
}

// ErrorMapper translates domain errors into RFC7807 responses.
type ErrorMapper []ErrorMapping

// Status returns the mapped status and title for err.
func (m ErrorMapper) Status(err error) (int, string) {
	if errors.Is(err, ErrValidation) {
		return http.StatusBadRequest, "Validation Failed"
	}
	for _, mapping := range m {
		if errors.Is(err, mapping.Target) {
			return mapping.Status, mapping.Title
		}
	}
	return http.StatusInternalServerError, "Internal Error"
}

// Respond writes err as a problem document. Unmapped errors do not leak their text.
func (m ErrorMapper) Respond(w http.ResponseWriter, err error) {
	status, title := m.Status(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		detail = ""
	}
	Problem(w, status, title, detail)
}
