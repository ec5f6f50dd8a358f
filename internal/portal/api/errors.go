package api

import (
	"errors"
	"net/http"

	"github.com/moussadar/moussadar/internal/portal/db"
)

// apiError is a handler failure with the status and message the client sees.
type apiError struct {
	status  int
	message string
	err     error
}

func (e *apiError) Error() string {
	if e.err != nil {
		return e.message + ": " + e.err.Error()
	}
	return e.message
}

func (e *apiError) Unwrap() error { return e.err }

func badRequest(message string) *apiError {
	return &apiError{status: http.StatusBadRequest, message: message}
}

// lookupError maps a store error onto 404 or 500.
func lookupError(err error, notFound, failed string) *apiError {
	if errors.Is(err, db.ErrNotFound) {
		return &apiError{status: http.StatusNotFound, message: notFound, err: err}
	}
	return &apiError{status: http.StatusInternalServerError, message: failed, err: err}
}

func internal(message string, err error) *apiError {
	return &apiError{status: http.StatusInternalServerError, message: message, err: err}
}

// fail writes err as a route error. Server-side failures are logged.
func (s *Server) fail(w http.ResponseWriter, err *apiError) {
	if err.status >= http.StatusInternalServerError {
		s.logger.Printf("ERROR: %v", err)
	}
	writeError(w, err.status, err.message)
}
