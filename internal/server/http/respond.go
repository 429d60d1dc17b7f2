package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/and161185/conote/internal/errs"
)

// envelope is the uniform response body.
type envelope struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Data    any      `json:"data,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func ok(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

func fail(w http.ResponseWriter, status int, message string, details ...string) {
	writeJSON(w, status, envelope{Success: false, Message: message, Errors: details})
}

// statusFor maps a service error to an HTTP status. NotFound and Forbidden
// share 404 so callers cannot discover notes they cannot see.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errs.ErrNotFound), errors.Is(err, errs.ErrForbidden):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, errs.ErrInvalid), errors.Is(err, errs.ErrVersionConflict):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, errs.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// notFoundReason is the message for both absent and off-limits notes, so a
// response never reveals whether a note exists.
const notFoundReason = "note not found"

// writeError renders err. Internal failures are logged and their detail is
// only shown in dev mode.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if errors.Is(err, errs.ErrForbidden) {
		fail(w, code, notFoundReason)
		return
	}
	if code != http.StatusInternalServerError {
		fail(w, code, errs.Reason(err))
		return
	}
	s.log.Error("request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	if s.dev {
		fail(w, code, "internal server error", err.Error())
		return
	}
	fail(w, code, "internal server error")
}

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errs.Invalid("invalid request body")
	}
	return nil
}
