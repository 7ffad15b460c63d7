package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/p-n-ai/pai-courseware/internal/content"
	"github.com/p-n-ai/pai-courseware/internal/curriculum"
	"github.com/p-n-ai/pai-courseware/internal/economy"
	"github.com/p-n-ai/pai-courseware/internal/exercise"
	"github.com/p-n-ai/pai-courseware/internal/learner"
	"github.com/p-n-ai/pai-courseware/internal/progress"
	"github.com/p-n-ai/pai-courseware/internal/session"
)

// maxBodyBytes caps every JSON request body.
const maxBodyBytes = 1 << 20

var validate = validator.New()

// errBadRequest marks bodies that could not be decoded.
var errBadRequest = errors.New("bad request")

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// decodeJSON reads a single JSON object from the body and validates it.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return validate.Struct(v)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		slog.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	respondJSON(w, status, errorBody{Error: err.Error(), Code: code})
}

// statusFor maps domain errors to an HTTP status and a stable error code.
func statusFor(err error) (int, string) {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs), errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, learner.ErrInvalidLearner):
		return http.StatusBadRequest, "invalid_learner"
	case errors.Is(err, learner.ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, progress.ErrNoCourse):
		return http.StatusNotFound, "no_course"
	case errors.Is(err, curriculum.ErrNotFound), errors.Is(err, progress.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, session.ErrAbandoned):
		return http.StatusConflict, "abandoned"
	case errors.Is(err, progress.ErrPrecondition),
		errors.Is(err, economy.ErrPrecondition),
		errors.Is(err, session.ErrPrecondition):
		return http.StatusConflict, "precondition_failed"
	case errors.Is(err, exercise.ErrInvalidExercise):
		return http.StatusUnprocessableEntity, "invalid_exercise"
	case errors.Is(err, exercise.ErrAnswerMismatch):
		return http.StatusUnprocessableEntity, "answer_mismatch"
	case errors.Is(err, content.ErrNoTopicContext), errors.Is(err, content.ErrContentUnavailable):
		return http.StatusServiceUnavailable, "content_unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
