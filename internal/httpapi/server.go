// Package httpapi exposes learners, courses, the economy and lesson sessions
// over HTTP and a per-session websocket.
package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/p-n-ai/pai-courseware/internal/exercise"
	"github.com/p-n-ai/pai-courseware/internal/learner"
)

// readyTimeout bounds the storage ping behind /readyz.
const readyTimeout = 2 * time.Second

// Server routes requests to the learner registry.
type Server struct {
	reg *learner.Registry
}

// New creates a server over reg.
func New(reg *learner.Registry) *Server {
	return &Server{reg: reg}
}

// Handler returns the routed handler wrapped in access logging and panic recovery.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	mux.HandleFunc("GET /v1/subjects", s.handleListSubjects)
	mux.HandleFunc("GET /v1/subjects/{subject}", s.handleGetSubject)
	mux.HandleFunc("POST /v1/evaluate", handleEvaluate)

	const course = "/v1/learners/{learner}/courses/{subject}"
	mux.HandleFunc("POST "+course, s.handleMaterializeCourse)
	mux.HandleFunc("GET "+course, s.handleGetCourse)
	mux.HandleFunc("DELETE "+course, s.handleResetCourse)
	mux.HandleFunc("GET "+course+"/next", s.handleNextActionable)
	mux.HandleFunc("GET "+course+"/stats", s.handleCourseStats)
	mux.HandleFunc("GET "+course+"/progress", s.handleProgress)
	mux.HandleFunc("POST "+course+"/study-time", s.handleStudyTime)
	mux.HandleFunc("PUT "+course+"/weekly-goal", s.handleWeeklyGoal)
	mux.HandleFunc("GET "+course+"/export.xlsx", s.handleExport)

	const econ = "/v1/learners/{learner}/economy"
	mux.HandleFunc("GET "+econ, s.handleGetEconomy)
	mux.HandleFunc("POST "+econ+"/hearts/lose", s.handleHearts(heartsLose))
	mux.HandleFunc("POST "+econ+"/hearts/add", s.handleHearts(heartsAdd))
	mux.HandleFunc("POST "+econ+"/hearts/reset", s.handleHearts(heartsReset))
	mux.HandleFunc("POST "+econ+"/rewards", s.handleGrantReward)

	const sessions = "/v1/learners/{learner}/sessions"
	mux.HandleFunc("POST "+sessions, s.handleStartSession)
	mux.HandleFunc("GET "+sessions+"/{session}", s.handleGetSession)
	mux.HandleFunc("POST "+sessions+"/{session}/begin", s.handleBeginLesson)
	mux.HandleFunc("POST "+sessions+"/{session}/practice", s.handleBeginPractice)
	mux.HandleFunc("POST "+sessions+"/{session}/answers", s.handleSubmitAnswer)
	mux.HandleFunc("POST "+sessions+"/{session}/advance", s.handleAdvance)
	mux.HandleFunc("POST "+sessions+"/{session}/instruction", s.handleReturnToInstruction)
	mux.HandleFunc("POST "+sessions+"/{session}/finish", s.handleFinish)
	mux.HandleFunc("POST "+sessions+"/{session}/abandon", s.handleAbandon)
	mux.HandleFunc("GET "+sessions+"/{session}/ws", s.handleSessionSocket)

	return recoverMiddleware(accessLogMiddleware(mux))
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	if err := s.reg.Ping(ctx); err != nil {
		slog.Warn("readiness check failed", "error", err)
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

func (s *Server) handleListSubjects(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.reg.Catalog().Subjects())
}

func (s *Server) handleGetSubject(w http.ResponseWriter, r *http.Request) {
	subject, err := s.reg.Catalog().GetSubject(r.PathValue("subject"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, subject)
}

type evaluateRequest struct {
	Exercise json.RawMessage `json:"exercise" validate:"required"`
	Answer   json.RawMessage `json:"answer" validate:"required"`
}

type evaluateResponse struct {
	ExerciseID string `json:"exercise_id"`
	Correct    bool   `json:"correct"`
}

// handleEvaluate judges a standalone exercise without touching any learner.
func handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	ex, err := exercise.Unmarshal(req.Exercise)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := ex.Validate(); err != nil {
		respondError(w, r, err)
		return
	}
	ans, err := exercise.DecodeAnswer(ex.Kind(), req.Answer)
	if err != nil {
		respondError(w, r, err)
		return
	}
	ok, err := exercise.IsCorrect(ex, ans)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, evaluateResponse{ExerciseID: ex.ExerciseID(), Correct: ok})
}

// learner resolves the {learner} path segment, writing the error response on failure.
func (s *Server) learner(w http.ResponseWriter, r *http.Request) (*learner.Learner, bool) {
	l, err := s.reg.Get(r.Context(), r.PathValue("learner"))
	if err != nil {
		respondError(w, r, err)
		return nil, false
	}
	return l, true
}

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += n
	return n, err
}

// Hijack lets the websocket upgrade through the logging wrapper.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	if w.status == 0 {
		w.status = http.StatusSwitchingProtocols
	}
	return hj.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"bytes", sw.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				slog.Error("panic recovered", "panic", rec, "stack", string(debug.Stack()))
				respondJSON(w, http.StatusInternalServerError, errorBody{Error: fmt.Sprint(rec), Code: "internal"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
