package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/p-n-ai/pai-courseware/internal/content"
	"github.com/p-n-ai/pai-courseware/internal/exercise"
	"github.com/p-n-ai/pai-courseware/internal/learner"
	"github.com/p-n-ai/pai-courseware/internal/session"
)

// Session actions, shared by the REST routes and the websocket.
const (
	actionBegin       = "begin"
	actionPractice    = "practice"
	actionSubmit      = "submit"
	actionAdvance     = "advance"
	actionInstruction = "instruction"
	actionFinish      = "finish"
	actionAbandon     = "abandon"
	actionStatus      = "status"
)

// Reply types.
const (
	replyLesson    = "lesson"
	replyStatus    = "status"
	replyJudgement = "judgement"
	replyResult    = "result"
	replyError     = "error"
)

type startSessionRequest struct {
	SubjectID string `json:"subject_id" validate:"required"`
	UnitID    string `json:"unit_id" validate:"required"`
	LessonID  string `json:"lesson_id"`
}

type lessonReply struct {
	Lesson content.LessonText `json:"lesson"`
	Status session.Status     `json:"status"`
}

type answerRequest struct {
	Answer json.RawMessage `json:"answer" validate:"required"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	l, ok := s.learner(w, r)
	if !ok {
		return
	}
	var req startSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	sess, err := l.StartSession(learner.Target{SubjectID: req.SubjectID, UnitID: req.UnitID, LessonID: req.LessonID})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, sess.Status())
}

// session resolves {learner} and {session}, writing the error response on failure.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*learner.Learner, *session.Session, bool) {
	l, ok := s.learner(w, r)
	if !ok {
		return nil, nil, false
	}
	sess, err := l.Session(r.PathValue("session"))
	if err != nil {
		respondError(w, r, err)
		return nil, nil, false
	}
	return l, sess, true
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	_, sess, ok := s.session(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, sess.Status())
}

func (s *Server) handleBeginLesson(w http.ResponseWriter, r *http.Request) {
	s.handleAction(w, r, actionBegin)
}

func (s *Server) handleBeginPractice(w http.ResponseWriter, r *http.Request) {
	s.handleAction(w, r, actionPractice)
}

func (s *Server) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	s.handleAction(w, r, actionSubmit)
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	s.handleAction(w, r, actionAdvance)
}

func (s *Server) handleReturnToInstruction(w http.ResponseWriter, r *http.Request) {
	s.handleAction(w, r, actionInstruction)
}

func (s *Server) handleFinish(w http.ResponseWriter, r *http.Request) {
	s.handleAction(w, r, actionFinish)
}

func (s *Server) handleAbandon(w http.ResponseWriter, r *http.Request) {
	s.handleAction(w, r, actionAbandon)
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request, action string) {
	l, sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var raw json.RawMessage
	if action == actionSubmit {
		var req answerRequest
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, r, err)
			return
		}
		raw = req.Answer
	}

	_, payload, err := apply(r.Context(), l, sess, action, raw)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, payload)
}

// apply runs one session action and returns the reply type and payload.
func apply(ctx context.Context, l *learner.Learner, sess *session.Session, action string, answer json.RawMessage) (string, any, error) {
	switch action {
	case actionStatus:
		return replyStatus, sess.Status(), nil
	case actionBegin:
		lesson, err := sess.Begin(ctx)
		if err != nil {
			return "", nil, err
		}
		return replyLesson, lessonReply{Lesson: lesson, Status: sess.Status()}, nil
	case actionPractice:
		st, err := l.BeginPractice(ctx, sess.ID())
		if err != nil {
			return "", nil, err
		}
		return replyStatus, st, nil
	case actionSubmit:
		ans, err := decodeSubmission(sess, answer)
		if err != nil {
			return "", nil, err
		}
		j, err := l.Submit(ctx, sess.ID(), ans)
		if err != nil {
			return "", nil, err
		}
		return replyJudgement, j, nil
	case actionAdvance:
		st, err := sess.Advance()
		if err != nil {
			return "", nil, err
		}
		return replyStatus, st, nil
	case actionInstruction:
		st, err := sess.ReturnToInstruction()
		if err != nil {
			return "", nil, err
		}
		return replyStatus, st, nil
	case actionFinish:
		res, err := l.Finish(ctx, sess.ID())
		if err != nil {
			return "", nil, err
		}
		return replyResult, res, nil
	case actionAbandon:
		if err := l.Abandon(sess.ID()); err != nil {
			return "", nil, err
		}
		return replyStatus, sess.Status(), nil
	default:
		return "", nil, fmt.Errorf("%w: unknown action %q", errBadRequest, action)
	}
}

// decodeSubmission decodes a raw answer against the exercise currently shown.
func decodeSubmission(sess *session.Session, raw json.RawMessage) (exercise.Answer, error) {
	st := sess.Status()
	if st.Current == nil {
		return nil, fmt.Errorf("submit in phase %s: %w", st.Phase, session.ErrPrecondition)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: answer is required", errBadRequest)
	}
	return exercise.DecodeAnswer(st.Current.Type, raw)
}
