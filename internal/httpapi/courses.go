package httpapi

import (
	"fmt"
	"net/http"

	"github.com/p-n-ai/pai-courseware/internal/economy"
	"github.com/p-n-ai/pai-courseware/internal/learner"
)

func (s *Server) handleMaterializeCourse(w http.ResponseWriter, r *http.Request) {
	l, ok := s.learner(w, r)
	if !ok {
		return
	}
	c, err := l.MaterializeCourse(r.Context(), r.PathValue("subject"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

func (s *Server) handleGetCourse(w http.ResponseWriter, r *http.Request) {
	l, ok := s.learner(w, r)
	if !ok {
		return
	}
	c, err := l.Course(r.PathValue("subject"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleResetCourse(w http.ResponseWriter, r *http.Request) {
	l, ok := s.learner(w, r)
	if !ok {
		return
	}
	if err := l.ResetCourse(r.Context(), r.PathValue("subject")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNextActionable(w http.ResponseWriter, r *http.Request) {
	l, ok := s.learner(w, r)
	if !ok {
		return
	}
	next, err := l.NextActionable(r.PathValue("subject"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, next)
}

func (s *Server) handleCourseStats(w http.ResponseWriter, r *http.Request) {
	l, ok := s.learner(w, r)
	if !ok {
		return
	}
	stats, err := l.CourseStats(r.PathValue("subject"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	l, ok := s.learner(w, r)
	if !ok {
		return
	}
	p, err := l.Progress(r.PathValue("subject"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

type minutesRequest struct {
	Minutes int `json:"minutes" validate:"min=1,max=1440"`
}

func (s *Server) handleStudyTime(w http.ResponseWriter, r *http.Request) {
	l, ok := s.learner(w, r)
	if !ok {
		return
	}
	var req minutesRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	p, err := l.RecordStudyTime(r.Context(), r.PathValue("subject"), req.Minutes)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

type weeklyGoalRequest struct {
	Minutes int `json:"minutes" validate:"min=1,max=10080"`
}

func (s *Server) handleWeeklyGoal(w http.ResponseWriter, r *http.Request) {
	l, ok := s.learner(w, r)
	if !ok {
		return
	}
	var req weeklyGoalRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	subjectID := r.PathValue("subject")
	if err := l.SetWeeklyGoal(r.Context(), subjectID, req.Minutes); err != nil {
		respondError(w, r, err)
		return
	}
	p, err := l.Progress(subjectID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// handleExport streams the course as a spreadsheet. Existence is checked
// first so a missing course still gets a JSON error.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	l, ok := s.learner(w, r)
	if !ok {
		return
	}
	subjectID := r.PathValue("subject")
	if _, err := l.Course(subjectID); err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", l.ID()+"-"+subjectID+".xlsx"))
	if err := l.ExportWorkbook(w, subjectID); err != nil {
		respondError(w, r, err)
	}
}

func (s *Server) handleGetEconomy(w http.ResponseWriter, r *http.Request) {
	l, ok := s.learner(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, l.Economy())
}

type heartsOp func(*learner.Learner, *http.Request) (economy.State, error)

func heartsLose(l *learner.Learner, r *http.Request) (economy.State, error) {
	return l.LoseHeart(r.Context())
}

func heartsAdd(l *learner.Learner, r *http.Request) (economy.State, error) {
	return l.AddHeart(r.Context())
}

func heartsReset(l *learner.Learner, r *http.Request) (economy.State, error) {
	return l.ResetHearts(r.Context())
}

func (s *Server) handleHearts(op heartsOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l, ok := s.learner(w, r)
		if !ok {
			return
		}
		st, err := op(l, r)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, st)
	}
}

type rewardRequest struct {
	Score int `json:"score" validate:"min=0"`
	Total int `json:"total" validate:"min=1"`
}

type rewardResponse struct {
	Reward economy.Reward `json:"reward"`
	State  economy.State  `json:"state"`
}

func (s *Server) handleGrantReward(w http.ResponseWriter, r *http.Request) {
	l, ok := s.learner(w, r)
	if !ok {
		return
	}
	var req rewardRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	reward, err := l.GrantReward(r.Context(), req.Score, req.Total)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, rewardResponse{Reward: reward, State: l.Economy()})
}
