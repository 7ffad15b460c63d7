// Package content produces lesson text and exercises for a session. Content
// comes from a generative provider when one is available and from a
// deterministic local builder otherwise.
package content

import (
	"context"
	"errors"
	"fmt"

	"github.com/p-n-ai/pai-courseware/internal/curriculum"
	"github.com/p-n-ai/pai-courseware/internal/exercise"
)

var (
	// ErrContentUnavailable is returned when generation failed, timed out or
	// is over budget. Callers fall back to local content.
	ErrContentUnavailable = errors.New("content unavailable")

	// ErrNoTopicContext is returned when there is nothing to build fallback
	// content from.
	ErrNoTopicContext = errors.New("no topic context")
)

// Request describes what a session needs content for. Checkpoint requests
// set Checkpoint and carry the unit's lessons in UnitLessons; lesson
// requests set Lesson.
type Request struct {
	LearnerID    string
	SubjectID    string
	SubjectTitle string
	UnitID       string
	UnitTitle    string
	Lesson       curriculum.Lesson
	Checkpoint   *curriculum.Assessment
	UnitLessons  []curriculum.Lesson
	Count        int
}

// IsCheckpoint reports whether the request is for a unit checkpoint.
func (r Request) IsCheckpoint() bool {
	return r.Checkpoint != nil
}

// Title is the name of the lesson or checkpoint.
func (r Request) Title() string {
	if r.Checkpoint != nil {
		return r.Checkpoint.Title
	}
	return r.Lesson.Title
}

// ItemID is the lesson id, or the checkpoint id for checkpoint requests.
func (r Request) ItemID() string {
	if r.Checkpoint != nil {
		return r.Checkpoint.ID
	}
	return r.Lesson.ID
}

// Topic gathers everything content can be built from. A checkpoint covers
// every lesson of its unit.
func (r Request) Topic() curriculum.Lesson {
	if r.Checkpoint == nil {
		return r.Lesson
	}
	t := curriculum.Lesson{ID: r.Checkpoint.ID, Title: r.Checkpoint.Title}
	for _, l := range r.UnitLessons {
		t.Objectives = append(t.Objectives, l.Objectives...)
		t.KeyTerms = append(t.KeyTerms, l.KeyTerms...)
		t.Topics = append(t.Topics, l.Topics...)
		if t.Difficulty == "" {
			t.Difficulty = l.Difficulty
		}
	}
	return t
}

// LessonText is the instruction shown before practice.
type LessonText struct {
	Title    string               `json:"title"`
	Body     string               `json:"body"`
	KeyTerms []curriculum.KeyTerm `json:"key_terms,omitempty"`
	Fallback bool                 `json:"fallback,omitempty"`
}

// Generator produces content for a request.
type Generator interface {
	GenerateLesson(ctx context.Context, req Request) (LessonText, error)
	GenerateExercises(ctx context.Context, req Request) ([]exercise.Exercise, error)
}

// Unavailable is the Generator used when no provider is configured.
type Unavailable struct{}

func (Unavailable) GenerateLesson(_ context.Context, req Request) (LessonText, error) {
	return LessonText{}, fmt.Errorf("generate lesson %s: %w", req.ItemID(), ErrContentUnavailable)
}

func (Unavailable) GenerateExercises(_ context.Context, req Request) ([]exercise.Exercise, error) {
	return nil, fmt.Errorf("generate exercises %s: %w", req.ItemID(), ErrContentUnavailable)
}
