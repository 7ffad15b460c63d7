package progress

import (
	"fmt"
	"time"
)

// Score is a graded result: Correct answers out of Total.
type Score struct {
	Correct int `json:"correct"`
	Total   int `json:"total"`
}

// Percent returns the score as a percentage in [0, 100].
func (s Score) Percent() float64 {
	if s.Total <= 0 {
		return 0
	}
	return float64(s.Correct) * 100 / float64(s.Total)
}

func (s Score) validate() error {
	if s.Total <= 0 || s.Correct < 0 || s.Correct > s.Total {
		return fmt.Errorf("score %d/%d: %w", s.Correct, s.Total, ErrPrecondition)
	}
	return nil
}

// Completion is the runtime state shared by lessons and checkpoints.
type Completion struct {
	Completed   bool       `json:"completed"`
	Score       *Score     `json:"score"`
	Attempts    int        `json:"attempts"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// LessonRecord is a catalog lesson plus the learner's result on it.
type LessonRecord struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	Difficulty       string `json:"difficulty,omitempty"`
	EstimatedMinutes int    `json:"estimated_minutes,omitempty"`
	Completion
}

// CheckpointRecord is a unit checkpoint plus the learner's result on it.
type CheckpointRecord struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	QuestionCount int    `json:"question_count,omitempty"`
	Completion
}

// CourseUnit is a catalog unit augmented with unlock and completion flags.
type CourseUnit struct {
	ID         string           `json:"id"`
	Ordinal    int              `json:"ordinal"`
	Title      string           `json:"title"`
	Unlocked   bool             `json:"unlocked"`
	Completed  bool             `json:"completed"`
	Lessons    []LessonRecord   `json:"lessons"`
	Checkpoint CheckpointRecord `json:"checkpoint"`
}

// Course is one learner's mutable copy of a subject.
type Course struct {
	SubjectID string       `json:"subject_id"`
	Title     string       `json:"title"`
	Units     []CourseUnit `json:"units"`
	CreatedAt time.Time    `json:"created_at"`
}

// Clone returns a deep copy.
func (c Course) Clone() Course {
	out := c
	out.Units = make([]CourseUnit, len(c.Units))
	for i, u := range c.Units {
		u.Lessons = append([]LessonRecord(nil), u.Lessons...)
		for j := range u.Lessons {
			u.Lessons[j].Completion = u.Lessons[j].Completion.clone()
		}
		u.Checkpoint.Completion = u.Checkpoint.Completion.clone()
		out.Units[i] = u
	}
	return out
}

func (c Completion) clone() Completion {
	if c.Score != nil {
		s := *c.Score
		c.Score = &s
	}
	if c.CompletedAt != nil {
		t := *c.CompletedAt
		c.CompletedAt = &t
	}
	return c
}

func (c *Course) unit(id string) (*CourseUnit, int, error) {
	for i := range c.Units {
		if c.Units[i].ID == id {
			return &c.Units[i], i, nil
		}
	}
	return nil, -1, fmt.Errorf("unit %s in course %s: %w", id, c.SubjectID, ErrNotFound)
}

func (u *CourseUnit) lesson(id string) (*LessonRecord, error) {
	for i := range u.Lessons {
		if u.Lessons[i].ID == id {
			return &u.Lessons[i], nil
		}
	}
	return nil, fmt.Errorf("lesson %s in unit %s: %w", id, u.ID, ErrNotFound)
}

// Progress holds the per-subject aggregate counters.
type Progress struct {
	TotalLessonsCompleted     int        `json:"total_lessons_completed"`
	TotalCheckpointsCompleted int        `json:"total_checkpoints_completed"`
	TotalScoreSum             float64    `json:"total_score_sum"`
	LastStudiedAt             *time.Time `json:"last_studied_at,omitempty"`
	MinutesStudiedThisWeek    int        `json:"minutes_studied_this_week"`
	WeeklyGoalMinutes         int        `json:"weekly_goal_minutes"`
	WeekStart                 time.Time  `json:"week_start"`
}

// UnitState is the derived state of a unit.
type UnitState string

const (
	UnitLocked     UnitState = "locked"
	UnitUnlocked   UnitState = "unlocked"
	UnitInProgress UnitState = "in_progress"
	UnitCompleted  UnitState = "completed"
)

// State derives the unit's position in its lifecycle.
func (u CourseUnit) State() UnitState {
	switch {
	case !u.Unlocked:
		return UnitLocked
	case u.Completed:
		return UnitCompleted
	}
	for _, l := range u.Lessons {
		if l.Completed {
			return UnitInProgress
		}
	}
	if u.Checkpoint.Attempts > 0 {
		return UnitInProgress
	}
	return UnitUnlocked
}

// ActionKind says what NextActionable points at.
type ActionKind string

const (
	ActionLesson     ActionKind = "lesson"
	ActionCheckpoint ActionKind = "checkpoint"
	ActionNone       ActionKind = "none"
)

// Actionable is the next item the learner should work on.
type Actionable struct {
	Kind         ActionKind `json:"kind"`
	UnitID       string     `json:"unit_id,omitempty"`
	UnitOrdinal  int        `json:"unit_ordinal,omitempty"`
	LessonID     string     `json:"lesson_id,omitempty"`
	CheckpointID string     `json:"checkpoint_id,omitempty"`
	Title        string     `json:"title,omitempty"`
}

// Record is the persisted form of one subject's Course and Progress.
type Record struct {
	Course   Course   `json:"course"`
	Progress Progress `json:"progress"`
}

// Validate reports whether r describes a reachable state: ordinals run
// 1..n in order and every unlocked unit after the first follows a completed
// checkpoint.
func (r Record) Validate() error {
	if r.Course.SubjectID == "" {
		return fmt.Errorf("record: missing subject id")
	}
	if len(r.Course.Units) == 0 {
		return fmt.Errorf("record %s: no units", r.Course.SubjectID)
	}
	for i, u := range r.Course.Units {
		if u.Ordinal != i+1 {
			return fmt.Errorf("record %s: unit %s has ordinal %d, want %d", r.Course.SubjectID, u.ID, u.Ordinal, i+1)
		}
		if i == 0 && !u.Unlocked {
			return fmt.Errorf("record %s: first unit is locked", r.Course.SubjectID)
		}
		if i > 0 && u.Unlocked != r.Course.Units[i-1].Checkpoint.Completed {
			return fmt.Errorf("record %s: unit %s unlock flag disagrees with previous checkpoint", r.Course.SubjectID, u.ID)
		}
	}
	return nil
}
