// Package progress tracks a learner's course through a subject: what is
// unlocked, what is complete, and what to do next.
package progress

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/p-n-ai/pai-courseware/internal/curriculum"
)

const defaultWeeklyGoalMinutes = 60

var (
	// ErrNoCourse is returned when the learner has not started the subject yet.
	ErrNoCourse = errors.New("course not found")

	// ErrNotFound is returned when a unit or lesson id is not part of the course.
	ErrNotFound = errors.New("not found")

	// ErrPrecondition is returned for operations the current state forbids,
	// such as completing work in a locked unit.
	ErrPrecondition = errors.New("progress precondition violated")
)

// SubjectSource resolves subjects. *curriculum.Catalog satisfies it.
type SubjectSource interface {
	GetSubject(id string) (curriculum.Subject, error)
}

// EngineConfig holds dependencies for the progression engine.
type EngineConfig struct {
	Catalog           SubjectSource
	Now               func() time.Time // defaults to time.Now
	WeeklyGoalMinutes int              // goal for new courses (default 60)
}

// Engine owns every Course and Progress record of one learner.
type Engine struct {
	mu         sync.Mutex
	catalog    SubjectSource
	now        func() time.Time
	weeklyGoal int
	records    map[string]*Record
}

// NewEngine creates a progression engine.
func NewEngine(cfg EngineConfig) *Engine {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	goal := cfg.WeeklyGoalMinutes
	if goal <= 0 {
		goal = defaultWeeklyGoalMinutes
	}
	return &Engine{
		catalog:    cfg.Catalog,
		now:        now,
		weeklyGoal: goal,
		records:    make(map[string]*Record),
	}
}

// MaterializeCourse builds the learner's course for a subject from the
// catalog. If the course already exists it is returned unchanged.
func (e *Engine) MaterializeCourse(subjectID string) (Course, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if rec, ok := e.records[subjectID]; ok {
		return rec.Course.Clone(), nil
	}
	if e.catalog == nil {
		return Course{}, fmt.Errorf("materialize course %s: no catalog configured", subjectID)
	}

	subject, err := e.catalog.GetSubject(subjectID)
	if err != nil {
		return Course{}, fmt.Errorf("materialize course %s: %w", subjectID, err)
	}

	now := e.now()
	rec := &Record{
		Course: newCourse(subject, now),
		Progress: Progress{
			WeeklyGoalMinutes: e.weeklyGoal,
			WeekStart:         weekStart(now),
		},
	}
	e.records[subjectID] = rec

	slog.Info("course materialized", "subject_id", subjectID, "units", len(rec.Course.Units))
	return rec.Course.Clone(), nil
}

func newCourse(s curriculum.Subject, now time.Time) Course {
	c := Course{
		SubjectID: s.ID,
		Title:     s.Title,
		Units:     make([]CourseUnit, 0, len(s.Units)),
		CreatedAt: now,
	}
	for i, u := range s.Units {
		cu := CourseUnit{
			ID:       u.ID,
			Ordinal:  u.Ordinal,
			Title:    u.Title,
			Unlocked: i == 0,
			Lessons:  make([]LessonRecord, 0, len(u.Lessons)),
			Checkpoint: CheckpointRecord{
				ID:            u.Checkpoint.ID,
				Title:         u.Checkpoint.Title,
				QuestionCount: u.Checkpoint.QuestionCount,
			},
		}
		for _, l := range u.Lessons {
			cu.Lessons = append(cu.Lessons, LessonRecord{
				ID:               l.ID,
				Title:            l.Title,
				Difficulty:       l.Difficulty,
				EstimatedMinutes: l.EstimatedMinutes,
			})
		}
		c.Units = append(c.Units, cu)
	}
	return c
}

// Course returns a copy of the learner's course for a subject.
func (e *Engine) Course(subjectID string) (Course, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, err := e.record(subjectID)
	if err != nil {
		return Course{}, err
	}
	return rec.Course.Clone(), nil
}

// Progress returns the aggregate counters for a subject.
func (e *Engine) Progress(subjectID string) (Progress, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, err := e.record(subjectID)
	if err != nil {
		return Progress{}, err
	}
	return cloneProgress(rec.Progress), nil
}

// SubjectIDs lists the subjects the learner has a course for.
func (e *Engine) SubjectIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.records))
	for id := range e.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CompleteLesson records a finished lesson. The lesson's unit must be
// unlocked. Every call counts: the engine does not deduplicate repeats.
func (e *Engine) CompleteLesson(subjectID, unitID, lessonID string, score Score) error {
	if err := score.validate(); err != nil {
		return fmt.Errorf("complete lesson %s: %w", lessonID, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	rec, err := e.record(subjectID)
	if err != nil {
		return err
	}
	unit, _, err := rec.Course.unit(unitID)
	if err != nil {
		return err
	}
	if !unit.Unlocked {
		slog.Warn("lesson completion rejected", "subject_id", subjectID, "unit_id", unitID, "lesson_id", lessonID, "reason", "unit locked")
		return fmt.Errorf("complete lesson %s: unit %s is locked: %w", lessonID, unitID, ErrPrecondition)
	}
	lesson, err := unit.lesson(lessonID)
	if err != nil {
		return err
	}

	now := e.now()
	lesson.Completion = complete(lesson.Completion, score, now)

	rec.Progress.TotalLessonsCompleted++
	rec.Progress.TotalScoreSum += score.Percent()
	rec.Progress.LastStudiedAt = &now

	slog.Info("lesson completed",
		"subject_id", subjectID,
		"unit_id", unitID,
		"lesson_id", lessonID,
		"correct", score.Correct,
		"total", score.Total,
		"attempts", lesson.Attempts,
	)
	return nil
}

// CompleteCheckpoint records a finished checkpoint, completes the unit and
// unlocks the next one. It is the only operation that unlocks units.
func (e *Engine) CompleteCheckpoint(subjectID, unitID string, score Score) error {
	if err := score.validate(); err != nil {
		return fmt.Errorf("complete checkpoint %s: %w", unitID, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	rec, err := e.record(subjectID)
	if err != nil {
		return err
	}
	unit, idx, err := rec.Course.unit(unitID)
	if err != nil {
		return err
	}
	if !unit.Unlocked {
		slog.Warn("checkpoint completion rejected", "subject_id", subjectID, "unit_id", unitID, "reason", "unit locked")
		return fmt.Errorf("complete checkpoint %s: unit is locked: %w", unitID, ErrPrecondition)
	}

	now := e.now()
	unit.Checkpoint.Completion = complete(unit.Checkpoint.Completion, score, now)
	unit.Completed = true

	if idx+1 < len(rec.Course.Units) && !rec.Course.Units[idx+1].Unlocked {
		rec.Course.Units[idx+1].Unlocked = true
		slog.Info("unit unlocked", "subject_id", subjectID, "unit_id", rec.Course.Units[idx+1].ID)
	}

	rec.Progress.TotalCheckpointsCompleted++
	rec.Progress.LastStudiedAt = &now

	slog.Info("checkpoint completed",
		"subject_id", subjectID,
		"unit_id", unitID,
		"correct", score.Correct,
		"total", score.Total,
	)
	return nil
}

func complete(c Completion, score Score, now time.Time) Completion {
	c.Completed = true
	c.Score = &score
	c.Attempts++
	c.CompletedAt = &now
	return c
}

// NextActionable scans units in ordinal order and returns the first
// outstanding lesson, or the checkpoint once every lesson of that unit is
// done. Locked units are skipped.
func (e *Engine) NextActionable(subjectID string) (Actionable, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, err := e.record(subjectID)
	if err != nil {
		return Actionable{}, err
	}
	return nextActionable(rec.Course), nil
}

func nextActionable(c Course) Actionable {
	for _, u := range c.Units {
		if !u.Unlocked || u.Completed {
			continue
		}
		for _, l := range u.Lessons {
			if !l.Completed {
				return Actionable{
					Kind:        ActionLesson,
					UnitID:      u.ID,
					UnitOrdinal: u.Ordinal,
					LessonID:    l.ID,
					Title:       l.Title,
				}
			}
		}
		return Actionable{
			Kind:         ActionCheckpoint,
			UnitID:       u.ID,
			UnitOrdinal:  u.Ordinal,
			CheckpointID: u.Checkpoint.ID,
			Title:        u.Checkpoint.Title,
		}
	}
	return Actionable{Kind: ActionNone}
}

// UnitState returns the derived state of one unit.
func (e *Engine) UnitState(subjectID, unitID string) (UnitState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, err := e.record(subjectID)
	if err != nil {
		return "", err
	}
	unit, _, err := rec.Course.unit(unitID)
	if err != nil {
		return "", err
	}
	return unit.State(), nil
}

// ResetCourse discards the course and progress for a subject. Resetting a
// subject that was never started is a no-op.
func (e *Engine) ResetCourse(subjectID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.records[subjectID]; ok {
		delete(e.records, subjectID)
		slog.Info("course reset", "subject_id", subjectID)
	}
}

// RecordStudyTime adds minutes to this week's study time, starting a new week
// when the calendar has moved past the stored week's Monday.
func (e *Engine) RecordStudyTime(subjectID string, minutes int) (Progress, error) {
	if minutes <= 0 {
		return Progress{}, fmt.Errorf("record study time %d minutes: %w", minutes, ErrPrecondition)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	rec, err := e.record(subjectID)
	if err != nil {
		return Progress{}, err
	}

	now := e.now()
	if ws := weekStart(now); ws.After(rec.Progress.WeekStart) {
		rec.Progress.WeekStart = ws
		rec.Progress.MinutesStudiedThisWeek = 0
	}
	rec.Progress.MinutesStudiedThisWeek += minutes
	rec.Progress.LastStudiedAt = &now
	return cloneProgress(rec.Progress), nil
}

// SetWeeklyGoal changes the weekly study goal for a subject.
func (e *Engine) SetWeeklyGoal(subjectID string, minutes int) error {
	if minutes <= 0 {
		return fmt.Errorf("set weekly goal %d minutes: %w", minutes, ErrPrecondition)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	rec, err := e.record(subjectID)
	if err != nil {
		return err
	}
	rec.Progress.WeeklyGoalMinutes = minutes
	return nil
}

// Snapshot returns the persisted form of a subject.
func (e *Engine) Snapshot(subjectID string) (Record, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, err := e.record(subjectID)
	if err != nil {
		return Record{}, err
	}
	return Record{Course: rec.Course.Clone(), Progress: cloneProgress(rec.Progress)}, nil
}

// Restore installs a persisted record, replacing any course for the same
// subject. Records that violate the unlock invariant are rejected.
func (e *Engine) Restore(r Record) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("restore course: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	rec := Record{Course: r.Course.Clone(), Progress: cloneProgress(r.Progress)}
	e.records[r.Course.SubjectID] = &rec
	return nil
}

func (e *Engine) record(subjectID string) (*Record, error) {
	rec, ok := e.records[subjectID]
	if !ok {
		return nil, fmt.Errorf("subject %s: %w", subjectID, ErrNoCourse)
	}
	return rec, nil
}

func cloneProgress(p Progress) Progress {
	if p.LastStudiedAt != nil {
		t := *p.LastStudiedAt
		p.LastStudiedAt = &t
	}
	return p
}

// weekStart returns midnight UTC of the Monday on or before t.
func weekStart(t time.Time) time.Time {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7
	y, m, d := t.AddDate(0, 0, -offset).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
