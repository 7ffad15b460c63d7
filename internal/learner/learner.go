// Package learner is the composition root for one learner: it wires the
// progression engine, the economy and live sessions together and persists
// after every mutation.
package learner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/p-n-ai/pai-courseware/internal/content"
	"github.com/p-n-ai/pai-courseware/internal/curriculum"
	"github.com/p-n-ai/pai-courseware/internal/economy"
	"github.com/p-n-ai/pai-courseware/internal/exercise"
	"github.com/p-n-ai/pai-courseware/internal/progress"
	"github.com/p-n-ai/pai-courseware/internal/session"
	"github.com/p-n-ai/pai-courseware/internal/state"
)

var (
	// ErrInvalidLearner is returned for malformed learner ids.
	ErrInvalidLearner = errors.New("invalid learner id")

	// ErrSessionNotFound is returned for unknown session ids.
	ErrSessionNotFound = errors.New("session not found")
)

// Services are shared by every learner.
type Services struct {
	Catalog           *curriculum.Catalog
	Content           content.Generator
	Events            session.EventLogger
	Repo              *state.Repository
	Economy           economy.Config
	Session           session.Config
	WeeklyGoalMinutes int
	Now               func() time.Time
}

// Target names the lesson or checkpoint a session is for. An empty LessonID
// means the unit's checkpoint.
type Target struct {
	SubjectID string
	UnitID    string
	LessonID  string
}

// Learner holds one learner's live state.
type Learner struct {
	id      string
	svc     *Services
	engine  *progress.Engine
	economy *economy.Economy

	// saveMu serialises writes to the repository.
	saveMu sync.Mutex

	mu       sync.Mutex
	sessions map[string]*session.Session
	active   string
}

func newLearner(id string, svc *Services) *Learner {
	return &Learner{
		id:  id,
		svc: svc,
		engine: progress.NewEngine(progress.EngineConfig{
			Catalog:           svc.Catalog,
			Now:               svc.Now,
			WeeklyGoalMinutes: svc.WeeklyGoalMinutes,
		}),
		economy:  economy.New(svc.Economy),
		sessions: make(map[string]*session.Session),
	}
}

// load restores persisted records. Absent or corrupt records leave defaults.
// Without a readable global record the subject index is rebuilt by probing
// every catalog subject, so course records outlive a damaged global record.
func (l *Learner) load(ctx context.Context) error {
	g, ok, err := l.svc.Repo.LoadGlobal(ctx, l.id)
	if err != nil {
		return err
	}
	subjects := g.Subjects
	if ok {
		l.economy.Restore(g.Economy)
	} else {
		subjects = l.catalogSubjectIDs()
	}

	for _, sid := range subjects {
		rec, ok, err := l.svc.Repo.LoadSubject(ctx, l.id, sid)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := l.engine.Restore(rec); err != nil {
			slog.Warn("skipping unrestorable course", "learner_id", l.id, "subject_id", sid, "error", err)
		}
	}
	return nil
}

func (l *Learner) catalogSubjectIDs() []string {
	if l.svc.Catalog == nil {
		return nil
	}
	subjects := l.svc.Catalog.Subjects()
	ids := make([]string, 0, len(subjects))
	for _, s := range subjects {
		ids = append(ids, s.ID)
	}
	return ids
}

// ID returns the learner id.
func (l *Learner) ID() string { return l.id }

// MaterializeCourse creates the subject's course if needed and returns it.
func (l *Learner) MaterializeCourse(ctx context.Context, subjectID string) (progress.Course, error) {
	c, err := l.engine.MaterializeCourse(subjectID)
	if err != nil {
		return progress.Course{}, err
	}
	if err := l.saveSubject(ctx, subjectID); err != nil {
		return progress.Course{}, err
	}
	return c, nil
}

func (l *Learner) Course(subjectID string) (progress.Course, error) {
	return l.engine.Course(subjectID)
}

func (l *Learner) Progress(subjectID string) (progress.Progress, error) {
	return l.engine.Progress(subjectID)
}

func (l *Learner) NextActionable(subjectID string) (progress.Actionable, error) {
	return l.engine.NextActionable(subjectID)
}

func (l *Learner) CourseStats(subjectID string) (progress.Stats, error) {
	return l.engine.CourseStats(subjectID)
}

// Subjects lists subjects with a course.
func (l *Learner) Subjects() []string {
	return l.engine.SubjectIDs()
}

// ResetCourse discards a subject's course and its stored record.
func (l *Learner) ResetCourse(ctx context.Context, subjectID string) error {
	l.engine.ResetCourse(subjectID)

	l.saveMu.Lock()
	defer l.saveMu.Unlock()
	if err := l.svc.Repo.DeleteSubject(ctx, l.id, subjectID); err != nil {
		return fmt.Errorf("reset course %s: %w", subjectID, err)
	}
	return l.saveGlobalLocked(ctx)
}

// RecordStudyTime adds study minutes to a subject.
func (l *Learner) RecordStudyTime(ctx context.Context, subjectID string, minutes int) (progress.Progress, error) {
	p, err := l.engine.RecordStudyTime(subjectID, minutes)
	if err != nil {
		return progress.Progress{}, err
	}
	return p, l.saveSubject(ctx, subjectID)
}

// SetWeeklyGoal changes a subject's weekly study goal.
func (l *Learner) SetWeeklyGoal(ctx context.Context, subjectID string, minutes int) error {
	if err := l.engine.SetWeeklyGoal(subjectID, minutes); err != nil {
		return err
	}
	return l.saveSubject(ctx, subjectID)
}

// ExportWorkbook writes the subject's progress report.
func (l *Learner) ExportWorkbook(w io.Writer, subjectID string) error {
	return l.engine.ExportWorkbook(w, subjectID)
}

// Economy returns hearts and ledger.
func (l *Learner) Economy() economy.State {
	return l.economy.Snapshot()
}

// LoseHeart spends one heart from the active pool.
func (l *Learner) LoseHeart(ctx context.Context) (economy.State, error) {
	l.economy.LoseHeart()
	return l.economy.Snapshot(), l.saveGlobal(ctx)
}

// AddHeart returns one heart to the active pool.
func (l *Learner) AddHeart(ctx context.Context) (economy.State, error) {
	l.economy.AddHeart()
	return l.economy.Snapshot(), l.saveGlobal(ctx)
}

// ResetHearts refills the active pool.
func (l *Learner) ResetHearts(ctx context.Context) (economy.State, error) {
	l.economy.ResetHearts()
	return l.economy.Snapshot(), l.saveGlobal(ctx)
}

// GrantReward credits XP and gems for a graded result outside a session.
// Sessions grant their own reward on Finish.
func (l *Learner) GrantReward(ctx context.Context, score, total int) (economy.Reward, error) {
	r, err := l.economy.GrantReward(score, total)
	if err != nil {
		return economy.Reward{}, err
	}
	return r, l.saveGlobal(ctx)
}

// StartSession opens a session for a lesson or checkpoint in an unlocked
// unit. Any other live session of this learner is abandoned first.
func (l *Learner) StartSession(t Target) (*session.Session, error) {
	subject, err := l.svc.Catalog.GetSubject(t.SubjectID)
	if err != nil {
		return nil, err
	}
	st, err := l.engine.UnitState(t.SubjectID, t.UnitID)
	if err != nil {
		return nil, err
	}
	if st == progress.UnitLocked {
		slog.Warn("session rejected for locked unit", "learner_id", l.id, "subject_id", t.SubjectID, "unit_id", t.UnitID)
		return nil, fmt.Errorf("start session: unit %s is locked: %w", t.UnitID, progress.ErrPrecondition)
	}

	req, err := buildRequest(l.id, subject, t)
	if err != nil {
		return nil, err
	}
	s, err := session.New(l.svc.Session, session.Deps{
		Progress: l.engine,
		Economy:  l.economy,
		Content:  l.svc.Content,
		Events:   l.svc.Events,
	}, req)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if prev, ok := l.sessions[l.active]; ok {
		if err := prev.Abandon(); err == nil {
			slog.Info("abandoned previous session", "learner_id", l.id, "session_id", prev.ID())
		}
	}
	for id, old := range l.sessions {
		if old.Phase().Terminal() {
			delete(l.sessions, id)
		}
	}
	l.sessions[s.ID()] = s
	l.active = s.ID()
	return s, nil
}

func buildRequest(learnerID string, subject curriculum.Subject, t Target) (content.Request, error) {
	for _, u := range subject.Units {
		if u.ID != t.UnitID {
			continue
		}
		req := content.Request{
			LearnerID:    learnerID,
			SubjectID:    subject.ID,
			SubjectTitle: subject.Title,
			UnitID:       u.ID,
			UnitTitle:    u.Title,
		}
		if t.LessonID == "" {
			cp := u.Checkpoint
			req.Checkpoint = &cp
			req.UnitLessons = u.Lessons
			return req, nil
		}
		for _, lesson := range u.Lessons {
			if lesson.ID == t.LessonID {
				req.Lesson = lesson
				return req, nil
			}
		}
		return content.Request{}, fmt.Errorf("lesson %s: %w", t.LessonID, curriculum.ErrNotFound)
	}
	return content.Request{}, fmt.Errorf("unit %s: %w", t.UnitID, curriculum.ErrNotFound)
}

// Session returns a live session by id.
func (l *Learner) Session(id string) (*session.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrSessionNotFound)
	}
	return s, nil
}

// Submit judges an answer and persists the heart it may have cost.
func (l *Learner) Submit(ctx context.Context, sessionID string, ans exercise.Answer) (session.Judgement, error) {
	s, err := l.Session(sessionID)
	if err != nil {
		return session.Judgement{}, err
	}
	j, err := s.Submit(ans)
	if err != nil {
		return session.Judgement{}, err
	}
	if !j.Correct && !j.Dropped {
		return j, l.saveGlobal(ctx)
	}
	return j, nil
}

// BeginPractice enters practice and persists the fresh hearts pool.
func (l *Learner) BeginPractice(ctx context.Context, sessionID string) (session.Status, error) {
	s, err := l.Session(sessionID)
	if err != nil {
		return session.Status{}, err
	}
	st, err := s.BeginPractice(ctx)
	if err != nil {
		return session.Status{}, err
	}
	return st, l.saveGlobal(ctx)
}

// Finish records a session and persists course, progress and ledger.
func (l *Learner) Finish(ctx context.Context, sessionID string) (session.Result, error) {
	s, err := l.Session(sessionID)
	if err != nil {
		return session.Result{}, err
	}
	res, err := s.Finish()
	if err != nil {
		return session.Result{}, err
	}
	if err := l.saveSubject(ctx, s.Status().SubjectID); err != nil {
		return res, err
	}
	return res, nil
}

// Abandon ends a session without recording it.
func (l *Learner) Abandon(sessionID string) error {
	s, err := l.Session(sessionID)
	if err != nil {
		return err
	}
	return s.Abandon()
}

// saveSubject writes the subject record and the global record, which carries
// the subject index.
func (l *Learner) saveSubject(ctx context.Context, subjectID string) error {
	rec, err := l.engine.Snapshot(subjectID)
	if err != nil {
		return err
	}

	l.saveMu.Lock()
	defer l.saveMu.Unlock()
	if err := l.svc.Repo.SaveSubject(ctx, l.id, rec); err != nil {
		slog.Error("failed to persist course", "learner_id", l.id, "subject_id", subjectID, "error", err)
		return fmt.Errorf("persist course: %w", err)
	}
	return l.saveGlobalLocked(ctx)
}

func (l *Learner) saveGlobal(ctx context.Context) error {
	l.saveMu.Lock()
	defer l.saveMu.Unlock()
	return l.saveGlobalLocked(ctx)
}

func (l *Learner) saveGlobalLocked(ctx context.Context) error {
	g := state.Global{
		Economy:   l.economy.Snapshot(),
		Subjects:  l.engine.SubjectIDs(),
		UpdatedAt: l.svc.Now(),
	}
	if err := l.svc.Repo.SaveGlobal(ctx, l.id, g); err != nil {
		slog.Error("failed to persist learner", "learner_id", l.id, "error", err)
		return fmt.Errorf("persist learner: %w", err)
	}
	return nil
}

// Registry hands out learners, loading each from the repository on first use.
type Registry struct {
	svc Services

	mu       sync.Mutex
	learners map[string]*Learner
}

// NewRegistry creates a registry. Missing services get in-memory defaults.
func NewRegistry(svc Services) *Registry {
	if svc.Content == nil {
		svc.Content = content.Unavailable{}
	}
	if svc.Events == nil {
		svc.Events = session.NopEventLogger{}
	}
	if svc.Repo == nil {
		svc.Repo = state.NewRepository(state.NewMemoryKV())
	}
	if svc.Now == nil {
		svc.Now = time.Now
	}
	return &Registry{svc: svc, learners: make(map[string]*Learner)}
}

// Get returns the learner, loading persisted state the first time.
func (r *Registry) Get(ctx context.Context, learnerID string) (*Learner, error) {
	if err := ValidateID(learnerID); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.learners[learnerID]; ok {
		return l, nil
	}

	l := newLearner(learnerID, &r.svc)
	if err := l.load(ctx); err != nil {
		return nil, fmt.Errorf("load learner %s: %w", learnerID, err)
	}
	r.learners[learnerID] = l
	slog.Debug("learner loaded", "learner_id", learnerID, "subjects", len(l.Subjects()))
	return l, nil
}

// Ping checks the storage transport.
func (r *Registry) Ping(ctx context.Context) error {
	return r.svc.Repo.Ping(ctx)
}

// Catalog returns the shared curriculum catalog.
func (r *Registry) Catalog() *curriculum.Catalog {
	return r.svc.Catalog
}

// ValidateID checks that id is usable as a storage key segment.
func ValidateID(id string) error {
	if id == "" || len(id) > 128 || strings.ContainsAny(id, "/ \t\n") {
		return fmt.Errorf("%q: %w", id, ErrInvalidLearner)
	}
	return nil
}
