// Package session drives one lesson or checkpoint from orientation to
// completion: it fetches exercises, judges answers in order, spends hearts on
// mistakes and records the result exactly once.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-courseware/internal/content"
	"github.com/p-n-ai/pai-courseware/internal/economy"
	"github.com/p-n-ai/pai-courseware/internal/exercise"
	"github.com/p-n-ai/pai-courseware/internal/progress"
)

const (
	defaultExerciseCount     = 4
	defaultGenerationTimeout = 20 * time.Second
)

var (
	// ErrPrecondition is returned for actions that are not valid in the
	// session's current phase.
	ErrPrecondition = errors.New("session precondition violated")

	// ErrAbandoned is returned when work finishes after the session was abandoned.
	// Its result has been discarded.
	ErrAbandoned = errors.New("session abandoned")
)

// Phase is where a session stands.
type Phase string

const (
	PhaseOrientation Phase = "orientation"
	PhaseInstruction Phase = "instruction"
	PhasePractice    Phase = "practice"
	PhaseAssessment  Phase = "assessment"
	PhaseComplete    Phase = "complete"
	PhaseOutOfHearts Phase = "out_of_hearts"
	PhaseAbandoned   Phase = "abandoned"
	PhaseFailed      Phase = "failed"
)

// Terminal reports whether no further action is possible.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseComplete, PhaseOutOfHearts, PhaseAbandoned, PhaseFailed:
		return true
	}
	return false
}

// ProgressRecorder is the part of the progression engine a session writes to.
type ProgressRecorder interface {
	CompleteLesson(subjectID, unitID, lessonID string, score progress.Score) error
	CompleteCheckpoint(subjectID, unitID string, score progress.Score) error
}

// Config tunes a session. Zero values take defaults.
type Config struct {
	ExerciseCount     int
	GenerationTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.ExerciseCount <= 0 {
		c.ExerciseCount = defaultExerciseCount
	}
	if c.GenerationTimeout <= 0 {
		c.GenerationTimeout = defaultGenerationTimeout
	}
	return c
}

// Deps are the collaborators a session calls.
type Deps struct {
	Progress ProgressRecorder
	Economy  *economy.Economy
	Content  content.Generator
	Events   EventLogger
}

// Judgement is the outcome of one submitted answer.
type Judgement struct {
	ExerciseID  string `json:"exercise_id"`
	Correct     bool   `json:"correct"`
	Dropped     bool   `json:"dropped,omitempty"`
	Explanation string `json:"explanation,omitempty"`
	Hearts      int    `json:"hearts"`
	Phase       Phase  `json:"phase"`
}

// Result is what a finished session recorded.
type Result struct {
	Score  progress.Score `json:"score"`
	Reward economy.Reward `json:"reward"`
	Hearts int            `json:"hearts"`
}

// Status is a read-only view of a session.
type Status struct {
	ID         string              `json:"id"`
	LearnerID  string              `json:"learner_id"`
	SubjectID  string              `json:"subject_id"`
	UnitID     string              `json:"unit_id"`
	ItemID     string              `json:"item_id"`
	Checkpoint bool                `json:"checkpoint"`
	Phase      Phase               `json:"phase"`
	Lesson     *content.LessonText `json:"lesson,omitempty"`
	Index      int                 `json:"index"`
	Total      int                 `json:"total"`
	Correct    int                 `json:"correct"`
	Judged     bool                `json:"judged"`
	Current    *exercise.View      `json:"current,omitempty"`
	Hearts     int                 `json:"hearts"`
	MaxHearts  int                 `json:"max_hearts"`
	Fallback   bool                `json:"fallback"`
	Result     *Result             `json:"result,omitempty"`
}

// Session is one pass through a lesson or checkpoint. It is safe for
// concurrent use; judgements are still applied strictly one at a time.
type Session struct {
	id   string
	cfg  Config
	deps Deps
	req  content.Request

	mu         sync.Mutex
	phase      Phase
	resume     Phase
	lesson     *content.LessonText
	exercises  []exercise.Exercise
	index      int
	judged     bool
	correct    int
	pool       *economy.HeartsPool
	fallback   bool
	generating bool
	generation uint64
	cancelGen  context.CancelFunc
	finished   bool
	result     *Result
}

// New creates a session in the orientation phase.
func New(cfg Config, deps Deps, req content.Request) (*Session, error) {
	if deps.Progress == nil || deps.Economy == nil {
		return nil, fmt.Errorf("new session: progress and economy are required")
	}
	if req.SubjectID == "" || req.UnitID == "" || req.ItemID() == "" {
		return nil, fmt.Errorf("new session: subject, unit and item are required")
	}
	if deps.Content == nil {
		deps.Content = content.Unavailable{}
	}
	if deps.Events == nil {
		deps.Events = NopEventLogger{}
	}
	cfg = cfg.withDefaults()
	req.Count = cfg.ExerciseCount

	return &Session{
		id:    uuid.NewString(),
		cfg:   cfg,
		deps:  deps,
		req:   req,
		phase: PhaseOrientation,
	}, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Session) statusLocked() Status {
	st := Status{
		ID:         s.id,
		LearnerID:  s.req.LearnerID,
		SubjectID:  s.req.SubjectID,
		UnitID:     s.req.UnitID,
		ItemID:     s.req.ItemID(),
		Checkpoint: s.req.IsCheckpoint(),
		Phase:      s.phase,
		Lesson:     s.lesson,
		Index:      s.index,
		Total:      len(s.exercises),
		Correct:    s.correct,
		Judged:     s.judged,
		MaxHearts:  s.deps.Economy.MaxHearts(),
		Fallback:   s.fallback,
		Result:     s.result,
	}
	if s.pool != nil {
		st.Hearts = s.pool.Hearts()
	} else {
		st.Hearts = st.MaxHearts
	}
	if s.phase == PhasePractice && s.index < len(s.exercises) {
		v := exercise.Present(s.exercises[s.index])
		st.Current = &v
	}
	return st
}

// Begin moves from orientation to instruction and loads the lesson text.
// Generated text is preferred; a locally built version is used if generation
// fails. If neither is possible the session fails.
func (s *Session) Begin(ctx context.Context) (content.LessonText, error) {
	s.mu.Lock()
	if s.phase != PhaseOrientation || s.generating {
		phase := s.phase
		s.mu.Unlock()
		return content.LessonText{}, s.precondition("begin", phase)
	}
	token, genCtx := s.startGenerationLocked(ctx)
	s.mu.Unlock()

	genCtx, cancel := context.WithTimeout(genCtx, s.cfg.GenerationTimeout)
	text, genErr := s.deps.Content.GenerateLesson(genCtx, s.req)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.endGenerationLocked(token); err != nil {
		return content.LessonText{}, err
	}

	if genErr != nil || text.Body == "" {
		if genErr != nil {
			slog.Warn("lesson generation failed, using fallback", "session_id", s.id, "item_id", s.req.ItemID(), "error", genErr)
		}
		fb, err := content.FallbackLesson(s.req)
		if err != nil {
			s.failLocked(err)
			return content.LessonText{}, fmt.Errorf("begin session %s: %w", s.id, err)
		}
		text = fb
	}

	s.lesson = &text
	s.phase = PhaseInstruction
	s.logEvent(EventSessionStarted, map[string]any{"fallback": text.Fallback})
	return text, nil
}

// BeginPractice moves from instruction into practice. On first entry it
// fetches the exercise set and installs a fresh hearts pool; after
// ReturnToInstruction it resumes where the learner left off.
func (s *Session) BeginPractice(ctx context.Context) (Status, error) {
	s.mu.Lock()
	if s.phase != PhaseInstruction || s.generating {
		phase := s.phase
		s.mu.Unlock()
		return Status{}, s.precondition("begin practice", phase)
	}
	if s.exercises != nil {
		if err := s.checkHeartsLocked("begin practice"); err != nil {
			s.mu.Unlock()
			return Status{}, err
		}
		s.phase = s.resume
		st := s.statusLocked()
		s.mu.Unlock()
		return st, nil
	}
	token, genCtx := s.startGenerationLocked(ctx)
	s.mu.Unlock()

	genCtx, cancel := context.WithTimeout(genCtx, s.cfg.GenerationTimeout)
	generated, genErr := s.deps.Content.GenerateExercises(genCtx, s.req)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.endGenerationLocked(token); err != nil {
		return Status{}, err
	}

	exs := s.usable(generated)
	if genErr != nil || len(exs) == 0 {
		slog.Warn("exercise generation unusable, using fallback",
			"session_id", s.id,
			"item_id", s.req.ItemID(),
			"generated", len(generated),
			"error", genErr,
		)
		fb, err := content.Fallback(s.req)
		if err != nil {
			s.failLocked(err)
			return Status{}, fmt.Errorf("begin practice %s: %w", s.id, err)
		}
		exs = fb
		s.fallback = true
	}

	s.exercises = exs
	s.index = 0
	s.judged = false
	s.correct = 0
	s.pool = s.deps.Economy.BeginSession()
	s.phase = PhasePractice
	s.logEvent(EventPracticeStarted, map[string]any{"count": len(exs), "fallback": s.fallback})
	return s.statusLocked(), nil
}

// usable drops exercises that cannot be judged and trims to the configured count.
func (s *Session) usable(in []exercise.Exercise) []exercise.Exercise {
	out := make([]exercise.Exercise, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, ex := range in {
		if ex == nil {
			continue
		}
		if err := ex.Validate(); err != nil {
			slog.Warn("dropping invalid exercise", "session_id", s.id, "exercise_id", ex.ExerciseID(), "error", err)
			continue
		}
		if seen[ex.ExerciseID()] {
			continue
		}
		seen[ex.ExerciseID()] = true
		out = append(out, ex)
		if len(out) == s.cfg.ExerciseCount {
			break
		}
	}
	return out
}

// Submit judges ans against the current exercise. A wrong answer costs one
// heart before the judgement is returned; losing the last heart ends the
// session as out of hearts. An exercise that turns out to be unjudgeable is
// dropped without cost.
func (s *Session) Submit(ans exercise.Answer) (Judgement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkHeartsLocked("submit"); err != nil {
		return Judgement{}, err
	}
	if s.phase != PhasePractice || s.judged || s.index >= len(s.exercises) {
		return Judgement{}, s.precondition("submit", s.phase)
	}
	ex := s.exercises[s.index]

	correct, err := exercise.IsCorrect(ex, ans)
	if errors.Is(err, exercise.ErrInvalidExercise) {
		return s.dropCurrentLocked(ex, err)
	}
	if err != nil {
		return Judgement{}, fmt.Errorf("submit %s: %w", ex.ExerciseID(), err)
	}

	s.judged = true
	if correct {
		s.correct++
	} else {
		s.pool.Lose()
	}
	hearts := s.pool.Hearts()
	s.logEvent(EventAnswerJudged, map[string]any{"exercise_id": ex.ExerciseID(), "correct": correct, "hearts": hearts})

	if hearts == 0 {
		s.endOutOfHeartsLocked()
	}

	return Judgement{
		ExerciseID:  ex.ExerciseID(),
		Correct:     correct,
		Explanation: ex.Explain(),
		Hearts:      hearts,
		Phase:       s.phase,
	}, nil
}

func (s *Session) dropCurrentLocked(ex exercise.Exercise, cause error) (Judgement, error) {
	slog.Warn("dropping unjudgeable exercise", "session_id", s.id, "exercise_id", ex.ExerciseID(), "error", cause)
	s.logEvent(EventExerciseDropped, map[string]any{"exercise_id": ex.ExerciseID()})

	s.exercises = append(s.exercises[:s.index:s.index], s.exercises[s.index+1:]...)
	if len(s.exercises) == 0 {
		fb, err := content.Fallback(s.req)
		if err != nil {
			s.failLocked(err)
			return Judgement{}, fmt.Errorf("refill exercises %s: %w", s.id, err)
		}
		s.exercises = fb
		s.fallback = true
		s.index = 0
	}
	if s.index >= len(s.exercises) {
		s.phase = PhaseAssessment
	}
	return Judgement{
		ExerciseID: ex.ExerciseID(),
		Dropped:    true,
		Hearts:     s.pool.Hearts(),
		Phase:      s.phase,
	}, nil
}

// Advance moves past a judged exercise. After the last one the session
// enters assessment.
func (s *Session) Advance() (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkHeartsLocked("advance"); err != nil {
		return Status{}, err
	}
	if s.phase != PhasePractice || !s.judged {
		return Status{}, s.precondition("advance", s.phase)
	}
	s.index++
	s.judged = false
	if s.index >= len(s.exercises) {
		s.phase = PhaseAssessment
	}
	return s.statusLocked(), nil
}

// ReturnToInstruction goes back to the lesson text from practice or
// assessment. Exercises, answers so far and hearts are kept.
func (s *Session) ReturnToInstruction() (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhasePractice && s.phase != PhaseAssessment {
		return Status{}, s.precondition("return to instruction", s.phase)
	}
	s.resume = s.phase
	s.phase = PhaseInstruction
	return s.statusLocked(), nil
}

// Finish records the session: the lesson or checkpoint completion first, then
// the reward. It succeeds at most once.
func (s *Session) Finish() (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		slog.Warn("session already finished", "session_id", s.id)
		return Result{}, fmt.Errorf("finish %s: already recorded: %w", s.id, ErrPrecondition)
	}
	if err := s.checkHeartsLocked("finish"); err != nil {
		return Result{}, err
	}
	if s.phase != PhaseAssessment {
		return Result{}, s.precondition("finish", s.phase)
	}

	score := progress.Score{Correct: s.correct, Total: len(s.exercises)}
	var err error
	if s.req.IsCheckpoint() {
		err = s.deps.Progress.CompleteCheckpoint(s.req.SubjectID, s.req.UnitID, score)
	} else {
		err = s.deps.Progress.CompleteLesson(s.req.SubjectID, s.req.UnitID, s.req.Lesson.ID, score)
	}
	if err != nil {
		return Result{}, fmt.Errorf("finish %s: %w", s.id, err)
	}
	s.finished = true

	reward, err := s.deps.Economy.GrantReward(score.Correct, score.Total)
	if err != nil {
		return Result{}, fmt.Errorf("finish %s: %w", s.id, err)
	}

	res := Result{Score: score, Reward: reward, Hearts: s.pool.Hearts()}
	s.result = &res
	s.phase = PhaseComplete
	s.logEvent(EventSessionCompleted, map[string]any{
		"correct": score.Correct,
		"total":   score.Total,
		"xp":      reward.XP,
		"gems":    reward.Gems,
	})
	slog.Info("session completed",
		"session_id", s.id,
		"learner_id", s.req.LearnerID,
		"item_id", s.req.ItemID(),
		"correct", score.Correct,
		"total", score.Total,
	)
	return res, nil
}

// Abandon ends the session without recording anything. In-flight generation
// is cancelled and its result discarded. Abandoning twice is a no-op.
func (s *Session) Abandon() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhaseAbandoned {
		return nil
	}
	if s.phase.Terminal() {
		return s.precondition("abandon", s.phase)
	}
	s.phase = PhaseAbandoned
	s.generation++
	s.cancelGenerationLocked()
	s.logEvent(EventSessionAbandoned, map[string]any{"index": s.index})
	return nil
}

// checkHeartsLocked ends a practising session whose pool was emptied outside
// Submit, for example through the economy directly.
func (s *Session) checkHeartsLocked(action string) error {
	if s.pool == nil || !s.pool.Empty() {
		return nil
	}
	if s.phase != PhasePractice && s.phase != PhaseAssessment && s.phase != PhaseInstruction {
		return nil
	}
	s.endOutOfHeartsLocked()
	return s.precondition(action, s.phase)
}

func (s *Session) endOutOfHeartsLocked() {
	s.phase = PhaseOutOfHearts
	s.cancelGenerationLocked()
	s.logEvent(EventOutOfHearts, map[string]any{"correct": s.correct, "index": s.index})
	slog.Info("session out of hearts", "session_id", s.id, "learner_id", s.req.LearnerID)
}

func (s *Session) startGenerationLocked(ctx context.Context) (uint64, context.Context) {
	s.generation++
	s.generating = true
	genCtx, cancel := context.WithCancel(ctx)
	s.cancelGen = cancel
	return s.generation, genCtx
}

// endGenerationLocked reports ErrAbandoned if the session moved on while
// generation was in flight.
func (s *Session) endGenerationLocked(token uint64) error {
	if token != s.generation || s.phase == PhaseAbandoned {
		slog.Info("discarding content for abandoned session", "session_id", s.id)
		return fmt.Errorf("session %s: %w", s.id, ErrAbandoned)
	}
	s.generating = false
	s.cancelGenerationLocked()
	return nil
}

func (s *Session) cancelGenerationLocked() {
	if s.cancelGen != nil {
		s.cancelGen()
		s.cancelGen = nil
	}
}

func (s *Session) failLocked(err error) {
	s.phase = PhaseFailed
	s.generating = false
	s.logEvent(EventSessionFailed, map[string]any{"error": err.Error()})
	slog.Error("session failed", "session_id", s.id, "item_id", s.req.ItemID(), "error", err)
}

func (s *Session) precondition(action string, phase Phase) error {
	slog.Warn("rejected session action", "session_id", s.id, "action", action, "phase", phase)
	return fmt.Errorf("%s in phase %s: %w", action, phase, ErrPrecondition)
}

func (s *Session) logEvent(eventType string, data map[string]any) {
	err := s.deps.Events.LogEvent(Event{
		SessionID: s.id,
		LearnerID: s.req.LearnerID,
		EventType: eventType,
		SubjectID: s.req.SubjectID,
		ItemID:    s.req.ItemID(),
		Data:      data,
	})
	if err != nil {
		slog.Warn("failed to log session event", "type", eventType, "session_id", s.id, "error", err)
	}
}
