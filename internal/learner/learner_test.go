package learner_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/p-n-ai/pai-courseware/internal/content"
	"github.com/p-n-ai/pai-courseware/internal/curriculum"
	"github.com/p-n-ai/pai-courseware/internal/economy"
	"github.com/p-n-ai/pai-courseware/internal/exercise"
	"github.com/p-n-ai/pai-courseware/internal/learner"
	"github.com/p-n-ai/pai-courseware/internal/progress"
	"github.com/p-n-ai/pai-courseware/internal/session"
	"github.com/p-n-ai/pai-courseware/internal/state"
)

func newServices(t *testing.T, kv state.KV) learner.Services {
	t.Helper()
	catalog, err := curriculum.NewCatalog("")
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	return learner.Services{
		Catalog: catalog,
		Content: content.Unavailable{},
		Repo:    state.NewRepository(kv),
		Economy: economy.DefaultConfig(),
		Now:     func() time.Time { return now },
	}
}

// runFallbackLesson drives a session on fallback content, answering the first
// exercise wrong and the rest right.
func runFallbackLesson(t *testing.T, l *learner.Learner, target learner.Target) session.Result {
	t.Helper()
	ctx := context.Background()

	s, err := l.StartSession(target)
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	if _, err := s.Begin(ctx); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if _, err := l.BeginPractice(ctx, s.ID()); err != nil {
		t.Fatalf("BeginPractice() error = %v", err)
	}

	req := content.Request{SubjectID: target.SubjectID, UnitID: target.UnitID, Count: 4}
	cat := newServices(t, state.NewMemoryKV()).Catalog
	lesson, err := cat.LookupLesson(target.SubjectID, target.UnitID, target.LessonID)
	if err != nil {
		t.Fatal(err)
	}
	req.Lesson = lesson
	exs, err := content.Fallback(req)
	if err != nil {
		t.Fatal(err)
	}

	for i, ex := range exs {
		ans := answerFor(t, ex, i == 0)
		if _, err := l.Submit(ctx, s.ID(), ans); err != nil {
			t.Fatalf("Submit(%d) error = %v", i, err)
		}
		if _, err := s.Advance(); err != nil {
			t.Fatalf("Advance(%d) error = %v", i, err)
		}
	}
	res, err := l.Finish(ctx, s.ID())
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	return res
}

// answerFor builds a right (or deliberately wrong) answer for a fallback exercise.
func answerFor(t *testing.T, ex exercise.Exercise, wrong bool) exercise.Answer {
	t.Helper()
	switch e := ex.(type) {
	case exercise.SingleSelect:
		idx := *e.CorrectIndex
		if wrong {
			idx = (idx + 1) % len(e.Options)
		}
		return exercise.Choice{Index: idx}
	case exercise.ImageAssociation:
		idx := *e.CorrectIndex
		if wrong {
			idx = (idx + 1) % len(e.Options)
		}
		return exercise.Choice{Index: idx}
	case exercise.TrueFalse:
		return exercise.Verdict{Value: *e.CorrectValue != wrong}
	case exercise.FillBlank:
		if wrong {
			return exercise.Text{Value: "not it"}
		}
		return exercise.Text{Value: *e.CorrectAnswer}
	case exercise.MatchPairs:
		if wrong {
			return exercise.Pairing{Pairs: e.Pairs[:1]}
		}
		return exercise.Pairing{Pairs: e.Pairs}
	case exercise.SequenceOrder:
		order := append([]int(nil), e.CorrectOrder...)
		if wrong {
			order[0], order[1] = order[1], order[0]
		}
		return exercise.Ordering{Order: order}
	}
	t.Fatalf("unexpected exercise %T", ex)
	return nil
}

func TestLearner_SessionPersistsAcrossRegistries(t *testing.T) {
	kv := state.NewMemoryKV()
	ctx := context.Background()

	reg := learner.NewRegistry(newServices(t, kv))
	l, err := reg.Get(ctx, "learner-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if _, err := l.MaterializeCourse(ctx, "buddhism"); err != nil {
		t.Fatalf("MaterializeCourse() error = %v", err)
	}
	res := runFallbackLesson(t, l, learner.Target{SubjectID: "buddhism", UnitID: "bud-1", LessonID: "bud-1-1"})
	if res.Hearts != 4 {
		t.Errorf("hearts = %d, want 4", res.Hearts)
	}

	// A fresh registry over the same store sees everything.
	l2, err := learner.NewRegistry(newServices(t, kv)).Get(ctx, "learner-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	prog, err := l2.Progress("buddhism")
	if err != nil {
		t.Fatalf("Progress() error = %v", err)
	}
	if prog.TotalLessonsCompleted != 1 {
		t.Errorf("TotalLessonsCompleted = %d, want 1", prog.TotalLessonsCompleted)
	}
	eco := l2.Economy()
	if eco.Hearts != 4 || eco.Ledger.XP != res.Reward.XP || eco.Ledger.XP == 0 {
		t.Errorf("economy = %+v, want 4 hearts and %d XP", eco, res.Reward.XP)
	}
	course, _ := l2.Course("buddhism")
	if !course.Units[0].Lessons[0].Completed {
		t.Error("bud-1-1 not completed after reload")
	}
}

func TestLearner_NoCourse(t *testing.T) {
	reg := learner.NewRegistry(newServices(t, state.NewMemoryKV()))
	l, err := reg.Get(context.Background(), "learner-1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.Course("buddhism"); !errors.Is(err, progress.ErrNoCourse) {
		t.Errorf("Course() error = %v, want ErrNoCourse", err)
	}
	if _, err := l.StartSession(learner.Target{SubjectID: "buddhism", UnitID: "bud-1", LessonID: "bud-1-1"}); !errors.Is(err, progress.ErrNoCourse) {
		t.Errorf("StartSession() error = %v, want ErrNoCourse", err)
	}
}

func TestLearner_StartSessionErrors(t *testing.T) {
	ctx := context.Background()
	reg := learner.NewRegistry(newServices(t, state.NewMemoryKV()))
	l, _ := reg.Get(ctx, "learner-1")
	if _, err := l.MaterializeCourse(ctx, "buddhism"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		target learner.Target
		want   error
	}{
		{"locked unit", learner.Target{SubjectID: "buddhism", UnitID: "bud-2", LessonID: "bud-2-1"}, progress.ErrPrecondition},
		{"unknown subject", learner.Target{SubjectID: "jainism", UnitID: "x"}, curriculum.ErrNotFound},
		{"unknown unit", learner.Target{SubjectID: "buddhism", UnitID: "bud-9"}, progress.ErrNotFound},
		{"unknown lesson", learner.Target{SubjectID: "buddhism", UnitID: "bud-1", LessonID: "bud-1-9"}, curriculum.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := l.StartSession(tt.target); !errors.Is(err, tt.want) {
				t.Errorf("StartSession() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLearner_StartSessionAbandonsPrevious(t *testing.T) {
	ctx := context.Background()
	reg := learner.NewRegistry(newServices(t, state.NewMemoryKV()))
	l, _ := reg.Get(ctx, "learner-1")
	if _, err := l.MaterializeCourse(ctx, "buddhism"); err != nil {
		t.Fatal(err)
	}

	first, err := l.StartSession(learner.Target{SubjectID: "buddhism", UnitID: "bud-1", LessonID: "bud-1-1"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := l.StartSession(learner.Target{SubjectID: "buddhism", UnitID: "bud-1"})
	if err != nil {
		t.Fatal(err)
	}
	if first.Phase() != session.PhaseAbandoned {
		t.Errorf("first phase = %s, want abandoned", first.Phase())
	}
	if !second.Status().Checkpoint {
		t.Error("second session should target the checkpoint")
	}
	if _, err := l.Session(first.ID()); !errors.Is(err, learner.ErrSessionNotFound) {
		t.Errorf("Session(first) error = %v, want ErrSessionNotFound", err)
	}
	if _, err := l.Session(second.ID()); err != nil {
		t.Errorf("Session(second) error = %v", err)
	}
}

func TestLearner_ResetCourseRemovesRecord(t *testing.T) {
	kv := state.NewMemoryKV()
	ctx := context.Background()
	reg := learner.NewRegistry(newServices(t, kv))
	l, _ := reg.Get(ctx, "learner-1")
	if _, err := l.MaterializeCourse(ctx, "buddhism"); err != nil {
		t.Fatal(err)
	}
	if got := kv.Keys("learner/learner-1/subject/"); len(got) != 1 {
		t.Fatalf("subject keys = %v, want 1", got)
	}

	if err := l.ResetCourse(ctx, "buddhism"); err != nil {
		t.Fatalf("ResetCourse() error = %v", err)
	}
	if got := kv.Keys("learner/learner-1/subject/"); len(got) != 0 {
		t.Errorf("subject keys after reset = %v, want none", got)
	}
	l2, _ := learner.NewRegistry(newServices(t, kv)).Get(ctx, "learner-1")
	if len(l2.Subjects()) != 0 {
		t.Errorf("Subjects() after reset = %v", l2.Subjects())
	}
}

func TestLearner_HeartsPersist(t *testing.T) {
	kv := state.NewMemoryKV()
	ctx := context.Background()
	l, _ := learner.NewRegistry(newServices(t, kv)).Get(ctx, "learner-1")

	for range 7 {
		if _, err := l.LoseHeart(ctx); err != nil {
			t.Fatal(err)
		}
	}
	st, err := l.AddHeart(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Hearts != 1 {
		t.Errorf("hearts = %d, want 1", st.Hearts)
	}
	if _, err := l.GrantReward(ctx, 5, 5); err != nil {
		t.Fatal(err)
	}

	l2, _ := learner.NewRegistry(newServices(t, kv)).Get(ctx, "learner-1")
	got := l2.Economy()
	if got.Hearts != 1 || got.Ledger.XP != 50 {
		t.Errorf("reloaded economy = %+v, want 1 heart 50 XP", got)
	}

	st, _ = l2.ResetHearts(ctx)
	if st.Hearts != st.MaxHearts {
		t.Errorf("ResetHearts() = %+v", st)
	}
}

func TestRegistry_CorruptGlobalStartsFresh(t *testing.T) {
	kv := state.NewMemoryKV()
	ctx := context.Background()
	if err := kv.Put(ctx, "learner/learner-1/global", []byte("garbage")); err != nil {
		t.Fatal(err)
	}
	l, err := learner.NewRegistry(newServices(t, kv)).Get(ctx, "learner-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got := l.Economy(); got.Hearts != 5 || got.Ledger.XP != 0 {
		t.Errorf("economy = %+v, want defaults", got)
	}
}

func TestRegistry_CorruptGlobalKeepsCourses(t *testing.T) {
	kv := state.NewMemoryKV()
	ctx := context.Background()

	first, err := learner.NewRegistry(newServices(t, kv)).Get(ctx, "learner-1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := first.MaterializeCourse(ctx, "buddhism"); err != nil {
		t.Fatalf("MaterializeCourse() error = %v", err)
	}
	runFallbackLesson(t, first, learner.Target{SubjectID: "buddhism", UnitID: "bud-1", LessonID: "bud-1-1"})

	if err := kv.Put(ctx, "learner/learner-1/global", []byte("garbage")); err != nil {
		t.Fatal(err)
	}

	reg := learner.NewRegistry(newServices(t, kv))
	l, err := reg.Get(ctx, "learner-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	prog, err := l.Progress("buddhism")
	if err != nil {
		t.Fatalf("Progress() error = %v, want the stored course", err)
	}
	if prog.TotalLessonsCompleted != 1 {
		t.Errorf("TotalLessonsCompleted = %d, want 1", prog.TotalLessonsCompleted)
	}
	if got := l.Subjects(); len(got) != 1 || got[0] != "buddhism" {
		t.Errorf("Subjects() = %v, want [buddhism]", got)
	}

	// The next write restores the index.
	if _, err := l.AddHeart(ctx); err != nil {
		t.Fatal(err)
	}
	again, err := learner.NewRegistry(newServices(t, kv)).Get(ctx, "learner-1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := again.Course("buddhism"); err != nil {
		t.Errorf("Course() after rewrite error = %v", err)
	}
}

func TestRegistry_ReturnsSameLearner(t *testing.T) {
	reg := learner.NewRegistry(newServices(t, state.NewMemoryKV()))
	a, _ := reg.Get(context.Background(), "learner-1")
	b, _ := reg.Get(context.Background(), "learner-1")
	if a != b {
		t.Error("Get() returned different learners for one id")
	}
}

func TestValidateID(t *testing.T) {
	tests := []struct {
		id      string
		wantErr bool
	}{
		{"learner-1", false},
		{"8f14e45f-ceea-467f-a0e6-0b8a5b1c0d5e", false},
		{"", true},
		{"a/b", true},
		{"has space", true},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			err := learner.ValidateID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, learner.ErrInvalidLearner) {
				t.Errorf("error %v does not wrap ErrInvalidLearner", err)
			}
		})
	}
}
