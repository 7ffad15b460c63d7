package curriculum_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/p-n-ai/pai-courseware/internal/curriculum"
)

func TestCatalog_BuiltinSubjects(t *testing.T) {
	catalog, err := curriculum.NewCatalog("")
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}

	subjects := catalog.Subjects()
	if len(subjects) < 3 {
		t.Fatalf("Subjects() = %d, want at least 3 built-in subjects", len(subjects))
	}
	for i := 1; i < len(subjects); i++ {
		if subjects[i-1].Title > subjects[i].Title {
			t.Errorf("Subjects() not ordered by title: %q before %q", subjects[i-1].Title, subjects[i].Title)
		}
	}
}

func TestCatalog_GetSubject(t *testing.T) {
	catalog, err := curriculum.NewCatalog("")
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}

	subject, err := catalog.GetSubject("buddhism")
	if err != nil {
		t.Fatalf("GetSubject(buddhism) error = %v", err)
	}
	if subject.Title != "Buddhism" {
		t.Errorf("Title = %q, want Buddhism", subject.Title)
	}
	if subject.Units[0].Ordinal != 1 {
		t.Errorf("Units[0].Ordinal = %d, want 1", subject.Units[0].Ordinal)
	}
	if subject.Units[0].Lessons[0].ID != "bud-1-1" {
		t.Errorf("first lesson = %q, want bud-1-1", subject.Units[0].Lessons[0].ID)
	}
}

func TestCatalog_GetSubject_NotFound(t *testing.T) {
	catalog, err := curriculum.NewCatalog("")
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}

	_, err = catalog.GetSubject("NONEXISTENT")
	if !errors.Is(err, curriculum.ErrNotFound) {
		t.Errorf("GetSubject(NONEXISTENT) error = %v, want ErrNotFound", err)
	}
}

func TestCatalog_GetSubject_ReturnsCopy(t *testing.T) {
	catalog, err := curriculum.NewCatalog("")
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}

	first, _ := catalog.GetSubject("buddhism")
	first.Title = "changed"
	first.Units[0].Lessons[0].Title = "changed"
	first.Units[0].Lessons[0].KeyTerms[0].Term = "changed"

	second, _ := catalog.GetSubject("buddhism")
	if second.Title == "changed" || second.Units[0].Lessons[0].Title == "changed" {
		t.Error("mutating a returned subject changed the catalog")
	}
	if second.Units[0].Lessons[0].KeyTerms[0].Term == "changed" {
		t.Error("mutating returned key terms changed the catalog")
	}
}

func TestCatalog_LookupLesson(t *testing.T) {
	catalog, _ := curriculum.NewCatalog("")

	lesson, err := catalog.LookupLesson("buddhism", "bud-1", "bud-1-2")
	if err != nil {
		t.Fatalf("LookupLesson() error = %v", err)
	}
	if lesson.Title != "The Four Noble Truths" {
		t.Errorf("Title = %q", lesson.Title)
	}

	if _, err := catalog.LookupLesson("buddhism", "bud-9", "bud-1-2"); !errors.Is(err, curriculum.ErrNotFound) {
		t.Errorf("unknown unit error = %v, want ErrNotFound", err)
	}
	if _, err := catalog.LookupLesson("buddhism", "bud-1", "bud-9-9"); !errors.Is(err, curriculum.ErrNotFound) {
		t.Errorf("unknown lesson error = %v, want ErrNotFound", err)
	}
}

func TestCatalog_DirectoryOverridesBuiltin(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "custom", "buddhism.yaml"), `
id: buddhism
title: Buddhism (Local)
units:
  - id: b-1
    ordinal: 1
    title: Only Unit
    lessons:
      - id: b-1-1
        title: Only Lesson
    checkpoint:
      id: b-1-cp
      title: Only Checkpoint
`)

	catalog, err := curriculum.NewCatalog(dir)
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}

	subject, err := catalog.GetSubject("buddhism")
	if err != nil {
		t.Fatalf("GetSubject() error = %v", err)
	}
	if subject.Title != "Buddhism (Local)" {
		t.Errorf("Title = %q, want local override", subject.Title)
	}
}

func TestCatalog_SkipsInvalidSubjects(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "broken.yaml"), "id: [unterminated")
	writeFile(t, filepath.Join(dir, "gap.yaml"), `
id: gap
title: Gap
units:
  - id: g-1
    ordinal: 1
    lessons: [{id: g-1-1}]
    checkpoint: {id: g-1-cp}
  - id: g-3
    ordinal: 3
    lessons: [{id: g-3-1}]
    checkpoint: {id: g-3-cp}
`)
	writeFile(t, filepath.Join(dir, "notes.md"), "# not a subject")

	catalog, err := curriculum.NewCatalog(dir)
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}

	if _, err := catalog.GetSubject("gap"); !errors.Is(err, curriculum.ErrNotFound) {
		t.Errorf("subject with ordinal gap should be skipped, got err = %v", err)
	}
}

func TestCatalog_MissingDir(t *testing.T) {
	catalog, err := curriculum.NewCatalog(filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}
	if _, err := catalog.GetSubject("islam"); err != nil {
		t.Errorf("built-in subject should still load, got %v", err)
	}
}

func TestValidateSubject(t *testing.T) {
	valid := func() curriculum.Subject {
		return curriculum.Subject{
			ID: "s",
			Units: []curriculum.Unit{
				{ID: "u1", Ordinal: 1, Lessons: []curriculum.Lesson{{ID: "l1"}}, Checkpoint: curriculum.Assessment{ID: "c1"}},
				{ID: "u2", Ordinal: 2, Lessons: []curriculum.Lesson{{ID: "l2"}}, Checkpoint: curriculum.Assessment{ID: "c2"}},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*curriculum.Subject)
		wantErr bool
	}{
		{"valid", func(*curriculum.Subject) {}, false},
		{"missing id", func(s *curriculum.Subject) { s.ID = "" }, true},
		{"no units", func(s *curriculum.Subject) { s.Units = nil }, true},
		{"ordinal starts at 0", func(s *curriculum.Subject) { s.Units[0].Ordinal = 0 }, true},
		{"duplicate ordinal", func(s *curriculum.Subject) { s.Units[1].Ordinal = 1 }, true},
		{"empty lessons", func(s *curriculum.Subject) { s.Units[1].Lessons = nil }, true},
		{"missing checkpoint", func(s *curriculum.Subject) { s.Units[0].Checkpoint.ID = "" }, true},
		{"duplicate lesson id", func(s *curriculum.Subject) { s.Units[1].Lessons[0].ID = "l1" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(&s)
			err := curriculum.ValidateSubject(s)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSubject() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
