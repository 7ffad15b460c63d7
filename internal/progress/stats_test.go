package progress_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-courseware/internal/progress"
)

func TestCourseStats(t *testing.T) {
	e := newEngine(t)
	materialize(t, e, "buddhism")

	s, err := e.CourseStats("buddhism")
	if err != nil {
		t.Fatalf("CourseStats() error = %v", err)
	}
	// buddhism: 2 + 2 + 1 lessons and 3 checkpoints
	if s.TotalItems != 8 || s.CompletedItems != 0 || s.AverageScore != 0 {
		t.Errorf("CourseStats() = %+v, want 8 items, none completed", s)
	}

	_ = e.CompleteLesson("buddhism", "bud-1", "bud-1-1", progress.Score{Correct: 3, Total: 4})
	_ = e.CompleteLesson("buddhism", "bud-1", "bud-1-2", progress.Score{Correct: 1, Total: 4})

	s, _ = e.CourseStats("buddhism")
	if s.CompletedItems != 2 {
		t.Errorf("CompletedItems = %d, want 2", s.CompletedItems)
	}
	if s.AverageScore != 50 {
		t.Errorf("AverageScore = %v, want 50", s.AverageScore)
	}
	if s.CompletionPercent != 25 {
		t.Errorf("CompletionPercent = %v, want 25", s.CompletionPercent)
	}
	if s.UnitsUnlocked != 1 || s.UnitsCompleted != 0 {
		t.Errorf("units unlocked/completed = %d/%d, want 1/0", s.UnitsUnlocked, s.UnitsCompleted)
	}
}

func TestCourseStats_NoCourse(t *testing.T) {
	e := newEngine(t)
	if _, err := e.CourseStats("islam"); !errors.Is(err, progress.ErrNoCourse) {
		t.Errorf("CourseStats() error = %v, want ErrNoCourse", err)
	}
}

func TestExportWorkbook(t *testing.T) {
	e := newEngine(t)
	materialize(t, e, "buddhism")
	_ = e.CompleteLesson("buddhism", "bud-1", "bud-1-1", progress.Score{Correct: 3, Total: 4})

	var buf bytes.Buffer
	if err := e.ExportWorkbook(&buf, "buddhism"); err != nil {
		t.Fatalf("ExportWorkbook() error = %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	title, err := f.GetCellValue("Summary", "B1")
	if err != nil || title != "Buddhism" {
		t.Errorf("Summary!B1 = %q (%v), want Buddhism", title, err)
	}

	rows, err := f.GetRows("Course")
	if err != nil {
		t.Fatalf("GetRows(Course) error = %v", err)
	}
	if len(rows) != 9 {
		t.Fatalf("Course rows = %d, want header + 8 items", len(rows))
	}
	if rows[1][1] != "The Life of Siddhartha Gautama" || rows[1][3] != "completed" || rows[1][4] != "75" {
		t.Errorf("first item row = %v", rows[1])
	}
}
