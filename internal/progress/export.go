package progress

import (
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"
)

const (
	summarySheet = "Summary"
	courseSheet  = "Course"
)

// ExportWorkbook writes an .xlsx progress report for one subject: a summary
// sheet with the stats and a course sheet with one row per lesson and
// checkpoint.
func (e *Engine) ExportWorkbook(w io.Writer, subjectID string) error {
	e.mu.Lock()
	rec, err := e.record(subjectID)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	snapshot := Record{Course: rec.Course.Clone(), Progress: cloneProgress(rec.Progress)}
	e.mu.Unlock()

	return WriteWorkbook(w, snapshot)
}

// WriteWorkbook renders r as an .xlsx workbook.
func WriteWorkbook(w io.Writer, r Record) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(courseSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	stats := computeStats(r)
	lastStudied := ""
	if r.Progress.LastStudiedAt != nil {
		lastStudied = r.Progress.LastStudiedAt.UTC().Format("2006-01-02 15:04")
	}
	summary := [][]any{
		{"Subject", r.Course.Title},
		{"Completed items", fmt.Sprintf("%d / %d", stats.CompletedItems, stats.TotalItems)},
		{"Completion %", round1(stats.CompletionPercent)},
		{"Average score %", round1(stats.AverageScore)},
		{"Units completed", stats.UnitsCompleted},
		{"Lessons completed", r.Progress.TotalLessonsCompleted},
		{"Checkpoints completed", r.Progress.TotalCheckpointsCompleted},
		{"Minutes this week", r.Progress.MinutesStudiedThisWeek},
		{"Weekly goal (minutes)", r.Progress.WeeklyGoalMinutes},
		{"Last studied", lastStudied},
	}
	if err := writeRows(f, summarySheet, summary); err != nil {
		return err
	}

	rows := [][]any{{"Unit", "Item", "Kind", "State", "Score %", "Attempts"}}
	for _, u := range r.Course.Units {
		unitLabel := strconv.Itoa(u.Ordinal) + ". " + u.Title
		for _, l := range u.Lessons {
			rows = append(rows, itemRow(unitLabel, l.Title, "lesson", u.State(), l.Completion))
		}
		rows = append(rows, itemRow(unitLabel, u.Checkpoint.Title, "checkpoint", u.State(), u.Checkpoint.Completion))
	}
	if err := writeRows(f, courseSheet, rows); err != nil {
		return err
	}
	if err := f.SetColWidth(courseSheet, "A", "B", 36); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func itemRow(unit, title, kind string, state UnitState, c Completion) []any {
	status := string(state)
	if state != UnitLocked {
		status = "pending"
		if c.Completed {
			status = "completed"
		}
	}
	var score any = ""
	if c.Score != nil {
		score = round1(c.Score.Percent())
	}
	return []any{unit, title, kind, status, score, c.Attempts}
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}
