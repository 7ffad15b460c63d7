package progress

// Stats summarises a course. It is always computed from the current records.
type Stats struct {
	SubjectID         string  `json:"subject_id"`
	TotalItems        int     `json:"total_items"`
	CompletedItems    int     `json:"completed_items"`
	AverageScore      float64 `json:"average_score"`
	CompletionPercent float64 `json:"completion_percent"`
	UnitsUnlocked     int     `json:"units_unlocked"`
	UnitsCompleted    int     `json:"units_completed"`
	WeeklyGoalPercent float64 `json:"weekly_goal_percent"`
}

// CourseStats derives totals from the course: every lesson plus one
// checkpoint per unit is an assessable item, and the average is taken over
// the latest score of each completed item.
func (e *Engine) CourseStats(subjectID string) (Stats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, err := e.record(subjectID)
	if err != nil {
		return Stats{}, err
	}
	return computeStats(*rec), nil
}

func computeStats(r Record) Stats {
	s := Stats{SubjectID: r.Course.SubjectID}
	var scoreSum float64

	count := func(c Completion) {
		s.TotalItems++
		if !c.Completed {
			return
		}
		s.CompletedItems++
		if c.Score != nil {
			scoreSum += c.Score.Percent()
		}
	}

	for _, u := range r.Course.Units {
		for _, l := range u.Lessons {
			count(l.Completion)
		}
		count(u.Checkpoint.Completion)
		if u.Unlocked {
			s.UnitsUnlocked++
		}
		if u.Completed {
			s.UnitsCompleted++
		}
	}

	if s.CompletedItems > 0 {
		s.AverageScore = scoreSum / float64(s.CompletedItems)
	}
	if s.TotalItems > 0 {
		s.CompletionPercent = float64(s.CompletedItems) * 100 / float64(s.TotalItems)
	}
	if r.Progress.WeeklyGoalMinutes > 0 {
		s.WeeklyGoalPercent = min(100, float64(r.Progress.MinutesStudiedThisWeek)*100/float64(r.Progress.WeeklyGoalMinutes))
	}
	return s
}
