package exercise

import (
	"fmt"
	"slices"
)

// Answer is a learner's submission. The set of implementations is closed.
type Answer interface {
	answer()
}

// Choice selects an option by index (SingleSelect, ImageAssociation).
type Choice struct {
	Index int `json:"index"`
}

// Verdict answers a TrueFalse exercise.
type Verdict struct {
	Value bool `json:"value"`
}

// Text answers a FillBlank exercise.
type Text struct {
	Value string `json:"value"`
}

// Pairing is the set of pairs the learner built for a MatchPairs exercise.
type Pairing struct {
	Pairs []Pair `json:"pairs"`
}

// Ordering is the item index permutation submitted for a SequenceOrder exercise.
type Ordering struct {
	Order []int `json:"order"`
}

func (Choice) answer()   {}
func (Verdict) answer()  {}
func (Text) answer()     {}
func (Pairing) answer()  {}
func (Ordering) answer() {}

// IsCorrect judges ans against ex. It has no side effects.
//
// It returns ErrInvalidExercise when ex is missing correctness data and
// ErrAnswerMismatch when ans is not the answer type ex expects.
func IsCorrect(ex Exercise, ans Answer) (bool, error) {
	if ex == nil {
		return false, fmt.Errorf("%w: nil exercise", ErrInvalidExercise)
	}
	if err := ex.Validate(); err != nil {
		return false, err
	}

	switch e := ex.(type) {
	case SingleSelect:
		a, ok := ans.(Choice)
		if !ok {
			return false, mismatch(e, ans)
		}
		return a.Index == *e.CorrectIndex, nil

	case TrueFalse:
		a, ok := ans.(Verdict)
		if !ok {
			return false, mismatch(e, ans)
		}
		return a.Value == *e.CorrectValue, nil

	case FillBlank:
		a, ok := ans.(Text)
		if !ok {
			return false, mismatch(e, ans)
		}
		// Exact, case-sensitive match.
		return a.Value == *e.CorrectAnswer, nil

	case MatchPairs:
		a, ok := ans.(Pairing)
		if !ok {
			return false, mismatch(e, ans)
		}
		return samePairSet(e.Pairs, a.Pairs), nil

	case SequenceOrder:
		a, ok := ans.(Ordering)
		if !ok {
			return false, mismatch(e, ans)
		}
		return slices.Equal(a.Order, e.CorrectOrder), nil

	case ImageAssociation:
		a, ok := ans.(Choice)
		if !ok {
			return false, mismatch(e, ans)
		}
		return a.Index == *e.CorrectIndex, nil

	default:
		return false, fmt.Errorf("%w: unsupported kind %q", ErrInvalidExercise, ex.Kind())
	}
}

// samePairSet is all-or-nothing set equality: the candidate must contain every
// stored pair exactly once and nothing else.
func samePairSet(stored, candidate []Pair) bool {
	if len(candidate) != len(stored) {
		return false
	}
	want := make(map[Pair]bool, len(stored))
	for _, p := range stored {
		want[p] = true
	}
	got := make(map[Pair]bool, len(candidate))
	for _, p := range candidate {
		if !want[p] {
			return false
		}
		if got[p] {
			return false
		}
		got[p] = true
	}
	return len(got) == len(want)
}

func mismatch(ex Exercise, ans Answer) error {
	return fmt.Errorf("%w: %s exercise %s got %T", ErrAnswerMismatch, ex.Kind(), ex.ExerciseID(), ans)
}
