// Package exercise defines the closed set of exercise variants, the answers a
// learner can submit for them, and how an answer is judged.
package exercise

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidExercise is returned when an exercise lacks the data needed to judge it.
	ErrInvalidExercise = errors.New("invalid exercise")

	// ErrAnswerMismatch is returned when an answer does not have the shape the
	// exercise kind expects. This is a caller error, not a wrong answer.
	ErrAnswerMismatch = errors.New("answer does not match exercise kind")
)

// Kind is the discriminator of the exercise union.
type Kind string

const (
	KindSingleSelect     Kind = "single_select"
	KindTrueFalse        Kind = "true_false"
	KindFillBlank        Kind = "fill_blank"
	KindMatchPairs       Kind = "match_pairs"
	KindSequenceOrder    Kind = "sequence_order"
	KindImageAssociation Kind = "image_association"
)

// Kinds lists every exercise kind.
var Kinds = []Kind{
	KindSingleSelect,
	KindTrueFalse,
	KindFillBlank,
	KindMatchPairs,
	KindSequenceOrder,
	KindImageAssociation,
}

// Exercise is one gradeable question. The set of implementations is closed.
type Exercise interface {
	ExerciseID() string
	Kind() Kind
	Prompt() string
	// Explain is shown after the exercise has been judged.
	Explain() string
	// Validate reports ErrInvalidExercise if correctness data is missing or inconsistent.
	Validate() error
	sealed()
}

// Base carries the fields every variant shares.
type Base struct {
	ID          string `json:"id"`
	Question    string `json:"prompt"`
	Explanation string `json:"explanation,omitempty"`
}

func (b Base) ExerciseID() string { return b.ID }
func (b Base) Prompt() string     { return b.Question }
func (b Base) Explain() string    { return b.Explanation }
func (Base) sealed()              {}

func (b Base) validate() error {
	if b.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidExercise)
	}
	if b.Question == "" {
		return fmt.Errorf("%w: %s: prompt is required", ErrInvalidExercise, b.ID)
	}
	return nil
}

// SingleSelect asks the learner to pick one option.
type SingleSelect struct {
	Base
	Options      []string `json:"options"`
	CorrectIndex *int     `json:"correct_index"`
}

func (SingleSelect) Kind() Kind { return KindSingleSelect }

func (e SingleSelect) Validate() error {
	if err := e.Base.validate(); err != nil {
		return err
	}
	return validateChoice(e.ID, e.Options, e.CorrectIndex)
}

// TrueFalse asks whether a statement holds.
type TrueFalse struct {
	Base
	CorrectValue *bool `json:"correct_value"`
}

func (TrueFalse) Kind() Kind { return KindTrueFalse }

func (e TrueFalse) Validate() error {
	if err := e.Base.validate(); err != nil {
		return err
	}
	if e.CorrectValue == nil {
		return fmt.Errorf("%w: %s: correct_value is required", ErrInvalidExercise, e.ID)
	}
	return nil
}

// FillBlank asks for the exact missing word or phrase.
type FillBlank struct {
	Base
	Sentence      string   `json:"sentence,omitempty"`
	WordBank      []string `json:"word_bank,omitempty"`
	CorrectAnswer *string  `json:"correct_answer"`
}

func (FillBlank) Kind() Kind { return KindFillBlank }

func (e FillBlank) Validate() error {
	if err := e.Base.validate(); err != nil {
		return err
	}
	if e.CorrectAnswer == nil || *e.CorrectAnswer == "" {
		return fmt.Errorf("%w: %s: correct_answer is required", ErrInvalidExercise, e.ID)
	}
	return nil
}

// Pair links a term to its definition.
type Pair struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
}

// MatchPairs asks the learner to rebuild the full term/definition set.
type MatchPairs struct {
	Base
	Pairs []Pair `json:"pairs"`
}

func (MatchPairs) Kind() Kind { return KindMatchPairs }

func (e MatchPairs) Validate() error {
	if err := e.Base.validate(); err != nil {
		return err
	}
	if len(e.Pairs) < 2 {
		return fmt.Errorf("%w: %s: at least 2 pairs are required", ErrInvalidExercise, e.ID)
	}
	terms := make(map[string]bool, len(e.Pairs))
	defs := make(map[string]bool, len(e.Pairs))
	for _, p := range e.Pairs {
		if p.Term == "" || p.Definition == "" {
			return fmt.Errorf("%w: %s: pair has empty side", ErrInvalidExercise, e.ID)
		}
		if terms[p.Term] || defs[p.Definition] {
			return fmt.Errorf("%w: %s: pairs must be one-to-one", ErrInvalidExercise, e.ID)
		}
		terms[p.Term] = true
		defs[p.Definition] = true
	}
	return nil
}

// Terms returns the left-hand side of every pair in stored order.
func (e MatchPairs) Terms() []string {
	out := make([]string, len(e.Pairs))
	for i, p := range e.Pairs {
		out[i] = p.Term
	}
	return out
}

// Definitions returns the right-hand side of every pair in stored order.
func (e MatchPairs) Definitions() []string {
	out := make([]string, len(e.Pairs))
	for i, p := range e.Pairs {
		out[i] = p.Definition
	}
	return out
}

// SequenceOrder asks the learner to arrange items. CorrectOrder lists item
// indexes in their correct order.
type SequenceOrder struct {
	Base
	Items        []string `json:"items"`
	CorrectOrder []int    `json:"correct_order"`
}

func (SequenceOrder) Kind() Kind { return KindSequenceOrder }

func (e SequenceOrder) Validate() error {
	if err := e.Base.validate(); err != nil {
		return err
	}
	if len(e.Items) < 2 {
		return fmt.Errorf("%w: %s: at least 2 items are required", ErrInvalidExercise, e.ID)
	}
	if !isPermutation(e.CorrectOrder, len(e.Items)) {
		return fmt.Errorf("%w: %s: correct_order must be a permutation of item indexes", ErrInvalidExercise, e.ID)
	}
	return nil
}

// ImageAssociation shows an image and asks which option it depicts. The image
// itself never takes part in judging.
type ImageAssociation struct {
	Base
	ImageURL     string   `json:"image_url,omitempty"`
	ImagePrompt  string   `json:"image_prompt,omitempty"`
	Options      []string `json:"options"`
	CorrectIndex *int     `json:"correct_index"`
}

func (ImageAssociation) Kind() Kind { return KindImageAssociation }

func (e ImageAssociation) Validate() error {
	if err := e.Base.validate(); err != nil {
		return err
	}
	return validateChoice(e.ID, e.Options, e.CorrectIndex)
}

func validateChoice(id string, options []string, correct *int) error {
	if len(options) < 2 {
		return fmt.Errorf("%w: %s: at least 2 options are required", ErrInvalidExercise, id)
	}
	if correct == nil {
		return fmt.Errorf("%w: %s: correct_index is required", ErrInvalidExercise, id)
	}
	if *correct < 0 || *correct >= len(options) {
		return fmt.Errorf("%w: %s: correct_index %d out of range", ErrInvalidExercise, id, *correct)
	}
	return nil
}

func isPermutation(order []int, n int) bool {
	if len(order) != n {
		return false
	}
	seen := make([]bool, n)
	for _, i := range order {
		if i < 0 || i >= n || seen[i] {
			return false
		}
		seen[i] = true
	}
	return true
}

// Int returns a pointer to v. Handy when building exercises in code.
func Int(v int) *int { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }
