package content

import (
	"fmt"
	"strings"

	"github.com/p-n-ai/pai-courseware/internal/curriculum"
	"github.com/p-n-ai/pai-courseware/internal/exercise"
)

const maxChoiceOptions = 4

// Fallback builds a minimal exercise set from the catalog data alone. The
// same request always yields the same exercises.
func Fallback(req Request) ([]exercise.Exercise, error) {
	topic := req.Topic()
	if !topic.HasContext() {
		return nil, fmt.Errorf("fallback exercises %s: %w", req.ItemID(), ErrNoTopicContext)
	}

	prefix := "fb-" + req.ItemID()
	terms := uniqueTerms(topic.KeyTerms)
	var out, singles, verdicts []exercise.Exercise

	if len(terms) >= 2 {
		n := min(len(terms), maxChoiceOptions)
		pairs := make([]exercise.Pair, n)
		for i, kt := range terms[:n] {
			pairs[i] = exercise.Pair{Term: kt.Term, Definition: kt.Definition}
		}
		out = append(out, exercise.MatchPairs{
			Base:  exercise.Base{ID: prefix + "-match", Question: "Match each term to its meaning."},
			Pairs: pairs,
		})

		for i, kt := range terms {
			options, correct := termOptions(terms, i)
			singles = append(singles, exercise.SingleSelect{
				Base: exercise.Base{
					ID:          fmt.Sprintf("%s-term-%d", prefix, i+1),
					Question:    fmt.Sprintf("Which term means: %s?", kt.Definition),
					Explanation: fmt.Sprintf("%s: %s.", kt.Term, kt.Definition),
				},
				Options:      options,
				CorrectIndex: exercise.Int(correct),
			})
		}
	}

	if len(topic.Topics) >= 2 {
		n := len(topic.Topics)
		items := make([]string, n)
		order := make([]int, n)
		for i := range topic.Topics {
			items[i] = topic.Topics[n-1-i]
			order[i] = n - 1 - i
		}
		out = append(out, exercise.SequenceOrder{
			Base:         exercise.Base{ID: prefix + "-sequence", Question: "Put these topics in the order they are covered."},
			Items:        items,
			CorrectOrder: order,
		})
	}

	if len(terms) > 0 {
		kt := terms[0]
		out = append(out, exercise.FillBlank{
			Base:          exercise.Base{ID: prefix + "-blank", Question: "Fill in the missing term."},
			Sentence:      fmt.Sprintf("___ : %s.", kt.Definition),
			WordBank:      termNames(terms[:min(len(terms), maxChoiceOptions)]),
			CorrectAnswer: exercise.String(kt.Term),
		})
	}

	for i, kt := range terms {
		verdicts = append(verdicts, exercise.TrueFalse{
			Base: exercise.Base{
				ID:       fmt.Sprintf("%s-tf-%d", prefix, i+1),
				Question: fmt.Sprintf("%q means: %s.", kt.Term, kt.Definition),
			},
			CorrectValue: exercise.Bool(true),
		})
	}

	// Alternate the per-term questions so a short set still mixes kinds.
	for i := 0; i < max(len(singles), len(verdicts)); i++ {
		if i < len(singles) {
			out = append(out, singles[i])
		}
		if i < len(verdicts) {
			out = append(out, verdicts[i])
		}
	}

	if len(out) == 0 {
		out = append(out, exercise.TrueFalse{
			Base: exercise.Base{
				ID:       prefix + "-about",
				Question: fmt.Sprintf("This session is about %q.", titleOr(topic.Title, req.UnitTitle)),
			},
			CorrectValue: exercise.Bool(true),
		})
	}

	if req.Count > 0 && len(out) > req.Count {
		out = out[:req.Count]
	}
	return out, nil
}

// FallbackLesson builds lesson text from the catalog data alone.
func FallbackLesson(req Request) (LessonText, error) {
	topic := req.Topic()
	if !topic.HasContext() {
		return LessonText{}, fmt.Errorf("fallback lesson %s: %w", req.ItemID(), ErrNoTopicContext)
	}

	var b strings.Builder
	title := titleOr(topic.Title, req.UnitTitle)
	fmt.Fprintf(&b, "%s\n\n", title)
	if len(topic.Objectives) > 0 {
		b.WriteString("In this session you will:\n")
		for _, o := range topic.Objectives {
			fmt.Fprintf(&b, "- %s\n", o)
		}
		b.WriteString("\n")
	}
	if len(topic.Topics) > 0 {
		b.WriteString("Topics:\n")
		for i, t := range topic.Topics {
			fmt.Fprintf(&b, "%d. %s\n", i+1, t)
		}
		b.WriteString("\n")
	}
	if len(topic.KeyTerms) > 0 {
		b.WriteString("Key terms:\n")
		for _, kt := range topic.KeyTerms {
			fmt.Fprintf(&b, "- %s: %s\n", kt.Term, kt.Definition)
		}
	}

	return LessonText{
		Title:    title,
		Body:     strings.TrimSpace(b.String()),
		KeyTerms: uniqueTerms(topic.KeyTerms),
		Fallback: true,
	}, nil
}

// uniqueTerms keeps the first occurrence of each term and definition so the
// generated MatchPairs stay one-to-one.
func uniqueTerms(in []curriculum.KeyTerm) []curriculum.KeyTerm {
	seenTerm := make(map[string]bool, len(in))
	seenDef := make(map[string]bool, len(in))
	out := make([]curriculum.KeyTerm, 0, len(in))
	for _, kt := range in {
		if kt.Term == "" || kt.Definition == "" || seenTerm[kt.Term] || seenDef[kt.Definition] {
			continue
		}
		seenTerm[kt.Term] = true
		seenDef[kt.Definition] = true
		out = append(out, kt)
	}
	return out
}

// termOptions picks up to four term names including terms[i], rotated so the
// correct answer does not always sit in the same slot.
func termOptions(terms []curriculum.KeyTerm, i int) ([]string, int) {
	n := min(len(terms), maxChoiceOptions)
	start := 0
	if i >= n {
		start = i - n + 1
	}
	window := termNames(terms[start : start+n])
	correct := i - start

	shift := i % n
	options := append(append([]string{}, window[shift:]...), window[:shift]...)
	return options, (correct - shift + n) % n
}

func termNames(terms []curriculum.KeyTerm) []string {
	out := make([]string, len(terms))
	for i, kt := range terms {
		out[i] = kt.Term
	}
	return out
}

func titleOr(title, alt string) string {
	if title != "" {
		return title
	}
	return alt
}
