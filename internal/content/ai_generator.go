package content

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/p-n-ai/pai-courseware/internal/ai"
	"github.com/p-n-ai/pai-courseware/internal/exercise"
)

const (
	defaultLessonMaxTokens   = 1024
	defaultExerciseMaxTokens = 3000
)

// AIGeneratorConfig holds dependencies for AIGenerator.
type AIGeneratorConfig struct {
	Router *ai.Router
	Budget ai.BudgetChecker // optional; nil disables budget checks
	Model  string           // optional model override
}

// AIGenerator produces content through an ai.Router.
type AIGenerator struct {
	router *ai.Router
	budget ai.BudgetChecker
	model  string
}

// NewAIGenerator creates a generator backed by the given router.
func NewAIGenerator(cfg AIGeneratorConfig) *AIGenerator {
	return &AIGenerator{
		router: cfg.Router,
		budget: cfg.Budget,
		model:  cfg.Model,
	}
}

func (g *AIGenerator) GenerateLesson(ctx context.Context, req Request) (LessonText, error) {
	prompt, err := renderPrompt(lessonTmpl, req)
	if err != nil {
		return LessonText{}, err
	}

	resp, err := g.complete(ctx, req, ai.CompletionRequest{
		Messages: []ai.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Model:     g.model,
		MaxTokens: defaultLessonMaxTokens,
		Task:      ai.TaskInstruction,
	})
	if err != nil {
		return LessonText{}, err
	}

	body := strings.TrimSpace(resp.Content)
	if body == "" {
		return LessonText{}, fmt.Errorf("generate lesson %s: empty response: %w", req.ItemID(), ErrContentUnavailable)
	}
	return LessonText{
		Title:    req.Title(),
		Body:     body,
		KeyTerms: req.Topic().KeyTerms,
	}, nil
}

// GenerateExercises asks the provider for exercises and keeps only the ones
// that pass schema and correctness validation. The result may be empty.
func (g *AIGenerator) GenerateExercises(ctx context.Context, req Request) ([]exercise.Exercise, error) {
	prompt, err := renderPrompt(exercisesTmpl, req)
	if err != nil {
		return nil, err
	}

	resp, err := g.complete(ctx, req, ai.CompletionRequest{
		Messages: []ai.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Model:       g.model,
		MaxTokens:   defaultExerciseMaxTokens,
		Temperature: 0.7,
		Task:        ai.TaskExercises,
		JSON:        true,
	})
	if err != nil {
		return nil, err
	}

	exs, dropped, err := exercise.DecodeList([]byte(stripFences(resp.Content)))
	if err != nil {
		return nil, fmt.Errorf("generate exercises %s: %v: %w", req.ItemID(), err, ErrContentUnavailable)
	}
	for _, d := range dropped {
		slog.Warn("dropped generated exercise",
			"subject_id", req.SubjectID,
			"item_id", req.ItemID(),
			"error", d,
		)
	}
	if req.Count > 0 && len(exs) > req.Count {
		exs = exs[:req.Count]
	}
	return exs, nil
}

func (g *AIGenerator) complete(ctx context.Context, req Request, creq ai.CompletionRequest) (ai.CompletionResponse, error) {
	if g.router == nil || !g.router.HasProvider() {
		return ai.CompletionResponse{}, fmt.Errorf("%s for %s: %w", creq.Task, req.ItemID(), ErrContentUnavailable)
	}

	if g.budget != nil && req.LearnerID != "" {
		ok, err := g.budget.Check(ctx, req.LearnerID)
		if err != nil {
			slog.Warn("budget check failed", "learner_id", req.LearnerID, "error", err)
		} else if !ok {
			return ai.CompletionResponse{}, fmt.Errorf("%s for %s: token budget exhausted: %w", creq.Task, req.ItemID(), ErrContentUnavailable)
		}
	}

	resp, err := g.router.Complete(ctx, creq)
	if err != nil {
		return ai.CompletionResponse{}, fmt.Errorf("%s for %s: %v: %w", creq.Task, req.ItemID(), err, ErrContentUnavailable)
	}

	if g.budget != nil && req.LearnerID != "" {
		if err := g.budget.Record(ctx, req.LearnerID, resp.TotalTokens()); err != nil {
			slog.Warn("failed to record token usage", "learner_id", req.LearnerID, "error", err)
		}
	}
	return resp, nil
}

// stripFences removes a surrounding ``` block some models add despite JSON mode.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
