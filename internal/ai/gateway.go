// Package ai is the transport to generative text providers. Content
// generation talks to it through a Router that falls back across providers.
package ai

import "context"

// TaskType says what a completion is for. Providers may pick models by task.
type TaskType int

const (
	TaskInstruction TaskType = iota
	TaskExercises
)

func (t TaskType) String() string {
	switch t {
	case TaskInstruction:
		return "instruction"
	case TaskExercises:
		return "exercises"
	default:
		return "unknown"
	}
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the input to a completion.
type CompletionRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	Task        TaskType  `json:"task,omitempty"`
	// JSON asks the provider to return a single JSON object.
	JSON bool `json:"json,omitempty"`
}

// CompletionResponse is the output of a completion.
type CompletionResponse struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// TotalTokens returns the sum of input and output tokens.
func (r CompletionResponse) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}

// Provider is implemented by every completion backend.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
	HealthCheck(ctx context.Context) error
}
