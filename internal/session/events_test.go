package session_test

import (
	"testing"

	"github.com/p-n-ai/pai-courseware/internal/session"
)

func TestMemoryEventLogger_LogEvent(t *testing.T) {
	logger := session.NewMemoryEventLogger()

	err := logger.LogEvent(session.Event{
		SessionID: "sess-1",
		LearnerID: "learner-1",
		EventType: session.EventAnswerJudged,
		Data:      map[string]any{"correct": true},
	})
	if err != nil {
		t.Fatalf("LogEvent() error = %v", err)
	}

	events := logger.Events()
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	if events[0].EventType != session.EventAnswerJudged {
		t.Errorf("EventType = %q, want %q", events[0].EventType, session.EventAnswerJudged)
	}
	if events[0].CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
}

func TestMemoryEventLogger_RequiresType(t *testing.T) {
	if err := session.NewMemoryEventLogger().LogEvent(session.Event{SessionID: "s"}); err == nil {
		t.Error("LogEvent() without type should fail")
	}
}

func TestPostgresEventLogger_Validation(t *testing.T) {
	tests := []struct {
		name   string
		logger *session.PostgresEventLogger
		event  session.Event
	}{
		{"nil pool", session.NewPostgresEventLogger(nil), session.Event{SessionID: "s", EventType: "x"}},
		{"nil logger", nil, session.Event{SessionID: "s", EventType: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.logger.LogEvent(tt.event); err == nil {
				t.Error("LogEvent() error = nil")
			}
		})
	}
}
