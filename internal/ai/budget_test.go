package ai

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryBudget_Unlimited(t *testing.T) {
	b := NewInMemoryBudget(0)
	ctx := context.Background()

	if err := b.Record(ctx, "learner-1", 1_000_000); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	ok, err := b.Check(ctx, "learner-1")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !ok {
		t.Error("Check() = false, want true (limit 0 means unlimited)")
	}
}

func TestInMemoryBudget_Limit(t *testing.T) {
	tests := []struct {
		name   string
		tokens int
		want   bool
	}{
		{"within budget", 500, true},
		{"exactly at budget", 1000, false},
		{"over budget", 1500, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewInMemoryBudget(1000)
			ctx := context.Background()
			if err := b.Record(ctx, "learner-1", tt.tokens); err != nil {
				t.Fatalf("Record() error = %v", err)
			}
			ok, _ := b.Check(ctx, "learner-1")
			if ok != tt.want {
				t.Errorf("Check() = %v, want %v", ok, tt.want)
			}
		})
	}
}

func TestInMemoryBudget_PerLearner(t *testing.T) {
	b := NewInMemoryBudget(100)
	ctx := context.Background()
	_ = b.Record(ctx, "learner-1", 150)

	ok, _ := b.Check(ctx, "learner-2")
	if !ok {
		t.Error("learner-2 should not be affected by learner-1 usage")
	}
}

func TestInMemoryBudget_ResetsDaily(t *testing.T) {
	b := NewInMemoryBudget(100)
	day := time.Date(2026, 5, 1, 23, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return day }
	ctx := context.Background()

	_ = b.Record(ctx, "learner-1", 100)
	if ok, _ := b.Check(ctx, "learner-1"); ok {
		t.Fatal("Check() = true, want false after spending the limit")
	}

	day = day.Add(2 * time.Hour)
	if ok, _ := b.Check(ctx, "learner-1"); !ok {
		t.Error("Check() = false on the next day, want true")
	}
}

func TestInMemoryBudget_NegativeTokens(t *testing.T) {
	b := NewInMemoryBudget(100)
	if err := b.Record(context.Background(), "learner-1", -1); err == nil {
		t.Error("Record() should reject negative tokens")
	}
}

func TestInMemoryBudget_Usage(t *testing.T) {
	b := NewInMemoryBudget(5000)
	ctx := context.Background()
	_ = b.Record(ctx, "learner-1", 1200)
	_ = b.Record(ctx, "learner-1", 300)

	used, limit, err := b.Usage(ctx, "learner-1")
	if err != nil {
		t.Fatalf("Usage() error = %v", err)
	}
	if used != 1500 || limit != 5000 {
		t.Errorf("Usage() = %d/%d, want 1500/5000", used, limit)
	}
}
