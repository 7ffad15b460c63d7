package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// BudgetChecker tracks daily token usage per learner.
type BudgetChecker interface {
	// Check reports whether the learner has budget left today.
	Check(ctx context.Context, learnerID string) (bool, error)
	// Record adds tokens to the learner's usage for today.
	Record(ctx context.Context, learnerID string, tokens int) error
	// Usage returns today's usage and the limit. A limit of 0 means unlimited.
	Usage(ctx context.Context, learnerID string) (used int64, limit int64, err error)
}

// InMemoryBudget keeps usage in process memory. It suits a single server.
type InMemoryBudget struct {
	mu    sync.RWMutex
	limit int64
	now   func() time.Time
	usage map[string]int64 // day:learner -> tokens used
}

// NewInMemoryBudget creates a tracker allowing limit tokens per learner per
// day. A limit of 0 disables the check.
func NewInMemoryBudget(limit int64) *InMemoryBudget {
	return &InMemoryBudget{
		limit: limit,
		now:   time.Now,
		usage: make(map[string]int64),
	}
}

func (b *InMemoryBudget) Check(_ context.Context, learnerID string) (bool, error) {
	if b.limit <= 0 {
		return true, nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.usage[budgetKey(b.now(), learnerID)] < b.limit, nil
}

func (b *InMemoryBudget) Record(_ context.Context, learnerID string, tokens int) error {
	if tokens < 0 {
		return fmt.Errorf("tokens must be non-negative, got %d", tokens)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.usage[budgetKey(b.now(), learnerID)] += int64(tokens)
	return nil
}

func (b *InMemoryBudget) Usage(_ context.Context, learnerID string) (int64, int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.usage[budgetKey(b.now(), learnerID)], b.limit, nil
}

// RedisBudget keeps usage in Redis so several servers share one budget.
// Daily counters expire on their own.
type RedisBudget struct {
	client *redis.Client
	limit  int64
	prefix string
	now    func() time.Time
}

// NewRedisBudget creates a Redis-backed tracker.
func NewRedisBudget(client *redis.Client, limit int64) *RedisBudget {
	return &RedisBudget{
		client: client,
		limit:  limit,
		prefix: "learn:budget:",
		now:    time.Now,
	}
}

func (b *RedisBudget) Check(ctx context.Context, learnerID string) (bool, error) {
	if b.limit <= 0 {
		return true, nil
	}
	used, _, err := b.Usage(ctx, learnerID)
	if err != nil {
		return false, err
	}
	return used < b.limit, nil
}

func (b *RedisBudget) Record(ctx context.Context, learnerID string, tokens int) error {
	if tokens < 0 {
		return fmt.Errorf("tokens must be non-negative, got %d", tokens)
	}
	key := b.prefix + budgetKey(b.now(), learnerID)

	pipe := b.client.TxPipeline()
	pipe.IncrBy(ctx, key, int64(tokens))
	pipe.Expire(ctx, key, 48*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record budget usage: %w", err)
	}
	return nil
}

func (b *RedisBudget) Usage(ctx context.Context, learnerID string) (int64, int64, error) {
	used, err := b.client.Get(ctx, b.prefix+budgetKey(b.now(), learnerID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, b.limit, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("read budget usage: %w", err)
	}
	return used, b.limit, nil
}

func budgetKey(now time.Time, learnerID string) string {
	return now.UTC().Format("2006-01-02") + ":" + learnerID
}
