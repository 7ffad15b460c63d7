package content

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"

	"github.com/p-n-ai/pai-courseware/internal/exercise"
)

const defaultCacheTTL = 24 * time.Hour

// CachedGenerator serves repeated requests for the same lesson from Redis.
// Cache failures never fail a request; they fall through to the wrapped
// generator.
type CachedGenerator struct {
	next   Generator
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewCachedGenerator wraps next with a Redis cache.
func NewCachedGenerator(next Generator, client *redis.Client, ttl time.Duration) *CachedGenerator {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedGenerator{
		next:   next,
		client: client,
		ttl:    ttl,
		prefix: "learn:content:",
	}
}

func (c *CachedGenerator) GenerateLesson(ctx context.Context, req Request) (LessonText, error) {
	key := c.key("lesson", req)

	if data, ok := c.get(ctx, key); ok {
		var text LessonText
		if err := json.Unmarshal(data, &text); err == nil {
			return text, nil
		}
		slog.Warn("discarding unreadable cached lesson", "key", key)
	}

	text, err := c.next.GenerateLesson(ctx, req)
	if err != nil {
		return LessonText{}, err
	}
	if data, err := json.Marshal(text); err == nil {
		c.set(ctx, key, data)
	}
	return text, nil
}

func (c *CachedGenerator) GenerateExercises(ctx context.Context, req Request) ([]exercise.Exercise, error) {
	key := c.key("exercises", req)

	if data, ok := c.get(ctx, key); ok {
		exs, _, err := exercise.DecodeList(data)
		if err == nil && len(exs) > 0 {
			return exs, nil
		}
		slog.Warn("discarding unreadable cached exercises", "key", key)
	}

	exs, err := c.next.GenerateExercises(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(exs) == 0 {
		return exs, nil
	}
	if data, err := exercise.MarshalList(exs); err == nil {
		c.set(ctx, key, data)
	}
	return exs, nil
}

// key identifies the content, not the learner: two learners on the same
// lesson share cached output.
func (c *CachedGenerator) key(kind string, req Request) string {
	ident, _ := json.Marshal(struct {
		Kind    string `json:"kind"`
		Subject string `json:"subject"`
		Unit    string `json:"unit"`
		Item    string `json:"item"`
		Check   bool   `json:"checkpoint"`
		Count   int    `json:"count"`
	}{kind, req.SubjectID, req.UnitID, req.ItemID(), req.IsCheckpoint(), req.Count})
	sum := blake2b.Sum256(ident)
	return c.prefix + kind + ":" + hex.EncodeToString(sum[:16])
}

func (c *CachedGenerator) get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		slog.Warn("content cache read failed", "key", key, "error", err)
		return nil, false
	}
	return data, true
}

func (c *CachedGenerator) set(ctx context.Context, key string, data []byte) {
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		slog.Warn("content cache write failed", "key", key, "error", err)
	}
}
