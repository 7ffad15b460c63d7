package content_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/p-n-ai/pai-courseware/internal/ai"
	"github.com/p-n-ai/pai-courseware/internal/content"
)

func TestCachedGenerator_CacheDownFallsThrough(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "localhost:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	mock := ai.NewMockProvider(generatedJSON)
	gen := content.NewCachedGenerator(newGenerator(mock, nil), client, time.Minute)

	exs, err := gen.GenerateExercises(context.Background(), lessonRequest(4))
	if err != nil {
		t.Fatalf("GenerateExercises() error = %v", err)
	}
	if len(exs) != 3 {
		t.Errorf("len = %d, want 3", len(exs))
	}
	if mock.CallCount() != 1 {
		t.Errorf("provider calls = %d, want 1", mock.CallCount())
	}
}

func TestCachedGenerator_Redis(t *testing.T) {
	url := os.Getenv("LEARN_TEST_CACHE_URL")
	if testing.Short() || url == "" {
		t.Skip("set LEARN_TEST_CACHE_URL to run against a live Redis")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("ParseURL() error = %v", err)
	}
	client := redis.NewClient(opts)
	defer client.Close()

	mock := ai.NewMockProvider(generatedJSON)
	gen := content.NewCachedGenerator(newGenerator(mock, nil), client, time.Minute)
	req := lessonRequest(4)
	req.SubjectID = "cache-test-" + time.Now().Format("150405.000000")

	for i := 0; i < 2; i++ {
		exs, err := gen.GenerateExercises(context.Background(), req)
		if err != nil {
			t.Fatalf("GenerateExercises() error = %v", err)
		}
		if len(exs) != 3 {
			t.Fatalf("call %d: len = %d, want 3", i, len(exs))
		}
	}
	if mock.CallCount() != 1 {
		t.Errorf("provider calls = %d, want 1 (second call served from cache)", mock.CallCount())
	}
}
