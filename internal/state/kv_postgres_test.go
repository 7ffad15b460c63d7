package state_test

import (
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/p-n-ai/pai-courseware/internal/platform/database"
	"github.com/p-n-ai/pai-courseware/internal/state"
)

func TestPostgresKV(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := t.Context()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("courseware"),
		postgres.WithUsername("learn"),
		postgres.WithPassword("learn"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	url, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("ConnectionString() error = %v", err)
	}
	db, err := database.Open(ctx, database.Config{URL: url, MaxConns: 4})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	// Second run is a no-op.
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() again error = %v", err)
	}

	kv, err := state.NewPostgresKV(db.Pool)
	if err != nil {
		t.Fatalf("NewPostgresKV() error = %v", err)
	}
	testKV(t, kv)
	testRepository(t, kv)
}

func TestNewPostgresKV_NilPool(t *testing.T) {
	if _, err := state.NewPostgresKV(nil); err == nil {
		t.Error("NewPostgresKV(nil) error = nil")
	}
}

func TestRedisKV(t *testing.T) {
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

	testKV(t, state.NewRedisKV(client))
}
