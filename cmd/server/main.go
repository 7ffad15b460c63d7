package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/p-n-ai/pai-courseware/internal/ai"
	"github.com/p-n-ai/pai-courseware/internal/content"
	"github.com/p-n-ai/pai-courseware/internal/curriculum"
	"github.com/p-n-ai/pai-courseware/internal/economy"
	"github.com/p-n-ai/pai-courseware/internal/httpapi"
	"github.com/p-n-ai/pai-courseware/internal/learner"
	"github.com/p-n-ai/pai-courseware/internal/platform/cache"
	"github.com/p-n-ai/pai-courseware/internal/platform/config"
	"github.com/p-n-ai/pai-courseware/internal/platform/database"
	"github.com/p-n-ai/pai-courseware/internal/platform/logging"
	"github.com/p-n-ai/pai-courseware/internal/session"
	"github.com/p-n-ai/pai-courseware/internal/state"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	logging.Setup(os.Stdout, cfg.Log)

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.close()

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      a.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr, "store", cfg.Store.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// app is the wired service: the HTTP handler and whatever must be closed after it.
type app struct {
	handler http.Handler
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newApp connects the configured backends and builds the handler. On error
// everything opened so far is closed.
func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	catalog, err := curriculum.NewCatalog(cfg.CurriculumPath)
	if err != nil {
		return nil, fmt.Errorf("load curriculum: %w", err)
	}

	var redisCache *cache.Cache
	if cfg.Cache.URL != "" {
		redisCache, err = cache.Open(ctx, cache.Config{URL: cfg.Cache.URL})
		if err != nil {
			return nil, fmt.Errorf("open cache: %w", err)
		}
		a.closers = append(a.closers, func() { redisCache.Close() })
	}

	kv, events, err := openStore(ctx, cfg, redisCache, a)
	if err != nil {
		return nil, err
	}

	reg := learner.NewRegistry(learner.Services{
		Catalog: catalog,
		Content: newContent(cfg, redisCache),
		Events:  events,
		Repo:    state.NewRepository(kv),
		Economy: economy.Config{
			MaxHearts:     cfg.Economy.MaxHearts,
			XPPerCorrect:  cfg.Economy.XPPerCorrect,
			PerfectBonus:  cfg.Economy.PerfectBonus,
			MajorityBonus: cfg.Economy.MajorityBonus,
		},
		Session: session.Config{
			ExerciseCount:     cfg.Session.Exercises,
			GenerationTimeout: cfg.Session.GenerationTimeout,
		},
		WeeklyGoalMinutes: cfg.Progress.WeeklyGoalMinutes,
	})

	a.handler = httpapi.New(reg).Handler()
	return a, nil
}

// openStore selects the learner state backend. Learning events go to
// PostgreSQL when it is the store and are discarded otherwise.
func openStore(ctx context.Context, cfg *config.Config, redisCache *cache.Cache, a *app) (state.KV, session.EventLogger, error) {
	switch cfg.Store.Backend {
	case config.StorePostgres:
		db, err := database.Open(ctx, database.Config{
			URL:      cfg.Database.URL,
			MaxConns: cfg.Database.MaxConns,
			MinConns: cfg.Database.MinConns,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		if err := db.Migrate(ctx); err != nil {
			return nil, nil, fmt.Errorf("migrate database: %w", err)
		}
		kv, err := state.NewPostgresKV(db.Pool)
		if err != nil {
			return nil, nil, err
		}
		return kv, session.NewPostgresEventLogger(db.Pool), nil

	case config.StoreSQLite:
		kv, err := state.OpenSQLite(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		a.closers = append(a.closers, func() { kv.Close() })
		return kv, session.NopEventLogger{}, nil

	case config.StoreRedis:
		if redisCache == nil {
			return nil, nil, errors.New("redis store requires LEARN_CACHE_URL")
		}
		return state.NewRedisKV(redisCache.Client), session.NopEventLogger{}, nil

	default:
		slog.Warn("using in-memory learner state; progress is lost on restart")
		return state.NewMemoryKV(), session.NopEventLogger{}, nil
	}
}

// newContent builds the generator chain. Without a provider only locally
// built lessons and exercises are served.
func newContent(cfg *config.Config, redisCache *cache.Cache) content.Generator {
	if !cfg.HasAIProvider() {
		slog.Info("no AI provider configured, serving built-in content only")
		return content.Unavailable{}
	}

	router := ai.NewRouter()
	if p := cfg.AI.OpenAI; p.APIKey != "" {
		var opts []ai.OpenAIOption
		if p.Model != "" {
			opts = append(opts, ai.WithModel(p.Model))
		}
		router.Register("openai", ai.NewOpenAIProvider(p.APIKey, opts...))
	}
	if p := cfg.AI.DeepSeek; p.APIKey != "" {
		var opts []ai.OpenAIOption
		if p.Model != "" {
			opts = append(opts, ai.WithModel(p.Model))
		}
		router.Register("deepseek", ai.NewDeepSeekProvider(p.APIKey, opts...))
	}
	if p := cfg.AI.Google; p.APIKey != "" {
		var opts []ai.GoogleOption
		if p.Model != "" {
			opts = append(opts, ai.WithGoogleModel(p.Model))
		}
		router.Register("google", ai.NewGoogleProvider(p.APIKey, opts...))
	}

	var budget ai.BudgetChecker = ai.NewInMemoryBudget(cfg.AI.DailyTokenLimit)
	if redisCache != nil {
		budget = ai.NewRedisBudget(redisCache.Client, cfg.AI.DailyTokenLimit)
	}

	var gen content.Generator = content.NewAIGenerator(content.AIGeneratorConfig{Router: router, Budget: budget})
	if redisCache != nil {
		gen = content.NewCachedGenerator(gen, redisCache.Client, cfg.Cache.ContentTTL)
	}
	slog.Info("content generation enabled", "providers", router.Providers())
	return gen
}
