package config

import (
	"strings"
	"testing"
	"time"
)

// clearEnv blanks every LEARN_ variable Load reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	envVars := []string{
		"LEARN_SERVER_PORT",
		"LEARN_SERVER_HOST",
		"LEARN_SERVER_SHUTDOWN_TIMEOUT",
		"LEARN_STORE",
		"LEARN_SQLITE_PATH",
		"LEARN_DATABASE_URL",
		"LEARN_DATABASE_MAX_CONNS",
		"LEARN_DATABASE_MIN_CONNS",
		"LEARN_CACHE_URL",
		"LEARN_CONTENT_CACHE_TTL",
		"LEARN_AI_OPENAI_API_KEY",
		"LEARN_AI_OPENAI_MODEL",
		"LEARN_AI_DEEPSEEK_API_KEY",
		"LEARN_AI_DEEPSEEK_MODEL",
		"LEARN_AI_GOOGLE_API_KEY",
		"LEARN_AI_GOOGLE_MODEL",
		"LEARN_AI_DAILY_TOKEN_LIMIT",
		"LEARN_HEARTS_MAX",
		"LEARN_XP_PER_CORRECT",
		"LEARN_BONUS_PERFECT",
		"LEARN_BONUS_MAJORITY",
		"LEARN_SESSION_EXERCISES",
		"LEARN_SESSION_GENERATION_TIMEOUT",
		"LEARN_WEEKLY_GOAL_MINUTES",
		"LEARN_LOG_LEVEL",
		"LEARN_LOG_FORMAT",
		"LEARN_CURRICULUM_PATH",
	}
	for _, v := range envVars {
		t.Setenv(v, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.Addr() != "0.0.0.0:8080" {
		t.Errorf("Server.Addr() = %q", cfg.Server.Addr())
	}
	if cfg.Store.Backend != StoreMemory {
		t.Errorf("Store.Backend = %q, want memory", cfg.Store.Backend)
	}
	if cfg.Cache.URL != "" {
		t.Errorf("Cache.URL = %q, want empty", cfg.Cache.URL)
	}
	if cfg.Cache.ContentTTL != 24*time.Hour {
		t.Errorf("Cache.ContentTTL = %v, want 24h", cfg.Cache.ContentTTL)
	}
	if cfg.Economy != (EconomyConfig{MaxHearts: 5, XPPerCorrect: 10, PerfectBonus: 5, MajorityBonus: 2}) {
		t.Errorf("Economy = %+v", cfg.Economy)
	}
	if cfg.Session.Exercises != 4 || cfg.Session.GenerationTimeout != 20*time.Second {
		t.Errorf("Session = %+v", cfg.Session)
	}
	if cfg.Progress.WeeklyGoalMinutes != 60 {
		t.Errorf("WeeklyGoalMinutes = %d, want 60", cfg.Progress.WeeklyGoalMinutes)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.HasAIProvider() {
		t.Error("HasAIProvider() = true with no keys")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("LEARN_SERVER_PORT", "9090")
	t.Setenv("LEARN_STORE", "SQLite")
	t.Setenv("LEARN_SQLITE_PATH", "/var/lib/learn/state.db")
	t.Setenv("LEARN_HEARTS_MAX", "3")
	t.Setenv("LEARN_XP_PER_CORRECT", "15")
	t.Setenv("LEARN_SESSION_GENERATION_TIMEOUT", "5s")
	t.Setenv("LEARN_AI_GOOGLE_API_KEY", "g-key")
	t.Setenv("LEARN_AI_DAILY_TOKEN_LIMIT", "1000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Store.Backend != StoreSQLite || cfg.Store.SQLitePath != "/var/lib/learn/state.db" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.Economy.MaxHearts != 3 || cfg.Economy.XPPerCorrect != 15 {
		t.Errorf("Economy = %+v", cfg.Economy)
	}
	if cfg.Session.GenerationTimeout != 5*time.Second {
		t.Errorf("GenerationTimeout = %v, want 5s", cfg.Session.GenerationTimeout)
	}
	if !cfg.HasAIProvider() {
		t.Error("HasAIProvider() = false with a Google key")
	}
	if cfg.AI.DailyTokenLimit != 1000 {
		t.Errorf("DailyTokenLimit = %d, want 1000", cfg.AI.DailyTokenLimit)
	}
}

func TestLoad_BadNumbersFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("LEARN_SERVER_PORT", "eighty")
	t.Setenv("LEARN_SESSION_GENERATION_TIMEOUT", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want fallback 8080", cfg.Server.Port)
	}
	if cfg.Session.GenerationTimeout != 20*time.Second {
		t.Errorf("GenerationTimeout = %v, want fallback 20s", cfg.Session.GenerationTimeout)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"unknown store", func(c *Config) { c.Store.Backend = "mongo" }, "LEARN_STORE"},
		{"redis store without url", func(c *Config) { c.Store.Backend = StoreRedis }, "LEARN_CACHE_URL"},
		{"redis store with url", func(c *Config) {
			c.Store.Backend = StoreRedis
			c.Cache.URL = "redis://localhost:6379"
		}, ""},
		{"sqlite without path", func(c *Config) {
			c.Store.Backend = StoreSQLite
			c.Store.SQLitePath = ""
		}, "LEARN_SQLITE_PATH"},
		{"zero hearts", func(c *Config) { c.Economy.MaxHearts = 0 }, "LEARN_HEARTS_MAX"},
		{"negative bonus", func(c *Config) { c.Economy.PerfectBonus = -1 }, "reward constants"},
		{"no exercises", func(c *Config) { c.Session.Exercises = 0 }, "LEARN_SESSION_EXERCISES"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "LEARN_SERVER_PORT"},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }, "LEARN_LOG_LEVEL"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "LEARN_LOG_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			cfg, err := Load()
			if err != nil {
				t.Fatal(err)
			}
			tt.mutate(cfg)
			err = cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}
