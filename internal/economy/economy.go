// Package economy owns the hearts pool that gates practice and the ledger of
// rewards a learner accumulates.
package economy

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

const (
	defaultMaxHearts     = 5
	defaultXPPerCorrect  = 10
	defaultPerfectBonus  = 5
	defaultMajorityBonus = 2
)

// ErrPrecondition is returned when a reward request cannot describe a real session.
var ErrPrecondition = errors.New("economy precondition violated")

// Config holds the economy constants. Zero values fall back to defaults.
type Config struct {
	MaxHearts     int
	XPPerCorrect  int
	PerfectBonus  int // gems for full marks
	MajorityBonus int // gems for more than half correct
}

// DefaultConfig returns the standard constant set.
func DefaultConfig() Config {
	return Config{
		MaxHearts:     defaultMaxHearts,
		XPPerCorrect:  defaultXPPerCorrect,
		PerfectBonus:  defaultPerfectBonus,
		MajorityBonus: defaultMajorityBonus,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxHearts <= 0 {
		c.MaxHearts = defaultMaxHearts
	}
	if c.XPPerCorrect <= 0 {
		c.XPPerCorrect = defaultXPPerCorrect
	}
	if c.PerfectBonus < 0 {
		c.PerfectBonus = 0
	}
	if c.MajorityBonus < 0 {
		c.MajorityBonus = 0
	}
	return c
}

// Tier is the bonus band a graded session falls into.
type Tier string

const (
	TierNone     Tier = "none"
	TierMajority Tier = "majority"
	TierPerfect  Tier = "perfect"
)

// Ledger is the accumulated reward currency. It only ever grows.
type Ledger struct {
	XP   int `json:"xp"`
	Gems int `json:"gems"`
}

// Reward is what a single GrantReward call added to the ledger.
type Reward struct {
	XP   int  `json:"xp"`
	Gems int  `json:"gems"`
	Tier Tier `json:"tier"`
}

// State is the persisted form of the economy.
type State struct {
	Hearts    int    `json:"hearts"`
	MaxHearts int    `json:"max_hearts"`
	Ledger    Ledger `json:"ledger"`
}

// Economy holds the learner's current hearts pool and reward ledger.
// All methods are safe for concurrent use.
type Economy struct {
	mu     sync.Mutex
	cfg    Config
	pool   *HeartsPool
	ledger Ledger
}

// New creates an economy with a full hearts pool and an empty ledger.
func New(cfg Config) *Economy {
	cfg = cfg.withDefaults()
	return &Economy{
		cfg:  cfg,
		pool: NewHeartsPool(cfg.MaxHearts),
	}
}

// Config returns the constants in effect.
func (e *Economy) Config() Config {
	return e.cfg
}

// BeginSession installs a fresh, full hearts pool for a new practice session
// and returns it. Pools handed out earlier are no longer affected by
// LoseHeart, AddHeart or ResetHearts.
func (e *Economy) BeginSession() *HeartsPool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pool = NewHeartsPool(e.cfg.MaxHearts)
	return e.pool
}

func (e *Economy) current() *HeartsPool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pool
}

// LoseHeart removes one heart from the current pool, never going below zero.
func (e *Economy) LoseHeart() int { return e.current().Lose() }

// AddHeart restores one heart to the current pool, never exceeding the max.
func (e *Economy) AddHeart() int { return e.current().Add() }

// ResetHearts refills the current pool.
func (e *Economy) ResetHearts() int { return e.current().Reset() }

// Hearts returns the hearts left in the current pool.
func (e *Economy) Hearts() int { return e.current().Hearts() }

// MaxHearts returns the pool capacity.
func (e *Economy) MaxHearts() int { return e.cfg.MaxHearts }

// Ledger returns the accumulated rewards.
func (e *Economy) Ledger() Ledger {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger
}

// GrantReward credits score correct answers out of total and adds the bonus
// for the tier reached. It does not deduplicate: callers must invoke it once
// per completed session.
func (e *Economy) GrantReward(score, total int) (Reward, error) {
	if total <= 0 || score < 0 || score > total {
		slog.Warn("reward rejected", "score", score, "total", total)
		return Reward{}, fmt.Errorf("grant reward %d/%d: %w", score, total, ErrPrecondition)
	}

	r := Reward{XP: score * e.cfg.XPPerCorrect, Tier: TierFor(score, total)}
	switch r.Tier {
	case TierPerfect:
		r.Gems = e.cfg.PerfectBonus
	case TierMajority:
		r.Gems = e.cfg.MajorityBonus
	}

	e.mu.Lock()
	e.ledger.XP += r.XP
	e.ledger.Gems += r.Gems
	e.mu.Unlock()

	slog.Info("reward granted", "score", score, "total", total, "xp", r.XP, "gems", r.Gems, "tier", r.Tier)
	return r, nil
}

// TierFor returns the bonus tier for score out of total.
func TierFor(score, total int) Tier {
	switch {
	case total > 0 && score == total:
		return TierPerfect
	case score*2 > total:
		return TierMajority
	default:
		return TierNone
	}
}

// Snapshot returns the state to persist.
func (e *Economy) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return State{
		Hearts:    e.pool.Hearts(),
		MaxHearts: e.pool.Max(),
		Ledger:    e.ledger,
	}
}

// Restore replaces the economy's state with s. Out-of-range values are clamped
// and the configured max always wins over a persisted one.
func (e *Economy) Restore(s State) {
	pool := NewHeartsPool(e.cfg.MaxHearts)
	pool.set(s.Hearts)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.pool = pool
	e.ledger = Ledger{XP: max(0, s.Ledger.XP), Gems: max(0, s.Ledger.Gems)}
}
