package economy

import "sync"

// HeartsPool is a clamped counter of lives: 0 <= Hearts() <= Max() after every call.
type HeartsPool struct {
	mu     sync.Mutex
	hearts int
	max    int
}

// NewHeartsPool returns a full pool holding capacity hearts.
func NewHeartsPool(capacity int) *HeartsPool {
	if capacity < 1 {
		capacity = defaultMaxHearts
	}
	return &HeartsPool{hearts: capacity, max: capacity}
}

// Lose removes a heart and returns what is left.
func (p *HeartsPool) Lose() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hearts > 0 {
		p.hearts--
	}
	return p.hearts
}

// Add restores a heart and returns the new count.
func (p *HeartsPool) Add() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hearts < p.max {
		p.hearts++
	}
	return p.hearts
}

// Reset refills the pool.
func (p *HeartsPool) Reset() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hearts = p.max
	return p.hearts
}

// Hearts returns the current count.
func (p *HeartsPool) Hearts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hearts
}

// Max returns the pool capacity.
func (p *HeartsPool) Max() int {
	return p.max
}

// Empty reports whether no hearts are left.
func (p *HeartsPool) Empty() bool {
	return p.Hearts() == 0
}

func (p *HeartsPool) set(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hearts = min(max(n, 0), p.max)
}
