package oracle

import (
	"sync"
	"time"
)

// Guard отключает оракул на время после серии подряд идущих сбоев.
// Безопасен для конкурентного использования.
type Guard struct {
	mu            sync.Mutex
	maxFailures   int
	cooldown      time.Duration
	failures      int
	disabledUntil time.Time
	now           func() time.Time
}

// NewGuard создаёт Guard. maxFailures <= 0 отключает защиту.
func NewGuard(maxFailures int, cooldown time.Duration) *Guard {
	return &Guard{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		now:         time.Now,
	}
}

// Allow проверяет, можно ли обращаться к оракулу.
func (g *Guard) Allow() bool {
	if g == nil {
		return true
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.disabledUntil.IsZero() {
		return true
	}
	return g.now().After(g.disabledUntil)
}

// RecordFailure учитывает сбой.
func (g *Guard) RecordFailure() {
	if g == nil || g.maxFailures <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	g.failures++
	if g.failures >= g.maxFailures {
		g.disabledUntil = g.now().Add(g.cooldown)
	}
}

// RecordSuccess сбрасывает счётчик сбоев.
func (g *Guard) RecordSuccess() {
	if g == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	g.failures = 0
	g.disabledUntil = time.Time{}
}

// DisabledUntil возвращает время окончания паузы.
func (g *Guard) DisabledUntil() time.Time {
	if g == nil {
		return time.Time{}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.disabledUntil
}

// Failures возвращает число сбоев подряд.
func (g *Guard) Failures() int {
	if g == nil {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failures
}
