package services

import (
	"sync"
	"time"
)

// RateWindow is the span of the sliding admission window.
const RateWindow = time.Hour

// RateStats is a point-in-time view of a Limiter.
type RateStats struct {
	MaxPerHour     int        `json:"max_per_hour"`
	SentLastHour   int        `json:"sent_last_hour"`
	Remaining      int        `json:"remaining"`
	TotalCost      float64    `json:"total_cost"`
	CostLastHour   float64    `json:"cost_last_hour"`
	OldestInWindow *time.Time `json:"oldest_in_window,omitempty"`
}

// Limiter admits dispatch batches against a sliding one-hour window of
// successful provider sends and accumulates send cost. All state sits
// behind one mutex; it is shared by every dispatch worker.
//
// The window is in-process only. A restart empties it.
type Limiter struct {
	maxPerHour     int
	costPerMessage float64
	now            func() time.Time

	mu        sync.Mutex
	sent      []time.Time // ascending
	totalCost float64
}

// NewLimiter returns a Limiter allowing maxPerHour successful sends per
// rolling hour. now may be nil, in which case time.Now is used.
func NewLimiter(maxPerHour int, costPerMessage float64, now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	return &Limiter{maxPerHour: maxPerHour, costPerMessage: costPerMessage, now: now}
}

// evict drops timestamps that fell out of the window. Caller holds mu.
func (l *Limiter) evict(now time.Time) {
	cutoff := now.Add(-RateWindow)
	i := 0
	for i < len(l.sent) && !l.sent[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.sent = append(l.sent[:0], l.sent[i:]...)
	}
}

// Admit reports whether a new batch may start. It is checked once per
// batch; a batch admitted here runs to completion even if it pushes the
// window past the limit.
func (l *Limiter) Admit() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evict(l.now())
	return len(l.sent) < l.maxPerHour
}

// RetryAfter returns how long until the oldest send leaves the window, or 0
// when the window has room.
func (l *Limiter) RetryAfter() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.evict(now)
	if len(l.sent) < l.maxPerHour || len(l.sent) == 0 {
		return 0
	}
	return l.sent[0].Add(RateWindow).Sub(now)
}

// RecordSuccess notes one accepted provider send and adds its cost.
func (l *Limiter) RecordSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.evict(now)
	// keep the slice ordered even if the clock steps backwards
	if n := len(l.sent); n > 0 && now.Before(l.sent[n-1]) {
		now = l.sent[n-1]
	}
	l.sent = append(l.sent, now)
	l.totalCost += l.costPerMessage

	rateWindowSize.Set(float64(len(l.sent)))
	if l.costPerMessage > 0 {
		costTotal.Add(l.costPerMessage)
	}
}

// Stats returns the current window occupancy and cost counters.
func (l *Limiter) Stats() RateStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evict(l.now())

	n := len(l.sent)
	st := RateStats{
		MaxPerHour:   l.maxPerHour,
		SentLastHour: n,
		Remaining:    max(l.maxPerHour-n, 0),
		TotalCost:    l.totalCost,
		CostLastHour: float64(n) * l.costPerMessage,
	}
	if n > 0 {
		oldest := l.sent[0]
		st.OldestInWindow = &oldest
	}
	return st
}
