package optimizer

import (
	"context"
	"sync"
	"time"

	"github.com/Ayash-Bera/querygen/internal/cache"
)

// Decision is the outcome of one rate-limit check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetIn   time.Duration
}

type window struct {
	start time.Time
	count int
}

// RateLimiter counts requests per client in fixed windows.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*window
	max     int
	window  time.Duration
	clock   cache.Clock
	metrics *Metrics
}

func NewRateLimiter(max int, windowSize time.Duration, clock cache.Clock, metrics *Metrics) *RateLimiter {
	if clock == nil {
		clock = cache.RealClock
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &RateLimiter{
		clients: make(map[string]*window),
		max:     max,
		window:  windowSize,
		clock:   clock,
		metrics: metrics,
	}
}

// Allow records one request for clientID.
func (r *RateLimiter) Allow(clientID string) Decision {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.clients[clientID]
	if !ok || !now.Before(w.start.Add(r.window)) {
		w = &window{start: now}
		r.clients[clientID] = w
	}
	resetIn := w.start.Add(r.window).Sub(now)

	if w.count >= r.max {
		r.metrics.RateLimited.Inc()
		return Decision{Allowed: false, Limit: r.max, Remaining: 0, ResetIn: resetIn}
	}

	w.count++
	return Decision{Allowed: true, Limit: r.max, Remaining: r.max - w.count, ResetIn: resetIn}
}

// Sweep drops clients whose window has ended and reports how many.
func (r *RateLimiter) Sweep(context.Context) int {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, w := range r.clients {
		if !now.Before(w.start.Add(r.window)) {
			delete(r.clients, id)
			removed++
		}
	}
	return removed
}

// Len reports how many clients are tracked.
func (r *RateLimiter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}
