// Package cache holds the process-wide cache abstraction shared by the
// template engine, the service optimizer and the HTTP response cache.
package cache

import (
	"context"
	"time"
)

// Sweeper is anything holding expiring entries.
type Sweeper interface {
	// Sweep drops expired entries and reports how many were removed.
	Sweep(ctx context.Context) int
	Len() int
}

// Store is a TTL key/value store. Implementations must be safe for
// concurrent use.
type Store interface {
	Sweeper
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Clock abstracts time so tests can drive expiry deterministically.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RealClock is the wall clock.
var RealClock Clock = realClock{}
