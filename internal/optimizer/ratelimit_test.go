package optimizer

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_FixedWindow(t *testing.T) {
	clock := newFakeClock()
	metrics := NewMetrics(prometheus.NewRegistry())
	rl := NewRateLimiter(2, time.Minute, clock, metrics)

	d := rl.Allow("client-a")
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)

	clock.Advance(10 * time.Second)
	d = rl.Allow("client-a")
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)

	d = rl.Allow("client-a")
	assert.False(t, d.Allowed)
	assert.Equal(t, 2, d.Limit)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, 50*time.Second, d.ResetIn)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RateLimited))

	assert.True(t, rl.Allow("client-b").Allowed, "clients are counted separately")

	clock.Advance(50 * time.Second)
	d = rl.Allow("client-a")
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)
}

func TestRateLimiter_Sweep(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(5, time.Minute, clock, nil)

	rl.Allow("a")
	clock.Advance(30 * time.Second)
	rl.Allow("b")
	assert.Equal(t, 2, rl.Len())

	clock.Advance(30 * time.Second)
	assert.Equal(t, 1, rl.Sweep(context.Background()))
	assert.Equal(t, 1, rl.Len())
}
