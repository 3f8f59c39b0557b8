package optimizer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Ayash-Bera/querygen/internal/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testOptions() Options {
	return Options{
		CacheTTL:     time.Minute,
		MaxBatchSize: 10,
		BatchTimeout: 10 * time.Millisecond,
		Retry: RetryConfig{
			MaxRetries:  3,
			Delay:       time.Millisecond,
			CallTimeout: time.Second,
		},
	}
}

func newTestOptimizer(t *testing.T, store cache.Store, opts Options) (*Optimizer, *Metrics) {
	t.Helper()
	metrics := NewMetrics(prometheus.NewRegistry())
	return New(store, opts, metrics, testLogger()), metrics
}

func TestCacheKey(t *testing.T) {
	a, err := CacheKey("ai:expansion", map[string]interface{}{"q": "tech"})
	require.NoError(t, err)
	b, err := CacheKey("ai:expansion", map[string]interface{}{"q": "tech"})
	require.NoError(t, err)
	c, err := CacheKey("ai:refinement", map[string]interface{}{"q": "tech"})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 32)

	_, err = CacheKey("bad", make(chan int))
	assert.Error(t, err)
}

func TestExecute_CachesResults(t *testing.T) {
	store := cache.NewMemoryStore(10, time.Minute, nil)
	opt, metrics := newTestOptimizer(t, store, testOptions())
	ctx := context.Background()

	var calls atomic.Int32
	call := func(context.Context, int) ([]byte, error) {
		calls.Add(1)
		return []byte("result"), nil
	}
	req := Request{Type: "ai:expansion", Payload: "tech journalists"}

	for i := 0; i < 3; i++ {
		data, err := opt.Execute(ctx, req, call)
		require.NoError(t, err)
		assert.Equal(t, []byte("result"), data)
	}

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.CacheHits.WithLabelValues("ai:expansion")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheMisses.WithLabelValues("ai:expansion")))

	stats := opt.Stats()
	assert.Equal(t, int64(2), stats.CacheHits)
	assert.Equal(t, 1, stats.CacheEntries)
}

func TestExecute_CacheEntryExpires(t *testing.T) {
	clock := newFakeClock()
	store := cache.NewMemoryStore(10, time.Minute, clock)
	opt, _ := newTestOptimizer(t, store, testOptions())
	ctx := context.Background()

	var calls atomic.Int32
	call := func(context.Context, int) ([]byte, error) {
		calls.Add(1)
		return []byte("ok"), nil
	}
	req := Request{Type: "ai:refinement", Payload: "q", CacheTTL: 30 * time.Second}

	_, err := opt.Execute(ctx, req, call)
	require.NoError(t, err)
	clock.Advance(29 * time.Second)
	_, err = opt.Execute(ctx, req, call)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	clock.Advance(time.Second)
	_, err = opt.Execute(ctx, req, call)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestExecute_FailuresAreNotCached(t *testing.T) {
	store := cache.NewMemoryStore(10, time.Minute, nil)
	opts := testOptions()
	opts.Retry.MaxRetries = 0
	opt, _ := newTestOptimizer(t, store, opts)

	_, err := opt.Execute(context.Background(), Request{Type: "t", Payload: 1}, func(context.Context, int) ([]byte, error) {
		return nil, errors.New("boom")
	})
	require.Error(t, err)
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, int64(1), opt.Stats().Failures)
}

func TestExecute_SharesInflightCalls(t *testing.T) {
	store := cache.NewMemoryStore(10, time.Minute, nil)
	opt, _ := newTestOptimizer(t, store, testOptions())

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	var calls atomic.Int32

	call := func(context.Context, int) ([]byte, error) {
		calls.Add(1)
		once.Do(func() { close(started) })
		<-release
		return []byte("shared"), nil
	}

	const callers = 5
	var wg sync.WaitGroup
	results := make([][]byte, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data, err := opt.Execute(context.Background(), Request{ID: "same-request", Type: "t", Payload: i, NoCache: true}, call)
			assert.NoError(t, err)
			results[i] = data
		}(i)
	}

	<-started
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, []byte("shared"), r)
	}
	assert.Equal(t, int64(callers), opt.Stats().InflightShared)
}

func TestExecute_CallerCancellation(t *testing.T) {
	store := cache.NewMemoryStore(10, time.Minute, nil)
	opt, _ := newTestOptimizer(t, store, testOptions())

	release := make(chan struct{})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := opt.Execute(ctx, Request{Type: "slow", Payload: 1}, func(context.Context, int) ([]byte, error) {
		<-release
		return []byte("late"), nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExecute_Batched(t *testing.T) {
	store := cache.NewMemoryStore(10, time.Minute, nil)
	opts := testOptions()
	opts.MaxBatchSize = 3
	opts.BatchTimeout = time.Hour
	opt, metrics := newTestOptimizer(t, store, opts)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data, err := opt.Execute(context.Background(), Request{Type: "ai:expansion", Payload: i, Batchable: true},
				func(context.Context, int) ([]byte, error) {
					return []byte(fmt.Sprintf("r%d", i)), nil
				})
			assert.NoError(t, err)
			assert.Equal(t, fmt.Sprintf("r%d", i), string(data))
		}(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("batch was not flushed at max size")
	}

	assert.Equal(t, 1, testutil.CollectAndCount(metrics.BatchSize))
}
