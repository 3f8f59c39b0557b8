// Package optimizer makes repeated or concurrent calls to external providers
// cheap and bounded: a result cache, in-flight deduplication, batching, retry
// with a per-call timeout, and a per-client rate limiter.
package optimizer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Ayash-Bera/querygen/internal/cache"
	"github.com/Ayash-Bera/querygen/pkg/utils"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

type Options struct {
	CacheTTL     time.Duration
	MaxBatchSize int
	BatchTimeout time.Duration
	Retry        RetryConfig
}

func DefaultOptions() Options {
	return Options{
		CacheTTL:     1800 * time.Second,
		MaxBatchSize: 10,
		BatchTimeout: 5 * time.Second,
		Retry:        DefaultRetryConfig(),
	}
}

// Request describes one external call.
type Request struct {
	// ID, when set, is the in-flight dedup key; otherwise the cache key is.
	ID        string
	Type      string
	Payload   interface{}
	Batchable bool
	CacheTTL  time.Duration
	NoCache   bool
}

// Stats are cumulative counters since start.
type Stats struct {
	CacheHits      int64 `json:"cacheHits"`
	CacheMisses    int64 `json:"cacheMisses"`
	InflightShared int64 `json:"inflightShared"`
	Executions     int64 `json:"executions"`
	Retries        int64 `json:"retries"`
	Failures       int64 `json:"failures"`
	CacheEntries   int   `json:"cacheEntries"`
}

type Optimizer struct {
	store   cache.Store
	opts    Options
	metrics *Metrics
	logger  *logrus.Logger
	group   singleflight.Group

	mu       sync.Mutex
	batchers map[string]*Batcher

	hits, misses, shared, executions, retries, failures atomic.Int64
}

func New(store cache.Store, opts Options, metrics *Metrics, logger *logrus.Logger) *Optimizer {
	defaults := DefaultOptions()
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaults.CacheTTL
	}
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = defaults.MaxBatchSize
	}
	if opts.BatchTimeout <= 0 {
		opts.BatchTimeout = defaults.BatchTimeout
	}
	if opts.Retry.CallTimeout <= 0 {
		opts.Retry.CallTimeout = defaults.Retry.CallTimeout
	}
	if opts.Retry.MaxRetries < 0 {
		opts.Retry.MaxRetries = 0
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Optimizer{
		store:    store,
		opts:     opts,
		metrics:  metrics,
		logger:   logger,
		batchers: make(map[string]*Batcher),
	}
}

// CacheKey is the MD5 of the request type and its JSON payload.
func CacheKey(reqType string, payload interface{}) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s payload: %w", reqType, err)
	}
	return utils.MD5Hash(reqType + ":" + string(data)), nil
}

// Execute serves req from cache, joins an identical in-flight call, or runs
// call (batched when req.Batchable) with retry, caching a successful result.
func (o *Optimizer) Execute(ctx context.Context, req Request, call Call) ([]byte, error) {
	key, err := CacheKey(req.Type, req.Payload)
	if err != nil {
		return nil, err
	}

	if !req.NoCache {
		data, ok, err := o.store.Get(ctx, key)
		if err != nil {
			o.logger.WithError(err).WithField("type", req.Type).Warn("Optimizer cache read failed")
		}
		if ok {
			o.hits.Add(1)
			o.metrics.CacheHits.WithLabelValues(req.Type).Inc()
			return data, nil
		}
		o.misses.Add(1)
		o.metrics.CacheMisses.WithLabelValues(req.Type).Inc()
	}

	flightKey := req.ID
	if flightKey == "" {
		flightKey = key
	}

	ch := o.group.DoChan(flightKey, func() (interface{}, error) {
		// Detached so one caller's cancellation does not fail the others.
		runCtx := context.WithoutCancel(ctx)
		return o.run(runCtx, key, req, call)
	})

	select {
	case res := <-ch:
		if res.Shared {
			o.shared.Add(1)
			o.metrics.InflightShared.WithLabelValues(req.Type).Inc()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (o *Optimizer) run(ctx context.Context, key string, req Request, call Call) ([]byte, error) {
	o.executions.Add(1)

	attempt := func(ctx context.Context) ([]byte, error) {
		return Retry(ctx, o.opts.Retry, o.logger, func() {
			o.retries.Add(1)
			o.metrics.Retries.WithLabelValues(req.Type).Inc()
		}, call)
	}

	var (
		data []byte
		err  error
	)
	if req.Batchable {
		data, err = o.batcher(req.Type).Submit(ctx, attempt)
	} else {
		data, err = attempt(ctx)
	}
	if err != nil {
		o.failures.Add(1)
		return nil, fmt.Errorf("%s: %w", req.Type, err)
	}

	if !req.NoCache {
		ttl := req.CacheTTL
		if ttl <= 0 {
			ttl = o.opts.CacheTTL
		}
		if err := o.store.Set(ctx, key, data, ttl); err != nil {
			o.logger.WithError(err).WithField("type", req.Type).Warn("Optimizer cache write failed")
		}
	}
	return data, nil
}

func (o *Optimizer) batcher(reqType string) *Batcher {
	o.mu.Lock()
	defer o.mu.Unlock()

	b, ok := o.batchers[reqType]
	if !ok {
		b = NewBatcher(reqType, o.opts.MaxBatchSize, o.opts.BatchTimeout, o.metrics, o.logger)
		o.batchers[reqType] = b
	}
	return b
}

func (o *Optimizer) Stats() Stats {
	return Stats{
		CacheHits:      o.hits.Load(),
		CacheMisses:    o.misses.Load(),
		InflightShared: o.shared.Load(),
		Executions:     o.executions.Load(),
		Retries:        o.retries.Load(),
		Failures:       o.failures.Load(),
		CacheEntries:   o.store.Len(),
	}
}
