package optimizer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type batchResult struct {
	data []byte
	err  error
}

type batchItem struct {
	ctx  context.Context
	fn   func(ctx context.Context) ([]byte, error)
	done chan batchResult
}

// Batcher queues calls of one request type and runs them together once the
// batch is full or the oldest queued call has waited BatchTimeout.
type Batcher struct {
	name    string
	maxSize int
	timeout time.Duration
	metrics *Metrics
	logger  *logrus.Logger

	mu      sync.Mutex
	pending []*batchItem
	timer   *time.Timer
	seq     uint64
}

func NewBatcher(name string, maxSize int, timeout time.Duration, metrics *Metrics, logger *logrus.Logger) *Batcher {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &Batcher{
		name:    name,
		maxSize: maxSize,
		timeout: timeout,
		metrics: metrics,
		logger:  logger,
	}
}

// Submit queues fn and blocks until its batch has run or ctx ends.
func (b *Batcher) Submit(ctx context.Context, fn func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	item := &batchItem{ctx: ctx, fn: fn, done: make(chan batchResult, 1)}

	b.mu.Lock()
	b.pending = append(b.pending, item)
	if len(b.pending) >= b.maxSize {
		items := b.take()
		b.mu.Unlock()
		go b.run(items, "size")
	} else {
		if len(b.pending) == 1 {
			seq := b.seq
			b.timer = time.AfterFunc(b.timeout, func() { b.flushTimeout(seq) })
		}
		b.mu.Unlock()
	}

	select {
	case res := <-item.done:
		return res.data, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Pending reports how many calls wait for a flush.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// take must be called with mu held.
func (b *Batcher) take() []*batchItem {
	items := b.pending
	b.pending = nil
	b.seq++
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	return items
}

func (b *Batcher) flushTimeout(seq uint64) {
	b.mu.Lock()
	if seq != b.seq || len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	items := b.take()
	b.mu.Unlock()

	b.run(items, "timeout")
}

func (b *Batcher) run(items []*batchItem, trigger string) {
	start := time.Now()

	var wg sync.WaitGroup
	for _, item := range items {
		wg.Add(1)
		go func(item *batchItem) {
			defer wg.Done()
			if err := item.ctx.Err(); err != nil {
				item.done <- batchResult{err: err}
				return
			}
			data, err := item.fn(item.ctx)
			item.done <- batchResult{data: data, err: err}
		}(item)
	}
	wg.Wait()

	elapsed := time.Since(start)
	perMember := elapsed / time.Duration(len(items))

	b.metrics.BatchSize.WithLabelValues(b.name).Observe(float64(len(items)))
	b.metrics.BatchMemberCost.WithLabelValues(b.name).Observe(perMember.Seconds())

	b.logger.WithFields(logrus.Fields{
		"type":        b.name,
		"size":        len(items),
		"trigger":     trigger,
		"duration_ms": elapsed.Milliseconds(),
		"per_member":  perMember,
	}).Debug("Flushed batch")
}
