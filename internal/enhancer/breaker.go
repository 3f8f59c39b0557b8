package enhancer

import (
	"context"
	"errors"
	"time"

	"github.com/Ayash-Bera/querygen/internal/optimizer"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// BreakerProvider stops calling a failing provider for a cooldown period.
// Calls rejected by an open breaker are not retried.
type BreakerProvider struct {
	inner Provider
	cb    *gobreaker.CircuitBreaker
}

func NewBreakerProvider(inner Provider, failures uint32, cooldown time.Duration, logger *logrus.Logger) *BreakerProvider {
	if failures == 0 {
		failures = 5
	}
	settings := gobreaker.Settings{
		Name:        inner.Name(),
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellation says nothing about provider health.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"provider": name,
				"from":     from.String(),
				"to":       to.String(),
			}).Warn("Provider circuit breaker state changed")
		},
	}
	return &BreakerProvider{
		inner: inner,
		cb:    gobreaker.NewCircuitBreaker(settings),
	}
}

func (b *BreakerProvider) Name() string { return b.inner.Name() }

func (b *BreakerProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.Complete(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", optimizer.Permanent(&ProviderError{Provider: b.Name(), Err: err})
		}
		return "", err
	}
	return out.(string), nil
}

// State reports the breaker state: closed, half-open or open.
func (b *BreakerProvider) State() string {
	return b.cb.State().String()
}
