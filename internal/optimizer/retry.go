package optimizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/sirupsen/logrus"
)

type RetryConfig struct {
	MaxRetries  int
	Delay       time.Duration
	CallTimeout time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:  3,
		Delay:       time.Second,
		CallTimeout: 30 * time.Second,
	}
}

// Call performs one attempt. attempt starts at 1 and ctx carries the
// per-attempt deadline.
type Call func(ctx context.Context, attempt int) ([]byte, error)

// Permanent marks an error that must not be retried.
func Permanent(err error) error {
	return retry.Unrecoverable(err)
}

// Retry runs call until it succeeds, fails permanently, the parent context
// ends, or MaxRetries retries have been spent. Delays are fixed.
func Retry(ctx context.Context, config RetryConfig, logger *logrus.Logger, onRetry func(), call Call) ([]byte, error) {
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}

	var (
		result  []byte
		attempt int
	)

	err := retry.Do(
		func() error {
			attempt++
			callCtx, cancel := context.WithTimeout(ctx, config.CallTimeout)
			defer cancel()

			data, err := call(callCtx, attempt)
			if err != nil {
				return err
			}
			result = data
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(config.MaxRetries+1)),
		retry.Delay(config.Delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return retry.IsRecoverable(err) && ctx.Err() == nil && !errors.Is(err, context.Canceled)
		}),
		retry.OnRetry(func(n uint, err error) {
			// Also invoked after the final attempt, which is not a retry.
			if int(n) >= config.MaxRetries {
				return
			}
			if onRetry != nil {
				onRetry()
			}
			logger.WithFields(logrus.Fields{
				"attempt": n + 1,
				"delay":   config.Delay,
				"error":   err.Error(),
			}).Warn("Retrying operation")
		}),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			return nil, fmt.Errorf("operation aborted after %d attempts: %w", attempt, ctxErr)
		}
		return nil, fmt.Errorf("operation failed after %d attempts: %w", attempt, err)
	}
	return result, nil
}
