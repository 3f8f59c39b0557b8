package cache

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// StartSweeper purges expired entries from every sweeper on a fixed interval
// until ctx is cancelled.
func StartSweeper(ctx context.Context, interval time.Duration, logger *logrus.Logger, sweepers map[string]Sweeper) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for name, store := range sweepers {
					if removed := store.Sweep(ctx); removed > 0 {
						logger.WithFields(logrus.Fields{
							"cache":   name,
							"removed": removed,
							"size":    store.Len(),
						}).Debug("Swept expired cache entries")
					}
				}
			}
		}
	}()
}
