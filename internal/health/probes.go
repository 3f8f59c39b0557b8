package health

import (
	"context"
	"fmt"

	"github.com/Ayash-Bera/querygen/internal/database"
)

func DatabaseProbe(m *database.Manager) Probe {
	return Probe{Name: "database", Check: m.PingDatabase}
}

// RedisProbe is optional: without Redis the response cache falls back to
// process memory.
func RedisProbe(m *database.Manager) Probe {
	return Probe{Name: "redis", Optional: true, Check: m.PingRedis}
}

// BreakerProbe reports an AI provider as degraded while its circuit breaker
// is open.
func BreakerProbe(name string, state func() string) Probe {
	return Probe{
		Name:     "provider:" + name,
		Optional: true,
		Check: func(context.Context) error {
			if s := state(); s == "open" {
				return fmt.Errorf("circuit breaker is %s", s)
			}
			return nil
		},
	}
}
