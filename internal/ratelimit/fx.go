package ratelimit

import (
	"strings"
	"time"

	"github.com/campuskit/billing/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("rate.limit",
	fx.Provide(NewWebhookLimiter),
	fx.Provide(NewSweepLocker),
)

// NewSweepLocker shares the rate limit Redis instance for sweep
// coordination. Without one the locker is nil and TryLock always grants.
func NewSweepLocker(cfg config.Config) *Locker {
	addr := strings.TrimSpace(cfg.RateLimitRedisAddr)
	if !cfg.RateLimitEnabled || addr == "" {
		return nil
	}
	return NewLocker(redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	}))
}
