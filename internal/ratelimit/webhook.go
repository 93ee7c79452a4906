package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/campuskit/billing/internal/config"
	redis "github.com/redis/go-redis/v9"
)

const keyWebhookProvider = "billing:webhook:%s:%s"

// WebhookLimiter throttles the unauthenticated webhook endpoints per
// provider and caller address. Disabled deployments get a nil limiter;
// every method on it is a no-op allow.
type WebhookLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewWebhookLimiter(cfg config.Config) (*WebhookLimiter, error) {
	if !cfg.RateLimitEnabled {
		return nil, nil
	}

	addr := strings.TrimSpace(cfg.RateLimitRedisAddr)
	if addr == "" {
		return nil, fmt.Errorf("rate limit redis addr is required")
	}
	if cfg.WebhookRate <= 0 || cfg.WebhookBurst <= 0 {
		return nil, fmt.Errorf("webhook rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})

	return &WebhookLimiter{
		bucket: NewTokenBucket(client),
		rate:   cfg.WebhookRate,
		burst:  cfg.WebhookBurst,
	}, nil
}

// Allow fails open: a Redis error lets the delivery through rather than
// dropping gateway callbacks.
func (l *WebhookLimiter) Allow(ctx context.Context, provider, remoteAddr string) (Result, error) {
	if l == nil || l.bucket == nil {
		return Result{Allowed: true}, nil
	}

	key := fmt.Sprintf(keyWebhookProvider, provider, remoteAddr)
	result, err := l.bucket.Allow(ctx, key, l.rate, l.burst)
	if err != nil {
		return Result{Allowed: true}, err
	}
	return result, nil
}
