package cache

import (
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/campuskit/billing/internal/payment/domain"
)

const defaultPaymentTTL = 30 * time.Second

// PaymentCache is the shared read cache for payment rows. Every mutating
// code path (lifecycle, refunds, webhooks, sweeps) must invalidate through
// it so a cached read never outlives a committed change.
type PaymentCache struct {
	items Cache[snowflake.ID, paymentdomain.Payment]
	ttl   time.Duration
}

func NewPaymentCache() *PaymentCache {
	return &PaymentCache{
		items: NewTTLCache[snowflake.ID, paymentdomain.Payment](),
		ttl:   defaultPaymentTTL,
	}
}

func (c *PaymentCache) Get(id snowflake.ID) (paymentdomain.Payment, bool) {
	if c == nil {
		return paymentdomain.Payment{}, false
	}
	return c.items.Get(id)
}

func (c *PaymentCache) Set(payment paymentdomain.Payment) {
	if c == nil || payment.ID == 0 {
		return
	}
	c.items.Set(payment.ID, payment, c.ttl)
}

func (c *PaymentCache) Invalidate(id snowflake.ID) {
	if c == nil {
		return
	}
	c.items.Delete(id)
}
