package render

import (
	"context"
	"io"
	"time"
)

// ReceiptDocument is the flattened view handed to renderers. Monetary
// values are minor units.
type ReceiptDocument struct {
	BillNumber    string
	ReceiptNumber string
	IssuedAt      time.Time
	PaymentDate   time.Time
	Amount        int64
	Discount      int64
	Fine          int64
	Total         int64
	Status        string
	Method        string
	StudentID     string
}

// Provider renders billing artifacts. Rendering is best-effort: callers
// treat a failure as a degraded response, never a rollback.
type Provider interface {
	RenderReceipt(ctx context.Context, doc ReceiptDocument) (io.Reader, error)
}

// NoOpProvider satisfies Provider without producing output, for tests and
// deployments that render elsewhere.
type NoOpProvider struct{}

func (p *NoOpProvider) RenderReceipt(ctx context.Context, doc ReceiptDocument) (io.Reader, error) {
	return nil, nil
}
