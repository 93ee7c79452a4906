package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusCancelled Status = "CANCELLED"
)

// Refund is one entry in the refund ledger. Rows are never deleted; a
// cancelled refund stays on record but stops counting toward the cap.
type Refund struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	TenantID  snowflake.ID `json:"tenant_id" gorm:"not null;index"`
	PaymentID snowflake.ID `json:"payment_id" gorm:"not null;index"`
	Amount    int64        `json:"amount" gorm:"not null"`
	Reason    string       `json:"reason" gorm:"type:text;not null;default:''"`
	Status    Status       `json:"status" gorm:"type:text;not null"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"not null"`
}

func (Refund) TableName() string { return "refunds" }

func (r *Refund) Active() bool { return r.Status != StatusCancelled }

var (
	ErrRefundNotFound       = errors.New("refund_not_found")
	ErrInvalidRefundAmount  = errors.New("invalid_refund_amount")
	ErrExceedsRefundable    = errors.New("exceeds_refundable_amount")
	ErrInvalidRefundState   = errors.New("invalid_refund_state")
	ErrPaymentNotRefundable = errors.New("payment_not_refundable")
)

type CreateRequest struct {
	PaymentID snowflake.ID `json:"payment_id"`
	Amount    int64        `json:"amount"`
	Reason    string       `json:"reason,omitempty"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (Refund, error)
	// RecordGatewayRefund books a refund the provider already executed.
	// An amount of zero refunds the remaining refundable balance.
	RecordGatewayRefund(ctx context.Context, paymentID snowflake.ID, amount int64, reason string) (Refund, error)
	Approve(ctx context.Context, id snowflake.ID) (Refund, error)
	Cancel(ctx context.Context, id snowflake.ID) (Refund, error)
	ListByPayment(ctx context.Context, paymentID snowflake.ID) ([]Refund, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, refund *Refund) error
	FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*Refund, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*Refund, error)
	SumActiveByPayment(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) (int64, error)
	ListByPayment(ctx context.Context, db *gorm.DB, tenantID, paymentID snowflake.ID) ([]Refund, error)
	Update(ctx context.Context, db *gorm.DB, refund *Refund) error
}
