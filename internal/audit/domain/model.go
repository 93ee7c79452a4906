package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ActionPaymentCreated       = "payment.created"
	ActionPaymentUpdated       = "payment.updated"
	ActionPaymentStatusChanged = "payment.status_changed"
	ActionPaymentDeleted       = "payment.deleted"
	ActionRefundCreated        = "refund.created"
	ActionRefundApproved       = "refund.approved"
	ActionRefundCancelled      = "refund.cancelled"
	ActionInstallmentsCreated  = "installments.created"
	ActionInstallmentPaid      = "installment.paid"
	ActionBillIssued           = "bill.issued"
)

// PaymentLog is the append-only audit trail of the payment aggregate.
// Rows are written inside the mutating transaction and never touched again.
type PaymentLog struct {
	ID        snowflake.ID   `json:"id" gorm:"primaryKey"`
	TenantID  snowflake.ID   `json:"tenant_id" gorm:"not null;index"`
	PaymentID snowflake.ID   `json:"payment_id" gorm:"not null;index"`
	Action    string         `json:"action" gorm:"type:text;not null"`
	Before    datatypes.JSON `json:"before,omitempty" gorm:"column:before_state;type:jsonb"`
	After     datatypes.JSON `json:"after,omitempty" gorm:"column:after_state;type:jsonb"`
	ActorID   string         `json:"actor_id" gorm:"type:text;not null;default:''"`
	ActorRole string         `json:"actor_role" gorm:"type:text;not null;default:''"`
	Metadata  datatypes.JSON `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt time.Time      `json:"created_at" gorm:"not null"`
}

func (PaymentLog) TableName() string { return "payment_logs" }

var (
	ErrInvalidAction  = errors.New("invalid_action")
	ErrInvalidPayment = errors.New("invalid_payment")
)

// Recorder appends payment log entries inside the caller's transaction so
// a rollback takes the log entry with it.
type Recorder interface {
	Record(ctx context.Context, tx *gorm.DB, entry *PaymentLog) error
}

// Event is what gets forwarded to the external audit sink.
type Event struct {
	TenantID   snowflake.ID
	Action     string
	TargetType string
	TargetID   string
	ActorID    string
	Metadata   map[string]any
	OccurredAt time.Time
}

// Sink is the external audit-log boundary. Append is fire-and-forget:
// failures are logged by the caller side, never propagated.
type Sink interface {
	Append(ctx context.Context, event Event)
}

type Service interface {
	Recorder
	Sink
	ListByPayment(ctx context.Context, paymentID snowflake.ID) ([]PaymentLog, error)
}
