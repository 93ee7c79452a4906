package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending       Status = "PENDING"
	StatusProcessing    Status = "PROCESSING"
	StatusPaid          Status = "PAID"
	StatusPartiallyPaid Status = "PARTIALLY_PAID"
	StatusUnpaid        Status = "UNPAID"
	StatusOverdue       Status = "OVERDUE"
	StatusFailed        Status = "FAILED"
	StatusDisputed      Status = "DISPUTED"
	StatusCancelled     Status = "CANCELLED"
	StatusRefunded      Status = "REFUNDED"
	StatusVoided        Status = "VOIDED"
)

type Method string

const (
	MethodCash    Method = "cash"
	MethodGateway Method = "gateway"
)

// Payment is the aggregate root of the billing ledger. Refunds, installments,
// the bill and the payment log all hang off it and survive its soft deletion.
type Payment struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	TenantID      snowflake.ID `json:"tenant_id" gorm:"not null;index;uniqueIndex:ux_payments_tenant_receipt,priority:1"`
	ReceiptNumber string       `json:"receipt_number" gorm:"type:text;not null;uniqueIndex:ux_payments_tenant_receipt,priority:2"`

	Amount   int64 `json:"amount" gorm:"not null"`
	Discount int64 `json:"discount" gorm:"not null"`
	Fine     int64 `json:"fine" gorm:"not null"`
	// Total is derived: amount - discount + fine, never negative.
	Total int64 `json:"total" gorm:"not null"`

	PaymentDate time.Time  `json:"payment_date" gorm:"not null"`
	DueDate     *time.Time `json:"due_date"`

	Status  Status  `json:"status" gorm:"type:text;not null;index"`
	Method  Method  `json:"method" gorm:"type:text;not null"`
	Gateway *string `json:"gateway,omitempty" gorm:"type:text"`
	// GatewayTransactionID is set once the external processor accepts the
	// payment and is the webhook reconciliation key.
	GatewayTransactionID *string `json:"gateway_transaction_id,omitempty" gorm:"type:text;index"`

	StudentID  *snowflake.ID `json:"student_id,omitempty" gorm:"index"`
	GuardianID *snowflake.ID `json:"guardian_id,omitempty"`

	// DeletedAt is the soft-delete tombstone. Rows are never physically
	// removed; refunds and installments keep referencing them.
	DeletedAt *time.Time `json:"deleted_at,omitempty" gorm:"index"`

	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

func (p *Payment) Deleted() bool { return p.DeletedAt != nil }

// Settled reports whether the payment reached a state where its monetary
// fields are frozen.
func (p *Payment) Settled() bool {
	return p.Status == StatusPaid || p.Status == StatusRefunded
}

// Refundable reports whether the payment is in a state with a REFUNDED edge:
// money has moved, so some of it can move back.
func (p *Payment) Refundable() bool {
	return CanTransition(p.Status, StatusRefunded)
}

func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusProcessing, StatusPaid, StatusPartiallyPaid,
		StatusUnpaid, StatusOverdue, StatusFailed, StatusDisputed,
		StatusCancelled, StatusRefunded, StatusVoided:
		return true
	}
	return false
}

func ValidMethod(m Method) bool {
	return m == MethodCash || m == MethodGateway
}
