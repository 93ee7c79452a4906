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
	StatusPending Status = "PENDING"
	StatusPaid    Status = "PAID"
	StatusOverdue Status = "OVERDUE"
)

// Installment is one slice of a payment plan. Numbers are 1-based and
// unique per payment; amounts are fixed at plan creation.
type Installment struct {
	ID                snowflake.ID `json:"id" gorm:"primaryKey"`
	TenantID          snowflake.ID `json:"tenant_id" gorm:"not null;index"`
	PaymentID         snowflake.ID `json:"payment_id" gorm:"not null;uniqueIndex:ux_installments_payment_number,priority:1"`
	InstallmentNumber int          `json:"installment_number" gorm:"not null;uniqueIndex:ux_installments_payment_number,priority:2"`
	Amount            int64        `json:"amount" gorm:"not null"`
	DueDate           time.Time    `json:"due_date" gorm:"not null;index"`
	Status            Status       `json:"status" gorm:"type:text;not null;index"`
	PaidDate          *time.Time   `json:"paid_date"`
	CreatedAt         time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt         time.Time    `json:"updated_at" gorm:"not null"`
}

func (Installment) TableName() string { return "installments" }

var (
	ErrInstallmentNotFound = errors.New("installment_not_found")
	ErrInstallmentsExist   = errors.New("installments_already_exist")
	ErrInvalidCount        = errors.New("invalid_installment_count")
	ErrAlreadyPaid         = errors.New("installment_already_paid")
)

type CreateRequest struct {
	PaymentID    snowflake.ID `json:"payment_id"`
	Count        int          `json:"count"`
	FirstDueDate *time.Time   `json:"first_due_date,omitempty"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) ([]Installment, error)
	MarkPaid(ctx context.Context, id snowflake.ID) (Installment, error)
	ListByPayment(ctx context.Context, paymentID snowflake.ID) ([]Installment, error)
	MarkOverdue(ctx context.Context, now time.Time) (int64, error)
}

type Repository interface {
	InsertBatch(ctx context.Context, db *gorm.DB, items []Installment) error
	CountByPayment(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) (int64, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*Installment, error)
	ListByPayment(ctx context.Context, db *gorm.DB, tenantID, paymentID snowflake.ID) ([]Installment, error)
	Update(ctx context.Context, db *gorm.DB, installment *Installment) error
	MarkOverdueDue(ctx context.Context, db *gorm.DB, now time.Time) (int64, error)
}
