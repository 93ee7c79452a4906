package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Bill is the issued billing document for exactly one payment. The status
// column mirrors the payment lifecycle so the document can be served
// without joining back to the ledger.
type Bill struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	TenantID   snowflake.ID `json:"tenant_id" gorm:"not null;index;uniqueIndex:ux_bills_tenant_number,priority:1"`
	PaymentID  snowflake.ID `json:"payment_id" gorm:"not null;uniqueIndex:ux_bills_payment"`
	BillNumber string       `json:"bill_number" gorm:"type:text;not null;uniqueIndex:ux_bills_tenant_number,priority:2"`
	Status     string       `json:"status" gorm:"type:text;not null"`

	// ArtifactRef points at the rendered receipt in the artifact store.
	// Empty until rendering succeeds; rendering is best-effort.
	ArtifactRef string `json:"artifact_ref,omitempty" gorm:"type:text;not null;default:''"`

	IssuedAt time.Time `json:"issued_at" gorm:"not null"`
	CreatedAt  time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt  time.Time    `json:"updated_at" gorm:"not null"`
}

func (Bill) TableName() string { return "bills" }

var ErrBillNotFound = errors.New("bill_not_found")

type Service interface {
	GetByPayment(ctx context.Context, paymentID snowflake.ID) (Bill, error)
}
