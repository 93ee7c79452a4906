package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type CreateRequest struct {
	Amount      int64         `json:"amount"`
	Discount    int64         `json:"discount"`
	Fine        int64         `json:"fine"`
	PaymentDate *time.Time    `json:"payment_date,omitempty"`
	DueDate     *time.Time    `json:"due_date,omitempty"`
	Method      Method        `json:"method"`
	Gateway     string        `json:"gateway,omitempty"`
	StudentID   *snowflake.ID `json:"student_id,omitempty"`
	GuardianID  *snowflake.ID `json:"guardian_id,omitempty"`
}

// CreateResult reports the committed payment and bill plus the outcome of
// the best-effort side operations. Rendered=false with a nil error is the
// partial-success case: the ledger committed but the artifact did not.
type CreateResult struct {
	Payment    Payment `json:"payment"`
	BillNumber string  `json:"bill_number"`
	Rendered   bool    `json:"rendered"`
}

// UpdateRequest is a sparse patch; nil fields are left untouched.
type UpdateRequest struct {
	Amount     *int64        `json:"amount,omitempty"`
	Discount   *int64        `json:"discount,omitempty"`
	Fine       *int64        `json:"fine,omitempty"`
	DueDate    *time.Time    `json:"due_date,omitempty"`
	StudentID  *snowflake.ID `json:"student_id,omitempty"`
	GuardianID *snowflake.ID `json:"guardian_id,omitempty"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (CreateResult, error)
	Get(ctx context.Context, id snowflake.ID) (Payment, error)
	Update(ctx context.Context, id snowflake.ID, patch UpdateRequest) (Payment, error)
	SoftDelete(ctx context.Context, id snowflake.ID) error
	SetStatus(ctx context.Context, id snowflake.ID, status Status) (Payment, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*Payment, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*Payment, error)
	FindByTransactionID(ctx context.Context, db *gorm.DB, gateway, transactionID string) (*Payment, error)
	Update(ctx context.Context, db *gorm.DB, payment *Payment) error
}

// BillAssembler creates the 1:1 bill inside the payment transaction and
// renders the artifact best-effort after commit. MirrorStatus keeps the
// bill's status column in step with the payment and runs inside the same
// transaction as the transition.
type BillAssembler interface {
	Assemble(ctx context.Context, tx *gorm.DB, payment *Payment) (AssembledBill, error)
	MirrorStatus(ctx context.Context, tx *gorm.DB, payment *Payment) error
	RenderReceipt(ctx context.Context, payment *Payment, billNumber string) bool
}

type AssembledBill struct {
	ID         snowflake.ID
	BillNumber string
}
