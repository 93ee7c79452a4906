package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/campuskit/billing/internal/payment/domain"
	"gorm.io/gorm"
)

const paymentColumns = `id, tenant_id, receipt_number, amount, discount, fine, total,
	payment_date, due_date, status, method, gateway, gateway_transaction_id,
	student_id, guardian_id, deleted_at, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payments (
			id, tenant_id, receipt_number, amount, discount, fine, total,
			payment_date, due_date, status, method, gateway, gateway_transaction_id,
			student_id, guardian_id, deleted_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.ID,
		payment.TenantID,
		payment.ReceiptNumber,
		payment.Amount,
		payment.Discount,
		payment.Fine,
		payment.Total,
		payment.PaymentDate,
		payment.DueDate,
		payment.Status,
		payment.Method,
		payment.Gateway,
		payment.GatewayTransactionID,
		payment.StudentID,
		payment.GuardianID,
		payment.DeletedAt,
		payment.CreatedAt,
		payment.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*domain.Payment, error) {
	return r.findOne(ctx, db,
		`SELECT `+paymentColumns+`
		 FROM payments
		 WHERE id = ? AND tenant_id = ?
		 LIMIT 1`,
		id, tenantID,
	)
}

// FindByIDForUpdate locks the payment row for the duration of the caller's
// transaction. Every mutation of the aggregate goes through this lock.
func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + `
		 FROM payments
		 WHERE id = ? AND tenant_id = ?`
	if db.Dialector.Name() != "sqlite" {
		query += ` FOR UPDATE`
	}
	return r.findOne(ctx, db, query, id, tenantID)
}

func (r *repo) FindByTransactionID(ctx context.Context, db *gorm.DB, gateway, transactionID string) (*domain.Payment, error) {
	gateway = strings.TrimSpace(gateway)
	transactionID = strings.TrimSpace(transactionID)
	if gateway == "" || transactionID == "" {
		return nil, nil
	}
	return r.findOne(ctx, db,
		`SELECT `+paymentColumns+`
		 FROM payments
		 WHERE gateway = ? AND gateway_transaction_id = ?
		 LIMIT 1`,
		gateway, transactionID,
	)
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	payment.UpdatedAt = time.Now().UTC()
	return db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET amount = ?, discount = ?, fine = ?, total = ?,
		     payment_date = ?, due_date = ?, status = ?, method = ?,
		     gateway = ?, gateway_transaction_id = ?,
		     student_id = ?, guardian_id = ?, deleted_at = ?, updated_at = ?
		 WHERE id = ? AND tenant_id = ?`,
		payment.Amount,
		payment.Discount,
		payment.Fine,
		payment.Total,
		payment.PaymentDate,
		payment.DueDate,
		payment.Status,
		payment.Method,
		payment.Gateway,
		payment.GatewayTransactionID,
		payment.StudentID,
		payment.GuardianID,
		payment.DeletedAt,
		payment.UpdatedAt,
		payment.ID,
		payment.TenantID,
	).Error
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Payment, error) {
	var payment domain.Payment
	err := db.WithContext(ctx).Raw(query, args...).Scan(&payment).Error
	if err != nil {
		return nil, err
	}
	if payment.ID == 0 {
		return nil, nil
	}
	return &payment, nil
}
