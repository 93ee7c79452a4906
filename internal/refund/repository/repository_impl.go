package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/campuskit/billing/internal/refund/domain"
	"gorm.io/gorm"
)

const refundColumns = `id, tenant_id, payment_id, amount, reason, status, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, refund *domain.Refund) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO refunds (`+refundColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		refund.ID,
		refund.TenantID,
		refund.PaymentID,
		refund.Amount,
		refund.Reason,
		refund.Status,
		refund.CreatedAt,
		refund.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*domain.Refund, error) {
	return r.findOne(ctx, db,
		`SELECT `+refundColumns+`
		 FROM refunds
		 WHERE tenant_id = ? AND id = ?
		 LIMIT 1`,
		tenantID, id,
	)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*domain.Refund, error) {
	query := `SELECT ` + refundColumns + `
	 FROM refunds
	 WHERE tenant_id = ? AND id = ?
	 LIMIT 1`
	if db.Dialector.Name() != "sqlite" {
		query += ` FOR UPDATE`
	}
	return r.findOne(ctx, db, query, tenantID, id)
}

// SumActiveByPayment totals every non-cancelled refund. Callers hold the
// payment row lock, so the sum cannot move under them.
func (r *repo) SumActiveByPayment(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0)
		 FROM refunds
		 WHERE payment_id = ? AND status != ?`,
		paymentID,
		domain.StatusCancelled,
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *repo) ListByPayment(ctx context.Context, db *gorm.DB, tenantID, paymentID snowflake.ID) ([]domain.Refund, error) {
	var items []domain.Refund
	err := db.WithContext(ctx).Raw(
		`SELECT `+refundColumns+`
		 FROM refunds
		 WHERE tenant_id = ? AND payment_id = ?
		 ORDER BY id`,
		tenantID,
		paymentID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, refund *domain.Refund) error {
	return db.WithContext(ctx).Exec(
		`UPDATE refunds
		 SET status = ?, reason = ?, updated_at = ?
		 WHERE tenant_id = ? AND id = ?`,
		refund.Status,
		refund.Reason,
		refund.UpdatedAt,
		refund.TenantID,
		refund.ID,
	).Error
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Refund, error) {
	var item domain.Refund
	err := db.WithContext(ctx).Raw(query, args...).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}
