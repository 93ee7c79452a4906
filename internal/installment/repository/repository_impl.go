package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/campuskit/billing/internal/installment/domain"
	"gorm.io/gorm"
)

const installmentColumns = `id, tenant_id, payment_id, installment_number, amount,
	due_date, status, paid_date, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertBatch(ctx context.Context, db *gorm.DB, items []domain.Installment) error {
	for i := range items {
		err := db.WithContext(ctx).Exec(
			`INSERT INTO installments (
				id, tenant_id, payment_id, installment_number, amount,
				due_date, status, paid_date, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			items[i].ID,
			items[i].TenantID,
			items[i].PaymentID,
			items[i].InstallmentNumber,
			items[i].Amount,
			items[i].DueDate,
			items[i].Status,
			items[i].PaidDate,
			items[i].CreatedAt,
			items[i].UpdatedAt,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) CountByPayment(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM installments WHERE payment_id = ?`,
		paymentID,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*domain.Installment, error) {
	query := `SELECT ` + installmentColumns + `
	 FROM installments
	 WHERE tenant_id = ? AND id = ?
	 LIMIT 1`
	if db.Dialector.Name() != "sqlite" {
		query += ` FOR UPDATE`
	}

	var item domain.Installment
	err := db.WithContext(ctx).Raw(query, tenantID, id).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListByPayment(ctx context.Context, db *gorm.DB, tenantID, paymentID snowflake.ID) ([]domain.Installment, error) {
	var items []domain.Installment
	err := db.WithContext(ctx).Raw(
		`SELECT `+installmentColumns+`
		 FROM installments
		 WHERE tenant_id = ? AND payment_id = ?
		 ORDER BY installment_number`,
		tenantID,
		paymentID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, installment *domain.Installment) error {
	return db.WithContext(ctx).Exec(
		`UPDATE installments
		 SET status = ?, paid_date = ?, updated_at = ?
		 WHERE tenant_id = ? AND id = ?`,
		installment.Status,
		installment.PaidDate,
		installment.UpdatedAt,
		installment.TenantID,
		installment.ID,
	).Error
}

// MarkOverdueDue is the sweep query: one statement across all tenants,
// returning how many rows moved.
func (r *repo) MarkOverdueDue(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE installments
		 SET status = ?, updated_at = ?
		 WHERE status = ? AND due_date < ?`,
		domain.StatusOverdue,
		now,
		domain.StatusPending,
		now,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
