package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/campuskit/billing/internal/bill/domain"
	"gorm.io/gorm"
)

const billColumns = `id, tenant_id, payment_id, bill_number, status, artifact_ref, issued_at, created_at, updated_at`

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, bill *domain.Bill) error
	FindByPayment(ctx context.Context, db *gorm.DB, tenantID, paymentID snowflake.ID) (*domain.Bill, error)
	UpdateStatusByPayment(ctx context.Context, db *gorm.DB, paymentID snowflake.ID, status string, updatedAt time.Time) error
	UpdateArtifactRef(ctx context.Context, db *gorm.DB, paymentID snowflake.ID, ref string, updatedAt time.Time) error
}

type repo struct{}

func Provide() Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, bill *domain.Bill) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO bills (`+billColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		bill.ID,
		bill.TenantID,
		bill.PaymentID,
		bill.BillNumber,
		bill.Status,
		bill.ArtifactRef,
		bill.IssuedAt,
		bill.CreatedAt,
		bill.UpdatedAt,
	).Error
}

func (r *repo) FindByPayment(ctx context.Context, db *gorm.DB, tenantID, paymentID snowflake.ID) (*domain.Bill, error) {
	var item domain.Bill
	err := db.WithContext(ctx).Raw(
		`SELECT `+billColumns+`
		 FROM bills
		 WHERE tenant_id = ? AND payment_id = ?
		 LIMIT 1`,
		tenantID,
		paymentID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) UpdateStatusByPayment(ctx context.Context, db *gorm.DB, paymentID snowflake.ID, status string, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE bills
		 SET status = ?, updated_at = ?
		 WHERE payment_id = ?`,
		status,
		updatedAt,
		paymentID,
	).Error
}

func (r *repo) UpdateArtifactRef(ctx context.Context, db *gorm.DB, paymentID snowflake.ID, ref string, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE bills
		 SET artifact_ref = ?, updated_at = ?
		 WHERE payment_id = ?`,
		ref,
		updatedAt,
		paymentID,
	).Error
}
