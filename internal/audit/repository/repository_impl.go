package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/campuskit/billing/internal/audit/domain"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *domain.PaymentLog) error
	ListByPayment(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) ([]domain.PaymentLog, error)
}

type repo struct{}

func Provide() Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.PaymentLog) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_logs (
			id, tenant_id, payment_id, action, before_state, after_state,
			actor_id, actor_role, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.TenantID,
		entry.PaymentID,
		entry.Action,
		entry.Before,
		entry.After,
		entry.ActorID,
		entry.ActorRole,
		entry.Metadata,
		entry.CreatedAt,
	).Error
}

func (r *repo) ListByPayment(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) ([]domain.PaymentLog, error) {
	var entries []domain.PaymentLog
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, payment_id, action, before_state, after_state,
		        actor_id, actor_role, metadata, created_at
		 FROM payment_logs
		 WHERE payment_id = ?
		 ORDER BY id`,
		paymentID,
	).Scan(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
