package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/campuskit/billing/internal/gateway/domain"
	"gorm.io/gorm"
)

type Repository interface {
	FindActiveConfig(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, provider string) (*domain.Config, error)
	ListActiveConfigs(ctx context.Context, db *gorm.DB, provider string) ([]domain.Config, error)
	InsertEvent(ctx context.Context, db *gorm.DB, event *domain.EventRecord) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*domain.EventRecord, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, paymentID snowflake.ID, processedAt time.Time) error
}

type repo struct{}

func Provide() Repository {
	return &repo{}
}

func (r *repo) FindActiveConfig(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, provider string) (*domain.Config, error) {
	var item domain.Config
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, provider, config, is_active, created_at, updated_at
		 FROM gateway_configs
		 WHERE tenant_id = ? AND provider = ? AND is_active = ?
		 LIMIT 1`,
		tenantID,
		provider,
		true,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListActiveConfigs(ctx context.Context, db *gorm.DB, provider string) ([]domain.Config, error) {
	var items []domain.Config
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, provider, config, is_active, created_at, updated_at
		 FROM gateway_configs
		 WHERE provider = ? AND is_active = ?`,
		provider,
		true,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.EventRecord) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO gateway_events (
			id, tenant_id, provider, provider_event_id, event_type,
			transaction_id, payment_id, payload, received_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, provider_event_id) DO NOTHING`,
		event.ID,
		event.TenantID,
		event.Provider,
		event.ProviderEventID,
		event.EventType,
		event.TransactionID,
		event.PaymentID,
		event.Payload,
		event.ReceivedAt,
		event.ProcessedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*domain.EventRecord, error) {
	var item domain.EventRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, provider, provider_event_id, event_type,
		        transaction_id, payment_id, payload, received_at, processed_at
		 FROM gateway_events
		 WHERE provider = ? AND provider_event_id = ?
		 LIMIT 1`,
		provider,
		providerEventID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, paymentID snowflake.ID, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE gateway_events
		 SET processed_at = ?, payment_id = ?
		 WHERE id = ?`,
		processedAt,
		paymentID,
		id,
	).Error
}
