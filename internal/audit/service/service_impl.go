package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/campuskit/billing/internal/audit/domain"
	"github.com/campuskit/billing/internal/audit/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  repository.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  repository.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

// Record appends a payment log entry using the caller's transaction handle.
// An insert failure must fail the surrounding mutation, so the error is
// returned rather than swallowed.
func (s *Service) Record(ctx context.Context, tx *gorm.DB, entry *domain.PaymentLog) error {
	if entry == nil || entry.PaymentID == 0 {
		return domain.ErrInvalidPayment
	}
	entry.Action = strings.TrimSpace(entry.Action)
	if entry.Action == "" {
		return domain.ErrInvalidAction
	}

	if entry.ID == 0 {
		entry.ID = s.genID.Generate()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return s.repo.Insert(ctx, tx, entry)
}

// Append forwards an event to the external audit sink. It never blocks the
// caller: failures are logged and dropped.
func (s *Service) Append(ctx context.Context, event domain.Event) {
	action := strings.TrimSpace(event.Action)
	if action == "" {
		s.log.Warn("audit event without action dropped")
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event.Metadata)
	if err != nil {
		payload = []byte("{}")
	}

	if err := s.db.WithContext(ctx).Exec(
		`INSERT INTO audit_logs (
			id, tenant_id, action, target_type, target_id, actor_id, metadata, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.genID.Generate(),
		event.TenantID,
		action,
		event.TargetType,
		event.TargetID,
		event.ActorID,
		datatypes.JSON(payload),
		event.OccurredAt,
	).Error; err != nil {
		s.log.Warn("failed to append audit event",
			zap.String("action", action),
			zap.Error(err),
		)
	}
}

func (s *Service) ListByPayment(ctx context.Context, paymentID snowflake.ID) ([]domain.PaymentLog, error) {
	if paymentID == 0 {
		return nil, domain.ErrInvalidPayment
	}
	return s.repo.ListByPayment(ctx, s.db, paymentID)
}
