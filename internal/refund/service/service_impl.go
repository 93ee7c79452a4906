package service

import (
	"context"
	"encoding/json"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/campuskit/billing/internal/audit/domain"
	"github.com/campuskit/billing/internal/cache"
	"github.com/campuskit/billing/internal/clock"
	"github.com/campuskit/billing/internal/config"
	obsmetrics "github.com/campuskit/billing/internal/observability/metrics"
	paymentdomain "github.com/campuskit/billing/internal/payment/domain"
	"github.com/campuskit/billing/internal/refund/domain"
	"github.com/campuskit/billing/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	CfgHolder   *config.BillingConfigHolder
	Repo        domain.Repository
	PaymentRepo paymentdomain.Repository
	Bills       paymentdomain.BillAssembler
	AuditSvc    auditdomain.Service
	Cache       *cache.PaymentCache
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	cfgHolder   *config.BillingConfigHolder
	repo        domain.Repository
	paymentRepo paymentdomain.Repository
	bills       paymentdomain.BillAssembler
	auditSvc    auditdomain.Service
	cache       *cache.PaymentCache
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("refund.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		cfgHolder:   p.CfgHolder,
		repo:        p.Repo,
		paymentRepo: p.PaymentRepo,
		bills:       p.Bills,
		auditSvc:    p.AuditSvc,
		cache:       p.Cache,
		obsMetrics:  p.ObsMetrics,
	}
}

// Create appends a refund to the ledger. The payment row lock is held while
// the active sum is checked, so two concurrent refunds serialize and the
// second one sees the first one's amount. Active refunds can never sum past
// the payment total.
func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (domain.Refund, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return domain.Refund{}, paymentdomain.ErrMissingTenant
	}
	if req.Amount <= 0 {
		return domain.Refund{}, domain.ErrInvalidRefundAmount
	}

	status := domain.StatusApproved
	if s.cfgHolder.Current().RefundApprovalRequired {
		status = domain.StatusPending
	}

	var created domain.Refund
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := s.paymentRepo.FindByIDForUpdate(ctx, tx, tenantID, req.PaymentID)
		if err != nil {
			return err
		}
		if payment == nil || payment.Deleted() {
			return paymentdomain.ErrPaymentNotFound
		}
		if !payment.Refundable() {
			return domain.ErrPaymentNotRefundable
		}
		if req.Amount > payment.Total {
			return domain.ErrInvalidRefundAmount
		}

		refunded, err := s.repo.SumActiveByPayment(ctx, tx, payment.ID)
		if err != nil {
			return err
		}
		if refunded+req.Amount > payment.Total {
			s.obsMetrics.RecordRefundRejected()
			return domain.ErrExceedsRefundable
		}

		now := s.clock.Now()
		refund := domain.Refund{
			ID:        s.genID.Generate(),
			TenantID:  tenantID,
			PaymentID: payment.ID,
			Amount:    req.Amount,
			Reason:    req.Reason,
			Status:    status,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.repo.Insert(ctx, tx, &refund); err != nil {
			return err
		}
		if err := s.recordLog(ctx, tx, payment, auditdomain.ActionRefundCreated, map[string]any{
			"refund_id": refund.ID.String(),
			"amount":    refund.Amount,
			"status":    string(refund.Status),
		}); err != nil {
			return err
		}

		if status == domain.StatusApproved && refunded+req.Amount == payment.Total {
			if err := s.flipToRefunded(ctx, tx, payment); err != nil {
				return err
			}
		}

		created = refund
		return nil
	})
	if err != nil {
		return domain.Refund{}, err
	}

	s.cache.Invalidate(req.PaymentID)
	s.emitAudit(ctx, &created, auditdomain.ActionRefundCreated)
	return created, nil
}

// RecordGatewayRefund books a refund reported by the payment gateway. The
// money already moved on the provider side, so the entry lands APPROVED
// regardless of the approval policy. A zero amount, or one past the
// remaining balance, refunds whatever is left.
func (s *Service) RecordGatewayRefund(ctx context.Context, paymentID snowflake.ID, amount int64, reason string) (domain.Refund, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return domain.Refund{}, paymentdomain.ErrMissingTenant
	}
	if amount < 0 {
		return domain.Refund{}, domain.ErrInvalidRefundAmount
	}

	var created domain.Refund
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := s.paymentRepo.FindByIDForUpdate(ctx, tx, tenantID, paymentID)
		if err != nil {
			return err
		}
		if payment == nil || payment.Deleted() {
			return paymentdomain.ErrPaymentNotFound
		}
		if !payment.Refundable() {
			return domain.ErrPaymentNotRefundable
		}

		refunded, err := s.repo.SumActiveByPayment(ctx, tx, payment.ID)
		if err != nil {
			return err
		}
		remaining := payment.Total - refunded
		if remaining <= 0 {
			return domain.ErrExceedsRefundable
		}
		if amount == 0 || amount > remaining {
			amount = remaining
		}

		now := s.clock.Now()
		refund := domain.Refund{
			ID:        s.genID.Generate(),
			TenantID:  tenantID,
			PaymentID: payment.ID,
			Amount:    amount,
			Reason:    reason,
			Status:    domain.StatusApproved,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.repo.Insert(ctx, tx, &refund); err != nil {
			return err
		}
		if err := s.recordLog(ctx, tx, payment, auditdomain.ActionRefundCreated, map[string]any{
			"refund_id": refund.ID.String(),
			"amount":    refund.Amount,
			"status":    string(refund.Status),
			"source":    "gateway",
		}); err != nil {
			return err
		}

		if refunded+amount == payment.Total {
			if err := s.flipToRefunded(ctx, tx, payment); err != nil {
				return err
			}
		}

		created = refund
		return nil
	})
	if err != nil {
		return domain.Refund{}, err
	}

	s.cache.Invalidate(paymentID)
	s.emitAudit(ctx, &created, auditdomain.ActionRefundCreated)
	return created, nil
}

// Approve moves a pending refund to APPROVED and flips the payment to
// REFUNDED when the approval completes the total.
func (s *Service) Approve(ctx context.Context, id snowflake.ID) (domain.Refund, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return domain.Refund{}, paymentdomain.ErrMissingTenant
	}

	var approved domain.Refund
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		refund, err := s.repo.FindByIDForUpdate(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if refund == nil {
			return domain.ErrRefundNotFound
		}
		if refund.Status != domain.StatusPending {
			return domain.ErrInvalidRefundState
		}

		payment, err := s.paymentRepo.FindByIDForUpdate(ctx, tx, tenantID, refund.PaymentID)
		if err != nil {
			return err
		}
		if payment == nil {
			return paymentdomain.ErrPaymentNotFound
		}

		refund.Status = domain.StatusApproved
		refund.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, refund); err != nil {
			return err
		}
		if err := s.recordLog(ctx, tx, payment, auditdomain.ActionRefundApproved, map[string]any{
			"refund_id": refund.ID.String(),
			"amount":    refund.Amount,
		}); err != nil {
			return err
		}

		refunded, err := s.repo.SumActiveByPayment(ctx, tx, payment.ID)
		if err != nil {
			return err
		}
		if refunded == payment.Total {
			if err := s.flipToRefunded(ctx, tx, payment); err != nil {
				return err
			}
		}

		approved = *refund
		return nil
	})
	if err != nil {
		return domain.Refund{}, err
	}

	s.cache.Invalidate(approved.PaymentID)
	s.emitAudit(ctx, &approved, auditdomain.ActionRefundApproved)
	return approved, nil
}

// Cancel withdraws a pending refund. Approved refunds already count as
// executed and stay on the ledger.
func (s *Service) Cancel(ctx context.Context, id snowflake.ID) (domain.Refund, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return domain.Refund{}, paymentdomain.ErrMissingTenant
	}

	var cancelled domain.Refund
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		refund, err := s.repo.FindByIDForUpdate(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if refund == nil {
			return domain.ErrRefundNotFound
		}
		if refund.Status != domain.StatusPending {
			return domain.ErrInvalidRefundState
		}

		payment, err := s.paymentRepo.FindByIDForUpdate(ctx, tx, tenantID, refund.PaymentID)
		if err != nil {
			return err
		}
		if payment == nil {
			return paymentdomain.ErrPaymentNotFound
		}

		refund.Status = domain.StatusCancelled
		refund.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, refund); err != nil {
			return err
		}
		if err := s.recordLog(ctx, tx, payment, auditdomain.ActionRefundCancelled, map[string]any{
			"refund_id": refund.ID.String(),
			"amount":    refund.Amount,
		}); err != nil {
			return err
		}

		cancelled = *refund
		return nil
	})
	if err != nil {
		return domain.Refund{}, err
	}

	s.emitAudit(ctx, &cancelled, auditdomain.ActionRefundCancelled)
	return cancelled, nil
}

func (s *Service) ListByPayment(ctx context.Context, paymentID snowflake.ID) ([]domain.Refund, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return nil, paymentdomain.ErrMissingTenant
	}
	return s.repo.ListByPayment(ctx, s.db, tenantID, paymentID)
}

func (s *Service) flipToRefunded(ctx context.Context, tx *gorm.DB, payment *paymentdomain.Payment) error {
	if !paymentdomain.CanTransition(payment.Status, paymentdomain.StatusRefunded) {
		return nil
	}

	before := *payment
	payment.Status = paymentdomain.StatusRefunded
	if err := s.paymentRepo.Update(ctx, tx, payment); err != nil {
		return err
	}

	beforeRaw, _ := json.Marshal(before)
	afterRaw, _ := json.Marshal(payment)
	actor := tenantctx.ActorFromContext(ctx)
	entry := auditdomain.PaymentLog{
		ID:        s.genID.Generate(),
		TenantID:  payment.TenantID,
		PaymentID: payment.ID,
		Action:    auditdomain.ActionPaymentStatusChanged,
		Before:    datatypes.JSON(beforeRaw),
		After:     datatypes.JSON(afterRaw),
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		CreatedAt: s.clock.Now(),
	}
	if err := s.auditSvc.Record(ctx, tx, &entry); err != nil {
		return err
	}
	if err := s.bills.MirrorStatus(ctx, tx, payment); err != nil {
		return err
	}

	s.obsMetrics.RecordStatusTransition(string(before.Status), string(paymentdomain.StatusRefunded))
	return nil
}

func (s *Service) recordLog(ctx context.Context, tx *gorm.DB, payment *paymentdomain.Payment, action string, metadata map[string]any) error {
	actor := tenantctx.ActorFromContext(ctx)
	entry := auditdomain.PaymentLog{
		ID:        s.genID.Generate(),
		TenantID:  payment.TenantID,
		PaymentID: payment.ID,
		Action:    action,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		CreatedAt: s.clock.Now(),
	}
	if metadata != nil {
		raw, err := json.Marshal(metadata)
		if err == nil {
			entry.Metadata = datatypes.JSON(raw)
		}
	}
	return s.auditSvc.Record(ctx, tx, &entry)
}

func (s *Service) emitAudit(ctx context.Context, refund *domain.Refund, action string) {
	actor := tenantctx.ActorFromContext(ctx)
	s.auditSvc.Append(ctx, auditdomain.Event{
		TenantID:   refund.TenantID,
		Action:     action,
		TargetType: "refund",
		TargetID:   refund.ID.String(),
		ActorID:    actor.ID,
		Metadata: map[string]any{
			"payment_id": refund.PaymentID.String(),
			"amount":     refund.Amount,
		},
	})
}
