package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/campuskit/billing/internal/audit/domain"
	"github.com/campuskit/billing/internal/clock"
	"github.com/campuskit/billing/internal/config"
	"github.com/campuskit/billing/internal/installment/domain"
	"github.com/campuskit/billing/internal/money"
	paymentdomain "github.com/campuskit/billing/internal/payment/domain"
	"github.com/campuskit/billing/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// maxInstallments bounds plan size; anything longer is a data-entry error.
const maxInstallments = 36

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	CfgHolder   *config.BillingConfigHolder
	Repo        domain.Repository
	PaymentRepo paymentdomain.Repository
	AuditSvc    auditdomain.Service
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	cfgHolder   *config.BillingConfigHolder
	repo        domain.Repository
	paymentRepo paymentdomain.Repository
	auditSvc    auditdomain.Service
}

func NewService(p Params) *Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("installment.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		cfgHolder:   p.CfgHolder,
		repo:        p.Repo,
		paymentRepo: p.PaymentRepo,
		auditSvc:    p.AuditSvc,
	}
}

// Create splits the payment total into a front-loaded plan. The payment row
// lock serializes concurrent plan creation; a payment gets exactly one plan.
func (s *Service) Create(ctx context.Context, req domain.CreateRequest) ([]domain.Installment, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return nil, paymentdomain.ErrMissingTenant
	}
	if req.Count < 1 || req.Count > maxInstallments {
		return nil, domain.ErrInvalidCount
	}

	interval := s.cfgHolder.Current().InstallmentInterval

	var plan []domain.Installment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := s.paymentRepo.FindByIDForUpdate(ctx, tx, tenantID, req.PaymentID)
		if err != nil {
			return err
		}
		if payment == nil || payment.Deleted() {
			return paymentdomain.ErrPaymentNotFound
		}

		existing, err := s.repo.CountByPayment(ctx, tx, payment.ID)
		if err != nil {
			return err
		}
		if existing > 0 {
			return domain.ErrInstallmentsExist
		}

		amounts, err := money.SplitInstallments(payment.Total, req.Count)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		firstDue := now.Add(interval)
		if req.FirstDueDate != nil {
			firstDue = req.FirstDueDate.UTC()
		}

		plan = make([]domain.Installment, 0, req.Count)
		for i, amount := range amounts {
			plan = append(plan, domain.Installment{
				ID:                s.genID.Generate(),
				TenantID:          tenantID,
				PaymentID:         payment.ID,
				InstallmentNumber: i + 1,
				Amount:            amount,
				DueDate:           firstDue.Add(time.Duration(i) * interval),
				Status:            domain.StatusPending,
				CreatedAt:         now,
				UpdatedAt:         now,
			})
		}
		if err := s.repo.InsertBatch(ctx, tx, plan); err != nil {
			return err
		}

		return s.recordLog(ctx, tx, payment, auditdomain.ActionInstallmentsCreated, map[string]any{
			"count": req.Count,
			"total": payment.Total,
		})
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// MarkPaid settles one installment. The parent payment status is left to
// the derivation policy, which currently keeps it as-is.
func (s *Service) MarkPaid(ctx context.Context, id snowflake.ID) (domain.Installment, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return domain.Installment{}, paymentdomain.ErrMissingTenant
	}

	var paid domain.Installment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		installment, err := s.repo.FindByIDForUpdate(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if installment == nil {
			return domain.ErrInstallmentNotFound
		}
		if installment.Status == domain.StatusPaid {
			return domain.ErrAlreadyPaid
		}

		payment, err := s.paymentRepo.FindByIDForUpdate(ctx, tx, tenantID, installment.PaymentID)
		if err != nil {
			return err
		}
		if payment == nil {
			return paymentdomain.ErrPaymentNotFound
		}

		now := s.clock.Now()
		installment.Status = domain.StatusPaid
		installment.PaidDate = &now
		installment.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, installment); err != nil {
			return err
		}

		siblings, err := s.repo.ListByPayment(ctx, tx, tenantID, payment.ID)
		if err != nil {
			return err
		}
		allPaid := true
		for i := range siblings {
			if siblings[i].Status != domain.StatusPaid {
				allPaid = false
				break
			}
		}

		derived := paymentdomain.DerivedStatus(payment.Status, 0, payment.Total, allPaid)
		if derived != payment.Status && paymentdomain.CanTransition(payment.Status, derived) {
			payment.Status = derived
			if err := s.paymentRepo.Update(ctx, tx, payment); err != nil {
				return err
			}
		}

		if err := s.recordLog(ctx, tx, payment, auditdomain.ActionInstallmentPaid, map[string]any{
			"installment_id":     installment.ID.String(),
			"installment_number": installment.InstallmentNumber,
			"amount":             installment.Amount,
			"all_paid":           allPaid,
		}); err != nil {
			return err
		}

		paid = *installment
		return nil
	})
	if err != nil {
		return domain.Installment{}, err
	}
	return paid, nil
}

func (s *Service) ListByPayment(ctx context.Context, paymentID snowflake.ID) ([]domain.Installment, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return nil, paymentdomain.ErrMissingTenant
	}
	return s.repo.ListByPayment(ctx, s.db, tenantID, paymentID)
}

// MarkOverdue is invoked by the scheduler sweep.
func (s *Service) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	moved, err := s.repo.MarkOverdueDue(ctx, s.db, now)
	if err != nil {
		return 0, err
	}
	if moved > 0 {
		s.log.Info("marked installments overdue", zap.Int64("count", moved))
	}
	return moved, nil
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
