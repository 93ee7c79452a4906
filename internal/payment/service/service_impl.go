package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/campuskit/billing/internal/audit/domain"
	"github.com/campuskit/billing/internal/cache"
	"github.com/campuskit/billing/internal/clock"
	gatewaydomain "github.com/campuskit/billing/internal/gateway/domain"
	"github.com/campuskit/billing/internal/money"
	obsmetrics "github.com/campuskit/billing/internal/observability/metrics"
	"github.com/campuskit/billing/internal/payment/domain"
	sequencedomain "github.com/campuskit/billing/internal/sequence/domain"
	sequenceservice "github.com/campuskit/billing/internal/sequence/service"
	"github.com/campuskit/billing/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	Sequences  *sequenceservice.Service
	AuditSvc   auditdomain.Service
	Bills      domain.BillAssembler
	Submitter  gatewaydomain.Submitter
	Cache      *cache.PaymentCache
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	sequences  *sequenceservice.Service
	auditSvc   auditdomain.Service
	bills      domain.BillAssembler
	submitter  gatewaydomain.Submitter
	cache      *cache.PaymentCache
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		sequences:  p.Sequences,
		auditSvc:   p.AuditSvc,
		bills:      p.Bills,
		submitter:  p.Submitter,
		cache:      p.Cache,
		obsMetrics: p.ObsMetrics,
	}
}

// Create records a payment, allocates its receipt number, assembles the 1:1
// bill inside the same transaction, then runs the post-commit side effects:
// gateway submission (bounded, leaves the payment PROCESSING or FAILED) and
// best-effort document rendering.
func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (domain.CreateResult, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return domain.CreateResult{}, domain.ErrMissingTenant
	}
	if !domain.ValidMethod(req.Method) {
		return domain.CreateResult{}, domain.ErrInvalidMethod
	}
	gateway := strings.ToLower(strings.TrimSpace(req.Gateway))
	if req.Method == domain.MethodGateway && gateway == "" {
		return domain.CreateResult{}, domain.ErrMissingGateway
	}

	total, err := money.Total(req.Amount, req.Discount, req.Fine)
	if err != nil {
		return domain.CreateResult{}, err
	}

	now := s.clock.Now()
	paymentDate := now
	if req.PaymentDate != nil {
		paymentDate = req.PaymentDate.UTC()
	}

	status := domain.StatusPaid
	var gatewayName *string
	if req.Method == domain.MethodGateway {
		// Gateway payments settle asynchronously; cash settles on the spot.
		status = domain.StatusPending
		gatewayName = &gateway
	}

	payment := domain.Payment{
		ID:          s.genID.Generate(),
		TenantID:    tenantID,
		Amount:      req.Amount,
		Discount:    req.Discount,
		Fine:        req.Fine,
		Total:       total,
		PaymentDate: paymentDate,
		DueDate:     req.DueDate,
		Status:      status,
		Method:      req.Method,
		Gateway:     gatewayName,
		StudentID:   req.StudentID,
		GuardianID:  req.GuardianID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var billNumber string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		receiptNumber, err := s.sequences.Next(ctx, tx, tenantID, sequencedomain.PrefixReceipt)
		if err != nil {
			return err
		}
		payment.ReceiptNumber = receiptNumber

		if err := s.repo.Insert(ctx, tx, &payment); err != nil {
			return err
		}
		if err := s.recordLog(ctx, tx, &payment, auditdomain.ActionPaymentCreated, nil, &payment, nil); err != nil {
			return err
		}

		bill, err := s.bills.Assemble(ctx, tx, &payment)
		if err != nil {
			return err
		}
		billNumber = bill.BillNumber
		return nil
	})
	if err != nil {
		return domain.CreateResult{}, err
	}

	s.cache.Invalidate(payment.ID)
	s.obsMetrics.RecordPaymentCreated(string(payment.Method))
	s.emitAudit(ctx, &payment, auditdomain.ActionPaymentCreated, map[string]any{
		"receipt_number": payment.ReceiptNumber,
		"total":          payment.Total,
	})

	if payment.Method == domain.MethodGateway {
		if err := s.submitToGateway(ctx, &payment, gateway); err != nil {
			return domain.CreateResult{Payment: payment, BillNumber: billNumber}, err
		}
	}

	rendered := s.bills.RenderReceipt(ctx, &payment, billNumber)

	return domain.CreateResult{
		Payment:    payment,
		BillNumber: billNumber,
		Rendered:   rendered,
	}, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (domain.Payment, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return domain.Payment{}, domain.ErrMissingTenant
	}

	if cached, ok := s.cache.Get(id); ok && cached.TenantID == tenantID {
		return cached, nil
	}

	payment, err := s.repo.FindByID(ctx, s.db, tenantID, id)
	if err != nil {
		return domain.Payment{}, err
	}
	if payment == nil || payment.Deleted() {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}

	s.cache.Set(*payment)
	return *payment, nil
}

// Update applies a sparse patch. Monetary fields are frozen once the payment
// settled; the derived total is recomputed and re-validated on every change.
func (s *Service) Update(ctx context.Context, id snowflake.ID, patch domain.UpdateRequest) (domain.Payment, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return domain.Payment{}, domain.ErrMissingTenant
	}

	var updated domain.Payment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := s.repo.FindByIDForUpdate(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if payment == nil || payment.Deleted() {
			return domain.ErrPaymentNotFound
		}

		before := *payment

		touchesMoney := patch.Amount != nil || patch.Discount != nil || patch.Fine != nil
		if touchesMoney && payment.Settled() {
			return domain.ErrImmutableState
		}

		if patch.Amount != nil {
			payment.Amount = *patch.Amount
		}
		if patch.Discount != nil {
			payment.Discount = *patch.Discount
		}
		if patch.Fine != nil {
			payment.Fine = *patch.Fine
		}
		if touchesMoney {
			total, err := money.Total(payment.Amount, payment.Discount, payment.Fine)
			if err != nil {
				return err
			}
			payment.Total = total
		}
		if patch.DueDate != nil {
			payment.DueDate = patch.DueDate
		}
		if patch.StudentID != nil {
			payment.StudentID = patch.StudentID
		}
		if patch.GuardianID != nil {
			payment.GuardianID = patch.GuardianID
		}

		if err := s.repo.Update(ctx, tx, payment); err != nil {
			return err
		}
		if err := s.recordLog(ctx, tx, payment, auditdomain.ActionPaymentUpdated, &before, payment, nil); err != nil {
			return err
		}

		updated = *payment
		return nil
	})
	if err != nil {
		return domain.Payment{}, err
	}

	s.cache.Invalidate(id)
	s.emitAudit(ctx, &updated, auditdomain.ActionPaymentUpdated, nil)
	return updated, nil
}

// SoftDelete stamps the tombstone. Children (refunds, installments, bill,
// payment log) are left untouched as historical record.
func (s *Service) SoftDelete(ctx context.Context, id snowflake.ID) error {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return domain.ErrMissingTenant
	}

	var deleted domain.Payment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := s.repo.FindByIDForUpdate(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if payment == nil {
			return domain.ErrPaymentNotFound
		}
		if payment.Deleted() {
			return domain.ErrAlreadyDeleted
		}

		before := *payment
		now := s.clock.Now()
		payment.DeletedAt = &now

		if err := s.repo.Update(ctx, tx, payment); err != nil {
			return err
		}
		if err := s.recordLog(ctx, tx, payment, auditdomain.ActionPaymentDeleted, &before, payment, nil); err != nil {
			return err
		}

		deleted = *payment
		return nil
	})
	if err != nil {
		return err
	}

	s.cache.Invalidate(id)
	s.emitAudit(ctx, &deleted, auditdomain.ActionPaymentDeleted, nil)
	return nil
}

// SetStatus drives the lifecycle table. Setting the current status again is
// a no-op success, which is what makes webhook replays harmless.
func (s *Service) SetStatus(ctx context.Context, id snowflake.ID, status domain.Status) (domain.Payment, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return domain.Payment{}, domain.ErrMissingTenant
	}
	if !domain.ValidStatus(status) {
		return domain.Payment{}, domain.ErrInvalidStatus
	}

	var result domain.Payment
	var applied bool
	var from domain.Status
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := s.repo.FindByIDForUpdate(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if payment == nil || payment.Deleted() {
			return domain.ErrPaymentNotFound
		}

		if payment.Status == status {
			result = *payment
			return nil
		}
		if !domain.CanTransition(payment.Status, status) {
			return domain.ErrInvalidTransition
		}

		before := *payment
		from = payment.Status
		payment.Status = status

		if err := s.repo.Update(ctx, tx, payment); err != nil {
			return err
		}
		if err := s.recordLog(ctx, tx, payment, auditdomain.ActionPaymentStatusChanged, &before, payment, map[string]any{
			"from": string(before.Status),
			"to":   string(status),
		}); err != nil {
			return err
		}
		if err := s.bills.MirrorStatus(ctx, tx, payment); err != nil {
			return err
		}

		result = *payment
		applied = true
		return nil
	})
	if err != nil {
		return domain.Payment{}, err
	}

	if applied {
		s.cache.Invalidate(id)
		s.obsMetrics.RecordStatusTransition(string(from), string(status))
		s.emitAudit(ctx, &result, auditdomain.ActionPaymentStatusChanged, map[string]any{
			"from": string(from),
			"to":   string(status),
		})
	}
	return result, nil
}

// submitToGateway runs after the create transaction committed. A rejected
// or failed submission parks the payment in FAILED and surfaces a gateway
// error; acceptance stores the processor handle and moves to PROCESSING.
func (s *Service) submitToGateway(ctx context.Context, payment *domain.Payment, gateway string) error {
	result, submitErr := s.submitter.Submit(ctx, payment.TenantID, gateway, gatewaydomain.SubmitRequest{
		TenantID:      payment.TenantID,
		PaymentID:     payment.ID,
		ReceiptNumber: payment.ReceiptNumber,
		Amount:        payment.Total,
	})
	if submitErr != nil || !result.Accepted {
		if _, err := s.SetStatus(ctx, payment.ID, domain.StatusFailed); err != nil {
			s.log.Error("failed to park payment after gateway error",
				zap.String("payment_id", payment.ID.String()),
				zap.Error(err),
			)
		}
		payment.Status = domain.StatusFailed
		if submitErr != nil {
			return submitErr
		}
		return gatewaydomain.ErrGatewayUnavailable
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.repo.FindByIDForUpdate(ctx, tx, payment.TenantID, payment.ID)
		if err != nil {
			return err
		}
		if locked == nil {
			return domain.ErrPaymentNotFound
		}

		before := *locked
		locked.GatewayTransactionID = &result.TransactionID
		if domain.CanTransition(locked.Status, domain.StatusProcessing) {
			locked.Status = domain.StatusProcessing
		}

		if err := s.repo.Update(ctx, tx, locked); err != nil {
			return err
		}
		if err := s.recordLog(ctx, tx, locked, auditdomain.ActionPaymentStatusChanged, &before, locked, map[string]any{
			"from":                   string(before.Status),
			"to":                     string(locked.Status),
			"gateway_transaction_id": result.TransactionID,
		}); err != nil {
			return err
		}
		if err := s.bills.MirrorStatus(ctx, tx, locked); err != nil {
			return err
		}

		*payment = *locked
		return nil
	})
	if err != nil {
		return err
	}

	s.cache.Invalidate(payment.ID)
	return nil
}

func (s *Service) recordLog(ctx context.Context, tx *gorm.DB, payment *domain.Payment, action string, before, after *domain.Payment, metadata map[string]any) error {
	actor := tenantctx.ActorFromContext(ctx)

	entry := auditdomain.PaymentLog{
		ID:        s.genID.Generate(),
		TenantID:  payment.TenantID,
		PaymentID: payment.ID,
		Action:    action,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		CreatedAt: time.Now().UTC(),
	}
	if before != nil {
		entry.Before = snapshot(before)
	}
	if after != nil {
		entry.After = snapshot(after)
	}
	if metadata != nil {
		raw, err := json.Marshal(metadata)
		if err == nil {
			entry.Metadata = datatypes.JSON(raw)
		}
	}
	return s.auditSvc.Record(ctx, tx, &entry)
}

func (s *Service) emitAudit(ctx context.Context, payment *domain.Payment, action string, metadata map[string]any) {
	actor := tenantctx.ActorFromContext(ctx)
	s.auditSvc.Append(ctx, auditdomain.Event{
		TenantID:   payment.TenantID,
		Action:     action,
		TargetType: "payment",
		TargetID:   payment.ID.String(),
		ActorID:    actor.ID,
		Metadata:   metadata,
	})
}

func snapshot(payment *domain.Payment) datatypes.JSON {
	raw, err := json.Marshal(payment)
	if err != nil {
		return datatypes.JSON([]byte("{}"))
	}
	return datatypes.JSON(raw)
}
