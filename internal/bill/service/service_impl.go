package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/campuskit/billing/internal/audit/domain"
	"github.com/campuskit/billing/internal/bill/domain"
	"github.com/campuskit/billing/internal/bill/repository"
	"github.com/campuskit/billing/internal/clock"
	obsmetrics "github.com/campuskit/billing/internal/observability/metrics"
	paymentdomain "github.com/campuskit/billing/internal/payment/domain"
	"github.com/campuskit/billing/internal/providers/render"
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
	Repo       repository.Repository
	Sequences  *sequenceservice.Service
	AuditSvc   auditdomain.Service
	Renderer   render.Provider
	Store      render.Store        `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       repository.Repository
	sequences  *sequenceservice.Service
	auditSvc   auditdomain.Service
	renderer   render.Provider
	store      render.Store
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("bill.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		sequences:  p.Sequences,
		auditSvc:   p.AuditSvc,
		renderer:   p.Renderer,
		store:      p.Store,
		obsMetrics: p.ObsMetrics,
	}
}

// Assemble issues the bill for a freshly created payment inside the same
// transaction, so a payment without its bill can never commit.
func (s *Service) Assemble(ctx context.Context, tx *gorm.DB, payment *paymentdomain.Payment) (paymentdomain.AssembledBill, error) {
	billNumber, err := s.sequences.Next(ctx, tx, payment.TenantID, sequencedomain.PrefixBill)
	if err != nil {
		return paymentdomain.AssembledBill{}, err
	}

	now := s.clock.Now()
	bill := domain.Bill{
		ID:         s.genID.Generate(),
		TenantID:   payment.TenantID,
		PaymentID:  payment.ID,
		BillNumber: billNumber,
		Status:     string(payment.Status),
		IssuedAt:   now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Insert(ctx, tx, &bill); err != nil {
		return paymentdomain.AssembledBill{}, err
	}

	if err := s.recordLog(ctx, tx, payment, bill.BillNumber); err != nil {
		return paymentdomain.AssembledBill{}, err
	}

	return paymentdomain.AssembledBill{ID: bill.ID, BillNumber: bill.BillNumber}, nil
}

func (s *Service) MirrorStatus(ctx context.Context, tx *gorm.DB, payment *paymentdomain.Payment) error {
	return s.repo.UpdateStatusByPayment(ctx, tx, payment.ID, string(payment.Status), s.clock.Now())
}

// RenderReceipt produces the artifact after the ledger committed, stores
// it, and writes the reference on the bill row. Failures are logged and
// reported as rendered=false, never as an error.
func (s *Service) RenderReceipt(ctx context.Context, payment *paymentdomain.Payment, billNumber string) bool {
	doc := render.ReceiptDocument{
		BillNumber:    billNumber,
		ReceiptNumber: payment.ReceiptNumber,
		IssuedAt:      s.clock.Now(),
		PaymentDate:   payment.PaymentDate,
		Amount:        payment.Amount,
		Discount:      payment.Discount,
		Fine:          payment.Fine,
		Total:         payment.Total,
		Status:        string(payment.Status),
		Method:        string(payment.Method),
	}
	if payment.StudentID != nil {
		doc.StudentID = payment.StudentID.String()
	}

	reader, err := s.renderer.RenderReceipt(ctx, doc)
	if err != nil {
		return s.renderFailed(payment, billNumber, "receipt rendering failed", err)
	}
	if reader == nil || s.store == nil {
		return false
	}

	name := fmt.Sprintf("receipts/%s/%s.pdf", payment.TenantID.String(), billNumber)
	ref, err := s.store.Put(ctx, name, reader)
	if err != nil {
		return s.renderFailed(payment, billNumber, "receipt artifact store failed", err)
	}
	if err := s.repo.UpdateArtifactRef(ctx, s.db, payment.ID, ref, s.clock.Now()); err != nil {
		return s.renderFailed(payment, billNumber, "receipt artifact reference update failed", err)
	}
	return true
}

func (s *Service) renderFailed(payment *paymentdomain.Payment, billNumber, msg string, err error) bool {
	s.obsMetrics.RecordRenderFailure()
	s.log.Warn(msg,
		zap.String("payment_id", payment.ID.String()),
		zap.String("bill_number", billNumber),
		zap.Error(err),
	)
	return false
}

func (s *Service) GetByPayment(ctx context.Context, paymentID snowflake.ID) (domain.Bill, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return domain.Bill{}, paymentdomain.ErrMissingTenant
	}

	bill, err := s.repo.FindByPayment(ctx, s.db, tenantID, paymentID)
	if err != nil {
		return domain.Bill{}, err
	}
	if bill == nil {
		return domain.Bill{}, domain.ErrBillNotFound
	}
	return *bill, nil
}

func (s *Service) recordLog(ctx context.Context, tx *gorm.DB, payment *paymentdomain.Payment, billNumber string) error {
	actor := tenantctx.ActorFromContext(ctx)
	metadata, _ := json.Marshal(map[string]any{"bill_number": billNumber})
	entry := auditdomain.PaymentLog{
		ID:        s.genID.Generate(),
		TenantID:  payment.TenantID,
		PaymentID: payment.ID,
		Action:    auditdomain.ActionBillIssued,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		Metadata:  datatypes.JSON(metadata),
		CreatedAt: s.clock.Now(),
	}
	return s.auditSvc.Record(ctx, tx, &entry)
}
