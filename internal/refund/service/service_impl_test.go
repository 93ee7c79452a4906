package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/campuskit/billing/internal/audit/domain"
	auditrepository "github.com/campuskit/billing/internal/audit/repository"
	auditservice "github.com/campuskit/billing/internal/audit/service"
	billdomain "github.com/campuskit/billing/internal/bill/domain"
	billrepository "github.com/campuskit/billing/internal/bill/repository"
	billservice "github.com/campuskit/billing/internal/bill/service"
	"github.com/campuskit/billing/internal/cache"
	"github.com/campuskit/billing/internal/clock"
	"github.com/campuskit/billing/internal/config"
	paymentdomain "github.com/campuskit/billing/internal/payment/domain"
	paymentrepository "github.com/campuskit/billing/internal/payment/repository"
	"github.com/campuskit/billing/internal/providers/render"
	"github.com/campuskit/billing/internal/refund/domain"
	refundrepository "github.com/campuskit/billing/internal/refund/repository"
	sequencedomain "github.com/campuskit/billing/internal/sequence/domain"
	sequenceservice "github.com/campuskit/billing/internal/sequence/service"
	"github.com/campuskit/billing/pkg/tenantctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type refundEnv struct {
	svc      *Service
	db       *gorm.DB
	node     *snowflake.Node
	clk      *clock.FakeClock
	tenantID snowflake.ID
	ctx      context.Context
}

var refundDBSeq int

func newRefundEnv(t *testing.T, billing config.BillingConfig) *refundEnv {
	t.Helper()

	refundDBSeq++
	// Immediate transactions plus a busy timeout serialize concurrent
	// writers the way the row lock does on postgres.
	dsn := fmt.Sprintf("file:refund_svc_%d?mode=memory&cache=shared&_txlock=immediate&_busy_timeout=5000", refundDBSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&paymentdomain.Payment{},
		&domain.Refund{},
		&auditdomain.PaymentLog{},
		&sequencedomain.DocumentNumber{},
		&billdomain.Bill{},
	))

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	logger := zap.NewNop()
	clk := clock.NewFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	holder := config.NewStaticBillingConfigHolder(billing)

	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   logger,
		GenID: node,
		Repo:  auditrepository.Provide(),
	})
	sequences := sequenceservice.NewService(sequenceservice.Params{
		DB:        db,
		Log:       logger,
		GenID:     node,
		Clock:     clk,
		CfgHolder: holder,
	})
	bills := billservice.NewService(billservice.Params{
		DB:        db,
		Log:       logger,
		GenID:     node,
		Clock:     clk,
		Repo:      billrepository.Provide(),
		Sequences: sequences,
		AuditSvc:  auditSvc,
		Renderer:  &render.NoOpProvider{},
	})

	svc := NewService(Params{
		DB:          db,
		Log:         logger,
		GenID:       node,
		Clock:       clk,
		CfgHolder:   holder,
		Repo:        refundrepository.Provide(),
		PaymentRepo: paymentrepository.Provide(),
		Bills:       bills,
		AuditSvc:    auditSvc,
		Cache:       cache.NewPaymentCache(),
	})

	tenantID := node.Generate()
	return &refundEnv{
		svc:      svc,
		db:       db,
		node:     node,
		clk:      clk,
		tenantID: tenantID,
		ctx:      tenantctx.WithTenantID(context.Background(), tenantID),
	}
}

func (e *refundEnv) seedPaidPayment(t *testing.T, total int64) paymentdomain.Payment {
	t.Helper()

	now := e.clk.Now()
	payment := paymentdomain.Payment{
		ID:            e.node.Generate(),
		TenantID:      e.tenantID,
		ReceiptNumber: fmt.Sprintf("RCP-2026-%06d", e.node.Generate()%1000000),
		Amount:        total,
		Total:         total,
		PaymentDate:   now,
		Status:        paymentdomain.StatusPaid,
		Method:        paymentdomain.MethodCash,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, e.db.Create(&payment).Error)
	require.NoError(t, e.db.Create(&billdomain.Bill{
		ID:         e.node.Generate(),
		TenantID:   e.tenantID,
		PaymentID:  payment.ID,
		BillNumber: fmt.Sprintf("BIL-2026-%06d", e.node.Generate()%1000000),
		Status:     string(payment.Status),
		IssuedAt:   now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}).Error)
	return payment
}

func TestCreateRefund_NeverExceedsTotal(t *testing.T) {
	env := newRefundEnv(t, config.DefaultBillingConfig())
	payment := env.seedPaidPayment(t, 1_000)

	first, err := env.svc.Create(env.ctx, domain.CreateRequest{
		PaymentID: payment.ID,
		Amount:    600,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, first.Status)

	_, err = env.svc.Create(env.ctx, domain.CreateRequest{
		PaymentID: payment.ID,
		Amount:    600,
	})
	assert.ErrorIs(t, err, domain.ErrExceedsRefundable)

	var sum int64
	require.NoError(t, env.db.Raw(
		`SELECT COALESCE(SUM(amount), 0) FROM refunds WHERE payment_id = ? AND status != ?`,
		payment.ID, domain.StatusCancelled,
	).Scan(&sum).Error)
	assert.Equal(t, int64(600), sum)
}

func TestCreateRefund_FullRefundFlipsPayment(t *testing.T) {
	env := newRefundEnv(t, config.DefaultBillingConfig())
	payment := env.seedPaidPayment(t, 1_000)

	_, err := env.svc.Create(env.ctx, domain.CreateRequest{PaymentID: payment.ID, Amount: 600})
	require.NoError(t, err)
	_, err = env.svc.Create(env.ctx, domain.CreateRequest{PaymentID: payment.ID, Amount: 400})
	require.NoError(t, err)

	var status string
	require.NoError(t, env.db.Raw(
		`SELECT status FROM payments WHERE id = ?`, payment.ID,
	).Scan(&status).Error)
	assert.Equal(t, string(paymentdomain.StatusRefunded), status)

	var billStatus string
	require.NoError(t, env.db.Raw(
		`SELECT status FROM bills WHERE payment_id = ?`, payment.ID,
	).Scan(&billStatus).Error)
	assert.Equal(t, string(paymentdomain.StatusRefunded), billStatus)

	// The fully refunded payment accepts no further refunds.
	_, err = env.svc.Create(env.ctx, domain.CreateRequest{PaymentID: payment.ID, Amount: 1})
	assert.ErrorIs(t, err, domain.ErrPaymentNotRefundable)
}

func TestCreateRefund_RejectsInvalidAmount(t *testing.T) {
	env := newRefundEnv(t, config.DefaultBillingConfig())
	payment := env.seedPaidPayment(t, 1_000)

	_, err := env.svc.Create(env.ctx, domain.CreateRequest{PaymentID: payment.ID, Amount: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidRefundAmount)

	_, err = env.svc.Create(env.ctx, domain.CreateRequest{PaymentID: payment.ID, Amount: -5})
	assert.ErrorIs(t, err, domain.ErrInvalidRefundAmount)
}

func TestCreateRefund_RequiresRefundablePayment(t *testing.T) {
	env := newRefundEnv(t, config.DefaultBillingConfig())
	payment := env.seedPaidPayment(t, 1_000)
	require.NoError(t, env.db.Exec(
		`UPDATE payments SET status = ? WHERE id = ?`,
		paymentdomain.StatusPending, payment.ID,
	).Error)

	_, err := env.svc.Create(env.ctx, domain.CreateRequest{PaymentID: payment.ID, Amount: 100})
	assert.ErrorIs(t, err, domain.ErrPaymentNotRefundable)
}

func TestCreateRefund_AllowsPartiallyPaidAndDisputed(t *testing.T) {
	env := newRefundEnv(t, config.DefaultBillingConfig())

	// Every status with a REFUNDED edge accepts refunds, not just PAID.
	for _, status := range []paymentdomain.Status{
		paymentdomain.StatusPartiallyPaid,
		paymentdomain.StatusDisputed,
	} {
		payment := env.seedPaidPayment(t, 1_000)
		require.NoError(t, env.db.Exec(
			`UPDATE payments SET status = ? WHERE id = ?`, status, payment.ID,
		).Error)

		refund, err := env.svc.Create(env.ctx, domain.CreateRequest{
			PaymentID: payment.ID,
			Amount:    100,
		})
		require.NoError(t, err, "status %s", status)
		assert.Equal(t, int64(100), refund.Amount)
	}

	payment := env.seedPaidPayment(t, 1_000)
	require.NoError(t, env.db.Exec(
		`UPDATE payments SET status = ? WHERE id = ?`,
		paymentdomain.StatusProcessing, payment.ID,
	).Error)
	_, err := env.svc.Create(env.ctx, domain.CreateRequest{PaymentID: payment.ID, Amount: 100})
	assert.ErrorIs(t, err, domain.ErrPaymentNotRefundable)
}

func TestCreateRefund_AmountOverTotalIsInvalid(t *testing.T) {
	env := newRefundEnv(t, config.DefaultBillingConfig())
	payment := env.seedPaidPayment(t, 1_000)

	// A single request past the total is a malformed request, not a
	// ledger conflict.
	_, err := env.svc.Create(env.ctx, domain.CreateRequest{PaymentID: payment.ID, Amount: 1_001})
	assert.ErrorIs(t, err, domain.ErrInvalidRefundAmount)

	var rows int64
	require.NoError(t, env.db.Raw(
		`SELECT COUNT(1) FROM refunds WHERE payment_id = ?`, payment.ID,
	).Scan(&rows).Error)
	assert.Equal(t, int64(0), rows)
}

func TestCreateRefund_ConcurrentAttemptsSerialize(t *testing.T) {
	env := newRefundEnv(t, config.DefaultBillingConfig())
	payment := env.seedPaidPayment(t, 1_000)

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.Create(env.ctx, domain.CreateRequest{
				PaymentID: payment.ID,
				Amount:    600,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var succeeded, rejected int
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, domain.ErrExceedsRefundable)
		rejected++
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)

	var sum int64
	require.NoError(t, env.db.Raw(
		`SELECT COALESCE(SUM(amount), 0) FROM refunds WHERE payment_id = ? AND status != ?`,
		payment.ID, domain.StatusCancelled,
	).Scan(&sum).Error)
	assert.Equal(t, int64(600), sum)
}

func TestRecordGatewayRefund_RefundsRemainingBalance(t *testing.T) {
	env := newRefundEnv(t, config.DefaultBillingConfig())
	payment := env.seedPaidPayment(t, 1_000)

	_, err := env.svc.Create(env.ctx, domain.CreateRequest{PaymentID: payment.ID, Amount: 400})
	require.NoError(t, err)

	refund, err := env.svc.RecordGatewayRefund(env.ctx, payment.ID, 0, "gateway refund")
	require.NoError(t, err)
	assert.Equal(t, int64(600), refund.Amount)
	assert.Equal(t, domain.StatusApproved, refund.Status)

	var status string
	require.NoError(t, env.db.Raw(
		`SELECT status FROM payments WHERE id = ?`, payment.ID,
	).Scan(&status).Error)
	assert.Equal(t, string(paymentdomain.StatusRefunded), status)

	_, err = env.svc.RecordGatewayRefund(env.ctx, payment.ID, 0, "gateway refund")
	assert.ErrorIs(t, err, domain.ErrPaymentNotRefundable)
}

func TestRefundApprovalWorkflow(t *testing.T) {
	billing := config.DefaultBillingConfig()
	billing.RefundApprovalRequired = true
	env := newRefundEnv(t, billing)
	payment := env.seedPaidPayment(t, 1_000)

	refund, err := env.svc.Create(env.ctx, domain.CreateRequest{PaymentID: payment.ID, Amount: 1_000})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, refund.Status)

	// Pending refunds still count toward the cap.
	_, err = env.svc.Create(env.ctx, domain.CreateRequest{PaymentID: payment.ID, Amount: 1})
	assert.ErrorIs(t, err, domain.ErrExceedsRefundable)

	approved, err := env.svc.Approve(env.ctx, refund.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, approved.Status)

	var status string
	require.NoError(t, env.db.Raw(
		`SELECT status FROM payments WHERE id = ?`, payment.ID,
	).Scan(&status).Error)
	assert.Equal(t, string(paymentdomain.StatusRefunded), status)

	_, err = env.svc.Approve(env.ctx, refund.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidRefundState)
}

func TestCancelRefund_FreesCapacity(t *testing.T) {
	billing := config.DefaultBillingConfig()
	billing.RefundApprovalRequired = true
	env := newRefundEnv(t, billing)
	payment := env.seedPaidPayment(t, 1_000)

	refund, err := env.svc.Create(env.ctx, domain.CreateRequest{PaymentID: payment.ID, Amount: 800})
	require.NoError(t, err)

	cancelled, err := env.svc.Cancel(env.ctx, refund.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)

	// The cancelled amount no longer counts toward the cap.
	_, err = env.svc.Create(env.ctx, domain.CreateRequest{PaymentID: payment.ID, Amount: 900})
	require.NoError(t, err)

	_, err = env.svc.Cancel(env.ctx, cancelled.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidRefundState)
}

func TestListRefunds(t *testing.T) {
	env := newRefundEnv(t, config.DefaultBillingConfig())
	payment := env.seedPaidPayment(t, 1_000)

	_, err := env.svc.Create(env.ctx, domain.CreateRequest{PaymentID: payment.ID, Amount: 100})
	require.NoError(t, err)
	_, err = env.svc.Create(env.ctx, domain.CreateRequest{PaymentID: payment.ID, Amount: 200})
	require.NoError(t, err)

	refunds, err := env.svc.ListByPayment(env.ctx, payment.ID)
	require.NoError(t, err)
	require.Len(t, refunds, 2)
	assert.Equal(t, int64(100), refunds[0].Amount)
	assert.Equal(t, int64(200), refunds[1].Amount)
}
