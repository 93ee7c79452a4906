package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/campuskit/billing/internal/audit/domain"
	auditrepository "github.com/campuskit/billing/internal/audit/repository"
	auditservice "github.com/campuskit/billing/internal/audit/service"
	billdomain "github.com/campuskit/billing/internal/bill/domain"
	"github.com/campuskit/billing/internal/clock"
	"github.com/campuskit/billing/internal/config"
	installmentdomain "github.com/campuskit/billing/internal/installment/domain"
	installmentrepository "github.com/campuskit/billing/internal/installment/repository"
	installmentservice "github.com/campuskit/billing/internal/installment/service"
	paymentdomain "github.com/campuskit/billing/internal/payment/domain"
	paymentrepository "github.com/campuskit/billing/internal/payment/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var schedulerDBSeq int

func newSchedulerEnv(t *testing.T) (*Scheduler, *gorm.DB, *snowflake.Node, *clock.FakeClock) {
	t.Helper()

	schedulerDBSeq++
	dsn := fmt.Sprintf("file:scheduler_%d?mode=memory&cache=shared", schedulerDBSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&paymentdomain.Payment{},
		&billdomain.Bill{},
		&installmentdomain.Installment{},
		&auditdomain.PaymentLog{},
	))

	node, err := snowflake.NewNode(7)
	require.NoError(t, err)
	logger := zap.NewNop()
	clk := clock.NewFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))

	installments := installmentservice.NewService(installmentservice.Params{
		DB:          db,
		Log:         logger,
		GenID:       node,
		Clock:       clk,
		CfgHolder:   config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()),
		Repo:        installmentrepository.Provide(),
		PaymentRepo: paymentrepository.Provide(),
		AuditSvc: auditservice.NewService(auditservice.Params{
			DB: db, Log: logger, GenID: node, Repo: auditrepository.Provide(),
		}),
	})

	sched, err := New(Params{
		DB:             db,
		Log:            logger,
		Clock:          clk,
		InstallmentSvc: installments,
	})
	require.NoError(t, err)
	return sched, db, node, clk
}

func seedUnpaid(t *testing.T, db *gorm.DB, node *snowflake.Node, due time.Time) paymentdomain.Payment {
	t.Helper()

	now := due.Add(-30 * 24 * time.Hour)
	tenantID := node.Generate()
	payment := paymentdomain.Payment{
		ID:            node.Generate(),
		TenantID:      tenantID,
		ReceiptNumber: fmt.Sprintf("RCP-2026-%06d", node.Generate()%1000000),
		Amount:        50000,
		Total:         50000,
		PaymentDate:   now,
		DueDate:       &due,
		Status:        paymentdomain.StatusUnpaid,
		Method:        paymentdomain.MethodCash,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, db.Create(&payment).Error)
	require.NoError(t, db.Create(&billdomain.Bill{
		ID:         node.Generate(),
		TenantID:   tenantID,
		PaymentID:  payment.ID,
		BillNumber: fmt.Sprintf("BIL-2026-%06d", node.Generate()%1000000),
		Status:     string(payment.Status),
		IssuedAt:   now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}).Error)
	return payment
}

func TestRunOnce_MarksOverdueAndMirrorsBills(t *testing.T) {
	sched, db, node, clk := newSchedulerEnv(t)

	overdue := seedUnpaid(t, db, node, clk.Now().Add(-time.Hour))
	current := seedUnpaid(t, db, node, clk.Now().Add(24*time.Hour))

	require.NoError(t, sched.RunOnce(context.Background()))

	var status string
	require.NoError(t, db.Raw(`SELECT status FROM payments WHERE id = ?`, overdue.ID).Scan(&status).Error)
	assert.Equal(t, string(paymentdomain.StatusOverdue), status)

	require.NoError(t, db.Raw(`SELECT status FROM bills WHERE payment_id = ?`, overdue.ID).Scan(&status).Error)
	assert.Equal(t, string(paymentdomain.StatusOverdue), status)

	require.NoError(t, db.Raw(`SELECT status FROM payments WHERE id = ?`, current.ID).Scan(&status).Error)
	assert.Equal(t, string(paymentdomain.StatusUnpaid), status)

	// Re-running is a no-op; already-overdue rows stay put.
	require.NoError(t, sched.RunOnce(context.Background()))
}

func TestRunOnce_SkipsSoftDeletedPayments(t *testing.T) {
	sched, db, node, clk := newSchedulerEnv(t)

	payment := seedUnpaid(t, db, node, clk.Now().Add(-time.Hour))
	deletedAt := clk.Now()
	require.NoError(t, db.Exec(
		`UPDATE payments SET deleted_at = ? WHERE id = ?`, deletedAt, payment.ID,
	).Error)

	require.NoError(t, sched.RunOnce(context.Background()))

	var status string
	require.NoError(t, db.Raw(`SELECT status FROM payments WHERE id = ?`, payment.ID).Scan(&status).Error)
	assert.Equal(t, string(paymentdomain.StatusUnpaid), status)
}
