package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/campuskit/billing/internal/audit/domain"
	auditrepository "github.com/campuskit/billing/internal/audit/repository"
	auditservice "github.com/campuskit/billing/internal/audit/service"
	"github.com/campuskit/billing/internal/bill/domain"
	billrepository "github.com/campuskit/billing/internal/bill/repository"
	"github.com/campuskit/billing/internal/clock"
	"github.com/campuskit/billing/internal/config"
	paymentdomain "github.com/campuskit/billing/internal/payment/domain"
	"github.com/campuskit/billing/internal/providers/render"
	sequencedomain "github.com/campuskit/billing/internal/sequence/domain"
	sequenceservice "github.com/campuskit/billing/internal/sequence/service"
	"github.com/campuskit/billing/pkg/tenantctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type stubRenderer struct {
	out []byte
	err error
}

func (r stubRenderer) RenderReceipt(ctx context.Context, doc render.ReceiptDocument) (io.Reader, error) {
	if r.err != nil {
		return nil, r.err
	}
	return bytes.NewReader(r.out), nil
}

type billEnv struct {
	svc         *Service
	db          *gorm.DB
	node        *snowflake.Node
	clk         *clock.FakeClock
	tenantID    snowflake.ID
	artifactDir string
}

var billDBSeq int

func newBillEnv(t *testing.T, renderer render.Provider) *billEnv {
	t.Helper()

	billDBSeq++
	dsn := fmt.Sprintf("file:bill_svc_%d?mode=memory&cache=shared", billDBSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&paymentdomain.Payment{},
		&auditdomain.PaymentLog{},
		&sequencedomain.DocumentNumber{},
		&domain.Bill{},
	))

	node, err := snowflake.NewNode(9)
	require.NoError(t, err)
	logger := zap.NewNop()
	clk := clock.NewFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	holder := config.NewStaticBillingConfigHolder(config.DefaultBillingConfig())

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

	artifactDir := t.TempDir()
	svc := NewService(Params{
		DB:        db,
		Log:       logger,
		GenID:     node,
		Clock:     clk,
		Repo:      billrepository.Provide(),
		Sequences: sequences,
		AuditSvc:  auditSvc,
		Renderer:  renderer,
		Store:     render.NewFileStore(config.Config{ArtifactDir: artifactDir}),
	})

	return &billEnv{
		svc:         svc,
		db:          db,
		node:        node,
		clk:         clk,
		tenantID:    node.Generate(),
		artifactDir: artifactDir,
	}
}

func (e *billEnv) seedPaymentWithBill(t *testing.T) (paymentdomain.Payment, string) {
	t.Helper()

	now := e.clk.Now()
	payment := paymentdomain.Payment{
		ID:            e.node.Generate(),
		TenantID:      e.tenantID,
		ReceiptNumber: "RCP-2026-000001",
		Amount:        50_000,
		Total:         50_000,
		PaymentDate:   now,
		Status:        paymentdomain.StatusPaid,
		Method:        paymentdomain.MethodCash,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, e.db.Create(&payment).Error)

	billNumber := "BIL-2026-000001"
	require.NoError(t, e.db.Create(&domain.Bill{
		ID:         e.node.Generate(),
		TenantID:   e.tenantID,
		PaymentID:  payment.ID,
		BillNumber: billNumber,
		Status:     string(payment.Status),
		IssuedAt:   now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}).Error)
	return payment, billNumber
}

func TestRenderReceipt_StoresArtifactAndReference(t *testing.T) {
	env := newBillEnv(t, stubRenderer{out: []byte("%PDF-1.4 receipt")})
	payment, billNumber := env.seedPaymentWithBill(t)

	rendered := env.svc.RenderReceipt(context.Background(), &payment, billNumber)
	require.True(t, rendered)

	var ref string
	require.NoError(t, env.db.Raw(
		`SELECT artifact_ref FROM bills WHERE payment_id = ?`, payment.ID,
	).Scan(&ref).Error)
	wantRef := fmt.Sprintf("receipts/%s/%s.pdf", payment.TenantID.String(), billNumber)
	assert.Equal(t, wantRef, ref)

	content, err := os.ReadFile(filepath.Join(env.artifactDir, filepath.FromSlash(ref)))
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4 receipt"), content)
}

func TestRenderReceipt_FailureLeavesBillWithoutArtifact(t *testing.T) {
	env := newBillEnv(t, stubRenderer{err: errors.New("renderer down")})
	payment, billNumber := env.seedPaymentWithBill(t)

	rendered := env.svc.RenderReceipt(context.Background(), &payment, billNumber)
	assert.False(t, rendered)

	var ref string
	require.NoError(t, env.db.Raw(
		`SELECT artifact_ref FROM bills WHERE payment_id = ?`, payment.ID,
	).Scan(&ref).Error)
	assert.Empty(t, ref)
}

func TestGetByPayment_ReturnsArtifactReference(t *testing.T) {
	env := newBillEnv(t, stubRenderer{out: []byte("%PDF-1.4 receipt")})
	payment, billNumber := env.seedPaymentWithBill(t)
	require.True(t, env.svc.RenderReceipt(context.Background(), &payment, billNumber))

	ctx := tenantctx.WithTenantID(context.Background(), env.tenantID)
	bill, err := env.svc.GetByPayment(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, billNumber, bill.BillNumber)
	assert.NotEmpty(t, bill.ArtifactRef)
}
