package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
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
	"github.com/campuskit/billing/internal/gateway/adapters"
	"github.com/campuskit/billing/internal/gateway/adapters/sandbox"
	gatewaydomain "github.com/campuskit/billing/internal/gateway/domain"
	gatewayrepository "github.com/campuskit/billing/internal/gateway/repository"
	gatewayservice "github.com/campuskit/billing/internal/gateway/service"
	"github.com/campuskit/billing/internal/gateway/webhook"
	installmentdomain "github.com/campuskit/billing/internal/installment/domain"
	installmentrepository "github.com/campuskit/billing/internal/installment/repository"
	installmentservice "github.com/campuskit/billing/internal/installment/service"
	paymentdomain "github.com/campuskit/billing/internal/payment/domain"
	paymentrepository "github.com/campuskit/billing/internal/payment/repository"
	paymentservice "github.com/campuskit/billing/internal/payment/service"
	"github.com/campuskit/billing/internal/providers/render"
	refunddomain "github.com/campuskit/billing/internal/refund/domain"
	refundrepository "github.com/campuskit/billing/internal/refund/repository"
	refundservice "github.com/campuskit/billing/internal/refund/service"
	"github.com/campuskit/billing/internal/sequence/domain"
	sequenceservice "github.com/campuskit/billing/internal/sequence/service"
	"github.com/campuskit/billing/internal/server"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const sandboxSecret = "whsec_e2e"

type env struct {
	engine   *gin.Engine
	db       *gorm.DB
	node     *snowflake.Node
	tenantID snowflake.ID
}

var e2eDBSeq int

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	e2eDBSeq++
	dsn := fmt.Sprintf("file:billing_e2e_%d?mode=memory&cache=shared", e2eDBSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&paymentdomain.Payment{},
		&auditdomain.PaymentLog{},
		&domain.DocumentNumber{},
		&billdomain.Bill{},
		&gatewaydomain.Config{},
		&gatewaydomain.EventRecord{},
	))
	require.NoError(t, db.AutoMigrate(
		&refunddomain.Refund{},
		&installmentdomain.Installment{},
	))

	node, err := snowflake.NewNode(9)
	require.NoError(t, err)
	logger := zap.NewNop()
	clk := clock.NewFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	holder := config.NewStaticBillingConfigHolder(config.DefaultBillingConfig())
	cfg := config.Config{GatewaySubmitTimeout: 5 * time.Second}

	auditSvc := auditservice.NewService(auditservice.Params{
		DB: db, Log: logger, GenID: node, Repo: auditrepository.Provide(),
	})
	sequences := sequenceservice.NewService(sequenceservice.Params{
		DB: db, Log: logger, GenID: node, Clock: clk, CfgHolder: holder,
	})
	bills := billservice.NewService(billservice.Params{
		DB: db, Log: logger, GenID: node, Clock: clk,
		Repo: billrepository.Provide(), Sequences: sequences,
		AuditSvc: auditSvc, Renderer: &render.NoOpProvider{},
	})

	registry := adapters.NewRegistry(sandbox.NewFactory())
	submitter := gatewayservice.NewService(gatewayservice.Params{
		DB: db, Log: logger, Cfg: cfg,
		Registry: registry, Repo: gatewayrepository.Provide(),
	})

	payments := paymentservice.NewService(paymentservice.Params{
		DB: db, Log: logger, GenID: node, Clock: clk,
		Repo: paymentrepository.Provide(), Sequences: sequences,
		AuditSvc: auditSvc, Bills: bills, Submitter: submitter,
		Cache: cache.NewPaymentCache(),
	})
	refunds := refundservice.NewService(refundservice.Params{
		DB: db, Log: logger, GenID: node, Clock: clk, CfgHolder: holder,
		Repo: refundrepository.Provide(), PaymentRepo: paymentrepository.Provide(),
		Bills: bills, AuditSvc: auditSvc, Cache: cache.NewPaymentCache(),
	})
	installments := installmentservice.NewService(installmentservice.Params{
		DB: db, Log: logger, GenID: node, Clock: clk, CfgHolder: holder,
		Repo: installmentrepository.Provide(), PaymentRepo: paymentrepository.Provide(),
		AuditSvc: auditSvc,
	})
	webhooks := webhook.NewService(webhook.Params{
		DB: db, Log: logger, GenID: node, Clock: clk,
		Registry: registry, Repo: gatewayrepository.Provide(),
		PaymentRepo: paymentrepository.Provide(), Payments: payments,
		Refunds: refunds,
	})

	engine := server.NewEngine(logger)
	server.NewServer(server.ServerParams{
		Gin: engine, Cfg: cfg, BillingCfg: holder, Clock: clk, DB: db, GenID: node,
		AuditSvc: auditSvc, PaymentSvc: payments, RefundSvc: refunds,
		InstallmentSvc: installments, BillSvc: bills, WebhookSvc: webhooks,
	})

	tenantID := node.Generate()
	now := clk.Now()
	require.NoError(t, db.Create(&gatewaydomain.Config{
		ID:       node.Generate(),
		TenantID: tenantID,
		Provider: "sandbox",
		Config: datatypes.JSONMap{
			"webhook_secret": sandboxSecret,
		},
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}).Error)

	return &env{engine: engine, db: db, node: node, tenantID: tenantID}
}

func (e *env) do(t *testing.T, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", e.tenantID.String())
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &decoded)
	}
	return rec, decoded
}

func data(t *testing.T, decoded map[string]any) map[string]any {
	t.Helper()
	inner, ok := decoded["data"].(map[string]any)
	require.True(t, ok, "response has no data object: %v", decoded)
	return inner
}

func TestGatewayPaymentLifecycle(t *testing.T) {
	env := newEnv(t)

	rec, body := env.do(t, http.MethodPost, "/v1/payments", map[string]any{
		"amount":  95000,
		"method":  "gateway",
		"gateway": "sandbox",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	result := data(t, body)
	payment := result["payment"].(map[string]any)
	paymentID := payment["id"].(string)
	txnID := payment["gateway_transaction_id"].(string)

	assert.Equal(t, string(paymentdomain.StatusProcessing), payment["status"])
	assert.Equal(t, "RCP-2026-000001", payment["receipt_number"])
	assert.Equal(t, "BIL-2026-000001", result["bill_number"])
	assert.NotEmpty(t, txnID)

	// Processor confirms via webhook.
	payload := []byte(fmt.Sprintf(
		`{"id":"evt_1","type":"payment_succeeded","transaction_id":%q,"amount":95000}`, txnID,
	))
	rec, body = env.do(t, http.MethodPost, "/webhooks/payments/sandbox", json.RawMessage(payload), map[string]string{
		"Sandbox-Signature": sandbox.SignPayload(sandboxSecret, payload),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "processed", body["status"])

	rec, body = env.do(t, http.MethodGet, "/v1/payments/"+paymentID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(paymentdomain.StatusPaid), data(t, body)["status"])

	// The provider retries the same delivery.
	rec, body = env.do(t, http.MethodPost, "/webhooks/payments/sandbox", json.RawMessage(payload), map[string]string{
		"Sandbox-Signature": sandbox.SignPayload(sandboxSecret, payload),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "already_processed", body["status"])

	// Full refund closes the ledger and the bill follows.
	rec, body = env.do(t, http.MethodPost, "/v1/payments/"+paymentID+"/refunds", map[string]any{
		"amount": 95000,
		"reason": "enrollment cancelled",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec, body = env.do(t, http.MethodGet, "/v1/payments/"+paymentID+"/bill", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(paymentdomain.StatusRefunded), data(t, body)["status"])

	// Over-refund rejected with a conflict.
	rec, _ = env.do(t, http.MethodPost, "/v1/payments/"+paymentID+"/refunds", map[string]any{
		"amount": 1,
	}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCashPaymentWithInstallments(t *testing.T) {
	env := newEnv(t)

	rec, body := env.do(t, http.MethodPost, "/v1/payments", map[string]any{
		"amount":   100000,
		"discount": 10000,
		"method":   "cash",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	payment := data(t, body)["payment"].(map[string]any)
	paymentID := payment["id"].(string)
	assert.Equal(t, string(paymentdomain.StatusPaid), payment["status"])
	assert.Equal(t, float64(90000), payment["total"])

	rec, body = env.do(t, http.MethodPost, "/v1/payments/"+paymentID+"/installments", map[string]any{
		"count": 3,
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	plan := body["data"].([]any)
	require.Len(t, plan, 3)
	first := plan[0].(map[string]any)
	assert.Equal(t, float64(30000), first["amount"])

	rec, body = env.do(t, http.MethodPost, "/v1/installments/"+first["id"].(string)+"/pay", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "PAID", data(t, body)["status"])

	// A second plan for the same payment conflicts.
	rec, _ = env.do(t, http.MethodPost, "/v1/payments/"+paymentID+"/installments", map[string]any{
		"count": 2,
	}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestOverduePaymentQuotesLateFee(t *testing.T) {
	env := newEnv(t)

	rec, body := env.do(t, http.MethodPost, "/v1/payments", map[string]any{
		"amount":   1000,
		"method":   "gateway",
		"gateway":  "sandbox",
		"due_date": "2026-03-09T12:00:00Z",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	paymentID := data(t, body)["payment"].(map[string]any)["id"].(string)

	// One day past due at 1% per day.
	rec, body = env.do(t, http.MethodGet, "/v1/payments/"+paymentID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1000), data(t, body)["total"])
	assert.Equal(t, float64(10), body["accrued_late_fee"])
}

func TestRequestValidation(t *testing.T) {
	env := newEnv(t)

	// Negative amount is a 400.
	rec, _ := env.do(t, http.MethodPost, "/v1/payments", map[string]any{
		"amount": -5,
		"method": "cash",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown payment is a 404.
	rec, _ = env.do(t, http.MethodGet, "/v1/payments/"+env.node.Generate().String(), nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Missing tenant header is a 400.
	req := httptest.NewRequest(http.MethodGet, "/v1/payments/123", nil)
	recorder := httptest.NewRecorder()
	env.engine.ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	// Bad webhook signature is a 403.
	payload := []byte(`{"id":"evt_x","type":"payment_succeeded","transaction_id":"sbx_x"}`)
	rec, _ = env.do(t, http.MethodPost, "/webhooks/payments/sandbox", json.RawMessage(payload), map[string]string{
		"Sandbox-Signature": "deadbeef",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
