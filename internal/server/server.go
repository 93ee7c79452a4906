package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/campuskit/billing/internal/audit"
	auditdomain "github.com/campuskit/billing/internal/audit/domain"
	"github.com/campuskit/billing/internal/bill"
	billdomain "github.com/campuskit/billing/internal/bill/domain"
	"github.com/campuskit/billing/internal/cache"
	"github.com/campuskit/billing/internal/clock"
	"github.com/campuskit/billing/internal/config"
	"github.com/campuskit/billing/internal/gateway"
	gatewaydomain "github.com/campuskit/billing/internal/gateway/domain"
	"github.com/campuskit/billing/internal/installment"
	installmentdomain "github.com/campuskit/billing/internal/installment/domain"
	obsmetrics "github.com/campuskit/billing/internal/observability/metrics"
	"github.com/campuskit/billing/internal/payment"
	paymentdomain "github.com/campuskit/billing/internal/payment/domain"
	"github.com/campuskit/billing/internal/providers/render"
	"github.com/campuskit/billing/internal/ratelimit"
	"github.com/campuskit/billing/internal/refund"
	refunddomain "github.com/campuskit/billing/internal/refund/domain"
	"github.com/campuskit/billing/internal/sequence"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	audit.Module,
	sequence.Module,
	render.Module,
	bill.Module,
	gateway.Module,
	payment.Module,
	refund.Module,
	installment.Module,
	ratelimit.Module,
	fx.Provide(cache.NewPaymentCache),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger) *gin.Engine {
	return NewEngine(log)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine         *gin.Engine
	cfg            config.Config
	billingCfg     *config.BillingConfigHolder
	clock          clock.Clock
	db             *gorm.DB
	genID          *snowflake.Node
	auditSvc       auditdomain.Service
	paymentSvc     paymentdomain.Service
	refundSvc      refunddomain.Service
	installmentSvc installmentdomain.Service
	billSvc        billdomain.Service
	webhookSvc     gatewaydomain.WebhookService
	webhookLimiter *ratelimit.WebhookLimiter
	obsMetrics     *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	BillingCfg     *config.BillingConfigHolder
	Clock          clock.Clock
	DB             *gorm.DB
	GenID          *snowflake.Node
	AuditSvc       auditdomain.Service
	PaymentSvc     paymentdomain.Service
	RefundSvc      refunddomain.Service
	InstallmentSvc installmentdomain.Service
	BillSvc        billdomain.Service
	WebhookSvc     gatewaydomain.WebhookService
	WebhookLimiter *ratelimit.WebhookLimiter `optional:"true"`
	ObsMetrics     *obsmetrics.Metrics       `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		billingCfg:     p.BillingCfg,
		clock:          p.Clock,
		db:             p.DB,
		genID:          p.GenID,
		auditSvc:       p.AuditSvc,
		paymentSvc:     p.PaymentSvc,
		refundSvc:      p.RefundSvc,
		installmentSvc: p.InstallmentSvc,
		billSvc:        p.BillSvc,
		webhookSvc:     p.WebhookSvc,
		webhookLimiter: p.WebhookLimiter,
		obsMetrics:     p.ObsMetrics,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/v1", TenantContext())

	v1.POST("/payments", s.CreatePayment)
	v1.GET("/payments/:id", s.GetPayment)
	v1.PATCH("/payments/:id", s.UpdatePayment)
	v1.DELETE("/payments/:id", s.DeletePayment)
	v1.POST("/payments/:id/status", s.SetPaymentStatus)
	v1.GET("/payments/:id/logs", s.ListPaymentLogs)

	v1.POST("/payments/:id/refunds", s.CreateRefund)
	v1.GET("/payments/:id/refunds", s.ListRefunds)
	v1.POST("/refunds/:id/approve", s.ApproveRefund)
	v1.POST("/refunds/:id/cancel", s.CancelRefund)

	v1.POST("/payments/:id/installments", s.CreateInstallments)
	v1.GET("/payments/:id/installments", s.ListInstallments)
	v1.POST("/installments/:id/pay", s.PayInstallment)

	v1.GET("/payments/:id/bill", s.GetBill)

	// Webhooks authenticate by signature, not tenant header.
	s.engine.POST("/webhooks/payments/:provider", s.HandleGatewayWebhook)
}
