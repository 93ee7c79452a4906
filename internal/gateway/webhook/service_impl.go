package webhook

import (
	"context"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/campuskit/billing/internal/clock"
	"github.com/campuskit/billing/internal/gateway/adapters"
	"github.com/campuskit/billing/internal/gateway/domain"
	"github.com/campuskit/billing/internal/gateway/repository"
	obsmetrics "github.com/campuskit/billing/internal/observability/metrics"
	paymentdomain "github.com/campuskit/billing/internal/payment/domain"
	refunddomain "github.com/campuskit/billing/internal/refund/domain"
	"github.com/campuskit/billing/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// eventTransitions maps canonical gateway event types to the lifecycle
// status they drive the payment into. Refunded events are not listed: they
// go through the refund ledger so the REFUNDED status always has refund
// rows covering the total.
var eventTransitions = map[string]paymentdomain.Status{
	domain.EventTypePaymentSucceeded: paymentdomain.StatusPaid,
	domain.EventTypePaymentFailed:    paymentdomain.StatusFailed,
	domain.EventTypeDisputeOpened:    paymentdomain.StatusDisputed,
}

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Registry    *adapters.Registry
	Repo        repository.Repository
	PaymentRepo paymentdomain.Repository
	Payments    paymentdomain.Service
	Refunds     refunddomain.Service
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	registry    *adapters.Registry
	repo        repository.Repository
	paymentRepo paymentdomain.Repository
	payments    paymentdomain.Service
	refunds     refunddomain.Service
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("gateway.webhook"),
		genID:       p.GenID,
		clock:       p.Clock,
		registry:    p.Registry,
		repo:        p.Repo,
		paymentRepo: p.PaymentRepo,
		payments:    p.Payments,
		refunds:     p.Refunds,
		obsMetrics:  p.ObsMetrics,
	}
}

// Ingest verifies, records and applies one provider callback. The durable
// event row is written before the lifecycle transition and carries the
// unique (provider, provider_event_id) key, so a replayed delivery finds
// the processed row and stops there.
func (s *Service) Ingest(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" || !s.registry.ProviderExists(provider) {
		return domain.ErrInvalidProvider
	}

	tenantID, adapter, err := s.matchAdapter(ctx, provider, payload, headers)
	if err != nil {
		s.obsMetrics.RecordWebhookEvent(provider, "rejected")
		return err
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		if err == domain.ErrEventIgnored {
			s.obsMetrics.RecordWebhookEvent(provider, "ignored")
			return domain.ErrEventIgnored
		}
		s.obsMetrics.RecordWebhookEvent(provider, "invalid")
		return err
	}

	payment, err := s.paymentRepo.FindByTransactionID(ctx, s.db, provider, event.TransactionID)
	if err != nil {
		return err
	}
	if payment == nil || payment.TenantID != tenantID {
		s.obsMetrics.RecordWebhookEvent(provider, "unknown_transaction")
		return domain.ErrUnknownTransaction
	}

	record := domain.EventRecord{
		ID:              s.genID.Generate(),
		TenantID:        tenantID,
		Provider:        provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		TransactionID:   event.TransactionID,
		PaymentID:       payment.ID,
		Payload:         datatypes.JSON(event.RawPayload),
		ReceivedAt:      s.clock.Now(),
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, &record)
	if err != nil {
		return err
	}
	if !inserted {
		existing, err := s.repo.FindEvent(ctx, s.db, provider, event.ProviderEventID)
		if err != nil {
			return err
		}
		if existing != nil && existing.ProcessedAt != nil {
			s.obsMetrics.RecordWebhookEvent(provider, "replayed")
			return domain.ErrEventAlreadyProcessed
		}
		if existing != nil {
			// Delivery recorded before a crash; resume processing it.
			record = *existing
		}
	}

	if err := s.applyTransition(ctx, payment, event); err != nil {
		return err
	}

	if err := s.repo.MarkProcessed(ctx, s.db, record.ID, payment.ID, s.clock.Now()); err != nil {
		return err
	}

	s.obsMetrics.RecordWebhookEvent(provider, "processed")
	s.log.Info("gateway event processed",
		zap.String("provider", provider),
		zap.String("provider_event_id", event.ProviderEventID),
		zap.String("event_type", event.Type),
		zap.String("payment_id", payment.ID.String()),
	)
	return nil
}

// matchAdapter finds the tenant whose stored credentials verify the
// delivery. Providers share one callback URL across tenants, so tenancy is
// resolved by trying each active config's secret.
func (s *Service) matchAdapter(ctx context.Context, provider string, payload []byte, headers http.Header) (snowflake.ID, domain.Adapter, error) {
	configs, err := s.repo.ListActiveConfigs(ctx, s.db, provider)
	if err != nil {
		return 0, nil, err
	}

	for _, cfg := range configs {
		adapter, err := s.registry.NewAdapter(provider, domain.AdapterConfig{
			TenantID: cfg.TenantID,
			Config:   map[string]any(cfg.Config),
		})
		if err != nil {
			s.log.Warn("skipping misconfigured gateway config",
				zap.String("provider", provider),
				zap.String("tenant_id", cfg.TenantID.String()),
				zap.Error(err),
			)
			continue
		}
		if err := adapter.Verify(ctx, payload, headers); err == nil {
			return cfg.TenantID, adapter, nil
		}
	}
	return 0, nil, domain.ErrInvalidSignature
}

// applyTransition moves the payment per the event type. Terminal statuses
// absorb late deliveries: the event is still recorded as processed but the
// payment does not move.
func (s *Service) applyTransition(ctx context.Context, payment *paymentdomain.Payment, event *domain.Event) error {
	if event.Type == domain.EventTypeRefunded {
		return s.applyRefund(ctx, payment, event)
	}

	target, ok := eventTransitions[event.Type]
	if !ok {
		return domain.ErrEventIgnored
	}

	if paymentdomain.Terminal(payment.Status) && payment.Status != target {
		s.absorb(payment, event)
		return nil
	}

	tenantCtx := tenantctx.WithTenantID(ctx, payment.TenantID)
	updated, err := s.payments.SetStatus(tenantCtx, payment.ID, target)
	if err != nil {
		return err
	}
	*payment = updated
	return nil
}

// applyRefund books the provider-side refund on the ledger. The ledger
// flips the payment to REFUNDED itself once the active sum covers the
// total, so a REFUNDED payment never exists without matching refund rows.
func (s *Service) applyRefund(ctx context.Context, payment *paymentdomain.Payment, event *domain.Event) error {
	if paymentdomain.Terminal(payment.Status) {
		s.absorb(payment, event)
		return nil
	}

	tenantCtx := tenantctx.WithTenantID(ctx, payment.TenantID)
	_, err := s.refunds.RecordGatewayRefund(tenantCtx, payment.ID, event.Amount, "gateway refund")
	return err
}

func (s *Service) absorb(payment *paymentdomain.Payment, event *domain.Event) {
	s.log.Info("terminal payment absorbed gateway event",
		zap.String("payment_id", payment.ID.String()),
		zap.String("status", string(payment.Status)),
		zap.String("event_type", event.Type),
	)
}
