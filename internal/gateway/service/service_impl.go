package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/campuskit/billing/internal/config"
	"github.com/campuskit/billing/internal/gateway/adapters"
	"github.com/campuskit/billing/internal/gateway/domain"
	"github.com/campuskit/billing/internal/gateway/repository"
	obsmetrics "github.com/campuskit/billing/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Cfg        config.Config
	Registry   *adapters.Registry
	Repo       repository.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Service is the outbound half of the gateway boundary: it resolves the
// tenant's adapter and submits a payment with a bounded deadline.
type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	cfg        config.Config
	registry   *adapters.Registry
	repo       repository.Repository
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Submitter {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("gateway.service"),
		cfg:        p.Cfg,
		registry:   p.Registry,
		repo:       p.Repo,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Submit(ctx context.Context, tenantID snowflake.ID, provider string, req domain.SubmitRequest) (domain.SubmitResult, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return domain.SubmitResult{}, domain.ErrInvalidProvider
	}
	if !s.registry.ProviderExists(provider) {
		return domain.SubmitResult{}, domain.ErrProviderNotFound
	}

	cfgRow, err := s.repo.FindActiveConfig(ctx, s.db, tenantID, provider)
	if err != nil {
		return domain.SubmitResult{}, err
	}
	if cfgRow == nil {
		return domain.SubmitResult{}, domain.ErrProviderNotFound
	}

	adapter, err := s.registry.NewAdapter(provider, domain.AdapterConfig{
		TenantID: tenantID,
		Config:   cfgRow.Config,
	})
	if err != nil {
		return domain.SubmitResult{}, err
	}

	// Bounded deadline: a slow processor leaves the payment PROCESSING
	// rather than hanging the request worker.
	submitCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewaySubmitTimeout)
	defer cancel()

	start := time.Now()
	result, err := adapter.Submit(submitCtx, req)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		s.obsMetrics.ObserveGatewaySubmit(provider, "error", elapsed)
		s.log.Warn("gateway submit failed",
			zap.String("provider", provider),
			zap.String("receipt_number", req.ReceiptNumber),
			zap.Error(err),
		)
		return domain.SubmitResult{}, err
	}

	s.obsMetrics.ObserveGatewaySubmit(provider, "ok", elapsed)
	return result, nil
}
