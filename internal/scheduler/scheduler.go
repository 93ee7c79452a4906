package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/campuskit/billing/internal/clock"
	installmentdomain "github.com/campuskit/billing/internal/installment/domain"
	paymentdomain "github.com/campuskit/billing/internal/payment/domain"
	"github.com/campuskit/billing/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	Clock          clock.Clock
	InstallmentSvc installmentdomain.Service
	Locker         *ratelimit.Locker `optional:"true"`
	Config         Config            `optional:"true"`
}

// Scheduler runs the periodic overdue sweeps. Both sweeps are single bulk
// statements, so overlapping runs across replicas are harmless; the lock
// only avoids redundant work.
type Scheduler struct {
	db             *gorm.DB
	log            *zap.Logger
	cfg            Config
	clock          clock.Clock
	installmentSvc installmentdomain.Service
	locker         *ratelimit.Locker
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.InstallmentSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:             p.DB,
		log:            p.Log.Named("scheduler"),
		cfg:            p.Config.withDefaults(),
		clock:          p.Clock,
		installmentSvc: p.InstallmentSvc,
		locker:         p.Locker,
	}, nil
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

const sweepLockKey = "billing:sweep:overdue"

func (s *Scheduler) RunOnce(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	token, acquired, err := s.locker.TryLock(ctx, sweepLockKey, s.cfg.JobTimeout)
	if err != nil {
		s.log.Warn("sweep lock unavailable, running anyway", zap.Error(err))
	} else if !acquired {
		s.log.Debug("sweep already running elsewhere")
		return nil
	}
	defer func() {
		if token != "" {
			if err := s.locker.Release(ctx, sweepLockKey, token); err != nil {
				s.log.Warn("sweep lock release failed", zap.Error(err))
			}
		}
	}()

	now := s.clock.Now()

	var firstErr error
	if err := s.MarkOverduePaymentsJob(ctx, now); err != nil {
		firstErr = err
	}
	if _, err := s.installmentSvc.MarkOverdue(ctx, now); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// MarkOverduePaymentsJob moves every unpaid payment whose due date passed to
// OVERDUE and keeps the issued bills in step.
func (s *Scheduler) MarkOverduePaymentsJob(ctx context.Context, now time.Time) error {
	res := s.db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?, updated_at = ?
		 WHERE status = ?
		   AND due_date IS NOT NULL
		   AND due_date < ?
		   AND deleted_at IS NULL`,
		paymentdomain.StatusOverdue,
		now,
		paymentdomain.StatusUnpaid,
		now,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return nil
	}

	err := s.db.WithContext(ctx).Exec(
		`UPDATE bills
		 SET status = ?, updated_at = ?
		 WHERE status != ?
		   AND payment_id IN (SELECT id FROM payments WHERE status = ?)`,
		paymentdomain.StatusOverdue,
		now,
		paymentdomain.StatusOverdue,
		paymentdomain.StatusOverdue,
	).Error
	if err != nil {
		return err
	}

	s.log.Info("marked payments overdue", zap.Int64("count", res.RowsAffected))
	return nil
}
