package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/campuskit/billing/internal/clock"
	"github.com/campuskit/billing/internal/config"
	obsmetrics "github.com/campuskit/billing/internal/observability/metrics"
	"github.com/campuskit/billing/internal/sequence/domain"
	pkgdb "github.com/campuskit/billing/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	CfgHolder  *config.BillingConfigHolder
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	cfgHolder  *config.BillingConfigHolder
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("sequence.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		cfgHolder:  p.CfgHolder,
		obsMetrics: p.ObsMetrics,
	}
}

// Next allocates the next document number for the tenant/prefix in the
// current year, rendered as PREFIX-YEAR-NNNNNN.
//
// Allocation is read-max-then-reserve: the reservation insert is guarded by
// the unique (tenant, prefix, year, suffix) index, so two callers reading
// the same maximum cannot both win. The loser re-reads and retries up to
// the configured budget before surfacing ErrConflict.
func (s *Service) Next(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, prefix string) (string, error) {
	if tenantID == 0 {
		return "", domain.ErrInvalidTenant
	}
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		return "", domain.ErrInvalidPrefix
	}
	if db == nil {
		db = s.db
	}

	year := s.clock.Now().Year()
	attempts := s.cfgHolder.Current().SequenceMaxAttempts

	for attempt := 0; attempt < attempts; attempt++ {
		suffix, err := s.maxSuffix(ctx, db, tenantID, prefix, year)
		if err != nil {
			return "", err
		}
		next := suffix + 1
		number := Format(prefix, year, next)

		reserved, err := s.reserve(ctx, db, domain.DocumentNumber{
			ID:        s.genID.Generate(),
			TenantID:  tenantID,
			Prefix:    prefix,
			Year:      year,
			Suffix:    next,
			Number:    number,
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			return "", err
		}
		if reserved {
			return number, nil
		}

		s.obsMetrics.RecordSequenceConflict()
		s.log.Debug("document number conflict, retrying",
			zap.String("prefix", prefix),
			zap.Int64("suffix", next),
			zap.Int("attempt", attempt+1),
		)
	}

	return "", domain.ErrConflict
}

// Format renders a document number in its canonical human-readable form.
func Format(prefix string, year int, suffix int64) string {
	return fmt.Sprintf("%s-%d-%06d", prefix, year, suffix)
}

func (s *Service) maxSuffix(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, prefix string, year int) (int64, error) {
	var suffix int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(MAX(suffix), 0)
		 FROM document_numbers
		 WHERE tenant_id = ? AND prefix = ? AND year = ?`,
		tenantID,
		prefix,
		year,
	).Scan(&suffix).Error
	if err != nil {
		return 0, err
	}
	return suffix, nil
}

func (s *Service) reserve(ctx context.Context, db *gorm.DB, doc domain.DocumentNumber) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO document_numbers (id, tenant_id, prefix, year, suffix, number, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id, prefix, year, suffix) DO NOTHING`,
		doc.ID,
		doc.TenantID,
		doc.Prefix,
		doc.Year,
		doc.Suffix,
		doc.Number,
		doc.CreatedAt,
	)
	if res.Error != nil {
		if pkgdb.IsDuplicateKeyErr(res.Error) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
