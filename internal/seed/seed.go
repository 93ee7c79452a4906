// Package seed bootstraps development fixtures so a fresh checkout can take
// payments against the sandbox gateway without manual setup.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/campuskit/billing/internal/config"
	gatewaydomain "github.com/campuskit/billing/internal/gateway/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	// demoTenantID is a fixed snowflake so curl examples and local clients
	// can hardcode the X-Tenant-ID header.
	demoTenantID = snowflake.ID(1000000000000000001)

	demoWebhookSecret = "whsec_sandbox_dev"
)

var Module = fx.Module("seed",
	fx.Invoke(run),
)

func run(cfg config.Config, db *gorm.DB, log *zap.Logger) error {
	if cfg.Environment != "development" {
		return nil
	}
	if err := EnsureDemoTenant(db); err != nil {
		return err
	}
	log.Named("seed").Info("demo tenant ready",
		zap.String("tenant_id", demoTenantID.String()),
		zap.String("provider", "sandbox"),
	)
	return nil
}

// EnsureDemoTenant seeds an active sandbox gateway config for the demo
// tenant. Idempotent: an existing config is left untouched.
func EnsureDemoTenant(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Raw(
			`SELECT COUNT(1) FROM gateway_configs WHERE tenant_id = ? AND provider = ?`,
			demoTenantID, "sandbox",
		).Scan(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		now := time.Now().UTC()
		return tx.Create(&gatewaydomain.Config{
			ID:       node.Generate(),
			TenantID: demoTenantID,
			Provider: "sandbox",
			Config: datatypes.JSONMap{
				"webhook_secret": demoWebhookSecret,
			},
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}).Error
	})
}
