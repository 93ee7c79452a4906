package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// BillingConfig is the tenant-operator billing policy. It is loaded from a
// volume-mounted file so operators can tune it without a redeploy.
type BillingConfig struct {
	// LateFeeDailyRateBp is the daily late-fee rate in basis points of the
	// payment amount. 100 = 1% per day late.
	LateFeeDailyRateBp int64 `mapstructure:"lateFeeDailyRateBp"`
	// LateFeeCapBp caps the accrued late fee, in basis points of the amount.
	LateFeeCapBp int64 `mapstructure:"lateFeeCapBp"`
	// RefundApprovalRequired makes new refunds start PENDING instead of
	// APPROVED, for tenants running a manual-approval workflow.
	RefundApprovalRequired bool `mapstructure:"refundApprovalRequired"`
	// SequenceMaxAttempts bounds retry-on-conflict for document numbers.
	SequenceMaxAttempts int `mapstructure:"sequenceMaxAttempts"`
	// InstallmentInterval spaces installment due dates when the caller does
	// not supply an interval.
	InstallmentInterval time.Duration `mapstructure:"installmentInterval"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		LateFeeDailyRateBp:     100,
		LateFeeCapBp:           5000,
		RefundApprovalRequired: false,
		SequenceMaxAttempts:    5,
		InstallmentInterval:    30 * 24 * time.Hour,
	}
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

func NewBillingConfigHolder() (*BillingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/campuskit/config")
	v.AddConfigPath("/etc/campuskit")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CAMPUSKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingConfig()
	v.SetDefault("billing.lateFeeDailyRateBp", defaults.LateFeeDailyRateBp)
	v.SetDefault("billing.lateFeeCapBp", defaults.LateFeeCapBp)
	v.SetDefault("billing.refundApprovalRequired", defaults.RefundApprovalRequired)
	v.SetDefault("billing.sequenceMaxAttempts", defaults.SequenceMaxAttempts)
	v.SetDefault("billing.installmentInterval", defaults.InstallmentInterval)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	if err := validateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingConfig
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Printf("[billing-config] reload failed: %v", err)
			return
		}
		if err := validateBillingConfig(updated); err != nil {
			log.Printf("[billing-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
	})

	return holder, nil
}

// NewStaticBillingConfigHolder returns a holder pinned to cfg, for tests.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *BillingConfigHolder) Current() BillingConfig {
	return h.current.Load().(BillingConfig)
}

func validateBillingConfig(cfg BillingConfig) error {
	if cfg.LateFeeDailyRateBp < 0 || cfg.LateFeeCapBp < 0 {
		return errors.New("late fee rates must be non-negative")
	}
	if cfg.SequenceMaxAttempts < 1 {
		return errors.New("sequenceMaxAttempts must be at least 1")
	}
	if cfg.InstallmentInterval <= 0 {
		return errors.New("installmentInterval must be positive")
	}
	return nil
}
