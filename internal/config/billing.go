package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// BillingConfig is the fee schedule and trial policy. It is hot-reloadable.
type BillingConfig struct {
	FoundingPlanCode string  `mapstructure:"foundingPlanCode"`
	StandardPlanCode string  `mapstructure:"standardPlanCode"`
	FlatFee          int64   `mapstructure:"flatFee"`
	TaxRate          float64 `mapstructure:"taxRate"`
	DefaultTrialDays int     `mapstructure:"defaultTrialDays"`
	FeatureTrialDays int     `mapstructure:"featureTrialDays"`
	DueSoonDays      int     `mapstructure:"dueSoonDays"`
	Currency         string  `mapstructure:"currency"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		FoundingPlanCode: "founding_partner",
		StandardPlanCode: "standard",
		FlatFee:          100,
		TaxRate:          0,
		DefaultTrialDays: 30,
		FeatureTrialDays: 30,
		DueSoonDays:      2,
		Currency:         "usd",
	}
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

// NewStaticBillingConfigHolder returns a holder that never reloads.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewBillingConfigHolder() (*BillingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/schoolbilling")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SCHOOLBILLING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingConfig()
	v.SetDefault("billing.foundingPlanCode", defaults.FoundingPlanCode)
	v.SetDefault("billing.standardPlanCode", defaults.StandardPlanCode)
	v.SetDefault("billing.flatFee", defaults.FlatFee)
	v.SetDefault("billing.taxRate", defaults.TaxRate)
	v.SetDefault("billing.defaultTrialDays", defaults.DefaultTrialDays)
	v.SetDefault("billing.featureTrialDays", defaults.FeatureTrialDays)
	v.SetDefault("billing.dueSoonDays", defaults.DueSoonDays)
	v.SetDefault("billing.currency", defaults.Currency)

	// Flat names kept for existing deployments.
	_ = v.BindEnv("billing.taxRate", "TAX_RATE")
	_ = v.BindEnv("billing.flatFee", "PLATFORM_FLAT_FEE")
	_ = v.BindEnv("billing.foundingPlanCode", "FOUNDING_PLAN_CODE")
	_ = v.BindEnv("billing.defaultTrialDays", "DEFAULT_TRIAL_DAYS")

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	cfg, err := decodeBillingConfig(v)
	if err != nil {
		return nil, err
	}
	if err := validateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticBillingConfigHolder(cfg)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeBillingConfig(v)
		if err != nil {
			zap.L().Warn("billing config reload failed", zap.Error(err))
			return
		}
		if err := validateBillingConfig(updated); err != nil {
			zap.L().Warn("billing config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		zap.L().Info("billing config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// decodeBillingConfig goes through Unmarshal so env overrides of nested keys apply.
func decodeBillingConfig(v *viper.Viper) (BillingConfig, error) {
	var wrapper struct {
		Billing BillingConfig `mapstructure:"billing"`
	}
	if err := v.Unmarshal(&wrapper); err != nil {
		return BillingConfig{}, err
	}
	return wrapper.Billing, nil
}

func (h *BillingConfigHolder) Get() BillingConfig {
	if h == nil {
		return DefaultBillingConfig()
	}
	cfg, ok := h.current.Load().(BillingConfig)
	if !ok {
		return DefaultBillingConfig()
	}
	return cfg
}

func validateBillingConfig(cfg BillingConfig) error {
	if strings.TrimSpace(cfg.FoundingPlanCode) == "" {
		return errors.New("billing.foundingPlanCode cannot be empty")
	}
	if strings.TrimSpace(cfg.StandardPlanCode) == "" {
		return errors.New("billing.standardPlanCode cannot be empty")
	}
	if cfg.FlatFee < 0 {
		return errors.New("billing.flatFee cannot be negative")
	}
	if cfg.TaxRate < 0 || cfg.TaxRate > 100 {
		return errors.New("billing.taxRate must be between 0 and 100")
	}
	if cfg.DefaultTrialDays < 0 || cfg.FeatureTrialDays < 0 {
		return errors.New("billing trial days cannot be negative")
	}
	if cfg.DueSoonDays < 0 {
		return errors.New("billing.dueSoonDays cannot be negative")
	}
	return nil
}
