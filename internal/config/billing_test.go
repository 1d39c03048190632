package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultBillingConfigIsValid(t *testing.T) {
	cfg := DefaultBillingConfig()
	require.NoError(t, validateBillingConfig(cfg))
	assert.Equal(t, "founding_partner", cfg.FoundingPlanCode)
	assert.EqualValues(t, 100, cfg.FlatFee)
	assert.Equal(t, 30, cfg.DefaultTrialDays)
	assert.Equal(t, 2, cfg.DueSoonDays)
}

func TestValidateBillingConfigRejectsBadValues(t *testing.T) {
	cases := map[string]func(*BillingConfig){
		"empty founding code": func(c *BillingConfig) { c.FoundingPlanCode = " " },
		"negative flat fee":   func(c *BillingConfig) { c.FlatFee = -1 },
		"tax above 100":       func(c *BillingConfig) { c.TaxRate = 120 },
		"negative trial days": func(c *BillingConfig) { c.FeatureTrialDays = -3 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultBillingConfig()
			mutate(&cfg)
			assert.Error(t, validateBillingConfig(cfg))
		})
	}
}

func TestBillingConfigHolderEnvOverride(t *testing.T) {
	t.Setenv("TAX_RATE", "10")
	t.Setenv("PLATFORM_FLAT_FEE", "250")
	t.Chdir(t.TempDir())

	holder, err := NewBillingConfigHolder()
	require.NoError(t, err)

	cfg := holder.Get()
	assert.EqualValues(t, 250, cfg.FlatFee)
	assert.InDelta(t, 10.0, cfg.TaxRate, 0.0001)
	assert.Equal(t, "founding_partner", cfg.FoundingPlanCode)
}

func TestNilHolderFallsBackToDefaults(t *testing.T) {
	var holder *BillingConfigHolder
	assert.Equal(t, DefaultBillingConfig(), holder.Get())
}
