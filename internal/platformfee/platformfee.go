// Package platformfee splits a family payment between the platform and the
// tenant school that collected it.
package platformfee

import (
	"math"
	"strings"

	"github.com/smallbiznis/schoolbilling/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("platformfee",
	fx.Provide(NewFromHolder),
)

// Schedule is the fee policy applied by a Calculator.
type Schedule struct {
	FoundingPlanCode string
	FlatFee          int64
	// TaxRate is a percentage applied to FlatFee, e.g. 11 for 11%.
	TaxRate float64
}

// Result is the outcome of ComputeFee. All amounts are minor currency units.
type Result struct {
	PlatformFee    int64 `json:"platform_fee"`
	TenantReceives int64 `json:"tenant_receives"`
	IsFlatFeePlan  bool  `json:"is_flat_fee_plan"`
}

type Calculator struct {
	schedule func() Schedule
}

// New returns a Calculator with a fixed schedule.
func New(schedule Schedule) *Calculator {
	return &Calculator{schedule: func() Schedule { return schedule }}
}

// NewFromHolder reads the schedule from the hot-reloadable billing config on every call.
func NewFromHolder(holder *config.BillingConfigHolder) *Calculator {
	return &Calculator{schedule: func() Schedule {
		cfg := holder.Get()
		return Schedule{
			FoundingPlanCode: cfg.FoundingPlanCode,
			FlatFee:          cfg.FlatFee,
			TaxRate:          cfg.TaxRate,
		}
	}}
}

// ComputeFee never returns a negative TenantReceives: the fee is clamped to amount.
func (c *Calculator) ComputeFee(amount int64, plan *string) Result {
	if amount < 0 {
		amount = 0
	}
	schedule := c.schedule()
	if plan == nil || !strings.EqualFold(strings.TrimSpace(*plan), schedule.FoundingPlanCode) {
		return Result{PlatformFee: 0, TenantReceives: amount}
	}

	fee := schedule.FlatFee + tax(schedule.FlatFee, schedule.TaxRate)
	if fee < 0 {
		fee = 0
	}
	if fee > amount {
		fee = amount
	}
	return Result{
		PlatformFee:    fee,
		TenantReceives: amount - fee,
		IsFlatFeePlan:  true,
	}
}

func tax(base int64, rate float64) int64 {
	if rate <= 0 || base <= 0 {
		return 0
	}
	return int64(math.Round(float64(base) * rate / 100))
}
