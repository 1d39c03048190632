package domain

import (
	"strings"
	"time"
)

// DefaultTrialDays applies when a trial is requested without a length.
const DefaultTrialDays = 30

// CatalogPrices are the feature's default prices from the catalog.
type CatalogPrices struct {
	Monthly int64
	OneTime int64
}

// TermsInput is the caller-controlled part of an entitlement's pricing.
// Explicit fees override catalog prices.
type TermsInput struct {
	PricingModel        PricingModel
	TrialDays           *int
	PostTrialMonthlyFee *int64
	MonthlyFee          *int64
	OneTimeFee          *int64
}

type Terms struct {
	PricingModel        PricingModel
	Status              EntitlementStatus
	MonthlyFee          *int64
	OneTimeFee          *int64
	PostTrialMonthlyFee *int64
}

// ParsePricingModel defaults an empty model to standard.
func ParsePricingModel(raw string) (PricingModel, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return PricingModelStandard, nil
	}
	model := PricingModel(raw)
	if !model.Valid() {
		return "", ErrInvalidPricingModel
	}
	return model, nil
}

// DeriveTerms computes the initial status and fee columns for a pricing model.
func DeriveTerms(in TermsInput, prices CatalogPrices, now time.Time) (Terms, error) {
	model := in.PricingModel
	if model == "" {
		model = PricingModelStandard
	}
	if !model.Valid() {
		return Terms{}, ErrInvalidPricingModel
	}
	for _, fee := range []*int64{in.PostTrialMonthlyFee, in.MonthlyFee, in.OneTimeFee} {
		if fee != nil && *fee < 0 {
			return Terms{}, ErrInvalidFee
		}
	}

	switch model {
	case PricingModelFree:
		return Terms{
			PricingModel: model,
			Status:       Active{},
			MonthlyFee:   amount(0),
		}, nil

	case PricingModelTrial:
		days := DefaultTrialDays
		if in.TrialDays != nil {
			days = *in.TrialDays
		}
		if days < 1 {
			return Terms{}, ErrInvalidTrialDays
		}
		monthly := firstSet(prices.Monthly, in.PostTrialMonthlyFee, in.MonthlyFee)
		return Terms{
			PricingModel:        model,
			Status:              Trial{EndsAt: now.AddDate(0, 0, days)},
			MonthlyFee:          amount(monthly),
			PostTrialMonthlyFee: amount(monthly),
		}, nil

	case PricingModelOneTime:
		return Terms{
			PricingModel: model,
			Status:       PendingPayment{},
			MonthlyFee:   amount(0),
			OneTimeFee:   amount(firstSet(prices.OneTime, in.OneTimeFee)),
		}, nil
	}

	return Terms{
		PricingModel: PricingModelStandard,
		Status:       PendingPayment{},
		MonthlyFee:   amount(firstSet(prices.Monthly, in.MonthlyFee)),
	}, nil
}

func firstSet(fallback int64, values ...*int64) int64 {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return fallback
}

func amount(v int64) *int64 { return &v }
