package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 2, 20, 10, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func TestDeriveTermsPerModel(t *testing.T) {
	prices := CatalogPrices{Monthly: 1500, OneTime: 9900}

	t.Run("free", func(t *testing.T) {
		terms, err := DeriveTerms(TermsInput{PricingModel: PricingModelFree}, prices, now)
		require.NoError(t, err)
		assert.Equal(t, Active{}, terms.Status)
		require.NotNil(t, terms.MonthlyFee)
		assert.Zero(t, *terms.MonthlyFee)
		assert.Nil(t, terms.OneTimeFee)
	})

	t.Run("trial uses post-trial fee", func(t *testing.T) {
		terms, err := DeriveTerms(TermsInput{
			PricingModel:        PricingModelTrial,
			TrialDays:           ptr(14),
			PostTrialMonthlyFee: ptr(int64(2500)),
		}, prices, now)
		require.NoError(t, err)
		assert.Equal(t, Trial{EndsAt: now.AddDate(0, 0, 14)}, terms.Status)
		assert.EqualValues(t, 2500, *terms.MonthlyFee)
		assert.EqualValues(t, 2500, *terms.PostTrialMonthlyFee)
	})

	t.Run("trial defaults", func(t *testing.T) {
		terms, err := DeriveTerms(TermsInput{PricingModel: PricingModelTrial}, prices, now)
		require.NoError(t, err)
		assert.Equal(t, Trial{EndsAt: now.AddDate(0, 0, DefaultTrialDays)}, terms.Status)
		assert.EqualValues(t, 1500, *terms.MonthlyFee)
	})

	t.Run("one time", func(t *testing.T) {
		terms, err := DeriveTerms(TermsInput{PricingModel: PricingModelOneTime}, prices, now)
		require.NoError(t, err)
		assert.Equal(t, PendingPayment{}, terms.Status)
		assert.EqualValues(t, 9900, *terms.OneTimeFee)
		assert.Zero(t, *terms.MonthlyFee)
	})

	t.Run("standard by default", func(t *testing.T) {
		terms, err := DeriveTerms(TermsInput{}, prices, now)
		require.NoError(t, err)
		assert.Equal(t, PricingModelStandard, terms.PricingModel)
		assert.Equal(t, PendingPayment{}, terms.Status)
		assert.EqualValues(t, 1500, *terms.MonthlyFee)
	})

	t.Run("explicit monthly override", func(t *testing.T) {
		terms, err := DeriveTerms(TermsInput{PricingModel: PricingModelStandard, MonthlyFee: ptr(int64(700))}, prices, now)
		require.NoError(t, err)
		assert.EqualValues(t, 700, *terms.MonthlyFee)
	})
}

func TestDeriveTermsRejectsBadInput(t *testing.T) {
	_, err := DeriveTerms(TermsInput{PricingModel: "weekly"}, CatalogPrices{}, now)
	assert.ErrorIs(t, err, ErrInvalidPricingModel)

	_, err = DeriveTerms(TermsInput{PricingModel: PricingModelTrial, TrialDays: ptr(0)}, CatalogPrices{}, now)
	assert.ErrorIs(t, err, ErrInvalidTrialDays)

	_, err = DeriveTerms(TermsInput{PricingModel: PricingModelStandard, MonthlyFee: ptr(int64(-5))}, CatalogPrices{}, now)
	assert.ErrorIs(t, err, ErrInvalidFee)
}

func TestParseStatusRequiresTrialEnd(t *testing.T) {
	_, err := ParseStatus(StatusTrial, nil)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	end := now.Add(time.Hour)
	status, err := ParseStatus(StatusTrial, &end)
	require.NoError(t, err)
	assert.Equal(t, Trial{EndsAt: end}, status)

	code, trialEnd := StatusColumns(PendingPayment{})
	assert.Equal(t, StatusPendingPayment, code)
	assert.Nil(t, trialEnd)
}

func TestActiveAt(t *testing.T) {
	ent := Entitlement{Enabled: true, Status: Trial{EndsAt: now.Add(time.Hour)}}
	assert.True(t, ent.ActiveAt(now))
	assert.False(t, ent.ActiveAt(now.Add(2*time.Hour)))

	ent.Status = PendingPayment{}
	assert.False(t, ent.ActiveAt(now))

	ent = Entitlement{Enabled: false, Status: Active{}}
	assert.False(t, ent.ActiveAt(now))
}

func TestAmountDue(t *testing.T) {
	assert.EqualValues(t, 1500, Entitlement{PricingModel: PricingModelStandard, MonthlyFee: ptr(int64(1500))}.AmountDue())
	assert.EqualValues(t, 9900, Entitlement{PricingModel: PricingModelOneTime, MonthlyFee: ptr(int64(0)), OneTimeFee: ptr(int64(9900))}.AmountDue())
	assert.EqualValues(t, 0, Entitlement{PricingModel: PricingModelOneTime}.AmountDue())
}
