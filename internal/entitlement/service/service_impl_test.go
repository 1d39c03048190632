package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/schoolbilling/internal/clock"
	"github.com/smallbiznis/schoolbilling/internal/config"
	"github.com/smallbiznis/schoolbilling/internal/entitlement/domain"
	"github.com/smallbiznis/schoolbilling/internal/entitlement/repository"
	"github.com/smallbiznis/schoolbilling/internal/entitlement/service"
	featuredomain "github.com/smallbiznis/schoolbilling/internal/feature/domain"
	featurerepo "github.com/smallbiznis/schoolbilling/internal/feature/repository"
	featuresvc "github.com/smallbiznis/schoolbilling/internal/feature/service"
	schooldomain "github.com/smallbiznis/schoolbilling/internal/school/domain"
	schoolrepo "github.com/smallbiznis/schoolbilling/internal/school/repository"
	schoolsvc "github.com/smallbiznis/schoolbilling/internal/school/service"
	"github.com/smallbiznis/schoolbilling/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	clock    *clock.FakeClock
	svc      domain.Service
	schoolID snowflake.ID
}

func newFixture(t *testing.T) fixture {
	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	log := zaptest.NewLogger(t)
	fc := clock.NewFakeClock(time.Date(2026, 5, 4, 8, 30, 0, 0, time.UTC))
	billing := config.NewStaticBillingConfigHolder(config.DefaultBillingConfig())

	testutil.SeedFeature(t, db, "attendance", 1500, 0)
	testutil.SeedFeature(t, db, "report_cards", 1900, 9900)
	schoolID := testutil.SeedSchool(t, db, node, testutil.SchoolSeed{Name: "Oak Hill"})

	schools := schoolsvc.New(schoolsvc.Params{
		DB: db, Log: log, GenID: node, Clock: fc, BillingCfg: billing, Repo: schoolrepo.Provide(),
	})
	features := featuresvc.New(featuresvc.Params{DB: db, Log: log, Clock: fc, Repo: featurerepo.Provide()})
	svc := service.New(service.Params{
		DB:         db,
		Log:        log,
		GenID:      node,
		Clock:      fc,
		BillingCfg: billing,
		Repo:       repository.Provide(),
		Features:   features,
		Schools:    schools,
	})
	return fixture{db: db, clock: fc, svc: svc, schoolID: schoolID}
}

func (f fixture) rows(t *testing.T) int64 {
	return testutil.Count(t, f.db, `SELECT COUNT(*) FROM feature_subscriptions WHERE school_id = ?`, f.schoolID)
}

func TestEnableTrialSetsEndDate(t *testing.T) {
	f := newFixture(t)
	days := 10

	ent, err := f.svc.Enable(context.Background(), domain.EnableRequest{
		SchoolID:     f.schoolID,
		FeatureCode:  "attendance",
		PricingModel: "trial",
		TrialDays:    &days,
	})
	require.NoError(t, err)

	trial, ok := ent.Status.(domain.Trial)
	require.True(t, ok, "expected trial status, got %T", ent.Status)
	want := f.clock.Now().AddDate(0, 0, days)
	assert.Equal(t, want.Format(time.DateOnly), trial.EndsAt.UTC().Format(time.DateOnly))
	assert.EqualValues(t, 1500, *ent.MonthlyFee)
	assert.True(t, ent.Enabled)
}

func TestEnableFreeHasNoFees(t *testing.T) {
	f := newFixture(t)

	ent, err := f.svc.Enable(context.Background(), domain.EnableRequest{
		SchoolID:     f.schoolID,
		FeatureCode:  "report_cards",
		PricingModel: "free",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.Active{}, ent.Status)
	require.NotNil(t, ent.MonthlyFee)
	assert.Zero(t, *ent.MonthlyFee)
	assert.Nil(t, ent.OneTimeFee)
}

func TestEnableTwiceSupersedes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Enable(ctx, domain.EnableRequest{SchoolID: f.schoolID, FeatureCode: "report_cards", PricingModel: "one_time"})
	require.NoError(t, err)
	assert.EqualValues(t, 9900, *first.OneTimeFee)

	second, err := f.svc.Enable(ctx, domain.EnableRequest{SchoolID: f.schoolID, FeatureCode: "report_cards", PricingModel: "standard"})
	require.NoError(t, err)

	assert.EqualValues(t, 1, f.rows(t))
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, domain.PricingModelStandard, second.PricingModel)
	assert.Equal(t, domain.PendingPayment{}, second.Status)
	assert.EqualValues(t, 1900, *second.MonthlyFee)
	assert.Nil(t, second.OneTimeFee)
}

func TestDisableKeepsRowAndEnableReusesIt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	enabled, err := f.svc.Enable(ctx, domain.EnableRequest{SchoolID: f.schoolID, FeatureCode: "attendance", PricingModel: "standard"})
	require.NoError(t, err)

	disabled, err := f.svc.Disable(ctx, f.schoolID, "attendance")
	require.NoError(t, err)
	assert.False(t, disabled.Enabled)
	assert.Equal(t, domain.Canceled{}, disabled.Status)
	assert.EqualValues(t, 1500, *disabled.MonthlyFee)
	assert.EqualValues(t, 1, f.rows(t))

	again, err := f.svc.Enable(ctx, domain.EnableRequest{SchoolID: f.schoolID, FeatureCode: "attendance", PricingModel: "free"})
	require.NoError(t, err)
	assert.Equal(t, enabled.ID, again.ID)
	assert.True(t, again.Enabled)
	assert.EqualValues(t, 1, f.rows(t))
}

func TestDisableUnknownEntitlement(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Disable(context.Background(), f.schoolID, "attendance")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEnableUnknownFeatureOrSchool(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Enable(ctx, domain.EnableRequest{SchoolID: f.schoolID, FeatureCode: "teleportation"})
	assert.ErrorIs(t, err, featuredomain.ErrNotFound)

	_, err = f.svc.Enable(ctx, domain.EnableRequest{SchoolID: f.schoolID + 1, FeatureCode: "attendance"})
	assert.ErrorIs(t, err, schooldomain.ErrNotFound)
}

func TestToggleCreatesThenFlips(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := snowflake.ID(77)

	ent, err := f.svc.Toggle(ctx, domain.ToggleRequest{SchoolID: f.schoolID, FeatureCode: "attendance", Enable: true, Actor: &actor})
	require.NoError(t, err)
	assert.True(t, ent.Enabled)
	assert.Equal(t, domain.PricingModelFree, ent.PricingModel)
	require.NotNil(t, ent.EnabledBy)
	assert.Equal(t, actor, *ent.EnabledBy)

	_, err = f.svc.UpdatePricing(ctx, domain.UpdatePricingRequest{SchoolID: f.schoolID, FeatureCode: "attendance", PricingModel: "standard"})
	require.NoError(t, err)

	off, err := f.svc.Toggle(ctx, domain.ToggleRequest{SchoolID: f.schoolID, FeatureCode: "attendance", Enable: false})
	require.NoError(t, err)
	assert.False(t, off.Enabled)
	assert.Equal(t, domain.PendingPayment{}, off.Status, "toggle leaves status alone")
	assert.Equal(t, domain.PricingModelStandard, off.PricingModel)
	assert.EqualValues(t, 1, f.rows(t))
}

func TestUpdatePricingRequiresExistingRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.UpdatePricing(ctx, domain.UpdatePricingRequest{SchoolID: f.schoolID, FeatureCode: "attendance", PricingModel: "standard"})
	assert.ErrorIs(t, err, domain.ErrNotEnabled)
	assert.Zero(t, f.rows(t))

	_, err = f.svc.Enable(ctx, domain.EnableRequest{SchoolID: f.schoolID, FeatureCode: "attendance", PricingModel: "free"})
	require.NoError(t, err)

	fee := int64(1200)
	updated, err := f.svc.UpdatePricing(ctx, domain.UpdatePricingRequest{
		SchoolID:     f.schoolID,
		FeatureCode:  "attendance",
		PricingModel: "standard",
		MonthlyFee:   &fee,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1200, *updated.MonthlyFee)
	assert.Equal(t, domain.PendingPayment{}, updated.Status)

	stored, err := f.svc.Get(ctx, f.schoolID, "attendance")
	require.NoError(t, err)
	assert.EqualValues(t, 1200, *stored.MonthlyFee)
}

func TestIsActiveAndExpireTrials(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	days := 3

	_, err := f.svc.Enable(ctx, domain.EnableRequest{SchoolID: f.schoolID, FeatureCode: "attendance", PricingModel: "trial", TrialDays: &days})
	require.NoError(t, err)

	active, err := f.svc.IsActive(ctx, f.schoolID, "attendance")
	require.NoError(t, err)
	assert.True(t, active)

	f.clock.Advance(4 * 24 * time.Hour)

	active, err = f.svc.IsActive(ctx, f.schoolID, "attendance")
	require.NoError(t, err)
	assert.False(t, active, "lapsed trial is inactive before the sweep")

	expired, err := f.svc.ExpireTrials(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	ent, err := f.svc.Get(ctx, f.schoolID, "attendance")
	require.NoError(t, err)
	assert.Equal(t, domain.PendingPayment{}, ent.Status)

	expired, err = f.svc.ExpireTrials(ctx)
	require.NoError(t, err)
	assert.Zero(t, expired)

	missing, err := f.svc.IsActive(ctx, f.schoolID, "report_cards")
	require.NoError(t, err)
	assert.False(t, missing)
}
