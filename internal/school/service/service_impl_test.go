package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/schoolbilling/internal/clock"
	"github.com/smallbiznis/schoolbilling/internal/config"
	"github.com/smallbiznis/schoolbilling/internal/school/domain"
	"github.com/smallbiznis/schoolbilling/internal/school/repository"
	"github.com/smallbiznis/schoolbilling/internal/school/service"
	"github.com/smallbiznis/schoolbilling/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
	svc   domain.Service
}

func newFixture(t *testing.T) fixture {
	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	fc := clock.NewFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	svc := service.New(service.Params{
		DB:         db,
		Log:        zaptest.NewLogger(t),
		GenID:      node,
		Clock:      fc,
		BillingCfg: config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()),
		Repo:       repository.Provide(),
	})
	return fixture{db: db, node: node, clock: fc, svc: svc}
}

func TestCreateStartsTrialWithOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	plan := " Founding_Partner "

	school, err := f.svc.Create(ctx, domain.CreateRequest{
		Name:        "Maple Grove",
		OwnerUserID: 42,
		OwnerEmail:  "owner@maple.test",
		OwnerName:   "Pat",
		Plan:        &plan,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusTrial, school.SubscriptionStatus)
	assert.Equal(t, "founding_partner", school.PlanCode())
	require.NotNil(t, school.TrialEndsAt)
	assert.Equal(t, f.clock.Now().AddDate(0, 0, 30), *school.TrialEndsAt)

	owners, err := f.svc.Owners(ctx, school.ID)
	require.NoError(t, err)
	require.Len(t, owners, 1)
	assert.Equal(t, "owner@maple.test", owners[0].Email)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	day := 31

	_, err := f.svc.Create(ctx, domain.CreateRequest{Name: " ", OwnerUserID: 1, OwnerEmail: "a@b.test"})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = f.svc.Create(ctx, domain.CreateRequest{Name: "X", OwnerUserID: 1, OwnerEmail: "not-an-email"})
	assert.ErrorIs(t, err, domain.ErrInvalidOwner)

	_, err = f.svc.Create(ctx, domain.CreateRequest{Name: "X", OwnerUserID: 1, OwnerEmail: "a@b.test", BillingDay: &day})
	assert.ErrorIs(t, err, domain.ErrInvalidBillingDay)
}

func TestOwnersWithoutContact(t *testing.T) {
	f := newFixture(t)
	id := testutil.SeedSchool(t, f.db, f.node, testutil.SchoolSeed{})
	testutil.SeedMember(t, f.db, f.node, id, 7, "staff", "staff@school.test")

	_, err := f.svc.Owners(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrNoOwnerContact)
}

func TestSetBillingDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := testutil.SeedSchool(t, f.db, f.node, testutil.SchoolSeed{})

	school, err := f.svc.SetBillingDay(ctx, id, 15)
	require.NoError(t, err)
	require.NotNil(t, school.BillingDay)
	assert.Equal(t, 15, *school.BillingDay)

	_, err = f.svc.SetBillingDay(ctx, id, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidBillingDay)
	_, err = f.svc.SetBillingDay(ctx, id, 29)
	assert.ErrorIs(t, err, domain.ErrInvalidBillingDay)

	_, err = f.svc.SetBillingDay(ctx, f.node.Generate(), 10)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestApplyProcessorStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := testutil.SeedSchool(t, f.db, f.node, testutil.SchoolSeed{})
	require.NoError(t, f.svc.AttachCustomer(ctx, id, "cus_123"))

	periodEnd := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)
	school, err := f.svc.ApplyProcessorStatus(ctx, domain.ProcessorStatusUpdate{
		StripeSubscriptionID: "sub_1",
		StripeCustomerID:     "cus_123",
		ProcessorStatus:      "active",
		CurrentPeriodEnd:     &periodEnd,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusActive, school.SubscriptionStatus)
	require.NotNil(t, school.StripeSubscriptionID)
	assert.Equal(t, "sub_1", *school.StripeSubscriptionID)

	// Subsequent events resolve by subscription id alone.
	school, err = f.svc.ApplyProcessorStatus(ctx, domain.ProcessorStatusUpdate{
		StripeSubscriptionID: "sub_1",
		ProcessorStatus:      "unpaid",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusPastDue, school.SubscriptionStatus)

	_, err = f.svc.ApplyProcessorStatus(ctx, domain.ProcessorStatusUpdate{StripeSubscriptionID: "sub_x", ProcessorStatus: "active"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.ApplyProcessorStatus(ctx, domain.ProcessorStatusUpdate{StripeSubscriptionID: "sub_1", ProcessorStatus: "weird"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}

func TestAttachSubscriptionKeepsStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := testutil.SeedSchool(t, f.db, f.node, testutil.SchoolSeed{})

	require.NoError(t, f.svc.AttachSubscription(ctx, id, " sub_9 "))
	school, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, school.StripeSubscriptionID)
	assert.Equal(t, "sub_9", *school.StripeSubscriptionID)
	assert.Equal(t, domain.SubscriptionStatusTrial, school.SubscriptionStatus)

	assert.ErrorIs(t, f.svc.AttachSubscription(ctx, id, " "), domain.ErrInvalidReference)
	assert.ErrorIs(t, f.svc.AttachSubscription(ctx, f.node.Generate(), "sub_9"), domain.ErrNotFound)
}

func TestMapProcessorStatus(t *testing.T) {
	cases := map[string]domain.SubscriptionStatus{
		"active":             domain.SubscriptionStatusActive,
		"trialing":           domain.SubscriptionStatusTrial,
		"past_due":           domain.SubscriptionStatusPastDue,
		"incomplete":         domain.SubscriptionStatusPastDue,
		"canceled":           domain.SubscriptionStatusCanceled,
		"incomplete_expired": domain.SubscriptionStatusCanceled,
	}
	for raw, want := range cases {
		got, ok := service.MapProcessorStatus(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}
}

func TestExpireTrialsOnlyTouchesLapsedTrials(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := f.clock.Now()
	lapsed := now.Add(-time.Hour)
	future := now.Add(48 * time.Hour)

	expiredID := testutil.SeedSchool(t, f.db, f.node, testutil.SchoolSeed{TrialEndsAt: &lapsed})
	runningID := testutil.SeedSchool(t, f.db, f.node, testutil.SchoolSeed{TrialEndsAt: &future})
	activeID := testutil.SeedSchool(t, f.db, f.node, testutil.SchoolSeed{Status: "active", TrialEndsAt: &lapsed})

	expired, err := f.svc.ExpireTrials(ctx)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, expiredID, expired[0].ID)

	for id, want := range map[snowflake.ID]domain.SubscriptionStatus{
		expiredID: domain.SubscriptionStatusPastDue,
		runningID: domain.SubscriptionStatusTrial,
		activeID:  domain.SubscriptionStatusActive,
	} {
		school, err := f.svc.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, school.SubscriptionStatus)
	}

	again, err := f.svc.ExpireTrials(ctx)
	require.NoError(t, err)
	assert.Empty(t, again)
}
