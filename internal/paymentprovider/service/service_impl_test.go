package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/schoolbilling/internal/clock"
	"github.com/smallbiznis/schoolbilling/internal/config"
	"github.com/smallbiznis/schoolbilling/internal/paymentprovider/domain"
	"github.com/smallbiznis/schoolbilling/internal/paymentprovider/service"
	"github.com/smallbiznis/schoolbilling/internal/processor"
	"github.com/smallbiznis/schoolbilling/internal/processor/processortest"
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
	db      *gorm.DB
	node    *snowflake.Node
	schools schooldomain.Service
	fake    *processortest.Fake
	svc     domain.Service
}

func newFixture(t *testing.T) fixture {
	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	log := zaptest.NewLogger(t)
	fc := clock.NewFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	billing := config.NewStaticBillingConfigHolder(config.DefaultBillingConfig())
	fake := processortest.New()

	schools := schoolsvc.New(schoolsvc.Params{
		DB: db, Log: log, GenID: node, Clock: fc, BillingCfg: billing, Repo: schoolrepo.Provide(),
	})
	svc := service.New(service.Params{
		Log:       log,
		Cfg:       config.Config{Stripe: config.StripeConfig{ConnectRefreshURL: "https://app.test/r", ConnectReturnURL: "https://app.test/done"}},
		Schools:   schools,
		Processor: fake,
	})
	return fixture{db: db, node: node, schools: schools, fake: fake, svc: svc}
}

func TestOnboardCreatesAccountOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	schoolID := testutil.SeedSchool(t, f.db, f.node, testutil.SchoolSeed{Status: "active"})
	testutil.SeedMember(t, f.db, f.node, schoolID, 21, "owner", "owner@school.test")

	first, err := f.svc.Onboard(ctx, schoolID)
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, "acct_1", first.AccountID)
	assert.Equal(t, "https://connect.test/onboard/acct_1", first.URL)

	second, err := f.svc.Onboard(ctx, schoolID)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, "acct_1", second.AccountID)

	require.Len(t, f.fake.Accounts, 1)
	assert.Equal(t, "owner@school.test", f.fake.Accounts[0].Email)
	assert.Equal(t, schoolID.String(), f.fake.Accounts[0].Metadata[processor.MetadataSchoolID])

	school, err := f.schools.Get(ctx, schoolID)
	require.NoError(t, err)
	require.NotNil(t, school.StripeConnectedAccountID)
	assert.Equal(t, "acct_1", *school.StripeConnectedAccountID)
}

func TestOnboardWithoutOwner(t *testing.T) {
	f := newFixture(t)
	schoolID := testutil.SeedSchool(t, f.db, f.node, testutil.SchoolSeed{})

	_, err := f.svc.Onboard(context.Background(), schoolID)
	assert.ErrorIs(t, err, schooldomain.ErrNoOwnerContact)
	assert.Empty(t, f.fake.Accounts)
}

func TestStatusAndDashboard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	schoolID := testutil.SeedSchool(t, f.db, f.node, testutil.SchoolSeed{})

	status, err := f.svc.Status(ctx, schoolID)
	require.NoError(t, err)
	assert.False(t, status.Connected)

	_, err = f.svc.DashboardLink(ctx, schoolID)
	assert.ErrorIs(t, err, domain.ErrNotConnected)

	require.NoError(t, f.schools.AttachConnectedAccount(ctx, schoolID, "acct_live"))
	f.fake.Status = processor.AccountStatus{ChargesEnabled: true, DetailsSubmitted: true}

	status, err = f.svc.Status(ctx, schoolID)
	require.NoError(t, err)
	assert.True(t, status.Connected)
	assert.Equal(t, "acct_live", status.AccountID)
	assert.True(t, status.ChargesEnabled)
	assert.False(t, status.PayoutsEnabled)

	link, err := f.svc.DashboardLink(ctx, schoolID)
	require.NoError(t, err)
	assert.Equal(t, "https://connect.test/dashboard/acct_live", link)
}
