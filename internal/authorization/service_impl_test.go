package authorization

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/schoolbilling/internal/config"
	schoolrepo "github.com/smallbiznis/schoolbilling/internal/school/repository"
	"github.com/smallbiznis/schoolbilling/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	adminID  = snowflake.ID(1)
	ownerID  = snowflake.ID(2)
	staffID  = snowflake.ID(3)
	outsider = snowflake.ID(4)
)

func newService(t *testing.T) (Service, snowflake.ID, snowflake.ID) {
	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	school := testutil.SeedSchool(t, db, node, testutil.SchoolSeed{Name: "Birch"})
	other := testutil.SeedSchool(t, db, node, testutil.SchoolSeed{Name: "Elm"})
	testutil.SeedPlatformAdmin(t, db, int64(adminID))
	testutil.SeedMember(t, db, node, school, int64(ownerID), "owner", "owner@birch.test")
	testutil.SeedMember(t, db, node, school, int64(staffID), "staff", "staff@birch.test")

	enforcer, err := NewEnforcerWithAdapter(nil)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:         db,
		Log:        zaptest.NewLogger(t),
		Cfg:        config.Config{CronSecret: "s3cret"},
		Enforcer:   enforcer,
		SchoolRepo: schoolrepo.Provide(),
	})
	return svc, school, other
}

func TestAuthorizeSchoolRoles(t *testing.T) {
	svc, school, other := newService(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		actor  snowflake.ID
		school snowflake.ID
		object string
		action string
		want   error
	}{
		{"owner manages billing", ownerID, school, ObjectBilling, ActionBillingManage, nil},
		{"owner onboards connect", ownerID, school, ObjectConnect, ActionConnectManage, nil},
		{"staff previews fee", staffID, school, ObjectPlatformFee, ActionPlatformFeeView, nil},
		{"staff cannot manage billing", staffID, school, ObjectBilling, ActionBillingManage, ErrForbidden},
		{"owner is scoped to own school", ownerID, other, ObjectBilling, ActionBillingManage, ErrForbidden},
		{"outsider is forbidden", outsider, school, ObjectPlatformFee, ActionPlatformFeeView, ErrForbidden},
		{"admin creates custom charge", adminID, school, ObjectCustomCharge, ActionCustomChargeCreate, nil},
		{"owner cannot create custom charge", ownerID, school, ObjectCustomCharge, ActionCustomChargeCreate, ErrForbidden},
		{"anonymous", 0, school, ObjectPlatformFee, ActionPlatformFeeView, ErrUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.Authorize(ctx, tc.actor, tc.school, tc.object, tc.action)
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestAuthorizePlatform(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	assert.NoError(t, svc.AuthorizePlatform(ctx, adminID, ObjectFeature, ActionFeatureManage))
	assert.ErrorIs(t, svc.AuthorizePlatform(ctx, ownerID, ObjectFeature, ActionFeatureManage), ErrForbidden)
}

func TestRequireCronOrAdmin(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	admin, owner := adminID, ownerID

	res := svc.RequireCronOrAdmin(ctx, CronRequest{Secret: "s3cret"})
	assert.True(t, res.Allowed)
	assert.Equal(t, "cron", res.Via)

	res = svc.RequireCronOrAdmin(ctx, CronRequest{Secret: "wrong", ActorID: &admin})
	assert.True(t, res.Allowed)
	assert.Equal(t, "admin", res.Via)

	res = svc.RequireCronOrAdmin(ctx, CronRequest{Secret: "wrong"})
	assert.False(t, res.Allowed)
	assert.ErrorIs(t, res.Err, ErrUnauthorized)

	res = svc.RequireCronOrAdmin(ctx, CronRequest{ActorID: &owner})
	assert.False(t, res.Allowed)
	assert.ErrorIs(t, res.Err, ErrForbidden)
}

func TestEmptyCronSecretNeverMatches(t *testing.T) {
	db := testutil.NewDB(t)
	enforcer, err := NewEnforcerWithAdapter(nil)
	require.NoError(t, err)
	svc := NewService(Params{
		DB: db, Log: zaptest.NewLogger(t), Enforcer: enforcer, SchoolRepo: schoolrepo.Provide(),
	})

	res := svc.RequireCronOrAdmin(context.Background(), CronRequest{Secret: ""})
	assert.False(t, res.Allowed)
	assert.ErrorIs(t, res.Err, ErrUnauthorized)
}
