package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/schoolbilling/internal/clock"
	"github.com/smallbiznis/schoolbilling/internal/config"
	chargerepo "github.com/smallbiznis/schoolbilling/internal/customcharge/repository"
	entitlementdomain "github.com/smallbiznis/schoolbilling/internal/entitlement/domain"
	entitlementrepo "github.com/smallbiznis/schoolbilling/internal/entitlement/repository"
	entitlementsvc "github.com/smallbiznis/schoolbilling/internal/entitlement/service"
	featurerepo "github.com/smallbiznis/schoolbilling/internal/feature/repository"
	featuresvc "github.com/smallbiznis/schoolbilling/internal/feature/service"
	"github.com/smallbiznis/schoolbilling/internal/notification/email"
	notificationrepo "github.com/smallbiznis/schoolbilling/internal/notification/repository"
	notificationsvc "github.com/smallbiznis/schoolbilling/internal/notification/service"
	"github.com/smallbiznis/schoolbilling/internal/payment/domain"
	"github.com/smallbiznis/schoolbilling/internal/payment/repository"
	"github.com/smallbiznis/schoolbilling/internal/payment/service"
	schooldomain "github.com/smallbiznis/schoolbilling/internal/school/domain"
	schoolrepo "github.com/smallbiznis/schoolbilling/internal/school/repository"
	schoolsvc "github.com/smallbiznis/schoolbilling/internal/school/service"
	"github.com/smallbiznis/schoolbilling/internal/testutil"
	"github.com/smallbiznis/schoolbilling/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type fixture struct {
	db           *gorm.DB
	node         *snowflake.Node
	clock        *clock.FakeClock
	schools      schooldomain.Service
	entitlements entitlementdomain.Service
	svc          domain.Service
	schoolID     snowflake.ID
}

func newFixture(t *testing.T) fixture {
	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	log := zaptest.NewLogger(t)
	fc := clock.NewFakeClock(time.Date(2026, 4, 15, 12, 0, 0, 0, time.UTC))
	billing := config.NewStaticBillingConfigHolder(config.DefaultBillingConfig())

	testutil.SeedFeature(t, db, "attendance", 1500, 0)
	testutil.SeedFeature(t, db, "report_cards", 1900, 9900)
	testutil.SeedFeature(t, db, "messaging", 0, 0)
	schoolID := testutil.SeedSchool(t, db, node, testutil.SchoolSeed{Name: "Maple Grove"})
	testutil.SeedMember(t, db, node, schoolID, 101, "owner", "head@maple.test")
	testutil.SeedMember(t, db, node, schoolID, 102, "owner", "bursar@maple.test")
	testutil.SeedMember(t, db, node, schoolID, 103, "staff", "teacher@maple.test")

	schools := schoolsvc.New(schoolsvc.Params{
		DB: db, Log: log, GenID: node, Clock: fc, BillingCfg: billing, Repo: schoolrepo.Provide(),
	})
	features := featuresvc.New(featuresvc.Params{DB: db, Log: log, Clock: fc, Repo: featurerepo.Provide()})
	entitlements := entitlementsvc.New(entitlementsvc.Params{
		DB: db, Log: log, GenID: node, Clock: fc, BillingCfg: billing,
		Repo: entitlementrepo.Provide(), Features: features, Schools: schools,
	})
	notifier := notificationsvc.New(notificationsvc.Params{
		DB: db, Log: log, GenID: node, Clock: fc, Repo: notificationrepo.Provide(), Email: &email.NoOpProvider{},
	})
	svc := service.New(service.Params{
		DB:              db,
		Log:             log,
		GenID:           node,
		Clock:           fc,
		BillingCfg:      billing,
		Repo:            repository.Provide(),
		SchoolRepo:      schoolrepo.Provide(),
		Schools:         schools,
		EntitlementRepo: entitlementrepo.Provide(),
		Entitlements:    entitlements,
		ChargeRepo:      chargerepo.Provide(),
		Notifier:        notifier,
	})
	return fixture{
		db:           db,
		node:         node,
		clock:        fc,
		schools:      schools,
		entitlements: entitlements,
		svc:          svc,
		schoolID:     schoolID,
	}
}

func (f fixture) enable(t *testing.T, code, model string) {
	_, err := f.entitlements.Enable(context.Background(), entitlementdomain.EnableRequest{
		SchoolID: f.schoolID, FeatureCode: code, PricingModel: model,
	})
	require.NoError(t, err)
}

func (f fixture) notifications(t *testing.T, kind string) int64 {
	return testutil.Count(t, f.db, `SELECT COUNT(*) FROM notifications WHERE notification_type = ?`, kind)
}

func ref(v string) *string { return &v }

func TestRecordPaymentTwiceWithSameReferenceAdvancesOnce(t *testing.T) {
	f := newFixture(t)
	f.enable(t, "attendance", "standard")
	ctx := context.Background()

	req := domain.RecordPaymentRequest{
		Target:            domain.FeatureTarget{SchoolID: f.schoolID, FeatureCode: "attendance"},
		Amount:            1500,
		PaymentType:       domain.PaymentTypeRecurring,
		Status:            domain.StatusSucceeded,
		ProviderPaymentID: ref("pi_attendance_1"),
	}
	first, err := f.svc.RecordPayment(ctx, req)
	require.NoError(t, err)
	f.clock.Advance(time.Hour)
	second, err := f.svc.RecordPayment(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	require.NotNil(t, second.AppliedAt)
	assert.EqualValues(t, 1, testutil.Count(t, f.db,
		`SELECT COUNT(*) FROM platform_payments WHERE provider_payment_id = ? AND status = 'succeeded'`, "pi_attendance_1"))
	assert.EqualValues(t, 2, f.notifications(t, "payment_succeeded"), "one notification per owner, sent once")

	ent, err := f.entitlements.Get(ctx, f.schoolID, "attendance")
	require.NoError(t, err)
	assert.Equal(t, entitlementdomain.StatusActive, ent.Status.Code())
	require.NotNil(t, ent.NextBillingDate)
	want := time.Date(2026, 5, 15, 12, 0, 0, 0, time.UTC)
	assert.WithinDuration(t, want, *ent.NextBillingDate, time.Second, "next billing date comes from the first application")
}

func TestPendingPaymentAdvancesWhenSettled(t *testing.T) {
	f := newFixture(t)
	f.enable(t, "report_cards", "one_time")
	ctx := context.Background()

	req := domain.RecordPaymentRequest{
		Target:            domain.FeatureTarget{SchoolID: f.schoolID, FeatureCode: "report_cards"},
		Amount:            9900,
		PaymentType:       domain.PaymentTypeOneTime,
		Status:            domain.StatusPending,
		ProviderPaymentID: ref("pi_rc"),
	}
	pending, err := f.svc.RecordPayment(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, pending.Status)
	assert.Nil(t, pending.AppliedAt)

	ent, err := f.entitlements.Get(ctx, f.schoolID, "report_cards")
	require.NoError(t, err)
	assert.Equal(t, entitlementdomain.StatusPendingPayment, ent.Status.Code())

	req.Status = domain.StatusSucceeded
	settled, err := f.svc.RecordPayment(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, pending.ID, settled.ID)
	assert.Equal(t, domain.StatusSucceeded, settled.Status)
	assert.NotNil(t, settled.AppliedAt)

	ent, err = f.entitlements.Get(ctx, f.schoolID, "report_cards")
	require.NoError(t, err)
	assert.Equal(t, entitlementdomain.StatusActive, ent.Status.Code())
	assert.Nil(t, ent.NextBillingDate, "one-time purchases have no renewal")
}

func TestFailedPaymentNotifiesOwnersOnly(t *testing.T) {
	f := newFixture(t)
	f.enable(t, "attendance", "standard")
	ctx := context.Background()

	req := domain.RecordPaymentRequest{
		Target:            domain.FeatureTarget{SchoolID: f.schoolID, FeatureCode: "attendance"},
		Amount:            1500,
		PaymentType:       domain.PaymentTypeRecurring,
		Status:            domain.StatusFailed,
		ProviderPaymentID: ref("pi_declined"),
	}
	payment, err := f.svc.RecordPayment(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, payment.Status)
	assert.Nil(t, payment.AppliedAt)

	_, err = f.svc.RecordPayment(ctx, req)
	require.NoError(t, err)

	assert.EqualValues(t, 2, f.notifications(t, "payment_failed"))
	assert.EqualValues(t, 0, testutil.Count(t, f.db,
		`SELECT COUNT(*) FROM notifications WHERE contact_id = ?`, 103))

	ent, err := f.entitlements.Get(ctx, f.schoolID, "attendance")
	require.NoError(t, err)
	assert.Equal(t, entitlementdomain.StatusPendingPayment, ent.Status.Code())
}

func TestFailedPaymentIsNeverRevived(t *testing.T) {
	f := newFixture(t)
	f.enable(t, "attendance", "standard")
	ctx := context.Background()

	req := domain.RecordPaymentRequest{
		Target:            domain.FeatureTarget{SchoolID: f.schoolID, FeatureCode: "attendance"},
		Amount:            1500,
		PaymentType:       domain.PaymentTypeRecurring,
		Status:            domain.StatusFailed,
		ProviderPaymentID: ref("pi_flip"),
	}
	_, err := f.svc.RecordPayment(ctx, req)
	require.NoError(t, err)

	req.Status = domain.StatusSucceeded
	again, err := f.svc.RecordPayment(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, again.Status)
	assert.Nil(t, again.AppliedAt)
}

func TestSubscriptionPaymentActivatesSchool(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	periodEnd := time.Date(2026, 5, 15, 0, 0, 0, 0, time.UTC)

	payment, err := f.svc.RecordPayment(ctx, domain.RecordPaymentRequest{
		Target:            domain.SubscriptionTarget{SchoolID: f.schoolID},
		Amount:            4900,
		PaymentType:       domain.PaymentTypeRecurring,
		Status:            domain.StatusSucceeded,
		ProviderPaymentID: ref("in_1"),
		PeriodEnd:         &periodEnd,
	})
	require.NoError(t, err)
	require.NotNil(t, payment.PlanCode)
	assert.Equal(t, "standard", *payment.PlanCode)

	school, err := f.schools.Get(ctx, f.schoolID)
	require.NoError(t, err)
	assert.Equal(t, schooldomain.SubscriptionStatusActive, school.SubscriptionStatus)
	assert.Equal(t, "standard", school.PlanCode())
	require.NotNil(t, school.CurrentPeriodEnd)
	assert.WithinDuration(t, periodEnd, *school.CurrentPeriodEnd, time.Second)
}

func TestCustomChargePaymentMarksChargePaid(t *testing.T) {
	f := newFixture(t)
	chargeID := testutil.SeedCustomCharge(t, f.db, f.node, f.schoolID, snowflake.ID(88), 2500)

	_, err := f.svc.RecordPayment(context.Background(), domain.RecordPaymentRequest{
		Target:            domain.CustomChargeTarget{SchoolID: f.schoolID, ChargeID: chargeID},
		Amount:            2500,
		PaymentType:       domain.PaymentTypeOneTime,
		Status:            domain.StatusSucceeded,
		ProviderPaymentID: ref("pi_trip"),
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, testutil.Count(t, f.db,
		`SELECT COUNT(*) FROM custom_charges WHERE id = ? AND status = 'paid' AND paid_at IS NOT NULL`, chargeID))
}

func TestProcessorPaymentForMissingTargetIsKeptUnapplied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := domain.RecordPaymentRequest{
		Target:            domain.FeatureTarget{SchoolID: f.schoolID, FeatureCode: "attendance"},
		Amount:            1500,
		PaymentType:       domain.PaymentTypeRecurring,
		Status:            domain.StatusSucceeded,
		ProviderPaymentID: ref("pi_early"),
	}

	_, err := f.svc.RecordPayment(ctx, req)
	assert.ErrorIs(t, err, domain.ErrNotApplied)
	assert.ErrorIs(t, err, entitlementdomain.ErrNotFound)
	assert.EqualValues(t, 1, testutil.Count(t, f.db,
		`SELECT COUNT(*) FROM platform_payments WHERE provider_payment_id = 'pi_early' AND status = 'succeeded' AND applied_at IS NULL`))
	assert.EqualValues(t, 0, f.notifications(t, "payment_succeeded"))

	f.enable(t, "attendance", "standard")
	payment, err := f.svc.RecordPayment(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, payment.AppliedAt)
	assert.EqualValues(t, 1, testutil.Count(t, f.db, `SELECT COUNT(*) FROM platform_payments`))
	assert.EqualValues(t, 2, f.notifications(t, "payment_succeeded"))

	ent, err := f.entitlements.Get(ctx, f.schoolID, "attendance")
	require.NoError(t, err)
	assert.Equal(t, entitlementdomain.StatusActive, ent.Status.Code())
}

func TestManualPaymentForMissingTargetRollsBack(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RecordPayment(context.Background(), domain.RecordPaymentRequest{
		Target:      domain.FeatureTarget{SchoolID: f.schoolID, FeatureCode: "attendance"},
		Amount:      1500,
		PaymentType: domain.PaymentTypeManual,
		Status:      domain.StatusSucceeded,
	})
	assert.ErrorIs(t, err, entitlementdomain.ErrNotFound)
	assert.NotErrorIs(t, err, domain.ErrNotApplied)
	assert.EqualValues(t, 0, testutil.Count(t, f.db, `SELECT COUNT(*) FROM platform_payments`))
}

func TestPendingPaymentNotifiesOwnersOnce(t *testing.T) {
	f := newFixture(t)
	f.enable(t, "report_cards", "one_time")
	ctx := context.Background()
	req := domain.RecordPaymentRequest{
		Target:            domain.FeatureTarget{SchoolID: f.schoolID, FeatureCode: "report_cards"},
		Amount:            9900,
		PaymentType:       domain.PaymentTypeOneTime,
		Status:            domain.StatusPending,
		ProviderPaymentID: ref("pi_3ds"),
	}

	_, err := f.svc.RecordPayment(ctx, req)
	require.NoError(t, err)
	_, err = f.svc.RecordPayment(ctx, req)
	require.NoError(t, err)

	assert.EqualValues(t, 2, f.notifications(t, "payment_failed"))
	assert.EqualValues(t, 2, testutil.Count(t, f.db,
		`SELECT COUNT(*) FROM notifications WHERE title = 'Payment needs attention'`))
}

func TestRecordPaymentValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	target := domain.FeatureTarget{SchoolID: f.schoolID, FeatureCode: "attendance"}

	cases := map[string]struct {
		req  domain.RecordPaymentRequest
		want error
	}{
		"missing target": {
			req:  domain.RecordPaymentRequest{Amount: 1, PaymentType: domain.PaymentTypeManual, Status: domain.StatusSucceeded},
			want: domain.ErrInvalidTarget,
		},
		"negative amount": {
			req:  domain.RecordPaymentRequest{Target: target, Amount: -1, PaymentType: domain.PaymentTypeManual, Status: domain.StatusSucceeded},
			want: domain.ErrInvalidAmount,
		},
		"bad status": {
			req:  domain.RecordPaymentRequest{Target: target, Amount: 1, PaymentType: domain.PaymentTypeManual, Status: "refunded"},
			want: domain.ErrInvalidStatus,
		},
		"bad type": {
			req:  domain.RecordPaymentRequest{Target: target, Amount: 1, PaymentType: "barter", Status: domain.StatusSucceeded},
			want: domain.ErrInvalidPaymentType,
		},
		"unknown school": {
			req: domain.RecordPaymentRequest{
				Target: domain.SubscriptionTarget{SchoolID: snowflake.ID(5)}, Amount: 1,
				PaymentType: domain.PaymentTypeManual, Status: domain.StatusSucceeded,
			},
			want: schooldomain.ErrNotFound,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.RecordPayment(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestMarkFeaturePaidDefaultsAmount(t *testing.T) {
	f := newFixture(t)
	f.enable(t, "report_cards", "one_time")
	admin := snowflake.ID(1)
	ctx := context.Background()

	payment, err := f.svc.MarkFeaturePaid(ctx, domain.MarkPaidRequest{
		SchoolID:    f.schoolID,
		FeatureCode: ref("report_cards"),
		Note:        ref("cheque 0042"),
		RecordedBy:  &admin,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 9900, payment.Amount)
	assert.Equal(t, domain.PaymentTypeManual, payment.PaymentType)
	assert.Nil(t, payment.ProviderPaymentID)
	require.NotNil(t, payment.RecordedBy)
	assert.Equal(t, admin, *payment.RecordedBy)

	ent, err := f.entitlements.Get(ctx, f.schoolID, "report_cards")
	require.NoError(t, err)
	assert.Equal(t, entitlementdomain.StatusActive, ent.Status.Code())
}

func TestMarkFeaturePaidRequiresAmount(t *testing.T) {
	f := newFixture(t)
	f.enable(t, "messaging", "free")
	ctx := context.Background()

	_, err := f.svc.MarkFeaturePaid(ctx, domain.MarkPaidRequest{SchoolID: f.schoolID, FeatureCode: ref("messaging")})
	assert.ErrorIs(t, err, domain.ErrAmountRequired)

	_, err = f.svc.MarkFeaturePaid(ctx, domain.MarkPaidRequest{SchoolID: f.schoolID})
	assert.ErrorIs(t, err, domain.ErrAmountRequired)

	_, err = f.svc.MarkFeaturePaid(ctx, domain.MarkPaidRequest{SchoolID: f.schoolID, FeatureCode: ref("attendance")})
	assert.ErrorIs(t, err, entitlementdomain.ErrNotFound)
}

func TestMarkPaidWithoutFeaturePaysSubscription(t *testing.T) {
	f := newFixture(t)
	amount := int64(4900)
	ctx := context.Background()

	payment, err := f.svc.MarkFeaturePaid(ctx, domain.MarkPaidRequest{SchoolID: f.schoolID, Amount: &amount})
	require.NoError(t, err)
	assert.Equal(t, domain.TargetTypeSubscription, payment.TargetType)
	require.NotNil(t, payment.PeriodEnd)

	school, err := f.schools.Get(ctx, f.schoolID)
	require.NoError(t, err)
	assert.Equal(t, schooldomain.SubscriptionStatusActive, school.SubscriptionStatus)
}

func TestListPaymentsPages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		amount := int64(100 * (i + 1))
		_, err := f.svc.MarkFeaturePaid(ctx, domain.MarkPaidRequest{SchoolID: f.schoolID, Amount: &amount})
		require.NoError(t, err)
	}

	page, err := f.svc.ListPayments(ctx, f.schoolID, pagination.Pagination{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page.Payments, 2)
	assert.True(t, page.PageInfo.HasMore)
	assert.EqualValues(t, 300, page.Payments[0].Amount, "newest first")

	rest, err := f.svc.ListPayments(ctx, f.schoolID, pagination.Pagination{PageSize: 2, PageToken: page.PageInfo.NextPageToken})
	require.NoError(t, err)
	require.Len(t, rest.Payments, 1)
	assert.False(t, rest.PageInfo.HasMore)
	assert.EqualValues(t, 100, rest.Payments[0].Amount)

	_, err = f.svc.ListPayments(ctx, f.schoolID, pagination.Pagination{PageToken: "not-a-token"})
	assert.ErrorIs(t, err, pagination.ErrInvalidPageToken)
}
