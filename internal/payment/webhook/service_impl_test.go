package webhook_test

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
	paymentsvc "github.com/smallbiznis/schoolbilling/internal/payment/service"
	"github.com/smallbiznis/schoolbilling/internal/payment/webhook"
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
	db           *gorm.DB
	schools      schooldomain.Service
	entitlements entitlementdomain.Service
	svc          domain.WebhookService
	schoolID     snowflake.ID
}

func newFixture(t *testing.T) fixture {
	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	log := zaptest.NewLogger(t)
	fc := clock.NewFakeClock(time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC))
	billing := config.NewStaticBillingConfigHolder(config.DefaultBillingConfig())

	testutil.SeedFeature(t, db, "attendance", 1500, 0)
	schoolID := testutil.SeedSchool(t, db, node, testutil.SchoolSeed{Name: "Cedar Park"})
	testutil.SeedMember(t, db, node, schoolID, 201, "owner", "owner@cedar.test")

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
	payments := paymentsvc.New(paymentsvc.Params{
		DB: db, Log: log, GenID: node, Clock: fc, BillingCfg: billing,
		Repo: repository.Provide(), SchoolRepo: schoolrepo.Provide(), Schools: schools,
		EntitlementRepo: entitlementrepo.Provide(), Entitlements: entitlements,
		ChargeRepo: chargerepo.Provide(), Notifier: notifier,
	})
	svc := webhook.NewService(webhook.Params{
		DB:         db,
		Log:        log,
		GenID:      node,
		Clock:      fc,
		Repo:       repository.Provide(),
		Payments:   payments,
		Schools:    schools,
		SchoolRepo: schoolrepo.Provide(),
		Processor:  processortest.New(),
	})
	return fixture{db: db, schools: schools, entitlements: entitlements, svc: svc, schoolID: schoolID}
}

func (f fixture) enableAttendance(t *testing.T) {
	_, err := f.entitlements.Enable(context.Background(), entitlementdomain.EnableRequest{
		SchoolID: f.schoolID, FeatureCode: "attendance", PricingModel: "standard",
	})
	require.NoError(t, err)
}

func (f fixture) featureMetadata() map[string]string {
	return map[string]string{
		processor.MetadataType:     processor.PaymentKindFeature,
		processor.MetadataSchoolID: f.schoolID.String(),
		processor.MetadataFeature:  "attendance",
	}
}

func (f fixture) ingest(t *testing.T, payload []byte) domain.WebhookOutcome {
	outcome, err := f.svc.Ingest(context.Background(), payload, "t=1,v1=test")
	require.NoError(t, err)
	return outcome
}

func (f fixture) count(t *testing.T, query string, args ...any) int64 {
	return testutil.Count(t, f.db, query, args...)
}

func TestDuplicateDeliveryIsShortCircuited(t *testing.T) {
	f := newFixture(t)
	f.enableAttendance(t)
	payload := processortest.Event("evt_1", webhook.EventPaymentSucceeded, map[string]any{
		"id": "pi_1", "amount": 1500, "amount_received": 1500, "currency": "usd", "metadata": f.featureMetadata(),
	})

	assert.Equal(t, domain.WebhookProcessed, f.ingest(t, payload))
	assert.Equal(t, domain.WebhookDuplicate, f.ingest(t, payload))

	assert.EqualValues(t, 1, f.count(t, `SELECT COUNT(*) FROM platform_payments`))
	assert.EqualValues(t, 1, f.count(t, `SELECT COUNT(*) FROM payment_webhook_events WHERE processed_at IS NOT NULL`))
}

func TestCheckoutAndIntentEventsForSamePaymentAdvanceOnce(t *testing.T) {
	f := newFixture(t)
	f.enableAttendance(t)

	checkout := processortest.Event("evt_cs", webhook.EventCheckoutCompleted, map[string]any{
		"id": "cs_1", "mode": "payment", "payment_status": "paid", "payment_intent": "pi_9",
		"amount_total": 1500, "currency": "usd", "metadata": f.featureMetadata(),
	})
	intent := processortest.Event("evt_pi", webhook.EventPaymentSucceeded, map[string]any{
		"id": "pi_9", "amount": 1500, "currency": "usd", "metadata": f.featureMetadata(),
	})

	assert.Equal(t, domain.WebhookProcessed, f.ingest(t, checkout))
	assert.Equal(t, domain.WebhookProcessed, f.ingest(t, intent))

	assert.EqualValues(t, 1, f.count(t, `SELECT COUNT(*) FROM platform_payments WHERE provider_payment_id = 'pi_9' AND status = 'succeeded'`))
	assert.EqualValues(t, 1, f.count(t, `SELECT COUNT(*) FROM notifications WHERE notification_type = 'payment_succeeded'`))

	active, err := f.entitlements.IsActive(context.Background(), f.schoolID, "attendance")
	require.NoError(t, err)
	assert.True(t, active)
}

func TestFailedIntentRecordsFailureAndNotifies(t *testing.T) {
	f := newFixture(t)
	f.enableAttendance(t)
	payload := processortest.Event("evt_fail", webhook.EventPaymentFailed, map[string]any{
		"id": "pi_bad", "amount": 1500, "currency": "usd", "metadata": f.featureMetadata(),
		"last_payment_error": map[string]any{"message": "Your card was declined."},
	})

	assert.Equal(t, domain.WebhookProcessed, f.ingest(t, payload))
	assert.EqualValues(t, 1, f.count(t, `SELECT COUNT(*) FROM platform_payments WHERE status = 'failed' AND note = 'Your card was declined.'`))
	assert.EqualValues(t, 1, f.count(t, `SELECT COUNT(*) FROM notifications WHERE notification_type = 'payment_failed'`))
}

func TestInvoicePaidActivatesSubscriptionByCustomer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.schools.AttachCustomer(ctx, f.schoolID, "cus_cedar"))
	periodEnd := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	payload := processortest.Event("evt_inv", webhook.EventInvoicePaid, map[string]any{
		"id": "in_1", "customer": "cus_cedar", "amount_paid": 4900, "currency": "usd",
		"lines": map[string]any{"data": []any{
			map[string]any{"period": map[string]any{"start": periodEnd.AddDate(0, -1, 0).Unix(), "end": periodEnd.Unix()}},
		}},
	})
	assert.Equal(t, domain.WebhookProcessed, f.ingest(t, payload))

	school, err := f.schools.Get(ctx, f.schoolID)
	require.NoError(t, err)
	assert.Equal(t, schooldomain.SubscriptionStatusActive, school.SubscriptionStatus)
	require.NotNil(t, school.CurrentPeriodEnd)
	assert.WithinDuration(t, periodEnd, *school.CurrentPeriodEnd, time.Second)
	assert.EqualValues(t, 1, f.count(t, `SELECT COUNT(*) FROM platform_payments WHERE payment_type = 'recurring' AND amount = 4900`))
}

func TestSubscriptionDeletedCancelsSchool(t *testing.T) {
	f := newFixture(t)
	payload := processortest.Event("evt_sub", webhook.EventSubscriptionDeleted, map[string]any{
		"id": "sub_1", "customer": "cus_x", "status": "active",
		"metadata": map[string]string{processor.MetadataSchoolID: f.schoolID.String()},
	})
	assert.Equal(t, domain.WebhookProcessed, f.ingest(t, payload))

	school, err := f.schools.Get(context.Background(), f.schoolID)
	require.NoError(t, err)
	assert.Equal(t, schooldomain.SubscriptionStatusCanceled, school.SubscriptionStatus)
	require.NotNil(t, school.StripeSubscriptionID)
	assert.Equal(t, "sub_1", *school.StripeSubscriptionID)
}

func TestUnhandledEventIsIgnored(t *testing.T) {
	f := newFixture(t)
	payload := processortest.Event("evt_other", "charge.refunded", map[string]any{"id": "ch_1"})

	assert.Equal(t, domain.WebhookIgnored, f.ingest(t, payload))
	assert.EqualValues(t, 1, f.count(t, `SELECT COUNT(*) FROM payment_webhook_events WHERE processed_at IS NOT NULL`))
}

func TestUnappliedPaymentAwaitsRedelivery(t *testing.T) {
	f := newFixture(t)
	payload := processortest.Event("evt_early", webhook.EventPaymentSucceeded, map[string]any{
		"id": "pi_early", "amount": 1500, "currency": "usd", "metadata": f.featureMetadata(),
	})

	outcome, err := f.svc.Ingest(context.Background(), payload, "t=1,v1=test")
	assert.ErrorIs(t, err, domain.ErrWebhookRetry)
	assert.Equal(t, domain.WebhookFailed, outcome)
	assert.EqualValues(t, 1, f.count(t, `SELECT COUNT(*) FROM platform_payments WHERE provider_payment_id = 'pi_early' AND applied_at IS NULL`))
	assert.EqualValues(t, 1, f.count(t, `SELECT COUNT(*) FROM payment_webhook_events WHERE processed_at IS NULL`))

	f.enableAttendance(t)
	assert.Equal(t, domain.WebhookProcessed, f.ingest(t, payload))
	assert.EqualValues(t, 1, f.count(t, `SELECT COUNT(*) FROM platform_payments WHERE applied_at IS NOT NULL`))
	assert.EqualValues(t, 1, f.count(t, `SELECT COUNT(*) FROM payment_webhook_events WHERE processed_at IS NOT NULL`))

	active, err := f.entitlements.IsActive(context.Background(), f.schoolID, "attendance")
	require.NoError(t, err)
	assert.True(t, active)
}

func TestProcessingFailureIsAbsorbed(t *testing.T) {
	f := newFixture(t)
	meta := f.featureMetadata()
	meta[processor.MetadataSchoolID] = "1234567890"
	payload := processortest.Event("evt_orphan", webhook.EventPaymentSucceeded, map[string]any{
		"id": "pi_orphan", "amount": 1500, "currency": "usd", "metadata": meta,
	})

	assert.Equal(t, domain.WebhookFailed, f.ingest(t, payload))
	assert.EqualValues(t, 0, f.count(t, `SELECT COUNT(*) FROM platform_payments`))
	assert.EqualValues(t, 1, f.count(t, `SELECT COUNT(*) FROM payment_webhook_events WHERE processed_at IS NULL`))
}

func (f fixture) subscriptionMetadata() map[string]string {
	return map[string]string{
		processor.MetadataType:     processor.PaymentKindSubscription,
		processor.MetadataSchoolID: f.schoolID.String(),
		processor.MetadataPlan:     "standard",
	}
}

func TestSubscriptionCheckoutRecordsFirstPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	checkout := processortest.Event("evt_sub_cs", webhook.EventCheckoutCompleted, map[string]any{
		"id": "cs_sub", "mode": "subscription", "payment_status": "paid",
		"subscription": "sub_cedar", "customer": "cus_cedar", "invoice": "in_first",
		"amount_total": 4900, "currency": "usd", "metadata": f.subscriptionMetadata(),
	})
	assert.Equal(t, domain.WebhookProcessed, f.ingest(t, checkout))

	assert.EqualValues(t, 1, f.count(t,
		`SELECT COUNT(*) FROM platform_payments WHERE provider_payment_id = 'in_first' AND status = 'succeeded' AND payment_type = 'recurring' AND amount = 4900 AND applied_at IS NOT NULL`))
	assert.EqualValues(t, 1, f.count(t, `SELECT COUNT(*) FROM notifications WHERE notification_type = 'payment_succeeded'`))

	school, err := f.schools.Get(ctx, f.schoolID)
	require.NoError(t, err)
	assert.Equal(t, schooldomain.SubscriptionStatusActive, school.SubscriptionStatus)
	require.NotNil(t, school.StripeSubscriptionID)
	assert.Equal(t, "sub_cedar", *school.StripeSubscriptionID)
	require.NotNil(t, school.StripeCustomerID)
	assert.Equal(t, "cus_cedar", *school.StripeCustomerID)

	invoicePaid := processortest.Event("evt_sub_inv", webhook.EventInvoicePaid, map[string]any{
		"id": "in_first", "subscription": "sub_cedar", "customer": "cus_cedar", "amount_paid": 4900, "currency": "usd",
	})
	assert.Equal(t, domain.WebhookProcessed, f.ingest(t, invoicePaid))
	assert.EqualValues(t, 1, f.count(t, `SELECT COUNT(*) FROM platform_payments`))
	assert.EqualValues(t, 1, f.count(t, `SELECT COUNT(*) FROM notifications WHERE notification_type = 'payment_succeeded'`))
}

func TestUnpaidSubscriptionCheckoutOnlyLinksIDs(t *testing.T) {
	f := newFixture(t)
	checkout := processortest.Event("evt_sub_unpaid", webhook.EventCheckoutCompleted, map[string]any{
		"id": "cs_sub", "mode": "subscription", "payment_status": "unpaid",
		"subscription": "sub_cedar", "customer": "cus_cedar", "metadata": f.subscriptionMetadata(),
	})
	assert.Equal(t, domain.WebhookProcessed, f.ingest(t, checkout))

	assert.EqualValues(t, 0, f.count(t, `SELECT COUNT(*) FROM platform_payments`))
	school, err := f.schools.Get(context.Background(), f.schoolID)
	require.NoError(t, err)
	assert.Equal(t, schooldomain.SubscriptionStatusTrial, school.SubscriptionStatus)
	require.NotNil(t, school.StripeSubscriptionID)
	assert.Equal(t, "sub_cedar", *school.StripeSubscriptionID)
}

func TestUnpaidFeatureCheckoutRecordsPendingAndNotifies(t *testing.T) {
	f := newFixture(t)
	f.enableAttendance(t)
	checkout := processortest.Event("evt_cs_unpaid", webhook.EventCheckoutCompleted, map[string]any{
		"id": "cs_async", "mode": "payment", "payment_status": "unpaid", "payment_intent": "pi_async",
		"amount_total": 1500, "currency": "usd", "metadata": f.featureMetadata(),
	})
	assert.Equal(t, domain.WebhookProcessed, f.ingest(t, checkout))

	assert.EqualValues(t, 1, f.count(t, `SELECT COUNT(*) FROM platform_payments WHERE provider_payment_id = 'pi_async' AND status = 'pending'`))
	assert.EqualValues(t, 1, f.count(t, `SELECT COUNT(*) FROM notifications WHERE notification_type = 'payment_failed'`))

	active, err := f.entitlements.IsActive(context.Background(), f.schoolID, "attendance")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestInvalidSignatureIsRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Ingest(context.Background(), []byte(`{}`), processortest.BadSignature)
	assert.ErrorIs(t, err, processor.ErrInvalidSignature)
	assert.EqualValues(t, 0, f.count(t, `SELECT COUNT(*) FROM payment_webhook_events`))
}
