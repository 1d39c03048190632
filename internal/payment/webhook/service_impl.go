package webhook

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/schoolbilling/internal/clock"
	"github.com/smallbiznis/schoolbilling/internal/observability/metrics"
	"github.com/smallbiznis/schoolbilling/internal/payment/domain"
	"github.com/smallbiznis/schoolbilling/internal/processor"
	schooldomain "github.com/smallbiznis/schoolbilling/internal/school/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const provider = "stripe"

// errIgnored marks events that carry nothing this service routes on.
var errIgnored = errors.New("webhook_event_ignored")

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Metrics    *metrics.Metrics `optional:"true"`
	Repo       domain.Repository
	Payments   domain.Service
	Schools    schooldomain.Service
	SchoolRepo schooldomain.Repository
	Processor  processor.Processor
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	metrics    *metrics.Metrics
	repo       domain.Repository
	payments   domain.Service
	schools    schooldomain.Service
	schoolRepo schooldomain.Repository
	processor  processor.Processor
}

func NewService(p Params) domain.WebhookService {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.webhook"),
		genID:      p.GenID,
		clock:      p.Clock,
		metrics:    p.Metrics,
		repo:       p.Repo,
		payments:   p.Payments,
		schools:    p.Schools,
		schoolRepo: p.SchoolRepo,
		processor:  p.Processor,
	}
}

// Ingest verifies and stores the event, then routes it. Signature and
// payload errors are returned. A payment that was stored but could not be
// applied returns ErrWebhookRetry and leaves the event unprocessed so the
// redelivery finishes it. Other processing failures are logged and reported
// through the outcome so the processor does not retry forever.
func (s *Service) Ingest(ctx context.Context, payload []byte, signature string) (domain.WebhookOutcome, error) {
	event, err := s.processor.ParseWebhook(payload, signature)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(event.ID) == "" || strings.TrimSpace(event.Type) == "" {
		return "", domain.ErrInvalidEvent
	}

	now := s.clock.Now()
	record := domain.WebhookEvent{
		ID:              s.genID.Generate(),
		Provider:        provider,
		ProviderEventID: event.ID,
		EventType:       event.Type,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      now,
	}
	inserted, err := s.repo.InsertEvent(ctx, s.db, &record)
	if err != nil {
		return "", err
	}
	stored := &record
	if !inserted {
		stored, err = s.repo.FindEvent(ctx, s.db, provider, event.ID)
		if err != nil {
			return "", err
		}
		if stored == nil {
			return "", domain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			s.metrics.RecordWebhookEvent(ctx, provider, event.Type, string(domain.WebhookDuplicate))
			return domain.WebhookDuplicate, nil
		}
	}

	outcome := domain.WebhookProcessed
	if err := s.route(ctx, event); err != nil {
		switch {
		case errors.Is(err, errIgnored):
			outcome = domain.WebhookIgnored
		case errors.Is(err, domain.ErrNotApplied):
			s.metrics.RecordWebhookEvent(ctx, provider, event.Type, string(domain.WebhookFailed))
			s.log.Error("webhook payment not applied, awaiting redelivery",
				zap.String("event_id", event.ID),
				zap.String("event_type", event.Type),
				zap.Error(err),
			)
			return domain.WebhookFailed, domain.ErrWebhookRetry
		default:
			s.metrics.RecordWebhookEvent(ctx, provider, event.Type, string(domain.WebhookFailed))
			s.log.Error("webhook processing failed",
				zap.String("event_id", event.ID),
				zap.String("event_type", event.Type),
				zap.Error(err),
			)
			return domain.WebhookFailed, nil
		}
	}

	if err := s.repo.MarkEventProcessed(ctx, s.db, stored.ID, s.clock.Now()); err != nil {
		return "", err
	}
	s.metrics.RecordWebhookEvent(ctx, provider, event.Type, string(outcome))
	s.log.Info("webhook processed",
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type),
		zap.String("outcome", string(outcome)),
	)
	return outcome, nil
}

func (s *Service) route(ctx context.Context, event processor.Event) error {
	switch event.Type {
	case EventCheckoutCompleted:
		session, err := decode[checkoutSession](event.Object)
		if err != nil {
			return err
		}
		return s.onCheckoutCompleted(ctx, session)
	case EventPaymentSucceeded, EventPaymentFailed:
		intent, err := decode[paymentIntent](event.Object)
		if err != nil {
			return err
		}
		return s.onPaymentIntent(ctx, intent, event.Type == EventPaymentSucceeded)
	case EventInvoicePaid, EventInvoicePaymentFailed:
		inv, err := decode[invoice](event.Object)
		if err != nil {
			return err
		}
		return s.onInvoice(ctx, inv, event.Type == EventInvoicePaid)
	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		sub, err := decode[subscription](event.Object)
		if err != nil {
			return err
		}
		if event.Type == EventSubscriptionDeleted {
			sub.Status = "canceled"
		}
		return s.onSubscription(ctx, sub)
	}
	return errIgnored
}

func (s *Service) onCheckoutCompleted(ctx context.Context, session checkoutSession) error {
	schoolID := session.Metadata.schoolID()
	if schoolID == nil {
		return errIgnored
	}

	if session.Mode == "subscription" || session.Metadata.kind() == processor.PaymentKindSubscription {
		return s.onSubscriptionCheckout(ctx, *schoolID, session)
	}

	target, err := oneTimeTarget(*schoolID, session.Metadata)
	if err != nil {
		return err
	}
	status := domain.StatusPending
	if session.PaymentStatus == "paid" {
		status = domain.StatusSucceeded
	}
	ref := firstNonEmpty(session.PaymentIntent, session.ID)
	_, err = s.payments.RecordPayment(ctx, domain.RecordPaymentRequest{
		Target:            target,
		Amount:            session.AmountTotal,
		Currency:          session.Currency,
		PaymentType:       domain.PaymentTypeOneTime,
		Status:            status,
		ProviderPaymentID: &ref,
	})
	return err
}

// onSubscriptionCheckout links the processor ids and, once paid, records the
// first subscription payment. The school becomes active when that payment is
// applied. The invoice id is the key, so the matching invoice.paid event
// lands on the same row.
func (s *Service) onSubscriptionCheckout(ctx context.Context, schoolID snowflake.ID, session checkoutSession) error {
	if err := s.attachCustomer(ctx, schoolID, session.Customer); err != nil {
		return err
	}
	if session.Subscription != "" {
		if err := s.schools.AttachSubscription(ctx, schoolID, session.Subscription); err != nil {
			return err
		}
	}
	if session.PaymentStatus != "paid" {
		return nil
	}

	ref := firstNonEmpty(session.Invoice, session.PaymentIntent, session.ID)
	_, err := s.payments.RecordPayment(ctx, domain.RecordPaymentRequest{
		Target:            domain.SubscriptionTarget{SchoolID: schoolID, Plan: stringValue(planFrom(session.Metadata))},
		Amount:            session.AmountTotal,
		Currency:          session.Currency,
		PaymentType:       domain.PaymentTypeRecurring,
		Status:            domain.StatusSucceeded,
		ProviderPaymentID: &ref,
	})
	return err
}

func (s *Service) onPaymentIntent(ctx context.Context, intent paymentIntent, succeeded bool) error {
	schoolID := intent.Metadata.schoolID()
	if schoolID == nil {
		return errIgnored
	}

	var target domain.Target
	paymentType := domain.PaymentTypeOneTime
	if intent.Metadata.kind() == processor.PaymentKindSubscription {
		target = domain.SubscriptionTarget{SchoolID: *schoolID, Plan: stringValue(planFrom(intent.Metadata))}
		paymentType = domain.PaymentTypeRecurring
	} else {
		var err error
		if target, err = oneTimeTarget(*schoolID, intent.Metadata); err != nil {
			return err
		}
	}

	status := domain.StatusFailed
	amount := intent.Amount
	var note *string
	if succeeded {
		status = domain.StatusSucceeded
		if intent.AmountReceived > 0 {
			amount = intent.AmountReceived
		}
	} else if intent.LastPaymentError != nil && intent.LastPaymentError.Message != "" {
		msg := intent.LastPaymentError.Message
		note = &msg
	}

	ref := intent.ID
	_, err := s.payments.RecordPayment(ctx, domain.RecordPaymentRequest{
		Target:            target,
		Amount:            amount,
		Currency:          intent.Currency,
		PaymentType:       paymentType,
		Status:            status,
		ProviderPaymentID: &ref,
		Note:              note,
	})
	return err
}

func (s *Service) onInvoice(ctx context.Context, inv invoice, paid bool) error {
	routing := inv.routing()
	school, err := s.resolveSchool(ctx, routing.schoolID(), inv.subscriptionRef(), inv.Customer)
	if err != nil {
		return err
	}

	status := domain.StatusFailed
	amount := inv.AmountDue
	if paid {
		status = domain.StatusSucceeded
		amount = inv.AmountPaid
	}
	start, end := inv.servicePeriod()
	ref := inv.ID
	_, err = s.payments.RecordPayment(ctx, domain.RecordPaymentRequest{
		Target:            domain.SubscriptionTarget{SchoolID: school.ID, Plan: stringValue(planFrom(routing))},
		Amount:            amount,
		Currency:          inv.Currency,
		PaymentType:       domain.PaymentTypeRecurring,
		Status:            status,
		ProviderPaymentID: &ref,
		PeriodStart:       start,
		PeriodEnd:         end,
	})
	return err
}

func (s *Service) onSubscription(ctx context.Context, sub subscription) error {
	_, err := s.schools.ApplyProcessorStatus(ctx, schooldomain.ProcessorStatusUpdate{
		SchoolID:             sub.Metadata.schoolID(),
		StripeSubscriptionID: sub.ID,
		StripeCustomerID:     sub.Customer,
		ProcessorStatus:      sub.Status,
		CurrentPeriodEnd:     sub.periodEnd(),
		Plan:                 planFrom(sub.Metadata),
	})
	if errors.Is(err, schooldomain.ErrInvalidStatus) {
		return errIgnored
	}
	return err
}

func (s *Service) resolveSchool(ctx context.Context, schoolID *snowflake.ID, subscriptionID, customerID string) (*schooldomain.School, error) {
	if schoolID != nil {
		return s.schools.Get(ctx, *schoolID)
	}
	if subscriptionID != "" {
		school, err := s.schoolRepo.FindByStripeSubscription(ctx, s.db, subscriptionID)
		if err != nil || school != nil {
			return school, err
		}
	}
	if customerID != "" {
		school, err := s.schoolRepo.FindByStripeCustomer(ctx, s.db, customerID)
		if err != nil || school != nil {
			return school, err
		}
	}
	return nil, schooldomain.ErrNotFound
}

func (s *Service) attachCustomer(ctx context.Context, schoolID snowflake.ID, customerID string) error {
	if customerID == "" {
		return nil
	}
	school, err := s.schools.Get(ctx, schoolID)
	if err != nil {
		return err
	}
	if school.StripeCustomerID != nil && *school.StripeCustomerID != "" {
		return nil
	}
	return s.schools.AttachCustomer(ctx, schoolID, customerID)
}

func oneTimeTarget(schoolID snowflake.ID, meta metadata) (domain.Target, error) {
	switch meta.kind() {
	case processor.PaymentKindFeature:
		code := strings.TrimSpace(meta[processor.MetadataFeature])
		if code == "" {
			return nil, domain.ErrInvalidTarget
		}
		return domain.FeatureTarget{SchoolID: schoolID, FeatureCode: code}, nil
	case processor.PaymentKindCustomCharge:
		chargeID, ok := meta.id(processor.MetadataChargeID)
		if !ok {
			return nil, domain.ErrInvalidTarget
		}
		return domain.CustomChargeTarget{SchoolID: schoolID, ChargeID: chargeID}, nil
	}
	return nil, errIgnored
}

func planFrom(meta metadata) *string {
	plan := strings.TrimSpace(meta[processor.MetadataPlan])
	if plan == "" {
		return nil
	}
	return &plan
}

func stringValue(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
