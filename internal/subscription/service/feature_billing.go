package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	entitlementdomain "github.com/smallbiznis/schoolbilling/internal/entitlement/domain"
	paymentdomain "github.com/smallbiznis/schoolbilling/internal/payment/domain"
	"github.com/smallbiznis/schoolbilling/internal/processor"
	"github.com/smallbiznis/schoolbilling/internal/subscription/domain"
	"go.uber.org/zap"
)

// FeatureCheckout opens a payment-mode checkout for a feature awaiting
// payment. The entitlement activates when the checkout webhook records the
// payment.
func (s *Service) FeatureCheckout(ctx context.Context, req domain.FeatureCheckoutRequest) (*domain.Session, error) {
	school, err := s.schools.Get(ctx, req.SchoolID)
	if err != nil {
		return nil, err
	}
	ent, err := s.payableFeature(ctx, req.SchoolID, req.FeatureCode)
	if err != nil {
		return nil, err
	}
	customerID, err := s.ensureCustomer(ctx, school)
	if err != nil {
		return nil, err
	}

	session, err := s.processor.CreateCheckoutSession(ctx, processor.CheckoutRequest{
		Mode:        processor.CheckoutModePayment,
		CustomerID:  customerID,
		Amount:      ent.AmountDue(),
		Currency:    s.billingCfg.Get().Currency,
		ProductName: ent.FeatureCode,
		SuccessURL:  firstNonEmpty(req.SuccessURL, s.stripeCfg.SuccessURL),
		CancelURL:   firstNonEmpty(req.CancelURL, s.stripeCfg.CancelURL),
		Metadata:    featureMetadata(school.ID.String(), ent.FeatureCode),
	})
	if err != nil {
		s.log.Warn("feature checkout failed",
			zap.String("school_id", school.ID.String()),
			zap.String("feature_code", ent.FeatureCode),
			zap.Error(err),
		)
		return nil, err
	}

	s.log.Info("feature checkout opened",
		zap.String("school_id", school.ID.String()),
		zap.String("feature_code", ent.FeatureCode),
		zap.String("session_id", session.ID),
	)
	return &domain.Session{SessionID: session.ID, URL: session.URL, CustomerID: customerID}, nil
}

// SavePaymentMethod stores a tokenized card on the school's customer and makes
// it the default for off-session charges.
func (s *Service) SavePaymentMethod(ctx context.Context, req domain.SavePaymentMethodRequest) (*domain.PaymentMethod, error) {
	token := strings.TrimSpace(req.CardToken)
	if token == "" {
		return nil, domain.ErrInvalidCardToken
	}
	school, err := s.schools.Get(ctx, req.SchoolID)
	if err != nil {
		return nil, err
	}
	customerID, err := s.ensureCustomer(ctx, school)
	if err != nil {
		return nil, err
	}

	methodID, err := s.processor.CreatePaymentMethod(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := s.processor.AttachPaymentMethod(ctx, methodID, customerID); err != nil {
		return nil, err
	}
	if err := s.processor.SetDefaultPaymentMethod(ctx, customerID, methodID); err != nil {
		return nil, err
	}

	s.log.Info("payment method saved",
		zap.String("school_id", school.ID.String()),
		zap.String("customer_id", customerID),
	)
	return &domain.PaymentMethod{CustomerID: customerID, PaymentMethodID: methodID}, nil
}

func (s *Service) ChargeFeature(ctx context.Context, req domain.ChargeFeatureRequest) (*paymentdomain.PlatformPayment, error) {
	school, err := s.schools.Get(ctx, req.SchoolID)
	if err != nil {
		return nil, err
	}
	ent, err := s.payableFeature(ctx, req.SchoolID, req.FeatureCode)
	if err != nil {
		return nil, err
	}
	if school.StripeCustomerID == nil || *school.StripeCustomerID == "" {
		return nil, domain.ErrNoPaymentMethod
	}
	customer, err := s.processor.GetCustomer(ctx, *school.StripeCustomerID)
	if err != nil {
		return nil, err
	}
	if customer.DefaultPaymentMethodID == "" {
		return nil, domain.ErrNoPaymentMethod
	}

	currency := s.billingCfg.Get().Currency
	intent, err := s.processor.ChargeSavedMethod(ctx, processor.ChargeRequest{
		CustomerID:      customer.ID,
		PaymentMethodID: customer.DefaultPaymentMethodID,
		Amount:          ent.AmountDue(),
		Currency:        currency,
		Metadata:        featureMetadata(school.ID.String(), ent.FeatureCode),
	})
	if err != nil {
		// A declined intent still reaches us as payment_intent.payment_failed.
		s.log.Warn("feature charge failed",
			zap.String("school_id", school.ID.String()),
			zap.String("feature_code", ent.FeatureCode),
			zap.Error(err),
		)
		return nil, err
	}

	paymentType := paymentdomain.PaymentTypeRecurring
	if ent.PricingModel == entitlementdomain.PricingModelOneTime {
		paymentType = paymentdomain.PaymentTypeOneTime
	}
	ref := intent.ID
	return s.payments.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		Target:            paymentdomain.FeatureTarget{SchoolID: school.ID, FeatureCode: ent.FeatureCode},
		Amount:            intent.Amount,
		Currency:          currency,
		PaymentType:       paymentType,
		Status:            IntentStatus(intent.Status),
		ProviderPaymentID: &ref,
	})
}

// payableFeature returns the entitlement when it is enabled, awaiting payment
// and priced above zero.
func (s *Service) payableFeature(ctx context.Context, schoolID snowflake.ID, code string) (*entitlementdomain.Entitlement, error) {
	ent, err := s.entitlements.Get(ctx, schoolID, code)
	if err != nil {
		return nil, err
	}
	if !ent.Enabled || ent.Status.Code() != entitlementdomain.StatusPendingPayment || ent.AmountDue() <= 0 {
		return nil, domain.ErrFeatureNotPayable
	}
	return ent, nil
}

func featureMetadata(schoolID, featureCode string) map[string]string {
	return map[string]string{
		processor.MetadataType:     processor.PaymentKindFeature,
		processor.MetadataSchoolID: schoolID,
		processor.MetadataFeature:  featureCode,
	}
}

// IntentStatus maps a processor payment intent status onto a payment status.
// Intents still waiting on the customer or the bank stay pending.
func IntentStatus(raw string) paymentdomain.Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "succeeded":
		return paymentdomain.StatusSucceeded
	case "processing", "requires_action", "requires_confirmation", "requires_capture":
		return paymentdomain.StatusPending
	}
	return paymentdomain.StatusFailed
}
