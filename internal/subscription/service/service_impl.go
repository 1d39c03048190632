package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/schoolbilling/internal/config"
	entitlementdomain "github.com/smallbiznis/schoolbilling/internal/entitlement/domain"
	paymentdomain "github.com/smallbiznis/schoolbilling/internal/payment/domain"
	"github.com/smallbiznis/schoolbilling/internal/processor"
	schooldomain "github.com/smallbiznis/schoolbilling/internal/school/domain"
	"github.com/smallbiznis/schoolbilling/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log          *zap.Logger
	Cfg          config.Config
	BillingCfg   *config.BillingConfigHolder
	Schools      schooldomain.Service
	Entitlements entitlementdomain.Service
	Payments     paymentdomain.Service
	Processor    processor.Processor
}

type Service struct {
	log          *zap.Logger
	stripeCfg    config.StripeConfig
	billingCfg   *config.BillingConfigHolder
	schools      schooldomain.Service
	entitlements entitlementdomain.Service
	payments     paymentdomain.Service
	processor    processor.Processor
}

func New(p Params) domain.Service {
	return &Service{
		log:          p.Log.Named("subscription.service"),
		stripeCfg:    p.Cfg.Stripe,
		billingCfg:   p.BillingCfg,
		schools:      p.Schools,
		entitlements: p.Entitlements,
		payments:     p.Payments,
		processor:    p.Processor,
	}
}

// Checkout opens a subscription-mode checkout for the standard plan. The
// school is activated later by the checkout.session.completed webhook.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (*domain.Session, error) {
	billing := s.billingCfg.Get()
	plan := strings.TrimSpace(req.Plan)
	if plan == "" {
		plan = billing.StandardPlanCode
	}
	if plan != billing.StandardPlanCode {
		return nil, domain.ErrInvalidPlan
	}
	if strings.TrimSpace(s.stripeCfg.StandardPlanPrice) == "" {
		return nil, domain.ErrPriceNotConfigured
	}

	school, err := s.schools.Get(ctx, req.SchoolID)
	if err != nil {
		return nil, err
	}
	if school.SubscriptionStatus == schooldomain.SubscriptionStatusActive && school.StripeSubscriptionID != nil {
		return nil, domain.ErrAlreadySubscribed
	}

	customerID, err := s.ensureCustomer(ctx, school)
	if err != nil {
		return nil, err
	}

	session, err := s.processor.CreateCheckoutSession(ctx, processor.CheckoutRequest{
		Mode:       processor.CheckoutModeSubscription,
		CustomerID: customerID,
		PriceID:    s.stripeCfg.StandardPlanPrice,
		SuccessURL: firstNonEmpty(req.SuccessURL, s.stripeCfg.SuccessURL),
		CancelURL:  firstNonEmpty(req.CancelURL, s.stripeCfg.CancelURL),
		Metadata: map[string]string{
			processor.MetadataType:     processor.PaymentKindSubscription,
			processor.MetadataSchoolID: school.ID.String(),
			processor.MetadataPlan:     plan,
		},
	})
	if err != nil {
		s.log.Warn("subscription checkout failed", zap.String("school_id", school.ID.String()), zap.Error(err))
		return nil, err
	}

	s.log.Info("subscription checkout opened",
		zap.String("school_id", school.ID.String()),
		zap.String("session_id", session.ID),
	)
	return &domain.Session{SessionID: session.ID, URL: session.URL, CustomerID: customerID}, nil
}

func (s *Service) Portal(ctx context.Context, req domain.PortalRequest) (*domain.Session, error) {
	school, err := s.schools.Get(ctx, req.SchoolID)
	if err != nil {
		return nil, err
	}
	if school.StripeCustomerID == nil || *school.StripeCustomerID == "" {
		return nil, domain.ErrNoCustomer
	}

	session, err := s.processor.CreatePortalSession(ctx, *school.StripeCustomerID, firstNonEmpty(req.ReturnURL, s.stripeCfg.PortalReturnURL))
	if err != nil {
		return nil, err
	}
	return &domain.Session{SessionID: session.ID, URL: session.URL, CustomerID: *school.StripeCustomerID}, nil
}

// ensureCustomer returns the school's processor customer, creating it from the
// first owner's contact when the school has none yet.
func (s *Service) ensureCustomer(ctx context.Context, school *schooldomain.School) (string, error) {
	if school.StripeCustomerID != nil && *school.StripeCustomerID != "" {
		return *school.StripeCustomerID, nil
	}

	owners, err := s.schools.Owners(ctx, school.ID)
	if err != nil {
		return "", err
	}

	customer, err := s.processor.CreateCustomer(ctx, processor.CustomerRequest{
		Email:    owners[0].Email,
		Name:     school.Name,
		Metadata: map[string]string{processor.MetadataSchoolID: school.ID.String()},
	})
	if err != nil {
		return "", err
	}
	if err := s.schools.AttachCustomer(ctx, school.ID, customer.ID); err != nil {
		return "", err
	}
	return customer.ID, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
