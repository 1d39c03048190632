package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/schoolbilling/internal/clock"
	"github.com/smallbiznis/schoolbilling/internal/config"
	"github.com/smallbiznis/schoolbilling/internal/customcharge/domain"
	"github.com/smallbiznis/schoolbilling/internal/platformfee"
	"github.com/smallbiznis/schoolbilling/internal/processor"
	schooldomain "github.com/smallbiznis/schoolbilling/internal/school/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	BillingCfg *config.BillingConfigHolder
	Repo       domain.Repository
	Schools    schooldomain.Service
	Fees       *platformfee.Calculator
	Processor  processor.Processor
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	billingCfg *config.BillingConfigHolder
	repo       domain.Repository
	schools    schooldomain.Service
	fees       *platformfee.Calculator
	processor  processor.Processor
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("customcharge.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		billingCfg: p.BillingCfg,
		repo:       p.Repo,
		schools:    p.Schools,
		fees:       p.Fees,
		processor:  p.Processor,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.CustomCharge, error) {
	if req.FamilyID == 0 {
		return nil, domain.ErrInvalidFamily
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		return nil, domain.ErrInvalidDescription
	}
	if req.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if _, err := s.schools.Get(ctx, req.SchoolID); err != nil {
		return nil, err
	}

	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.billingCfg.Get().Currency
	}

	now := s.clock.Now()
	charge := &domain.CustomCharge{
		ID:          s.genID.Generate(),
		SchoolID:    req.SchoolID,
		FamilyID:    req.FamilyID,
		Description: description,
		Amount:      req.Amount,
		Currency:    currency,
		Status:      domain.StatusUnpaid,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Insert(ctx, s.db, charge); err != nil {
		return nil, err
	}

	s.log.Info("custom charge created",
		zap.String("school_id", req.SchoolID.String()),
		zap.String("charge_id", charge.ID.String()),
		zap.Int64("amount", charge.Amount),
	)
	return charge, nil
}

func (s *Service) Get(ctx context.Context, schoolID, id snowflake.ID) (*domain.CustomCharge, error) {
	charge, err := s.repo.FindByID(ctx, s.db, schoolID, id)
	if err != nil {
		return nil, err
	}
	if charge == nil {
		return nil, domain.ErrNotFound
	}
	return charge, nil
}

func (s *Service) ListByFamily(ctx context.Context, schoolID, familyID snowflake.ID) ([]domain.CustomCharge, error) {
	if familyID == 0 {
		return nil, domain.ErrInvalidFamily
	}
	return s.repo.ListByFamily(ctx, s.db, schoolID, familyID)
}

// Checkout opens a processor checkout on the school's connected account. The
// platform keeps its fee as the application fee.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutResult, error) {
	school, err := s.schools.Get(ctx, req.SchoolID)
	if err != nil {
		return nil, err
	}
	if school.StripeConnectedAccountID == nil || *school.StripeConnectedAccountID == "" {
		return nil, domain.ErrNoConnectedAccount
	}

	charge, err := s.Get(ctx, req.SchoolID, req.ChargeID)
	if err != nil {
		return nil, err
	}
	if charge.FamilyID != req.FamilyID {
		return nil, domain.ErrNotFound
	}
	if charge.Status != domain.StatusUnpaid {
		return nil, domain.ErrAlreadyPaid
	}

	fee := s.fees.ComputeFee(charge.Amount, school.SubscriptionPlan)
	session, err := s.processor.CreateCheckoutSession(ctx, processor.CheckoutRequest{
		Mode:        processor.CheckoutModePayment,
		Amount:      charge.Amount,
		Currency:    charge.Currency,
		ProductName: charge.Description,
		SuccessURL:  req.SuccessURL,
		CancelURL:   req.CancelURL,
		Metadata: map[string]string{
			processor.MetadataType:     processor.PaymentKindCustomCharge,
			processor.MetadataSchoolID: charge.SchoolID.String(),
			processor.MetadataFamilyID: charge.FamilyID.String(),
			processor.MetadataChargeID: charge.ID.String(),
		},
		ConnectedAccountID: *school.StripeConnectedAccountID,
		ApplicationFee:     fee.PlatformFee,
	})
	if err != nil {
		s.log.Warn("custom charge checkout failed",
			zap.String("school_id", req.SchoolID.String()),
			zap.String("charge_id", charge.ID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	return &domain.CheckoutResult{SessionID: session.ID, URL: session.URL, Fee: fee}, nil
}
