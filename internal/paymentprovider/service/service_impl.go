package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/schoolbilling/internal/config"
	"github.com/smallbiznis/schoolbilling/internal/paymentprovider/domain"
	"github.com/smallbiznis/schoolbilling/internal/processor"
	schooldomain "github.com/smallbiznis/schoolbilling/internal/school/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log       *zap.Logger
	Cfg       config.Config
	Schools   schooldomain.Service
	Processor processor.Processor
}

type Service struct {
	log       *zap.Logger
	stripeCfg config.StripeConfig
	schools   schooldomain.Service
	processor processor.Processor
}

func New(p Params) domain.Service {
	return &Service{
		log:       p.Log.Named("paymentprovider.service"),
		stripeCfg: p.Cfg.Stripe,
		schools:   p.Schools,
		processor: p.Processor,
	}
}

// Onboard creates the connected account on first use and returns a fresh
// onboarding link. Links expire, so one is minted on every call.
func (s *Service) Onboard(ctx context.Context, schoolID snowflake.ID) (*domain.OnboardResult, error) {
	school, err := s.schools.Get(ctx, schoolID)
	if err != nil {
		return nil, err
	}

	result := &domain.OnboardResult{}
	if school.StripeConnectedAccountID != nil && *school.StripeConnectedAccountID != "" {
		result.AccountID = *school.StripeConnectedAccountID
	} else {
		owners, err := s.schools.Owners(ctx, schoolID)
		if err != nil {
			return nil, err
		}
		accountID, err := s.processor.CreateConnectedAccount(ctx, processor.ConnectedAccountRequest{
			Email:    owners[0].Email,
			Metadata: map[string]string{processor.MetadataSchoolID: schoolID.String()},
		})
		if err != nil {
			return nil, err
		}
		if err := s.schools.AttachConnectedAccount(ctx, schoolID, accountID); err != nil {
			return nil, err
		}
		s.log.Info("connected account created",
			zap.String("school_id", schoolID.String()),
			zap.String("account_id", accountID),
		)
		result.AccountID = accountID
		result.Created = true
	}

	url, err := s.processor.CreateOnboardingLink(ctx, result.AccountID, s.stripeCfg.ConnectRefreshURL, s.stripeCfg.ConnectReturnURL)
	if err != nil {
		return nil, err
	}
	result.URL = url
	return result, nil
}

func (s *Service) DashboardLink(ctx context.Context, schoolID snowflake.ID) (string, error) {
	accountID, err := s.accountID(ctx, schoolID)
	if err != nil {
		return "", err
	}
	return s.processor.CreateDashboardLink(ctx, accountID)
}

// Status reports Connected=false without an error for schools that have not
// started onboarding.
func (s *Service) Status(ctx context.Context, schoolID snowflake.ID) (*domain.StatusResponse, error) {
	accountID, err := s.accountID(ctx, schoolID)
	if errors.Is(err, domain.ErrNotConnected) {
		return &domain.StatusResponse{}, nil
	}
	if err != nil {
		return nil, err
	}

	status, err := s.processor.GetAccountStatus(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &domain.StatusResponse{
		Connected:        true,
		AccountID:        accountID,
		ChargesEnabled:   status.ChargesEnabled,
		PayoutsEnabled:   status.PayoutsEnabled,
		DetailsSubmitted: status.DetailsSubmitted,
	}, nil
}

func (s *Service) accountID(ctx context.Context, schoolID snowflake.ID) (string, error) {
	school, err := s.schools.Get(ctx, schoolID)
	if err != nil {
		return "", err
	}
	if school.StripeConnectedAccountID == nil || *school.StripeConnectedAccountID == "" {
		return "", domain.ErrNotConnected
	}
	return *school.StripeConnectedAccountID, nil
}
