package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/schoolbilling/internal/clock"
	"github.com/smallbiznis/schoolbilling/internal/config"
	"github.com/smallbiznis/schoolbilling/internal/school/domain"
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
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	billingCfg *config.BillingConfigHolder
	repo       domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("school.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		billingCfg: p.BillingCfg,
		repo:       p.Repo,
	}
}

// Create registers a school in trial with its owner as the first member.
func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.School, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	if req.OwnerUserID == 0 {
		return nil, domain.ErrInvalidOwner
	}
	email := strings.TrimSpace(req.OwnerEmail)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, domain.ErrInvalidOwner
	}
	if req.BillingDay != nil {
		if err := validateBillingDay(*req.BillingDay); err != nil {
			return nil, err
		}
	}

	now := s.clock.Now()
	trialEnds := now.AddDate(0, 0, s.billingCfg.Get().DefaultTrialDays)
	school := &domain.School{
		ID:                 s.genID.Generate(),
		Name:               name,
		SubscriptionStatus: domain.SubscriptionStatusTrial,
		SubscriptionPlan:   normalizePlan(req.Plan),
		BillingDay:         req.BillingDay,
		TrialEndsAt:        &trialEnds,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	owner := &domain.Member{
		ID:        s.genID.Generate(),
		SchoolID:  school.ID,
		UserID:    req.OwnerUserID,
		Role:      domain.MemberRoleOwner,
		Email:     email,
		Name:      strings.TrimSpace(req.OwnerName),
		CreatedAt: now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, school); err != nil {
			return err
		}
		return s.repo.InsertMember(ctx, tx, owner)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("school created",
		zap.String("school_id", school.ID.String()),
		zap.Time("trial_ends_at", trialEnds),
	)
	return school, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.School, error) {
	school, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if school == nil {
		return nil, domain.ErrNotFound
	}
	return school, nil
}

func (s *Service) Owners(ctx context.Context, id snowflake.ID) ([]domain.Member, error) {
	owners, err := s.repo.ListMembersByRole(ctx, s.db, id, domain.MemberRoleOwner)
	if err != nil {
		return nil, err
	}
	if len(owners) == 0 {
		return nil, domain.ErrNoOwnerContact
	}
	return owners, nil
}

func (s *Service) Member(ctx context.Context, schoolID, userID snowflake.ID) (*domain.Member, error) {
	member, err := s.repo.FindMember(ctx, s.db, schoolID, userID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, domain.ErrNotFound
	}
	return member, nil
}

func (s *Service) SetBillingDay(ctx context.Context, id snowflake.ID, day int) (*domain.School, error) {
	if err := validateBillingDay(day); err != nil {
		return nil, err
	}
	rows, err := s.repo.SetBillingDay(ctx, s.db, id, day, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, domain.ErrNotFound
	}
	return s.Get(ctx, id)
}

func (s *Service) AttachCustomer(ctx context.Context, id snowflake.ID, customerID string) error {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.ErrInvalidReference
	}
	return s.expectRow(s.repo.SetStripeCustomer(ctx, s.db, id, customerID, s.clock.Now()))
}

// AttachSubscription records the processor subscription id without touching
// the status. Activation happens when the payment is recorded.
func (s *Service) AttachSubscription(ctx context.Context, id snowflake.ID, subscriptionID string) error {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return domain.ErrInvalidReference
	}
	return s.expectRow(s.repo.SetStripeSubscription(ctx, s.db, id, subscriptionID, s.clock.Now()))
}

func (s *Service) AttachConnectedAccount(ctx context.Context, id snowflake.ID, accountID string) error {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return domain.ErrInvalidReference
	}
	return s.expectRow(s.repo.SetConnectedAccount(ctx, s.db, id, accountID, s.clock.Now()))
}

// ApplyProcessorStatus mirrors customer.subscription.* events onto the ledger.
func (s *Service) ApplyProcessorStatus(ctx context.Context, update domain.ProcessorStatusUpdate) (*domain.School, error) {
	status, ok := MapProcessorStatus(update.ProcessorStatus)
	if !ok {
		return nil, domain.ErrInvalidStatus
	}

	school, err := s.resolveForProcessor(ctx, update)
	if err != nil {
		return nil, err
	}

	change := domain.SubscriptionUpdate{
		Status:           &status,
		CurrentPeriodEnd: update.CurrentPeriodEnd,
		Plan:             normalizePlan(update.Plan),
	}
	if subID := strings.TrimSpace(update.StripeSubscriptionID); subID != "" {
		change.StripeSubscriptionID = &subID
	}
	if _, err := s.repo.UpdateSubscription(ctx, s.db, school.ID, change, s.clock.Now()); err != nil {
		return nil, err
	}

	s.log.Info("subscription status mirrored from processor",
		zap.String("school_id", school.ID.String()),
		zap.String("processor_status", update.ProcessorStatus),
		zap.String("status", string(status)),
	)
	return s.Get(ctx, school.ID)
}

func (s *Service) resolveForProcessor(ctx context.Context, update domain.ProcessorStatusUpdate) (*domain.School, error) {
	if update.SchoolID != nil && *update.SchoolID != 0 {
		return s.Get(ctx, *update.SchoolID)
	}
	if subID := strings.TrimSpace(update.StripeSubscriptionID); subID != "" {
		school, err := s.repo.FindByStripeSubscription(ctx, s.db, subID)
		if err != nil {
			return nil, err
		}
		if school != nil {
			return school, nil
		}
	}
	if customerID := strings.TrimSpace(update.StripeCustomerID); customerID != "" {
		school, err := s.repo.FindByStripeCustomer(ctx, s.db, customerID)
		if err != nil {
			return nil, err
		}
		if school != nil {
			return school, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Service) ListForBillingScan(ctx context.Context) ([]domain.School, error) {
	return s.repo.ListForBillingScan(ctx, s.db, s.billingCfg.Get().StandardPlanCode)
}

// ExpireTrials moves schools whose trial window has passed to past_due and
// returns the ones this call transitioned.
func (s *Service) ExpireTrials(ctx context.Context) ([]domain.School, error) {
	now := s.clock.Now()
	candidates, err := s.repo.ListExpiredTrials(ctx, s.db, now)
	if err != nil {
		return nil, err
	}

	expired := make([]domain.School, 0, len(candidates))
	var errs []error
	for _, school := range candidates {
		changed, err := s.repo.ExpireTrial(ctx, s.db, school.ID, now)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if changed {
			school.SubscriptionStatus = domain.SubscriptionStatusPastDue
			expired = append(expired, school)
		}
	}
	return expired, errors.Join(errs...)
}

func (s *Service) expectRow(rows int64, err error) error {
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MapProcessorStatus folds Stripe subscription states onto the ledger's four states.
func MapProcessorStatus(raw string) (domain.SubscriptionStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "active":
		return domain.SubscriptionStatusActive, true
	case "trialing":
		return domain.SubscriptionStatusTrial, true
	case "past_due", "unpaid", "incomplete", "paused":
		return domain.SubscriptionStatusPastDue, true
	case "canceled", "incomplete_expired":
		return domain.SubscriptionStatusCanceled, true
	}
	return "", false
}

func validateBillingDay(day int) error {
	if day < 1 || day > domain.MaxBillingDay {
		return domain.ErrInvalidBillingDay
	}
	return nil
}

func normalizePlan(plan *string) *string {
	if plan == nil {
		return nil
	}
	value := strings.ToLower(strings.TrimSpace(*plan))
	if value == "" {
		return nil
	}
	return &value
}

