package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/schoolbilling/internal/clock"
	"github.com/smallbiznis/schoolbilling/internal/config"
	"github.com/smallbiznis/schoolbilling/internal/entitlement/domain"
	featuredomain "github.com/smallbiznis/schoolbilling/internal/feature/domain"
	"github.com/smallbiznis/schoolbilling/internal/observability/metrics"
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
	Metrics    *metrics.Metrics `optional:"true"`
	Repo       domain.Repository
	Features   featuredomain.Service
	Schools    schooldomain.Service
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	billingCfg *config.BillingConfigHolder
	metrics    *metrics.Metrics
	repo       domain.Repository
	features   featuredomain.Service
	schools    schooldomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("entitlement.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		billingCfg: p.BillingCfg,
		metrics:    p.Metrics,
		repo:       p.Repo,
		features:   p.Features,
		schools:    p.Schools,
	}
}

// Enable creates or fully replaces the entitlement for the pair.
func (s *Service) Enable(ctx context.Context, req domain.EnableRequest) (*domain.Entitlement, error) {
	model, err := domain.ParsePricingModel(req.PricingModel)
	if err != nil {
		return nil, err
	}
	feature, err := s.resolve(ctx, req.SchoolID, req.FeatureCode)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	terms, err := domain.DeriveTerms(domain.TermsInput{
		PricingModel:        model,
		TrialDays:           s.trialDays(req.TrialDays),
		PostTrialMonthlyFee: req.PostTrialMonthlyFee,
	}, catalogPrices(feature), now)
	if err != nil {
		return nil, err
	}

	ent := domain.Entitlement{
		ID:                  s.genID.Generate(),
		SchoolID:            req.SchoolID,
		FeatureCode:         feature.Code,
		Enabled:             true,
		Status:              terms.Status,
		PricingModel:        terms.PricingModel,
		MonthlyFee:          terms.MonthlyFee,
		OneTimeFee:          terms.OneTimeFee,
		PostTrialMonthlyFee: terms.PostTrialMonthlyFee,
		EnabledAt:           &now,
		EnabledBy:           req.EnabledBy,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	row := ent.Row()
	if err := s.repo.Upsert(ctx, s.db, &row); err != nil {
		return nil, err
	}

	s.metrics.RecordEntitlementWrite(ctx, "enable", string(terms.PricingModel))
	s.log.Info("feature enabled",
		zap.String("school_id", req.SchoolID.String()),
		zap.String("feature_code", feature.Code),
		zap.String("pricing_model", string(terms.PricingModel)),
		zap.String("status", string(terms.Status.Code())),
	)
	return s.Get(ctx, req.SchoolID, feature.Code)
}

// Disable cancels the entitlement and keeps the row with its fee terms.
func (s *Service) Disable(ctx context.Context, schoolID snowflake.ID, featureCode string) (*domain.Entitlement, error) {
	code := normalizeCode(featureCode)
	if code == "" {
		return nil, domain.ErrInvalidFeature
	}
	rows, err := s.repo.Cancel(ctx, s.db, schoolID, code, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, domain.ErrNotFound
	}

	s.metrics.RecordEntitlementWrite(ctx, "disable", "")
	s.log.Info("feature disabled",
		zap.String("school_id", schoolID.String()),
		zap.String("feature_code", code),
	)
	return s.Get(ctx, schoolID, code)
}

// Toggle flips enablement only; status and pricing are left alone.
func (s *Service) Toggle(ctx context.Context, req domain.ToggleRequest) (*domain.Entitlement, error) {
	now := s.clock.Now()

	if !req.Enable {
		code := normalizeCode(req.FeatureCode)
		if code == "" {
			return nil, domain.ErrInvalidFeature
		}
		rows, err := s.repo.SetEnabled(ctx, s.db, req.SchoolID, code, false, req.Actor, now)
		if err != nil {
			return nil, err
		}
		if rows == 0 {
			return nil, domain.ErrNotFound
		}
		s.metrics.RecordEntitlementWrite(ctx, "toggle_off", "")
		return s.Get(ctx, req.SchoolID, code)
	}

	feature, err := s.resolve(ctx, req.SchoolID, req.FeatureCode)
	if err != nil {
		return nil, err
	}

	fresh := domain.Entitlement{
		ID:           s.genID.Generate(),
		SchoolID:     req.SchoolID,
		FeatureCode:  feature.Code,
		Enabled:      true,
		Status:       domain.Active{},
		PricingModel: domain.PricingModelFree,
		MonthlyFee:   new(int64),
		EnabledAt:    &now,
		EnabledBy:    req.Actor,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	row := fresh.Row()
	created, err := s.repo.InsertIfAbsent(ctx, s.db, &row)
	if err != nil {
		return nil, err
	}
	if !created {
		if _, err := s.repo.SetEnabled(ctx, s.db, req.SchoolID, feature.Code, true, req.Actor, now); err != nil {
			return nil, err
		}
	}

	s.metrics.RecordEntitlementWrite(ctx, "toggle_on", "")
	s.log.Info("feature toggled on",
		zap.String("school_id", req.SchoolID.String()),
		zap.String("feature_code", feature.Code),
		zap.Bool("created", created),
	)
	return s.Get(ctx, req.SchoolID, feature.Code)
}

// UpdatePricing re-derives terms on an existing entitlement.
func (s *Service) UpdatePricing(ctx context.Context, req domain.UpdatePricingRequest) (*domain.Entitlement, error) {
	model, err := domain.ParsePricingModel(req.PricingModel)
	if err != nil {
		return nil, err
	}
	feature, err := s.resolve(ctx, req.SchoolID, req.FeatureCode)
	if err != nil {
		return nil, err
	}

	current, err := s.Get(ctx, req.SchoolID, feature.Code)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNotEnabled
	}
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	terms, err := domain.DeriveTerms(domain.TermsInput{
		PricingModel:        model,
		TrialDays:           s.trialDays(req.TrialDays),
		PostTrialMonthlyFee: req.PostTrialMonthlyFee,
		MonthlyFee:          req.MonthlyFee,
		OneTimeFee:          req.OneTimeFee,
	}, catalogPrices(feature), now)
	if err != nil {
		return nil, err
	}

	updated := *current
	updated.PricingModel = terms.PricingModel
	updated.Status = terms.Status
	updated.MonthlyFee = terms.MonthlyFee
	updated.OneTimeFee = terms.OneTimeFee
	updated.PostTrialMonthlyFee = terms.PostTrialMonthlyFee
	updated.NextBillingDate = nil
	updated.UpdatedAt = now
	// A disabled entitlement takes the new terms but stays canceled.
	if !current.Enabled {
		updated.Status = domain.Canceled{}
	}

	row := updated.Row()
	if _, err := s.repo.UpdateTerms(ctx, s.db, &row); err != nil {
		return nil, err
	}

	s.metrics.RecordEntitlementWrite(ctx, "update_pricing", string(terms.PricingModel))
	s.log.Info("feature pricing updated",
		zap.String("school_id", req.SchoolID.String()),
		zap.String("feature_code", feature.Code),
		zap.String("pricing_model", string(terms.PricingModel)),
	)
	return &updated, nil
}

func (s *Service) Get(ctx context.Context, schoolID snowflake.ID, featureCode string) (*domain.Entitlement, error) {
	code := normalizeCode(featureCode)
	if code == "" {
		return nil, domain.ErrInvalidFeature
	}
	row, err := s.repo.Find(ctx, s.db, schoolID, code)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, domain.ErrNotFound
	}
	ent, err := domain.FromRow(*row)
	if err != nil {
		return nil, err
	}
	return &ent, nil
}

func (s *Service) ListBySchool(ctx context.Context, schoolID snowflake.ID) ([]domain.Entitlement, error) {
	if _, err := s.schools.Get(ctx, schoolID); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListBySchool(ctx, s.db, schoolID)
	if err != nil {
		return nil, err
	}
	items := make([]domain.Entitlement, 0, len(rows))
	for _, row := range rows {
		ent, err := domain.FromRow(row)
		if err != nil {
			s.log.Warn("skipping unreadable entitlement",
				zap.String("entitlement_id", row.ID.String()),
				zap.Error(err),
			)
			continue
		}
		items = append(items, ent)
	}
	return items, nil
}

// IsActive treats a trial past its end date as inactive even before ExpireTrials runs.
func (s *Service) IsActive(ctx context.Context, schoolID snowflake.ID, featureCode string) (bool, error) {
	ent, err := s.Get(ctx, schoolID, featureCode)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return ent.ActiveAt(s.clock.Now()), nil
}

// ExpireTrials moves lapsed trials to pending_payment and returns how many moved.
func (s *Service) ExpireTrials(ctx context.Context) (int, error) {
	now := s.clock.Now()
	rows, err := s.repo.ListExpiredTrials(ctx, s.db, now)
	if err != nil {
		return 0, err
	}

	expired := 0
	var errs []error
	for _, row := range rows {
		changed, err := s.repo.ExpireTrial(ctx, s.db, row.ID, now)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if changed {
			expired++
			s.log.Info("feature trial expired",
				zap.String("school_id", row.SchoolID.String()),
				zap.String("feature_code", row.FeatureCode),
			)
		}
	}
	if expired > 0 {
		s.metrics.RecordEntitlementWrite(ctx, "expire_trial", string(domain.PricingModelTrial))
	}
	return expired, errors.Join(errs...)
}

// resolve checks the school and the catalog entry exist.
func (s *Service) resolve(ctx context.Context, schoolID snowflake.ID, featureCode string) (*featuredomain.Feature, error) {
	if schoolID == 0 {
		return nil, domain.ErrInvalidSchool
	}
	code := normalizeCode(featureCode)
	if code == "" {
		return nil, domain.ErrInvalidFeature
	}
	if _, err := s.schools.Get(ctx, schoolID); err != nil {
		return nil, err
	}
	return s.features.Get(ctx, code)
}

func (s *Service) trialDays(requested *int) *int {
	if requested != nil {
		return requested
	}
	days := s.billingCfg.Get().FeatureTrialDays
	return &days
}

func catalogPrices(f *featuredomain.Feature) domain.CatalogPrices {
	return domain.CatalogPrices{Monthly: f.DefaultMonthlyPrice, OneTime: f.DefaultOneTimePrice}
}

func normalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}
