package service

import (
	"context"
	"regexp"
	"strings"

	"github.com/smallbiznis/schoolbilling/internal/clock"
	"github.com/smallbiznis/schoolbilling/internal/feature/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var codePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{1,63}$`)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("feature.service"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Get(ctx context.Context, code string) (*domain.Feature, error) {
	code = normalizeCode(code)
	if code == "" {
		return nil, domain.ErrInvalidCode
	}
	item, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

func (s *Service) List(ctx context.Context, activeOnly bool) ([]domain.Response, error) {
	items, err := s.repo.List(ctx, s.db, activeOnly)
	if err != nil {
		return nil, err
	}
	resp := make([]domain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, toResponse(&items[i]))
	}
	return resp, nil
}

func (s *Service) Upsert(ctx context.Context, req domain.UpsertRequest) (*domain.Response, error) {
	code := normalizeCode(req.Code)
	if !codePattern.MatchString(code) {
		return nil, domain.ErrInvalidCode
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	if req.DefaultMonthlyPrice < 0 || req.DefaultOneTimePrice < 0 {
		return nil, domain.ErrInvalidPrice
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	now := s.clock.Now()
	record := &domain.Feature{
		Code:                code,
		Name:                name,
		Description:         strings.TrimSpace(req.Description),
		DefaultMonthlyPrice: req.DefaultMonthlyPrice,
		DefaultOneTimePrice: req.DefaultOneTimePrice,
		IsActive:            active,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.repo.Upsert(ctx, s.db, record); err != nil {
		return nil, err
	}

	s.log.Info("feature catalog updated", zap.String("feature_code", code), zap.Bool("active", active))
	resp := toResponse(record)
	return &resp, nil
}

func normalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

func toResponse(f *domain.Feature) domain.Response {
	return domain.Response{
		Code:                f.Code,
		Name:                f.Name,
		Description:         f.Description,
		DefaultMonthlyPrice: f.DefaultMonthlyPrice,
		DefaultOneTimePrice: f.DefaultOneTimePrice,
		Active:              f.IsActive,
		UpdatedAt:           f.UpdatedAt,
	}
}
