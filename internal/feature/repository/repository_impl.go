package repository

import (
	"context"

	"github.com/smallbiznis/schoolbilling/internal/feature/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Feature, error) {
	var f domain.Feature
	err := db.WithContext(ctx).Raw(
		`SELECT code, name, description, default_monthly_price, default_one_time_price, is_active, created_at, updated_at
		 FROM features WHERE code = ?`,
		code,
	).Scan(&f).Error
	if err != nil {
		return nil, err
	}
	if f.Code == "" {
		return nil, nil
	}
	return &f, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, activeOnly bool) ([]domain.Feature, error) {
	var items []domain.Feature
	stmt := db.WithContext(ctx).Model(&domain.Feature{})
	if activeOnly {
		stmt = stmt.Where("is_active = ?", true)
	}
	if err := stmt.Order("code ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, f *domain.Feature) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO features (
			code, name, description, default_monthly_price, default_one_time_price, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (code) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			default_monthly_price = excluded.default_monthly_price,
			default_one_time_price = excluded.default_one_time_price,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		f.Code,
		f.Name,
		f.Description,
		f.DefaultMonthlyPrice,
		f.DefaultOneTimePrice,
		f.IsActive,
		f.CreatedAt,
		f.UpdatedAt,
	).Error
}
