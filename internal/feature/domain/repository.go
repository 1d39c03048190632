package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*Feature, error)
	List(ctx context.Context, db *gorm.DB, activeOnly bool) ([]Feature, error)
	Upsert(ctx context.Context, db *gorm.DB, feature *Feature) error
}
