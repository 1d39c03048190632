package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Upsert writes the row keyed by (school_id, feature_code); on conflict the
	// existing row keeps its id and created_at and every other column is replaced.
	Upsert(ctx context.Context, db *gorm.DB, row *FeatureSubscription) error
	InsertIfAbsent(ctx context.Context, db *gorm.DB, row *FeatureSubscription) (bool, error)
	Find(ctx context.Context, db *gorm.DB, schoolID snowflake.ID, featureCode string) (*FeatureSubscription, error)
	ListBySchool(ctx context.Context, db *gorm.DB, schoolID snowflake.ID) ([]FeatureSubscription, error)
	ListExpiredTrials(ctx context.Context, db *gorm.DB, now time.Time) ([]FeatureSubscription, error)

	UpdateTerms(ctx context.Context, db *gorm.DB, row *FeatureSubscription) (int64, error)
	SetEnabled(ctx context.Context, db *gorm.DB, schoolID snowflake.ID, featureCode string, enabled bool, actor *snowflake.ID, now time.Time) (int64, error)
	Cancel(ctx context.Context, db *gorm.DB, schoolID snowflake.ID, featureCode string, now time.Time) (int64, error)
	Activate(ctx context.Context, db *gorm.DB, schoolID snowflake.ID, featureCode string, nextBillingDate *time.Time, now time.Time) (int64, error)
	ExpireTrial(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
}
