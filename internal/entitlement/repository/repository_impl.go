package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/schoolbilling/internal/entitlement/domain"
	"gorm.io/gorm"
)

const columns = `id, school_id, feature_code, is_enabled, status, pricing_model, monthly_fee,
	one_time_fee, post_trial_monthly_fee, trial_end_date, next_billing_date, enabled_at,
	enabled_by, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, row *domain.FeatureSubscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO feature_subscriptions (`+columns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (school_id, feature_code) DO UPDATE SET
			is_enabled = excluded.is_enabled,
			status = excluded.status,
			pricing_model = excluded.pricing_model,
			monthly_fee = excluded.monthly_fee,
			one_time_fee = excluded.one_time_fee,
			post_trial_monthly_fee = excluded.post_trial_monthly_fee,
			trial_end_date = excluded.trial_end_date,
			next_billing_date = excluded.next_billing_date,
			enabled_at = excluded.enabled_at,
			enabled_by = excluded.enabled_by,
			updated_at = excluded.updated_at`,
		values(row)...,
	).Error
}

func (r *repo) InsertIfAbsent(ctx context.Context, db *gorm.DB, row *domain.FeatureSubscription) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO feature_subscriptions (`+columns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (school_id, feature_code) DO NOTHING`,
		values(row)...,
	)
	return res.RowsAffected > 0, res.Error
}

func values(row *domain.FeatureSubscription) []any {
	return []any{
		row.ID,
		row.SchoolID,
		row.FeatureCode,
		row.IsEnabled,
		row.Status,
		row.PricingModel,
		row.MonthlyFee,
		row.OneTimeFee,
		row.PostTrialMonthlyFee,
		row.TrialEndDate,
		row.NextBillingDate,
		row.EnabledAt,
		row.EnabledBy,
		row.CreatedAt,
		row.UpdatedAt,
	}
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, schoolID snowflake.ID, featureCode string) (*domain.FeatureSubscription, error) {
	var row domain.FeatureSubscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+columns+`
		 FROM feature_subscriptions
		 WHERE school_id = ? AND feature_code = ?`,
		schoolID,
		featureCode,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}

func (r *repo) ListBySchool(ctx context.Context, db *gorm.DB, schoolID snowflake.ID) ([]domain.FeatureSubscription, error) {
	var items []domain.FeatureSubscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+columns+`
		 FROM feature_subscriptions
		 WHERE school_id = ?
		 ORDER BY feature_code ASC`,
		schoolID,
	).Scan(&items).Error
	return items, err
}

func (r *repo) ListExpiredTrials(ctx context.Context, db *gorm.DB, now time.Time) ([]domain.FeatureSubscription, error) {
	var items []domain.FeatureSubscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+columns+`
		 FROM feature_subscriptions
		 WHERE status = ? AND trial_end_date < ?
		 ORDER BY id ASC`,
		domain.StatusTrial,
		now,
	).Scan(&items).Error
	return items, err
}

func (r *repo) UpdateTerms(ctx context.Context, db *gorm.DB, row *domain.FeatureSubscription) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE feature_subscriptions
		 SET status = ?, pricing_model = ?, monthly_fee = ?, one_time_fee = ?,
			post_trial_monthly_fee = ?, trial_end_date = ?, next_billing_date = ?, updated_at = ?
		 WHERE id = ?`,
		row.Status,
		row.PricingModel,
		row.MonthlyFee,
		row.OneTimeFee,
		row.PostTrialMonthlyFee,
		row.TrialEndDate,
		row.NextBillingDate,
		row.UpdatedAt,
		row.ID,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) SetEnabled(ctx context.Context, db *gorm.DB, schoolID snowflake.ID, featureCode string, enabled bool, actor *snowflake.ID, now time.Time) (int64, error) {
	var enabledAt *time.Time
	if enabled {
		enabledAt = &now
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE feature_subscriptions
		 SET is_enabled = ?, enabled_at = ?, enabled_by = ?, updated_at = ?
		 WHERE school_id = ? AND feature_code = ?`,
		enabled,
		enabledAt,
		actor,
		now,
		schoolID,
		featureCode,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) Cancel(ctx context.Context, db *gorm.DB, schoolID snowflake.ID, featureCode string, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE feature_subscriptions
		 SET is_enabled = ?, status = ?, trial_end_date = NULL, updated_at = ?
		 WHERE school_id = ? AND feature_code = ?`,
		false,
		domain.StatusCanceled,
		now,
		schoolID,
		featureCode,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) Activate(ctx context.Context, db *gorm.DB, schoolID snowflake.ID, featureCode string, nextBillingDate *time.Time, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE feature_subscriptions
		 SET status = ?, trial_end_date = NULL, next_billing_date = COALESCE(?, next_billing_date), updated_at = ?
		 WHERE school_id = ? AND feature_code = ?`,
		domain.StatusActive,
		nextBillingDate,
		now,
		schoolID,
		featureCode,
	)
	return res.RowsAffected, res.Error
}

// ExpireTrial only moves rows still in trial so concurrent runs are harmless.
func (r *repo) ExpireTrial(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE feature_subscriptions
		 SET status = ?, trial_end_date = NULL, updated_at = ?
		 WHERE id = ? AND status = ? AND trial_end_date < ?`,
		domain.StatusPendingPayment,
		now,
		id,
		domain.StatusTrial,
		now,
	)
	return res.RowsAffected > 0, res.Error
}
