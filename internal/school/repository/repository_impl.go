package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/schoolbilling/internal/school/domain"
	"gorm.io/gorm"
)

const schoolColumns = `id, name, subscription_status, subscription_plan, billing_day, trial_ends_at,
	current_period_end, stripe_customer_id, stripe_subscription_id, stripe_connected_account_id,
	created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, s *domain.School) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO schools (`+schoolColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID,
		s.Name,
		s.SubscriptionStatus,
		s.SubscriptionPlan,
		s.BillingDay,
		s.TrialEndsAt,
		s.CurrentPeriodEnd,
		s.StripeCustomerID,
		s.StripeSubscriptionID,
		s.StripeConnectedAccountID,
		s.CreatedAt,
		s.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.School, error) {
	return r.findOne(ctx, db, `SELECT `+schoolColumns+` FROM schools WHERE id = ?`, id)
}

func (r *repo) FindByStripeCustomer(ctx context.Context, db *gorm.DB, customerID string) (*domain.School, error) {
	return r.findOne(ctx, db, `SELECT `+schoolColumns+` FROM schools WHERE stripe_customer_id = ?`, customerID)
}

func (r *repo) FindByStripeSubscription(ctx context.Context, db *gorm.DB, subscriptionID string) (*domain.School, error) {
	return r.findOne(ctx, db, `SELECT `+schoolColumns+` FROM schools WHERE stripe_subscription_id = ?`, subscriptionID)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.School, error) {
	var s domain.School
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&s).Error; err != nil {
		return nil, err
	}
	if s.ID == 0 {
		return nil, nil
	}
	return &s, nil
}

func (r *repo) ListForBillingScan(ctx context.Context, db *gorm.DB, plan string) ([]domain.School, error) {
	var items []domain.School
	err := db.WithContext(ctx).Raw(
		`SELECT `+schoolColumns+`
		 FROM schools
		 WHERE subscription_plan = ? AND billing_day IS NOT NULL
		 ORDER BY id ASC`,
		plan,
	).Scan(&items).Error
	return items, err
}

func (r *repo) ListExpiredTrials(ctx context.Context, db *gorm.DB, now time.Time) ([]domain.School, error) {
	var items []domain.School
	err := db.WithContext(ctx).Raw(
		`SELECT `+schoolColumns+`
		 FROM schools
		 WHERE subscription_status = ? AND trial_ends_at IS NOT NULL AND trial_ends_at < ?
		 ORDER BY id ASC`,
		domain.SubscriptionStatusTrial,
		now,
	).Scan(&items).Error
	return items, err
}

func (r *repo) UpdateSubscription(ctx context.Context, db *gorm.DB, id snowflake.ID, update domain.SubscriptionUpdate, now time.Time) (int64, error) {
	fields := map[string]any{"updated_at": now}
	if update.Status != nil {
		fields["subscription_status"] = string(*update.Status)
	}
	if update.Plan != nil {
		fields["subscription_plan"] = *update.Plan
	}
	if update.CurrentPeriodEnd != nil {
		fields["current_period_end"] = *update.CurrentPeriodEnd
	}
	if update.StripeSubscriptionID != nil {
		fields["stripe_subscription_id"] = *update.StripeSubscriptionID
	}
	res := db.WithContext(ctx).Table("schools").Where("id = ?", id).Updates(fields)
	return res.RowsAffected, res.Error
}

func (r *repo) ExpireTrial(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE schools SET subscription_status = ?, updated_at = ?
		 WHERE id = ? AND subscription_status = ? AND trial_ends_at < ?`,
		domain.SubscriptionStatusPastDue,
		now,
		id,
		domain.SubscriptionStatusTrial,
		now,
	)
	return res.RowsAffected > 0, res.Error
}

func (r *repo) SetBillingDay(ctx context.Context, db *gorm.DB, id snowflake.ID, day int, now time.Time) (int64, error) {
	return r.setColumn(ctx, db, id, "billing_day", day, now)
}

func (r *repo) SetStripeCustomer(ctx context.Context, db *gorm.DB, id snowflake.ID, customerID string, now time.Time) (int64, error) {
	return r.setColumn(ctx, db, id, "stripe_customer_id", customerID, now)
}

func (r *repo) SetStripeSubscription(ctx context.Context, db *gorm.DB, id snowflake.ID, subscriptionID string, now time.Time) (int64, error) {
	return r.setColumn(ctx, db, id, "stripe_subscription_id", subscriptionID, now)
}

func (r *repo) SetConnectedAccount(ctx context.Context, db *gorm.DB, id snowflake.ID, accountID string, now time.Time) (int64, error) {
	return r.setColumn(ctx, db, id, "stripe_connected_account_id", accountID, now)
}

func (r *repo) setColumn(ctx context.Context, db *gorm.DB, id snowflake.ID, column string, value any, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Table("schools").Where("id = ?", id).Updates(map[string]any{
		column:       value,
		"updated_at": now,
	})
	return res.RowsAffected, res.Error
}

func (r *repo) InsertMember(ctx context.Context, db *gorm.DB, m *domain.Member) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO school_members (id, school_id, user_id, role, email, name, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID,
		m.SchoolID,
		m.UserID,
		m.Role,
		m.Email,
		m.Name,
		m.CreatedAt,
	).Error
}

func (r *repo) FindMember(ctx context.Context, db *gorm.DB, schoolID, userID snowflake.ID) (*domain.Member, error) {
	var m domain.Member
	err := db.WithContext(ctx).Raw(
		`SELECT id, school_id, user_id, role, email, name, created_at
		 FROM school_members WHERE school_id = ? AND user_id = ?`,
		schoolID,
		userID,
	).Scan(&m).Error
	if err != nil {
		return nil, err
	}
	if m.ID == 0 {
		return nil, nil
	}
	return &m, nil
}

func (r *repo) ListMembersByRole(ctx context.Context, db *gorm.DB, schoolID snowflake.ID, role domain.MemberRole) ([]domain.Member, error) {
	var items []domain.Member
	err := db.WithContext(ctx).Raw(
		`SELECT id, school_id, user_id, role, email, name, created_at
		 FROM school_members WHERE school_id = ? AND role = ?
		 ORDER BY created_at ASC, id ASC`,
		schoolID,
		role,
	).Scan(&items).Error
	return items, err
}

func (r *repo) IsPlatformAdmin(ctx context.Context, db *gorm.DB, userID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM platform_admins WHERE user_id = ?`,
		userID,
	).Scan(&count).Error
	return count > 0, err
}
