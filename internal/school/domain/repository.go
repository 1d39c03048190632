package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// SubscriptionUpdate carries the ledger fields to change; nil fields are left untouched.
type SubscriptionUpdate struct {
	Status               *SubscriptionStatus
	Plan                 *string
	CurrentPeriodEnd     *time.Time
	StripeSubscriptionID *string
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, school *School) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*School, error)
	FindByStripeCustomer(ctx context.Context, db *gorm.DB, customerID string) (*School, error)
	FindByStripeSubscription(ctx context.Context, db *gorm.DB, subscriptionID string) (*School, error)
	ListForBillingScan(ctx context.Context, db *gorm.DB, plan string) ([]School, error)
	ListExpiredTrials(ctx context.Context, db *gorm.DB, now time.Time) ([]School, error)

	UpdateSubscription(ctx context.Context, db *gorm.DB, id snowflake.ID, update SubscriptionUpdate, now time.Time) (int64, error)
	ExpireTrial(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
	SetBillingDay(ctx context.Context, db *gorm.DB, id snowflake.ID, day int, now time.Time) (int64, error)
	SetStripeCustomer(ctx context.Context, db *gorm.DB, id snowflake.ID, customerID string, now time.Time) (int64, error)
	SetStripeSubscription(ctx context.Context, db *gorm.DB, id snowflake.ID, subscriptionID string, now time.Time) (int64, error)
	SetConnectedAccount(ctx context.Context, db *gorm.DB, id snowflake.ID, accountID string, now time.Time) (int64, error)

	InsertMember(ctx context.Context, db *gorm.DB, member *Member) error
	FindMember(ctx context.Context, db *gorm.DB, schoolID, userID snowflake.ID) (*Member, error)
	ListMembersByRole(ctx context.Context, db *gorm.DB, schoolID snowflake.ID, role MemberRole) ([]Member, error)
	IsPlatformAdmin(ctx context.Context, db *gorm.DB, userID snowflake.ID) (bool, error)
}
