package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Service is the subscription ledger for schools.
type Service interface {
	Create(ctx context.Context, req CreateRequest) (*School, error)
	Get(ctx context.Context, id snowflake.ID) (*School, error)
	Owners(ctx context.Context, id snowflake.ID) ([]Member, error)
	Member(ctx context.Context, schoolID, userID snowflake.ID) (*Member, error)

	SetBillingDay(ctx context.Context, id snowflake.ID, day int) (*School, error)
	AttachCustomer(ctx context.Context, id snowflake.ID, customerID string) error
	AttachSubscription(ctx context.Context, id snowflake.ID, subscriptionID string) error
	AttachConnectedAccount(ctx context.Context, id snowflake.ID, accountID string) error
	ApplyProcessorStatus(ctx context.Context, update ProcessorStatusUpdate) (*School, error)

	ListForBillingScan(ctx context.Context) ([]School, error)
	ExpireTrials(ctx context.Context) ([]School, error)
}

type CreateRequest struct {
	Name        string       `json:"name"`
	OwnerUserID snowflake.ID `json:"owner_user_id"`
	OwnerEmail  string       `json:"owner_email"`
	OwnerName   string       `json:"owner_name"`
	Plan        *string      `json:"plan,omitempty"`
	BillingDay  *int         `json:"billing_day,omitempty"`
}

// ProcessorStatusUpdate mirrors a processor-side subscription change onto the ledger.
type ProcessorStatusUpdate struct {
	StripeSubscriptionID string
	StripeCustomerID     string
	SchoolID             *snowflake.ID
	ProcessorStatus      string
	CurrentPeriodEnd     *time.Time
	Plan                 *string
}

var (
	ErrNotFound          = errors.New("school_not_found")
	ErrInvalidName       = errors.New("invalid_school_name")
	ErrInvalidBillingDay = errors.New("invalid_billing_day")
	ErrInvalidOwner      = errors.New("invalid_owner")
	ErrInvalidStatus     = errors.New("invalid_subscription_status")
	ErrNoOwnerContact    = errors.New("no_owner_contact")
	ErrInvalidReference  = errors.New("invalid_processor_reference")
)

// MaxBillingDay keeps new billing days valid in every month.
const MaxBillingDay = 28
