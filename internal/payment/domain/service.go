package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/schoolbilling/pkg/db/pagination"
)

// Service is the PaymentReconciler.
type Service interface {
	RecordPayment(ctx context.Context, req RecordPaymentRequest) (*PlatformPayment, error)
	MarkFeaturePaid(ctx context.Context, req MarkPaidRequest) (*PlatformPayment, error)
	ListPayments(ctx context.Context, schoolID snowflake.ID, page pagination.Pagination) (*ListResult, error)
}

// WebhookService ingests signed processor webhooks.
type WebhookService interface {
	Ingest(ctx context.Context, payload []byte, signature string) (WebhookOutcome, error)
}

type RecordPaymentRequest struct {
	Target            Target
	Amount            int64
	Currency          string
	PaymentType       PaymentType
	Status            Status
	ProviderPaymentID *string
	PeriodStart       *time.Time
	PeriodEnd         *time.Time
	RecordedBy        *snowflake.ID
	Note              *string
}

type MarkPaidRequest struct {
	SchoolID    snowflake.ID  `json:"school_id"`
	FeatureCode *string       `json:"feature_code,omitempty"`
	Amount      *int64        `json:"amount,omitempty"`
	Note        *string       `json:"note,omitempty"`
	RecordedBy  *snowflake.ID `json:"-"`
}

type ListResult struct {
	Payments []PlatformPayment   `json:"payments"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

type WebhookOutcome string

const (
	WebhookProcessed WebhookOutcome = "processed"
	WebhookDuplicate WebhookOutcome = "duplicate"
	WebhookIgnored   WebhookOutcome = "ignored"
	WebhookFailed    WebhookOutcome = "failed"
)

var (
	ErrNotFound           = errors.New("payment_not_found")
	ErrInvalidTarget      = errors.New("invalid_payment_target")
	ErrInvalidAmount      = errors.New("invalid_payment_amount")
	ErrAmountRequired     = errors.New("payment_amount_required")
	ErrInvalidStatus      = errors.New("invalid_payment_status")
	ErrInvalidPaymentType = errors.New("invalid_payment_type")
	ErrInvalidEvent       = errors.New("invalid_webhook_event")
	// ErrNotApplied reports a processor payment that was stored but whose
	// target could not be advanced. The row keeps applied_at empty so a
	// redelivery of the same provider payment id applies it.
	ErrNotApplied = errors.New("payment_not_applied")
	// ErrWebhookRetry asks the processor to redeliver the event.
	ErrWebhookRetry = errors.New("webhook_retry")
)
