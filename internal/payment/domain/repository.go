package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Insert reports false when a row with the same provider payment id exists.
	Insert(ctx context.Context, db *gorm.DB, payment *PlatformPayment) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PlatformPayment, error)
	FindByProviderPaymentID(ctx context.Context, db *gorm.DB, providerPaymentID string) (*PlatformPayment, error)
	ListBySchool(ctx context.Context, db *gorm.DB, schoolID snowflake.ID, beforeID *snowflake.ID, limit int) ([]PlatformPayment, error)
	// Transition moves a pending row to a terminal status exactly once.
	Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status, paidAt *time.Time, now time.Time) (bool, error)
	MarkApplied(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)

	InsertEvent(ctx context.Context, db *gorm.DB, event *WebhookEvent) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*WebhookEvent, error)
	MarkEventProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
}
