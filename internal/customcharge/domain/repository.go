package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, charge *CustomCharge) error
	FindByID(ctx context.Context, db *gorm.DB, schoolID, id snowflake.ID) (*CustomCharge, error)
	ListByFamily(ctx context.Context, db *gorm.DB, schoolID, familyID snowflake.ID) ([]CustomCharge, error)
	// MarkPaid only moves unpaid charges; it reports whether a row changed.
	MarkPaid(ctx context.Context, db *gorm.DB, schoolID, id snowflake.ID, paidAt time.Time) (bool, error)
}
