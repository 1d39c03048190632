package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Insert returns false when the dedup key already exists.
	Insert(ctx context.Context, db *gorm.DB, n *Notification) (bool, error)
	ExistsOn(ctx context.Context, db *gorm.DB, contactID snowflake.ID, types []Type, day string) (bool, error)
	ListByContact(ctx context.Context, db *gorm.DB, contactID snowflake.ID, limit int) ([]Notification, error)
}
