// Package domain holds one-off charges a school bills to a family, collected
// through the school's connected processor account.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusUnpaid   Status = "unpaid"
	StatusPaid     Status = "paid"
	StatusCanceled Status = "canceled"
)

type CustomCharge struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	SchoolID    snowflake.ID `gorm:"not null" json:"school_id"`
	FamilyID    snowflake.ID `gorm:"not null" json:"family_id"`
	Description string       `gorm:"type:text;not null" json:"description"`
	Amount      int64        `gorm:"not null" json:"amount"`
	Currency    string       `gorm:"type:text;not null" json:"currency"`
	Status      Status       `gorm:"type:text;not null" json:"status"`
	PaidAt      *time.Time   `json:"paid_at,omitempty"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null" json:"updated_at"`
}

func (CustomCharge) TableName() string { return "custom_charges" }
