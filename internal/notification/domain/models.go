package domain

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Type string

const (
	TypeBillingDue       Type = "billing_due"
	TypeBillingOverdue   Type = "billing_overdue"
	TypePaymentFailed    Type = "payment_failed"
	TypePaymentSucceeded Type = "payment_succeeded"
)

// Deduplicated reports whether at most one notification of this type may be
// stored per contact per UTC day.
func (t Type) Deduplicated() bool {
	return t == TypeBillingDue || t == TypeBillingOverdue
}

// BillingSignalTypes are checked together before the sweep notifies a school.
var BillingSignalTypes = []Type{TypeBillingDue, TypeBillingOverdue}

type Notification struct {
	ID               snowflake.ID      `gorm:"primaryKey"`
	SchoolID         snowflake.ID      `gorm:"not null"`
	ContactID        snowflake.ID      `gorm:"not null"`
	NotificationType Type              `gorm:"type:text;not null"`
	Title            string            `gorm:"type:text;not null"`
	Body             string            `gorm:"type:text;not null"`
	Data             datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'"`
	NotifiedOn       string            `gorm:"type:char(10);not null"`
	DedupKey         *string           `gorm:"type:text"`
	ReadAt           *time.Time
	CreatedAt        time.Time `gorm:"not null"`
}

func (Notification) TableName() string { return "notifications" }

// Day formats the UTC calendar date used for notified_on.
func Day(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

// DedupKey returns nil for types that are not deduplicated.
func DedupKey(contactID snowflake.ID, t Type, day string) *string {
	if !t.Deduplicated() {
		return nil
	}
	key := fmt.Sprintf("%d:%s:%s", contactID, t, day)
	return &key
}
