// Package domain holds the tenant (school) record and its platform
// subscription fields, plus the members used as billing contacts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// SubscriptionStatus is the lifecycle state of a school's own platform subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusTrial    SubscriptionStatus = "trial"
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionStatusTrial, SubscriptionStatusActive, SubscriptionStatusPastDue, SubscriptionStatusCanceled:
		return true
	}
	return false
}

type School struct {
	ID                       snowflake.ID       `gorm:"primaryKey"`
	Name                     string             `gorm:"type:text;not null"`
	SubscriptionStatus       SubscriptionStatus `gorm:"type:text;not null"`
	SubscriptionPlan         *string            `gorm:"type:text"`
	BillingDay               *int               `gorm:"type:smallint"`
	TrialEndsAt              *time.Time
	CurrentPeriodEnd         *time.Time
	StripeCustomerID         *string   `gorm:"type:text"`
	StripeSubscriptionID     *string   `gorm:"type:text"`
	StripeConnectedAccountID *string   `gorm:"type:text"`
	CreatedAt                time.Time `gorm:"not null"`
	UpdatedAt                time.Time `gorm:"not null"`
}

func (School) TableName() string { return "schools" }

// PlanCode returns the plan or "" when none is set.
func (s School) PlanCode() string {
	if s.SubscriptionPlan == nil {
		return ""
	}
	return *s.SubscriptionPlan
}

type MemberRole string

const (
	MemberRoleOwner  MemberRole = "owner"
	MemberRoleAdmin  MemberRole = "admin"
	MemberRoleStaff  MemberRole = "staff"
	MemberRoleParent MemberRole = "parent"
)

// Member links a platform user to a school. Owners are the billing contacts.
type Member struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	SchoolID  snowflake.ID `gorm:"not null"`
	UserID    snowflake.ID `gorm:"not null"`
	Role      MemberRole   `gorm:"type:text;not null"`
	Email     string       `gorm:"type:text;not null"`
	Name      string       `gorm:"type:text;not null"`
	CreatedAt time.Time    `gorm:"not null"`
}

func (Member) TableName() string { return "school_members" }
