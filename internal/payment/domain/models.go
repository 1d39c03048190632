// Package domain holds the append-only platform payment ledger and the
// webhook event log used to short-circuit duplicate deliveries.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSucceeded, StatusFailed:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

type PaymentType string

const (
	PaymentTypeManual    PaymentType = "manual"
	PaymentTypeRecurring PaymentType = "recurring"
	PaymentTypeOneTime   PaymentType = "one_time"
)

func (t PaymentType) Valid() bool {
	switch t {
	case PaymentTypeManual, PaymentTypeRecurring, PaymentTypeOneTime:
		return true
	}
	return false
}

type TargetType string

const (
	TargetTypeFeature      TargetType = "feature"
	TargetTypeSubscription TargetType = "subscription"
	TargetTypeCustomCharge TargetType = "custom_charge"
)

// PlatformPayment rows are append-only apart from the pending to terminal
// transition and the applied_at stamp.
type PlatformPayment struct {
	ID                snowflake.ID  `gorm:"primaryKey" json:"id"`
	SchoolID          snowflake.ID  `gorm:"not null" json:"school_id"`
	TargetType        TargetType    `gorm:"type:text;not null" json:"target_type"`
	FeatureCode       *string       `gorm:"type:text" json:"feature_code,omitempty"`
	CustomChargeID    *snowflake.ID `json:"custom_charge_id,omitempty"`
	PlanCode          *string       `gorm:"type:text" json:"plan_code,omitempty"`
	Amount            int64         `gorm:"not null" json:"amount"`
	Currency          string        `gorm:"type:text;not null" json:"currency"`
	Status            Status        `gorm:"type:text;not null" json:"status"`
	PaymentType       PaymentType   `gorm:"type:text;not null" json:"payment_type"`
	PaidAt            *time.Time    `json:"paid_at,omitempty"`
	PeriodStart       *time.Time    `json:"period_start,omitempty"`
	PeriodEnd         *time.Time    `json:"period_end,omitempty"`
	ProviderPaymentID *string       `gorm:"type:text" json:"provider_payment_id,omitempty"`
	RecordedBy        *snowflake.ID `json:"recorded_by,omitempty"`
	Note              *string       `gorm:"type:text" json:"note,omitempty"`
	AppliedAt         *time.Time    `json:"applied_at,omitempty"`
	CreatedAt         time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time     `gorm:"not null" json:"updated_at"`
}

func (PlatformPayment) TableName() string { return "platform_payments" }

// Target rebuilds the tagged target from the row columns.
func (p PlatformPayment) Target() (Target, error) {
	switch p.TargetType {
	case TargetTypeFeature:
		if p.FeatureCode == nil {
			return nil, ErrInvalidTarget
		}
		return FeatureTarget{SchoolID: p.SchoolID, FeatureCode: *p.FeatureCode}, nil
	case TargetTypeSubscription:
		plan := ""
		if p.PlanCode != nil {
			plan = *p.PlanCode
		}
		return SubscriptionTarget{SchoolID: p.SchoolID, Plan: plan}, nil
	case TargetTypeCustomCharge:
		if p.CustomChargeID == nil {
			return nil, ErrInvalidTarget
		}
		return CustomChargeTarget{SchoolID: p.SchoolID, ChargeID: *p.CustomChargeID}, nil
	}
	return nil, ErrInvalidTarget
}

type WebhookEvent struct {
	ID              snowflake.ID   `gorm:"primaryKey"`
	Provider        string         `gorm:"type:text;not null"`
	ProviderEventID string         `gorm:"type:text;not null"`
	EventType       string         `gorm:"type:text;not null"`
	Payload         datatypes.JSON `gorm:"not null"`
	ReceivedAt      time.Time      `gorm:"not null"`
	ProcessedAt     *time.Time
}

func (WebhookEvent) TableName() string { return "payment_webhook_events" }
