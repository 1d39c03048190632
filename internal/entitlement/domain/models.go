package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type PricingModel string

const (
	PricingModelFree     PricingModel = "free"
	PricingModelTrial    PricingModel = "trial"
	PricingModelOneTime  PricingModel = "one_time"
	PricingModelStandard PricingModel = "standard"
)

func (m PricingModel) Valid() bool {
	switch m {
	case PricingModelFree, PricingModelTrial, PricingModelOneTime, PricingModelStandard:
		return true
	}
	return false
}

// StatusCode is the persisted form of EntitlementStatus.
type StatusCode string

const (
	StatusActive         StatusCode = "active"
	StatusTrial          StatusCode = "trial"
	StatusPendingPayment StatusCode = "pending_payment"
	StatusCanceled       StatusCode = "canceled"
)

// FeatureSubscription is the feature_subscriptions row. Services convert it to
// Entitlement before handing it out.
type FeatureSubscription struct {
	ID                  snowflake.ID  `gorm:"primaryKey"`
	SchoolID            snowflake.ID  `gorm:"not null"`
	FeatureCode         string        `gorm:"type:text;not null"`
	IsEnabled           bool          `gorm:"not null"`
	Status              StatusCode    `gorm:"type:text;not null"`
	PricingModel        PricingModel  `gorm:"type:text;not null"`
	MonthlyFee          *int64
	OneTimeFee          *int64
	PostTrialMonthlyFee *int64
	TrialEndDate        *time.Time
	NextBillingDate     *time.Time
	EnabledAt           *time.Time
	EnabledBy           *snowflake.ID
	CreatedAt           time.Time `gorm:"not null"`
	UpdatedAt           time.Time `gorm:"not null"`
}

func (FeatureSubscription) TableName() string { return "feature_subscriptions" }

// Entitlement is the enablement and pricing state of one (school, feature) pair.
type Entitlement struct {
	ID                  snowflake.ID
	SchoolID            snowflake.ID
	FeatureCode         string
	Enabled             bool
	Status              EntitlementStatus
	PricingModel        PricingModel
	MonthlyFee          *int64
	OneTimeFee          *int64
	PostTrialMonthlyFee *int64
	NextBillingDate     *time.Time
	EnabledAt           *time.Time
	EnabledBy           *snowflake.ID
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// FromRow rejects rows whose status columns cannot be represented.
func FromRow(row FeatureSubscription) (Entitlement, error) {
	status, err := ParseStatus(row.Status, row.TrialEndDate)
	if err != nil {
		return Entitlement{}, err
	}
	return Entitlement{
		ID:                  row.ID,
		SchoolID:            row.SchoolID,
		FeatureCode:         row.FeatureCode,
		Enabled:             row.IsEnabled,
		Status:              status,
		PricingModel:        row.PricingModel,
		MonthlyFee:          row.MonthlyFee,
		OneTimeFee:          row.OneTimeFee,
		PostTrialMonthlyFee: row.PostTrialMonthlyFee,
		NextBillingDate:     row.NextBillingDate,
		EnabledAt:           row.EnabledAt,
		EnabledBy:           row.EnabledBy,
		CreatedAt:           row.CreatedAt,
		UpdatedAt:           row.UpdatedAt,
	}, nil
}

// Row flattens the entitlement back into its persisted columns.
func (e Entitlement) Row() FeatureSubscription {
	code, trialEnd := StatusColumns(e.Status)
	return FeatureSubscription{
		ID:                  e.ID,
		SchoolID:            e.SchoolID,
		FeatureCode:         e.FeatureCode,
		IsEnabled:           e.Enabled,
		Status:              code,
		PricingModel:        e.PricingModel,
		MonthlyFee:          e.MonthlyFee,
		OneTimeFee:          e.OneTimeFee,
		PostTrialMonthlyFee: e.PostTrialMonthlyFee,
		TrialEndDate:        trialEnd,
		NextBillingDate:     e.NextBillingDate,
		EnabledAt:           e.EnabledAt,
		EnabledBy:           e.EnabledBy,
		CreatedAt:           e.CreatedAt,
		UpdatedAt:           e.UpdatedAt,
	}
}

// AmountDue is the price of the next payment: the one-time fee for one-time
// purchases, otherwise the monthly fee.
func (e Entitlement) AmountDue() int64 {
	fee := e.MonthlyFee
	if e.PricingModel == PricingModelOneTime {
		fee = e.OneTimeFee
	}
	if fee == nil {
		return 0
	}
	return *fee
}

// ActiveAt reports whether the feature may be used at now.
func (e Entitlement) ActiveAt(now time.Time) bool {
	if !e.Enabled {
		return false
	}
	switch status := e.Status.(type) {
	case Active:
		return true
	case Trial:
		return now.Before(status.EndsAt)
	}
	return false
}
