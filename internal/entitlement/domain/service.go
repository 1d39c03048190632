package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Service is the FeatureEntitlementManager.
type Service interface {
	Enable(ctx context.Context, req EnableRequest) (*Entitlement, error)
	Disable(ctx context.Context, schoolID snowflake.ID, featureCode string) (*Entitlement, error)
	Toggle(ctx context.Context, req ToggleRequest) (*Entitlement, error)
	UpdatePricing(ctx context.Context, req UpdatePricingRequest) (*Entitlement, error)

	Get(ctx context.Context, schoolID snowflake.ID, featureCode string) (*Entitlement, error)
	ListBySchool(ctx context.Context, schoolID snowflake.ID) ([]Entitlement, error)
	IsActive(ctx context.Context, schoolID snowflake.ID, featureCode string) (bool, error)
	ExpireTrials(ctx context.Context) (int, error)
}

type EnableRequest struct {
	SchoolID            snowflake.ID  `json:"school_id"`
	FeatureCode         string        `json:"feature_code"`
	PricingModel        string        `json:"pricing_model"`
	TrialDays           *int          `json:"trial_days,omitempty"`
	PostTrialMonthlyFee *int64        `json:"post_trial_monthly_fee,omitempty"`
	EnabledBy           *snowflake.ID `json:"-"`
}

type ToggleRequest struct {
	SchoolID    snowflake.ID  `json:"school_id"`
	FeatureCode string        `json:"feature_code"`
	Enable      bool          `json:"enable"`
	Actor       *snowflake.ID `json:"-"`
}

type UpdatePricingRequest struct {
	SchoolID            snowflake.ID `json:"school_id"`
	FeatureCode         string       `json:"feature_code"`
	PricingModel        string       `json:"pricing_model"`
	MonthlyFee          *int64       `json:"monthly_fee,omitempty"`
	OneTimeFee          *int64       `json:"one_time_fee,omitempty"`
	TrialDays           *int         `json:"trial_days,omitempty"`
	PostTrialMonthlyFee *int64       `json:"post_trial_monthly_fee,omitempty"`
}

// Response is the API shape of an Entitlement.
type Response struct {
	ID                  string       `json:"id"`
	SchoolID            string       `json:"school_id"`
	FeatureCode         string       `json:"feature_code"`
	Enabled             bool         `json:"is_enabled"`
	Status              StatusCode   `json:"status"`
	PricingModel        PricingModel `json:"pricing_model"`
	MonthlyFee          *int64       `json:"monthly_fee"`
	OneTimeFee          *int64       `json:"one_time_fee"`
	PostTrialMonthlyFee *int64       `json:"post_trial_monthly_fee"`
	TrialEndDate        *time.Time   `json:"trial_end_date,omitempty"`
	NextBillingDate     *time.Time   `json:"next_billing_date,omitempty"`
	EnabledAt           *time.Time   `json:"enabled_at,omitempty"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

func NewResponse(e Entitlement) Response {
	code, trialEnd := StatusColumns(e.Status)
	return Response{
		ID:                  e.ID.String(),
		SchoolID:            e.SchoolID.String(),
		FeatureCode:         e.FeatureCode,
		Enabled:             e.Enabled,
		Status:              code,
		PricingModel:        e.PricingModel,
		MonthlyFee:          e.MonthlyFee,
		OneTimeFee:          e.OneTimeFee,
		PostTrialMonthlyFee: e.PostTrialMonthlyFee,
		TrialEndDate:        trialEnd,
		NextBillingDate:     e.NextBillingDate,
		EnabledAt:           e.EnabledAt,
		UpdatedAt:           e.UpdatedAt,
	}
}

var (
	ErrNotFound            = errors.New("entitlement_not_found")
	ErrNotEnabled          = errors.New("entitlement_not_enabled")
	ErrInvalidSchool       = errors.New("invalid_school_id")
	ErrInvalidFeature      = errors.New("invalid_feature_code")
	ErrInvalidPricingModel = errors.New("invalid_pricing_model")
	ErrInvalidTrialDays    = errors.New("invalid_trial_days")
	ErrInvalidFee          = errors.New("invalid_fee")
	ErrInvalidStatus       = errors.New("invalid_entitlement_status")
)
