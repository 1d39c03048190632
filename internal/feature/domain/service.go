package domain

import (
	"context"
	"errors"
	"time"
)

type Service interface {
	Get(ctx context.Context, code string) (*Feature, error)
	List(ctx context.Context, activeOnly bool) ([]Response, error)
	Upsert(ctx context.Context, req UpsertRequest) (*Response, error)
}

type UpsertRequest struct {
	Code                string `json:"code"`
	Name                string `json:"name"`
	Description         string `json:"description"`
	DefaultMonthlyPrice int64  `json:"default_monthly_price"`
	DefaultOneTimePrice int64  `json:"default_one_time_price"`
	Active              *bool  `json:"active"`
}

type Response struct {
	Code                string    `json:"code"`
	Name                string    `json:"name"`
	Description         string    `json:"description,omitempty"`
	DefaultMonthlyPrice int64     `json:"default_monthly_price"`
	DefaultOneTimePrice int64     `json:"default_one_time_price"`
	Active              bool      `json:"active"`
	UpdatedAt           time.Time `json:"updated_at"`
}

var (
	ErrInvalidCode  = errors.New("invalid_feature_code")
	ErrInvalidName  = errors.New("invalid_name")
	ErrInvalidPrice = errors.New("invalid_price")
	ErrNotFound     = errors.New("feature_not_found")
)
