package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/schoolbilling/internal/platformfee"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*CustomCharge, error)
	Get(ctx context.Context, schoolID, id snowflake.ID) (*CustomCharge, error)
	ListByFamily(ctx context.Context, schoolID, familyID snowflake.ID) ([]CustomCharge, error)
	Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error)
}

type CreateRequest struct {
	SchoolID    snowflake.ID `json:"-"`
	FamilyID    snowflake.ID `json:"family_id"`
	Description string       `json:"description"`
	Amount      int64        `json:"amount"`
	Currency    string       `json:"currency"`
}

type CheckoutRequest struct {
	SchoolID   snowflake.ID
	FamilyID   snowflake.ID
	ChargeID   snowflake.ID
	SuccessURL string
	CancelURL  string
}

type CheckoutResult struct {
	SessionID string             `json:"session_id"`
	URL       string             `json:"url"`
	Fee       platformfee.Result `json:"fee"`
}

var (
	ErrNotFound           = errors.New("custom_charge_not_found")
	ErrInvalidAmount      = errors.New("invalid_custom_charge_amount")
	ErrInvalidDescription = errors.New("invalid_custom_charge_description")
	ErrInvalidFamily      = errors.New("invalid_family")
	ErrAlreadyPaid        = errors.New("custom_charge_not_payable")
	ErrNoConnectedAccount = errors.New("school_connected_account_missing")
)
