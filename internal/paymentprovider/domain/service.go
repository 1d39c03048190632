// Package domain covers a school's connected payment-provider account: the
// account families pay into, onboarding, and its readiness.
package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Onboard(ctx context.Context, schoolID snowflake.ID) (*OnboardResult, error)
	DashboardLink(ctx context.Context, schoolID snowflake.ID) (string, error)
	Status(ctx context.Context, schoolID snowflake.ID) (*StatusResponse, error)
}

type OnboardResult struct {
	AccountID string `json:"account_id"`
	URL       string `json:"url"`
	Created   bool   `json:"created"`
}

type StatusResponse struct {
	Connected        bool   `json:"connected"`
	AccountID        string `json:"account_id,omitempty"`
	ChargesEnabled   bool   `json:"charges_enabled"`
	PayoutsEnabled   bool   `json:"payouts_enabled"`
	DetailsSubmitted bool   `json:"details_submitted"`
}

var ErrNotConnected = errors.New("connected_account_missing")
