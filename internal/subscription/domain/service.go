// Package domain describes a school's own platform billing as seen by its
// owner: the subscription checkout, the billing portal, and paying for
// enabled features by hosted checkout or by charging a saved card.
package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/smallbiznis/schoolbilling/internal/payment/domain"
)

type Service interface {
	Checkout(ctx context.Context, req CheckoutRequest) (*Session, error)
	Portal(ctx context.Context, req PortalRequest) (*Session, error)

	FeatureCheckout(ctx context.Context, req FeatureCheckoutRequest) (*Session, error)
	SavePaymentMethod(ctx context.Context, req SavePaymentMethodRequest) (*PaymentMethod, error)
	// ChargeFeature charges the saved default card for a feature awaiting payment.
	ChargeFeature(ctx context.Context, req ChargeFeatureRequest) (*paymentdomain.PlatformPayment, error)
}

type CheckoutRequest struct {
	SchoolID   snowflake.ID `json:"-"`
	Plan       string       `json:"plan"`
	SuccessURL string       `json:"success_url"`
	CancelURL  string       `json:"cancel_url"`
}

type PortalRequest struct {
	SchoolID  snowflake.ID `json:"-"`
	ReturnURL string       `json:"return_url"`
}

type FeatureCheckoutRequest struct {
	SchoolID    snowflake.ID `json:"-"`
	FeatureCode string       `json:"-"`
	SuccessURL  string       `json:"success_url"`
	CancelURL   string       `json:"cancel_url"`
}

type SavePaymentMethodRequest struct {
	SchoolID  snowflake.ID `json:"-"`
	CardToken string       `json:"card_token"`
}

type PaymentMethod struct {
	CustomerID      string `json:"customer_id"`
	PaymentMethodID string `json:"payment_method_id"`
}

type ChargeFeatureRequest struct {
	SchoolID    snowflake.ID
	FeatureCode string
}

type Session struct {
	SessionID  string `json:"session_id,omitempty"`
	URL        string `json:"url"`
	CustomerID string `json:"customer_id"`
}

var (
	ErrPriceNotConfigured = errors.New("subscription_price_not_configured")
	ErrAlreadySubscribed  = errors.New("subscription_already_active")
	ErrNoCustomer         = errors.New("billing_customer_missing")
	ErrInvalidPlan        = errors.New("invalid_plan")
	ErrInvalidCardToken   = errors.New("invalid_card_token")
	ErrNoPaymentMethod    = errors.New("payment_method_missing")
	ErrFeatureNotPayable  = errors.New("feature_not_payable")
)
