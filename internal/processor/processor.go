// Package processor is the contract the billing engine needs from a
// Stripe-compatible payment processor.
package processor

import (
	"context"
	"encoding/json"
)

type Processor interface {
	CreateCustomer(ctx context.Context, req CustomerRequest) (Customer, error)
	GetCustomer(ctx context.Context, customerID string) (Customer, error)

	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (Session, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (Session, error)

	CreatePaymentMethod(ctx context.Context, cardToken string) (string, error)
	AttachPaymentMethod(ctx context.Context, paymentMethodID, customerID string) error
	SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error
	// ChargeSavedMethod creates and confirms an off-session payment intent.
	ChargeSavedMethod(ctx context.Context, req ChargeRequest) (PaymentIntent, error)

	CreateConnectedAccount(ctx context.Context, req ConnectedAccountRequest) (string, error)
	CreateOnboardingLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error)
	CreateDashboardLink(ctx context.Context, accountID string) (string, error)
	GetAccountStatus(ctx context.Context, accountID string) (AccountStatus, error)

	// ParseWebhook verifies the signature header and decodes the event envelope.
	ParseWebhook(payload []byte, signature string) (Event, error)
}

type CheckoutMode string

const (
	CheckoutModeSubscription CheckoutMode = "subscription"
	CheckoutModePayment      CheckoutMode = "payment"
)

// Metadata keys carried on checkout sessions and payment intents so webhook
// events can be routed back to the right target.
const (
	MetadataSchoolID = "schoolId"
	MetadataFamilyID = "familyId"
	MetadataChargeID = "chargeId"
	MetadataFeature  = "featureCode"
	MetadataType     = "type"
	MetadataPlan     = "plan"
)

// Values of MetadataType.
const (
	PaymentKindSubscription = "platform_subscription"
	PaymentKindFeature      = "feature"
	PaymentKindCustomCharge = "custom_charge"
)

type CustomerRequest struct {
	Email    string
	Name     string
	Metadata map[string]string
}

type Customer struct {
	ID                     string `json:"id"`
	Email                  string `json:"email"`
	Name                   string `json:"name"`
	DefaultPaymentMethodID string `json:"default_payment_method_id,omitempty"`
}

type CheckoutRequest struct {
	Mode       CheckoutMode
	CustomerID string
	// PriceID selects a catalog price; otherwise Amount and ProductName build one inline.
	PriceID     string
	Amount      int64
	Currency    string
	ProductName string
	SuccessURL  string
	CancelURL   string
	Metadata    map[string]string
	// ConnectedAccountID routes the charge to a tenant's connected account.
	ConnectedAccountID string
	ApplicationFee     int64
}

type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type ChargeRequest struct {
	CustomerID      string
	PaymentMethodID string
	Amount          int64
	Currency        string
	Metadata        map[string]string
}

type PaymentIntent struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount int64  `json:"amount"`
}

type ConnectedAccountRequest struct {
	Email    string
	Country  string
	Metadata map[string]string
}

type AccountStatus struct {
	AccountID        string `json:"accountId"`
	ChargesEnabled   bool   `json:"chargesEnabled"`
	PayoutsEnabled   bool   `json:"payoutsEnabled"`
	DetailsSubmitted bool   `json:"detailsSubmitted"`
}

// Event is a verified webhook event. Object is the raw data.object payload.
type Event struct {
	ID     string
	Type   string
	Object json.RawMessage
}
