// Package processortest provides an in-memory processor.Processor for tests.
package processortest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/smallbiznis/schoolbilling/internal/processor"
)

// BadSignature is rejected by Fake.ParseWebhook.
const BadSignature = "bad-signature"

// Fake records calls and returns deterministic ids. Set Err to make every
// call fail with that error.
type Fake struct {
	mu sync.Mutex

	Err error

	Customers      []processor.CustomerRequest
	Checkouts      []processor.CheckoutRequest
	Portals        []string
	Charges        []processor.ChargeRequest
	Accounts       []processor.ConnectedAccountRequest
	Status         processor.AccountStatus
	ChargeStatus   string
	DefaultMethods map[string]string

	seq int
}

func New() *Fake {
	return &Fake{ChargeStatus: "succeeded", DefaultMethods: map[string]string{}}
}

func (f *Fake) next(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s_%d", prefix, f.seq)
}

func (f *Fake) fail(op string) error {
	if f.Err == nil {
		return nil
	}
	return &processor.Error{Op: op, Message: f.Err.Error(), Err: f.Err}
}

func (f *Fake) CreateCustomer(_ context.Context, req processor.CustomerRequest) (processor.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("create_customer"); err != nil {
		return processor.Customer{}, err
	}
	f.Customers = append(f.Customers, req)
	return processor.Customer{ID: f.next("cus"), Email: req.Email, Name: req.Name}, nil
}

func (f *Fake) GetCustomer(_ context.Context, customerID string) (processor.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("get_customer"); err != nil {
		return processor.Customer{}, err
	}
	return processor.Customer{ID: customerID, DefaultPaymentMethodID: f.DefaultMethods[customerID]}, nil
}

func (f *Fake) CreateCheckoutSession(_ context.Context, req processor.CheckoutRequest) (processor.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("create_checkout_session"); err != nil {
		return processor.Session{}, err
	}
	f.Checkouts = append(f.Checkouts, req)
	id := f.next("cs")
	return processor.Session{ID: id, URL: "https://checkout.test/" + id}, nil
}

func (f *Fake) CreatePortalSession(_ context.Context, customerID, returnURL string) (processor.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("create_portal_session"); err != nil {
		return processor.Session{}, err
	}
	f.Portals = append(f.Portals, customerID)
	id := f.next("bps")
	return processor.Session{ID: id, URL: "https://portal.test/" + id}, nil
}

func (f *Fake) CreatePaymentMethod(_ context.Context, cardToken string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("create_payment_method"); err != nil {
		return "", err
	}
	return f.next("pm"), nil
}

func (f *Fake) AttachPaymentMethod(_ context.Context, paymentMethodID, customerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fail("attach_payment_method")
}

func (f *Fake) SetDefaultPaymentMethod(_ context.Context, customerID, paymentMethodID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("set_default_payment_method"); err != nil {
		return err
	}
	f.DefaultMethods[customerID] = paymentMethodID
	return nil
}

func (f *Fake) ChargeSavedMethod(_ context.Context, req processor.ChargeRequest) (processor.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("charge_saved_method"); err != nil {
		return processor.PaymentIntent{}, err
	}
	f.Charges = append(f.Charges, req)
	return processor.PaymentIntent{ID: f.next("pi"), Status: f.ChargeStatus, Amount: req.Amount}, nil
}

func (f *Fake) CreateConnectedAccount(_ context.Context, req processor.ConnectedAccountRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("create_connected_account"); err != nil {
		return "", err
	}
	f.Accounts = append(f.Accounts, req)
	return f.next("acct"), nil
}

func (f *Fake) CreateOnboardingLink(_ context.Context, accountID, refreshURL, returnURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("create_onboarding_link"); err != nil {
		return "", err
	}
	return "https://connect.test/onboard/" + accountID, nil
}

func (f *Fake) CreateDashboardLink(_ context.Context, accountID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("create_dashboard_link"); err != nil {
		return "", err
	}
	return "https://connect.test/dashboard/" + accountID, nil
}

func (f *Fake) GetAccountStatus(_ context.Context, accountID string) (processor.AccountStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("get_account_status"); err != nil {
		return processor.AccountStatus{}, err
	}
	status := f.Status
	status.AccountID = accountID
	return status, nil
}

// ParseWebhook decodes a Stripe-shaped envelope without verifying signatures.
func (f *Fake) ParseWebhook(payload []byte, signature string) (processor.Event, error) {
	if signature == BadSignature {
		return processor.Event{}, processor.ErrInvalidSignature
	}
	var envelope struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object json.RawMessage `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return processor.Event{}, err
	}
	return processor.Event{ID: envelope.ID, Type: envelope.Type, Object: envelope.Data.Object}, nil
}

// Event builds a webhook payload accepted by ParseWebhook.
func Event(id, eventType string, object any) []byte {
	raw, _ := json.Marshal(map[string]any{
		"id":   id,
		"type": eventType,
		"data": map[string]any{"object": object},
	})
	return raw
}

var _ processor.Processor = (*Fake)(nil)
