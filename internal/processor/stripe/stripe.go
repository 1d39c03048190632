// Package stripe implements processor.Processor on top of stripe-go.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/smallbiznis/schoolbilling/internal/processor"
	stripego "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

type Config struct {
	SecretKey     string
	WebhookSecret string
	AccountType   string
	Currency      string
}

type Processor struct {
	api           *client.API
	webhookSecret string
	accountType   string
	currency      string
}

// New builds a processor. backends may be nil to talk to the live API.
func New(cfg Config, backends *stripego.Backends) *Processor {
	api := &client.API{}
	api.Init(cfg.SecretKey, backends)

	accountType := strings.TrimSpace(cfg.AccountType)
	if accountType == "" {
		accountType = string(stripego.AccountTypeExpress)
	}
	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "usd"
	}
	return &Processor{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
		accountType:   accountType,
		currency:      currency,
	}
}

func (p *Processor) CreateCustomer(ctx context.Context, req processor.CustomerRequest) (processor.Customer, error) {
	params := &stripego.CustomerParams{
		Email: stringOrNil(req.Email),
		Name:  stringOrNil(req.Name),
	}
	params.Context = ctx
	params.SetIdempotencyKey(uuid.NewString())
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	c, err := p.api.Customers.New(params)
	if err != nil {
		return processor.Customer{}, wrap("create_customer", err)
	}
	return processor.Customer{ID: c.ID, Email: c.Email, Name: c.Name}, nil
}

func (p *Processor) GetCustomer(ctx context.Context, customerID string) (processor.Customer, error) {
	params := &stripego.CustomerParams{}
	params.Context = ctx

	c, err := p.api.Customers.Get(customerID, params)
	if err != nil {
		return processor.Customer{}, wrap("get_customer", err)
	}
	customer := processor.Customer{ID: c.ID, Email: c.Email, Name: c.Name}
	if c.InvoiceSettings != nil && c.InvoiceSettings.DefaultPaymentMethod != nil {
		customer.DefaultPaymentMethodID = c.InvoiceSettings.DefaultPaymentMethod.ID
	}
	return customer, nil
}

func (p *Processor) CreateCheckoutSession(ctx context.Context, req processor.CheckoutRequest) (processor.Session, error) {
	mode := stripego.CheckoutSessionModePayment
	if req.Mode == processor.CheckoutModeSubscription {
		mode = stripego.CheckoutSessionModeSubscription
	}

	params := &stripego.CheckoutSessionParams{
		Mode:       stripego.String(string(mode)),
		SuccessURL: stripego.String(req.SuccessURL),
		CancelURL:  stripego.String(req.CancelURL),
		Customer:   stringOrNil(req.CustomerID),
		LineItems:  []*stripego.CheckoutSessionLineItemParams{p.lineItem(req)},
	}
	params.Context = ctx
	params.SetIdempotencyKey(uuid.NewString())
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	// Metadata is copied onto the resulting subscription or payment intent so
	// invoice and payment_intent webhooks can be routed too.
	if mode == stripego.CheckoutSessionModeSubscription {
		params.SubscriptionData = &stripego.CheckoutSessionSubscriptionDataParams{Metadata: copyMetadata(req.Metadata)}
	} else {
		intent := &stripego.CheckoutSessionPaymentIntentDataParams{Metadata: copyMetadata(req.Metadata)}
		if req.ConnectedAccountID != "" && req.ApplicationFee > 0 {
			intent.ApplicationFeeAmount = stripego.Int64(req.ApplicationFee)
		}
		params.PaymentIntentData = intent
	}
	if req.ConnectedAccountID != "" {
		params.SetStripeAccount(req.ConnectedAccountID)
	}

	s, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return processor.Session{}, wrap("create_checkout_session", err)
	}
	return processor.Session{ID: s.ID, URL: s.URL}, nil
}

func (p *Processor) lineItem(req processor.CheckoutRequest) *stripego.CheckoutSessionLineItemParams {
	if req.PriceID != "" {
		return &stripego.CheckoutSessionLineItemParams{
			Price:    stripego.String(req.PriceID),
			Quantity: stripego.Int64(1),
		}
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = p.currency
	}
	return &stripego.CheckoutSessionLineItemParams{
		Quantity: stripego.Int64(1),
		PriceData: &stripego.CheckoutSessionLineItemPriceDataParams{
			Currency:   stripego.String(currency),
			UnitAmount: stripego.Int64(req.Amount),
			ProductData: &stripego.CheckoutSessionLineItemPriceDataProductDataParams{
				Name: stripego.String(req.ProductName),
			},
		},
	}
}

func (p *Processor) CreatePortalSession(ctx context.Context, customerID, returnURL string) (processor.Session, error) {
	params := &stripego.BillingPortalSessionParams{
		Customer:  stripego.String(customerID),
		ReturnURL: stringOrNil(returnURL),
	}
	params.Context = ctx

	s, err := p.api.BillingPortalSessions.New(params)
	if err != nil {
		return processor.Session{}, wrap("create_portal_session", err)
	}
	return processor.Session{ID: s.ID, URL: s.URL}, nil
}

func (p *Processor) CreatePaymentMethod(ctx context.Context, cardToken string) (string, error) {
	params := &stripego.PaymentMethodParams{
		Type: stripego.String(string(stripego.PaymentMethodTypeCard)),
		Card: &stripego.PaymentMethodCardParams{Token: stripego.String(cardToken)},
	}
	params.Context = ctx

	pm, err := p.api.PaymentMethods.New(params)
	if err != nil {
		return "", wrap("create_payment_method", err)
	}
	return pm.ID, nil
}

func (p *Processor) AttachPaymentMethod(ctx context.Context, paymentMethodID, customerID string) error {
	params := &stripego.PaymentMethodAttachParams{Customer: stripego.String(customerID)}
	params.Context = ctx

	if _, err := p.api.PaymentMethods.Attach(paymentMethodID, params); err != nil {
		return wrap("attach_payment_method", err)
	}
	return nil
}

func (p *Processor) SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	params := &stripego.CustomerParams{
		InvoiceSettings: &stripego.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripego.String(paymentMethodID),
		},
	}
	params.Context = ctx

	if _, err := p.api.Customers.Update(customerID, params); err != nil {
		return wrap("set_default_payment_method", err)
	}
	return nil
}

func (p *Processor) ChargeSavedMethod(ctx context.Context, req processor.ChargeRequest) (processor.PaymentIntent, error) {
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = p.currency
	}
	params := &stripego.PaymentIntentParams{
		Amount:        stripego.Int64(req.Amount),
		Currency:      stripego.String(currency),
		Customer:      stripego.String(req.CustomerID),
		PaymentMethod: stripego.String(req.PaymentMethodID),
		Confirm:       stripego.Bool(true),
		OffSession:    stripego.Bool(true),
	}
	params.Context = ctx
	params.SetIdempotencyKey(uuid.NewString())
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := p.api.PaymentIntents.New(params)
	if err != nil {
		return processor.PaymentIntent{}, wrap("charge_saved_method", err)
	}
	return processor.PaymentIntent{ID: pi.ID, Status: string(pi.Status), Amount: pi.Amount}, nil
}

func (p *Processor) CreateConnectedAccount(ctx context.Context, req processor.ConnectedAccountRequest) (string, error) {
	params := &stripego.AccountParams{
		Type:    stripego.String(p.accountType),
		Email:   stringOrNil(req.Email),
		Country: stringOrNil(req.Country),
		Capabilities: &stripego.AccountCapabilitiesParams{
			CardPayments: &stripego.AccountCapabilitiesCardPaymentsParams{Requested: stripego.Bool(true)},
			Transfers:    &stripego.AccountCapabilitiesTransfersParams{Requested: stripego.Bool(true)},
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey(uuid.NewString())
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	acct, err := p.api.Accounts.New(params)
	if err != nil {
		return "", wrap("create_connected_account", err)
	}
	return acct.ID, nil
}

func (p *Processor) CreateOnboardingLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error) {
	params := &stripego.AccountLinkParams{
		Account:    stripego.String(accountID),
		RefreshURL: stripego.String(refreshURL),
		ReturnURL:  stripego.String(returnURL),
		Type:       stripego.String("account_onboarding"),
	}
	params.Context = ctx

	link, err := p.api.AccountLinks.New(params)
	if err != nil {
		return "", wrap("create_onboarding_link", err)
	}
	return link.URL, nil
}

func (p *Processor) CreateDashboardLink(ctx context.Context, accountID string) (string, error) {
	params := &stripego.LoginLinkParams{Account: stripego.String(accountID)}
	params.Context = ctx

	link, err := p.api.LoginLinks.New(params)
	if err != nil {
		return "", wrap("create_dashboard_link", err)
	}
	return link.URL, nil
}

func (p *Processor) GetAccountStatus(ctx context.Context, accountID string) (processor.AccountStatus, error) {
	params := &stripego.AccountParams{}
	params.Context = ctx

	acct, err := p.api.Accounts.GetByID(accountID, params)
	if err != nil {
		return processor.AccountStatus{}, wrap("get_account_status", err)
	}
	return processor.AccountStatus{
		AccountID:        acct.ID,
		ChargesEnabled:   acct.ChargesEnabled,
		PayoutsEnabled:   acct.PayoutsEnabled,
		DetailsSubmitted: acct.DetailsSubmitted,
	}, nil
}

// ParseWebhook accepts events from any API version; only data.object is read.
func (p *Processor) ParseWebhook(payload []byte, signature string) (processor.Event, error) {
	if p.webhookSecret == "" {
		return processor.Event{}, processor.ErrNotConfigured
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return processor.Event{}, errors.Join(processor.ErrInvalidSignature, err)
	}

	var object json.RawMessage
	if event.Data != nil {
		object = event.Data.Raw
	}
	return processor.Event{ID: event.ID, Type: string(event.Type), Object: object}, nil
}

func wrap(op string, err error) error {
	perr := &processor.Error{Op: op, Message: "payment processor request failed", Err: err}
	var stripeErr *stripego.Error
	if errors.As(err, &stripeErr) {
		perr.Code = string(stripeErr.Code)
		if stripeErr.Msg != "" {
			perr.Message = stripeErr.Msg
		}
	}
	return perr
}

func stringOrNil(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return stripego.String(v)
}

func copyMetadata(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

var _ processor.Processor = (*Processor)(nil)
