package webhook

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/schoolbilling/internal/processor"
)

// Event types handled by the intake. Everything else is acknowledged and ignored.
const (
	EventCheckoutCompleted    = "checkout.session.completed"
	EventPaymentSucceeded     = "payment_intent.succeeded"
	EventPaymentFailed        = "payment_intent.payment_failed"
	EventInvoicePaid          = "invoice.paid"
	EventInvoicePaymentFailed = "invoice.payment_failed"
	EventSubscriptionUpdated  = "customer.subscription.updated"
	EventSubscriptionDeleted  = "customer.subscription.deleted"
)

// metadata is the routing information attached at checkout time.
type metadata map[string]string

func (m metadata) kind() string {
	return strings.TrimSpace(m[processor.MetadataType])
}

func (m metadata) id(key string) (snowflake.ID, bool) {
	raw := strings.TrimSpace(m[key])
	if raw == "" {
		return 0, false
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

func (m metadata) schoolID() *snowflake.ID {
	id, ok := m.id(processor.MetadataSchoolID)
	if !ok {
		return nil
	}
	return &id
}

type checkoutSession struct {
	ID            string   `json:"id"`
	Mode          string   `json:"mode"`
	PaymentStatus string   `json:"payment_status"`
	PaymentIntent string   `json:"payment_intent"`
	Subscription  string   `json:"subscription"`
	Invoice       string   `json:"invoice"`
	Customer      string   `json:"customer"`
	AmountTotal   int64    `json:"amount_total"`
	Currency      string   `json:"currency"`
	Metadata      metadata `json:"metadata"`
}

type paymentIntent struct {
	ID               string   `json:"id"`
	Amount           int64    `json:"amount"`
	AmountReceived   int64    `json:"amount_received"`
	Currency         string   `json:"currency"`
	Customer         string   `json:"customer"`
	Metadata         metadata `json:"metadata"`
	LastPaymentError *struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

type period struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

type invoice struct {
	ID                  string `json:"id"`
	Customer            string `json:"customer"`
	Subscription        string `json:"subscription"`
	AmountPaid          int64  `json:"amount_paid"`
	AmountDue           int64  `json:"amount_due"`
	Currency            string `json:"currency"`
	SubscriptionDetails *struct {
		Metadata metadata `json:"metadata"`
	} `json:"subscription_details"`
	Parent *struct {
		SubscriptionDetails *struct {
			Subscription string   `json:"subscription"`
			Metadata     metadata `json:"metadata"`
		} `json:"subscription_details"`
	} `json:"parent"`
	Lines struct {
		Data []struct {
			Period period `json:"period"`
		} `json:"data"`
	} `json:"lines"`
}

// subscriptionRef returns the subscription id across API versions.
func (i invoice) subscriptionRef() string {
	if i.Subscription != "" {
		return i.Subscription
	}
	if i.Parent != nil && i.Parent.SubscriptionDetails != nil {
		return i.Parent.SubscriptionDetails.Subscription
	}
	return ""
}

func (i invoice) routing() metadata {
	if i.SubscriptionDetails != nil && len(i.SubscriptionDetails.Metadata) > 0 {
		return i.SubscriptionDetails.Metadata
	}
	if i.Parent != nil && i.Parent.SubscriptionDetails != nil {
		return i.Parent.SubscriptionDetails.Metadata
	}
	return metadata{}
}

func (i invoice) servicePeriod() (*time.Time, *time.Time) {
	if len(i.Lines.Data) == 0 {
		return nil, nil
	}
	return unixTime(i.Lines.Data[0].Period.Start), unixTime(i.Lines.Data[0].Period.End)
}

type subscription struct {
	ID               string   `json:"id"`
	Customer         string   `json:"customer"`
	Status           string   `json:"status"`
	CurrentPeriodEnd int64    `json:"current_period_end"`
	Metadata         metadata `json:"metadata"`
	Items            struct {
		Data []struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
}

func (s subscription) periodEnd() *time.Time {
	if s.CurrentPeriodEnd > 0 {
		return unixTime(s.CurrentPeriodEnd)
	}
	for _, item := range s.Items.Data {
		if item.CurrentPeriodEnd > 0 {
			return unixTime(item.CurrentPeriodEnd)
		}
	}
	return nil
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

func decode[T any](raw json.RawMessage) (T, error) {
	var out T
	err := json.Unmarshal(raw, &out)
	return out, err
}
