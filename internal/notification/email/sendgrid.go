package email

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

type SendGridProvider struct {
	key  string
	from *sgmail.Email
	api  func(req rest.Request) (*rest.Response, error)
}

func NewSendGrid(key, fromName, fromEmail string) *SendGridProvider {
	return &SendGridProvider{
		key:  key,
		from: sgmail.NewEmail(fromName, fromEmail),
		api:  sendgrid.API,
	}
}

func (p *SendGridProvider) Name() string { return "sendgrid" }

func (p *SendGridProvider) Send(ctx context.Context, msg Email) error {
	if len(msg.To) == 0 {
		return errors.New("sendgrid: no recipients")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	req := sendgrid.GetRequest(p.key, sendgridEndpoint, sendgridHost)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(p.prepare(msg))

	res, err := p.api(req)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid: status %d", res.StatusCode)
	}
	return nil
}

func (p *SendGridProvider) prepare(msg Email) *sgmail.SGMailV3 {
	personalization := sgmail.NewPersonalization()
	personalization.Subject = msg.Subject
	for _, to := range msg.To {
		personalization.AddTos(sgmail.NewEmail(msg.ToName, to))
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(p.from)
	m.AddPersonalizations(personalization)
	if msg.TextBody != "" {
		m.AddContent(sgmail.NewContent("text/plain", msg.TextBody))
	}
	m.AddContent(sgmail.NewContent("text/html", msg.HTMLBody))
	return m
}
