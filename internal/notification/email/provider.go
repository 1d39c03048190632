package email

import "context"

// Email is a rendered message ready for delivery.
type Email struct {
	To       []string
	ToName   string
	Subject  string
	HTMLBody string
	TextBody string
}

type Provider interface {
	Name() string
	Send(ctx context.Context, msg Email) error
}

// NoOpProvider drops every message. It is used when no provider is configured.
type NoOpProvider struct{}

func (p *NoOpProvider) Name() string { return "noop" }

func (p *NoOpProvider) Send(ctx context.Context, msg Email) error {
	return nil
}
