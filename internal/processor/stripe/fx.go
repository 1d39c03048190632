package stripe

import (
	"github.com/smallbiznis/schoolbilling/internal/config"
	"github.com/smallbiznis/schoolbilling/internal/processor"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("processor.stripe",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config, billing *config.BillingConfigHolder, log *zap.Logger) processor.Processor {
	if cfg.Stripe.SecretKey == "" {
		log.Warn("stripe secret key not set, processor calls will fail")
	}
	if cfg.Stripe.WebhookSecret == "" {
		log.Warn("stripe webhook secret not set, webhooks will be rejected")
	}
	return New(Config{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		AccountType:   cfg.Stripe.ConnectAccountType,
		Currency:      billing.Get().Currency,
	}, nil)
}
