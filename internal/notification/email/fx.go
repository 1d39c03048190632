package email

import (
	"strings"

	"github.com/smallbiznis/schoolbilling/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notification.email",
	fx.Provide(NewFromConfig),
)

// NewFromConfig falls back to the no-op provider when credentials are missing.
func NewFromConfig(cfg config.Config, log *zap.Logger) Provider {
	emailCfg := cfg.Email
	switch strings.ToLower(strings.TrimSpace(emailCfg.Provider)) {
	case "sendgrid":
		if emailCfg.SendGridKey != "" {
			return NewSendGrid(emailCfg.SendGridKey, emailCfg.FromName, emailCfg.FromEmail)
		}
		log.Warn("sendgrid selected without an api key, email disabled")
	case "smtp":
		if emailCfg.SMTPHost != "" {
			return NewSMTP(SMTPConfig{
				Host:     emailCfg.SMTPHost,
				Port:     emailCfg.SMTPPort,
				Username: emailCfg.SMTPUsername,
				Password: emailCfg.SMTPPassword,
				From:     emailCfg.FromEmail,
			})
		}
		log.Warn("smtp selected without a host, email disabled")
	}
	return &NoOpProvider{}
}
