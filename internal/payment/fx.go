package payment

import (
	"github.com/smallbiznis/schoolbilling/internal/payment/repository"
	"github.com/smallbiznis/schoolbilling/internal/payment/service"
	"github.com/smallbiznis/schoolbilling/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(webhook.NewService),
)
