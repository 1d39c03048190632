package paymentprovider

import (
	"github.com/smallbiznis/schoolbilling/internal/paymentprovider/service"
	"go.uber.org/fx"
)

var Module = fx.Module("paymentprovider.service",
	fx.Provide(service.New),
)
