package notification

import (
	"github.com/smallbiznis/schoolbilling/internal/notification/email"
	"github.com/smallbiznis/schoolbilling/internal/notification/repository"
	"github.com/smallbiznis/schoolbilling/internal/notification/service"
	"go.uber.org/fx"
)

var Module = fx.Module("notification.service",
	email.Module,
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
