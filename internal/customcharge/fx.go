package customcharge

import (
	"github.com/smallbiznis/schoolbilling/internal/customcharge/repository"
	"github.com/smallbiznis/schoolbilling/internal/customcharge/service"
	"go.uber.org/fx"
)

var Module = fx.Module("customcharge.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
