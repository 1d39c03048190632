package school

import (
	"github.com/smallbiznis/schoolbilling/internal/school/repository"
	"github.com/smallbiznis/schoolbilling/internal/school/service"
	"go.uber.org/fx"
)

var Module = fx.Module("school.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
