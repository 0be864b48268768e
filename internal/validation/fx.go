package validation

import (
	"github.com/smallbiznis/consigna/internal/validation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("validation.service",
	fx.Provide(service.New),
)
