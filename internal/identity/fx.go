package identity

import (
	identitydomain "github.com/smallbiznis/zeltra/internal/identity/domain"
	"github.com/smallbiznis/zeltra/internal/identity/service"
	"go.uber.org/fx"
)

var Module = fx.Module("identity.service",
	fx.Provide(service.NewService),
	fx.Provide(func(svc identitydomain.Service) identitydomain.Resolver { return svc }),
)
