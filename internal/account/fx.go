package account

import (
	"github.com/turioshq/gateway/internal/account/repository"
	"github.com/turioshq/gateway/internal/account/service"
	"github.com/turioshq/gateway/internal/cache"
	"go.uber.org/fx"
)

var Module = fx.Module("account.service",
	fx.Provide(cache.NewBindingResolverCache),
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
