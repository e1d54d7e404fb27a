package contact

import (
	"github.com/turioshq/gateway/internal/contact/repository"
	"github.com/turioshq/gateway/internal/contact/service"
	"go.uber.org/fx"
)

var Module = fx.Module("contact.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
