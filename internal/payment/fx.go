package payment

import (
	"github.com/turioshq/gateway/internal/payment/adapters"
	"github.com/turioshq/gateway/internal/payment/adapters/stripe"
	"github.com/turioshq/gateway/internal/payment/checkout"
	"github.com/turioshq/gateway/internal/payment/repository"
	paymentservice "github.com/turioshq/gateway/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func() adapters.Registry {
		return adapters.NewRegistry(
			stripe.NewFactory(),
		)
	}),
	fx.Provide(paymentservice.NewService),
	fx.Provide(checkout.NewService),
)
