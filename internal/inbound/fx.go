package inbound

import (
	"github.com/turioshq/gateway/internal/config"
	"github.com/turioshq/gateway/internal/inbound/normalizer"
	"go.uber.org/fx"
)

var Module = fx.Module("inbound.normalizer",
	fx.Provide(func(cfg config.Config) *normalizer.Normalizer {
		return normalizer.New(normalizer.Config{
			TimestampOffset: cfg.TimestampOffset,
		})
	}),
)
