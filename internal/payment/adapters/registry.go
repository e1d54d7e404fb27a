package adapters

import (
	"strings"

	"github.com/turioshq/gateway/internal/payment/domain"
)

// Registry maps provider names to adapter factories. Providers register at
// wiring time; lookups are case-insensitive.
type Registry map[string]domain.AdapterFactory

func NewRegistry(factories ...domain.AdapterFactory) Registry {
	r := Registry{}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		if name := normalize(factory.Provider()); name != "" {
			r[name] = factory
		}
	}
	return r
}

func (r Registry) Has(provider string) bool {
	_, ok := r[normalize(provider)]
	return ok
}

func (r Registry) Adapter(provider string, cfg domain.AdapterConfig) (domain.PaymentAdapter, error) {
	factory, ok := r[normalize(provider)]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return factory.NewAdapter(cfg)
}

func normalize(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
