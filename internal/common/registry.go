package common

import (
	"fmt"

	"ramp-quote-go/internal/models"
	"ramp-quote-go/internal/providers"
	"ramp-quote-go/internal/providers/banxa"
	"ramp-quote-go/internal/providers/bity"
	"ramp-quote-go/internal/providers/moonpay"
	"ramp-quote-go/internal/providers/paybis"
	"ramp-quote-go/internal/providers/revolut"
	"ramp-quote-go/internal/providers/simplex"

	"go.uber.org/zap"
)

// DefaultRegistry knows every built-in adapter.
func DefaultRegistry() *providers.Registry {
	registry := providers.NewRegistry()
	registry.Register(banxa.ProviderID, providers.Adapt(banxa.New))
	registry.Register(moonpay.ProviderID, providers.Adapt(moonpay.New))
	registry.Register(paybis.ProviderID, providers.Adapt(paybis.New))
	registry.Register(simplex.ProviderID, providers.Adapt(simplex.New))
	registry.Register(revolut.ProviderID, providers.Adapt(revolut.New))
	registry.Register(bity.ProviderID, providers.Adapt(bity.New))
	return registry
}

// BuildProviders constructs every configured provider in order. Any
// construction failure, typically a missing credential, aborts startup.
func BuildProviders(registry *providers.Registry, configs []models.ProviderConfig, deps providers.Deps) ([]providers.Provider, error) {
	built := make([]providers.Provider, 0, len(configs))
	for _, cfg := range configs {
		d := deps
		d.Config = cfg
		p, err := registry.Build(cfg.ID, d)
		if err != nil {
			return nil, fmt.Errorf("unable to build provider %s: %w", cfg.ID, err)
		}
		zap.L().Info("Provider configured",
			zap.String("provider", cfg.ID),
			zap.String("api_url", cfg.APIURL))
		built = append(built, p)
	}
	return built, nil
}
