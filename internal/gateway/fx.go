package gateway

import (
	"github.com/chapterhq/examslots/internal/config"
	"github.com/chapterhq/examslots/internal/gateway/adapters"
	"github.com/chapterhq/examslots/internal/gateway/adapters/paystack"
	"github.com/chapterhq/examslots/internal/gateway/domain"
	"go.uber.org/fx"
)

func newRegistry(cfg config.Config) *adapters.Registry {
	return adapters.NewRegistry(
		paystack.NewFactory(cfg.GatewayTimeout),
	)
}

func newAdapter(cfg config.Config, registry *adapters.Registry) (domain.Adapter, error) {
	return registry.NewAdapter(cfg.GatewayProvider, domain.AdapterConfig{
		Provider:    cfg.GatewayProvider,
		BaseURL:     cfg.GatewayBaseURL,
		SecretKey:   cfg.GatewaySecretKey,
		CallbackURL: cfg.GatewayCallbackURL,
	})
}

var Module = fx.Module("gateway",
	fx.Provide(
		newRegistry,
		newAdapter,
	),
)
