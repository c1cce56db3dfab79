package provider

import (
	"clawderous/internal/config"

	"go.uber.org/zap"
)

// FromConfig registers every known adapter, freezes the registry and
// resolves the one named by cfg.EmailProvider.
func FromConfig(cfg *config.Config, logger *zap.Logger) (*Registry, Provider, error) {
	client := NewHTTPClient(cfg.SendTimeout)

	reg := NewRegistry()
	adapters := []Provider{
		NewResend(ResendConfig{
			APIKey:        cfg.ResendAPIKey,
			WebhookSecret: cfg.ResendWebhookSecret,
			From:          cfg.FromAddress,
			Tolerance:     cfg.SignatureTolerance,
			Client:        client,
			Logger:        logger.Named(ResendName),
		}),
		NewSendGrid(SendGridConfig{
			APIKey:           cfg.SendGridAPIKey,
			WebhookPublicKey: cfg.SendGridWebhookPublicKey,
			From:             cfg.FromAddress,
			Tolerance:        cfg.SignatureTolerance,
			Client:           client,
			Logger:           logger.Named(SendGridName),
		}),
	}
	for _, p := range adapters {
		if err := reg.Register(p); err != nil {
			return nil, nil, err
		}
	}
	reg.Freeze()

	active, err := reg.Resolve(cfg.EmailProvider)
	if err != nil {
		return nil, nil, err
	}
	return reg, active, nil
}
