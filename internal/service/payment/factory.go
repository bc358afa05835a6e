package payment

import (
	"fmt"
	"log/slog"

	"github.com/templui/paykit/internal/config"
	"github.com/templui/paykit/internal/model"
)

// NewProvider creates the payment provider selected by PAYMENT_PROVIDER.
// It is called once at startup and the result is shared by all callers.
func NewProvider(cfg *config.Config) (Provider, error) {
	provider := cfg.PaymentProvider
	if provider == "" {
		provider = model.ProviderStripe
	}

	slog.Info("initializing payment provider", "provider", provider)

	switch provider {
	case model.ProviderStripe:
		return NewStripeProvider(cfg)
	case model.ProviderPolar:
		return NewPolarProvider(cfg)
	case model.ProviderLemonSqueezy:
		return NewLemonSqueezyProvider(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown payment provider: %s (supported: stripe, polar, lemonsqueezy)", ErrConfiguration, provider)
	}
}

// settings is the provider-independent configuration every adapter carries.
type settings struct {
	plans           config.Catalog
	successURL      string
	cancelURL       string
	portalReturnURL string
}

func settingsFrom(cfg *config.Config) settings {
	return settings{
		plans:           cfg.Plans,
		successURL:      cfg.CheckoutSuccessURL,
		cancelURL:       cfg.CheckoutCancelURL,
		portalReturnURL: cfg.PortalReturnURL,
	}
}

func (s settings) checkoutPrice(provider, plan, interval string) (config.Price, error) {
	price, ok := s.plans.CheckoutPrice(plan, provider, interval)
	if !ok && interval != "" {
		return config.Price{}, fmt.Errorf("%w: no %s price configured for plan %s with interval %s", ErrConfiguration, provider, plan, interval)
	}
	if !ok {
		return config.Price{}, fmt.Errorf("%w: no %s prices configured for plan: %s", ErrConfiguration, provider, plan)
	}
	if price.ProductID == "" {
		return config.Price{}, fmt.Errorf("%w: no product ID configured for plan %s on %s", ErrConfiguration, plan, provider)
	}
	return price, nil
}
