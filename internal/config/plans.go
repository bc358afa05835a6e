package config

import (
	"github.com/templui/paykit/internal/model"
)

const (
	PriceTypeRecurring = "recurring"
	PriceTypeOneTime   = "one_time"
)

// Price is one vendor price (Stripe price, Polar product, Lemon Squeezy variant) for a plan.
type Price struct {
	ProductID string
	Interval  string // model.IntervalMonth, model.IntervalYear or "" for one-time
	Amount    int64  // minor currency unit
	Currency  string
	SeatBased bool
	TrialDays int
	Type      string
}

type Plan struct {
	Name        string
	Title       string
	Description string
	Free        bool
	Recommended bool
	Features    []string
	MaxSeats    int
	// Prices by provider name
	Prices map[string][]Price
}

// Catalog is the ordered list of plans offered by the application.
type Catalog struct {
	Plans []Plan
}

// DefaultCatalog builds the plan catalog, reading vendor price ids through env.
func DefaultCatalog(env func(key, def string) string) Catalog {
	return Catalog{Plans: []Plan{
		{
			Name:        model.PlanFree,
			Title:       "Free",
			Description: "Perfect for getting started",
			Free:        true,
			Features:    []string{"Up to 3 projects", "Basic analytics", "Community support", "Standard templates"},
		},
		{
			Name:        model.PlanStarter,
			Title:       "Starter",
			Description: "Great for small teams",
			Features:    []string{"Up to 10 projects", "Advanced analytics", "Email support", "Premium templates", "Custom integrations"},
			Prices: map[string][]Price{
				model.ProviderStripe: {
					recurring(env("STRIPE_PRICE_STARTER_MONTHLY", ""), model.IntervalMonth, 990, false, 14),
					recurring(env("STRIPE_PRICE_STARTER_YEARLY", ""), model.IntervalYear, 9900, false, 14),
				},
				model.ProviderPolar: {
					recurring(env("POLAR_PRODUCT_STARTER_MONTHLY", ""), model.IntervalMonth, 990, false, 14),
				},
				model.ProviderLemonSqueezy: {
					recurring(env("LEMONSQUEEZY_VARIANT_STARTER_MONTHLY", ""), model.IntervalMonth, 990, false, 14),
				},
			},
		},
		{
			Name:        model.PlanPro,
			Title:       "Pro",
			Description: "For growing businesses",
			Recommended: true,
			MaxSeats:    50,
			Features: []string{
				"Unlimited projects", "Real-time analytics", "Priority support", "White-label options",
				"Advanced integrations", "Team collaboration", "Custom workflows",
			},
			Prices: map[string][]Price{
				model.ProviderStripe: {
					recurring(env("STRIPE_PRICE_PRO_MONTHLY", ""), model.IntervalMonth, 2990, true, 14),
					recurring(env("STRIPE_PRICE_PRO_YEARLY", ""), model.IntervalYear, 29900, true, 14),
				},
				model.ProviderPolar: {
					recurring(env("POLAR_PRODUCT_PRO_MONTHLY", ""), model.IntervalMonth, 2990, true, 14),
				},
				model.ProviderLemonSqueezy: {
					recurring(env("LEMONSQUEEZY_VARIANT_PRO_MONTHLY", ""), model.IntervalMonth, 2990, true, 14),
				},
			},
		},
		{
			Name:        model.PlanEnterprise,
			Title:       "Enterprise",
			Description: "For large organizations",
			Features: []string{
				"Everything in Pro", "Dedicated account manager", "Custom contracts", "SLA guarantees",
				"Advanced security", "Unlimited seats", "Custom integrations", "On-premise deployment",
			},
			Prices: map[string][]Price{
				model.ProviderStripe: {
					recurring(env("STRIPE_PRICE_ENTERPRISE_MONTHLY", ""), model.IntervalMonth, 9990, true, 30),
					recurring(env("STRIPE_PRICE_ENTERPRISE_YEARLY", ""), model.IntervalYear, 99900, true, 30),
				},
				model.ProviderPolar: {
					recurring(env("POLAR_PRODUCT_ENTERPRISE_MONTHLY", ""), model.IntervalMonth, 9990, true, 30),
				},
				model.ProviderLemonSqueezy: {
					recurring(env("LEMONSQUEEZY_VARIANT_ENTERPRISE_MONTHLY", ""), model.IntervalMonth, 9990, true, 30),
				},
			},
		},
	}}
}

func recurring(productID, interval string, amount int64, seatBased bool, trialDays int) Price {
	return Price{
		ProductID: productID,
		Interval:  interval,
		Amount:    amount,
		Currency:  "usd",
		SeatBased: seatBased,
		TrialDays: trialDays,
		Type:      PriceTypeRecurring,
	}
}

// Names returns the plan names in catalog order.
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c.Plans))
	for _, p := range c.Plans {
		names = append(names, p.Name)
	}
	return names
}

func (c Catalog) Plan(name string) (Plan, bool) {
	for _, p := range c.Plans {
		if p.Name == name {
			return p, true
		}
	}
	return Plan{}, false
}

// Prices returns the prices configured for plan on provider.
func (c Catalog) Prices(plan, provider string) []Price {
	p, ok := c.Plan(plan)
	if !ok {
		return nil
	}
	return p.Prices[provider]
}

// CheckoutPrice picks the price used for a checkout. An explicit interval must
// match a configured price. Without one, the monthly price wins, then the first
// configured one.
func (c Catalog) CheckoutPrice(plan, provider, interval string) (Price, bool) {
	prices := c.Prices(plan, provider)
	if len(prices) == 0 {
		return Price{}, false
	}
	if interval != "" {
		for _, p := range prices {
			if p.Interval == interval {
				return p, true
			}
		}
		return Price{}, false
	}
	for _, p := range prices {
		if p.Interval == model.IntervalMonth {
			return p, true
		}
	}
	return prices[0], true
}

// PlanForProduct reverse-maps a vendor product id to the plan owning it.
// Unknown or empty ids resolve to the free plan.
func (c Catalog) PlanForProduct(provider, productID string) string {
	if productID == "" {
		return model.PlanFree
	}
	for _, p := range c.Plans {
		for _, price := range p.Prices[provider] {
			if price.ProductID == productID {
				return p.Name
			}
		}
	}
	return model.PlanFree
}

// PriceForProduct returns the catalog price carrying productID on provider.
func (c Catalog) PriceForProduct(provider, productID string) (Price, bool) {
	if productID == "" {
		return Price{}, false
	}
	for _, p := range c.Plans {
		for _, price := range p.Prices[provider] {
			if price.ProductID == productID {
				return price, true
			}
		}
	}
	return Price{}, false
}
