package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/templui/paykit/internal/model"
)

func testCatalog() Catalog {
	ids := map[string]string{
		"STRIPE_PRICE_PRO_MONTHLY":         "price_pro_m",
		"STRIPE_PRICE_PRO_YEARLY":          "price_pro_y",
		"POLAR_PRODUCT_PRO_MONTHLY":        "polar_pro",
		"LEMONSQUEEZY_VARIANT_PRO_MONTHLY": "2002",
	}
	return DefaultCatalog(func(key, def string) string {
		if v, ok := ids[key]; ok {
			return v
		}
		return def
	})
}

func TestCatalogNames(t *testing.T) {
	assert.Equal(t, []string{model.PlanFree, model.PlanStarter, model.PlanPro, model.PlanEnterprise}, testCatalog().Names())
}

func TestCatalogPlanForProductRoundTrip(t *testing.T) {
	c := testCatalog()

	for _, plan := range c.Plans {
		for provider, prices := range plan.Prices {
			for _, price := range prices {
				if price.ProductID == "" {
					continue
				}
				assert.Equal(t, plan.Name, c.PlanForProduct(provider, price.ProductID), "%s/%s", provider, price.ProductID)
			}
		}
	}

	assert.Equal(t, model.PlanPro, c.PlanForProduct(model.ProviderStripe, "price_pro_y"))
	assert.Equal(t, model.PlanFree, c.PlanForProduct(model.ProviderStripe, "price_unknown"))
	assert.Equal(t, model.PlanFree, c.PlanForProduct(model.ProviderStripe, ""))
	// Product ids are scoped by provider
	assert.Equal(t, model.PlanFree, c.PlanForProduct(model.ProviderPolar, "price_pro_m"))
}

func TestCatalogCheckoutPrice(t *testing.T) {
	c := testCatalog()

	price, ok := c.CheckoutPrice(model.PlanPro, model.ProviderStripe, model.IntervalYear)
	require.True(t, ok)
	assert.Equal(t, "price_pro_y", price.ProductID)
	assert.Equal(t, int64(29900), price.Amount)

	price, ok = c.CheckoutPrice(model.PlanPro, model.ProviderStripe, "")
	require.True(t, ok)
	assert.Equal(t, "price_pro_m", price.ProductID)
	assert.Equal(t, 14, price.TrialDays)

	// Polar only has a monthly product
	_, ok = c.CheckoutPrice(model.PlanPro, model.ProviderPolar, model.IntervalYear)
	assert.False(t, ok)

	price, ok = c.CheckoutPrice(model.PlanPro, model.ProviderPolar, "")
	require.True(t, ok)
	assert.Equal(t, "polar_pro", price.ProductID)

	_, ok = c.CheckoutPrice(model.PlanFree, model.ProviderStripe, "")
	assert.False(t, ok)
	_, ok = c.CheckoutPrice("platinum", model.ProviderStripe, "")
	assert.False(t, ok)
}

func TestCatalogPriceForProduct(t *testing.T) {
	c := testCatalog()

	price, ok := c.PriceForProduct(model.ProviderLemonSqueezy, "2002")
	require.True(t, ok)
	assert.Equal(t, model.IntervalMonth, price.Interval)
	assert.Equal(t, int64(2990), price.Amount)
	assert.True(t, price.SeatBased)

	_, ok = c.PriceForProduct(model.ProviderLemonSqueezy, "")
	assert.False(t, ok)
}
