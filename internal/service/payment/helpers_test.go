package payment

import (
	"github.com/templui/paykit/internal/config"
)

var testPriceIDs = map[string]string{
	"STRIPE_PRICE_STARTER_MONTHLY":            "price_starter_m",
	"STRIPE_PRICE_STARTER_YEARLY":             "price_starter_y",
	"STRIPE_PRICE_PRO_MONTHLY":                "price_pro_m",
	"STRIPE_PRICE_PRO_YEARLY":                 "price_pro_y",
	"POLAR_PRODUCT_PRO_MONTHLY":               "polar_pro",
	"POLAR_PRODUCT_STARTER_MONTHLY":           "polar_starter",
	"LEMONSQUEEZY_VARIANT_PRO_MONTHLY":        "2002",
	"LEMONSQUEEZY_VARIANT_STARTER_MONTHLY":    "2001",
	"LEMONSQUEEZY_VARIANT_ENTERPRISE_MONTHLY": "2003",
}

func testCatalog() config.Catalog {
	return config.DefaultCatalog(func(key, def string) string {
		if v, ok := testPriceIDs[key]; ok {
			return v
		}
		return def
	})
}

func testSettings() settings {
	return settings{
		plans:           testCatalog(),
		successURL:      "https://app.test/success",
		cancelURL:       "https://app.test/cancel",
		portalReturnURL: "https://app.test/dashboard",
	}
}
