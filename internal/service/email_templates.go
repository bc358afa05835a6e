package service

import (
	"fmt"

	"github.com/templui/paykit/internal/model"
)

func paymentReceiptEmailTemplate(p *model.Payment, billingURL, appName string) (string, string) {
	subject := fmt.Sprintf("Your %s receipt", appName)

	description := "Payment"
	if p.Description != nil && *p.Description != "" {
		description = *p.Description
	}

	body := fmt.Sprintf(`Thanks for your payment!

%s
Amount: %s
Reference: %s

Manage your billing: %s

Best,
The %s Team`, description, p.FormatAmount(), p.ProviderPaymentID, billingURL, appName)

	return subject, body
}
