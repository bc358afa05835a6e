package payment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/templui/paykit/internal/model"
)

const (
	HeaderStripeSignature       = "Stripe-Signature"
	HeaderWebhookID             = "Webhook-Id"
	HeaderWebhookTimestamp      = "Webhook-Timestamp"
	HeaderWebhookSignature      = "Webhook-Signature"
	HeaderPolarWebhookSignature = "Polar-Webhook-Signature"
	HeaderLemonSqueezySignature = "X-Signature"
)

// ExtractSignature reads the provider's signature header. ok is false when it is absent.
func ExtractSignature(provider string, h http.Header) (WebhookSignature, bool) {
	var sig WebhookSignature

	switch provider {
	case model.ProviderStripe:
		sig.Value = h.Get(HeaderStripeSignature)
	case model.ProviderPolar:
		sig.Value = h.Get(HeaderWebhookSignature)
		if sig.Value == "" {
			sig.Value = h.Get(HeaderPolarWebhookSignature)
		}
		sig.MessageID = h.Get(HeaderWebhookID)
		sig.Timestamp = h.Get(HeaderWebhookTimestamp)
	case model.ProviderLemonSqueezy:
		sig.Value = h.Get(HeaderLemonSqueezySignature)
	}

	return sig, sig.Value != ""
}

type envelope struct {
	Type      string          `json:"type"`
	Created   json.RawMessage `json:"created"`
	Timestamp json.RawMessage `json:"timestamp"`
	Meta      struct {
		EventName string `json:"event_name"`
	} `json:"meta"`
	Data json.RawMessage `json:"data"`
}

// ParseWebhookEvent normalizes a verified payload. It returns a nil event when the
// payload carries no event type, and an error when the payload is not a JSON object.
func ParseWebhookEvent(provider string, payload []byte) (*WebhookEvent, error) {
	var env envelope
	err := json.Unmarshal(payload, &env)
	if err != nil {
		return nil, fmt.Errorf("failed to parse webhook payload: %w", err)
	}

	event := &WebhookEvent{
		Provider: provider,
		Raw:      json.RawMessage(payload),
	}

	switch provider {
	case model.ProviderLemonSqueezy:
		event.Type = env.Meta.EventName
		event.Data = json.RawMessage(payload)
		event.OccurredAt = lemonSqueezyEventTime(env.Data)
	case model.ProviderStripe:
		event.Type = env.Type
		event.Data = objectOf(env.Data, payload)
		event.OccurredAt = unixTime(env.Created)
	default:
		event.Type = env.Type
		event.Data = objectOf(env.Data, payload)
		event.OccurredAt = rfc3339Time(env.Timestamp)
	}

	if event.Type == "" {
		return nil, nil
	}
	return event, nil
}

// objectOf returns data.object, else data, else the whole payload.
func objectOf(data json.RawMessage, payload []byte) json.RawMessage {
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return json.RawMessage(payload)
	}

	var wrapper struct {
		Object json.RawMessage `json:"object"`
	}
	if json.Unmarshal(data, &wrapper) == nil && len(wrapper.Object) > 0 {
		return wrapper.Object
	}
	return data
}

func lemonSqueezyEventTime(data json.RawMessage) time.Time {
	var d struct {
		Attributes struct {
			UpdatedAt string `json:"updated_at"`
			CreatedAt string `json:"created_at"`
		} `json:"attributes"`
	}
	if json.Unmarshal(data, &d) != nil {
		return time.Time{}
	}
	if t := parseTime(d.Attributes.UpdatedAt); t != nil {
		return *t
	}
	if t := parseTime(d.Attributes.CreatedAt); t != nil {
		return *t
	}
	return time.Time{}
}

func unixTime(raw json.RawMessage) time.Time {
	n, err := strconv.ParseInt(string(bytes.TrimSpace(raw)), 10, 64)
	if err != nil || n <= 0 {
		return time.Time{}
	}
	return time.Unix(n, 0).UTC()
}

func rfc3339Time(raw json.RawMessage) time.Time {
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return time.Time{}
	}
	if t := parseTime(s); t != nil {
		return *t
	}
	return time.Time{}
}
