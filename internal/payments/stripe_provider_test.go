package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v78"
)

type stubIntentAPI struct {
	newFn func(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	getFn func(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

func (s *stubIntentAPI) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if s.newFn == nil {
		return nil, errors.New("unexpected New call")
	}
	return s.newFn(params)
}

func (s *stubIntentAPI) Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if s.getFn == nil {
		return nil, errors.New("unexpected Get call")
	}
	return s.getFn(id, params)
}

type stubRefundAPI struct {
	newFn func(params *stripe.RefundParams) (*stripe.Refund, error)
}

func (s *stubRefundAPI) New(params *stripe.RefundParams) (*stripe.Refund, error) {
	if s.newFn == nil {
		return nil, errors.New("unexpected refund call")
	}
	return s.newFn(params)
}

func testStripeProvider(t *testing.T, clients stripeClients, verify stripeWebhookVerifier) *StripeProvider {
	t.Helper()
	provider, err := NewStripeProvider(StripeProviderConfig{
		WebhookSecret: "whsec_test",
		Clients:       &clients,
		Verifier:      verify,
		Clock:         func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("new stripe provider: %v", err)
	}
	return provider
}

func TestStripeCreateIntentCarriesOrderMetadata(t *testing.T) {
	var captured *stripe.PaymentIntentParams
	intents := &stubIntentAPI{
		newFn: func(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			captured = params
			return &stripe.PaymentIntent{
				ID:           "pi_123",
				ClientSecret: "pi_123_secret",
				Amount:       9800,
				Currency:     stripe.CurrencyUSD,
				Created:      time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).Unix(),
			}, nil
		},
	}
	provider := testStripeProvider(t, stripeClients{intents: intents, refunds: &stubRefundAPI{}}, nil)

	intent, err := provider.CreateIntent(context.Background(), IntentRequest{
		OrderID:  "ord_42",
		Amount:   9800,
		Currency: "USD",
	})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}

	if captured == nil {
		t.Fatalf("expected intent params to be sent")
	}
	if got := captured.Metadata[metadataOrderKey]; got != "ord_42" {
		t.Fatalf("expected order metadata 'ord_42', got %q", got)
	}
	if intent.ClientSecret != "pi_123_secret" {
		t.Fatalf("unexpected client secret %q", intent.ClientSecret)
	}
	if intent.Currency != "USD" {
		t.Fatalf("expected currency USD, got %q", intent.Currency)
	}
}

func TestStripeCreateIntentRejectsInvalidInput(t *testing.T) {
	provider := testStripeProvider(t, stripeClients{intents: &stubIntentAPI{}, refunds: &stubRefundAPI{}}, nil)

	if _, err := provider.CreateIntent(context.Background(), IntentRequest{Amount: 100}); err == nil {
		t.Fatalf("expected error for missing order id")
	}
	if _, err := provider.CreateIntent(context.Background(), IntentRequest{OrderID: "ord_1", Amount: 0}); err == nil {
		t.Fatalf("expected error for non-positive amount")
	}
}

func TestNewStripeProviderRequiresCredentials(t *testing.T) {
	if _, err := NewStripeProvider(StripeProviderConfig{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func webhookEventJSON(t *testing.T, eventID, eventType string, intent stripe.PaymentIntent) stripe.Event {
	t.Helper()
	raw, err := json.Marshal(intent)
	if err != nil {
		t.Fatalf("marshal intent: %v", err)
	}
	return stripe.Event{
		ID:   eventID,
		Type: stripe.EventType(eventType),
		Data: &stripe.EventData{Raw: raw},
	}
}

func TestStripeParseWebhookSucceededEvent(t *testing.T) {
	event := webhookEventJSON(t, "evt_1", "payment_intent.succeeded", stripe.PaymentIntent{
		ID:       "pi_9",
		Amount:   9800,
		Currency: stripe.CurrencyUSD,
		Metadata: map[string]string{metadataOrderKey: "ord_9"},
	})
	verify := func(payload []byte, signature, secret string) (stripe.Event, error) {
		if secret != "whsec_test" {
			return stripe.Event{}, fmt.Errorf("unexpected secret %q", secret)
		}
		return event, nil
	}
	provider := testStripeProvider(t, stripeClients{intents: &stubIntentAPI{}, refunds: &stubRefundAPI{}}, verify)

	parsed, err := provider.ParseWebhook(context.Background(), []byte("{}"), "sig")
	if err != nil {
		t.Fatalf("parse webhook: %v", err)
	}
	if parsed.Kind != EventPaymentSucceeded {
		t.Fatalf("expected success kind, got %q", parsed.Kind)
	}
	if parsed.OrderRef != "ord_9" {
		t.Fatalf("expected order ref 'ord_9', got %q", parsed.OrderRef)
	}
	if parsed.IntentID != "pi_9" {
		t.Fatalf("expected intent id 'pi_9', got %q", parsed.IntentID)
	}
}

func TestStripeParseWebhookFailedEventCarriesMessage(t *testing.T) {
	event := webhookEventJSON(t, "evt_2", "payment_intent.payment_failed", stripe.PaymentIntent{
		ID:       "pi_10",
		Metadata: map[string]string{metadataOrderKey: "ord_10"},
		LastPaymentError: &stripe.Error{
			Msg: "card declined",
		},
	})
	verify := func(payload []byte, signature, secret string) (stripe.Event, error) {
		return event, nil
	}
	provider := testStripeProvider(t, stripeClients{intents: &stubIntentAPI{}, refunds: &stubRefundAPI{}}, verify)

	parsed, err := provider.ParseWebhook(context.Background(), []byte("{}"), "sig")
	if err != nil {
		t.Fatalf("parse webhook: %v", err)
	}
	if parsed.Kind != EventPaymentFailed {
		t.Fatalf("expected failed kind, got %q", parsed.Kind)
	}
	if parsed.FailureMessage != "card declined" {
		t.Fatalf("expected failure message, got %q", parsed.FailureMessage)
	}
}

func TestStripeParseWebhookIgnoresUnknownTypes(t *testing.T) {
	event := stripe.Event{ID: "evt_3", Type: "charge.updated", Data: &stripe.EventData{Raw: []byte("{}")}}
	verify := func(payload []byte, signature, secret string) (stripe.Event, error) {
		return event, nil
	}
	provider := testStripeProvider(t, stripeClients{intents: &stubIntentAPI{}, refunds: &stubRefundAPI{}}, verify)

	parsed, err := provider.ParseWebhook(context.Background(), []byte("{}"), "sig")
	if err != nil {
		t.Fatalf("parse webhook: %v", err)
	}
	if parsed.Kind != EventIgnored {
		t.Fatalf("expected ignored kind, got %q", parsed.Kind)
	}
}

func TestStripeParseWebhookSignatureFailure(t *testing.T) {
	verify := func(payload []byte, signature, secret string) (stripe.Event, error) {
		return stripe.Event{}, errors.New("bad signature")
	}
	provider := testStripeProvider(t, stripeClients{intents: &stubIntentAPI{}, refunds: &stubRefundAPI{}}, verify)

	if _, err := provider.ParseWebhook(context.Background(), []byte("{}"), "sig"); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected ErrSignatureInvalid, got %v", err)
	}
}

func TestStripeParseWebhookWithoutSecretFailsClosed(t *testing.T) {
	provider, err := NewStripeProvider(StripeProviderConfig{
		Clients: &stripeClients{intents: &stubIntentAPI{}, refunds: &stubRefundAPI{}},
	})
	if err != nil {
		t.Fatalf("new stripe provider: %v", err)
	}

	if _, err := provider.ParseWebhook(context.Background(), []byte("{}"), "sig"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
