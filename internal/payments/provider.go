package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// EventKind classifies a parsed webhook notification.
type EventKind string

const (
	// EventPaymentSucceeded indicates the gateway captured the payment.
	EventPaymentSucceeded EventKind = "payment_succeeded"
	// EventPaymentFailed indicates the gateway reports a terminal failure for this attempt.
	EventPaymentFailed EventKind = "payment_failed"
	// EventIgnored indicates an event type this adapter does not act on.
	EventIgnored EventKind = "ignored"
)

var (
	// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
	ErrUnsupportedProvider = errors.New("payments: unsupported provider")
	// ErrNotConfigured indicates the gateway credentials or signing secret are absent.
	// Callers must fail closed, never fall through to an unauthenticated path.
	ErrNotConfigured = errors.New("payments: gateway not configured")
	// ErrSignatureInvalid indicates webhook authenticity verification failed.
	ErrSignatureInvalid = errors.New("payments: webhook signature invalid")
)

// IntentRequest captures the payload required to create a payment authorization.
// The order id travels as correlation metadata so webhooks can resolve the order.
type IntentRequest struct {
	OrderID        string
	Amount         int64
	Currency       string
	Description    string
	IdempotencyKey string
	Metadata       map[string]string
}

// Intent is the gateway-side authorization handle returned to the client.
type Intent struct {
	ID           string
	Provider     string
	ClientSecret string
	Amount       int64
	Currency     string
	CreatedAt    time.Time
}

// RefundRequest defines a gateway refund attempt against an intent.
type RefundRequest struct {
	IntentID       string
	Amount         *int64
	Reason         string
	IdempotencyKey string
	Metadata       map[string]string
}

// RefundDetails normalises the gateway refund response.
type RefundDetails struct {
	ID       string
	Provider string
	IntentID string
	Amount   int64
	Currency string
}

// WebhookEvent is the normalised, verified gateway notification.
type WebhookEvent struct {
	ID             string
	Kind           EventKind
	Provider       string
	Type           string
	OrderRef       string
	IntentID       string
	Amount         int64
	Currency       string
	FailureMessage string
}

// Provider defines the contract for gateway adapters to implement.
type Provider interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	Refund(ctx context.Context, req RefundRequest) (RefundDetails, error)
	ParseWebhook(ctx context.Context, payload []byte, signature string) (WebhookEvent, error)
}

// Manager coordinates provider selection and exposes the aggregated interface.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the default provider.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = provider
	}
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	copyMap := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := strings.TrimSpace(strings.ToLower(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		copyMap[key] = v
	}
	m := &Manager{
		providers: copyMap,
	}
	if _, ok := copyMap["stripe"]; ok {
		m.defaultProvider = "stripe"
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// PaymentContext defines the hints available when selecting a provider.
type PaymentContext struct {
	PreferredProvider string
}

func (m *Manager) resolveProvider(ctx PaymentContext) (string, Provider, error) {
	if m == nil {
		return "", nil, ErrNotConfigured
	}
	if len(m.providers) == 0 {
		return "", nil, ErrNotConfigured
	}
	if provider := strings.TrimSpace(strings.ToLower(ctx.PreferredProvider)); provider != "" {
		if p, ok := m.providers[provider]; ok {
			return provider, p, nil
		}
		return "", nil, ErrUnsupportedProvider
	}
	if def := strings.TrimSpace(strings.ToLower(m.defaultProvider)); def != "" {
		if p, ok := m.providers[def]; ok {
			return def, p, nil
		}
	}
	if len(m.providers) == 1 {
		for key, p := range m.providers {
			return key, p, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

// CreateIntent delegates to the resolved provider.
func (m *Manager) CreateIntent(ctx context.Context, paymentCtx PaymentContext, req IntentRequest) (Intent, error) {
	key, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return Intent{}, err
	}
	intent, err := provider.CreateIntent(ctx, req)
	if err != nil {
		return Intent{}, err
	}
	intent.Provider = key
	return intent, nil
}

// Refund delegates to the resolved provider.
func (m *Manager) Refund(ctx context.Context, paymentCtx PaymentContext, req RefundRequest) (RefundDetails, error) {
	key, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return RefundDetails{}, err
	}
	details, err := provider.Refund(ctx, req)
	if err != nil {
		return RefundDetails{}, err
	}
	details.Provider = key
	return details, nil
}

// ParseWebhook delegates verification and normalisation to the resolved provider.
func (m *Manager) ParseWebhook(ctx context.Context, paymentCtx PaymentContext, payload []byte, signature string) (WebhookEvent, error) {
	key, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return WebhookEvent{}, err
	}
	event, err := provider.ParseWebhook(ctx, payload, signature)
	if err != nil {
		return WebhookEvent{}, err
	}
	event.Provider = key
	return event, nil
}
