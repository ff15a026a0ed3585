package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/ordella/api/internal/domain"
	"github.com/ordella/api/internal/payments"
	"github.com/ordella/api/internal/repositories"
)

var (
	// ErrPaymentInvalidInput signals the caller provided invalid data.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentOrderNotFound indicates the order for the authorization is missing.
	ErrPaymentOrderNotFound = errors.New("payment: order not found")
	// ErrPaymentOrderNotPayable indicates the order is not in a payable status.
	ErrPaymentOrderNotPayable = errors.New("payment: order not payable")
	// ErrPaymentGatewayUnavailable indicates the gateway is unconfigured or unreachable.
	// Authorization fails closed, never falling back to an unauthenticated path.
	ErrPaymentGatewayUnavailable = errors.New("payment: gateway unavailable")
	// ErrPaymentSignatureInvalid indicates webhook authenticity verification failed.
	ErrPaymentSignatureInvalid = errors.New("payment: webhook signature invalid")
)

// PaymentGateway is the slice of the payments manager this service consumes.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, paymentCtx payments.PaymentContext, req payments.IntentRequest) (payments.Intent, error)
	ParseWebhook(ctx context.Context, paymentCtx payments.PaymentContext, payload []byte, signature string) (payments.WebhookEvent, error)
}

// PaymentServiceDeps bundles collaborators required to construct the payment service.
type PaymentServiceDeps struct {
	Gateway     PaymentGateway
	Orders      repositories.OrderRepository
	Lifecycle   OrderService
	Clock       func() time.Time
	Logger      Logger
	CallTimeout time.Duration
}

type paymentService struct {
	gateway   PaymentGateway
	orders    repositories.OrderRepository
	lifecycle OrderService
	clock     func() time.Time
	timeout   time.Duration
	logger    Logger
}

const defaultGatewayTimeout = 15 * time.Second

// NewPaymentService wires dependencies into a concrete PaymentService
// implementation. A nil gateway is a valid configuration: every authorization
// attempt then fails with ErrPaymentGatewayUnavailable.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment service: order repository is required")
	}
	if deps.Lifecycle == nil {
		return nil, errors.New("payment service: order lifecycle is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	timeout := deps.CallTimeout
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}

	return &paymentService{
		gateway:   deps.Gateway,
		orders:    deps.Orders,
		lifecycle: deps.Lifecycle,
		clock:     func() time.Time { return clock().UTC() },
		timeout:   timeout,
		logger:    logger,
	}, nil
}

// Authorize creates one gateway authorization for the order's frozen total and
// records the intent reference on the order.
func (s *paymentService) Authorize(ctx context.Context, orderID string) (PaymentAuthorization, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return PaymentAuthorization{}, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}
	if s.gateway == nil {
		return PaymentAuthorization{}, fmt.Errorf("%w: no gateway configured", ErrPaymentGatewayUnavailable)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return PaymentAuthorization{}, s.mapRepositoryError(err)
	}
	if order.Status != domain.OrderStatusPending {
		return PaymentAuthorization{}, fmt.Errorf("%w: order %s is %s", ErrPaymentOrderNotPayable, orderID, order.Status)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	intent, err := s.gateway.CreateIntent(callCtx, payments.PaymentContext{}, payments.IntentRequest{
		OrderID:        order.ID,
		Amount:         order.Total,
		Currency:       order.Currency,
		Description:    "Order " + order.Number,
		IdempotencyKey: "authorize-" + order.ID,
	})
	if err != nil {
		if errors.Is(err, payments.ErrNotConfigured) || errors.Is(err, payments.ErrUnsupportedProvider) {
			return PaymentAuthorization{}, fmt.Errorf("%w: %v", ErrPaymentGatewayUnavailable, err)
		}
		s.logger(ctx, "payment.authorize.failed", map[string]any{
			"orderID": order.ID,
			"error":   err.Error(),
		})
		return PaymentAuthorization{}, fmt.Errorf("%w: %v", ErrPaymentGatewayUnavailable, err)
	}

	if _, err := s.orders.SetPaymentIntent(ctx, order.ID, intent.Provider, intent.ID, s.clock()); err != nil {
		return PaymentAuthorization{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "payment.authorized", map[string]any{
		"orderID":  order.ID,
		"intentID": intent.ID,
		"provider": intent.Provider,
		"amount":   order.Total,
	})

	return PaymentAuthorization{
		Provider:     intent.Provider,
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       order.Total,
		Currency:     order.Currency,
	}, nil
}

// HandleWebhook verifies and applies a gateway notification. Only a valid,
// recognized event about a known order changes state; everything else is
// acknowledged without side effects.
func (s *paymentService) HandleWebhook(ctx context.Context, cmd WebhookCommand) (WebhookResult, error) {
	if s.gateway == nil {
		return WebhookResult{}, fmt.Errorf("%w: no gateway configured", ErrPaymentGatewayUnavailable)
	}
	if len(cmd.Payload) == 0 {
		return WebhookResult{}, fmt.Errorf("%w: payload is required", ErrPaymentInvalidInput)
	}

	event, err := s.gateway.ParseWebhook(ctx, payments.PaymentContext{PreferredProvider: cmd.Provider}, cmd.Payload, cmd.Signature)
	if err != nil {
		switch {
		case errors.Is(err, payments.ErrSignatureInvalid):
			s.logger(ctx, "payment.webhook.signature_invalid", map[string]any{"error": err.Error()})
			return WebhookResult{}, fmt.Errorf("%w: %v", ErrPaymentSignatureInvalid, err)
		case errors.Is(err, payments.ErrNotConfigured), errors.Is(err, payments.ErrUnsupportedProvider):
			return WebhookResult{}, fmt.Errorf("%w: %v", ErrPaymentGatewayUnavailable, err)
		default:
			return WebhookResult{}, fmt.Errorf("%w: %v", ErrPaymentGatewayUnavailable, err)
		}
	}

	if event.Kind == payments.EventIgnored {
		s.logger(ctx, "payment.webhook.ignored", map[string]any{
			"eventID": event.ID,
			"type":    event.Type,
		})
		return WebhookResult{Received: true}, nil
	}

	order, found, err := s.resolveOrder(ctx, event)
	if err != nil {
		return WebhookResult{}, err
	}
	if !found {
		s.logger(ctx, "payment.webhook.unknown_order", map[string]any{
			"eventID":  event.ID,
			"orderRef": event.OrderRef,
			"intentID": event.IntentID,
		})
		return WebhookResult{Received: true}, nil
	}

	outcome := domain.PaymentOutcomeAuthorized
	if event.Kind == payments.EventPaymentFailed {
		outcome = domain.PaymentOutcomeFailed
	}

	if _, err := s.lifecycle.ApplyPaymentOutcome(ctx, PaymentOutcomeCommand{
		OrderID:    order.ID,
		EventID:    event.ID,
		Outcome:    outcome,
		IntentID:   event.IntentID,
		Provider:   event.Provider,
		FailureMsg: event.FailureMessage,
	}); err != nil {
		return WebhookResult{}, err
	}

	return WebhookResult{Received: true, Handled: true, OrderID: order.ID}, nil
}

// resolveOrder prefers the correlation metadata and falls back to the intent index.
func (s *paymentService) resolveOrder(ctx context.Context, event payments.WebhookEvent) (domain.Order, bool, error) {
	if ref := strings.TrimSpace(event.OrderRef); ref != "" {
		order, err := s.orders.FindByID(ctx, ref)
		if err == nil {
			return order, true, nil
		}
		if !isRepoNotFound(err) {
			return domain.Order{}, false, s.mapRepositoryError(err)
		}
	}
	if intentID := strings.TrimSpace(event.IntentID); intentID != "" {
		order, err := s.orders.FindByIntent(ctx, intentID)
		if err == nil {
			return order, true, nil
		}
		if !isRepoNotFound(err) {
			return domain.Order{}, false, s.mapRepositoryError(err)
		}
	}
	return domain.Order{}, false, nil
}

func (s *paymentService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrPaymentOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrPaymentOrderNotPayable, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrPaymentGatewayUnavailable, err)
}
