package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ordella/api/internal/platform/httpx"
	"github.com/ordella/api/internal/services"
)

const maxWebhookBodySize = 256 * 1024

// WebhookHandlers receives asynchronous gateway notifications. Acknowledged
// events return 200 even when no order state changed, so the gateway stops
// retrying; only verification failures are rejected.
type WebhookHandlers struct {
	payments services.PaymentService
}

// NewWebhookHandlers constructs handlers backed by the payment service.
func NewWebhookHandlers(payments services.PaymentService) *WebhookHandlers {
	return &WebhookHandlers{payments: payments}
}

// Routes wires the /webhooks endpoints onto the provided router.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payment", h.handlePaymentWebhook)
}

type webhookAckResponse struct {
	Received bool   `json:"received"`
	Handled  bool   `json:"handled"`
	OrderID  string `json:"order_id,omitempty"`
}

func (h *WebhookHandlers) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service is unavailable", http.StatusServiceUnavailable))
		return
	}

	payload, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "webhook payload exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "webhook payload is required", http.StatusBadRequest))
		}
		return
	}

	result, err := h.payments.HandleWebhook(ctx, services.WebhookCommand{
		Provider:  "stripe",
		Payload:   payload,
		Signature: r.Header.Get("Stripe-Signature"),
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, webhookAckResponse{
		Received: result.Received,
		Handled:  result.Handled,
		OrderID:  result.OrderID,
	})
}
