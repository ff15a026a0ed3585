package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ordella/api/internal/platform/httpx"
	"github.com/ordella/api/internal/services"
)

const maxOrderBodySize = 32 * 1024

// OrderHandlers exposes the shopper-facing order endpoints: checkout, order
// lookup, and payment intent creation.
type OrderHandlers struct {
	orders   services.OrderService
	payments services.PaymentService
}

// NewOrderHandlers constructs handlers backed by the order and payment services.
func NewOrderHandlers(orders services.OrderService, payments services.PaymentService) *OrderHandlers {
	return &OrderHandlers{orders: orders, payments: payments}
}

// Routes wires the /orders endpoints onto the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createOrder)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}/payment-intent", h.createPaymentIntent)
}

type addressRequest struct {
	Recipient  string `json:"recipient"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	Region     string `json:"region"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone"`
}

func (a addressRequest) toAddress() services.Address {
	return services.Address{
		Recipient:  a.Recipient,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		Region:     a.Region,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		Phone:      a.Phone,
	}
}

type createOrderRequest struct {
	CartID          string          `json:"cart_id"`
	Email           string          `json:"email"`
	CustomerRef     string          `json:"customer_ref"`
	DiscountCode    string          `json:"discount_code"`
	ShippingAddress addressRequest  `json:"shipping_address"`
	BillingAddress  *addressRequest `json:"billing_address"`
	Notes           string          `json:"notes"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeOrderBodyError(ctx, w, err)
		return
	}
	var req createOrderRequest
	if err := decodeJSONBody(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	cmd := services.CreateOrderCommand{
		CartID:          req.CartID,
		Email:           req.Email,
		CustomerRef:     req.CustomerRef,
		DiscountCode:    req.DiscountCode,
		ShippingAddress: req.ShippingAddress.toAddress(),
		Notes:           req.Notes,
	}
	if req.BillingAddress != nil {
		cmd.BillingAddress = req.BillingAddress.toAddress()
	}

	order, err := h.orders.CreateFromCart(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildOrderPayload(order))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	order, err := h.orders.GetOrder(ctx, chi.URLParam(r, "orderID"))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

type paymentIntentResponse struct {
	Provider     string `json:"provider"`
	IntentID     string `json:"intent_id"`
	ClientSecret string `json:"client_secret"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

func (h *OrderHandlers) createPaymentIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service is unavailable", http.StatusServiceUnavailable))
		return
	}

	auth, err := h.payments.Authorize(ctx, chi.URLParam(r, "orderID"))
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, paymentIntentResponse{
		Provider:     auth.Provider,
		IntentID:     auth.IntentID,
		ClientSecret: auth.ClientSecret,
		Amount:       auth.Amount,
		Currency:     auth.Currency,
	})
}

func writeOrderBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	}
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("cart_empty", "cart has no items", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCartNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_not_found", "cart not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderIllegalTransition):
		httpx.WriteError(ctx, w, httpx.NewError("illegal_transition", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order was modified concurrently; retry", http.StatusConflict))
	case errors.Is(err, services.ErrOrderRefundExcessive):
		httpx.WriteError(ctx, w, httpx.NewError("refund_excessive", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrOrderRefundNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("refund_not_found", "refund not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderRefundInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("refund_invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderRefundGatewayFailed):
		httpx.WriteError(ctx, w, httpx.NewError("refund_gateway_failed", "payment gateway rejected the refund", http.StatusBadGateway))
	case errors.Is(err, services.ErrDiscountInvalid),
		errors.Is(err, services.ErrDiscountInactive),
		errors.Is(err, services.ErrDiscountNotYetValid),
		errors.Is(err, services.ErrDiscountExpired),
		errors.Is(err, services.ErrDiscountExhausted),
		errors.Is(err, services.ErrDiscountPerUserLimitReached),
		errors.Is(err, services.ErrDiscountMinimumNotMet),
		errors.Is(err, services.ErrDiscountNotApplicable):
		httpx.WriteError(ctx, w, httpx.NewError("discount_invalid", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrOrderUnavailable), errors.Is(err, services.ErrPricingUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "order request failed", http.StatusInternalServerError))
	}
}

func writePaymentError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrPaymentInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPaymentOrderNotPayable):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_payable", "order is not awaiting payment", http.StatusConflict))
	case errors.Is(err, services.ErrPaymentSignatureInvalid):
		httpx.WriteError(ctx, w, httpx.NewError("signature_invalid", "webhook signature verification failed", http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentGatewayUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("payment_gateway_unavailable", "payment gateway is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("payment_error", "payment request failed", http.StatusInternalServerError))
	}
}

type addressPayload struct {
	Recipient  string `json:"recipient,omitempty"`
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

func buildAddressPayload(addr services.Address) addressPayload {
	return addressPayload{
		Recipient:  addr.Recipient,
		Line1:      addr.Line1,
		Line2:      addr.Line2,
		City:       addr.City,
		Region:     addr.Region,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
		Phone:      addr.Phone,
	}
}

type orderLinePayload struct {
	ID         string `json:"id"`
	ProductRef string `json:"product_ref"`
	VariantRef string `json:"variant_ref,omitempty"`
	SKU        string `json:"sku"`
	Title      string `json:"title"`
	Quantity   int64  `json:"quantity"`
	UnitPrice  int64  `json:"unit_price"`
	Total      int64  `json:"total"`
}

type refundPayload struct {
	ID          string `json:"id"`
	Amount      int64  `json:"amount"`
	Reason      string `json:"reason,omitempty"`
	Status      string `json:"status"`
	ProcessedBy string `json:"processed_by,omitempty"`
	ProcessedAt string `json:"processed_at,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

type orderPayload struct {
	ID               string             `json:"id"`
	Number           string             `json:"number"`
	Status           string             `json:"status"`
	Email            string             `json:"email"`
	CustomerRef      string             `json:"customer_ref,omitempty"`
	Currency         string             `json:"currency"`
	Lines            []orderLinePayload `json:"lines"`
	Subtotal         int64              `json:"subtotal"`
	DiscountAmount   int64              `json:"discount_amount"`
	Tax              int64              `json:"tax"`
	ShippingCost     int64              `json:"shipping_cost"`
	Total            int64              `json:"total"`
	DiscountCode     string             `json:"discount_code,omitempty"`
	TaxName          string             `json:"tax_name,omitempty"`
	ShippingName     string             `json:"shipping_name,omitempty"`
	ShippingAddress  addressPayload     `json:"shipping_address"`
	BillingAddress   addressPayload     `json:"billing_address"`
	PaymentProvider  string             `json:"payment_provider,omitempty"`
	PaymentIntentID  string             `json:"payment_intent_id,omitempty"`
	LastPaymentError string             `json:"last_payment_error,omitempty"`
	Notes            string             `json:"notes,omitempty"`
	Refunds          []refundPayload    `json:"refunds,omitempty"`
	RefundedTotal    int64              `json:"refunded_total"`
	CreatedAt        string             `json:"created_at,omitempty"`
	UpdatedAt        string             `json:"updated_at,omitempty"`
	PaidAt           string             `json:"paid_at,omitempty"`
	ShippedAt        string             `json:"shipped_at,omitempty"`
	CancelledAt      string             `json:"cancelled_at,omitempty"`
	RefundedAt       string             `json:"refunded_at,omitempty"`
}

func buildOrderPayload(order services.Order) orderPayload {
	lines := make([]orderLinePayload, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, orderLinePayload{
			ID:         line.ID,
			ProductRef: line.ProductRef,
			VariantRef: line.VariantRef,
			SKU:        line.SKU,
			Title:      line.Title,
			Quantity:   line.Quantity,
			UnitPrice:  line.UnitPrice,
			Total:      line.Total,
		})
	}
	refunds := make([]refundPayload, 0, len(order.Refunds))
	for _, refund := range order.Refunds {
		entry := refundPayload{
			ID:          refund.ID,
			Amount:      refund.Amount,
			Reason:      refund.Reason,
			Status:      string(refund.Status),
			ProcessedBy: refund.ProcessedBy,
			CreatedAt:   formatTime(refund.CreatedAt),
		}
		if refund.ProcessedAt != nil {
			entry.ProcessedAt = formatTime(*refund.ProcessedAt)
		}
		refunds = append(refunds, entry)
	}

	payload := orderPayload{
		ID:               order.ID,
		Number:           order.Number,
		Status:           string(order.Status),
		Email:            order.Email,
		CustomerRef:      order.CustomerRef,
		Currency:         order.Currency,
		Lines:            lines,
		Subtotal:         order.Subtotal,
		DiscountAmount:   order.DiscountAmount,
		Tax:              order.Tax,
		ShippingCost:     order.ShippingCost,
		Total:            order.Total,
		DiscountCode:     order.DiscountCode,
		TaxName:          order.TaxName,
		ShippingName:     order.ShippingName,
		ShippingAddress:  buildAddressPayload(order.ShippingAddress),
		BillingAddress:   buildAddressPayload(order.BillingAddress),
		PaymentProvider:  order.PaymentProvider,
		PaymentIntentID:  order.PaymentIntentID,
		LastPaymentError: order.LastPaymentError,
		Notes:            order.Notes,
		Refunds:          refunds,
		RefundedTotal:    order.RefundedTotal(),
		CreatedAt:        formatTime(order.CreatedAt),
		UpdatedAt:        formatTime(order.UpdatedAt),
	}
	if order.PaidAt != nil {
		payload.PaidAt = formatTime(*order.PaidAt)
	}
	if order.ShippedAt != nil {
		payload.ShippedAt = formatTime(*order.ShippedAt)
	}
	if order.CancelledAt != nil {
		payload.CancelledAt = formatTime(*order.CancelledAt)
	}
	if order.RefundedAt != nil {
		payload.RefundedAt = formatTime(*order.RefundedAt)
	}
	return payload
}
