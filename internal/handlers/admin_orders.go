package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/ordella/api/internal/domain"
	"github.com/ordella/api/internal/platform/auth"
	"github.com/ordella/api/internal/platform/httpx"
	"github.com/ordella/api/internal/services"
)

const (
	defaultAdminPageSize = 20
	maxAdminPageSize     = 100
	maxAdminBodySize     = 16 * 1024
)

var adminOrderStatuses = map[domain.OrderStatus]struct{}{
	domain.OrderStatusPending:   {},
	domain.OrderStatusPaid:      {},
	domain.OrderStatusShipped:   {},
	domain.OrderStatusCancelled: {},
	domain.OrderStatusRefunded:  {},
}

var adminRefundStatuses = map[domain.RefundStatus]struct{}{
	domain.RefundStatusApproved:  {},
	domain.RefundStatusRejected:  {},
	domain.RefundStatusProcessed: {},
}

// AdminOrderHandlers exposes the back-office order endpoints: listing, manual
// status overrides, and the refund sub-ledger.
type AdminOrderHandlers struct {
	orders services.OrderService
}

// NewAdminOrderHandlers constructs handlers backed by the order service.
func NewAdminOrderHandlers(orders services.OrderService) *AdminOrderHandlers {
	return &AdminOrderHandlers{orders: orders}
}

// Routes wires the /admin/orders endpoints onto the provided router.
func (h *AdminOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{orderID}", h.getOrder)
	r.Patch("/orders/{orderID}", h.transitionStatus)
	r.Get("/orders/{orderID}/refunds", h.listRefunds)
	r.Post("/orders/{orderID}/refunds", h.requestRefund)
	r.Patch("/orders/{orderID}/refunds/{refundID}", h.resolveRefund)
}

func (h *AdminOrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	query := services.OrderListQuery{
		Customer: strings.TrimSpace(r.URL.Query().Get("customer")),
		Cursor:   strings.TrimSpace(r.URL.Query().Get("cursor")),
		PageSize: defaultAdminPageSize,
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status := domain.OrderStatus(strings.ToUpper(raw))
		if _, ok := adminOrderStatuses[status]; !ok {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unknown order status filter", http.StatusBadRequest))
			return
		}
		query.Status = status
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("page_size")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size <= 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be a positive integer", http.StatusBadRequest))
			return
		}
		if size > maxAdminPageSize {
			size = maxAdminPageSize
		}
		query.PageSize = size
	}

	page, err := h.orders.ListOrders(ctx, query)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"items":       items,
		"next_cursor": page.NextCursor,
		"has_more":    page.HasMore,
	})
}

func (h *AdminOrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
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

type transitionStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (h *AdminOrderHandlers) transitionStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil {
		writeOrderBodyError(ctx, w, err)
		return
	}
	var req transitionStatusRequest
	if err := decodeJSONBody(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	target := domain.OrderStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	if _, ok := adminOrderStatuses[target]; !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unknown target status", http.StatusBadRequest))
		return
	}

	order, err := h.orders.TransitionStatus(ctx, services.OrderStatusTransitionCommand{
		OrderID:      chi.URLParam(r, "orderID"),
		TargetStatus: target,
		ActorRef:     adminActorRef(r),
		Reason:       req.Reason,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *AdminOrderHandlers) listRefunds(w http.ResponseWriter, r *http.Request) {
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
	payload := buildOrderPayload(order)
	items := payload.Refunds
	if items == nil {
		items = []refundPayload{}
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

type requestRefundRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

func (h *AdminOrderHandlers) requestRefund(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil {
		writeOrderBodyError(ctx, w, err)
		return
	}
	var req requestRefundRequest
	if err := decodeJSONBody(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	order, err := h.orders.RequestRefund(ctx, services.RequestRefundCommand{
		OrderID: chi.URLParam(r, "orderID"),
		Amount:  req.Amount,
		Reason:  req.Reason,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildOrderPayload(order))
}

type resolveRefundRequest struct {
	Status string `json:"status"`
}

func (h *AdminOrderHandlers) resolveRefund(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil {
		writeOrderBodyError(ctx, w, err)
		return
	}
	var req resolveRefundRequest
	if err := decodeJSONBody(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	target := domain.RefundStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	if _, ok := adminRefundStatuses[target]; !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unknown refund status", http.StatusBadRequest))
		return
	}

	order, err := h.orders.ResolveRefund(ctx, services.ResolveRefundCommand{
		OrderID:      chi.URLParam(r, "orderID"),
		RefundID:     chi.URLParam(r, "refundID"),
		TargetStatus: target,
		ActorRef:     adminActorRef(r),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

// adminActorRef resolves the acting administrator from the authenticated
// identity, falling back to a header so internal tooling can attribute actions.
func adminActorRef(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		return identity.UID
	}
	return strings.TrimSpace(r.Header.Get("X-Actor-Ref"))
}
