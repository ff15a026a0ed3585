package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ordella/api/internal/platform/httpx"
	"github.com/ordella/api/internal/services"
)

const maxCartBodySize = 16 * 1024

// CartHandlers exposes the anonymous cart endpoints.
type CartHandlers struct {
	carts services.CartService
}

// NewCartHandlers constructs handlers backed by the cart service.
func NewCartHandlers(carts services.CartService) *CartHandlers {
	return &CartHandlers{carts: carts}
}

// Routes wires the /carts endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createCart)
	r.Get("/{cartID}", h.getCart)
	r.Post("/{cartID}/items", h.addItem)
	r.Patch("/{cartID}/items/{lineID}", h.updateItem)
	r.Delete("/{cartID}/items/{lineID}", h.removeItem)
	r.Delete("/{cartID}/items", h.clearCart)
}

type createCartRequest struct {
	OwnerRef string            `json:"owner_ref"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata"`
}

type addCartItemRequest struct {
	ProductRef string `json:"product_ref"`
	VariantRef string `json:"variant_ref"`
	Quantity   int64  `json:"quantity"`
}

type updateCartItemRequest struct {
	Quantity int64 `json:"quantity"`
}

func (h *CartHandlers) createCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req createCartRequest
	if body, err := readLimitedBody(r, maxCartBodySize); err == nil {
		if decodeErr := decodeJSONBody(body, &req); decodeErr != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", decodeErr.Error(), http.StatusBadRequest))
			return
		}
	} else if !errors.Is(err, errEmptyBody) {
		h.writeBodyError(ctx, w, err)
		return
	}

	cart, err := h.carts.CreateCart(ctx, services.CreateCartCommand{
		OwnerRef: req.OwnerRef,
		Currency: req.Currency,
		Metadata: req.Metadata,
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildCartPayload(cart))
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}

	cart, err := h.carts.GetCart(ctx, chi.URLParam(r, "cartID"))
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartPayload(cart))
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		h.writeBodyError(ctx, w, err)
		return
	}
	var req addCartItemRequest
	if err := decodeJSONBody(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	cart, err := h.carts.AddItem(ctx, services.AddCartItemCommand{
		CartID:     chi.URLParam(r, "cartID"),
		ProductRef: req.ProductRef,
		VariantRef: req.VariantRef,
		Quantity:   req.Quantity,
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartPayload(cart))
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		h.writeBodyError(ctx, w, err)
		return
	}
	var req updateCartItemRequest
	if err := decodeJSONBody(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	cart, err := h.carts.UpdateItem(ctx, services.UpdateCartItemCommand{
		CartID:   chi.URLParam(r, "cartID"),
		LineID:   chi.URLParam(r, "lineID"),
		Quantity: req.Quantity,
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartPayload(cart))
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}

	cart, err := h.carts.RemoveItem(ctx, chi.URLParam(r, "cartID"), chi.URLParam(r, "lineID"))
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartPayload(cart))
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}

	cart, err := h.carts.ClearCart(ctx, chi.URLParam(r, "cartID"))
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartPayload(cart))
}

func (h *CartHandlers) writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func (h *CartHandlers) writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartProductUnknown):
		httpx.WriteError(ctx, w, httpx.NewError("product_unknown", "product does not exist or is not for sale", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCartNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_not_found", "cart not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartConflict):
		httpx.WriteError(ctx, w, httpx.NewError("cart_conflict", "cart has been modified; refresh and retry", http.StatusConflict))
	case errors.Is(err, services.ErrCartUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_error", "cart request failed", http.StatusInternalServerError))
	}
}

type cartPayload struct {
	ID            string            `json:"id"`
	OwnerRef      string            `json:"owner_ref,omitempty"`
	Currency      string            `json:"currency"`
	Lines         []cartLinePayload `json:"lines"`
	Subtotal      int64             `json:"subtotal"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     string            `json:"created_at,omitempty"`
	LastMutatedAt string            `json:"last_mutated_at,omitempty"`
}

type cartLinePayload struct {
	ID         string `json:"id"`
	ProductRef string `json:"product_ref"`
	VariantRef string `json:"variant_ref,omitempty"`
	SKU        string `json:"sku"`
	Title      string `json:"title"`
	Quantity   int64  `json:"quantity"`
	UnitPrice  int64  `json:"unit_price"`
	LineTotal  int64  `json:"line_total"`
}

func buildCartPayload(cart services.Cart) cartPayload {
	lines := make([]cartLinePayload, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		lines = append(lines, cartLinePayload{
			ID:         line.ID,
			ProductRef: line.ProductRef,
			VariantRef: line.VariantRef,
			SKU:        line.SKU,
			Title:      line.Title,
			Quantity:   line.Quantity,
			UnitPrice:  line.UnitPrice,
			LineTotal:  line.LineTotal(),
		})
	}
	return cartPayload{
		ID:            cart.ID,
		OwnerRef:      strings.TrimSpace(cart.OwnerRef),
		Currency:      cart.Currency,
		Lines:         lines,
		Subtotal:      cart.Subtotal(),
		Metadata:      cart.Metadata,
		CreatedAt:     formatTime(cart.CreatedAt),
		LastMutatedAt: formatTime(cart.LastMutatedAt),
	}
}
