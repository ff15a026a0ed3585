package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ordella/api/internal/platform/httpx"
	"github.com/ordella/api/internal/services"
)

const (
	maxStoreBodySize        = 16 * 1024
	discountValidateLimit   = 20
	discountValidateWindow  = time.Minute
	discountRateLimitRemark = "too many discount validation attempts; retry later"
)

// StoreHandlers exposes the storefront helper endpoints: discount validation,
// shipping rate quotes, tax estimates, and stock lookups.
type StoreHandlers struct {
	discounts services.DiscountService
	shipping  services.ShippingService
	taxes     services.TaxService
	inventory services.InventoryService
	limiter   rateLimiter
}

// NewStoreHandlers constructs the storefront handlers. The discount validation
// endpoint is rate limited per client IP to slow down code probing.
func NewStoreHandlers(discounts services.DiscountService, shipping services.ShippingService, taxes services.TaxService, inventory services.InventoryService) *StoreHandlers {
	return &StoreHandlers{
		discounts: discounts,
		shipping:  shipping,
		taxes:     taxes,
		inventory: inventory,
		limiter:   newSimpleRateLimiter(discountValidateLimit, discountValidateWindow, nil),
	}
}

// Routes wires the /store endpoints onto the provided router.
func (h *StoreHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/discounts/validate", h.validateDiscount)
	r.Post("/shipping/calculate", h.shippingRates)
	r.Get("/shipping/estimate", h.shippingEstimate)
	r.Post("/tax/calculate", h.estimateTax)
	r.Get("/stock/{sku}", h.getStock)
}

type validateDiscountRequest struct {
	Code           string   `json:"code"`
	Subtotal       int64    `json:"subtotal"`
	ProductRefs    []string `json:"product_refs"`
	CollectionRefs []string `json:"collection_refs"`
	CustomerRef    string   `json:"customer_ref"`
}

type validateDiscountResponse struct {
	Valid        bool   `json:"valid"`
	Code         string `json:"code"`
	Kind         string `json:"kind"`
	Amount       int64  `json:"amount"`
	FreeShipping bool   `json:"free_shipping"`
}

func (h *StoreHandlers) validateDiscount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.discounts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("discount_service_unavailable", "discount service is unavailable", http.StatusServiceUnavailable))
		return
	}
	if h.limiter != nil && !h.limiter.Allow(r.RemoteAddr) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", discountRateLimitRemark, http.StatusTooManyRequests))
		return
	}

	body, err := readLimitedBody(r, maxStoreBodySize)
	if err != nil {
		writeStoreBodyError(ctx, w, err)
		return
	}
	var req validateDiscountRequest
	if err := decodeJSONBody(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	result, err := h.discounts.Evaluate(ctx, services.EvaluateDiscountCommand{
		Code:           req.Code,
		Subtotal:       req.Subtotal,
		ProductRefs:    req.ProductRefs,
		CollectionRefs: req.CollectionRefs,
		CustomerRef:    req.CustomerRef,
	})
	if err != nil {
		writeDiscountError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, validateDiscountResponse{
		Valid:        true,
		Code:         result.Code.Code,
		Kind:         string(result.Code.Kind),
		Amount:       result.Amount,
		FreeShipping: result.FreeShipping,
	})
}

type shippingRatesRequest struct {
	Country    string `json:"country"`
	Region     string `json:"region"`
	OrderValue int64  `json:"order_value"`
}

type shippingOptionPayload struct {
	RateID        string `json:"rate_id"`
	Name          string `json:"name"`
	Price         int64  `json:"price"`
	EstimatedDays int    `json:"estimated_days,omitempty"`
	ZoneName      string `json:"zone_name,omitempty"`
}

func (h *StoreHandlers) shippingRates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.shipping == nil {
		httpx.WriteError(ctx, w, httpx.NewError("shipping_service_unavailable", "shipping service is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxStoreBodySize)
	if err != nil {
		writeStoreBodyError(ctx, w, err)
		return
	}
	var req shippingRatesRequest
	if err := decodeJSONBody(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	options, err := h.shipping.AvailableRates(ctx, services.ShippingQuery{
		Country:    req.Country,
		Region:     req.Region,
		OrderValue: req.OrderValue,
	})
	if err != nil {
		writeShippingError(ctx, w, err)
		return
	}
	payload := make([]shippingOptionPayload, 0, len(options))
	for _, option := range options {
		payload = append(payload, shippingOptionPayload{
			RateID:        option.RateID,
			Name:          option.Name,
			Price:         option.Price,
			EstimatedDays: option.EstimatedDays,
			ZoneName:      option.ZoneName,
		})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"rates": payload})
}

// shippingEstimate answers "roughly what will shipping cost to this place"
// before a cart exists, so order-value bounds are ignored.
func (h *StoreHandlers) shippingEstimate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.shipping == nil {
		httpx.WriteError(ctx, w, httpx.NewError("shipping_service_unavailable", "shipping service is unavailable", http.StatusServiceUnavailable))
		return
	}

	country := strings.TrimSpace(r.URL.Query().Get("country"))
	if country == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "country is required", http.StatusBadRequest))
		return
	}
	region := strings.TrimSpace(r.URL.Query().Get("region"))

	option, ok, err := h.shipping.CheapestEstimate(ctx, country, region)
	if err != nil {
		writeShippingError(ctx, w, err)
		return
	}
	if !ok {
		writeJSONResponse(w, http.StatusOK, map[string]any{"available": false})
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"available": true,
		"rate": shippingOptionPayload{
			RateID:        option.RateID,
			Name:          option.Name,
			Price:         option.Price,
			EstimatedDays: option.EstimatedDays,
			ZoneName:      option.ZoneName,
		},
	})
}

type taxEstimateRequest struct {
	Country  string `json:"country"`
	Region   string `json:"region"`
	Subtotal int64  `json:"subtotal"`
}

type taxEstimateResponse struct {
	Applicable bool    `json:"applicable"`
	Amount     int64   `json:"amount"`
	Ratio      float64 `json:"ratio"`
	Name       string  `json:"name,omitempty"`
}

func (h *StoreHandlers) estimateTax(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.taxes == nil {
		httpx.WriteError(ctx, w, httpx.NewError("tax_service_unavailable", "tax service is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxStoreBodySize)
	if err != nil {
		writeStoreBodyError(ctx, w, err)
		return
	}
	var req taxEstimateRequest
	if err := decodeJSONBody(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	result, err := h.taxes.Calculate(ctx, services.TaxQuery{
		Country:  req.Country,
		Region:   req.Region,
		Subtotal: req.Subtotal,
	})
	if err != nil {
		writeTaxError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, taxEstimateResponse{
		Applicable: result.Applicable,
		Amount:     result.Amount,
		Ratio:      result.Ratio,
		Name:       result.Name,
	})
}

type stockPayload struct {
	SKU       string `json:"sku"`
	OnHand    int64  `json:"on_hand"`
	Reserved  int64  `json:"reserved"`
	Available int64  `json:"available"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

func (h *StoreHandlers) getStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inventory_service_unavailable", "inventory service is unavailable", http.StatusServiceUnavailable))
		return
	}

	level, err := h.inventory.GetStock(ctx, chi.URLParam(r, "sku"))
	if err != nil {
		writeInventoryError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, stockPayload{
		SKU:       level.SKU,
		OnHand:    level.OnHand,
		Reserved:  level.Reserved,
		Available: level.Available,
		UpdatedAt: formatTime(level.UpdatedAt),
	})
}

func writeStoreBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	}
}

func writeDiscountError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrDiscountInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrDiscountInvalid),
		errors.Is(err, services.ErrDiscountInactive),
		errors.Is(err, services.ErrDiscountNotYetValid),
		errors.Is(err, services.ErrDiscountExpired),
		errors.Is(err, services.ErrDiscountExhausted),
		errors.Is(err, services.ErrDiscountPerUserLimitReached),
		errors.Is(err, services.ErrDiscountMinimumNotMet),
		errors.Is(err, services.ErrDiscountNotApplicable):
		httpx.WriteError(ctx, w, httpx.NewError("discount_invalid", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrDiscountUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("discount_service_unavailable", "discount service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("discount_error", "discount validation failed", http.StatusInternalServerError))
	}
}

func writeShippingError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrShippingInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrShippingUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("shipping_service_unavailable", "shipping service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("shipping_error", "shipping rate lookup failed", http.StatusInternalServerError))
	}
}

func writeTaxError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrTaxInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrTaxUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("tax_service_unavailable", "tax service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("tax_error", "tax estimate failed", http.StatusInternalServerError))
	}
}

func writeInventoryError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrInventoryInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrInventoryNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("stock_not_found", "no stock record for sku", http.StatusNotFound))
	case errors.Is(err, services.ErrInventoryInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrInventoryUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("inventory_service_unavailable", "inventory service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("inventory_error", "inventory lookup failed", http.StatusInternalServerError))
	}
}
