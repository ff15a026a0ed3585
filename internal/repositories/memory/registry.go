// Package memory provides an in-process repositories.Registry with the same
// transactional semantics as the Firestore implementation. A single mutex stands
// in for database transactions, which keeps the atomic units of checkout and
// webhook reconciliation honest in tests and local development.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	domain "github.com/ordella/api/internal/domain"
	"github.com/ordella/api/internal/repositories"
)

// Registry holds all state behind one lock.
type Registry struct {
	mu sync.Mutex

	carts          map[string]domain.Cart
	products       map[string]domain.Product
	discounts      map[string]domain.DiscountCode
	discountByCode map[string]string
	taxRates       []domain.TaxRate
	zones          []domain.ShippingZone
	stocks         map[string]*stockRecord
	orders         map[string]domain.Order
	orderByIntent  map[string]string
	events         map[string]eventRecord
	counters       map[string]int64
}

type stockRecord struct {
	OnHand    int64
	Reserved  int64
	UpdatedAt time.Time
}

type eventRecord struct {
	OrderID    string
	ReceivedAt time.Time
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		carts:          make(map[string]domain.Cart),
		products:       make(map[string]domain.Product),
		discounts:      make(map[string]domain.DiscountCode),
		discountByCode: make(map[string]string),
		stocks:         make(map[string]*stockRecord),
		orders:         make(map[string]domain.Order),
		orderByIntent:  make(map[string]string),
		events:         make(map[string]eventRecord),
		counters:       make(map[string]int64),
	}
}

// Close implements repositories.Registry.
func (r *Registry) Close(context.Context) error { return nil }

// Carts implements repositories.Registry.
func (r *Registry) Carts() repositories.CartRepository { return &cartRepository{reg: r} }

// Products implements repositories.Registry.
func (r *Registry) Products() repositories.ProductRepository { return &productRepository{reg: r} }

// Discounts implements repositories.Registry.
func (r *Registry) Discounts() repositories.DiscountRepository { return &discountRepository{reg: r} }

// TaxRates implements repositories.Registry.
func (r *Registry) TaxRates() repositories.TaxRateRepository { return &taxRateRepository{reg: r} }

// ShippingZones implements repositories.Registry.
func (r *Registry) ShippingZones() repositories.ShippingZoneRepository {
	return &shippingZoneRepository{reg: r}
}

// Inventory implements repositories.Registry.
func (r *Registry) Inventory() repositories.InventoryRepository {
	return &inventoryRepository{reg: r}
}

// Orders implements repositories.Registry.
func (r *Registry) Orders() repositories.OrderRepository { return &orderRepository{reg: r} }

// Counters implements repositories.Registry.
func (r *Registry) Counters() repositories.CounterRepository { return &counterRepository{reg: r} }

// Health implements repositories.Registry.
func (r *Registry) Health() repositories.HealthRepository { return &healthRepository{} }

var _ repositories.Registry = (*Registry)(nil)

// SeedProduct registers a catalog product for lookups.
func (r *Registry) SeedProduct(product domain.Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[product.ID] = product
}

// SeedStock sets the ledger entry for a SKU.
func (r *Registry) SeedStock(sku string, onHand int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stocks[sku] = &stockRecord{OnHand: onHand, UpdatedAt: time.Now().UTC()}
}

// SeedDiscount registers a discount code.
func (r *Registry) SeedDiscount(code domain.DiscountCode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.discounts[code.ID] = code
	r.discountByCode[strings.ToUpper(strings.TrimSpace(code.Code))] = code.ID
}

// SeedTaxRate registers a tax rate row.
func (r *Registry) SeedTaxRate(rate domain.TaxRate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.taxRates = append(r.taxRates, rate)
}

// SeedShippingZone registers a zone with its rates.
func (r *Registry) SeedShippingZone(zone domain.ShippingZone) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.zones = append(r.zones, zone)
}

type healthRepository struct{}

func (healthRepository) Ping(context.Context) error { return nil }

type counterRepository struct{ reg *Registry }

func (c *counterRepository) Next(_ context.Context, name string, _ time.Time) (int64, error) {
	if strings.TrimSpace(name) == "" {
		return 0, notFound("counter name is required")
	}
	c.reg.mu.Lock()
	defer c.reg.mu.Unlock()
	c.reg.counters[name]++
	return c.reg.counters[name], nil
}

// notFoundError satisfies repositories.RepositoryError for missing records.
type notFoundError struct{ msg string }

func (e *notFoundError) Error() string       { return e.msg }
func (e *notFoundError) IsNotFound() bool    { return true }
func (e *notFoundError) IsConflict() bool    { return false }
func (e *notFoundError) IsUnavailable() bool { return false }

func notFound(format string, args ...any) error {
	return &notFoundError{msg: fmt.Sprintf(format, args...)}
}
