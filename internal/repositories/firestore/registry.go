// Package firestore implements repositories.Registry on Cloud Firestore. The
// order collection is the transactional heart: checkout, webhook reconciliation,
// and status transitions each run as a single Firestore transaction so the stock
// ledger and the order document never drift apart.
package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/ordella/api/internal/platform/firestore"
	"github.com/ordella/api/internal/repositories"
)

// Registry wires the Firestore-backed repositories behind a shared provider.
type Registry struct {
	provider *pfirestore.Provider

	carts     *CartRepository
	products  *ProductRepository
	discounts *DiscountRepository
	taxRates  *TaxRateRepository
	zones     *ShippingZoneRepository
	inventory *InventoryRepository
	orders    *OrderRepository
	counters  *CounterRepository
}

// NewRegistry constructs the registry and its repositories.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires a provider")
	}

	carts, err := NewCartRepository(provider)
	if err != nil {
		return nil, err
	}
	products, err := NewProductRepository(provider)
	if err != nil {
		return nil, err
	}
	discounts, err := NewDiscountRepository(provider)
	if err != nil {
		return nil, err
	}
	taxRates, err := NewTaxRateRepository(provider)
	if err != nil {
		return nil, err
	}
	zones, err := NewShippingZoneRepository(provider)
	if err != nil {
		return nil, err
	}
	inventory, err := NewInventoryRepository(provider)
	if err != nil {
		return nil, err
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:  provider,
		carts:     carts,
		products:  products,
		discounts: discounts,
		taxRates:  taxRates,
		zones:     zones,
		inventory: inventory,
		orders:    orders,
		counters:  counters,
	}, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

// Carts implements repositories.Registry.
func (r *Registry) Carts() repositories.CartRepository { return r.carts }

// Products implements repositories.Registry.
func (r *Registry) Products() repositories.ProductRepository { return r.products }

// Discounts implements repositories.Registry.
func (r *Registry) Discounts() repositories.DiscountRepository { return r.discounts }

// TaxRates implements repositories.Registry.
func (r *Registry) TaxRates() repositories.TaxRateRepository { return r.taxRates }

// ShippingZones implements repositories.Registry.
func (r *Registry) ShippingZones() repositories.ShippingZoneRepository { return r.zones }

// Inventory implements repositories.Registry.
func (r *Registry) Inventory() repositories.InventoryRepository { return r.inventory }

// Orders implements repositories.Registry.
func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

// Counters implements repositories.Registry.
func (r *Registry) Counters() repositories.CounterRepository { return r.counters }

// Health implements repositories.Registry.
func (r *Registry) Health() repositories.HealthRepository { return &healthRepository{provider: r.provider} }

var _ repositories.Registry = (*Registry)(nil)

type healthRepository struct {
	provider *pfirestore.Provider
}

// Ping verifies that a Firestore client can be obtained.
func (h *healthRepository) Ping(ctx context.Context) error {
	if h == nil || h.provider == nil {
		return errors.New("firestore registry not initialised")
	}
	_, err := h.provider.Client(ctx)
	return err
}
