package repositories

import (
	"context"
	"time"

	domain "github.com/ordella/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Carts() CartRepository
	Products() ProductRepository
	Discounts() DiscountRepository
	TaxRates() TaxRateRepository
	ShippingZones() ShippingZoneRepository
	Inventory() InventoryRepository
	Orders() OrderRepository
	Counters() CounterRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// HealthRepository reports backend reachability for readiness probes.
type HealthRepository interface {
	Ping(ctx context.Context) error
}

// CartRepository persists carts together with their lines. Save replaces the whole
// line set; the cart is the aggregate boundary so partial line writes never happen.
type CartRepository interface {
	Insert(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	FindByID(ctx context.Context, cartID string) (domain.Cart, error)
	Save(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	Delete(ctx context.Context, cartID string) error
}

// ProductRepository provides read-only catalog lookups. Catalog management lives in
// a separate system; this pipeline only needs price, title, and SKU.
type ProductRepository interface {
	FindByRef(ctx context.Context, productRef string) (domain.Product, error)
}

// DiscountRepository stores discount codes. Lookup is case-insensitive; codes are
// normalised to upper case on write.
type DiscountRepository interface {
	FindByCode(ctx context.Context, code string) (domain.DiscountCode, error)
	FindByID(ctx context.Context, codeID string) (domain.DiscountCode, error)
	IncrementUsage(ctx context.Context, codeID string, now time.Time) (domain.DiscountCode, error)
}

// TaxRateRepository lists the active flat rates for a country. Region precedence is
// resolved by the service layer.
type TaxRateRepository interface {
	ListActiveByCountry(ctx context.Context, country string) ([]domain.TaxRate, error)
}

// ShippingZoneRepository lists active zones with their owned rates.
type ShippingZoneRepository interface {
	ListActive(ctx context.Context) ([]domain.ShippingZone, error)
}

// InventoryRepository is the stock ledger. Reserve and Release are atomic
// compare-and-swap operations across all lines: either every line is applied or
// none is.
type InventoryRepository interface {
	FindBySKU(ctx context.Context, sku string) (domain.StockLevel, error)
	Reserve(ctx context.Context, req StockReserveRequest) (map[string]domain.StockLevel, error)
	Release(ctx context.Context, req StockReleaseRequest) (map[string]domain.StockLevel, error)
}

// StockReserveRequest asks the ledger to move quantities from available to reserved.
type StockReserveRequest struct {
	Lines []domain.StockLine
	Now   time.Time
}

// StockReleaseRequest returns previously reserved quantities to the sellable pool.
type StockReleaseRequest struct {
	Lines []domain.StockLine
	Now   time.Time
}

// StockEffect names the inventory side effect bundled into an order status update.
type StockEffect string

const (
	// StockEffectNone leaves the ledger untouched.
	StockEffectNone StockEffect = ""
	// StockEffectRelease returns the order's reserved quantities (cancellation).
	StockEffectRelease StockEffect = "release"
	// StockEffectCommit consumes the reservation and decrements on-hand (shipment).
	StockEffectCommit StockEffect = "commit"
)

// OrderCreateRequest bundles the atomic unit of checkout: reserve stock, insert the
// order, clear the source cart. All three succeed or none does.
type OrderCreateRequest struct {
	Order       domain.Order
	ClearCartID string
	Reserve     []domain.StockLine
	Now         time.Time
}

// OrderStatusUpdate performs a compare-and-set status transition with an optional
// inventory side effect applied in the same transaction.
type OrderStatusUpdate struct {
	OrderID        string
	ExpectedStatus domain.OrderStatus
	TargetStatus   domain.OrderStatus
	StockEffect    StockEffect
	Now            time.Time
}

// PaymentOutcomeRequest applies a verified gateway event to an order. The event id
// is recorded in the same transaction so redelivery becomes a no-op, and the
// discount usage counter is incremented at most once per order.
type PaymentOutcomeRequest struct {
	OrderID    string
	EventID    string
	Outcome    domain.PaymentOutcome
	IntentID   string
	Provider   string
	FailureMsg string
	Now        time.Time
}

// PaymentOutcomeResult reports what the transaction actually changed.
type PaymentOutcomeResult struct {
	Order            domain.Order
	AlreadyProcessed bool
	Transitioned     bool
	UsageIncremented bool
}

// RefundRecordRequest appends or updates one refund sub-ledger entry. When
// MarkRefunded is set the order transitions to REFUNDED in the same write.
type RefundRecordRequest struct {
	OrderID      string
	Refund       domain.Refund
	MarkRefunded bool
	Now          time.Time
}

// OrderListQuery filters the admin order listing.
type OrderListQuery struct {
	Status   domain.OrderStatus
	Customer string
	PageSize int
	Cursor   string
}

// OrderRepository persists order snapshots, their refund sub-ledger, and the
// webhook-event dedup records that guard payment reconciliation.
type OrderRepository interface {
	Create(ctx context.Context, req OrderCreateRequest) (domain.Order, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByIntent(ctx context.Context, intentID string) (domain.Order, error)
	List(ctx context.Context, query OrderListQuery) (domain.CursorPage[domain.Order], error)
	UpdateStatus(ctx context.Context, req OrderStatusUpdate) (domain.Order, error)
	SetPaymentIntent(ctx context.Context, orderID, provider, intentID string, now time.Time) (domain.Order, error)
	ApplyPaymentOutcome(ctx context.Context, req PaymentOutcomeRequest) (PaymentOutcomeResult, error)
	RecordRefund(ctx context.Context, req RefundRecordRequest) (domain.Order, error)
	CountFinalizedWithDiscount(ctx context.Context, discountID, customerRef string) (int64, error)
}

// CounterRepository yields monotonically increasing sequence values used for
// human-legible order numbers.
type CounterRepository interface {
	Next(ctx context.Context, name string, now time.Time) (int64, error)
}
