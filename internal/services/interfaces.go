package services

import (
	"context"
	"time"

	domain "github.com/ordella/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Cart           = domain.Cart
	CartLine       = domain.CartLine
	Address        = domain.Address
	DiscountCode   = domain.DiscountCode
	Order          = domain.Order
	OrderStatus    = domain.OrderStatus
	Refund         = domain.Refund
	ShippingOption = domain.ShippingOption
	StockLevel     = domain.StockLevel
	StockLine      = domain.StockLine
	PaymentOutcome = domain.PaymentOutcome
)

// Logger is the lightweight structured logging hook injected into services.
type Logger func(ctx context.Context, event string, fields map[string]any)

// CreateCartCommand opens a new cart, optionally bound to an owner.
type CreateCartCommand struct {
	OwnerRef string
	Currency string
	Metadata map[string]string
}

// AddCartItemCommand appends quantity of a product to a cart, merging with an
// existing line for the same product and variant.
type AddCartItemCommand struct {
	CartID     string
	ProductRef string
	VariantRef string
	Quantity   int64
}

// UpdateCartItemCommand changes a line's quantity; zero or below removes the line.
type UpdateCartItemCommand struct {
	CartID   string
	LineID   string
	Quantity int64
}

// CartService owns mutable carts up to the moment of checkout.
type CartService interface {
	CreateCart(ctx context.Context, cmd CreateCartCommand) (Cart, error)
	GetCart(ctx context.Context, cartID string) (Cart, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error)
	UpdateItem(ctx context.Context, cmd UpdateCartItemCommand) (Cart, error)
	RemoveItem(ctx context.Context, cartID, lineID string) (Cart, error)
	ClearCart(ctx context.Context, cartID string) (Cart, error)
}

// EvaluateDiscountCommand carries the cart context a code is validated against.
type EvaluateDiscountCommand struct {
	Code           string
	Subtotal       int64
	ProductRefs    []string
	CollectionRefs []string
	CustomerRef    string
}

// DiscountResult is the outcome of a successful evaluation.
type DiscountResult struct {
	Code         DiscountCode
	Amount       int64
	FreeShipping bool
}

// DiscountService validates codes against cart context and tracks redemptions.
// Usage is incremented only when an order referencing the code turns PAID.
type DiscountService interface {
	Evaluate(ctx context.Context, cmd EvaluateDiscountCommand) (DiscountResult, error)
	IncrementUsage(ctx context.Context, codeID string) (DiscountCode, error)
}

// TaxQuery identifies the destination and base amount for a tax computation.
type TaxQuery struct {
	Country  string
	Region   string
	Subtotal int64
}

// TaxResult reports the resolved rate and computed amount.
type TaxResult struct {
	Applicable bool
	Amount     int64
	Ratio      float64
	Name       string
}

// TaxService resolves a flat rate for a destination with region-over-country
// precedence and computes tax on a subtotal.
type TaxService interface {
	Calculate(ctx context.Context, query TaxQuery) (TaxResult, error)
}

// ShippingQuery identifies the destination and order value used to filter rates.
type ShippingQuery struct {
	Country    string
	Region     string
	OrderValue int64
}

// ShippingService resolves candidate rates for a destination, cheapest first. An
// empty candidate list is a valid outcome, not an error.
type ShippingService interface {
	AvailableRates(ctx context.Context, query ShippingQuery) ([]ShippingOption, error)
	CheapestEstimate(ctx context.Context, country, region string) (ShippingOption, bool, error)
}

// PriceCartCommand asks for a full breakdown over a cart snapshot.
type PriceCartCommand struct {
	Cart         Cart
	DiscountCode string
	CustomerRef  string
	Destination  Address
}

// PricingBreakdown is the deterministic total assembled from the component parts.
// Total is always Subtotal - DiscountAmount + Tax + ShippingCost.
type PricingBreakdown struct {
	Subtotal        int64
	DiscountAmount  int64
	Tax             int64
	TaxName         string
	TaxRatio        float64
	ShippingCost    int64
	ShippingName    string
	ShippingRateRef string
	Total           int64

	Discount       *DiscountCode
	ShippingWaived bool
}

// PricingEngine orchestrates discount, tax, and shipping over a cart snapshot.
type PricingEngine interface {
	Price(ctx context.Context, cmd PriceCartCommand) (PricingBreakdown, error)
}

// CreateOrderCommand turns a cart into an immutable PENDING order.
type CreateOrderCommand struct {
	CartID          string
	Email           string
	CustomerRef     string
	DiscountCode    string
	ShippingAddress Address
	BillingAddress  Address
	Notes           string
}

// OrderStatusTransitionCommand is an admin-driven manual override.
type OrderStatusTransitionCommand struct {
	OrderID      string
	TargetStatus OrderStatus
	ActorRef     string
	Reason       string
}

// PaymentOutcomeCommand applies a verified gateway event to an order.
type PaymentOutcomeCommand struct {
	OrderID    string
	EventID    string
	Outcome    PaymentOutcome
	IntentID   string
	Provider   string
	FailureMsg string
}

// RequestRefundCommand opens a refund sub-ledger entry in PENDING.
type RequestRefundCommand struct {
	OrderID string
	Amount  int64
	Reason  string
}

// ResolveRefundCommand moves a refund to APPROVED, REJECTED, or PROCESSED.
type ResolveRefundCommand struct {
	OrderID      string
	RefundID     string
	TargetStatus domain.RefundStatus
	ActorRef     string
}

// OrderListQuery filters the admin order listing.
type OrderListQuery struct {
	Status   OrderStatus
	Customer string
	PageSize int
	Cursor   string
}

// OrderService owns the order snapshot, its state machine, and the refund
// sub-ledger.
type OrderService interface {
	CreateFromCart(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	ListOrders(ctx context.Context, query OrderListQuery) (domain.CursorPage[Order], error)
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
	ApplyPaymentOutcome(ctx context.Context, cmd PaymentOutcomeCommand) (Order, error)
	RequestRefund(ctx context.Context, cmd RequestRefundCommand) (Order, error)
	ResolveRefund(ctx context.Context, cmd ResolveRefundCommand) (Order, error)
}

// PaymentAuthorization is the client-facing handle for completing payment.
type PaymentAuthorization struct {
	Provider     string
	IntentID     string
	ClientSecret string
	Amount       int64
	Currency     string
}

// WebhookCommand carries a raw gateway notification plus its signature header.
type WebhookCommand struct {
	Provider  string
	Payload   []byte
	Signature string
}

// WebhookResult reports whether the event was acknowledged and whether it changed
// any state.
type WebhookResult struct {
	Received bool
	Handled  bool
	OrderID  string
}

// PaymentService bridges orders and the external payment gateway.
type PaymentService interface {
	Authorize(ctx context.Context, orderID string) (PaymentAuthorization, error)
	HandleWebhook(ctx context.Context, cmd WebhookCommand) (WebhookResult, error)
}

// ReserveStockCommand asks the ledger to hold quantities for an order.
type ReserveStockCommand struct {
	Lines []StockLine
}

// ReleaseStockCommand returns held quantities to the sellable pool.
type ReleaseStockCommand struct {
	Lines []StockLine
}

// InventoryService fronts the stock ledger for advisory reads and explicit
// reserve/release outside the order transaction.
type InventoryService interface {
	GetStock(ctx context.Context, sku string) (StockLevel, error)
	Reserve(ctx context.Context, cmd ReserveStockCommand) (map[string]StockLevel, error)
	Release(ctx context.Context, cmd ReleaseStockCommand) (map[string]StockLevel, error)
}

// OrderEvent is the fire-and-forget notification emitted on lifecycle changes.
type OrderEvent struct {
	Type        string
	OrderID     string
	OrderNumber string
	Status      OrderStatus
	Email       string
	Total       int64
	Currency    string
	OccurredAt  time.Time
}

// OrderEventPublisher delivers order events to the external notifier. Publish
// failures are logged and never fail the originating request.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}
