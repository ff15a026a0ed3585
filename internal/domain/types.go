package domain

import (
	"strings"
	"time"
)

// Address captures a shipping or billing destination. Parsed and validated at the
// HTTP boundary; inner layers never see untyped maps.
type Address struct {
	Recipient  string
	Line1      string
	Line2      string
	City       string
	Region     string
	PostalCode string
	Country    string
	Phone      string
}

// IsZero reports whether the address carries no data at all.
func (a Address) IsZero() bool {
	return a == Address{}
}

// CartLine is one product/variant with a quantity and the unit price captured when
// the line was added. A line belongs to exactly one cart.
type CartLine struct {
	ID         string
	ProductRef string
	VariantRef string
	SKU        string
	Title      string
	Quantity   int64
	UnitPrice  int64
}

// LineTotal returns quantity times unit price in cents.
func (l CartLine) LineTotal() int64 {
	return l.UnitPrice * l.Quantity
}

// Cart holds mutable line items until checkout. Every mutation stamps
// LastMutatedAt so an external abandoned-cart notifier can sweep stale carts.
type Cart struct {
	ID            string
	OwnerRef      string
	Currency      string
	Lines         []CartLine
	Metadata      map[string]string
	CreatedAt     time.Time
	LastMutatedAt time.Time
}

// Subtotal sums unit price times quantity across all lines. Computed on demand and
// never cached beyond the request.
func (c Cart) Subtotal() int64 {
	var total int64
	for _, line := range c.Lines {
		total += line.LineTotal()
	}
	return total
}

// ProductRefs returns the distinct product references present in the cart.
func (c Cart) ProductRefs() []string {
	seen := make(map[string]struct{}, len(c.Lines))
	refs := make([]string, 0, len(c.Lines))
	for _, line := range c.Lines {
		ref := strings.TrimSpace(line.ProductRef)
		if ref == "" {
			continue
		}
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		refs = append(refs, ref)
	}
	return refs
}

// Product is the read-only catalog view this pipeline consumes. Catalog CRUD is an
// external collaborator.
type Product struct {
	ID          string
	Title       string
	SKU         string
	Price       int64
	Currency    string
	Collections []string
	Active      bool
}

// DiscountKind enumerates the supported discount code mechanics.
type DiscountKind string

const (
	DiscountKindPercentage   DiscountKind = "PERCENTAGE"
	DiscountKindFixedAmount  DiscountKind = "FIXED_AMOUNT"
	DiscountKindFreeShipping DiscountKind = "FREE_SHIPPING"
)

// DiscountCode is a redeemable code. UsedCount is monotonic: it only increases and
// only when an order referencing the code reaches its final PAID transition.
type DiscountCode struct {
	ID                 string
	Code               string
	Kind               DiscountKind
	Value              int64
	MinPurchase        *int64
	MaxUses            *int64
	MaxUsesPerCustomer *int64
	ValidFrom          *time.Time
	ValidTo            *time.Time
	Active             bool
	ProductScope       []string
	CollectionScope    []string
	UsedCount          int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// TaxRate is a flat ratio for a country, optionally narrowed to a region. A
// region-specific rate takes precedence over the country-level rate (Region empty).
type TaxRate struct {
	ID      string
	Name    string
	Country string
	Region  string
	Ratio   float64
	Active  bool
}

// ShippingRate is one priced option owned by a zone. Unset order-value bounds are
// unconstrained.
type ShippingRate struct {
	ID            string
	Name          string
	Price         int64
	MinOrderValue *int64
	MaxOrderValue *int64
	EstimatedDays int
	Active        bool
}

// ShippingZone groups rates behind a destination match. A destination may match
// several zones; candidates are pooled across all matches.
type ShippingZone struct {
	ID        string
	Name      string
	Countries []string
	Regions   []string
	Active    bool
	Rates     []ShippingRate
}

// Matches reports whether the destination falls inside the zone.
func (z ShippingZone) Matches(country, region string) bool {
	for _, c := range z.Countries {
		if strings.EqualFold(strings.TrimSpace(c), country) {
			return true
		}
	}
	if strings.TrimSpace(region) == "" {
		return false
	}
	for _, r := range z.Regions {
		if strings.EqualFold(strings.TrimSpace(r), region) {
			return true
		}
	}
	return false
}

// ShippingOption is a candidate rate annotated with the zone it came from.
type ShippingOption struct {
	RateID        string
	Name          string
	Price         int64
	EstimatedDays int
	ZoneName      string
}

// OrderStatus is the order state machine's node label.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRefunded  OrderStatus = "REFUNDED"
)

// OrderLine is an immutable copy of a cart line with price and title locked at
// order creation. Later catalog changes never alter existing orders.
type OrderLine struct {
	ID         string
	ProductRef string
	VariantRef string
	SKU        string
	Title      string
	Quantity   int64
	UnitPrice  int64
	Total      int64
}

// Order is the immutable snapshot created from a priced cart. Only Status, the
// payment correlation fields, and the attached refunds mutate afterwards.
type Order struct {
	ID             string
	Number         string
	Status         OrderStatus
	Email          string
	CustomerRef    string
	Currency       string
	Lines          []OrderLine
	Subtotal       int64
	DiscountAmount int64
	Tax            int64
	ShippingCost   int64
	Total          int64

	DiscountCodeRef string
	DiscountCode    string
	TaxName         string
	ShippingName    string
	ShippingRateRef string

	ShippingAddress Address
	BillingAddress  Address

	PaymentProvider  string
	PaymentIntentID  string
	LastPaymentError string

	Notes   string
	Refunds []Refund

	CreatedAt   time.Time
	UpdatedAt   time.Time
	PaidAt      *time.Time
	ShippedAt   *time.Time
	CancelledAt *time.Time
	RefundedAt  *time.Time
}

// RefundedTotal sums APPROVED and PROCESSED refunds. The sum never exceeds Total.
func (o Order) RefundedTotal() int64 {
	var total int64
	for _, refund := range o.Refunds {
		if refund.CountsAgainstTotal() {
			total += refund.Amount
		}
	}
	return total
}

// RefundStatus tracks a refund through review and settlement.
type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "PENDING"
	RefundStatusApproved  RefundStatus = "APPROVED"
	RefundStatusRejected  RefundStatus = "REJECTED"
	RefundStatusProcessed RefundStatus = "PROCESSED"
)

// Refund is one entry in an order's refund sub-ledger.
type Refund struct {
	ID          string
	OrderRef    string
	Amount      int64
	Reason      string
	Status      RefundStatus
	ProcessedBy string
	ProcessedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CountsAgainstTotal reports whether the refund consumes refundable headroom.
func (r Refund) CountsAgainstTotal() bool {
	return r.Status == RefundStatusApproved || r.Status == RefundStatusProcessed
}

// StockLevel is the authoritative sellable count for one SKU. Available is always
// OnHand minus Reserved and never negative.
type StockLevel struct {
	SKU       string
	OnHand    int64
	Reserved  int64
	Available int64
	UpdatedAt time.Time
}

// StockLine pairs a SKU with a quantity for ledger operations.
type StockLine struct {
	SKU      string
	Quantity int64
}

// PaymentOutcome is the normalised result of a gateway webhook event.
type PaymentOutcome string

const (
	PaymentOutcomeAuthorized PaymentOutcome = "AUTHORIZED"
	PaymentOutcomeFailed     PaymentOutcome = "FAILED"
)

// WebhookEventKind classifies a parsed gateway event.
type WebhookEventKind string

const (
	WebhookEventPaymentSucceeded WebhookEventKind = "payment_succeeded"
	WebhookEventPaymentFailed    WebhookEventKind = "payment_failed"
	WebhookEventIgnored          WebhookEventKind = "ignored"
)

// PaymentWebhookEvent is the typed form of a verified gateway notification.
// OrderRef comes from the correlation metadata attached at authorization time.
type PaymentWebhookEvent struct {
	ID         string
	Kind       WebhookEventKind
	Provider   string
	Type       string
	OrderRef   string
	IntentID   string
	Amount     int64
	Currency   string
	FailureMsg string
	ReceivedAt time.Time
}

// CursorPage wraps a result slice with the cursor for the next page.
type CursorPage[T any] struct {
	Items      []T
	NextCursor string
	HasMore    bool
}
