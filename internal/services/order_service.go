package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/ordella/api/internal/domain"
	"github.com/ordella/api/internal/payments"
	"github.com/ordella/api/internal/platform/textutil"
	"github.com/ordella/api/internal/repositories"
)

// RefundGateway is the slice of the payments manager that moves money back to
// the customer. Optional: without one, processing a refund is ledger-only.
type RefundGateway interface {
	Refund(ctx context.Context, paymentCtx payments.PaymentContext, req payments.RefundRequest) (payments.RefundDetails, error)
}

const (
	orderEventCreated       = "order.created"
	orderEventPaid          = "order.paid"
	orderEventPaymentFailed = "order.payment_failed"
	orderEventStatusChanged = "order.status.changed"
	orderEventRefunded      = "order.refunded"

	orderIDPrefix  = "ord_"
	refundIDPrefix = "ref_"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderEmptyCart indicates the source cart has no lines.
	ErrOrderEmptyCart = errors.New("order: cart is empty")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderIllegalTransition indicates the requested status change is not a legal edge.
	ErrOrderIllegalTransition = errors.New("order: illegal status transition")
	// ErrOrderInsufficientStock indicates reservation failed during order creation.
	ErrOrderInsufficientStock = errors.New("order: insufficient stock")
	// ErrOrderConflict indicates a lost compare-and-set race.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderRefundExcessive indicates the refund would push the approved total past the order total.
	ErrOrderRefundExcessive = errors.New("order: refund exceeds remaining total")
	// ErrOrderRefundNotFound indicates the refund entry could not be located on the order.
	ErrOrderRefundNotFound = errors.New("order: refund not found")
	// ErrOrderRefundInvalidState indicates the refund cannot move to the requested status.
	ErrOrderRefundInvalidState = errors.New("order: refund state invalid")
	// ErrOrderRefundGatewayFailed indicates the gateway rejected or failed the money movement.
	ErrOrderRefundGatewayFailed = errors.New("order: refund gateway failed")
	// ErrOrderUnavailable indicates the order backend cannot be reached.
	ErrOrderUnavailable = errors.New("order: unavailable")
)

// One-directional except the explicit cancellation and refund edges. No exits
// from CANCELLED or REFUNDED.
var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending: {domain.OrderStatusPaid, domain.OrderStatusCancelled},
	domain.OrderStatusPaid:    {domain.OrderStatusShipped, domain.OrderStatusRefunded},
	domain.OrderStatusShipped: {domain.OrderStatusRefunded},
}

func canTransition(from, to domain.OrderStatus) bool {
	for _, candidate := range orderStateTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Carts       repositories.CartRepository
	Counters    repositories.CounterRepository
	Pricing     PricingEngine
	Events      OrderEventPublisher
	Refunds     RefundGateway
	Clock       func() time.Time
	IDGenerator func() string
	Logger      Logger
}

type orderService struct {
	orders   repositories.OrderRepository
	carts    repositories.CartRepository
	counters repositories.CounterRepository
	pricing  PricingEngine
	events   OrderEventPublisher
	refunds  RefundGateway
	clock    func() time.Time
	newID    func() string
	logger   Logger
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("order service: cart repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("order service: pricing engine is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:   deps.Orders,
		carts:    deps.Carts,
		counters: deps.Counters,
		pricing:  deps.Pricing,
		events:   deps.Events,
		refunds:  deps.Refunds,
		clock:    func() time.Time { return clock().UTC() },
		newID:    idGen,
		logger:   logger,
	}, nil
}

// CreateFromCart freezes a priced cart into a PENDING order. Stock reservation,
// the order insert, and the cart clear happen as one all-or-nothing unit inside
// the repository.
func (s *orderService) CreateFromCart(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	cartID := strings.TrimSpace(cmd.CartID)
	if cartID == "" {
		return Order{}, fmt.Errorf("%w: cart id is required", ErrOrderInvalidInput)
	}
	email := strings.TrimSpace(cmd.Email)
	if email == "" || !strings.Contains(email, "@") {
		return Order{}, fmt.Errorf("%w: a valid email is required", ErrOrderInvalidInput)
	}
	if err := validateOrderAddress("shipping", cmd.ShippingAddress); err != nil {
		return Order{}, err
	}
	billing := cmd.BillingAddress
	if billing.IsZero() {
		billing = cmd.ShippingAddress
	} else if err := validateOrderAddress("billing", billing); err != nil {
		return Order{}, err
	}

	cart, err := s.carts.FindByID(ctx, cartID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if len(cart.Lines) == 0 {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderEmptyCart, cartID)
	}

	breakdown, err := s.pricing.Price(ctx, PriceCartCommand{
		Cart:         cart,
		DiscountCode: cmd.DiscountCode,
		CustomerRef:  cmd.CustomerRef,
		Destination:  cmd.ShippingAddress,
	})
	if err != nil {
		return Order{}, err
	}

	now := s.clock()
	number, err := s.generateOrderNumber(ctx, now)
	if err != nil {
		return Order{}, err
	}

	order := domain.Order{
		ID:              orderIDPrefix + s.newID(),
		Number:          number,
		Status:          domain.OrderStatusPending,
		Email:           email,
		CustomerRef:     strings.TrimSpace(cmd.CustomerRef),
		Currency:        cart.Currency,
		Lines:           freezeOrderLines(cart.Lines),
		Subtotal:        breakdown.Subtotal,
		DiscountAmount:  breakdown.DiscountAmount,
		Tax:             breakdown.Tax,
		ShippingCost:    breakdown.ShippingCost,
		Total:           breakdown.Total,
		TaxName:         breakdown.TaxName,
		ShippingName:    breakdown.ShippingName,
		ShippingRateRef: breakdown.ShippingRateRef,
		ShippingAddress: cmd.ShippingAddress,
		BillingAddress:  billing,
		Notes:           textutil.SanitizeText(cmd.Notes),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if breakdown.Discount != nil {
		order.DiscountCodeRef = breakdown.Discount.ID
		order.DiscountCode = breakdown.Discount.Code
	}

	created, err := s.orders.Create(ctx, repositories.OrderCreateRequest{
		Order:       order,
		ClearCartID: cart.ID,
		Reserve:     reserveLinesFromCart(cart.Lines),
		Now:         now,
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:        orderEventCreated,
		OrderID:     created.ID,
		OrderNumber: created.Number,
		Status:      created.Status,
		Email:       created.Email,
		Total:       created.Total,
		Currency:    created.Currency,
		OccurredAt:  now,
	})
	s.logger(ctx, "order.created", map[string]any{
		"orderID": created.ID,
		"number":  created.Number,
		"total":   created.Total,
	})
	return created, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, query OrderListQuery) (domain.CursorPage[Order], error) {
	page, err := s.orders.List(ctx, repositories.OrderListQuery{
		Status:   query.Status,
		Customer: strings.TrimSpace(query.Customer),
		PageSize: query.PageSize,
		Cursor:   strings.TrimSpace(query.Cursor),
	})
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// TransitionStatus is the admin-driven manual override. Cancellation releases the
// reservation and shipment commits it, inside the same repository transaction as
// the status write.
func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target := cmd.TargetStatus
	if target == "" {
		return Order{}, fmt.Errorf("%w: target status is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if order.Status == target {
		return order, nil
	}
	if !canTransition(order.Status, target) {
		return Order{}, fmt.Errorf("%w: %s to %s", ErrOrderIllegalTransition, order.Status, target)
	}

	effect := repositories.StockEffectNone
	switch target {
	case domain.OrderStatusCancelled:
		effect = repositories.StockEffectRelease
	case domain.OrderStatusShipped:
		effect = repositories.StockEffectCommit
	}

	now := s.clock()
	updated, err := s.orders.UpdateStatus(ctx, repositories.OrderStatusUpdate{
		OrderID:        orderID,
		ExpectedStatus: order.Status,
		TargetStatus:   target,
		StockEffect:    effect,
		Now:            now,
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:        orderEventStatusChanged,
		OrderID:     updated.ID,
		OrderNumber: updated.Number,
		Status:      updated.Status,
		Email:       updated.Email,
		Total:       updated.Total,
		Currency:    updated.Currency,
		OccurredAt:  now,
	})
	s.logger(ctx, "order.status.changed", map[string]any{
		"orderID": updated.ID,
		"from":    string(order.Status),
		"to":      string(updated.Status),
		"actor":   strings.TrimSpace(cmd.ActorRef),
	})
	return updated, nil
}

// ApplyPaymentOutcome reconciles a verified gateway event. The repository records
// the event id, performs the PENDING to PAID move, and increments discount usage
// in one transaction, so redelivery of the same event is a no-op.
func (s *orderService) ApplyPaymentOutcome(ctx context.Context, cmd PaymentOutcomeCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	eventID := strings.TrimSpace(cmd.EventID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if eventID == "" {
		return Order{}, fmt.Errorf("%w: gateway event id is required", ErrOrderInvalidInput)
	}
	if cmd.Outcome != domain.PaymentOutcomeAuthorized && cmd.Outcome != domain.PaymentOutcomeFailed {
		return Order{}, fmt.Errorf("%w: unknown payment outcome %q", ErrOrderInvalidInput, cmd.Outcome)
	}

	now := s.clock()
	result, err := s.orders.ApplyPaymentOutcome(ctx, repositories.PaymentOutcomeRequest{
		OrderID:    orderID,
		EventID:    eventID,
		Outcome:    cmd.Outcome,
		IntentID:   strings.TrimSpace(cmd.IntentID),
		Provider:   strings.TrimSpace(cmd.Provider),
		FailureMsg: strings.TrimSpace(cmd.FailureMsg),
		Now:        now,
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if result.AlreadyProcessed {
		s.logger(ctx, "order.payment.duplicate_event", map[string]any{
			"orderID": orderID,
			"eventID": eventID,
		})
		return result.Order, nil
	}

	switch cmd.Outcome {
	case domain.PaymentOutcomeAuthorized:
		if result.Transitioned {
			s.publishEvent(ctx, OrderEvent{
				Type:        orderEventPaid,
				OrderID:     result.Order.ID,
				OrderNumber: result.Order.Number,
				Status:      result.Order.Status,
				Email:       result.Order.Email,
				Total:       result.Order.Total,
				Currency:    result.Order.Currency,
				OccurredAt:  now,
			})
		}
		s.logger(ctx, "order.payment.authorized", map[string]any{
			"orderID":          orderID,
			"eventID":          eventID,
			"transitioned":     result.Transitioned,
			"usageIncremented": result.UsageIncremented,
		})
	case domain.PaymentOutcomeFailed:
		s.publishEvent(ctx, OrderEvent{
			Type:        orderEventPaymentFailed,
			OrderID:     result.Order.ID,
			OrderNumber: result.Order.Number,
			Status:      result.Order.Status,
			Email:       result.Order.Email,
			Total:       result.Order.Total,
			Currency:    result.Order.Currency,
			OccurredAt:  now,
		})
		s.logger(ctx, "order.payment.failed", map[string]any{
			"orderID": orderID,
			"eventID": eventID,
			"reason":  strings.TrimSpace(cmd.FailureMsg),
		})
	}

	return result.Order, nil
}

// RequestRefund opens a PENDING refund entry. The amount is validated against the
// headroom left by APPROVED and PROCESSED refunds.
func (s *orderService) RequestRefund(ctx context.Context, cmd RequestRefundCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if cmd.Amount <= 0 {
		return Order{}, fmt.Errorf("%w: refund amount must be positive", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if order.Status != domain.OrderStatusPaid && order.Status != domain.OrderStatusShipped && order.Status != domain.OrderStatusRefunded {
		return Order{}, fmt.Errorf("%w: order %s is %s", ErrOrderRefundInvalidState, orderID, order.Status)
	}
	if order.RefundedTotal()+cmd.Amount > order.Total {
		return Order{}, fmt.Errorf("%w: %d requested, %d remaining", ErrOrderRefundExcessive, cmd.Amount, order.Total-order.RefundedTotal())
	}

	now := s.clock()
	refund := domain.Refund{
		ID:        refundIDPrefix + s.newID(),
		OrderRef:  order.ID,
		Amount:    cmd.Amount,
		Reason:    textutil.SanitizeText(cmd.Reason),
		Status:    domain.RefundStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	updated, err := s.orders.RecordRefund(ctx, repositories.RefundRecordRequest{
		OrderID: order.ID,
		Refund:  refund,
		Now:     now,
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	s.logger(ctx, "order.refund.requested", map[string]any{
		"orderID":  order.ID,
		"refundID": refund.ID,
		"amount":   refund.Amount,
	})
	return updated, nil
}

// ResolveRefund moves a refund to APPROVED, REJECTED, or PROCESSED. Approving
// re-checks the headroom invariant; full coverage by counted refunds drives the
// order to REFUNDED.
func (s *orderService) ResolveRefund(ctx context.Context, cmd ResolveRefundCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	refundID := strings.TrimSpace(cmd.RefundID)
	if orderID == "" || refundID == "" {
		return Order{}, fmt.Errorf("%w: order id and refund id are required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	var refund *domain.Refund
	for i := range order.Refunds {
		if strings.EqualFold(order.Refunds[i].ID, refundID) {
			refund = &order.Refunds[i]
			break
		}
	}
	if refund == nil {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderRefundNotFound, refundID)
	}

	if !canResolveRefund(refund.Status, cmd.TargetStatus) {
		return Order{}, fmt.Errorf("%w: %s to %s", ErrOrderRefundInvalidState, refund.Status, cmd.TargetStatus)
	}

	// Headroom excluding this refund's own prior contribution.
	if cmd.TargetStatus == domain.RefundStatusApproved || cmd.TargetStatus == domain.RefundStatusProcessed {
		counted := order.RefundedTotal()
		if refund.CountsAgainstTotal() {
			counted -= refund.Amount
		}
		if counted+refund.Amount > order.Total {
			return Order{}, fmt.Errorf("%w: %d approved, %d remaining", ErrOrderRefundExcessive, refund.Amount, order.Total-counted)
		}
	}

	now := s.clock()
	resolved := *refund
	resolved.Status = cmd.TargetStatus
	resolved.UpdatedAt = now
	if cmd.TargetStatus == domain.RefundStatusProcessed {
		resolved.ProcessedBy = strings.TrimSpace(cmd.ActorRef)
		resolved.ProcessedAt = &now
	}

	// Processing moves real money: hit the gateway before the ledger so a
	// declined refund never lands as PROCESSED. The idempotency key pins
	// retries of the same refund to one gateway-side operation.
	if cmd.TargetStatus == domain.RefundStatusProcessed && s.refunds != nil {
		if strings.TrimSpace(order.PaymentIntentID) == "" {
			return Order{}, fmt.Errorf("%w: order %s has no payment intent", ErrOrderRefundGatewayFailed, order.ID)
		}
		amount := resolved.Amount
		details, err := s.refunds.Refund(ctx, payments.PaymentContext{
			PreferredProvider: order.PaymentProvider,
		}, payments.RefundRequest{
			IntentID:       order.PaymentIntentID,
			Amount:         &amount,
			Reason:         resolved.Reason,
			IdempotencyKey: "refund-" + resolved.ID,
			Metadata: map[string]string{
				"order_id":  order.ID,
				"refund_id": resolved.ID,
			},
		})
		if err != nil {
			s.logger(ctx, "order.refund.gateway_failed", map[string]any{
				"orderID":  order.ID,
				"refundID": resolved.ID,
				"error":    err.Error(),
			})
			return Order{}, fmt.Errorf("%w: %v", ErrOrderRefundGatewayFailed, err)
		}
		s.logger(ctx, "order.refund.gateway_processed", map[string]any{
			"orderID":   order.ID,
			"refundID":  resolved.ID,
			"provider":  details.Provider,
			"gatewayID": details.ID,
		})
	}

	markRefunded := false
	if resolved.CountsAgainstTotal() {
		counted := resolved.Amount
		for _, other := range order.Refunds {
			if strings.EqualFold(other.ID, resolved.ID) {
				continue
			}
			if other.CountsAgainstTotal() {
				counted += other.Amount
			}
		}
		if counted >= order.Total && canTransition(order.Status, domain.OrderStatusRefunded) {
			markRefunded = true
		}
	}

	updated, err := s.orders.RecordRefund(ctx, repositories.RefundRecordRequest{
		OrderID:      order.ID,
		Refund:       resolved,
		MarkRefunded: markRefunded,
		Now:          now,
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if markRefunded {
		s.publishEvent(ctx, OrderEvent{
			Type:        orderEventRefunded,
			OrderID:     updated.ID,
			OrderNumber: updated.Number,
			Status:      updated.Status,
			Email:       updated.Email,
			Total:       updated.Total,
			Currency:    updated.Currency,
			OccurredAt:  now,
		})
	}
	s.logger(ctx, "order.refund.resolved", map[string]any{
		"orderID":  updated.ID,
		"refundID": resolved.ID,
		"status":   string(resolved.Status),
		"actor":    strings.TrimSpace(cmd.ActorRef),
	})
	return updated, nil
}

func canResolveRefund(from, to domain.RefundStatus) bool {
	switch from {
	case domain.RefundStatusPending:
		return to == domain.RefundStatusApproved || to == domain.RefundStatusRejected
	case domain.RefundStatusApproved:
		return to == domain.RefundStatusProcessed || to == domain.RefundStatusRejected
	default:
		return false
	}
}

func validateOrderAddress(label string, addr domain.Address) error {
	if strings.TrimSpace(addr.Line1) == "" {
		return fmt.Errorf("%w: %s address line1 is required", ErrOrderInvalidInput, label)
	}
	if strings.TrimSpace(addr.City) == "" {
		return fmt.Errorf("%w: %s address city is required", ErrOrderInvalidInput, label)
	}
	if strings.TrimSpace(addr.Country) == "" {
		return fmt.Errorf("%w: %s address country is required", ErrOrderInvalidInput, label)
	}
	return nil
}

func freezeOrderLines(lines []domain.CartLine) []domain.OrderLine {
	frozen := make([]domain.OrderLine, len(lines))
	for i, line := range lines {
		frozen[i] = domain.OrderLine{
			ID:         line.ID,
			ProductRef: line.ProductRef,
			VariantRef: line.VariantRef,
			SKU:        line.SKU,
			Title:      line.Title,
			Quantity:   line.Quantity,
			UnitPrice:  line.UnitPrice,
			Total:      line.LineTotal(),
		}
	}
	return frozen
}

func reserveLinesFromCart(lines []domain.CartLine) []domain.StockLine {
	aggregated := make(map[string]int64, len(lines))
	order := make([]string, 0, len(lines))
	for _, line := range lines {
		sku := strings.TrimSpace(line.SKU)
		if sku == "" {
			continue
		}
		if _, ok := aggregated[sku]; !ok {
			order = append(order, sku)
		}
		aggregated[sku] += line.Quantity
	}
	reserve := make([]domain.StockLine, 0, len(order))
	for _, sku := range order {
		reserve = append(reserve, domain.StockLine{SKU: sku, Quantity: aggregated[sku]})
	}
	return reserve
}

func (s *orderService) generateOrderNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, "orders", now)
	if err != nil {
		return "", s.mapRepositoryError(err)
	}
	return fmt.Sprintf("SO-%04d-%06d", now.Year(), seq), nil
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorInsufficient, repositories.StockErrorNotFound:
			return fmt.Errorf("%w: %s", ErrOrderInsufficientStock, stockErr.Message)
		}
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":    event.Type,
			"orderID": event.OrderID,
			"error":   err.Error(),
		})
	}
}
