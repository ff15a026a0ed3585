package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/ordella/api/internal/domain"
	"github.com/ordella/api/internal/payments"
	"github.com/ordella/api/internal/repositories"
)

type orderServiceFixture struct {
	orders    *stubOrderRepo
	carts     *stubCartRepo
	counters  *stubCounterRepo
	pricing   PricingEngine
	publisher *capturingPublisher
	refunds   RefundGateway
}

func newTestOrderService(t *testing.T, fx *orderServiceFixture) OrderService {
	t.Helper()
	if fx.orders == nil {
		fx.orders = &stubOrderRepo{}
	}
	if fx.carts == nil {
		fx.carts = &stubCartRepo{
			findFn: func(ctx context.Context, cartID string) (domain.Cart, error) {
				return checkoutCart(), nil
			},
		}
	}
	if fx.counters == nil {
		fx.counters = &stubCounterRepo{}
	}
	if fx.pricing == nil {
		fx.pricing = &stubPricingEngine{}
	}
	if fx.publisher == nil {
		fx.publisher = &capturingPublisher{}
	}
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:      fx.orders,
		Carts:       fx.carts,
		Counters:    fx.counters,
		Pricing:     fx.pricing,
		Events:      fx.publisher,
		Refunds:     fx.refunds,
		Clock:       fixedClock(testNow),
		IDGenerator: sequentialIDs(),
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}
	return svc
}

type stubRefundGateway struct {
	refundFn func(ctx context.Context, paymentCtx payments.PaymentContext, req payments.RefundRequest) (payments.RefundDetails, error)
}

func (s *stubRefundGateway) Refund(ctx context.Context, paymentCtx payments.PaymentContext, req payments.RefundRequest) (payments.RefundDetails, error) {
	if s.refundFn == nil {
		return payments.RefundDetails{ID: "re_stub", Provider: "stripe", IntentID: req.IntentID}, nil
	}
	return s.refundFn(ctx, paymentCtx, req)
}

type stubPricingEngine struct {
	priceFn func(ctx context.Context, cmd PriceCartCommand) (PricingBreakdown, error)
}

func (s *stubPricingEngine) Price(ctx context.Context, cmd PriceCartCommand) (PricingBreakdown, error) {
	if s.priceFn == nil {
		return PricingBreakdown{
			Subtotal:     cmd.Cart.Subtotal(),
			Tax:          800,
			TaxName:      "Sales Tax",
			ShippingCost: 1000,
			ShippingName: "Standard",
			Total:        cmd.Cart.Subtotal() + 800 + 1000,
		}, nil
	}
	return s.priceFn(ctx, cmd)
}

func checkoutCart() domain.Cart {
	return domain.Cart{
		ID:       "cart_1",
		Currency: "USD",
		Lines: []domain.CartLine{
			{ID: "line_1", ProductRef: "prod_1", SKU: "SKU-1", Title: "Mug", Quantity: 2, UnitPrice: 2500},
			{ID: "line_2", ProductRef: "prod_2", SKU: "SKU-2", Title: "Poster", Quantity: 1, UnitPrice: 5000},
			{ID: "line_3", ProductRef: "prod_1", SKU: "SKU-1", Title: "Mug", Quantity: 1, UnitPrice: 2500},
		},
	}
}

func validCreateCommand() CreateOrderCommand {
	return CreateOrderCommand{
		CartID: "cart_1",
		Email:  "shopper@example.com",
		ShippingAddress: domain.Address{
			Line1:   "1 Main St",
			City:    "Springfield",
			Country: "US",
		},
	}
}

func paidOrder() domain.Order {
	return domain.Order{
		ID:       "ord_1",
		Number:   "SO-2024-000001",
		Status:   domain.OrderStatusPaid,
		Email:    "shopper@example.com",
		Currency: "USD",
		Total:    11800,
	}
}

func TestOrderCreateFromCartFreezesSnapshot(t *testing.T) {
	var request repositories.OrderCreateRequest
	fx := &orderServiceFixture{
		orders: &stubOrderRepo{
			createFn: func(ctx context.Context, req repositories.OrderCreateRequest) (domain.Order, error) {
				request = req
				return req.Order, nil
			},
		},
		counters: &stubCounterRepo{
			nextFn: func(ctx context.Context, name string, now time.Time) (int64, error) {
				if name != "orders" {
					t.Fatalf("unexpected counter name %q", name)
				}
				return 42, nil
			},
		},
	}
	svc := newTestOrderService(t, fx)

	order, err := svc.CreateFromCart(context.Background(), validCreateCommand())
	if err != nil {
		t.Fatalf("create from cart: %v", err)
	}
	if !strings.HasPrefix(order.ID, "ord_") {
		t.Fatalf("expected ord_ prefixed id, got %q", order.ID)
	}
	if order.Number != "SO-2024-000042" {
		t.Fatalf("expected sequential order number, got %q", order.Number)
	}
	if order.Status != domain.OrderStatusPending {
		t.Fatalf("expected PENDING, got %s", order.Status)
	}
	if order.Subtotal != 12500 || order.Total != 14300 {
		t.Fatalf("expected frozen totals 12500/14300, got %d/%d", order.Subtotal, order.Total)
	}
	if len(order.Lines) != 3 || order.Lines[0].Total != 5000 {
		t.Fatalf("expected frozen line totals, got %+v", order.Lines)
	}
	if order.BillingAddress != order.ShippingAddress {
		t.Fatalf("expected billing to default to shipping")
	}
	if request.ClearCartID != "cart_1" {
		t.Fatalf("expected cart clear bundled into the create, got %q", request.ClearCartID)
	}
	if len(request.Reserve) != 2 {
		t.Fatalf("expected reservation lines aggregated by SKU, got %+v", request.Reserve)
	}
	if request.Reserve[0].SKU != "SKU-1" || request.Reserve[0].Quantity != 3 {
		t.Fatalf("expected SKU-1 quantity 3, got %+v", request.Reserve[0])
	}
	if len(fx.publisher.events) != 1 || fx.publisher.events[0].Type != "order.created" {
		t.Fatalf("expected order.created event, got %+v", fx.publisher.events)
	}
}

func TestOrderCreateFromCartEmptyCart(t *testing.T) {
	fx := &orderServiceFixture{
		carts: &stubCartRepo{
			findFn: func(ctx context.Context, cartID string) (domain.Cart, error) {
				return domain.Cart{ID: cartID, Currency: "USD"}, nil
			},
		},
	}
	svc := newTestOrderService(t, fx)

	if _, err := svc.CreateFromCart(context.Background(), validCreateCommand()); !errors.Is(err, ErrOrderEmptyCart) {
		t.Fatalf("expected ErrOrderEmptyCart, got %v", err)
	}
}

func TestOrderCreateFromCartValidation(t *testing.T) {
	svc := newTestOrderService(t, &orderServiceFixture{})

	cases := []struct {
		name string
		mod  func(*CreateOrderCommand)
	}{
		{name: "missing cart", mod: func(c *CreateOrderCommand) { c.CartID = "" }},
		{name: "bad email", mod: func(c *CreateOrderCommand) { c.Email = "not-an-email" }},
		{name: "missing line1", mod: func(c *CreateOrderCommand) { c.ShippingAddress.Line1 = "" }},
		{name: "missing city", mod: func(c *CreateOrderCommand) { c.ShippingAddress.City = "" }},
		{name: "missing country", mod: func(c *CreateOrderCommand) { c.ShippingAddress.Country = "" }},
		{name: "partial billing", mod: func(c *CreateOrderCommand) { c.BillingAddress = domain.Address{Line1: "2 Side St"} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := validCreateCommand()
			tc.mod(&cmd)
			if _, err := svc.CreateFromCart(context.Background(), cmd); !errors.Is(err, ErrOrderInvalidInput) {
				t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
			}
		})
	}
}

func TestOrderCreateFromCartInsufficientStock(t *testing.T) {
	fx := &orderServiceFixture{
		orders: &stubOrderRepo{
			createFn: func(ctx context.Context, req repositories.OrderCreateRequest) (domain.Order, error) {
				return domain.Order{}, repositories.NewStockError(repositories.StockErrorInsufficient, "SKU-1 exhausted", nil)
			},
		},
	}
	svc := newTestOrderService(t, fx)

	if _, err := svc.CreateFromCart(context.Background(), validCreateCommand()); !errors.Is(err, ErrOrderInsufficientStock) {
		t.Fatalf("expected ErrOrderInsufficientStock, got %v", err)
	}
}

func TestOrderCreateFromCartStoresDiscountSnapshot(t *testing.T) {
	fx := &orderServiceFixture{
		pricing: &stubPricingEngine{
			priceFn: func(ctx context.Context, cmd PriceCartCommand) (PricingBreakdown, error) {
				return PricingBreakdown{
					Subtotal:       10000,
					DiscountAmount: 2000,
					Total:          8000,
					Discount:       &domain.DiscountCode{ID: "disc_1", Code: "SPRING20"},
				}, nil
			},
		},
	}
	svc := newTestOrderService(t, fx)

	cmd := validCreateCommand()
	cmd.DiscountCode = "SPRING20"
	order, err := svc.CreateFromCart(context.Background(), cmd)
	if err != nil {
		t.Fatalf("create from cart: %v", err)
	}
	if order.DiscountCodeRef != "disc_1" || order.DiscountCode != "SPRING20" {
		t.Fatalf("expected discount snapshot, got %q/%q", order.DiscountCodeRef, order.DiscountCode)
	}
}

func TestOrderTransitionLegalEdges(t *testing.T) {
	cases := []struct {
		name   string
		from   domain.OrderStatus
		to     domain.OrderStatus
		effect repositories.StockEffect
	}{
		{name: "pending to paid", from: domain.OrderStatusPending, to: domain.OrderStatusPaid, effect: repositories.StockEffectNone},
		{name: "pending to cancelled", from: domain.OrderStatusPending, to: domain.OrderStatusCancelled, effect: repositories.StockEffectRelease},
		{name: "paid to shipped", from: domain.OrderStatusPaid, to: domain.OrderStatusShipped, effect: repositories.StockEffectCommit},
		{name: "paid to refunded", from: domain.OrderStatusPaid, to: domain.OrderStatusRefunded, effect: repositories.StockEffectNone},
		{name: "shipped to refunded", from: domain.OrderStatusShipped, to: domain.OrderStatusRefunded, effect: repositories.StockEffectNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var update repositories.OrderStatusUpdate
			fx := &orderServiceFixture{
				orders: &stubOrderRepo{
					findByIDFn: func(ctx context.Context, orderID string) (domain.Order, error) {
						order := paidOrder()
						order.Status = tc.from
						return order, nil
					},
					updateStatusFn: func(ctx context.Context, req repositories.OrderStatusUpdate) (domain.Order, error) {
						update = req
						order := paidOrder()
						order.Status = req.TargetStatus
						return order, nil
					},
				},
			}
			svc := newTestOrderService(t, fx)

			order, err := svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
				OrderID:      "ord_1",
				TargetStatus: tc.to,
			})
			if err != nil {
				t.Fatalf("transition: %v", err)
			}
			if order.Status != tc.to {
				t.Fatalf("expected %s, got %s", tc.to, order.Status)
			}
			if update.ExpectedStatus != tc.from {
				t.Fatalf("expected compare-and-set on %s, got %s", tc.from, update.ExpectedStatus)
			}
			if update.StockEffect != tc.effect {
				t.Fatalf("expected stock effect %q, got %q", tc.effect, update.StockEffect)
			}
			if len(fx.publisher.events) != 1 || fx.publisher.events[0].Type != "order.status.changed" {
				t.Fatalf("expected status change event, got %+v", fx.publisher.events)
			}
		})
	}
}

func TestOrderTransitionIllegalEdges(t *testing.T) {
	cases := []struct {
		name string
		from domain.OrderStatus
		to   domain.OrderStatus
	}{
		{name: "pending to shipped", from: domain.OrderStatusPending, to: domain.OrderStatusShipped},
		{name: "pending to refunded", from: domain.OrderStatusPending, to: domain.OrderStatusRefunded},
		{name: "paid to cancelled", from: domain.OrderStatusPaid, to: domain.OrderStatusCancelled},
		{name: "cancelled exit", from: domain.OrderStatusCancelled, to: domain.OrderStatusPaid},
		{name: "refunded exit", from: domain.OrderStatusRefunded, to: domain.OrderStatusShipped},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := &orderServiceFixture{
				orders: &stubOrderRepo{
					findByIDFn: func(ctx context.Context, orderID string) (domain.Order, error) {
						order := paidOrder()
						order.Status = tc.from
						return order, nil
					},
				},
			}
			svc := newTestOrderService(t, fx)

			_, err := svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
				OrderID:      "ord_1",
				TargetStatus: tc.to,
			})
			if !errors.Is(err, ErrOrderIllegalTransition) {
				t.Fatalf("expected ErrOrderIllegalTransition, got %v", err)
			}
		})
	}
}

func TestOrderTransitionSameStatusIsNoop(t *testing.T) {
	fx := &orderServiceFixture{
		orders: &stubOrderRepo{
			findByIDFn: func(ctx context.Context, orderID string) (domain.Order, error) {
				return paidOrder(), nil
			},
			updateStatusFn: func(ctx context.Context, req repositories.OrderStatusUpdate) (domain.Order, error) {
				t.Fatalf("no write expected for a same-status transition")
				return domain.Order{}, nil
			},
		},
	}
	svc := newTestOrderService(t, fx)

	order, err := svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID:      "ord_1",
		TargetStatus: domain.OrderStatusPaid,
	})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if order.Status != domain.OrderStatusPaid {
		t.Fatalf("expected unchanged order, got %s", order.Status)
	}
	if len(fx.publisher.events) != 0 {
		t.Fatalf("no events expected, got %+v", fx.publisher.events)
	}
}

func TestOrderTransitionLostRace(t *testing.T) {
	fx := &orderServiceFixture{
		orders: &stubOrderRepo{
			findByIDFn: func(ctx context.Context, orderID string) (domain.Order, error) {
				order := paidOrder()
				order.Status = domain.OrderStatusPending
				return order, nil
			},
			updateStatusFn: func(ctx context.Context, req repositories.OrderStatusUpdate) (domain.Order, error) {
				return domain.Order{}, errStubConflict
			},
		},
	}
	svc := newTestOrderService(t, fx)

	_, err := svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID:      "ord_1",
		TargetStatus: domain.OrderStatusPaid,
	})
	if !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected ErrOrderConflict, got %v", err)
	}
}

func TestOrderApplyPaymentOutcomeAuthorized(t *testing.T) {
	var request repositories.PaymentOutcomeRequest
	fx := &orderServiceFixture{
		orders: &stubOrderRepo{
			applyOutcomeFn: func(ctx context.Context, req repositories.PaymentOutcomeRequest) (repositories.PaymentOutcomeResult, error) {
				request = req
				order := paidOrder()
				return repositories.PaymentOutcomeResult{Order: order, Transitioned: true, UsageIncremented: true}, nil
			},
		},
	}
	svc := newTestOrderService(t, fx)

	order, err := svc.ApplyPaymentOutcome(context.Background(), PaymentOutcomeCommand{
		OrderID:  "ord_1",
		EventID:  "evt_1",
		Outcome:  domain.PaymentOutcomeAuthorized,
		IntentID: "pi_1",
		Provider: "stripe",
	})
	if err != nil {
		t.Fatalf("apply outcome: %v", err)
	}
	if order.Status != domain.OrderStatusPaid {
		t.Fatalf("expected PAID, got %s", order.Status)
	}
	if request.EventID != "evt_1" || request.IntentID != "pi_1" {
		t.Fatalf("expected event correlation forwarded, got %+v", request)
	}
	if len(fx.publisher.events) != 1 || fx.publisher.events[0].Type != "order.paid" {
		t.Fatalf("expected order.paid event, got %+v", fx.publisher.events)
	}
}

func TestOrderApplyPaymentOutcomeDuplicateEvent(t *testing.T) {
	fx := &orderServiceFixture{
		orders: &stubOrderRepo{
			applyOutcomeFn: func(ctx context.Context, req repositories.PaymentOutcomeRequest) (repositories.PaymentOutcomeResult, error) {
				return repositories.PaymentOutcomeResult{Order: paidOrder(), AlreadyProcessed: true}, nil
			},
		},
	}
	svc := newTestOrderService(t, fx)

	order, err := svc.ApplyPaymentOutcome(context.Background(), PaymentOutcomeCommand{
		OrderID: "ord_1",
		EventID: "evt_1",
		Outcome: domain.PaymentOutcomeAuthorized,
	})
	if err != nil {
		t.Fatalf("duplicate delivery must be a silent no-op: %v", err)
	}
	if order.Status != domain.OrderStatusPaid {
		t.Fatalf("expected current order returned, got %s", order.Status)
	}
	if len(fx.publisher.events) != 0 {
		t.Fatalf("no events expected on redelivery, got %+v", fx.publisher.events)
	}
}

func TestOrderApplyPaymentOutcomeFailed(t *testing.T) {
	fx := &orderServiceFixture{
		orders: &stubOrderRepo{
			applyOutcomeFn: func(ctx context.Context, req repositories.PaymentOutcomeRequest) (repositories.PaymentOutcomeResult, error) {
				order := paidOrder()
				order.Status = domain.OrderStatusPending
				order.LastPaymentError = req.FailureMsg
				return repositories.PaymentOutcomeResult{Order: order}, nil
			},
		},
	}
	svc := newTestOrderService(t, fx)

	order, err := svc.ApplyPaymentOutcome(context.Background(), PaymentOutcomeCommand{
		OrderID:    "ord_1",
		EventID:    "evt_2",
		Outcome:    domain.PaymentOutcomeFailed,
		FailureMsg: "card declined",
	})
	if err != nil {
		t.Fatalf("apply outcome: %v", err)
	}
	if order.Status != domain.OrderStatusPending {
		t.Fatalf("failure must keep the order payable, got %s", order.Status)
	}
	if len(fx.publisher.events) != 1 || fx.publisher.events[0].Type != "order.payment_failed" {
		t.Fatalf("expected order.payment_failed event, got %+v", fx.publisher.events)
	}
}

func TestOrderApplyPaymentOutcomeRejectsUnknownOutcome(t *testing.T) {
	svc := newTestOrderService(t, &orderServiceFixture{})

	_, err := svc.ApplyPaymentOutcome(context.Background(), PaymentOutcomeCommand{
		OrderID: "ord_1",
		EventID: "evt_1",
		Outcome: domain.PaymentOutcome("MAYBE"),
	})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
	}
}

func TestOrderRequestRefundOpensPendingEntry(t *testing.T) {
	var request repositories.RefundRecordRequest
	fx := &orderServiceFixture{
		orders: &stubOrderRepo{
			findByIDFn: func(ctx context.Context, orderID string) (domain.Order, error) {
				return paidOrder(), nil
			},
			recordRefundFn: func(ctx context.Context, req repositories.RefundRecordRequest) (domain.Order, error) {
				request = req
				order := paidOrder()
				order.Refunds = []domain.Refund{req.Refund}
				return order, nil
			},
		},
	}
	svc := newTestOrderService(t, fx)

	order, err := svc.RequestRefund(context.Background(), RequestRefundCommand{
		OrderID: "ord_1",
		Amount:  5000,
		Reason:  "damaged in transit",
	})
	if err != nil {
		t.Fatalf("request refund: %v", err)
	}
	if !strings.HasPrefix(request.Refund.ID, "ref_") {
		t.Fatalf("expected ref_ prefixed id, got %q", request.Refund.ID)
	}
	if request.Refund.Status != domain.RefundStatusPending {
		t.Fatalf("expected PENDING refund, got %s", request.Refund.Status)
	}
	if request.MarkRefunded {
		t.Fatalf("a pending request must not mark the order refunded")
	}
	if len(order.Refunds) != 1 {
		t.Fatalf("expected refund appended, got %+v", order.Refunds)
	}
}

func TestOrderRequestRefundHeadroom(t *testing.T) {
	order := paidOrder()
	order.Refunds = []domain.Refund{
		{ID: "ref_a", Amount: 8000, Status: domain.RefundStatusApproved},
		{ID: "ref_b", Amount: 9000, Status: domain.RefundStatusRejected},
	}
	fx := &orderServiceFixture{
		orders: &stubOrderRepo{
			findByIDFn: func(ctx context.Context, orderID string) (domain.Order, error) { return order, nil },
			recordRefundFn: func(ctx context.Context, req repositories.RefundRecordRequest) (domain.Order, error) {
				return order, nil
			},
		},
	}
	svc := newTestOrderService(t, fx)

	// 11800 total, 8000 counted: 3800 headroom left. Rejected entries do not count.
	if _, err := svc.RequestRefund(context.Background(), RequestRefundCommand{OrderID: "ord_1", Amount: 3801}); !errors.Is(err, ErrOrderRefundExcessive) {
		t.Fatalf("expected ErrOrderRefundExcessive, got %v", err)
	}
	if _, err := svc.RequestRefund(context.Background(), RequestRefundCommand{OrderID: "ord_1", Amount: 3800}); err != nil {
		t.Fatalf("refund within headroom must pass: %v", err)
	}
}

func TestOrderRequestRefundRequiresSettledOrder(t *testing.T) {
	for _, status := range []domain.OrderStatus{domain.OrderStatusPending, domain.OrderStatusCancelled} {
		order := paidOrder()
		order.Status = status
		fx := &orderServiceFixture{
			orders: &stubOrderRepo{
				findByIDFn: func(ctx context.Context, orderID string) (domain.Order, error) { return order, nil },
			},
		}
		svc := newTestOrderService(t, fx)

		if _, err := svc.RequestRefund(context.Background(), RequestRefundCommand{OrderID: "ord_1", Amount: 100}); !errors.Is(err, ErrOrderRefundInvalidState) {
			t.Fatalf("status %s: expected ErrOrderRefundInvalidState, got %v", status, err)
		}
	}
}

func TestOrderResolveRefundApprove(t *testing.T) {
	order := paidOrder()
	order.Refunds = []domain.Refund{{ID: "ref_1", OrderRef: "ord_1", Amount: 5000, Status: domain.RefundStatusPending}}
	var request repositories.RefundRecordRequest
	fx := &orderServiceFixture{
		orders: &stubOrderRepo{
			findByIDFn: func(ctx context.Context, orderID string) (domain.Order, error) { return order, nil },
			recordRefundFn: func(ctx context.Context, req repositories.RefundRecordRequest) (domain.Order, error) {
				request = req
				updated := order
				updated.Refunds = []domain.Refund{req.Refund}
				return updated, nil
			},
		},
	}
	svc := newTestOrderService(t, fx)

	_, err := svc.ResolveRefund(context.Background(), ResolveRefundCommand{
		OrderID:      "ord_1",
		RefundID:     "ref_1",
		TargetStatus: domain.RefundStatusApproved,
		ActorRef:     "admin_1",
	})
	if err != nil {
		t.Fatalf("resolve refund: %v", err)
	}
	if request.Refund.Status != domain.RefundStatusApproved {
		t.Fatalf("expected APPROVED, got %s", request.Refund.Status)
	}
	if request.MarkRefunded {
		t.Fatalf("partial coverage must not mark the order refunded")
	}
}

func TestOrderResolveRefundIllegalMoves(t *testing.T) {
	cases := []struct {
		name string
		from domain.RefundStatus
		to   domain.RefundStatus
	}{
		{name: "pending straight to processed", from: domain.RefundStatusPending, to: domain.RefundStatusProcessed},
		{name: "rejected reopened", from: domain.RefundStatusRejected, to: domain.RefundStatusApproved},
		{name: "processed reversed", from: domain.RefundStatusProcessed, to: domain.RefundStatusRejected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := paidOrder()
			order.Refunds = []domain.Refund{{ID: "ref_1", Amount: 100, Status: tc.from}}
			fx := &orderServiceFixture{
				orders: &stubOrderRepo{
					findByIDFn: func(ctx context.Context, orderID string) (domain.Order, error) { return order, nil },
				},
			}
			svc := newTestOrderService(t, fx)

			_, err := svc.ResolveRefund(context.Background(), ResolveRefundCommand{
				OrderID:      "ord_1",
				RefundID:     "ref_1",
				TargetStatus: tc.to,
			})
			if !errors.Is(err, ErrOrderRefundInvalidState) {
				t.Fatalf("expected ErrOrderRefundInvalidState, got %v", err)
			}
		})
	}
}

func TestOrderResolveRefundProcessedStampsActor(t *testing.T) {
	order := paidOrder()
	order.Refunds = []domain.Refund{{ID: "ref_1", Amount: 5000, Status: domain.RefundStatusApproved}}
	var request repositories.RefundRecordRequest
	fx := &orderServiceFixture{
		orders: &stubOrderRepo{
			findByIDFn: func(ctx context.Context, orderID string) (domain.Order, error) { return order, nil },
			recordRefundFn: func(ctx context.Context, req repositories.RefundRecordRequest) (domain.Order, error) {
				request = req
				return order, nil
			},
		},
	}
	svc := newTestOrderService(t, fx)

	if _, err := svc.ResolveRefund(context.Background(), ResolveRefundCommand{
		OrderID:      "ord_1",
		RefundID:     "ref_1",
		TargetStatus: domain.RefundStatusProcessed,
		ActorRef:     "admin_2",
	}); err != nil {
		t.Fatalf("resolve refund: %v", err)
	}
	if request.Refund.ProcessedBy != "admin_2" {
		t.Fatalf("expected processing actor recorded, got %q", request.Refund.ProcessedBy)
	}
	if request.Refund.ProcessedAt == nil || !request.Refund.ProcessedAt.Equal(testNow) {
		t.Fatalf("expected processing timestamp, got %v", request.Refund.ProcessedAt)
	}
}

func TestOrderResolveRefundProcessedCallsGateway(t *testing.T) {
	order := paidOrder()
	order.PaymentProvider = "stripe"
	order.PaymentIntentID = "pi_123"
	order.Refunds = []domain.Refund{{ID: "ref_1", Amount: 5000, Reason: "damaged", Status: domain.RefundStatusApproved}}
	recorded := false
	var gatewayCtx payments.PaymentContext
	var gatewayReq payments.RefundRequest
	fx := &orderServiceFixture{
		orders: &stubOrderRepo{
			findByIDFn: func(ctx context.Context, orderID string) (domain.Order, error) { return order, nil },
			recordRefundFn: func(ctx context.Context, req repositories.RefundRecordRequest) (domain.Order, error) {
				recorded = true
				return order, nil
			},
		},
		refunds: &stubRefundGateway{
			refundFn: func(ctx context.Context, paymentCtx payments.PaymentContext, req payments.RefundRequest) (payments.RefundDetails, error) {
				gatewayCtx = paymentCtx
				gatewayReq = req
				return payments.RefundDetails{ID: "re_1", Provider: "stripe", IntentID: req.IntentID, Amount: 5000}, nil
			},
		},
	}
	svc := newTestOrderService(t, fx)

	if _, err := svc.ResolveRefund(context.Background(), ResolveRefundCommand{
		OrderID:      "ord_1",
		RefundID:     "ref_1",
		TargetStatus: domain.RefundStatusProcessed,
		ActorRef:     "admin_2",
	}); err != nil {
		t.Fatalf("resolve refund: %v", err)
	}
	if gatewayCtx.PreferredProvider != "stripe" {
		t.Fatalf("expected stripe preferred, got %q", gatewayCtx.PreferredProvider)
	}
	if gatewayReq.IntentID != "pi_123" {
		t.Fatalf("expected the order's intent refunded, got %q", gatewayReq.IntentID)
	}
	if gatewayReq.IdempotencyKey != "refund-ref_1" {
		t.Fatalf("expected refund-scoped idempotency key, got %q", gatewayReq.IdempotencyKey)
	}
	if gatewayReq.Amount == nil || *gatewayReq.Amount != 5000 {
		t.Fatalf("expected partial amount 5000, got %v", gatewayReq.Amount)
	}
	if gatewayReq.Metadata["order_id"] != "ord_1" || gatewayReq.Metadata["refund_id"] != "ref_1" {
		t.Fatalf("expected order and refund metadata, got %v", gatewayReq.Metadata)
	}
	if !recorded {
		t.Fatalf("expected the ledger updated after the gateway call")
	}
}

func TestOrderResolveRefundGatewayFailureKeepsLedger(t *testing.T) {
	order := paidOrder()
	order.PaymentProvider = "stripe"
	order.PaymentIntentID = "pi_123"
	order.Refunds = []domain.Refund{{ID: "ref_1", Amount: 5000, Status: domain.RefundStatusApproved}}
	fx := &orderServiceFixture{
		orders: &stubOrderRepo{
			findByIDFn: func(ctx context.Context, orderID string) (domain.Order, error) { return order, nil },
			recordRefundFn: func(ctx context.Context, req repositories.RefundRecordRequest) (domain.Order, error) {
				t.Fatalf("ledger must not record a refund the gateway declined")
				return domain.Order{}, nil
			},
		},
		refunds: &stubRefundGateway{
			refundFn: func(ctx context.Context, paymentCtx payments.PaymentContext, req payments.RefundRequest) (payments.RefundDetails, error) {
				return payments.RefundDetails{}, errors.New("charge disputed")
			},
		},
	}
	svc := newTestOrderService(t, fx)

	_, err := svc.ResolveRefund(context.Background(), ResolveRefundCommand{
		OrderID:      "ord_1",
		RefundID:     "ref_1",
		TargetStatus: domain.RefundStatusProcessed,
	})
	if !errors.Is(err, ErrOrderRefundGatewayFailed) {
		t.Fatalf("expected ErrOrderRefundGatewayFailed, got %v", err)
	}
}

func TestOrderResolveRefundGatewayRequiresIntent(t *testing.T) {
	order := paidOrder()
	order.Refunds = []domain.Refund{{ID: "ref_1", Amount: 5000, Status: domain.RefundStatusApproved}}
	fx := &orderServiceFixture{
		orders: &stubOrderRepo{
			findByIDFn: func(ctx context.Context, orderID string) (domain.Order, error) { return order, nil },
		},
		refunds: &stubRefundGateway{
			refundFn: func(ctx context.Context, paymentCtx payments.PaymentContext, req payments.RefundRequest) (payments.RefundDetails, error) {
				t.Fatalf("gateway must not be called without a payment intent")
				return payments.RefundDetails{}, nil
			},
		},
	}
	svc := newTestOrderService(t, fx)

	_, err := svc.ResolveRefund(context.Background(), ResolveRefundCommand{
		OrderID:      "ord_1",
		RefundID:     "ref_1",
		TargetStatus: domain.RefundStatusProcessed,
	})
	if !errors.Is(err, ErrOrderRefundGatewayFailed) {
		t.Fatalf("expected ErrOrderRefundGatewayFailed, got %v", err)
	}
}

func TestOrderResolveRefundFullCoverageMarksRefunded(t *testing.T) {
	order := paidOrder()
	order.Refunds = []domain.Refund{
		{ID: "ref_1", Amount: 6800, Status: domain.RefundStatusProcessed},
		{ID: "ref_2", Amount: 5000, Status: domain.RefundStatusPending},
	}
	var request repositories.RefundRecordRequest
	fx := &orderServiceFixture{
		orders: &stubOrderRepo{
			findByIDFn: func(ctx context.Context, orderID string) (domain.Order, error) { return order, nil },
			recordRefundFn: func(ctx context.Context, req repositories.RefundRecordRequest) (domain.Order, error) {
				request = req
				updated := order
				updated.Status = domain.OrderStatusRefunded
				return updated, nil
			},
		},
	}
	svc := newTestOrderService(t, fx)

	updated, err := svc.ResolveRefund(context.Background(), ResolveRefundCommand{
		OrderID:      "ord_1",
		RefundID:     "ref_2",
		TargetStatus: domain.RefundStatusApproved,
	})
	if err != nil {
		t.Fatalf("resolve refund: %v", err)
	}
	if !request.MarkRefunded {
		t.Fatalf("full coverage must drive the order to REFUNDED")
	}
	if updated.Status != domain.OrderStatusRefunded {
		t.Fatalf("expected REFUNDED order, got %s", updated.Status)
	}
	var refunded bool
	for _, event := range fx.publisher.events {
		if event.Type == "order.refunded" {
			refunded = true
		}
	}
	if !refunded {
		t.Fatalf("expected order.refunded event, got %+v", fx.publisher.events)
	}
}

func TestOrderResolveRefundUnknownRefund(t *testing.T) {
	fx := &orderServiceFixture{
		orders: &stubOrderRepo{
			findByIDFn: func(ctx context.Context, orderID string) (domain.Order, error) { return paidOrder(), nil },
		},
	}
	svc := newTestOrderService(t, fx)

	_, err := svc.ResolveRefund(context.Background(), ResolveRefundCommand{
		OrderID:      "ord_1",
		RefundID:     "ref_missing",
		TargetStatus: domain.RefundStatusApproved,
	})
	if !errors.Is(err, ErrOrderRefundNotFound) {
		t.Fatalf("expected ErrOrderRefundNotFound, got %v", err)
	}
}

func TestOrderGetOrderNotFound(t *testing.T) {
	svc := newTestOrderService(t, &orderServiceFixture{})

	if _, err := svc.GetOrder(context.Background(), "ord_missing"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderEventPublishFailureDoesNotFailCall(t *testing.T) {
	fx := &orderServiceFixture{
		publisher: &capturingPublisher{err: errStubBoom},
	}
	svc := newTestOrderService(t, fx)

	if _, err := svc.CreateFromCart(context.Background(), validCreateCommand()); err != nil {
		t.Fatalf("publish failures are logged, not returned: %v", err)
	}
}
