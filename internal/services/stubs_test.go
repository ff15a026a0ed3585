package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/ordella/api/internal/domain"
	"github.com/ordella/api/internal/repositories"
)

// repoError is a configurable repositories.RepositoryError for stubbing failures.
type repoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e repoError) Error() string {
	switch {
	case e.notFound:
		return "not found"
	case e.conflict:
		return "conflict"
	default:
		return "unavailable"
	}
}

func (e repoError) IsNotFound() bool    { return e.notFound }
func (e repoError) IsConflict() bool    { return e.conflict }
func (e repoError) IsUnavailable() bool { return e.unavailable }

var (
	errStubNotFound    = repoError{notFound: true}
	errStubConflict    = repoError{conflict: true}
	errStubUnavailable = repoError{unavailable: true}
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// sequentialIDs yields deterministic identifiers for assertions on generated ids.
func sequentialIDs() func() string {
	var n int
	return func() string {
		n++
		return fmt.Sprintf("01TEST%06d", n)
	}
}

type stubCartRepo struct {
	insertFn func(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	findFn   func(ctx context.Context, cartID string) (domain.Cart, error)
	saveFn   func(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	deleteFn func(ctx context.Context, cartID string) error
}

func (s *stubCartRepo) Insert(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if s.insertFn == nil {
		return cart, nil
	}
	return s.insertFn(ctx, cart)
}

func (s *stubCartRepo) FindByID(ctx context.Context, cartID string) (domain.Cart, error) {
	if s.findFn == nil {
		return domain.Cart{}, errStubNotFound
	}
	return s.findFn(ctx, cartID)
}

func (s *stubCartRepo) Save(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if s.saveFn == nil {
		return cart, nil
	}
	return s.saveFn(ctx, cart)
}

func (s *stubCartRepo) Delete(ctx context.Context, cartID string) error {
	if s.deleteFn == nil {
		return nil
	}
	return s.deleteFn(ctx, cartID)
}

type stubProductRepo struct {
	findFn func(ctx context.Context, productRef string) (domain.Product, error)
}

func (s *stubProductRepo) FindByRef(ctx context.Context, productRef string) (domain.Product, error) {
	if s.findFn == nil {
		return domain.Product{}, errStubNotFound
	}
	return s.findFn(ctx, productRef)
}

type stubDiscountRepo struct {
	findByCodeFn func(ctx context.Context, code string) (domain.DiscountCode, error)
	findByIDFn   func(ctx context.Context, codeID string) (domain.DiscountCode, error)
	incrementFn  func(ctx context.Context, codeID string, now time.Time) (domain.DiscountCode, error)
}

func (s *stubDiscountRepo) FindByCode(ctx context.Context, code string) (domain.DiscountCode, error) {
	if s.findByCodeFn == nil {
		return domain.DiscountCode{}, errStubNotFound
	}
	return s.findByCodeFn(ctx, code)
}

func (s *stubDiscountRepo) FindByID(ctx context.Context, codeID string) (domain.DiscountCode, error) {
	if s.findByIDFn == nil {
		return domain.DiscountCode{}, errStubNotFound
	}
	return s.findByIDFn(ctx, codeID)
}

func (s *stubDiscountRepo) IncrementUsage(ctx context.Context, codeID string, now time.Time) (domain.DiscountCode, error) {
	if s.incrementFn == nil {
		return domain.DiscountCode{}, errStubNotFound
	}
	return s.incrementFn(ctx, codeID, now)
}

type stubTaxRateRepo struct {
	listFn func(ctx context.Context, country string) ([]domain.TaxRate, error)
}

func (s *stubTaxRateRepo) ListActiveByCountry(ctx context.Context, country string) ([]domain.TaxRate, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, country)
}

type stubShippingZoneRepo struct {
	listFn func(ctx context.Context) ([]domain.ShippingZone, error)
}

func (s *stubShippingZoneRepo) ListActive(ctx context.Context) ([]domain.ShippingZone, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx)
}

type stubInventoryRepo struct {
	findFn    func(ctx context.Context, sku string) (domain.StockLevel, error)
	reserveFn func(ctx context.Context, req repositories.StockReserveRequest) (map[string]domain.StockLevel, error)
	releaseFn func(ctx context.Context, req repositories.StockReleaseRequest) (map[string]domain.StockLevel, error)
}

func (s *stubInventoryRepo) FindBySKU(ctx context.Context, sku string) (domain.StockLevel, error) {
	if s.findFn == nil {
		return domain.StockLevel{}, errStubNotFound
	}
	return s.findFn(ctx, sku)
}

func (s *stubInventoryRepo) Reserve(ctx context.Context, req repositories.StockReserveRequest) (map[string]domain.StockLevel, error) {
	if s.reserveFn == nil {
		return map[string]domain.StockLevel{}, nil
	}
	return s.reserveFn(ctx, req)
}

func (s *stubInventoryRepo) Release(ctx context.Context, req repositories.StockReleaseRequest) (map[string]domain.StockLevel, error) {
	if s.releaseFn == nil {
		return map[string]domain.StockLevel{}, nil
	}
	return s.releaseFn(ctx, req)
}

type stubOrderRepo struct {
	createFn       func(ctx context.Context, req repositories.OrderCreateRequest) (domain.Order, error)
	findByIDFn     func(ctx context.Context, orderID string) (domain.Order, error)
	findByIntentFn func(ctx context.Context, intentID string) (domain.Order, error)
	listFn         func(ctx context.Context, query repositories.OrderListQuery) (domain.CursorPage[domain.Order], error)
	updateStatusFn func(ctx context.Context, req repositories.OrderStatusUpdate) (domain.Order, error)
	setIntentFn    func(ctx context.Context, orderID, provider, intentID string, now time.Time) (domain.Order, error)
	applyOutcomeFn func(ctx context.Context, req repositories.PaymentOutcomeRequest) (repositories.PaymentOutcomeResult, error)
	recordRefundFn func(ctx context.Context, req repositories.RefundRecordRequest) (domain.Order, error)
	countFn        func(ctx context.Context, discountID, customerRef string) (int64, error)
}

func (s *stubOrderRepo) Create(ctx context.Context, req repositories.OrderCreateRequest) (domain.Order, error) {
	if s.createFn == nil {
		return req.Order, nil
	}
	return s.createFn(ctx, req)
}

func (s *stubOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findByIDFn == nil {
		return domain.Order{}, errStubNotFound
	}
	return s.findByIDFn(ctx, orderID)
}

func (s *stubOrderRepo) FindByIntent(ctx context.Context, intentID string) (domain.Order, error) {
	if s.findByIntentFn == nil {
		return domain.Order{}, errStubNotFound
	}
	return s.findByIntentFn(ctx, intentID)
}

func (s *stubOrderRepo) List(ctx context.Context, query repositories.OrderListQuery) (domain.CursorPage[domain.Order], error) {
	if s.listFn == nil {
		return domain.CursorPage[domain.Order]{}, nil
	}
	return s.listFn(ctx, query)
}

func (s *stubOrderRepo) UpdateStatus(ctx context.Context, req repositories.OrderStatusUpdate) (domain.Order, error) {
	if s.updateStatusFn == nil {
		return domain.Order{}, errStubNotFound
	}
	return s.updateStatusFn(ctx, req)
}

func (s *stubOrderRepo) SetPaymentIntent(ctx context.Context, orderID, provider, intentID string, now time.Time) (domain.Order, error) {
	if s.setIntentFn == nil {
		return domain.Order{}, errStubNotFound
	}
	return s.setIntentFn(ctx, orderID, provider, intentID, now)
}

func (s *stubOrderRepo) ApplyPaymentOutcome(ctx context.Context, req repositories.PaymentOutcomeRequest) (repositories.PaymentOutcomeResult, error) {
	if s.applyOutcomeFn == nil {
		return repositories.PaymentOutcomeResult{}, errStubNotFound
	}
	return s.applyOutcomeFn(ctx, req)
}

func (s *stubOrderRepo) RecordRefund(ctx context.Context, req repositories.RefundRecordRequest) (domain.Order, error) {
	if s.recordRefundFn == nil {
		return domain.Order{}, errStubNotFound
	}
	return s.recordRefundFn(ctx, req)
}

func (s *stubOrderRepo) CountFinalizedWithDiscount(ctx context.Context, discountID, customerRef string) (int64, error) {
	if s.countFn == nil {
		return 0, nil
	}
	return s.countFn(ctx, discountID, customerRef)
}

type stubCounterRepo struct {
	nextFn func(ctx context.Context, name string, now time.Time) (int64, error)
}

func (s *stubCounterRepo) Next(ctx context.Context, name string, now time.Time) (int64, error) {
	if s.nextFn == nil {
		return 1, nil
	}
	return s.nextFn(ctx, name, now)
}

type capturingPublisher struct {
	events []OrderEvent
	err    error
}

func (p *capturingPublisher) PublishOrderEvent(ctx context.Context, event OrderEvent) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

var errStubBoom = errors.New("boom")
