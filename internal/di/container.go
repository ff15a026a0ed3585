package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ordella/api/internal/platform/config"
	"github.com/ordella/api/internal/repositories"
	"github.com/ordella/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Carts     services.CartService
	Discounts services.DiscountService
	Taxes     services.TaxService
	Shipping  services.ShippingService
	Pricing   services.PricingEngine
	Inventory services.InventoryService
	Orders    services.OrderService
	Payments  services.PaymentService
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// Option customises container construction.
type Option func(*containerOptions)

type containerOptions struct {
	gateway services.PaymentGateway
	events  services.OrderEventPublisher
	logger  services.Logger
	clock   func() time.Time
}

// WithPaymentGateway supplies the gateway adapter used by the payment service.
// Without one the payment routes respond with service unavailable.
func WithPaymentGateway(gateway services.PaymentGateway) Option {
	return func(o *containerOptions) {
		o.gateway = gateway
	}
}

// WithOrderEventPublisher supplies the fire-and-forget order event sink.
func WithOrderEventPublisher(events services.OrderEventPublisher) Option {
	return func(o *containerOptions) {
		o.events = events
	}
}

// WithLogger supplies the structured event logger passed to every service.
func WithLogger(logger services.Logger) Option {
	return func(o *containerOptions) {
		o.logger = logger
	}
}

// WithClock overrides the time source, used by tests.
func WithClock(clock func() time.Time) Option {
	return func(o *containerOptions) {
		o.clock = clock
	}
}

// NewContainer constructs the runtime dependencies. Production wiring provides a
// Firestore registry; tests supply the in-memory one.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts ...Option) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	options := containerOptions{clock: time.Now}
	for _, opt := range opts {
		opt(&options)
	}

	svc, err := buildServices(reg, options)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(reg repositories.Registry, options containerOptions) (Services, error) {
	var svc Services

	inventorySvc, err := services.NewInventoryService(services.InventoryServiceDeps{
		Inventory: reg.Inventory(),
		Clock:     options.clock,
		Logger:    options.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build inventory service: %w", err)
	}
	svc.Inventory = inventorySvc

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Carts:     reg.Carts(),
		Products:  reg.Products(),
		Inventory: reg.Inventory(),
		Clock:     options.clock,
		Logger:    options.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Carts = cartSvc

	discountSvc, err := services.NewDiscountService(services.DiscountServiceDeps{
		Discounts: reg.Discounts(),
		Orders:    reg.Orders(),
		Clock:     options.clock,
		Logger:    options.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build discount service: %w", err)
	}
	svc.Discounts = discountSvc

	taxSvc, err := services.NewTaxService(services.TaxServiceDeps{
		Rates:  reg.TaxRates(),
		Clock:  options.clock,
		Logger: options.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build tax service: %w", err)
	}
	svc.Taxes = taxSvc

	shippingSvc, err := services.NewShippingService(services.ShippingServiceDeps{
		Zones:  reg.ShippingZones(),
		Logger: options.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build shipping service: %w", err)
	}
	svc.Shipping = shippingSvc

	pricing, err := services.NewPricingEngine(services.PricingEngineDeps{
		Discounts: discountSvc,
		Tax:       taxSvc,
		Shipping:  shippingSvc,
		Products:  reg.Products(),
		Logger:    options.logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build pricing engine: %w", err)
	}
	svc.Pricing = pricing

	orderDeps := services.OrderServiceDeps{
		Orders:   reg.Orders(),
		Carts:    reg.Carts(),
		Counters: reg.Counters(),
		Pricing:  pricing,
		Events:   options.events,
		Clock:    options.clock,
		Logger:   options.logger,
	}
	// The payments manager also moves refunds; hand it to the order service
	// when it carries that capability.
	if rg, ok := options.gateway.(services.RefundGateway); ok {
		orderDeps.Refunds = rg
	}
	orderSvc, err := services.NewOrderService(orderDeps)
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	if options.gateway != nil {
		paymentSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
			Gateway:   options.gateway,
			Orders:    reg.Orders(),
			Lifecycle: orderSvc,
			Clock:     options.clock,
			Logger:    options.logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build payment service: %w", err)
		}
		svc.Payments = paymentSvc
	}

	return svc, nil
}
