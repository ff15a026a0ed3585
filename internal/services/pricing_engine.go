package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ordella/api/internal/repositories"
)

var (
	// ErrPricingInvalidInput indicates the cart snapshot cannot be priced.
	ErrPricingInvalidInput = errors.New("pricing: invalid input")
	// ErrPricingUnavailable indicates a component lookup failed.
	ErrPricingUnavailable = errors.New("pricing: temporarily unavailable")
)

// PricingEngineDeps wires the component services the engine orchestrates.
type PricingEngineDeps struct {
	Discounts DiscountService
	Tax       TaxService
	Shipping  ShippingService
	Products  repositories.ProductRepository
	Logger    Logger
}

type pricingEngine struct {
	discounts DiscountService
	tax       TaxService
	shipping  ShippingService
	products  repositories.ProductRepository
	logger    Logger
}

// NewPricingEngine constructs the PricingEngine.
func NewPricingEngine(deps PricingEngineDeps) (PricingEngine, error) {
	if deps.Discounts == nil {
		return nil, errors.New("pricing engine requires a discount service")
	}
	if deps.Tax == nil {
		return nil, errors.New("pricing engine requires a tax service")
	}
	if deps.Shipping == nil {
		return nil, errors.New("pricing engine requires a shipping service")
	}
	if deps.Products == nil {
		return nil, errors.New("pricing engine requires a product repository")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &pricingEngine{
		discounts: deps.Discounts,
		tax:       deps.Tax,
		shipping:  deps.Shipping,
		products:  deps.Products,
		logger:    logger,
	}, nil
}

// Price assembles the breakdown deterministically: discount against the subtotal,
// tax on the undiscounted subtotal, then the cheapest eligible shipping rate.
// A FREE_SHIPPING code zeroes the shipping component instead of the subtotal.
func (e *pricingEngine) Price(ctx context.Context, cmd PriceCartCommand) (PricingBreakdown, error) {
	if len(cmd.Cart.Lines) == 0 {
		return PricingBreakdown{}, fmt.Errorf("%w: cart has no lines", ErrPricingInvalidInput)
	}
	destination := cmd.Destination
	if strings.TrimSpace(destination.Country) == "" {
		return PricingBreakdown{}, fmt.Errorf("%w: destination country is required", ErrPricingInvalidInput)
	}

	breakdown := PricingBreakdown{Subtotal: cmd.Cart.Subtotal()}

	if code := strings.TrimSpace(cmd.DiscountCode); code != "" {
		productRefs := cmd.Cart.ProductRefs()
		collectionRefs, err := e.collectionRefs(ctx, productRefs)
		if err != nil {
			return PricingBreakdown{}, err
		}
		result, err := e.discounts.Evaluate(ctx, EvaluateDiscountCommand{
			Code:           code,
			Subtotal:       breakdown.Subtotal,
			ProductRefs:    productRefs,
			CollectionRefs: collectionRefs,
			CustomerRef:    cmd.CustomerRef,
		})
		if err != nil {
			return PricingBreakdown{}, err
		}
		discount := result.Code
		breakdown.Discount = &discount
		breakdown.DiscountAmount = result.Amount
		breakdown.ShippingWaived = result.FreeShipping
	}

	taxResult, err := e.tax.Calculate(ctx, TaxQuery{
		Country:  destination.Country,
		Region:   destination.Region,
		Subtotal: breakdown.Subtotal,
	})
	if err != nil {
		return PricingBreakdown{}, err
	}
	if taxResult.Applicable {
		breakdown.Tax = taxResult.Amount
		breakdown.TaxName = taxResult.Name
		breakdown.TaxRatio = taxResult.Ratio
	}

	rates, err := e.shipping.AvailableRates(ctx, ShippingQuery{
		Country:    destination.Country,
		Region:     destination.Region,
		OrderValue: breakdown.Subtotal,
	})
	if err != nil {
		return PricingBreakdown{}, err
	}
	if len(rates) > 0 {
		cheapest := rates[0]
		breakdown.ShippingName = cheapest.Name
		breakdown.ShippingRateRef = cheapest.RateID
		if !breakdown.ShippingWaived {
			breakdown.ShippingCost = cheapest.Price
		}
	}

	breakdown.Total = breakdown.Subtotal - breakdown.DiscountAmount + breakdown.Tax + breakdown.ShippingCost
	if breakdown.Total < 0 {
		breakdown.Total = 0
	}

	e.logger(ctx, "pricing.computed", map[string]any{
		"subtotal": breakdown.Subtotal,
		"discount": breakdown.DiscountAmount,
		"tax":      breakdown.Tax,
		"shipping": breakdown.ShippingCost,
		"total":    breakdown.Total,
	})
	return breakdown, nil
}

// collectionRefs resolves the distinct collections covering the cart's products.
func (e *pricingEngine) collectionRefs(ctx context.Context, productRefs []string) ([]string, error) {
	seen := make(map[string]struct{})
	var refs []string
	for _, productRef := range productRefs {
		product, err := e.products.FindByRef(ctx, productRef)
		if err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrPricingUnavailable, err)
		}
		for _, collection := range product.Collections {
			collection = strings.TrimSpace(collection)
			if collection == "" {
				continue
			}
			if _, ok := seen[collection]; ok {
				continue
			}
			seen[collection] = struct{}{}
			refs = append(refs, collection)
		}
	}
	return refs, nil
}
