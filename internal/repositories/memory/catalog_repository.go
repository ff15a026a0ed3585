package memory

import (
	"context"
	"strings"
	"time"

	domain "github.com/ordella/api/internal/domain"
)

type productRepository struct{ reg *Registry }

func (r *productRepository) FindByRef(_ context.Context, productRef string) (domain.Product, error) {
	r.reg.mu.Lock()
	defer r.reg.mu.Unlock()
	product, ok := r.reg.products[strings.TrimSpace(productRef)]
	if !ok {
		return domain.Product{}, notFound("product %s not found", productRef)
	}
	return product, nil
}

type discountRepository struct{ reg *Registry }

func (r *discountRepository) FindByCode(_ context.Context, code string) (domain.DiscountCode, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	r.reg.mu.Lock()
	defer r.reg.mu.Unlock()
	id, ok := r.reg.discountByCode[normalized]
	if !ok {
		return domain.DiscountCode{}, notFound("discount code not found")
	}
	return cloneDiscount(r.reg.discounts[id]), nil
}

func (r *discountRepository) FindByID(_ context.Context, codeID string) (domain.DiscountCode, error) {
	r.reg.mu.Lock()
	defer r.reg.mu.Unlock()
	discount, ok := r.reg.discounts[strings.TrimSpace(codeID)]
	if !ok {
		return domain.DiscountCode{}, notFound("discount %s not found", codeID)
	}
	return cloneDiscount(discount), nil
}

func (r *discountRepository) IncrementUsage(_ context.Context, codeID string, now time.Time) (domain.DiscountCode, error) {
	r.reg.mu.Lock()
	defer r.reg.mu.Unlock()
	discount, ok := r.reg.discounts[strings.TrimSpace(codeID)]
	if !ok {
		return domain.DiscountCode{}, notFound("discount %s not found", codeID)
	}
	discount.UsedCount++
	discount.UpdatedAt = now.UTC()
	r.reg.discounts[discount.ID] = discount
	return cloneDiscount(discount), nil
}

func cloneDiscount(discount domain.DiscountCode) domain.DiscountCode {
	dup := discount
	if discount.ProductScope != nil {
		dup.ProductScope = append([]string(nil), discount.ProductScope...)
	}
	if discount.CollectionScope != nil {
		dup.CollectionScope = append([]string(nil), discount.CollectionScope...)
	}
	return dup
}

type taxRateRepository struct{ reg *Registry }

func (r *taxRateRepository) ListActiveByCountry(_ context.Context, country string) ([]domain.TaxRate, error) {
	r.reg.mu.Lock()
	defer r.reg.mu.Unlock()
	var rates []domain.TaxRate
	for _, rate := range r.reg.taxRates {
		if rate.Active && strings.EqualFold(rate.Country, strings.TrimSpace(country)) {
			rates = append(rates, rate)
		}
	}
	return rates, nil
}

type shippingZoneRepository struct{ reg *Registry }

func (r *shippingZoneRepository) ListActive(_ context.Context) ([]domain.ShippingZone, error) {
	r.reg.mu.Lock()
	defer r.reg.mu.Unlock()
	var zones []domain.ShippingZone
	for _, zone := range r.reg.zones {
		if !zone.Active {
			continue
		}
		dup := zone
		dup.Countries = append([]string(nil), zone.Countries...)
		dup.Regions = append([]string(nil), zone.Regions...)
		dup.Rates = append([]domain.ShippingRate(nil), zone.Rates...)
		zones = append(zones, dup)
	}
	return zones, nil
}
