package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ordella/api/internal/repositories"
)

var (
	// ErrShippingInvalidInput indicates a malformed shipping query.
	ErrShippingInvalidInput = errors.New("shipping: invalid input")
	// ErrShippingUnavailable indicates the zone table could not be read.
	ErrShippingUnavailable = errors.New("shipping: temporarily unavailable")
)

// ShippingServiceDeps wires the rate selector.
type ShippingServiceDeps struct {
	Zones  repositories.ShippingZoneRepository
	Logger Logger
}

type shippingService struct {
	zones  repositories.ShippingZoneRepository
	logger Logger
}

// NewShippingService constructs the ShippingService.
func NewShippingService(deps ShippingServiceDeps) (ShippingService, error) {
	if deps.Zones == nil {
		return nil, errors.New("shipping service requires a shipping zone repository")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &shippingService{zones: deps.Zones, logger: logger}, nil
}

// AvailableRates pools every active, value-eligible rate from every matching zone
// and returns them ascending by price. An empty result means no shipping is
// offered to the destination; that is not an error.
func (s *shippingService) AvailableRates(ctx context.Context, query ShippingQuery) ([]ShippingOption, error) {
	options, err := s.candidates(ctx, query.Country, query.Region, &query.OrderValue)
	if err != nil {
		return nil, err
	}
	return options, nil
}

// CheapestEstimate returns the lowest-priced candidate ignoring order-value
// bounds, for quick display before the cart total is known.
func (s *shippingService) CheapestEstimate(ctx context.Context, country, region string) (ShippingOption, bool, error) {
	options, err := s.candidates(ctx, country, region, nil)
	if err != nil {
		return ShippingOption{}, false, err
	}
	if len(options) == 0 {
		return ShippingOption{}, false, nil
	}
	return options[0], true, nil
}

func (s *shippingService) candidates(ctx context.Context, country, region string, orderValue *int64) ([]ShippingOption, error) {
	country = strings.ToUpper(strings.TrimSpace(country))
	region = strings.TrimSpace(region)
	if country == "" {
		return nil, fmt.Errorf("%w: country is required", ErrShippingInvalidInput)
	}
	if orderValue != nil && *orderValue < 0 {
		return nil, fmt.Errorf("%w: order value must not be negative", ErrShippingInvalidInput)
	}

	zones, err := s.zones.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShippingUnavailable, err)
	}

	var options []ShippingOption
	for _, zone := range zones {
		if !zone.Active || !zone.Matches(country, region) {
			continue
		}
		for _, rate := range zone.Rates {
			if !rate.Active {
				continue
			}
			if orderValue != nil {
				if rate.MinOrderValue != nil && *orderValue < *rate.MinOrderValue {
					continue
				}
				if rate.MaxOrderValue != nil && *orderValue > *rate.MaxOrderValue {
					continue
				}
			}
			options = append(options, ShippingOption{
				RateID:        rate.ID,
				Name:          rate.Name,
				Price:         rate.Price,
				EstimatedDays: rate.EstimatedDays,
				ZoneName:      zone.Name,
			})
		}
	}

	sort.SliceStable(options, func(i, j int) bool {
		return options[i].Price < options[j].Price
	})
	return options, nil
}
