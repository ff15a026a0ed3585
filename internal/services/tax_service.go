package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ordella/api/internal/repositories"
)

var (
	// ErrTaxInvalidInput indicates a malformed tax query.
	ErrTaxInvalidInput = errors.New("tax: invalid input")
	// ErrTaxUnavailable indicates the rate table could not be read.
	ErrTaxUnavailable = errors.New("tax: temporarily unavailable")
)

// TaxServiceDeps wires the tax calculator.
type TaxServiceDeps struct {
	Rates  repositories.TaxRateRepository
	Clock  func() time.Time
	Logger Logger
}

type taxService struct {
	rates  repositories.TaxRateRepository
	logger Logger
}

// NewTaxService constructs the TaxService.
func NewTaxService(deps TaxServiceDeps) (TaxService, error) {
	if deps.Rates == nil {
		return nil, errors.New("tax service requires a tax rate repository")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &taxService{rates: deps.Rates, logger: logger}, nil
}

// Calculate resolves the destination's rate and applies it to the subtotal. A
// region-specific rate wins over the country-level row; with neither present the
// result is applicable=false and a zero amount.
func (s *taxService) Calculate(ctx context.Context, query TaxQuery) (TaxResult, error) {
	country := strings.ToUpper(strings.TrimSpace(query.Country))
	region := strings.TrimSpace(query.Region)
	if country == "" {
		return TaxResult{}, fmt.Errorf("%w: country is required", ErrTaxInvalidInput)
	}
	if query.Subtotal < 0 {
		return TaxResult{}, fmt.Errorf("%w: subtotal must not be negative", ErrTaxInvalidInput)
	}

	rates, err := s.rates.ListActiveByCountry(ctx, country)
	if err != nil {
		return TaxResult{}, fmt.Errorf("%w: %v", ErrTaxUnavailable, err)
	}

	var countryLevel *TaxResult
	for _, rate := range rates {
		if !rate.Active {
			continue
		}
		if region != "" && strings.EqualFold(rate.Region, region) {
			return TaxResult{
				Applicable: true,
				Amount:     roundHalfUpRatio(query.Subtotal, rate.Ratio),
				Ratio:      rate.Ratio,
				Name:       rate.Name,
			}, nil
		}
		if rate.Region == "" && countryLevel == nil {
			countryLevel = &TaxResult{
				Applicable: true,
				Amount:     roundHalfUpRatio(query.Subtotal, rate.Ratio),
				Ratio:      rate.Ratio,
				Name:       rate.Name,
			}
		}
	}

	if countryLevel != nil {
		return *countryLevel, nil
	}
	return TaxResult{}, nil
}

// roundHalfUpRatio computes round(subtotal * ratio) on integer cents. The
// ratio is snapped to basis points first so the half-up rounding runs on
// integers, keeping ties exact where binary floats would drift.
func roundHalfUpRatio(subtotal int64, ratio float64) int64 {
	if subtotal <= 0 || ratio <= 0 {
		return 0
	}
	bp := int64(math.Round(ratio * 10000))
	if bp <= 0 {
		return 0
	}
	return (subtotal*bp + 5000) / 10000
}
