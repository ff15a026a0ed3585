package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	domain "github.com/ordella/api/internal/domain"
	"github.com/ordella/api/internal/repositories"
)

var (
	// ErrDiscountInvalidInput indicates a malformed evaluation command.
	ErrDiscountInvalidInput = errors.New("discount: invalid input")
	// ErrDiscountInvalid is returned for unknown codes. The message is deliberately
	// uniform so callers cannot probe which codes exist.
	ErrDiscountInvalid = errors.New("discount: code is not valid")
	// ErrDiscountInactive is returned when the code is disabled.
	ErrDiscountInactive = errors.New("discount: code is not active")
	// ErrDiscountNotYetValid is returned before the validity window opens.
	ErrDiscountNotYetValid = errors.New("discount: code is not yet valid")
	// ErrDiscountExpired is returned after the validity window closes.
	ErrDiscountExpired = errors.New("discount: code has expired")
	// ErrDiscountExhausted is returned when the global usage limit is reached.
	ErrDiscountExhausted = errors.New("discount: usage limit reached")
	// ErrDiscountPerUserLimitReached is returned when the customer exhausted their allowance.
	ErrDiscountPerUserLimitReached = errors.New("discount: per-customer limit reached")
	// ErrDiscountMinimumNotMet is returned when the subtotal is below the code's minimum.
	ErrDiscountMinimumNotMet = errors.New("discount: minimum purchase not met")
	// ErrDiscountNotApplicable is returned when no cart product falls in the code's scope.
	ErrDiscountNotApplicable = errors.New("discount: not applicable to cart contents")
	// ErrDiscountUnavailable indicates the backing store failed.
	ErrDiscountUnavailable = errors.New("discount: temporarily unavailable")
)

// DiscountServiceDeps wires the discount evaluator.
type DiscountServiceDeps struct {
	Discounts repositories.DiscountRepository
	Orders    repositories.OrderRepository
	Clock     func() time.Time
	Logger    Logger
}

type discountService struct {
	discounts repositories.DiscountRepository
	orders    repositories.OrderRepository
	clock     func() time.Time
	logger    Logger
	printer   *message.Printer
}

// NewDiscountService constructs the DiscountService.
func NewDiscountService(deps DiscountServiceDeps) (DiscountService, error) {
	if deps.Discounts == nil {
		return nil, errors.New("discount service requires a discount repository")
	}
	if deps.Orders == nil {
		return nil, errors.New("discount service requires an order repository")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &discountService{
		discounts: deps.Discounts,
		orders:    deps.Orders,
		clock:     func() time.Time { return clock().UTC() },
		logger:    logger,
		printer:   message.NewPrinter(language.English),
	}, nil
}

// Evaluate runs the fixed validation chain; the first failing check wins.
func (s *discountService) Evaluate(ctx context.Context, cmd EvaluateDiscountCommand) (DiscountResult, error) {
	code := strings.ToUpper(strings.TrimSpace(cmd.Code))
	if code == "" {
		return DiscountResult{}, fmt.Errorf("%w: code is required", ErrDiscountInvalidInput)
	}
	if cmd.Subtotal < 0 {
		return DiscountResult{}, fmt.Errorf("%w: subtotal must not be negative", ErrDiscountInvalidInput)
	}

	discount, err := s.discounts.FindByCode(ctx, code)
	if err != nil {
		return DiscountResult{}, s.translateLookupError(err)
	}

	if !discount.Active {
		return DiscountResult{}, ErrDiscountInactive
	}

	now := s.clock()
	if discount.ValidFrom != nil && now.Before(*discount.ValidFrom) {
		return DiscountResult{}, ErrDiscountNotYetValid
	}
	if discount.ValidTo != nil && now.After(*discount.ValidTo) {
		return DiscountResult{}, ErrDiscountExpired
	}

	if discount.MaxUses != nil && discount.UsedCount >= *discount.MaxUses {
		return DiscountResult{}, ErrDiscountExhausted
	}

	if discount.MaxUsesPerCustomer != nil && strings.TrimSpace(cmd.CustomerRef) != "" {
		redemptions, err := s.orders.CountFinalizedWithDiscount(ctx, discount.ID, strings.TrimSpace(cmd.CustomerRef))
		if err != nil {
			return DiscountResult{}, fmt.Errorf("%w: %v", ErrDiscountUnavailable, err)
		}
		if redemptions >= *discount.MaxUsesPerCustomer {
			return DiscountResult{}, ErrDiscountPerUserLimitReached
		}
	}

	if discount.MinPurchase != nil && cmd.Subtotal < *discount.MinPurchase {
		return DiscountResult{}, fmt.Errorf("%w: minimum purchase of %s required",
			ErrDiscountMinimumNotMet, s.formatAmount(*discount.MinPurchase))
	}

	if len(discount.ProductScope) > 0 && !anyInScope(cmd.ProductRefs, discount.ProductScope) {
		return DiscountResult{}, ErrDiscountNotApplicable
	}
	if len(discount.CollectionScope) > 0 && !anyInScope(cmd.CollectionRefs, discount.CollectionScope) {
		return DiscountResult{}, ErrDiscountNotApplicable
	}

	result := DiscountResult{Code: discount}
	switch discount.Kind {
	case domain.DiscountKindPercentage:
		result.Amount = clampToSubtotal(roundHalfUpPercent(cmd.Subtotal, discount.Value), cmd.Subtotal)
	case domain.DiscountKindFixedAmount:
		result.Amount = clampToSubtotal(discount.Value, cmd.Subtotal)
	case domain.DiscountKindFreeShipping:
		// Amount stays zero; the pricing engine waives the shipping component.
		result.FreeShipping = true
	default:
		return DiscountResult{}, fmt.Errorf("%w: unsupported kind %q", ErrDiscountInvalidInput, discount.Kind)
	}

	s.logger(ctx, "discount.evaluated", map[string]any{
		"code":   discount.Code,
		"kind":   string(discount.Kind),
		"amount": result.Amount,
	})
	return result, nil
}

// IncrementUsage bumps the monotonic counter. Called once per order, only on the
// final PAID transition.
func (s *discountService) IncrementUsage(ctx context.Context, codeID string) (DiscountCode, error) {
	id := strings.TrimSpace(codeID)
	if id == "" {
		return DiscountCode{}, fmt.Errorf("%w: code id is required", ErrDiscountInvalidInput)
	}
	discount, err := s.discounts.IncrementUsage(ctx, id, s.clock())
	if err != nil {
		return DiscountCode{}, s.translateLookupError(err)
	}
	s.logger(ctx, "discount.usage.incremented", map[string]any{
		"codeId":    discount.ID,
		"usedCount": discount.UsedCount,
	})
	return discount, nil
}

func (s *discountService) translateLookupError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrDiscountInvalid
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrDiscountUnavailable, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrDiscountUnavailable, err)
}

func (s *discountService) formatAmount(cents int64) string {
	return s.printer.Sprintf("%.2f", float64(cents)/100)
}

// roundHalfUpPercent computes round(subtotal * percent / 100) on integer cents.
func roundHalfUpPercent(subtotal, percent int64) int64 {
	if subtotal <= 0 || percent <= 0 {
		return 0
	}
	return (subtotal*percent + 50) / 100
}

func clampToSubtotal(amount, subtotal int64) int64 {
	if amount < 0 {
		return 0
	}
	if amount > subtotal {
		return subtotal
	}
	return amount
}

func anyInScope(refs, scope []string) bool {
	if len(refs) == 0 {
		return false
	}
	scoped := make(map[string]struct{}, len(scope))
	for _, entry := range scope {
		scoped[strings.TrimSpace(entry)] = struct{}{}
	}
	for _, ref := range refs {
		if _, ok := scoped[strings.TrimSpace(ref)]; ok {
			return true
		}
	}
	return false
}
