package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/ordella/api/internal/domain"
)

func int64Ptr(v int64) *int64 { return &v }

func timePtr(v time.Time) *time.Time { return &v }

func newTestDiscountService(t *testing.T, discounts *stubDiscountRepo, orders *stubOrderRepo) DiscountService {
	t.Helper()
	if orders == nil {
		orders = &stubOrderRepo{}
	}
	svc, err := NewDiscountService(DiscountServiceDeps{
		Discounts: discounts,
		Orders:    orders,
		Clock:     fixedClock(testNow),
	})
	if err != nil {
		t.Fatalf("new discount service: %v", err)
	}
	return svc
}

func activePercentageCode() domain.DiscountCode {
	return domain.DiscountCode{
		ID:     "disc_1",
		Code:   "SPRING20",
		Kind:   domain.DiscountKindPercentage,
		Value:  20,
		Active: true,
	}
}

func TestDiscountEvaluateUnknownCodeIsUniform(t *testing.T) {
	svc := newTestDiscountService(t, &stubDiscountRepo{}, nil)

	_, err := svc.Evaluate(context.Background(), EvaluateDiscountCommand{Code: "NOPE", Subtotal: 1000})
	if !errors.Is(err, ErrDiscountInvalid) {
		t.Fatalf("expected ErrDiscountInvalid, got %v", err)
	}
}

func TestDiscountEvaluateInactiveBeforeWindowChecks(t *testing.T) {
	code := activePercentageCode()
	code.Active = false
	code.ValidTo = timePtr(testNow.Add(-time.Hour))
	svc := newTestDiscountService(t, &stubDiscountRepo{
		findByCodeFn: func(ctx context.Context, c string) (domain.DiscountCode, error) { return code, nil },
	}, nil)

	_, err := svc.Evaluate(context.Background(), EvaluateDiscountCommand{Code: "SPRING20", Subtotal: 1000})
	if !errors.Is(err, ErrDiscountInactive) {
		t.Fatalf("expected ErrDiscountInactive to win over expiry, got %v", err)
	}
}

func TestDiscountEvaluateValidityWindow(t *testing.T) {
	cases := []struct {
		name string
		mod  func(*domain.DiscountCode)
		want error
	}{
		{
			name: "not yet valid",
			mod: func(c *domain.DiscountCode) {
				c.ValidFrom = timePtr(testNow.Add(time.Hour))
			},
			want: ErrDiscountNotYetValid,
		},
		{
			name: "expired",
			mod: func(c *domain.DiscountCode) {
				c.ValidTo = timePtr(testNow.Add(-time.Minute))
			},
			want: ErrDiscountExpired,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code := activePercentageCode()
			tc.mod(&code)
			svc := newTestDiscountService(t, &stubDiscountRepo{
				findByCodeFn: func(ctx context.Context, c string) (domain.DiscountCode, error) { return code, nil },
			}, nil)

			_, err := svc.Evaluate(context.Background(), EvaluateDiscountCommand{Code: code.Code, Subtotal: 1000})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestDiscountEvaluateExhausted(t *testing.T) {
	code := activePercentageCode()
	code.MaxUses = int64Ptr(1)
	code.UsedCount = 1
	svc := newTestDiscountService(t, &stubDiscountRepo{
		findByCodeFn: func(ctx context.Context, c string) (domain.DiscountCode, error) { return code, nil },
	}, nil)

	_, err := svc.Evaluate(context.Background(), EvaluateDiscountCommand{Code: "SPRING20", Subtotal: 1000})
	if !errors.Is(err, ErrDiscountExhausted) {
		t.Fatalf("expected ErrDiscountExhausted, got %v", err)
	}
}

func TestDiscountEvaluatePerCustomerLimit(t *testing.T) {
	code := activePercentageCode()
	code.MaxUsesPerCustomer = int64Ptr(2)
	orders := &stubOrderRepo{
		countFn: func(ctx context.Context, discountID, customerRef string) (int64, error) {
			if discountID != "disc_1" || customerRef != "cust_7" {
				t.Fatalf("unexpected count query %s/%s", discountID, customerRef)
			}
			return 2, nil
		},
	}
	svc := newTestDiscountService(t, &stubDiscountRepo{
		findByCodeFn: func(ctx context.Context, c string) (domain.DiscountCode, error) { return code, nil },
	}, orders)

	_, err := svc.Evaluate(context.Background(), EvaluateDiscountCommand{Code: "SPRING20", Subtotal: 1000, CustomerRef: "cust_7"})
	if !errors.Is(err, ErrDiscountPerUserLimitReached) {
		t.Fatalf("expected ErrDiscountPerUserLimitReached, got %v", err)
	}
}

func TestDiscountEvaluatePerCustomerLimitSkippedWithoutCustomer(t *testing.T) {
	code := activePercentageCode()
	code.MaxUsesPerCustomer = int64Ptr(1)
	orders := &stubOrderRepo{
		countFn: func(ctx context.Context, discountID, customerRef string) (int64, error) {
			t.Fatalf("count should not be called for anonymous evaluation")
			return 0, nil
		},
	}
	svc := newTestDiscountService(t, &stubDiscountRepo{
		findByCodeFn: func(ctx context.Context, c string) (domain.DiscountCode, error) { return code, nil },
	}, orders)

	result, err := svc.Evaluate(context.Background(), EvaluateDiscountCommand{Code: "SPRING20", Subtotal: 1000})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.Amount != 200 {
		t.Fatalf("expected amount 200, got %d", result.Amount)
	}
}

func TestDiscountEvaluateMinimumNotMet(t *testing.T) {
	code := activePercentageCode()
	code.MinPurchase = int64Ptr(5000)
	svc := newTestDiscountService(t, &stubDiscountRepo{
		findByCodeFn: func(ctx context.Context, c string) (domain.DiscountCode, error) { return code, nil },
	}, nil)

	_, err := svc.Evaluate(context.Background(), EvaluateDiscountCommand{Code: "SPRING20", Subtotal: 4999})
	if !errors.Is(err, ErrDiscountMinimumNotMet) {
		t.Fatalf("expected ErrDiscountMinimumNotMet, got %v", err)
	}
}

func TestDiscountEvaluateScopeChecks(t *testing.T) {
	code := activePercentageCode()
	code.ProductScope = []string{"prod_1"}
	code.CollectionScope = []string{"col_sale"}
	svc := newTestDiscountService(t, &stubDiscountRepo{
		findByCodeFn: func(ctx context.Context, c string) (domain.DiscountCode, error) { return code, nil },
	}, nil)

	_, err := svc.Evaluate(context.Background(), EvaluateDiscountCommand{
		Code:           "SPRING20",
		Subtotal:       1000,
		ProductRefs:    []string{"prod_9"},
		CollectionRefs: []string{"col_sale"},
	})
	if !errors.Is(err, ErrDiscountNotApplicable) {
		t.Fatalf("expected product scope miss, got %v", err)
	}

	result, err := svc.Evaluate(context.Background(), EvaluateDiscountCommand{
		Code:           "SPRING20",
		Subtotal:       1000,
		ProductRefs:    []string{"prod_1"},
		CollectionRefs: []string{"col_sale"},
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.Amount != 200 {
		t.Fatalf("expected amount 200, got %d", result.Amount)
	}
}

func TestDiscountEvaluatePercentageRoundsHalfUp(t *testing.T) {
	code := activePercentageCode()
	code.Value = 15
	svc := newTestDiscountService(t, &stubDiscountRepo{
		findByCodeFn: func(ctx context.Context, c string) (domain.DiscountCode, error) { return code, nil },
	}, nil)

	result, err := svc.Evaluate(context.Background(), EvaluateDiscountCommand{Code: "SPRING20", Subtotal: 9999})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	// 9999 * 15% = 1499.85, rounds up to 1500.
	if result.Amount != 1500 {
		t.Fatalf("expected amount 1500, got %d", result.Amount)
	}
}

func TestDiscountEvaluateFixedAmountClampsToSubtotal(t *testing.T) {
	code := activePercentageCode()
	code.Kind = domain.DiscountKindFixedAmount
	code.Value = 5000
	svc := newTestDiscountService(t, &stubDiscountRepo{
		findByCodeFn: func(ctx context.Context, c string) (domain.DiscountCode, error) { return code, nil },
	}, nil)

	result, err := svc.Evaluate(context.Background(), EvaluateDiscountCommand{Code: "SPRING20", Subtotal: 3000})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.Amount != 3000 {
		t.Fatalf("expected clamp to 3000, got %d", result.Amount)
	}
}

func TestDiscountEvaluateFreeShipping(t *testing.T) {
	code := activePercentageCode()
	code.Kind = domain.DiscountKindFreeShipping
	code.Value = 0
	svc := newTestDiscountService(t, &stubDiscountRepo{
		findByCodeFn: func(ctx context.Context, c string) (domain.DiscountCode, error) { return code, nil },
	}, nil)

	result, err := svc.Evaluate(context.Background(), EvaluateDiscountCommand{Code: "SPRING20", Subtotal: 3000})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.Amount != 0 {
		t.Fatalf("free shipping must not reduce the subtotal, got %d", result.Amount)
	}
	if !result.FreeShipping {
		t.Fatalf("expected free shipping flag")
	}
}

func TestDiscountEvaluateNormalisesCode(t *testing.T) {
	var requested string
	svc := newTestDiscountService(t, &stubDiscountRepo{
		findByCodeFn: func(ctx context.Context, c string) (domain.DiscountCode, error) {
			requested = c
			return activePercentageCode(), nil
		},
	}, nil)

	if _, err := svc.Evaluate(context.Background(), EvaluateDiscountCommand{Code: "  spring20 ", Subtotal: 1000}); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if requested != "SPRING20" {
		t.Fatalf("expected upper-cased lookup, got %q", requested)
	}
}

func TestDiscountIncrementUsage(t *testing.T) {
	svc := newTestDiscountService(t, &stubDiscountRepo{
		incrementFn: func(ctx context.Context, codeID string, now time.Time) (domain.DiscountCode, error) {
			code := activePercentageCode()
			code.UsedCount = 4
			return code, nil
		},
	}, nil)

	code, err := svc.IncrementUsage(context.Background(), "disc_1")
	if err != nil {
		t.Fatalf("increment usage: %v", err)
	}
	if code.UsedCount != 4 {
		t.Fatalf("expected used count 4, got %d", code.UsedCount)
	}
}
