package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/ordella/api/internal/domain"
	"github.com/ordella/api/internal/repositories"
)

func newTestInventoryService(t *testing.T, repo *stubInventoryRepo) InventoryService {
	t.Helper()
	if repo == nil {
		repo = &stubInventoryRepo{}
	}
	svc, err := NewInventoryService(InventoryServiceDeps{
		Inventory: repo,
		Clock:     fixedClock(testNow),
	})
	if err != nil {
		t.Fatalf("new inventory service: %v", err)
	}
	return svc
}

func TestInventoryGetStock(t *testing.T) {
	repo := &stubInventoryRepo{
		findFn: func(ctx context.Context, sku string) (domain.StockLevel, error) {
			return domain.StockLevel{SKU: sku, OnHand: 10, Reserved: 3, Available: 7}, nil
		},
	}
	svc := newTestInventoryService(t, repo)

	level, err := svc.GetStock(context.Background(), " SKU-1 ")
	if err != nil {
		t.Fatalf("get stock: %v", err)
	}
	if level.SKU != "SKU-1" || level.Available != 7 {
		t.Fatalf("unexpected level %+v", level)
	}
}

func TestInventoryGetStockNotFound(t *testing.T) {
	svc := newTestInventoryService(t, nil)

	if _, err := svc.GetStock(context.Background(), "SKU-MISSING"); !errors.Is(err, ErrInventoryNotFound) {
		t.Fatalf("expected ErrInventoryNotFound, got %v", err)
	}
}

func TestInventoryReserveAggregatesAndSortsLines(t *testing.T) {
	var request repositories.StockReserveRequest
	repo := &stubInventoryRepo{
		reserveFn: func(ctx context.Context, req repositories.StockReserveRequest) (map[string]domain.StockLevel, error) {
			request = req
			return map[string]domain.StockLevel{"SKU-1": {SKU: "SKU-1", OnHand: 5, Reserved: 5}}, nil
		},
	}
	svc := newTestInventoryService(t, repo)

	levels, err := svc.Reserve(context.Background(), ReserveStockCommand{
		Lines: []StockLine{
			{SKU: "SKU-2", Quantity: 1},
			{SKU: "SKU-1", Quantity: 2},
			{SKU: "SKU-1", Quantity: 3},
		},
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if len(request.Lines) != 2 {
		t.Fatalf("expected aggregated lines, got %v", request.Lines)
	}
	if request.Lines[0].SKU != "SKU-1" || request.Lines[0].Quantity != 5 {
		t.Fatalf("expected SKU-1 quantity 5 first, got %+v", request.Lines[0])
	}
	if request.Lines[1].SKU != "SKU-2" || request.Lines[1].Quantity != 1 {
		t.Fatalf("expected SKU-2 quantity 1 second, got %+v", request.Lines[1])
	}
	if !request.Now.Equal(testNow) {
		t.Fatalf("expected clock timestamp on request, got %v", request.Now)
	}
	if levels["SKU-1"].Reserved != 5 {
		t.Fatalf("expected resulting levels passed through, got %+v", levels)
	}
}

func TestInventoryReserveRejectsInvalidLines(t *testing.T) {
	svc := newTestInventoryService(t, nil)

	cases := []struct {
		name  string
		lines []StockLine
	}{
		{name: "empty", lines: nil},
		{name: "blank sku", lines: []StockLine{{SKU: "  ", Quantity: 1}}},
		{name: "zero quantity", lines: []StockLine{{SKU: "SKU-1", Quantity: 0}}},
		{name: "negative quantity", lines: []StockLine{{SKU: "SKU-1", Quantity: -2}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Reserve(context.Background(), ReserveStockCommand{Lines: tc.lines}); !errors.Is(err, ErrInventoryInvalidInput) {
				t.Fatalf("expected ErrInventoryInvalidInput, got %v", err)
			}
		})
	}
}

func TestInventoryReserveInsufficientStock(t *testing.T) {
	repo := &stubInventoryRepo{
		reserveFn: func(ctx context.Context, req repositories.StockReserveRequest) (map[string]domain.StockLevel, error) {
			return nil, repositories.NewStockError(repositories.StockErrorInsufficient, "SKU-1: 2 available, 5 requested", nil)
		},
	}
	svc := newTestInventoryService(t, repo)

	_, err := svc.Reserve(context.Background(), ReserveStockCommand{Lines: []StockLine{{SKU: "SKU-1", Quantity: 5}}})
	if !errors.Is(err, ErrInventoryInsufficientStock) {
		t.Fatalf("expected ErrInventoryInsufficientStock, got %v", err)
	}
}

func TestInventoryReleaseMapsUnknownSKU(t *testing.T) {
	repo := &stubInventoryRepo{
		releaseFn: func(ctx context.Context, req repositories.StockReleaseRequest) (map[string]domain.StockLevel, error) {
			return nil, repositories.NewStockError(repositories.StockErrorNotFound, "SKU-GONE: no ledger entry", nil)
		},
	}
	svc := newTestInventoryService(t, repo)

	_, err := svc.Release(context.Background(), ReleaseStockCommand{Lines: []StockLine{{SKU: "SKU-GONE", Quantity: 1}}})
	if !errors.Is(err, ErrInventoryNotFound) {
		t.Fatalf("expected ErrInventoryNotFound, got %v", err)
	}
}

func TestInventoryRepositoryOutage(t *testing.T) {
	repo := &stubInventoryRepo{
		reserveFn: func(ctx context.Context, req repositories.StockReserveRequest) (map[string]domain.StockLevel, error) {
			return nil, errStubUnavailable
		},
	}
	svc := newTestInventoryService(t, repo)

	_, err := svc.Reserve(context.Background(), ReserveStockCommand{Lines: []StockLine{{SKU: "SKU-1", Quantity: 1}}})
	if !errors.Is(err, ErrInventoryUnavailable) {
		t.Fatalf("expected ErrInventoryUnavailable, got %v", err)
	}
}
