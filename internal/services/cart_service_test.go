package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/ordella/api/internal/domain"
)

func newTestCartService(t *testing.T, carts *stubCartRepo, products *stubProductRepo, inventory *stubInventoryRepo) CartService {
	t.Helper()
	if carts == nil {
		carts = &stubCartRepo{}
	}
	if products == nil {
		products = &stubProductRepo{}
	}
	deps := CartServiceDeps{
		Carts:       carts,
		Products:    products,
		Clock:       fixedClock(testNow),
		IDGenerator: sequentialIDs(),
	}
	if inventory != nil {
		deps.Inventory = inventory
	}
	svc, err := NewCartService(deps)
	if err != nil {
		t.Fatalf("new cart service: %v", err)
	}
	return svc
}

func storedCart() domain.Cart {
	return domain.Cart{
		ID:       "cart_1",
		Currency: "USD",
		Lines: []domain.CartLine{
			{ID: "line_1", ProductRef: "prod_1", SKU: "SKU-1", Title: "Mug", Quantity: 1, UnitPrice: 1500},
		},
		CreatedAt:     testNow.Add(-time.Hour),
		LastMutatedAt: testNow.Add(-time.Hour),
	}
}

func TestCartCreateDefaultsCurrency(t *testing.T) {
	var inserted domain.Cart
	carts := &stubCartRepo{
		insertFn: func(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
			inserted = cart
			return cart, nil
		},
	}
	svc := newTestCartService(t, carts, nil, nil)

	cart, err := svc.CreateCart(context.Background(), CreateCartCommand{OwnerRef: " cust_1 "})
	if err != nil {
		t.Fatalf("create cart: %v", err)
	}
	if cart.Currency != "USD" {
		t.Fatalf("expected default currency USD, got %q", cart.Currency)
	}
	if !strings.HasPrefix(inserted.ID, "cart_") {
		t.Fatalf("expected cart_ prefixed id, got %q", inserted.ID)
	}
	if inserted.OwnerRef != "cust_1" {
		t.Fatalf("expected trimmed owner ref, got %q", inserted.OwnerRef)
	}
	if !inserted.CreatedAt.Equal(testNow) || !inserted.LastMutatedAt.Equal(testNow) {
		t.Fatalf("expected clock-stamped timestamps, got %v/%v", inserted.CreatedAt, inserted.LastMutatedAt)
	}
}

func TestCartCreateRejectsBadCurrency(t *testing.T) {
	svc := newTestCartService(t, nil, nil, nil)

	if _, err := svc.CreateCart(context.Background(), CreateCartCommand{Currency: "US"}); !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected ErrCartInvalidInput, got %v", err)
	}
}

func TestCartCreateSanitisesMetadata(t *testing.T) {
	svc := newTestCartService(t, nil, nil, nil)

	cart, err := svc.CreateCart(context.Background(), CreateCartCommand{
		Metadata: map[string]string{"note": "<script>alert(1)</script>gift wrap"},
	})
	if err != nil {
		t.Fatalf("create cart: %v", err)
	}
	if got := cart.Metadata["note"]; got != "gift wrap" {
		t.Fatalf("expected sanitised metadata, got %q", got)
	}
}

func TestCartAddItemSnapshotsProduct(t *testing.T) {
	carts := &stubCartRepo{
		findFn: func(ctx context.Context, cartID string) (domain.Cart, error) {
			return domain.Cart{ID: cartID, Currency: "USD"}, nil
		},
	}
	products := &stubProductRepo{
		findFn: func(ctx context.Context, productRef string) (domain.Product, error) {
			return domain.Product{ID: productRef, Title: "Mug", SKU: "SKU-1", Price: 1500, Currency: "usd", Active: true}, nil
		},
	}
	svc := newTestCartService(t, carts, products, nil)

	cart, err := svc.AddItem(context.Background(), AddCartItemCommand{CartID: "cart_1", ProductRef: "prod_1", Quantity: 2})
	if err != nil {
		t.Fatalf("add item: %v", err)
	}
	if len(cart.Lines) != 1 {
		t.Fatalf("expected one line, got %d", len(cart.Lines))
	}
	line := cart.Lines[0]
	if !strings.HasPrefix(line.ID, "line_") {
		t.Fatalf("expected line_ prefixed id, got %q", line.ID)
	}
	if line.SKU != "SKU-1" || line.Title != "Mug" || line.UnitPrice != 1500 || line.Quantity != 2 {
		t.Fatalf("expected catalog snapshot on line, got %+v", line)
	}
	if !cart.LastMutatedAt.Equal(testNow) {
		t.Fatalf("expected mutation timestamp updated")
	}
}

func TestCartAddItemMergesSameProductAndVariant(t *testing.T) {
	existing := storedCart()
	existing.Lines[0].VariantRef = "var_red"
	carts := &stubCartRepo{
		findFn: func(ctx context.Context, cartID string) (domain.Cart, error) { return existing, nil },
	}
	products := &stubProductRepo{
		findFn: func(ctx context.Context, productRef string) (domain.Product, error) {
			return domain.Product{ID: productRef, SKU: "SKU-1", Title: "Mug", Price: 1500, Currency: "USD", Active: true}, nil
		},
	}
	svc := newTestCartService(t, carts, products, nil)

	cart, err := svc.AddItem(context.Background(), AddCartItemCommand{
		CartID: "cart_1", ProductRef: "PROD_1", VariantRef: "VAR_RED", Quantity: 3,
	})
	if err != nil {
		t.Fatalf("add item: %v", err)
	}
	if len(cart.Lines) != 1 {
		t.Fatalf("expected merged line, got %d lines", len(cart.Lines))
	}
	if cart.Lines[0].Quantity != 4 {
		t.Fatalf("expected quantity 4 after merge, got %d", cart.Lines[0].Quantity)
	}
}

func TestCartAddItemDifferentVariantGetsNewLine(t *testing.T) {
	existing := storedCart()
	existing.Lines[0].VariantRef = "var_red"
	carts := &stubCartRepo{
		findFn: func(ctx context.Context, cartID string) (domain.Cart, error) { return existing, nil },
	}
	products := &stubProductRepo{
		findFn: func(ctx context.Context, productRef string) (domain.Product, error) {
			return domain.Product{ID: productRef, SKU: "SKU-1", Title: "Mug", Price: 1500, Currency: "USD", Active: true}, nil
		},
	}
	svc := newTestCartService(t, carts, products, nil)

	cart, err := svc.AddItem(context.Background(), AddCartItemCommand{
		CartID: "cart_1", ProductRef: "prod_1", VariantRef: "var_blue", Quantity: 1,
	})
	if err != nil {
		t.Fatalf("add item: %v", err)
	}
	if len(cart.Lines) != 2 {
		t.Fatalf("expected a second line, got %d", len(cart.Lines))
	}
}

func TestCartAddItemUnknownOrInactiveProduct(t *testing.T) {
	carts := &stubCartRepo{
		findFn: func(ctx context.Context, cartID string) (domain.Cart, error) {
			return domain.Cart{ID: cartID, Currency: "USD"}, nil
		},
	}

	svc := newTestCartService(t, carts, &stubProductRepo{}, nil)
	if _, err := svc.AddItem(context.Background(), AddCartItemCommand{CartID: "cart_1", ProductRef: "prod_gone", Quantity: 1}); !errors.Is(err, ErrCartProductUnknown) {
		t.Fatalf("expected ErrCartProductUnknown for missing product, got %v", err)
	}

	inactive := &stubProductRepo{
		findFn: func(ctx context.Context, productRef string) (domain.Product, error) {
			return domain.Product{ID: productRef, Currency: "USD", Active: false}, nil
		},
	}
	svc = newTestCartService(t, carts, inactive, nil)
	if _, err := svc.AddItem(context.Background(), AddCartItemCommand{CartID: "cart_1", ProductRef: "prod_1", Quantity: 1}); !errors.Is(err, ErrCartProductUnknown) {
		t.Fatalf("expected ErrCartProductUnknown for inactive product, got %v", err)
	}
}

func TestCartAddItemCurrencyMismatch(t *testing.T) {
	carts := &stubCartRepo{
		findFn: func(ctx context.Context, cartID string) (domain.Cart, error) {
			return domain.Cart{ID: cartID, Currency: "USD"}, nil
		},
	}
	products := &stubProductRepo{
		findFn: func(ctx context.Context, productRef string) (domain.Product, error) {
			return domain.Product{ID: productRef, SKU: "SKU-1", Price: 1500, Currency: "EUR", Active: true}, nil
		},
	}
	svc := newTestCartService(t, carts, products, nil)

	if _, err := svc.AddItem(context.Background(), AddCartItemCommand{CartID: "cart_1", ProductRef: "prod_1", Quantity: 1}); !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected ErrCartInvalidInput, got %v", err)
	}
}

func TestCartAddItemQuantityCap(t *testing.T) {
	svc := newTestCartService(t, nil, nil, nil)

	if _, err := svc.AddItem(context.Background(), AddCartItemCommand{CartID: "cart_1", ProductRef: "prod_1", Quantity: 1000}); !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected ErrCartInvalidInput above cap, got %v", err)
	}
}

func TestCartAddItemRejectsInsufficientStock(t *testing.T) {
	carts := &stubCartRepo{
		findFn: func(ctx context.Context, cartID string) (domain.Cart, error) {
			return domain.Cart{ID: cartID, Currency: "USD"}, nil
		},
		saveFn: func(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
			t.Fatalf("cart must not be saved when stock is insufficient")
			return domain.Cart{}, nil
		},
	}
	products := &stubProductRepo{
		findFn: func(ctx context.Context, productRef string) (domain.Product, error) {
			return domain.Product{ID: productRef, SKU: "SKU-1", Price: 1500, Currency: "USD", Active: true}, nil
		},
	}
	inventory := &stubInventoryRepo{
		findFn: func(ctx context.Context, sku string) (domain.StockLevel, error) {
			return domain.StockLevel{SKU: sku, OnHand: 3, Reserved: 2}, nil
		},
	}
	svc := newTestCartService(t, carts, products, inventory)

	_, err := svc.AddItem(context.Background(), AddCartItemCommand{CartID: "cart_1", ProductRef: "prod_1", Quantity: 5})
	if !errors.Is(err, ErrCartInsufficientStock) {
		t.Fatalf("expected ErrCartInsufficientStock for 5 wanted with 1 available, got %v", err)
	}
}

func TestCartAddItemWithinStockSucceeds(t *testing.T) {
	carts := &stubCartRepo{
		findFn: func(ctx context.Context, cartID string) (domain.Cart, error) {
			return domain.Cart{ID: cartID, Currency: "USD"}, nil
		},
	}
	products := &stubProductRepo{
		findFn: func(ctx context.Context, productRef string) (domain.Product, error) {
			return domain.Product{ID: productRef, SKU: "SKU-1", Price: 1500, Currency: "USD", Active: true}, nil
		},
	}
	inventory := &stubInventoryRepo{
		findFn: func(ctx context.Context, sku string) (domain.StockLevel, error) {
			return domain.StockLevel{SKU: sku, OnHand: 5, Reserved: 2}, nil
		},
	}
	svc := newTestCartService(t, carts, products, inventory)

	cart, err := svc.AddItem(context.Background(), AddCartItemCommand{CartID: "cart_1", ProductRef: "prod_1", Quantity: 3})
	if err != nil {
		t.Fatalf("expected add within available stock to succeed, got %v", err)
	}
	if len(cart.Lines) != 1 || cart.Lines[0].Quantity != 3 {
		t.Fatalf("unexpected cart lines: %+v", cart.Lines)
	}
}

func TestCartUpdateItemRejectsInsufficientStock(t *testing.T) {
	carts := &stubCartRepo{
		findFn: func(ctx context.Context, cartID string) (domain.Cart, error) { return storedCart(), nil },
	}
	inventory := &stubInventoryRepo{
		findFn: func(ctx context.Context, sku string) (domain.StockLevel, error) {
			return domain.StockLevel{SKU: sku, OnHand: 2, Reserved: 0}, nil
		},
	}
	svc := newTestCartService(t, carts, nil, inventory)

	stored := storedCart()
	_, err := svc.UpdateItem(context.Background(), UpdateCartItemCommand{
		CartID:   stored.ID,
		LineID:   stored.Lines[0].ID,
		Quantity: 10,
	})
	if !errors.Is(err, ErrCartInsufficientStock) {
		t.Fatalf("expected ErrCartInsufficientStock, got %v", err)
	}
}

func TestCartAddItemUntrackedSKUNotStockLimited(t *testing.T) {
	carts := &stubCartRepo{
		findFn: func(ctx context.Context, cartID string) (domain.Cart, error) {
			return domain.Cart{ID: cartID, Currency: "USD"}, nil
		},
	}
	products := &stubProductRepo{
		findFn: func(ctx context.Context, productRef string) (domain.Product, error) {
			return domain.Product{ID: productRef, SKU: "SKU-NEW", Price: 1500, Currency: "USD", Active: true}, nil
		},
	}
	inventory := &stubInventoryRepo{
		findFn: func(ctx context.Context, sku string) (domain.StockLevel, error) {
			return domain.StockLevel{}, repoError{notFound: true}
		},
	}
	svc := newTestCartService(t, carts, products, inventory)

	if _, err := svc.AddItem(context.Background(), AddCartItemCommand{CartID: "cart_1", ProductRef: "prod_1", Quantity: 50}); err != nil {
		t.Fatalf("expected untracked SKU to be accepted, got %v", err)
	}
}

func TestCartUpdateItemQuantity(t *testing.T) {
	carts := &stubCartRepo{
		findFn: func(ctx context.Context, cartID string) (domain.Cart, error) { return storedCart(), nil },
	}
	svc := newTestCartService(t, carts, nil, nil)

	cart, err := svc.UpdateItem(context.Background(), UpdateCartItemCommand{CartID: "cart_1", LineID: "line_1", Quantity: 7})
	if err != nil {
		t.Fatalf("update item: %v", err)
	}
	if cart.Lines[0].Quantity != 7 {
		t.Fatalf("expected quantity 7, got %d", cart.Lines[0].Quantity)
	}
}

func TestCartUpdateItemZeroRemovesLine(t *testing.T) {
	carts := &stubCartRepo{
		findFn: func(ctx context.Context, cartID string) (domain.Cart, error) { return storedCart(), nil },
	}
	svc := newTestCartService(t, carts, nil, nil)

	cart, err := svc.UpdateItem(context.Background(), UpdateCartItemCommand{CartID: "cart_1", LineID: "LINE_1", Quantity: 0})
	if err != nil {
		t.Fatalf("update item: %v", err)
	}
	if len(cart.Lines) != 0 {
		t.Fatalf("expected line removed, got %d lines", len(cart.Lines))
	}
}

func TestCartUpdateItemUnknownLine(t *testing.T) {
	carts := &stubCartRepo{
		findFn: func(ctx context.Context, cartID string) (domain.Cart, error) { return storedCart(), nil },
	}
	svc := newTestCartService(t, carts, nil, nil)

	if _, err := svc.UpdateItem(context.Background(), UpdateCartItemCommand{CartID: "cart_1", LineID: "line_missing", Quantity: 1}); !errors.Is(err, ErrCartNotFound) {
		t.Fatalf("expected ErrCartNotFound, got %v", err)
	}
}

func TestCartRemoveItemDelegatesToUpdate(t *testing.T) {
	carts := &stubCartRepo{
		findFn: func(ctx context.Context, cartID string) (domain.Cart, error) { return storedCart(), nil },
	}
	svc := newTestCartService(t, carts, nil, nil)

	cart, err := svc.RemoveItem(context.Background(), "cart_1", "line_1")
	if err != nil {
		t.Fatalf("remove item: %v", err)
	}
	if len(cart.Lines) != 0 {
		t.Fatalf("expected empty cart, got %d lines", len(cart.Lines))
	}
}

func TestCartClearKeepsCart(t *testing.T) {
	carts := &stubCartRepo{
		findFn: func(ctx context.Context, cartID string) (domain.Cart, error) { return storedCart(), nil },
	}
	svc := newTestCartService(t, carts, nil, nil)

	cart, err := svc.ClearCart(context.Background(), "cart_1")
	if err != nil {
		t.Fatalf("clear cart: %v", err)
	}
	if cart.ID != "cart_1" || len(cart.Lines) != 0 {
		t.Fatalf("expected emptied cart, got %+v", cart)
	}
}

func TestCartGetNotFound(t *testing.T) {
	svc := newTestCartService(t, &stubCartRepo{}, nil, nil)

	if _, err := svc.GetCart(context.Background(), "cart_missing"); !errors.Is(err, ErrCartNotFound) {
		t.Fatalf("expected ErrCartNotFound, got %v", err)
	}
}
