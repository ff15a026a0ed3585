package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/ordella/api/internal/domain"
	"github.com/ordella/api/internal/platform/textutil"
	"github.com/ordella/api/internal/repositories"
)

var (
	errCartRepositoryRequired = errors.New("cart service: cart repository is required")
	errCartProductsRequired   = errors.New("cart service: product repository is required")
	errCartClockRequired      = errors.New("cart service: clock is required")
)

const maxCartLineQuantity = 999

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartUnavailable indicates the cart service cannot fulfil the request due to backend issues.
var ErrCartUnavailable = errors.New("cart service: unavailable")

// ErrCartNotFound indicates the requested cart or line does not exist.
var ErrCartNotFound = errors.New("cart service: not found")

// ErrCartConflict indicates the cart could not be updated due to concurrent modifications.
var ErrCartConflict = errors.New("cart service: conflict")

// ErrCartProductUnknown indicates the referenced product does not exist or is inactive.
var ErrCartProductUnknown = errors.New("cart service: product unknown")

// ErrCartInsufficientStock indicates the wanted quantity exceeds the available stock.
var ErrCartInsufficientStock = errors.New("cart service: insufficient stock")

// CartServiceDeps wires the repositories and clock for cart operations.
type CartServiceDeps struct {
	Carts           repositories.CartRepository
	Products        repositories.ProductRepository
	Inventory       repositories.InventoryRepository
	Clock           func() time.Time
	DefaultCurrency string
	Logger          Logger
	IDGenerator     func() string
}

type cartService struct {
	carts     repositories.CartRepository
	products  repositories.ProductRepository
	inventory repositories.InventoryRepository
	newID     func() string
	now       func() time.Time
	currency  string
	logger    Logger
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errCartRepositoryRequired
	}
	if deps.Products == nil {
		return nil, errCartProductsRequired
	}
	if deps.Clock == nil {
		return nil, errCartClockRequired
	}

	defaultCurrency := strings.ToUpper(strings.TrimSpace(deps.DefaultCurrency))
	if defaultCurrency == "" {
		defaultCurrency = "USD"
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	return &cartService{
		carts:     deps.Carts,
		products:  deps.Products,
		inventory: deps.Inventory,
		newID:     idGen,
		now:       func() time.Time { return deps.Clock().UTC() },
		currency:  defaultCurrency,
		logger:    logger,
	}, nil
}

// CreateCart opens an empty cart, optionally bound to an owner.
func (s *cartService) CreateCart(ctx context.Context, cmd CreateCartCommand) (Cart, error) {
	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if currency == "" {
		currency = s.currency
	}
	if err := validateCurrencyCode(currency); err != nil {
		return Cart{}, err
	}

	now := s.now()
	cart := domain.Cart{
		ID:            "cart_" + s.newID(),
		OwnerRef:      strings.TrimSpace(cmd.OwnerRef),
		Currency:      currency,
		Lines:         []domain.CartLine{},
		Metadata:      textutil.SanitizeStringMap(cmd.Metadata),
		CreatedAt:     now,
		LastMutatedAt: now,
	}

	saved, err := s.carts.Insert(ctx, cart)
	if err != nil {
		return Cart{}, s.translateRepoError(err)
	}

	s.logger(ctx, "cart.created", map[string]any{
		"cartID":   saved.ID,
		"currency": saved.Currency,
	})
	return saved, nil
}

// GetCart loads a cart by identifier.
func (s *cartService) GetCart(ctx context.Context, cartID string) (Cart, error) {
	id := strings.TrimSpace(cartID)
	if id == "" {
		return Cart{}, fmt.Errorf("%w: cart id is required", ErrCartInvalidInput)
	}
	cart, err := s.carts.FindByID(ctx, id)
	if err != nil {
		return Cart{}, s.translateRepoError(err)
	}
	return cart, nil
}

// AddItem appends quantity of a product, merging with an existing line for the
// same product and variant. The price and title are snapshotted from the catalog
// at the moment of the call.
func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error) {
	cartID := strings.TrimSpace(cmd.CartID)
	if cartID == "" {
		return Cart{}, fmt.Errorf("%w: cart id is required", ErrCartInvalidInput)
	}
	productRef := strings.TrimSpace(cmd.ProductRef)
	if productRef == "" {
		return Cart{}, fmt.Errorf("%w: product ref is required", ErrCartInvalidInput)
	}
	if cmd.Quantity <= 0 {
		return Cart{}, fmt.Errorf("%w: quantity must be greater than zero", ErrCartInvalidInput)
	}
	if cmd.Quantity > maxCartLineQuantity {
		return Cart{}, fmt.Errorf("%w: quantity must be %d or fewer", ErrCartInvalidInput, maxCartLineQuantity)
	}

	cart, err := s.carts.FindByID(ctx, cartID)
	if err != nil {
		return Cart{}, s.translateRepoError(err)
	}

	product, err := s.products.FindByRef(ctx, productRef)
	if err != nil {
		if isRepoNotFound(err) {
			return Cart{}, fmt.Errorf("%w: %s", ErrCartProductUnknown, productRef)
		}
		return Cart{}, s.translateRepoError(err)
	}
	if !product.Active {
		return Cart{}, fmt.Errorf("%w: %s", ErrCartProductUnknown, productRef)
	}
	if !strings.EqualFold(product.Currency, cart.Currency) {
		return Cart{}, fmt.Errorf("%w: product currency %s does not match cart currency %s", ErrCartInvalidInput, product.Currency, cart.Currency)
	}

	variantRef := strings.TrimSpace(cmd.VariantRef)
	now := s.now()

	merged := false
	for i := range cart.Lines {
		line := &cart.Lines[i]
		if !strings.EqualFold(line.ProductRef, productRef) || !strings.EqualFold(line.VariantRef, variantRef) {
			continue
		}
		line.Quantity += cmd.Quantity
		if line.Quantity > maxCartLineQuantity {
			return Cart{}, fmt.Errorf("%w: quantity must be %d or fewer", ErrCartInvalidInput, maxCartLineQuantity)
		}
		merged = true
		break
	}
	if !merged {
		cart.Lines = append(cart.Lines, domain.CartLine{
			ID:         "line_" + s.newID(),
			ProductRef: productRef,
			VariantRef: variantRef,
			SKU:        product.SKU,
			Title:      product.Title,
			Quantity:   cmd.Quantity,
			UnitPrice:  product.Price,
		})
	}

	if err := s.ensureStock(ctx, cart, product.SKU); err != nil {
		return Cart{}, err
	}

	cart.LastMutatedAt = now
	saved, err := s.carts.Save(ctx, cart)
	if err != nil {
		return Cart{}, s.translateRepoError(err)
	}
	return saved, nil
}

// UpdateItem sets a line's quantity; zero or below removes the line.
func (s *cartService) UpdateItem(ctx context.Context, cmd UpdateCartItemCommand) (Cart, error) {
	cartID := strings.TrimSpace(cmd.CartID)
	lineID := strings.TrimSpace(cmd.LineID)
	if cartID == "" || lineID == "" {
		return Cart{}, fmt.Errorf("%w: cart id and line id are required", ErrCartInvalidInput)
	}
	if cmd.Quantity > maxCartLineQuantity {
		return Cart{}, fmt.Errorf("%w: quantity must be %d or fewer", ErrCartInvalidInput, maxCartLineQuantity)
	}

	cart, err := s.carts.FindByID(ctx, cartID)
	if err != nil {
		return Cart{}, s.translateRepoError(err)
	}

	idx := -1
	for i, line := range cart.Lines {
		if strings.EqualFold(line.ID, lineID) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Cart{}, fmt.Errorf("%w: line %s", ErrCartNotFound, lineID)
	}

	if cmd.Quantity <= 0 {
		cart.Lines = append(cart.Lines[:idx], cart.Lines[idx+1:]...)
	} else {
		cart.Lines[idx].Quantity = cmd.Quantity
		if err := s.ensureStock(ctx, cart, cart.Lines[idx].SKU); err != nil {
			return Cart{}, err
		}
	}

	cart.LastMutatedAt = s.now()
	saved, err := s.carts.Save(ctx, cart)
	if err != nil {
		return Cart{}, s.translateRepoError(err)
	}
	return saved, nil
}

// RemoveItem deletes a line from the cart.
func (s *cartService) RemoveItem(ctx context.Context, cartID, lineID string) (Cart, error) {
	return s.UpdateItem(ctx, UpdateCartItemCommand{CartID: cartID, LineID: lineID, Quantity: 0})
}

// ClearCart removes every line but keeps the cart itself.
func (s *cartService) ClearCart(ctx context.Context, cartID string) (Cart, error) {
	id := strings.TrimSpace(cartID)
	if id == "" {
		return Cart{}, fmt.Errorf("%w: cart id is required", ErrCartInvalidInput)
	}
	cart, err := s.carts.FindByID(ctx, id)
	if err != nil {
		return Cart{}, s.translateRepoError(err)
	}
	cart.Lines = []domain.CartLine{}
	cart.LastMutatedAt = s.now()
	saved, err := s.carts.Save(ctx, cart)
	if err != nil {
		return Cart{}, s.translateRepoError(err)
	}
	return saved, nil
}

// ensureStock rejects a mutation whose wanted quantity exceeds the unreserved
// stock for the SKU. SKUs without a stock record are not stock-limited. The
// authoritative check still runs inside the order-creation transaction; this
// one keeps obviously unfulfillable carts from forming.
func (s *cartService) ensureStock(ctx context.Context, cart Cart, sku string) error {
	if s.inventory == nil || strings.TrimSpace(sku) == "" {
		return nil
	}
	level, err := s.inventory.FindBySKU(ctx, sku)
	if err != nil {
		if isRepoNotFound(err) {
			return nil
		}
		return s.translateRepoError(err)
	}
	var wanted int64
	for _, line := range cart.Lines {
		if strings.EqualFold(line.SKU, sku) {
			wanted += line.Quantity
		}
	}
	if available := level.OnHand - level.Reserved; wanted > available {
		s.logger(ctx, "cart.stock_insufficient", map[string]any{
			"cartID":    cart.ID,
			"sku":       sku,
			"wanted":    wanted,
			"available": available,
		})
		return fmt.Errorf("%w: %d of %s wanted, %d available", ErrCartInsufficientStock, wanted, sku, available)
	}
	return nil
}

func validateCurrencyCode(code string) error {
	if len(code) != 3 {
		return fmt.Errorf("%w: currency must be a 3-letter ISO code", ErrCartInvalidInput)
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return fmt.Errorf("%w: currency must be a 3-letter ISO code", ErrCartInvalidInput)
		}
	}
	return nil
}

func (s *cartService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrCartNotFound
		case repoErr.IsConflict():
			return ErrCartConflict
		case repoErr.IsUnavailable():
			return ErrCartUnavailable
		}
	}
	return ErrCartUnavailable
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
