package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/ordella/api/internal/domain"
	pfirestore "github.com/ordella/api/internal/platform/firestore"
)

const cartsCollection = "carts"

type cartLineDocument struct {
	ID         string `firestore:"id"`
	ProductRef string `firestore:"productRef"`
	VariantRef string `firestore:"variantRef,omitempty"`
	SKU        string `firestore:"sku"`
	Title      string `firestore:"title"`
	Quantity   int64  `firestore:"quantity"`
	UnitPrice  int64  `firestore:"unitPrice"`
}

type cartDocument struct {
	OwnerRef      string             `firestore:"ownerRef,omitempty"`
	Currency      string             `firestore:"currency"`
	Lines         []cartLineDocument `firestore:"lines"`
	Metadata      map[string]string  `firestore:"metadata,omitempty"`
	CreatedAt     time.Time          `firestore:"createdAt"`
	LastMutatedAt time.Time          `firestore:"lastMutatedAt"`
}

// CartRepository implements repositories.CartRepository backed by Firestore.
type CartRepository struct {
	provider *pfirestore.Provider
	carts    *pfirestore.BaseRepository[cartDocument]
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{
		provider: provider,
		carts:    pfirestore.NewBaseRepository[cartDocument](provider, cartsCollection, nil, nil),
	}, nil
}

// Insert creates the cart document, failing if the id already exists.
func (r *CartRepository) Insert(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	ref, err := r.carts.DocumentRef(ctx, cart.ID)
	if err != nil {
		return domain.Cart{}, err
	}
	if _, err := ref.Create(ctx, encodeCart(cart)); err != nil {
		return domain.Cart{}, pfirestore.WrapError("carts.insert", err)
	}
	return cart, nil
}

// FindByID loads a cart with its lines.
func (r *CartRepository) FindByID(ctx context.Context, cartID string) (domain.Cart, error) {
	doc, err := r.carts.Get(ctx, strings.TrimSpace(cartID))
	if err != nil {
		return domain.Cart{}, err
	}
	return decodeCart(doc.ID, doc.Data), nil
}

// Save replaces the whole cart document. The cart is the aggregate boundary, so
// the full line set is written on every mutation.
func (r *CartRepository) Save(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if _, err := r.carts.Set(ctx, cart.ID, encodeCart(cart)); err != nil {
		return domain.Cart{}, err
	}
	return cart, nil
}

// Delete removes the cart document.
func (r *CartRepository) Delete(ctx context.Context, cartID string) error {
	ref, err := r.carts.DocumentRef(ctx, strings.TrimSpace(cartID))
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return pfirestore.WrapError("carts.delete", err)
	}
	return nil
}

func encodeCart(cart domain.Cart) cartDocument {
	lines := make([]cartLineDocument, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		lines = append(lines, cartLineDocument{
			ID:         line.ID,
			ProductRef: line.ProductRef,
			VariantRef: line.VariantRef,
			SKU:        line.SKU,
			Title:      line.Title,
			Quantity:   line.Quantity,
			UnitPrice:  line.UnitPrice,
		})
	}
	return cartDocument{
		OwnerRef:      cart.OwnerRef,
		Currency:      cart.Currency,
		Lines:         lines,
		Metadata:      cart.Metadata,
		CreatedAt:     cart.CreatedAt.UTC(),
		LastMutatedAt: cart.LastMutatedAt.UTC(),
	}
}

func decodeCart(id string, doc cartDocument) domain.Cart {
	lines := make([]domain.CartLine, 0, len(doc.Lines))
	for _, line := range doc.Lines {
		lines = append(lines, domain.CartLine{
			ID:         line.ID,
			ProductRef: line.ProductRef,
			VariantRef: line.VariantRef,
			SKU:        line.SKU,
			Title:      line.Title,
			Quantity:   line.Quantity,
			UnitPrice:  line.UnitPrice,
		})
	}
	return domain.Cart{
		ID:            id,
		OwnerRef:      doc.OwnerRef,
		Currency:      doc.Currency,
		Lines:         lines,
		Metadata:      doc.Metadata,
		CreatedAt:     doc.CreatedAt,
		LastMutatedAt: doc.LastMutatedAt,
	}
}
