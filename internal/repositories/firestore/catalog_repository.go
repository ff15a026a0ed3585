package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/ordella/api/internal/domain"
	pfirestore "github.com/ordella/api/internal/platform/firestore"
)

const (
	productsCollection      = "products"
	discountsCollection     = "discountCodes"
	taxRatesCollection      = "taxRates"
	shippingZonesCollection = "shippingZones"
)

type productDocument struct {
	Title       string   `firestore:"title"`
	SKU         string   `firestore:"sku"`
	Price       int64    `firestore:"price"`
	Currency    string   `firestore:"currency"`
	Collections []string `firestore:"collections,omitempty"`
	Active      bool     `firestore:"active"`
}

// ProductRepository provides read-only catalog lookups.
type ProductRepository struct {
	products *pfirestore.BaseRepository[productDocument]
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		products: pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil),
	}, nil
}

// FindByRef loads a product by its document id.
func (r *ProductRepository) FindByRef(ctx context.Context, productRef string) (domain.Product, error) {
	doc, err := r.products.Get(ctx, strings.TrimSpace(productRef))
	if err != nil {
		return domain.Product{}, err
	}
	return domain.Product{
		ID:          doc.ID,
		Title:       doc.Data.Title,
		SKU:         doc.Data.SKU,
		Price:       doc.Data.Price,
		Currency:    doc.Data.Currency,
		Collections: doc.Data.Collections,
		Active:      doc.Data.Active,
	}, nil
}

type discountDocument struct {
	// Code is stored uppercase; FindByCode relies on that to match
	// case-insensitively with a single equality query.
	Code               string     `firestore:"code"`
	Kind               string     `firestore:"kind"`
	Value              int64      `firestore:"value"`
	MinPurchase        *int64     `firestore:"minPurchase,omitempty"`
	MaxUses            *int64     `firestore:"maxUses,omitempty"`
	MaxUsesPerCustomer *int64     `firestore:"maxUsesPerCustomer,omitempty"`
	ValidFrom          *time.Time `firestore:"validFrom,omitempty"`
	ValidTo            *time.Time `firestore:"validTo,omitempty"`
	Active             bool       `firestore:"active"`
	ProductScope       []string   `firestore:"productScope,omitempty"`
	CollectionScope    []string   `firestore:"collectionScope,omitempty"`
	UsedCount          int64      `firestore:"usedCount"`
	CreatedAt          time.Time  `firestore:"createdAt"`
	UpdatedAt          time.Time  `firestore:"updatedAt"`
}

// DiscountRepository stores discount codes. Codes are persisted upper case so a
// single equality query answers the case-insensitive lookup.
type DiscountRepository struct {
	provider  *pfirestore.Provider
	discounts *pfirestore.BaseRepository[discountDocument]
}

// NewDiscountRepository constructs a Firestore-backed discount repository.
func NewDiscountRepository(provider *pfirestore.Provider) (*DiscountRepository, error) {
	if provider == nil {
		return nil, errors.New("discount repository requires firestore provider")
	}
	return &DiscountRepository{
		provider:  provider,
		discounts: pfirestore.NewBaseRepository[discountDocument](provider, discountsCollection, nil, nil),
	}, nil
}

// FindByCode resolves a code to its discount document. Documents store the
// code uppercase, so uppercasing the input makes the equality query
// case-insensitive.
func (r *DiscountRepository) FindByCode(ctx context.Context, code string) (domain.DiscountCode, error) {
	normalised := strings.ToUpper(strings.TrimSpace(code))
	docs, err := r.discounts.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("code", "==", normalised).Limit(1)
	})
	if err != nil {
		return domain.DiscountCode{}, err
	}
	if len(docs) == 0 {
		return domain.DiscountCode{}, pfirestore.WrapError("discountCodes.findByCode", notFoundStatusError(fmt.Sprintf("discount code %s not found", normalised)))
	}
	return decodeDiscount(docs[0].ID, docs[0].Data), nil
}

// FindByID loads a discount by its document id.
func (r *DiscountRepository) FindByID(ctx context.Context, codeID string) (domain.DiscountCode, error) {
	doc, err := r.discounts.Get(ctx, strings.TrimSpace(codeID))
	if err != nil {
		return domain.DiscountCode{}, err
	}
	return decodeDiscount(doc.ID, doc.Data), nil
}

// IncrementUsage bumps the monotonic redemption counter in a transaction.
func (r *DiscountRepository) IncrementUsage(ctx context.Context, codeID string, now time.Time) (domain.DiscountCode, error) {
	var updated domain.DiscountCode
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.discounts.DocumentRef(ctx, strings.TrimSpace(codeID))
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc discountDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("firestore discountCodes decode %s: %w", codeID, err)
		}
		doc.UsedCount++
		doc.UpdatedAt = now.UTC()
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		updated = decodeDiscount(snap.Ref.ID, doc)
		return nil
	})
	if err != nil {
		return domain.DiscountCode{}, pfirestore.WrapError("discountCodes.incrementUsage", err)
	}
	return updated, nil
}

func decodeDiscount(id string, doc discountDocument) domain.DiscountCode {
	return domain.DiscountCode{
		ID:                 id,
		Code:               doc.Code,
		Kind:               domain.DiscountKind(doc.Kind),
		Value:              doc.Value,
		MinPurchase:        doc.MinPurchase,
		MaxUses:            doc.MaxUses,
		MaxUsesPerCustomer: doc.MaxUsesPerCustomer,
		ValidFrom:          doc.ValidFrom,
		ValidTo:            doc.ValidTo,
		Active:             doc.Active,
		ProductScope:       doc.ProductScope,
		CollectionScope:    doc.CollectionScope,
		UsedCount:          doc.UsedCount,
		CreatedAt:          doc.CreatedAt,
		UpdatedAt:          doc.UpdatedAt,
	}
}

type taxRateDocument struct {
	Name    string  `firestore:"name"`
	Country string  `firestore:"country"`
	Region  string  `firestore:"region,omitempty"`
	Ratio   float64 `firestore:"ratio"`
	Active  bool    `firestore:"active"`
}

// TaxRateRepository lists active flat tax rates per country.
type TaxRateRepository struct {
	rates *pfirestore.BaseRepository[taxRateDocument]
}

// NewTaxRateRepository constructs a Firestore-backed tax rate repository.
func NewTaxRateRepository(provider *pfirestore.Provider) (*TaxRateRepository, error) {
	if provider == nil {
		return nil, errors.New("tax rate repository requires firestore provider")
	}
	return &TaxRateRepository{
		rates: pfirestore.NewBaseRepository[taxRateDocument](provider, taxRatesCollection, nil, nil),
	}, nil
}

// ListActiveByCountry returns the active rates for a country, regions included.
func (r *TaxRateRepository) ListActiveByCountry(ctx context.Context, country string) ([]domain.TaxRate, error) {
	normalised := strings.ToUpper(strings.TrimSpace(country))
	docs, err := r.rates.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("country", "==", normalised).Where("active", "==", true)
	})
	if err != nil {
		return nil, err
	}
	rates := make([]domain.TaxRate, 0, len(docs))
	for _, doc := range docs {
		rates = append(rates, domain.TaxRate{
			ID:      doc.ID,
			Name:    doc.Data.Name,
			Country: doc.Data.Country,
			Region:  doc.Data.Region,
			Ratio:   doc.Data.Ratio,
			Active:  doc.Data.Active,
		})
	}
	return rates, nil
}

type shippingRateDocument struct {
	ID            string `firestore:"id"`
	Name          string `firestore:"name"`
	Price         int64  `firestore:"price"`
	MinOrderValue *int64 `firestore:"minOrderValue,omitempty"`
	MaxOrderValue *int64 `firestore:"maxOrderValue,omitempty"`
	EstimatedDays int    `firestore:"estimatedDays,omitempty"`
	Active        bool   `firestore:"active"`
}

type shippingZoneDocument struct {
	Name      string                 `firestore:"name"`
	Countries []string               `firestore:"countries"`
	Regions   []string               `firestore:"regions,omitempty"`
	Active    bool                   `firestore:"active"`
	Rates     []shippingRateDocument `firestore:"rates"`
}

// ShippingZoneRepository lists active zones with their embedded rates. Zones are
// small and few, so the rates live inline instead of in a subcollection.
type ShippingZoneRepository struct {
	zones *pfirestore.BaseRepository[shippingZoneDocument]
}

// NewShippingZoneRepository constructs a Firestore-backed shipping zone repository.
func NewShippingZoneRepository(provider *pfirestore.Provider) (*ShippingZoneRepository, error) {
	if provider == nil {
		return nil, errors.New("shipping zone repository requires firestore provider")
	}
	return &ShippingZoneRepository{
		zones: pfirestore.NewBaseRepository[shippingZoneDocument](provider, shippingZonesCollection, nil, nil),
	}, nil
}

// ListActive returns every active zone.
func (r *ShippingZoneRepository) ListActive(ctx context.Context) ([]domain.ShippingZone, error) {
	docs, err := r.zones.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("active", "==", true)
	})
	if err != nil {
		return nil, err
	}
	zones := make([]domain.ShippingZone, 0, len(docs))
	for _, doc := range docs {
		rates := make([]domain.ShippingRate, 0, len(doc.Data.Rates))
		for _, rate := range doc.Data.Rates {
			rates = append(rates, domain.ShippingRate{
				ID:            rate.ID,
				Name:          rate.Name,
				Price:         rate.Price,
				MinOrderValue: rate.MinOrderValue,
				MaxOrderValue: rate.MaxOrderValue,
				EstimatedDays: rate.EstimatedDays,
				Active:        rate.Active,
			})
		}
		zones = append(zones, domain.ShippingZone{
			ID:        doc.ID,
			Name:      doc.Data.Name,
			Countries: doc.Data.Countries,
			Regions:   doc.Data.Regions,
			Active:    doc.Data.Active,
			Rates:     rates,
		})
	}
	return zones, nil
}
