package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/ordella/api/internal/domain"
	pfirestore "github.com/ordella/api/internal/platform/firestore"
	"github.com/ordella/api/internal/repositories"
)

const stockCollection = "stockLevels"

type stockDocument struct {
	OnHand    int64     `firestore:"onHand"`
	Reserved  int64     `firestore:"reserved"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func (d stockDocument) toDomain(sku string) domain.StockLevel {
	available := d.OnHand - d.Reserved
	if available < 0 {
		available = 0
	}
	return domain.StockLevel{
		SKU:       sku,
		OnHand:    d.OnHand,
		Reserved:  d.Reserved,
		Available: available,
		UpdatedAt: d.UpdatedAt,
	}
}

// InventoryRepository is the Firestore stock ledger. Reserve and Release run as
// one transaction across all lines: every line applies or none does.
type InventoryRepository struct {
	provider *pfirestore.Provider
	stocks   *pfirestore.BaseRepository[stockDocument]
}

// NewInventoryRepository constructs a Firestore-backed inventory repository.
func NewInventoryRepository(provider *pfirestore.Provider) (*InventoryRepository, error) {
	if provider == nil {
		return nil, errors.New("inventory repository requires firestore provider")
	}
	return &InventoryRepository{
		provider: provider,
		stocks:   pfirestore.NewBaseRepository[stockDocument](provider, stockCollection, nil, nil),
	}, nil
}

// FindBySKU loads the ledger entry for one SKU.
func (r *InventoryRepository) FindBySKU(ctx context.Context, sku string) (domain.StockLevel, error) {
	key := strings.TrimSpace(sku)
	doc, err := r.stocks.Get(ctx, key)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return domain.StockLevel{}, repositories.NewStockError(repositories.StockErrorNotFound, fmt.Sprintf("no stock record for %s", key), err)
		}
		return domain.StockLevel{}, err
	}
	return doc.Data.toDomain(key), nil
}

// Reserve moves quantities from available to reserved for every line.
func (r *InventoryRepository) Reserve(ctx context.Context, req repositories.StockReserveRequest) (map[string]domain.StockLevel, error) {
	return r.mutate(ctx, req.Lines, req.Now, func(doc *stockDocument, line domain.StockLine) error {
		available := doc.OnHand - doc.Reserved
		if available < line.Quantity {
			return repositories.NewStockError(repositories.StockErrorInsufficient,
				fmt.Sprintf("%s: %d available, %d requested", line.SKU, available, line.Quantity), nil)
		}
		doc.Reserved += line.Quantity
		return nil
	})
}

// Release returns previously reserved quantities to the sellable pool. A release
// never drives the reservation below zero.
func (r *InventoryRepository) Release(ctx context.Context, req repositories.StockReleaseRequest) (map[string]domain.StockLevel, error) {
	return r.mutate(ctx, req.Lines, req.Now, func(doc *stockDocument, line domain.StockLine) error {
		doc.Reserved -= line.Quantity
		if doc.Reserved < 0 {
			doc.Reserved = 0
		}
		return nil
	})
}

func (r *InventoryRepository) mutate(ctx context.Context, lines []domain.StockLine, now time.Time, apply func(*stockDocument, domain.StockLine) error) (map[string]domain.StockLevel, error) {
	if len(lines) == 0 {
		return map[string]domain.StockLevel{}, nil
	}

	// Reads sorted by SKU keep the transaction's lock order deterministic.
	ordered := make([]domain.StockLine, len(lines))
	copy(ordered, lines)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].SKU < ordered[j].SKU })

	levels := make(map[string]domain.StockLevel, len(ordered))
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		type pending struct {
			ref *firestore.DocumentRef
			doc stockDocument
		}
		updates := make([]pending, 0, len(ordered))
		for _, line := range ordered {
			ref, err := r.stocks.DocumentRef(ctx, line.SKU)
			if err != nil {
				return err
			}
			snap, err := tx.Get(ref)
			if status.Code(err) == codes.NotFound {
				return repositories.NewStockError(repositories.StockErrorNotFound, fmt.Sprintf("no stock record for %s", line.SKU), err)
			}
			if err != nil {
				return err
			}
			var doc stockDocument
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("firestore stockLevels decode %s: %w", line.SKU, err)
			}
			if err := apply(&doc, line); err != nil {
				return err
			}
			doc.UpdatedAt = now.UTC()
			updates = append(updates, pending{ref: ref, doc: doc})
			levels[line.SKU] = doc.toDomain(line.SKU)
		}
		for _, update := range updates {
			if err := tx.Set(update.ref, update.doc); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var stockErr *repositories.StockError
		if errors.As(err, &stockErr) {
			return nil, stockErr
		}
		return nil, pfirestore.WrapError("stockLevels.mutate", err)
	}
	return levels, nil
}

// stockOp names the ledger mutation applied inside an order transaction.
type stockOp int

const (
	stockOpReserve stockOp = iota + 1
	stockOpRelease
	stockOpCommit
)

// applyStockOpTx mutates the ledger inside an existing order transaction so the
// order document and the stock counts move together.
func applyStockOpTx(ctx context.Context, tx *firestore.Transaction, stocks *pfirestore.BaseRepository[stockDocument], lines []domain.StockLine, op stockOp, now time.Time) error {
	if op == 0 || len(lines) == 0 {
		return nil
	}

	ordered := make([]domain.StockLine, len(lines))
	copy(ordered, lines)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].SKU < ordered[j].SKU })

	type pending struct {
		ref *firestore.DocumentRef
		doc stockDocument
	}
	updates := make([]pending, 0, len(ordered))
	for _, line := range ordered {
		ref, err := stocks.DocumentRef(ctx, line.SKU)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return repositories.NewStockError(repositories.StockErrorNotFound, fmt.Sprintf("no stock record for %s", line.SKU), err)
		}
		if err != nil {
			return err
		}
		var doc stockDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("firestore stockLevels decode %s: %w", line.SKU, err)
		}

		switch op {
		case stockOpReserve:
			available := doc.OnHand - doc.Reserved
			if available < line.Quantity {
				return repositories.NewStockError(repositories.StockErrorInsufficient,
					fmt.Sprintf("%s: %d available, %d requested", line.SKU, available, line.Quantity), nil)
			}
			doc.Reserved += line.Quantity
		case stockOpRelease:
			doc.Reserved -= line.Quantity
			if doc.Reserved < 0 {
				doc.Reserved = 0
			}
		case stockOpCommit:
			doc.Reserved -= line.Quantity
			if doc.Reserved < 0 {
				doc.Reserved = 0
			}
			doc.OnHand -= line.Quantity
			if doc.OnHand < 0 {
				doc.OnHand = 0
			}
		}
		doc.UpdatedAt = now.UTC()
		updates = append(updates, pending{ref: ref, doc: doc})
	}
	for _, update := range updates {
		if err := tx.Set(update.ref, update.doc); err != nil {
			return err
		}
	}
	return nil
}
