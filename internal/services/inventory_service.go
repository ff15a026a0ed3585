package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	domain "github.com/ordella/api/internal/domain"
	"github.com/ordella/api/internal/repositories"
)

var (
	// ErrInventoryInvalidInput signals the caller provided invalid arguments.
	ErrInventoryInvalidInput = errors.New("inventory: invalid input")
	// ErrInventoryInsufficientStock indicates the requested quantity exceeds availability.
	ErrInventoryInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrInventoryNotFound indicates the ledger has no entry for the SKU.
	ErrInventoryNotFound = errors.New("inventory: stock not found")
	// ErrInventoryUnavailable indicates the ledger backend cannot be reached.
	ErrInventoryUnavailable = errors.New("inventory: unavailable")
)

// InventoryServiceDeps bundles the collaborators required to construct an inventory service.
type InventoryServiceDeps struct {
	Inventory repositories.InventoryRepository
	Clock     func() time.Time
	Logger    Logger
}

type inventoryService struct {
	repo   repositories.InventoryRepository
	now    func() time.Time
	logger Logger
}

// NewInventoryService wires dependencies into a concrete InventoryService implementation.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.Inventory == nil {
		return nil, errors.New("inventory service: inventory repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &inventoryService{
		repo:   deps.Inventory,
		now:    func() time.Time { return clock().UTC() },
		logger: logger,
	}, nil
}

// GetStock reads the current level for a SKU. The read is advisory; the
// authoritative check happens inside the order creation transaction.
func (s *inventoryService) GetStock(ctx context.Context, sku string) (StockLevel, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return StockLevel{}, fmt.Errorf("%w: sku is required", ErrInventoryInvalidInput)
	}
	level, err := s.repo.FindBySKU(ctx, sku)
	if err != nil {
		return StockLevel{}, s.mapRepositoryError(err)
	}
	return level, nil
}

func (s *inventoryService) Reserve(ctx context.Context, cmd ReserveStockCommand) (map[string]StockLevel, error) {
	lines, err := normalizeStockLines(cmd.Lines)
	if err != nil {
		return nil, err
	}

	result, err := s.repo.Reserve(ctx, repositories.StockReserveRequest{
		Lines: lines,
		Now:   s.now(),
	})
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}

	s.logger(ctx, "inventory.reserved", map[string]any{"lines": len(lines)})
	return levelMap(result), nil
}

func (s *inventoryService) Release(ctx context.Context, cmd ReleaseStockCommand) (map[string]StockLevel, error) {
	lines, err := normalizeStockLines(cmd.Lines)
	if err != nil {
		return nil, err
	}

	result, err := s.repo.Release(ctx, repositories.StockReleaseRequest{
		Lines: lines,
		Now:   s.now(),
	})
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}

	s.logger(ctx, "inventory.released", map[string]any{"lines": len(lines)})
	return levelMap(result), nil
}

func (s *inventoryService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorInsufficient:
			return fmt.Errorf("%w: %s", ErrInventoryInsufficientStock, stockErr.Message)
		case repositories.StockErrorNotFound:
			return fmt.Errorf("%w: %s", ErrInventoryNotFound, stockErr.Message)
		case repositories.StockErrorInvalidLine:
			return fmt.Errorf("%w: %s", ErrInventoryInvalidInput, stockErr.Message)
		}
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		if repoErr.IsNotFound() {
			return ErrInventoryNotFound
		}
		return ErrInventoryUnavailable
	}
	return ErrInventoryUnavailable
}

// normalizeStockLines aggregates duplicate SKUs and rejects empty or non-positive lines.
func normalizeStockLines(lines []StockLine) ([]StockLine, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: at least one line is required", ErrInventoryInvalidInput)
	}
	aggregated := make(map[string]int64, len(lines))
	for _, line := range lines {
		sku := strings.TrimSpace(line.SKU)
		if sku == "" {
			return nil, fmt.Errorf("%w: line sku is required", ErrInventoryInvalidInput)
		}
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for %s must be positive", ErrInventoryInvalidInput, sku)
		}
		aggregated[sku] += line.Quantity
	}

	result := make([]StockLine, 0, len(aggregated))
	for sku, quantity := range aggregated {
		result = append(result, StockLine{SKU: sku, Quantity: quantity})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SKU < result[j].SKU })
	return result, nil
}

func levelMap(levels map[string]domain.StockLevel) map[string]StockLevel {
	out := make(map[string]StockLevel, len(levels))
	for sku, level := range levels {
		out[sku] = level
	}
	return out
}
