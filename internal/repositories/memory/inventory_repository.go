package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	domain "github.com/ordella/api/internal/domain"
	"github.com/ordella/api/internal/repositories"
)

type inventoryRepository struct{ reg *Registry }

func (r *inventoryRepository) FindBySKU(_ context.Context, sku string) (domain.StockLevel, error) {
	r.reg.mu.Lock()
	defer r.reg.mu.Unlock()
	record, ok := r.reg.stocks[strings.TrimSpace(sku)]
	if !ok {
		return domain.StockLevel{}, repositories.NewStockError(repositories.StockErrorNotFound, fmt.Sprintf("stock %s not found", sku), nil)
	}
	return record.toDomain(strings.TrimSpace(sku)), nil
}

func (r *inventoryRepository) Reserve(_ context.Context, req repositories.StockReserveRequest) (map[string]domain.StockLevel, error) {
	r.reg.mu.Lock()
	defer r.reg.mu.Unlock()
	return reserveLocked(r.reg, req.Lines, req.Now)
}

func (r *inventoryRepository) Release(_ context.Context, req repositories.StockReleaseRequest) (map[string]domain.StockLevel, error) {
	r.reg.mu.Lock()
	defer r.reg.mu.Unlock()
	return releaseLocked(r.reg, req.Lines, req.Now)
}

// reserveLocked applies the whole line set or nothing. Callers hold the registry lock.
func reserveLocked(reg *Registry, lines []domain.StockLine, now time.Time) (map[string]domain.StockLevel, error) {
	records := make([]*stockRecord, 0, len(lines))
	for _, line := range lines {
		sku := strings.TrimSpace(line.SKU)
		if sku == "" || line.Quantity <= 0 {
			return nil, repositories.NewStockError(repositories.StockErrorInvalidLine, fmt.Sprintf("invalid stock line for %q", line.SKU), nil)
		}
		record, ok := reg.stocks[sku]
		if !ok {
			return nil, repositories.NewStockError(repositories.StockErrorNotFound, fmt.Sprintf("stock %s not found", sku), nil)
		}
		if record.OnHand-record.Reserved < line.Quantity {
			return nil, repositories.NewStockError(repositories.StockErrorInsufficient, fmt.Sprintf("insufficient stock for %s", sku), nil)
		}
		records = append(records, record)
	}

	levels := make(map[string]domain.StockLevel, len(lines))
	for i, line := range lines {
		record := records[i]
		record.Reserved += line.Quantity
		record.UpdatedAt = now.UTC()
		levels[strings.TrimSpace(line.SKU)] = record.toDomain(strings.TrimSpace(line.SKU))
	}
	return levels, nil
}

func releaseLocked(reg *Registry, lines []domain.StockLine, now time.Time) (map[string]domain.StockLevel, error) {
	levels := make(map[string]domain.StockLevel, len(lines))
	for _, line := range lines {
		sku := strings.TrimSpace(line.SKU)
		record, ok := reg.stocks[sku]
		if !ok {
			return nil, repositories.NewStockError(repositories.StockErrorNotFound, fmt.Sprintf("stock %s not found", sku), nil)
		}
		record.Reserved -= line.Quantity
		if record.Reserved < 0 {
			record.Reserved = 0
		}
		record.UpdatedAt = now.UTC()
		levels[sku] = record.toDomain(sku)
	}
	return levels, nil
}

// commitLocked consumes reservations and decrements on-hand quantities.
func commitLocked(reg *Registry, lines []domain.StockLine, now time.Time) error {
	for _, line := range lines {
		sku := strings.TrimSpace(line.SKU)
		record, ok := reg.stocks[sku]
		if !ok {
			return repositories.NewStockError(repositories.StockErrorNotFound, fmt.Sprintf("stock %s not found", sku), nil)
		}
		if record.OnHand < line.Quantity {
			return repositories.NewStockError(repositories.StockErrorInsufficient, fmt.Sprintf("on-hand for %s cannot drop below zero", sku), nil)
		}
		record.OnHand -= line.Quantity
		record.Reserved -= line.Quantity
		if record.Reserved < 0 {
			record.Reserved = 0
		}
		record.UpdatedAt = now.UTC()
	}
	return nil
}

func (s *stockRecord) toDomain(sku string) domain.StockLevel {
	return domain.StockLevel{
		SKU:       sku,
		OnHand:    s.OnHand,
		Reserved:  s.Reserved,
		Available: s.OnHand - s.Reserved,
		UpdatedAt: s.UpdatedAt,
	}
}
