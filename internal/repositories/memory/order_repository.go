package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	domain "github.com/ordella/api/internal/domain"
	"github.com/ordella/api/internal/repositories"
)

type orderRepository struct{ reg *Registry }

func (r *orderRepository) Create(_ context.Context, req repositories.OrderCreateRequest) (domain.Order, error) {
	id := strings.TrimSpace(req.Order.ID)
	if id == "" {
		return domain.Order{}, notFound("order id is required")
	}

	r.reg.mu.Lock()
	defer r.reg.mu.Unlock()

	if _, exists := r.reg.orders[id]; exists {
		return domain.Order{}, repositories.NewConflictError(repositories.ConflictErrorStatusMismatch, "order "+id+" already exists")
	}

	if len(req.Reserve) > 0 {
		if _, err := reserveLocked(r.reg, req.Reserve, req.Now); err != nil {
			return domain.Order{}, err
		}
	}

	order := cloneOrder(req.Order)
	r.reg.orders[id] = order
	if intent := strings.TrimSpace(order.PaymentIntentID); intent != "" {
		r.reg.orderByIntent[intent] = id
	}
	if cartID := strings.TrimSpace(req.ClearCartID); cartID != "" {
		delete(r.reg.carts, cartID)
	}
	return cloneOrder(order), nil
}

func (r *orderRepository) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	r.reg.mu.Lock()
	defer r.reg.mu.Unlock()
	order, ok := r.reg.orders[strings.TrimSpace(orderID)]
	if !ok {
		return domain.Order{}, notFound("order %s not found", orderID)
	}
	return cloneOrder(order), nil
}

func (r *orderRepository) FindByIntent(_ context.Context, intentID string) (domain.Order, error) {
	r.reg.mu.Lock()
	defer r.reg.mu.Unlock()
	id, ok := r.reg.orderByIntent[strings.TrimSpace(intentID)]
	if !ok {
		return domain.Order{}, notFound("no order for intent %s", intentID)
	}
	return cloneOrder(r.reg.orders[id]), nil
}

func (r *orderRepository) List(_ context.Context, query repositories.OrderListQuery) (domain.CursorPage[domain.Order], error) {
	r.reg.mu.Lock()
	defer r.reg.mu.Unlock()

	orders := make([]domain.Order, 0, len(r.reg.orders))
	for _, order := range r.reg.orders {
		if query.Status != "" && order.Status != query.Status {
			continue
		}
		if query.Customer != "" && !strings.EqualFold(order.CustomerRef, query.Customer) {
			continue
		}
		orders = append(orders, order)
	}
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].ID > orders[j].ID
	})

	start := 0
	if cursor := strings.TrimSpace(query.Cursor); cursor != "" {
		for i, order := range orders {
			if order.ID == cursor {
				start = i + 1
				break
			}
		}
	}

	size := query.PageSize
	if size <= 0 {
		size = 20
	}

	page := domain.CursorPage[domain.Order]{}
	for i := start; i < len(orders) && len(page.Items) < size; i++ {
		page.Items = append(page.Items, cloneOrder(orders[i]))
	}
	if start+len(page.Items) < len(orders) {
		page.HasMore = true
		page.NextCursor = page.Items[len(page.Items)-1].ID
	}
	return page, nil
}

func (r *orderRepository) UpdateStatus(_ context.Context, req repositories.OrderStatusUpdate) (domain.Order, error) {
	r.reg.mu.Lock()
	defer r.reg.mu.Unlock()

	order, ok := r.reg.orders[strings.TrimSpace(req.OrderID)]
	if !ok {
		return domain.Order{}, notFound("order %s not found", req.OrderID)
	}
	if req.ExpectedStatus != "" && order.Status != req.ExpectedStatus {
		return domain.Order{}, repositories.NewConflictError(repositories.ConflictErrorStatusMismatch,
			"order "+order.ID+" is "+string(order.Status)+", expected "+string(req.ExpectedStatus))
	}

	now := req.Now.UTC()
	switch req.StockEffect {
	case repositories.StockEffectRelease:
		if _, err := releaseLocked(r.reg, stockLinesFromOrder(order), now); err != nil {
			return domain.Order{}, err
		}
	case repositories.StockEffectCommit:
		if err := commitLocked(r.reg, stockLinesFromOrder(order), now); err != nil {
			return domain.Order{}, err
		}
	}

	order.Status = req.TargetStatus
	order.UpdatedAt = now
	stampStatusTime(&order, req.TargetStatus, now)
	r.reg.orders[order.ID] = order
	return cloneOrder(order), nil
}

func (r *orderRepository) SetPaymentIntent(_ context.Context, orderID, provider, intentID string, now time.Time) (domain.Order, error) {
	r.reg.mu.Lock()
	defer r.reg.mu.Unlock()

	order, ok := r.reg.orders[strings.TrimSpace(orderID)]
	if !ok {
		return domain.Order{}, notFound("order %s not found", orderID)
	}
	if prev := strings.TrimSpace(order.PaymentIntentID); prev != "" {
		delete(r.reg.orderByIntent, prev)
	}
	order.PaymentProvider = strings.TrimSpace(provider)
	order.PaymentIntentID = strings.TrimSpace(intentID)
	order.UpdatedAt = now.UTC()
	r.reg.orders[order.ID] = order
	if order.PaymentIntentID != "" {
		r.reg.orderByIntent[order.PaymentIntentID] = order.ID
	}
	return cloneOrder(order), nil
}

func (r *orderRepository) ApplyPaymentOutcome(_ context.Context, req repositories.PaymentOutcomeRequest) (repositories.PaymentOutcomeResult, error) {
	r.reg.mu.Lock()
	defer r.reg.mu.Unlock()

	order, ok := r.reg.orders[strings.TrimSpace(req.OrderID)]
	if !ok {
		return repositories.PaymentOutcomeResult{}, notFound("order %s not found", req.OrderID)
	}

	eventID := strings.TrimSpace(req.EventID)
	if eventID != "" {
		if _, seen := r.reg.events[eventID]; seen {
			return repositories.PaymentOutcomeResult{Order: cloneOrder(order), AlreadyProcessed: true}, nil
		}
	}

	now := req.Now.UTC()
	result := repositories.PaymentOutcomeResult{}

	switch req.Outcome {
	case domain.PaymentOutcomeAuthorized:
		if order.Status == domain.OrderStatusPending {
			order.Status = domain.OrderStatusPaid
			order.PaidAt = &now
			order.LastPaymentError = ""
			result.Transitioned = true
			if codeID := strings.TrimSpace(order.DiscountCodeRef); codeID != "" {
				if discount, ok := r.reg.discounts[codeID]; ok {
					discount.UsedCount++
					discount.UpdatedAt = now
					r.reg.discounts[codeID] = discount
					result.UsageIncremented = true
				}
			}
		}
	case domain.PaymentOutcomeFailed:
		order.LastPaymentError = strings.TrimSpace(req.FailureMsg)
	}

	if intent := strings.TrimSpace(req.IntentID); intent != "" && order.PaymentIntentID == "" {
		order.PaymentIntentID = intent
		r.reg.orderByIntent[intent] = order.ID
	}

	order.UpdatedAt = now
	r.reg.orders[order.ID] = order
	if eventID != "" {
		r.reg.events[eventID] = eventRecord{OrderID: order.ID, ReceivedAt: now}
	}
	result.Order = cloneOrder(order)
	return result, nil
}

func (r *orderRepository) RecordRefund(_ context.Context, req repositories.RefundRecordRequest) (domain.Order, error) {
	r.reg.mu.Lock()
	defer r.reg.mu.Unlock()

	order, ok := r.reg.orders[strings.TrimSpace(req.OrderID)]
	if !ok {
		return domain.Order{}, notFound("order %s not found", req.OrderID)
	}

	now := req.Now.UTC()
	replaced := false
	for i, refund := range order.Refunds {
		if refund.ID == req.Refund.ID {
			order.Refunds[i] = req.Refund
			replaced = true
			break
		}
	}
	if !replaced {
		order.Refunds = append(order.Refunds, req.Refund)
	}
	if req.MarkRefunded {
		order.Status = domain.OrderStatusRefunded
		order.RefundedAt = &now
	}
	order.UpdatedAt = now
	r.reg.orders[order.ID] = order
	return cloneOrder(order), nil
}

func (r *orderRepository) CountFinalizedWithDiscount(_ context.Context, discountID, customerRef string) (int64, error) {
	r.reg.mu.Lock()
	defer r.reg.mu.Unlock()

	var count int64
	for _, order := range r.reg.orders {
		if order.DiscountCodeRef != strings.TrimSpace(discountID) {
			continue
		}
		if customerRef != "" && !strings.EqualFold(order.CustomerRef, customerRef) {
			continue
		}
		switch order.Status {
		case domain.OrderStatusPaid, domain.OrderStatusShipped, domain.OrderStatusRefunded:
			count++
		}
	}
	return count, nil
}

func stockLinesFromOrder(order domain.Order) []domain.StockLine {
	lines := make([]domain.StockLine, 0, len(order.Lines))
	for _, line := range order.Lines {
		if strings.TrimSpace(line.SKU) == "" || line.Quantity <= 0 {
			continue
		}
		lines = append(lines, domain.StockLine{SKU: line.SKU, Quantity: line.Quantity})
	}
	return lines
}

func stampStatusTime(order *domain.Order, status domain.OrderStatus, now time.Time) {
	switch status {
	case domain.OrderStatusPaid:
		order.PaidAt = &now
	case domain.OrderStatusShipped:
		order.ShippedAt = &now
	case domain.OrderStatusCancelled:
		order.CancelledAt = &now
	case domain.OrderStatusRefunded:
		order.RefundedAt = &now
	}
}

func cloneOrder(order domain.Order) domain.Order {
	dup := order
	if order.Lines != nil {
		dup.Lines = make([]domain.OrderLine, len(order.Lines))
		copy(dup.Lines, order.Lines)
	}
	if order.Refunds != nil {
		dup.Refunds = make([]domain.Refund, len(order.Refunds))
		copy(dup.Refunds, order.Refunds)
	}
	return dup
}
