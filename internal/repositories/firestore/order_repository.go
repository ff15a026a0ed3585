package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/ordella/api/internal/domain"
	pfirestore "github.com/ordella/api/internal/platform/firestore"
	"github.com/ordella/api/internal/repositories"
)

const (
	ordersCollection        = "orders"
	webhookEventsCollection = "webhookEvents"

	defaultListPageSize = 20
)

type orderLineDocument struct {
	ID         string `firestore:"id"`
	ProductRef string `firestore:"productRef"`
	VariantRef string `firestore:"variantRef,omitempty"`
	SKU        string `firestore:"sku"`
	Title      string `firestore:"title"`
	Quantity   int64  `firestore:"quantity"`
	UnitPrice  int64  `firestore:"unitPrice"`
	Total      int64  `firestore:"total"`
}

type orderAddressDocument struct {
	Recipient  string `firestore:"recipient,omitempty"`
	Line1      string `firestore:"line1,omitempty"`
	Line2      string `firestore:"line2,omitempty"`
	City       string `firestore:"city,omitempty"`
	Region     string `firestore:"region,omitempty"`
	PostalCode string `firestore:"postalCode,omitempty"`
	Country    string `firestore:"country,omitempty"`
	Phone      string `firestore:"phone,omitempty"`
}

type orderRefundDocument struct {
	ID          string     `firestore:"id"`
	Amount      int64      `firestore:"amount"`
	Reason      string     `firestore:"reason,omitempty"`
	Status      string     `firestore:"status"`
	ProcessedBy string     `firestore:"processedBy,omitempty"`
	ProcessedAt *time.Time `firestore:"processedAt,omitempty"`
	CreatedAt   time.Time  `firestore:"createdAt"`
	UpdatedAt   time.Time  `firestore:"updatedAt"`
}

type orderDocument struct {
	Number         string              `firestore:"number"`
	Status         string              `firestore:"status"`
	Email          string              `firestore:"email"`
	CustomerRef    string              `firestore:"customerRef,omitempty"`
	Currency       string              `firestore:"currency"`
	Lines          []orderLineDocument `firestore:"lines"`
	Subtotal       int64               `firestore:"subtotal"`
	DiscountAmount int64               `firestore:"discountAmount"`
	Tax            int64               `firestore:"tax"`
	ShippingCost   int64               `firestore:"shippingCost"`
	Total          int64               `firestore:"total"`

	DiscountCodeRef string `firestore:"discountCodeRef,omitempty"`
	DiscountCode    string `firestore:"discountCode,omitempty"`
	TaxName         string `firestore:"taxName,omitempty"`
	ShippingName    string `firestore:"shippingName,omitempty"`
	ShippingRateRef string `firestore:"shippingRateRef,omitempty"`

	ShippingAddress orderAddressDocument `firestore:"shippingAddress"`
	BillingAddress  orderAddressDocument `firestore:"billingAddress"`

	PaymentProvider  string `firestore:"paymentProvider,omitempty"`
	PaymentIntentID  string `firestore:"paymentIntentId,omitempty"`
	LastPaymentError string `firestore:"lastPaymentError,omitempty"`

	Notes   string                `firestore:"notes,omitempty"`
	Refunds []orderRefundDocument `firestore:"refunds,omitempty"`

	CreatedAt   time.Time  `firestore:"createdAt"`
	UpdatedAt   time.Time  `firestore:"updatedAt"`
	PaidAt      *time.Time `firestore:"paidAt,omitempty"`
	ShippedAt   *time.Time `firestore:"shippedAt,omitempty"`
	CancelledAt *time.Time `firestore:"cancelledAt,omitempty"`
	RefundedAt  *time.Time `firestore:"refundedAt,omitempty"`
}

type webhookEventDocument struct {
	OrderID    string    `firestore:"orderId"`
	ReceivedAt time.Time `firestore:"receivedAt"`
}

// OrderRepository persists order snapshots, refunds, and the webhook dedup
// records. All multi-document invariants run inside Firestore transactions.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
	events   *pfirestore.BaseRepository[webhookEventDocument]
	stocks   *pfirestore.BaseRepository[stockDocument]
	carts    *pfirestore.BaseRepository[cartDocument]
	codes    *pfirestore.BaseRepository[discountDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil),
		events:   pfirestore.NewBaseRepository[webhookEventDocument](provider, webhookEventsCollection, nil, nil),
		stocks:   pfirestore.NewBaseRepository[stockDocument](provider, stockCollection, nil, nil),
		carts:    pfirestore.NewBaseRepository[cartDocument](provider, cartsCollection, nil, nil),
		codes:    pfirestore.NewBaseRepository[discountDocument](provider, discountsCollection, nil, nil),
	}, nil
}

// Create runs the atomic unit of checkout: reserve stock, insert the order, and
// clear the source cart in one transaction.
func (r *OrderRepository) Create(ctx context.Context, req repositories.OrderCreateRequest) (domain.Order, error) {
	orderID := strings.TrimSpace(req.Order.ID)
	if orderID == "" {
		return domain.Order{}, pfirestore.WrapError("orders.create", errors.New("order id is required"))
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		if _, err := tx.Get(orderRef); status.Code(err) != codes.NotFound {
			if err != nil {
				return err
			}
			return repositories.NewConflictError(repositories.ConflictErrorStatusMismatch, "order "+orderID+" already exists")
		}

		if err := applyStockOpTx(ctx, tx, r.stocks, req.Reserve, stockOpReserve, req.Now); err != nil {
			return err
		}
		if err := tx.Create(orderRef, encodeOrder(req.Order)); err != nil {
			return err
		}
		if cartID := strings.TrimSpace(req.ClearCartID); cartID != "" {
			cartRef, err := r.carts.DocumentRef(ctx, cartID)
			if err != nil {
				return err
			}
			if err := tx.Delete(cartRef); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, passthroughRepoError("orders.create", err)
	}
	return req.Order, nil
}

// FindByID loads an order snapshot.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.orders.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(doc.ID, doc.Data), nil
}

// FindByIntent resolves an order from its payment intent correlation id.
func (r *OrderRepository) FindByIntent(ctx context.Context, intentID string) (domain.Order, error) {
	intent := strings.TrimSpace(intentID)
	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("paymentIntentId", "==", intent).Limit(1)
	})
	if err != nil {
		return domain.Order{}, err
	}
	if len(docs) == 0 {
		return domain.Order{}, pfirestore.WrapError("orders.findByIntent", notFoundStatusError(fmt.Sprintf("no order for intent %s", intent)))
	}
	return decodeOrder(docs[0].ID, docs[0].Data), nil
}

// List pages orders newest first. The cursor is the last order id of the
// previous page.
func (r *OrderRepository) List(ctx context.Context, query repositories.OrderListQuery) (domain.CursorPage[domain.Order], error) {
	size := query.PageSize
	if size <= 0 {
		size = defaultListPageSize
	}

	var cursorDoc *orderDocument
	cursorID := strings.TrimSpace(query.Cursor)
	if cursorID != "" {
		doc, err := r.orders.Get(ctx, cursorID)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		cursorDoc = &doc.Data
	}

	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		if query.Status != "" {
			q = q.Where("status", "==", string(query.Status))
		}
		if customer := strings.TrimSpace(query.Customer); customer != "" {
			q = q.Where("customerRef", "==", customer)
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if cursorDoc != nil {
			q = q.StartAfter(cursorDoc.CreatedAt, cursorID)
		}
		return q.Limit(size + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	page := domain.CursorPage[domain.Order]{}
	for _, doc := range docs {
		if len(page.Items) == size {
			page.HasMore = true
			break
		}
		page.Items = append(page.Items, decodeOrder(doc.ID, doc.Data))
	}
	if page.HasMore {
		page.NextCursor = page.Items[len(page.Items)-1].ID
	}
	return page, nil
}

// UpdateStatus performs a compare-and-set transition with the inventory side
// effect applied in the same transaction.
func (r *OrderRepository) UpdateStatus(ctx context.Context, req repositories.OrderStatusUpdate) (domain.Order, error) {
	var updated domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, strings.TrimSpace(req.OrderID))
		if err != nil {
			return err
		}
		snap, err := tx.Get(orderRef)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("firestore orders decode %s: %w", req.OrderID, err)
		}
		if req.ExpectedStatus != "" && doc.Status != string(req.ExpectedStatus) {
			return repositories.NewConflictError(repositories.ConflictErrorStatusMismatch,
				"order "+snap.Ref.ID+" is "+doc.Status+", expected "+string(req.ExpectedStatus))
		}

		now := req.Now.UTC()
		var op stockOp
		switch req.StockEffect {
		case repositories.StockEffectRelease:
			op = stockOpRelease
		case repositories.StockEffectCommit:
			op = stockOpCommit
		}
		if err := applyStockOpTx(ctx, tx, r.stocks, stockLinesFromDocument(doc), op, now); err != nil {
			return err
		}

		doc.Status = string(req.TargetStatus)
		doc.UpdatedAt = now
		stampStatusTime(&doc, req.TargetStatus, now)
		if err := tx.Set(orderRef, doc); err != nil {
			return err
		}
		updated = decodeOrder(snap.Ref.ID, doc)
		return nil
	})
	if err != nil {
		return domain.Order{}, passthroughRepoError("orders.updateStatus", err)
	}
	return updated, nil
}

// SetPaymentIntent stores the gateway correlation fields on the order.
func (r *OrderRepository) SetPaymentIntent(ctx context.Context, orderID, provider, intentID string, now time.Time) (domain.Order, error) {
	var updated domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, strings.TrimSpace(orderID))
		if err != nil {
			return err
		}
		snap, err := tx.Get(orderRef)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("firestore orders decode %s: %w", orderID, err)
		}
		doc.PaymentProvider = strings.TrimSpace(provider)
		doc.PaymentIntentID = strings.TrimSpace(intentID)
		doc.UpdatedAt = now.UTC()
		if err := tx.Set(orderRef, doc); err != nil {
			return err
		}
		updated = decodeOrder(snap.Ref.ID, doc)
		return nil
	})
	if err != nil {
		return domain.Order{}, passthroughRepoError("orders.setPaymentIntent", err)
	}
	return updated, nil
}

// ApplyPaymentOutcome applies a verified gateway event. The event id is recorded
// in the same transaction, so redelivery is a no-op, and the discount usage
// counter moves at most once per order.
func (r *OrderRepository) ApplyPaymentOutcome(ctx context.Context, req repositories.PaymentOutcomeRequest) (repositories.PaymentOutcomeResult, error) {
	var result repositories.PaymentOutcomeResult
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		result = repositories.PaymentOutcomeResult{}

		orderRef, err := r.orders.DocumentRef(ctx, strings.TrimSpace(req.OrderID))
		if err != nil {
			return err
		}
		snap, err := tx.Get(orderRef)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("firestore orders decode %s: %w", req.OrderID, err)
		}

		eventID := strings.TrimSpace(req.EventID)
		var eventRef *firestore.DocumentRef
		if eventID != "" {
			eventRef, err = r.events.DocumentRef(ctx, eventID)
			if err != nil {
				return err
			}
			if _, err := tx.Get(eventRef); err == nil {
				result.Order = decodeOrder(snap.Ref.ID, doc)
				result.AlreadyProcessed = true
				return nil
			} else if status.Code(err) != codes.NotFound {
				return err
			}
		}

		now := req.Now.UTC()

		// Remaining reads must happen before the first write.
		var discountRef *firestore.DocumentRef
		var discountDoc discountDocument
		authorisesPending := req.Outcome == domain.PaymentOutcomeAuthorized && doc.Status == string(domain.OrderStatusPending)
		if authorisesPending {
			if codeID := strings.TrimSpace(doc.DiscountCodeRef); codeID != "" {
				discountRef, err = r.codes.DocumentRef(ctx, codeID)
				if err != nil {
					return err
				}
				discountSnap, err := tx.Get(discountRef)
				switch status.Code(err) {
				case codes.OK:
					if err := discountSnap.DataTo(&discountDoc); err != nil {
						return fmt.Errorf("firestore discountCodes decode %s: %w", codeID, err)
					}
				case codes.NotFound:
					discountRef = nil
				default:
					return err
				}
			}
		}

		switch req.Outcome {
		case domain.PaymentOutcomeAuthorized:
			if authorisesPending {
				doc.Status = string(domain.OrderStatusPaid)
				doc.PaidAt = &now
				doc.LastPaymentError = ""
				result.Transitioned = true
				if discountRef != nil {
					discountDoc.UsedCount++
					discountDoc.UpdatedAt = now
					if err := tx.Set(discountRef, discountDoc); err != nil {
						return err
					}
					result.UsageIncremented = true
				}
			}
		case domain.PaymentOutcomeFailed:
			doc.LastPaymentError = strings.TrimSpace(req.FailureMsg)
		}

		if intent := strings.TrimSpace(req.IntentID); intent != "" && doc.PaymentIntentID == "" {
			doc.PaymentIntentID = intent
		}
		doc.UpdatedAt = now

		if err := tx.Set(orderRef, doc); err != nil {
			return err
		}
		if eventRef != nil {
			if err := tx.Create(eventRef, webhookEventDocument{OrderID: snap.Ref.ID, ReceivedAt: now}); err != nil {
				return err
			}
		}
		result.Order = decodeOrder(snap.Ref.ID, doc)
		return nil
	})
	if err != nil {
		return repositories.PaymentOutcomeResult{}, passthroughRepoError("orders.applyPaymentOutcome", err)
	}
	return result, nil
}

// RecordRefund appends or updates one refund sub-ledger entry, optionally moving
// the order to REFUNDED in the same write.
func (r *OrderRepository) RecordRefund(ctx context.Context, req repositories.RefundRecordRequest) (domain.Order, error) {
	var updated domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, strings.TrimSpace(req.OrderID))
		if err != nil {
			return err
		}
		snap, err := tx.Get(orderRef)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("firestore orders decode %s: %w", req.OrderID, err)
		}

		now := req.Now.UTC()
		entry := encodeRefund(req.Refund)
		replaced := false
		for i, refund := range doc.Refunds {
			if refund.ID == entry.ID {
				doc.Refunds[i] = entry
				replaced = true
				break
			}
		}
		if !replaced {
			doc.Refunds = append(doc.Refunds, entry)
		}
		if req.MarkRefunded {
			doc.Status = string(domain.OrderStatusRefunded)
			doc.RefundedAt = &now
		}
		doc.UpdatedAt = now
		if err := tx.Set(orderRef, doc); err != nil {
			return err
		}
		updated = decodeOrder(snap.Ref.ID, doc)
		return nil
	})
	if err != nil {
		return domain.Order{}, passthroughRepoError("orders.recordRefund", err)
	}
	return updated, nil
}

// CountFinalizedWithDiscount counts orders that consumed the code and reached a
// paid-or-later status.
func (r *OrderRepository) CountFinalizedWithDiscount(ctx context.Context, discountID, customerRef string) (int64, error) {
	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("discountCodeRef", "==", strings.TrimSpace(discountID))
		if customer := strings.TrimSpace(customerRef); customer != "" {
			q = q.Where("customerRef", "==", customer)
		}
		return q
	})
	if err != nil {
		return 0, err
	}
	var count int64
	for _, doc := range docs {
		switch domain.OrderStatus(doc.Data.Status) {
		case domain.OrderStatusPaid, domain.OrderStatusShipped, domain.OrderStatusRefunded:
			count++
		}
	}
	return count, nil
}

func stockLinesFromDocument(doc orderDocument) []domain.StockLine {
	lines := make([]domain.StockLine, 0, len(doc.Lines))
	for _, line := range doc.Lines {
		if strings.TrimSpace(line.SKU) == "" || line.Quantity <= 0 {
			continue
		}
		lines = append(lines, domain.StockLine{SKU: line.SKU, Quantity: line.Quantity})
	}
	return lines
}

func stampStatusTime(doc *orderDocument, target domain.OrderStatus, now time.Time) {
	switch target {
	case domain.OrderStatusPaid:
		doc.PaidAt = &now
	case domain.OrderStatusShipped:
		doc.ShippedAt = &now
	case domain.OrderStatusCancelled:
		doc.CancelledAt = &now
	case domain.OrderStatusRefunded:
		doc.RefundedAt = &now
	}
}

func encodeOrder(order domain.Order) orderDocument {
	lines := make([]orderLineDocument, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, orderLineDocument{
			ID:         line.ID,
			ProductRef: line.ProductRef,
			VariantRef: line.VariantRef,
			SKU:        line.SKU,
			Title:      line.Title,
			Quantity:   line.Quantity,
			UnitPrice:  line.UnitPrice,
			Total:      line.Total,
		})
	}
	refunds := make([]orderRefundDocument, 0, len(order.Refunds))
	for _, refund := range order.Refunds {
		refunds = append(refunds, encodeRefund(refund))
	}
	return orderDocument{
		Number:           order.Number,
		Status:           string(order.Status),
		Email:            order.Email,
		CustomerRef:      order.CustomerRef,
		Currency:         order.Currency,
		Lines:            lines,
		Subtotal:         order.Subtotal,
		DiscountAmount:   order.DiscountAmount,
		Tax:              order.Tax,
		ShippingCost:     order.ShippingCost,
		Total:            order.Total,
		DiscountCodeRef:  order.DiscountCodeRef,
		DiscountCode:     order.DiscountCode,
		TaxName:          order.TaxName,
		ShippingName:     order.ShippingName,
		ShippingRateRef:  order.ShippingRateRef,
		ShippingAddress:  encodeAddress(order.ShippingAddress),
		BillingAddress:   encodeAddress(order.BillingAddress),
		PaymentProvider:  order.PaymentProvider,
		PaymentIntentID:  order.PaymentIntentID,
		LastPaymentError: order.LastPaymentError,
		Notes:            order.Notes,
		Refunds:          refunds,
		CreatedAt:        order.CreatedAt.UTC(),
		UpdatedAt:        order.UpdatedAt.UTC(),
		PaidAt:           order.PaidAt,
		ShippedAt:        order.ShippedAt,
		CancelledAt:      order.CancelledAt,
		RefundedAt:       order.RefundedAt,
	}
}

func decodeOrder(id string, doc orderDocument) domain.Order {
	lines := make([]domain.OrderLine, 0, len(doc.Lines))
	for _, line := range doc.Lines {
		lines = append(lines, domain.OrderLine{
			ID:         line.ID,
			ProductRef: line.ProductRef,
			VariantRef: line.VariantRef,
			SKU:        line.SKU,
			Title:      line.Title,
			Quantity:   line.Quantity,
			UnitPrice:  line.UnitPrice,
			Total:      line.Total,
		})
	}
	refunds := make([]domain.Refund, 0, len(doc.Refunds))
	for _, refund := range doc.Refunds {
		refunds = append(refunds, domain.Refund{
			ID:          refund.ID,
			OrderRef:    id,
			Amount:      refund.Amount,
			Reason:      refund.Reason,
			Status:      domain.RefundStatus(refund.Status),
			ProcessedBy: refund.ProcessedBy,
			ProcessedAt: refund.ProcessedAt,
			CreatedAt:   refund.CreatedAt,
			UpdatedAt:   refund.UpdatedAt,
		})
	}
	return domain.Order{
		ID:               id,
		Number:           doc.Number,
		Status:           domain.OrderStatus(doc.Status),
		Email:            doc.Email,
		CustomerRef:      doc.CustomerRef,
		Currency:         doc.Currency,
		Lines:            lines,
		Subtotal:         doc.Subtotal,
		DiscountAmount:   doc.DiscountAmount,
		Tax:              doc.Tax,
		ShippingCost:     doc.ShippingCost,
		Total:            doc.Total,
		DiscountCodeRef:  doc.DiscountCodeRef,
		DiscountCode:     doc.DiscountCode,
		TaxName:          doc.TaxName,
		ShippingName:     doc.ShippingName,
		ShippingRateRef:  doc.ShippingRateRef,
		ShippingAddress:  decodeAddress(doc.ShippingAddress),
		BillingAddress:   decodeAddress(doc.BillingAddress),
		PaymentProvider:  doc.PaymentProvider,
		PaymentIntentID:  doc.PaymentIntentID,
		LastPaymentError: doc.LastPaymentError,
		Notes:            doc.Notes,
		Refunds:          refunds,
		CreatedAt:        doc.CreatedAt,
		UpdatedAt:        doc.UpdatedAt,
		PaidAt:           doc.PaidAt,
		ShippedAt:        doc.ShippedAt,
		CancelledAt:      doc.CancelledAt,
		RefundedAt:       doc.RefundedAt,
	}
}

func encodeAddress(addr domain.Address) orderAddressDocument {
	return orderAddressDocument{
		Recipient:  addr.Recipient,
		Line1:      addr.Line1,
		Line2:      addr.Line2,
		City:       addr.City,
		Region:     addr.Region,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
		Phone:      addr.Phone,
	}
}

func decodeAddress(doc orderAddressDocument) domain.Address {
	return domain.Address{
		Recipient:  doc.Recipient,
		Line1:      doc.Line1,
		Line2:      doc.Line2,
		City:       doc.City,
		Region:     doc.Region,
		PostalCode: doc.PostalCode,
		Country:    doc.Country,
		Phone:      doc.Phone,
	}
}

func encodeRefund(refund domain.Refund) orderRefundDocument {
	return orderRefundDocument{
		ID:          refund.ID,
		Amount:      refund.Amount,
		Reason:      refund.Reason,
		Status:      string(refund.Status),
		ProcessedBy: refund.ProcessedBy,
		ProcessedAt: refund.ProcessedAt,
		CreatedAt:   refund.CreatedAt,
		UpdatedAt:   refund.UpdatedAt,
	}
}
