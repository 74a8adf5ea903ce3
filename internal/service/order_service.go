package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"minimart/internal/models"
	"minimart/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Accessor is the sole gateway between the order workflow and
// catalog-owned product data. Both methods run inside the enclosing
// checkout transaction.
type Accessor interface {
	// GetPrices returns price_cents for every requested ID that exists;
	// missing IDs are simply absent from the result.
	GetPrices(ctx context.Context, ids []int64) (map[int64]int64, error)

	// Reserve atomically decrements stock by qty where stock >= qty and
	// reports whether exactly one row was affected. It must be a single
	// conditional statement against the store, never a read-then-write.
	Reserve(ctx context.Context, productID int64, qty int) (bool, error)
}

// OrderTx is one atomic checkout transaction: accessor operations plus
// order writes. Everything either commits together or not at all.
type OrderTx interface {
	Accessor
	InsertOrder(ctx context.Context, order *models.Order) error
	InsertOrderItem(ctx context.Context, item *models.OrderItem) error
}

// OrderStore is the persistence surface the order service depends on.
type OrderStore interface {
	// InTx runs fn inside a transaction, committing if fn returns nil
	// and rolling back otherwise. The returned error is fn's error.
	InTx(ctx context.Context, fn func(tx OrderTx) error) error

	// OrdersByUser returns the user's orders newest first, items attached.
	OrdersByUser(ctx context.Context, userID string) ([]models.Order, error)
}

// OrderEventPublisher publishes domain events after commit.
type OrderEventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
}

// OrderItemRequest is one line of a checkout request.
type OrderItemRequest struct {
	ProductID int64 `json:"product_id"`
	Qty       int   `json:"qty"`
}

// OrderService handles the order-creation workflow and order queries.
type OrderService struct {
	store     OrderStore
	publisher OrderEventPublisher
	logger    *zap.Logger
}

// NewOrderService creates a new order service. publisher may be nil,
// in which case no events are emitted.
func NewOrderService(store OrderStore, publisher OrderEventPublisher) *OrderService {
	return &OrderService{
		store:     store,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// CreateOrder turns a raw list of (product_id, qty) pairs into a
// persisted order, or fails with no partial state. Duplicate product
// IDs are merged by summing quantities. Price lookup, stock
// reservation and order insertion all happen in one transaction;
// prices stored on the items are the ones read inside it.
func (s *OrderService) CreateOrder(ctx context.Context, userID string, items []OrderItemRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	combined, err := normalizeItems(items)
	if err != nil {
		util.OrderCreateFailures.WithLabelValues("invalid_items").Inc()
		return nil, err
	}

	// Ascending product-ID order keeps reservation row locks in a
	// consistent order across concurrent checkouts.
	ids := make([]int64, 0, len(combined))
	for id := range combined {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var order *models.Order
	err = s.store.InTx(ctx, func(tx OrderTx) error {
		prices, err := tx.GetPrices(ctx, ids)
		if err != nil {
			return fmt.Errorf("fetch prices: %w", err)
		}
		if len(prices) != len(ids) {
			missing := make([]int64, 0, len(ids)-len(prices))
			for _, id := range ids {
				if _, ok := prices[id]; !ok {
					missing = append(missing, id)
				}
			}
			return &UnknownProductError{IDs: missing}
		}

		for _, id := range ids {
			ok, err := tx.Reserve(ctx, id, combined[id])
			if err != nil {
				return fmt.Errorf("reserve stock for product %d: %w", id, err)
			}
			if !ok {
				return &InsufficientStockError{ProductID: id}
			}
		}

		var total int64
		for _, id := range ids {
			total += prices[id] * int64(combined[id])
		}

		o := &models.Order{UserID: userID, TotalCents: total}
		if err := tx.InsertOrder(ctx, o); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		for _, id := range ids {
			item := models.OrderItem{
				OrderID:    o.ID,
				ProductID:  id,
				Qty:        combined[id],
				PriceCents: prices[id],
			}
			if err := tx.InsertOrderItem(ctx, &item); err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
			o.Items = append(o.Items, item)
		}

		order = o
		return nil
	})
	if err != nil {
		util.OrderCreateFailures.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.String("user_id", order.UserID),
		zap.Int64("total_cents", order.TotalCents),
		zap.Int("items", len(order.Items)))

	s.publishOrderCreated(ctx, order)

	return order, nil
}

// ListOrdersForUser returns the user's orders newest first, each with
// its items attached. Read-only; totals and prices come straight from
// the rows, never recomputed.
func (s *OrderService) ListOrdersForUser(ctx context.Context, userID string) ([]models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListOrdersForUser")
	defer span.End()

	return s.store.OrdersByUser(ctx, userID)
}

// publishOrderCreated emits the post-commit event. Failures are logged,
// never surfaced: the order is already committed.
func (s *OrderService) publishOrderCreated(ctx context.Context, order *models.Order) {
	if s.publisher == nil {
		return
	}

	items := make([]models.OrderItemData, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, models.OrderItemData{
			ProductID:  it.ProductID,
			Qty:        it.Qty,
			PriceCents: it.PriceCents,
		})
	}

	event := &models.OrderCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCreated,
			Timestamp: time.Now(),
		},
		OrderID:    order.ID,
		UserID:     order.UserID,
		TotalCents: order.TotalCents,
		Items:      items,
	}

	if err := s.publisher.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
	}
}

// normalizeItems validates the raw request and merges entries sharing a
// product ID by summing quantities.
func normalizeItems(items []OrderItemRequest) (map[int64]int, error) {
	if len(items) == 0 {
		return nil, &ValidationError{Reason: "items must not be empty"}
	}

	combined := make(map[int64]int, len(items))
	for _, it := range items {
		if it.ProductID < 1 {
			return nil, &ValidationError{Reason: fmt.Sprintf("product_id must be >= 1, got %d", it.ProductID)}
		}
		if it.Qty < 1 {
			return nil, &ValidationError{Reason: fmt.Sprintf("qty must be >= 1, got %d", it.Qty)}
		}
		combined[it.ProductID] += it.Qty
	}
	return combined, nil
}

func failureReason(err error) string {
	var upe *UnknownProductError
	var ise *InsufficientStockError
	switch {
	case errors.As(err, &upe):
		return "missing_product"
	case errors.As(err, &ise):
		return "insufficient_stock"
	default:
		return "store_error"
	}
}
