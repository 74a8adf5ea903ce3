package store

import (
	"context"

	"minimart/internal/models"

	"github.com/jmoiron/sqlx"
)

// InsertOrder creates the order row and fills in its generated ID and
// creation timestamp.
func (t *Tx) InsertOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders.orders (user_id, total_cents)
		VALUES ($1, $2)
		RETURNING id, created_at`

	return t.tx.QueryRowxContext(ctx, query, order.UserID, order.TotalCents).
		Scan(&order.ID, &order.CreatedAt)
}

// InsertOrderItem creates one order line with its snapshotted price.
func (t *Tx) InsertOrderItem(ctx context.Context, item *models.OrderItem) error {
	query := `
		INSERT INTO orders.order_items (order_id, product_id, qty, price_cents)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	return t.tx.GetContext(ctx, &item.ID, query,
		item.OrderID, item.ProductID, item.Qty, item.PriceCents)
}

// OrdersByUser retrieves a user's orders newest first with their items
// attached. Items are fetched in one IN query and grouped in memory.
func (s *Store) OrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	orders := []models.Order{}
	err := s.db.SelectContext(ctx, &orders,
		"SELECT id, user_id, created_at, total_cents FROM orders.orders WHERE user_id = $1 ORDER BY id DESC",
		userID)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return orders, nil
	}

	orderIDs := make([]int64, len(orders))
	byID := make(map[int64]*models.Order, len(orders))
	for i := range orders {
		orderIDs[i] = orders[i].ID
		byID[orders[i].ID] = &orders[i]
	}

	query, args, err := sqlx.In(
		"SELECT id, order_id, product_id, qty, price_cents FROM orders.order_items WHERE order_id IN (?) ORDER BY id",
		orderIDs)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	items := []models.OrderItem{}
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, err
	}

	for _, item := range items {
		if o, ok := byID[item.OrderID]; ok {
			o.Items = append(o.Items, item)
		}
	}
	return orders, nil
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM orders.processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO orders.processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
