package models

import "time"

// Product is a row in the catalog-owned products table. The order
// workflow only ever reads price_cents and decrements stock; it never
// holds a Product beyond the request that fetched it.
type Product struct {
	ID         int64  `db:"id" json:"id"`
	Name       string `db:"name" json:"name"`
	PriceCents int64  `db:"price_cents" json:"price_cents"`
	Stock      int    `db:"stock" json:"stock"`
}

// Order is a customer order. Immutable after creation.
type Order struct {
	ID         int64       `db:"id" json:"id"`
	UserID     string      `db:"user_id" json:"user_id"`
	CreatedAt  time.Time   `db:"created_at" json:"created_at"`
	TotalCents int64       `db:"total_cents" json:"total_cents"`
	Items      []OrderItem `db:"-" json:"items"`
}

// OrderItem is one line of an order. PriceCents is the product price
// snapshotted at order time; later catalog price changes never touch it.
type OrderItem struct {
	ID         int64 `db:"id" json:"-"`
	OrderID    int64 `db:"order_id" json:"-"`
	ProductID  int64 `db:"product_id" json:"product_id"`
	Qty        int   `db:"qty" json:"qty"`
	PriceCents int64 `db:"price_cents" json:"price_cents"`
}

// ProcessedEvent marks a consumed broker event for idempotency.
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
