package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"minimart/internal/models"
	"minimart/internal/service"

	"github.com/jmoiron/sqlx"
)

// ListProducts retrieves all products ordered by ID
func (s *Store) ListProducts(ctx context.Context) ([]models.Product, error) {
	products := []models.Product{}
	err := s.db.SelectContext(ctx, &products,
		"SELECT id, name, price_cents, stock FROM catalog.products ORDER BY id")
	return products, err
}

// GetProduct retrieves a product by ID
func (s *Store) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	var p models.Product
	err := s.db.GetContext(ctx, &p,
		"SELECT id, name, price_cents, stock FROM catalog.products WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, service.ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateProduct inserts a product and fills in its generated ID
func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	query := `
		INSERT INTO catalog.products (name, price_cents, stock)
		VALUES ($1, $2, $3)
		RETURNING id`

	return s.db.GetContext(ctx, &p.ID, query, p.Name, p.PriceCents, p.Stock)
}

// UpdateProduct replaces all mutable fields of a product
func (s *Store) UpdateProduct(ctx context.Context, p *models.Product) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE catalog.products SET name = $1, price_cents = $2, stock = $3 WHERE id = $4",
		p.Name, p.PriceCents, p.Stock, p.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return service.ErrProductNotFound
	}
	return nil
}

// DeleteProduct removes a product by ID
func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM catalog.products WHERE id = $1", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return service.ErrProductNotFound
	}
	return nil
}

// GetPrices reads current prices for the given product IDs inside the
// checkout transaction. IDs that do not exist are omitted from the
// result; empty input returns an empty map without a round trip.
func (t *Tx) GetPrices(ctx context.Context, ids []int64) (map[int64]int64, error) {
	prices := make(map[int64]int64, len(ids))
	if len(ids) == 0 {
		return prices, nil
	}

	query, args, err := sqlx.In("SELECT id, price_cents FROM catalog.products WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = t.tx.Rebind(query)

	rows := []struct {
		ID         int64 `db:"id"`
		PriceCents int64 `db:"price_cents"`
	}{}
	if err := t.tx.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to fetch prices: %w", err)
	}

	for _, r := range rows {
		prices[r.ID] = r.PriceCents
	}
	return prices, nil
}

// Reserve attempts stock -= qty conditioned on stock >= qty as a single
// statement. The row lock taken by the UPDATE is what serializes
// concurrent checkouts on the same product; rows affected != 1 means
// insufficient stock.
func (t *Tx) Reserve(ctx context.Context, productID int64, qty int) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		"UPDATE catalog.products SET stock = stock - $1 WHERE id = $2 AND stock >= $1",
		qty, productID)
	if err != nil {
		return false, fmt.Errorf("failed to reserve stock: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
