package service

import (
	"context"

	"minimart/internal/models"
	"minimart/internal/util"

	"go.uber.org/zap"
)

// ProductStore is the persistence surface the catalog service depends on.
type ProductStore interface {
	ListProducts(ctx context.Context) ([]models.Product, error)
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	CreateProduct(ctx context.Context, p *models.Product) error
	UpdateProduct(ctx context.Context, p *models.Product) error
	DeleteProduct(ctx context.Context, id int64) error
}

// ProductCache caches product rows keyed by ID. A miss is (nil, nil).
type ProductCache interface {
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	SetProduct(ctx context.Context, p *models.Product) error
	DeleteProduct(ctx context.Context, id int64) error
}

// ProductRequest is the create/update payload for a product.
type ProductRequest struct {
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	Stock      int    `json:"stock"`
}

func (r *ProductRequest) validate() error {
	if r.Name == "" {
		return &ValidationError{Reason: "name must not be empty"}
	}
	if r.PriceCents < 0 {
		return &ValidationError{Reason: "price_cents must be >= 0"}
	}
	if r.Stock < 0 {
		return &ValidationError{Reason: "stock must be >= 0"}
	}
	return nil
}

// CatalogService handles product catalog maintenance with a
// read-through cache on single-product lookups.
type CatalogService struct {
	store  ProductStore
	cache  ProductCache
	logger *zap.Logger
}

// NewCatalogService creates a new catalog service. cache may be nil.
func NewCatalogService(store ProductStore, cache ProductCache) *CatalogService {
	return &CatalogService{
		store:  store,
		cache:  cache,
		logger: util.GetLogger(),
	}
}

// ListProducts returns all products ordered by ID.
func (s *CatalogService) ListProducts(ctx context.Context) ([]models.Product, error) {
	return s.store.ListProducts(ctx)
}

// GetProduct returns a product by ID, serving from cache when possible.
func (s *CatalogService) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	if s.cache != nil {
		p, err := s.cache.GetProduct(ctx, id)
		if err != nil {
			s.logger.Warn("Product cache read failed", zap.Int64("product_id", id), zap.Error(err))
		} else if p != nil {
			util.CatalogCacheHits.Inc()
			return p, nil
		} else {
			util.CatalogCacheMisses.Inc()
		}
	}

	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetProduct(ctx, p); err != nil {
			s.logger.Warn("Product cache write failed", zap.Int64("product_id", id), zap.Error(err))
		}
	}
	return p, nil
}

// CreateProduct validates and persists a new product.
func (s *CatalogService) CreateProduct(ctx context.Context, req *ProductRequest) (*models.Product, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	p := &models.Product{
		Name:       req.Name,
		PriceCents: req.PriceCents,
		Stock:      req.Stock,
	}
	if err := s.store.CreateProduct(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Info("Product created", zap.Int64("product_id", p.ID), zap.String("name", p.Name))
	return p, nil
}

// UpdateProduct replaces a product's fields and invalidates its cache entry.
func (s *CatalogService) UpdateProduct(ctx context.Context, id int64, req *ProductRequest) (*models.Product, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	p := &models.Product{
		ID:         id,
		Name:       req.Name,
		PriceCents: req.PriceCents,
		Stock:      req.Stock,
	}
	if err := s.store.UpdateProduct(ctx, p); err != nil {
		return nil, err
	}

	s.invalidate(ctx, id)
	return p, nil
}

// DeleteProduct removes a product and invalidates its cache entry.
func (s *CatalogService) DeleteProduct(ctx context.Context, id int64) error {
	if err := s.store.DeleteProduct(ctx, id); err != nil {
		return err
	}

	s.invalidate(ctx, id)
	return nil
}

func (s *CatalogService) invalidate(ctx context.Context, id int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteProduct(ctx, id); err != nil {
		s.logger.Warn("Product cache invalidation failed", zap.Int64("product_id", id), zap.Error(err))
	}
}
