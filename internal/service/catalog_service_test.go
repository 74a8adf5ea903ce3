package service

import (
	"context"
	"testing"

	"minimart/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProductStore struct {
	products map[int64]models.Product
	nextID   int64
	gets     int
}

func (f *fakeProductStore) ListProducts(ctx context.Context) ([]models.Product, error) {
	out := []models.Product{}
	for _, p := range f.products {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeProductStore) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	f.gets++
	p, ok := f.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	return &p, nil
}

func (f *fakeProductStore) CreateProduct(ctx context.Context, p *models.Product) error {
	f.nextID++
	p.ID = f.nextID
	f.products[p.ID] = *p
	return nil
}

func (f *fakeProductStore) UpdateProduct(ctx context.Context, p *models.Product) error {
	if _, ok := f.products[p.ID]; !ok {
		return ErrProductNotFound
	}
	f.products[p.ID] = *p
	return nil
}

func (f *fakeProductStore) DeleteProduct(ctx context.Context, id int64) error {
	if _, ok := f.products[id]; !ok {
		return ErrProductNotFound
	}
	delete(f.products, id)
	return nil
}

type fakeCache struct {
	entries map[int64]models.Product
	sets    int
	deletes int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[int64]models.Product{}}
}

func (f *fakeCache) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	p, ok := f.entries[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f *fakeCache) SetProduct(ctx context.Context, p *models.Product) error {
	f.sets++
	f.entries[p.ID] = *p
	return nil
}

func (f *fakeCache) DeleteProduct(ctx context.Context, id int64) error {
	f.deletes++
	delete(f.entries, id)
	return nil
}

func TestGetProductReadThrough(t *testing.T) {
	store := &fakeProductStore{products: map[int64]models.Product{}}
	cache := newFakeCache()
	svc := NewCatalogService(store, cache)

	ctx := context.Background()
	created, err := svc.CreateProduct(ctx, &ProductRequest{Name: "mug", PriceCents: 900, Stock: 3})
	require.NoError(t, err)

	// First read misses cache and fills it; second read skips the store.
	p, err := svc.GetProduct(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "mug", p.Name)
	assert.Equal(t, 1, store.gets)
	assert.Equal(t, 1, cache.sets)

	_, err = svc.GetProduct(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, store.gets)
}

func TestUpdateProductInvalidatesCache(t *testing.T) {
	store := &fakeProductStore{products: map[int64]models.Product{}}
	cache := newFakeCache()
	svc := NewCatalogService(store, cache)

	ctx := context.Background()
	created, err := svc.CreateProduct(ctx, &ProductRequest{Name: "mug", PriceCents: 900, Stock: 3})
	require.NoError(t, err)

	_, err = svc.GetProduct(ctx, created.ID)
	require.NoError(t, err)

	updated, err := svc.UpdateProduct(ctx, created.ID, &ProductRequest{Name: "mug", PriceCents: 1100, Stock: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(1100), updated.PriceCents)
	assert.Equal(t, 1, cache.deletes)

	p, err := svc.GetProduct(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1100), p.PriceCents)
}

func TestProductValidation(t *testing.T) {
	store := &fakeProductStore{products: map[int64]models.Product{}}
	svc := NewCatalogService(store, nil)

	ctx := context.Background()
	cases := []ProductRequest{
		{Name: "", PriceCents: 100, Stock: 1},
		{Name: "mug", PriceCents: -1, Stock: 1},
		{Name: "mug", PriceCents: 100, Stock: -1},
	}
	for _, req := range cases {
		_, err := svc.CreateProduct(ctx, &req)

		var ve *ValidationError
		assert.ErrorAs(t, err, &ve)
	}
	assert.Empty(t, store.products)
}

func TestDeleteMissingProduct(t *testing.T) {
	store := &fakeProductStore{products: map[int64]models.Product{}}
	svc := NewCatalogService(store, nil)

	err := svc.DeleteProduct(context.Background(), 42)
	assert.ErrorIs(t, err, ErrProductNotFound)
}
