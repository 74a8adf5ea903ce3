package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"minimart/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory OrderStore whose Reserve is a conditional
// decrement and whose InTx restores all state when the callback fails,
// mirroring the rollback behavior of the real store.
type fakeStore struct {
	mu       sync.Mutex
	products map[int64]fakeProduct
	orders   []models.Order
	nextID   int64
	txCount  int
}

type fakeProduct struct {
	price int64
	stock int
}

func newFakeStore(products map[int64]fakeProduct) *fakeStore {
	return &fakeStore{products: products}
}

func (f *fakeStore) InTx(ctx context.Context, fn func(tx OrderTx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txCount++

	snapshot := make(map[int64]fakeProduct, len(f.products))
	for id, p := range f.products {
		snapshot[id] = p
	}
	ordersLen := len(f.orders)
	nextID := f.nextID

	if err := fn(&fakeTx{store: f}); err != nil {
		f.products = snapshot
		f.orders = f.orders[:ordersLen]
		f.nextID = nextID
		return err
	}
	return nil
}

func (f *fakeStore) OrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := []models.Order{}
	for i := len(f.orders) - 1; i >= 0; i-- {
		if f.orders[i].UserID == userID {
			out = append(out, f.orders[i])
		}
	}
	return out, nil
}

func (f *fakeStore) stock(id int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.products[id].stock
}

func (f *fakeStore) setPrice(id int64, price int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.products[id]
	p.price = price
	f.products[id] = p
}

type fakeTx struct {
	store *fakeStore
}

func (t *fakeTx) GetPrices(ctx context.Context, ids []int64) (map[int64]int64, error) {
	prices := make(map[int64]int64, len(ids))
	for _, id := range ids {
		if p, ok := t.store.products[id]; ok {
			prices[id] = p.price
		}
	}
	return prices, nil
}

func (t *fakeTx) Reserve(ctx context.Context, productID int64, qty int) (bool, error) {
	p, ok := t.store.products[productID]
	if !ok || p.stock < qty {
		return false, nil
	}
	p.stock -= qty
	t.store.products[productID] = p
	return true, nil
}

func (t *fakeTx) InsertOrder(ctx context.Context, order *models.Order) error {
	t.store.nextID++
	order.ID = t.store.nextID
	order.CreatedAt = time.Now()
	t.store.orders = append(t.store.orders, models.Order{
		ID:         order.ID,
		UserID:     order.UserID,
		CreatedAt:  order.CreatedAt,
		TotalCents: order.TotalCents,
	})
	return nil
}

func (t *fakeTx) InsertOrderItem(ctx context.Context, item *models.OrderItem) error {
	t.store.nextID++
	item.ID = t.store.nextID
	for i := range t.store.orders {
		if t.store.orders[i].ID == item.OrderID {
			t.store.orders[i].Items = append(t.store.orders[i].Items, *item)
			return nil
		}
	}
	return errors.New("order not found")
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*models.OrderCreatedEvent
	err    error
}

func (p *fakePublisher) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func TestCreateOrder(t *testing.T) {
	store := newFakeStore(map[int64]fakeProduct{
		1: {price: 1000, stock: 5},
		2: {price: 250, stock: 10},
	})
	pub := &fakePublisher{}
	svc := NewOrderService(store, pub)

	order, err := svc.CreateOrder(context.Background(), "alice", []OrderItemRequest{
		{ProductID: 1, Qty: 2},
		{ProductID: 2, Qty: 4},
	})
	require.NoError(t, err)

	assert.Equal(t, "alice", order.UserID)
	assert.Equal(t, int64(2*1000+4*250), order.TotalCents)
	assert.False(t, order.CreatedAt.IsZero())
	require.Len(t, order.Items, 2)
	assert.Equal(t, int64(1000), order.Items[0].PriceCents)
	assert.Equal(t, 2, order.Items[0].Qty)
	assert.Equal(t, int64(250), order.Items[1].PriceCents)

	assert.Equal(t, 3, store.stock(1))
	assert.Equal(t, 6, store.stock(2))

	require.Len(t, pub.events, 1)
	assert.Equal(t, order.ID, pub.events[0].OrderID)
	assert.Equal(t, order.TotalCents, pub.events[0].TotalCents)
}

func TestCreateOrderMergesDuplicateProducts(t *testing.T) {
	store := newFakeStore(map[int64]fakeProduct{
		1: {price: 300, stock: 10},
	})
	svc := NewOrderService(store, nil)

	order, err := svc.CreateOrder(context.Background(), "alice", []OrderItemRequest{
		{ProductID: 1, Qty: 2},
		{ProductID: 1, Qty: 3},
	})
	require.NoError(t, err)

	require.Len(t, order.Items, 1)
	assert.Equal(t, 5, order.Items[0].Qty)
	assert.Equal(t, int64(5*300), order.TotalCents)
	assert.Equal(t, 5, store.stock(1))
}

func TestCreateOrderValidation(t *testing.T) {
	store := newFakeStore(map[int64]fakeProduct{
		1: {price: 100, stock: 10},
	})
	svc := NewOrderService(store, nil)

	cases := []struct {
		name  string
		items []OrderItemRequest
	}{
		{"empty items", []OrderItemRequest{}},
		{"nil items", nil},
		{"zero qty", []OrderItemRequest{{ProductID: 1, Qty: 0}}},
		{"negative qty", []OrderItemRequest{{ProductID: 1, Qty: -2}}},
		{"zero product id", []OrderItemRequest{{ProductID: 0, Qty: 1}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateOrder(context.Background(), "alice", tc.items)

			var ve *ValidationError
			assert.ErrorAs(t, err, &ve)
		})
	}

	// Validation failures never reach the store.
	assert.Equal(t, 0, store.txCount)
	assert.Equal(t, 10, store.stock(1))
}

func TestCreateOrderUnknownProduct(t *testing.T) {
	store := newFakeStore(map[int64]fakeProduct{
		1: {price: 100, stock: 10},
	})
	svc := NewOrderService(store, nil)

	_, err := svc.CreateOrder(context.Background(), "alice", []OrderItemRequest{
		{ProductID: 7, Qty: 1},
		{ProductID: 1, Qty: 1},
		{ProductID: 3, Qty: 1},
	})

	var upe *UnknownProductError
	require.ErrorAs(t, err, &upe)
	assert.Equal(t, []int64{3, 7}, upe.IDs)
	assert.Equal(t, "unknown product(s): 3, 7", upe.Error())

	assert.Equal(t, 10, store.stock(1))
}

func TestCreateOrderInsufficientStockRollsBackEverything(t *testing.T) {
	store := newFakeStore(map[int64]fakeProduct{
		1: {price: 100, stock: 50},
		2: {price: 200, stock: 1},
	})
	pub := &fakePublisher{}
	svc := NewOrderService(store, pub)

	// Product 1 reserves fine; product 2 fails. The reservation already
	// applied to product 1 must not survive.
	_, err := svc.CreateOrder(context.Background(), "alice", []OrderItemRequest{
		{ProductID: 1, Qty: 5},
		{ProductID: 2, Qty: 2},
	})

	var ise *InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, int64(2), ise.ProductID)

	assert.Equal(t, 50, store.stock(1))
	assert.Equal(t, 1, store.stock(2))
	assert.Empty(t, pub.events)

	orders, err := store.OrdersByUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestConcurrentOrdersNeverOversell(t *testing.T) {
	store := newFakeStore(map[int64]fakeProduct{
		1: {price: 100, stock: 10},
	})
	svc := NewOrderService(store, nil)

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := svc.CreateOrder(context.Background(), "alice", []OrderItemRequest{
				{ProductID: 1, Qty: 6},
			})
			results <- err
		}()
	}

	var failures, successes int
	for i := 0; i < 2; i++ {
		if err := <-results; err != nil {
			var ise *InsufficientStockError
			require.ErrorAs(t, err, &ise)
			failures++
		} else {
			successes++
		}
	}

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, failures)
	assert.Equal(t, 4, store.stock(1))
}

func TestOrderPricesAreSnapshots(t *testing.T) {
	store := newFakeStore(map[int64]fakeProduct{
		1: {price: 500, stock: 10},
	})
	svc := NewOrderService(store, nil)

	order, err := svc.CreateOrder(context.Background(), "alice", []OrderItemRequest{
		{ProductID: 1, Qty: 2},
	})
	require.NoError(t, err)

	store.setPrice(1, 9999)

	listed, err := svc.ListOrdersForUser(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, order.TotalCents, listed[0].TotalCents)
	require.Len(t, listed[0].Items, 1)
	assert.Equal(t, int64(500), listed[0].Items[0].PriceCents)
}

func TestListOrdersForUser(t *testing.T) {
	store := newFakeStore(map[int64]fakeProduct{
		1: {price: 100, stock: 100},
	})
	svc := NewOrderService(store, nil)

	ctx := context.Background()
	first, err := svc.CreateOrder(ctx, "alice", []OrderItemRequest{{ProductID: 1, Qty: 1}})
	require.NoError(t, err)
	_, err = svc.CreateOrder(ctx, "bob", []OrderItemRequest{{ProductID: 1, Qty: 2}})
	require.NoError(t, err)
	second, err := svc.CreateOrder(ctx, "alice", []OrderItemRequest{{ProductID: 1, Qty: 3}})
	require.NoError(t, err)

	orders, err := svc.ListOrdersForUser(ctx, "alice")
	require.NoError(t, err)

	// Newest first, never another user's orders.
	require.Len(t, orders, 2)
	assert.Equal(t, second.ID, orders[0].ID)
	assert.Equal(t, first.ID, orders[1].ID)
	for _, o := range orders {
		assert.Equal(t, "alice", o.UserID)
	}
}

func TestPublishFailureDoesNotFailOrder(t *testing.T) {
	store := newFakeStore(map[int64]fakeProduct{
		1: {price: 100, stock: 10},
	})
	pub := &fakePublisher{err: errors.New("broker down")}
	svc := NewOrderService(store, pub)

	order, err := svc.CreateOrder(context.Background(), "alice", []OrderItemRequest{
		{ProductID: 1, Qty: 1},
	})
	require.NoError(t, err)
	assert.NotZero(t, order.ID)
	assert.Equal(t, 9, store.stock(1))
}
