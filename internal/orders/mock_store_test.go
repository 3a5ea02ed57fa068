package orders

import (
	"context"
	"sort"
	"sync"

	"github.com/pcforge/storefront/internal/payments"
	"github.com/pcforge/storefront/pkg/models"
)

// mockStore is an in-memory Store with the same transactional contract as
// the Postgres implementation: a failing InTx callback leaves no trace.
type mockStore struct {
	mu        sync.Mutex
	products  map[string]*models.Product
	orders    map[string]*models.Order
	addresses map[string]string // address id -> owning user id
}

func newMockStore() *mockStore {
	return &mockStore{
		products:  make(map[string]*models.Product),
		orders:    make(map[string]*models.Order),
		addresses: make(map[string]string),
	}
}

func (s *mockStore) InTx(ctx context.Context, fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	productSnapshot := make(map[string]*models.Product, len(s.products))
	for id, p := range s.products {
		c := *p
		productSnapshot[id] = &c
	}
	orderSnapshot := make(map[string]*models.Order, len(s.orders))
	for id, o := range s.orders {
		orderSnapshot[id] = copyOrder(o)
	}

	if err := fn(&mockTx{store: s}); err != nil {
		s.products = productSnapshot
		s.orders = orderSnapshot
		return err
	}
	return nil
}

func (s *mockStore) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyOrder(order), nil
}

func (s *mockStore) ListOrders(ctx context.Context) ([]*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Order
	for _, o := range s.orders {
		out = append(out, copyOrder(o))
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *mockStore) ListOrdersByUser(ctx context.Context, userID string) ([]*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, copyOrder(o))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *mockStore) AddressOwnedBy(ctx context.Context, addressID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addresses[addressID] == userID, nil
}

func (s *mockStore) stock(productID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[productID].Stock
}

type mockTx struct {
	store *mockStore
}

func (t *mockTx) ProductForUpdate(ctx context.Context, productID string) (*models.Product, error) {
	p, ok := t.store.products[productID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *p
	return &c, nil
}

func (t *mockTx) AdjustStock(ctx context.Context, productID string, delta int) error {
	p, ok := t.store.products[productID]
	if !ok || p.Stock+delta < 0 {
		return ErrInsufficientStock
	}
	p.Stock += delta
	return nil
}

func (t *mockTx) InsertOrder(ctx context.Context, order *models.Order) error {
	t.store.orders[order.ID] = copyOrder(order)
	return nil
}

func (t *mockTx) OrderForUpdate(ctx context.Context, orderID string) (*models.Order, error) {
	order, ok := t.store.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyOrder(order), nil
}

func (t *mockTx) UpdateOrder(ctx context.Context, order *models.Order) error {
	if _, ok := t.store.orders[order.ID]; !ok {
		return ErrNotFound
	}
	t.store.orders[order.ID] = copyOrder(order)
	return nil
}

func copyOrder(o *models.Order) *models.Order {
	c := *o
	c.Items = append([]models.OrderItem(nil), o.Items...)
	return &c
}

func sortNewestFirst(orders []*models.Order) {
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}

// mockGateway hands out deterministic handles, or fails when down.
type mockGateway struct {
	mu    sync.Mutex
	down  bool
	calls []float64
}

func (g *mockGateway) CreatePaymentOrder(ctx context.Context, amount float64, currency, receipt string) (*payments.GatewayOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.down {
		return nil, payments.ErrUnavailable
	}
	g.calls = append(g.calls, amount)
	return &payments.GatewayOrder{
		GatewayOrderID: "gw_" + receipt,
		Amount:         amount,
		Currency:       currency,
	}, nil
}

// mockPublisher records published events by kind.
type mockPublisher struct {
	mu        sync.Mutex
	created   []string
	paid      []string
	cancelled []string
	changed   []string
}

func (p *mockPublisher) OrderCreated(o *models.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, o.ID)
	return nil
}

func (p *mockPublisher) OrderPaid(o *models.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paid = append(p.paid, o.ID)
	return nil
}

func (p *mockPublisher) OrderCancelled(o *models.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = append(p.cancelled, o.ID)
	return nil
}

func (p *mockPublisher) OrderStatusChanged(o *models.Order, previous models.OrderStatus) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changed = append(p.changed, o.ID)
	return nil
}
