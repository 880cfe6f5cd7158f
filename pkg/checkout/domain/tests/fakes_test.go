package tests

import (
	"context"
	"errors"
	"sync"

	"checkout/pkg/checkout/domain/model"
	"checkout/pkg/checkout/domain/service"
)

var errStorage = errors.New("storage unavailable")

type mockOrderRepository struct {
	mu     sync.Mutex
	nextID int64
	store  map[int64]*model.Order
	failed bool
}

func newMockOrderRepository() *mockOrderRepository {
	return &mockOrderRepository{store: make(map[int64]*model.Order)}
}

func (m *mockOrderRepository) Create(_ context.Context, order *model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failed {
		return errStorage
	}
	m.nextID++
	order.ID = m.nextID
	m.store[order.ID] = order
	return nil
}

func (m *mockOrderRepository) Find(_ context.Context, id int64) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if order, ok := m.store[id]; ok {
		return order, nil
	}
	return nil, model.ErrOrderNotFound
}

func (m *mockOrderRepository) FindByPhone(_ context.Context, phone string) ([]*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var orders []*model.Order
	for _, order := range m.store {
		if order.Phone == phone {
			orders = append(orders, order)
		}
	}
	return orders, nil
}

func (m *mockOrderRepository) UpdateStatus(_ context.Context, id int64, status model.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.store[id]
	if !ok {
		return model.ErrOrderNotFound
	}
	order.Status = status
	return nil
}

func (m *mockOrderRepository) status(id int64) model.OrderStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	if order, ok := m.store[id]; ok {
		return order.Status
	}
	return -1
}

func (m *mockOrderRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.store)
}

type mockEventDispatcher struct {
	mu     sync.Mutex
	events []service.Event
}

func (m *mockEventDispatcher) Dispatch(event service.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *mockEventDispatcher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}

func (m *mockEventDispatcher) All() []service.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]service.Event(nil), m.events...)
}

// fakeGateway scripts gateway behavior per call number (1-based).
type fakeGateway struct {
	mu            sync.Mutex
	initiateFn    func(call int, req model.PaymentRequest) (map[string]any, error)
	statusFn      func(call int) (map[string]any, error)
	initiateCalls int
	statusCalls   int
	lastRequest   model.PaymentRequest
}

func (g *fakeGateway) InitiatePush(_ context.Context, req model.PaymentRequest) (map[string]any, error) {
	g.mu.Lock()
	g.initiateCalls++
	call := g.initiateCalls
	g.lastRequest = req
	fn := g.initiateFn
	g.mu.Unlock()

	if fn == nil {
		return map[string]any{"CheckoutRequestID": "ws_CO_1"}, nil
	}
	return fn(call, req)
}

func (g *fakeGateway) QueryStatus(_ context.Context, _ string) (map[string]any, error) {
	g.mu.Lock()
	g.statusCalls++
	call := g.statusCalls
	fn := g.statusFn
	g.mu.Unlock()

	if fn == nil {
		return map[string]any{"status": "pending"}, nil
	}
	return fn(call)
}

func (g *fakeGateway) queries() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.statusCalls
}

func (g *fakeGateway) request() model.PaymentRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastRequest
}

type mockCartClearer struct {
	mu    sync.Mutex
	calls int
}

func (m *mockCartClearer) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
}

func (m *mockCartClearer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
