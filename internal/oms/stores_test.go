package oms

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"oms/internal/models"
)

// memOrderStore - потокобезопасное хранилище ордеров в памяти для тестов
type memOrderStore struct {
	mu     sync.Mutex
	nextID int64
	orders map[int64]*models.Order
}

func newMemOrderStore() *memOrderStore {
	return &memOrderStore{orders: make(map[int64]*models.Order)}
}

func (s *memOrderStore) Put(order *models.Order) *models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	if order.ID == 0 {
		s.nextID++
		order.ID = s.nextID
	}
	clone := *order
	s.orders[order.ID] = &clone
	return order
}

func (s *memOrderStore) GetByID(ctx context.Context, id int64) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d not found", id)
	}
	clone := *o
	return &clone, nil
}

func (s *memOrderStore) UpdateExecution(ctx context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[order.ID]; !ok {
		return fmt.Errorf("order %d not found", order.ID)
	}
	clone := *order
	s.orders[order.ID] = &clone
	return nil
}

func (s *memOrderStore) ListActive(ctx context.Context) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Order
	for _, o := range s.orders {
		if o.IsActive() {
			out = append(out, *o)
		}
	}
	return out, nil
}

// memFillStore - хранилище исполнений в памяти для тестов
type memFillStore struct {
	mu     sync.Mutex
	nextID int64
	fills  []models.Fill
}

func newMemFillStore() *memFillStore {
	return &memFillStore{}
}

func (s *memFillStore) Create(ctx context.Context, fill *models.Fill) (*models.Fill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	fill.ID = s.nextID
	s.fills = append(s.fills, *fill)
	return fill, nil
}

func (s *memFillStore) ExistsByExternalID(ctx context.Context, orderID int64, externalFillID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.fills {
		if f.OrderID == orderID && f.ExternalFillID == externalFillID {
			return true, nil
		}
	}
	return false, nil
}

func (s *memFillStore) SumQuantityByOrder(ctx context.Context, orderID int64) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := decimal.Zero
	for _, f := range s.fills {
		if f.OrderID == orderID {
			sum = sum.Add(f.Quantity)
		}
	}
	return sum, nil
}

func (s *memFillStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fills)
}

var (
	_ OrderStore = (*memOrderStore)(nil)
	_ FillStore  = (*memFillStore)(nil)
)
