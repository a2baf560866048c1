package oms

import "sync"

// OrderLocks сериализует операции над одним ордером: два конкурентных
// перехода статуса одного ордера невозможны, операции над разными
// ордерами идут параллельно. Запись живёт пока секцию кто-то держит или
// ждёт; последний Unlock убирает её из карты, история ордеров не
// накапливается в памяти.
type OrderLocks struct {
	mu    sync.Mutex
	locks map[int64]*orderLock
}

type orderLock struct {
	mu   sync.Mutex
	refs int
}

func NewOrderLocks() *OrderLocks {
	return &OrderLocks{
		locks: make(map[int64]*orderLock),
	}
}

// Lock захватывает эксклюзивную секцию ордера
func (ol *OrderLocks) Lock(orderID int64) {
	ol.mu.Lock()
	l, ok := ol.locks[orderID]
	if !ok {
		l = &orderLock{}
		ol.locks[orderID] = l
	}
	l.refs++
	ol.mu.Unlock()

	l.mu.Lock()
}

// Unlock освобождает эксклюзивную секцию ордера
func (ol *OrderLocks) Unlock(orderID int64) {
	ol.mu.Lock()
	l, ok := ol.locks[orderID]
	if !ok {
		ol.mu.Unlock()
		panic("oms: unlock of unheld order lock")
	}
	l.refs--
	if l.refs == 0 {
		delete(ol.locks, orderID)
	}
	ol.mu.Unlock()

	l.mu.Unlock()
}

// Len возвращает число ордеров с удерживаемой или ожидаемой секцией
func (ol *OrderLocks) Len() int {
	ol.mu.Lock()
	defer ol.mu.Unlock()
	return len(ol.locks)
}
