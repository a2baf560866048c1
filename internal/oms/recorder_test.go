package oms

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"oms/internal/models"
)

func acceptedOrder(t *testing.T, store *memOrderStore) *models.Order {
	t.Helper()
	order, err := NewOrder(limitSpec())
	if err != nil {
		t.Fatalf("Создание ордера: %v", err)
	}
	Transition(order, models.StatusSubmitted)
	Transition(order, models.StatusAccepted)
	order.Venue = "mock"
	order.ExternalOrderID = "mock-1"
	return store.Put(order)
}

func report(externalFillID, qty, price string) ExecutionReport {
	return ExecutionReport{
		Venue:          "mock",
		ExternalRef:    "mock-1",
		ExternalFillID: externalFillID,
		Quantity:       d(qty),
		Price:          d(price),
		Commission:     d("0.01"),
		Liquidity:      models.LiquidityTaker,
		FillTime:       time.Now().UTC().Add(-time.Second),
	}
}

func TestIngest_RecordsFill(t *testing.T) {
	orders := newMemOrderStore()
	fills := newMemFillStore()
	rec := NewFillRecorder(orders, fills, nil, nil)
	order := acceptedOrder(t, orders)

	fill, err := rec.Ingest(context.Background(), order.ID, report("f-1", "4", "99"))
	if err != nil {
		t.Fatalf("Неожиданная ошибка: %v", err)
	}
	if fill == nil {
		t.Fatal("Исполнение должно быть создано")
	}
	if !fill.Value.Equal(d("396")) {
		t.Errorf("Стоимость должна быть 4*99=396, получена %s", fill.Value)
	}
	if fill.UUID == "" {
		t.Error("UUID исполнения должен быть сгенерирован")
	}

	stored, _ := orders.GetByID(context.Background(), order.ID)
	if stored.Status != models.StatusPartiallyFilled {
		t.Errorf("Ордер должен стать partially_filled, получен %s", stored.Status)
	}
	if !stored.FilledQuantity.Equal(d("4")) {
		t.Errorf("Исполнено должно быть 4, получено %s", stored.FilledQuantity)
	}
}

// Повторный отчёт с тем же external_fill_id не создаёт второго исполнения
// и не трогает ордер.
func TestIngest_Idempotent(t *testing.T) {
	orders := newMemOrderStore()
	fills := newMemFillStore()
	rec := NewFillRecorder(orders, fills, nil, nil)
	order := acceptedOrder(t, orders)

	if _, err := rec.Ingest(context.Background(), order.ID, report("f-1", "4", "99")); err != nil {
		t.Fatalf("Первый приём: %v", err)
	}
	dup, err := rec.Ingest(context.Background(), order.ID, report("f-1", "4", "99"))
	if err != nil {
		t.Fatalf("Дубликат не должен быть ошибкой: %v", err)
	}
	if dup != nil {
		t.Error("Дубликат не должен создавать исполнение")
	}
	if fills.Count() != 1 {
		t.Errorf("Должно храниться одно исполнение, найдено %d", fills.Count())
	}

	stored, _ := orders.GetByID(context.Background(), order.ID)
	if !stored.FilledQuantity.Equal(d("4")) {
		t.Errorf("Исполнено должно остаться 4, получено %s", stored.FilledQuantity)
	}
}

// Дубликат отлавливается и по хранилищу: новый приёмник без кеша в памяти
// видит уже записанное исполнение.
func TestIngest_DuplicateAcrossRestart(t *testing.T) {
	orders := newMemOrderStore()
	fills := newMemFillStore()
	order := acceptedOrder(t, orders)

	rec1 := NewFillRecorder(orders, fills, nil, nil)
	if _, err := rec1.Ingest(context.Background(), order.ID, report("f-1", "4", "99")); err != nil {
		t.Fatalf("Первый приём: %v", err)
	}

	rec2 := NewFillRecorder(orders, fills, nil, nil)
	dup, err := rec2.Ingest(context.Background(), order.ID, report("f-1", "4", "99"))
	if err != nil || dup != nil {
		t.Errorf("Дубликат должен отсекаться хранилищем: fill=%v err=%v", dup, err)
	}
}

// Полное исполнение ордера попадает в счётчик исполненных ордеров
func TestIngest_FilledMetric(t *testing.T) {
	orders := newMemOrderStore()
	fills := newMemFillStore()
	rec := NewFillRecorder(orders, fills, nil, nil)
	order := acceptedOrder(t, orders)

	before := testutil.ToFloat64(OrdersFilled.WithLabelValues("mock"))
	if _, err := rec.Ingest(context.Background(), order.ID, report("f-1", "4", "99")); err != nil {
		t.Fatalf("Первый приём: %v", err)
	}
	if got := testutil.ToFloat64(OrdersFilled.WithLabelValues("mock")); got != before {
		t.Fatalf("Частичное исполнение не должно менять счётчик: %v -> %v", before, got)
	}

	if _, err := rec.Ingest(context.Background(), order.ID, report("f-2", "6", "101")); err != nil {
		t.Fatalf("Второй приём: %v", err)
	}
	if got := testutil.ToFloat64(OrdersFilled.WithLabelValues("mock")); got != before+1 {
		t.Errorf("Полное исполнение должно увеличить счётчик на 1: %v -> %v", before, got)
	}
}

// Кеш дедупликации освобождается, когда ордер становится терминальным;
// поздние дубликаты всё равно отсекаются хранилищем
func TestIngest_SeenEvictedOnTerminal(t *testing.T) {
	orders := newMemOrderStore()
	fills := newMemFillStore()
	rec := NewFillRecorder(orders, fills, nil, nil)
	order := acceptedOrder(t, orders)

	if _, err := rec.Ingest(context.Background(), order.ID, report("f-1", "4", "99")); err != nil {
		t.Fatalf("Первый приём: %v", err)
	}
	rec.mu.Lock()
	_, cached := rec.seen[order.ID]
	rec.mu.Unlock()
	if !cached {
		t.Fatal("Активный ордер должен держать кеш дедупликации")
	}

	if _, err := rec.Ingest(context.Background(), order.ID, report("f-2", "6", "101")); err != nil {
		t.Fatalf("Второй приём: %v", err)
	}
	rec.mu.Lock()
	_, cached = rec.seen[order.ID]
	rec.mu.Unlock()
	if cached {
		t.Error("Кеш дедупликации терминального ордера должен освобождаться")
	}

	dup, err := rec.Ingest(context.Background(), order.ID, report("f-2", "6", "101"))
	if err != nil || dup != nil {
		t.Errorf("Поздний дубликат должен отсекаться хранилищем: fill=%v err=%v", dup, err)
	}
}

func TestIngest_InvalidReport(t *testing.T) {
	orders := newMemOrderStore()
	fills := newMemFillStore()
	rec := NewFillRecorder(orders, fills, nil, nil)
	order := acceptedOrder(t, orders)

	tests := []struct {
		name   string
		mutate func(*ExecutionReport)
	}{
		{"нулевое количество", func(r *ExecutionReport) { r.Quantity = d("0") }},
		{"отрицательное количество", func(r *ExecutionReport) { r.Quantity = d("-1") }},
		{"нулевая цена", func(r *ExecutionReport) { r.Price = d("0") }},
		{"отрицательная комиссия", func(r *ExecutionReport) { r.Commission = d("-0.01") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep := report("f-bad", "1", "100")
			tt.mutate(&rep)
			if _, err := rec.Ingest(context.Background(), order.ID, rep); !errors.Is(err, ErrInvalidExecutionReport) {
				t.Errorf("Ожидалась ErrInvalidExecutionReport, получено %v", err)
			}
		})
	}
	if fills.Count() != 0 {
		t.Errorf("Невалидные отчёты не должны создавать исполнений, найдено %d", fills.Count())
	}
}

func TestIngest_Overfill(t *testing.T) {
	orders := newMemOrderStore()
	fills := newMemFillStore()
	rec := NewFillRecorder(orders, fills, nil, nil)
	order := acceptedOrder(t, orders)

	if _, err := rec.Ingest(context.Background(), order.ID, report("f-1", "9", "100")); err != nil {
		t.Fatalf("Первый приём: %v", err)
	}
	if _, err := rec.Ingest(context.Background(), order.ID, report("f-2", "2", "100")); !errors.Is(err, ErrOverFill) {
		t.Errorf("Ожидалась ErrOverFill, получено %v", err)
	}
	if fills.Count() != 1 {
		t.Errorf("Переполняющее исполнение не должно записываться, найдено %d", fills.Count())
	}
}

func TestIngest_OnUpdateCallback(t *testing.T) {
	orders := newMemOrderStore()
	fills := newMemFillStore()
	rec := NewFillRecorder(orders, fills, nil, nil)
	order := acceptedOrder(t, orders)

	var gotStatus string
	rec.SetOnUpdate(func(o *models.Order, f *models.Fill) {
		gotStatus = o.Status
	})

	rec.Ingest(context.Background(), order.ID, report("f-1", "10", "100"))
	if gotStatus != models.StatusFilled {
		t.Errorf("Обратный вызов должен видеть итоговый статус filled, получен %q", gotStatus)
	}
}

func TestIngest_FutureFillTimeClamped(t *testing.T) {
	orders := newMemOrderStore()
	fills := newMemFillStore()
	rec := NewFillRecorder(orders, fills, nil, nil)
	order := acceptedOrder(t, orders)

	rep := report("f-1", "1", "100")
	rep.FillTime = time.Now().Add(time.Hour)
	fill, err := rec.Ingest(context.Background(), order.ID, rep)
	if err != nil {
		t.Fatalf("Неожиданная ошибка: %v", err)
	}
	if fill.FillTime.After(time.Now().Add(time.Minute)) {
		t.Errorf("Время из будущего должно прижиматься к текущему, получено %s", fill.FillTime)
	}
}
