package oms

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"oms/internal/models"
)

// FillRecorder принимает отчёты об исполнении и превращает их в
// неизменяемые записи Fill. Приём идемпотентен по external_fill_id:
// повторный отчёт логируется и отбрасывается, а не учитывается дважды.
type FillRecorder struct {
	orders OrderStore
	fills  FillStore
	locks  *OrderLocks
	logger *zap.Logger

	// onUpdate вызывается после успешного учёта исполнения,
	// под блокировкой ордера
	onUpdate func(order *models.Order, fill *models.Fill)

	mu   sync.Mutex
	seen map[int64]map[string]struct{} // external_fill_id по ордеру
}

// NewFillRecorder создаёт приёмник исполнений
func NewFillRecorder(orders OrderStore, fills FillStore, locks *OrderLocks, logger *zap.Logger) *FillRecorder {
	if locks == nil {
		locks = NewOrderLocks()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FillRecorder{
		orders: orders,
		fills:  fills,
		locks:  locks,
		logger: logger,
		seen:   make(map[int64]map[string]struct{}),
	}
}

// SetOnUpdate регистрирует callback на учёт исполнения
func (r *FillRecorder) SetOnUpdate(fn func(order *models.Order, fill *models.Fill)) {
	r.onUpdate = fn
}

// Ingest принимает отчёт об исполнении для ордера.
// Возвращает созданный Fill; для дубликата возвращает (nil, nil) -
// система уже отражает корректное состояние, это не ошибка вызывающего.
func (r *FillRecorder) Ingest(ctx context.Context, orderID int64, report ExecutionReport) (*models.Fill, error) {
	if !report.Quantity.IsPositive() {
		return nil, fmt.Errorf("%w: quantity must be positive, got %s", ErrInvalidExecutionReport, report.Quantity)
	}
	if !report.Price.IsPositive() {
		return nil, fmt.Errorf("%w: price must be positive, got %s", ErrInvalidExecutionReport, report.Price)
	}
	if report.Commission.IsNegative() {
		return nil, fmt.Errorf("%w: commission must not be negative", ErrInvalidExecutionReport)
	}

	r.locks.Lock(orderID)
	defer r.locks.Unlock(orderID)

	if report.ExternalFillID != "" {
		dup, err := r.isDuplicate(ctx, orderID, report.ExternalFillID)
		if err != nil {
			return nil, err
		}
		if dup {
			r.logger.Info("duplicate fill ignored",
				zap.Int64("order_id", orderID),
				zap.String("external_fill_id", report.ExternalFillID))
			RecordDuplicateFillIgnored()
			return nil, nil
		}
	}

	order, err := r.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	fillTime := report.FillTime
	if fillTime.IsZero() || fillTime.After(now) {
		// fill_time площадки не может быть позже времени приёма
		fillTime = now
	}
	liquidity := report.Liquidity
	if !models.ValidLiquidity(liquidity) {
		liquidity = models.LiquidityUnknown
	}

	fill := &models.Fill{
		UUID:            uuid.NewString(),
		ExternalFillID:  report.ExternalFillID,
		OrderID:         orderID,
		Quantity:        report.Quantity,
		Price:           report.Price,
		Value:           report.Quantity.Mul(report.Price),
		Commission:      report.Commission,
		CommissionAsset: report.CommissionAsset,
		Liquidity:       liquidity,
		Counterparty:    report.Counterparty,
		FillTime:        fillTime,
		CreatedAt:       now,
	}

	if err := RecordFill(order, fill); err != nil {
		return nil, err
	}

	created, err := r.fills.Create(ctx, fill)
	if err != nil {
		return nil, fmt.Errorf("persist fill: %w", err)
	}
	if err := r.orders.UpdateExecution(ctx, order); err != nil {
		return nil, fmt.Errorf("persist order aggregates: %w", err)
	}

	r.verifyIntegrity(ctx, order)
	if models.IsTerminalStatus(order.Status) {
		// Терминальный ордер исполнений больше не получает; поздние
		// дубликаты отсекает проверка по хранилищу
		r.forgetSeen(orderID)
	} else {
		r.markSeen(orderID, report.ExternalFillID)
	}
	RecordFillIngested(report.Venue)
	if order.Status == models.StatusFilled {
		RecordOrderFilled(order.Venue)
	}

	r.logger.Info("fill recorded",
		zap.Int64("order_id", orderID),
		zap.String("external_fill_id", report.ExternalFillID),
		zap.String("quantity", fill.Quantity.String()),
		zap.String("price", fill.Price.String()),
		zap.String("order_status", order.Status))

	if r.onUpdate != nil {
		r.onUpdate(order, created)
	}
	return created, nil
}

// isDuplicate проверяет идемпотентность: быстрый путь по памяти,
// затем по хранилищу (переживает рестарт процесса)
func (r *FillRecorder) isDuplicate(ctx context.Context, orderID int64, externalFillID string) (bool, error) {
	r.mu.Lock()
	_, ok := r.seen[orderID][externalFillID]
	r.mu.Unlock()
	if ok {
		return true, nil
	}
	return r.fills.ExistsByExternalID(ctx, orderID, externalFillID)
}

func (r *FillRecorder) markSeen(orderID int64, externalFillID string) {
	if externalFillID == "" {
		return
	}
	r.mu.Lock()
	set, ok := r.seen[orderID]
	if !ok {
		set = make(map[string]struct{})
		r.seen[orderID] = set
	}
	set[externalFillID] = struct{}{}
	r.mu.Unlock()
}

// forgetSeen освобождает дедупликационный кеш завершённого ордера
func (r *FillRecorder) forgetSeen(orderID int64) {
	r.mu.Lock()
	delete(r.seen, orderID)
	r.mu.Unlock()
}

// verifyIntegrity сверяет filled_quantity с суммой записанных исполнений.
// Расхождение фатально для учёта: громкий лог и метрика для алерта,
// тихой корректировки не происходит.
func (r *FillRecorder) verifyIntegrity(ctx context.Context, order *models.Order) {
	sum, err := r.fills.SumQuantityByOrder(ctx, order.ID)
	if err != nil {
		r.logger.Warn("integrity check skipped", zap.Int64("order_id", order.ID), zap.Error(err))
		return
	}
	if !sum.Equal(order.FilledQuantity) {
		r.logger.Error("FILL INTEGRITY VIOLATION: filled quantity diverged from sum of fills",
			zap.Int64("order_id", order.ID),
			zap.String("filled_quantity", order.FilledQuantity.String()),
			zap.String("sum_of_fills", sum.String()))
		RecordIntegrityViolation()
	}
}
