// Package oms реализует ядро управления ордерами: жизненный цикл ордера,
// предторговую проверку риска, маршрутизацию на площадки и учёт исполнений.
package oms

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"oms/internal/models"
)

// Ошибки ядра
var (
	ErrInvalidOrderSpec       = errors.New("invalid order spec")
	ErrOrderNotEditable       = errors.New("order is not editable")
	ErrQuantityBelowFilled    = errors.New("quantity is below filled quantity")
	ErrOverFill               = errors.New("fill exceeds order quantity")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrInvalidExecutionReport = errors.New("invalid execution report")
	ErrNoAvailableVenue       = errors.New("no available venue")
	ErrServiceNotRunning      = errors.New("execution service is not running")
)

// OrderSpec - входная форма создания ордера (контракт API-границы)
type OrderSpec struct {
	Symbol          string              `json:"symbol"`
	Side            string              `json:"side"`
	OrderType       string              `json:"order_type"`
	Quantity        decimal.Decimal     `json:"quantity"`
	Price           decimal.NullDecimal `json:"price"`
	StopPrice       decimal.NullDecimal `json:"stop_price"`
	IcebergQuantity decimal.NullDecimal `json:"iceberg_quantity"`
	TrailingAmount  decimal.NullDecimal `json:"trailing_amount"`
	TrailingPercent decimal.NullDecimal `json:"trailing_percent"`
	MaxPositionSize decimal.NullDecimal `json:"max_position_size"`
	TimeInForce     string              `json:"time_in_force"`
	ExpireTime      *time.Time          `json:"expire_time"`
	Priority        string              `json:"priority"`
	Source          string              `json:"source"`
	StrategyID      *int64              `json:"strategy_id"`
	BacktestID      *int64              `json:"backtest_id"`
	ParentOrderID   *int64              `json:"parent_order_id"`
	AccountID       string              `json:"account_id"`
	Tags            []string            `json:"tags"`
	Notes           string              `json:"notes"`
}

// specErr формирует ошибку валидации с именем поля-нарушителя
func specErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidOrderSpec, fmt.Sprintf(format, args...))
}

// NewOrder валидирует форму и создаёт ордер в статусе pending.
// Валидация полная и выполняется до любых побочных эффектов: набор
// обязательных и запрещённых полей зависит от типа ордера, невалидные
// комбинации не доходят до персистентности.
func NewOrder(spec OrderSpec) (*models.Order, error) {
	if spec.Symbol == "" {
		return nil, specErr("symbol is required")
	}
	if !models.ValidSide(spec.Side) {
		return nil, specErr("side %q is not valid", spec.Side)
	}
	if !models.ValidOrderType(spec.OrderType) {
		return nil, specErr("order_type %q is not valid", spec.OrderType)
	}
	if !spec.Quantity.IsPositive() {
		return nil, specErr("quantity must be positive, got %s", spec.Quantity)
	}

	// Значения по умолчанию для необязательных перечислений
	if spec.TimeInForce == "" {
		spec.TimeInForce = models.TIFDay
	}
	if spec.Priority == "" {
		spec.Priority = models.PriorityNormal
	}
	if spec.Source == "" {
		spec.Source = models.SourceManual
	}
	if !models.ValidTimeInForce(spec.TimeInForce) {
		return nil, specErr("time_in_force %q is not valid", spec.TimeInForce)
	}
	if !models.ValidPriority(spec.Priority) {
		return nil, specErr("priority %q is not valid", spec.Priority)
	}
	if !models.ValidSource(spec.Source) {
		return nil, specErr("source %q is not valid", spec.Source)
	}

	if err := validateTypeParams(spec); err != nil {
		return nil, err
	}
	if err := validateTimeParams(spec.TimeInForce, spec.ExpireTime, time.Now().UTC()); err != nil {
		return nil, err
	}
	if spec.MaxPositionSize.Valid && !spec.MaxPositionSize.Decimal.IsPositive() {
		return nil, specErr("max_position_size must be positive")
	}

	now := time.Now().UTC()
	tags := make([]string, len(spec.Tags))
	copy(tags, spec.Tags)

	return &models.Order{
		UUID:            uuid.NewString(),
		Symbol:          spec.Symbol,
		Side:            spec.Side,
		OrderType:       spec.OrderType,
		Quantity:        spec.Quantity,
		FilledQuantity:  decimal.Zero,
		Price:           spec.Price,
		StopPrice:       spec.StopPrice,
		AvgFillPrice:    decimal.Zero,
		IcebergQuantity: spec.IcebergQuantity,
		TrailingAmount:  spec.TrailingAmount,
		TrailingPercent: spec.TrailingPercent,
		MaxPositionSize: spec.MaxPositionSize,
		TimeInForce:     spec.TimeInForce,
		ExpireTime:      spec.ExpireTime,
		Priority:        spec.Priority,
		Source:          spec.Source,
		StrategyID:      spec.StrategyID,
		BacktestID:      spec.BacktestID,
		ParentOrderID:   spec.ParentOrderID,
		AccountID:       spec.AccountID,
		Status:          models.StatusPending,
		Commission:      decimal.Zero,
		Tags:            pq.StringArray(tags),
		Notes:           spec.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// validateTypeParams проверяет обязательные и запрещённые поля по типу ордера
func validateTypeParams(spec OrderSpec) error {
	priceSet := spec.Price.Valid
	stopSet := spec.StopPrice.Valid

	if priceSet && !spec.Price.Decimal.IsPositive() {
		return specErr("price must be positive")
	}
	if stopSet && !spec.StopPrice.Decimal.IsPositive() {
		return specErr("stop_price must be positive")
	}

	switch spec.OrderType {
	case models.OrderTypeMarket:
		if priceSet {
			return specErr("price must not be set for market orders")
		}
	case models.OrderTypeLimit, models.OrderTypeStopLimit:
		if !priceSet {
			return specErr("price is required for %s orders", spec.OrderType)
		}
	}

	switch spec.OrderType {
	case models.OrderTypeStop, models.OrderTypeStopLimit, models.OrderTypeTrailingStop:
		if !stopSet {
			return specErr("stop_price is required for %s orders", spec.OrderType)
		}
	default:
		if stopSet {
			return specErr("stop_price must not be set for %s orders", spec.OrderType)
		}
	}

	if spec.OrderType == models.OrderTypeIceberg {
		if !spec.IcebergQuantity.Valid {
			return specErr("iceberg_quantity is required for iceberg orders")
		}
		if !spec.IcebergQuantity.Decimal.IsPositive() {
			return specErr("iceberg_quantity must be positive")
		}
		if spec.IcebergQuantity.Decimal.GreaterThanOrEqual(spec.Quantity) {
			return specErr("iceberg_quantity must be less than quantity")
		}
	} else if spec.IcebergQuantity.Valid {
		return specErr("iceberg_quantity must not be set for %s orders", spec.OrderType)
	}

	if spec.OrderType == models.OrderTypeTrailingStop {
		// Строго одно из двух: с обоими или без обоих ордер отклоняется
		amountSet := spec.TrailingAmount.Valid
		percentSet := spec.TrailingPercent.Valid
		if amountSet == percentSet {
			return specErr("trailing_stop orders require exactly one of trailing_amount or trailing_percent")
		}
		if amountSet && !spec.TrailingAmount.Decimal.IsPositive() {
			return specErr("trailing_amount must be positive")
		}
		if percentSet && !spec.TrailingPercent.Decimal.IsPositive() {
			return specErr("trailing_percent must be positive")
		}
	} else if spec.TrailingAmount.Valid || spec.TrailingPercent.Valid {
		return specErr("trailing parameters must not be set for %s orders", spec.OrderType)
	}

	return nil
}

// validateTimeParams проверяет согласованность срока действия и expire_time
func validateTimeParams(tif string, expireTime *time.Time, now time.Time) error {
	if tif == models.TIFGTD {
		if expireTime == nil {
			return specErr("expire_time is required for gtd orders")
		}
		if !expireTime.After(now) {
			return specErr("expire_time must be in the future")
		}
		return nil
	}
	if expireTime != nil {
		return specErr("expire_time must not be set for %s orders", tif)
	}
	return nil
}

// OrderPatch - частичное обновление активного ордера
type OrderPatch struct {
	Quantity    *decimal.Decimal     `json:"quantity"`
	Price       *decimal.NullDecimal `json:"price"`
	StopPrice   *decimal.NullDecimal `json:"stop_price"`
	TimeInForce *string              `json:"time_in_force"`
	Priority    *string              `json:"priority"`
	ExpireTime  *time.Time           `json:"expire_time"`
	Tags        *[]string            `json:"tags"`
	Notes       *string              `json:"notes"`
}

// ApplyUpdate применяет частичное обновление к активному ордеру.
// Неактивный ордер возвращает ErrOrderNotEditable; уменьшение количества
// ниже уже исполненного - ErrQuantityBelowFilled. Обновление равенством
// quantity == filled_quantity допустимо: остаток становится нулевым, но
// статус меняется только исполнениями, не редактированием.
func ApplyUpdate(order *models.Order, patch OrderPatch) error {
	if !order.IsActive() {
		return fmt.Errorf("%w: order %d is %s", ErrOrderNotEditable, order.ID, order.Status)
	}

	if patch.Quantity != nil {
		if !patch.Quantity.IsPositive() {
			return specErr("quantity must be positive, got %s", patch.Quantity)
		}
		if patch.Quantity.LessThan(order.FilledQuantity) {
			return fmt.Errorf("%w: new quantity %s < filled %s",
				ErrQuantityBelowFilled, patch.Quantity, order.FilledQuantity)
		}
		if order.IcebergQuantity.Valid && order.IcebergQuantity.Decimal.GreaterThanOrEqual(*patch.Quantity) {
			return specErr("quantity must stay above iceberg_quantity")
		}
	}
	if patch.Price != nil && patch.Price.Valid {
		if order.OrderType == models.OrderTypeMarket {
			return specErr("price must not be set for market orders")
		}
		if !patch.Price.Decimal.IsPositive() {
			return specErr("price must be positive")
		}
	}
	if patch.StopPrice != nil && patch.StopPrice.Valid && !patch.StopPrice.Decimal.IsPositive() {
		return specErr("stop_price must be positive")
	}

	newTIF := order.TimeInForce
	if patch.TimeInForce != nil {
		if !models.ValidTimeInForce(*patch.TimeInForce) {
			return specErr("time_in_force %q is not valid", *patch.TimeInForce)
		}
		newTIF = *patch.TimeInForce
	}
	newExpire := order.ExpireTime
	if patch.ExpireTime != nil {
		newExpire = patch.ExpireTime
	}
	if newTIF != models.TIFGTD {
		// У ордеров без gtd срок не хранится
		newExpire = nil
	}
	if err := validateTimeParams(newTIF, newExpire, time.Now().UTC()); err != nil {
		return err
	}

	if patch.Priority != nil && !models.ValidPriority(*patch.Priority) {
		return specErr("priority %q is not valid", *patch.Priority)
	}

	// Все проверки пройдены - применяем атомарно
	if patch.Quantity != nil {
		order.Quantity = *patch.Quantity
	}
	if patch.Price != nil {
		order.Price = *patch.Price
	}
	if patch.StopPrice != nil {
		order.StopPrice = *patch.StopPrice
	}
	order.TimeInForce = newTIF
	order.ExpireTime = newExpire
	if patch.Priority != nil {
		order.Priority = *patch.Priority
	}
	if patch.Tags != nil {
		tags := make([]string, len(*patch.Tags))
		copy(tags, *patch.Tags)
		order.Tags = pq.StringArray(tags)
	}
	if patch.Notes != nil {
		order.Notes = *patch.Notes
	}
	order.UpdatedAt = time.Now().UTC()
	return nil
}

// RecordFill учитывает исполнение на ордере: наращивает filled_quantity,
// пересчитывает средневзвешенную цену, накапливает комиссию и переводит
// статус. filled_quantity монотонно растёт и не может превысить quantity.
func RecordFill(order *models.Order, fill *models.Fill) error {
	newFilled := order.FilledQuantity.Add(fill.Quantity)
	if newFilled.GreaterThan(order.Quantity) {
		return fmt.Errorf("%w: %s + %s > %s",
			ErrOverFill, order.FilledQuantity, fill.Quantity, order.Quantity)
	}

	target := models.StatusPartiallyFilled
	if newFilled.Equal(order.Quantity) {
		target = models.StatusFilled
	}
	if !models.CanTransition(order.Status, target) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, target)
	}

	// Средневзвешенная цена: (старая_сумма + новая_сумма) / новый_объём
	total := order.AvgFillPrice.Mul(order.FilledQuantity).Add(fill.Price.Mul(fill.Quantity))
	order.AvgFillPrice = total.Div(newFilled)
	order.FilledQuantity = newFilled
	order.Commission = order.Commission.Add(fill.Commission)
	if order.CommissionAsset == "" {
		order.CommissionAsset = fill.CommissionAsset
	}

	return Transition(order, target)
}

// Transition переводит ордер в новый статус, проставляя временные метки.
// Каждая метка устанавливается ровно один раз.
func Transition(order *models.Order, to string) error {
	if !models.CanTransition(order.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, to)
	}

	now := time.Now().UTC()
	order.Status = to
	order.UpdatedAt = now

	switch to {
	case models.StatusSubmitted:
		if order.SubmittedAt == nil {
			order.SubmittedAt = &now
		}
	case models.StatusAccepted:
		if order.AcceptedAt == nil {
			order.AcceptedAt = &now
		}
	case models.StatusFilled:
		if order.FilledAt == nil {
			order.FilledAt = &now
		}
	case models.StatusCancelled:
		if order.CancelledAt == nil {
			order.CancelledAt = &now
		}
	}
	return nil
}
