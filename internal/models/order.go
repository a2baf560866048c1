package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Order представляет клиентскую заявку на сделку
type Order struct {
	ID              int64               `json:"id" db:"id"`
	UUID            string              `json:"uuid" db:"uuid"`                                       // внешняя безопасная ссылка
	ExternalOrderID string              `json:"external_order_id,omitempty" db:"external_order_id"`   // id ордера на стороне площадки
	Symbol          string              `json:"symbol" db:"symbol"`                                   // BTCUSDT, AAPL.NASDAQ
	Side            string              `json:"side" db:"side"`                                       // buy, sell
	OrderType       string              `json:"order_type" db:"order_type"`                           // market, limit, stop, ...
	Quantity        decimal.Decimal     `json:"quantity" db:"quantity"`
	FilledQuantity  decimal.Decimal     `json:"filled_quantity" db:"filled_quantity"`
	Price           decimal.NullDecimal `json:"price,omitempty" db:"price"`                           // обязательна для limit/stop_limit
	StopPrice       decimal.NullDecimal `json:"stop_price,omitempty" db:"stop_price"`                 // обязательна для stop/stop_limit/trailing_stop
	AvgFillPrice    decimal.Decimal     `json:"avg_fill_price" db:"avg_fill_price"`                   // средневзвешенная цена исполнения
	IcebergQuantity decimal.NullDecimal `json:"iceberg_quantity,omitempty" db:"iceberg_quantity"`     // видимая часть iceberg-ордера
	TrailingAmount  decimal.NullDecimal `json:"trailing_amount,omitempty" db:"trailing_amount"`       // для trailing_stop: абсолютный отступ
	TrailingPercent decimal.NullDecimal `json:"trailing_percent,omitempty" db:"trailing_percent"`     // для trailing_stop: отступ в процентах
	MaxPositionSize decimal.NullDecimal `json:"max_position_size,omitempty" db:"max_position_size"`   // опциональный лимит позиции
	TimeInForce     string              `json:"time_in_force" db:"time_in_force"`                     // day, gtc, ioc, fok, gtd
	ExpireTime      *time.Time          `json:"expire_time,omitempty" db:"expire_time"`               // обязательно при gtd
	Priority        string              `json:"priority" db:"priority"`                               // low, normal, high, urgent
	Source          string              `json:"source" db:"source"`                                   // manual, strategy, algorithm
	StrategyID      *int64              `json:"strategy_id,omitempty" db:"strategy_id"`
	BacktestID      *int64              `json:"backtest_id,omitempty" db:"backtest_id"`
	ParentOrderID   *int64              `json:"parent_order_id,omitempty" db:"parent_order_id"`       // родитель для частей iceberg/TWAP/VWAP
	AccountID       string              `json:"account_id,omitempty" db:"account_id"`
	Venue           string              `json:"venue,omitempty" db:"venue"`                           // площадка, выбранная маршрутизатором
	Status          string              `json:"status" db:"status"`
	RiskCheckPassed bool                `json:"risk_check_passed" db:"risk_check_passed"`
	RiskCheckMsg    string              `json:"risk_check_message,omitempty" db:"risk_check_message"`
	LastError       string              `json:"last_error,omitempty" db:"last_error"`                 // последняя ошибка площадки, ордер остаётся в прежнем статусе

	Commission      decimal.Decimal     `json:"commission" db:"commission"`
	CommissionAsset string              `json:"commission_asset,omitempty" db:"commission_asset"`
	Tags            pq.StringArray      `json:"tags,omitempty" db:"tags"`
	Notes           string              `json:"notes,omitempty" db:"notes"`
	CreatedAt       time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at" db:"updated_at"`
	SubmittedAt     *time.Time          `json:"submitted_at,omitempty" db:"submitted_at"`
	AcceptedAt      *time.Time          `json:"accepted_at,omitempty" db:"accepted_at"`
	FilledAt        *time.Time          `json:"filled_at,omitempty" db:"filled_at"`
	CancelledAt     *time.Time          `json:"cancelled_at,omitempty" db:"cancelled_at"`
}

// Стороны сделки
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Типы ордеров
const (
	OrderTypeMarket       = "market"
	OrderTypeLimit        = "limit"
	OrderTypeStop         = "stop"
	OrderTypeStopLimit    = "stop_limit"
	OrderTypeTrailingStop = "trailing_stop"
	OrderTypeIceberg      = "iceberg"
	OrderTypeTWAP         = "twap"
	OrderTypeVWAP         = "vwap"
)

// Сроки действия ордера
const (
	TIFDay = "day"
	TIFGTC = "gtc"
	TIFIOC = "ioc"
	TIFFOK = "fok"
	TIFGTD = "gtd"
)

// Приоритеты маршрутизации
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Источники ордера
const (
	SourceManual    = "manual"
	SourceStrategy  = "strategy"
	SourceAlgorithm = "algorithm"
)

// Статусы ордера
const (
	StatusPending         = "pending"
	StatusSubmitted       = "submitted"
	StatusAccepted        = "accepted"
	StatusPartiallyFilled = "partially_filled"
	StatusFilled          = "filled"
	StatusCancelled       = "cancelled"
	StatusRejected        = "rejected"
	StatusExpired         = "expired"
	StatusSuspended       = "suspended"
)

// ValidSide проверяет допустимость стороны сделки
func ValidSide(side string) bool {
	return side == SideBuy || side == SideSell
}

// ValidOrderType проверяет допустимость типа ордера
func ValidOrderType(orderType string) bool {
	switch orderType {
	case OrderTypeMarket, OrderTypeLimit, OrderTypeStop, OrderTypeStopLimit,
		OrderTypeTrailingStop, OrderTypeIceberg, OrderTypeTWAP, OrderTypeVWAP:
		return true
	}
	return false
}

// ValidTimeInForce проверяет допустимость срока действия
func ValidTimeInForce(tif string) bool {
	switch tif {
	case TIFDay, TIFGTC, TIFIOC, TIFFOK, TIFGTD:
		return true
	}
	return false
}

// ValidPriority проверяет допустимость приоритета
func ValidPriority(priority string) bool {
	switch priority {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// ValidSource проверяет допустимость источника
func ValidSource(source string) bool {
	switch source {
	case SourceManual, SourceStrategy, SourceAlgorithm:
		return true
	}
	return false
}

// RemainingQuantity возвращает неисполненный остаток ордера.
// Производное значение: не хранится отдельно, чтобы исключить расхождение.
func (o *Order) RemainingQuantity() decimal.Decimal {
	return o.Quantity.Sub(o.FilledQuantity)
}

// FillRatio возвращает долю исполнения [0..1].
// При нулевом quantity возвращает 0 (защищённое деление).
func (o *Order) FillRatio() decimal.Decimal {
	if o.Quantity.IsZero() {
		return decimal.Zero
	}
	return o.FilledQuantity.Div(o.Quantity)
}

// TotalValue возвращает стоимость исполненной части ордера:
// filled_quantity × avg_fill_price. Для частично исполненного ордера
// это фактический оборот, а не оценка по заявленному количеству;
// ноль пока исполнений нет.
func (o *Order) TotalValue() decimal.Decimal {
	if o.AvgFillPrice.IsZero() {
		return decimal.Zero
	}
	return o.FilledQuantity.Mul(o.AvgFillPrice)
}

// EffectivePrice возвращает цену ордера, либо референсную когда цены нет
func (o *Order) EffectivePrice(referencePrice decimal.Decimal) decimal.Decimal {
	if o.Price.Valid && !o.Price.Decimal.IsZero() {
		return o.Price.Decimal
	}
	return referencePrice
}

// EstimatedValue оценивает стоимость ордера: quantity × (price или референсная цена)
func (o *Order) EstimatedValue(referencePrice decimal.Decimal) decimal.Decimal {
	return o.Quantity.Mul(o.EffectivePrice(referencePrice))
}

// IsActive сообщает, допускает ли ордер изменения и отмену
func (o *Order) IsActive() bool {
	return IsActiveStatus(o.Status)
}
