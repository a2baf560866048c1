package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fill представляет неизменяемую запись об исполнении (полном или частичном).
// Создаётся один раз при приёме отчёта площадки и никогда не мутируется -
// аудиторский след. Агрегаты пересчитываются на ордере, не на записях.
type Fill struct {
	ID              int64           `json:"id" db:"id"`
	UUID            string          `json:"uuid" db:"uuid"`
	ExternalFillID  string          `json:"external_fill_id,omitempty" db:"external_fill_id"` // ключ идемпотентности
	OrderID         int64           `json:"order_id" db:"order_id"`
	Quantity        decimal.Decimal `json:"quantity" db:"quantity"`
	Price           decimal.Decimal `json:"price" db:"price"`
	Value           decimal.Decimal `json:"value" db:"value"` // quantity × price, фиксируется при создании
	Commission      decimal.Decimal `json:"commission" db:"commission"`
	CommissionAsset string          `json:"commission_asset,omitempty" db:"commission_asset"`
	Liquidity       string          `json:"liquidity" db:"liquidity"` // maker, taker, unknown
	Counterparty    string          `json:"counterparty,omitempty" db:"counterparty"`
	FillTime        time.Time       `json:"fill_time" db:"fill_time"`   // время по данным площадки
	CreatedAt       time.Time       `json:"created_at" db:"created_at"` // время приёма, fill_time <= created_at
}

// Типы ликвидности
const (
	LiquidityMaker   = "maker"
	LiquidityTaker   = "taker"
	LiquidityUnknown = "unknown"
)

// ValidLiquidity проверяет допустимость типа ликвидности
func ValidLiquidity(liquidity string) bool {
	switch liquidity {
	case LiquidityMaker, LiquidityTaker, LiquidityUnknown:
		return true
	}
	return false
}
