package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RiskCheckResult представляет результат предторговой проверки.
// Эфемерный объект: не персистится отдельной сущностью, создаётся на каждый вызов.
type RiskCheckResult struct {
	Passed      bool     `json:"passed"`
	Warnings    []string `json:"warnings"`
	Errors      []string `json:"errors"`
	Suggestions []string `json:"suggestions"`
}

// Коды проверок риска
const (
	RiskCodeInsufficientFunds     = "InsufficientFunds"
	RiskCodePositionLimitExceeded = "PositionLimitExceeded"
	RiskCodePriceOutlier          = "PriceOutlier"
	RiskCodePossibleDuplicate     = "PossibleDuplicate"
	RiskCodeMaxOrderValue         = "MaxOrderValueExceeded"
	RiskCodeInvalidIceberg        = "InvalidIcebergQuantity"
)

// NewRiskCheckResult создаёт пустой результат со статусом passed
func NewRiskCheckResult() *RiskCheckResult {
	return &RiskCheckResult{
		Passed:      true,
		Warnings:    []string{},
		Errors:      []string{},
		Suggestions: []string{},
	}
}

// AddError добавляет ошибку и сбрасывает passed
func (r *RiskCheckResult) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Passed = false
}

// AddWarning добавляет предупреждение, не влияет на passed
func (r *RiskCheckResult) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// AddSuggestion добавляет рекомендацию для вызывающей стороны
func (r *RiskCheckResult) AddSuggestion(msg string) {
	r.Suggestions = append(r.Suggestions, msg)
}

// OpenOrderRef - отпечаток открытого ордера для эвристики дубликатов
type OpenOrderRef struct {
	Symbol    string              `json:"symbol"`
	Side      string              `json:"side"`
	Quantity  decimal.Decimal     `json:"quantity"`
	Price     decimal.NullDecimal `json:"price"`
	CreatedAt time.Time           `json:"created_at"`
}

// AccountContext - read-only снимок состояния аккаунта для проверки риска
type AccountContext struct {
	BuyingPower     decimal.Decimal            `json:"buying_power"`
	Positions       map[string]decimal.Decimal `json:"positions"`        // symbol -> текущая позиция (знаковая)
	PositionLimits  map[string]decimal.Decimal `json:"position_limits"`  // symbol -> максимальная позиция
	MaxOrderValue   decimal.Decimal            `json:"max_order_value"`  // 0 = без лимита
	ReferencePrices map[string]decimal.Decimal `json:"reference_prices"` // symbol -> последняя известная цена
	OpenOrders      []OpenOrderRef             `json:"open_orders"`
}
