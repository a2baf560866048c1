package oms

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"oms/internal/models"
)

// RiskConfig содержит параметры предторговой проверки
type RiskConfig struct {
	// PriceBandPercent - допустимое отклонение лимитной цены от референсной, %
	PriceBandPercent decimal.Decimal

	// DuplicateWindow - окно поиска дублирующих ордеров
	DuplicateWindow time.Duration
}

// DefaultRiskConfig возвращает параметры проверки по умолчанию
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		PriceBandPercent: decimal.NewFromInt(20),
		DuplicateWindow:  time.Minute,
	}
}

// RiskValidator выполняет предторговую проверку ордера.
// Чистая функция над входами: никаких побочных эффектов, результат
// персистится вызывающей стороной вместе с ордером при необходимости.
type RiskValidator struct {
	cfg RiskConfig
}

// NewRiskValidator создаёт валидатор риска
func NewRiskValidator(cfg RiskConfig) *RiskValidator {
	if cfg.PriceBandPercent.IsZero() {
		cfg.PriceBandPercent = decimal.NewFromInt(20)
	}
	if cfg.DuplicateWindow <= 0 {
		cfg.DuplicateWindow = time.Minute
	}
	return &RiskValidator{cfg: cfg}
}

// Check проверяет черновик ордера против снимка аккаунта.
// Проверки идут в фиксированном порядке, ошибки и предупреждения
// накапливаются; passed = true тогда и только тогда, когда ошибок нет.
func (v *RiskValidator) Check(draft *models.Order, acct models.AccountContext) *models.RiskCheckResult {
	result := models.NewRiskCheckResult()

	refPrice := acct.ReferencePrices[draft.Symbol]
	estimated := draft.EstimatedValue(refPrice)

	// 1. Покупательная способность
	if estimated.GreaterThan(acct.BuyingPower) {
		result.AddError(fmt.Sprintf("%s: estimated order value %s exceeds buying power %s",
			models.RiskCodeInsufficientFunds, estimated, acct.BuyingPower))
		if price := draft.EffectivePrice(refPrice); price.IsPositive() {
			affordable := acct.BuyingPower.DivRound(price, 8)
			result.AddSuggestion(fmt.Sprintf("reduce quantity to %s to stay within buying power", affordable))
		}
	}
	if acct.MaxOrderValue.IsPositive() && estimated.GreaterThan(acct.MaxOrderValue) {
		result.AddError(fmt.Sprintf("%s: estimated order value %s exceeds account max order value %s",
			models.RiskCodeMaxOrderValue, estimated, acct.MaxOrderValue))
	}

	// 2. Лимит позиции
	current := acct.Positions[draft.Symbol]
	resulting := current
	if draft.Side == models.SideBuy {
		resulting = resulting.Add(draft.Quantity)
	} else {
		resulting = resulting.Sub(draft.Quantity)
	}
	limit, hasLimit := acct.PositionLimits[draft.Symbol]
	if draft.MaxPositionSize.Valid && (!hasLimit || draft.MaxPositionSize.Decimal.LessThan(limit)) {
		// Лимит на ордере ужесточает, но не ослабляет лимит аккаунта
		limit, hasLimit = draft.MaxPositionSize.Decimal, true
	}
	if hasLimit && resulting.Abs().GreaterThan(limit) {
		result.AddError(fmt.Sprintf("%s: resulting position %s exceeds limit %s for %s",
			models.RiskCodePositionLimitExceeded, resulting, limit, draft.Symbol))
		if headroom := limit.Sub(current.Abs()); headroom.IsPositive() {
			result.AddSuggestion(fmt.Sprintf("reduce quantity to %s to stay within position limit", headroom))
		}
	}

	// 3. Коридор цены для лимитных ордеров - предупреждение, не ошибка
	if (draft.OrderType == models.OrderTypeLimit || draft.OrderType == models.OrderTypeStopLimit) &&
		draft.Price.Valid && refPrice.IsPositive() {
		deviation := draft.Price.Decimal.Sub(refPrice).Abs().
			Div(refPrice).Mul(decimal.NewFromInt(100))
		if deviation.GreaterThan(v.cfg.PriceBandPercent) {
			result.AddWarning(fmt.Sprintf("%s: price %s deviates %s%% from reference %s (band %s%%)",
				models.RiskCodePriceOutlier, draft.Price.Decimal,
				deviation.Round(2), refPrice, v.cfg.PriceBandPercent))
		}
	}

	// 4. Эвристика дубликатов: открытый ордер с теми же symbol/side/quantity/price
	// в коротком окне
	cutoff := time.Now().UTC().Add(-v.cfg.DuplicateWindow)
	for _, open := range acct.OpenOrders {
		if open.Symbol != draft.Symbol || open.Side != draft.Side {
			continue
		}
		if !open.Quantity.Equal(draft.Quantity) {
			continue
		}
		if open.Price.Valid != draft.Price.Valid {
			continue
		}
		if open.Price.Valid && !open.Price.Decimal.Equal(draft.Price.Decimal) {
			continue
		}
		if open.CreatedAt.Before(cutoff) {
			continue
		}
		result.AddWarning(fmt.Sprintf("%s: open order with identical symbol/side/quantity/price submitted at %s",
			models.RiskCodePossibleDuplicate, open.CreatedAt.Format(time.RFC3339)))
		break
	}

	// 5. Повторная проверка iceberg - защита в глубину, основная валидация
	// выполняется при создании ордера
	if draft.OrderType == models.OrderTypeIceberg {
		if !draft.IcebergQuantity.Valid || draft.IcebergQuantity.Decimal.GreaterThanOrEqual(draft.Quantity) {
			result.AddError(fmt.Sprintf("%s: iceberg_quantity must be set and less than quantity",
				models.RiskCodeInvalidIceberg))
		}
	}

	return result
}
