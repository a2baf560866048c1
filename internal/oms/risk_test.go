package oms

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"oms/internal/models"
)

func testAccount() models.AccountContext {
	return models.AccountContext{
		BuyingPower:     d("100000"),
		Positions:       map[string]decimal.Decimal{},
		PositionLimits:  map[string]decimal.Decimal{},
		ReferencePrices: map[string]decimal.Decimal{"AAPL": d("100")},
	}
}

func hasCode(msgs []string, code string) bool {
	for _, m := range msgs {
		if strings.HasPrefix(m, code+":") {
			return true
		}
	}
	return false
}

// Ордер, превышающий покупательную способность хотя бы на одну котировочную
// единицу, отклоняется с кодом InsufficientFunds.
func TestRiskCheck_BuyingPower(t *testing.T) {
	v := NewRiskValidator(DefaultRiskConfig())

	acct := testAccount()
	acct.BuyingPower = d("999")

	order, _ := NewOrder(limitSpec()) // 10 x 100 = 1000
	result := v.Check(order, acct)

	if result.Passed {
		t.Error("Ордер на 1000 при покупательной способности 999 должен быть отклонён")
	}
	if !hasCode(result.Errors, models.RiskCodeInsufficientFunds) {
		t.Errorf("Ожидался код InsufficientFunds, получены ошибки: %v", result.Errors)
	}
	if len(result.Suggestions) == 0 {
		t.Error("Отказ по средствам должен сопровождаться подсказкой")
	}

	// Граница: ровно на всю покупательную способность - проходит
	acct.BuyingPower = d("1000")
	if result := v.Check(order, acct); !result.Passed {
		t.Errorf("Ордер ровно на покупательную способность должен проходить: %v", result.Errors)
	}
}

func TestRiskCheck_MarketOrderUsesReferencePrice(t *testing.T) {
	v := NewRiskValidator(DefaultRiskConfig())

	spec := limitSpec()
	spec.OrderType = models.OrderTypeMarket
	spec.Price = decimal.NullDecimal{}
	spec.Quantity = d("50")
	order, _ := NewOrder(spec)

	acct := testAccount()
	acct.BuyingPower = d("4999") // 50 x 100 = 5000
	result := v.Check(order, acct)

	if result.Passed {
		t.Error("Рыночный ордер оценивается по референсной цене и должен быть отклонён")
	}
	if !hasCode(result.Errors, models.RiskCodeInsufficientFunds) {
		t.Errorf("Ожидался код InsufficientFunds, получены: %v", result.Errors)
	}
}

func TestRiskCheck_MaxOrderValue(t *testing.T) {
	v := NewRiskValidator(DefaultRiskConfig())

	acct := testAccount()
	acct.MaxOrderValue = d("500")

	order, _ := NewOrder(limitSpec())
	result := v.Check(order, acct)

	if result.Passed {
		t.Error("Ордер сверх лимита стоимости должен быть отклонён")
	}
	if !hasCode(result.Errors, models.RiskCodeMaxOrderValue) {
		t.Errorf("Ожидался код MaxOrderValueExceeded, получены: %v", result.Errors)
	}
}

func TestRiskCheck_PositionLimit(t *testing.T) {
	v := NewRiskValidator(DefaultRiskConfig())

	t.Run("лимит аккаунта", func(t *testing.T) {
		acct := testAccount()
		acct.Positions["AAPL"] = d("95")
		acct.PositionLimits["AAPL"] = d("100")

		order, _ := NewOrder(limitSpec()) // +10 -> 105
		result := v.Check(order, acct)

		if result.Passed {
			t.Error("Превышение лимита позиции должно отклоняться")
		}
		if !hasCode(result.Errors, models.RiskCodePositionLimitExceeded) {
			t.Errorf("Ожидался код PositionLimitExceeded, получены: %v", result.Errors)
		}
	})

	t.Run("продажа учитывает модуль позиции", func(t *testing.T) {
		acct := testAccount()
		acct.Positions["AAPL"] = d("-95")
		acct.PositionLimits["AAPL"] = d("100")

		spec := limitSpec()
		spec.Side = models.SideSell
		order, _ := NewOrder(spec) // -95 - 10 = -105
		result := v.Check(order, acct)

		if result.Passed {
			t.Error("Короткая позиция за лимитом должна отклоняться")
		}
	})

	t.Run("лимит ордера ужесточает лимит аккаунта", func(t *testing.T) {
		acct := testAccount()
		acct.PositionLimits["AAPL"] = d("1000")

		spec := limitSpec()
		spec.MaxPositionSize = nd("5")
		order, _ := NewOrder(spec) // +10 против лимита 5
		result := v.Check(order, acct)

		if result.Passed {
			t.Error("Лимит на ордере должен применяться, если он строже")
		}
	})

	t.Run("в пределах лимита", func(t *testing.T) {
		acct := testAccount()
		acct.Positions["AAPL"] = d("85")
		acct.PositionLimits["AAPL"] = d("100")

		order, _ := NewOrder(limitSpec()) // +10 -> 95
		if result := v.Check(order, acct); !result.Passed {
			t.Errorf("Позиция в пределах лимита должна проходить: %v", result.Errors)
		}
	})
}

func TestRiskCheck_PriceBand(t *testing.T) {
	v := NewRiskValidator(DefaultRiskConfig())

	spec := limitSpec()
	spec.Price = nd("130") // 30% от референсной 100 при коридоре 20%
	order, _ := NewOrder(spec)

	result := v.Check(order, testAccount())
	if !result.Passed {
		t.Errorf("Выход за коридор цены - предупреждение, не ошибка: %v", result.Errors)
	}
	if !hasCode(result.Warnings, models.RiskCodePriceOutlier) {
		t.Errorf("Ожидалось предупреждение PriceOutlier, получены: %v", result.Warnings)
	}

	spec.Price = nd("115")
	order, _ = NewOrder(spec)
	if result := v.Check(order, testAccount()); len(result.Warnings) != 0 {
		t.Errorf("Цена внутри коридора не должна давать предупреждений: %v", result.Warnings)
	}
}

func TestRiskCheck_DuplicateHeuristic(t *testing.T) {
	v := NewRiskValidator(DefaultRiskConfig())
	order, _ := NewOrder(limitSpec())

	acct := testAccount()
	acct.OpenOrders = []models.OpenOrderRef{{
		Symbol:    "AAPL",
		Side:      models.SideBuy,
		Quantity:  d("10"),
		Price:     nd("100"),
		CreatedAt: time.Now().UTC().Add(-10 * time.Second),
	}}

	result := v.Check(order, acct)
	if !result.Passed {
		t.Errorf("Подозрение на дубликат - предупреждение, не ошибка: %v", result.Errors)
	}
	if !hasCode(result.Warnings, models.RiskCodePossibleDuplicate) {
		t.Errorf("Ожидалось предупреждение PossibleDuplicate, получены: %v", result.Warnings)
	}

	// Старый открытый ордер вне окна не считается дубликатом
	acct.OpenOrders[0].CreatedAt = time.Now().UTC().Add(-5 * time.Minute)
	if result := v.Check(order, acct); len(result.Warnings) != 0 {
		t.Errorf("Ордер вне окна не должен давать предупреждений: %v", result.Warnings)
	}

	// Другая цена - не дубликат
	acct.OpenOrders[0].CreatedAt = time.Now().UTC()
	acct.OpenOrders[0].Price = nd("101")
	if result := v.Check(order, acct); len(result.Warnings) != 0 {
		t.Errorf("Ордер с другой ценой не дубликат: %v", result.Warnings)
	}
}

func TestRiskCheck_AccumulatesErrors(t *testing.T) {
	v := NewRiskValidator(DefaultRiskConfig())

	acct := testAccount()
	acct.BuyingPower = d("1")
	acct.PositionLimits["AAPL"] = d("5")

	order, _ := NewOrder(limitSpec())
	result := v.Check(order, acct)

	if result.Passed {
		t.Error("Ордер с несколькими нарушениями должен быть отклонён")
	}
	if !hasCode(result.Errors, models.RiskCodeInsufficientFunds) ||
		!hasCode(result.Errors, models.RiskCodePositionLimitExceeded) {
		t.Errorf("Все нарушения должны накапливаться, получены: %v", result.Errors)
	}
	// Порядок фиксирован: средства раньше лимита позиции
	if !strings.HasPrefix(result.Errors[0], models.RiskCodeInsufficientFunds) {
		t.Errorf("Первой должна идти проверка средств, получено: %s", result.Errors[0])
	}
}

func BenchmarkRiskCheck(b *testing.B) {
	v := NewRiskValidator(DefaultRiskConfig())
	order, _ := NewOrder(limitSpec())
	acct := testAccount()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		v.Check(order, acct)
	}
}
