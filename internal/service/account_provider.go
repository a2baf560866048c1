package service

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"oms/internal/models"
	"oms/internal/oms"
)

// AccountProviderConfig - статические лимиты аккаунта
type AccountProviderConfig struct {
	MaxOrderValue  decimal.Decimal            // 0 = без лимита
	PositionLimits map[string]decimal.Decimal // symbol -> максимальная абсолютная позиция
}

// AccountProvider собирает снимок аккаунта для проверки риска.
//
// Источники данных:
// - Покупательная способность: сумма buying_power подключенных площадок
// - Позиции и референсные цены: накапливаются из учтённых исполнений
// - Открытые ордера: активные ордера из репозитория
//
// Позиции живут в памяти процесса. После рестарта они пусты и
// наполняются заново по мере исполнений.
type AccountProvider struct {
	cfg       AccountProviderConfig
	venueRepo VenueRepositoryInterface
	orderRepo OrderRepositoryInterface
	logger    *zap.Logger

	mu        sync.RWMutex
	positions map[string]decimal.Decimal
	refPrices map[string]decimal.Decimal
}

// NewAccountProvider создает новый экземпляр провайдера
func NewAccountProvider(
	cfg AccountProviderConfig,
	venueRepo VenueRepositoryInterface,
	orderRepo OrderRepositoryInterface,
	logger *zap.Logger,
) *AccountProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PositionLimits == nil {
		cfg.PositionLimits = make(map[string]decimal.Decimal)
	}
	return &AccountProvider{
		cfg:       cfg,
		venueRepo: venueRepo,
		orderRepo: orderRepo,
		logger:    logger,
		positions: make(map[string]decimal.Decimal),
		refPrices: make(map[string]decimal.Decimal),
	}
}

// AccountContext возвращает снимок аккаунта на момент вызова
func (p *AccountProvider) AccountContext(ctx context.Context, order *models.Order) (models.AccountContext, error) {
	buyingPower, err := p.totalBuyingPower(ctx)
	if err != nil {
		return models.AccountContext{}, err
	}

	openOrders, err := p.openOrderRefs(ctx, order)
	if err != nil {
		return models.AccountContext{}, err
	}

	p.mu.RLock()
	positions := make(map[string]decimal.Decimal, len(p.positions))
	for symbol, qty := range p.positions {
		positions[symbol] = qty
	}
	refPrices := make(map[string]decimal.Decimal, len(p.refPrices))
	for symbol, price := range p.refPrices {
		refPrices[symbol] = price
	}
	p.mu.RUnlock()

	return models.AccountContext{
		BuyingPower:     buyingPower,
		Positions:       positions,
		PositionLimits:  p.cfg.PositionLimits,
		MaxOrderValue:   p.cfg.MaxOrderValue,
		ReferencePrices: refPrices,
		OpenOrders:      openOrders,
	}, nil
}

// ApplyFill учитывает исполнение: сдвигает позицию по знаку стороны
// и обновляет референсную цену инструмента.
// Регистрируется как callback учётчика исполнений.
func (p *AccountProvider) ApplyFill(order *models.Order, fill *models.Fill) {
	if order == nil || fill == nil {
		return
	}

	delta := fill.Quantity
	if order.Side == models.SideSell {
		delta = delta.Neg()
	}

	p.mu.Lock()
	p.positions[order.Symbol] = p.positions[order.Symbol].Add(delta)
	p.refPrices[order.Symbol] = fill.Price
	p.mu.Unlock()
}

// SetReferencePrice задает референсную цену инструмента вручную.
// Используется при инициализации, пока исполнений еще не было.
func (p *AccountProvider) SetReferencePrice(symbol string, price decimal.Decimal) {
	if !price.IsPositive() {
		return
	}
	p.mu.Lock()
	p.refPrices[symbol] = price
	p.mu.Unlock()
}

// Position возвращает текущую знаковую позицию по инструменту
func (p *AccountProvider) Position(symbol string) decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.positions[symbol]
}

func (p *AccountProvider) totalBuyingPower(ctx context.Context) (decimal.Decimal, error) {
	accounts, err := p.venueRepo.GetAll(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, account := range accounts {
		if account.Connected {
			total = total.Add(account.BuyingPower)
		}
	}
	return total, nil
}

// openOrderRefs собирает отпечатки активных ордеров, исключая сам
// проверяемый ордер (иначе он всегда был бы дубликатом самого себя)
func (p *AccountProvider) openOrderRefs(ctx context.Context, current *models.Order) ([]models.OpenOrderRef, error) {
	active, err := p.orderRepo.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	refs := make([]models.OpenOrderRef, 0, len(active))
	for _, o := range active {
		if current != nil && o.ID == current.ID {
			continue
		}
		refs = append(refs, models.OpenOrderRef{
			Symbol:    o.Symbol,
			Side:      o.Side,
			Quantity:  o.Quantity,
			Price:     o.Price,
			CreatedAt: o.CreatedAt,
		})
	}
	return refs, nil
}

var _ oms.AccountSource = (*AccountProvider)(nil)
