package venue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"oms/internal/models"
)

// MockConfig содержит настройки симулятора площадки
type MockConfig struct {
	Name              string
	AccountID         string
	BasePrice         decimal.Decimal // референсная цена для рыночных ордеров
	FillChunks        int             // на сколько частичных исполнений разбивается ордер
	CommissionRate    decimal.Decimal // доля от стоимости исполнения
	AvailableQuantity decimal.Decimal // максимум, который площадка готова исполнить; 0 = без ограничения
}

// DefaultMockConfig возвращает конфигурацию симулятора по умолчанию
func DefaultMockConfig() MockConfig {
	return MockConfig{
		Name:           "mock",
		AccountID:      "MOCK-ACC-1",
		BasePrice:      decimal.NewFromInt(100),
		FillChunks:     2,
		CommissionRate: decimal.RequireFromString("0.001"),
	}
}

// MockConnector - детерминированный симулятор площадки для тестов и демо.
// Исполнение продвигается на один шаг при каждом QueryStatus: никакого
// времени и фоновых горутин, результат воспроизводим от запуска к запуску.
type MockConnector struct {
	cfg MockConfig

	mu        sync.Mutex
	connected bool
	seq       int64
	orders    map[string]*mockOrder
}

// mockOrder - внутреннее состояние ордера на симулируемой площадке
type mockOrder struct {
	symbol      string
	side        string
	timeInForce string
	quantity    decimal.Decimal
	price       decimal.Decimal // цена исполнения (лимитная или базовая)
	fillable    decimal.Decimal // сколько площадка готова исполнить
	filled      decimal.Decimal
	status      string
	fills       []FillReport
	fillSeq     int
}

// NewMockConnector создаёт симулятор площадки
func NewMockConnector(cfg MockConfig) *MockConnector {
	if cfg.Name == "" {
		cfg.Name = "mock"
	}
	if cfg.FillChunks < 1 {
		cfg.FillChunks = 1
	}
	if cfg.BasePrice.IsZero() {
		cfg.BasePrice = decimal.NewFromInt(100)
	}
	return &MockConnector{
		cfg:    cfg,
		orders: make(map[string]*mockOrder),
	}
}

var _ Connector = (*MockConnector)(nil)

// Connect помечает симулятор подключённым; ключи не проверяются
func (m *MockConnector) Connect(apiKey, secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	return nil
}

// Name возвращает имя площадки
func (m *MockConnector) Name() string {
	return m.cfg.Name
}

// AccountID возвращает идентификатор аккаунта
func (m *MockConnector) AccountID() string {
	return m.cfg.AccountID
}

// Connected сообщает состояние соединения
func (m *MockConnector) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Submit принимает ордер и возвращает внешнюю ссылку.
// FOK-ордер, который нельзя исполнить целиком, отклоняется сразу.
func (m *MockConnector) Submit(ctx context.Context, order *models.Order) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return "", &VenueError{Venue: m.cfg.Name, Code: "disconnected", Message: "venue is not connected"}
	}

	m.seq++
	ref := fmt.Sprintf("%s-%d", m.cfg.Name, m.seq)

	fillable := order.Quantity
	if !m.cfg.AvailableQuantity.IsZero() && m.cfg.AvailableQuantity.LessThan(fillable) {
		fillable = m.cfg.AvailableQuantity
	}

	price := m.cfg.BasePrice
	if order.Price.Valid && !order.Price.Decimal.IsZero() {
		price = order.Price.Decimal
	}

	mo := &mockOrder{
		symbol:      order.Symbol,
		side:        order.Side,
		timeInForce: order.TimeInForce,
		quantity:    order.Quantity,
		price:       price,
		fillable:    fillable,
		filled:      decimal.Zero,
		status:      StatusWorking,
	}

	// FOK: исполнить целиком или отклонить
	if order.TimeInForce == models.TIFFOK && fillable.LessThan(order.Quantity) {
		mo.status = StatusRejected
	}

	m.orders[ref] = mo
	return ref, nil
}

// Cancel отменяет ордер; терминальный ордер отменить нельзя
func (m *MockConnector) Cancel(ctx context.Context, externalRef string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return &VenueError{Venue: m.cfg.Name, Code: "disconnected", Message: "venue is not connected"}
	}

	mo, ok := m.orders[externalRef]
	if !ok {
		return &VenueError{Venue: m.cfg.Name, Code: "not_found", Message: "unknown order reference " + externalRef}
	}

	switch mo.status {
	case StatusFilled, StatusCancelled, StatusRejected, StatusExpired:
		return &VenueError{Venue: m.cfg.Name, Code: "terminal", Message: "order is already " + mo.status}
	}

	mo.status = StatusCancelled
	return nil
}

// QueryStatus возвращает состояние ордера, продвигая исполнение на один шаг
func (m *MockConnector) QueryStatus(ctx context.Context, externalRef string) (*ExternalStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil, &VenueError{Venue: m.cfg.Name, Code: "disconnected", Message: "venue is not connected"}
	}

	mo, ok := m.orders[externalRef]
	if !ok {
		return nil, &VenueError{Venue: m.cfg.Name, Code: "not_found", Message: "unknown order reference " + externalRef}
	}

	m.advance(externalRef, mo)
	return m.snapshot(externalRef, mo), nil
}

// advance продвигает исполнение на один шаг
func (m *MockConnector) advance(ref string, mo *mockOrder) {
	if mo.status != StatusWorking && mo.status != StatusPartiallyFilled {
		return
	}
	if mo.filled.GreaterThanOrEqual(mo.fillable) {
		// Площадка исчерпала доступный объём: IOC отменяет остаток,
		// остальные ордера продолжают ждать
		if mo.timeInForce == models.TIFIOC && mo.filled.LessThan(mo.quantity) {
			mo.status = StatusCancelled
		}
		return
	}

	chunk := mo.quantity.Div(decimal.NewFromInt(int64(m.cfg.FillChunks)))
	remaining := mo.fillable.Sub(mo.filled)
	if chunk.GreaterThan(remaining) || chunk.IsZero() {
		chunk = remaining
	}

	mo.fillSeq++
	commission := chunk.Mul(mo.price).Mul(m.cfg.CommissionRate)
	mo.fills = append(mo.fills, FillReport{
		ExternalFillID:  fmt.Sprintf("%s-F%d", ref, mo.fillSeq),
		Quantity:        chunk,
		Price:           mo.price,
		Commission:      commission,
		CommissionAsset: "USDT",
		Liquidity:       models.LiquidityTaker,
		FillTime:        time.Now().UTC(),
	})
	mo.filled = mo.filled.Add(chunk)

	switch {
	case mo.filled.GreaterThanOrEqual(mo.quantity):
		mo.status = StatusFilled
	case mo.filled.GreaterThanOrEqual(mo.fillable) && mo.timeInForce == models.TIFIOC:
		// IOC: доступный объём исчерпан, остаток отменяется
		mo.status = StatusCancelled
	default:
		mo.status = StatusPartiallyFilled
	}
}

// snapshot собирает отчёт о состоянии ордера
func (m *MockConnector) snapshot(ref string, mo *mockOrder) *ExternalStatus {
	avgPrice := decimal.Zero
	if !mo.filled.IsZero() {
		avgPrice = mo.price
	}
	fills := make([]FillReport, len(mo.fills))
	copy(fills, mo.fills)
	return &ExternalStatus{
		ExternalRef:    ref,
		Status:         mo.status,
		FilledQuantity: mo.filled,
		AvgFillPrice:   avgPrice,
		Fills:          fills,
		UpdatedAt:      time.Now().UTC(),
	}
}

// Close разрывает соединение; состояние ордеров сохраняется
func (m *MockConnector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}
