package handlers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"oms/internal/models"
	"oms/internal/oms"
	"oms/internal/repository"
	"oms/internal/service"
)

// ErrMockDatabase используется для имитации ошибок хранилища
var ErrMockDatabase = errors.New("mock database error")

// ============ Mock OrderService ============

type MockOrderService struct {
	orders map[int64]*models.Order
	fills  map[int64][]models.Fill
	nextID int64

	createErr error
	getErr    error
	listErr   error
	updateErr error
	submitErr error
	cancelErr error

	riskResult *models.RiskCheckResult
}

func NewMockOrderService() *MockOrderService {
	return &MockOrderService{
		orders:     make(map[int64]*models.Order),
		fills:      make(map[int64][]models.Fill),
		nextID:     1,
		riskResult: &models.RiskCheckResult{Passed: true},
	}
}

func (m *MockOrderService) addOrder(order *models.Order) *models.Order {
	order.ID = m.nextID
	m.nextID++
	if order.Status == "" {
		order.Status = models.StatusPending
	}
	order.CreatedAt = time.Now().UTC()
	m.orders[order.ID] = order
	return order
}

func (m *MockOrderService) CreateOrder(ctx context.Context, spec oms.OrderSpec, autoSubmit bool) (*models.Order, *models.RiskCheckResult, error) {
	if m.createErr != nil {
		return nil, nil, m.createErr
	}
	order, err := oms.NewOrder(spec)
	if err != nil {
		return nil, nil, err
	}
	m.addOrder(order)
	if !autoSubmit {
		return order, nil, nil
	}
	if m.submitErr != nil {
		return order, m.riskResult, m.submitErr
	}
	order.Status = models.StatusSubmitted
	return order, m.riskResult, nil
}

func (m *MockOrderService) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	order, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return order, nil
}

func (m *MockOrderService) GetOrderByUUID(ctx context.Context, uuid string) (*models.Order, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, order := range m.orders {
		if order.UUID == uuid {
			return order, nil
		}
	}
	return nil, repository.ErrOrderNotFound
}

func (m *MockOrderService) ListOrders(ctx context.Context, filter repository.ListFilter) ([]models.Order, int, error) {
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	result := make([]models.Order, 0, len(m.orders))
	for _, order := range m.orders {
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		result = append(result, *order)
	}
	return result, len(result), nil
}

func (m *MockOrderService) UpdateOrder(ctx context.Context, id int64, patch oms.OrderPatch) (*models.Order, error) {
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	order, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	if err := oms.ApplyUpdate(order, patch); err != nil {
		return nil, err
	}
	return order, nil
}

func (m *MockOrderService) SubmitOrder(ctx context.Context, id int64) (*models.Order, *models.RiskCheckResult, error) {
	if m.submitErr != nil {
		return nil, nil, m.submitErr
	}
	order, ok := m.orders[id]
	if !ok {
		return nil, nil, repository.ErrOrderNotFound
	}
	order.Status = models.StatusSubmitted
	return order, m.riskResult, nil
}

func (m *MockOrderService) CancelOrder(ctx context.Context, id int64) (*models.Order, error) {
	if m.cancelErr != nil {
		return nil, m.cancelErr
	}
	order, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	order.Status = models.StatusCancelled
	return order, nil
}

func (m *MockOrderService) DeleteOrder(ctx context.Context, id int64) error {
	order, ok := m.orders[id]
	if !ok {
		return repository.ErrOrderNotFound
	}
	if order.IsActive() {
		return service.ErrOrderActive
	}
	delete(m.orders, id)
	return nil
}

func (m *MockOrderService) GetOrderFills(ctx context.Context, id int64) ([]models.Fill, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if _, ok := m.orders[id]; !ok {
		return nil, repository.ErrOrderNotFound
	}
	return m.fills[id], nil
}

func (m *MockOrderService) CheckRisk(ctx context.Context, spec oms.OrderSpec) (*models.RiskCheckResult, error) {
	if _, err := oms.NewOrder(spec); err != nil {
		return nil, err
	}
	return m.riskResult, nil
}

// ============ Mock VenueService ============

type MockVenueService struct {
	venues map[string]*models.VenueAccount

	connectErr    error
	disconnectErr error
	getErr        error
}

func NewMockVenueService() *MockVenueService {
	return &MockVenueService{
		venues: make(map[string]*models.VenueAccount),
	}
}

func (m *MockVenueService) ConnectVenue(ctx context.Context, name, apiKey, secretKey string) error {
	if m.connectErr != nil {
		return m.connectErr
	}
	m.venues[name] = &models.VenueAccount{Name: name, Connected: true}
	return nil
}

func (m *MockVenueService) DisconnectVenue(ctx context.Context, name string) error {
	if m.disconnectErr != nil {
		return m.disconnectErr
	}
	account, ok := m.venues[name]
	if !ok {
		return service.ErrVenueNotConnected
	}
	account.Connected = false
	return nil
}

func (m *MockVenueService) GetAllVenues(ctx context.Context) ([]models.VenueAccount, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	result := make([]models.VenueAccount, 0, len(m.venues))
	for _, account := range m.venues {
		result = append(result, *account)
	}
	return result, nil
}

func (m *MockVenueService) GetVenueByName(ctx context.Context, name string) (*models.VenueAccount, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	account, ok := m.venues[strings.ToLower(name)]
	if !ok {
		return nil, repository.ErrVenueNotFound
	}
	return account, nil
}

func (m *MockVenueService) RestoreConnections(ctx context.Context) int {
	return 0
}

// ============ Mock StatsService ============

type MockStatsService struct {
	stats   *models.ExecutionStats
	symbols []models.SymbolStat
	getErr  error
}

func NewMockStatsService() *MockStatsService {
	return &MockStatsService{
		stats: &models.ExecutionStats{
			OrdersByStatus: map[string]int{models.StatusFilled: 3},
			OrdersByVenue:  map[string]int{"mock": 3},
			TotalOrders:    3,
			TotalFills:     6,
			TradedVolume:   decimal.RequireFromString("1800"),
		},
	}
}

func (m *MockStatsService) GetStats(ctx context.Context) (*models.ExecutionStats, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.stats, nil
}

func (m *MockStatsService) GetTopSymbols(ctx context.Context, limit int) ([]models.SymbolStat, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if limit < len(m.symbols) {
		return m.symbols[:limit], nil
	}
	return m.symbols, nil
}

// ============ Mock ExecutionService ============

type MockExecutionService struct {
	running  bool
	startErr error
	stopErr  error
}

func NewMockExecutionService() *MockExecutionService {
	return &MockExecutionService{}
}

func (m *MockExecutionService) Start(ctx context.Context) error {
	if m.startErr != nil {
		return m.startErr
	}
	m.running = true
	return nil
}

func (m *MockExecutionService) Stop() error {
	if m.stopErr != nil {
		return m.stopErr
	}
	if !m.running {
		return oms.ErrServiceNotRunning
	}
	m.running = false
	return nil
}

func (m *MockExecutionService) Running() bool { return m.running }

func (m *MockExecutionService) Status() oms.ServiceStatus {
	state := "stopped"
	if m.running {
		state = "running"
	}
	return oms.ServiceStatus{State: state, QueueDepth: 0}
}

func (m *MockExecutionService) Submit(ctx context.Context, orderID int64) (*models.RiskCheckResult, error) {
	return &models.RiskCheckResult{Passed: true}, nil
}

func (m *MockExecutionService) Cancel(ctx context.Context, orderID int64) (*models.Order, error) {
	return &models.Order{ID: orderID, Status: models.StatusCancelled}, nil
}

// Компиляционные проверки соответствия моков интерфейсам
var _ service.OrderServiceInterface = (*MockOrderService)(nil)
var _ service.VenueServiceInterface = (*MockVenueService)(nil)
var _ service.StatsServiceInterface = (*MockStatsService)(nil)
var _ service.ExecutionServiceInterface = (*MockExecutionService)(nil)
