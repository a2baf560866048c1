package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"oms/internal/models"
	"oms/internal/oms"
	"oms/internal/repository"
)

// ============ Mock OrderRepository ============

type MockOrderRepository struct {
	orders    map[int64]*models.Order
	nextID    int64
	createErr error
	getErr    error
	listErr   error
	updateErr error
}

func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{
		orders: make(map[int64]*models.Order),
		nextID: 1,
	}
}

func (m *MockOrderRepository) Create(ctx context.Context, order *models.Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	order.ID = m.nextID
	m.nextID++
	order.CreatedAt = time.Now().UTC()
	order.UpdatedAt = order.CreatedAt
	clone := *order
	m.orders[order.ID] = &clone
	return nil
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id int64) (*models.Order, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	order, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	clone := *order
	return &clone, nil
}

func (m *MockOrderRepository) GetByUUID(ctx context.Context, uuid string) (*models.Order, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, order := range m.orders {
		if order.UUID == uuid {
			clone := *order
			return &clone, nil
		}
	}
	return nil, repository.ErrOrderNotFound
}

func (m *MockOrderRepository) List(ctx context.Context, filter repository.ListFilter) ([]models.Order, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	result := make([]models.Order, 0, len(m.orders))
	for _, order := range m.orders {
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		if filter.Symbol != "" && order.Symbol != filter.Symbol {
			continue
		}
		result = append(result, *order)
	}
	return result, nil
}

func (m *MockOrderRepository) CountByFilter(ctx context.Context, filter repository.ListFilter) (int, error) {
	orders, err := m.List(ctx, filter)
	if err != nil {
		return 0, err
	}
	return len(orders), nil
}

func (m *MockOrderRepository) ListActive(ctx context.Context) ([]models.Order, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var result []models.Order
	for _, order := range m.orders {
		if order.IsActive() {
			result = append(result, *order)
		}
	}
	return result, nil
}

func (m *MockOrderRepository) Update(ctx context.Context, order *models.Order) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.orders[order.ID]; !ok {
		return repository.ErrOrderNotFound
	}
	clone := *order
	m.orders[order.ID] = &clone
	return nil
}

func (m *MockOrderRepository) UpdateExecution(ctx context.Context, order *models.Order) error {
	return m.Update(ctx, order)
}

func (m *MockOrderRepository) Delete(ctx context.Context, id int64) error {
	if _, ok := m.orders[id]; !ok {
		return repository.ErrOrderNotFound
	}
	delete(m.orders, id)
	return nil
}

func (m *MockOrderRepository) CountByStatus(ctx context.Context, status string) (int, error) {
	count := 0
	for _, order := range m.orders {
		if order.Status == status {
			count++
		}
	}
	return count, nil
}

// ============ Mock FillRepository ============

type MockFillRepository struct {
	fills     map[int64][]models.Fill
	nextID    int64
	createErr error
	getErr    error
}

func NewMockFillRepository() *MockFillRepository {
	return &MockFillRepository{
		fills:  make(map[int64][]models.Fill),
		nextID: 1,
	}
}

func (m *MockFillRepository) Create(ctx context.Context, fill *models.Fill) (*models.Fill, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	fill.ID = m.nextID
	m.nextID++
	fill.CreatedAt = time.Now().UTC()
	m.fills[fill.OrderID] = append(m.fills[fill.OrderID], *fill)
	clone := *fill
	return &clone, nil
}

func (m *MockFillRepository) GetByOrderID(ctx context.Context, orderID int64) ([]models.Fill, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.fills[orderID], nil
}

func (m *MockFillRepository) ExistsByExternalID(ctx context.Context, orderID int64, externalFillID string) (bool, error) {
	for _, fill := range m.fills[orderID] {
		if fill.ExternalFillID == externalFillID {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockFillRepository) SumQuantityByOrder(ctx context.Context, orderID int64) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, fill := range m.fills[orderID] {
		sum = sum.Add(fill.Quantity)
	}
	return sum, nil
}

// ============ Mock VenueRepository ============

type MockVenueRepository struct {
	accounts  map[string]*models.VenueAccount
	nextID    int64
	createErr error
	getErr    error
	updateErr error
}

func NewMockVenueRepository() *MockVenueRepository {
	return &MockVenueRepository{
		accounts: make(map[string]*models.VenueAccount),
		nextID:   1,
	}
}

func (m *MockVenueRepository) Create(ctx context.Context, account *models.VenueAccount) error {
	if m.createErr != nil {
		return m.createErr
	}
	account.ID = m.nextID
	m.nextID++
	clone := *account
	m.accounts[account.Name] = &clone
	return nil
}

func (m *MockVenueRepository) GetByName(ctx context.Context, name string) (*models.VenueAccount, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	account, ok := m.accounts[strings.ToLower(name)]
	if !ok {
		return nil, repository.ErrVenueNotFound
	}
	clone := *account
	return &clone, nil
}

func (m *MockVenueRepository) GetAll(ctx context.Context) ([]models.VenueAccount, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	result := make([]models.VenueAccount, 0, len(m.accounts))
	for _, account := range m.accounts {
		result = append(result, *account)
	}
	return result, nil
}

func (m *MockVenueRepository) UpdateCredentials(ctx context.Context, name, apiKey, secretKey string) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	account, ok := m.accounts[name]
	if !ok {
		return repository.ErrVenueNotFound
	}
	account.APIKey = apiKey
	account.SecretKey = secretKey
	return nil
}

func (m *MockVenueRepository) SetConnected(ctx context.Context, name string, connected bool, buyingPower decimal.Decimal) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	account, ok := m.accounts[name]
	if !ok {
		return repository.ErrVenueNotFound
	}
	account.Connected = connected
	account.BuyingPower = buyingPower
	account.LastError = ""
	return nil
}

func (m *MockVenueRepository) SetLastError(ctx context.Context, name, lastError string) error {
	account, ok := m.accounts[name]
	if !ok {
		return repository.ErrVenueNotFound
	}
	account.Connected = false
	account.LastError = lastError
	return nil
}

// ============ Mock StatsRepository ============

type MockStatsRepository struct {
	stats   *models.ExecutionStats
	symbols []models.SymbolStat
	getErr  error

	// limit последнего вызова GetTopSymbols
	lastLimit int
}

func NewMockStatsRepository() *MockStatsRepository {
	return &MockStatsRepository{
		stats: &models.ExecutionStats{
			OrdersByStatus: make(map[string]int),
			OrdersByVenue:  make(map[string]int),
		},
	}
}

func (m *MockStatsRepository) GetExecutionStats(ctx context.Context) (*models.ExecutionStats, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.stats, nil
}

func (m *MockStatsRepository) GetTopSymbols(ctx context.Context, limit int) ([]models.SymbolStat, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.lastLimit = limit
	if limit < len(m.symbols) {
		return m.symbols[:limit], nil
	}
	return m.symbols, nil
}

// ============ Mock ExecutionService ============

type MockExecutionService struct {
	running      bool
	submitErr    error
	cancelErr    error
	riskResult   *models.RiskCheckResult
	cancelResult *models.Order

	submitted []int64
	cancelled []int64

	// onSubmit позволяет тесту изменить ордер так, как это сделал бы
	// маршрутизатор (смена статуса, внешний идентификатор)
	onSubmit func(orderID int64)
}

func NewMockExecutionService() *MockExecutionService {
	return &MockExecutionService{
		running:    true,
		riskResult: &models.RiskCheckResult{Passed: true},
	}
}

func (m *MockExecutionService) Start(ctx context.Context) error { m.running = true; return nil }
func (m *MockExecutionService) Stop() error                     { m.running = false; return nil }
func (m *MockExecutionService) Running() bool                   { return m.running }

func (m *MockExecutionService) Status() oms.ServiceStatus {
	state := "stopped"
	if m.running {
		state = "running"
	}
	return oms.ServiceStatus{State: state}
}

func (m *MockExecutionService) Submit(ctx context.Context, orderID int64) (*models.RiskCheckResult, error) {
	if m.submitErr != nil {
		return m.riskResult, m.submitErr
	}
	m.submitted = append(m.submitted, orderID)
	if m.onSubmit != nil {
		m.onSubmit(orderID)
	}
	return m.riskResult, nil
}

func (m *MockExecutionService) Cancel(ctx context.Context, orderID int64) (*models.Order, error) {
	if m.cancelErr != nil {
		return nil, m.cancelErr
	}
	m.cancelled = append(m.cancelled, orderID)
	if m.cancelResult != nil {
		return m.cancelResult, nil
	}
	return &models.Order{ID: orderID, Status: models.StatusCancelled}, nil
}

// ============ Mock OrderBroadcaster ============

type MockBroadcaster struct {
	orderUpdates []int64
	fillUpdates  []int64
}

func (m *MockBroadcaster) BroadcastOrderUpdate(order *models.Order) {
	m.orderUpdates = append(m.orderUpdates, order.ID)
}

func (m *MockBroadcaster) BroadcastFillUpdate(order *models.Order, fill *models.Fill) {
	m.fillUpdates = append(m.fillUpdates, order.ID)
}

// Компиляционные проверки соответствия мока интерфейсу
var _ OrderRepositoryInterface = (*MockOrderRepository)(nil)
var _ FillRepositoryInterface = (*MockFillRepository)(nil)
var _ VenueRepositoryInterface = (*MockVenueRepository)(nil)
var _ StatsRepositoryInterface = (*MockStatsRepository)(nil)
var _ ExecutionServiceInterface = (*MockExecutionService)(nil)
var _ OrderBroadcaster = (*MockBroadcaster)(nil)
