package service

import (
	"context"

	"github.com/shopspring/decimal"

	"oms/internal/models"
	"oms/internal/oms"
	"oms/internal/repository"
)

// OrderRepositoryInterface определяет интерфейс репозитория ордеров
type OrderRepositoryInterface interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id int64) (*models.Order, error)
	GetByUUID(ctx context.Context, uuid string) (*models.Order, error)
	List(ctx context.Context, filter repository.ListFilter) ([]models.Order, error)
	CountByFilter(ctx context.Context, filter repository.ListFilter) (int, error)
	ListActive(ctx context.Context) ([]models.Order, error)
	Update(ctx context.Context, order *models.Order) error
	UpdateExecution(ctx context.Context, order *models.Order) error
	Delete(ctx context.Context, id int64) error
	CountByStatus(ctx context.Context, status string) (int, error)
}

// FillRepositoryInterface определяет интерфейс репозитория исполнений
type FillRepositoryInterface interface {
	Create(ctx context.Context, fill *models.Fill) (*models.Fill, error)
	GetByOrderID(ctx context.Context, orderID int64) ([]models.Fill, error)
	ExistsByExternalID(ctx context.Context, orderID int64, externalFillID string) (bool, error)
	SumQuantityByOrder(ctx context.Context, orderID int64) (decimal.Decimal, error)
}

// VenueRepositoryInterface определяет интерфейс репозитория площадок
type VenueRepositoryInterface interface {
	Create(ctx context.Context, account *models.VenueAccount) error
	GetByName(ctx context.Context, name string) (*models.VenueAccount, error)
	GetAll(ctx context.Context) ([]models.VenueAccount, error)
	UpdateCredentials(ctx context.Context, name, apiKey, secretKey string) error
	SetConnected(ctx context.Context, name string, connected bool, buyingPower decimal.Decimal) error
	SetLastError(ctx context.Context, name, lastError string) error
}

// StatsRepositoryInterface определяет интерфейс репозитория статистики
type StatsRepositoryInterface interface {
	GetExecutionStats(ctx context.Context) (*models.ExecutionStats, error)
	GetTopSymbols(ctx context.Context, limit int) ([]models.SymbolStat, error)
}

// ExecutionServiceInterface определяет интерфейс сервиса исполнения
type ExecutionServiceInterface interface {
	Start(ctx context.Context) error
	Stop() error
	Running() bool
	Status() oms.ServiceStatus
	Submit(ctx context.Context, orderID int64) (*models.RiskCheckResult, error)
	Cancel(ctx context.Context, orderID int64) (*models.Order, error)
}

// Проверяем, что реальные реализации соответствуют интерфейсам
var _ OrderRepositoryInterface = (*repository.OrderRepository)(nil)
var _ FillRepositoryInterface = (*repository.FillRepository)(nil)
var _ VenueRepositoryInterface = (*repository.VenueRepository)(nil)
var _ StatsRepositoryInterface = (*repository.StatsRepository)(nil)
var _ ExecutionServiceInterface = (*oms.ExecutionService)(nil)

// ============ Интерфейсы сервисов для Dependency Injection ============

// OrderServiceInterface определяет интерфейс сервиса ордеров
type OrderServiceInterface interface {
	CreateOrder(ctx context.Context, spec oms.OrderSpec, autoSubmit bool) (*models.Order, *models.RiskCheckResult, error)
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	GetOrderByUUID(ctx context.Context, uuid string) (*models.Order, error)
	ListOrders(ctx context.Context, filter repository.ListFilter) ([]models.Order, int, error)
	UpdateOrder(ctx context.Context, id int64, patch oms.OrderPatch) (*models.Order, error)
	SubmitOrder(ctx context.Context, id int64) (*models.Order, *models.RiskCheckResult, error)
	CancelOrder(ctx context.Context, id int64) (*models.Order, error)
	DeleteOrder(ctx context.Context, id int64) error
	GetOrderFills(ctx context.Context, id int64) ([]models.Fill, error)
	CheckRisk(ctx context.Context, spec oms.OrderSpec) (*models.RiskCheckResult, error)
}

// VenueServiceInterface определяет интерфейс сервиса площадок
type VenueServiceInterface interface {
	ConnectVenue(ctx context.Context, name, apiKey, secretKey string) error
	DisconnectVenue(ctx context.Context, name string) error
	GetAllVenues(ctx context.Context) ([]models.VenueAccount, error)
	GetVenueByName(ctx context.Context, name string) (*models.VenueAccount, error)
	RestoreConnections(ctx context.Context) int
}

// StatsServiceInterface определяет интерфейс сервиса статистики
type StatsServiceInterface interface {
	GetStats(ctx context.Context) (*models.ExecutionStats, error)
	GetTopSymbols(ctx context.Context, limit int) ([]models.SymbolStat, error)
}

// Проверяем, что реальные сервисы реализуют интерфейсы
var _ OrderServiceInterface = (*OrderService)(nil)
var _ VenueServiceInterface = (*VenueService)(nil)
var _ StatsServiceInterface = (*StatsService)(nil)
