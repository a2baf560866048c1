package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"oms/internal/models"
	"oms/internal/oms"
	"oms/internal/repository"
)

// ErrOrderActive возвращается при попытке удалить неотменённый ордер
var ErrOrderActive = errors.New("cannot delete an active order")

// OrderBroadcaster - интерфейс для отправки обновлений ордеров через WebSocket
type OrderBroadcaster interface {
	BroadcastOrderUpdate(order *models.Order)
	BroadcastFillUpdate(order *models.Order, fill *models.Fill)
}

// OrderService - бизнес-логика работы с ордерами: создание, изменение,
// отправка в исполнение и чтение. Переходы статусов и гейт риска живут
// в ядре исполнения, сервис владеет хранением и оркестрацией.
type OrderService struct {
	orderRepo OrderRepositoryInterface
	fillRepo  FillRepositoryInterface
	exec      ExecutionServiceInterface
	risk      *oms.RiskValidator
	accounts  oms.AccountSource
	locks     *oms.OrderLocks
	logger    *zap.Logger

	// WebSocket hub для broadcast обновлений
	wsHub OrderBroadcaster
}

// NewOrderService создает новый экземпляр сервиса
func NewOrderService(
	orderRepo OrderRepositoryInterface,
	fillRepo FillRepositoryInterface,
	exec ExecutionServiceInterface,
	risk *oms.RiskValidator,
	accounts oms.AccountSource,
	locks *oms.OrderLocks,
	logger *zap.Logger,
) *OrderService {
	if locks == nil {
		locks = oms.NewOrderLocks()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderService{
		orderRepo: orderRepo,
		fillRepo:  fillRepo,
		exec:      exec,
		risk:      risk,
		accounts:  accounts,
		locks:     locks,
		logger:    logger,
	}
}

// SetWebSocketHub устанавливает WebSocket hub для broadcast обновлений.
// Вызывается после инициализации Hub в main.go.
func (s *OrderService) SetWebSocketHub(hub OrderBroadcaster) {
	s.wsHub = hub
}

// CreateOrder создает ордер из спецификации клиента.
// Ордер рождается в pending; при autoSubmit сразу уходит в исполнение,
// и результат гейта риска возвращается вместе с ордером.
func (s *OrderService) CreateOrder(ctx context.Context, spec oms.OrderSpec, autoSubmit bool) (*models.Order, *models.RiskCheckResult, error) {
	order, err := oms.NewOrder(spec)
	if err != nil {
		return nil, nil, err
	}

	if err := s.orderRepo.Create(ctx, order); err != nil {
		return nil, nil, err
	}
	s.logger.Info("order created",
		zap.Int64("order_id", order.ID),
		zap.String("symbol", order.Symbol),
		zap.String("order_type", order.OrderType),
		zap.String("quantity", order.Quantity.String()))
	s.broadcast(order)

	if !autoSubmit {
		return order, nil, nil
	}

	result, err := s.exec.Submit(ctx, order.ID)
	if err != nil {
		// Ордер создан, но не отправлен: возвращаем его вместе с ошибкой,
		// клиент может повторить отправку отдельным вызовом
		created, gerr := s.orderRepo.GetByID(ctx, order.ID)
		if gerr == nil {
			order = created
		}
		return order, result, err
	}

	created, err := s.orderRepo.GetByID(ctx, order.ID)
	if err != nil {
		return order, result, err
	}
	s.broadcast(created)
	return created, result, nil
}

// GetOrder возвращает ордер по ID
func (s *OrderService) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	return s.orderRepo.GetByID(ctx, id)
}

// GetOrderByUUID возвращает ордер по внешней ссылке
func (s *OrderService) GetOrderByUUID(ctx context.Context, uuid string) (*models.Order, error) {
	return s.orderRepo.GetByUUID(ctx, uuid)
}

// ListOrders возвращает страницу ордеров и общее число под фильтром
func (s *OrderService) ListOrders(ctx context.Context, filter repository.ListFilter) ([]models.Order, int, error) {
	orders, err := s.orderRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.orderRepo.CountByFilter(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// UpdateOrder применяет клиентские изменения к активному ордеру.
// Все проверки выполняются до применения: отклонённое изменение
// не оставляет частичных следов.
func (s *OrderService) UpdateOrder(ctx context.Context, id int64, patch oms.OrderPatch) (*models.Order, error) {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := oms.ApplyUpdate(order, patch); err != nil {
		return nil, err
	}

	if err := s.orderRepo.Update(ctx, order); err != nil {
		return nil, err
	}
	s.logger.Info("order updated", zap.Int64("order_id", order.ID))
	s.broadcast(order)
	return order, nil
}

// SubmitOrder отправляет ранее созданный ордер в исполнение
func (s *OrderService) SubmitOrder(ctx context.Context, id int64) (*models.Order, *models.RiskCheckResult, error) {
	result, err := s.exec.Submit(ctx, id)
	if err != nil {
		return nil, result, err
	}

	order, gerr := s.orderRepo.GetByID(ctx, id)
	if gerr != nil {
		return nil, result, gerr
	}
	s.broadcast(order)
	return order, result, nil
}

// CancelOrder отменяет активный ордер
func (s *OrderService) CancelOrder(ctx context.Context, id int64) (*models.Order, error) {
	order, err := s.exec.Cancel(ctx, id)
	if err != nil {
		return nil, err
	}
	s.broadcast(order)
	return order, nil
}

// DeleteOrder удаляет терминальный ордер вместе с его исполнениями.
// Активный ордер сначала нужно отменить: удаление в обход площадки
// оставило бы открытую позицию без учёта.
func (s *OrderService) DeleteOrder(ctx context.Context, id int64) error {
	s.locks.Lock(id)
	defer s.locks.Unlock(id)

	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if order.IsActive() {
		return ErrOrderActive
	}

	if err := s.orderRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("order deleted",
		zap.Int64("order_id", id),
		zap.String("status", order.Status))
	return nil
}

// GetOrderFills возвращает исполнения ордера в хронологическом порядке
func (s *OrderService) GetOrderFills(ctx context.Context, id int64) ([]models.Fill, error) {
	// Подтверждаем существование ордера, чтобы отличить пустой список от 404
	if _, err := s.orderRepo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.fillRepo.GetByOrderID(ctx, id)
}

// CheckRisk выполняет предторговую проверку без создания ордера.
// Черновик собирается по тем же правилам валидации, что и настоящий ордер.
func (s *OrderService) CheckRisk(ctx context.Context, spec oms.OrderSpec) (*models.RiskCheckResult, error) {
	draft, err := oms.NewOrder(spec)
	if err != nil {
		return nil, err
	}

	acct, err := s.accounts.AccountContext(ctx, draft)
	if err != nil {
		return nil, err
	}
	return s.risk.Check(draft, acct), nil
}

func (s *OrderService) broadcast(order *models.Order) {
	if s.wsHub != nil {
		s.wsHub.BroadcastOrderUpdate(order)
	}
}

// BroadcastFill пробрасывает исполнение в WebSocket hub.
// Подключается как обратный вызов приёмника исполнений.
func (s *OrderService) BroadcastFill(order *models.Order, fill *models.Fill) {
	if s.wsHub != nil {
		s.wsHub.BroadcastFillUpdate(order, fill)
	}
}
