package oms

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"oms/internal/models"
)

// Состояния жизненного цикла сервиса исполнения
const (
	stateUninitialized int32 = iota
	stateRunning
	stateStopped
)

// ServiceConfig содержит настройки сервиса исполнения
type ServiceConfig struct {
	// ReconcileInterval - период сверки с площадками
	ReconcileInterval time.Duration

	// ExpiryInterval - период проверки просроченных GTD-ордеров
	ExpiryInterval time.Duration
}

// DefaultServiceConfig возвращает настройки по умолчанию
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		ReconcileInterval: 2 * time.Second,
		ExpiryInterval:    10 * time.Second,
	}
}

// VenueHealth - состояние подключения площадки в снимке статуса
type VenueHealth struct {
	Name      string `json:"name"`
	AccountID string `json:"account_id"`
	Connected bool   `json:"connected"`
}

// ServiceStatus - снимок состояния сервиса исполнения
type ServiceStatus struct {
	State          string        `json:"state"`
	StartedAt      *time.Time    `json:"started_at,omitempty"`
	TotalSubmitted int64         `json:"total_submitted"`
	TotalExecuted  int64         `json:"total_executed"`
	TotalCancelled int64         `json:"total_cancelled"`
	TotalRejected  int64         `json:"total_rejected"`
	QueueDepth     int           `json:"queue_depth"`
	Venues         []VenueHealth `json:"venues"`
}

// ExecutionService управляет фоновыми циклами исполнения: сверка с
// площадками, приём отчётов об исполнении из очереди и снятие
// просроченных ордеров. Остановка прекращает циклы, но не отменяет
// ордера, уже находящиеся на площадках.
type ExecutionService struct {
	cfg      ServiceConfig
	router   *ExecutionRouter
	recorder *FillRecorder
	queue    *ReportQueue
	logger   *zap.Logger

	// onStatus вызывается после Start и Stop со свежим снимком состояния
	onStatus func(ServiceStatus)

	state     atomic.Int32
	startedAt atomic.Pointer[time.Time]
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex

	totalSubmitted atomic.Int64
	totalExecuted  atomic.Int64
	totalCancelled atomic.Int64
	totalRejected  atomic.Int64
}

// NewExecutionService создаёт сервис исполнения
func NewExecutionService(
	cfg ServiceConfig,
	router *ExecutionRouter,
	recorder *FillRecorder,
	queue *ReportQueue,
	logger *zap.Logger,
) *ExecutionService {
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = 2 * time.Second
	}
	if cfg.ExpiryInterval <= 0 {
		cfg.ExpiryInterval = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecutionService{
		cfg:      cfg,
		router:   router,
		recorder: recorder,
		queue:    queue,
		logger:   logger,
	}
}

// Running сообщает, запущен ли сервис
func (s *ExecutionService) Running() bool {
	return s.state.Load() == stateRunning
}

// Start запускает фоновые циклы сервиса.
// Повторный запуск работающего сервиса - ошибка.
func (s *ExecutionService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Load() == stateRunning {
		return fmt.Errorf("execution service is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	now := time.Now().UTC()
	s.startedAt.Store(&now)
	s.state.Store(stateRunning)

	s.wg.Add(3)
	go s.reconcileLoop(runCtx)
	go s.consumeReports(runCtx)
	go s.expiryLoop(runCtx)

	s.logger.Info("execution service started",
		zap.Duration("reconcile_interval", s.cfg.ReconcileInterval),
		zap.Duration("expiry_interval", s.cfg.ExpiryInterval))
	s.notifyStatus()
	return nil
}

// SetOnStatusChange регистрирует callback на смену состояния сервиса.
// Вызывается до Start, конкурентная замена не поддерживается.
func (s *ExecutionService) SetOnStatusChange(fn func(ServiceStatus)) {
	s.onStatus = fn
}

func (s *ExecutionService) notifyStatus() {
	if s.onStatus != nil {
		s.onStatus(s.Status())
	}
}

// Stop останавливает фоновые циклы и дожидается их завершения.
// Ордера на площадках не отменяются - только прекращается сверка.
func (s *ExecutionService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Load() != stateRunning {
		return fmt.Errorf("%w: cannot stop", ErrServiceNotRunning)
	}

	s.cancel()
	s.wg.Wait()
	s.state.Store(stateStopped)
	s.logger.Info("execution service stopped",
		zap.Int64("total_submitted", s.totalSubmitted.Load()),
		zap.Int64("total_executed", s.totalExecuted.Load()))
	s.notifyStatus()
	return nil
}

// Status возвращает снимок состояния сервиса и площадок
func (s *ExecutionService) Status() ServiceStatus {
	var stateName string
	switch s.state.Load() {
	case stateRunning:
		stateName = "running"
	case stateStopped:
		stateName = "stopped"
	default:
		stateName = "uninitialized"
	}

	st := ServiceStatus{
		State:          stateName,
		StartedAt:      s.startedAt.Load(),
		TotalSubmitted: s.totalSubmitted.Load(),
		TotalExecuted:  s.totalExecuted.Load(),
		TotalCancelled: s.totalCancelled.Load(),
		TotalRejected:  s.totalRejected.Load(),
	}
	if s.queue != nil {
		st.QueueDepth = s.queue.Len()
	}
	for _, c := range s.router.Connectors() {
		st.Venues = append(st.Venues, VenueHealth{
			Name:      c.Name(),
			AccountID: c.AccountID(),
			Connected: c.Connected(),
		})
	}
	return st
}

// Submit отправляет ордер через маршрутизатор с учётом жизненного цикла
func (s *ExecutionService) Submit(ctx context.Context, orderID int64) (*models.RiskCheckResult, error) {
	if !s.Running() {
		return nil, fmt.Errorf("%w: submissions are not accepted", ErrServiceNotRunning)
	}
	result, err := s.router.SubmitOrder(ctx, orderID)
	if err != nil {
		return result, err
	}
	if result != nil && !result.Passed {
		s.totalRejected.Add(1)
		return result, nil
	}
	s.totalSubmitted.Add(1)
	return result, nil
}

// Cancel отменяет ордер через маршрутизатор
func (s *ExecutionService) Cancel(ctx context.Context, orderID int64) (*models.Order, error) {
	if !s.Running() {
		return nil, fmt.Errorf("%w: cancellations are not accepted", ErrServiceNotRunning)
	}
	order, err := s.router.CancelOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	s.totalCancelled.Add(1)
	return order, nil
}

// NoteExecuted увеличивает счётчик полностью исполненных ордеров.
// Вызывается из обратного вызова приёмника исполнений.
func (s *ExecutionService) NoteExecuted() {
	s.totalExecuted.Add(1)
}

// NoteCancelled учитывает отмену, применённую площадкой во время сверки.
// Клиентские отмены проходят через Cancel и считаются там.
func (s *ExecutionService) NoteCancelled() {
	s.totalCancelled.Add(1)
}

// NoteRejected учитывает отклонение ордера площадкой во время сверки
func (s *ExecutionService) NoteRejected() {
	s.totalRejected.Add(1)
}

// reconcileLoop периодически сверяет активные ордера с площадками
func (s *ExecutionService) reconcileLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.router.Reconcile(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("reconcile cycle failed", zap.Error(err))
			}
		}
	}
}

// consumeReports принимает отчёты об исполнении из очереди.
// Push-отчёты площадок и poll-сверка сходятся в одном приёмнике.
func (s *ExecutionService) consumeReports(ctx context.Context) {
	defer s.wg.Done()

	if s.queue == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case report := <-s.queue.Reports():
			if _, err := s.recorder.Ingest(ctx, report.OrderID, report); err != nil {
				s.logger.Error("failed to ingest queued execution report",
					zap.Int64("order_id", report.OrderID),
					zap.String("external_fill_id", report.ExternalFillID),
					zap.Error(err))
			}
		}
	}
}

// expiryLoop периодически снимает просроченные GTD-ордера
func (s *ExecutionService) expiryLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.ExpiryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.router.ExpireDue(ctx, time.Now().UTC())
		}
	}
}
