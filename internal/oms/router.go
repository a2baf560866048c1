package oms

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"oms/internal/models"
	"oms/internal/venue"
)

// RouterConfig содержит настройки маршрутизатора
type RouterConfig struct {
	// Routes - соответствие символа площадке
	Routes map[string]string

	// DefaultVenue - площадка по умолчанию для символов вне Routes
	DefaultVenue string

	// VenueTimeout - таймаут одного вызова площадки
	VenueTimeout time.Duration
}

// AccountSource отдаёт read-only снимок аккаунта для проверки риска
type AccountSource interface {
	AccountContext(ctx context.Context, order *models.Order) (models.AccountContext, error)
}

// ExecutionRouter направляет ордера на площадки: гейт риска перед отправкой,
// выбор коннектора по символу, отмена и периодическая сверка состояния.
// Маршрутизатор держит только id ордера и читает/пишет состояние через
// OrderStore - прямой мутации полей в обход ядра нет.
type ExecutionRouter struct {
	cfg      RouterConfig
	risk     *RiskValidator
	accounts AccountSource
	orders   OrderStore
	recorder *FillRecorder
	locks    *OrderLocks
	logger   *zap.Logger

	// onVenueStatus вызывается при смене состояния подключения площадки,
	// onTransition - после перехода статуса, применённого сверкой
	onVenueStatus func(name string, connected bool)
	onTransition  func(order *models.Order)

	mu            sync.RWMutex
	connectors    map[string]venue.Connector
	lastConnected map[string]bool
}

// NewExecutionRouter создаёт маршрутизатор
func NewExecutionRouter(
	cfg RouterConfig,
	risk *RiskValidator,
	accounts AccountSource,
	orders OrderStore,
	recorder *FillRecorder,
	locks *OrderLocks,
	logger *zap.Logger,
) *ExecutionRouter {
	if cfg.VenueTimeout <= 0 {
		cfg.VenueTimeout = 10 * time.Second
	}
	if locks == nil {
		locks = NewOrderLocks()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecutionRouter{
		cfg:        cfg,
		risk:       risk,
		accounts:   accounts,
		orders:     orders,
		recorder:   recorder,
		locks:      locks,
		logger:        logger,
		connectors:    make(map[string]venue.Connector),
		lastConnected: make(map[string]bool),
	}
}

// RegisterConnector добавляет коннектор площадки
func (r *ExecutionRouter) RegisterConnector(c venue.Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[c.Name()] = c
	r.lastConnected[c.Name()] = c.Connected()
	SetVenueConnected(c.Name(), c.Connected())
}

// SetOnVenueStatus регистрирует callback на смену состояния подключения
// площадки, замеченную сверкой. Вызывается до Start сервиса исполнения.
func (r *ExecutionRouter) SetOnVenueStatus(fn func(name string, connected bool)) {
	r.onVenueStatus = fn
}

// SetOnTransition регистрирует callback на переходы статуса, применённые
// сверкой или снятием по сроку. Клиентские отмены через CancelOrder сюда
// не попадают.
func (r *ExecutionRouter) SetOnTransition(fn func(order *models.Order)) {
	r.onTransition = fn
}

// noteVenueConnectivity обновляет метрику подключения и уведомляет
// подписчика, когда наблюдаемое состояние площадки сменилось
func (r *ExecutionRouter) noteVenueConnectivity(name string, connected bool) {
	SetVenueConnected(name, connected)

	r.mu.Lock()
	last, seen := r.lastConnected[name]
	r.lastConnected[name] = connected
	r.mu.Unlock()

	if r.onVenueStatus != nil && seen && last != connected {
		r.onVenueStatus(name, connected)
	}
}

// Connector возвращает коннектор по имени площадки
func (r *ExecutionRouter) Connector(name string) (venue.Connector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connectors[name]
	return c, ok
}

// Connectors возвращает все зарегистрированные коннекторы
func (r *ExecutionRouter) Connectors() []venue.Connector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]venue.Connector, 0, len(r.connectors))
	for _, c := range r.connectors {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// SubmitOrder проводит ордер через гейт риска и отправляет на площадку.
// Не прошедший проверку ордер остаётся в pending, результат проверки
// возвращается вызывающей стороне без перехода статуса. Таймаут площадки
// тоже оставляет ордер в pending с зафиксированной ошибкой: успешность
// отправки разрешит reconcile-цикл.
func (r *ExecutionRouter) SubmitOrder(ctx context.Context, orderID int64) (*models.RiskCheckResult, error) {
	r.locks.Lock(orderID)
	defer r.locks.Unlock(orderID)

	order, err := r.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.StatusPending {
		return nil, fmt.Errorf("%w: order %d is %s, only pending orders can be submitted",
			ErrOrderNotEditable, order.ID, order.Status)
	}

	acct, err := r.accounts.AccountContext(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("load account context: %w", err)
	}

	result := r.risk.Check(order, acct)
	order.RiskCheckPassed = result.Passed
	order.RiskCheckMsg = strings.Join(result.Errors, "; ")
	if !result.Passed {
		for _, e := range result.Errors {
			RecordRiskRejection(riskCode(e))
		}
		if err := r.orders.UpdateExecution(ctx, order); err != nil {
			return result, err
		}
		r.logger.Warn("order failed risk check",
			zap.Int64("order_id", order.ID),
			zap.Strings("errors", result.Errors))
		return result, nil
	}

	conn, err := r.pickConnector(order)
	if err != nil {
		return result, err
	}

	tctx, cancel := context.WithTimeout(ctx, r.cfg.VenueTimeout)
	defer cancel()

	start := time.Now()
	ref, err := conn.Submit(tctx, order)
	if err != nil {
		// Ордер остаётся в pending: мы не знаем, принят ли он площадкой
		order.LastError = err.Error()
		if uerr := r.orders.UpdateExecution(ctx, order); uerr != nil {
			r.logger.Error("failed to persist submit error", zap.Int64("order_id", order.ID), zap.Error(uerr))
		}
		return result, fmt.Errorf("submit to %s: %w", conn.Name(), err)
	}

	order.ExternalOrderID = ref
	order.Venue = conn.Name()
	order.LastError = ""
	if err := Transition(order, models.StatusSubmitted); err != nil {
		return result, err
	}
	if err := r.orders.UpdateExecution(ctx, order); err != nil {
		return result, err
	}

	RecordOrderSubmitted(conn.Name(), order.OrderType, time.Since(start))
	r.logger.Info("order submitted",
		zap.Int64("order_id", order.ID),
		zap.String("venue", conn.Name()),
		zap.String("external_ref", ref))
	return result, nil
}

// riskCode извлекает код проверки из сообщения об ошибке
func riskCode(msg string) string {
	if i := strings.Index(msg, ":"); i > 0 {
		return msg[:i]
	}
	return msg
}

// pickConnector выбирает площадку для ордера.
// Символьная маршрутизация с откатом на площадку по умолчанию; срочные
// ордера при недоступности целевой площадки уходят на любую живую.
func (r *ExecutionRouter) pickConnector(order *models.Order) (venue.Connector, error) {
	name, ok := r.cfg.Routes[order.Symbol]
	if !ok {
		name = r.cfg.DefaultVenue
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if c, ok := r.connectors[name]; ok && c.Connected() {
		return c, nil
	}

	// Приоритет влияет только на выбор площадки, не на семантику исполнения
	if order.Priority == models.PriorityHigh || order.Priority == models.PriorityUrgent {
		names := make([]string, 0, len(r.connectors))
		for n := range r.connectors {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			if c := r.connectors[n]; c.Connected() {
				r.logger.Warn("primary venue unavailable, rerouting priority order",
					zap.Int64("order_id", order.ID),
					zap.String("primary", name),
					zap.String("fallback", n))
				return c, nil
			}
		}
	}

	return nil, fmt.Errorf("%w: venue %q is not available for %s",
		ErrNoAvailableVenue, name, order.Symbol)
}

// CancelOrder отменяет активный ордер.
// Неактивный ордер возвращает ErrOrderNotEditable без изменения состояния.
func (r *ExecutionRouter) CancelOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	r.locks.Lock(orderID)
	defer r.locks.Unlock(orderID)

	order, err := r.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.IsActive() {
		return nil, fmt.Errorf("%w: order %d is %s", ErrOrderNotEditable, order.ID, order.Status)
	}

	// Ордер ещё не покидал систему - отменяем локально
	if order.ExternalOrderID == "" {
		if err := Transition(order, models.StatusCancelled); err != nil {
			return nil, err
		}
		if err := r.orders.UpdateExecution(ctx, order); err != nil {
			return nil, err
		}
		RecordOrderCancelled()
		return order, nil
	}

	conn, ok := r.Connector(order.Venue)
	if !ok || !conn.Connected() {
		return nil, fmt.Errorf("%w: venue %q is not available for cancel", ErrNoAvailableVenue, order.Venue)
	}

	tctx, cancel := context.WithTimeout(ctx, r.cfg.VenueTimeout)
	defer cancel()

	if err := conn.Cancel(tctx, order.ExternalOrderID); err != nil {
		order.LastError = err.Error()
		if uerr := r.orders.UpdateExecution(ctx, order); uerr != nil {
			r.logger.Error("failed to persist cancel error", zap.Int64("order_id", order.ID), zap.Error(uerr))
		}
		return nil, fmt.Errorf("cancel on %s: %w", conn.Name(), err)
	}

	order.LastError = ""
	if err := Transition(order, models.StatusCancelled); err != nil {
		return nil, err
	}
	if err := r.orders.UpdateExecution(ctx, order); err != nil {
		return nil, err
	}
	RecordOrderCancelled()
	r.logger.Info("order cancelled",
		zap.Int64("order_id", order.ID),
		zap.String("venue", order.Venue))
	return order, nil
}

// Reconcile сверяет активные ордера с состоянием площадок.
// Внешние исполнения становятся внутренними Fill через тот же путь
// приёма, что и push-отчёты; площадки опрашиваются параллельно.
func (r *ExecutionRouter) Reconcile(ctx context.Context) error {
	start := time.Now()
	defer func() { RecordReconcileDuration(time.Since(start)) }()

	active, err := r.orders.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active orders: %w", err)
	}
	SetActiveOrders(len(active))

	// Группируем по площадке; ордера без площадки ещё не отправлены
	byVenue := make(map[string][]models.Order)
	for _, o := range active {
		if o.Venue == "" || o.ExternalOrderID == "" {
			continue
		}
		byVenue[o.Venue] = append(byVenue[o.Venue], o)
	}

	g, gctx := errgroup.WithContext(ctx)
	for name, group := range byVenue {
		name, group := name, group
		g.Go(func() error {
			conn, ok := r.Connector(name)
			if !ok {
				SetVenueConnected(name, false)
				r.logger.Warn("venue unavailable during reconcile", zap.String("venue", name))
				return nil
			}
			// Отключённую площадку опрашиваем всё равно: первый успешный
			// запрос вернёт флаг соединения. До тех пор ордера остаются
			// в последнем известном состоянии.
			if !conn.Connected() {
				r.logger.Warn("polling disconnected venue during reconcile", zap.String("venue", name))
			}
			for _, o := range group {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				r.reconcileOrder(gctx, conn, o.ID, o.ExternalOrderID)
			}
			r.noteVenueConnectivity(name, conn.Connected())
			return nil
		})
	}
	return g.Wait()
}

// reconcileOrder сверяет один ордер с площадкой
func (r *ExecutionRouter) reconcileOrder(ctx context.Context, conn venue.Connector, orderID int64, externalRef string) {
	tctx, cancel := context.WithTimeout(ctx, r.cfg.VenueTimeout)
	defer cancel()

	status, err := conn.QueryStatus(tctx, externalRef)
	if err != nil {
		r.logger.Warn("query status failed",
			zap.Int64("order_id", orderID),
			zap.String("venue", conn.Name()),
			zap.Error(err))
		return
	}

	// Подтверждение приёма до учёта исполнений: переход в partially_filled
	// допустим только из accepted
	switch status.Status {
	case venue.StatusWorking, venue.StatusPartiallyFilled, venue.StatusFilled:
		r.applyExternalStatus(ctx, orderID, conn.Name(), status.Status)
	}

	// Идемпотентность приёмника отбрасывает уже учтённые исполнения
	for _, f := range status.Fills {
		report := ExecutionReport{
			OrderID:         orderID,
			Venue:           conn.Name(),
			ExternalRef:     externalRef,
			ExternalFillID:  f.ExternalFillID,
			Quantity:        f.Quantity,
			Price:           f.Price,
			Commission:      f.Commission,
			CommissionAsset: f.CommissionAsset,
			Liquidity:       f.Liquidity,
			Counterparty:    f.Counterparty,
			FillTime:        f.FillTime,
		}
		if _, err := r.recorder.Ingest(ctx, orderID, report); err != nil {
			r.logger.Error("failed to ingest reconciled fill",
				zap.Int64("order_id", orderID),
				zap.String("external_fill_id", f.ExternalFillID),
				zap.Error(err))
		}
	}

	// Терминальные статусы площадки применяются после учёта исполнений,
	// чтобы частично исполненный IOC сперва получил свои fills
	switch status.Status {
	case venue.StatusCancelled, venue.StatusRejected, venue.StatusExpired:
		r.applyExternalStatus(ctx, orderID, conn.Name(), status.Status)
	}
}

// applyExternalStatus приводит статус ордера к данным площадки
func (r *ExecutionRouter) applyExternalStatus(ctx context.Context, orderID int64, venueName, external string) {
	r.locks.Lock(orderID)
	defer r.locks.Unlock(orderID)

	order, err := r.orders.GetByID(ctx, orderID)
	if err != nil {
		r.logger.Error("reload order during reconcile", zap.Int64("order_id", orderID), zap.Error(err))
		return
	}

	var target string
	switch external {
	case venue.StatusWorking, venue.StatusPartiallyFilled, venue.StatusFilled:
		// Площадка знает об ордере - подтверждение приёма; исполнения
		// уже учтены приёмником
		if order.Status == models.StatusSubmitted {
			target = models.StatusAccepted
		}
	case venue.StatusCancelled:
		if order.IsActive() {
			target = models.StatusCancelled
		}
	case venue.StatusRejected:
		if order.Status == models.StatusSubmitted || order.Status == models.StatusAccepted {
			target = models.StatusRejected
			order.LastError = "rejected by venue " + venueName
		}
	case venue.StatusExpired:
		if order.IsActive() {
			target = models.StatusExpired
		}
	}
	if target == "" {
		return
	}

	if err := Transition(order, target); err != nil {
		r.logger.Error("reconcile transition failed",
			zap.Int64("order_id", orderID),
			zap.String("target", target),
			zap.Error(err))
		return
	}
	if err := r.orders.UpdateExecution(ctx, order); err != nil {
		r.logger.Error("persist reconciled status", zap.Int64("order_id", orderID), zap.Error(err))
		return
	}
	if target == models.StatusCancelled {
		RecordOrderCancelled()
	}
	if target == models.StatusRejected {
		RecordOrderRejected("venue")
	}
	if r.onTransition != nil {
		r.onTransition(order)
	}
	r.logger.Info("order status reconciled",
		zap.Int64("order_id", orderID),
		zap.String("status", target))
}

// ExpireDue переводит просроченные GTD-ордера в expired.
// Вызывается планировщиком сервиса, не клиентами.
func (r *ExecutionRouter) ExpireDue(ctx context.Context, now time.Time) {
	active, err := r.orders.ListActive(ctx)
	if err != nil {
		r.logger.Error("list active orders for expiry sweep", zap.Error(err))
		return
	}

	for _, o := range active {
		if o.TimeInForce != models.TIFGTD || o.ExpireTime == nil || o.ExpireTime.After(now) {
			continue
		}
		r.expireOrder(ctx, o.ID)
	}
}

func (r *ExecutionRouter) expireOrder(ctx context.Context, orderID int64) {
	r.locks.Lock(orderID)
	defer r.locks.Unlock(orderID)

	order, err := r.orders.GetByID(ctx, orderID)
	if err != nil || !order.IsActive() {
		return
	}

	// Остаток на площадке снимается по возможности; даже если отмена
	// не прошла, внутренний статус фиксируется как expired
	if order.ExternalOrderID != "" {
		if conn, ok := r.Connector(order.Venue); ok && conn.Connected() {
			tctx, cancel := context.WithTimeout(ctx, r.cfg.VenueTimeout)
			if err := conn.Cancel(tctx, order.ExternalOrderID); err != nil {
				r.logger.Warn("venue cancel on expiry failed",
					zap.Int64("order_id", order.ID), zap.Error(err))
			}
			cancel()
		}
	}

	if err := Transition(order, models.StatusExpired); err != nil {
		r.logger.Error("expire transition failed", zap.Int64("order_id", order.ID), zap.Error(err))
		return
	}
	if err := r.orders.UpdateExecution(ctx, order); err != nil {
		r.logger.Error("persist expired order", zap.Int64("order_id", order.ID), zap.Error(err))
		return
	}
	if r.onTransition != nil {
		r.onTransition(order)
	}
	r.logger.Info("order expired", zap.Int64("order_id", order.ID))
}
