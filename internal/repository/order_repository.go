package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"oms/internal/models"
)

// Ошибки репозитория ордеров
var (
	ErrOrderNotFound = errors.New("order not found")
)

// Колонки таблицы orders в порядке сканирования
const orderColumns = `id, uuid, external_order_id, symbol, side, order_type,
	quantity, filled_quantity, price, stop_price, avg_fill_price,
	iceberg_quantity, trailing_amount, trailing_percent, max_position_size,
	time_in_force, expire_time, priority, source,
	strategy_id, backtest_id, parent_order_id,
	account_id, venue, status, risk_check_passed, risk_check_message, last_error,
	commission, commission_asset, tags, notes,
	created_at, updated_at, submitted_at, accepted_at, filled_at, cancelled_at`

// Колонки, допускающие сортировку списка
var orderSortColumns = map[string]bool{
	"id":              true,
	"symbol":          true,
	"status":          true,
	"priority":        true,
	"quantity":        true,
	"filled_quantity": true,
	"created_at":      true,
	"updated_at":      true,
}

// OrderRepository - работа с таблицей orders
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository создает новый экземпляр репозитория
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	order := &models.Order{}
	err := row.Scan(
		&order.ID,
		&order.UUID,
		&order.ExternalOrderID,
		&order.Symbol,
		&order.Side,
		&order.OrderType,
		&order.Quantity,
		&order.FilledQuantity,
		&order.Price,
		&order.StopPrice,
		&order.AvgFillPrice,
		&order.IcebergQuantity,
		&order.TrailingAmount,
		&order.TrailingPercent,
		&order.MaxPositionSize,
		&order.TimeInForce,
		&order.ExpireTime,
		&order.Priority,
		&order.Source,
		&order.StrategyID,
		&order.BacktestID,
		&order.ParentOrderID,
		&order.AccountID,
		&order.Venue,
		&order.Status,
		&order.RiskCheckPassed,
		&order.RiskCheckMsg,
		&order.LastError,
		&order.Commission,
		&order.CommissionAsset,
		&order.Tags,
		&order.Notes,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.SubmittedAt,
		&order.AcceptedAt,
		&order.FilledAt,
		&order.CancelledAt,
	)
	if err != nil {
		return nil, err
	}
	return order, nil
}

func collectOrders(rows *sql.Rows) ([]models.Order, error) {
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

// Create создает запись об ордере и возвращает присвоенный id
func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (uuid, external_order_id, symbol, side, order_type,
			quantity, filled_quantity, price, stop_price, avg_fill_price,
			iceberg_quantity, trailing_amount, trailing_percent, max_position_size,
			time_in_force, expire_time, priority, source,
			strategy_id, backtest_id, parent_order_id,
			account_id, venue, status, risk_check_passed, risk_check_message, last_error,
			commission, commission_asset, tags, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32, $33)
		RETURNING id`

	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	return r.db.QueryRowContext(
		ctx,
		query,
		order.UUID,
		order.ExternalOrderID,
		order.Symbol,
		order.Side,
		order.OrderType,
		order.Quantity,
		order.FilledQuantity,
		order.Price,
		order.StopPrice,
		order.AvgFillPrice,
		order.IcebergQuantity,
		order.TrailingAmount,
		order.TrailingPercent,
		order.MaxPositionSize,
		order.TimeInForce,
		order.ExpireTime,
		order.Priority,
		order.Source,
		order.StrategyID,
		order.BacktestID,
		order.ParentOrderID,
		order.AccountID,
		order.Venue,
		order.Status,
		order.RiskCheckPassed,
		order.RiskCheckMsg,
		order.LastError,
		order.Commission,
		order.CommissionAsset,
		order.Tags,
		order.Notes,
		order.CreatedAt,
		order.UpdatedAt,
	).Scan(&order.ID)
}

// GetByID возвращает ордер по ID
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

// GetByUUID возвращает ордер по внешней ссылке
func (r *OrderRepository) GetByUUID(ctx context.Context, uuid string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE uuid = $1`

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, uuid))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

// ListFilter - фильтры и пагинация списка ордеров
type ListFilter struct {
	Status      string
	Symbol      string
	Side        string
	OrderType   string
	Venue       string
	Source      string
	AccountID   string
	Tag         string
	StrategyID  *int64
	QuantityMin *decimal.Decimal
	QuantityMax *decimal.Decimal
	PriceMin    *decimal.Decimal
	PriceMax    *decimal.Decimal
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	SortBy      string
	SortDesc    bool
	Limit       int
	Offset      int
}

func (f ListFilter) where() (string, []interface{}) {
	var conds []string
	var args []interface{}

	add := func(cond string, val interface{}) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.Symbol != "" {
		add("symbol = $%d", f.Symbol)
	}
	if f.Side != "" {
		add("side = $%d", f.Side)
	}
	if f.OrderType != "" {
		add("order_type = $%d", f.OrderType)
	}
	if f.Venue != "" {
		add("venue = $%d", f.Venue)
	}
	if f.Source != "" {
		add("source = $%d", f.Source)
	}
	if f.AccountID != "" {
		add("account_id = $%d", f.AccountID)
	}
	if f.StrategyID != nil {
		add("strategy_id = $%d", *f.StrategyID)
	}
	if f.Tag != "" {
		add("$%d = ANY(tags)", f.Tag)
	}
	if f.QuantityMin != nil {
		add("quantity >= $%d", *f.QuantityMin)
	}
	if f.QuantityMax != nil {
		add("quantity <= $%d", *f.QuantityMax)
	}
	if f.PriceMin != nil {
		add("price >= $%d", *f.PriceMin)
	}
	if f.PriceMax != nil {
		add("price <= $%d", *f.PriceMax)
	}
	if f.CreatedFrom != nil {
		add("created_at >= $%d", *f.CreatedFrom)
	}
	if f.CreatedTo != nil {
		add("created_at <= $%d", *f.CreatedTo)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// List возвращает страницу ордеров по фильтру
func (r *OrderRepository) List(ctx context.Context, filter ListFilter) ([]models.Order, error) {
	where, args := filter.where()

	sortBy := filter.SortBy
	if !orderSortColumns[sortBy] {
		sortBy = "created_at"
	}
	dir := "ASC"
	if filter.SortDesc {
		dir = "DESC"
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	query := fmt.Sprintf(`SELECT %s FROM orders%s ORDER BY %s %s LIMIT $%d OFFSET $%d`,
		orderColumns, where, sortBy, dir, len(args)+1, len(args)+2)
	args = append(args, limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

// CountByFilter возвращает общее число ордеров под фильтром для пагинации
func (r *OrderRepository) CountByFilter(ctx context.Context, filter ListFilter) (int, error) {
	where, args := filter.where()

	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ListActive возвращает все активные ордера для цикла сверки
func (r *OrderRepository) ListActive(ctx context.Context) ([]models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
		WHERE status IN ('pending', 'submitted', 'accepted', 'partially_filled')
		ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

// Update сохраняет клиентские изменения ордера
func (r *OrderRepository) Update(ctx context.Context, order *models.Order) error {
	query := `
		UPDATE orders
		SET quantity = $1, price = $2, stop_price = $3, time_in_force = $4,
			expire_time = $5, priority = $6, tags = $7, notes = $8, updated_at = $9
		WHERE id = $10`

	result, err := r.db.ExecContext(
		ctx,
		query,
		order.Quantity,
		order.Price,
		order.StopPrice,
		order.TimeInForce,
		order.ExpireTime,
		order.Priority,
		order.Tags,
		order.Notes,
		order.UpdatedAt,
		order.ID,
	)
	if err != nil {
		return err
	}
	return requireAffected(result, ErrOrderNotFound)
}

// UpdateExecution сохраняет исполнительное состояние ордера: статус,
// исполненный объём, привязку к площадке и результат проверки риска
func (r *OrderRepository) UpdateExecution(ctx context.Context, order *models.Order) error {
	query := `
		UPDATE orders
		SET external_order_id = $1, venue = $2, status = $3,
			filled_quantity = $4, avg_fill_price = $5,
			commission = $6, commission_asset = $7,
			risk_check_passed = $8, risk_check_message = $9, last_error = $10,
			updated_at = $11, submitted_at = $12, accepted_at = $13,
			filled_at = $14, cancelled_at = $15
		WHERE id = $16`

	result, err := r.db.ExecContext(
		ctx,
		query,
		order.ExternalOrderID,
		order.Venue,
		order.Status,
		order.FilledQuantity,
		order.AvgFillPrice,
		order.Commission,
		order.CommissionAsset,
		order.RiskCheckPassed,
		order.RiskCheckMsg,
		order.LastError,
		order.UpdatedAt,
		order.SubmittedAt,
		order.AcceptedAt,
		order.FilledAt,
		order.CancelledAt,
		order.ID,
	)
	if err != nil {
		return err
	}
	return requireAffected(result, ErrOrderNotFound)
}

// Delete удаляет ордер
func (r *OrderRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(result, ErrOrderNotFound)
}

// DeleteOlderThan удаляет терминальные ордера старше указанной даты
func (r *OrderRepository) DeleteOlderThan(ctx context.Context, timestamp time.Time) (int64, error) {
	query := `DELETE FROM orders
		WHERE created_at < $1
		AND status IN ('filled', 'cancelled', 'rejected', 'expired')`

	result, err := r.db.ExecContext(ctx, query, timestamp)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Count возвращает общее количество ордеров
func (r *OrderRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// CountByStatus возвращает количество ордеров с определенным статусом
func (r *OrderRepository) CountByStatus(ctx context.Context, status string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE status = $1`, status).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func requireAffected(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}
