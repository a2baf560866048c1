package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"oms/internal/models"
)

// Ошибки репозитория исполнений
var (
	ErrFillNotFound = errors.New("fill not found")
)

const fillColumns = `id, uuid, external_fill_id, order_id, quantity, price, value,
	commission, commission_asset, liquidity, counterparty, fill_time, created_at`

// FillRepository - работа с таблицей fills.
// Исполнения неизменяемы: только вставка и чтение, UPDATE отсутствует.
type FillRepository struct {
	db *sql.DB
}

// NewFillRepository создает новый экземпляр репозитория
func NewFillRepository(db *sql.DB) *FillRepository {
	return &FillRepository{db: db}
}

func scanFill(row rowScanner) (*models.Fill, error) {
	fill := &models.Fill{}
	err := row.Scan(
		&fill.ID,
		&fill.UUID,
		&fill.ExternalFillID,
		&fill.OrderID,
		&fill.Quantity,
		&fill.Price,
		&fill.Value,
		&fill.Commission,
		&fill.CommissionAsset,
		&fill.Liquidity,
		&fill.Counterparty,
		&fill.FillTime,
		&fill.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return fill, nil
}

// Create записывает исполнение и возвращает его с присвоенным id
func (r *FillRepository) Create(ctx context.Context, fill *models.Fill) (*models.Fill, error) {
	query := `
		INSERT INTO fills (uuid, external_fill_id, order_id, quantity, price, value,
			commission, commission_asset, liquidity, counterparty, fill_time, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`

	if fill.CreatedAt.IsZero() {
		fill.CreatedAt = time.Now().UTC()
	}

	err := r.db.QueryRowContext(
		ctx,
		query,
		fill.UUID,
		fill.ExternalFillID,
		fill.OrderID,
		fill.Quantity,
		fill.Price,
		fill.Value,
		fill.Commission,
		fill.CommissionAsset,
		fill.Liquidity,
		fill.Counterparty,
		fill.FillTime,
		fill.CreatedAt,
	).Scan(&fill.ID)
	if err != nil {
		return nil, err
	}
	return fill, nil
}

// GetByID возвращает исполнение по ID
func (r *FillRepository) GetByID(ctx context.Context, id int64) (*models.Fill, error) {
	query := `SELECT ` + fillColumns + ` FROM fills WHERE id = $1`

	fill, err := scanFill(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFillNotFound
		}
		return nil, err
	}
	return fill, nil
}

// GetByOrderID возвращает исполнения ордера в хронологическом порядке
func (r *FillRepository) GetByOrderID(ctx context.Context, orderID int64) ([]models.Fill, error) {
	query := `SELECT ` + fillColumns + ` FROM fills
		WHERE order_id = $1
		ORDER BY fill_time ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fills []models.Fill
	for rows.Next() {
		fill, err := scanFill(rows)
		if err != nil {
			return nil, err
		}
		fills = append(fills, *fill)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return fills, nil
}

// ExistsByExternalID проверяет, учтено ли уже исполнение площадки
func (r *FillRepository) ExistsByExternalID(ctx context.Context, orderID int64, externalFillID string) (bool, error) {
	query := `SELECT EXISTS (
		SELECT 1 FROM fills WHERE order_id = $1 AND external_fill_id = $2)`

	var exists bool
	err := r.db.QueryRowContext(ctx, query, orderID, externalFillID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// SumQuantityByOrder возвращает суммарный исполненный объём ордера.
// Источник истины для проверки целостности filled_quantity.
func (r *FillRepository) SumQuantityByOrder(ctx context.Context, orderID int64) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(quantity), 0) FROM fills WHERE order_id = $1`

	var sum decimal.Decimal
	err := r.db.QueryRowContext(ctx, query, orderID).Scan(&sum)
	if err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}

// CountByOrder возвращает число исполнений ордера
func (r *FillRepository) CountByOrder(ctx context.Context, orderID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM fills WHERE order_id = $1`, orderID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}
