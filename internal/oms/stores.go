package oms

import (
	"context"

	"github.com/shopspring/decimal"

	"oms/internal/models"
)

// OrderStore - доступ ядра к таблице ордеров.
// Ядро мутирует ордер только через операции этого пакета и сохраняет
// результат целиком: единственная точка записи для инвариантов.
type OrderStore interface {
	GetByID(ctx context.Context, id int64) (*models.Order, error)
	UpdateExecution(ctx context.Context, order *models.Order) error
	ListActive(ctx context.Context) ([]models.Order, error)
}

// FillStore - доступ ядра к таблице исполнений
type FillStore interface {
	Create(ctx context.Context, fill *models.Fill) (*models.Fill, error)
	ExistsByExternalID(ctx context.Context, orderID int64, externalFillID string) (bool, error)
	SumQuantityByOrder(ctx context.Context, orderID int64) (decimal.Decimal, error)
}
