package venue

import (
	"context"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"oms/internal/models"
)

// Connector определяет унифицированный интерфейс внешней торговой площадки.
// Маршрутизатор зависит только от этой абстракции: mock для тестов и демо,
// брокерские реализации для боевых площадок.
type Connector interface {
	// Connect устанавливает соединение с площадкой
	Connect(apiKey, secret string) error

	// Name возвращает имя площадки
	Name() string

	// AccountID возвращает идентификатор аккаунта на площадке
	AccountID() string

	// Connected сообщает текущее состояние соединения;
	// отключённая площадка недоступна для маршрутизации
	Connected() bool

	// Submit отправляет ордер и возвращает внешнюю ссылку площадки
	Submit(ctx context.Context, order *models.Order) (string, error)

	// Cancel отменяет ордер по внешней ссылке
	Cancel(ctx context.Context, externalRef string) error

	// QueryStatus запрашивает состояние ордера на площадке
	QueryStatus(ctx context.Context, externalRef string) (*ExternalStatus, error)

	// Close закрывает соединение с площадкой
	Close() error
}

// ExternalStatus - состояние ордера по данным площадки
type ExternalStatus struct {
	ExternalRef    string          `json:"external_ref"`
	Status         string          `json:"status"` // working, accepted, partially_filled, filled, cancelled, rejected, expired
	FilledQuantity decimal.Decimal `json:"filled_quantity"`
	AvgFillPrice   decimal.Decimal `json:"avg_fill_price"`
	Fills          []FillReport    `json:"fills"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// FillReport - отчёт площадки об одном исполнении
type FillReport struct {
	ExternalFillID  string          `json:"external_fill_id"`
	Quantity        decimal.Decimal `json:"quantity"`
	Price           decimal.Decimal `json:"price"`
	Commission      decimal.Decimal `json:"commission"`
	CommissionAsset string          `json:"commission_asset"`
	Liquidity       string          `json:"liquidity"`
	Counterparty    string          `json:"counterparty,omitempty"`
	FillTime        time.Time       `json:"fill_time"`
}

// Статусы ордера на площадке
const (
	StatusWorking         = "working" // принят, исполнений нет
	StatusPartiallyFilled = "partially_filled"
	StatusFilled          = "filled"
	StatusCancelled       = "cancelled"
	StatusRejected        = "rejected"
	StatusExpired         = "expired"
)

// VenueError представляет ошибку от площадки
type VenueError struct {
	Venue    string
	Code     string
	Message  string
	Original error
}

func (e *VenueError) Error() string {
	return e.Venue + ": " + e.Message
}

// Unwrap возвращает оригинальную ошибку для поддержки errors.Is() и errors.As()
func (e *VenueError) Unwrap() error {
	return e.Original
}

// Retryable сообщает имеет ли смысл повторять запрос.
// Сетевые сбои и 5xx ответы транзиентны, ошибки бизнес-логики нет.
func (e *VenueError) Retryable() bool {
	if e.Code == "network" {
		return true
	}
	if code, err := strconv.Atoi(e.Code); err == nil {
		return code >= 500
	}
	return false
}
