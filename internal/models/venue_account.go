package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// VenueAccount представляет аккаунт на внешней торговой площадке
type VenueAccount struct {
	ID          int64           `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`             // mock, broker
	AccountID   string          `json:"account_id" db:"account_id"` // идентификатор аккаунта на площадке
	APIKey      string          `json:"-" db:"api_key"`             // зашифрован, не возвращается в JSON
	SecretKey   string          `json:"-" db:"secret_key"`          // зашифрован
	Connected   bool            `json:"connected" db:"connected"`
	BuyingPower decimal.Decimal `json:"buying_power" db:"buying_power"` // доступные средства на площадке
	LastError   string          `json:"last_error,omitempty" db:"last_error"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}
