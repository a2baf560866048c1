package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"oms/internal/models"
)

// Ошибки репозитория площадок
var (
	ErrVenueNotFound = errors.New("venue account not found")
)

const venueColumns = `id, name, account_id, api_key, secret_key, connected,
	buying_power, last_error, updated_at, created_at`

// VenueRepository - работа с таблицей venue_accounts.
// API-ключи хранятся зашифрованными, шифрует сервисный слой.
type VenueRepository struct {
	db *sql.DB
}

// NewVenueRepository создает новый экземпляр репозитория
func NewVenueRepository(db *sql.DB) *VenueRepository {
	return &VenueRepository{db: db}
}

func scanVenue(row rowScanner) (*models.VenueAccount, error) {
	account := &models.VenueAccount{}
	err := row.Scan(
		&account.ID,
		&account.Name,
		&account.AccountID,
		&account.APIKey,
		&account.SecretKey,
		&account.Connected,
		&account.BuyingPower,
		&account.LastError,
		&account.UpdatedAt,
		&account.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return account, nil
}

// Create создает запись об аккаунте площадки
func (r *VenueRepository) Create(ctx context.Context, account *models.VenueAccount) error {
	query := `
		INSERT INTO venue_accounts (name, account_id, api_key, secret_key, connected,
			buying_power, last_error, updated_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now

	return r.db.QueryRowContext(
		ctx,
		query,
		account.Name,
		account.AccountID,
		account.APIKey,
		account.SecretKey,
		account.Connected,
		account.BuyingPower,
		account.LastError,
		account.UpdatedAt,
		account.CreatedAt,
	).Scan(&account.ID)
}

// GetByName возвращает аккаунт площадки по имени
func (r *VenueRepository) GetByName(ctx context.Context, name string) (*models.VenueAccount, error) {
	query := `SELECT ` + venueColumns + ` FROM venue_accounts WHERE name = $1`

	account, err := scanVenue(r.db.QueryRowContext(ctx, query, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVenueNotFound
		}
		return nil, err
	}
	return account, nil
}

// GetAll возвращает все аккаунты площадок
func (r *VenueRepository) GetAll(ctx context.Context) ([]models.VenueAccount, error) {
	query := `SELECT ` + venueColumns + ` FROM venue_accounts ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []models.VenueAccount
	for rows.Next() {
		account, err := scanVenue(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return accounts, nil
}

// UpdateCredentials сохраняет новые зашифрованные ключи площадки
func (r *VenueRepository) UpdateCredentials(ctx context.Context, name, apiKey, secretKey string) error {
	query := `
		UPDATE venue_accounts
		SET api_key = $1, secret_key = $2, updated_at = $3
		WHERE name = $4`

	result, err := r.db.ExecContext(ctx, query, apiKey, secretKey, time.Now().UTC(), name)
	if err != nil {
		return err
	}
	return requireAffected(result, ErrVenueNotFound)
}

// SetConnected обновляет статус подключения и доступные средства
func (r *VenueRepository) SetConnected(ctx context.Context, name string, connected bool, buyingPower decimal.Decimal) error {
	query := `
		UPDATE venue_accounts
		SET connected = $1, buying_power = $2, last_error = '', updated_at = $3
		WHERE name = $4`

	result, err := r.db.ExecContext(ctx, query, connected, buyingPower, time.Now().UTC(), name)
	if err != nil {
		return err
	}
	return requireAffected(result, ErrVenueNotFound)
}

// SetLastError записывает ошибку площадки и снимает флаг подключения
func (r *VenueRepository) SetLastError(ctx context.Context, name, lastError string) error {
	query := `
		UPDATE venue_accounts
		SET connected = false, last_error = $1, updated_at = $2
		WHERE name = $3`

	result, err := r.db.ExecContext(ctx, query, lastError, time.Now().UTC(), name)
	if err != nil {
		return err
	}
	return requireAffected(result, ErrVenueNotFound)
}

// Delete удаляет аккаунт площадки
func (r *VenueRepository) Delete(ctx context.Context, name string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM venue_accounts WHERE name = $1`, name)
	if err != nil {
		return err
	}
	return requireAffected(result, ErrVenueNotFound)
}
