package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"oms/internal/models"
	"oms/internal/oms"
	"oms/internal/repository"
	"oms/internal/venue"
	"oms/pkg/crypto"
)

// Ошибки сервиса площадок
var (
	ErrVenueNotSupported    = errors.New("venue is not supported")
	ErrVenueNotConnected    = errors.New("venue is not connected")
	ErrInvalidCredentials   = errors.New("invalid API credentials")
	ErrVenueHasActiveOrders = errors.New("cannot disconnect: venue has active orders")
)

// VenueService - бизнес-логика управления площадками: подключение с
// шифрованием ключей, отключение и восстановление соединений при старте.
// Живые коннекторы регистрируются в маршрутизаторе исполнения.
type VenueService struct {
	venueRepo     VenueRepositoryInterface
	orderRepo     OrderRepositoryInterface
	router        *oms.ExecutionRouter
	encryptionKey []byte
	logger        *zap.Logger

	// onStatus вызывается после подключения и отключения площадки
	onStatus func(name string, connected bool)
}

// NewVenueService создает новый экземпляр сервиса
func NewVenueService(
	venueRepo VenueRepositoryInterface,
	orderRepo OrderRepositoryInterface,
	router *oms.ExecutionRouter,
	encryptionKey string,
	logger *zap.Logger,
) *VenueService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VenueService{
		venueRepo:     venueRepo,
		orderRepo:     orderRepo,
		router:        router,
		encryptionKey: []byte(encryptionKey),
		logger:        logger,
	}
}

// SetOnVenueStatus регистрирует callback на подключение и отключение
// площадок. Вызывается при сборке приложения, до обслуживания запросов.
func (s *VenueService) SetOnVenueStatus(fn func(name string, connected bool)) {
	s.onStatus = fn
}

func (s *VenueService) notifyStatus(name string, connected bool) {
	if s.onStatus != nil {
		s.onStatus(name, connected)
	}
}

// ConnectVenue подключает площадку с указанными API ключами
// Выполняет:
// 1. Проверку поддержки площадки
// 2. Тестовое подключение (проверка ключей)
// 3. Шифрование ключей перед сохранением
// 4. Регистрацию коннектора в маршрутизаторе
func (s *VenueService) ConnectVenue(ctx context.Context, name, apiKey, secretKey string) error {
	name = strings.ToLower(name)

	if !venue.IsSupported(name) {
		return ErrVenueNotSupported
	}

	conn, err := venue.NewConnector(name)
	if err != nil {
		return err
	}

	if err := conn.Connect(apiKey, secretKey); err != nil {
		_ = s.venueRepo.SetLastError(ctx, name, err.Error())
		return errors.Join(ErrInvalidCredentials, err)
	}

	encryptedAPIKey, err := crypto.Encrypt(apiKey, s.encryptionKey)
	if err != nil {
		_ = conn.Close()
		return err
	}
	encryptedSecretKey, err := crypto.Encrypt(secretKey, s.encryptionKey)
	if err != nil {
		_ = conn.Close()
		return err
	}

	existing, err := s.venueRepo.GetByName(ctx, name)
	switch {
	case err == nil:
		if err := s.venueRepo.UpdateCredentials(ctx, name, encryptedAPIKey, encryptedSecretKey); err != nil {
			_ = conn.Close()
			return err
		}
		if err := s.venueRepo.SetConnected(ctx, name, true, existing.BuyingPower); err != nil {
			_ = conn.Close()
			return err
		}
	case errors.Is(err, repository.ErrVenueNotFound):
		account := &models.VenueAccount{
			Name:      name,
			AccountID: conn.AccountID(),
			APIKey:    encryptedAPIKey,
			SecretKey: encryptedSecretKey,
			Connected: true,
		}
		if err := s.venueRepo.Create(ctx, account); err != nil {
			_ = conn.Close()
			return err
		}
	default:
		_ = conn.Close()
		return err
	}

	s.router.RegisterConnector(conn)
	s.notifyStatus(name, true)
	s.logger.Info("venue connected",
		zap.String("venue", name),
		zap.String("account_id", conn.AccountID()))
	return nil
}

// DisconnectVenue отключает площадку.
// Площадка с активными ордерами не отключается: сперва нужно снять или
// дождаться исполнения ордеров.
func (s *VenueService) DisconnectVenue(ctx context.Context, name string) error {
	name = strings.ToLower(name)

	account, err := s.venueRepo.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, repository.ErrVenueNotFound) {
			return ErrVenueNotConnected
		}
		return err
	}
	if !account.Connected {
		return ErrVenueNotConnected
	}

	active, err := s.orderRepo.ListActive(ctx)
	if err != nil {
		return err
	}
	for _, o := range active {
		if o.Venue == name {
			return ErrVenueHasActiveOrders
		}
	}

	if conn, ok := s.router.Connector(name); ok {
		_ = conn.Close()
	}

	if err := s.venueRepo.SetConnected(ctx, name, false, account.BuyingPower); err != nil {
		return err
	}
	// Ключи остаются зашифрованными в БД для последующего переподключения
	s.notifyStatus(name, false)
	s.logger.Info("venue disconnected", zap.String("venue", name))
	return nil
}

// GetAllVenues возвращает все площадки без ключей
func (s *VenueService) GetAllVenues(ctx context.Context) ([]models.VenueAccount, error) {
	accounts, err := s.venueRepo.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]models.VenueAccount, 0, len(accounts))
	for _, a := range accounts {
		result = append(result, safeVenueCopy(a))
	}
	return result, nil
}

// GetVenueByName возвращает площадку по имени без ключей
func (s *VenueService) GetVenueByName(ctx context.Context, name string) (*models.VenueAccount, error) {
	account, err := s.venueRepo.GetByName(ctx, strings.ToLower(name))
	if err != nil {
		return nil, err
	}
	safe := safeVenueCopy(*account)
	return &safe, nil
}

// RestoreConnections переподключает площадки по сохранённым ключам.
// Вызывается при старте сервера; возвращает число восстановленных
// соединений. Ошибка одной площадки не мешает остальным.
func (s *VenueService) RestoreConnections(ctx context.Context) int {
	accounts, err := s.venueRepo.GetAll(ctx)
	if err != nil {
		s.logger.Error("failed to load venue accounts", zap.Error(err))
		return 0
	}

	restored := 0
	for _, account := range accounts {
		if !account.Connected || account.APIKey == "" {
			continue
		}

		apiKey, err := crypto.Decrypt(account.APIKey, s.encryptionKey)
		if err != nil {
			s.logger.Error("failed to decrypt venue credentials",
				zap.String("venue", account.Name), zap.Error(err))
			_ = s.venueRepo.SetLastError(ctx, account.Name, "credential decryption failed")
			continue
		}
		secretKey, err := crypto.Decrypt(account.SecretKey, s.encryptionKey)
		if err != nil {
			s.logger.Error("failed to decrypt venue credentials",
				zap.String("venue", account.Name), zap.Error(err))
			_ = s.venueRepo.SetLastError(ctx, account.Name, "credential decryption failed")
			continue
		}

		conn, err := venue.NewConnector(account.Name)
		if err != nil {
			s.logger.Warn("stored venue is not supported", zap.String("venue", account.Name))
			continue
		}
		if err := conn.Connect(apiKey, secretKey); err != nil {
			s.logger.Warn("failed to restore venue connection",
				zap.String("venue", account.Name), zap.Error(err))
			_ = s.venueRepo.SetLastError(ctx, account.Name, err.Error())
			continue
		}

		s.router.RegisterConnector(conn)
		s.notifyStatus(account.Name, true)
		restored++
		s.logger.Info("venue connection restored", zap.String("venue", account.Name))
	}
	return restored
}

func safeVenueCopy(a models.VenueAccount) models.VenueAccount {
	// APIKey и SecretKey не покидают сервис
	return models.VenueAccount{
		ID:          a.ID,
		Name:        a.Name,
		AccountID:   a.AccountID,
		Connected:   a.Connected,
		BuyingPower: a.BuyingPower,
		LastError:   a.LastError,
		UpdatedAt:   a.UpdatedAt,
		CreatedAt:   a.CreatedAt,
	}
}
