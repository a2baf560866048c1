package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Security  SecurityConfig
	Execution ExecutionConfig
	Risk      RiskConfig
	Logging   LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port     int
	Host     string
	UseHTTPS bool
	CertFile string
	KeyFile  string
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	// APIToken - bearer токен для REST и WebSocket.
	// Пустое значение отключает аутентификацию (только для разработки).
	APIToken string

	// EncryptionKey - ключ AES-256 для шифрования ключей площадок, ровно 32 байта
	EncryptionKey string
}

// ExecutionConfig - настройки маршрутизации и фоновых циклов исполнения
type ExecutionConfig struct {
	// Периодические циклы сервиса исполнения
	ReconcileInterval time.Duration // сверка активных ордеров с площадками
	ExpiryInterval    time.Duration // проверка просроченных GTD-ордеров

	// Очередь отчётов об исполнении от площадок
	ReportQueueSize int

	// Таймаут одного вызова площадки
	VenueTimeout time.Duration

	// Маршрутизация по символам
	DefaultVenue string
	Routes       map[string]string // symbol -> venue, переопределяет DefaultVenue
}

// RiskConfig - параметры предторговой проверки
type RiskConfig struct {
	// Допустимое отклонение лимитной цены от референсной, %
	PriceBandPercent decimal.Decimal

	// Окно поиска дублирующих ордеров
	DuplicateWindow time.Duration

	// Максимальная стоимость одного ордера, 0 = без лимита
	MaxOrderValue decimal.Decimal

	// Лимиты позиций по символам, symbol -> максимальная абсолютная позиция
	PositionLimits map[string]decimal.Decimal
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:     getEnvAsInt("SERVER_PORT", 8080),
			Host:     getEnv("SERVER_HOST", "0.0.0.0"),
			UseHTTPS: getEnvAsBool("USE_HTTPS", false),
			CertFile: getEnv("CERT_FILE", ""),
			KeyFile:  getEnv("KEY_FILE", ""),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "oms"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Security: SecurityConfig{
			APIToken:      getEnv("API_TOKEN", ""),
			EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
		},
		Execution: ExecutionConfig{
			ReconcileInterval: getEnvAsDuration("RECONCILE_INTERVAL", 2*time.Second),
			ExpiryInterval:    getEnvAsDuration("EXPIRY_INTERVAL", 10*time.Second),
			ReportQueueSize:   getEnvAsInt("REPORT_QUEUE_SIZE", 1024),
			VenueTimeout:      getEnvAsDuration("VENUE_TIMEOUT", 5*time.Second),
			DefaultVenue:      getEnv("DEFAULT_VENUE", "mock"),
			// Пример: VENUE_ROUTES=BTCUSDT=broker,AAPL=mock
			Routes: getEnvAsStringMap("VENUE_ROUTES"),
		},
		Risk: RiskConfig{
			PriceBandPercent: getEnvAsDecimal("RISK_PRICE_BAND_PERCENT", decimal.NewFromInt(20)),
			DuplicateWindow:  getEnvAsDuration("RISK_DUPLICATE_WINDOW", time.Minute),
			MaxOrderValue:    getEnvAsDecimal("RISK_MAX_ORDER_VALUE", decimal.Zero),
			// Пример: RISK_POSITION_LIMITS=AAPL=1000,BTCUSDT=5
			PositionLimits: getEnvAsDecimalMap("RISK_POSITION_LIMITS"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validateSecurity(); err != nil {
		return nil, err
	}

	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateSecurity проверяет параметры безопасности
func (c *Config) validateSecurity() error {
	// ENCRYPTION_KEY обязателен для шифрования API ключей площадок
	if c.Security.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required for encrypting venue API keys")
	}

	if len(c.Security.EncryptionKey) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}

	if c.Security.APIToken != "" && len(c.Security.APIToken) < 16 {
		return fmt.Errorf("API_TOKEN must be at least 16 characters when set")
	}

	return nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	if c.Execution.ReconcileInterval <= 0 {
		return fmt.Errorf("RECONCILE_INTERVAL must be positive, got %v", c.Execution.ReconcileInterval)
	}

	if c.Execution.ExpiryInterval <= 0 {
		return fmt.Errorf("EXPIRY_INTERVAL must be positive, got %v", c.Execution.ExpiryInterval)
	}

	if c.Execution.ReportQueueSize < 1 {
		return fmt.Errorf("REPORT_QUEUE_SIZE must be positive, got %d", c.Execution.ReportQueueSize)
	}

	if c.Execution.VenueTimeout <= 0 {
		return fmt.Errorf("VENUE_TIMEOUT must be positive, got %v", c.Execution.VenueTimeout)
	}

	if c.Execution.DefaultVenue == "" {
		return fmt.Errorf("DEFAULT_VENUE must not be empty")
	}

	if c.Risk.PriceBandPercent.LessThanOrEqual(decimal.Zero) ||
		c.Risk.PriceBandPercent.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("RISK_PRICE_BAND_PERCENT must be in (0, 100], got %s", c.Risk.PriceBandPercent)
	}

	if c.Risk.DuplicateWindow <= 0 {
		return fmt.Errorf("RISK_DUPLICATE_WINDOW must be positive, got %v", c.Risk.DuplicateWindow)
	}

	if c.Risk.MaxOrderValue.IsNegative() {
		return fmt.Errorf("RISK_MAX_ORDER_VALUE cannot be negative, got %s", c.Risk.MaxOrderValue)
	}

	return nil
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsStringMap разбирает "k1=v1,k2=v2" в map, невалидные пары пропускаются
func getEnvAsStringMap(key string) map[string]string {
	valueStr := os.Getenv(key)
	result := make(map[string]string)
	if valueStr == "" {
		return result
	}
	for _, pair := range strings.Split(valueStr, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			continue
		}
		result[parts[0]] = parts[1]
	}
	return result
}

// getEnvAsDecimalMap разбирает "k1=1.5,k2=100" в map, невалидные пары пропускаются
func getEnvAsDecimalMap(key string) map[string]decimal.Decimal {
	result := make(map[string]decimal.Decimal)
	for k, v := range getEnvAsStringMap(key) {
		d, err := decimal.NewFromString(v)
		if err != nil {
			continue
		}
		result[k] = d
	}
	return result
}
