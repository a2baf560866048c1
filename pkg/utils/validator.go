package utils

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Ошибки валидации
var (
	ErrInvalidSymbol    = errors.New("invalid symbol format")
	ErrInvalidAPIKey    = errors.New("invalid API key")
	ErrInvalidAPISecret = errors.New("invalid API secret")
)

// symbolRegex проверяет формат торгового символа.
// Допустимы тикеры акций (AAPL, BRK.B) и пары (BTCUSDT, BTC-USD).
var symbolRegex = regexp.MustCompile(`^[A-Z0-9]{1,12}([.\-/][A-Z0-9]{1,12})?$`)

// ValidateSymbol проверяет формат торгового символа.
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("%w: symbol is empty", ErrInvalidSymbol)
	}

	normalized := NormalizeSymbol(symbol)

	if len(normalized) > 25 {
		return fmt.Errorf("%w: symbol too long: %s", ErrInvalidSymbol, symbol)
	}

	if !symbolRegex.MatchString(normalized) {
		return fmt.Errorf("%w: %s", ErrInvalidSymbol, symbol)
	}

	return nil
}

// NormalizeSymbol приводит символ к каноническому виду:
// верхний регистр, без окружающих пробелов.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// IsValidSymbol возвращает true если символ корректен.
func IsValidSymbol(symbol string) bool {
	return ValidateSymbol(symbol) == nil
}

// ValidateAPIKey проверяет базовый формат API ключа площадки.
func ValidateAPIKey(key string) error {
	key = strings.TrimSpace(key)

	if key == "" {
		return fmt.Errorf("%w: key is empty", ErrInvalidAPIKey)
	}

	if len(key) < 8 {
		return fmt.Errorf("%w: key too short (minimum 8 characters)", ErrInvalidAPIKey)
	}

	if len(key) > 256 {
		return fmt.Errorf("%w: key too long (maximum 256 characters)", ErrInvalidAPIKey)
	}

	// API ключи не содержат пробелов и управляющих символов
	for _, r := range key {
		if r < 33 || r > 126 {
			return fmt.Errorf("%w: key contains invalid characters", ErrInvalidAPIKey)
		}
	}

	return nil
}

// IsValidAPIKey возвращает true если ключ корректен.
func IsValidAPIKey(key string) bool {
	return ValidateAPIKey(key) == nil
}

// ValidateAPISecret проверяет базовый формат API секрета площадки.
func ValidateAPISecret(secret string) error {
	secret = strings.TrimSpace(secret)

	if secret == "" {
		return fmt.Errorf("%w: secret is empty", ErrInvalidAPISecret)
	}

	if len(secret) < 8 {
		return fmt.Errorf("%w: secret too short (minimum 8 characters)", ErrInvalidAPISecret)
	}

	if len(secret) > 512 {
		return fmt.Errorf("%w: secret too long (maximum 512 characters)", ErrInvalidAPISecret)
	}

	return nil
}

// ============================================================
// Накопление ошибок валидации
// ============================================================

// ValidationErrors накапливает несколько ошибок валидации.
type ValidationErrors struct {
	Errors []string
}

// Add добавляет ошибку в список.
func (v *ValidationErrors) Add(field, message string) {
	v.Errors = append(v.Errors, fmt.Sprintf("%s: %s", field, message))
}

// AddError добавляет error в список.
func (v *ValidationErrors) AddError(field string, err error) {
	if err != nil {
		v.Errors = append(v.Errors, fmt.Sprintf("%s: %s", field, err.Error()))
	}
}

// HasErrors возвращает true если есть ошибки.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Error возвращает все ошибки одной строкой.
func (v *ValidationErrors) Error() string {
	if !v.HasErrors() {
		return ""
	}
	return strings.Join(v.Errors, "; ")
}
