package venue

import (
	"fmt"
	"strings"
)

// SupportedVenues - список поддерживаемых площадок
var SupportedVenues = []string{
	"mock",
	"broker",
}

// NewConnector создает новый коннектор площадки по имени
func NewConnector(name string) (Connector, error) {
	name = strings.ToLower(name)

	switch name {
	case "mock":
		return NewMockConnector(DefaultMockConfig()), nil
	case "broker":
		return NewBrokerConnector(DefaultBrokerConfig()), nil
	default:
		return nil, fmt.Errorf("unsupported venue: %s", name)
	}
}

// IsSupported проверяет, поддерживается ли площадка
func IsSupported(name string) bool {
	name = strings.ToLower(name)
	for _, supported := range SupportedVenues {
		if name == supported {
			return true
		}
	}
	return false
}
