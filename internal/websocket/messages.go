package websocket

import (
	"time"

	"github.com/shopspring/decimal"

	"oms/internal/models"
	"oms/internal/oms"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений
const (
	// MessageTypeOrderUpdate - изменение ордера (статус, цена, количество)
	// Отправляется при каждом переходе статуса и редактировании
	MessageTypeOrderUpdate MessageType = "orderUpdate"

	// MessageTypeFillUpdate - новое исполнение по ордеру
	// Отправляется при записи каждого fill вместе со снимком прогресса ордера
	MessageTypeFillUpdate MessageType = "fillUpdate"

	// MessageTypeExecutionStatus - состояние сервиса исполнения
	// Отправляется при запуске и остановке фоновых циклов
	MessageTypeExecutionStatus MessageType = "executionStatus"

	// MessageTypeVenueStatus - изменение подключения площадки
	// Отправляется при подключении и отключении площадки оператором
	MessageTypeVenueStatus MessageType = "venueStatus"
)

// BaseMessage - базовая структура для всех WebSocket сообщений
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// OrderUpdateMessage - сообщение об изменении ордера
//
// Содержит полный снимок ордера после изменения:
// - Текущий статус жизненного цикла
// - Исполненное количество и среднюю цену
// - Площадку, на которую ордер маршрутизирован
type OrderUpdateMessage struct {
	BaseMessage
	OrderID int64         `json:"order_id"`
	Data    *models.Order `json:"data"`
}

// FillUpdateMessage - сообщение о новом исполнении
type FillUpdateMessage struct {
	BaseMessage
	OrderID int64           `json:"order_id"`
	Data    *FillUpdateData `json:"data"`
}

// FillUpdateData - данные исполнения вместе с прогрессом ордера
type FillUpdateData struct {
	// Записанное исполнение
	Fill *models.Fill `json:"fill"`

	// Символ и направление родительского ордера
	Symbol string `json:"symbol"`
	Side   string `json:"side"`

	// Статус ордера после применения исполнения
	OrderStatus string `json:"order_status"`

	// Накопленное исполненное количество
	FilledQuantity decimal.Decimal `json:"filled_quantity"`

	// Оставшееся неисполненное количество
	RemainingQuantity decimal.Decimal `json:"remaining_quantity"`

	// Средневзвешенная цена исполнения
	AvgFillPrice decimal.Decimal `json:"avg_fill_price"`
}

// ExecutionStatusMessage - сообщение о состоянии сервиса исполнения
type ExecutionStatusMessage struct {
	BaseMessage
	Data oms.ServiceStatus `json:"data"`
}

// VenueStatusMessage - сообщение об изменении состояния площадки
type VenueStatusMessage struct {
	BaseMessage
	Venue     string `json:"venue"`
	Connected bool   `json:"connected"`
}

// ============ Фабричные функции для создания сообщений ============

// NewOrderUpdateMessage создает сообщение об изменении ордера
func NewOrderUpdateMessage(order *models.Order) *OrderUpdateMessage {
	return &OrderUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeOrderUpdate,
			Timestamp: time.Now(),
		},
		OrderID: order.ID,
		Data:    order,
	}
}

// NewFillUpdateMessage создает сообщение о новом исполнении
func NewFillUpdateMessage(order *models.Order, fill *models.Fill) *FillUpdateMessage {
	return &FillUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeFillUpdate,
			Timestamp: time.Now(),
		},
		OrderID: order.ID,
		Data: &FillUpdateData{
			Fill:              fill,
			Symbol:            order.Symbol,
			Side:              order.Side,
			OrderStatus:       order.Status,
			FilledQuantity:    order.FilledQuantity,
			RemainingQuantity: order.RemainingQuantity(),
			AvgFillPrice:      order.AvgFillPrice,
		},
	}
}

// NewExecutionStatusMessage создает сообщение о состоянии сервиса исполнения
func NewExecutionStatusMessage(status oms.ServiceStatus) *ExecutionStatusMessage {
	return &ExecutionStatusMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeExecutionStatus,
			Timestamp: time.Now(),
		},
		Data: status,
	}
}

// NewVenueStatusMessage создает сообщение об изменении состояния площадки
func NewVenueStatusMessage(venue string, connected bool) *VenueStatusMessage {
	return &VenueStatusMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeVenueStatus,
			Timestamp: time.Now(),
		},
		Venue:     venue,
		Connected: connected,
	}
}
