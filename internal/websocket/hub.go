package websocket

import (
	"bytes"
	"net/http"
	"sync"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"oms/internal/models"
	"oms/internal/oms"
)

// Drop-in замена encoding/json, быстрее на горячем пути broadcast
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Пул JSON буферов, убирает аллокации на каждый Broadcast
var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 512))
	},
}

// Hub управляет всеми активными WebSocket соединениями
//
// Назначение:
// Центральный менеджер для broadcast сообщений всем подключенным клиентам.
// Обеспечивает real-time доставку изменений ордеров и исполнений без polling.
//
// Функции:
// - Регистрация новых WebSocket клиентов
// - Отмена регистрации отключенных клиентов
// - Broadcast сообщений всем активным клиентам
// - Удаление клиентов, не успевающих читать
// - Потокобезопасная работа с клиентами (sync.RWMutex)
//
// Типы сообщений:
// - orderUpdate: изменение ордера (статус, цена, количество)
// - fillUpdate: новое исполнение с прогрессом ордера
// - executionStatus: состояние сервиса исполнения
// - venueStatus: подключение или отключение площадки
//
// Использование:
// 1. Создать hub: hub := NewHub(logger)
// 2. Запустить в горутине: go hub.Run()
// 3. Отправлять сообщения: hub.BroadcastOrderUpdate(order)
type Hub struct {
	// Зарегистрированные клиенты
	clients map[*Client]bool

	// Broadcast канал для отправки сообщений всем клиентам
	broadcast chan []byte

	// Регистрация нового клиента
	register chan *Client

	// Отмена регистрации клиента
	unregister chan *Client

	// Сигнал остановки главного цикла
	stop     chan struct{}
	stopOnce sync.Once

	// Счетчики для lock-free чтения из метрик и тестов
	clientCount atomic.Int64
	dropped     atomic.Uint64

	// Mutex для потокобезопасного доступа к clients
	mu sync.RWMutex

	logger *zap.Logger
}

// NewHub создает новый Hub
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
		logger:     logger,
	}
}

// Run запускает главный цикл Hub
//
// Должен запускаться в отдельной горутине: go hub.Run()
// Обрабатывает регистрацию, отмену регистрации и broadcast.
// Завершается после вызова Stop().
func (h *Hub) Run() {
	for {
		select {
		case <-h.stop:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.clientCount.Store(0)
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.clientCount.Store(int64(len(h.clients)))
			h.mu.Unlock()
			h.logger.Info("websocket client connected",
				zap.Int64("total_clients", h.clientCount.Load()))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.clientCount.Store(int64(len(h.clients)))
			h.mu.Unlock()
			h.logger.Info("websocket client disconnected",
				zap.Int64("total_clients", h.clientCount.Load()))

		case message := <-h.broadcast:
			// Копируем список клиентов под коротким RLock,
			// отправка не должна блокировать register/unregister
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			var toRemove []*Client
			for _, client := range clients {
				select {
				case client.send <- message:
				default:
					// Клиент не успевает читать, помечаем для удаления
					toRemove = append(toRemove, client)
				}
			}

			if len(toRemove) > 0 {
				h.mu.Lock()
				for _, client := range toRemove {
					if _, ok := h.clients[client]; ok {
						delete(h.clients, client)
						close(client.send)
					}
				}
				h.clientCount.Store(int64(len(h.clients)))
				h.mu.Unlock()
				h.logger.Warn("removed slow websocket clients",
					zap.Int("removed", len(toRemove)),
					zap.Int64("total_clients", h.clientCount.Load()))
			}
		}
	}
}

// Stop останавливает главный цикл и закрывает все соединения.
// Повторные вызовы безопасны.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
	})
}

// Broadcast сериализует сообщение и отправляет всем подключенным клиентам.
// Не блокируется: при переполнении канала сообщение отбрасывается.
func (h *Hub) Broadcast(message interface{}) {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	if err := json.NewEncoder(buf).Encode(message); err != nil {
		h.logger.Error("failed to marshal broadcast message", zap.Error(err))
		jsonBufferPool.Put(buf)
		return
	}

	// Encode добавляет trailing newline
	data := buf.Bytes()
	if len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}

	// Буфер вернется в пул, данные нужно скопировать
	msgCopy := make([]byte, len(data))
	copy(msgCopy, data)
	jsonBufferPool.Put(buf)

	h.BroadcastRaw(msgCopy)
}

// BroadcastRaw отправляет уже сериализованные данные всем клиентам
func (h *Hub) BroadcastRaw(data []byte) {
	select {
	case h.broadcast <- data:
	default:
		h.dropped.Add(1)
	}
}

// BroadcastOrderUpdate отправляет снимок ордера после изменения
func (h *Hub) BroadcastOrderUpdate(order *models.Order) {
	if order == nil {
		return
	}
	h.Broadcast(NewOrderUpdateMessage(order))
}

// BroadcastFillUpdate отправляет новое исполнение с прогрессом ордера
func (h *Hub) BroadcastFillUpdate(order *models.Order, fill *models.Fill) {
	if order == nil || fill == nil {
		return
	}
	h.Broadcast(NewFillUpdateMessage(order, fill))
}

// BroadcastExecutionStatus отправляет состояние сервиса исполнения
func (h *Hub) BroadcastExecutionStatus(status oms.ServiceStatus) {
	h.Broadcast(NewExecutionStatusMessage(status))
}

// BroadcastVenueStatus отправляет изменение подключения площадки
func (h *Hub) BroadcastVenueStatus(venue string, connected bool) {
	h.Broadcast(NewVenueStatusMessage(venue, connected))
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	return int(h.clientCount.Load())
}

// DroppedMessages возвращает количество отброшенных сообщений
func (h *Hub) DroppedMessages() uint64 {
	return h.dropped.Load()
}

// Handler возвращает http.Handler для WebSocket endpoint
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWS(h, w, r)
	})
}
