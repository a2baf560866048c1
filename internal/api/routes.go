package api

import (
	"net/http"
	"net/http/pprof"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"oms/internal/api/handlers"
	"oms/internal/api/middleware"
	"oms/internal/service"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	OrderService     service.OrderServiceInterface
	VenueService     service.VenueServiceInterface
	StatsService     service.StatsServiceInterface
	ExecutionService service.ExecutionServiceInterface

	// WSHandler обслуживает /ws/stream; nil отключает WebSocket
	WSHandler http.Handler

	// APIToken защищает /api/v1 и /ws; пустая строка - открытый доступ
	APIToken string

	Logger *zap.Logger
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
// /api/v1/
//
//	├── /orders/
//	│   ├── GET / - список ордеров с фильтрацией
//	│   ├── POST / - создать ордер
//	│   ├── POST /check - проверка риска без создания
//	│   ├── GET /{id} - получить ордер (ID или UUID)
//	│   ├── PATCH /{id} - изменить активный ордер
//	│   ├── DELETE /{id} - удалить терминальный ордер
//	│   ├── POST /{id}/submit - отправить в исполнение
//	│   ├── POST /{id}/cancel - отменить
//	│   └── GET /{id}/fills - исполнения ордера
//	├── /venues/
//	│   ├── GET / - список площадок
//	│   ├── GET /{name} - одна площадка
//	│   ├── POST /{name}/connect - подключить площадку
//	│   └── DELETE /{name}/connect - отключить площадку
//	├── /execution/
//	│   ├── GET /status - состояние сервиса исполнения
//	│   ├── POST /start - запустить фоновые циклы
//	│   └── POST /stop - остановить
//	└── /stats/
//	    ├── GET / - агрегированная статистика
//	    └── GET /top-symbols - топ инструментов
//
// /ws/stream - WebSocket для real-time обновлений
// /metrics - Prometheus метрики
// /health - health check
// /debug/pprof - профилирование (за Basic Auth)
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. CORS (для всех маршрутов)
// 4. Auth (для /api/v1 и /ws)
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	var logger *zap.Logger
	var token string
	if deps != nil {
		logger = deps.Logger
		token = deps.APIToken
	}

	// Глобальные middleware (применяются ко всем маршрутам)
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Logging(logger))
	router.Use(middleware.CORS)

	// API v1 routes
	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.Auth(token))

	// Order routes
	if deps != nil && deps.OrderService != nil {
		orderHandler := handlers.NewOrderHandler(deps.OrderService)
		api.HandleFunc("/orders", orderHandler.GetOrders).Methods("GET")
		api.HandleFunc("/orders", orderHandler.CreateOrder).Methods("POST")
		api.HandleFunc("/orders/check", orderHandler.CheckRisk).Methods("POST")
		api.HandleFunc("/orders/{id}", orderHandler.GetOrder).Methods("GET")
		api.HandleFunc("/orders/{id}", orderHandler.UpdateOrder).Methods("PATCH")
		api.HandleFunc("/orders/{id}", orderHandler.DeleteOrder).Methods("DELETE")
		api.HandleFunc("/orders/{id}/submit", orderHandler.SubmitOrder).Methods("POST")
		api.HandleFunc("/orders/{id}/cancel", orderHandler.CancelOrder).Methods("POST")
		api.HandleFunc("/orders/{id}/fills", orderHandler.GetOrderFills).Methods("GET")
	}

	// Venue routes
	if deps != nil && deps.VenueService != nil {
		venueHandler := handlers.NewVenueHandler(deps.VenueService)
		api.HandleFunc("/venues", venueHandler.GetVenues).Methods("GET")
		api.HandleFunc("/venues/{name}", venueHandler.GetVenue).Methods("GET")
		api.HandleFunc("/venues/{name}/connect", venueHandler.ConnectVenue).Methods("POST")
		api.HandleFunc("/venues/{name}/connect", venueHandler.DisconnectVenue).Methods("DELETE")
	}

	// Execution routes
	if deps != nil && deps.ExecutionService != nil {
		executionHandler := handlers.NewExecutionHandler(deps.ExecutionService)
		api.HandleFunc("/execution/status", executionHandler.GetStatus).Methods("GET")
		api.HandleFunc("/execution/start", executionHandler.Start).Methods("POST")
		api.HandleFunc("/execution/stop", executionHandler.Stop).Methods("POST")
	}

	// Stats routes
	if deps != nil && deps.StatsService != nil {
		statsHandler := handlers.NewStatsHandler(deps.StatsService)
		api.HandleFunc("/stats", statsHandler.GetStats).Methods("GET")
		api.HandleFunc("/stats/top-symbols", statsHandler.GetTopSymbols).Methods("GET")
	}

	// WebSocket route
	if deps != nil && deps.WSHandler != nil {
		ws := router.PathPrefix("/ws").Subrouter()
		ws.Use(middleware.Auth(token))
		ws.Handle("/stream", deps.WSHandler)
	}

	// Prometheus метрики
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Профилирование за Basic Auth
	debug := router.PathPrefix("/debug/pprof").Subrouter()
	debug.Use(middleware.DebugAuth)
	debug.HandleFunc("", pprof.Index)
	debug.HandleFunc("/", pprof.Index)
	debug.HandleFunc("/cmdline", pprof.Cmdline)
	debug.HandleFunc("/profile", pprof.Profile)
	debug.HandleFunc("/symbol", pprof.Symbol)
	debug.HandleFunc("/trace", pprof.Trace)
	debug.HandleFunc("/{profile}", pprof.Index)

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	return router
}
