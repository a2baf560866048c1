package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"oms/internal/api"
	"oms/internal/config"
	"oms/internal/models"
	"oms/internal/oms"
	"oms/internal/repository"
	"oms/internal/service"
	"oms/internal/websocket"
	"oms/pkg/utils"

	_ "github.com/lib/pq"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	logger := utils.InitLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	utils.SetGlobalLogger(logger)
	defer logger.Sync()

	// Инициализация базы данных
	db, err := initDatabase(cfg)
	if err != nil {
		logger.Fatal("failed to connect to database",
			zap.String("dsn", cfg.Database.DSNWithoutPassword()),
			zap.Error(err))
	}
	defer db.Close()

	logger.Info("connected to database", zap.String("dsn", cfg.Database.DSNWithoutPassword()))

	// Инициализация репозиториев
	orderRepo := repository.NewOrderRepository(db)
	fillRepo := repository.NewFillRepository(db)
	venueRepo := repository.NewVenueRepository(db)
	statsRepo := repository.NewStatsRepository(db)

	// Ядро исполнения: общие блокировки ордеров, приёмник исполнений,
	// очередь отчётов, гейт риска и маршрутизатор площадок
	locks := oms.NewOrderLocks()
	recorder := oms.NewFillRecorder(orderRepo, fillRepo, locks, logger.Logger)
	queue := oms.NewReportQueue(cfg.Execution.ReportQueueSize, logger.Logger)
	risk := oms.NewRiskValidator(oms.RiskConfig{
		PriceBandPercent: cfg.Risk.PriceBandPercent,
		DuplicateWindow:  cfg.Risk.DuplicateWindow,
	})

	accountProvider := service.NewAccountProvider(
		service.AccountProviderConfig{
			MaxOrderValue:  cfg.Risk.MaxOrderValue,
			PositionLimits: cfg.Risk.PositionLimits,
		},
		venueRepo,
		orderRepo,
		logger.Logger,
	)

	router := oms.NewExecutionRouter(
		oms.RouterConfig{
			Routes:       cfg.Execution.Routes,
			DefaultVenue: cfg.Execution.DefaultVenue,
			VenueTimeout: cfg.Execution.VenueTimeout,
		},
		risk,
		accountProvider,
		orderRepo,
		recorder,
		locks,
		logger.Logger,
	)

	execService := oms.NewExecutionService(
		oms.ServiceConfig{
			ReconcileInterval: cfg.Execution.ReconcileInterval,
			ExpiryInterval:    cfg.Execution.ExpiryInterval,
		},
		router,
		recorder,
		queue,
		logger.Logger,
	)

	// Инициализация сервисов
	orderService := service.NewOrderService(
		orderRepo,
		fillRepo,
		execService,
		risk,
		accountProvider,
		locks,
		logger.Logger,
	)
	venueService := service.NewVenueService(
		venueRepo,
		orderRepo,
		router,
		cfg.Security.EncryptionKey,
		logger.Logger,
	)
	statsService := service.NewStatsService(statsRepo, logger.Logger)

	// WebSocket hub для real-time обновлений
	hub := websocket.NewHub(logger.Logger)
	go hub.Run()
	orderService.SetWebSocketHub(hub)

	// Учтённое исполнение расходится по подписчикам: WebSocket клиентам,
	// снимку позиций для гейта риска и счётчикам сервиса исполнения
	recorder.SetOnUpdate(func(order *models.Order, fill *models.Fill) {
		hub.BroadcastFillUpdate(order, fill)
		accountProvider.ApplyFill(order, fill)
		if order.Status == models.StatusFilled {
			execService.NoteExecuted()
		}
	})

	// Переходы, применённые сверкой, тоже уходят клиентам и в счётчики:
	// отмена остатка IOC или отклонение площадкой происходят без
	// клиентского запроса
	router.SetOnTransition(func(order *models.Order) {
		hub.BroadcastOrderUpdate(order)
		switch order.Status {
		case models.StatusCancelled:
			execService.NoteCancelled()
		case models.StatusRejected:
			execService.NoteRejected()
		}
	})

	// Смена состояния сервиса и подключений площадок уходит WebSocket
	// клиентам
	execService.SetOnStatusChange(hub.BroadcastExecutionStatus)
	router.SetOnVenueStatus(hub.BroadcastVenueStatus)
	venueService.SetOnVenueStatus(hub.BroadcastVenueStatus)

	// Восстановление соединений с площадками по сохранённым ключам
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if restored := venueService.RestoreConnections(startupCtx); restored > 0 {
		logger.Info("venue connections restored", zap.Int("count", restored))
	}
	startupCancel()

	// Запуск фоновых циклов исполнения
	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	if err := execService.Start(runCtx); err != nil {
		logger.Fatal("failed to start execution service", zap.Error(err))
	}

	// Настройка зависимостей для API
	deps := &api.Dependencies{
		OrderService:     orderService,
		VenueService:     venueService,
		StatsService:     statsService,
		ExecutionService: execService,
		WSHandler:        hub.Handler(),
		APIToken:         cfg.Security.APIToken,
		Logger:           logger.Logger,
	}

	// HTTP сервер
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.SetupRoutes(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запуск сервера в отдельной горутине
	go func() {
		logger.Info("starting server", zap.String("addr", server.Addr))
		if cfg.Server.UseHTTPS {
			if err := server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile); err != nil && err != http.ErrServerClosed {
				logger.Fatal("server failed", zap.Error(err))
			}
		} else {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Fatal("server failed", zap.Error(err))
			}
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	// Сначала перестаём принимать запросы, затем останавливаем
	// фоновые циклы и WebSocket рассылку
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	if execService.Running() {
		if err := execService.Stop(); err != nil {
			logger.Error("error stopping execution service", zap.Error(err))
		}
	}
	hub.Stop()

	logger.Info("server exited")
}

// initDatabase создает подключение к базе данных
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Проверка подключения
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
