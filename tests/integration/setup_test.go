// Package integration contains integration tests for the order management service.
//
// These tests verify the correct interaction between components:
// - API integration tests: full HTTP request cycle
// - WebSocket tests: connection, broadcast messaging
// - Database tests: repositories against a real PostgreSQL
//
// Tests skip themselves when the test database is unreachable.
package integration

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"oms/internal/api"
	"oms/internal/models"
	"oms/internal/oms"
	"oms/internal/repository"
	"oms/internal/service"
	"oms/internal/websocket"
)

// testEncryptionKey - ключ AES-256 для тестов, ровно 32 байта
const testEncryptionKey = "test-encryption-key-32-bytes!!!!"

// TestConfig contains configuration for integration tests
type TestConfig struct {
	DBDriver   string
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string
}

// TestServer encapsulates all components needed for integration testing
type TestServer struct {
	DB       *sql.DB
	Router   *mux.Router
	Server   *httptest.Server
	Hub      *websocket.Hub
	Repos    *TestRepositories
	Services *TestServices
	Exec     *oms.ExecutionService
	Cleanup  func()
}

// TestRepositories contains all repository instances for testing
type TestRepositories struct {
	Order *repository.OrderRepository
	Fill  *repository.FillRepository
	Venue *repository.VenueRepository
	Stats *repository.StatsRepository
}

// TestServices contains all service instances for testing
type TestServices struct {
	Order *service.OrderService
	Venue *service.VenueService
	Stats *service.StatsService
}

// getTestConfig returns configuration from environment variables or defaults
func getTestConfig() TestConfig {
	return TestConfig{
		DBDriver:   getEnv("TEST_DB_DRIVER", "postgres"),
		DBHost:     getEnv("TEST_DB_HOST", "localhost"),
		DBPort:     getEnv("TEST_DB_PORT", "5432"),
		DBName:     getEnv("TEST_DB_NAME", "oms_test"),
		DBUser:     getEnv("TEST_DB_USER", "postgres"),
		DBPassword: getEnv("TEST_DB_PASSWORD", "postgres"),
		DBSSLMode:  getEnv("TEST_DB_SSLMODE", "disable"),
	}
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// SetupTestDB creates a test database connection
func SetupTestDB(t *testing.T) (*sql.DB, func()) {
	cfg := getTestConfig()

	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode,
	)

	db, err := sql.Open(cfg.DBDriver, connStr)
	if err != nil {
		t.Skipf("Skipping integration test: cannot connect to database: %v", err)
		return nil, func() {}
	}

	// Test connection
	if err := db.Ping(); err != nil {
		t.Skipf("Skipping integration test: cannot ping database: %v", err)
		return nil, func() {}
	}

	// Set connection pool settings
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	cleanup := func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}

	return db, cleanup
}

// SetupTestServer creates a complete test server with all components
func SetupTestServer(t *testing.T) *TestServer {
	db, dbCleanup := SetupTestDB(t)
	if db == nil {
		return nil
	}

	// Initialize tables
	if err := initTestTables(db); err != nil {
		t.Skipf("Skipping integration test: cannot initialize tables: %v", err)
		return nil
	}

	logger := zap.NewNop()

	// Create repositories
	repos := &TestRepositories{
		Order: repository.NewOrderRepository(db),
		Fill:  repository.NewFillRepository(db),
		Venue: repository.NewVenueRepository(db),
		Stats: repository.NewStatsRepository(db),
	}

	// Execution core: shared order locks, fill recorder, report queue,
	// risk gate and venue router
	locks := oms.NewOrderLocks()
	recorder := oms.NewFillRecorder(repos.Order, repos.Fill, locks, logger)
	queue := oms.NewReportQueue(64, logger)
	risk := oms.NewRiskValidator(oms.DefaultRiskConfig())

	accounts := service.NewAccountProvider(
		service.AccountProviderConfig{},
		repos.Venue,
		repos.Order,
		logger,
	)

	router := oms.NewExecutionRouter(
		oms.RouterConfig{
			DefaultVenue: "mock",
			VenueTimeout: 5 * time.Second,
		},
		risk,
		accounts,
		repos.Order,
		recorder,
		locks,
		logger,
	)

	execService := oms.NewExecutionService(
		oms.ServiceConfig{
			ReconcileInterval: 50 * time.Millisecond,
			ExpiryInterval:    100 * time.Millisecond,
		},
		router,
		recorder,
		queue,
		logger,
	)

	// Create WebSocket hub
	hub := websocket.NewHub(logger)
	go hub.Run()

	// Create services
	services := &TestServices{
		Order: service.NewOrderService(repos.Order, repos.Fill, execService, risk, accounts, locks, logger),
		Venue: service.NewVenueService(repos.Venue, repos.Order, router, testEncryptionKey, logger),
		Stats: service.NewStatsService(repos.Stats, logger),
	}
	services.Order.SetWebSocketHub(hub)

	recorder.SetOnUpdate(func(order *models.Order, fill *models.Fill) {
		hub.BroadcastFillUpdate(order, fill)
		accounts.ApplyFill(order, fill)
	})

	// Start background execution loops with a fast reconcile for tests
	runCtx, runCancel := context.WithCancel(context.Background())
	if err := execService.Start(runCtx); err != nil {
		runCancel()
		t.Fatalf("failed to start execution service: %v", err)
	}

	// Setup router
	deps := &api.Dependencies{
		OrderService:     services.Order,
		VenueService:     services.Venue,
		StatsService:     services.Stats,
		ExecutionService: execService,
		WSHandler:        hub.Handler(),
		Logger:           logger,
	}
	muxRouter := api.SetupRoutes(deps)

	// Create test server
	server := httptest.NewServer(muxRouter)

	cleanup := func() {
		server.Close()
		if execService.Running() {
			_ = execService.Stop()
		}
		runCancel()
		hub.Stop()
		cleanupTestTables(db)
		dbCleanup()
	}

	return &TestServer{
		DB:       db,
		Router:   muxRouter,
		Server:   server,
		Hub:      hub,
		Repos:    repos,
		Services: services,
		Exec:     execService,
		Cleanup:  cleanup,
	}
}

// initTestTables creates tables for testing
func initTestTables(db *sql.DB) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id BIGSERIAL PRIMARY KEY,
			uuid VARCHAR(36) UNIQUE NOT NULL,
			external_order_id TEXT NOT NULL DEFAULT '',
			symbol VARCHAR(25) NOT NULL,
			side VARCHAR(10) NOT NULL,
			order_type VARCHAR(20) NOT NULL,
			quantity DECIMAL(30, 10) NOT NULL,
			filled_quantity DECIMAL(30, 10) NOT NULL DEFAULT 0,
			price DECIMAL(30, 10),
			stop_price DECIMAL(30, 10),
			avg_fill_price DECIMAL(30, 10) NOT NULL DEFAULT 0,
			iceberg_quantity DECIMAL(30, 10),
			trailing_amount DECIMAL(30, 10),
			trailing_percent DECIMAL(30, 10),
			max_position_size DECIMAL(30, 10),
			time_in_force VARCHAR(10) NOT NULL,
			expire_time TIMESTAMP,
			priority VARCHAR(10) NOT NULL DEFAULT 'normal',
			source VARCHAR(20) NOT NULL DEFAULT 'manual',
			strategy_id BIGINT,
			backtest_id BIGINT,
			parent_order_id BIGINT,
			account_id TEXT NOT NULL DEFAULT '',
			venue VARCHAR(50) NOT NULL DEFAULT '',
			status VARCHAR(20) NOT NULL,
			risk_check_passed BOOLEAN NOT NULL DEFAULT false,
			risk_check_message TEXT NOT NULL DEFAULT '',
			last_error TEXT NOT NULL DEFAULT '',
			commission DECIMAL(30, 10) NOT NULL DEFAULT 0,
			commission_asset VARCHAR(10) NOT NULL DEFAULT '',
			tags TEXT[] NOT NULL DEFAULT '{}',
			notes TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
			submitted_at TIMESTAMP,
			accepted_at TIMESTAMP,
			filled_at TIMESTAMP,
			cancelled_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS fills (
			id BIGSERIAL PRIMARY KEY,
			uuid VARCHAR(36) UNIQUE NOT NULL,
			external_fill_id TEXT NOT NULL DEFAULT '',
			order_id BIGINT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
			quantity DECIMAL(30, 10) NOT NULL,
			price DECIMAL(30, 10) NOT NULL,
			value DECIMAL(30, 10) NOT NULL,
			commission DECIMAL(30, 10) NOT NULL DEFAULT 0,
			commission_asset VARCHAR(10) NOT NULL DEFAULT '',
			liquidity VARCHAR(10) NOT NULL DEFAULT 'unknown',
			counterparty TEXT NOT NULL DEFAULT '',
			fill_time TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS venue_accounts (
			id SERIAL PRIMARY KEY,
			name VARCHAR(50) UNIQUE NOT NULL,
			account_id TEXT NOT NULL DEFAULT '',
			api_key TEXT NOT NULL DEFAULT '',
			secret_key TEXT NOT NULL DEFAULT '',
			connected BOOLEAN NOT NULL DEFAULT false,
			buying_power DECIMAL(30, 10) NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
	}

	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}

// cleanupTestTables truncates all test tables
func cleanupTestTables(db *sql.DB) {
	tables := []string{
		"fills",
		"orders",
		"venue_accounts",
	}

	for _, table := range tables {
		db.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table))
	}
}

// TruncateTable truncates a specific table for testing
func TruncateTable(db *sql.DB, tableName string) error {
	_, err := db.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", tableName))
	return err
}
