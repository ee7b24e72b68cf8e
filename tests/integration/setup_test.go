// Package integration contains integration tests for the P2P trading desk.
//
// These tests verify the correct interaction between components:
// - API integration tests: full HTTP request cycle
// - WebSocket tests: connection, broadcast messaging
// - Database tests: schema, repositories, transactions
//
// Tests require a reachable PostgreSQL instance and skip themselves
// otherwise. Connection is configured with TEST_DB_* variables.
package integration

import (
	"database/sql"
	"fmt"
	"log"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"p2pdesk/internal/api"
	"p2pdesk/internal/repository"
	"p2pdesk/internal/service"
	"p2pdesk/internal/websocket"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
)

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
	Cleanup  func()
}

// TestRepositories contains all repository instances for testing
type TestRepositories struct {
	Account       *repository.AccountRepository
	Advertisement *repository.AdvertisementRepository
	Transaction   *repository.TransactionRepository
	Chat          *repository.ChatRepository
	Template      *repository.TemplateRepository
	Payout        *repository.PayoutRepository
	Blacklist     *repository.BlacklistRepository
	MatchLog      *repository.MatchLogRepository
	Notification  *repository.NotificationRepository
	Settings      *repository.SettingsRepository
}

// TestServices contains all service instances for testing
type TestServices struct {
	Payout       *service.PayoutService
	Transaction  *service.TransactionService
	Template     *service.TemplateService
	Settings     *service.SettingsService
	Notification *service.NotificationService
	Blacklist    *service.BlacklistService
	MatchLog     *service.MatchLogService
}

// getTestConfig returns configuration from environment variables or defaults
func getTestConfig() TestConfig {
	return TestConfig{
		DBDriver:   getEnv("TEST_DB_DRIVER", "postgres"),
		DBHost:     getEnv("TEST_DB_HOST", "localhost"),
		DBPort:     getEnv("TEST_DB_PORT", "5432"),
		DBName:     getEnv("TEST_DB_NAME", "p2pdesk_test"),
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
	config := getTestConfig()

	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		config.DBHost, config.DBPort, config.DBUser, config.DBPassword, config.DBName, config.DBSSLMode,
	)

	db, err := sql.Open(config.DBDriver, connStr)
	if err != nil {
		t.Skipf("Skipping integration test: cannot connect to database: %v", err)
		return nil, func() {}
	}

	if err := db.Ping(); err != nil {
		t.Skipf("Skipping integration test: cannot ping database: %v", err)
		return nil, func() {}
	}

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

// SetupTestServer creates a complete test server with all components.
// The trading engine is not started: API tests exercise the operator
// surface, the engine loops are covered by unit tests.
func SetupTestServer(t *testing.T) *TestServer {
	db, dbCleanup := SetupTestDB(t)
	if db == nil {
		return nil
	}

	if err := initTestTables(db); err != nil {
		t.Skipf("Skipping integration test: cannot initialize tables: %v", err)
		return nil
	}

	hub := websocket.NewHub()
	go hub.Run()

	repos := &TestRepositories{
		Account:       repository.NewAccountRepository(db),
		Advertisement: repository.NewAdvertisementRepository(db),
		Transaction:   repository.NewTransactionRepository(db),
		Chat:          repository.NewChatRepository(db),
		Template:      repository.NewTemplateRepository(db),
		Payout:        repository.NewPayoutRepository(db),
		Blacklist:     repository.NewBlacklistRepository(db),
		MatchLog:      repository.NewMatchLogRepository(db),
		Notification:  repository.NewNotificationRepository(db),
		Settings:      repository.NewSettingsRepository(db),
	}

	services := &TestServices{
		Payout:       service.NewPayoutService(repos.Payout),
		Transaction:  service.NewTransactionService(repos.Transaction, repos.Chat),
		Template:     service.NewTemplateService(repos.Template),
		Settings:     service.NewSettingsService(repos.Settings),
		Notification: service.NewNotificationService(repos.Notification, repos.Settings),
		Blacklist:    service.NewBlacklistService(repos.Blacklist, repos.Payout),
		MatchLog:     service.NewMatchLogService(repos.MatchLog),
	}
	services.Notification.SetWebSocketHub(hub)

	deps := &api.Dependencies{
		PayoutService:       services.Payout,
		TransactionService:  services.Transaction,
		TemplateService:     services.Template,
		SettingsService:     services.Settings,
		NotificationService: services.Notification,
		BlacklistService:    services.Blacklist,
		MatchLogService:     services.MatchLog,
		WebSocketHandler:    hub.Handler(),
	}
	router := api.SetupRoutes(deps)

	server := httptest.NewServer(router)

	cleanup := func() {
		server.Close()
		hub.Stop()
		cleanupTestTables(db)
		dbCleanup()
	}

	return &TestServer{
		DB:       db,
		Router:   router,
		Server:   server,
		Hub:      hub,
		Repos:    repos,
		Services: services,
		Cleanup:  cleanup,
	}
}

// initTestTables creates or truncates tables for testing
func initTestTables(db *sql.DB) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS exchange_accounts (
			id SERIAL PRIMARY KEY,
			label VARCHAR(100) UNIQUE NOT NULL,
			api_key TEXT NOT NULL,
			secret_key TEXT NOT NULL,
			proxy_url TEXT DEFAULT '',
			active BOOLEAN DEFAULT true,
			max_active_ads INT DEFAULT 1,
			active_ads INT DEFAULT 0,
			last_error TEXT DEFAULT '',
			created_at TIMESTAMP DEFAULT NOW(),
			updated_at TIMESTAMP DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS payouts (
			id VARCHAR(36) PRIMARY KEY,
			amount DECIMAL(20, 2) NOT NULL,
			currency VARCHAR(10) NOT NULL,
			wallet VARCHAR(100) NOT NULL,
			bank VARCHAR(100) DEFAULT '',
			status VARCHAR(20) DEFAULT 'open',
			transaction_id BIGINT,
			created_at TIMESTAMP DEFAULT NOW(),
			updated_at TIMESTAMP DEFAULT NOW(),
			settled_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS advertisements (
			id SERIAL PRIMARY KEY,
			external_id VARCHAR(100) NOT NULL,
			account_id INT REFERENCES exchange_accounts(id) ON DELETE CASCADE,
			payout_id VARCHAR(36),
			side VARCHAR(10) NOT NULL,
			asset VARCHAR(10) NOT NULL,
			fiat VARCHAR(10) NOT NULL,
			price_mode VARCHAR(10) NOT NULL,
			price DECIMAL(20, 8) NOT NULL,
			premium DECIMAL(10, 4) DEFAULT 0,
			quantity DECIMAL(20, 8) NOT NULL,
			min_amount DECIMAL(20, 2) NOT NULL,
			max_amount DECIMAL(20, 2) NOT NULL,
			payment_methods TEXT[] DEFAULT '{}',
			remark TEXT DEFAULT '',
			status VARCHAR(20) NOT NULL,
			created_at TIMESTAMP DEFAULT NOW(),
			updated_at TIMESTAMP DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id SERIAL PRIMARY KEY,
			order_id VARCHAR(100) UNIQUE NOT NULL,
			advertisement_id BIGINT,
			account_id BIGINT,
			payout_id VARCHAR(36),
			status VARCHAR(30) NOT NULL,
			side VARCHAR(10) NOT NULL,
			asset VARCHAR(10) NOT NULL,
			fiat VARCHAR(10) NOT NULL,
			fiat_amount DECIMAL(20, 2) NOT NULL,
			asset_amount DECIMAL(20, 8) NOT NULL,
			price DECIMAL(20, 8) NOT NULL,
			counterparty_id VARCHAR(100) DEFAULT '',
			counterparty_nickname VARCHAR(100) DEFAULT '',
			chat_suspended BOOLEAN DEFAULT false,
			created_at TIMESTAMP DEFAULT NOW(),
			updated_at TIMESTAMP DEFAULT NOW(),
			completed_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id SERIAL PRIMARY KEY,
			transaction_id INT REFERENCES transactions(id) ON DELETE CASCADE,
			external_id VARCHAR(100) NOT NULL,
			sender VARCHAR(20) NOT NULL,
			type VARCHAR(10) DEFAULT 'text',
			content TEXT NOT NULL,
			is_auto_reply BOOLEAN DEFAULT false,
			processed BOOLEAN DEFAULT false,
			created_at TIMESTAMP DEFAULT NOW(),
			UNIQUE (transaction_id, external_id)
		)`,
		`CREATE TABLE IF NOT EXISTS response_groups (
			id SERIAL PRIMARY KEY,
			name VARCHAR(100) UNIQUE NOT NULL,
			active BOOLEAN DEFAULT true,
			created_at TIMESTAMP DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS chat_templates (
			id SERIAL PRIMARY KEY,
			group_id INT REFERENCES response_groups(id) ON DELETE CASCADE,
			keywords TEXT NOT NULL,
			reply TEXT NOT NULL,
			priority INT DEFAULT 0,
			next_status VARCHAR(30),
			active BOOLEAN DEFAULT true,
			created_at TIMESTAMP DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS blacklist (
			id SERIAL PRIMARY KEY,
			payout_id VARCHAR(36) NOT NULL,
			wallet VARCHAR(100) NOT NULL,
			amount DECIMAL(20, 2) NOT NULL,
			currency VARCHAR(10) NOT NULL,
			reason TEXT DEFAULT '',
			created_at TIMESTAMP DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS match_log (
			id SERIAL PRIMARY KEY,
			evidence_id VARCHAR(36) NOT NULL,
			action VARCHAR(20) NOT NULL,
			amount DECIMAL(20, 2) NOT NULL,
			currency VARCHAR(10) NOT NULL,
			wallet_hint VARCHAR(100) DEFAULT '',
			bank_hint VARCHAR(100) DEFAULT '',
			source VARCHAR(20) NOT NULL,
			candidate_count INT DEFAULT 0,
			payout_id VARCHAR(36),
			transaction_id BIGINT,
			attempt INT DEFAULT 1,
			processing_ms BIGINT DEFAULT 0,
			created_at TIMESTAMP DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id SERIAL PRIMARY KEY,
			timestamp TIMESTAMP DEFAULT NOW(),
			type VARCHAR(50) NOT NULL,
			severity VARCHAR(10) DEFAULT 'info',
			transaction_id BIGINT,
			message TEXT NOT NULL,
			meta JSONB DEFAULT '{}'
		)`,
		`CREATE TABLE IF NOT EXISTS settings (
			id INT PRIMARY KEY DEFAULT 1,
			order_poll_seconds INT NOT NULL,
			chat_poll_seconds INT NOT NULL,
			ad_refresh_seconds INT NOT NULL,
			match_tolerance DECIMAL(10, 2) NOT NULL,
			match_window_minutes INT NOT NULL,
			zero_candidate_policy VARCHAR(10) NOT NULL,
			requeue_max_attempts INT NOT NULL,
			requeue_ttl_minutes INT NOT NULL,
			greeting_enabled BOOLEAN DEFAULT true,
			notification_prefs JSONB NOT NULL,
			updated_at TIMESTAMP DEFAULT NOW()
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
		"match_log",
		"blacklist",
		"chat_messages",
		"chat_templates",
		"response_groups",
		"notifications",
		"transactions",
		"advertisements",
		"payouts",
		"exchange_accounts",
		"settings",
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
