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

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"p2pdesk/internal/api"
	"p2pdesk/internal/chat"
	"p2pdesk/internal/config"
	"p2pdesk/internal/exchange"
	"p2pdesk/internal/matching"
	"p2pdesk/internal/pool"
	"p2pdesk/internal/repository"
	"p2pdesk/internal/service"
	"p2pdesk/internal/trader"
	"p2pdesk/internal/websocket"
	"p2pdesk/pkg/retry"
	"p2pdesk/pkg/utils"

	_ "github.com/lib/pq"
)

func main() {
	// .env необязателен: в контейнере конфигурация приходит окружением
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := utils.InitGlobalLogger(utils.LogConfig{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      cfg.Logging.Output,
		Development: cfg.Logging.Development,
	})
	defer logger.Sync()

	db, err := initDatabase(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	logger.Info("Connected to database", zap.String("dsn", cfg.Database.DSNWithoutPassword()))

	// Репозитории
	accountRepo := repository.NewAccountRepository(db)
	adRepo := repository.NewAdvertisementRepository(db)
	txRepo := repository.NewTransactionRepository(db)
	chatRepo := repository.NewChatRepository(db)
	templateRepo := repository.NewTemplateRepository(db)
	payoutRepo := repository.NewPayoutRepository(db)
	blacklistRepo := repository.NewBlacklistRepository(db)
	matchLogRepo := repository.NewMatchLogRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)

	// WebSocket лента
	hub := websocket.NewHub()
	go hub.Run()
	defer hub.Stop()

	events := websocket.NewEventPublisher(hub)

	// Пул биржевых аккаунтов
	clientFactory := pool.BybitFactory(
		cfg.Exchange.BaseURL,
		cfg.Exchange.RecvWindow,
		cfg.Exchange.RequestTimeout,
	)
	accountPool := pool.New(accountRepo, clientFactory, pool.Config{
		EncryptionKey: cfg.EncryptionKeyBytes(),
		RateLimit:     cfg.Exchange.RateLimit,
		RateBurst:     cfg.Exchange.RateBurst,
		Retry: retry.Config{
			MaxRetries:   cfg.Bot.MaxRetries,
			InitialDelay: cfg.Bot.RetryBackoff,
		},
		ClockMinAge: cfg.Exchange.ClockSyncInterval,
	}, logger.WithComponent("pool"))

	// Сервисы
	notificationService := service.NewNotificationService(notificationRepo, settingsRepo)
	notificationService.SetWebSocketHub(hub)

	accountService := service.NewAccountService(accountRepo, clientFactory, cfg.EncryptionKeyBytes())
	accountService.SetSessionPool(accountPool)

	transactionService := service.NewTransactionService(txRepo, chatRepo)
	payoutService := service.NewPayoutService(payoutRepo)
	templateService := service.NewTemplateService(templateRepo)
	settingsService := service.NewSettingsService(settingsRepo)
	blacklistService := service.NewBlacklistService(blacklistRepo, payoutRepo)
	matchLogService := service.NewMatchLogService(matchLogRepo)

	// Движок: менеджер объявлений, трекер сделок, автоответчик, сопоставитель
	adManager := trader.NewAdManager(accountPool, adRepo, payoutRepo, notificationService, events, cfg.Ads)

	tracker := trader.NewTracker(trader.TrackerDeps{
		Pool:         accountPool,
		Transactions: txRepo,
		Ads:          adRepo,
		AdManager:    adManager,
		Payouts:      payoutRepo,
		Messages:     chatRepo,
		Notifier:     notificationService,
		Events:       events,
	})

	automation := chat.NewAutomation(chat.Deps{
		Templates:    templateRepo,
		Messages:     chatRepo,
		Transactions: txRepo,
		Settings:     settingsRepo,
		Sender:       &poolChatSender{pool: accountPool},
		Advancer:     tracker,
		Events:       events,
	}, chat.Config{})
	tracker.SetGreeter(automation)

	requeue := matching.NewQueue(0)
	matcher := matching.NewMatcher(matching.Deps{
		Payouts:   payoutRepo,
		Blacklist: blacklistRepo,
		Log:       matchLogRepo,
		Settings:  settingsRepo,
		Completer: tracker,
		Notifier:  notificationService,
		Events:    events,
	})

	engine := trader.NewEngine(trader.EngineDeps{
		Pool:         accountPool,
		Tracker:      tracker,
		Ads:          adManager,
		Chat:         automation,
		Matcher:      matcher,
		Queue:        requeue,
		Transactions: txRepo,
		Messages:     chatRepo,
		Payouts:      payoutRepo,
		Settings:     settingsRepo,
		Notifier:     notificationService,
	}, cfg.Bot)

	transactionService.SetCompleter(tracker)

	// HTTP API
	router := api.SetupRoutes(&api.Dependencies{
		Engine:              engine,
		AccountService:      accountService,
		PayoutService:       payoutService,
		TransactionService:  transactionService,
		TemplateService:     templateService,
		SettingsService:     settingsService,
		NotificationService: notificationService,
		BlacklistService:    blacklistService,
		MatchLogService:     matchLogService,
		WebSocketHandler:    hub.Handler(),
		APITokenHash:        cfg.Security.APITokenHash,
		RateLimit:           cfg.Server.APIRateLimit,
		RateLimitBurst:      cfg.Server.APIRateBurst,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting server", zap.String("addr", server.Addr), zap.Bool("https", cfg.Server.UseHTTPS))
		if cfg.Server.UseHTTPS {
			if err := server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile); err != nil && err != http.ErrServerClosed {
				logger.Fatal("Server failed", zap.Error(err))
			}
		} else {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Fatal("Server failed", zap.Error(err))
			}
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Сначала движок: циклы дорабатывают итерацию и отпускают сделки,
	// потом HTTP, чтобы операторские запросы не падали на полпути
	if err := engine.Stop(shutdownCtx); err != nil && err != trader.ErrEngineStopped {
		logger.Error("Error stopping engine", zap.Error(err))
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// poolChatSender доставляет текст в чат ордера через сессию аккаунта,
// чтобы сообщения шли с подписью и rate limit нужного аккаунта.
type poolChatSender struct {
	pool *pool.Pool
}

func (s *poolChatSender) SendChat(ctx context.Context, accountID int64, orderID, content string) error {
	return s.pool.Execute(ctx, accountID, "send_chat", func(ctx context.Context, c exchange.Client) error {
		return c.SendChatMessage(ctx, orderID, content)
	})
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

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
