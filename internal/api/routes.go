package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"p2pdesk/internal/api/handlers"
	"p2pdesk/internal/api/middleware"
	"p2pdesk/internal/service"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	Engine              handlers.EngineController
	AccountService      service.AccountServiceInterface
	PayoutService       service.PayoutServiceInterface
	TransactionService  service.TransactionServiceInterface
	TemplateService     service.TemplateServiceInterface
	SettingsService     service.SettingsServiceInterface
	NotificationService service.NotificationServiceInterface
	BlacklistService    service.BlacklistServiceInterface
	MatchLogService     service.MatchLogServiceInterface

	// WebSocketHandler обслуживает GET /ws/stream. Допускается nil.
	WebSocketHandler http.Handler

	// APITokenHash - bcrypt-хэш операторского токена; пустая строка
	// отключает аутентификацию (локальная разработка)
	APITokenHash string

	// RateLimit - запросов в секунду на один IP; 0 отключает лимитер
	RateLimit      float64
	RateLimitBurst int
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
// /api/v1/
//
//	├── /engine/
//	│   ├── POST /start - запуск движка
//	│   ├── POST /stop - остановка движка
//	│   ├── POST /restart - перезапуск
//	│   └── GET /status - снимок состояния
//	├── /accounts/
//	│   ├── GET / - список аккаунтов
//	│   ├── POST / - добавление аккаунта
//	│   ├── GET /{id} - один аккаунт
//	│   ├── DELETE /{id} - деактивация
//	│   ├── POST /{id}/activate - возврат в работу
//	│   └── POST /{id}/test - пробный запрос к бирже
//	├── /payouts/
//	│   ├── GET / - список выплат
//	│   ├── POST / - регистрация выплаты
//	│   ├── GET /counts - количество по статусам
//	│   ├── GET /{id} - одна выплата
//	│   └── DELETE /{id} - снятие открытой выплаты
//	├── /transactions/
//	│   ├── GET / - список сделок
//	│   ├── GET /counts - количество по статусам
//	│   ├── GET /{id} - сделка с перепиской
//	│   ├── POST /{id}/chat/suspend - отключить автоответчик
//	│   ├── POST /{id}/chat/resume - вернуть автоответчик
//	│   └── POST /{id}/complete - ручное завершение
//	├── /templates/
//	│   ├── GET|POST /groups - группы шаблонов
//	│   ├── PATCH|DELETE /groups/{id} - переключение и удаление
//	│   ├── GET|POST / - шаблоны
//	│   └── PUT|DELETE /{id} - изменение и удаление
//	├── /evidence/ - POST: приём платёжного свидетельства
//	├── /matchlog/ - GET: журнал сопоставления, /stats, /{id}
//	├── /blacklist/ - GET, GET /{id}, DELETE /{id} (разбор)
//	├── /notifications/ - GET, DELETE
//	└── /settings/ - GET, PATCH, POST /reset
//
// /ws/stream - WebSocket трансляция событий
// /metrics - Prometheus
// /health - проверка живости
//
// Middleware: Recovery и Logging и CORS на всех маршрутах; rate limit и
// Bearer-аутентификация только на /api/v1.
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.CORS)

	// API v1 routes
	api := router.PathPrefix("/api/v1").Subrouter()

	if deps.RateLimit > 0 {
		limiter := middleware.NewRateLimiter(deps.RateLimit, deps.RateLimitBurst)
		api.Use(limiter.Middleware)
	}
	if deps.APITokenHash != "" {
		api.Use(middleware.Auth(deps.APITokenHash))
	}

	// Engine routes
	if deps.Engine != nil {
		engineHandler := handlers.NewEngineHandler(deps.Engine)
		api.HandleFunc("/engine/start", engineHandler.StartEngine).Methods("POST")
		api.HandleFunc("/engine/stop", engineHandler.StopEngine).Methods("POST")
		api.HandleFunc("/engine/restart", engineHandler.RestartEngine).Methods("POST")
		api.HandleFunc("/engine/status", engineHandler.GetStatus).Methods("GET")
	}

	// Account routes
	if deps.AccountService != nil {
		accountHandler := handlers.NewAccountHandler(deps.AccountService)
		api.HandleFunc("/accounts", accountHandler.GetAccounts).Methods("GET")
		api.HandleFunc("/accounts", accountHandler.CreateAccount).Methods("POST")
		api.HandleFunc("/accounts/{id}", accountHandler.GetAccount).Methods("GET")
		api.HandleFunc("/accounts/{id}", accountHandler.DeactivateAccount).Methods("DELETE")
		api.HandleFunc("/accounts/{id}/activate", accountHandler.ActivateAccount).Methods("POST")
		api.HandleFunc("/accounts/{id}/test", accountHandler.TestAccount).Methods("POST")
	}

	// Payout routes
	if deps.PayoutService != nil {
		payoutHandler := handlers.NewPayoutHandler(deps.PayoutService)
		api.HandleFunc("/payouts", payoutHandler.GetPayouts).Methods("GET")
		api.HandleFunc("/payouts", payoutHandler.CreatePayout).Methods("POST")
		api.HandleFunc("/payouts/counts", payoutHandler.GetPayoutCounts).Methods("GET")
		api.HandleFunc("/payouts/{id}", payoutHandler.GetPayout).Methods("GET")
		api.HandleFunc("/payouts/{id}", payoutHandler.DeletePayout).Methods("DELETE")
	}

	// Transaction routes
	if deps.TransactionService != nil {
		transactionHandler := handlers.NewTransactionHandler(deps.TransactionService)
		api.HandleFunc("/transactions", transactionHandler.GetTransactions).Methods("GET")
		api.HandleFunc("/transactions/counts", transactionHandler.GetTransactionCounts).Methods("GET")
		api.HandleFunc("/transactions/{id}", transactionHandler.GetTransaction).Methods("GET")
		api.HandleFunc("/transactions/{id}/chat/suspend", transactionHandler.SuspendChat).Methods("POST")
		api.HandleFunc("/transactions/{id}/chat/resume", transactionHandler.ResumeChat).Methods("POST")
		api.HandleFunc("/transactions/{id}/complete", transactionHandler.CompleteTransaction).Methods("POST")
	}

	// Template routes
	if deps.TemplateService != nil {
		templateHandler := handlers.NewTemplateHandler(deps.TemplateService)
		api.HandleFunc("/templates/groups", templateHandler.GetGroups).Methods("GET")
		api.HandleFunc("/templates/groups", templateHandler.CreateGroup).Methods("POST")
		api.HandleFunc("/templates/groups/{id}", templateHandler.UpdateGroup).Methods("PATCH")
		api.HandleFunc("/templates/groups/{id}", templateHandler.DeleteGroup).Methods("DELETE")
		api.HandleFunc("/templates", templateHandler.GetTemplates).Methods("GET")
		api.HandleFunc("/templates", templateHandler.CreateTemplate).Methods("POST")
		api.HandleFunc("/templates/{id}", templateHandler.UpdateTemplate).Methods("PUT")
		api.HandleFunc("/templates/{id}", templateHandler.DeleteTemplate).Methods("DELETE")
	}

	// Evidence и match log routes
	if deps.Engine != nil && deps.MatchLogService != nil {
		evidenceHandler := handlers.NewEvidenceHandler(deps.Engine, deps.MatchLogService)
		api.HandleFunc("/evidence", evidenceHandler.SubmitEvidence).Methods("POST")
		api.HandleFunc("/matchlog", evidenceHandler.GetMatchLog).Methods("GET")
		api.HandleFunc("/matchlog/stats", evidenceHandler.GetMatchStats).Methods("GET")
		api.HandleFunc("/matchlog/{id}", evidenceHandler.GetEvidenceHistory).Methods("GET")
	}

	// Blacklist routes
	if deps.BlacklistService != nil {
		blacklistHandler := handlers.NewBlacklistHandler(deps.BlacklistService)
		api.HandleFunc("/blacklist", blacklistHandler.GetBlacklist).Methods("GET")
		api.HandleFunc("/blacklist/{id}", blacklistHandler.GetEntry).Methods("GET")
		api.HandleFunc("/blacklist/{id}", blacklistHandler.ResolveEntry).Methods("DELETE")
	}

	// Notification routes
	if deps.NotificationService != nil {
		notificationHandler := handlers.NewNotificationHandler(deps.NotificationService)
		api.HandleFunc("/notifications", notificationHandler.GetNotifications).Methods("GET")
		api.HandleFunc("/notifications", notificationHandler.ClearNotifications).Methods("DELETE")
	}

	// Settings routes
	if deps.SettingsService != nil {
		settingsHandler := handlers.NewSettingsHandler(deps.SettingsService)
		api.HandleFunc("/settings", settingsHandler.GetSettings).Methods("GET")
		api.HandleFunc("/settings", settingsHandler.UpdateSettings).Methods("PATCH")
		api.HandleFunc("/settings/reset", settingsHandler.ResetSettings).Methods("POST")
	}

	// WebSocket route
	if deps.WebSocketHandler != nil {
		router.Handle("/ws/stream", deps.WebSocketHandler).Methods("GET")
	}

	// Prometheus metrics
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods("GET")

	return router
}
