package service

import (
	"context"
	"time"

	"p2pdesk/internal/models"
	"p2pdesk/internal/repository"
)

// SettingsRepositoryInterface определяет интерфейс репозитория настроек
type SettingsRepositoryInterface interface {
	Get(ctx context.Context) (*models.Settings, error)
	Update(ctx context.Context, settings *models.Settings) error
	UpdateNotificationPrefs(ctx context.Context, prefs models.NotificationPreferences) error
	GetNotificationPrefs(ctx context.Context) (*models.NotificationPreferences, error)
	ResetToDefaults(ctx context.Context) error
}

// NotificationRepositoryInterface определяет интерфейс репозитория уведомлений
type NotificationRepositoryInterface interface {
	Create(ctx context.Context, n *models.Notification) error
	GetRecent(ctx context.Context, limit int) ([]*models.Notification, error)
	GetByTypes(ctx context.Context, types []string, limit int) ([]*models.Notification, error)
	GetByTransaction(ctx context.Context, transactionID int64) ([]*models.Notification, error)
	DeleteAll(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}

// BlacklistRepositoryInterface определяет интерфейс репозитория черного списка
type BlacklistRepositoryInterface interface {
	Create(ctx context.Context, entry *models.BlacklistedTransaction) error
	GetAll(ctx context.Context) ([]*models.BlacklistedTransaction, error)
	GetByID(ctx context.Context, id int64) (*models.BlacklistedTransaction, error)
	ExistsWallet(ctx context.Context, wallet string) (bool, error)
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (int, error)
}

// PayoutRepositoryInterface определяет интерфейс репозитория выплат
type PayoutRepositoryInterface interface {
	Create(ctx context.Context, payout *models.Payout) error
	GetByID(ctx context.Context, id string) (*models.Payout, error)
	GetByStatus(ctx context.Context, status string) ([]*models.Payout, error)
	GetRecent(ctx context.Context, limit int) ([]*models.Payout, error)
	Unblacklist(ctx context.Context, id string) error
	CountByStatus(ctx context.Context, status string) (int, error)
	Delete(ctx context.Context, id string) error
}

// AccountRepositoryInterface определяет интерфейс репозитория аккаунтов
type AccountRepositoryInterface interface {
	Create(ctx context.Context, acc *models.ExchangeAccount) error
	GetByID(ctx context.Context, id int64) (*models.ExchangeAccount, error)
	GetAll(ctx context.Context) ([]*models.ExchangeAccount, error)
	SetStatus(ctx context.Context, id int64, active bool, lastError string) error
}

// TransactionRepositoryInterface определяет интерфейс репозитория сделок
type TransactionRepositoryInterface interface {
	GetByID(ctx context.Context, id int64) (*models.Transaction, error)
	GetOpen(ctx context.Context) ([]*models.Transaction, error)
	GetByStatus(ctx context.Context, status string) ([]*models.Transaction, error)
	GetRecent(ctx context.Context, limit int) ([]*models.Transaction, error)
	SetChatSuspended(ctx context.Context, id int64, suspended bool) error
	CountByStatus(ctx context.Context, status string) (int, error)
}

// ChatRepositoryInterface определяет интерфейс репозитория сообщений чата
type ChatRepositoryInterface interface {
	GetByTransaction(ctx context.Context, transactionID int64) ([]*models.ChatMessage, error)
}

// TemplateRepositoryInterface определяет интерфейс репозитория шаблонов
type TemplateRepositoryInterface interface {
	CreateGroup(ctx context.Context, g *models.ResponseGroup) error
	GetGroups(ctx context.Context) ([]*models.ResponseGroup, error)
	GetGroupByID(ctx context.Context, id int64) (*models.ResponseGroup, error)
	SetGroupActive(ctx context.Context, id int64, active bool) error
	DeleteGroup(ctx context.Context, id int64) error
	CreateTemplate(ctx context.Context, t *models.ChatTemplate) error
	GetTemplateByID(ctx context.Context, id int64) (*models.ChatTemplate, error)
	GetTemplatesByGroup(ctx context.Context, groupID int64) ([]*models.ChatTemplate, error)
	UpdateTemplate(ctx context.Context, t *models.ChatTemplate) error
	DeleteTemplate(ctx context.Context, id int64) error
}

// MatchLogRepositoryInterface определяет интерфейс репозитория журнала сопоставления
type MatchLogRepositoryInterface interface {
	GetRecent(ctx context.Context, limit int) ([]*models.MatchLogEntry, error)
	GetByEvidence(ctx context.Context, evidenceID string) ([]*models.MatchLogEntry, error)
	GetByAction(ctx context.Context, action string, limit int) ([]*models.MatchLogEntry, error)
	Stats(ctx context.Context, since time.Time) (*models.MatchStats, error)
}

// Проверяем, что реальные репозитории реализуют интерфейсы
var _ SettingsRepositoryInterface = (*repository.SettingsRepository)(nil)
var _ NotificationRepositoryInterface = (*repository.NotificationRepository)(nil)
var _ BlacklistRepositoryInterface = (*repository.BlacklistRepository)(nil)
var _ PayoutRepositoryInterface = (*repository.PayoutRepository)(nil)
var _ AccountRepositoryInterface = (*repository.AccountRepository)(nil)
var _ TransactionRepositoryInterface = (*repository.TransactionRepository)(nil)
var _ ChatRepositoryInterface = (*repository.ChatRepository)(nil)
var _ TemplateRepositoryInterface = (*repository.TemplateRepository)(nil)
var _ MatchLogRepositoryInterface = (*repository.MatchLogRepository)(nil)

// ============ Интерфейсы сервисов для Dependency Injection ============

// SettingsServiceInterface определяет интерфейс сервиса настроек
type SettingsServiceInterface interface {
	GetSettings(ctx context.Context) (*models.Settings, error)
	UpdateSettings(ctx context.Context, req *UpdateSettingsRequest) (*models.Settings, error)
	UpdateNotificationPrefs(ctx context.Context, prefs models.NotificationPreferences) error
	GetNotificationPrefs(ctx context.Context) (*models.NotificationPreferences, error)
	ResetToDefaults(ctx context.Context) error
}

// NotificationServiceInterface определяет интерфейс сервиса уведомлений
type NotificationServiceInterface interface {
	GetNotifications(ctx context.Context, types []string, limit int) ([]*models.Notification, error)
	GetByTransaction(ctx context.Context, transactionID int64) ([]*models.Notification, error)
	CreateNotification(ctx context.Context, notif *models.Notification) error
	ClearNotifications(ctx context.Context) error
	GetNotificationCount(ctx context.Context) (int, error)
}

// BlacklistServiceInterface определяет интерфейс сервиса черного списка
type BlacklistServiceInterface interface {
	GetBlacklist(ctx context.Context) ([]*models.BlacklistedTransaction, error)
	GetByID(ctx context.Context, id int64) (*models.BlacklistedTransaction, error)
	Resolve(ctx context.Context, id int64) error
	GetCount(ctx context.Context) (int, error)
}

// AccountServiceInterface определяет интерфейс сервиса аккаунтов
type AccountServiceInterface interface {
	CreateAccount(ctx context.Context, req *CreateAccountRequest) (*models.ExchangeAccount, error)
	GetAccounts(ctx context.Context) ([]*models.ExchangeAccount, error)
	GetAccount(ctx context.Context, id int64) (*models.ExchangeAccount, error)
	DeactivateAccount(ctx context.Context, id int64, reason string) error
	ActivateAccount(ctx context.Context, id int64) error
	TestAccount(ctx context.Context, id int64, asset string) (*TestResult, error)
}

// PayoutServiceInterface определяет интерфейс сервиса выплат
type PayoutServiceInterface interface {
	CreatePayout(ctx context.Context, req *CreatePayoutRequest) (*models.Payout, error)
	GetPayouts(ctx context.Context, status string, limit int) ([]*models.Payout, error)
	GetPayout(ctx context.Context, id string) (*models.Payout, error)
	DeletePayout(ctx context.Context, id string) error
	GetPayoutCounts(ctx context.Context) (map[string]int, error)
}

// TransactionServiceInterface определяет интерфейс сервиса сделок
type TransactionServiceInterface interface {
	GetTransactions(ctx context.Context, status string, limit int) ([]*models.Transaction, error)
	GetTransaction(ctx context.Context, id int64) (*TransactionDetail, error)
	SuspendChat(ctx context.Context, id int64) error
	ResumeChat(ctx context.Context, id int64) error
	CompleteTransaction(ctx context.Context, id int64) error
	GetTransactionCounts(ctx context.Context) (map[string]int, error)
}

// TemplateServiceInterface определяет интерфейс сервиса шаблонов
type TemplateServiceInterface interface {
	CreateGroup(ctx context.Context, name string, active bool) (*models.ResponseGroup, error)
	GetGroups(ctx context.Context) ([]*models.ResponseGroup, error)
	SetGroupActive(ctx context.Context, id int64, active bool) error
	DeleteGroup(ctx context.Context, id int64) error
	CreateTemplate(ctx context.Context, req *TemplateRequest) (*models.ChatTemplate, error)
	GetTemplates(ctx context.Context, groupID int64) ([]*models.ChatTemplate, error)
	UpdateTemplate(ctx context.Context, id int64, req *TemplateRequest) (*models.ChatTemplate, error)
	DeleteTemplate(ctx context.Context, id int64) error
}

// MatchLogServiceInterface определяет интерфейс сервиса журнала сопоставления
type MatchLogServiceInterface interface {
	GetEntries(ctx context.Context, action string, limit int) ([]*models.MatchLogEntry, error)
	GetByEvidence(ctx context.Context, evidenceID string) ([]*models.MatchLogEntry, error)
	GetStats(ctx context.Context, hours int) (*models.MatchStats, error)
}

// Проверяем, что реальные сервисы реализуют интерфейсы
var _ SettingsServiceInterface = (*SettingsService)(nil)
var _ NotificationServiceInterface = (*NotificationService)(nil)
var _ BlacklistServiceInterface = (*BlacklistService)(nil)
var _ AccountServiceInterface = (*AccountService)(nil)
var _ PayoutServiceInterface = (*PayoutService)(nil)
var _ TransactionServiceInterface = (*TransactionService)(nil)
var _ TemplateServiceInterface = (*TemplateService)(nil)
var _ MatchLogServiceInterface = (*MatchLogService)(nil)
