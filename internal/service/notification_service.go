package service

import (
	"context"
	"strings"
	"time"

	"p2pdesk/internal/models"
)

// NotificationBroadcaster - интерфейс для отправки уведомлений в websocket-ленту.
//
// Позволяет избежать циклических зависимостей между пакетами
// и упрощает тестирование (можно подставить mock)
type NotificationBroadcaster interface {
	BroadcastNotification(notif *models.Notification)
}

// NotificationService предоставляет бизнес-логику операторской ленты событий.
//
// Отвечает за:
// - Публикацию уведомлений с учётом notification_prefs
// - Получение списка уведомлений с фильтрацией по типам
// - Очистку журнала уведомлений
// - Broadcast уведомлений через WebSocket
//
// Publish реализует интерфейс Notifier движка: трекер, сопоставитель
// и менеджер объявлений публикуют события, не зная о БД и websocket.
type NotificationService struct {
	notificationRepo NotificationRepositoryInterface
	settingsRepo     SettingsRepositoryInterface
	wsHub            NotificationBroadcaster
}

// NewNotificationService создает новый экземпляр NotificationService.
func NewNotificationService(
	notificationRepo NotificationRepositoryInterface,
	settingsRepo SettingsRepositoryInterface,
) *NotificationService {
	return &NotificationService{
		notificationRepo: notificationRepo,
		settingsRepo:     settingsRepo,
	}
}

// SetWebSocketHub устанавливает WebSocket hub для broadcast уведомлений.
//
// Вызывается после инициализации Hub в main.go:
//
//	notifService := service.NewNotificationService(notifRepo, settingsRepo)
//	notifService.SetWebSocketHub(wsHub)
func (s *NotificationService) SetWebSocketHub(hub NotificationBroadcaster) {
	s.wsHub = hub
}

// Publish записывает уведомление и транслирует его в websocket-ленту.
//
// Перед записью проверяются notification_prefs: выключенный тип
// пропускается молча. Ошибка записи не возвращается вызывающему -
// публикация события не должна ломать поток, который его породил;
// компоненты движка вызывают Publish из обработки сделок и платежей.
func (s *NotificationService) Publish(ctx context.Context, notif *models.Notification) {
	enabled, err := s.isTypeEnabled(ctx, notif.Type)
	if err == nil && !enabled {
		return
	}
	// При недоступных настройках уведомление всё равно публикуется:
	// лучше лишнее событие в ленте, чем пропущенное важное

	if notif.Timestamp.IsZero() {
		notif.Timestamp = time.Now()
	}

	if err := s.notificationRepo.Create(ctx, notif); err != nil {
		return
	}

	if s.wsHub != nil {
		s.wsHub.BroadcastNotification(notif)
	}
}

// CreateNotification создает уведомление и возвращает ошибку записи.
// Используется операторским API; движок ходит через Publish.
func (s *NotificationService) CreateNotification(ctx context.Context, notif *models.Notification) error {
	if notif.Timestamp.IsZero() {
		notif.Timestamp = time.Now()
	}

	if err := s.notificationRepo.Create(ctx, notif); err != nil {
		return err
	}

	if s.wsHub != nil {
		s.wsHub.BroadcastNotification(notif)
	}

	return nil
}

// GetNotifications возвращает список уведомлений с фильтрацией.
//
// Параметры:
// - types: список типов для фильтрации (например: ["TX_STATUS", "MATCH"]);
//   если пустой - возвращаются все типы
// - limit: максимальное количество записей (по умолчанию 100, максимум 500)
//
// Возвращает уведомления отсортированные по времени (новые сверху).
func (s *NotificationService) GetNotifications(ctx context.Context, types []string, limit int) ([]*models.Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}

	// Нормализуем типы (приводим к верхнему регистру)
	normalized := make([]string, 0, len(types))
	for _, t := range types {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t != "" {
			normalized = append(normalized, t)
		}
	}

	var (
		notifications []*models.Notification
		err           error
	)
	if len(normalized) == 0 {
		notifications, err = s.notificationRepo.GetRecent(ctx, limit)
	} else {
		notifications, err = s.notificationRepo.GetByTypes(ctx, normalized, limit)
	}
	if err != nil {
		return nil, err
	}

	// Гарантируем возврат пустого массива вместо nil
	if notifications == nil {
		notifications = []*models.Notification{}
	}

	return notifications, nil
}

// GetByTransaction возвращает события одной сделки (новые сверху).
func (s *NotificationService) GetByTransaction(ctx context.Context, transactionID int64) ([]*models.Notification, error) {
	notifications, err := s.notificationRepo.GetByTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if notifications == nil {
		notifications = []*models.Notification{}
	}
	return notifications, nil
}

// ClearNotifications очищает журнал уведомлений.
func (s *NotificationService) ClearNotifications(ctx context.Context) error {
	return s.notificationRepo.DeleteAll(ctx)
}

// GetNotificationCount возвращает количество уведомлений в журнале.
func (s *NotificationService) GetNotificationCount(ctx context.Context) (int, error) {
	return s.notificationRepo.Count(ctx)
}

// isTypeEnabled проверяет, включен ли тип уведомлений в настройках.
func (s *NotificationService) isTypeEnabled(ctx context.Context, notifType string) (bool, error) {
	prefs, err := s.settingsRepo.GetNotificationPrefs(ctx)
	if err != nil {
		return true, err
	}

	switch notifType {
	case models.NotificationTypeTxCreated:
		return prefs.TxCreated, nil
	case models.NotificationTypeTxStatus:
		return prefs.TxStatus, nil
	case models.NotificationTypeAdCreated, models.NotificationTypeAdDeleted:
		return prefs.AdLifecycle, nil
	case models.NotificationTypeMatch:
		return prefs.Match, nil
	case models.NotificationTypeAmbiguous:
		return prefs.Ambiguous, nil
	case models.NotificationTypeBlacklist:
		return prefs.Blacklist, nil
	case models.NotificationTypeChat:
		return prefs.Chat, nil
	case models.NotificationTypeAccountError:
		return prefs.AccountError, nil
	case models.NotificationTypeEngine:
		return prefs.Engine, nil
	default:
		// Неизвестный тип не фильтруется
		return true, nil
	}
}
