package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"p2pdesk/internal/models"
)

// Ошибки сервиса настроек
var (
	ErrInvalidPollInterval  = errors.New("интервал опроса должен быть не меньше 1 секунды")
	ErrInvalidTolerance     = errors.New("допуск по сумме не может быть отрицательным")
	ErrInvalidMatchWindow   = errors.New("окно сопоставления должно быть не меньше 1 минуты")
	ErrInvalidPolicy        = errors.New("политика должна быть discard или requeue")
	ErrInvalidRequeueLimits = errors.New("лимиты повторов должны быть положительными")
)

// SettingsService предоставляет бизнес-логику для управления настройками.
//
// Настройки хранятся одной строкой в БД и читаются движком на каждой
// итерации циклов: правка через API применяется без перезапуска.
//
// Отвечает за:
// - Получение и обновление настроек бота
// - Валидацию интервалов опроса и параметров сопоставления
// - Управление notification_prefs
type SettingsService struct {
	settingsRepo SettingsRepositoryInterface
}

// NewSettingsService создает новый экземпляр SettingsService.
func NewSettingsService(settingsRepo SettingsRepositoryInterface) *SettingsService {
	return &SettingsService{
		settingsRepo: settingsRepo,
	}
}

// GetSettings возвращает текущие настройки.
//
// Если записи в БД нет, создается запись с дефолтными значениями.
func (s *SettingsService) GetSettings(ctx context.Context) (*models.Settings, error) {
	return s.settingsRepo.Get(ctx)
}

// UpdateSettingsRequest представляет запрос на обновление настроек.
// Все поля опциональны - обновляются только переданные.
type UpdateSettingsRequest struct {
	OrderPollSeconds    *int                            `json:"order_poll_seconds,omitempty"`
	ChatPollSeconds     *int                            `json:"chat_poll_seconds,omitempty"`
	AdRefreshSeconds    *int                            `json:"ad_refresh_seconds,omitempty"`
	MatchTolerance      *decimal.Decimal                `json:"match_tolerance,omitempty"`
	MatchWindowMinutes  *int                            `json:"match_window_minutes,omitempty"`
	ZeroCandidatePolicy *string                         `json:"zero_candidate_policy,omitempty"`
	RequeueMaxAttempts  *int                            `json:"requeue_max_attempts,omitempty"`
	RequeueTTLMinutes   *int                            `json:"requeue_ttl_minutes,omitempty"`
	GreetingEnabled     *bool                           `json:"greeting_enabled,omitempty"`
	NotificationPrefs   *models.NotificationPreferences `json:"notification_prefs,omitempty"`
}

// UpdateSettings обновляет настройки.
//
// Принимает только те поля, которые нужно обновить.
//
// Правила валидации:
// - интервалы опроса: >= 1 секунды
// - match_tolerance: >= 0
// - match_window_minutes: >= 1
// - zero_candidate_policy: discard | requeue
// - requeue_max_attempts и requeue_ttl_minutes: >= 1
func (s *SettingsService) UpdateSettings(ctx context.Context, req *UpdateSettingsRequest) (*models.Settings, error) {
	settings, err := s.settingsRepo.Get(ctx)
	if err != nil {
		return nil, err
	}

	// Обновляем только переданные поля
	if req.OrderPollSeconds != nil {
		if *req.OrderPollSeconds < 1 {
			return nil, ErrInvalidPollInterval
		}
		settings.OrderPollSeconds = *req.OrderPollSeconds
	}

	if req.ChatPollSeconds != nil {
		if *req.ChatPollSeconds < 1 {
			return nil, ErrInvalidPollInterval
		}
		settings.ChatPollSeconds = *req.ChatPollSeconds
	}

	if req.AdRefreshSeconds != nil {
		if *req.AdRefreshSeconds < 1 {
			return nil, ErrInvalidPollInterval
		}
		settings.AdRefreshSeconds = *req.AdRefreshSeconds
	}

	if req.MatchTolerance != nil {
		if req.MatchTolerance.IsNegative() {
			return nil, ErrInvalidTolerance
		}
		settings.MatchTolerance = *req.MatchTolerance
	}

	if req.MatchWindowMinutes != nil {
		if *req.MatchWindowMinutes < 1 {
			return nil, ErrInvalidMatchWindow
		}
		settings.MatchWindowMinutes = *req.MatchWindowMinutes
	}

	if req.ZeroCandidatePolicy != nil {
		switch *req.ZeroCandidatePolicy {
		case models.ZeroCandidateDiscard, models.ZeroCandidateRequeue:
			settings.ZeroCandidatePolicy = *req.ZeroCandidatePolicy
		default:
			return nil, ErrInvalidPolicy
		}
	}

	if req.RequeueMaxAttempts != nil {
		if *req.RequeueMaxAttempts < 1 {
			return nil, ErrInvalidRequeueLimits
		}
		settings.RequeueMaxAttempts = *req.RequeueMaxAttempts
	}

	if req.RequeueTTLMinutes != nil {
		if *req.RequeueTTLMinutes < 1 {
			return nil, ErrInvalidRequeueLimits
		}
		settings.RequeueTTLMinutes = *req.RequeueTTLMinutes
	}

	if req.GreetingEnabled != nil {
		settings.GreetingEnabled = *req.GreetingEnabled
	}

	if req.NotificationPrefs != nil {
		settings.NotificationPrefs = *req.NotificationPrefs
	}

	if err := s.settingsRepo.Update(ctx, settings); err != nil {
		return nil, err
	}

	return settings, nil
}

// UpdateNotificationPrefs обновляет только настройки уведомлений.
func (s *SettingsService) UpdateNotificationPrefs(ctx context.Context, prefs models.NotificationPreferences) error {
	return s.settingsRepo.UpdateNotificationPrefs(ctx, prefs)
}

// GetNotificationPrefs возвращает только настройки уведомлений.
func (s *SettingsService) GetNotificationPrefs(ctx context.Context) (*models.NotificationPreferences, error) {
	return s.settingsRepo.GetNotificationPrefs(ctx)
}

// ResetToDefaults сбрасывает все настройки к значениям по умолчанию.
func (s *SettingsService) ResetToDefaults(ctx context.Context) error {
	return s.settingsRepo.ResetToDefaults(ctx)
}
