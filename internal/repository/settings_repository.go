package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"p2pdesk/internal/models"
)

// Ошибки репозитория настроек
var (
	ErrSettingsNotFound = errors.New("settings not found")
)

// SettingsRepository - работа с таблицей settings
type SettingsRepository struct {
	db *sql.DB
}

// NewSettingsRepository создает новый экземпляр репозитория
func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get возвращает глобальные настройки (всегда id=1, одна запись)
func (r *SettingsRepository) Get(ctx context.Context) (*models.Settings, error) {
	query := `
		SELECT id, order_poll_seconds, chat_poll_seconds, ad_refresh_seconds, match_tolerance, match_window_minutes, zero_candidate_policy, requeue_max_attempts, requeue_ttl_minutes, greeting_enabled, notification_prefs, updated_at
		FROM settings
		WHERE id = 1`

	settings := &models.Settings{}
	var prefsJSON []byte
	err := r.db.QueryRowContext(ctx, query).Scan(
		&settings.ID,
		&settings.OrderPollSeconds,
		&settings.ChatPollSeconds,
		&settings.AdRefreshSeconds,
		&settings.MatchTolerance,
		&settings.MatchWindowMinutes,
		&settings.ZeroCandidatePolicy,
		&settings.RequeueMaxAttempts,
		&settings.RequeueTTLMinutes,
		&settings.GreetingEnabled,
		&prefsJSON,
		&settings.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Если записи нет, создаем ее с дефолтными значениями
			return r.createDefault(ctx)
		}
		return nil, err
	}

	if len(prefsJSON) > 0 {
		if err := json.Unmarshal(prefsJSON, &settings.NotificationPrefs); err != nil {
			return nil, err
		}
	} else {
		settings.NotificationPrefs = defaultNotificationPrefs()
	}

	return settings, nil
}

// Update обновляет настройки
func (r *SettingsRepository) Update(ctx context.Context, settings *models.Settings) error {
	prefsJSON, err := json.Marshal(settings.NotificationPrefs)
	if err != nil {
		return err
	}

	query := `
		UPDATE settings
		SET order_poll_seconds = $1, chat_poll_seconds = $2, ad_refresh_seconds = $3, match_tolerance = $4, match_window_minutes = $5, zero_candidate_policy = $6, requeue_max_attempts = $7, requeue_ttl_minutes = $8, greeting_enabled = $9, notification_prefs = $10, updated_at = $11
		WHERE id = 1`

	settings.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		settings.OrderPollSeconds,
		settings.ChatPollSeconds,
		settings.AdRefreshSeconds,
		settings.MatchTolerance,
		settings.MatchWindowMinutes,
		settings.ZeroCandidatePolicy,
		settings.RequeueMaxAttempts,
		settings.RequeueTTLMinutes,
		settings.GreetingEnabled,
		prefsJSON,
		settings.UpdatedAt,
	)
	if err != nil {
		return err
	}

	return requireRowsAffected(result, ErrSettingsNotFound)
}

// UpdateNotificationPrefs обновляет только настройки уведомлений
func (r *SettingsRepository) UpdateNotificationPrefs(ctx context.Context, prefs models.NotificationPreferences) error {
	prefsJSON, err := json.Marshal(prefs)
	if err != nil {
		return err
	}

	query := `
		UPDATE settings
		SET notification_prefs = $1, updated_at = $2
		WHERE id = 1`

	result, err := r.db.ExecContext(ctx, query, prefsJSON, time.Now())
	if err != nil {
		return err
	}

	return requireRowsAffected(result, ErrSettingsNotFound)
}

// GetNotificationPrefs возвращает только настройки уведомлений
func (r *SettingsRepository) GetNotificationPrefs(ctx context.Context) (*models.NotificationPreferences, error) {
	query := `SELECT notification_prefs FROM settings WHERE id = 1`

	var prefsJSON []byte
	err := r.db.QueryRowContext(ctx, query).Scan(&prefsJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			prefs := defaultNotificationPrefs()
			return &prefs, nil
		}
		return nil, err
	}

	var prefs models.NotificationPreferences
	if len(prefsJSON) > 0 {
		if err := json.Unmarshal(prefsJSON, &prefs); err != nil {
			return nil, err
		}
	} else {
		prefs = defaultNotificationPrefs()
	}

	return &prefs, nil
}

// ResetToDefaults сбрасывает настройки к значениям по умолчанию
func (r *SettingsRepository) ResetToDefaults(ctx context.Context) error {
	return r.Update(ctx, defaultSettings())
}

// createDefault создает запись настроек с дефолтными значениями
func (r *SettingsRepository) createDefault(ctx context.Context) (*models.Settings, error) {
	settings := defaultSettings()

	prefsJSON, err := json.Marshal(settings.NotificationPrefs)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO settings (id, order_poll_seconds, chat_poll_seconds, ad_refresh_seconds, match_tolerance, match_window_minutes, zero_candidate_policy, requeue_max_attempts, requeue_ttl_minutes, greeting_enabled, notification_prefs, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING`

	_, err = r.db.ExecContext(ctx, query,
		settings.OrderPollSeconds,
		settings.ChatPollSeconds,
		settings.AdRefreshSeconds,
		settings.MatchTolerance,
		settings.MatchWindowMinutes,
		settings.ZeroCandidatePolicy,
		settings.RequeueMaxAttempts,
		settings.RequeueTTLMinutes,
		settings.GreetingEnabled,
		prefsJSON,
		settings.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return settings, nil
}

// defaultSettings возвращает настройки по умолчанию
func defaultSettings() *models.Settings {
	return &models.Settings{
		ID:                  1,
		OrderPollSeconds:    5,
		ChatPollSeconds:     3,
		AdRefreshSeconds:    60,
		MatchTolerance:      decimal.Zero,
		MatchWindowMinutes:  30,
		ZeroCandidatePolicy: models.ZeroCandidateRequeue,
		RequeueMaxAttempts:  5,
		RequeueTTLMinutes:   15,
		GreetingEnabled:     true,
		NotificationPrefs:   defaultNotificationPrefs(),
		UpdatedAt:           time.Now(),
	}
}

// defaultNotificationPrefs возвращает дефолтные настройки уведомлений
func defaultNotificationPrefs() models.NotificationPreferences {
	return models.NotificationPreferences{
		TxCreated:    true,
		TxStatus:     true,
		AdLifecycle:  true,
		Match:        true,
		Ambiguous:    true,
		Blacklist:    true,
		Chat:         false,
		AccountError: true,
		Engine:       true,
	}
}
