package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Политика для свидетельств без единого кандидата
const (
	ZeroCandidateDiscard = "discard" // отбросить с записью в журнал
	ZeroCandidateRequeue = "requeue" // вернуть в очередь до исчерпания попыток или TTL
)

// Settings представляет глобальные настройки бота. Хранятся одной строкой
// в БД и правятся через API без перезапуска движка.
type Settings struct {
	ID                  int64                   `json:"id" db:"id"`
	OrderPollSeconds    int                     `json:"order_poll_seconds" db:"order_poll_seconds"`       // период опроса ордеров
	ChatPollSeconds     int                     `json:"chat_poll_seconds" db:"chat_poll_seconds"`         // период опроса чатов
	AdRefreshSeconds    int                     `json:"ad_refresh_seconds" db:"ad_refresh_seconds"`       // период пересчёта float-цен
	MatchTolerance      decimal.Decimal         `json:"match_tolerance" db:"match_tolerance"`             // допуск по сумме при сопоставлении
	MatchWindowMinutes  int                     `json:"match_window_minutes" db:"match_window_minutes"`   // окно времени платежа
	ZeroCandidatePolicy string                  `json:"zero_candidate_policy" db:"zero_candidate_policy"` // discard | requeue
	RequeueMaxAttempts  int                     `json:"requeue_max_attempts" db:"requeue_max_attempts"`
	RequeueTTLMinutes   int                     `json:"requeue_ttl_minutes" db:"requeue_ttl_minutes"`
	GreetingEnabled     bool                    `json:"greeting_enabled" db:"greeting_enabled"` // приветствие при новой сделке
	NotificationPrefs   NotificationPreferences `json:"notification_prefs" db:"notification_prefs"` // JSON в БД
	UpdatedAt           time.Time               `json:"updated_at" db:"updated_at"`
}

// NotificationPreferences представляет настройки уведомлений
type NotificationPreferences struct {
	TxCreated    bool `json:"tx_created"`
	TxStatus     bool `json:"tx_status"`
	AdLifecycle  bool `json:"ad_lifecycle"`
	Match        bool `json:"match"`
	Ambiguous    bool `json:"ambiguous"`
	Blacklist    bool `json:"blacklist"`
	Chat         bool `json:"chat"`
	AccountError bool `json:"account_error"`
	Engine       bool `json:"engine"`
}

// OrderPollInterval возвращает период опроса ордеров.
func (s *Settings) OrderPollInterval() time.Duration {
	return time.Duration(s.OrderPollSeconds) * time.Second
}

// ChatPollInterval возвращает период опроса чатов.
func (s *Settings) ChatPollInterval() time.Duration {
	return time.Duration(s.ChatPollSeconds) * time.Second
}

// AdRefreshInterval возвращает период пересчёта float-цен.
func (s *Settings) AdRefreshInterval() time.Duration {
	return time.Duration(s.AdRefreshSeconds) * time.Second
}

// MatchWindow возвращает окно времени, в котором платёж считается
// относящимся к выплате.
func (s *Settings) MatchWindow() time.Duration {
	return time.Duration(s.MatchWindowMinutes) * time.Minute
}

// RequeueTTL возвращает срок жизни свидетельства в очереди повторов.
func (s *Settings) RequeueTTL() time.Duration {
	return time.Duration(s.RequeueTTLMinutes) * time.Minute
}
