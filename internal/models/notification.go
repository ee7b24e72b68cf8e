package models

import "time"

// Notification представляет уведомление о событии для операторской ленты
type Notification struct {
	ID            int64                  `json:"id" db:"id"`
	Timestamp     time.Time              `json:"timestamp" db:"timestamp"`
	Type          string                 `json:"type" db:"type"`         // TX_CREATED, TX_STATUS, MATCH, ...
	Severity      string                 `json:"severity" db:"severity"` // info, warn, error
	TransactionID *int64                 `json:"transaction_id,omitempty" db:"transaction_id"`
	Message       string                 `json:"message" db:"message"`
	Meta          map[string]interface{} `json:"meta,omitempty" db:"meta"` // дополнительные данные (JSON в БД)
}

// Типы уведомлений
const (
	NotificationTypeTxCreated    = "TX_CREATED"      // появилась новая сделка
	NotificationTypeTxStatus     = "TX_STATUS"       // сделка сменила статус
	NotificationTypeAdCreated    = "AD_CREATED"      // объявление размещено
	NotificationTypeAdDeleted    = "AD_DELETED"      // объявление удалено
	NotificationTypeMatch        = "MATCH"           // платёж сопоставлен с выплатой
	NotificationTypeAmbiguous    = "AMBIGUOUS_MATCH" // несколько кандидатов на один платёж
	NotificationTypeBlacklist    = "BLACKLIST"       // выплаты с дублями реквизитов заблокированы
	NotificationTypeChat         = "CHAT"            // оператор нужен в чате
	NotificationTypeAccountError = "ACCOUNT_ERROR"   // ошибка API аккаунта
	NotificationTypeEngine       = "ENGINE"          // запуск/остановка движка
)

// Уровни важности
const (
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)
