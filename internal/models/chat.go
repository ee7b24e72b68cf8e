package models

import "time"

// ============================================================================
// ЧАТ СДЕЛКИ И ШАБЛОНЫ АВТООТВЕТОВ
// ============================================================================

// Отправители сообщения
const (
	ChatSenderUs           = "us"           // бот или оператор с нашей стороны
	ChatSenderCounterparty = "counterparty" // контрагент по сделке
)

// Типы сообщения
const (
	ChatMessageTypeText   = "text"
	ChatMessageTypeSystem = "system" // служебные уведомления биржи в чате
)

// ChatMessage представляет сообщение чата сделки. ExternalID — ID сообщения
// на бирже, по нему отсекаются повторы при опросе. Processed выставляется
// только после того, как автоответ (если он был) сохранён и отправлен.
type ChatMessage struct {
	ID            int64     `json:"id" db:"id"`
	TransactionID int64     `json:"transaction_id" db:"transaction_id"`
	ExternalID    string    `json:"external_id" db:"external_id"`
	Sender        string    `json:"sender" db:"sender"`
	Type          string    `json:"type" db:"type"`
	Content       string    `json:"content" db:"content"`
	IsAutoReply   bool      `json:"is_auto_reply" db:"is_auto_reply"` // сообщение отправлено автоматикой, а не оператором
	Processed     bool      `json:"processed" db:"processed"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// ResponseGroup объединяет шаблоны автоответов; выключение группы
// выключает все её шаблоны разом.
type ResponseGroup struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

/// ChatTemplate представляет правило автоответа: если входящее сообщение
// содержит одно из ключевых слов (без учёта регистра), бот отвечает Reply.
// При совпадении нескольких шаблонов побеждает больший Priority;
// при равенстве — меньший ID.
type ChatTemplate struct {
	ID         int64     `json:"id" db:"id"`
	GroupID    int64     `json:"group_id" db:"group_id"`
	Keywords   string    `json:"keywords" db:"keywords"` // через запятую: "paid,оплатил,перевел"
	Reply      string    `json:"reply" db:"reply"`
	Priority   int       `json:"priority" db:"priority"`
	NextStatus *string   `json:"next_status,omitempty" db:"next_status"` // перевести сделку в статус после ответа
	Active     bool      `json:"active" db:"active"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
