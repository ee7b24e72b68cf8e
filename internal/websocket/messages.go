package websocket

import (
	"time"

	"github.com/shopspring/decimal"

	"p2pdesk/internal/models"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений
const (
	// MessageTypeTxCreated - на бирже появилась новая сделка по нашему объявлению
	MessageTypeTxCreated MessageType = "transaction.created"

	// MessageTypeTxStatus - сделка сменила статус
	// Отправляется на каждый переход, включая терминальные
	MessageTypeTxStatus MessageType = "transaction.statusChanged"

	// MessageTypeAdCreated - объявление размещено на бирже
	MessageTypeAdCreated MessageType = "advertisement.created"

	// MessageTypeAdToggled - объявление включено или выключено
	MessageTypeAdToggled MessageType = "advertisement.toggled"

	// MessageTypeAdDeleted - объявление снято с биржи
	MessageTypeAdDeleted MessageType = "advertisement.deleted"

	// MessageTypeChatMessage - новое сообщение чата сделки
	// Отправляется и для входящих, и для наших автоответов
	MessageTypeChatMessage MessageType = "chat.message"

	// MessageTypeEvidenceMatched - свидетельство платежа сопоставлено с выплатой
	MessageTypeEvidenceMatched MessageType = "evidence.matched"

	// MessageTypeNotification - новое уведомление операторской ленты
	MessageTypeNotification MessageType = "notification"
)

// BaseMessage - базовая структура для всех WebSocket сообщений
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// TransactionMessage - сообщение о новой сделке
type TransactionMessage struct {
	BaseMessage
	Data *models.Transaction `json:"data"`
}

// TransactionStatusMessage - сообщение о смене статуса сделки.
// Previous позволяет UI анимировать переход, не храня старое состояние.
type TransactionStatusMessage struct {
	BaseMessage
	Previous string              `json:"previous"`
	Data     *models.Transaction `json:"data"`
}

// AdvertisementMessage - сообщение о событии объявления.
// Тип события различается полем type (created / toggled / deleted).
type AdvertisementMessage struct {
	BaseMessage
	Data *models.Advertisement `json:"data"`
}

// ChatMessageEvent - сообщение о новой реплике в чате сделки
type ChatMessageEvent struct {
	BaseMessage
	Data *models.ChatMessage `json:"data"`
}

// EvidenceMatchedMessage - сообщение об успешном сопоставлении платежа
type EvidenceMatchedMessage struct {
	BaseMessage
	Data *EvidenceMatchedData `json:"data"`
}

// EvidenceMatchedData - данные сопоставления
type EvidenceMatchedData struct {
	// ID свидетельства
	EvidenceID string `json:"evidence_id"`

	// Сумма и валюта платежа
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`

	// Откуда пришло свидетельство (sms, push, email, receipt)
	Source string `json:"source"`

	// Выплата, закрытая этим платежом
	PayoutID string `json:"payout_id"`

	// Сделка, в рамках которой ожидался платёж (0 если сопоставление
	// прошло напрямую по выплате)
	TransactionID int64 `json:"transaction_id,omitempty"`
}

// NotificationMessage - сообщение операторской ленты
type NotificationMessage struct {
	BaseMessage
	Data *models.Notification `json:"data"`
}

// ============ Фабричные функции для создания сообщений ============

// NewTransactionMessage создает сообщение о новой сделке
func NewTransactionMessage(tx *models.Transaction) *TransactionMessage {
	return &TransactionMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeTxCreated,
			Timestamp: time.Now(),
		},
		Data: tx,
	}
}

// NewTransactionStatusMessage создает сообщение о смене статуса
func NewTransactionStatusMessage(tx *models.Transaction, previous string) *TransactionStatusMessage {
	return &TransactionStatusMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeTxStatus,
			Timestamp: time.Now(),
		},
		Previous: previous,
		Data:     tx,
	}
}

// NewAdvertisementMessage создает сообщение о событии объявления
func NewAdvertisementMessage(msgType MessageType, ad *models.Advertisement) *AdvertisementMessage {
	return &AdvertisementMessage{
		BaseMessage: BaseMessage{
			Type:      msgType,
			Timestamp: time.Now(),
		},
		Data: ad,
	}
}

// NewChatMessageEvent создает сообщение о реплике чата
func NewChatMessageEvent(msg *models.ChatMessage) *ChatMessageEvent {
	return &ChatMessageEvent{
		BaseMessage: BaseMessage{
			Type:      MessageTypeChatMessage,
			Timestamp: time.Now(),
		},
		Data: msg,
	}
}

// NewEvidenceMatchedMessage создает сообщение о сопоставлении платежа
func NewEvidenceMatchedMessage(evidence *models.PaymentEvidence, payoutID string, transactionID int64) *EvidenceMatchedMessage {
	return &EvidenceMatchedMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeEvidenceMatched,
			Timestamp: time.Now(),
		},
		Data: &EvidenceMatchedData{
			EvidenceID:    evidence.ID,
			Amount:        evidence.Amount,
			Currency:      evidence.Currency,
			Source:        evidence.Source,
			PayoutID:      payoutID,
			TransactionID: transactionID,
		},
	}
}

// NewNotificationMessage создает сообщение уведомления
func NewNotificationMessage(notif *models.Notification) *NotificationMessage {
	return &NotificationMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeNotification,
			Timestamp: time.Now(),
		},
		Data: notif,
	}
}
