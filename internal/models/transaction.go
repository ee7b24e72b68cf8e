package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// СДЕЛКА (P2P-ОРДЕР)
// ============================================================================

// Статусы сделки. Жизненный цикл монотонный: pending -> waiting_payment ->
// payment_received -> completed; cancelled и failed достижимы из любого
// нетерминального статуса. Из терминального статуса выхода нет.
const (
	TxStatusPending         = "pending"          // ордер создан контрагентом
	TxStatusWaitingPayment  = "waiting_payment"  // ждём фиатный перевод
	TxStatusPaymentReceived = "payment_received" // платёж подтверждён, актив ещё не отпущен
	TxStatusCompleted       = "completed"        // актив отпущен, сделка закрыта
	TxStatusCancelled       = "cancelled"        // отменена контрагентом или биржей
	TxStatusFailed          = "failed"           // апелляция или ошибка площадки
)

// Transaction представляет сделку по нашему объявлению. OrderID — ID
// P2P-ордера на бирже, ключ идемпотентности трекера: неизменяем после
// первой записи.
type Transaction struct {
	ID                   int64           `json:"id" db:"id"`
	OrderID              string          `json:"order_id" db:"order_id"`
	AdvertisementID      int64           `json:"advertisement_id" db:"advertisement_id"`
	AccountID            int64           `json:"account_id" db:"account_id"`
	PayoutID             *string         `json:"payout_id,omitempty" db:"payout_id"` // выплата, закрытая этой сделкой
	Status               string          `json:"status" db:"status"`
	Side                 string          `json:"side" db:"side"`
	Asset                string          `json:"asset" db:"asset"`
	Fiat                 string          `json:"fiat" db:"fiat"`
	FiatAmount           decimal.Decimal `json:"fiat_amount" db:"fiat_amount"`
	AssetAmount          decimal.Decimal `json:"asset_amount" db:"asset_amount"`
	Price                decimal.Decimal `json:"price" db:"price"`
	CounterpartyID       string          `json:"counterparty_id" db:"counterparty_id"`
	CounterpartyNickname string          `json:"counterparty_nickname" db:"counterparty_nickname"`
	ChatSuspended        bool            `json:"chat_suspended" db:"chat_suspended"` // оператор вмешался, автоответы выключены
	CreatedAt            time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at" db:"updated_at"`
	CompletedAt          *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
}

// IsTerminalTxStatus сообщает, является ли статус терминальным.
func IsTerminalTxStatus(status string) bool {
	switch status {
	case TxStatusCompleted, TxStatusCancelled, TxStatusFailed:
		return true
	}
	return false
}

// IsTerminal сообщает, закрыта ли сделка.
func (t *Transaction) IsTerminal() bool {
	return IsTerminalTxStatus(t.Status)
}
