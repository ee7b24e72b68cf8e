package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// ВЫПЛАТА
// ============================================================================

// Статусы выплаты
const (
	PayoutStatusOpen        = "open"        // ждёт объявление и платёж
	PayoutStatusLinked      = "linked"      // привязана к сделке, ждёт подтверждение платежа
	PayoutStatusSettled     = "settled"     // платёж подтверждён, сделка закрыта
	PayoutStatusBlacklisted = "blacklisted" // заблокирована из-за дубля реквизитов
)

// Payout представляет ожидаемый входящий фиатный платёж: сумму и реквизиты
// (кошелёк, банк), по которым сопоставитель узнаёт перевод контрагента.
// ID — UUID, назначается при создании.
type Payout struct {
	ID            string          `json:"id" db:"id"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	Currency      string          `json:"currency" db:"currency"`
	Wallet        string          `json:"wallet" db:"wallet"` // номер карты или счёта, на который ждём перевод
	Bank          string          `json:"bank" db:"bank"`
	Status        string          `json:"status" db:"status"`
	TransactionID *int64          `json:"transaction_id,omitempty" db:"transaction_id"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
	SettledAt     *time.Time      `json:"settled_at,omitempty" db:"settled_at"`
}

// Fingerprint возвращает ключ дедупликации реквизитов: одинаковая пара
// сумма+кошелёк в двух живых выплатах означает дубль.
func (p *Payout) Fingerprint() string {
	return fmt.Sprintf("%s|%s|%s", p.Amount.String(), p.Currency, p.Wallet)
}

// IsOpen сообщает, участвует ли выплата в сопоставлении платежей.
func (p *Payout) IsOpen() bool {
	return p.Status == PayoutStatusOpen || p.Status == PayoutStatusLinked
}
