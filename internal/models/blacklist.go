package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// ЧЁРНЫЙ СПИСОК РЕКВИЗИТОВ
// ============================================================================

// BlacklistedTransaction представляет выплату, заблокированную из-за
// повторяющихся реквизитов: две живые выплаты с одинаковой парой
// сумма+кошелёк неразличимы для сопоставителя, обе снимаются с работы
// до разбора оператором.
type BlacklistedTransaction struct {
	ID        int64           `json:"id" db:"id"`
	PayoutID  string          `json:"payout_id" db:"payout_id"`
	Wallet    string          `json:"wallet" db:"wallet"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	Currency  string          `json:"currency" db:"currency"`
	Reason    string          `json:"reason" db:"reason"` // заметка сопоставителя или оператора
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}
