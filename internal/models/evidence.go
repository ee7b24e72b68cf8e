package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// ПЛАТЁЖНОЕ СВИДЕТЕЛЬСТВО
// ============================================================================

// Источники свидетельства
const (
	EvidenceSourceSMS     = "sms"
	EvidenceSourcePush    = "push"
	EvidenceSourceEmail   = "email"
	EvidenceSourceReceipt = "receipt" // чек, загруженный оператором
)

// PaymentEvidence представляет банковское уведомление о входящем переводе,
// принятое на сопоставление с открытыми выплатами. ID — UUID, назначается
// при приёме свидетельства.
type PaymentEvidence struct {
	ID         string          `json:"id" db:"id"`
	Amount     decimal.Decimal `json:"amount" db:"amount"`
	Currency   string          `json:"currency" db:"currency"`
	WalletHint string          `json:"wallet_hint" db:"wallet_hint"` // последние цифры кошелька из уведомления ("1234")
	BankHint   string          `json:"bank_hint" db:"bank_hint"`     // банк из уведомления, если кошелёк не распознан
	Source     string          `json:"source" db:"source"`
	Raw        string          `json:"raw,omitempty" db:"raw"` // исходный текст уведомления
	ArrivedAt  time.Time       `json:"arrived_at" db:"arrived_at"`
	ReceivedAt time.Time       `json:"received_at" db:"received_at"` // момент приёма в систему
}
