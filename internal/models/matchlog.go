package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// ЖУРНАЛ СОПОСТАВЛЕНИЯ
// ============================================================================

// Результаты прохода сопоставителя по одному свидетельству
const (
	MatchActionMatched     = "matched"     // ровно один кандидат, сделка закрыта
	MatchActionUnmatched   = "unmatched"   // кандидатов нет, свидетельство отброшено
	MatchActionAmbiguous   = "ambiguous"   // кандидатов больше одного, нужен оператор
	MatchActionBlacklisted = "blacklisted" // реквизиты кандидатов продублированы
	MatchActionRequeued    = "requeued"    // кандидатов нет, свидетельство вернулось в очередь
)

// MatchLogEntry представляет запись аудита: один проход сопоставителя по
// одному платёжному свидетельству. Пишется при любом исходе.
type MatchLogEntry struct {
	ID             int64           `json:"id" db:"id"`
	EvidenceID     string          `json:"evidence_id" db:"evidence_id"`
	Action         string          `json:"action" db:"action"`
	Amount         decimal.Decimal `json:"amount" db:"amount"`
	Currency       string          `json:"currency" db:"currency"`
	WalletHint     string          `json:"wallet_hint" db:"wallet_hint"`
	BankHint       string          `json:"bank_hint" db:"bank_hint"`
	Source         string          `json:"source" db:"source"`
	CandidateCount int             `json:"candidate_count" db:"candidate_count"`
	PayoutID       *string         `json:"payout_id,omitempty" db:"payout_id"`             // заполнен при action=matched
	TransactionID  *int64          `json:"transaction_id,omitempty" db:"transaction_id"`   // заполнен при action=matched
	Attempt        int             `json:"attempt" db:"attempt"`                           // номер прохода, растёт при requeue
	ProcessingMs   int64           `json:"processing_ms" db:"processing_ms"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// MatchStats агрегирует журнал сопоставления за период.
type MatchStats struct {
	TotalEvidence int64           `json:"total_evidence"`
	Matched       int64           `json:"matched"`
	Unmatched     int64           `json:"unmatched"`
	Ambiguous     int64           `json:"ambiguous"`
	Blacklisted   int64           `json:"blacklisted"`
	Requeued      int64           `json:"requeued"`
	MatchedAmount decimal.Decimal `json:"matched_amount"` // сумма закрытых выплат
	AvgProcessMs  float64         `json:"avg_process_ms"`
}

// MatchRate возвращает долю свидетельств, закончившихся сделкой (0..1).
func (s *MatchStats) MatchRate() float64 {
	if s.TotalEvidence == 0 {
		return 0
	}
	return float64(s.Matched) / float64(s.TotalEvidence)
}
