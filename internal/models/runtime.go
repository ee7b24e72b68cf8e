package models

import "time"

// ============================================================================
// СНИМОК СОСТОЯНИЯ ДВИЖКА
// ============================================================================

// EngineStatus — снимок состояния оркестратора для операторского API.
// Собирается на лету, в БД не хранится.
type EngineStatus struct {
	Running          bool             `json:"running"`
	StartedAt        *time.Time       `json:"started_at,omitempty"`
	Uptime           string           `json:"uptime,omitempty"`
	Accounts         []AccountRuntime `json:"accounts"`
	OpenTransactions int              `json:"open_transactions"`
	PendingEvidence  int              `json:"pending_evidence"` // очередь повторного сопоставления
}

// AccountRuntime — состояние одного аккаунта в работающем движке.
type AccountRuntime struct {
	AccountID    int64      `json:"account_id"`
	Label        string     `json:"label"`
	Active       bool       `json:"active"`
	ActiveAds    int        `json:"active_ads"`
	MaxActiveAds int        `json:"max_active_ads"`
	ClockOffset  int64      `json:"clock_offset_ms"` // поправка локальных часов к часам биржи
	LastPollAt   *time.Time `json:"last_poll_at,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
}
