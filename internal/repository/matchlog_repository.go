package repository

import (
	"context"
	"database/sql"
	"time"

	"p2pdesk/internal/models"
)

// MatchLogRepository - работа с таблицей match_log.
// Журнал append-only: каждый проход сопоставления оставляет запись,
// независимо от исхода.
type MatchLogRepository struct {
	db *sql.DB
}

// NewMatchLogRepository создает новый экземпляр репозитория
func NewMatchLogRepository(db *sql.DB) *MatchLogRepository {
	return &MatchLogRepository{db: db}
}

// Create добавляет запись журнала
func (r *MatchLogRepository) Create(ctx context.Context, e *models.MatchLogEntry) error {
	query := `
		INSERT INTO match_log (evidence_id, action, amount, currency, wallet_hint, bank_hint, source, candidate_count, payout_id, transaction_id, attempt, processing_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`

	e.CreatedAt = time.Now()

	return r.db.QueryRowContext(ctx, query,
		e.EvidenceID,
		e.Action,
		e.Amount,
		e.Currency,
		e.WalletHint,
		e.BankHint,
		e.Source,
		e.CandidateCount,
		e.PayoutID,
		e.TransactionID,
		e.Attempt,
		e.ProcessingMs,
		e.CreatedAt,
	).Scan(&e.ID)
}

// GetRecent возвращает последние N записей журнала
func (r *MatchLogRepository) GetRecent(ctx context.Context, limit int) ([]*models.MatchLogEntry, error) {
	query := `
		SELECT id, evidence_id, action, amount, currency, wallet_hint, bank_hint, source, candidate_count, payout_id, transaction_id, attempt, processing_ms, created_at
		FROM match_log
		ORDER BY created_at DESC
		LIMIT $1`

	return r.queryEntries(ctx, query, limit)
}

// GetByEvidence возвращает все проходы по одному доказательству
// (с учетом повторных попыток из очереди)
func (r *MatchLogRepository) GetByEvidence(ctx context.Context, evidenceID string) ([]*models.MatchLogEntry, error) {
	query := `
		SELECT id, evidence_id, action, amount, currency, wallet_hint, bank_hint, source, candidate_count, payout_id, transaction_id, attempt, processing_ms, created_at
		FROM match_log
		WHERE evidence_id = $1
		ORDER BY created_at`

	return r.queryEntries(ctx, query, evidenceID)
}

// GetByAction возвращает записи с определенным исходом
func (r *MatchLogRepository) GetByAction(ctx context.Context, action string, limit int) ([]*models.MatchLogEntry, error) {
	query := `
		SELECT id, evidence_id, action, amount, currency, wallet_hint, bank_hint, source, candidate_count, payout_id, transaction_id, attempt, processing_ms, created_at
		FROM match_log
		WHERE action = $1
		ORDER BY created_at DESC
		LIMIT $2`

	return r.queryEntries(ctx, query, action, limit)
}

// Stats возвращает сводку сопоставления за период
func (r *MatchLogRepository) Stats(ctx context.Context, since time.Time) (*models.MatchStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE action = $1),
			COUNT(*) FILTER (WHERE action = $2),
			COUNT(*) FILTER (WHERE action = $3),
			COUNT(*) FILTER (WHERE action = $4),
			COUNT(*) FILTER (WHERE action = $5),
			COALESCE(SUM(amount) FILTER (WHERE action = $1), 0),
			COALESCE(AVG(processing_ms), 0)
		FROM match_log
		WHERE created_at >= $6`

	stats := &models.MatchStats{}
	err := r.db.QueryRowContext(ctx, query,
		models.MatchActionMatched,
		models.MatchActionUnmatched,
		models.MatchActionAmbiguous,
		models.MatchActionBlacklisted,
		models.MatchActionRequeued,
		since,
	).Scan(
		&stats.TotalEvidence,
		&stats.Matched,
		&stats.Unmatched,
		&stats.Ambiguous,
		&stats.Blacklisted,
		&stats.Requeued,
		&stats.MatchedAmount,
		&stats.AvgProcessMs,
	)

	if err != nil {
		return nil, err
	}

	return stats, nil
}

// DeleteOlderThan удаляет записи журнала старше указанной даты
func (r *MatchLogRepository) DeleteOlderThan(ctx context.Context, timestamp time.Time) (int64, error) {
	query := `DELETE FROM match_log WHERE created_at < $1`

	result, err := r.db.ExecContext(ctx, query, timestamp)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// queryEntries выполняет запрос со стандартным набором колонок записи
func (r *MatchLogRepository) queryEntries(ctx context.Context, query string, args ...interface{}) ([]*models.MatchLogEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.MatchLogEntry
	for rows.Next() {
		e := &models.MatchLogEntry{}
		err := rows.Scan(
			&e.ID,
			&e.EvidenceID,
			&e.Action,
			&e.Amount,
			&e.Currency,
			&e.WalletHint,
			&e.BankHint,
			&e.Source,
			&e.CandidateCount,
			&e.PayoutID,
			&e.TransactionID,
			&e.Attempt,
			&e.ProcessingMs,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}
