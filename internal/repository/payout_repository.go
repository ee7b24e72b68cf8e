package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"p2pdesk/internal/models"
)

// Ошибки репозитория выплат
var (
	ErrPayoutNotFound = errors.New("payout not found")
	ErrPayoutNotOpen  = errors.New("payout is not open")
)

// PayoutRepository - работа с таблицей payouts
type PayoutRepository struct {
	db *sql.DB
}

// NewPayoutRepository создает новый экземпляр репозитория
func NewPayoutRepository(db *sql.DB) *PayoutRepository {
	return &PayoutRepository{db: db}
}

// Create создает выплату. ID (uuid) назначает вызывающий.
func (r *PayoutRepository) Create(ctx context.Context, p *models.Payout) error {
	query := `
		INSERT INTO payouts (id, amount, currency, wallet, bank, status, transaction_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt

	_, err := r.db.ExecContext(ctx, query,
		p.ID,
		p.Amount,
		p.Currency,
		p.Wallet,
		p.Bank,
		p.Status,
		p.TransactionID,
		p.CreatedAt,
		p.UpdatedAt,
	)

	return err
}

// GetByID возвращает выплату по ID
func (r *PayoutRepository) GetByID(ctx context.Context, id string) (*models.Payout, error) {
	query := `
		SELECT id, amount, currency, wallet, bank, status, transaction_id, created_at, updated_at, settled_at
		FROM payouts
		WHERE id = $1`

	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// GetByStatus возвращает выплаты с определенным статусом
func (r *PayoutRepository) GetByStatus(ctx context.Context, status string) ([]*models.Payout, error) {
	query := `
		SELECT id, amount, currency, wallet, bank, status, transaction_id, created_at, updated_at, settled_at
		FROM payouts
		WHERE status = $1
		ORDER BY created_at`

	return r.queryPayouts(ctx, query, status)
}

// GetOpen возвращает выплаты, ожидающие денег (свободные и привязанные к сделке)
func (r *PayoutRepository) GetOpen(ctx context.Context) ([]*models.Payout, error) {
	query := `
		SELECT id, amount, currency, wallet, bank, status, transaction_id, created_at, updated_at, settled_at
		FROM payouts
		WHERE status IN ($1, $2)
		ORDER BY created_at`

	return r.queryPayouts(ctx, query, models.PayoutStatusOpen, models.PayoutStatusLinked)
}

// GetLinkedByCurrency возвращает привязанные выплаты в валюте.
// Кандидаты для сопоставления с доказательством платежа: у каждой
// такой выплаты есть активная сделка, ожидающая перевода.
func (r *PayoutRepository) GetLinkedByCurrency(ctx context.Context, currency string) ([]*models.Payout, error) {
	query := `
		SELECT id, amount, currency, wallet, bank, status, transaction_id, created_at, updated_at, settled_at
		FROM payouts
		WHERE status = $1 AND currency = $2
		ORDER BY created_at`

	return r.queryPayouts(ctx, query, models.PayoutStatusLinked, currency)
}

// GetRecent возвращает последние N выплат
func (r *PayoutRepository) GetRecent(ctx context.Context, limit int) ([]*models.Payout, error) {
	query := `
		SELECT id, amount, currency, wallet, bank, status, transaction_id, created_at, updated_at, settled_at
		FROM payouts
		ORDER BY created_at DESC
		LIMIT $1`

	return r.queryPayouts(ctx, query, limit)
}

// Link привязывает выплату к сделке. Привязать можно только свободную
// выплату: условный UPDATE исключает гонку двух сделок за одну выплату.
func (r *PayoutRepository) Link(ctx context.Context, id string, transactionID int64) error {
	query := `
		UPDATE payouts
		SET status = $1, transaction_id = $2, updated_at = $3
		WHERE id = $4 AND status = $5`

	result, err := r.db.ExecContext(ctx, query,
		models.PayoutStatusLinked, transactionID, time.Now(), id, models.PayoutStatusOpen)
	if err != nil {
		return err
	}

	return requireRowsAffected(result, ErrPayoutNotOpen)
}

// Reopen освобождает выплату после отмены сделки:
// выплата снова доступна для нового объявления
func (r *PayoutRepository) Reopen(ctx context.Context, id string) error {
	query := `
		UPDATE payouts
		SET status = $1, transaction_id = NULL, updated_at = $2
		WHERE id = $3 AND status = $4`

	result, err := r.db.ExecContext(ctx, query,
		models.PayoutStatusOpen, time.Now(), id, models.PayoutStatusLinked)
	if err != nil {
		return err
	}

	return requireRowsAffected(result, ErrPayoutNotFound)
}

// Unblacklist возвращает заблокированную выплату в работу после разбора
// конфликта оператором
func (r *PayoutRepository) Unblacklist(ctx context.Context, id string) error {
	query := `
		UPDATE payouts
		SET status = $1, transaction_id = NULL, updated_at = $2
		WHERE id = $3 AND status = $4`

	result, err := r.db.ExecContext(ctx, query,
		models.PayoutStatusOpen, time.Now(), id, models.PayoutStatusBlacklisted)
	if err != nil {
		return err
	}

	return requireRowsAffected(result, ErrPayoutNotFound)
}

// Settle закрывает выплату после подтвержденного платежа
func (r *PayoutRepository) Settle(ctx context.Context, id string, settledAt time.Time) error {
	query := `
		UPDATE payouts
		SET status = $1, settled_at = $2, updated_at = $3
		WHERE id = $4 AND status IN ($5, $6)`

	result, err := r.db.ExecContext(ctx, query,
		models.PayoutStatusSettled, settledAt, time.Now(), id,
		models.PayoutStatusOpen, models.PayoutStatusLinked)
	if err != nil {
		return err
	}

	return requireRowsAffected(result, ErrPayoutNotFound)
}

// MarkBlacklisted помечает выплату скомпрометированной.
// Дальнейшие доказательства платежа по ней не принимаются.
func (r *PayoutRepository) MarkBlacklisted(ctx context.Context, id string) error {
	query := `
		UPDATE payouts
		SET status = $1, updated_at = $2
		WHERE id = $3`

	result, err := r.db.ExecContext(ctx, query, models.PayoutStatusBlacklisted, time.Now(), id)
	if err != nil {
		return err
	}

	return requireRowsAffected(result, ErrPayoutNotFound)
}

// CountByStatus возвращает количество выплат с определенным статусом
func (r *PayoutRepository) CountByStatus(ctx context.Context, status string) (int, error) {
	query := `SELECT COUNT(*) FROM payouts WHERE status = $1`

	var count int
	err := r.db.QueryRowContext(ctx, query, status).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// Delete удаляет выплату. Разрешено только для свободных выплат.
func (r *PayoutRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM payouts WHERE id = $1 AND status = $2`

	result, err := r.db.ExecContext(ctx, query, id, models.PayoutStatusOpen)
	if err != nil {
		return err
	}

	return requireRowsAffected(result, ErrPayoutNotFound)
}

// scanOne читает одну выплату из строки ответа
func (r *PayoutRepository) scanOne(row *sql.Row) (*models.Payout, error) {
	p := &models.Payout{}
	err := row.Scan(
		&p.ID,
		&p.Amount,
		&p.Currency,
		&p.Wallet,
		&p.Bank,
		&p.Status,
		&p.TransactionID,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.SettledAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPayoutNotFound
		}
		return nil, err
	}

	return p, nil
}

// queryPayouts выполняет запрос со стандартным набором колонок выплаты
func (r *PayoutRepository) queryPayouts(ctx context.Context, query string, args ...interface{}) ([]*models.Payout, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payouts []*models.Payout
	for rows.Next() {
		p := &models.Payout{}
		err := rows.Scan(
			&p.ID,
			&p.Amount,
			&p.Currency,
			&p.Wallet,
			&p.Bank,
			&p.Status,
			&p.TransactionID,
			&p.CreatedAt,
			&p.UpdatedAt,
			&p.SettledAt,
		)
		if err != nil {
			return nil, err
		}
		payouts = append(payouts, p)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return payouts, nil
}
