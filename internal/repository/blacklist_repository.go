package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"p2pdesk/internal/models"
)

// Ошибки репозитория черного списка
var (
	ErrBlacklistEntryNotFound = errors.New("blacklist entry not found")
	ErrBlacklistEntryExists   = errors.New("payout already blacklisted")
)

// BlacklistRepository - работа с таблицей blacklist
type BlacklistRepository struct {
	db *sql.DB
}

// NewBlacklistRepository создает новый экземпляр репозитория
func NewBlacklistRepository(db *sql.DB) *BlacklistRepository {
	return &BlacklistRepository{db: db}
}

// Create добавляет скомпрометированную выплату в черный список.
// Выплата попадает в список один раз: повтор возвращает
// ErrBlacklistEntryExists.
func (r *BlacklistRepository) Create(ctx context.Context, entry *models.BlacklistedTransaction) error {
	query := `
		INSERT INTO blacklist (payout_id, wallet, amount, currency, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	entry.CreatedAt = time.Now()

	err := r.db.QueryRowContext(ctx, query,
		entry.PayoutID,
		entry.Wallet,
		entry.Amount,
		entry.Currency,
		entry.Reason,
		entry.CreatedAt,
	).Scan(&entry.ID)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrBlacklistEntryExists
		}
		return err
	}

	return nil
}

// GetAll возвращает весь черный список
func (r *BlacklistRepository) GetAll(ctx context.Context) ([]*models.BlacklistedTransaction, error) {
	query := `
		SELECT id, payout_id, wallet, amount, currency, reason, created_at
		FROM blacklist
		ORDER BY created_at DESC`

	return r.queryEntries(ctx, query)
}

// GetRecent возвращает последние N записей
func (r *BlacklistRepository) GetRecent(ctx context.Context, limit int) ([]*models.BlacklistedTransaction, error) {
	query := `
		SELECT id, payout_id, wallet, amount, currency, reason, created_at
		FROM blacklist
		ORDER BY created_at DESC
		LIMIT $1`

	return r.queryEntries(ctx, query, limit)
}

// GetByID возвращает запись по ID
func (r *BlacklistRepository) GetByID(ctx context.Context, id int64) (*models.BlacklistedTransaction, error) {
	query := `
		SELECT id, payout_id, wallet, amount, currency, reason, created_at
		FROM blacklist
		WHERE id = $1`

	entry := &models.BlacklistedTransaction{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&entry.ID,
		&entry.PayoutID,
		&entry.Wallet,
		&entry.Amount,
		&entry.Currency,
		&entry.Reason,
		&entry.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBlacklistEntryNotFound
		}
		return nil, err
	}

	return entry, nil
}

// ExistsPayout проверяет, занесена ли выплата в черный список
func (r *BlacklistRepository) ExistsPayout(ctx context.Context, payoutID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM blacklist WHERE payout_id = $1)`

	var exists bool
	err := r.db.QueryRowContext(ctx, query, payoutID).Scan(&exists)
	if err != nil {
		return false, err
	}

	return exists, nil
}

// ExistsWallet проверяет, фигурирует ли кошелек в черном списке
func (r *BlacklistRepository) ExistsWallet(ctx context.Context, wallet string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM blacklist WHERE wallet = $1)`

	var exists bool
	err := r.db.QueryRowContext(ctx, query, wallet).Scan(&exists)
	if err != nil {
		return false, err
	}

	return exists, nil
}

// Delete удаляет запись по ID
func (r *BlacklistRepository) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM blacklist WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}

	return requireRowsAffected(result, ErrBlacklistEntryNotFound)
}

// Count возвращает количество записей в черном списке
func (r *BlacklistRepository) Count(ctx context.Context) (int, error) {
	query := `SELECT COUNT(*) FROM blacklist`

	var count int
	err := r.db.QueryRowContext(ctx, query).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// queryEntries выполняет запрос со стандартным набором колонок записи
func (r *BlacklistRepository) queryEntries(ctx context.Context, query string, args ...interface{}) ([]*models.BlacklistedTransaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.BlacklistedTransaction
	for rows.Next() {
		entry := &models.BlacklistedTransaction{}
		err := rows.Scan(
			&entry.ID,
			&entry.PayoutID,
			&entry.Wallet,
			&entry.Amount,
			&entry.Currency,
			&entry.Reason,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}
