package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"p2pdesk/internal/models"
)

// Ошибки репозитория сделок
var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrDuplicateOrder      = errors.New("transaction with this order_id already exists")
)

// TransactionRepository - работа с таблицей transactions
type TransactionRepository struct {
	db *sql.DB
}

// NewTransactionRepository создает новый экземпляр репозитория
func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create создает запись о сделке. order_id уникален: повторная вставка
// того же ордера возвращает ErrDuplicateOrder, чем обеспечивается
// идемпотентность опроса площадки.
func (r *TransactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	query := `
		INSERT INTO transactions (order_id, advertisement_id, account_id, payout_id, status, side, asset, fiat, fiat_amount, asset_amount, price, counterparty_id, counterparty_nickname, chat_suspended, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id`

	tx.CreatedAt = time.Now()
	tx.UpdatedAt = tx.CreatedAt

	err := r.db.QueryRowContext(ctx, query,
		tx.OrderID,
		tx.AdvertisementID,
		tx.AccountID,
		tx.PayoutID,
		tx.Status,
		tx.Side,
		tx.Asset,
		tx.Fiat,
		tx.FiatAmount,
		tx.AssetAmount,
		tx.Price,
		tx.CounterpartyID,
		tx.CounterpartyNickname,
		tx.ChatSuspended,
		tx.CreatedAt,
		tx.UpdatedAt,
	).Scan(&tx.ID)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateOrder
		}
		return err
	}

	return nil
}

// GetByID возвращает сделку по внутреннему ID
func (r *TransactionRepository) GetByID(ctx context.Context, id int64) (*models.Transaction, error) {
	query := `
		SELECT id, order_id, advertisement_id, account_id, payout_id, status, side, asset, fiat, fiat_amount, asset_amount, price, counterparty_id, counterparty_nickname, chat_suspended, created_at, updated_at, completed_at
		FROM transactions
		WHERE id = $1`

	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// GetByOrderID возвращает сделку по биржевому ID ордера
func (r *TransactionRepository) GetByOrderID(ctx context.Context, orderID string) (*models.Transaction, error) {
	query := `
		SELECT id, order_id, advertisement_id, account_id, payout_id, status, side, asset, fiat, fiat_amount, asset_amount, price, counterparty_id, counterparty_nickname, chat_suspended, created_at, updated_at, completed_at
		FROM transactions
		WHERE order_id = $1`

	return r.scanOne(r.db.QueryRowContext(ctx, query, orderID))
}

// GetOpen возвращает незавершенные сделки в порядке создания
func (r *TransactionRepository) GetOpen(ctx context.Context) ([]*models.Transaction, error) {
	query := `
		SELECT id, order_id, advertisement_id, account_id, payout_id, status, side, asset, fiat, fiat_amount, asset_amount, price, counterparty_id, counterparty_nickname, chat_suspended, created_at, updated_at, completed_at
		FROM transactions
		WHERE status NOT IN ($1, $2, $3)
		ORDER BY created_at`

	return r.queryTransactions(ctx, query,
		models.TxStatusCompleted, models.TxStatusCancelled, models.TxStatusFailed)
}

// GetOpenByAccount возвращает незавершенные сделки аккаунта
func (r *TransactionRepository) GetOpenByAccount(ctx context.Context, accountID int64) ([]*models.Transaction, error) {
	query := `
		SELECT id, order_id, advertisement_id, account_id, payout_id, status, side, asset, fiat, fiat_amount, asset_amount, price, counterparty_id, counterparty_nickname, chat_suspended, created_at, updated_at, completed_at
		FROM transactions
		WHERE account_id = $1 AND status NOT IN ($2, $3, $4)
		ORDER BY created_at`

	return r.queryTransactions(ctx, query, accountID,
		models.TxStatusCompleted, models.TxStatusCancelled, models.TxStatusFailed)
}

// GetByStatus возвращает сделки с определенным статусом
func (r *TransactionRepository) GetByStatus(ctx context.Context, status string) ([]*models.Transaction, error) {
	query := `
		SELECT id, order_id, advertisement_id, account_id, payout_id, status, side, asset, fiat, fiat_amount, asset_amount, price, counterparty_id, counterparty_nickname, chat_suspended, created_at, updated_at, completed_at
		FROM transactions
		WHERE status = $1
		ORDER BY created_at DESC`

	return r.queryTransactions(ctx, query, status)
}

// GetRecent возвращает последние N сделок
func (r *TransactionRepository) GetRecent(ctx context.Context, limit int) ([]*models.Transaction, error) {
	query := `
		SELECT id, order_id, advertisement_id, account_id, payout_id, status, side, asset, fiat, fiat_amount, asset_amount, price, counterparty_id, counterparty_nickname, chat_suspended, created_at, updated_at, completed_at
		FROM transactions
		ORDER BY created_at DESC
		LIMIT $1`

	return r.queryTransactions(ctx, query, limit)
}

// UpdateStatus обновляет статус сделки. completed_at выставляется
// один раз при переходе в терминальный статус и дальше не трогается.
func (r *TransactionRepository) UpdateStatus(ctx context.Context, id int64, status string, completedAt *time.Time) error {
	query := `
		UPDATE transactions
		SET status = $1, updated_at = $2, completed_at = COALESCE($3, completed_at)
		WHERE id = $4`

	result, err := r.db.ExecContext(ctx, query, status, time.Now(), completedAt, id)
	if err != nil {
		return err
	}

	return requireRowsAffected(result, ErrTransactionNotFound)
}

// SetPayout привязывает выплату к сделке
func (r *TransactionRepository) SetPayout(ctx context.Context, id int64, payoutID string) error {
	query := `
		UPDATE transactions
		SET payout_id = $1, updated_at = $2
		WHERE id = $3`

	result, err := r.db.ExecContext(ctx, query, payoutID, time.Now(), id)
	if err != nil {
		return err
	}

	return requireRowsAffected(result, ErrTransactionNotFound)
}

// SetChatSuspended включает или выключает автоответчик для сделки
func (r *TransactionRepository) SetChatSuspended(ctx context.Context, id int64, suspended bool) error {
	query := `
		UPDATE transactions
		SET chat_suspended = $1, updated_at = $2
		WHERE id = $3`

	result, err := r.db.ExecContext(ctx, query, suspended, time.Now(), id)
	if err != nil {
		return err
	}

	return requireRowsAffected(result, ErrTransactionNotFound)
}

// CountOpen возвращает количество незавершенных сделок
func (r *TransactionRepository) CountOpen(ctx context.Context) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM transactions
		WHERE status NOT IN ($1, $2, $3)`

	var count int
	err := r.db.QueryRowContext(ctx, query,
		models.TxStatusCompleted, models.TxStatusCancelled, models.TxStatusFailed).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// CountByStatus возвращает количество сделок с определенным статусом
func (r *TransactionRepository) CountByStatus(ctx context.Context, status string) (int, error) {
	query := `SELECT COUNT(*) FROM transactions WHERE status = $1`

	var count int
	err := r.db.QueryRowContext(ctx, query, status).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// DeleteOlderThan удаляет завершенные сделки старше указанной даты
func (r *TransactionRepository) DeleteOlderThan(ctx context.Context, timestamp time.Time) (int64, error) {
	query := `
		DELETE FROM transactions
		WHERE created_at < $1 AND status IN ($2, $3, $4)`

	result, err := r.db.ExecContext(ctx, query, timestamp,
		models.TxStatusCompleted, models.TxStatusCancelled, models.TxStatusFailed)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// scanOne читает одну сделку из строки ответа
func (r *TransactionRepository) scanOne(row *sql.Row) (*models.Transaction, error) {
	tx := &models.Transaction{}
	err := row.Scan(
		&tx.ID,
		&tx.OrderID,
		&tx.AdvertisementID,
		&tx.AccountID,
		&tx.PayoutID,
		&tx.Status,
		&tx.Side,
		&tx.Asset,
		&tx.Fiat,
		&tx.FiatAmount,
		&tx.AssetAmount,
		&tx.Price,
		&tx.CounterpartyID,
		&tx.CounterpartyNickname,
		&tx.ChatSuspended,
		&tx.CreatedAt,
		&tx.UpdatedAt,
		&tx.CompletedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}

	return tx, nil
}

// queryTransactions выполняет запрос со стандартным набором колонок сделки
func (r *TransactionRepository) queryTransactions(ctx context.Context, query string, args ...interface{}) ([]*models.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*models.Transaction
	for rows.Next() {
		tx := &models.Transaction{}
		err := rows.Scan(
			&tx.ID,
			&tx.OrderID,
			&tx.AdvertisementID,
			&tx.AccountID,
			&tx.PayoutID,
			&tx.Status,
			&tx.Side,
			&tx.Asset,
			&tx.Fiat,
			&tx.FiatAmount,
			&tx.AssetAmount,
			&tx.Price,
			&tx.CounterpartyID,
			&tx.CounterpartyNickname,
			&tx.ChatSuspended,
			&tx.CreatedAt,
			&tx.UpdatedAt,
			&tx.CompletedAt,
		)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return transactions, nil
}
