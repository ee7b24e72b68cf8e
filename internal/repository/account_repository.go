package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"p2pdesk/internal/models"
)

// Ошибки репозитория аккаунтов
var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account label already exists")
)

// AccountRepository - работа с таблицей exchange_accounts
type AccountRepository struct {
	db *sql.DB
}

// NewAccountRepository создает новый экземпляр репозитория
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create создает аккаунт. Ключи приходят уже зашифрованными.
func (r *AccountRepository) Create(ctx context.Context, acc *models.ExchangeAccount) error {
	query := `
		INSERT INTO exchange_accounts (label, api_key, secret_key, proxy_url, active, max_active_ads, active_ads, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	acc.CreatedAt = time.Now()
	acc.UpdatedAt = acc.CreatedAt

	err := r.db.QueryRowContext(ctx, query,
		acc.Label,
		acc.APIKey,
		acc.SecretKey,
		acc.ProxyURL,
		acc.Active,
		acc.MaxActiveAds,
		acc.ActiveAds,
		acc.LastError,
		acc.CreatedAt,
		acc.UpdatedAt,
	).Scan(&acc.ID)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrAccountExists
		}
		return err
	}

	return nil
}

// GetByID возвращает аккаунт по ID
func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*models.ExchangeAccount, error) {
	query := `
		SELECT id, label, api_key, secret_key, proxy_url, active, max_active_ads, active_ads, last_error, created_at, updated_at
		FROM exchange_accounts
		WHERE id = $1`

	acc := &models.ExchangeAccount{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&acc.ID,
		&acc.Label,
		&acc.APIKey,
		&acc.SecretKey,
		&acc.ProxyURL,
		&acc.Active,
		&acc.MaxActiveAds,
		&acc.ActiveAds,
		&acc.LastError,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	return acc, nil
}

// GetAll возвращает все аккаунты
func (r *AccountRepository) GetAll(ctx context.Context) ([]*models.ExchangeAccount, error) {
	query := `
		SELECT id, label, api_key, secret_key, proxy_url, active, max_active_ads, active_ads, last_error, created_at, updated_at
		FROM exchange_accounts
		ORDER BY id`

	return r.queryAccounts(ctx, query)
}

// GetActive возвращает аккаунты, допущенные к работе
func (r *AccountRepository) GetActive(ctx context.Context) ([]*models.ExchangeAccount, error) {
	query := `
		SELECT id, label, api_key, secret_key, proxy_url, active, max_active_ads, active_ads, last_error, created_at, updated_at
		FROM exchange_accounts
		WHERE active = TRUE
		ORDER BY id`

	return r.queryAccounts(ctx, query)
}

// Update обновляет метку, прокси и лимит объявлений
func (r *AccountRepository) Update(ctx context.Context, acc *models.ExchangeAccount) error {
	query := `
		UPDATE exchange_accounts
		SET label = $1, proxy_url = $2, max_active_ads = $3, updated_at = $4
		WHERE id = $5`

	acc.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		acc.Label,
		acc.ProxyURL,
		acc.MaxActiveAds,
		acc.UpdatedAt,
		acc.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAccountExists
		}
		return err
	}

	return requireRowsAffected(result, ErrAccountNotFound)
}

// UpdateKeys заменяет зашифрованные API ключи аккаунта
func (r *AccountRepository) UpdateKeys(ctx context.Context, id int64, apiKey, secretKey string) error {
	query := `
		UPDATE exchange_accounts
		SET api_key = $1, secret_key = $2, updated_at = $3
		WHERE id = $4`

	result, err := r.db.ExecContext(ctx, query, apiKey, secretKey, time.Now(), id)
	if err != nil {
		return err
	}

	return requireRowsAffected(result, ErrAccountNotFound)
}

// SetStatus включает или выключает аккаунт и записывает последнюю ошибку
func (r *AccountRepository) SetStatus(ctx context.Context, id int64, active bool, lastError string) error {
	query := `
		UPDATE exchange_accounts
		SET active = $1, last_error = $2, updated_at = $3
		WHERE id = $4`

	result, err := r.db.ExecContext(ctx, query, active, lastError, time.Now(), id)
	if err != nil {
		return err
	}

	return requireRowsAffected(result, ErrAccountNotFound)
}

// ReserveAdSlot атомарно занимает слот объявления.
// Условный UPDATE гарантирует, что два параллельных размещения
// не превысят max_active_ads. Возвращает false, если слотов нет.
func (r *AccountRepository) ReserveAdSlot(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE exchange_accounts
		SET active_ads = active_ads + 1, updated_at = $1
		WHERE id = $2 AND active = TRUE AND active_ads < max_active_ads`

	result, err := r.db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}

// ReleaseAdSlot возвращает слот объявления аккаунту
func (r *AccountRepository) ReleaseAdSlot(ctx context.Context, id int64) error {
	query := `
		UPDATE exchange_accounts
		SET active_ads = GREATEST(active_ads - 1, 0), updated_at = $1
		WHERE id = $2`

	result, err := r.db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return err
	}

	return requireRowsAffected(result, ErrAccountNotFound)
}

// SetActiveAds выставляет счетчик слотов в фактическое значение.
// Используется при старте движка для сверки с живыми объявлениями.
func (r *AccountRepository) SetActiveAds(ctx context.Context, id int64, count int) error {
	query := `
		UPDATE exchange_accounts
		SET active_ads = $1, updated_at = $2
		WHERE id = $3`

	result, err := r.db.ExecContext(ctx, query, count, time.Now(), id)
	if err != nil {
		return err
	}

	return requireRowsAffected(result, ErrAccountNotFound)
}

// Delete удаляет аккаунт
func (r *AccountRepository) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM exchange_accounts WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}

	return requireRowsAffected(result, ErrAccountNotFound)
}

// Count возвращает количество аккаунтов
func (r *AccountRepository) Count(ctx context.Context) (int, error) {
	query := `SELECT COUNT(*) FROM exchange_accounts`

	var count int
	err := r.db.QueryRowContext(ctx, query).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// queryAccounts выполняет запрос со стандартным набором колонок аккаунта
func (r *AccountRepository) queryAccounts(ctx context.Context, query string, args ...interface{}) ([]*models.ExchangeAccount, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.ExchangeAccount
	for rows.Next() {
		acc := &models.ExchangeAccount{}
		err := rows.Scan(
			&acc.ID,
			&acc.Label,
			&acc.APIKey,
			&acc.SecretKey,
			&acc.ProxyURL,
			&acc.Active,
			&acc.MaxActiveAds,
			&acc.ActiveAds,
			&acc.LastError,
			&acc.CreatedAt,
			&acc.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return accounts, nil
}

// isUniqueViolation проверяет, является ли ошибка нарушением UNIQUE constraint
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "duplicate key") || strings.Contains(errStr, "23505")
}

// requireRowsAffected возвращает notFound, если UPDATE/DELETE не задел ни одной строки
func requireRowsAffected(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}
