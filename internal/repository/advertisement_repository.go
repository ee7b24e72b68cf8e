package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"p2pdesk/internal/models"
)

// Ошибки репозитория объявлений
var (
	ErrAdvertisementNotFound = errors.New("advertisement not found")
)

// AdvertisementRepository - работа с таблицей advertisements
type AdvertisementRepository struct {
	db *sql.DB
}

// NewAdvertisementRepository создает новый экземпляр репозитория
func NewAdvertisementRepository(db *sql.DB) *AdvertisementRepository {
	return &AdvertisementRepository{db: db}
}

// Create создает запись об объявлении
func (r *AdvertisementRepository) Create(ctx context.Context, ad *models.Advertisement) error {
	query := `
		INSERT INTO advertisements (external_id, account_id, payout_id, side, asset, fiat, price_mode, price, premium, quantity, min_amount, max_amount, payment_methods, remark, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id`

	ad.CreatedAt = time.Now()
	ad.UpdatedAt = ad.CreatedAt

	err := r.db.QueryRowContext(ctx, query,
		ad.ExternalID,
		ad.AccountID,
		ad.PayoutID,
		ad.Side,
		ad.Asset,
		ad.Fiat,
		ad.PriceMode,
		ad.Price,
		ad.Premium,
		ad.Quantity,
		ad.MinAmount,
		ad.MaxAmount,
		pq.Array(ad.PaymentMethods),
		ad.Remark,
		ad.Status,
		ad.CreatedAt,
		ad.UpdatedAt,
	).Scan(&ad.ID)

	return err
}

// GetByID возвращает объявление по внутреннему ID
func (r *AdvertisementRepository) GetByID(ctx context.Context, id int64) (*models.Advertisement, error) {
	query := `
		SELECT id, external_id, account_id, payout_id, side, asset, fiat, price_mode, price, premium, quantity, min_amount, max_amount, payment_methods, remark, status, created_at, updated_at
		FROM advertisements
		WHERE id = $1`

	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// GetByExternalID возвращает объявление по биржевому ID
func (r *AdvertisementRepository) GetByExternalID(ctx context.Context, externalID string) (*models.Advertisement, error) {
	query := `
		SELECT id, external_id, account_id, payout_id, side, asset, fiat, price_mode, price, premium, quantity, min_amount, max_amount, payment_methods, remark, status, created_at, updated_at
		FROM advertisements
		WHERE external_id = $1`

	return r.scanOne(r.db.QueryRowContext(ctx, query, externalID))
}

// GetLive возвращает размещенные объявления (на витрине и снятые с нее)
func (r *AdvertisementRepository) GetLive(ctx context.Context) ([]*models.Advertisement, error) {
	query := `
		SELECT id, external_id, account_id, payout_id, side, asset, fiat, price_mode, price, premium, quantity, min_amount, max_amount, payment_methods, remark, status, created_at, updated_at
		FROM advertisements
		WHERE status IN ($1, $2)
		ORDER BY created_at DESC`

	return r.queryAds(ctx, query, models.AdStatusOnline, models.AdStatusOffline)
}

// GetByAccount возвращает живые объявления аккаунта
func (r *AdvertisementRepository) GetByAccount(ctx context.Context, accountID int64) ([]*models.Advertisement, error) {
	query := `
		SELECT id, external_id, account_id, payout_id, side, asset, fiat, price_mode, price, premium, quantity, min_amount, max_amount, payment_methods, remark, status, created_at, updated_at
		FROM advertisements
		WHERE account_id = $1 AND status IN ($2, $3)
		ORDER BY created_at DESC`

	return r.queryAds(ctx, query, accountID, models.AdStatusOnline, models.AdStatusOffline)
}

// GetByPayout возвращает объявления, размещенные под выплату
func (r *AdvertisementRepository) GetByPayout(ctx context.Context, payoutID string) ([]*models.Advertisement, error) {
	query := `
		SELECT id, external_id, account_id, payout_id, side, asset, fiat, price_mode, price, premium, quantity, min_amount, max_amount, payment_methods, remark, status, created_at, updated_at
		FROM advertisements
		WHERE payout_id = $1
		ORDER BY created_at DESC`

	return r.queryAds(ctx, query, payoutID)
}

// GetByStatus возвращает объявления с определенным статусом
func (r *AdvertisementRepository) GetByStatus(ctx context.Context, status string) ([]*models.Advertisement, error) {
	query := `
		SELECT id, external_id, account_id, payout_id, side, asset, fiat, price_mode, price, premium, quantity, min_amount, max_amount, payment_methods, remark, status, created_at, updated_at
		FROM advertisements
		WHERE status = $1
		ORDER BY created_at DESC`

	return r.queryAds(ctx, query, status)
}

// UpdatePrice обновляет цену объявления после пересчета
func (r *AdvertisementRepository) UpdatePrice(ctx context.Context, id int64, price decimal.Decimal) error {
	query := `
		UPDATE advertisements
		SET price = $1, updated_at = $2
		WHERE id = $3`

	result, err := r.db.ExecContext(ctx, query, price, time.Now(), id)
	if err != nil {
		return err
	}

	return requireRowsAffected(result, ErrAdvertisementNotFound)
}

// SetStatus переводит объявление между витриной и паузой
func (r *AdvertisementRepository) SetStatus(ctx context.Context, id int64, status string) error {
	query := `
		UPDATE advertisements
		SET status = $1, updated_at = $2
		WHERE id = $3`

	result, err := r.db.ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		return err
	}

	return requireRowsAffected(result, ErrAdvertisementNotFound)
}

// MarkDeleted помечает объявление удаленным с площадки.
// Запись остается для истории, слот аккаунта освобождает вызывающий.
func (r *AdvertisementRepository) MarkDeleted(ctx context.Context, id int64) error {
	return r.SetStatus(ctx, id, models.AdStatusDeleted)
}

// CountLiveByAccount возвращает количество живых объявлений аккаунта
func (r *AdvertisementRepository) CountLiveByAccount(ctx context.Context, accountID int64) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM advertisements
		WHERE account_id = $1 AND status IN ($2, $3)`

	var count int
	err := r.db.QueryRowContext(ctx, query, accountID, models.AdStatusOnline, models.AdStatusOffline).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// scanOne читает одно объявление из строки ответа
func (r *AdvertisementRepository) scanOne(row *sql.Row) (*models.Advertisement, error) {
	ad := &models.Advertisement{}
	err := row.Scan(
		&ad.ID,
		&ad.ExternalID,
		&ad.AccountID,
		&ad.PayoutID,
		&ad.Side,
		&ad.Asset,
		&ad.Fiat,
		&ad.PriceMode,
		&ad.Price,
		&ad.Premium,
		&ad.Quantity,
		&ad.MinAmount,
		&ad.MaxAmount,
		pq.Array(&ad.PaymentMethods),
		&ad.Remark,
		&ad.Status,
		&ad.CreatedAt,
		&ad.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAdvertisementNotFound
		}
		return nil, err
	}

	return ad, nil
}

// queryAds выполняет запрос со стандартным набором колонок объявления
func (r *AdvertisementRepository) queryAds(ctx context.Context, query string, args ...interface{}) ([]*models.Advertisement, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ads []*models.Advertisement
	for rows.Next() {
		ad := &models.Advertisement{}
		err := rows.Scan(
			&ad.ID,
			&ad.ExternalID,
			&ad.AccountID,
			&ad.PayoutID,
			&ad.Side,
			&ad.Asset,
			&ad.Fiat,
			&ad.PriceMode,
			&ad.Price,
			&ad.Premium,
			&ad.Quantity,
			&ad.MinAmount,
			&ad.MaxAmount,
			pq.Array(&ad.PaymentMethods),
			&ad.Remark,
			&ad.Status,
			&ad.CreatedAt,
			&ad.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		ads = append(ads, ad)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return ads, nil
}
