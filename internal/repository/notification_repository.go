package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"

	"p2pdesk/internal/models"
)

// NotificationRepository - работа с таблицей notifications
type NotificationRepository struct {
	db *sql.DB
}

// NewNotificationRepository создает новый экземпляр репозитория
func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create создает уведомление. Meta сериализуется в JSONB.
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	var metaJSON []byte
	if n.Meta != nil {
		var err error
		metaJSON, err = json.Marshal(n.Meta)
		if err != nil {
			return err
		}
	}

	query := `
		INSERT INTO notifications (timestamp, type, severity, transaction_id, message, meta)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	return r.db.QueryRowContext(ctx, query,
		n.Timestamp,
		n.Type,
		n.Severity,
		n.TransactionID,
		n.Message,
		metaJSON,
	).Scan(&n.ID)
}

// GetRecent возвращает последние N уведомлений
func (r *NotificationRepository) GetRecent(ctx context.Context, limit int) ([]*models.Notification, error) {
	query := `
		SELECT id, timestamp, type, severity, transaction_id, message, meta
		FROM notifications
		ORDER BY timestamp DESC
		LIMIT $1`

	return r.queryNotifications(ctx, query, limit)
}

// GetByTypes возвращает уведомления определенных типов
func (r *NotificationRepository) GetByTypes(ctx context.Context, types []string, limit int) ([]*models.Notification, error) {
	query := `
		SELECT id, timestamp, type, severity, transaction_id, message, meta
		FROM notifications
		WHERE type = ANY($1)
		ORDER BY timestamp DESC
		LIMIT $2`

	return r.queryNotifications(ctx, query, pq.Array(types), limit)
}

// GetByTransaction возвращает уведомления сделки
func (r *NotificationRepository) GetByTransaction(ctx context.Context, transactionID int64) ([]*models.Notification, error) {
	query := `
		SELECT id, timestamp, type, severity, transaction_id, message, meta
		FROM notifications
		WHERE transaction_id = $1
		ORDER BY timestamp DESC`

	return r.queryNotifications(ctx, query, transactionID)
}

// DeleteAll очищает журнал уведомлений
func (r *NotificationRepository) DeleteAll(ctx context.Context) error {
	query := `DELETE FROM notifications`

	_, err := r.db.ExecContext(ctx, query)
	return err
}

// DeleteOlderThan удаляет уведомления старше указанной даты
func (r *NotificationRepository) DeleteOlderThan(ctx context.Context, timestamp time.Time) (int64, error) {
	query := `DELETE FROM notifications WHERE timestamp < $1`

	result, err := r.db.ExecContext(ctx, query, timestamp)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// Count возвращает количество уведомлений
func (r *NotificationRepository) Count(ctx context.Context) (int, error) {
	query := `SELECT COUNT(*) FROM notifications`

	var count int
	err := r.db.QueryRowContext(ctx, query).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// queryNotifications выполняет запрос со стандартным набором колонок уведомления
func (r *NotificationRepository) queryNotifications(ctx context.Context, query string, args ...interface{}) ([]*models.Notification, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []*models.Notification
	for rows.Next() {
		n := &models.Notification{}
		var metaJSON []byte
		err := rows.Scan(
			&n.ID,
			&n.Timestamp,
			&n.Type,
			&n.Severity,
			&n.TransactionID,
			&n.Message,
			&metaJSON,
		)
		if err != nil {
			return nil, err
		}

		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &n.Meta); err != nil {
				return nil, err
			}
		}

		notifications = append(notifications, n)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return notifications, nil
}
