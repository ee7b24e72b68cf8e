package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"p2pdesk/internal/models"
)

// Ошибки репозитория чата
var (
	ErrChatMessageNotFound = errors.New("chat message not found")
	ErrDuplicateMessage    = errors.New("chat message already stored")
)

// ChatRepository - работа с таблицей chat_messages
type ChatRepository struct {
	db *sql.DB
}

// NewChatRepository создает новый экземпляр репозитория
func NewChatRepository(db *sql.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// SaveMessage сохраняет сообщение чата. Пара (transaction_id, external_id)
// уникальна: повторная вставка того же сообщения площадки возвращает
// ErrDuplicateMessage, так опрос чата остается идемпотентным.
func (r *ChatRepository) SaveMessage(ctx context.Context, msg *models.ChatMessage) error {
	query := `
		INSERT INTO chat_messages (transaction_id, external_id, sender, type, content, is_auto_reply, processed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (transaction_id, external_id) DO NOTHING
		RETURNING id`

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	err := r.db.QueryRowContext(ctx, query,
		msg.TransactionID,
		msg.ExternalID,
		msg.Sender,
		msg.Type,
		msg.Content,
		msg.IsAutoReply,
		msg.Processed,
		msg.CreatedAt,
	).Scan(&msg.ID)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrDuplicateMessage
		}
		return err
	}

	return nil
}

// GetByTransaction возвращает переписку сделки в хронологическом порядке
func (r *ChatRepository) GetByTransaction(ctx context.Context, transactionID int64) ([]*models.ChatMessage, error) {
	query := `
		SELECT id, transaction_id, external_id, sender, type, content, is_auto_reply, processed, created_at
		FROM chat_messages
		WHERE transaction_id = $1
		ORDER BY created_at, id`

	return r.queryMessages(ctx, query, transactionID)
}

// GetUnprocessed возвращает необработанные сообщения контрагентов по всем
// сделкам. Внутри каждой сделки сообщения идут в порядке создания.
func (r *ChatRepository) GetUnprocessed(ctx context.Context) ([]*models.ChatMessage, error) {
	query := `
		SELECT id, transaction_id, external_id, sender, type, content, is_auto_reply, processed, created_at
		FROM chat_messages
		WHERE sender = $1 AND processed = FALSE
		ORDER BY created_at, id`

	return r.queryMessages(ctx, query, models.ChatSenderCounterparty)
}

// MarkProcessed помечает сообщения обработанными
func (r *ChatRepository) MarkProcessed(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	query := `UPDATE chat_messages SET processed = TRUE WHERE id = ANY($1)`

	_, err := r.db.ExecContext(ctx, query, pq.Array(ids))
	return err
}

// CountByTransaction возвращает количество сообщений в переписке сделки
func (r *ChatRepository) CountByTransaction(ctx context.Context, transactionID int64) (int, error) {
	query := `SELECT COUNT(*) FROM chat_messages WHERE transaction_id = $1`

	var count int
	err := r.db.QueryRowContext(ctx, query, transactionID).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// HasAutoReply проверяет, отправлял ли автоответчик что-либо в сделку.
// Нужно, чтобы приветствие уходило только один раз.
func (r *ChatRepository) HasAutoReply(ctx context.Context, transactionID int64) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM chat_messages WHERE transaction_id = $1 AND is_auto_reply = TRUE)`

	var exists bool
	err := r.db.QueryRowContext(ctx, query, transactionID).Scan(&exists)
	if err != nil {
		return false, err
	}

	return exists, nil
}

// DeleteOlderThan удаляет сообщения старше указанной даты
func (r *ChatRepository) DeleteOlderThan(ctx context.Context, timestamp time.Time) (int64, error) {
	query := `DELETE FROM chat_messages WHERE created_at < $1`

	result, err := r.db.ExecContext(ctx, query, timestamp)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// queryMessages выполняет запрос со стандартным набором колонок сообщения
func (r *ChatRepository) queryMessages(ctx context.Context, query string, args ...interface{}) ([]*models.ChatMessage, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*models.ChatMessage
	for rows.Next() {
		msg := &models.ChatMessage{}
		err := rows.Scan(
			&msg.ID,
			&msg.TransactionID,
			&msg.ExternalID,
			&msg.Sender,
			&msg.Type,
			&msg.Content,
			&msg.IsAutoReply,
			&msg.Processed,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}
