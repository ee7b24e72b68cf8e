package service

import (
	"context"
	"errors"

	"p2pdesk/internal/models"
	"p2pdesk/internal/repository"
)

// Ошибки сервиса сделок
var (
	ErrTransactionNotFound = errors.New("сделка не найдена")
	ErrTransactionClosed   = errors.New("сделка уже закрыта")
	ErrEngineStopped       = errors.New("движок остановлен, операция недоступна")
)

// TransactionCompleter - ручное завершение сделки через трекер движка.
// Трекер отпускает актив на бирже и проводит терминальный переход,
// сервис сам статусы не меняет.
type TransactionCompleter interface {
	Complete(ctx context.Context, transactionID int64) error
}

// TransactionService предоставляет операторский доступ к сделкам.
//
// Отвечает за:
// - Списки сделок по статусу и открытых сделок
// - Карточку сделки вместе с перепиской чата
// - Паузу и возобновление автоответов в чате
// - Ручное завершение сделки через трекер движка
type TransactionService struct {
	txRepo    TransactionRepositoryInterface
	chatRepo  ChatRepositoryInterface
	completer TransactionCompleter // допускается nil, когда движок не поднят
}

// NewTransactionService создает новый экземпляр TransactionService.
func NewTransactionService(
	txRepo TransactionRepositoryInterface,
	chatRepo ChatRepositoryInterface,
) *TransactionService {
	return &TransactionService{
		txRepo:   txRepo,
		chatRepo: chatRepo,
	}
}

// SetCompleter привязывает трекер движка для ручного завершения сделок.
func (s *TransactionService) SetCompleter(c TransactionCompleter) {
	s.completer = c
}

// GetTransactions возвращает сделки. Пустой статус - последние сделки,
// "open" - все незакрытые, иначе фильтр по конкретному статусу.
func (s *TransactionService) GetTransactions(ctx context.Context, status string, limit int) ([]*models.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}

	var (
		txs []*models.Transaction
		err error
	)
	switch status {
	case "":
		txs, err = s.txRepo.GetRecent(ctx, limit)
	case "open":
		txs, err = s.txRepo.GetOpen(ctx)
	default:
		txs, err = s.txRepo.GetByStatus(ctx, status)
	}
	if err != nil {
		return nil, err
	}

	if txs == nil {
		txs = []*models.Transaction{}
	}

	return txs, nil
}

// TransactionDetail - карточка сделки с перепиской.
type TransactionDetail struct {
	Transaction *models.Transaction   `json:"transaction"`
	Messages    []*models.ChatMessage `json:"messages"`
}

// GetTransaction возвращает сделку вместе с сообщениями чата.
func (s *TransactionService) GetTransaction(ctx context.Context, id int64) (*TransactionDetail, error) {
	tx, err := s.txRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}

	messages, err := s.chatRepo.GetByTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []*models.ChatMessage{}
	}

	return &TransactionDetail{
		Transaction: tx,
		Messages:    messages,
	}, nil
}

// SuspendChat выключает автоответы по сделке: оператор берёт переписку
// на себя. Входящие сообщения продолжают сохраняться.
func (s *TransactionService) SuspendChat(ctx context.Context, id int64) error {
	return s.setChatSuspended(ctx, id, true)
}

// ResumeChat возвращает переписку автоматике.
func (s *TransactionService) ResumeChat(ctx context.Context, id int64) error {
	return s.setChatSuspended(ctx, id, false)
}

func (s *TransactionService) setChatSuspended(ctx context.Context, id int64, suspended bool) error {
	tx, err := s.txRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			return ErrTransactionNotFound
		}
		return err
	}
	if tx.IsTerminal() {
		return ErrTransactionClosed
	}

	return s.txRepo.SetChatSuspended(ctx, id, suspended)
}

// CompleteTransaction вручную завершает сделку: актив отпускается
// контрагенту, сделка переходит в completed. Используется оператором,
// когда платёж подтверждён вне автоматики.
func (s *TransactionService) CompleteTransaction(ctx context.Context, id int64) error {
	if s.completer == nil {
		return ErrEngineStopped
	}

	tx, err := s.txRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			return ErrTransactionNotFound
		}
		return err
	}
	if tx.IsTerminal() {
		return ErrTransactionClosed
	}

	return s.completer.Complete(ctx, id)
}

// GetTransactionCounts возвращает количество сделок по каждому статусу.
func (s *TransactionService) GetTransactionCounts(ctx context.Context) (map[string]int, error) {
	statuses := []string{
		models.TxStatusPending,
		models.TxStatusWaitingPayment,
		models.TxStatusPaymentReceived,
		models.TxStatusCompleted,
		models.TxStatusCancelled,
		models.TxStatusFailed,
	}

	counts := make(map[string]int, len(statuses))
	for _, status := range statuses {
		n, err := s.txRepo.CountByStatus(ctx, status)
		if err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, nil
}
