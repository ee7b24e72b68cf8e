package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"p2pdesk/internal/models"
	"p2pdesk/internal/repository"
	"p2pdesk/pkg/utils"
)

// DefaultGreeting - текст первого сообщения сделки, если оператор не задал свой.
const DefaultGreeting = "Здравствуйте! Переведите точную сумму по реквизитам из " +
	"объявления и нажмите «Оплачено». Актив отпустим сразу после проверки платежа."

// ============================================================
// Зависимости
// ============================================================

// TemplateStore отдаёт рабочий набор шаблонов: активные шаблоны активных групп.
type TemplateStore interface {
	GetActiveTemplates(ctx context.Context) ([]*models.ChatTemplate, error)
}

// MessageStore - хранилище сообщений чата.
type MessageStore interface {
	SaveMessage(ctx context.Context, msg *models.ChatMessage) error
	GetUnprocessed(ctx context.Context) ([]*models.ChatMessage, error)
	MarkProcessed(ctx context.Context, ids []int64) error
	CountByTransaction(ctx context.Context, transactionID int64) (int, error)
}

// TransactionStore - чтение сделок.
type TransactionStore interface {
	GetByID(ctx context.Context, id int64) (*models.Transaction, error)
}

// SettingsStore - чтение настроек (флаг приветствия правится на лету).
type SettingsStore interface {
	Get(ctx context.Context) (*models.Settings, error)
}

// Sender доставляет текст в чат ордера через пул аккаунтов.
type Sender interface {
	SendChat(ctx context.Context, accountID int64, orderID, content string) error
}

// StatusAdvancer переводит сделку в новый статус. Реализуется трекером,
// чтобы переходы из чата шли через общую state machine и блокировки сделок.
type StatusAdvancer interface {
	AdvanceStatus(ctx context.Context, transactionID int64, status string) error
}

// EventSink получает события чата для трансляции наружу (websocket-лента).
// Реализации не должны блокировать вызывающего.
type EventSink interface {
	ChatMessage(msg *models.ChatMessage)
}

// Deps - зависимости движка автоответов.
type Deps struct {
	Templates    TemplateStore
	Messages     MessageStore
	Transactions TransactionStore
	Settings     SettingsStore
	Sender       Sender
	Advancer     StatusAdvancer
	Events       EventSink // допускается nil
}

// Config - настройки движка автоответов.
type Config struct {
	Greeting string // пусто = DefaultGreeting
}

// ============================================================
// Движок автоответов
// ============================================================

// Automation обрабатывает входящие сообщения чатов: подбирает шаблон,
// отправляет ответ, двигает статус сделки по триггерным фразам.
// Сообщения одной сделки обрабатываются строго в порядке создания;
// сделки между собой не упорядочены.
type Automation struct {
	deps     Deps
	greeting string
	log      *utils.Logger
}

// NewAutomation создает движок автоответов
func NewAutomation(deps Deps, cfg Config) *Automation {
	greeting := cfg.Greeting
	if greeting == "" {
		greeting = DefaultGreeting
	}
	return &Automation{
		deps:     deps,
		greeting: greeting,
		log:      utils.GetGlobalLogger().WithComponent("chat"),
	}
}

// ProcessStats - сводка одного прохода по необработанным сообщениям.
type ProcessStats struct {
	Processed int // сообщений помечено обработанными
	Replied   int // отправлено автоответов
	Unmatched int // сообщений без подходящего шаблона
	Skipped   int // пропущено без ответа: оператор в чате или сделка закрыта
	Advanced  int // переходов статуса по триггерной фразе шаблона
}

// StartAutomation отправляет приветствие новой сделки, если разговор ещё
// не начался. Повторная отправка после сбоя между send и записью не плодит
// строк: external_id приветствия детерминирован.
func (a *Automation) StartAutomation(ctx context.Context, transactionID int64) error {
	settings, err := a.deps.Settings.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	if !settings.GreetingEnabled {
		return nil
	}

	tx, err := a.deps.Transactions.GetByID(ctx, transactionID)
	if err != nil {
		return fmt.Errorf("failed to load transaction %d: %w", transactionID, err)
	}
	if tx.ChatSuspended || tx.IsTerminal() {
		return nil
	}

	count, err := a.deps.Messages.CountByTransaction(ctx, tx.ID)
	if err != nil {
		return fmt.Errorf("failed to count chat messages: %w", err)
	}
	if count > 0 {
		// Разговор уже начался: контрагент написал первым
		// или приветствие уже уходило.
		return nil
	}

	if err := a.deps.Sender.SendChat(ctx, tx.AccountID, tx.OrderID, a.greeting); err != nil {
		return fmt.Errorf("failed to send greeting: %w", err)
	}

	msg := &models.ChatMessage{
		TransactionID: tx.ID,
		ExternalID:    greetingExternalID(tx.ID),
		Sender:        models.ChatSenderUs,
		Type:          models.ChatMessageTypeText,
		Content:       a.greeting,
		IsAutoReply:   true,
		Processed:     true,
		CreatedAt:     time.Now(),
	}
	if err := a.persist(ctx, msg); err != nil {
		return err
	}

	a.log.Info("приветствие отправлено",
		utils.TransactionID(tx.ID), utils.OrderID(tx.OrderID))
	return nil
}

// ProcessUnprocessed обходит необработанные сообщения контрагентов по всем
// сделкам. Ошибка возвращается только для сбоев загрузки: сбои отправки
// логируются и оставляют триггерное сообщение необработанным до следующего
// цикла, чтобы опрос всегда двигался вперёд.
func (a *Automation) ProcessUnprocessed(ctx context.Context) (ProcessStats, error) {
	var stats ProcessStats

	msgs, err := a.deps.Messages.GetUnprocessed(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to load unprocessed messages: %w", err)
	}
	if len(msgs) == 0 {
		return stats, nil
	}

	templates, err := a.deps.Templates.GetActiveTemplates(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to load templates: %w", err)
	}
	catalog := NewCatalog(templates)

	// Группировка по сделкам с сохранением хронологии внутри каждой:
	// хранилище отдаёт сообщения в порядке создания.
	txOrder := make([]int64, 0)
	byTx := make(map[int64][]*models.ChatMessage)
	for _, m := range msgs {
		if _, ok := byTx[m.TransactionID]; !ok {
			txOrder = append(txOrder, m.TransactionID)
		}
		byTx[m.TransactionID] = append(byTx[m.TransactionID], m)
	}

	for _, txID := range txOrder {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		a.processTransaction(ctx, catalog, txID, byTx[txID], &stats)
	}

	return stats, nil
}

// processTransaction обрабатывает пачку сообщений одной сделки в порядке
// создания. Первый сбой отправки останавливает пачку: отвечать на
// следующее сообщение раньше предыдущего нельзя.
func (a *Automation) processTransaction(ctx context.Context, catalog *Catalog, txID int64, msgs []*models.ChatMessage, stats *ProcessStats) {
	log := a.log.WithTransaction(txID)

	tx, err := a.deps.Transactions.GetByID(ctx, txID)
	if err != nil {
		// Сообщения остаются необработанными до следующего цикла
		log.Error("failed to load transaction for chat processing", zap.Error(err))
		return
	}

	// Оператор ведёт чат сам или сделка закрыта: не отвечаем, но помечаем,
	// чтобы после возобновления не отвечать на устаревшие сообщения.
	if tx.ChatSuspended || tx.IsTerminal() {
		stats.Skipped += len(msgs)
		a.markProcessed(ctx, log, collectIDs(msgs), stats)
		return
	}

	processed := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		tpl, ok := catalog.Match(m.Content)
		if !ok {
			log.Info("сообщение без шаблона", zap.String("external_id", m.ExternalID))
			stats.Unmatched++
			processed = append(processed, m.ID)
			continue
		}

		if err := a.reply(ctx, tx, m, tpl); err != nil {
			log.Warn("автоответ не отправлен, повтор на следующем цикле",
				zap.Int64("template_id", tpl.ID), zap.Error(err))
			break
		}
		stats.Replied++
		processed = append(processed, m.ID)

		if tpl.NextStatus != nil {
			if err := a.deps.Advancer.AdvanceStatus(ctx, tx.ID, *tpl.NextStatus); err != nil {
				// Трекер догонит статус по данным биржи на следующем опросе
				log.Warn("переход статуса по шаблону не применён",
					utils.State(*tpl.NextStatus), zap.Error(err))
			} else {
				stats.Advanced++
				tx.Status = *tpl.NextStatus
			}
		}
	}

	a.markProcessed(ctx, log, processed, stats)
}

// reply отправляет ответ шаблона и сохраняет его. Ответ записывается до
// пометки триггера: сбой между отправкой и записью приводит к повторной
// отправке на следующем цикле, а не к потере ответа.
func (a *Automation) reply(ctx context.Context, tx *models.Transaction, trigger *models.ChatMessage, tpl *models.ChatTemplate) error {
	if err := a.deps.Sender.SendChat(ctx, tx.AccountID, tx.OrderID, tpl.Reply); err != nil {
		return fmt.Errorf("failed to send reply: %w", err)
	}

	msg := &models.ChatMessage{
		TransactionID: tx.ID,
		ExternalID:    replyExternalID(trigger),
		Sender:        models.ChatSenderUs,
		Type:          models.ChatMessageTypeText,
		Content:       tpl.Reply,
		IsAutoReply:   true,
		Processed:     true,
		CreatedAt:     time.Now(),
	}
	if err := a.persist(ctx, msg); err != nil {
		return err
	}

	a.log.Info("автоответ отправлен",
		utils.TransactionID(tx.ID),
		utils.OrderID(tx.OrderID),
		zap.Int64("template_id", tpl.ID))
	return nil
}

// persist сохраняет локально порождённое сообщение. Дубль по external_id -
// штатный исход повторной отправки, строка уже на месте.
func (a *Automation) persist(ctx context.Context, msg *models.ChatMessage) error {
	err := a.deps.Messages.SaveMessage(ctx, msg)
	if err != nil && !errors.Is(err, repository.ErrDuplicateMessage) {
		return fmt.Errorf("failed to persist chat message: %w", err)
	}
	if err == nil && a.deps.Events != nil {
		a.deps.Events.ChatMessage(msg)
	}
	return nil
}

func (a *Automation) markProcessed(ctx context.Context, log *utils.Logger, ids []int64, stats *ProcessStats) {
	if len(ids) == 0 {
		return
	}
	if err := a.deps.Messages.MarkProcessed(ctx, ids); err != nil {
		log.Error("failed to mark chat messages processed", zap.Error(err))
		return
	}
	stats.Processed += len(ids)
}

func collectIDs(msgs []*models.ChatMessage) []int64 {
	ids := make([]int64, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	return ids
}

// Локальные external_id детерминированы, чтобы повторная отправка после
// сбоя упиралась в уникальный индекс, а не плодила строки.

func replyExternalID(trigger *models.ChatMessage) string {
	return "auto:" + trigger.ExternalID
}

func greetingExternalID(transactionID int64) string {
	return fmt.Sprintf("greeting:%d", transactionID)
}
