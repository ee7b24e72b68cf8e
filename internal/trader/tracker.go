package trader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"p2pdesk/internal/exchange"
	"p2pdesk/internal/models"
	"p2pdesk/internal/repository"
	"p2pdesk/pkg/utils"
)

// Сколько последних сообщений чата запрашивается у площадки за один проход
const chatHistoryLimit = 50

// TransactionStore - хранилище сделок
type TransactionStore interface {
	Create(ctx context.Context, tx *models.Transaction) error
	GetByID(ctx context.Context, id int64) (*models.Transaction, error)
	GetByOrderID(ctx context.Context, orderID string) (*models.Transaction, error)
	GetOpen(ctx context.Context) ([]*models.Transaction, error)
	GetOpenByAccount(ctx context.Context, accountID int64) ([]*models.Transaction, error)
	UpdateStatus(ctx context.Context, id int64, status string, completedAt *time.Time) error
	SetChatSuspended(ctx context.Context, id int64, suspended bool) error
	CountOpen(ctx context.Context) (int, error)
	DeleteOlderThan(ctx context.Context, timestamp time.Time) (int64, error)
}

// MessageStore - хранилище переписки для синхронизации истории чатов
type MessageStore interface {
	SaveMessage(ctx context.Context, msg *models.ChatMessage) error
	GetByTransaction(ctx context.Context, transactionID int64) ([]*models.ChatMessage, error)
	HasAutoReply(ctx context.Context, transactionID int64) (bool, error)
	DeleteOlderThan(ctx context.Context, timestamp time.Time) (int64, error)
}

// Greeter начинает разговор в чате новой сделки. Реализуется пакетом chat.
type Greeter interface {
	StartAutomation(ctx context.Context, transactionID int64) error
}

// TrackerDeps - зависимости трекера
type TrackerDeps struct {
	Pool         AccountPool
	Transactions TransactionStore
	Ads          AdStore
	AdManager    *AdManager
	Payouts      PayoutStore
	Messages     MessageStore
	Greeter      Greeter   // допускается nil
	Notifier     Notifier  // допускается nil
	Events       EventSink // допускается nil
}

// PollStats - сводка одного опроса ордеров аккаунта
type PollStats struct {
	Observed int // открытых ордеров в ответе площадки
	Created  int // новых сделок
	Advanced int // переходов статуса
	Closed   int // сделок, ушедших в терминальный статус
}

// Tracker следит за ордерами по нашим объявлениям и ведёт state machine
// сделок. Ключ идемпотентности - биржевой order_id: повторное наблюдение
// того же ордера не создаёт вторую сделку. Все переходы статуса одной
// сделки сериализованы замком, откуда бы они ни пришли: опрос площадки,
// триггер чата или сопоставитель платежей.
type Tracker struct {
	deps  TrackerDeps
	locks *txLocks
	log   *utils.Logger

	// Ордеры, по которым прямо сейчас создаётся сделка: два пересёкшихся
	// опроса одного аккаунта не должны дублировать побочные эффекты
	inflightMu sync.Mutex
	inflight   map[string]struct{}
}

// NewTracker создает трекер сделок
func NewTracker(deps TrackerDeps) *Tracker {
	return &Tracker{
		deps:     deps,
		locks:    newTxLocks(),
		log:      utils.GetGlobalLogger().WithComponent("tracker"),
		inflight: make(map[string]struct{}),
	}
}

// SetGreeter подключает автоответчик после создания. Трекер и автоответчик
// ссылаются друг на друга, поэтому один из них достраивается вторым вызовом.
// Вызывается до запуска движка.
func (t *Tracker) SetGreeter(g Greeter) {
	t.deps.Greeter = g
}

// ============================================================
// Опрос ордеров
// ============================================================

// PollAccount опрашивает открытые ордера аккаунта и применяет изменения.
// Локальные сделки, пропавшие из списка открытых, добираются через деталь
// ордера: так узнаются терминальные статусы.
func (t *Tracker) PollAccount(ctx context.Context, accountID int64) (PollStats, error) {
	var stats PollStats

	var orders []*exchange.OrderInfo
	err := t.deps.Pool.Execute(ctx, accountID, "open_orders", func(ctx context.Context, c exchange.Client) error {
		var opErr error
		orders, opErr = c.OpenOrders(ctx)
		return opErr
	})
	if err != nil {
		return stats, fmt.Errorf("опрос ордеров: %w", err)
	}
	stats.Observed = len(orders)

	seen := make(map[string]struct{}, len(orders))
	for _, o := range orders {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		seen[o.OrderID] = struct{}{}
		t.handleOrder(ctx, accountID, o, &stats)
	}

	open, err := t.deps.Transactions.GetOpenByAccount(ctx, accountID)
	if err != nil {
		return stats, fmt.Errorf("загрузка открытых сделок: %w", err)
	}
	for _, tx := range open {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		if _, stillOpen := seen[tx.OrderID]; stillOpen {
			continue
		}
		t.reconcileMissing(ctx, tx, &stats)
	}

	if sess, err := t.deps.Pool.Get(accountID); err == nil {
		sess.MarkPolled()
	}
	return stats, nil
}

// handleOrder обрабатывает один ордер из ответа площадки
func (t *Tracker) handleOrder(ctx context.Context, accountID int64, o *exchange.OrderInfo, stats *PollStats) {
	tx, err := t.deps.Transactions.GetByOrderID(ctx, o.OrderID)
	switch {
	case errors.Is(err, repository.ErrTransactionNotFound):
		tx = t.createTransaction(ctx, accountID, o)
		if tx == nil {
			return
		}
		stats.Created++
	case err != nil:
		t.log.Error("сделка не загрузилась", utils.OrderID(o.OrderID), zap.Error(err))
		return
	}

	if tx.Status != o.Status {
		t.applyStatus(ctx, tx.ID, o.Status, stats)
		// Свежий статус нужен решению о приветствии
		if reloaded, err := t.deps.Transactions.GetByID(ctx, tx.ID); err == nil {
			tx = reloaded
		}
	}

	t.startChat(ctx, tx)
}

// createTransaction заводит сделку по впервые увиденному ордеру.
// Возвращает nil, если ордер чужой или сделку уже создал параллельный опрос.
func (t *Tracker) createTransaction(ctx context.Context, accountID int64, o *exchange.OrderInfo) *models.Transaction {
	t.inflightMu.Lock()
	if _, busy := t.inflight[o.OrderID]; busy {
		t.inflightMu.Unlock()
		return nil
	}
	t.inflight[o.OrderID] = struct{}{}
	t.inflightMu.Unlock()
	defer func() {
		t.inflightMu.Lock()
		delete(t.inflight, o.OrderID)
		t.inflightMu.Unlock()
	}()

	ad, err := t.deps.Ads.GetByExternalID(ctx, o.AdID)
	if err != nil {
		if errors.Is(err, repository.ErrAdvertisementNotFound) {
			// Ордер по объявлению, размещённому не нами - не наша сделка
			t.log.Warn("ордер по неизвестному объявлению пропущен",
				utils.OrderID(o.OrderID), zap.String("external_ad_id", o.AdID))
		} else {
			t.log.Error("объявление ордера не загрузилось",
				utils.OrderID(o.OrderID), zap.Error(err))
		}
		return nil
	}

	tx := &models.Transaction{
		OrderID:              o.OrderID,
		AdvertisementID:      ad.ID,
		AccountID:            accountID,
		PayoutID:             ad.PayoutID,
		Status:               models.TxStatusPending,
		Side:                 o.Side,
		Asset:                o.Asset,
		Fiat:                 o.Fiat,
		FiatAmount:           o.FiatAmount,
		AssetAmount:          o.AssetAmount,
		Price:                o.Price,
		CounterpartyID:       o.CounterpartyID,
		CounterpartyNickname: o.CounterpartyNickname,
	}
	if err := t.deps.Transactions.Create(ctx, tx); err != nil {
		if errors.Is(err, repository.ErrDuplicateOrder) {
			return nil // параллельный опрос успел первым
		}
		t.log.Error("сделка не записалась", utils.OrderID(o.OrderID), zap.Error(err))
		return nil
	}

	RecordTransactionCreated()
	t.log.Info("новая сделка",
		utils.TransactionID(tx.ID),
		utils.OrderID(tx.OrderID),
		utils.AccountID(accountID),
		utils.Amount(tx.FiatAmount),
		utils.Currency(tx.Fiat),
		zap.String("counterparty", tx.CounterpartyNickname))

	if ad.PayoutID != nil {
		if err := t.deps.Payouts.Link(ctx, *ad.PayoutID, tx.ID); err != nil {
			// Выплата уже занята другой сделкой - оператор разберётся
			t.log.Warn("выплата не привязалась к сделке",
				utils.TransactionID(tx.ID), utils.PayoutID(*ad.PayoutID), zap.Error(err))
			t.notify(ctx, models.NotificationTypeAccountError, models.SeverityWarn, &tx.ID,
				fmt.Sprintf("Выплата %s не привязалась к сделке %s", *ad.PayoutID, tx.OrderID),
				map[string]interface{}{"payout_id": *ad.PayoutID})
		}
	}

	// Лимиты объявления равны сумме выплаты: ордер выбрал его целиком,
	// с витрины оно больше не нужно
	if ad.Status == models.AdStatusOnline {
		if err := t.deps.AdManager.SetOnline(ctx, ad.ID, false); err != nil {
			t.log.Warn("объявление не снялось с витрины после ордера",
				utils.AdID(ad.ExternalID), zap.Error(err))
		}
	}

	t.notify(ctx, models.NotificationTypeTxCreated, models.SeverityInfo, &tx.ID,
		fmt.Sprintf("Новая сделка %s: %s %s за %s %s", tx.OrderID,
			tx.AssetAmount.String(), tx.Asset, tx.FiatAmount.String(), tx.Fiat),
		map[string]interface{}{"order_id": tx.OrderID, "counterparty": tx.CounterpartyNickname})
	if t.deps.Events != nil {
		t.deps.Events.TransactionCreated(tx)
	}
	return tx
}

// reconcileMissing добирает статус локально открытой сделки, пропавшей из
// списка открытых ордеров площадки: обычно это терминальный статус.
func (t *Tracker) reconcileMissing(ctx context.Context, tx *models.Transaction, stats *PollStats) {
	var detail *exchange.OrderInfo
	err := t.deps.Pool.Execute(ctx, tx.AccountID, "order_detail", func(ctx context.Context, c exchange.Client) error {
		var opErr error
		detail, opErr = c.OrderDetail(ctx, tx.OrderID)
		return opErr
	})
	if err != nil {
		// Следующий цикл попробует снова
		t.log.Warn("деталь пропавшего ордера недоступна",
			utils.TransactionID(tx.ID), utils.OrderID(tx.OrderID), zap.Error(err))
		return
	}

	t.applyStatus(ctx, tx.ID, detail.Status, stats)
}

// startChat запускает приветствие, пока автоответчик ещё ничего не писал.
// HasAutoReply - дешёвая проверка перед полным стартом: после первого
// успешного приветствия дальше этой строки не заходим.
func (t *Tracker) startChat(ctx context.Context, tx *models.Transaction) {
	if t.deps.Greeter == nil || tx.ChatSuspended || tx.IsTerminal() {
		return
	}
	has, err := t.deps.Messages.HasAutoReply(ctx, tx.ID)
	if err != nil {
		t.log.Warn("проверка автоответов не удалась", utils.TransactionID(tx.ID), zap.Error(err))
		return
	}
	if has {
		return
	}
	if err := t.deps.Greeter.StartAutomation(ctx, tx.ID); err != nil {
		t.log.Warn("приветствие не отправлено, повтор на следующем цикле",
			utils.TransactionID(tx.ID), zap.Error(err))
	}
}

// ============================================================
// Переходы статуса
// ============================================================

// applyStatus применяет наблюдаемый статус площадки к сделке.
// Недопустимые переходы (движение назад, выход из терминального статуса)
// игнорируются: state machine монотонна.
func (t *Tracker) applyStatus(ctx context.Context, transactionID int64, newStatus string, stats *PollStats) {
	unlock := t.locks.Lock(transactionID)
	defer unlock()

	tx, err := t.deps.Transactions.GetByID(ctx, transactionID)
	if err != nil {
		t.log.Error("сделка не загрузилась для перехода",
			utils.TransactionID(transactionID), zap.Error(err))
		return
	}
	if tx.Status == newStatus || tx.IsTerminal() {
		return
	}
	if !CanTransition(tx.Status, newStatus) {
		t.log.Warn("недопустимый переход статуса проигнорирован",
			utils.TransactionID(tx.ID),
			zap.String("from", tx.Status), zap.String("to", newStatus))
		return
	}

	if err := t.transition(ctx, tx, newStatus); err != nil {
		t.log.Error("переход статуса не записался",
			utils.TransactionID(tx.ID), utils.State(newStatus), zap.Error(err))
		return
	}
	if stats != nil {
		stats.Advanced++
		if models.IsTerminalTxStatus(newStatus) {
			stats.Closed++
		}
	}
}

// transition записывает уже проверенный переход и выполняет побочные
// эффекты. Вызывается только под замком сделки.
func (t *Tracker) transition(ctx context.Context, tx *models.Transaction, newStatus string) error {
	var completedAt *time.Time
	if models.IsTerminalTxStatus(newStatus) {
		now := time.Now()
		completedAt = &now
	}

	if err := t.deps.Transactions.UpdateStatus(ctx, tx.ID, newStatus, completedAt); err != nil {
		return fmt.Errorf("запись статуса: %w", err)
	}

	previous := tx.Status
	tx.Status = newStatus
	if completedAt != nil {
		tx.CompletedAt = completedAt
	}

	RecordStatusTransition(newStatus)
	t.log.Info("статус сделки изменён",
		utils.TransactionID(tx.ID), utils.OrderID(tx.OrderID),
		zap.String("from", previous), utils.State(newStatus))

	severity := models.SeverityInfo
	if newStatus == models.TxStatusCancelled || newStatus == models.TxStatusFailed {
		severity = models.SeverityWarn
	}
	t.notify(ctx, models.NotificationTypeTxStatus, severity, &tx.ID,
		fmt.Sprintf("Сделка %s: %s -> %s", tx.OrderID, previous, newStatus),
		map[string]interface{}{"from": previous, "to": newStatus})
	if t.deps.Events != nil {
		t.deps.Events.TransactionStatus(tx, previous)
	}

	if models.IsTerminalTxStatus(newStatus) {
		t.terminalCleanup(ctx, tx)
	}
	return nil
}

// terminalCleanup убирает объявление закрытой сделки и возвращает выплату
// в оборот, если деньги так и не пришли. Сбои здесь не откатывают переход:
// плановые проходы доберут хвосты.
func (t *Tracker) terminalCleanup(ctx context.Context, tx *models.Transaction) {
	if err := t.deps.AdManager.Teardown(ctx, tx.AdvertisementID); err != nil {
		t.log.Warn("объявление закрытой сделки не убралось",
			utils.TransactionID(tx.ID), zap.Error(err))
	}

	if tx.PayoutID != nil && tx.Status != models.TxStatusCompleted {
		err := t.deps.Payouts.Reopen(ctx, *tx.PayoutID)
		if err != nil && !errors.Is(err, repository.ErrPayoutNotFound) {
			t.log.Error("выплата не вернулась в оборот",
				utils.TransactionID(tx.ID), utils.PayoutID(*tx.PayoutID), zap.Error(err))
		}
	}
}

// ============================================================
// Входы для чата и сопоставителя
// ============================================================

// AdvanceStatus переводит сделку в нетерминальный статус по триггеру
// шаблона чата. Повтор уже достигнутого статуса - no-op. Терминальные
// статусы чату недоступны: completed требует release актива.
func (t *Tracker) AdvanceStatus(ctx context.Context, transactionID int64, status string) error {
	if models.IsTerminalTxStatus(status) {
		return fmt.Errorf("статус %s из чата недостижим", status)
	}

	unlock := t.locks.Lock(transactionID)
	defer unlock()

	tx, err := t.deps.Transactions.GetByID(ctx, transactionID)
	if err != nil {
		return err
	}
	if tx.Status == status || tx.IsTerminal() {
		return nil
	}
	if !CanTransition(tx.Status, status) {
		return fmt.Errorf("переход %s -> %s недопустим", tx.Status, status)
	}
	return t.transition(ctx, tx, status)
}

// Complete закрывает сделку после подтверждённого платежа: отпускает актив
// на площадке и переводит статус в completed. Повторный вызов для уже
// завершённой сделки - no-op, поэтому сопоставитель может безопасно
// повторять после сбоя. Отменённая сделка завершению не подлежит.
func (t *Tracker) Complete(ctx context.Context, transactionID int64) error {
	unlock := t.locks.Lock(transactionID)
	defer unlock()

	tx, err := t.deps.Transactions.GetByID(ctx, transactionID)
	if err != nil {
		return err
	}
	if tx.Status == models.TxStatusCompleted {
		return nil
	}
	if tx.IsTerminal() {
		return fmt.Errorf("сделка %d закрыта со статусом %s, завершение невозможно", tx.ID, tx.Status)
	}

	// Сначала release на площадке, потом запись статуса: при сбое записи
	// следующий опрос увидит завершённый ордер и догонит статус сам
	if err := t.releaseOrder(ctx, tx); err != nil {
		return fmt.Errorf("release ордера %s: %w", tx.OrderID, err)
	}
	return t.transition(ctx, tx, models.TxStatusCompleted)
}

// releaseOrder отпускает актив контрагенту. Отказ площадки сверяется с
// деталью ордера: если тот уже завершён, release проходил раньше.
func (t *Tracker) releaseOrder(ctx context.Context, tx *models.Transaction) error {
	err := t.deps.Pool.Execute(ctx, tx.AccountID, "release_order", func(ctx context.Context, c exchange.Client) error {
		return c.ReleaseOrder(ctx, tx.OrderID)
	})
	if err == nil {
		return nil
	}

	var detail *exchange.OrderInfo
	dErr := t.deps.Pool.Execute(ctx, tx.AccountID, "order_detail", func(ctx context.Context, c exchange.Client) error {
		var opErr error
		detail, opErr = c.OrderDetail(ctx, tx.OrderID)
		return opErr
	})
	if dErr == nil && detail.Status == models.TxStatusCompleted {
		return nil
	}
	return err
}

// ============================================================
// Синхронизация чата
// ============================================================

// SyncChat подтягивает историю чата ордера в хранилище. Повторы отсекает
// уникальный индекс по external_id, эхо наших собственных отправок - по
// содержимому. Чужая рука в чате с нашей стороны означает оператора:
// автоответы для сделки приостанавливаются.
func (t *Tracker) SyncChat(ctx context.Context, tx *models.Transaction) error {
	if tx.IsTerminal() {
		return nil
	}

	var history []*exchange.ChatMessageInfo
	err := t.deps.Pool.Execute(ctx, tx.AccountID, "chat_messages", func(ctx context.Context, c exchange.Client) error {
		var opErr error
		history, opErr = c.ChatMessages(ctx, tx.OrderID, chatHistoryLimit)
		return opErr
	})
	if err != nil {
		return fmt.Errorf("история чата: %w", err)
	}
	if len(history) == 0 {
		return nil
	}

	existing, err := t.deps.Messages.GetByTransaction(ctx, tx.ID)
	if err != nil {
		return fmt.Errorf("загрузка переписки: %w", err)
	}
	knownIDs := make(map[string]struct{}, len(existing))
	ourContents := make(map[string]struct{})
	for _, m := range existing {
		knownIDs[m.ExternalID] = struct{}{}
		if m.Sender == models.ChatSenderUs {
			ourContents[m.Content] = struct{}{}
		}
	}

	operator := false
	for _, item := range history {
		if _, known := knownIDs[item.ID]; known {
			continue
		}

		msg := &models.ChatMessage{
			TransactionID: tx.ID,
			ExternalID:    item.ID,
			Sender:        item.Sender,
			Type:          item.Type,
			Content:       item.Content,
			CreatedAt:     item.CreatedAt,
		}
		switch {
		case item.Type == exchange.ChatTypeSystem:
			// Служебные строки площадки автоответчику не нужны
			msg.Processed = true
		case item.Sender == exchange.ChatSenderUs:
			if _, ours := ourContents[item.Content]; ours {
				continue // эхо нашей отправки, локальная строка уже есть
			}
			// Сообщение с нашей стороны, которое отправляли не мы:
			// оператор пишет через кабинет площадки
			msg.Processed = true
			operator = true
		}

		if err := t.deps.Messages.SaveMessage(ctx, msg); err != nil {
			if errors.Is(err, repository.ErrDuplicateMessage) {
				continue
			}
			return fmt.Errorf("запись сообщения чата: %w", err)
		}
		if t.deps.Events != nil {
			t.deps.Events.ChatMessage(msg)
		}
	}

	if operator && !tx.ChatSuspended {
		if err := t.deps.Transactions.SetChatSuspended(ctx, tx.ID, true); err != nil {
			t.log.Error("автоответы не приостановились",
				utils.TransactionID(tx.ID), zap.Error(err))
		} else {
			tx.ChatSuspended = true
			t.log.Info("оператор в чате, автоответы приостановлены",
				utils.TransactionID(tx.ID), utils.OrderID(tx.OrderID))
			t.notify(ctx, models.NotificationTypeChat, models.SeverityWarn, &tx.ID,
				fmt.Sprintf("Оператор в чате сделки %s, автоответы приостановлены", tx.OrderID), nil)
		}
	}
	return nil
}

// notify пишет уведомление в операторскую ленту
func (t *Tracker) notify(ctx context.Context, notifType, severity string, txID *int64, message string, meta map[string]interface{}) {
	if t.deps.Notifier == nil {
		return
	}
	t.deps.Notifier.Publish(ctx, &models.Notification{
		Timestamp:     time.Now(),
		Type:          notifType,
		Severity:      severity,
		TransactionID: txID,
		Message:       message,
		Meta:          meta,
	})
}
