package trader

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"p2pdesk/internal/chat"
	"p2pdesk/internal/config"
	"p2pdesk/internal/exchange"
	"p2pdesk/internal/matching"
	"p2pdesk/internal/models"
	"p2pdesk/internal/pool"
	"p2pdesk/pkg/utils"
)

var (
	// ErrEngineRunning - движок уже запущен
	ErrEngineRunning = errors.New("движок уже запущен")

	// ErrEngineStopped - движок не запущен
	ErrEngineStopped = errors.New("движок не запущен")
)

// ============================================================
// Интерфейсы движка
// ============================================================

// AccountPool - пул биржевых аккаунтов. Реализуется пакетом internal/pool.
type AccountPool interface {
	Load(ctx context.Context) error
	Get(id int64) (*pool.Session, error)
	Sessions() []*pool.Session
	Size() int
	Runtime() []models.AccountRuntime
	NextForPlacement(ctx context.Context) (*pool.Session, error)
	ReleaseSlot(ctx context.Context, accountID int64)
	Execute(ctx context.Context, accountID int64, opName string, op func(ctx context.Context, c exchange.Client) error) error
	Close()
}

// Notifier публикует уведомления операторской ленты. Допускается nil.
type Notifier interface {
	Publish(ctx context.Context, n *models.Notification)
}

// EventSink получает события для websocket-трансляции в UI. Допускается nil.
//
// Реализуется адаптером в internal/websocket:
// - transaction.created / transaction.statusChanged
// - advertisement.created / toggled / deleted
// - chat.message
type EventSink interface {
	TransactionCreated(tx *models.Transaction)
	TransactionStatus(tx *models.Transaction, previous string)
	AdvertisementCreated(ad *models.Advertisement)
	AdvertisementToggled(ad *models.Advertisement)
	AdvertisementDeleted(ad *models.Advertisement)
	ChatMessage(msg *models.ChatMessage)
}

// SettingsStore - чтение настроек. Периоды циклов читаются на каждой
// итерации: правка настроек применяется без перезапуска движка.
type SettingsStore interface {
	Get(ctx context.Context) (*models.Settings, error)
}

// ChatAutomation - автоответчик. Реализуется пакетом internal/chat.
type ChatAutomation interface {
	ProcessUnprocessed(ctx context.Context) (chat.ProcessStats, error)
}

// EvidenceMatcher - сопоставитель платёжных свидетельств.
// Реализуется пакетом internal/matching.
type EvidenceMatcher interface {
	Process(ctx context.Context, evidence *models.PaymentEvidence, attempt int) (*matching.Result, error)
}

// ============================================================
// Движок
// ============================================================

// EngineDeps - зависимости движка
type EngineDeps struct {
	Pool         AccountPool
	Tracker      *Tracker
	Ads          *AdManager
	Chat         ChatAutomation
	Matcher      EvidenceMatcher
	Queue        *matching.Queue
	Transactions TransactionStore
	Messages     MessageStore
	Payouts      PayoutStore
	Settings     SettingsStore
	Notifier     Notifier // допускается nil
}

// Engine - оркестратор торговли. Крутит пять фоновых циклов:
//
//   - опрос ордеров: состояние сделок по всем аккаунтам параллельно
//   - чат: синхронизация переписки и проход автоответчика
//   - сопоставление: повторные проходы по отложенным свидетельствам
//   - объявления: размещение под открытые выплаты, пересчёт float-цен,
//     уборка осиротевших объявлений
//   - хранение: удаление закрытых сделок и переписки старше срока
//
// Периоды первых четырёх циклов читаются из настроек на каждой итерации.
// Паника внутри цикла не роняет движок: цикл перезапускается.
type Engine struct {
	deps EngineDeps
	cfg  config.BotConfig

	mu        sync.Mutex
	running   bool
	startedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{} // закрыт после выхода всех циклов

	log *utils.Logger
}

// NewEngine создает движок
func NewEngine(deps EngineDeps, cfg config.BotConfig) *Engine {
	return &Engine{
		deps: deps,
		cfg:  cfg,
		log:  utils.GetGlobalLogger().WithComponent("engine"),
	}
}

// ============================================================
// Жизненный цикл
// ============================================================

// Start загружает пул аккаунтов и запускает циклы. Контекст вызова
// ограничивает только загрузку пула: циклы живут до Stop.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return ErrEngineRunning
	}

	if err := e.deps.Pool.Load(ctx); err != nil {
		return fmt.Errorf("загрузка пула аккаунтов: %w", err)
	}
	if e.deps.Pool.Size() == 0 {
		e.log.Warn("в пуле нет живых аккаунтов, движок запущен вхолостую")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.running = true
	e.startedAt = time.Now()
	e.done = make(chan struct{})

	loops := []struct {
		name string
		fn   func(context.Context)
	}{
		{"orders", e.orderLoop},
		{"chat", e.chatLoop},
		{"matching", e.matchLoop},
		{"ads", e.adLoop},
		{"retention", e.retentionLoop},
	}

	var wg sync.WaitGroup
	for _, l := range loops {
		wg.Add(1)
		go func(name string, fn func(context.Context)) {
			defer wg.Done()
			e.guard(runCtx, name, fn)
		}(l.name, l.fn)
	}
	done := e.done
	go func() {
		wg.Wait()
		close(done)
	}()

	EngineRunning.Set(1)
	e.log.Info("движок запущен",
		zap.Int("accounts", e.deps.Pool.Size()),
		zap.Duration("order_poll", e.cfg.OrderPollInterval),
		zap.Duration("chat_poll", e.cfg.ChatPollInterval))
	e.notify(context.Background(), models.SeverityInfo, "Движок запущен")
	return nil
}

// Stop останавливает циклы и закрывает сессии пула. Незавершённые циклы
// получают ShutdownTimeout на выход, дальше движок считается остановленным.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return ErrEngineStopped
	}
	cancel := e.cancel
	done := e.done
	e.running = false
	e.cancel = nil
	e.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(e.cfg.ShutdownTimeout):
		e.log.Warn("циклы не завершились за отведённое время",
			zap.Duration("timeout", e.cfg.ShutdownTimeout))
	case <-ctx.Done():
		return ctx.Err()
	}

	e.deps.Pool.Close()
	EngineRunning.Set(0)
	e.log.Info("движок остановлен")
	e.notify(context.Background(), models.SeverityInfo, "Движок остановлен")
	return nil
}

// Restart перезапускает движок: пул перечитывает аккаунты из БД.
// Остановленный движок просто запускается.
func (e *Engine) Restart(ctx context.Context) error {
	if err := e.Stop(ctx); err != nil && !errors.Is(err, ErrEngineStopped) {
		return err
	}
	return e.Start(ctx)
}

// IsRunning сообщает, запущен ли движок
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Status собирает снимок состояния для операторского API.
// Работает и на остановленном движке.
func (e *Engine) Status(ctx context.Context) *models.EngineStatus {
	e.mu.Lock()
	running := e.running
	startedAt := e.startedAt
	e.mu.Unlock()

	st := &models.EngineStatus{
		Running:         running,
		Accounts:        e.deps.Pool.Runtime(),
		PendingEvidence: e.deps.Queue.Len(),
	}
	if running {
		t := startedAt
		st.StartedAt = &t
		st.Uptime = time.Since(startedAt).Truncate(time.Second).String()
	}

	if open, err := e.deps.Transactions.CountOpen(ctx); err == nil {
		st.OpenTransactions = open
		UpdateOpenTransactions(open)
	}
	UpdateQueueDepth(st.PendingEvidence)
	return st
}

// ============================================================
// Приём свидетельств
// ============================================================

// SubmitEvidence прогоняет свидетельство через сопоставитель. Первый проход
// выполняется синхронно в вызывающей горутине: оператор сразу видит исход.
// Возвраты в очередь разгребает цикл сопоставления работающего движка.
func (e *Engine) SubmitEvidence(ctx context.Context, evidence *models.PaymentEvidence) {
	e.processEvidence(ctx, evidence, 1)
	UpdateQueueDepth(e.deps.Queue.Len())
}

// processEvidence выполняет один проход и раскладывает исход: сбой
// инфраструктуры возвращает свидетельство на тот же номер попытки,
// прикладной requeue - на следующий.
func (e *Engine) processEvidence(ctx context.Context, evidence *models.PaymentEvidence, attempt int) {
	result, err := e.deps.Matcher.Process(ctx, evidence, attempt)
	if err != nil {
		e.log.Error("проход сопоставления не удался",
			zap.String("evidence_id", evidence.ID), zap.Int("attempt", attempt), zap.Error(err))
		RecordEvidenceAction("error")
		e.requeue(ctx, evidence, attempt)
		return
	}

	RecordEvidenceAction(result.Action)
	if result.Requeue {
		e.requeue(ctx, evidence, attempt+1)
	}
}

// requeue возвращает свидетельство в очередь. Переполнение очереди
// равносильно потере свидетельства - об этом узнаёт оператор.
func (e *Engine) requeue(ctx context.Context, evidence *models.PaymentEvidence, nextAttempt int) {
	if err := e.deps.Queue.Push(evidence, nextAttempt); err != nil {
		e.log.Error("свидетельство потеряно: очередь повторов переполнена",
			zap.String("evidence_id", evidence.ID), zap.Error(err))
		if e.deps.Notifier != nil {
			e.deps.Notifier.Publish(ctx, &models.Notification{
				Timestamp: time.Now(),
				Type:      models.NotificationTypeEngine,
				Severity:  models.SeverityError,
				Message:   fmt.Sprintf("Свидетельство %s потеряно: очередь повторов переполнена", evidence.ID),
			})
		}
	}
}

// ============================================================
// Циклы
// ============================================================

// guard перезапускает цикл после паники. Нормальный выход цикла
// означает ctx.Done - перезапуск не нужен.
func (e *Engine) guard(ctx context.Context, name string, fn func(context.Context)) {
	for {
		func() {
			defer func() {
				if r := recover(); r != nil {
					RecordLoopPanic(name)
					e.log.Error("паника в цикле движка",
						zap.String("loop", name),
						zap.Any("panic", r),
						zap.String("stack", string(debug.Stack())))
				}
			}()
			fn(ctx)
		}()

		if !sleep(ctx, time.Second) {
			return
		}
	}
}

// orderLoop опрашивает ордера всех аккаунтов
func (e *Engine) orderLoop(ctx context.Context) {
	for {
		if !sleep(ctx, e.interval(ctx, intervalOrders)) {
			return
		}
		e.pollAllAccounts(ctx)
	}
}

// pollAllAccounts опрашивает аккаунты параллельно: деградация одного
// аккаунта не задерживает остальные
func (e *Engine) pollAllAccounts(ctx context.Context) {
	sessions := e.deps.Pool.Sessions()
	if len(sessions) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, sess := range sessions {
		wg.Add(1)
		go func(accountID int64) {
			defer wg.Done()

			started := time.Now()
			stats, err := e.deps.Tracker.PollAccount(ctx, accountID)
			RecordPollCycle(err, time.Since(started).Seconds(), stats.Observed)
			if err != nil && !errors.Is(err, context.Canceled) {
				e.log.Warn("опрос аккаунта не удался",
					utils.AccountID(accountID), zap.Error(err))
			}
		}(sess.Account.ID)
	}
	wg.Wait()
}

// chatLoop синхронизирует переписку открытых сделок и запускает автоответчик
func (e *Engine) chatLoop(ctx context.Context) {
	for {
		if !sleep(ctx, e.interval(ctx, intervalChat)) {
			return
		}

		open, err := e.deps.Transactions.GetOpen(ctx)
		if err != nil {
			e.log.Error("открытые сделки не загрузились", zap.Error(err))
			continue
		}
		UpdateOpenTransactions(len(open))

		for _, tx := range open {
			if ctx.Err() != nil {
				return
			}
			if err := e.deps.Tracker.SyncChat(ctx, tx); err != nil {
				e.log.Warn("синхронизация чата не удалась",
					utils.TransactionID(tx.ID), zap.Error(err))
			}
		}

		stats, err := e.deps.Chat.ProcessUnprocessed(ctx)
		if err != nil {
			e.log.Warn("проход автоответчика не удался", zap.Error(err))
			continue
		}
		RecordChatPass(stats.Replied, stats.Unmatched)
	}
}

// matchLoop разгребает очередь отложенных свидетельств
func (e *Engine) matchLoop(ctx context.Context) {
	interval := e.cfg.RequeueSweepInterval
	for {
		if !sleep(ctx, interval) {
			return
		}

		items := e.deps.Queue.Drain()
		for i, item := range items {
			if ctx.Err() != nil {
				// Остановка движка: непройденный хвост возвращается в очередь
				for _, rest := range items[i:] {
					_ = e.deps.Queue.Push(rest.Evidence, rest.Attempt)
				}
				return
			}
			e.processEvidence(ctx, item.Evidence, item.Attempt)
		}
		UpdateQueueDepth(e.deps.Queue.Len())
	}
}

// adLoop размещает объявления под открытые выплаты, пересчитывает
// float-цены и убирает осиротевшие объявления
func (e *Engine) adLoop(ctx context.Context) {
	for {
		if !sleep(ctx, e.interval(ctx, intervalAds)) {
			return
		}

		e.placeOpenPayouts(ctx)

		if _, err := e.deps.Ads.RefreshPrices(ctx); err != nil && !errors.Is(err, context.Canceled) {
			e.log.Warn("пересчёт цен не удался", zap.Error(err))
		}
		if _, err := e.deps.Ads.SweepOrphans(ctx); err != nil && !errors.Is(err, context.Canceled) {
			e.log.Warn("уборка осиротевших объявлений не удалась", zap.Error(err))
		}
	}
}

// placeOpenPayouts размещает объявление под каждую открытую выплату
func (e *Engine) placeOpenPayouts(ctx context.Context) {
	open, err := e.deps.Payouts.GetByStatus(ctx, models.PayoutStatusOpen)
	if err != nil {
		e.log.Error("открытые выплаты не загрузились", zap.Error(err))
		return
	}

	for _, payout := range open {
		if ctx.Err() != nil {
			return
		}

		_, err := e.deps.Ads.CreateForPayout(ctx, payout.ID)
		switch {
		case err == nil:
		case errors.Is(err, ErrAdAlreadyPlaced):
			// Объявление уже висит - штатно
		case errors.Is(err, pool.ErrNoCapacity):
			// Слоты кончились: остаток выплат подождёт следующего прохода
			e.log.Info("слоты под объявления исчерпаны",
				utils.PayoutID(payout.ID))
			return
		default:
			e.log.Warn("объявление под выплату не разместилось",
				utils.PayoutID(payout.ID), zap.Error(err))
		}
	}
}

// retentionLoop удаляет закрытые сделки и переписку старше срока хранения
func (e *Engine) retentionLoop(ctx context.Context) {
	for {
		if !sleep(ctx, e.cfg.RetentionSweepInterval) {
			return
		}

		cutoff := time.Now().AddDate(0, 0, -e.cfg.RetentionDays)

		// Переписка первой: у сообщений внешний ключ на сделки
		msgs, err := e.deps.Messages.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			e.log.Error("очистка переписки не удалась", zap.Error(err))
			continue
		}
		txs, err := e.deps.Transactions.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			e.log.Error("очистка сделок не удалась", zap.Error(err))
			continue
		}
		if msgs > 0 || txs > 0 {
			e.log.Info("срок хранения отработал",
				zap.Int64("messages", msgs), zap.Int64("transactions", txs),
				zap.Time("cutoff", cutoff))
		}
	}
}

// ============================================================
// Вспомогательные
// ============================================================

const (
	intervalOrders = "orders"
	intervalChat   = "chat"
	intervalAds    = "ads"
)

// interval возвращает период цикла из настроек. При недоступных настройках
// работает период из конфигурации процесса.
func (e *Engine) interval(ctx context.Context, kind string) time.Duration {
	var fallback time.Duration
	switch kind {
	case intervalOrders:
		fallback = e.cfg.OrderPollInterval
	case intervalChat:
		fallback = e.cfg.ChatPollInterval
	default:
		fallback = e.cfg.AdRefreshInterval
	}

	settings, err := e.deps.Settings.Get(ctx)
	if err != nil {
		return fallback
	}

	var d time.Duration
	switch kind {
	case intervalOrders:
		d = settings.OrderPollInterval()
	case intervalChat:
		d = settings.ChatPollInterval()
	default:
		d = settings.AdRefreshInterval()
	}
	if d <= 0 {
		return fallback
	}
	return d
}

// sleep ждёт срок или отмену контекста. false означает отмену.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// notify пишет уведомление о событии движка
func (e *Engine) notify(ctx context.Context, severity, message string) {
	if e.deps.Notifier == nil {
		return
	}
	e.deps.Notifier.Publish(ctx, &models.Notification{
		Timestamp: time.Now(),
		Type:      models.NotificationTypeEngine,
		Severity:  severity,
		Message:   message,
	})
}
