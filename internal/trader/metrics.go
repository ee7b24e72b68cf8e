package trader

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики движка
// ============================================================
//
// Что смотреть в Grafana:
// - темп появления сделок и распределение их исходов
// - длительность опросов: рост говорит о деградации площадки
// - глубину очереди доказательств: рост означает застрявшие платежи

// ============ Опрос площадки ============

// PollCycles - завершённые опросы ордеров по аккаунтам
var PollCycles = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "p2pdesk",
		Subsystem: "engine",
		Name:      "poll_cycles_total",
		Help:      "Completed order poll cycles per account",
	},
	[]string{"result"}, // ok, error
)

// PollDuration - длительность одного опроса аккаунта
var PollDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "p2pdesk",
		Subsystem: "engine",
		Name:      "poll_duration_seconds",
		Help:      "Duration of a single account order poll",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	},
)

// OrdersObserved - ордера, увиденные в ответах площадки
var OrdersObserved = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "p2pdesk",
		Subsystem: "engine",
		Name:      "orders_observed_total",
		Help:      "Open orders seen in exchange poll responses",
	},
)

// ============ Сделки ============

// TransactionsCreated - заведённые сделки
var TransactionsCreated = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "p2pdesk",
		Subsystem: "trading",
		Name:      "transactions_created_total",
		Help:      "Transactions created from observed orders",
	},
)

// StatusTransitions - переходы статуса сделок
var StatusTransitions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "p2pdesk",
		Subsystem: "trading",
		Name:      "status_transitions_total",
		Help:      "Transaction status transitions by target status",
	},
	[]string{"to"},
)

// OpenTransactions - открытые сделки в данный момент
var OpenTransactions = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "p2pdesk",
		Subsystem: "trading",
		Name:      "open_transactions",
		Help:      "Transactions currently in a non-terminal status",
	},
)

// ============ Объявления ============

// AdLifecycle - события жизненного цикла объявлений
var AdLifecycle = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "p2pdesk",
		Subsystem: "ads",
		Name:      "lifecycle_events_total",
		Help:      "Advertisement lifecycle events",
	},
	[]string{"action"}, // created, deleted
)

// AdPriceUpdates - обновления цен плавающих объявлений
var AdPriceUpdates = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "p2pdesk",
		Subsystem: "ads",
		Name:      "price_updates_total",
		Help:      "Advertisement price updates applied during refresh",
	},
)

// ============ Чат ============

// ChatReplies - автоответы, отправленные в чаты сделок
var ChatReplies = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "p2pdesk",
		Subsystem: "chat",
		Name:      "replies_total",
		Help:      "Automatic replies sent to order chats",
	},
)

// ChatUnmatched - сообщения без подходящего шаблона
var ChatUnmatched = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "p2pdesk",
		Subsystem: "chat",
		Name:      "unmatched_total",
		Help:      "Counterparty messages with no matching template",
	},
)

// ============ Сопоставление платежей ============

// EvidenceActions - исходы обработки платёжных доказательств
var EvidenceActions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "p2pdesk",
		Subsystem: "matching",
		Name:      "evidence_actions_total",
		Help:      "Payment evidence processing outcomes",
	},
	[]string{"action"}, // matched, ambiguous, requeued, unmatched, blacklisted, error
)

// EvidenceQueueDepth - глубина очереди отложенных доказательств
var EvidenceQueueDepth = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "p2pdesk",
		Subsystem: "matching",
		Name:      "evidence_queue_depth",
		Help:      "Payment evidence items waiting for a retry",
	},
)

// ============ Движок ============

// EngineRunning - признак работающего движка
var EngineRunning = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "p2pdesk",
		Subsystem: "engine",
		Name:      "running",
		Help:      "Engine run state (1=running, 0=stopped)",
	},
)

// LoopPanics - паники, пойманные в циклах движка
var LoopPanics = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "p2pdesk",
		Subsystem: "engine",
		Name:      "loop_panics_total",
		Help:      "Panics recovered inside engine loops",
	},
	[]string{"loop"},
)

// ============ Вспомогательные функции ============

// RecordPollCycle записывает завершённый опрос аккаунта
func RecordPollCycle(err error, seconds float64, observed int) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	PollCycles.WithLabelValues(result).Inc()
	PollDuration.Observe(seconds)
	if observed > 0 {
		OrdersObserved.Add(float64(observed))
	}
}

// RecordTransactionCreated записывает заведённую сделку
func RecordTransactionCreated() {
	TransactionsCreated.Inc()
}

// RecordStatusTransition записывает переход статуса
func RecordStatusTransition(to string) {
	StatusTransitions.WithLabelValues(to).Inc()
}

// RecordAdLifecycle записывает событие жизненного цикла объявления
func RecordAdLifecycle(action string) {
	AdLifecycle.WithLabelValues(action).Inc()
}

// RecordPriceRefresh записывает применённые обновления цен
func RecordPriceRefresh(updated int) {
	AdPriceUpdates.Add(float64(updated))
}

// RecordChatPass записывает итог прохода автоответчика
func RecordChatPass(replied, unmatched int) {
	if replied > 0 {
		ChatReplies.Add(float64(replied))
	}
	if unmatched > 0 {
		ChatUnmatched.Add(float64(unmatched))
	}
}

// RecordEvidenceAction записывает исход обработки доказательства
func RecordEvidenceAction(action string) {
	EvidenceActions.WithLabelValues(action).Inc()
}

// RecordLoopPanic записывает пойманную панику цикла
func RecordLoopPanic(loop string) {
	LoopPanics.WithLabelValues(loop).Inc()
}

// UpdateQueueDepth обновляет глубину очереди доказательств
func UpdateQueueDepth(n int) {
	EvidenceQueueDepth.Set(float64(n))
}

// UpdateOpenTransactions обновляет счётчик открытых сделок
func UpdateOpenTransactions(n int) {
	OpenTransactions.Set(float64(n))
}
