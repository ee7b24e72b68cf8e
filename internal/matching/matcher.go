// Package matching сопоставляет платёжные свидетельства (банковские
// уведомления о входящих переводах) с открытыми выплатами и закрывает
// сделки по подтверждённым платежам. Каждый проход по свидетельству
// оставляет запись в журнале сопоставления независимо от исхода.
package matching

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"p2pdesk/internal/models"
	"p2pdesk/internal/repository"
	"p2pdesk/pkg/utils"
)

// ============================================================
// Зависимости
// ============================================================

// PayoutStore - выборка кандидатов и смена статусов выплат.
type PayoutStore interface {
	GetLinkedByCurrency(ctx context.Context, currency string) ([]*models.Payout, error)
	Settle(ctx context.Context, id string, settledAt time.Time) error
	MarkBlacklisted(ctx context.Context, id string) error
}

// BlacklistStore - журнал заблокированных реквизитов.
type BlacklistStore interface {
	Create(ctx context.Context, entry *models.BlacklistedTransaction) error
}

// LogStore - журнал проходов сопоставителя.
type LogStore interface {
	Create(ctx context.Context, entry *models.MatchLogEntry) error
}

// SettingsStore - чтение настроек (допуск, окно, политика правятся на лету).
type SettingsStore interface {
	Get(ctx context.Context) (*models.Settings, error)
}

// TransactionCompleter переводит сделку в completed. Реализуется трекером:
// переход идёт через общую state machine и блокировку сделки, повторный
// вызов для уже закрытой сделки не считается ошибкой.
type TransactionCompleter interface {
	Complete(ctx context.Context, transactionID int64) error
}

// Notifier публикует уведомление операторской ленты. Допускается nil.
type Notifier interface {
	Publish(ctx context.Context, n *models.Notification)
}

// EventSink получает события сопоставления для websocket-ленты. Допускается nil.
type EventSink interface {
	EvidenceMatched(evidence *models.PaymentEvidence, payoutID string, transactionID int64)
}

// Deps - зависимости сопоставителя.
type Deps struct {
	Payouts   PayoutStore
	Blacklist BlacklistStore
	Log       LogStore
	Settings  SettingsStore
	Completer TransactionCompleter
	Notifier  Notifier  // допускается nil
	Events    EventSink // допускается nil
}

// ============================================================
// Сопоставитель
// ============================================================

// Result - исход одного прохода по свидетельству.
type Result struct {
	Action     string         // models.MatchAction*
	Candidates int            // сколько выплат прошло фильтры
	Payout     *models.Payout // заполнен при action=matched
	Requeue    bool           // свидетельство нужно вернуть в очередь
}

// Matcher выполняет проходы сопоставления. Кандидаты - привязанные выплаты
// в валюте свидетельства: у каждой есть живая сделка, ожидающая перевода.
// Выплата без сделки достижима через requeue: опрос ордеров успеет создать
// и привязать сделку к следующему проходу.
type Matcher struct {
	deps Deps
	log  *utils.Logger
}

// NewMatcher создает сопоставитель
func NewMatcher(deps Deps) *Matcher {
	return &Matcher{
		deps: deps,
		log:  utils.GetGlobalLogger().WithComponent("matching"),
	}
}

// Process выполняет один проход по свидетельству. attempt нумеруется с 1
// и растёт при каждом возврате из очереди.
//
// Ошибка возвращается только при сбое выборки кандидатов или настроек:
// прикладные исходы (нет кандидатов, неоднозначность, дубль реквизитов)
// выражаются действием в Result и записью в журнале.
func (m *Matcher) Process(ctx context.Context, evidence *models.PaymentEvidence, attempt int) (*Result, error) {
	started := time.Now()

	settings, err := m.deps.Settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	candidates, err := m.deps.Payouts.GetLinkedByCurrency(ctx, evidence.Currency)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate payouts: %w", err)
	}

	matched := filterCandidates(evidence, candidates, settings.MatchTolerance, settings.MatchWindow())

	var result *Result
	switch len(matched) {
	case 1:
		result = m.settle(ctx, evidence, matched[0], settings, attempt)
	case 0:
		result = m.zeroCandidates(evidence, settings, attempt)
	default:
		result = m.ambiguous(ctx, evidence, matched)
	}

	m.writeLog(ctx, evidence, result, attempt, time.Since(started))
	return result, nil
}

// settle применяет единственное совпадение: сделка закрывается первой,
// выплата гасится второй. Сбой на любом шаге возвращает свидетельство
// в очередь: оба шага идемпотентны, повторный проход доведёт дело.
func (m *Matcher) settle(ctx context.Context, evidence *models.PaymentEvidence, payout *models.Payout, settings *models.Settings, attempt int) *Result {
	log := m.log.With(utils.PayoutID(payout.ID), zap.String("evidence_id", evidence.ID))

	if payout.TransactionID == nil {
		// Кандидаты выбираются по статусу linked, привязка обязана быть
		log.Error("linked payout without transaction")
		return &Result{Action: models.MatchActionUnmatched, Candidates: 1}
	}
	txID := *payout.TransactionID

	if err := m.deps.Completer.Complete(ctx, txID); err != nil {
		log.Warn("failed to complete transaction, evidence requeued", zap.Error(err))
		return m.retryable(evidence, settings, attempt, 1)
	}

	if err := m.deps.Payouts.Settle(ctx, payout.ID, time.Now()); err != nil {
		log.Warn("failed to settle payout, evidence requeued", zap.Error(err))
		return m.retryable(evidence, settings, attempt, 1)
	}

	log.Info("платёж сопоставлен, сделка закрыта",
		utils.TransactionID(txID),
		utils.Amount(evidence.Amount),
		utils.Currency(evidence.Currency),
		zap.Int("attempt", attempt))

	m.notify(ctx, &models.Notification{
		Type:          models.NotificationTypeMatch,
		Severity:      models.SeverityInfo,
		TransactionID: &txID,
		Message:       fmt.Sprintf("Платёж %s %s сопоставлен с выплатой", evidence.Amount, evidence.Currency),
		Meta:          map[string]interface{}{"payout_id": payout.ID, "evidence_id": evidence.ID},
	})
	if m.deps.Events != nil {
		m.deps.Events.EvidenceMatched(evidence, payout.ID, txID)
	}

	return &Result{Action: models.MatchActionMatched, Candidates: 1, Payout: payout}
}

// zeroCandidates применяет политику пустой выборки: discard или
// ограниченный возврат в очередь.
func (m *Matcher) zeroCandidates(evidence *models.PaymentEvidence, settings *models.Settings, attempt int) *Result {
	result := m.retryable(evidence, settings, attempt, 0)
	if result.Action == models.MatchActionUnmatched {
		m.log.Info("свидетельство без кандидатов отброшено",
			zap.String("evidence_id", evidence.ID),
			utils.Amount(evidence.Amount),
			utils.Currency(evidence.Currency),
			zap.Int("attempt", attempt))
	}
	return result
}

// retryable решает, вернётся ли свидетельство в очередь: политика requeue,
// лимит проходов и TTL с момента приёма.
func (m *Matcher) retryable(evidence *models.PaymentEvidence, settings *models.Settings, attempt, candidates int) *Result {
	if settings.ZeroCandidatePolicy != models.ZeroCandidateRequeue {
		return &Result{Action: models.MatchActionUnmatched, Candidates: candidates}
	}
	if attempt >= settings.RequeueMaxAttempts {
		return &Result{Action: models.MatchActionUnmatched, Candidates: candidates}
	}
	if time.Since(evidence.ReceivedAt) >= settings.RequeueTTL() {
		return &Result{Action: models.MatchActionUnmatched, Candidates: candidates}
	}
	return &Result{Action: models.MatchActionRequeued, Candidates: candidates, Requeue: true}
}

// ambiguous обрабатывает несколько кандидатов: автопривязки нет. Дубли
// реквизитов (одинаковый отпечаток сумма+кошелёк) снимаются с работы и
// попадают в чёрный список, остальное оставляется оператору.
func (m *Matcher) ambiguous(ctx context.Context, evidence *models.PaymentEvidence, matched []*models.Payout) *Result {
	duplicates := duplicateFingerprints(matched)
	if len(duplicates) > 0 {
		return m.blacklistDuplicates(ctx, evidence, matched, duplicates)
	}

	m.log.Warn("несколько кандидатов на один платёж, нужен оператор",
		zap.String("evidence_id", evidence.ID),
		utils.Amount(evidence.Amount),
		utils.Currency(evidence.Currency),
		zap.Int("candidates", len(matched)))

	m.notify(ctx, &models.Notification{
		Type:     models.NotificationTypeAmbiguous,
		Severity: models.SeverityWarn,
		Message:  fmt.Sprintf("Платёж %s %s подходит к %d выплатам, нужен разбор", evidence.Amount, evidence.Currency, len(matched)),
		Meta:     map[string]interface{}{"evidence_id": evidence.ID, "candidates": payoutIDs(matched)},
	})

	return &Result{Action: models.MatchActionAmbiguous, Candidates: len(matched)}
}

// blacklistDuplicates блокирует выплаты с повторяющимся отпечатком:
// сопоставитель не может их различить, работать с ними дальше опасно.
func (m *Matcher) blacklistDuplicates(ctx context.Context, evidence *models.PaymentEvidence, matched []*models.Payout, duplicates map[string]bool) *Result {
	blocked := 0
	for _, p := range matched {
		if !duplicates[p.Fingerprint()] {
			continue
		}

		entry := &models.BlacklistedTransaction{
			PayoutID: p.ID,
			Wallet:   p.Wallet,
			Amount:   p.Amount,
			Currency: p.Currency,
			Reason:   fmt.Sprintf("дубль реквизитов: свидетельство %s совпало с несколькими выплатами", evidence.ID),
		}
		if err := m.deps.Blacklist.Create(ctx, entry); err != nil && !errors.Is(err, repository.ErrBlacklistEntryExists) {
			m.log.Error("failed to record blacklist entry", utils.PayoutID(p.ID), zap.Error(err))
			continue
		}
		if err := m.deps.Payouts.MarkBlacklisted(ctx, p.ID); err != nil {
			m.log.Error("failed to blacklist payout", utils.PayoutID(p.ID), zap.Error(err))
			continue
		}
		blocked++

		m.log.Warn("выплата заблокирована из-за дубля реквизитов",
			utils.PayoutID(p.ID),
			utils.Amount(p.Amount),
			zap.String("evidence_id", evidence.ID))
	}

	m.notify(ctx, &models.Notification{
		Type:     models.NotificationTypeBlacklist,
		Severity: models.SeverityWarn,
		Message:  fmt.Sprintf("Заблокировано выплат из-за дубля реквизитов: %d", blocked),
		Meta:     map[string]interface{}{"evidence_id": evidence.ID},
	})

	return &Result{Action: models.MatchActionBlacklisted, Candidates: len(matched)}
}

// writeLog пишет запись аудита. Сбой записи не меняет исход прохода:
// результат уже применён, терять его из-за журнала нельзя.
func (m *Matcher) writeLog(ctx context.Context, evidence *models.PaymentEvidence, result *Result, attempt int, elapsed time.Duration) {
	entry := &models.MatchLogEntry{
		EvidenceID:     evidence.ID,
		Action:         result.Action,
		Amount:         evidence.Amount,
		Currency:       evidence.Currency,
		WalletHint:     evidence.WalletHint,
		BankHint:       evidence.BankHint,
		Source:         evidence.Source,
		CandidateCount: result.Candidates,
		Attempt:        attempt,
		ProcessingMs:   elapsed.Milliseconds(),
	}
	if result.Payout != nil {
		entry.PayoutID = &result.Payout.ID
		entry.TransactionID = result.Payout.TransactionID
	}

	if err := m.deps.Log.Create(ctx, entry); err != nil {
		m.log.Error("failed to write match log entry",
			zap.String("evidence_id", evidence.ID), zap.Error(err))
	}
}

func (m *Matcher) notify(ctx context.Context, n *models.Notification) {
	if m.deps.Notifier != nil {
		m.deps.Notifier.Publish(ctx, n)
	}
}

// ============================================================
// Фильтры кандидатов
// ============================================================

// filterCandidates отбирает выплаты, подходящие свидетельству: сумма в
// допуске, реквизиты совпали, платёж пришёл в окне после создания выплаты.
func filterCandidates(evidence *models.PaymentEvidence, payouts []*models.Payout, tolerance decimal.Decimal, window time.Duration) []*models.Payout {
	var matched []*models.Payout
	for _, p := range payouts {
		if !utils.WithinTolerance(evidence.Amount, p.Amount, tolerance) {
			continue
		}
		if !requisitesMatch(evidence, p) {
			continue
		}
		if !utils.WindowAfter(p.CreatedAt, window).Contains(evidence.ArrivedAt) {
			continue
		}
		matched = append(matched, p)
	}
	return matched
}

// requisitesMatch сверяет реквизиты: хвост кошелька из уведомления против
// номера выплаты, при нераспознанном кошельке - банк. Совпадение только по
// сумме не принимается: без реквизитов ложные срабатывания неизбежны.
func requisitesMatch(evidence *models.PaymentEvidence, payout *models.Payout) bool {
	if hint := digitsOnly(evidence.WalletHint); hint != "" {
		if strings.HasSuffix(utils.NormalizeWallet(payout.Wallet), hint) {
			return true
		}
	}
	if evidence.BankHint != "" && payout.Bank != "" {
		if strings.EqualFold(strings.TrimSpace(evidence.BankHint), strings.TrimSpace(payout.Bank)) {
			return true
		}
	}
	return false
}

// digitsOnly оставляет из подсказки кошелька только цифры: банки маскируют
// номер по-разному ("*1234", "··1234", "карта 1234").
func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// duplicateFingerprints возвращает отпечатки, встречающиеся среди
// кандидатов более одного раза.
func duplicateFingerprints(payouts []*models.Payout) map[string]bool {
	seen := make(map[string]int, len(payouts))
	for _, p := range payouts {
		seen[p.Fingerprint()]++
	}
	duplicates := make(map[string]bool)
	for fp, n := range seen {
		if n > 1 {
			duplicates[fp] = true
		}
	}
	return duplicates
}

func payoutIDs(payouts []*models.Payout) []string {
	ids := make([]string, len(payouts))
	for i, p := range payouts {
		ids[i] = p.ID
	}
	return ids
}
