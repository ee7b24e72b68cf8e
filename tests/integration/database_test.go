package integration

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"p2pdesk/internal/models"
	"p2pdesk/internal/repository"
)

// TestDatabase_SchemaCreation_Integration verifies that all tables are created
func TestDatabase_SchemaCreation_Integration(t *testing.T) {
	db, cleanup := SetupTestDB(t)
	if db == nil {
		return
	}
	defer cleanup()

	if err := initTestTables(db); err != nil {
		t.Fatalf("Failed to initialize tables: %v", err)
	}

	tables := []string{
		"exchange_accounts", "payouts", "advertisements", "transactions",
		"chat_messages", "response_groups", "chat_templates",
		"blacklist", "match_log", "notifications", "settings",
	}

	for _, table := range tables {
		var exists bool
		query := `SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_name = $1
		)`
		if err := db.QueryRow(query, table).Scan(&exists); err != nil {
			t.Fatalf("Failed to check table %s: %v", table, err)
		}
		if !exists {
			t.Errorf("Table %s does not exist", table)
		}
	}
}

// TestDatabase_PayoutRepository_Integration проверяет жизненный цикл выплаты:
// open -> linked -> settled, с blacklist/unblacklist между делом
func TestDatabase_PayoutRepository_Integration(t *testing.T) {
	db, cleanup := SetupTestDB(t)
	if db == nil {
		return
	}
	defer cleanup()

	if err := initTestTables(db); err != nil {
		t.Fatalf("Failed to initialize tables: %v", err)
	}
	defer TruncateTable(db, "payouts")

	repo := repository.NewPayoutRepository(db)
	ctx := context.Background()

	payout := &models.Payout{
		ID:       uuid.NewString(),
		Amount:   decimal.RequireFromString("5000"),
		Currency: "RUB",
		Wallet:   "79001234567",
		Bank:     "sber",
		Status:   models.PayoutStatusOpen,
	}

	if err := repo.Create(ctx, payout); err != nil {
		t.Fatalf("Failed to create payout: %v", err)
	}

	got, err := repo.GetByID(ctx, payout.ID)
	if err != nil {
		t.Fatalf("Failed to get payout: %v", err)
	}
	if got.Status != models.PayoutStatusOpen {
		t.Errorf("Expected status open, got %s", got.Status)
	}
	if !got.Amount.Equal(payout.Amount) {
		t.Errorf("Expected amount %s, got %s", payout.Amount, got.Amount)
	}

	// Привязка к сделке
	if err := repo.Link(ctx, payout.ID, 42); err != nil {
		t.Fatalf("Failed to link payout: %v", err)
	}
	linked, err := repo.GetLinkedByCurrency(ctx, "RUB")
	if err != nil {
		t.Fatalf("Failed to get linked payouts: %v", err)
	}
	if len(linked) != 1 {
		t.Fatalf("Expected 1 linked payout, got %d", len(linked))
	}
	if linked[0].TransactionID == nil || *linked[0].TransactionID != 42 {
		t.Errorf("Expected transaction 42, got %v", linked[0].TransactionID)
	}

	// Блокировка и снятие блокировки
	if err := repo.MarkBlacklisted(ctx, payout.ID); err != nil {
		t.Fatalf("Failed to blacklist payout: %v", err)
	}
	if err := repo.Unblacklist(ctx, payout.ID); err != nil {
		t.Fatalf("Failed to unblacklist payout: %v", err)
	}
	got, err = repo.GetByID(ctx, payout.ID)
	if err != nil {
		t.Fatalf("Failed to get payout after unblacklist: %v", err)
	}
	if got.Status != models.PayoutStatusOpen {
		t.Errorf("Expected status open after unblacklist, got %s", got.Status)
	}

	// Закрытие
	if err := repo.Link(ctx, payout.ID, 42); err != nil {
		t.Fatalf("Failed to relink payout: %v", err)
	}
	if err := repo.Settle(ctx, payout.ID, time.Now()); err != nil {
		t.Fatalf("Failed to settle payout: %v", err)
	}
	got, err = repo.GetByID(ctx, payout.ID)
	if err != nil {
		t.Fatalf("Failed to get settled payout: %v", err)
	}
	if got.Status != models.PayoutStatusSettled {
		t.Errorf("Expected status settled, got %s", got.Status)
	}
	if got.SettledAt == nil {
		t.Error("Expected settled_at to be set")
	}

	count, err := repo.CountByStatus(ctx, models.PayoutStatusSettled)
	if err != nil {
		t.Fatalf("Failed to count payouts: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 settled payout, got %d", count)
	}
}

// TestDatabase_TransactionRepository_Integration проверяет создание сделки
// и переходы статуса
func TestDatabase_TransactionRepository_Integration(t *testing.T) {
	db, cleanup := SetupTestDB(t)
	if db == nil {
		return
	}
	defer cleanup()

	if err := initTestTables(db); err != nil {
		t.Fatalf("Failed to initialize tables: %v", err)
	}
	defer TruncateTable(db, "transactions")

	repo := repository.NewTransactionRepository(db)
	ctx := context.Background()

	tx := &models.Transaction{
		OrderID:     "order-integration-1",
		Status:      models.TxStatusPending,
		Side:        models.AdSideSell,
		Asset:       "USDT",
		Fiat:        "RUB",
		FiatAmount:  decimal.RequireFromString("5000"),
		AssetAmount: decimal.RequireFromString("52.3"),
		Price:       decimal.RequireFromString("95.6"),
	}

	if err := repo.Create(ctx, tx); err != nil {
		t.Fatalf("Failed to create transaction: %v", err)
	}
	if tx.ID == 0 {
		t.Fatal("Expected transaction ID to be assigned")
	}

	// Дубликат order_id не создаёт вторую сделку
	dup := &models.Transaction{
		OrderID:     "order-integration-1",
		Status:      models.TxStatusPending,
		Side:        models.AdSideSell,
		Asset:       "USDT",
		Fiat:        "RUB",
		FiatAmount:  decimal.RequireFromString("5000"),
		AssetAmount: decimal.RequireFromString("52.3"),
		Price:       decimal.RequireFromString("95.6"),
	}
	if err := repo.Create(ctx, dup); err == nil {
		t.Error("Expected error on duplicate order_id")
	}

	if err := repo.UpdateStatus(ctx, tx.ID, models.TxStatusWaitingPayment, nil); err != nil {
		t.Fatalf("Failed to update status: %v", err)
	}

	open, err := repo.GetOpen(ctx)
	if err != nil {
		t.Fatalf("Failed to get open transactions: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("Expected 1 open transaction, got %d", len(open))
	}

	completedAt := time.Now()
	if err := repo.UpdateStatus(ctx, tx.ID, models.TxStatusCompleted, &completedAt); err != nil {
		t.Fatalf("Failed to complete transaction: %v", err)
	}

	got, err := repo.GetByID(ctx, tx.ID)
	if err != nil {
		t.Fatalf("Failed to get completed transaction: %v", err)
	}
	if got.Status != models.TxStatusCompleted {
		t.Errorf("Expected status completed, got %s", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("Expected completed_at to be set")
	}

	countOpen, err := repo.CountOpen(ctx)
	if err != nil {
		t.Fatalf("Failed to count open: %v", err)
	}
	if countOpen != 0 {
		t.Errorf("Expected 0 open transactions, got %d", countOpen)
	}
}

// TestDatabase_ChatRepository_Integration проверяет дедупликацию сообщений
// по (transaction_id, external_id)
func TestDatabase_ChatRepository_Integration(t *testing.T) {
	db, cleanup := SetupTestDB(t)
	if db == nil {
		return
	}
	defer cleanup()

	if err := initTestTables(db); err != nil {
		t.Fatalf("Failed to initialize tables: %v", err)
	}
	defer TruncateTable(db, "transactions")

	txRepo := repository.NewTransactionRepository(db)
	chatRepo := repository.NewChatRepository(db)
	ctx := context.Background()

	tx := &models.Transaction{
		OrderID:     "order-chat-1",
		Status:      models.TxStatusWaitingPayment,
		Side:        models.AdSideSell,
		Asset:       "USDT",
		Fiat:        "RUB",
		FiatAmount:  decimal.RequireFromString("3000"),
		AssetAmount: decimal.RequireFromString("31.4"),
		Price:       decimal.RequireFromString("95.5"),
	}
	if err := txRepo.Create(ctx, tx); err != nil {
		t.Fatalf("Failed to create transaction: %v", err)
	}

	msg := &models.ChatMessage{
		TransactionID: tx.ID,
		ExternalID:    "ext-msg-1",
		Sender:        models.ChatSenderCounterparty,
		Type:          models.ChatMessageTypeText,
		Content:       "оплатил",
	}
	if err := chatRepo.SaveMessage(ctx, msg); err != nil {
		t.Fatalf("Failed to save message: %v", err)
	}

	// Повторный опрос приносит то же сообщение - дубликат игнорируется
	again := &models.ChatMessage{
		TransactionID: tx.ID,
		ExternalID:    "ext-msg-1",
		Sender:        models.ChatSenderCounterparty,
		Type:          models.ChatMessageTypeText,
		Content:       "оплатил",
	}
	if err := chatRepo.SaveMessage(ctx, again); err != nil {
		t.Fatalf("Duplicate save should not error: %v", err)
	}

	count, err := chatRepo.CountByTransaction(ctx, tx.ID)
	if err != nil {
		t.Fatalf("Failed to count messages: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 message after duplicate save, got %d", count)
	}

	unprocessed, err := chatRepo.GetUnprocessed(ctx)
	if err != nil {
		t.Fatalf("Failed to get unprocessed: %v", err)
	}
	if len(unprocessed) != 1 {
		t.Fatalf("Expected 1 unprocessed message, got %d", len(unprocessed))
	}

	if err := chatRepo.MarkProcessed(ctx, []int64{unprocessed[0].ID}); err != nil {
		t.Fatalf("Failed to mark processed: %v", err)
	}
	unprocessed, err = chatRepo.GetUnprocessed(ctx)
	if err != nil {
		t.Fatalf("Failed to get unprocessed after mark: %v", err)
	}
	if len(unprocessed) != 0 {
		t.Errorf("Expected 0 unprocessed messages, got %d", len(unprocessed))
	}
}

// TestDatabase_TemplateRepository_Integration проверяет каскадное удаление
// шаблонов вместе с группой
func TestDatabase_TemplateRepository_Integration(t *testing.T) {
	db, cleanup := SetupTestDB(t)
	if db == nil {
		return
	}
	defer cleanup()

	if err := initTestTables(db); err != nil {
		t.Fatalf("Failed to initialize tables: %v", err)
	}
	defer TruncateTable(db, "response_groups")

	repo := repository.NewTemplateRepository(db)
	ctx := context.Background()

	group := &models.ResponseGroup{Name: "Оплата", Active: true}
	if err := repo.CreateGroup(ctx, group); err != nil {
		t.Fatalf("Failed to create group: %v", err)
	}

	nextStatus := models.TxStatusPaymentReceived
	tpl := &models.ChatTemplate{
		GroupID:    group.ID,
		Keywords:   "paid,оплатил,перевел",
		Reply:      "Проверяем платёж",
		Priority:   10,
		NextStatus: &nextStatus,
		Active:     true,
	}
	if err := repo.CreateTemplate(ctx, tpl); err != nil {
		t.Fatalf("Failed to create template: %v", err)
	}

	active, err := repo.GetActiveTemplates(ctx)
	if err != nil {
		t.Fatalf("Failed to get active templates: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("Expected 1 active template, got %d", len(active))
	}

	// Выключенная группа прячет свои шаблоны из рабочего набора
	if err := repo.SetGroupActive(ctx, group.ID, false); err != nil {
		t.Fatalf("Failed to deactivate group: %v", err)
	}
	active, err = repo.GetActiveTemplates(ctx)
	if err != nil {
		t.Fatalf("Failed to get active templates: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("Expected 0 active templates with inactive group, got %d", len(active))
	}

	// Удаление группы уносит шаблоны
	if err := repo.DeleteGroup(ctx, group.ID); err != nil {
		t.Fatalf("Failed to delete group: %v", err)
	}
	if _, err := repo.GetTemplateByID(ctx, tpl.ID); err == nil {
		t.Error("Expected template to be deleted with its group")
	}
}

// TestDatabase_MatchLogRepository_Integration проверяет журнал сопоставления
// и агрегацию статистики
func TestDatabase_MatchLogRepository_Integration(t *testing.T) {
	db, cleanup := SetupTestDB(t)
	if db == nil {
		return
	}
	defer cleanup()

	if err := initTestTables(db); err != nil {
		t.Fatalf("Failed to initialize tables: %v", err)
	}
	defer TruncateTable(db, "match_log")

	repo := repository.NewMatchLogRepository(db)
	ctx := context.Background()

	payoutID := uuid.NewString()
	txID := int64(7)
	entries := []*models.MatchLogEntry{
		{
			EvidenceID:     "ev-1",
			Action:         models.MatchActionRequeued,
			Amount:         decimal.RequireFromString("5000"),
			Currency:       "RUB",
			Source:         models.EvidenceSourceSMS,
			CandidateCount: 0,
			Attempt:        1,
		},
		{
			EvidenceID:     "ev-1",
			Action:         models.MatchActionMatched,
			Amount:         decimal.RequireFromString("5000"),
			Currency:       "RUB",
			Source:         models.EvidenceSourceSMS,
			CandidateCount: 1,
			PayoutID:       &payoutID,
			TransactionID:  &txID,
			Attempt:        2,
			ProcessingMs:   12,
		},
		{
			EvidenceID: "ev-2",
			Action:     models.MatchActionUnmatched,
			Amount:     decimal.RequireFromString("990"),
			Currency:   "RUB",
			Source:     models.EvidenceSourcePush,
			Attempt:    1,
		},
	}
	for _, e := range entries {
		if err := repo.Create(ctx, e); err != nil {
			t.Fatalf("Failed to create match log entry: %v", err)
		}
	}

	history, err := repo.GetByEvidence(ctx, "ev-1")
	if err != nil {
		t.Fatalf("Failed to get evidence history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("Expected 2 passes for ev-1, got %d", len(history))
	}

	matched, err := repo.GetByAction(ctx, models.MatchActionMatched, 100)
	if err != nil {
		t.Fatalf("Failed to get matched entries: %v", err)
	}
	if len(matched) != 1 {
		t.Fatalf("Expected 1 matched entry, got %d", len(matched))
	}
	if matched[0].PayoutID == nil || *matched[0].PayoutID != payoutID {
		t.Errorf("Expected payout %s, got %v", payoutID, matched[0].PayoutID)
	}

	stats, err := repo.Stats(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	if stats.TotalEvidence != 3 {
		t.Errorf("Expected 3 total entries, got %d", stats.TotalEvidence)
	}
	if stats.Matched != 1 || stats.Unmatched != 1 || stats.Requeued != 1 {
		t.Errorf("Unexpected stats breakdown: %+v", stats)
	}
	if !stats.MatchedAmount.Equal(decimal.RequireFromString("5000")) {
		t.Errorf("Expected matched amount 5000, got %s", stats.MatchedAmount)
	}
}

// TestDatabase_SettingsRepository_Integration проверяет, что Get создаёт
// настройки по умолчанию, а Update их меняет
func TestDatabase_SettingsRepository_Integration(t *testing.T) {
	db, cleanup := SetupTestDB(t)
	if db == nil {
		return
	}
	defer cleanup()

	if err := initTestTables(db); err != nil {
		t.Fatalf("Failed to initialize tables: %v", err)
	}
	defer TruncateTable(db, "settings")

	repo := repository.NewSettingsRepository(db)
	ctx := context.Background()

	settings, err := repo.Get(ctx)
	if err != nil {
		t.Fatalf("Failed to get settings: %v", err)
	}
	if settings.OrderPollSeconds <= 0 {
		t.Errorf("Expected positive default poll interval, got %d", settings.OrderPollSeconds)
	}

	settings.OrderPollSeconds = 10
	settings.ZeroCandidatePolicy = models.ZeroCandidateRequeue
	if err := repo.Update(ctx, settings); err != nil {
		t.Fatalf("Failed to update settings: %v", err)
	}

	got, err := repo.Get(ctx)
	if err != nil {
		t.Fatalf("Failed to get updated settings: %v", err)
	}
	if got.OrderPollSeconds != 10 {
		t.Errorf("Expected poll interval 10, got %d", got.OrderPollSeconds)
	}
	if got.ZeroCandidatePolicy != models.ZeroCandidateRequeue {
		t.Errorf("Expected requeue policy, got %s", got.ZeroCandidatePolicy)
	}
}

// TestDatabase_ConcurrentAccess_Integration проверяет конкурентную запись
// выплат и резервирование слотов объявлений
func TestDatabase_ConcurrentAccess_Integration(t *testing.T) {
	db, cleanup := SetupTestDB(t)
	if db == nil {
		return
	}
	defer cleanup()

	if err := initTestTables(db); err != nil {
		t.Fatalf("Failed to initialize tables: %v", err)
	}
	defer func() {
		TruncateTable(db, "payouts")
		TruncateTable(db, "exchange_accounts")
	}()

	payoutRepo := repository.NewPayoutRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	ctx := context.Background()

	var wg sync.WaitGroup
	const writers = 10

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			p := &models.Payout{
				ID:       uuid.NewString(),
				Amount:   decimal.RequireFromString(fmt.Sprintf("%d", 1000+n)),
				Currency: "RUB",
				Wallet:   fmt.Sprintf("7900123456%d", n),
				Status:   models.PayoutStatusOpen,
			}
			if err := payoutRepo.Create(ctx, p); err != nil {
				t.Errorf("Concurrent payout create failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	count, err := payoutRepo.CountByStatus(ctx, models.PayoutStatusOpen)
	if err != nil {
		t.Fatalf("Failed to count payouts: %v", err)
	}
	if count != writers {
		t.Errorf("Expected %d payouts, got %d", writers, count)
	}

	// Резервирование слотов: лимит не превышается при гонке
	acc := &models.ExchangeAccount{
		Label:        "concurrent-test",
		APIKey:       "enc-key",
		SecretKey:    "enc-secret",
		Active:       true,
		MaxActiveAds: 2,
	}
	if err := accountRepo.Create(ctx, acc); err != nil {
		t.Fatalf("Failed to create account: %v", err)
	}

	var reserved sync.Map
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ok, err := accountRepo.ReserveAdSlot(ctx, acc.ID)
			if err != nil {
				t.Errorf("ReserveAdSlot failed: %v", err)
				return
			}
			if ok {
				reserved.Store(n, true)
			}
		}(i)
	}
	wg.Wait()

	total := 0
	reserved.Range(func(_, _ interface{}) bool {
		total++
		return true
	})
	if total != 2 {
		t.Errorf("Expected exactly 2 reserved slots, got %d", total)
	}
}

// TestDatabase_MigrationIdempotency_Integration проверяет повторное
// применение DDL
func TestDatabase_MigrationIdempotency_Integration(t *testing.T) {
	db, cleanup := SetupTestDB(t)
	if db == nil {
		return
	}
	defer cleanup()

	for i := 0; i < 3; i++ {
		if err := initTestTables(db); err != nil {
			t.Fatalf("Iteration %d: initTestTables failed: %v", i, err)
		}
	}
}
