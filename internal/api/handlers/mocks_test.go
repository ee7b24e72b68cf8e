package handlers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"p2pdesk/internal/models"
	"p2pdesk/internal/service"
	"p2pdesk/internal/trader"
)

// ============ Helper errors for tests ============

var (
	ErrMockDatabase = errors.New("mock database error")
	ErrMockExchange = errors.New("mock exchange error")
)

// ============ Mock Engine Controller ============

// MockEngineController мок для EngineController
type MockEngineController struct {
	running   bool
	startErr  error
	stopErr   error
	submitted []*models.PaymentEvidence
	mu        sync.Mutex
}

func NewMockEngineController() *MockEngineController {
	return &MockEngineController{}
}

func (m *MockEngineController) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.startErr != nil {
		return m.startErr
	}
	if m.running {
		return trader.ErrEngineRunning
	}
	m.running = true
	return nil
}

func (m *MockEngineController) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopErr != nil {
		return m.stopErr
	}
	if !m.running {
		return trader.ErrEngineStopped
	}
	m.running = false
	return nil
}

func (m *MockEngineController) Restart(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.startErr != nil {
		return m.startErr
	}
	m.running = true
	return nil
}

func (m *MockEngineController) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *MockEngineController) Status(ctx context.Context) *models.EngineStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	return &models.EngineStatus{
		Running:  m.running,
		Accounts: []models.AccountRuntime{},
	}
}

func (m *MockEngineController) SubmitEvidence(ctx context.Context, evidence *models.PaymentEvidence) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitted = append(m.submitted, evidence)
}

// Submitted возвращает принятые свидетельства (для проверок в тестах)
func (m *MockEngineController) Submitted() []*models.PaymentEvidence {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.PaymentEvidence(nil), m.submitted...)
}

// ============ Mock Payout Service ============

// MockPayoutService мок для PayoutServiceInterface
type MockPayoutService struct {
	payouts   map[string]*models.Payout
	createErr error
	getErr    error
	deleteErr error
	mu        sync.RWMutex
}

func NewMockPayoutService() *MockPayoutService {
	return &MockPayoutService{
		payouts: make(map[string]*models.Payout),
	}
}

func (m *MockPayoutService) CreatePayout(ctx context.Context, req *service.CreatePayoutRequest) (*models.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return nil, m.createErr
	}
	if !req.Amount.IsPositive() {
		return nil, service.ErrInvalidPayoutAmount
	}

	payout := &models.Payout{
		ID:        uuid.NewString(),
		Amount:    req.Amount,
		Currency:  req.Currency,
		Wallet:    req.Wallet,
		Bank:      req.Bank,
		Status:    models.PayoutStatusOpen,
		CreatedAt: time.Now(),
	}
	m.payouts[payout.ID] = payout
	return payout, nil
}

func (m *MockPayoutService) GetPayouts(ctx context.Context, status string, limit int) ([]*models.Payout, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return nil, m.getErr
	}

	result := make([]*models.Payout, 0, len(m.payouts))
	for _, p := range m.payouts {
		if status == "" || p.Status == status {
			result = append(result, p)
		}
	}
	return result, nil
}

func (m *MockPayoutService) GetPayout(ctx context.Context, id string) (*models.Payout, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return nil, m.getErr
	}
	if p, exists := m.payouts[id]; exists {
		return p, nil
	}
	return nil, service.ErrPayoutNotFound
}

func (m *MockPayoutService) DeletePayout(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.deleteErr != nil {
		return m.deleteErr
	}
	p, exists := m.payouts[id]
	if !exists {
		return service.ErrPayoutNotFound
	}
	if p.Status != models.PayoutStatusOpen {
		return service.ErrPayoutNotOpen
	}
	delete(m.payouts, id)
	return nil
}

func (m *MockPayoutService) GetPayoutCounts(ctx context.Context) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return nil, m.getErr
	}

	counts := make(map[string]int)
	for _, p := range m.payouts {
		counts[p.Status]++
	}
	return counts, nil
}

// AddPayout добавляет выплату напрямую (для настройки тестов)
func (m *MockPayoutService) AddPayout(id, status, amount string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.payouts[id] = &models.Payout{
		ID:        id,
		Amount:    decimal.RequireFromString(amount),
		Currency:  "RUB",
		Wallet:    "79001234567",
		Status:    status,
		CreatedAt: time.Now(),
	}
}

// ============ Mock Transaction Service ============

// MockTransactionService мок для TransactionServiceInterface
type MockTransactionService struct {
	transactions map[int64]*models.Transaction
	messages     map[int64][]*models.ChatMessage
	getErr       error
	updateErr    error
	completeErr  error
	completed    []int64
	mu           sync.RWMutex
}

func NewMockTransactionService() *MockTransactionService {
	return &MockTransactionService{
		transactions: make(map[int64]*models.Transaction),
		messages:     make(map[int64][]*models.ChatMessage),
	}
}

func (m *MockTransactionService) GetTransactions(ctx context.Context, status string, limit int) ([]*models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return nil, m.getErr
	}

	result := make([]*models.Transaction, 0, len(m.transactions))
	for _, tx := range m.transactions {
		if status == "" || tx.Status == status {
			result = append(result, tx)
		}
	}
	return result, nil
}

func (m *MockTransactionService) GetTransaction(ctx context.Context, id int64) (*service.TransactionDetail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return nil, m.getErr
	}
	tx, exists := m.transactions[id]
	if !exists {
		return nil, service.ErrTransactionNotFound
	}

	messages := m.messages[id]
	if messages == nil {
		messages = []*models.ChatMessage{}
	}
	return &service.TransactionDetail{Transaction: tx, Messages: messages}, nil
}

func (m *MockTransactionService) SuspendChat(ctx context.Context, id int64) error {
	return m.setSuspended(id, true)
}

func (m *MockTransactionService) ResumeChat(ctx context.Context, id int64) error {
	return m.setSuspended(id, false)
}

func (m *MockTransactionService) setSuspended(id int64, suspended bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.updateErr != nil {
		return m.updateErr
	}
	tx, exists := m.transactions[id]
	if !exists {
		return service.ErrTransactionNotFound
	}
	if tx.IsTerminal() {
		return service.ErrTransactionClosed
	}
	tx.ChatSuspended = suspended
	return nil
}

func (m *MockTransactionService) CompleteTransaction(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.completeErr != nil {
		return m.completeErr
	}
	tx, exists := m.transactions[id]
	if !exists {
		return service.ErrTransactionNotFound
	}
	if tx.IsTerminal() {
		return service.ErrTransactionClosed
	}
	tx.Status = models.TxStatusCompleted
	m.completed = append(m.completed, id)
	return nil
}

func (m *MockTransactionService) GetTransactionCounts(ctx context.Context) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return nil, m.getErr
	}

	counts := make(map[string]int)
	for _, tx := range m.transactions {
		counts[tx.Status]++
	}
	return counts, nil
}

// AddTransaction добавляет сделку напрямую (для настройки тестов)
func (m *MockTransactionService) AddTransaction(id int64, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.transactions[id] = &models.Transaction{
		ID:        id,
		OrderID:   "order-" + uuid.NewString()[:8],
		Status:    status,
		CreatedAt: time.Now(),
	}
}

// AddMessage добавляет сообщение к сделке
func (m *MockTransactionService) AddMessage(txID int64, sender, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.messages[txID] = append(m.messages[txID], &models.ChatMessage{
		ID:            int64(len(m.messages[txID]) + 1),
		TransactionID: txID,
		Sender:        sender,
		Content:       content,
		CreatedAt:     time.Now(),
	})
}

// ============ Mock Blacklist Service ============

// MockBlacklistService мок для BlacklistServiceInterface
type MockBlacklistService struct {
	entries    map[int64]*models.BlacklistedTransaction
	getErr     error
	resolveErr error
	mu         sync.RWMutex
}

func NewMockBlacklistService() *MockBlacklistService {
	return &MockBlacklistService{
		entries: make(map[int64]*models.BlacklistedTransaction),
	}
}

func (m *MockBlacklistService) GetBlacklist(ctx context.Context) ([]*models.BlacklistedTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return nil, m.getErr
	}

	result := make([]*models.BlacklistedTransaction, 0, len(m.entries))
	for _, e := range m.entries {
		result = append(result, e)
	}
	return result, nil
}

func (m *MockBlacklistService) GetByID(ctx context.Context, id int64) (*models.BlacklistedTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return nil, m.getErr
	}
	if e, exists := m.entries[id]; exists {
		return e, nil
	}
	return nil, service.ErrBlacklistEntryNotFound
}

func (m *MockBlacklistService) Resolve(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.resolveErr != nil {
		return m.resolveErr
	}
	if _, exists := m.entries[id]; !exists {
		return service.ErrBlacklistEntryNotFound
	}
	delete(m.entries, id)
	return nil
}

func (m *MockBlacklistService) GetCount(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return 0, m.getErr
	}
	return len(m.entries), nil
}

// AddEntry добавляет запись напрямую (для настройки тестов)
func (m *MockBlacklistService) AddEntry(id int64, payoutID, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[id] = &models.BlacklistedTransaction{
		ID:        id,
		PayoutID:  payoutID,
		Wallet:    "79001234567",
		Amount:    decimal.RequireFromString("5000"),
		Currency:  "RUB",
		Reason:    reason,
		CreatedAt: time.Now(),
	}
}

// ============ Mock MatchLog Service ============

// MockMatchLogService мок для MatchLogServiceInterface
type MockMatchLogService struct {
	entries []*models.MatchLogEntry
	getErr  error
	mu      sync.RWMutex
}

func NewMockMatchLogService() *MockMatchLogService {
	return &MockMatchLogService{
		entries: make([]*models.MatchLogEntry, 0),
	}
}

func (m *MockMatchLogService) GetEntries(ctx context.Context, action string, limit int) ([]*models.MatchLogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return nil, m.getErr
	}

	result := make([]*models.MatchLogEntry, 0, len(m.entries))
	for _, e := range m.entries {
		if action == "" || e.Action == action {
			result = append(result, e)
		}
	}
	return result, nil
}

func (m *MockMatchLogService) GetByEvidence(ctx context.Context, evidenceID string) ([]*models.MatchLogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return nil, m.getErr
	}

	result := make([]*models.MatchLogEntry, 0)
	for _, e := range m.entries {
		if e.EvidenceID == evidenceID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (m *MockMatchLogService) GetStats(ctx context.Context, hours int) (*models.MatchStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.getErr != nil {
		return nil, m.getErr
	}
	return &models.MatchStats{TotalEvidence: int64(len(m.entries))}, nil
}

// AddLogEntry добавляет запись журнала напрямую (для настройки тестов)
func (m *MockMatchLogService) AddLogEntry(evidenceID, action string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = append(m.entries, &models.MatchLogEntry{
		ID:         int64(len(m.entries) + 1),
		EvidenceID: evidenceID,
		Action:     action,
		Amount:     decimal.RequireFromString("5000"),
		Currency:   "RUB",
		CreatedAt:  time.Now(),
	})
}

// ============ Проверяем, что моки реализуют интерфейсы ============

var _ EngineController = (*MockEngineController)(nil)
var _ service.PayoutServiceInterface = (*MockPayoutService)(nil)
var _ service.TransactionServiceInterface = (*MockTransactionService)(nil)
var _ service.BlacklistServiceInterface = (*MockBlacklistService)(nil)
var _ service.MatchLogServiceInterface = (*MockMatchLogService)(nil)
