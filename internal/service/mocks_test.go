package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"p2pdesk/internal/exchange"
	"p2pdesk/internal/models"
	"p2pdesk/internal/repository"
)

// ============ Mock SettingsRepository ============

type MockSettingsRepository struct {
	settings  *models.Settings
	getErr    error
	updateErr error
}

func NewMockSettingsRepository() *MockSettingsRepository {
	return &MockSettingsRepository{
		settings: &models.Settings{
			ID:                  1,
			OrderPollSeconds:    5,
			ChatPollSeconds:     3,
			AdRefreshSeconds:    60,
			MatchTolerance:      decimal.Zero,
			MatchWindowMinutes:  30,
			ZeroCandidatePolicy: models.ZeroCandidateRequeue,
			RequeueMaxAttempts:  5,
			RequeueTTLMinutes:   15,
			GreetingEnabled:     true,
			NotificationPrefs: models.NotificationPreferences{
				TxCreated:    true,
				TxStatus:     true,
				AdLifecycle:  true,
				Match:        true,
				Ambiguous:    true,
				Blacklist:    true,
				Chat:         false,
				AccountError: true,
				Engine:       true,
			},
			UpdatedAt: time.Now(),
		},
	}
}

func (m *MockSettingsRepository) Get(ctx context.Context) (*models.Settings, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.settings, nil
}

func (m *MockSettingsRepository) Update(ctx context.Context, settings *models.Settings) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.settings = settings
	m.settings.UpdatedAt = time.Now()
	return nil
}

func (m *MockSettingsRepository) UpdateNotificationPrefs(ctx context.Context, prefs models.NotificationPreferences) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.settings.NotificationPrefs = prefs
	m.settings.UpdatedAt = time.Now()
	return nil
}

func (m *MockSettingsRepository) GetNotificationPrefs(ctx context.Context) (*models.NotificationPreferences, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return &m.settings.NotificationPrefs, nil
}

func (m *MockSettingsRepository) ResetToDefaults(ctx context.Context) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	fresh := NewMockSettingsRepository()
	m.settings = fresh.settings
	return nil
}

// ============ Mock NotificationRepository ============

type MockNotificationRepository struct {
	notifications []*models.Notification
	createErr     error
	getErr        error
	deleteErr     error
	nextID        int64
}

func NewMockNotificationRepository() *MockNotificationRepository {
	return &MockNotificationRepository{
		notifications: make([]*models.Notification, 0),
		nextID:        1,
	}
}

func (m *MockNotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if m.createErr != nil {
		return m.createErr
	}
	n.ID = m.nextID
	m.nextID++
	m.notifications = append(m.notifications, n)
	return nil
}

func (m *MockNotificationRepository) GetRecent(ctx context.Context, limit int) ([]*models.Notification, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if limit <= 0 || limit > len(m.notifications) {
		limit = len(m.notifications)
	}
	start := len(m.notifications) - limit
	return m.notifications[start:], nil
}

func (m *MockNotificationRepository) GetByTypes(ctx context.Context, types []string, limit int) ([]*models.Notification, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}
	var result []*models.Notification
	for _, n := range m.notifications {
		if typeSet[n.Type] {
			result = append(result, n)
		}
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockNotificationRepository) GetByTransaction(ctx context.Context, transactionID int64) ([]*models.Notification, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var result []*models.Notification
	for _, n := range m.notifications {
		if n.TransactionID != nil && *n.TransactionID == transactionID {
			result = append(result, n)
		}
	}
	return result, nil
}

func (m *MockNotificationRepository) DeleteAll(ctx context.Context) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.notifications = make([]*models.Notification, 0)
	return nil
}

func (m *MockNotificationRepository) Count(ctx context.Context) (int, error) {
	if m.getErr != nil {
		return 0, m.getErr
	}
	return len(m.notifications), nil
}

// ============ Mock BlacklistRepository ============

type MockBlacklistRepository struct {
	entries   map[int64]*models.BlacklistedTransaction
	createErr error
	getErr    error
	deleteErr error
	nextID    int64
}

func NewMockBlacklistRepository() *MockBlacklistRepository {
	return &MockBlacklistRepository{
		entries: make(map[int64]*models.BlacklistedTransaction),
		nextID:  1,
	}
}

func (m *MockBlacklistRepository) Create(ctx context.Context, entry *models.BlacklistedTransaction) error {
	if m.createErr != nil {
		return m.createErr
	}
	entry.ID = m.nextID
	m.nextID++
	entry.CreatedAt = time.Now()
	m.entries[entry.ID] = entry
	return nil
}

func (m *MockBlacklistRepository) GetAll(ctx context.Context) ([]*models.BlacklistedTransaction, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	result := make([]*models.BlacklistedTransaction, 0, len(m.entries))
	for _, e := range m.entries {
		result = append(result, e)
	}
	return result, nil
}

func (m *MockBlacklistRepository) GetByID(ctx context.Context, id int64) (*models.BlacklistedTransaction, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if entry, exists := m.entries[id]; exists {
		return entry, nil
	}
	return nil, repository.ErrBlacklistEntryNotFound
}

func (m *MockBlacklistRepository) ExistsWallet(ctx context.Context, wallet string) (bool, error) {
	if m.getErr != nil {
		return false, m.getErr
	}
	for _, e := range m.entries {
		if e.Wallet == wallet {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockBlacklistRepository) Delete(ctx context.Context, id int64) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, exists := m.entries[id]; !exists {
		return repository.ErrBlacklistEntryNotFound
	}
	delete(m.entries, id)
	return nil
}

func (m *MockBlacklistRepository) Count(ctx context.Context) (int, error) {
	if m.getErr != nil {
		return 0, m.getErr
	}
	return len(m.entries), nil
}

// ============ Mock PayoutRepository ============

type MockPayoutRepository struct {
	payouts        map[string]*models.Payout
	createErr      error
	getErr         error
	deleteErr      error
	unblacklistErr error
}

func NewMockPayoutRepository() *MockPayoutRepository {
	return &MockPayoutRepository{
		payouts: make(map[string]*models.Payout),
	}
}

func (m *MockPayoutRepository) Create(ctx context.Context, payout *models.Payout) error {
	if m.createErr != nil {
		return m.createErr
	}
	payout.CreatedAt = time.Now()
	payout.UpdatedAt = payout.CreatedAt
	m.payouts[payout.ID] = payout
	return nil
}

func (m *MockPayoutRepository) GetByID(ctx context.Context, id string) (*models.Payout, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if p, exists := m.payouts[id]; exists {
		return p, nil
	}
	return nil, repository.ErrPayoutNotFound
}

func (m *MockPayoutRepository) GetByStatus(ctx context.Context, status string) ([]*models.Payout, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var result []*models.Payout
	for _, p := range m.payouts {
		if p.Status == status {
			result = append(result, p)
		}
	}
	return result, nil
}

func (m *MockPayoutRepository) GetRecent(ctx context.Context, limit int) ([]*models.Payout, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	result := make([]*models.Payout, 0, len(m.payouts))
	for _, p := range m.payouts {
		result = append(result, p)
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockPayoutRepository) Unblacklist(ctx context.Context, id string) error {
	if m.unblacklistErr != nil {
		return m.unblacklistErr
	}
	p, exists := m.payouts[id]
	if !exists || p.Status != models.PayoutStatusBlacklisted {
		return repository.ErrPayoutNotFound
	}
	p.Status = models.PayoutStatusOpen
	p.TransactionID = nil
	p.UpdatedAt = time.Now()
	return nil
}

func (m *MockPayoutRepository) CountByStatus(ctx context.Context, status string) (int, error) {
	if m.getErr != nil {
		return 0, m.getErr
	}
	count := 0
	for _, p := range m.payouts {
		if p.Status == status {
			count++
		}
	}
	return count, nil
}

func (m *MockPayoutRepository) Delete(ctx context.Context, id string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	p, exists := m.payouts[id]
	if !exists || p.Status != models.PayoutStatusOpen {
		return repository.ErrPayoutNotFound
	}
	delete(m.payouts, id)
	return nil
}

// ============ Mock AccountRepository ============

type MockAccountRepository struct {
	accounts  map[int64]*models.ExchangeAccount
	createErr error
	getErr    error
	statusErr error
	nextID    int64
}

func NewMockAccountRepository() *MockAccountRepository {
	return &MockAccountRepository{
		accounts: make(map[int64]*models.ExchangeAccount),
		nextID:   1,
	}
}

func (m *MockAccountRepository) Create(ctx context.Context, acc *models.ExchangeAccount) error {
	if m.createErr != nil {
		return m.createErr
	}
	for _, a := range m.accounts {
		if a.Label == acc.Label {
			return repository.ErrAccountExists
		}
	}
	acc.ID = m.nextID
	m.nextID++
	acc.CreatedAt = time.Now()
	acc.UpdatedAt = acc.CreatedAt
	m.accounts[acc.ID] = acc
	return nil
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id int64) (*models.ExchangeAccount, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if acc, exists := m.accounts[id]; exists {
		return acc, nil
	}
	return nil, repository.ErrAccountNotFound
}

func (m *MockAccountRepository) GetAll(ctx context.Context) ([]*models.ExchangeAccount, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	result := make([]*models.ExchangeAccount, 0, len(m.accounts))
	for _, a := range m.accounts {
		result = append(result, a)
	}
	return result, nil
}

func (m *MockAccountRepository) SetStatus(ctx context.Context, id int64, active bool, lastError string) error {
	if m.statusErr != nil {
		return m.statusErr
	}
	acc, exists := m.accounts[id]
	if !exists {
		return repository.ErrAccountNotFound
	}
	acc.Active = active
	acc.LastError = lastError
	acc.UpdatedAt = time.Now()
	return nil
}

// ============ Mock TransactionRepository ============

type MockTransactionRepository struct {
	transactions map[int64]*models.Transaction
	getErr       error
	updateErr    error
}

func NewMockTransactionRepository() *MockTransactionRepository {
	return &MockTransactionRepository{
		transactions: make(map[int64]*models.Transaction),
	}
}

func (m *MockTransactionRepository) GetByID(ctx context.Context, id int64) (*models.Transaction, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if tx, exists := m.transactions[id]; exists {
		return tx, nil
	}
	return nil, repository.ErrTransactionNotFound
}

func (m *MockTransactionRepository) GetOpen(ctx context.Context) ([]*models.Transaction, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var result []*models.Transaction
	for _, tx := range m.transactions {
		if !tx.IsTerminal() {
			result = append(result, tx)
		}
	}
	return result, nil
}

func (m *MockTransactionRepository) GetByStatus(ctx context.Context, status string) ([]*models.Transaction, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var result []*models.Transaction
	for _, tx := range m.transactions {
		if tx.Status == status {
			result = append(result, tx)
		}
	}
	return result, nil
}

func (m *MockTransactionRepository) GetRecent(ctx context.Context, limit int) ([]*models.Transaction, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	result := make([]*models.Transaction, 0, len(m.transactions))
	for _, tx := range m.transactions {
		result = append(result, tx)
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockTransactionRepository) SetChatSuspended(ctx context.Context, id int64, suspended bool) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	tx, exists := m.transactions[id]
	if !exists {
		return repository.ErrTransactionNotFound
	}
	tx.ChatSuspended = suspended
	return nil
}

func (m *MockTransactionRepository) CountByStatus(ctx context.Context, status string) (int, error) {
	if m.getErr != nil {
		return 0, m.getErr
	}
	count := 0
	for _, tx := range m.transactions {
		if tx.Status == status {
			count++
		}
	}
	return count, nil
}

// ============ Mock ChatRepository ============

type MockChatRepository struct {
	messages map[int64][]*models.ChatMessage
	getErr   error
}

func NewMockChatRepository() *MockChatRepository {
	return &MockChatRepository{
		messages: make(map[int64][]*models.ChatMessage),
	}
}

func (m *MockChatRepository) GetByTransaction(ctx context.Context, transactionID int64) ([]*models.ChatMessage, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.messages[transactionID], nil
}

// ============ Mock TemplateRepository ============

type MockTemplateRepository struct {
	groups    map[int64]*models.ResponseGroup
	templates map[int64]*models.ChatTemplate
	createErr error
	getErr    error
	updateErr error
	deleteErr error
	nextID    int64
}

func NewMockTemplateRepository() *MockTemplateRepository {
	return &MockTemplateRepository{
		groups:    make(map[int64]*models.ResponseGroup),
		templates: make(map[int64]*models.ChatTemplate),
		nextID:    1,
	}
}

func (m *MockTemplateRepository) CreateGroup(ctx context.Context, g *models.ResponseGroup) error {
	if m.createErr != nil {
		return m.createErr
	}
	for _, existing := range m.groups {
		if existing.Name == g.Name {
			return repository.ErrGroupExists
		}
	}
	g.ID = m.nextID
	m.nextID++
	g.CreatedAt = time.Now()
	m.groups[g.ID] = g
	return nil
}

func (m *MockTemplateRepository) GetGroups(ctx context.Context) ([]*models.ResponseGroup, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	result := make([]*models.ResponseGroup, 0, len(m.groups))
	for _, g := range m.groups {
		result = append(result, g)
	}
	return result, nil
}

func (m *MockTemplateRepository) GetGroupByID(ctx context.Context, id int64) (*models.ResponseGroup, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if g, exists := m.groups[id]; exists {
		return g, nil
	}
	return nil, repository.ErrGroupNotFound
}

func (m *MockTemplateRepository) SetGroupActive(ctx context.Context, id int64, active bool) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	g, exists := m.groups[id]
	if !exists {
		return repository.ErrGroupNotFound
	}
	g.Active = active
	return nil
}

func (m *MockTemplateRepository) DeleteGroup(ctx context.Context, id int64) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, exists := m.groups[id]; !exists {
		return repository.ErrGroupNotFound
	}
	delete(m.groups, id)
	for tid, t := range m.templates {
		if t.GroupID == id {
			delete(m.templates, tid)
		}
	}
	return nil
}

func (m *MockTemplateRepository) CreateTemplate(ctx context.Context, t *models.ChatTemplate) error {
	if m.createErr != nil {
		return m.createErr
	}
	t.ID = m.nextID
	m.nextID++
	t.CreatedAt = time.Now()
	m.templates[t.ID] = t
	return nil
}

func (m *MockTemplateRepository) GetTemplateByID(ctx context.Context, id int64) (*models.ChatTemplate, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if t, exists := m.templates[id]; exists {
		return t, nil
	}
	return nil, repository.ErrTemplateNotFound
}

func (m *MockTemplateRepository) GetTemplatesByGroup(ctx context.Context, groupID int64) ([]*models.ChatTemplate, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var result []*models.ChatTemplate
	for _, t := range m.templates {
		if t.GroupID == groupID {
			result = append(result, t)
		}
	}
	return result, nil
}

func (m *MockTemplateRepository) UpdateTemplate(ctx context.Context, t *models.ChatTemplate) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, exists := m.templates[t.ID]; !exists {
		return repository.ErrTemplateNotFound
	}
	m.templates[t.ID] = t
	return nil
}

func (m *MockTemplateRepository) DeleteTemplate(ctx context.Context, id int64) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, exists := m.templates[id]; !exists {
		return repository.ErrTemplateNotFound
	}
	delete(m.templates, id)
	return nil
}

// ============ Mock MatchLogRepository ============

type MockMatchLogRepository struct {
	entries []*models.MatchLogEntry
	getErr  error
}

func NewMockMatchLogRepository() *MockMatchLogRepository {
	return &MockMatchLogRepository{
		entries: make([]*models.MatchLogEntry, 0),
	}
}

func (m *MockMatchLogRepository) GetRecent(ctx context.Context, limit int) ([]*models.MatchLogEntry, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if limit <= 0 || limit > len(m.entries) {
		limit = len(m.entries)
	}
	return m.entries[:limit], nil
}

func (m *MockMatchLogRepository) GetByEvidence(ctx context.Context, evidenceID string) ([]*models.MatchLogEntry, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var result []*models.MatchLogEntry
	for _, e := range m.entries {
		if e.EvidenceID == evidenceID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (m *MockMatchLogRepository) GetByAction(ctx context.Context, action string, limit int) ([]*models.MatchLogEntry, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var result []*models.MatchLogEntry
	for _, e := range m.entries {
		if e.Action == action {
			result = append(result, e)
		}
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockMatchLogRepository) Stats(ctx context.Context, since time.Time) (*models.MatchStats, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	stats := &models.MatchStats{}
	for _, e := range m.entries {
		if e.CreatedAt.Before(since) {
			continue
		}
		stats.TotalEvidence++
		if e.Action == models.MatchActionMatched {
			stats.Matched++
		}
	}
	return stats, nil
}

// ============ Mock WebSocket Broadcaster ============

type MockWebSocketBroadcaster struct {
	notifications []*models.Notification
}

func NewMockWebSocketBroadcaster() *MockWebSocketBroadcaster {
	return &MockWebSocketBroadcaster{
		notifications: make([]*models.Notification, 0),
	}
}

func (m *MockWebSocketBroadcaster) BroadcastNotification(notif *models.Notification) {
	m.notifications = append(m.notifications, notif)
}

// ============ Mock SessionPool ============

type MockSessionPool struct {
	added   []int64
	removed []int64
	addErr  error
}

func (m *MockSessionPool) Add(ctx context.Context, acc *models.ExchangeAccount) error {
	if m.addErr != nil {
		return m.addErr
	}
	m.added = append(m.added, acc.ID)
	return nil
}

func (m *MockSessionPool) Remove(id int64) {
	m.removed = append(m.removed, id)
}

// ============ Mock TransactionCompleter ============

type MockCompleter struct {
	completed   []int64
	completeErr error
}

func (m *MockCompleter) Complete(ctx context.Context, transactionID int64) error {
	if m.completeErr != nil {
		return m.completeErr
	}
	m.completed = append(m.completed, transactionID)
	return nil
}

// ============ Fake exchange client ============

type fakeExchangeClient struct {
	verifyErr  error
	balance    decimal.Decimal
	balanceErr error
	serverTime time.Time
}

func newFakeClientFactory(client *fakeExchangeClient) func(*models.ExchangeAccount, string, string, *exchange.ClockSync) (exchange.Client, error) {
	return func(acc *models.ExchangeAccount, apiKey, secretKey string, clock *exchange.ClockSync) (exchange.Client, error) {
		return client, nil
	}
}

func (c *fakeExchangeClient) Verify(ctx context.Context) error { return c.verifyErr }

func (c *fakeExchangeClient) ServerTime(ctx context.Context) (time.Time, error) {
	if c.serverTime.IsZero() {
		return time.Now(), nil
	}
	return c.serverTime, nil
}

func (c *fakeExchangeClient) MarketPrice(ctx context.Context, asset, fiat, side string) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (c *fakeExchangeClient) CreateAd(ctx context.Context, req *exchange.CreateAdRequest) (*exchange.AdInfo, error) {
	return &exchange.AdInfo{}, nil
}

func (c *fakeExchangeClient) UpdateAd(ctx context.Context, req *exchange.UpdateAdRequest) error {
	return nil
}

func (c *fakeExchangeClient) SetAdStatus(ctx context.Context, adID string, online bool) error {
	return nil
}

func (c *fakeExchangeClient) DeleteAd(ctx context.Context, adID string) error { return nil }

func (c *fakeExchangeClient) OpenOrders(ctx context.Context) ([]*exchange.OrderInfo, error) {
	return nil, nil
}

func (c *fakeExchangeClient) OrderDetail(ctx context.Context, orderID string) (*exchange.OrderInfo, error) {
	return nil, nil
}

func (c *fakeExchangeClient) ChatMessages(ctx context.Context, orderID string, limit int) ([]*exchange.ChatMessageInfo, error) {
	return nil, nil
}

func (c *fakeExchangeClient) SendChatMessage(ctx context.Context, orderID, content string) error {
	return nil
}

func (c *fakeExchangeClient) MarkOrderPaid(ctx context.Context, orderID string) error { return nil }

func (c *fakeExchangeClient) ReleaseOrder(ctx context.Context, orderID string) error { return nil }

func (c *fakeExchangeClient) Balance(ctx context.Context, asset string) (decimal.Decimal, error) {
	if c.balanceErr != nil {
		return decimal.Zero, c.balanceErr
	}
	return c.balance, nil
}

func (c *fakeExchangeClient) Close() error { return nil }
