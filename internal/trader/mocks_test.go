package trader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"p2pdesk/internal/exchange"
	"p2pdesk/internal/models"
	"p2pdesk/internal/pool"
	"p2pdesk/internal/repository"
)

// ErrMockExchange - ошибка биржи для тестов
var ErrMockExchange = errors.New("ошибка биржи")

// ============================================================
// Клиент биржи
// ============================================================

type fakeClient struct {
	mu sync.Mutex

	openOrders  []*exchange.OrderInfo
	orderDetail map[string]*exchange.OrderInfo
	chatHistory map[string][]*exchange.ChatMessageInfo

	adSeq       int
	createAdErr error
	deleteAdErr error

	releaseErr    error
	releaseCalls  int
	createCalls   int
	deleteCalls   int
	setStatusLog  []string
	sentMessages  []string
	marketPrice   decimal.Decimal
	marketPriceOK bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		orderDetail: make(map[string]*exchange.OrderInfo),
		chatHistory: make(map[string][]*exchange.ChatMessageInfo),
	}
}

func (f *fakeClient) Verify(ctx context.Context) error { return nil }

func (f *fakeClient) ServerTime(ctx context.Context) (time.Time, error) {
	return time.Now(), nil
}

func (f *fakeClient) MarketPrice(ctx context.Context, asset, fiat, side string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.marketPriceOK {
		return decimal.Zero, ErrMockExchange
	}
	return f.marketPrice, nil
}

func (f *fakeClient) CreateAd(ctx context.Context, req *exchange.CreateAdRequest) (*exchange.AdInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createAdErr != nil {
		return nil, f.createAdErr
	}
	f.adSeq++
	f.createCalls++
	return &exchange.AdInfo{
		ID:       fmt.Sprintf("ext-ad-%d", f.adSeq),
		Side:     req.Side,
		Asset:    req.Asset,
		Fiat:     req.Fiat,
		Price:    req.Price,
		Quantity: req.Quantity,
	}, nil
}

func (f *fakeClient) UpdateAd(ctx context.Context, req *exchange.UpdateAdRequest) error { return nil }

func (f *fakeClient) SetAdStatus(ctx context.Context, adID string, online bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setStatusLog = append(f.setStatusLog, adID)
	return nil
}

func (f *fakeClient) DeleteAd(ctx context.Context, adID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteAdErr != nil {
		return f.deleteAdErr
	}
	f.deleteCalls++
	return nil
}

func (f *fakeClient) OpenOrders(ctx context.Context) ([]*exchange.OrderInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*exchange.OrderInfo(nil), f.openOrders...), nil
}

func (f *fakeClient) OrderDetail(ctx context.Context, orderID string) (*exchange.OrderInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if detail, ok := f.orderDetail[orderID]; ok {
		return detail, nil
	}
	return nil, ErrMockExchange
}

func (f *fakeClient) ChatMessages(ctx context.Context, orderID string, limit int) ([]*exchange.ChatMessageInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*exchange.ChatMessageInfo(nil), f.chatHistory[orderID]...), nil
}

func (f *fakeClient) SendChatMessage(ctx context.Context, orderID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentMessages = append(f.sentMessages, content)
	return nil
}

func (f *fakeClient) MarkOrderPaid(ctx context.Context, orderID string) error { return nil }

func (f *fakeClient) ReleaseOrder(ctx context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.releaseErr != nil {
		return f.releaseErr
	}
	f.releaseCalls = f.releaseCalls + 1
	return nil
}

func (f *fakeClient) Balance(ctx context.Context, asset string) (decimal.Decimal, error) {
	return decimal.NewFromInt(1000), nil
}

func (f *fakeClient) Close() error { return nil }

func (f *fakeClient) releasedTimes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.releaseCalls
}

// ============================================================
// Пул аккаунтов
// ============================================================

// fakePool раздаёт один клиент на все аккаунты и честно считает слоты:
// резерв и освобождение атомарны, как в настоящем пуле
type fakePool struct {
	mu       sync.Mutex
	client   *fakeClient
	accounts []*models.ExchangeAccount
	reserved map[int64]int
	released int
}

func newFakePool(client *fakeClient, accounts ...*models.ExchangeAccount) *fakePool {
	return &fakePool{
		client:   client,
		accounts: accounts,
		reserved: make(map[int64]int),
	}
}

func (p *fakePool) Load(ctx context.Context) error { return nil }

func (p *fakePool) Get(id int64) (*pool.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, acc := range p.accounts {
		if acc.ID == id {
			return &pool.Session{Account: acc, Client: p.client}, nil
		}
	}
	return nil, pool.ErrAccountNotFound
}

func (p *fakePool) Sessions() []*pool.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	sessions := make([]*pool.Session, 0, len(p.accounts))
	for _, acc := range p.accounts {
		sessions = append(sessions, &pool.Session{Account: acc, Client: p.client})
	}
	return sessions
}

func (p *fakePool) Size() int { return len(p.accounts) }

func (p *fakePool) Runtime() []models.AccountRuntime { return nil }

func (p *fakePool) NextForPlacement(ctx context.Context) (*pool.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, acc := range p.accounts {
		if p.reserved[acc.ID] < acc.MaxActiveAds {
			p.reserved[acc.ID]++
			return &pool.Session{Account: acc, Client: p.client}, nil
		}
	}
	return nil, pool.ErrNoCapacity
}

func (p *fakePool) ReleaseSlot(ctx context.Context, accountID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reserved[accountID] > 0 {
		p.reserved[accountID]--
	}
	p.released++
}

func (p *fakePool) Execute(ctx context.Context, accountID int64, opName string, op func(ctx context.Context, c exchange.Client) error) error {
	return op(ctx, p.client)
}

func (p *fakePool) Close() {}

func (p *fakePool) reservedSlots(accountID int64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reserved[accountID]
}

// ============================================================
// Хранилища
// ============================================================

type fakeTxStore struct {
	mu      sync.Mutex
	nextID  int64
	byID    map[int64]*models.Transaction
	byOrder map[string]int64
}

func newFakeTxStore() *fakeTxStore {
	return &fakeTxStore{
		byID:    make(map[int64]*models.Transaction),
		byOrder: make(map[string]int64),
	}
}

func (s *fakeTxStore) Create(ctx context.Context, tx *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byOrder[tx.OrderID]; exists {
		return repository.ErrDuplicateOrder
	}
	s.nextID++
	tx.ID = s.nextID
	stored := *tx
	s.byID[tx.ID] = &stored
	s.byOrder[tx.OrderID] = tx.ID
	return nil
}

func (s *fakeTxStore) GetByID(ctx context.Context, id int64) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrTransactionNotFound
	}
	copied := *tx
	return &copied, nil
}

func (s *fakeTxStore) GetByOrderID(ctx context.Context, orderID string) (*models.Transaction, error) {
	s.mu.Lock()
	id, ok := s.byOrder[orderID]
	s.mu.Unlock()
	if !ok {
		return nil, repository.ErrTransactionNotFound
	}
	return s.GetByID(ctx, id)
}

func (s *fakeTxStore) GetOpen(ctx context.Context) ([]*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var open []*models.Transaction
	for _, tx := range s.byID {
		if !tx.IsTerminal() {
			copied := *tx
			open = append(open, &copied)
		}
	}
	return open, nil
}

func (s *fakeTxStore) GetOpenByAccount(ctx context.Context, accountID int64) ([]*models.Transaction, error) {
	open, _ := s.GetOpen(ctx)
	var filtered []*models.Transaction
	for _, tx := range open {
		if tx.AccountID == accountID {
			filtered = append(filtered, tx)
		}
	}
	return filtered, nil
}

func (s *fakeTxStore) UpdateStatus(ctx context.Context, id int64, status string, completedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.byID[id]
	if !ok {
		return repository.ErrTransactionNotFound
	}
	tx.Status = status
	tx.CompletedAt = completedAt
	return nil
}

func (s *fakeTxStore) SetChatSuspended(ctx context.Context, id int64, suspended bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.byID[id]
	if !ok {
		return repository.ErrTransactionNotFound
	}
	tx.ChatSuspended = suspended
	return nil
}

func (s *fakeTxStore) CountOpen(ctx context.Context) (int, error) {
	open, _ := s.GetOpen(ctx)
	return len(open), nil
}

func (s *fakeTxStore) DeleteOlderThan(ctx context.Context, timestamp time.Time) (int64, error) {
	return 0, nil
}

func (s *fakeTxStore) status(id int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx, ok := s.byID[id]; ok {
		return tx.Status
	}
	return ""
}

type fakeAdStore struct {
	mu         sync.Mutex
	nextID     int64
	byID       map[int64]*models.Advertisement
	byExternal map[string]int64
	createErr  error
}

func newFakeAdStore() *fakeAdStore {
	return &fakeAdStore{
		byID:       make(map[int64]*models.Advertisement),
		byExternal: make(map[string]int64),
	}
}

func (s *fakeAdStore) seed(ad *models.Advertisement) *models.Advertisement {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	ad.ID = s.nextID
	stored := *ad
	s.byID[ad.ID] = &stored
	s.byExternal[ad.ExternalID] = ad.ID
	return ad
}

func (s *fakeAdStore) Create(ctx context.Context, ad *models.Advertisement) error {
	s.mu.Lock()
	if s.createErr != nil {
		err := s.createErr
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()
	s.seed(ad)
	return nil
}

func (s *fakeAdStore) GetByID(ctx context.Context, id int64) (*models.Advertisement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ad, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrAdvertisementNotFound
	}
	copied := *ad
	return &copied, nil
}

func (s *fakeAdStore) GetByExternalID(ctx context.Context, externalID string) (*models.Advertisement, error) {
	s.mu.Lock()
	id, ok := s.byExternal[externalID]
	s.mu.Unlock()
	if !ok {
		return nil, repository.ErrAdvertisementNotFound
	}
	return s.GetByID(ctx, id)
}

func (s *fakeAdStore) GetByPayout(ctx context.Context, payoutID string) ([]*models.Advertisement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ads []*models.Advertisement
	for _, ad := range s.byID {
		if ad.PayoutID != nil && *ad.PayoutID == payoutID {
			copied := *ad
			ads = append(ads, &copied)
		}
	}
	return ads, nil
}

func (s *fakeAdStore) GetByStatus(ctx context.Context, status string) ([]*models.Advertisement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ads []*models.Advertisement
	for _, ad := range s.byID {
		if ad.Status == status {
			copied := *ad
			ads = append(ads, &copied)
		}
	}
	return ads, nil
}

func (s *fakeAdStore) GetLive(ctx context.Context) ([]*models.Advertisement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ads []*models.Advertisement
	for _, ad := range s.byID {
		if ad.IsLive() {
			copied := *ad
			ads = append(ads, &copied)
		}
	}
	return ads, nil
}

func (s *fakeAdStore) UpdatePrice(ctx context.Context, id int64, price decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ad, ok := s.byID[id]
	if !ok {
		return repository.ErrAdvertisementNotFound
	}
	ad.Price = price
	return nil
}

func (s *fakeAdStore) SetStatus(ctx context.Context, id int64, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ad, ok := s.byID[id]
	if !ok {
		return repository.ErrAdvertisementNotFound
	}
	ad.Status = status
	return nil
}

func (s *fakeAdStore) MarkDeleted(ctx context.Context, id int64) error {
	return s.SetStatus(ctx, id, models.AdStatusDeleted)
}

func (s *fakeAdStore) status(id int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ad, ok := s.byID[id]; ok {
		return ad.Status
	}
	return ""
}

type fakePayoutStore struct {
	mu   sync.Mutex
	byID map[string]*models.Payout
}

func newFakePayoutStore() *fakePayoutStore {
	return &fakePayoutStore{byID: make(map[string]*models.Payout)}
}

func (s *fakePayoutStore) seed(p *models.Payout) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *p
	s.byID[p.ID] = &stored
}

func (s *fakePayoutStore) GetByID(ctx context.Context, id string) (*models.Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrPayoutNotFound
	}
	copied := *p
	return &copied, nil
}

func (s *fakePayoutStore) GetByStatus(ctx context.Context, status string) ([]*models.Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var payouts []*models.Payout
	for _, p := range s.byID {
		if p.Status == status {
			copied := *p
			payouts = append(payouts, &copied)
		}
	}
	return payouts, nil
}

func (s *fakePayoutStore) Link(ctx context.Context, id string, transactionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return repository.ErrPayoutNotFound
	}
	if p.Status != models.PayoutStatusOpen {
		return repository.ErrPayoutNotOpen
	}
	p.Status = models.PayoutStatusLinked
	p.TransactionID = &transactionID
	return nil
}

func (s *fakePayoutStore) Reopen(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return repository.ErrPayoutNotFound
	}
	p.Status = models.PayoutStatusOpen
	p.TransactionID = nil
	return nil
}

func (s *fakePayoutStore) status(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.byID[id]; ok {
		return p.Status
	}
	return ""
}

type fakeMsgStore struct {
	mu       sync.Mutex
	nextID   int64
	messages map[int64][]*models.ChatMessage
}

func newFakeMsgStore() *fakeMsgStore {
	return &fakeMsgStore{messages: make(map[int64][]*models.ChatMessage)}
}

func (s *fakeMsgStore) SaveMessage(ctx context.Context, msg *models.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages[msg.TransactionID] {
		if m.ExternalID == msg.ExternalID {
			return repository.ErrDuplicateMessage
		}
	}
	s.nextID++
	msg.ID = s.nextID
	stored := *msg
	s.messages[msg.TransactionID] = append(s.messages[msg.TransactionID], &stored)
	return nil
}

func (s *fakeMsgStore) GetByTransaction(ctx context.Context, transactionID int64) ([]*models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.ChatMessage(nil), s.messages[transactionID]...), nil
}

func (s *fakeMsgStore) HasAutoReply(ctx context.Context, transactionID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages[transactionID] {
		if m.IsAutoReply {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeMsgStore) DeleteOlderThan(ctx context.Context, timestamp time.Time) (int64, error) {
	return 0, nil
}

func (s *fakeMsgStore) count(transactionID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages[transactionID])
}

// ============================================================
// Приветствие и события
// ============================================================

type fakeGreeter struct {
	mu    sync.Mutex
	calls []int64
}

func (g *fakeGreeter) StartAutomation(ctx context.Context, transactionID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, transactionID)
	return nil
}

func (g *fakeGreeter) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []*models.Notification
}

func (n *fakeNotifier) Publish(ctx context.Context, notification *models.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
}

func (n *fakeNotifier) countOf(notificationType string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, sent := range n.sent {
		if sent.Type == notificationType {
			count++
		}
	}
	return count
}

type fakeEventSink struct {
	mu     sync.Mutex
	events []string
}

func (e *fakeEventSink) record(kind string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, kind)
}

func (e *fakeEventSink) TransactionCreated(tx *models.Transaction) { e.record("tx.created") }
func (e *fakeEventSink) TransactionStatus(tx *models.Transaction, previous string) {
	e.record("tx.status")
}
func (e *fakeEventSink) AdvertisementCreated(ad *models.Advertisement) { e.record("ad.created") }
func (e *fakeEventSink) AdvertisementToggled(ad *models.Advertisement) { e.record("ad.toggled") }
func (e *fakeEventSink) AdvertisementDeleted(ad *models.Advertisement) { e.record("ad.deleted") }
func (e *fakeEventSink) ChatMessage(msg *models.ChatMessage)           { e.record("chat.message") }

func (e *fakeEventSink) countOf(kind string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, ev := range e.events {
		if ev == kind {
			n++
		}
	}
	return n
}

// Проверки реализации интерфейсов на этапе компиляции
var (
	_ AccountPool      = (*fakePool)(nil)
	_ TransactionStore = (*fakeTxStore)(nil)
	_ AdStore          = (*fakeAdStore)(nil)
	_ PayoutStore      = (*fakePayoutStore)(nil)
	_ MessageStore     = (*fakeMsgStore)(nil)
	_ Greeter          = (*fakeGreeter)(nil)
	_ Notifier         = (*fakeNotifier)(nil)
	_ EventSink        = (*fakeEventSink)(nil)
	_ exchange.Client  = (*fakeClient)(nil)
)
