// Package pool управляет набором биржевых аккаунтов: держит живые
// сессии с расшифрованными ключами, раздаёт аккаунты под размещение
// объявлений по кругу и выполняет запросы к бирже с rate limiting
// и повторами.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"p2pdesk/internal/exchange"
	"p2pdesk/internal/models"
	"p2pdesk/pkg/crypto"
	"p2pdesk/pkg/ratelimit"
	"p2pdesk/pkg/retry"
	"p2pdesk/pkg/utils"
)

var (
	// ErrAccountNotFound - аккаунт отсутствует в пуле
	ErrAccountNotFound = errors.New("аккаунт не найден в пуле")

	// ErrNoCapacity - ни у одного аккаунта нет свободного слота под объявление
	ErrNoCapacity = errors.New("нет свободных слотов под объявление")

	// ErrEmptyPool - в пуле нет ни одного живого аккаунта
	ErrEmptyPool = errors.New("пул аккаунтов пуст")
)

// AccountStore - доступ пула к хранилищу аккаунтов.
// Резервирование слота атомарное: условный UPDATE в репозитории
// гарантирует, что два параллельных размещения не переполнят лимит.
type AccountStore interface {
	GetActive(ctx context.Context) ([]*models.ExchangeAccount, error)
	SetStatus(ctx context.Context, id int64, active bool, lastError string) error
	ReserveAdSlot(ctx context.Context, id int64) (bool, error)
	ReleaseAdSlot(ctx context.Context, id int64) error
}

// ClientFactory создаёт биржевого клиента для аккаунта.
// Ключи приходят уже расшифрованными, часы - общие с сессией.
type ClientFactory func(acc *models.ExchangeAccount, apiKey, secretKey string, clock *exchange.ClockSync) (exchange.Client, error)

// BybitFactory возвращает фабрику клиентов Bybit P2P с общими
// настройками подключения. Прокси у каждого аккаунта свой.
func BybitFactory(baseURL string, recvWindow int, timeout time.Duration) ClientFactory {
	return func(acc *models.ExchangeAccount, apiKey, secretKey string, clock *exchange.ClockSync) (exchange.Client, error) {
		return exchange.NewBybitP2P(exchange.BybitP2PConfig{
			APIKey:     apiKey,
			SecretKey:  secretKey,
			BaseURL:    baseURL,
			RecvWindow: recvWindow,
			ProxyURL:   acc.ProxyURL,
			Timeout:    timeout,
			Clock:      clock,
		})
	}
}

// Config - настройки пула
type Config struct {
	// EncryptionKey - AES-256 ключ для расшифровки API ключей из БД
	EncryptionKey []byte

	// RateLimit - запросов в секунду на один аккаунт
	RateLimit float64

	// RateBurst - допустимый всплеск запросов на аккаунт
	RateBurst float64

	// Retry - политика повторов для Execute
	Retry retry.Config

	// ClockMinAge - минимальный возраст синхронизации часов,
	// раньше которого повторная синхронизация не выполняется
	ClockMinAge time.Duration
}

// Pool - пул биржевых аккаунтов
type Pool struct {
	store   AccountStore
	factory ClientFactory
	aesKey  []byte
	limiter *ratelimit.KeyedLimiter
	retry   retry.Config
	minAge  time.Duration
	log     *utils.Logger

	mu       sync.RWMutex
	sessions map[int64]*Session
	order    []int64
	rr       int
}

// New создаёт пул. Аккаунты загружаются отдельным вызовом Load.
func New(store AccountStore, factory ClientFactory, cfg Config, log *utils.Logger) *Pool {
	if log == nil {
		log = utils.L()
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 5
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 10
	}
	if cfg.ClockMinAge <= 0 {
		cfg.ClockMinAge = 2 * time.Second
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.InitialDelay == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	if cfg.Retry.RetryIf == nil {
		cfg.Retry.RetryIf = retry.IsRetryable
	}

	return &Pool{
		store:    store,
		factory:  factory,
		aesKey:   cfg.EncryptionKey,
		limiter:  ratelimit.NewKeyedLimiter(cfg.RateLimit, cfg.RateBurst),
		retry:    cfg.Retry,
		minAge:   cfg.ClockMinAge,
		log:      log.WithComponent("pool"),
		sessions: make(map[int64]*Session),
	}
}

// ============================================================
// Загрузка и состав пула
// ============================================================

// Load строит сессии для всех активных аккаунтов из хранилища.
// Аккаунт, не прошедший инициализацию (битые ключи, мёртвый прокси,
// отказ биржи), деактивируется в БД и пропускается - один плохой
// аккаунт не должен останавливать остальные.
func (p *Pool) Load(ctx context.Context) error {
	accounts, err := p.store.GetActive(ctx)
	if err != nil {
		return fmt.Errorf("загрузка аккаунтов: %w", err)
	}

	sessions := make(map[int64]*Session, len(accounts))
	order := make([]int64, 0, len(accounts))

	for _, acc := range accounts {
		sess, err := p.buildSession(ctx, acc)
		if err != nil {
			p.log.Error("аккаунт не прошёл инициализацию",
				utils.AccountID(acc.ID), utils.Account(acc.Label), zap.Error(err))
			if stErr := p.store.SetStatus(ctx, acc.ID, false, err.Error()); stErr != nil {
				p.log.Error("не удалось деактивировать аккаунт",
					utils.AccountID(acc.ID), zap.Error(stErr))
			}
			continue
		}
		sessions[acc.ID] = sess
		order = append(order, acc.ID)
	}

	p.mu.Lock()
	old := p.sessions
	p.sessions = sessions
	p.order = order
	p.rr = 0
	p.mu.Unlock()

	for id, sess := range old {
		sess.Client.Close()
		if _, kept := sessions[id]; !kept {
			p.limiter.Forget(sess.Key())
		}
	}

	p.log.Info("пул аккаунтов загружен",
		zap.Int("accounts", len(accounts)), zap.Int("sessions", len(sessions)))
	return nil
}

// buildSession расшифровывает ключи, создаёт клиента, синхронизирует
// часы и проверяет ключи запросом к бирже. Часы - до Verify: подпись
// уже должна идти с поправкой.
func (p *Pool) buildSession(ctx context.Context, acc *models.ExchangeAccount) (*Session, error) {
	apiKey, err := crypto.Decrypt(acc.APIKey, p.aesKey)
	if err != nil {
		return nil, fmt.Errorf("расшифровка API ключа: %w", err)
	}
	secretKey, err := crypto.Decrypt(acc.SecretKey, p.aesKey)
	if err != nil {
		return nil, fmt.Errorf("расшифровка секретного ключа: %w", err)
	}

	clock := exchange.NewClockSync()
	client, err := p.factory(acc, apiKey, secretKey, clock)
	if err != nil {
		return nil, fmt.Errorf("создание клиента: %w", err)
	}

	if err := clock.Sync(ctx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("синхронизация часов: %w", err)
	}
	if err := client.Verify(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("проверка ключей: %w", err)
	}

	p.log.Info("аккаунт подключен",
		utils.AccountID(acc.ID), utils.Account(acc.Label),
		zap.Int64("clock_offset_ms", clock.Offset().Milliseconds()))

	return &Session{Account: acc, Client: client, Clock: clock}, nil
}

// Add строит сессию для нового аккаунта и добавляет её в пул.
// Существующая сессия того же аккаунта заменяется.
func (p *Pool) Add(ctx context.Context, acc *models.ExchangeAccount) error {
	sess, err := p.buildSession(ctx, acc)
	if err != nil {
		return err
	}

	p.mu.Lock()
	old, existed := p.sessions[acc.ID]
	p.sessions[acc.ID] = sess
	if !existed {
		p.order = append(p.order, acc.ID)
	}
	p.mu.Unlock()

	if existed {
		old.Client.Close()
	}
	return nil
}

// Remove убирает аккаунт из пула и закрывает его клиента
func (p *Pool) Remove(id int64) {
	p.mu.Lock()
	sess, ok := p.sessions[id]
	if ok {
		delete(p.sessions, id)
		order := make([]int64, 0, len(p.order))
		for _, oid := range p.order {
			if oid != id {
				order = append(order, oid)
			}
		}
		p.order = order
	}
	p.mu.Unlock()

	if ok {
		sess.Client.Close()
		p.limiter.Forget(sess.Key())
	}
}

// Get возвращает сессию аккаунта
func (p *Pool) Get(id int64) (*Session, error) {
	p.mu.RLock()
	sess, ok := p.sessions[id]
	p.mu.RUnlock()
	if !ok {
		return nil, ErrAccountNotFound
	}
	return sess, nil
}

// Sessions возвращает все сессии пула в стабильном порядке
func (p *Pool) Sessions() []*Session {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*Session, 0, len(p.order))
	for _, id := range p.order {
		if sess, ok := p.sessions[id]; ok {
			out = append(out, sess)
		}
	}
	return out
}

// Size возвращает количество живых сессий
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.sessions)
}

// Runtime возвращает снимок состояния всех аккаунтов для операторского API
func (p *Pool) Runtime() []models.AccountRuntime {
	sessions := p.Sessions()
	out := make([]models.AccountRuntime, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess.Runtime())
	}
	return out
}

// Deactivate выводит аккаунт из пула и помечает его неактивным в БД.
// Вызывается при фатальных ошибках: невалидные ключи, отозванные права.
func (p *Pool) Deactivate(ctx context.Context, id int64, reason string) {
	p.log.Warn("аккаунт деактивирован", utils.AccountID(id), zap.String("reason", reason))

	if err := p.store.SetStatus(ctx, id, false, reason); err != nil {
		p.log.Error("не удалось сохранить деактивацию аккаунта",
			utils.AccountID(id), zap.Error(err))
	}
	p.Remove(id)
}

// Close закрывает всех клиентов пула
func (p *Pool) Close() {
	p.mu.Lock()
	sessions := p.sessions
	p.sessions = make(map[int64]*Session)
	p.order = nil
	p.mu.Unlock()

	for _, sess := range sessions {
		sess.Client.Close()
		p.limiter.Forget(sess.Key())
	}
}

// ============================================================
// Размещение объявлений
// ============================================================

// NextForPlacement выбирает аккаунт под новое объявление по кругу
// и атомарно резервирует у него слот. Round-robin сдвигает стартовую
// позицию на каждый вызов, чтобы объявления размазывались по
// аккаунтам даже когда у всех есть свободные слоты.
//
// Возвращает ErrNoCapacity, когда слоты кончились у всех,
// и ErrEmptyPool, когда живых аккаунтов нет вообще.
func (p *Pool) NextForPlacement(ctx context.Context) (*Session, error) {
	p.mu.Lock()
	if len(p.order) == 0 {
		p.mu.Unlock()
		return nil, ErrEmptyPool
	}
	start := p.rr % len(p.order)
	p.rr++
	ids := make([]int64, 0, len(p.order))
	ids = append(ids, p.order[start:]...)
	ids = append(ids, p.order[:start]...)
	p.mu.Unlock()

	for _, id := range ids {
		sess, err := p.Get(id)
		if err != nil {
			continue
		}
		ok, err := p.store.ReserveAdSlot(ctx, id)
		if err != nil {
			p.log.Warn("не удалось зарезервировать слот объявления",
				utils.AccountID(id), zap.Error(err))
			continue
		}
		if ok {
			return sess, nil
		}
	}
	return nil, ErrNoCapacity
}

// ReleaseSlot возвращает слот объявления аккаунту.
// Вызывается при удалении объявления или неудачном размещении.
func (p *Pool) ReleaseSlot(ctx context.Context, accountID int64) {
	if err := p.store.ReleaseAdSlot(ctx, accountID); err != nil {
		p.log.Warn("не удалось освободить слот объявления",
			utils.AccountID(accountID), zap.Error(err))
	}
}

// ============================================================
// Выполнение запросов
// ============================================================

// Execute выполняет операцию на клиенте аккаунта с rate limiting
// и повторами. Классификация ошибок:
//   - дрейф часов: пересинхронизация и повтор
//   - невалидные ключи / нет прав: деактивация аккаунта, без повторов
//   - rate limit и 5xx биржи: повтор с backoff
//   - остальные ответы биржи: без повторов
func (p *Pool) Execute(ctx context.Context, accountID int64, opName string, op func(ctx context.Context, c exchange.Client) error) error {
	_, err := ExecuteWithResult(ctx, p, accountID, opName, func(ctx context.Context, c exchange.Client) (struct{}, error) {
		return struct{}{}, op(ctx, c)
	})
	return err
}

// ExecuteWithResult - Execute для операций, возвращающих значение
func ExecuteWithResult[T any](ctx context.Context, p *Pool, accountID int64, opName string, op func(ctx context.Context, c exchange.Client) (T, error)) (T, error) {
	var zero T

	sess, err := p.Get(accountID)
	if err != nil {
		return zero, err
	}

	cfg := p.retry
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		p.log.Warn("повтор запроса к бирже",
			utils.AccountID(accountID), zap.String("op", opName),
			zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
	}

	result, err := retry.DoWithResult(ctx, func() (T, error) {
		if err := p.limiter.Wait(ctx, sess.Key()); err != nil {
			return zero, retry.Permanent(err)
		}
		res, err := op(ctx, sess.Client)
		if err != nil {
			return zero, p.classify(ctx, sess, err)
		}
		return res, nil
	}, cfg)
	if err != nil {
		sess.SetLastError(err.Error())
		p.log.Error("запрос к бирже не выполнен",
			utils.AccountID(accountID), zap.String("op", opName), zap.Error(err))
		return zero, err
	}
	return result, nil
}

// classify переводит ошибку биржи в retry-семантику
func (p *Pool) classify(ctx context.Context, sess *Session, err error) error {
	switch {
	case exchange.IsClockDrift(err):
		// Биржа отвергла timestamp. Пересинхронизируем часы и повторяем;
		// SyncIfStale гасит шторм синхронизаций из параллельных горутин.
		if _, syncErr := sess.Clock.SyncIfStale(ctx, sess.Client, p.minAge); syncErr != nil {
			p.log.Warn("пересинхронизация часов не удалась",
				utils.AccountID(sess.Account.ID), zap.Error(syncErr))
		} else {
			p.log.Info("часы пересинхронизированы после дрейфа",
				utils.AccountID(sess.Account.ID),
				zap.Int64("clock_offset_ms", sess.Clock.Offset().Milliseconds()))
		}
		return retry.Temporary(err)

	case exchange.IsAuthError(err):
		// Ключи невалидны или права отозваны - повторы бессмысленны
		p.Deactivate(ctx, sess.Account.ID, err.Error())
		return retry.Permanent(err)

	default:
		return err
	}
}
