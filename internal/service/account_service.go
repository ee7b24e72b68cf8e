package service

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"p2pdesk/internal/exchange"
	"p2pdesk/internal/models"
	"p2pdesk/internal/pool"
	"p2pdesk/internal/repository"
	"p2pdesk/pkg/crypto"
	"p2pdesk/pkg/utils"
)

// Ошибки сервиса аккаунтов
var (
	ErrAccountLabelEmpty  = errors.New("метка аккаунта не может быть пустой")
	ErrAccountLabelExists = errors.New("аккаунт с такой меткой уже существует")
	ErrAccountNotFound    = errors.New("аккаунт не найден")
	ErrAccountInactive    = errors.New("аккаунт выключен")
	ErrInvalidCredentials = errors.New("биржа отклонила API ключи")
	ErrInvalidAdCap       = errors.New("лимит объявлений должен быть не меньше 1")
)

// SessionPool - доступ сервиса к пулу живых сессий движка.
// Допускается nil: тогда создание/деактивация аккаунта применится
// к пулу при следующем запуске движка.
type SessionPool interface {
	Add(ctx context.Context, acc *models.ExchangeAccount) error
	Remove(id int64)
}

// AccountService предоставляет бизнес-логику управления P2P-аккаунтами.
//
// Отвечает за:
// - Создание аккаунта с проверкой ключей на бирже
// - Шифрование API ключей перед сохранением (AES-256-GCM)
// - Деактивацию аккаунта и вывод его из пула
// - Тестовый прогон: подпись, часы, баланс funding-кошелька
type AccountService struct {
	accountRepo AccountRepositoryInterface
	factory     pool.ClientFactory
	aesKey      []byte
	pool        SessionPool // допускается nil
}

// NewAccountService создает новый экземпляр AccountService.
func NewAccountService(
	accountRepo AccountRepositoryInterface,
	factory pool.ClientFactory,
	encryptionKey []byte,
) *AccountService {
	return &AccountService{
		accountRepo: accountRepo,
		factory:     factory,
		aesKey:      encryptionKey,
	}
}

// SetSessionPool привязывает пул движка: созданные и деактивированные
// аккаунты применяются к работающему движку без перезапуска.
func (s *AccountService) SetSessionPool(p SessionPool) {
	s.pool = p
}

// CreateAccountRequest представляет запрос на добавление аккаунта.
type CreateAccountRequest struct {
	Label        string `json:"label"`
	APIKey       string `json:"api_key"`
	SecretKey    string `json:"secret_key"`
	ProxyURL     string `json:"proxy_url,omitempty"`
	MaxActiveAds int    `json:"max_active_ads"`
}

// CreateAccount добавляет аккаунт.
//
// Выполняет:
// 1. Валидацию метки, ключей и лимита объявлений
// 2. Тестовое подключение к бирже (проверка подписи ключей)
// 3. Шифрование ключей перед сохранением
// 4. Сохранение в БД и добавление в пул работающего движка
func (s *AccountService) CreateAccount(ctx context.Context, req *CreateAccountRequest) (*models.ExchangeAccount, error) {
	label := strings.TrimSpace(req.Label)
	if label == "" {
		return nil, ErrAccountLabelEmpty
	}
	if err := utils.ValidateAPIKey(req.APIKey); err != nil {
		return nil, err
	}
	if err := utils.ValidateAPISecret(req.SecretKey); err != nil {
		return nil, err
	}
	if req.MaxActiveAds < 1 {
		return nil, ErrInvalidAdCap
	}

	acc := &models.ExchangeAccount{
		Label:        label,
		ProxyURL:     strings.TrimSpace(req.ProxyURL),
		Active:       true,
		MaxActiveAds: req.MaxActiveAds,
	}

	// Тестовое подключение до записи в БД: битые ключи не сохраняются
	client, err := s.factory(acc, req.APIKey, req.SecretKey, exchange.NewClockSync())
	if err != nil {
		return nil, err
	}
	defer client.Close()

	if err := client.Verify(ctx); err != nil {
		return nil, errors.Join(ErrInvalidCredentials, err)
	}

	// Шифруем ключи перед сохранением
	encryptedAPIKey, err := crypto.Encrypt(req.APIKey, s.aesKey)
	if err != nil {
		return nil, err
	}
	encryptedSecret, err := crypto.Encrypt(req.SecretKey, s.aesKey)
	if err != nil {
		return nil, err
	}

	acc.APIKey = encryptedAPIKey
	acc.SecretKey = encryptedSecret

	if err := s.accountRepo.Create(ctx, acc); err != nil {
		if errors.Is(err, repository.ErrAccountExists) {
			return nil, ErrAccountLabelExists
		}
		return nil, err
	}

	// Работающий движок подхватывает аккаунт сразу
	if s.pool != nil {
		if err := s.pool.Add(ctx, acc); err != nil {
			// Аккаунт сохранён, сессия не поднялась: оператор увидит
			// ошибку в статусе, движок доберёт аккаунт при рестарте
			_ = s.accountRepo.SetStatus(ctx, acc.ID, true, err.Error())
		}
	}

	return acc, nil
}

// GetAccounts возвращает все аккаунты. Ключи не сериализуются в JSON.
func (s *AccountService) GetAccounts(ctx context.Context) ([]*models.ExchangeAccount, error) {
	accounts, err := s.accountRepo.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	if accounts == nil {
		accounts = []*models.ExchangeAccount{}
	}

	return accounts, nil
}

// GetAccount возвращает один аккаунт.
func (s *AccountService) GetAccount(ctx context.Context, id int64) (*models.ExchangeAccount, error) {
	acc, err := s.accountRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return acc, nil
}

// DeactivateAccount выключает аккаунт: его сессия выводится из пула,
// объявления и открытые сделки доживают через другие циклы движка.
// Запись в БД остаётся - аккаунт можно включить обратно.
func (s *AccountService) DeactivateAccount(ctx context.Context, id int64, reason string) error {
	if _, err := s.GetAccount(ctx, id); err != nil {
		return err
	}

	if err := s.accountRepo.SetStatus(ctx, id, false, reason); err != nil {
		return err
	}

	if s.pool != nil {
		s.pool.Remove(id)
	}

	return nil
}

// ActivateAccount включает выключенный аккаунт и поднимает его сессию.
func (s *AccountService) ActivateAccount(ctx context.Context, id int64) error {
	acc, err := s.GetAccount(ctx, id)
	if err != nil {
		return err
	}

	if err := s.accountRepo.SetStatus(ctx, id, true, ""); err != nil {
		return err
	}

	if s.pool != nil {
		acc.Active = true
		if err := s.pool.Add(ctx, acc); err != nil {
			_ = s.accountRepo.SetStatus(ctx, id, true, err.Error())
		}
	}

	return nil
}

// TestResult - итог тестового прогона аккаунта.
type TestResult struct {
	Label       string          `json:"label"`
	ClockOffset int64           `json:"clock_offset_ms"`
	Balance     decimal.Decimal `json:"balance"`
	Asset       string          `json:"asset"`
}

// TestAccount выполняет подписанный прогон: расшифровывает ключи,
// синхронизирует часы, проверяет подпись и читает баланс funding-кошелька.
// Аккаунт в БД не меняется.
func (s *AccountService) TestAccount(ctx context.Context, id int64, asset string) (*TestResult, error) {
	acc, err := s.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if !acc.Active {
		return nil, ErrAccountInactive
	}

	apiKey, err := crypto.Decrypt(acc.APIKey, s.aesKey)
	if err != nil {
		return nil, err
	}
	secretKey, err := crypto.Decrypt(acc.SecretKey, s.aesKey)
	if err != nil {
		return nil, err
	}

	clock := exchange.NewClockSync()
	client, err := s.factory(acc, apiKey, secretKey, clock)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	if err := clock.Sync(ctx, client); err != nil {
		return nil, err
	}
	if err := client.Verify(ctx); err != nil {
		return nil, errors.Join(ErrInvalidCredentials, err)
	}

	if asset == "" {
		asset = "USDT"
	}
	balance, err := client.Balance(ctx, asset)
	if err != nil {
		return nil, err
	}

	return &TestResult{
		Label:       acc.Label,
		ClockOffset: clock.Offset().Milliseconds(),
		Balance:     balance,
		Asset:       asset,
	}, nil
}
