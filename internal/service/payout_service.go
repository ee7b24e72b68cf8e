package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"p2pdesk/internal/models"
	"p2pdesk/internal/repository"
	"p2pdesk/pkg/utils"
)

// Ошибки сервиса выплат
var (
	ErrPayoutNotFound      = errors.New("выплата не найдена")
	ErrPayoutNotOpen       = errors.New("выплата уже привязана или закрыта")
	ErrInvalidPayoutAmount = errors.New("сумма выплаты должна быть больше нуля")
)

// PayoutService предоставляет бизнес-логику работы с ожидаемыми выплатами.
//
// Выплата - это заявленный входящий фиатный перевод (сумма плюс реквизиты),
// по которому сопоставитель опознаёт платёж контрагента. Удалять можно
// только открытые выплаты: привязанные и закрытые входят в историю сделок.
type PayoutService struct {
	payoutRepo PayoutRepositoryInterface
}

// NewPayoutService создает новый экземпляр PayoutService.
func NewPayoutService(payoutRepo PayoutRepositoryInterface) *PayoutService {
	return &PayoutService{payoutRepo: payoutRepo}
}

// CreatePayoutRequest представляет запрос на регистрацию выплаты.
type CreatePayoutRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Wallet   string          `json:"wallet"`
	Bank     string          `json:"bank,omitempty"`
}

// CreatePayout регистрирует ожидаемую выплату.
//
/// Выполняет:
// 1. Валидацию суммы, валюты и реквизитов
// 2. Назначение UUID
// 3. Сохранение со статусом open
func (s *PayoutService) CreatePayout(ctx context.Context, req *CreatePayoutRequest) (*models.Payout, error) {
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidPayoutAmount
	}
	if err := utils.ValidateFiat(req.Currency); err != nil {
		return nil, err
	}
	if err := utils.ValidateWallet(req.Wallet); err != nil {
		return nil, err
	}

	payout := &models.Payout{
		ID:       uuid.NewString(),
		Amount:   req.Amount,
		Currency: strings.ToUpper(req.Currency),
		Wallet:   utils.NormalizeWallet(req.Wallet),
		Bank:     strings.TrimSpace(req.Bank),
		Status:   models.PayoutStatusOpen,
	}

	if err := s.payoutRepo.Create(ctx, payout); err != nil {
		return nil, err
	}

	return payout, nil
}

// GetPayouts возвращает выплаты, опционально отфильтрованные по статусу.
// Пустой статус означает все выплаты (последние сверху).
func (s *PayoutService) GetPayouts(ctx context.Context, status string, limit int) ([]*models.Payout, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}

	var (
		payouts []*models.Payout
		err     error
	)
	if status == "" {
		payouts, err = s.payoutRepo.GetRecent(ctx, limit)
	} else {
		payouts, err = s.payoutRepo.GetByStatus(ctx, status)
	}
	if err != nil {
		return nil, err
	}

	if payouts == nil {
		payouts = []*models.Payout{}
	}

	return payouts, nil
}

// GetPayout возвращает одну выплату.
func (s *PayoutService) GetPayout(ctx context.Context, id string) (*models.Payout, error) {
	payout, err := s.payoutRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrPayoutNotFound) {
			return nil, ErrPayoutNotFound
		}
		return nil, err
	}
	return payout, nil
}

// DeletePayout удаляет открытую выплату. Привязанные и закрытые выплаты
// не удаляются - они ссылаются на сделки.
func (s *PayoutService) DeletePayout(ctx context.Context, id string) error {
	payout, err := s.GetPayout(ctx, id)
	if err != nil {
		return err
	}
	if payout.Status != models.PayoutStatusOpen {
		return ErrPayoutNotOpen
	}

	if err := s.payoutRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrPayoutNotFound) {
			// выплату успели привязать между чтением и удалением
			return ErrPayoutNotOpen
		}
		return err
	}
	return nil
}

// GetPayoutCounts возвращает количество выплат по каждому статусу.
func (s *PayoutService) GetPayoutCounts(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int, 4)
	for _, status := range []string{
		models.PayoutStatusOpen,
		models.PayoutStatusLinked,
		models.PayoutStatusSettled,
		models.PayoutStatusBlacklisted,
	} {
		n, err := s.payoutRepo.CountByStatus(ctx, status)
		if err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, nil
}
