package service

import (
	"context"
	"errors"

	"p2pdesk/internal/models"
	"p2pdesk/internal/repository"
)

// Ошибки сервиса черного списка
var (
	ErrBlacklistEntryNotFound = errors.New("запись черного списка не найдена")
)

// BlacklistService предоставляет бизнес-логику чёрного списка реквизитов.
//
// Записи создаёт сопоставитель при дублях реквизитов; автоматика их
// никогда не удаляет. Сервис даёт оператору разобрать конфликт:
// удалить запись и вернуть выплату в работу.
//
// Отвечает за:
// - Получение списка заблокированных выплат
// - Разбор конфликта оператором (Resolve)
// - Проверку, заблокирован ли кошелёк
type BlacklistService struct {
	blacklistRepo BlacklistRepositoryInterface
	payoutRepo    PayoutRepositoryInterface
}

// NewBlacklistService создает новый экземпляр BlacklistService.
func NewBlacklistService(
	blacklistRepo BlacklistRepositoryInterface,
	payoutRepo PayoutRepositoryInterface,
) *BlacklistService {
	return &BlacklistService{
		blacklistRepo: blacklistRepo,
		payoutRepo:    payoutRepo,
	}
}

// GetBlacklist возвращает весь черный список.
//
// Записи отсортированы по дате добавления (новые сверху).
func (s *BlacklistService) GetBlacklist(ctx context.Context) ([]*models.BlacklistedTransaction, error) {
	entries, err := s.blacklistRepo.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	// Гарантируем возврат пустого массива вместо nil
	if entries == nil {
		entries = []*models.BlacklistedTransaction{}
	}

	return entries, nil
}

// GetByID возвращает одну запись черного списка.
func (s *BlacklistService) GetByID(ctx context.Context, id int64) (*models.BlacklistedTransaction, error) {
	entry, err := s.blacklistRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrBlacklistEntryNotFound) {
			return nil, ErrBlacklistEntryNotFound
		}
		return nil, err
	}
	return entry, nil
}

// Resolve разбирает конфликт: удаляет запись черного списка и возвращает
// выплату в статус open - сопоставитель снова начнёт подбирать ей платёж.
//
// Вызывается оператором после проверки реквизитов вручную. Если выплата
// уже удалена или закрыта, запись всё равно снимается.
func (s *BlacklistService) Resolve(ctx context.Context, id int64) error {
	entry, err := s.blacklistRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrBlacklistEntryNotFound) {
			return ErrBlacklistEntryNotFound
		}
		return err
	}

	// Выплату возвращаем в работу до удаления записи: при сбое между
	// шагами оператор увидит запись и повторит разбор
	if err := s.payoutRepo.Unblacklist(ctx, entry.PayoutID); err != nil &&
		!errors.Is(err, repository.ErrPayoutNotFound) {
		return err
	}

	return s.blacklistRepo.Delete(ctx, id)
}

// IsWalletBlacklisted проверяет, заблокирован ли кошелёк.
func (s *BlacklistService) IsWalletBlacklisted(ctx context.Context, wallet string) (bool, error) {
	return s.blacklistRepo.ExistsWallet(ctx, wallet)
}

// GetCount возвращает количество записей в черном списке.
func (s *BlacklistService) GetCount(ctx context.Context) (int, error) {
	return s.blacklistRepo.Count(ctx)
}
