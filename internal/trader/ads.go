package trader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"p2pdesk/internal/config"
	"p2pdesk/internal/exchange"
	"p2pdesk/internal/models"
	"p2pdesk/internal/repository"
	"p2pdesk/pkg/utils"
)

var (
	// ErrAdAlreadyPlaced - под выплату уже размещено живое объявление
	ErrAdAlreadyPlaced = errors.New("под выплату уже размещено объявление")
)

// AdStore - хранилище объявлений
type AdStore interface {
	Create(ctx context.Context, ad *models.Advertisement) error
	GetByID(ctx context.Context, id int64) (*models.Advertisement, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.Advertisement, error)
	GetByPayout(ctx context.Context, payoutID string) ([]*models.Advertisement, error)
	GetByStatus(ctx context.Context, status string) ([]*models.Advertisement, error)
	GetLive(ctx context.Context) ([]*models.Advertisement, error)
	UpdatePrice(ctx context.Context, id int64, price decimal.Decimal) error
	SetStatus(ctx context.Context, id int64, status string) error
	MarkDeleted(ctx context.Context, id int64) error
}

// PayoutStore - доступ трейдера к выплатам
type PayoutStore interface {
	GetByID(ctx context.Context, id string) (*models.Payout, error)
	GetByStatus(ctx context.Context, status string) ([]*models.Payout, error)
	Link(ctx context.Context, id string, transactionID int64) error
	Reopen(ctx context.Context, id string) error
}

// AdManager размещает объявления под открытые выплаты и убирает их
// после закрытия сделки. Слот аккаунта резервируется до похода на биржу
// и освобождается при любом сбое: лимит объявлений не превышается даже
// при параллельной обработке выплат.
type AdManager struct {
	pool     AccountPool
	ads      AdStore
	payouts  PayoutStore
	notifier Notifier  // допускается nil
	events   EventSink // допускается nil
	cfg      config.AdsConfig
	log      *utils.Logger
}

// NewAdManager создает менеджер объявлений
func NewAdManager(p AccountPool, ads AdStore, payouts PayoutStore, notifier Notifier, events EventSink, cfg config.AdsConfig) *AdManager {
	return &AdManager{
		pool:     p,
		ads:      ads,
		payouts:  payouts,
		notifier: notifier,
		events:   events,
		cfg:      cfg,
		log:      utils.GetGlobalLogger().WithComponent("ads"),
	}
}

// CreateForPayout размещает объявление на продажу актива под открытую
// выплату: контрагент переводит фиат на реквизиты выплаты и забирает актив.
// Лимиты объявления равны сумме выплаты, чтобы один ордер закрывал её
// целиком. Сбой на любом шаге не оставляет локальной записи.
func (am *AdManager) CreateForPayout(ctx context.Context, payoutID string) (*models.Advertisement, error) {
	payout, err := am.payouts.GetByID(ctx, payoutID)
	if err != nil {
		return nil, fmt.Errorf("загрузка выплаты: %w", err)
	}
	if payout.Status != models.PayoutStatusOpen {
		return nil, fmt.Errorf("выплата %s в статусе %s: %w",
			payout.ID, payout.Status, repository.ErrPayoutNotOpen)
	}

	existing, err := am.ads.GetByPayout(ctx, payoutID)
	if err != nil {
		return nil, fmt.Errorf("проверка объявлений выплаты: %w", err)
	}
	for _, ad := range existing {
		if ad.IsLive() {
			return nil, ErrAdAlreadyPlaced
		}
	}

	sess, err := am.pool.NextForPlacement(ctx)
	if err != nil {
		return nil, err
	}
	accountID := sess.Account.ID

	price, err := am.resolvePrice(ctx, accountID, payout.Currency)
	if err != nil {
		am.pool.ReleaseSlot(ctx, accountID)
		return nil, fmt.Errorf("расчёт цены объявления: %w", err)
	}

	req := &exchange.CreateAdRequest{
		Side:           models.AdSideSell,
		Asset:          am.cfg.Asset,
		Fiat:           payout.Currency,
		PriceType:      am.cfg.PriceMode,
		Price:          price,
		Premium:        am.cfg.Premium,
		Quantity:       payout.Amount.DivRound(price, 8),
		MinAmount:      payout.Amount,
		MaxAmount:      payout.Amount,
		PaymentMethods: am.cfg.PaymentMethods,
		Remark:         am.cfg.Remark,
	}

	var info *exchange.AdInfo
	err = am.pool.Execute(ctx, accountID, "create_ad", func(ctx context.Context, c exchange.Client) error {
		var opErr error
		info, opErr = c.CreateAd(ctx, req)
		return opErr
	})
	if err != nil {
		am.pool.ReleaseSlot(ctx, accountID)
		return nil, fmt.Errorf("размещение объявления: %w", err)
	}

	ad := &models.Advertisement{
		ExternalID:     info.ID,
		AccountID:      accountID,
		PayoutID:       &payout.ID,
		Side:           models.AdSideSell,
		Asset:          am.cfg.Asset,
		Fiat:           payout.Currency,
		PriceMode:      am.cfg.PriceMode,
		Price:          price,
		Premium:        am.cfg.Premium,
		Quantity:       req.Quantity,
		MinAmount:      payout.Amount,
		MaxAmount:      payout.Amount,
		PaymentMethods: am.cfg.PaymentMethods,
		Remark:         am.cfg.Remark,
		Status:         models.AdStatusOnline,
	}
	if err := am.ads.Create(ctx, ad); err != nil {
		// Объявление уже висит на площадке без локальной записи -
		// снимаем его, иначе придёт неотслеживаемый ордер
		am.rollbackPlacement(ctx, accountID, info.ID)
		return nil, fmt.Errorf("запись объявления: %w", err)
	}

	RecordAdLifecycle("created")
	am.log.Info("объявление размещено",
		utils.AdID(ad.ExternalID),
		utils.AccountID(accountID),
		utils.PayoutID(payout.ID),
		utils.Amount(payout.Amount),
		zap.String("price", price.String()))

	am.notify(ctx, models.NotificationTypeAdCreated, models.SeverityInfo, nil,
		fmt.Sprintf("Объявление %s размещено под выплату %s на %s %s",
			ad.ExternalID, payout.ID, payout.Amount.String(), payout.Currency),
		map[string]interface{}{"advertisement_id": ad.ID, "payout_id": payout.ID})
	if am.events != nil {
		am.events.AdvertisementCreated(ad)
	}
	return ad, nil
}

// rollbackPlacement снимает объявление, созданное на площадке, но не
// записанное локально. Ошибка отката только логируется: повтор невозможен,
// оператор увидит расхождение в уведомлениях.
func (am *AdManager) rollbackPlacement(ctx context.Context, accountID int64, externalID string) {
	err := am.pool.Execute(ctx, accountID, "delete_ad", func(ctx context.Context, c exchange.Client) error {
		return c.DeleteAd(ctx, externalID)
	})
	if err != nil {
		am.log.Error("откат размещения не удался, объявление осталось на площадке",
			utils.AdID(externalID), utils.AccountID(accountID), zap.Error(err))
		am.notify(ctx, models.NotificationTypeAccountError, models.SeverityError, nil,
			fmt.Sprintf("Объявление %s осталось на площадке без локальной записи", externalID),
			map[string]interface{}{"external_id": externalID, "account_id": accountID})
	}
	am.pool.ReleaseSlot(ctx, accountID)
}

// SetOnline выводит объявление на витрину или снимает с неё
func (am *AdManager) SetOnline(ctx context.Context, adID int64, online bool) error {
	ad, err := am.ads.GetByID(ctx, adID)
	if err != nil {
		return err
	}
	if !ad.IsLive() {
		return fmt.Errorf("объявление %d удалено: %w", adID, repository.ErrAdvertisementNotFound)
	}

	err = am.pool.Execute(ctx, ad.AccountID, "set_ad_status", func(ctx context.Context, c exchange.Client) error {
		return c.SetAdStatus(ctx, ad.ExternalID, online)
	})
	if err != nil {
		return fmt.Errorf("переключение объявления: %w", err)
	}

	status := models.AdStatusOffline
	if online {
		status = models.AdStatusOnline
	}
	if err := am.ads.SetStatus(ctx, adID, status); err != nil {
		return err
	}
	ad.Status = status

	am.log.Info("объявление переключено", utils.AdID(ad.ExternalID), zap.Bool("online", online))
	if am.events != nil {
		am.events.AdvertisementToggled(ad)
	}
	return nil
}

// Teardown убирает объявление с площадки и освобождает слот аккаунта.
// Вызывается при терминальном статусе сделки. Повторный вызов для уже
// удалённого объявления - no-op.
func (am *AdManager) Teardown(ctx context.Context, adID int64) error {
	ad, err := am.ads.GetByID(ctx, adID)
	if err != nil {
		return err
	}
	if ad.Status == models.AdStatusDeleted {
		return nil
	}

	if _, err := am.pool.Get(ad.AccountID); err != nil {
		// Аккаунт выбыл из пула (деактивация): на площадку не попасть,
		// закрываем запись локально, чтобы выплата могла пойти заново
		am.log.Warn("аккаунт недоступен, объявление закрыто только локально",
			utils.AdID(ad.ExternalID), utils.AccountID(ad.AccountID), zap.Error(err))
		return am.finishTeardown(ctx, ad)
	}

	err = am.pool.Execute(ctx, ad.AccountID, "set_ad_status", func(ctx context.Context, c exchange.Client) error {
		return c.SetAdStatus(ctx, ad.ExternalID, false)
	})
	if err != nil {
		// Снятие с витрины - подстраховка перед удалением, само удаление важнее
		am.log.Warn("объявление не снялось с витрины перед удалением",
			utils.AdID(ad.ExternalID), zap.Error(err))
	}

	err = am.pool.Execute(ctx, ad.AccountID, "delete_ad", func(ctx context.Context, c exchange.Client) error {
		return c.DeleteAd(ctx, ad.ExternalID)
	})
	if err != nil {
		return fmt.Errorf("удаление объявления %s: %w", ad.ExternalID, err)
	}

	return am.finishTeardown(ctx, ad)
}

// finishTeardown закрывает локальную запись и освобождает слот
func (am *AdManager) finishTeardown(ctx context.Context, ad *models.Advertisement) error {
	if err := am.ads.MarkDeleted(ctx, ad.ID); err != nil {
		return err
	}
	am.pool.ReleaseSlot(ctx, ad.AccountID)
	ad.Status = models.AdStatusDeleted

	RecordAdLifecycle("deleted")
	am.log.Info("объявление удалено", utils.AdID(ad.ExternalID), utils.AccountID(ad.AccountID))

	am.notify(ctx, models.NotificationTypeAdDeleted, models.SeverityInfo, nil,
		fmt.Sprintf("Объявление %s удалено", ad.ExternalID),
		map[string]interface{}{"advertisement_id": ad.ID})
	if am.events != nil {
		am.events.AdvertisementDeleted(ad)
	}
	return nil
}

// RefreshPrices пересчитывает цены float-объявлений на витрине от текущего
// рынка. Ошибки отдельных объявлений не прерывают проход. Возвращает число
// обновлённых объявлений.
func (am *AdManager) RefreshPrices(ctx context.Context) (int, error) {
	ads, err := am.ads.GetByStatus(ctx, models.AdStatusOnline)
	if err != nil {
		return 0, fmt.Errorf("загрузка объявлений: %w", err)
	}

	updated := 0
	market := make(map[string]decimal.Decimal) // кэш рыночной цены на проход, ключ asset|fiat

	for _, ad := range ads {
		if ctx.Err() != nil {
			return updated, ctx.Err()
		}
		if ad.PriceMode != models.PriceModeFloat {
			continue
		}

		key := ad.Asset + "|" + ad.Fiat
		base, ok := market[key]
		if !ok {
			base, err = am.marketPrice(ctx, ad.AccountID, ad.Asset, ad.Fiat)
			if err != nil {
				am.log.Warn("рыночная цена недоступна",
					utils.AdID(ad.ExternalID), zap.String("pair", key), zap.Error(err))
				continue
			}
			market[key] = base
		}

		price := utils.RoundToTick(utils.ApplyPremium(base, ad.Premium), am.cfg.PriceTick)
		if price.LessThanOrEqual(decimal.Zero) || price.Equal(ad.Price) {
			continue
		}

		req := &exchange.UpdateAdRequest{
			AdID:      ad.ExternalID,
			Price:     price,
			Premium:   ad.Premium,
			Quantity:  ad.MaxAmount.DivRound(price, 8),
			MinAmount: ad.MinAmount,
			MaxAmount: ad.MaxAmount,
		}
		err = am.pool.Execute(ctx, ad.AccountID, "update_ad", func(ctx context.Context, c exchange.Client) error {
			return c.UpdateAd(ctx, req)
		})
		if err != nil {
			am.log.Warn("цена объявления не обновилась",
				utils.AdID(ad.ExternalID), zap.Error(err))
			continue
		}

		if err := am.ads.UpdatePrice(ctx, ad.ID, price); err != nil {
			am.log.Error("цена обновлена на площадке, но не записана",
				utils.AdID(ad.ExternalID), zap.Error(err))
			continue
		}

		am.log.Info("цена объявления пересчитана",
			utils.AdID(ad.ExternalID),
			zap.String("old", ad.Price.String()),
			zap.String("new", price.String()))
		updated++
	}

	if updated > 0 {
		RecordPriceRefresh(updated)
	}
	return updated, nil
}

// SweepOrphans убирает объявления, выплата которых уже не ждёт денег
// (закрыта или заблокирована), а teardown по какой-то причине не прошёл.
// Возвращает число убранных объявлений.
func (am *AdManager) SweepOrphans(ctx context.Context) (int, error) {
	ads, err := am.ads.GetLive(ctx)
	if err != nil {
		return 0, fmt.Errorf("загрузка объявлений: %w", err)
	}

	removed := 0
	for _, ad := range ads {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if ad.PayoutID == nil {
			continue
		}

		payout, err := am.payouts.GetByID(ctx, *ad.PayoutID)
		orphan := false
		switch {
		case errors.Is(err, repository.ErrPayoutNotFound):
			orphan = true
		case err != nil:
			am.log.Warn("выплата объявления не загрузилась",
				utils.AdID(ad.ExternalID), utils.PayoutID(*ad.PayoutID), zap.Error(err))
			continue
		default:
			orphan = !payout.IsOpen()
		}
		if !orphan {
			continue
		}

		if err := am.Teardown(ctx, ad.ID); err != nil {
			am.log.Warn("зависшее объявление не убралось",
				utils.AdID(ad.ExternalID), zap.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}

// marketPrice запрашивает лучшую цену доски через аккаунт
func (am *AdManager) marketPrice(ctx context.Context, accountID int64, asset, fiat string) (decimal.Decimal, error) {
	var price decimal.Decimal
	err := am.pool.Execute(ctx, accountID, "market_price", func(ctx context.Context, c exchange.Client) error {
		var opErr error
		price, opErr = c.MarketPrice(ctx, asset, fiat, models.AdSideSell)
		return opErr
	})
	return price, err
}

// resolvePrice считает цену нового объявления по режиму из конфигурации
func (am *AdManager) resolvePrice(ctx context.Context, accountID int64, fiat string) (decimal.Decimal, error) {
	if am.cfg.PriceMode == models.PriceModeFixed {
		if am.cfg.FixedPrice.LessThanOrEqual(decimal.Zero) {
			return decimal.Zero, errors.New("фиксированная цена не задана")
		}
		return am.cfg.FixedPrice, nil
	}

	base, err := am.marketPrice(ctx, accountID, am.cfg.Asset, fiat)
	if err != nil {
		return decimal.Zero, err
	}
	price := utils.RoundToTick(utils.ApplyPremium(base, am.cfg.Premium), am.cfg.PriceTick)
	if price.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("рынок %s/%s не дал цены", am.cfg.Asset, fiat)
	}
	return price, nil
}

// notify пишет уведомление в операторскую ленту
func (am *AdManager) notify(ctx context.Context, notifType, severity string, txID *int64, message string, meta map[string]interface{}) {
	if am.notifier == nil {
		return
	}
	am.notifier.Publish(ctx, &models.Notification{
		Timestamp:     time.Now(),
		Type:          notifType,
		Severity:      severity,
		TransactionID: txID,
		Message:       message,
		Meta:          meta,
	})
}
