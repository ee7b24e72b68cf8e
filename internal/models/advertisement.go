package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// ОБЪЯВЛЕНИЕ НА P2P-ПЛОЩАДКЕ
// ============================================================================

// Статусы объявления
const (
	AdStatusOnline  = "online"  // опубликовано и видно контрагентам
	AdStatusOffline = "offline" // снято с витрины, но не удалено
	AdStatusDeleted = "deleted" // удалено на бирже
)

// Стороны объявления
const (
	AdSideBuy  = "buy"  // покупаем актив, фиат переводим мы
	AdSideSell = "sell" // продаём актив, фиат переводит контрагент
)

// Режимы ценообразования
const (
	PriceModeFixed = "fixed" // фиксированная цена
	PriceModeFloat = "float" // процент от рыночной цены
)

// Advertisement представляет объявление, размещённое ботом на бирже.
// ExternalID появляется после успешного создания на площадке; до этого
// момента запись существует только локально.
type Advertisement struct {
	ID             int64           `json:"id" db:"id"`
	ExternalID     string          `json:"external_id" db:"external_id"` // ID объявления на бирже
	AccountID      int64           `json:"account_id" db:"account_id"`
	PayoutID       *string         `json:"payout_id,omitempty" db:"payout_id"` // выплата, под которую создано объявление
	Side           string          `json:"side" db:"side"`
	Asset          string          `json:"asset" db:"asset"` // USDT, BTC
	Fiat           string          `json:"fiat" db:"fiat"`   // RUB, KZT
	PriceMode      string          `json:"price_mode" db:"price_mode"`
	Price          decimal.Decimal `json:"price" db:"price"`     // итоговая цена за единицу актива
	Premium        decimal.Decimal `json:"premium" db:"premium"` // % от рынка для float (102.5 = рынок +2.5%)
	Quantity       decimal.Decimal `json:"quantity" db:"quantity"`
	MinAmount      decimal.Decimal `json:"min_amount" db:"min_amount"` // лимиты сделки в фиате
	MaxAmount      decimal.Decimal `json:"max_amount" db:"max_amount"`
	PaymentMethods []string        `json:"payment_methods" db:"payment_methods"`
	Remark         string          `json:"remark,omitempty" db:"remark"` // текст условий в объявлении
	Status         string          `json:"status" db:"status"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// IsLive сообщает, занимает ли объявление слот на аккаунте.
func (a *Advertisement) IsLive() bool {
	return a.Status == AdStatusOnline || a.Status == AdStatusOffline
}
