package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Client определяет операции P2P-площадки, которые нужны движку.
// Реализация привязана к одному аккаунту: ключи, прокси и поправка часов
// задаются при создании.
type Client interface {
	// Verify проверяет ключи и запоминает ID пользователя площадки
	// (нужен, чтобы отличать свои сообщения в чате от чужих)
	Verify(ctx context.Context) error

	// ServerTime возвращает текущее время площадки
	ServerTime(ctx context.Context) (time.Time, error)

	// MarketPrice возвращает лучшую цену доски объявлений для пары актив/фиат
	MarketPrice(ctx context.Context, asset, fiat, side string) (decimal.Decimal, error)

	// CreateAd размещает объявление и возвращает его биржевой ID
	CreateAd(ctx context.Context, req *CreateAdRequest) (*AdInfo, error)

	// UpdateAd меняет цену и лимиты размещённого объявления
	UpdateAd(ctx context.Context, req *UpdateAdRequest) error

	// SetAdStatus выводит объявление на витрину или снимает с неё
	SetAdStatus(ctx context.Context, adID string, online bool) error

	// DeleteAd удаляет объявление с площадки
	DeleteAd(ctx context.Context, adID string) error

	// OpenOrders возвращает незакрытые ордера по нашим объявлениям
	OpenOrders(ctx context.Context) ([]*OrderInfo, error)

	// OrderDetail возвращает полное состояние одного ордера
	OrderDetail(ctx context.Context, orderID string) (*OrderInfo, error)

	// ChatMessages возвращает последние сообщения чата ордера
	ChatMessages(ctx context.Context, orderID string, limit int) ([]*ChatMessageInfo, error)

	// SendChatMessage отправляет текст в чат ордера
	SendChatMessage(ctx context.Context, orderID, content string) error

	// MarkOrderPaid отмечает фиатный перевод выполненным (наша сторона покупает)
	MarkOrderPaid(ctx context.Context, orderID string) error

	// ReleaseOrder отпускает актив контрагенту и закрывает ордер
	ReleaseOrder(ctx context.Context, orderID string) error

	// Balance возвращает остаток актива на funding-кошельке
	Balance(ctx context.Context, asset string) (decimal.Decimal, error)

	// Close закрывает соединения клиента
	Close() error
}

// Канонические статусы ордера. Значения совпадают со статусами сделки
// в хранилище, трекер записывает их без преобразования.
const (
	OrderStatusPending         = "pending"
	OrderStatusWaitingPayment  = "waiting_payment"
	OrderStatusPaymentReceived = "payment_received"
	OrderStatusCompleted       = "completed"
	OrderStatusCancelled       = "cancelled"
	OrderStatusFailed          = "failed"
)

// Стороны и режимы цены в терминах площадки
const (
	SideBuy  = "buy"
	SideSell = "sell"

	PriceTypeFixed = "fixed"
	PriceTypeFloat = "float"
)

// CreateAdRequest описывает новое объявление
type CreateAdRequest struct {
	Side           string          `json:"side"`
	Asset          string          `json:"asset"`
	Fiat           string          `json:"fiat"`
	PriceType      string          `json:"price_type"`
	Price          decimal.Decimal `json:"price"`   // для fixed
	Premium        decimal.Decimal `json:"premium"` // для float, % от рынка
	Quantity       decimal.Decimal `json:"quantity"`
	MinAmount      decimal.Decimal `json:"min_amount"`
	MaxAmount      decimal.Decimal `json:"max_amount"`
	PaymentMethods []string        `json:"payment_methods"` // ID платёжных методов площадки
	Remark         string          `json:"remark"`
}

// UpdateAdRequest описывает изменение размещённого объявления
type UpdateAdRequest struct {
	AdID      string          `json:"ad_id"`
	Price     decimal.Decimal `json:"price"`
	Premium   decimal.Decimal `json:"premium"`
	Quantity  decimal.Decimal `json:"quantity"`
	MinAmount decimal.Decimal `json:"min_amount"`
	MaxAmount decimal.Decimal `json:"max_amount"`
}

// AdInfo - объявление в ответе площадки
type AdInfo struct {
	ID        string          `json:"id"`
	Side      string          `json:"side"`
	Asset     string          `json:"asset"`
	Fiat      string          `json:"fiat"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	MinAmount decimal.Decimal `json:"min_amount"`
	MaxAmount decimal.Decimal `json:"max_amount"`
	Online    bool            `json:"online"`
}

// OrderInfo - ордер в ответе площадки. Status уже приведён к каноническому
// виду, RawStatus хранит исходный код площадки для диагностики.
type OrderInfo struct {
	OrderID              string          `json:"order_id"`
	AdID                 string          `json:"ad_id"`
	Side                 string          `json:"side"`
	Asset                string          `json:"asset"`
	Fiat                 string          `json:"fiat"`
	Price                decimal.Decimal `json:"price"`
	FiatAmount           decimal.Decimal `json:"fiat_amount"`
	AssetAmount          decimal.Decimal `json:"asset_amount"`
	Status               string          `json:"status"`
	RawStatus            int             `json:"raw_status"`
	CounterpartyID       string          `json:"counterparty_id"`
	CounterpartyNickname string          `json:"counterparty_nickname"`
	CreatedAt            time.Time       `json:"created_at"`
}

// ChatMessageInfo - сообщение чата в ответе площадки
type ChatMessageInfo struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	Sender    string    `json:"sender"` // us | counterparty
	Type      string    `json:"type"`   // text | system
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Отправители и типы сообщений чата
const (
	ChatSenderUs           = "us"
	ChatSenderCounterparty = "counterparty"

	ChatTypeText   = "text"
	ChatTypeSystem = "system"
)
