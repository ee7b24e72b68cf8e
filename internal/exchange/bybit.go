package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
)

// Разбор ответов площадки - горячий путь опроса, поэтому jsoniter
var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	defaultBaseURL    = "https://api.bybit.com"
	defaultRecvWindow = 5000
)

// Эндпоинты P2P API
const (
	pathServerTime   = "/v5/market/time"
	pathOnlineAds    = "/v5/p2p/item/online"
	pathCreateAd     = "/v5/p2p/item/create"
	pathUpdateAd     = "/v5/p2p/item/update"
	pathCancelAd     = "/v5/p2p/item/cancel"
	pathOrderList    = "/v5/p2p/order/simplifyList"
	pathOrderInfo    = "/v5/p2p/order/info"
	pathChatList     = "/v5/p2p/order/message/listpage"
	pathChatSend     = "/v5/p2p/order/message/send"
	pathOrderPay     = "/v5/p2p/order/pay"
	pathOrderFinish  = "/v5/p2p/order/finish"
	pathPersonalInfo = "/v5/p2p/user/personal/info"
	pathFundBalance  = "/v5/asset/transfer/query-account-coins-balance"
)

// BybitP2PConfig - параметры клиента одного аккаунта
type BybitP2PConfig struct {
	APIKey     string
	SecretKey  string
	BaseURL    string        // пусто = боевой адрес
	RecvWindow int           // мс, пусто = 5000
	ProxyURL   string        // персональный прокси аккаунта
	Timeout    time.Duration // общий таймаут запроса
	Clock      *ClockSync    // пусто = собственный экземпляр
}

// BybitP2P реализует Client поверх Bybit P2P API v5
type BybitP2P struct {
	apiKey     string
	secretKey  string
	baseURL    string
	recvWindow string

	hc       *HTTPClient
	sharedHC bool // глобальный клиент не закрываем в Close

	clock *ClockSync

	mu     sync.RWMutex
	userID string // наш ID на площадке, заполняется в Verify
}

// NewBybitP2P создает клиент для одного аккаунта. Аккаунт с персональным
// прокси получает собственный connection pool, остальные делят глобальный.
func NewBybitP2P(cfg BybitP2PConfig) (*BybitP2P, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	recvWindow := cfg.RecvWindow
	if recvWindow <= 0 {
		recvWindow = defaultRecvWindow
	}
	clock := cfg.Clock
	if clock == nil {
		clock = NewClockSync()
	}

	var hc *HTTPClient
	var shared bool
	if cfg.ProxyURL == "" {
		hc = GetGlobalHTTPClient()
		shared = true
	} else {
		hcc := DefaultHTTPClientConfig()
		hcc.ProxyURL = cfg.ProxyURL
		if cfg.Timeout > 0 {
			hcc.TotalTimeout = cfg.Timeout
		}
		var err error
		hc, err = NewHTTPClient(hcc)
		if err != nil {
			return nil, err
		}
	}

	return &BybitP2P{
		apiKey:     cfg.APIKey,
		secretKey:  cfg.SecretKey,
		baseURL:    baseURL,
		recvWindow: strconv.Itoa(recvWindow),
		hc:         hc,
		sharedHC:   shared,
		clock:      clock,
	}, nil
}

// Clock возвращает поправку часов клиента
func (b *BybitP2P) Clock() *ClockSync {
	return b.clock
}

// sign создает подпись для запроса к API v5
func (b *BybitP2P) sign(timestamp string, payload string) string {
	message := timestamp + b.apiKey + b.recvWindow + payload
	h := hmac.New(sha256.New, []byte(b.secretKey))
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}

// doRequest выполняет HTTP запрос к API. Для GET подписывается строка
// запроса, для POST - тело целиком. Timestamp всегда берётся из ClockSync.
func (b *BybitP2P) doRequest(ctx context.Context, method, endpoint string, query map[string]string, body interface{}, signed bool) ([]byte, error) {
	var payload string
	var reqURL string
	var reqBody io.Reader

	if method == http.MethodGet {
		values := url.Values{}
		for k, v := range query {
			values.Set(k, v)
		}
		payload = values.Encode()
		if payload != "" {
			reqURL = b.baseURL + endpoint + "?" + payload
		} else {
			reqURL = b.baseURL + endpoint
		}
	} else {
		reqURL = b.baseURL + endpoint
		if body != nil {
			jsonBytes, err := json.Marshal(body)
			if err != nil {
				return nil, err
			}
			payload = string(jsonBytes)
			reqBody = strings.NewReader(payload)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")

	if signed {
		timestamp := strconv.FormatInt(b.clock.NowMillis(), 10)
		signature := b.sign(timestamp, payload)

		req.Header.Set("X-BAPI-API-KEY", b.apiKey)
		req.Header.Set("X-BAPI-SIGN", signature)
		req.Header.Set("X-BAPI-TIMESTAMP", timestamp)
		req.Header.Set("X-BAPI-RECV-WINDOW", b.recvWindow)
	}

	resp, err := b.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	// Проверяем конверт ответа
	var baseResp struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
	}
	if err := json.Unmarshal(respBody, &baseResp); err != nil {
		return nil, fmt.Errorf("unexpected response from %s (http %d): %w", endpoint, resp.StatusCode, err)
	}

	if baseResp.RetCode != 0 {
		return nil, &APIError{
			Code:       baseResp.RetCode,
			Message:    baseResp.RetMsg,
			HTTPStatus: resp.StatusCode,
			Endpoint:   endpoint,
		}
	}

	return respBody, nil
}

// Verify проверяет ключи запросом персонального профиля и запоминает
// наш ID пользователя: без него не отличить свои сообщения в чате
func (b *BybitP2P) Verify(ctx context.Context) error {
	body, err := b.doRequest(ctx, http.MethodPost, pathPersonalInfo, nil, map[string]string{}, true)
	if err != nil {
		return err
	}

	var resp struct {
		Result struct {
			UserID   string `json:"userId"`
			NickName string `json:"nickName"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return err
	}

	if resp.Result.UserID == "" {
		return fmt.Errorf("personal info without userId")
	}

	b.mu.Lock()
	b.userID = resp.Result.UserID
	b.mu.Unlock()
	return nil
}

// ServerTime возвращает текущее время площадки
func (b *BybitP2P) ServerTime(ctx context.Context) (time.Time, error) {
	body, err := b.doRequest(ctx, http.MethodGet, pathServerTime, nil, nil, false)
	if err != nil {
		return time.Time{}, err
	}

	var resp struct {
		Result struct {
			TimeSecond string `json:"timeSecond"`
			TimeNano   string `json:"timeNano"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return time.Time{}, err
	}

	sec, _ := strconv.ParseInt(resp.Result.TimeSecond, 10, 64)
	if sec == 0 {
		return time.Time{}, fmt.Errorf("empty server time")
	}
	nano, _ := strconv.ParseInt(resp.Result.TimeNano, 10, 64)

	return time.Unix(sec, nano%int64(time.Second)), nil
}

// MarketPrice возвращает лучшую цену доски объявлений. Доска отсортирована
// по привлекательности цены, берём первую позицию.
func (b *BybitP2P) MarketPrice(ctx context.Context, asset, fiat, side string) (decimal.Decimal, error) {
	reqBody := map[string]string{
		"tokenId":    asset,
		"currencyId": fiat,
		"side":       p2pSideCode(side),
		"page":       "1",
		"size":       "10",
	}

	body, err := b.doRequest(ctx, http.MethodPost, pathOnlineAds, nil, reqBody, false)
	if err != nil {
		return decimal.Zero, err
	}

	var resp struct {
		Result struct {
			Count int `json:"count"`
			Items []struct {
				ID    string `json:"id"`
				Price string `json:"price"`
			} `json:"items"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, err
	}

	if len(resp.Result.Items) == 0 {
		return decimal.Zero, fmt.Errorf("no online ads for %s/%s", asset, fiat)
	}

	price := parseDecimal(resp.Result.Items[0].Price)
	if price.IsZero() {
		return decimal.Zero, fmt.Errorf("unparsable board price for %s/%s", asset, fiat)
	}
	return price, nil
}

// CreateAd размещает объявление
func (b *BybitP2P) CreateAd(ctx context.Context, req *CreateAdRequest) (*AdInfo, error) {
	reqBody := map[string]interface{}{
		"tokenId":    req.Asset,
		"currencyId": req.Fiat,
		"side":       p2pSideCode(req.Side),
		"priceType":  p2pPriceTypeCode(req.PriceType),
		"quantity":   req.Quantity.String(),
		"minAmount":  req.MinAmount.String(),
		"maxAmount":  req.MaxAmount.String(),
		"paymentIds": req.PaymentMethods,
		"remark":     req.Remark,
	}
	if req.PriceType == PriceTypeFloat {
		reqBody["premium"] = req.Premium.String()
	}
	// Цена нужна и для float-режима: стартовая, пока площадка не пересчитала
	reqBody["price"] = req.Price.String()

	body, err := b.doRequest(ctx, http.MethodPost, pathCreateAd, nil, reqBody, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Result struct {
			ItemID string `json:"itemId"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	if resp.Result.ItemID == "" {
		return nil, fmt.Errorf("ad created without itemId")
	}

	return &AdInfo{
		ID:        resp.Result.ItemID,
		Side:      req.Side,
		Asset:     req.Asset,
		Fiat:      req.Fiat,
		Price:     req.Price,
		Quantity:  req.Quantity,
		MinAmount: req.MinAmount,
		MaxAmount: req.MaxAmount,
		Online:    true,
	}, nil
}

// UpdateAd меняет цену и лимиты размещённого объявления.
// Нулевые поля запроса не трогают текущие значения на площадке.
func (b *BybitP2P) UpdateAd(ctx context.Context, req *UpdateAdRequest) error {
	reqBody := map[string]interface{}{
		"itemId":     req.AdID,
		"actionType": "MODIFY",
	}
	if req.Price.IsPositive() {
		reqBody["price"] = req.Price.String()
	}
	if req.Premium.IsPositive() {
		reqBody["premium"] = req.Premium.String()
	}
	if req.Quantity.IsPositive() {
		reqBody["quantity"] = req.Quantity.String()
	}
	if req.MinAmount.IsPositive() {
		reqBody["minAmount"] = req.MinAmount.String()
	}
	if req.MaxAmount.IsPositive() {
		reqBody["maxAmount"] = req.MaxAmount.String()
	}

	_, err := b.doRequest(ctx, http.MethodPost, pathUpdateAd, nil, reqBody, true)
	return err
}

// SetAdStatus выводит объявление на витрину или снимает с неё
func (b *BybitP2P) SetAdStatus(ctx context.Context, adID string, online bool) error {
	action := "OFFLINE"
	if online {
		action = "ONLINE"
	}
	reqBody := map[string]interface{}{
		"itemId":     adID,
		"actionType": action,
	}

	_, err := b.doRequest(ctx, http.MethodPost, pathUpdateAd, nil, reqBody, true)
	return err
}

// DeleteAd удаляет объявление с площадки
func (b *BybitP2P) DeleteAd(ctx context.Context, adID string) error {
	reqBody := map[string]string{"itemId": adID}
	_, err := b.doRequest(ctx, http.MethodPost, pathCancelAd, nil, reqBody, true)
	return err
}

// orderItem - ордер в ответах списка и деталей
type orderItem struct {
	ID             string `json:"id"`
	ItemID         string `json:"itemId"`
	Side           int    `json:"side"`
	TokenID        string `json:"tokenId"`
	CurrencyID     string `json:"currencyId"`
	Price          string `json:"price"`
	Quantity       string `json:"notifyTokenQuantity"`
	Amount         string `json:"amount"`
	Status         int    `json:"status"`
	TargetNickName string `json:"targetNickName"`
	TargetUserID   string `json:"targetUserId"`
	CreateDate     string `json:"createDate"`
}

func (b *BybitP2P) orderFromItem(item orderItem) *OrderInfo {
	return &OrderInfo{
		OrderID:              item.ID,
		AdID:                 item.ItemID,
		Side:                 sideFromCode(item.Side),
		Asset:                item.TokenID,
		Fiat:                 item.CurrencyID,
		Price:                parseDecimal(item.Price),
		FiatAmount:           parseDecimal(item.Amount),
		AssetAmount:          parseDecimal(item.Quantity),
		Status:               mapOrderStatus(item.Status),
		RawStatus:            item.Status,
		CounterpartyID:       item.TargetUserID,
		CounterpartyNickname: item.TargetNickName,
		CreatedAt:            parseMillis(item.CreateDate),
	}
}

// OpenOrders возвращает незакрытые ордера аккаунта
func (b *BybitP2P) OpenOrders(ctx context.Context) ([]*OrderInfo, error) {
	reqBody := map[string]interface{}{
		"page": 1,
		"size": 50,
	}

	body, err := b.doRequest(ctx, http.MethodPost, pathOrderList, nil, reqBody, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Result struct {
			Count int         `json:"count"`
			Items []orderItem `json:"items"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	orders := make([]*OrderInfo, 0, len(resp.Result.Items))
	for _, item := range resp.Result.Items {
		orders = append(orders, b.orderFromItem(item))
	}
	return orders, nil
}

// OrderDetail возвращает полное состояние одного ордера
func (b *BybitP2P) OrderDetail(ctx context.Context, orderID string) (*OrderInfo, error) {
	reqBody := map[string]string{"orderId": orderID}

	body, err := b.doRequest(ctx, http.MethodPost, pathOrderInfo, nil, reqBody, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Result orderItem `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	if resp.Result.ID == "" {
		return nil, fmt.Errorf("order %s not found", orderID)
	}

	return b.orderFromItem(resp.Result), nil
}

// ChatMessages возвращает последние сообщения чата ордера
// в хронологическом порядке
func (b *BybitP2P) ChatMessages(ctx context.Context, orderID string, limit int) ([]*ChatMessageInfo, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	reqBody := map[string]string{
		"orderId":     orderID,
		"currentPage": "1",
		"size":        strconv.Itoa(limit),
	}

	body, err := b.doRequest(ctx, http.MethodPost, pathChatList, nil, reqBody, true)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Result []struct {
			ID          string `json:"id"`
			Message     string `json:"message"`
			ContentType string `json:"contentType"`
			MsgType     int    `json:"msgType"`
			UserID      string `json:"userId"`
			CreateDate  string `json:"createDate"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	ownID := b.currentUserID()

	// Площадка отдаёт сообщения от новых к старым
	messages := make([]*ChatMessageInfo, 0, len(resp.Result))
	for i := len(resp.Result) - 1; i >= 0; i-- {
		item := resp.Result[i]

		sender := ChatSenderCounterparty
		if ownID != "" && item.UserID == ownID {
			sender = ChatSenderUs
		}

		msgType := ChatTypeText
		if item.MsgType == 0 {
			msgType = ChatTypeSystem
		}

		messages = append(messages, &ChatMessageInfo{
			ID:        item.ID,
			OrderID:   orderID,
			Sender:    sender,
			Type:      msgType,
			Content:   item.Message,
			CreatedAt: parseMillis(item.CreateDate),
		})
	}
	return messages, nil
}

// SendChatMessage отправляет текст в чат ордера
func (b *BybitP2P) SendChatMessage(ctx context.Context, orderID, content string) error {
	reqBody := map[string]string{
		"orderId":     orderID,
		"message":     content,
		"contentType": "str",
	}

	_, err := b.doRequest(ctx, http.MethodPost, pathChatSend, nil, reqBody, true)
	return err
}

// MarkOrderPaid отмечает фиатный перевод выполненным
func (b *BybitP2P) MarkOrderPaid(ctx context.Context, orderID string) error {
	reqBody := map[string]string{"orderId": orderID}
	_, err := b.doRequest(ctx, http.MethodPost, pathOrderPay, nil, reqBody, true)
	return err
}

// ReleaseOrder отпускает актив контрагенту и закрывает ордер
func (b *BybitP2P) ReleaseOrder(ctx context.Context, orderID string) error {
	reqBody := map[string]string{"orderId": orderID}
	_, err := b.doRequest(ctx, http.MethodPost, pathOrderFinish, nil, reqBody, true)
	return err
}

// Balance возвращает остаток актива на funding-кошельке: P2P торгует
// именно с него
func (b *BybitP2P) Balance(ctx context.Context, asset string) (decimal.Decimal, error) {
	query := map[string]string{
		"accountType": "FUND",
		"coin":        asset,
	}

	body, err := b.doRequest(ctx, http.MethodGet, pathFundBalance, query, nil, true)
	if err != nil {
		return decimal.Zero, err
	}

	var resp struct {
		Result struct {
			Balance []struct {
				Coin          string `json:"coin"`
				WalletBalance string `json:"walletBalance"`
			} `json:"balance"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, err
	}

	for _, bal := range resp.Result.Balance {
		if bal.Coin == asset {
			return parseDecimal(bal.WalletBalance), nil
		}
	}
	return decimal.Zero, nil
}

// Close закрывает персональный connection pool аккаунта
func (b *BybitP2P) Close() error {
	if !b.sharedHC {
		b.hc.Close()
	}
	return nil
}

func (b *BybitP2P) currentUserID() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.userID
}

// ============================================================================
// Преобразования кодов площадки
// ============================================================================

// p2pSideCode конвертирует сторону в код площадки: 0 - покупка, 1 - продажа
func p2pSideCode(side string) string {
	if side == SideBuy {
		return "0"
	}
	return "1"
}

func sideFromCode(code int) string {
	if code == 0 {
		return SideBuy
	}
	return SideSell
}

// p2pPriceTypeCode конвертирует режим цены: 0 - fixed, 1 - float
func p2pPriceTypeCode(priceType string) string {
	if priceType == PriceTypeFloat {
		return "1"
	}
	return "0"
}

// mapOrderStatus приводит код статуса ордера к каноническому виду.
// Коды площадки: 5 - эскроу, 10 - ждём оплату, 20 - оплачен,
// 30 - апелляция, 40 - отменён, 50 - завершён.
func mapOrderStatus(code int) string {
	switch code {
	case 5:
		return OrderStatusPending
	case 10:
		return OrderStatusWaitingPayment
	case 20:
		return OrderStatusPaymentReceived
	case 30:
		return OrderStatusFailed
	case 40:
		return OrderStatusCancelled
	case 50:
		return OrderStatusCompleted
	default:
		return OrderStatusPending
	}
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
