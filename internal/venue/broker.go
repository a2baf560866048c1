package venue

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"oms/internal/models"
	"oms/pkg/ratelimit"
	"oms/pkg/retry"
)

// BrokerConfig содержит настройки брокерского коннектора
type BrokerConfig struct {
	Name      string
	AccountID string
	BaseURL   string
	// Лимиты REST API брокера
	RateLimit float64 // запросов в секунду
	Burst     float64
}

// DefaultBrokerConfig возвращает конфигурацию брокера по умолчанию
func DefaultBrokerConfig() BrokerConfig {
	return BrokerConfig{
		Name:      "broker",
		BaseURL:   "https://api.broker.example.com",
		RateLimit: 10,
		Burst:     20,
	}
}

// BrokerConnector реализует Connector поверх REST API внешнего брокера.
// Запросы подписываются HMAC-SHA256, частота ограничивается token bucket,
// транзиентные ошибки повторяются с экспоненциальным backoff.
type BrokerConnector struct {
	cfg BrokerConfig

	apiKey    string
	secretKey string

	httpClient *http.Client
	limiter    *ratelimit.RateLimiter
	retryCfg   retry.Config
	// Отмена ордера критична для контроля позиции, поэтому
	// повторяется агрессивнее обычных запросов.
	cancelRetryCfg retry.Config

	mu        sync.RWMutex
	connected bool
}

// NewBrokerConnector создаёт брокерский коннектор.
// Использует общий HTTP клиент с connection pooling.
func NewBrokerConnector(cfg BrokerConfig) *BrokerConnector {
	if cfg.Name == "" {
		cfg.Name = "broker"
	}
	retryCfg := retry.NetworkConfig()
	retryCfg.RetryIf = retry.IsRetryable
	cancelRetryCfg := retry.AggressiveConfig()
	cancelRetryCfg.RetryIf = retry.IsRetryable
	return &BrokerConnector{
		cfg:            cfg,
		httpClient:     SharedHTTPClient(),
		limiter:        ratelimit.NewRateLimiter(cfg.RateLimit, cfg.Burst),
		retryCfg:       retryCfg,
		cancelRetryCfg: cancelRetryCfg,
	}
}

var _ Connector = (*BrokerConnector)(nil)

// Connect сохраняет ключи и проверяет доступность API
func (b *BrokerConnector) Connect(apiKey, secret string) error {
	if apiKey == "" || secret == "" {
		return &VenueError{Venue: b.cfg.Name, Code: "credentials", Message: "api key and secret are required"}
	}

	b.mu.Lock()
	b.apiKey = apiKey
	b.secretKey = secret
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := b.doRequest(ctx, http.MethodGet, "/api/v1/account", nil, true); err != nil {
		return fmt.Errorf("broker connectivity check failed: %w", err)
	}

	b.mu.Lock()
	b.connected = true
	b.mu.Unlock()
	return nil
}

// Name возвращает имя площадки
func (b *BrokerConnector) Name() string {
	return b.cfg.Name
}

// AccountID возвращает идентификатор аккаунта
func (b *BrokerConnector) AccountID() string {
	return b.cfg.AccountID
}

// Connected сообщает состояние соединения
func (b *BrokerConnector) Connected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}

// sign создаёт подпись запроса: HMAC-SHA256(timestamp + apiKey + payload)
func (b *BrokerConnector) sign(timestamp, payload string) string {
	b.mu.RLock()
	key, secret := b.apiKey, b.secretKey
	b.mu.RUnlock()

	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(timestamp + key + payload))
	return hex.EncodeToString(h.Sum(nil))
}

// brokerResponse - базовая обёртка ответа брокерского API
type brokerResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// doRequest выполняет подписанный HTTP запрос с учётом rate limit
func (b *BrokerConnector) doRequest(ctx context.Context, method, endpoint string, params interface{}, signed bool) (json.RawMessage, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var reqBody string
	if params != nil {
		jsonBytes, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		reqBody = string(jsonBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.cfg.BaseURL+endpoint, strings.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	if signed {
		timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
		b.mu.RLock()
		key := b.apiKey
		b.mu.RUnlock()
		req.Header.Set("X-API-KEY", key)
		req.Header.Set("X-API-TIMESTAMP", timestamp)
		req.Header.Set("X-API-SIGN", b.sign(timestamp, reqBody))
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		b.markDisconnected(err)
		return nil, &VenueError{Venue: b.cfg.Name, Code: "network", Message: err.Error(), Original: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 500 {
		return nil, &VenueError{
			Venue:   b.cfg.Name,
			Code:    strconv.Itoa(resp.StatusCode),
			Message: "server error: " + strings.TrimSpace(string(body)),
		}
	}

	var base brokerResponse
	if err := json.Unmarshal(body, &base); err != nil {
		return nil, &VenueError{Venue: b.cfg.Name, Code: "decode", Message: err.Error(), Original: err}
	}
	if base.Code != 0 {
		return nil, &VenueError{
			Venue:   b.cfg.Name,
			Code:    strconv.Itoa(base.Code),
			Message: base.Message,
		}
	}

	b.markConnected()
	return base.Data, nil
}

// markDisconnected помечает коннектор отключённым после сетевой ошибки.
// Reconcile-цикл продолжает опрашивать и такие коннекторы, первый
// успешный запрос вернёт флаг через markConnected.
func (b *BrokerConnector) markDisconnected(err error) {
	b.mu.Lock()
	b.connected = false
	b.mu.Unlock()
}

// markConnected восстанавливает флаг соединения после успешного
// подписанного запроса
func (b *BrokerConnector) markConnected() {
	b.mu.Lock()
	b.connected = true
	b.mu.Unlock()
}

// submitRequest - тело запроса на создание ордера
type submitRequest struct {
	ClientOrderID string `json:"client_order_id"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	Quantity      string `json:"quantity"`
	Price         string `json:"price,omitempty"`
	StopPrice     string `json:"stop_price,omitempty"`
	TimeInForce   string `json:"time_in_force"`
}

// Submit отправляет ордер брокеру и возвращает внешнюю ссылку
func (b *BrokerConnector) Submit(ctx context.Context, order *models.Order) (string, error) {
	req := submitRequest{
		ClientOrderID: order.UUID,
		Symbol:        order.Symbol,
		Side:          order.Side,
		Type:          order.OrderType,
		Quantity:      order.Quantity.String(),
		TimeInForce:   order.TimeInForce,
	}
	if order.Price.Valid {
		req.Price = order.Price.Decimal.String()
	}
	if order.StopPrice.Valid {
		req.StopPrice = order.StopPrice.Decimal.String()
	}

	data, err := retry.DoWithResult(ctx, func() (json.RawMessage, error) {
		return b.doRequest(ctx, http.MethodPost, "/api/v1/orders", req, true)
	}, b.retryCfg)
	if err != nil {
		return "", err
	}

	var result struct {
		OrderRef string `json:"order_ref"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", &VenueError{Venue: b.cfg.Name, Code: "decode", Message: err.Error(), Original: err}
	}
	if result.OrderRef == "" {
		return "", &VenueError{Venue: b.cfg.Name, Code: "decode", Message: "empty order_ref in response"}
	}
	return result.OrderRef, nil
}

// Cancel отменяет ордер по внешней ссылке
func (b *BrokerConnector) Cancel(ctx context.Context, externalRef string) error {
	return retry.Do(ctx, func() error {
		_, err := b.doRequest(ctx, http.MethodDelete, "/api/v1/orders/"+externalRef, nil, true)
		return err
	}, b.cancelRetryCfg)
}

// brokerOrderStatus - состояние ордера в ответе брокера
type brokerOrderStatus struct {
	Status         string `json:"status"`
	FilledQuantity string `json:"filled_quantity"`
	AvgFillPrice   string `json:"avg_fill_price"`
	Fills          []struct {
		FillID          string `json:"fill_id"`
		Quantity        string `json:"quantity"`
		Price           string `json:"price"`
		Commission      string `json:"commission"`
		CommissionAsset string `json:"commission_asset"`
		Liquidity       string `json:"liquidity"`
		FillTime        int64  `json:"fill_time"` // unix millis
	} `json:"fills"`
}

// QueryStatus запрашивает состояние ордера у брокера
func (b *BrokerConnector) QueryStatus(ctx context.Context, externalRef string) (*ExternalStatus, error) {
	data, err := retry.DoWithResult(ctx, func() (json.RawMessage, error) {
		return b.doRequest(ctx, http.MethodGet, "/api/v1/orders/"+externalRef, nil, true)
	}, b.retryCfg)
	if err != nil {
		return nil, err
	}

	var raw brokerOrderStatus
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &VenueError{Venue: b.cfg.Name, Code: "decode", Message: err.Error(), Original: err}
	}

	status := &ExternalStatus{
		ExternalRef:    externalRef,
		Status:         mapBrokerStatus(raw.Status),
		FilledQuantity: parseDecimal(raw.FilledQuantity),
		AvgFillPrice:   parseDecimal(raw.AvgFillPrice),
		UpdatedAt:      time.Now().UTC(),
	}
	for _, f := range raw.Fills {
		liquidity := f.Liquidity
		if !models.ValidLiquidity(liquidity) {
			liquidity = models.LiquidityUnknown
		}
		status.Fills = append(status.Fills, FillReport{
			ExternalFillID:  f.FillID,
			Quantity:        parseDecimal(f.Quantity),
			Price:           parseDecimal(f.Price),
			Commission:      parseDecimal(f.Commission),
			CommissionAsset: f.CommissionAsset,
			Liquidity:       liquidity,
			FillTime:        time.UnixMilli(f.FillTime).UTC(),
		})
	}
	return status, nil
}

// mapBrokerStatus переводит статус брокера во внутренние статусы площадки
func mapBrokerStatus(s string) string {
	switch strings.ToLower(s) {
	case "new", "open", "working":
		return StatusWorking
	case "partially_filled", "partial":
		return StatusPartiallyFilled
	case "filled", "done":
		return StatusFilled
	case "cancelled", "canceled":
		return StatusCancelled
	case "rejected":
		return StatusRejected
	case "expired":
		return StatusExpired
	default:
		return StatusWorking
	}
}

// parseDecimal разбирает строку в decimal; пустая или битая строка -> 0
func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Close разрывает соединение с брокером
func (b *BrokerConnector) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
	return nil
}
