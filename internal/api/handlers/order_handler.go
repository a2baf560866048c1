package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"oms/internal/models"
	"oms/internal/oms"
	"oms/internal/repository"
	"oms/internal/service"
	"oms/pkg/utils"
)

// CreateOrderRequest - тело запроса для создания ордера
type CreateOrderRequest struct {
	oms.OrderSpec
	AutoSubmit bool `json:"auto_submit"`
}

// OrderWithRiskResponse - ответ с ордером и результатом проверки риска
type OrderWithRiskResponse struct {
	Order *models.Order           `json:"order"`
	Risk  *models.RiskCheckResult `json:"risk_check,omitempty"`
}

// OrderListResponse - страница ордеров с общим числом под фильтром
type OrderListResponse struct {
	Orders []models.Order `json:"orders"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// OrderHandler отвечает за управление ордерами
//
// Endpoints:
// - POST /api/v1/orders - создание ордера
// - GET /api/v1/orders - список ордеров с фильтрацией
// - GET /api/v1/orders/{id} - получение ордера
// - PATCH /api/v1/orders/{id} - изменение ордера
// - POST /api/v1/orders/{id}/submit - отправка в исполнение
// - POST /api/v1/orders/{id}/cancel - отмена ордера
// - GET /api/v1/orders/{id}/fills - исполнения ордера
// - POST /api/v1/orders/check - проверка риска без создания
type OrderHandler struct {
	orderService service.OrderServiceInterface
}

// NewOrderHandler создает новый OrderHandler
func NewOrderHandler(orderService service.OrderServiceInterface) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
	}
}

// CreateOrder создает новый ордер
// POST /api/v1/orders
//
// Тело запроса:
//
//	{
//	  "symbol": "AAPL",
//	  "side": "buy",
//	  "order_type": "limit",
//	  "quantity": "10",
//	  "price": "185.50",
//	  "time_in_force": "day",
//	  "auto_submit": true
//	}
//
// Ответы:
// - 201 Created: ордер создан (и отправлен при auto_submit)
// - 400 Bad Request: невалидная спецификация
// - 503 Service Unavailable: нет доступной площадки
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	order, risk, err := h.orderService.CreateOrder(r.Context(), req.OrderSpec, req.AutoSubmit)
	if err != nil {
		// Ордер мог быть создан до ошибки отправки: отдаем его вместе
		// с ошибкой, клиент повторит отправку отдельным вызовом
		if order != nil {
			respondWithJSON(w, http.StatusAccepted, map[string]interface{}{
				"order":      order,
				"risk_check": risk,
				"error":      err.Error(),
			})
			return
		}
		handleDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, OrderWithRiskResponse{Order: order, Risk: risk})
}

// GetOrders возвращает список ордеров с фильтрацией и пагинацией
// GET /api/v1/orders?status=accepted&symbol=AAPL&limit=50&offset=0
//
// Query параметры:
// - status, symbol, side, venue, source, account_id: фильтры по равенству
// - created_from, created_to: границы времени создания (RFC3339)
// - sort_by, sort_desc: сортировка по whitelisted колонке
// - limit, offset: пагинация (по умолчанию 50)
func (h *OrderHandler) GetOrders(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid filter", err.Error())
		return
	}

	orders, total, err := h.orderService.ListOrders(r.Context(), filter)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}

	respondWithJSON(w, http.StatusOK, OrderListResponse{
		Orders: orders,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

// GetOrder возвращает ордер по ID или UUID
// GET /api/v1/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ref := vars["id"]

	var order *models.Order
	var err error
	if id, perr := strconv.ParseInt(ref, 10, 64); perr == nil {
		order, err = h.orderService.GetOrder(r.Context(), id)
	} else {
		// Не числовой идентификатор трактуем как UUID
		order, err = h.orderService.GetOrderByUUID(r.Context(), ref)
	}
	if err != nil {
		handleDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, order)
}

// UpdateOrder изменяет клиентские поля активного ордера
// PATCH /api/v1/orders/{id}
//
// Тело запроса (все поля опциональны):
//
//	{
//	  "quantity": "15",
//	  "price": "186.00",
//	  "priority": "high"
//	}
func (h *OrderHandler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	var patch oms.OrderPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	order, err := h.orderService.UpdateOrder(r.Context(), id, patch)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, order)
}

// SubmitOrder отправляет созданный ордер в исполнение
// POST /api/v1/orders/{id}/submit
//
// Ответы:
// - 200 OK: ордер прошел гейт риска и отправлен на площадку
// - 200 OK с passed=false: ордер отклонен проверкой риска
// - 409 Conflict: ордер не в состоянии pending
func (h *OrderHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	order, risk, err := h.orderService.SubmitOrder(r.Context(), id)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, OrderWithRiskResponse{Order: order, Risk: risk})
}

// CancelOrder отменяет активный ордер
// POST /api/v1/orders/{id}/cancel
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	order, err := h.orderService.CancelOrder(r.Context(), id)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, order)
}

// DeleteOrder удаляет терминальный ордер из истории
// DELETE /api/v1/orders/{id}
//
// Ответы:
// - 200 OK: ордер удален
// - 404 Not Found: ордер не найден
// - 409 Conflict: ордер активен, сначала требуется отмена
func (h *OrderHandler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	if err := h.orderService.DeleteOrder(r.Context(), id); err != nil {
		handleDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"message":  "Order deleted",
		"order_id": id,
	})
}

// GetOrderFills возвращает исполнения ордера в хронологическом порядке
// GET /api/v1/orders/{id}/fills
func (h *OrderHandler) GetOrderFills(w http.ResponseWriter, r *http.Request) {
	id, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	fills, err := h.orderService.GetOrderFills(r.Context(), id)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	if fills == nil {
		fills = []models.Fill{}
	}

	respondWithJSON(w, http.StatusOK, fills)
}

// CheckRisk выполняет предторговую проверку без создания ордера
// POST /api/v1/orders/check
//
// Тело запроса: спецификация ордера, как в CreateOrder.
// Ответ: RiskCheckResult с passed, errors, warnings и suggested_quantity.
func (h *OrderHandler) CheckRisk(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	var spec oms.OrderSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	result, err := h.orderService.CheckRisk(r.Context(), spec)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

// parseOrderID извлекает числовой ID из пути
func parseOrderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	vars := mux.Vars(r)
	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid order ID", vars["id"])
		return 0, false
	}
	return id, true
}

// parseListFilter собирает фильтр списка из query параметров
func parseListFilter(r *http.Request) (repository.ListFilter, error) {
	q := r.URL.Query()
	filter := repository.ListFilter{
		Status:    strings.ToLower(q.Get("status")),
		Symbol:    utils.NormalizeSymbol(q.Get("symbol")),
		Side:      strings.ToLower(q.Get("side")),
		OrderType: strings.ToLower(q.Get("order_type")),
		Venue:     strings.ToLower(q.Get("venue")),
		Source:    q.Get("source"),
		AccountID: q.Get("account_id"),
		Tag:       q.Get("tag"),
		SortBy:    q.Get("sort_by"),
		SortDesc:  q.Get("sort_desc") == "true",
	}

	if filter.Symbol != "" {
		if err := utils.ValidateSymbol(filter.Symbol); err != nil {
			return filter, err
		}
	}
	if v := q.Get("strategy_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return filter, err
		}
		filter.StrategyID = &id
	}
	for param, dst := range map[string]**decimal.Decimal{
		"quantity_min": &filter.QuantityMin,
		"quantity_max": &filter.QuantityMax,
		"price_min":    &filter.PriceMin,
		"price_max":    &filter.PriceMax,
	} {
		if v := q.Get(param); v != "" {
			d, err := decimal.NewFromString(v)
			if err != nil {
				return filter, err
			}
			*dst = &d
		}
	}
	if v := q.Get("created_from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, err
		}
		filter.CreatedFrom = &t
	}
	if v := q.Get("created_to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, err
		}
		filter.CreatedTo = &t
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return filter, err
		}
		filter.Limit = limit
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil {
			return filter, err
		}
		filter.Offset = offset
	}
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	return filter, nil
}
