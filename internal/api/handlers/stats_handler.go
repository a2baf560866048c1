package handlers

import (
	"net/http"
	"strconv"

	"oms/internal/models"
	"oms/internal/service"
)

// StatsHandler обрабатывает HTTP запросы для статистики исполнения.
//
// Endpoints:
// - GET /api/v1/stats - агрегированная статистика
// - GET /api/v1/stats/top-symbols?limit=10 - инструменты с наибольшим числом ордеров
type StatsHandler struct {
	statsService service.StatsServiceInterface
}

// NewStatsHandler создает новый StatsHandler
func NewStatsHandler(statsService service.StatsServiceInterface) *StatsHandler {
	return &StatsHandler{
		statsService: statsService,
	}
}

// GetStats возвращает агрегированную статистику исполнения.
//
// GET /api/v1/stats
//
// Response 200 OK:
//
//	{
//	  "orders_by_status": {"filled": 120, "cancelled": 14},
//	  "orders_by_venue": {"mock": 100, "broker": 34},
//	  "total_orders": 134,
//	  "total_fills": 310,
//	  "traded_volume": "1250000.50",
//	  "total_commission": "1250.00"
//	}
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.statsService.GetStats(r.Context())
	if err != nil {
		handleDomainError(w, err)
		return
	}

	// Пустые карты возвращаются как {}, а не null
	if stats.OrdersByStatus == nil {
		stats.OrdersByStatus = map[string]int{}
	}
	if stats.OrdersByVenue == nil {
		stats.OrdersByVenue = map[string]int{}
	}

	respondWithJSON(w, http.StatusOK, stats)
}

// GetTopSymbols возвращает инструменты с наибольшим числом ордеров.
//
// GET /api/v1/stats/top-symbols?limit=10
//
// Response 200 OK:
//
//	[
//	  {"symbol": "AAPL", "orders": 50, "traded_volume": "480000"},
//	  {"symbol": "MSFT", "orders": 35, "traded_volume": "310000"}
//	]
func (h *StatsHandler) GetTopSymbols(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	symbols, err := h.statsService.GetTopSymbols(r.Context(), limit)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	if symbols == nil {
		symbols = []models.SymbolStat{}
	}

	respondWithJSON(w, http.StatusOK, symbols)
}
