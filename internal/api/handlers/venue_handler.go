package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"oms/internal/service"
	"oms/internal/venue"
	"oms/pkg/utils"
)

// ConnectVenueRequest - тело запроса для подключения площадки
type ConnectVenueRequest struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
}

// VenueHandler отвечает за управление подключениями к площадкам
//
// Endpoints:
// - GET /api/v1/venues - список площадок и их статусов
// - GET /api/v1/venues/{name} - одна площадка
// - POST /api/v1/venues/{name}/connect - подключение с API ключами
// - DELETE /api/v1/venues/{name}/connect - отключение
type VenueHandler struct {
	venueService service.VenueServiceInterface
}

// NewVenueHandler создает новый VenueHandler
func NewVenueHandler(venueService service.VenueServiceInterface) *VenueHandler {
	return &VenueHandler{
		venueService: venueService,
	}
}

// ConnectVenue подключает площадку с API ключами
// POST /api/v1/venues/{name}/connect
//
// Тело запроса:
//
//	{
//	  "api_key": "your-api-key",
//	  "secret_key": "your-secret-key"
//	}
//
// Ответы:
// - 200 OK: площадка подключена
// - 400 Bad Request: площадка не поддерживается или некорректные данные
// - 401 Unauthorized: неверные API ключи
func (h *VenueHandler) ConnectVenue(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name := strings.ToLower(vars["name"])

	if !venue.IsSupported(name) {
		respondWithError(w, http.StatusBadRequest, "Unsupported venue",
			"Supported venues: "+strings.Join(venue.SupportedVenues, ", "))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	var req ConnectVenueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := utils.ValidateAPIKey(req.APIKey); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid API key", err.Error())
		return
	}
	if err := utils.ValidateAPISecret(req.SecretKey); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid secret key", err.Error())
		return
	}

	if err := h.venueService.ConnectVenue(r.Context(), name, req.APIKey, req.SecretKey); err != nil {
		handleDomainError(w, err)
		return
	}

	account, err := h.venueService.GetVenueByName(r.Context(), name)
	if err != nil {
		// Площадка подключена, но данные недоступны - все равно успех
		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"message":   "Venue connected successfully",
			"name":      name,
			"connected": true,
		})
		return
	}

	respondWithJSON(w, http.StatusOK, account)
}

// DisconnectVenue отключает площадку
// DELETE /api/v1/venues/{name}/connect
//
// Ответы:
// - 200 OK: площадка отключена
// - 404 Not Found: площадка не подключена
// - 409 Conflict: на площадке есть активные ордера
func (h *VenueHandler) DisconnectVenue(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name := strings.ToLower(vars["name"])

	if !venue.IsSupported(name) {
		respondWithError(w, http.StatusBadRequest, "Unsupported venue",
			"Supported venues: "+strings.Join(venue.SupportedVenues, ", "))
		return
	}

	if err := h.venueService.DisconnectVenue(r.Context(), name); err != nil {
		handleDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"message":   "Venue disconnected successfully",
		"name":      name,
		"connected": false,
	})
}

// GetVenues возвращает список всех площадок с их статусами
// GET /api/v1/venues
func (h *VenueHandler) GetVenues(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.venueService.GetAllVenues(r.Context())
	if err != nil {
		handleDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, accounts)
}

// GetVenue возвращает одну площадку по имени
// GET /api/v1/venues/{name}
func (h *VenueHandler) GetVenue(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name := strings.ToLower(vars["name"])

	account, err := h.venueService.GetVenueByName(r.Context(), name)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, account)
}
