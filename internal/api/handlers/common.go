package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"oms/internal/oms"
	"oms/internal/repository"
	"oms/internal/service"
)

// MaxRequestBodySize ограничение размера тела запроса (1 MB)
const MaxRequestBodySize = 1 << 20

// ErrorResponse стандартный формат ответа об ошибке для всех API endpoints
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse стандартный формат успешного ответа
type SuccessResponse struct {
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// respondWithJSON отправляет JSON ответ
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Failed to marshal response"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

// respondWithError отправляет JSON ответ с ошибкой
func respondWithError(w http.ResponseWriter, code int, message string, details string) {
	respondWithJSON(w, code, ErrorResponse{
		Error:   message,
		Details: details,
	})
}

// handleDomainError транслирует ошибки доменного слоя в HTTP коды.
// Неопознанная ошибка превращается в 500.
func handleDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrOrderNotFound):
		respondWithError(w, http.StatusNotFound, "Order not found", "")
	case errors.Is(err, repository.ErrVenueNotFound):
		respondWithError(w, http.StatusNotFound, "Venue not found", "")
	case errors.Is(err, oms.ErrInvalidOrderSpec):
		respondWithError(w, http.StatusBadRequest, "Invalid order specification", err.Error())
	case errors.Is(err, oms.ErrQuantityBelowFilled):
		respondWithError(w, http.StatusBadRequest, "Quantity below filled amount", err.Error())
	case errors.Is(err, oms.ErrInvalidExecutionReport):
		respondWithError(w, http.StatusBadRequest, "Invalid execution report", err.Error())
	case errors.Is(err, oms.ErrOrderNotEditable):
		respondWithError(w, http.StatusConflict, "Order is not editable in its current state", err.Error())
	case errors.Is(err, oms.ErrInvalidTransition):
		respondWithError(w, http.StatusConflict, "Invalid order state transition", err.Error())
	case errors.Is(err, oms.ErrServiceNotRunning):
		respondWithError(w, http.StatusConflict, "Execution service is not running", "Start the execution service first")
	case errors.Is(err, oms.ErrNoAvailableVenue):
		respondWithError(w, http.StatusServiceUnavailable, "No available venue for this order", err.Error())
	case errors.Is(err, service.ErrOrderActive):
		respondWithError(w, http.StatusConflict, "Order is still active", "Cancel the order before deleting it")
	case errors.Is(err, service.ErrVenueNotSupported):
		respondWithError(w, http.StatusBadRequest, "Venue not supported", err.Error())
	case errors.Is(err, service.ErrVenueNotConnected):
		respondWithError(w, http.StatusNotFound, "Venue is not connected", "")
	case errors.Is(err, service.ErrInvalidCredentials):
		respondWithError(w, http.StatusUnauthorized, "Invalid API credentials", err.Error())
	case errors.Is(err, service.ErrVenueHasActiveOrders):
		respondWithError(w, http.StatusConflict, "Venue has active orders", "Cancel or wait out active orders first")
	default:
		respondWithError(w, http.StatusInternalServerError, "Internal server error", err.Error())
	}
}
