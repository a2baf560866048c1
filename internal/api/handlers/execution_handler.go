package handlers

import (
	"context"
	"net/http"

	"oms/internal/service"
)

// ExecutionHandler отвечает за управление сервисом исполнения
//
// Endpoints:
// - GET /api/v1/execution/status - состояние сервиса и счетчики
// - POST /api/v1/execution/start - запуск фоновых циклов
// - POST /api/v1/execution/stop - остановка
type ExecutionHandler struct {
	execService service.ExecutionServiceInterface
}

// NewExecutionHandler создает новый ExecutionHandler
func NewExecutionHandler(execService service.ExecutionServiceInterface) *ExecutionHandler {
	return &ExecutionHandler{
		execService: execService,
	}
}

// GetStatus возвращает состояние сервиса исполнения
// GET /api/v1/execution/status
//
// Ответ:
//
//	{
//	  "state": "running",
//	  "started_at": "2026-02-10T09:30:00Z",
//	  "total_submitted": 12,
//	  "total_executed": 9,
//	  "total_cancelled": 1,
//	  "total_rejected": 2,
//	  "queue_depth": 0,
//	  "venues": [{"name": "mock", "account_id": "MOCK-ACC-1", "connected": true}]
//	}
func (h *ExecutionHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.execService.Status())
}

// Start запускает фоновые циклы сервиса исполнения
// POST /api/v1/execution/start
//
// Ответы:
// - 200 OK: сервис запущен
// - 409 Conflict: сервис уже работает
func (h *ExecutionHandler) Start(w http.ResponseWriter, r *http.Request) {
	if h.execService.Running() {
		respondWithError(w, http.StatusConflict, "Execution service is already running", "")
		return
	}

	// Фоновые циклы должны пережить HTTP запрос, поэтому не r.Context()
	if err := h.execService.Start(context.Background()); err != nil {
		handleDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "Execution service started"})
}

// Stop останавливает фоновые циклы сервиса исполнения.
// Активные ордера остаются на площадках и подхватываются
// следующей сверкой после перезапуска.
// POST /api/v1/execution/stop
func (h *ExecutionHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if err := h.execService.Stop(); err != nil {
		handleDomainError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "Execution service stopped"})
}
