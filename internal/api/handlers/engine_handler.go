package handlers

import (
	"context"
	"errors"
	"net/http"

	"p2pdesk/internal/models"
	"p2pdesk/internal/trader"
)

// EngineController - управление оркестратором. Реализуется trader.Engine.
type EngineController interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Restart(ctx context.Context) error
	IsRunning() bool
	Status(ctx context.Context) *models.EngineStatus
	SubmitEvidence(ctx context.Context, evidence *models.PaymentEvidence)
}

// EngineHandler отвечает за жизненный цикл движка
//
// Endpoints:
// - POST /api/v1/engine/start - запуск движка
// - POST /api/v1/engine/stop - остановка движка
// - POST /api/v1/engine/restart - перезапуск
// - GET /api/v1/engine/status - снимок состояния
type EngineHandler struct {
	engine EngineController
}

// NewEngineHandler создает новый EngineHandler
func NewEngineHandler(engine EngineController) *EngineHandler {
	return &EngineHandler{engine: engine}
}

// StartEngine запускает движок
// POST /api/v1/engine/start
//
// Ответы:
// - 200 OK: движок запущен
// - 409 Conflict: движок уже работает
// - 502 Bad Gateway: не удалось загрузить пул аккаунтов
func (h *EngineHandler) StartEngine(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Start(r.Context()); err != nil {
		switch {
		case errors.Is(err, trader.ErrEngineRunning):
			respondWithError(w, http.StatusConflict, "Engine is already running", "")
		default:
			respondWithError(w, http.StatusBadGateway, "Failed to start engine", err.Error())
		}
		return
	}

	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "Engine started"})
}

// StopEngine останавливает движок, дождавшись завершения текущих циклов
// POST /api/v1/engine/stop
//
// Ответы:
// - 200 OK: движок остановлен
// - 409 Conflict: движок не запущен
func (h *EngineHandler) StopEngine(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Stop(r.Context()); err != nil {
		switch {
		case errors.Is(err, trader.ErrEngineStopped):
			respondWithError(w, http.StatusConflict, "Engine is not running", "")
		default:
			respondWithError(w, http.StatusInternalServerError, "Failed to stop engine", err.Error())
		}
		return
	}

	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "Engine stopped"})
}

// RestartEngine перезапускает движок; для остановленного движка
// эквивалентен запуску
// POST /api/v1/engine/restart
func (h *EngineHandler) RestartEngine(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Restart(r.Context()); err != nil {
		respondWithError(w, http.StatusBadGateway, "Failed to restart engine", err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "Engine restarted"})
}

// GetStatus возвращает снимок состояния движка
// GET /api/v1/engine/status
//
// Ответ:
//
//	{
//	  "running": true,
//	  "started_at": "2025-11-02T10:00:00Z",
//	  "uptime": "2h15m3s",
//	  "accounts": [{"account_id": 1, "label": "main", "active_ads": 2, ...}],
//	  "open_transactions": 3,
//	  "pending_evidence": 0
//	}
func (h *EngineHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.engine.Status(r.Context()))
}
