package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"p2pdesk/internal/service"
)

// SettingsHandler отвечает за runtime-настройки движка
//
// Endpoints:
// - GET /api/v1/settings - текущие настройки
// - PATCH /api/v1/settings - частичное обновление
// - POST /api/v1/settings/reset - сброс к значениям по умолчанию
//
// Изменения подхватываются движком на следующей итерации циклов,
// перезапуск не требуется.
type SettingsHandler struct {
	settingsService service.SettingsServiceInterface
}

// NewSettingsHandler создает новый SettingsHandler
func NewSettingsHandler(settingsService service.SettingsServiceInterface) *SettingsHandler {
	return &SettingsHandler{settingsService: settingsService}
}

// GetSettings возвращает текущие настройки
// GET /api/v1/settings
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settingsService.GetSettings(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get settings", err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, settings)
}

// UpdateSettings обновляет только переданные поля
// PATCH /api/v1/settings
//
// Тело запроса (все поля опциональны):
//
//	{
//	  "order_poll_seconds": 5,
//	  "chat_poll_seconds": 3,
//	  "match_tolerance": "1.00",
//	  "match_window_minutes": 30,
//	  "zero_candidate_policy": "requeue"
//	}
//
// Ответы:
// - 200 OK: возвращает обновленные настройки
// - 400 Bad Request: значение вне допустимого диапазона
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req service.UpdateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	settings, err := h.settingsService.UpdateSettings(r.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidPollInterval),
			errors.Is(err, service.ErrInvalidTolerance),
			errors.Is(err, service.ErrInvalidMatchWindow),
			errors.Is(err, service.ErrInvalidPolicy),
			errors.Is(err, service.ErrInvalidRequeueLimits):
			respondWithError(w, http.StatusBadRequest, "Invalid settings", err.Error())
		default:
			respondWithError(w, http.StatusInternalServerError, "Failed to update settings", err.Error())
		}
		return
	}

	respondWithJSON(w, http.StatusOK, settings)
}

// ResetSettings сбрасывает настройки к значениям по умолчанию
// POST /api/v1/settings/reset
func (h *SettingsHandler) ResetSettings(w http.ResponseWriter, r *http.Request) {
	if err := h.settingsService.ResetToDefaults(r.Context()); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to reset settings", err.Error())
		return
	}

	settings, err := h.settingsService.GetSettings(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get settings", err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, settings)
}
