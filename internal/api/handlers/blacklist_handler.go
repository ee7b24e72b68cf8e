package handlers

import (
	"errors"
	"net/http"

	"p2pdesk/internal/service"
)

// BlacklistHandler отвечает за разбор заблокированных сделок
//
// Endpoints:
// - GET /api/v1/blacklist - список заблокированных записей
// - GET /api/v1/blacklist/{id} - одна запись
// - DELETE /api/v1/blacklist/{id} - разбор: выплата возвращается в работу
//
// Записи создает только сопоставитель при дубликатах реквизитов;
// через API их можно лишь просматривать и разбирать.
type BlacklistHandler struct {
	blacklistService service.BlacklistServiceInterface
}

// NewBlacklistHandler создает новый BlacklistHandler
func NewBlacklistHandler(blacklistService service.BlacklistServiceInterface) *BlacklistHandler {
	return &BlacklistHandler{blacklistService: blacklistService}
}

// GetBlacklist возвращает все заблокированные записи
// GET /api/v1/blacklist
func (h *BlacklistHandler) GetBlacklist(w http.ResponseWriter, r *http.Request) {
	entries, err := h.blacklistService.GetBlacklist(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get blacklist", err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, entries)
}

// GetEntry возвращает одну запись
// GET /api/v1/blacklist/{id}
func (h *BlacklistHandler) GetEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid blacklist entry id", "")
		return
	}

	entry, err := h.blacklistService.GetByID(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrBlacklistEntryNotFound):
			respondWithError(w, http.StatusNotFound, "Blacklist entry not found", "")
		default:
			respondWithError(w, http.StatusInternalServerError, "Failed to get blacklist entry", err.Error())
		}
		return
	}

	respondWithJSON(w, http.StatusOK, entry)
}

// ResolveEntry закрывает разбор: запись удаляется, связанная выплата
// возвращается в статус open и снова участвует в сопоставлении
// DELETE /api/v1/blacklist/{id}
//
// Ответы:
// - 200 OK: запись разобрана
// - 404 Not Found: запись не найдена
func (h *BlacklistHandler) ResolveEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid blacklist entry id", "")
		return
	}

	if err := h.blacklistService.Resolve(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, service.ErrBlacklistEntryNotFound):
			respondWithError(w, http.StatusNotFound, "Blacklist entry not found", "")
		default:
			respondWithError(w, http.StatusInternalServerError, "Failed to resolve blacklist entry", err.Error())
		}
		return
	}

	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "Blacklist entry resolved"})
}
