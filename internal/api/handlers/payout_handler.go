package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"p2pdesk/internal/service"
)

// PayoutHandler отвечает за управление ожидаемыми выплатами
//
// Endpoints:
// - GET /api/v1/payouts - список выплат с фильтром по статусу
// - POST /api/v1/payouts - регистрация выплаты
// - GET /api/v1/payouts/counts - количество выплат по статусам
// - GET /api/v1/payouts/{id} - одна выплата
// - DELETE /api/v1/payouts/{id} - снятие открытой выплаты
type PayoutHandler struct {
	payoutService service.PayoutServiceInterface
}

// NewPayoutHandler создает новый PayoutHandler
func NewPayoutHandler(payoutService service.PayoutServiceInterface) *PayoutHandler {
	return &PayoutHandler{payoutService: payoutService}
}

// GetPayouts возвращает выплаты
// GET /api/v1/payouts
//
// Query параметры:
// - status (string): open | linked | settled | blacklisted
// - limit (int): количество записей (по умолчанию 100, максимум 500)
func (h *PayoutHandler) GetPayouts(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	limit := queryLimit(r)

	payouts, err := h.payoutService.GetPayouts(r.Context(), status, limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get payouts", err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, payouts)
}

// GetPayoutCounts возвращает количество выплат в каждом статусе
// GET /api/v1/payouts/counts
func (h *PayoutHandler) GetPayoutCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.payoutService.GetPayoutCounts(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to count payouts", err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, counts)
}

// GetPayout возвращает одну выплату
// GET /api/v1/payouts/{id}
func (h *PayoutHandler) GetPayout(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	payout, err := h.payoutService.GetPayout(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPayoutNotFound):
			respondWithError(w, http.StatusNotFound, "Payout not found", "")
		default:
			respondWithError(w, http.StatusInternalServerError, "Failed to get payout", err.Error())
		}
		return
	}

	respondWithJSON(w, http.StatusOK, payout)
}

// CreatePayout регистрирует ожидаемую выплату; движок разместит под нее
// объявление при ближайшем проходе
// POST /api/v1/payouts
//
// Тело запроса:
//
//	{
//	  "amount": "5000",
//	  "currency": "RUB",
//	  "wallet": "79001234567",
//	  "bank": "sber"
//	}
//
// Ответы:
// - 201 Created: выплата зарегистрирована
// - 400 Bad Request: некорректная сумма, валюта или реквизиты
func (h *PayoutHandler) CreatePayout(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req service.CreatePayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	payout, err := h.payoutService.CreatePayout(r.Context(), &req)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Failed to create payout", err.Error())
		return
	}

	respondWithJSON(w, http.StatusCreated, payout)
}

// DeletePayout снимает выплату. Допускается только для открытых:
// привязанные и закрытые выплаты остаются в истории.
// DELETE /api/v1/payouts/{id}
//
// Ответы:
// - 200 OK: выплата снята
// - 404 Not Found: выплата не найдена
// - 409 Conflict: выплата уже привязана к сделке
func (h *PayoutHandler) DeletePayout(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.payoutService.DeletePayout(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, service.ErrPayoutNotFound):
			respondWithError(w, http.StatusNotFound, "Payout not found", "")
		case errors.Is(err, service.ErrPayoutNotOpen):
			respondWithError(w, http.StatusConflict, "Payout is not open", "Only open payouts can be removed")
		default:
			respondWithError(w, http.StatusInternalServerError, "Failed to delete payout", err.Error())
		}
		return
	}

	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "Payout removed"})
}
