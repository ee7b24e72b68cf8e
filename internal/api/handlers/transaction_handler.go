package handlers

import (
	"errors"
	"net/http"

	"p2pdesk/internal/service"
)

// TransactionHandler отвечает за просмотр сделок и операторские вмешательства
//
// Endpoints:
// - GET /api/v1/transactions - список сделок с фильтром по статусу
// - GET /api/v1/transactions/counts - количество сделок по статусам
// - GET /api/v1/transactions/{id} - сделка вместе с перепиской
// - POST /api/v1/transactions/{id}/chat/suspend - отключить автоответчик
// - POST /api/v1/transactions/{id}/chat/resume - вернуть автоответчик
// - POST /api/v1/transactions/{id}/complete - ручное завершение сделки
type TransactionHandler struct {
	transactionService service.TransactionServiceInterface
}

// NewTransactionHandler создает новый TransactionHandler
func NewTransactionHandler(transactionService service.TransactionServiceInterface) *TransactionHandler {
	return &TransactionHandler{transactionService: transactionService}
}

// GetTransactions возвращает сделки
// GET /api/v1/transactions
//
// Query параметры:
// - status (string): pending | waiting_payment | payment_received | completed |
//   cancelled | failed | open (все незакрытые)
// - limit (int): количество записей (по умолчанию 100, максимум 500)
func (h *TransactionHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	limit := queryLimit(r)

	transactions, err := h.transactionService.GetTransactions(r.Context(), status, limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get transactions", err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, transactions)
}

// GetTransactionCounts возвращает количество сделок в каждом статусе
// GET /api/v1/transactions/counts
func (h *TransactionHandler) GetTransactionCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.transactionService.GetTransactionCounts(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to count transactions", err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, counts)
}

// GetTransaction возвращает сделку вместе с её перепиской
// GET /api/v1/transactions/{id}
//
// Ответ:
//
//	{
//	  "transaction": {"id": 1, "order_id": "987", "status": "waiting_payment", ...},
//	  "messages": [{"sender": "counterparty", "content": "готов к оплате", ...}]
//	}
func (h *TransactionHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid transaction id", "")
		return
	}

	detail, err := h.transactionService.GetTransaction(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTransactionNotFound):
			respondWithError(w, http.StatusNotFound, "Transaction not found", "")
		default:
			respondWithError(w, http.StatusInternalServerError, "Failed to get transaction", err.Error())
		}
		return
	}

	respondWithJSON(w, http.StatusOK, detail)
}

// SuspendChat отключает автоответчик для сделки: оператор ведет
// переписку сам
// POST /api/v1/transactions/{id}/chat/suspend
func (h *TransactionHandler) SuspendChat(w http.ResponseWriter, r *http.Request) {
	h.setChatSuspended(w, r, true, "Chat automation suspended")
}

// ResumeChat возвращает автоответчик после операторского вмешательства
// POST /api/v1/transactions/{id}/chat/resume
func (h *TransactionHandler) ResumeChat(w http.ResponseWriter, r *http.Request) {
	h.setChatSuspended(w, r, false, "Chat automation resumed")
}

func (h *TransactionHandler) setChatSuspended(w http.ResponseWriter, r *http.Request, suspend bool, message string) {
	id, ok := pathID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid transaction id", "")
		return
	}

	var err error
	if suspend {
		err = h.transactionService.SuspendChat(r.Context(), id)
	} else {
		err = h.transactionService.ResumeChat(r.Context(), id)
	}

	if err != nil {
		switch {
		case errors.Is(err, service.ErrTransactionNotFound):
			respondWithError(w, http.StatusNotFound, "Transaction not found", "")
		case errors.Is(err, service.ErrTransactionClosed):
			respondWithError(w, http.StatusConflict, "Transaction is closed", "")
		default:
			respondWithError(w, http.StatusInternalServerError, "Failed to update chat automation", err.Error())
		}
		return
	}

	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: message})
}

// CompleteTransaction завершает сделку вручную. Используется для разбора
// неоднозначных сопоставлений: оператор сверил платеж сам.
// POST /api/v1/transactions/{id}/complete
//
// Ответы:
// - 200 OK: сделка завершена, активы отпущены
// - 404 Not Found: сделка не найдена
// - 409 Conflict: сделка уже закрыта
// - 503 Service Unavailable: движок не запущен
func (h *TransactionHandler) CompleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid transaction id", "")
		return
	}

	if err := h.transactionService.CompleteTransaction(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, service.ErrTransactionNotFound):
			respondWithError(w, http.StatusNotFound, "Transaction not found", "")
		case errors.Is(err, service.ErrTransactionClosed):
			respondWithError(w, http.StatusConflict, "Transaction is already closed", "")
		case errors.Is(err, service.ErrEngineStopped):
			respondWithError(w, http.StatusServiceUnavailable, "Engine is not running", "Start the engine first")
		default:
			respondWithError(w, http.StatusBadGateway, "Failed to complete transaction", err.Error())
		}
		return
	}

	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "Transaction completed"})
}
