package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"p2pdesk/internal/models"
	"p2pdesk/internal/service"
	"p2pdesk/pkg/utils"
)

// допустимые источники свидетельств
var evidenceSources = map[string]bool{
	models.EvidenceSourceSMS:     true,
	models.EvidenceSourcePush:    true,
	models.EvidenceSourceEmail:   true,
	models.EvidenceSourceReceipt: true,
}

// EvidenceHandler отвечает за приём платёжных свидетельств и журнал
// их сопоставления
//
// Endpoints:
// - POST /api/v1/evidence - приём свидетельства (оператор или внешний фид)
// - GET /api/v1/matchlog - записи журнала сопоставления
// - GET /api/v1/matchlog/stats - сводка за период
// - GET /api/v1/matchlog/{id} - все проходы по одному свидетельству
type EvidenceHandler struct {
	engine          EngineController
	matchLogService service.MatchLogServiceInterface
}

// NewEvidenceHandler создает новый EvidenceHandler
func NewEvidenceHandler(engine EngineController, matchLogService service.MatchLogServiceInterface) *EvidenceHandler {
	return &EvidenceHandler{
		engine:          engine,
		matchLogService: matchLogService,
	}
}

// SubmitEvidenceRequest - тело запроса приёма свидетельства
type SubmitEvidenceRequest struct {
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	WalletHint string          `json:"wallet_hint,omitempty"`
	BankHint   string          `json:"bank_hint,omitempty"`
	Source     string          `json:"source,omitempty"` // sms | push | email | receipt
	Raw        string          `json:"raw,omitempty"`
	ArrivedAt  *time.Time      `json:"arrived_at,omitempty"` // по умолчанию момент приёма
}

// SubmitEvidenceResponse - ответ приёма свидетельства
type SubmitEvidenceResponse struct {
	EvidenceID string `json:"evidence_id"`
	Message    string `json:"message"`
}

// SubmitEvidence принимает платёжное свидетельство и синхронно прогоняет
// его через сопоставитель. Исход прохода доступен в журнале по evidence_id.
// POST /api/v1/evidence
//
// Тело запроса:
//
//	{
//	  "amount": "5000",
//	  "currency": "RUB",
//	  "wallet_hint": "1234",
//	  "bank_hint": "sber",
//	  "source": "sms",
//	  "raw": "Перевод 5000.00 RUB от ИВАН И. карта *1234"
//	}
//
// Ответы:
// - 202 Accepted: свидетельство принято, возвращает evidence_id
// - 400 Bad Request: некорректная сумма, валюта или источник
func (h *EvidenceHandler) SubmitEvidence(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req SubmitEvidenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	if !req.Amount.IsPositive() {
		respondWithError(w, http.StatusBadRequest, "Amount must be positive", "")
		return
	}
	if err := utils.ValidateFiat(req.Currency); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid currency", err.Error())
		return
	}

	source := strings.ToLower(strings.TrimSpace(req.Source))
	if source == "" {
		source = models.EvidenceSourceReceipt
	}
	if !evidenceSources[source] {
		respondWithError(w, http.StatusBadRequest, "Invalid evidence source", "Allowed: sms, push, email, receipt")
		return
	}

	now := time.Now()
	arrivedAt := now
	if req.ArrivedAt != nil {
		arrivedAt = *req.ArrivedAt
	}

	evidence := &models.PaymentEvidence{
		ID:         uuid.NewString(),
		Amount:     req.Amount,
		Currency:   strings.ToUpper(strings.TrimSpace(req.Currency)),
		WalletHint: utils.NormalizeWallet(req.WalletHint),
		BankHint:   strings.ToLower(strings.TrimSpace(req.BankHint)),
		Source:     source,
		Raw:        req.Raw,
		ArrivedAt:  arrivedAt,
		ReceivedAt: now,
	}

	h.engine.SubmitEvidence(r.Context(), evidence)

	respondWithJSON(w, http.StatusAccepted, SubmitEvidenceResponse{
		EvidenceID: evidence.ID,
		Message:    "Evidence accepted",
	})
}

// GetMatchLog возвращает записи журнала сопоставления
// GET /api/v1/matchlog
//
// Query параметры:
// - action (string): matched | unmatched | ambiguous | blacklisted | requeued
// - limit (int): количество записей (по умолчанию 100, максимум 500)
func (h *EvidenceHandler) GetMatchLog(w http.ResponseWriter, r *http.Request) {
	action := r.URL.Query().Get("action")

	entries, err := h.matchLogService.GetEntries(r.Context(), action, queryLimit(r))
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get match log", err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, entries)
}

// GetMatchStats возвращает сводку журнала за период
// GET /api/v1/matchlog/stats?hours=24
func (h *EvidenceHandler) GetMatchStats(w http.ResponseWriter, r *http.Request) {
	hours := 0
	if raw := r.URL.Query().Get("hours"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			hours = parsed
		}
	}

	stats, err := h.matchLogService.GetStats(r.Context(), hours)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get match stats", err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, stats)
}

// GetEvidenceHistory возвращает все проходы сопоставителя по одному
// свидетельству, включая повторные после requeue
// GET /api/v1/matchlog/{id}
func (h *EvidenceHandler) GetEvidenceHistory(w http.ResponseWriter, r *http.Request) {
	evidenceID := mux.Vars(r)["id"]

	entries, err := h.matchLogService.GetByEvidence(r.Context(), evidenceID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get evidence history", err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, entries)
}
