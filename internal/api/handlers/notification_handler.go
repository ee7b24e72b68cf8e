package handlers

import (
	"net/http"
	"strings"

	"p2pdesk/internal/service"
)

// NotificationHandler отвечает за операторскую ленту событий
//
// Endpoints:
// - GET /api/v1/notifications - журнал событий
// - GET /api/v1/notifications?types=TX_STATUS,MATCH - фильтр по типам
// - GET /api/v1/notifications?limit=50 - ограничение количества
// - DELETE /api/v1/notifications - очистка журнала
type NotificationHandler struct {
	notificationService service.NotificationServiceInterface
}

// NewNotificationHandler создает новый NotificationHandler
func NewNotificationHandler(notificationService service.NotificationServiceInterface) *NotificationHandler {
	return &NotificationHandler{notificationService: notificationService}
}

// GetNotificationsResponse представляет ответ списка уведомлений
type GetNotificationsResponse struct {
	Notifications interface{} `json:"notifications"`
	Total         int         `json:"total"`
}

// GetNotifications возвращает журнал событий с фильтрацией
//
// GET /api/v1/notifications
//
// Query параметры:
// - types (string): типы через запятую (TX_CREATED, TX_STATUS, AD_CREATED,
//   AD_DELETED, MATCH, AMBIGUOUS_MATCH, BLACKLIST, CHAT, ACCOUNT_ERROR, ENGINE)
// - limit (int): количество записей (по умолчанию 100, максимум 500)
func (h *NotificationHandler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	var types []string
	if raw := r.URL.Query().Get("types"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				types = append(types, trimmed)
			}
		}
	}

	notifications, err := h.notificationService.GetNotifications(r.Context(), types, queryLimit(r))
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get notifications", err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, GetNotificationsResponse{
		Notifications: notifications,
		Total:         len(notifications),
	})
}

// ClearNotifications очищает журнал событий. Действие необратимо.
// DELETE /api/v1/notifications
func (h *NotificationHandler) ClearNotifications(w http.ResponseWriter, r *http.Request) {
	if err := h.notificationService.ClearNotifications(r.Context()); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to clear notifications", err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "Notifications cleared"})
}
