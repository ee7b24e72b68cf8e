package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"p2pdesk/internal/service"
)

// TemplateHandler отвечает за шаблоны автоответов и их группы
//
// Endpoints:
// - GET /api/v1/templates/groups - список групп
// - POST /api/v1/templates/groups - создание группы
// - PATCH /api/v1/templates/groups/{id} - включение/выключение группы
// - DELETE /api/v1/templates/groups/{id} - удаление группы с шаблонами
// - GET /api/v1/templates?group_id= - шаблоны группы
// - POST /api/v1/templates - создание шаблона
// - PUT /api/v1/templates/{id} - изменение шаблона
// - DELETE /api/v1/templates/{id} - удаление шаблона
type TemplateHandler struct {
	templateService service.TemplateServiceInterface
}

// NewTemplateHandler создает новый TemplateHandler
func NewTemplateHandler(templateService service.TemplateServiceInterface) *TemplateHandler {
	return &TemplateHandler{templateService: templateService}
}

// CreateGroupRequest - тело запроса создания группы
type CreateGroupRequest struct {
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// UpdateGroupRequest - тело запроса переключения группы
type UpdateGroupRequest struct {
	Active bool `json:"active"`
}

// GetGroups возвращает все группы шаблонов
// GET /api/v1/templates/groups
func (h *TemplateHandler) GetGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.templateService.GetGroups(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get groups", err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, groups)
}

// CreateGroup создает группу шаблонов
// POST /api/v1/templates/groups
func (h *TemplateHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	group, err := h.templateService.CreateGroup(r.Context(), req.Name, req.Active)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrGroupNameEmpty):
			respondWithError(w, http.StatusBadRequest, "Group name is required", "")
		case errors.Is(err, service.ErrGroupNameExists):
			respondWithError(w, http.StatusConflict, "Group name already exists", "")
		default:
			respondWithError(w, http.StatusInternalServerError, "Failed to create group", err.Error())
		}
		return
	}

	respondWithJSON(w, http.StatusCreated, group)
}

// UpdateGroup включает или выключает группу целиком
// PATCH /api/v1/templates/groups/{id}
func (h *TemplateHandler) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid group id", "")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req UpdateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	if err := h.templateService.SetGroupActive(r.Context(), id, req.Active); err != nil {
		switch {
		case errors.Is(err, service.ErrGroupNotFound):
			respondWithError(w, http.StatusNotFound, "Group not found", "")
		default:
			respondWithError(w, http.StatusInternalServerError, "Failed to update group", err.Error())
		}
		return
	}

	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "Group updated"})
}

// DeleteGroup удаляет группу вместе с её шаблонами
// DELETE /api/v1/templates/groups/{id}
func (h *TemplateHandler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid group id", "")
		return
	}

	if err := h.templateService.DeleteGroup(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, service.ErrGroupNotFound):
			respondWithError(w, http.StatusNotFound, "Group not found", "")
		default:
			respondWithError(w, http.StatusInternalServerError, "Failed to delete group", err.Error())
		}
		return
	}

	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "Group deleted"})
}

// GetTemplates возвращает шаблоны группы
// GET /api/v1/templates?group_id=1
func (h *TemplateHandler) GetTemplates(w http.ResponseWriter, r *http.Request) {
	groupID, err := strconv.ParseInt(r.URL.Query().Get("group_id"), 10, 64)
	if err != nil || groupID < 1 {
		respondWithError(w, http.StatusBadRequest, "group_id query parameter is required", "")
		return
	}

	templates, err := h.templateService.GetTemplates(r.Context(), groupID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to get templates", err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, templates)
}

// CreateTemplate создает шаблон автоответа
// POST /api/v1/templates
//
// Тело запроса:
//
//	{
//	  "group_id": 1,
//	  "keywords": "paid, оплатил",
//	  "reply": "Спасибо, проверяем платеж",
//	  "priority": 10,
//	  "next_status": "payment_received",
//	  "active": true
//	}
func (h *TemplateHandler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req service.TemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	tmpl, err := h.templateService.CreateTemplate(r.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrGroupNotFound):
			respondWithError(w, http.StatusNotFound, "Group not found", "")
		case errors.Is(err, service.ErrTemplateReplyEmpty),
			errors.Is(err, service.ErrInvalidNextStatus):
			respondWithError(w, http.StatusBadRequest, "Invalid template", err.Error())
		default:
			respondWithError(w, http.StatusBadRequest, "Failed to create template", err.Error())
		}
		return
	}

	respondWithJSON(w, http.StatusCreated, tmpl)
}

// UpdateTemplate изменяет шаблон
// PUT /api/v1/templates/{id}
func (h *TemplateHandler) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid template id", "")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req service.TemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	tmpl, err := h.templateService.UpdateTemplate(r.Context(), id, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTemplateNotFound):
			respondWithError(w, http.StatusNotFound, "Template not found", "")
		case errors.Is(err, service.ErrTemplateReplyEmpty),
			errors.Is(err, service.ErrInvalidNextStatus):
			respondWithError(w, http.StatusBadRequest, "Invalid template", err.Error())
		default:
			respondWithError(w, http.StatusBadRequest, "Failed to update template", err.Error())
		}
		return
	}

	respondWithJSON(w, http.StatusOK, tmpl)
}

// DeleteTemplate удаляет шаблон
// DELETE /api/v1/templates/{id}
func (h *TemplateHandler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid template id", "")
		return
	}

	if err := h.templateService.DeleteTemplate(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, service.ErrTemplateNotFound):
			respondWithError(w, http.StatusNotFound, "Template not found", "")
		default:
			respondWithError(w, http.StatusInternalServerError, "Failed to delete template", err.Error())
		}
		return
	}

	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "Template deleted"})
}
