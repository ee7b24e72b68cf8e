package service

import (
	"context"
	"errors"
	"strings"

	"p2pdesk/internal/models"
	"p2pdesk/internal/repository"
	"p2pdesk/pkg/utils"
)

// Ошибки сервиса шаблонов
var (
	ErrGroupNameEmpty     = errors.New("название группы не может быть пустым")
	ErrGroupNameExists    = errors.New("группа с таким названием уже существует")
	ErrGroupNotFound      = errors.New("группа шаблонов не найдена")
	ErrTemplateNotFound   = errors.New("шаблон не найден")
	ErrTemplateReplyEmpty = errors.New("текст ответа не может быть пустым")
	ErrInvalidNextStatus  = errors.New("недопустимый статус для перехода по шаблону")
)

// Статусы, в которые шаблон может переводить сделку после ответа.
// Терминальные переходы из чата запрещены: released и cancelled
// проводятся только трекером по данным биржи или оператором.
var allowedNextStatuses = map[string]bool{
	models.TxStatusWaitingPayment:  true,
	models.TxStatusPaymentReceived: true,
}

// TemplateService предоставляет бизнес-логику управления шаблонами автоответов.
//
// Шаблоны организованы в группы: группа включается и выключается целиком,
// например "рабочие часы" и "ночной режим". Изменения подхватываются
// чат-циклом движка при следующем проходе, перезапуск не нужен.
type TemplateService struct {
	templateRepo TemplateRepositoryInterface
}

// NewTemplateService создает новый экземпляр TemplateService.
func NewTemplateService(templateRepo TemplateRepositoryInterface) *TemplateService {
	return &TemplateService{templateRepo: templateRepo}
}

// ============================================================
// Группы
// ============================================================

// CreateGroup создает группу шаблонов.
func (s *TemplateService) CreateGroup(ctx context.Context, name string, active bool) (*models.ResponseGroup, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrGroupNameEmpty
	}

	group := &models.ResponseGroup{
		Name:   name,
		Active: active,
	}

	if err := s.templateRepo.CreateGroup(ctx, group); err != nil {
		if errors.Is(err, repository.ErrGroupExists) {
			return nil, ErrGroupNameExists
		}
		return nil, err
	}

	return group, nil
}

// GetGroups возвращает все группы шаблонов.
func (s *TemplateService) GetGroups(ctx context.Context) ([]*models.ResponseGroup, error) {
	groups, err := s.templateRepo.GetGroups(ctx)
	if err != nil {
		return nil, err
	}

	if groups == nil {
		groups = []*models.ResponseGroup{}
	}

	return groups, nil
}

// SetGroupActive включает или выключает группу целиком.
func (s *TemplateService) SetGroupActive(ctx context.Context, id int64, active bool) error {
	err := s.templateRepo.SetGroupActive(ctx, id, active)
	if errors.Is(err, repository.ErrGroupNotFound) {
		return ErrGroupNotFound
	}
	return err
}

// DeleteGroup удаляет группу вместе с ее шаблонами.
func (s *TemplateService) DeleteGroup(ctx context.Context, id int64) error {
	err := s.templateRepo.DeleteGroup(ctx, id)
	if errors.Is(err, repository.ErrGroupNotFound) {
		return ErrGroupNotFound
	}
	return err
}

// ============================================================
// Шаблоны
// ============================================================

// TemplateRequest представляет запрос на создание или изменение шаблона.
type TemplateRequest struct {
	GroupID    int64   `json:"group_id"`
	Keywords   string  `json:"keywords"`
	Reply      string  `json:"reply"`
	Priority   int     `json:"priority"`
	NextStatus *string `json:"next_status,omitempty"`
	Active     bool    `json:"active"`
}

// CreateTemplate создает шаблон автоответа в группе.
func (s *TemplateService) CreateTemplate(ctx context.Context, req *TemplateRequest) (*models.ChatTemplate, error) {
	if err := s.validateTemplate(req); err != nil {
		return nil, err
	}

	if _, err := s.templateRepo.GetGroupByID(ctx, req.GroupID); err != nil {
		if errors.Is(err, repository.ErrGroupNotFound) {
			return nil, ErrGroupNotFound
		}
		return nil, err
	}

	tmpl := &models.ChatTemplate{
		GroupID:    req.GroupID,
		Keywords:   normalizeKeywords(req.Keywords),
		Reply:      strings.TrimSpace(req.Reply),
		Priority:   req.Priority,
		NextStatus: req.NextStatus,
		Active:     req.Active,
	}

	if err := s.templateRepo.CreateTemplate(ctx, tmpl); err != nil {
		return nil, err
	}

	return tmpl, nil
}

// GetTemplates возвращает шаблоны группы.
func (s *TemplateService) GetTemplates(ctx context.Context, groupID int64) ([]*models.ChatTemplate, error) {
	templates, err := s.templateRepo.GetTemplatesByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}

	if templates == nil {
		templates = []*models.ChatTemplate{}
	}

	return templates, nil
}

// UpdateTemplate изменяет шаблон. Группа шаблона не меняется.
func (s *TemplateService) UpdateTemplate(ctx context.Context, id int64, req *TemplateRequest) (*models.ChatTemplate, error) {
	if err := s.validateTemplate(req); err != nil {
		return nil, err
	}

	tmpl, err := s.templateRepo.GetTemplateByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrTemplateNotFound) {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}

	tmpl.Keywords = normalizeKeywords(req.Keywords)
	tmpl.Reply = strings.TrimSpace(req.Reply)
	tmpl.Priority = req.Priority
	tmpl.NextStatus = req.NextStatus
	tmpl.Active = req.Active

	if err := s.templateRepo.UpdateTemplate(ctx, tmpl); err != nil {
		if errors.Is(err, repository.ErrTemplateNotFound) {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}

	return tmpl, nil
}

// DeleteTemplate удаляет шаблон.
func (s *TemplateService) DeleteTemplate(ctx context.Context, id int64) error {
	err := s.templateRepo.DeleteTemplate(ctx, id)
	if errors.Is(err, repository.ErrTemplateNotFound) {
		return ErrTemplateNotFound
	}
	return err
}

func (s *TemplateService) validateTemplate(req *TemplateRequest) error {
	if err := utils.ValidateKeywords(req.Keywords); err != nil {
		return err
	}
	if strings.TrimSpace(req.Reply) == "" {
		return ErrTemplateReplyEmpty
	}
	if req.NextStatus != nil && !allowedNextStatuses[*req.NextStatus] {
		return ErrInvalidNextStatus
	}
	return nil
}

// normalizeKeywords приводит ключевые слова к нижнему регистру и убирает
// пустые элементы, сравнение в каталоге идет по точному вхождению
func normalizeKeywords(raw string) string {
	parts := strings.Split(raw, ",")
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return strings.Join(cleaned, ",")
}
