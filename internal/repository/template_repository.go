package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"p2pdesk/internal/models"
)

// Ошибки репозитория шаблонов ответов
var (
	ErrGroupNotFound    = errors.New("response group not found")
	ErrGroupExists      = errors.New("response group already exists")
	ErrTemplateNotFound = errors.New("chat template not found")
)

// TemplateRepository - работа с таблицами response_groups и chat_templates
type TemplateRepository struct {
	db *sql.DB
}

// NewTemplateRepository создает новый экземпляр репозитория
func NewTemplateRepository(db *sql.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// ============================================================
// Группы ответов
// ============================================================

// CreateGroup создает группу шаблонов
func (r *TemplateRepository) CreateGroup(ctx context.Context, g *models.ResponseGroup) error {
	query := `
		INSERT INTO response_groups (name, active, created_at)
		VALUES ($1, $2, $3)
		RETURNING id`

	g.CreatedAt = time.Now()

	err := r.db.QueryRowContext(ctx, query, g.Name, g.Active, g.CreatedAt).Scan(&g.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrGroupExists
		}
		return err
	}

	return nil
}

// GetGroups возвращает все группы
func (r *TemplateRepository) GetGroups(ctx context.Context) ([]*models.ResponseGroup, error) {
	query := `
		SELECT id, name, active, created_at
		FROM response_groups
		ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []*models.ResponseGroup
	for rows.Next() {
		g := &models.ResponseGroup{}
		if err := rows.Scan(&g.ID, &g.Name, &g.Active, &g.CreatedAt); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return groups, nil
}

// GetGroupByID возвращает группу по ID
func (r *TemplateRepository) GetGroupByID(ctx context.Context, id int64) (*models.ResponseGroup, error) {
	query := `
		SELECT id, name, active, created_at
		FROM response_groups
		WHERE id = $1`

	g := &models.ResponseGroup{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&g.ID, &g.Name, &g.Active, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGroupNotFound
		}
		return nil, err
	}

	return g, nil
}

// SetGroupActive включает или выключает группу целиком
func (r *TemplateRepository) SetGroupActive(ctx context.Context, id int64, active bool) error {
	query := `UPDATE response_groups SET active = $1 WHERE id = $2`

	result, err := r.db.ExecContext(ctx, query, active, id)
	if err != nil {
		return err
	}

	return requireRowsAffected(result, ErrGroupNotFound)
}

// DeleteGroup удаляет группу. Ее шаблоны удаляются каскадно.
func (r *TemplateRepository) DeleteGroup(ctx context.Context, id int64) error {
	query := `DELETE FROM response_groups WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}

	return requireRowsAffected(result, ErrGroupNotFound)
}

// ============================================================
// Шаблоны ответов
// ============================================================

// CreateTemplate создает шаблон ответа
func (r *TemplateRepository) CreateTemplate(ctx context.Context, t *models.ChatTemplate) error {
	query := `
		INSERT INTO chat_templates (group_id, keywords, reply, priority, next_status, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	t.CreatedAt = time.Now()

	err := r.db.QueryRowContext(ctx, query,
		t.GroupID,
		t.Keywords,
		t.Reply,
		t.Priority,
		t.NextStatus,
		t.Active,
		t.CreatedAt,
	).Scan(&t.ID)

	return err
}

// GetTemplateByID возвращает шаблон по ID
func (r *TemplateRepository) GetTemplateByID(ctx context.Context, id int64) (*models.ChatTemplate, error) {
	query := `
		SELECT id, group_id, keywords, reply, priority, next_status, active, created_at
		FROM chat_templates
		WHERE id = $1`

	t := &models.ChatTemplate{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&t.ID,
		&t.GroupID,
		&t.Keywords,
		&t.Reply,
		&t.Priority,
		&t.NextStatus,
		&t.Active,
		&t.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}

	return t, nil
}

// GetTemplatesByGroup возвращает шаблоны группы
func (r *TemplateRepository) GetTemplatesByGroup(ctx context.Context, groupID int64) ([]*models.ChatTemplate, error) {
	query := `
		SELECT id, group_id, keywords, reply, priority, next_status, active, created_at
		FROM chat_templates
		WHERE group_id = $1
		ORDER BY priority DESC, id`

	return r.queryTemplates(ctx, query, groupID)
}

// GetActiveTemplates возвращает рабочий набор автоответчика:
// шаблоны активных групп в порядке сопоставления - приоритет по
// убыванию, при равенстве побеждает меньший ID.
func (r *TemplateRepository) GetActiveTemplates(ctx context.Context) ([]*models.ChatTemplate, error) {
	query := `
		SELECT t.id, t.group_id, t.keywords, t.reply, t.priority, t.next_status, t.active, t.created_at
		FROM chat_templates t
		JOIN response_groups g ON g.id = t.group_id
		WHERE t.active = TRUE AND g.active = TRUE
		ORDER BY t.priority DESC, t.id`

	return r.queryTemplates(ctx, query)
}

// UpdateTemplate обновляет шаблон
func (r *TemplateRepository) UpdateTemplate(ctx context.Context, t *models.ChatTemplate) error {
	query := `
		UPDATE chat_templates
		SET keywords = $1, reply = $2, priority = $3, next_status = $4, active = $5
		WHERE id = $6`

	result, err := r.db.ExecContext(ctx, query,
		t.Keywords,
		t.Reply,
		t.Priority,
		t.NextStatus,
		t.Active,
		t.ID,
	)
	if err != nil {
		return err
	}

	return requireRowsAffected(result, ErrTemplateNotFound)
}

// DeleteTemplate удаляет шаблон
func (r *TemplateRepository) DeleteTemplate(ctx context.Context, id int64) error {
	query := `DELETE FROM chat_templates WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}

	return requireRowsAffected(result, ErrTemplateNotFound)
}

// queryTemplates выполняет запрос со стандартным набором колонок шаблона
func (r *TemplateRepository) queryTemplates(ctx context.Context, query string, args ...interface{}) ([]*models.ChatTemplate, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []*models.ChatTemplate
	for rows.Next() {
		t := &models.ChatTemplate{}
		err := rows.Scan(
			&t.ID,
			&t.GroupID,
			&t.Keywords,
			&t.Reply,
			&t.Priority,
			&t.NextStatus,
			&t.Active,
			&t.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return templates, nil
}
