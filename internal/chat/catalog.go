// Package chat реализует автоматику чатов сделок: каталог шаблонов с
// приоритетным подбором по ключевым словам и движок автоответов,
// двигающий контрагента к подтверждению платежа без свободной генерации.
package chat

import (
	"sort"
	"strings"

	"p2pdesk/internal/models"
	"p2pdesk/pkg/utils"
)

// Catalog - неизменяемый снимок активных шаблонов автоответов.
// Движок пересобирает каталог на каждом цикле, поэтому правки шаблонов
// через API подхватываются без перезапуска.
type Catalog struct {
	entries []catalogEntry
}

type catalogEntry struct {
	template *models.ChatTemplate
	keywords []string // нормализованы в нижний регистр
}

// NewCatalog строит каталог из списка шаблонов. Шаблоны без ключевых
// слов отбрасываются: им не на что сработать.
func NewCatalog(templates []*models.ChatTemplate) *Catalog {
	entries := make([]catalogEntry, 0, len(templates))
	for _, t := range templates {
		keywords := utils.SplitKeywords(t.Keywords)
		if len(keywords) == 0 {
			continue
		}
		lowered := make([]string, len(keywords))
		for i, kw := range keywords {
			lowered[i] = strings.ToLower(kw)
		}
		entries = append(entries, catalogEntry{template: t, keywords: lowered})
	}

	// Репозиторий отдаёт шаблоны уже отсортированными, но каталог не
	// полагается на источник: порядок подбора — его собственный инвариант.
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].template.Priority != entries[j].template.Priority {
			return entries[i].template.Priority > entries[j].template.Priority
		}
		return entries[i].template.ID < entries[j].template.ID
	})

	return &Catalog{entries: entries}
}

// Match подбирает шаблон для входящего текста: сообщение должно содержать
// хотя бы одно ключевое слово шаблона (без учёта регистра). При нескольких
// совпадениях побеждает больший приоритет, при равенстве — меньший ID.
func (c *Catalog) Match(text string) (*models.ChatTemplate, bool) {
	lowered := strings.ToLower(text)
	for _, e := range c.entries {
		for _, kw := range e.keywords {
			if strings.Contains(lowered, kw) {
				return e.template, true
			}
		}
	}
	return nil, false
}

// Size возвращает количество рабочих шаблонов в каталоге.
func (c *Catalog) Size() int {
	return len(c.entries)
}
