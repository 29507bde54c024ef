// Package directory реализует Agent Directory — сервис имен и поиска агентов
// по возможностям (capability-based discovery).
//
// Записи хранятся в порядке регистрации, поиск — линейный фильтр с AND-семантикой.
// Ранжирования, пагинации и нечеткого поиска нет.
package directory

import (
	"sync"

	"github.com/xela07ax/nexusflow/internal/domain"
)

// Query — фильтр поиска. Пустое поле совпадает с любым значением.
type Query struct {
	Role         domain.AgentRole `json:"role,omitempty"`
	Capability   string           `json:"capability,omitempty"`
	Jurisdiction string           `json:"jurisdiction,omitempty"`
}

// Matches проверяет запись на соответствие всем заданным фильтрам.
func (q Query) Matches(r domain.AgentRecord) bool {
	if q.Role != "" && r.Identity.Role != q.Role {
		return false
	}
	if q.Jurisdiction != "" && r.Context.Jurisdiction != q.Jurisdiction {
		return false
	}
	if q.Capability != "" && !r.HasCapability(q.Capability) {
		return false
	}
	return true
}

type Directory struct {
	mu      sync.RWMutex
	records []domain.AgentRecord
	byDID   map[string]struct{}
}

func New() *Directory {
	return &Directory{byDID: make(map[string]struct{})}
}

// Register добавляет запись, если DID еще не занят.
// Проверка и вставка выполняются под одной блокировкой (test-and-insert).
func (d *Directory) Register(rec domain.AgentRecord) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.byDID[rec.Identity.DID]; exists {
		return false
	}
	d.byDID[rec.Identity.DID] = struct{}{}
	d.records = append(d.records, rec.Clone())
	return true
}

// Find возвращает копии всех записей, подходящих под запрос, в порядке регистрации.
func (d *Directory) Find(q Query) []domain.AgentRecord {
	d.mu.RLock()
	defer d.mu.RUnlock()

	// Пустой слайс, а не nil: в JSON уйдет [], а не null
	out := make([]domain.AgentRecord, 0)
	for _, rec := range d.records {
		if q.Matches(rec) {
			out = append(out, rec.Clone())
		}
	}
	return out
}

func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.records)
}

// Clear безусловно удаляет все записи.
func (d *Directory) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records = nil
	d.byDID = make(map[string]struct{})
}
