// Package ledger — ограниченный кольцевой журнал протокола.
// Хранит последние N записей, отдает их от новых к старым.
package ledger

import (
	"sync"
	"time"

	"github.com/xela07ax/nexusflow/internal/domain"
)

// DefaultCapacity — сколько последних записей видит слой отображения.
const DefaultCapacity = 50

type Ledger struct {
	mu     sync.Mutex
	buf    []domain.LogEntry
	head   int // индекс следующей записи
	size   int
	nextID int64
	now    func() time.Time
}

func New(capacity int) *Ledger {
	return NewWithClock(capacity, time.Now)
}

func NewWithClock(capacity int, now func() time.Time) *Ledger {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if now == nil {
		now = time.Now
	}
	return &Ledger{buf: make([]domain.LogEntry, capacity), now: now}
}

// Append добавляет запись, вытесняя самую старую при переполнении.
// ID растет монотонно и не сбрасывается при вытеснении.
func (l *Ledger) Append(source, message string, severity domain.Severity, payload any) domain.LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	entry := domain.LogEntry{
		ID:        l.nextID,
		Timestamp: l.now(),
		Source:    source,
		Message:   message,
		Severity:  severity,
		Payload:   payload,
	}

	l.buf[l.head] = entry
	l.head = (l.head + 1) % len(l.buf)
	if l.size < len(l.buf) {
		l.size++
	}
	return entry
}

// Entries возвращает копию содержимого, новые записи первыми.
func (l *Ledger) Entries() []domain.LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.LogEntry, 0, l.size)
	for i := 1; i <= l.size; i++ {
		idx := (l.head - i + len(l.buf)) % len(l.buf)
		out = append(out, l.buf[idx])
	}
	return out
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

func (l *Ledger) Capacity() int {
	return len(l.buf)
}
