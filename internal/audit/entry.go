package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/xela07ax/nexusflow/internal/domain"
)

// Entry — строка журнала аудита: запись ledger плюс контекст транзакции.
type Entry struct {
	ID        string          `json:"id"`     // UUID строки аудита
	RunID     string          `json:"run_id"` // Сквозной ID транзакции
	Seq       int64           `json:"seq"`    // ID записи в ledger
	Phase     string          `json:"phase"`
	Source    string          `json:"source"`
	Severity  string          `json:"severity"`
	Message   string          `json:"message"`
	Payload   json.RawMessage `json:"payload,omitempty"` // Конверт протокола, если был
	Timestamp time.Time       `json:"timestamp"`
}

// FromLog переводит запись ledger в строку аудита.
// Конверт сериализуется сразу, чтобы воркер не держал ссылки на данные движка.
func FromLog(runID, phase string, e domain.LogEntry) Entry {
	entry := Entry{
		ID:        uuid.NewString(),
		RunID:     runID,
		Seq:       e.ID,
		Phase:     phase,
		Source:    e.Source,
		Severity:  string(e.Severity),
		Message:   e.Message,
		Timestamp: e.Timestamp,
	}
	if e.Payload != nil {
		if raw, err := json.Marshal(e.Payload); err == nil {
			entry.Payload = raw
		}
	}
	return entry
}
