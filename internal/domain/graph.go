package domain

import "time"

// EdgeType — тип связи между агентами на графе транзакции.
type EdgeType string

const (
	EdgeQuery     EdgeType = "query"
	EdgeNegotiate EdgeType = "negotiate"
	EdgeContract  EdgeType = "contract"
	EdgeLogistics EdgeType = "logistics"
	EdgeReject    EdgeType = "reject"
)

type RelationEdge struct {
	ID    string   `json:"id"`
	From  string   `json:"from"` // AgentNode.ID
	To    string   `json:"to"`   // AgentNode.ID
	Type  EdgeType `json:"type"`
	Label string   `json:"label,omitempty"`
}

// Severity — уровень записи в журнале протокола.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityQuery   Severity = "query"
	SeverityAction  Severity = "action"
)

// Зарезервированные источники записей, не являющиеся агентами.
const (
	SourceSystem  = "system"
	SourceNetwork = "network"
)

// LogEntry — запись append-only журнала. ID монотонно растет и служит ключом сортировки.
type LogEntry struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	Payload   any       `json:"payload,omitempty"` // protocol.Request / protocol.Response
}
