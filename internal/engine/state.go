package engine

import (
	"go.uber.org/zap"

	"github.com/xela07ax/nexusflow/internal/domain"
)

// EventKind — тип уведомления наблюдателю.
type EventKind string

const (
	EventState EventKind = "state" // изменились статусы, ребра или фаза
	EventLog   EventKind = "log"   // в журнал добавлена запись
)

// Event — уведомление после мутации. Snapshot — копия, её можно хранить.
type Event struct {
	Kind     EventKind        `json:"type"`
	Phase    Phase            `json:"phase"`
	RunID    string           `json:"run_id,omitempty"`
	Entry    *domain.LogEntry `json:"entry,omitempty"`
	Snapshot Snapshot         `json:"snapshot"`
}

// Observer получает события синхронно, вне блокировки движка.
type Observer interface {
	Notify(ev Event)
}

// ObserverFunc позволяет передать функцию как Observer.
type ObserverFunc func(ev Event)

func (f ObserverFunc) Notify(ev Event) { f(ev) }

// Snapshot — read-only срез состояния для слоя отображения.
type Snapshot struct {
	RunID   string                `json:"run_id,omitempty"`
	Phase   Phase                 `json:"phase"`
	Running bool                  `json:"is_running"`
	Outcome Outcome               `json:"last_outcome,omitempty"`
	Nodes   []domain.AgentNode    `json:"nodes"`
	Edges   []domain.RelationEdge `json:"edges"`
	Logs    []domain.LogEntry     `json:"logs"` // новые первыми
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	snap := Snapshot{
		RunID:   e.runID,
		Phase:   e.phase,
		Outcome: e.lastOutcome,
		Nodes:   make([]domain.AgentNode, 0, len(e.nodes)),
		Edges:   make([]domain.RelationEdge, len(e.edges)),
	}
	for _, n := range e.nodes {
		snap.Nodes = append(snap.Nodes, n.Clone())
	}
	copy(snap.Edges, e.edges)
	e.mu.RUnlock()

	snap.Running = e.running.Load()
	snap.Logs = e.ledger.Entries()
	return snap
}

// mutate выполняет изменение под блокировкой и уведомляет наблюдателей после её снятия.
func (e *Engine) mutate(fn func()) {
	e.mu.Lock()
	fn()
	e.mu.Unlock()
	e.emit(EventState, nil)
}

// log пишет запись в журнал протокола и дублирует её в zap на уровне debug.
func (e *Engine) log(source, message string, severity domain.Severity, payload any) domain.LogEntry {
	entry := e.ledger.Append(source, message, severity, payload)
	e.logger.Debug("ledger entry",
		zap.Int64("id", entry.ID),
		zap.String("source", source),
		zap.String("severity", string(severity)),
		zap.String("message", message))
	e.emit(EventLog, &entry)
	return entry
}

func (e *Engine) emit(kind EventKind, entry *domain.LogEntry) {
	e.obsMu.RLock()
	observers := e.observers
	e.obsMu.RUnlock()
	if len(observers) == 0 {
		return
	}

	snap := e.Snapshot()
	ev := Event{
		Kind:     kind,
		Phase:    snap.Phase,
		RunID:    snap.RunID,
		Entry:    entry,
		Snapshot: snap,
	}
	for _, o := range observers {
		o.Notify(ev)
	}
}

// --- Хелперы ниже вызываются только под e.mu ---

func (e *Engine) setStatusLocked(nodeID string, status domain.NodeStatus) {
	if idx, ok := e.nodeByID[nodeID]; ok {
		e.nodes[idx].Status = status
	}
}

func (e *Engine) statusLocked(nodeID string) domain.NodeStatus {
	if idx, ok := e.nodeByID[nodeID]; ok {
		return e.nodes[idx].Status
	}
	return ""
}

// addEdgeLocked добавляет ребро, только если оба конца — живые узлы.
func (e *Engine) addEdgeLocked(edge domain.RelationEdge) bool {
	if _, ok := e.nodeByID[edge.From]; !ok {
		return false
	}
	if _, ok := e.nodeByID[edge.To]; !ok {
		return false
	}
	e.edges = append(e.edges, edge)
	return true
}

func (e *Engine) retypeEdgeLocked(edgeID string, t domain.EdgeType, label string) {
	for i := range e.edges {
		if e.edges[i].ID == edgeID {
			e.edges[i].Type = t
			e.edges[i].Label = label
			return
		}
	}
}

func (e *Engine) removeEdgeLocked(edgeID string) {
	kept := e.edges[:0]
	for _, edge := range e.edges {
		if edge.ID != edgeID {
			kept = append(kept, edge)
		}
	}
	e.edges = kept
}

// --- Чтение без мутаций ---

func (e *Engine) setStatus(nodeID string, status domain.NodeStatus) {
	e.mutate(func() { e.setStatusLocked(nodeID, status) })
}

func (e *Engine) nodeForDID(did string) (domain.AgentNode, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	idx, ok := e.nodeByDID[did]
	if !ok {
		return domain.AgentNode{}, false
	}
	return e.nodes[idx].Clone(), true
}

// firstBuyer — первый узел с ролью buyer в порядке, заданном хостом.
func (e *Engine) firstBuyer() (domain.AgentNode, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, n := range e.nodes {
		if n.Role == domain.RoleBuyer {
			return n.Clone(), true
		}
	}
	return domain.AgentNode{}, false
}

func (e *Engine) label(nodeID string) string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if idx, ok := e.nodeByID[nodeID]; ok && e.nodes[idx].Label != "" {
		return e.nodes[idx].Label
	}
	return nodeID
}
