package engine

/*
Файл engine.go реализует Orchestration Engine — конечный автомат, который проводит
одну транзакцию от намерения до расчета:

	Idle -> Intent -> Discovery -> Negotiation -> Settlement -> Idle

Ключевые свойства:
- Single-flight: одновременно выполняется не более одной транзакции. Повторный Start
  получает ErrBusy, в журнал пишется отказ, остальное состояние не меняется.
- Все отказы (нет поставщиков, нет предложений, нет перевозчика) — обычные переходы
  состояния с записью в журнал и сменой статусов узлов, а не ошибки Go.
- Паузы между фазами вынесены в Pacer, случайность цены — в инжектируемый *rand.Rand.
- Общее состояние (статусы, ребра, журнал) меняет только активная транзакция;
  наблюдатели получают копии после каждой мутации.
*/

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/nexusflow/internal/directory"
	"github.com/xela07ax/nexusflow/internal/domain"
	"github.com/xela07ax/nexusflow/internal/ledger"
	"github.com/xela07ax/nexusflow/internal/protocol"
)

// ErrBusy — транзакция уже выполняется, запуск отклонен.
var ErrBusy = errors.New("engine: workflow already running")

// Phase — состояние конечного автомата.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseIntent      Phase = "intent"
	PhaseDiscovery   Phase = "discovery"
	PhaseNegotiation Phase = "negotiation"
	PhaseSettlement  Phase = "settlement"
)

// Outcome — чем закончилась транзакция.
type Outcome string

const (
	OutcomeNone         Outcome = ""
	OutcomeCompleted    Outcome = "completed"
	OutcomeNoBuyer      Outcome = "no_buyer"
	OutcomeNoCandidates Outcome = "no_candidates"
	OutcomeNoProposals  Outcome = "no_proposals"
	OutcomeNoLogistics  Outcome = "no_logistics" // контракт подписан, доставка не забронирована
)

// Finder — все, что движку нужно от Directory.
type Finder interface {
	Find(q directory.Query) []domain.AgentRecord
}

type Engine struct {
	dir     Finder
	codec   *protocol.Codec
	ledger  *ledger.Ledger
	pacer   Pacer
	rng     *rand.Rand
	cfg     Config
	logger  *zap.Logger
	metrics *Metrics
	newID   func() string

	running atomic.Bool
	wg      sync.WaitGroup

	mu          sync.RWMutex
	phase       Phase
	runID       string
	lastOutcome Outcome
	nodes       []domain.AgentNode
	nodeByDID   map[string]int
	nodeByID    map[string]int
	edges       []domain.RelationEdge

	obsMu     sync.RWMutex
	observers []Observer
}

type Option func(e *Engine)

func WithPacer(p Pacer) Option { return func(e *Engine) { e.pacer = p } }

// WithRand подменяет источник случайности (детерминированные тесты).
func WithRand(r *rand.Rand) Option { return func(e *Engine) { e.rng = r } }

func WithCodec(c *protocol.Codec) Option { return func(e *Engine) { e.codec = c } }

func WithLedger(l *ledger.Ledger) Option { return func(e *Engine) { e.ledger = l } }

func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.logger = l } }

func WithMetrics(m *Metrics) Option { return func(e *Engine) { e.metrics = m } }

func WithRunIDs(fn func() string) Option { return func(e *Engine) { e.newID = fn } }

func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, o) }
}

// NewEngine собирает движок. Узлы принадлежат хосту: движок меняет только их статус.
func NewEngine(dir Finder, nodes []domain.AgentNode, cfg Config, opts ...Option) (*Engine, error) {
	if dir == nil {
		return nil, errors.New("engine: directory is required")
	}

	e := &Engine{
		dir:       dir,
		cfg:       cfg.withDefaults(),
		phase:     PhaseIdle,
		nodeByDID: make(map[string]int, len(nodes)),
		nodeByID:  make(map[string]int, len(nodes)),
	}

	for i, n := range nodes {
		if _, dup := e.nodeByID[n.ID]; dup {
			return nil, fmt.Errorf("engine: duplicate node id %q", n.ID)
		}
		did := n.Record.Identity.DID
		if _, dup := e.nodeByDID[did]; dup {
			return nil, fmt.Errorf("engine: duplicate node did %q", did)
		}
		node := n.Clone()
		if !node.Status.IsValid() {
			node.Status = domain.StatusIdle
		}
		e.nodes = append(e.nodes, node)
		e.nodeByID[n.ID] = i
		e.nodeByDID[did] = i
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.codec == nil {
		e.codec = protocol.NewCodec()
	}
	if e.ledger == nil {
		e.ledger = ledger.New(ledger.DefaultCapacity)
	}
	if e.pacer == nil {
		e.pacer = SleepPacer{}
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewPCG(e.cfg.Seed, e.cfg.Seed^0x9e3779b97f4a7c15))
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.metrics == nil {
		e.metrics = NewMetrics(nil)
	}
	if e.newID == nil {
		e.newID = func() string { return uuid.New().String() }
	}
	e.logger = e.logger.With(zap.String("mod", "engine"))

	return e, nil
}

// Subscribe добавляет наблюдателя. Notify вызывается синхронно и не должен блокироваться.
func (e *Engine) Subscribe(o Observer) {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	e.observers = append(e.observers, o)
}

// Start запускает транзакцию в отдельной горутине и сразу возвращает её ID.
// Отмены нет: после старта транзакция доходит до одного из своих финалов.
func (e *Engine) Start(ctx context.Context) (string, error) {
	if !e.running.CompareAndSwap(false, true) {
		e.reject()
		return "", ErrBusy
	}

	runID := e.newID()
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.execute(context.WithoutCancel(ctx), runID)
	}()
	return runID, nil
}

// Run выполняет транзакцию синхронно в вызывающей горутине.
func (e *Engine) Run(ctx context.Context) (Outcome, error) {
	if !e.running.CompareAndSwap(false, true) {
		e.reject()
		return OutcomeNone, ErrBusy
	}
	return e.execute(context.WithoutCancel(ctx), e.newID()), nil
}

// Wait блокируется до завершения транзакции, запущенной через Start.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) IsRunning() bool {
	return e.running.Load()
}

func (e *Engine) Phase() Phase {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.phase
}

func (e *Engine) LastOutcome() Outcome {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastOutcome
}

// SelectNode возвращает копию узла для инспектора. Состояние движка не меняется.
func (e *Engine) SelectNode(id string) (domain.AgentNode, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	idx, ok := e.nodeByID[id]
	if !ok {
		return domain.AgentNode{}, false
	}
	e.logger.Debug("node selected", zap.String("node_id", id))
	return e.nodes[idx].Clone(), true
}

func (e *Engine) reject() {
	e.metrics.StartRejections.Inc()
	e.logger.Warn("start rejected: workflow already running")
	e.log(domain.SourceSystem, "Start rejected: a workflow is already running", domain.SeverityWarning, nil)
}

// execute — цикл конечного автомата. Каждая фаза полностью фиксирует свои
// мутации и записи журнала до перехода к следующей.
func (e *Engine) execute(ctx context.Context, runID string) Outcome {
	defer e.running.Store(false)

	started := time.Now()
	r := &run{id: runID}
	e.logger.Info("workflow started", zap.String("run_id", runID))

	for phase := PhaseIntent; phase != PhaseIdle; {
		e.setPhase(phase, runID)
		t := time.Now()
		next := e.step(ctx, r, phase)
		e.metrics.PhaseDuration.WithLabelValues(string(phase)).Observe(time.Since(t).Seconds())
		phase = next
	}

	e.mu.Lock()
	e.phase = PhaseIdle
	e.lastOutcome = r.outcome
	e.mu.Unlock()

	// Флаг снимаем до финального события, чтобы наблюдатели увидели is_running=false
	e.running.Store(false)
	e.emit(EventState, nil)

	e.metrics.RunsTotal.WithLabelValues(string(r.outcome)).Inc()
	e.logger.Info("workflow finished",
		zap.String("run_id", runID),
		zap.String("outcome", string(r.outcome)),
		zap.Duration("took", time.Since(started)))

	return r.outcome
}

// step — функция переходов автомата.
func (e *Engine) step(ctx context.Context, r *run, phase Phase) Phase {
	switch phase {
	case PhaseIntent:
		return e.intent(ctx, r)
	case PhaseDiscovery:
		return e.discovery(ctx, r)
	case PhaseNegotiation:
		return e.negotiation(ctx, r)
	case PhaseSettlement:
		return e.settlement(ctx, r)
	}
	return PhaseIdle
}

func (e *Engine) setPhase(p Phase, runID string) {
	e.mutate(func() {
		e.phase = p
		e.runID = runID
	})
}

// pause — косметическая пауза. Ошибка паузы на транзакцию не влияет.
func (e *Engine) pause(ctx context.Context, d time.Duration) {
	if err := e.pacer.Pause(ctx, d); err != nil {
		e.logger.Warn("pacer interrupted", zap.Error(err))
	}
}
