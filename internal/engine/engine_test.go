package engine

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/nexusflow/internal/directory"
	"github.com/xela07ax/nexusflow/internal/domain"
)

func buyerNode() domain.AgentNode {
	return domain.AgentNode{
		ID:    "buyer",
		Role:  domain.RoleBuyer,
		Label: "Buyer",
		Record: domain.AgentRecord{
			Identity:     domain.AgentIdentity{DID: "did:test:buyer", Role: domain.RoleBuyer},
			Capabilities: []string{"procurement"},
			Context:      domain.AgentContext{Jurisdiction: "US", Currency: "USD"},
		},
	}
}

func supplierNode(id string, caps ...string) domain.AgentNode {
	return domain.AgentNode{
		ID:    id,
		Role:  domain.RoleSupplier,
		Label: strings.ToUpper(id),
		Record: domain.AgentRecord{
			Identity:     domain.AgentIdentity{DID: "did:test:" + id, Role: domain.RoleSupplier},
			Capabilities: caps,
			Context: domain.AgentContext{
				Jurisdiction: "TW",
				Location:     &domain.GeoLocation{Code: "TW KHH", Name: "Kaohsiung"},
			},
		},
	}
}

func carrierNode(id string) domain.AgentNode {
	return domain.AgentNode{
		ID:    id,
		Role:  domain.RoleLogistics,
		Label: strings.ToUpper(id),
		Record: domain.AgentRecord{
			Identity:     domain.AgentIdentity{DID: "did:test:" + id, Role: domain.RoleLogistics},
			Capabilities: []string{"sea_freight"},
			Context:      domain.AgentContext{Jurisdiction: "GLOBAL", Fleet: "Triple-E Class"},
		},
	}
}

func testConfig() Config {
	return Config{
		Item:           "chips",
		Quantity:       100,
		Deadline:       "2026-12-31",
		Capability:     "chips",
		BasePrice:      450,
		JitterMax:      0,
		PriceModifiers: map[string]float64{},
		Seed:           1,
	}
}

// newTestEngine регистрирует узлы в каталоге и собирает движок без пауз.
func newTestEngine(t *testing.T, cfg Config, nodes []domain.AgentNode, opts ...Option) *Engine {
	t.Helper()
	dir := directory.New()
	for _, n := range nodes {
		require.True(t, dir.Register(n.Record))
	}
	opts = append([]Option{WithPacer(NoDelay{})}, opts...)
	e, err := NewEngine(dir, nodes, cfg, opts...)
	require.NoError(t, err)
	return e
}

func edgesOfType(snap Snapshot, t domain.EdgeType) []domain.RelationEdge {
	var out []domain.RelationEdge
	for _, e := range snap.Edges {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func nodeStatus(t *testing.T, snap Snapshot, id string) domain.NodeStatus {
	t.Helper()
	for _, n := range snap.Nodes {
		if n.ID == id {
			return n.Status
		}
	}
	t.Fatalf("node %q not found", id)
	return ""
}

func TestSelectWinner_TieBreakFirstSeen(t *testing.T) {
	winner, ok := SelectWinner([]Proposal{
		{NodeID: "A", Price: 500},
		{NodeID: "B", Price: 480},
		{NodeID: "C", Price: 480},
	})
	require.True(t, ok)
	assert.Equal(t, "B", winner.NodeID)

	_, ok = SelectWinner(nil)
	assert.False(t, ok)
}

func TestRun_DeterministicTopology(t *testing.T) {
	e := newTestEngine(t, testConfig(), []domain.AgentNode{
		buyerNode(), supplierNode("sup", "chips"), carrierNode("ship"),
	})

	outcome, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)

	snap := e.Snapshot()
	assert.Len(t, edgesOfType(snap, domain.EdgeContract), 1)
	assert.Len(t, edgesOfType(snap, domain.EdgeLogistics), 1)
	assert.Empty(t, edgesOfType(snap, domain.EdgeNegotiate))
	assert.Empty(t, edgesOfType(snap, domain.EdgeQuery))

	assert.Equal(t, domain.StatusSuccess, nodeStatus(t, snap, "buyer"))
	assert.Equal(t, domain.StatusSuccess, nodeStatus(t, snap, "sup"))
	assert.Equal(t, domain.StatusSuccess, nodeStatus(t, snap, "ship"))
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.False(t, snap.Running)
	assert.Equal(t, OutcomeCompleted, snap.Outcome)

	require.NotEmpty(t, snap.Logs)
	assert.Contains(t, snap.Logs[0].Message, "Settlement complete")
	assert.Equal(t, domain.SeveritySuccess, snap.Logs[0].Severity)
}

func TestRun_WinnerTieBreakInEngine(t *testing.T) {
	cfg := testConfig()
	cfg.BasePrice = 0
	cfg.PriceModifiers = map[string]float64{"a": 500, "b": 480, "c": 480}

	e := newTestEngine(t, cfg, []domain.AgentNode{
		buyerNode(),
		supplierNode("a", "chips"),
		supplierNode("b", "chips"),
		supplierNode("c", "chips"),
		carrierNode("ship"),
	})

	outcome, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, outcome)

	snap := e.Snapshot()
	contracts := edgesOfType(snap, domain.EdgeContract)
	require.Len(t, contracts, 1)
	assert.Equal(t, "b", contracts[0].To)
	assert.Equal(t, "signed", contracts[0].Label)

	assert.Equal(t, domain.StatusSuccess, nodeStatus(t, snap, "b"))
	assert.Equal(t, domain.StatusIdle, nodeStatus(t, snap, "a"))
	assert.Equal(t, domain.StatusIdle, nodeStatus(t, snap, "c"))

	logistics := edgesOfType(snap, domain.EdgeLogistics)
	require.Len(t, logistics, 1)
	assert.Equal(t, "b", logistics[0].From)
	assert.Equal(t, "ship", logistics[0].To)

	declines := 0
	for _, entry := range snap.Logs {
		if strings.HasPrefix(entry.Message, "Declined offer") {
			declines++
		}
	}
	assert.Equal(t, 2, declines)
}

func TestRun_NoCandidates(t *testing.T) {
	e := newTestEngine(t, testConfig(), []domain.AgentNode{
		buyerNode(), supplierNode("sup", "steel"), carrierNode("ship"),
	})

	outcome, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoCandidates, outcome)

	snap := e.Snapshot()
	assert.Empty(t, snap.Edges)
	assert.Equal(t, domain.StatusError, nodeStatus(t, snap, "buyer"))
	assert.Equal(t, domain.StatusIdle, nodeStatus(t, snap, "sup"))
	assert.Equal(t, domain.SeverityError, snap.Logs[0].Severity)
}

func TestRun_NoLogistics(t *testing.T) {
	e := newTestEngine(t, testConfig(), []domain.AgentNode{
		buyerNode(), supplierNode("sup", "chips"),
	})

	outcome, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoLogistics, outcome)

	snap := e.Snapshot()
	assert.Equal(t, domain.StatusSuccess, nodeStatus(t, snap, "sup"))
	assert.Len(t, edgesOfType(snap, domain.EdgeContract), 1)
	assert.Empty(t, edgesOfType(snap, domain.EdgeLogistics))
	assert.Contains(t, snap.Logs[0].Message, "CRITICAL")
	assert.Equal(t, domain.SeverityError, snap.Logs[0].Severity)
}

func TestRun_NoProposalsWhenAllQuotesFail(t *testing.T) {
	cfg := testConfig()
	cfg.QuoteFailureRate = 1

	e := newTestEngine(t, cfg, []domain.AgentNode{
		buyerNode(), supplierNode("a", "chips"), supplierNode("b", "chips"), carrierNode("ship"),
	})

	outcome, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoProposals, outcome)

	snap := e.Snapshot()
	assert.Equal(t, domain.StatusError, nodeStatus(t, snap, "buyer"))
	assert.Equal(t, domain.StatusError, nodeStatus(t, snap, "a"))
	assert.Len(t, edgesOfType(snap, domain.EdgeReject), 2)
	assert.Empty(t, edgesOfType(snap, domain.EdgeContract))
}

func TestRun_NoBuyer(t *testing.T) {
	e := newTestEngine(t, testConfig(), []domain.AgentNode{supplierNode("sup", "chips")})

	outcome, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoBuyer, outcome)
	assert.Empty(t, e.Snapshot().Edges)
}

func TestRun_RestartResetsState(t *testing.T) {
	nodes := []domain.AgentNode{buyerNode(), supplierNode("sup", "chips")}
	e := newTestEngine(t, testConfig(), nodes)

	first, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeNoLogistics, first)

	second, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)

	snap := e.Snapshot()
	assert.Len(t, snap.Edges, 1, "edges from the previous run must be cleared")
}

func TestRun_EdgesReferenceNodes(t *testing.T) {
	var mu sync.Mutex
	var violations []string

	e := newTestEngine(t, testConfig(), []domain.AgentNode{
		buyerNode(), supplierNode("a", "chips"), supplierNode("b", "chips"), carrierNode("ship"),
	}, WithObserver(ObserverFunc(func(ev Event) {
		ids := map[string]bool{}
		for _, n := range ev.Snapshot.Nodes {
			ids[n.ID] = true
		}
		for _, edge := range ev.Snapshot.Edges {
			if !ids[edge.From] || !ids[edge.To] {
				mu.Lock()
				violations = append(violations, edge.ID)
				mu.Unlock()
			}
		}
	})))

	_, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestRun_ObserverSeesPhasesInOrder(t *testing.T) {
	var phases []Phase
	e := newTestEngine(t, testConfig(), []domain.AgentNode{
		buyerNode(), supplierNode("sup", "chips"), carrierNode("ship"),
	}, WithObserver(ObserverFunc(func(ev Event) {
		if len(phases) == 0 || phases[len(phases)-1] != ev.Phase {
			phases = append(phases, ev.Phase)
		}
	})))

	_, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Phase{PhaseIntent, PhaseDiscovery, PhaseNegotiation, PhaseSettlement, PhaseIdle}, phases)
}

func TestStart_SingleFlight(t *testing.T) {
	gate := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once

	pacer := PacerFunc(func(ctx context.Context, _ time.Duration) error {
		once.Do(func() {
			close(entered)
			<-gate
		})
		return nil
	})

	e := newTestEngine(t, testConfig(), []domain.AgentNode{
		buyerNode(), supplierNode("sup", "chips"), carrierNode("ship"),
	}, WithPacer(pacer))

	runID, err := e.Start(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, runID)

	<-entered
	require.True(t, e.IsRunning())
	before := e.Snapshot()

	_, err = e.Start(context.Background())
	assert.ErrorIs(t, err, ErrBusy)
	_, err = e.Run(context.Background())
	assert.ErrorIs(t, err, ErrBusy)

	after := e.Snapshot()
	assert.Equal(t, before.Nodes, after.Nodes)
	assert.Equal(t, before.Edges, after.Edges)
	assert.Equal(t, before.Phase, after.Phase)
	require.Len(t, after.Logs, len(before.Logs)+2)
	assert.Equal(t, domain.SeverityWarning, after.Logs[0].Severity)
	assert.Contains(t, after.Logs[0].Message, "Start rejected")

	close(gate)
	e.Wait()

	assert.False(t, e.IsRunning())
	assert.Equal(t, OutcomeCompleted, e.LastOutcome())
	assert.Equal(t, runID, e.Snapshot().RunID)
}

func TestSelectNode(t *testing.T) {
	e := newTestEngine(t, testConfig(), []domain.AgentNode{buyerNode(), supplierNode("sup", "chips")})
	before := e.Snapshot()

	node, ok := e.SelectNode("sup")
	require.True(t, ok)
	assert.Equal(t, "SUP", node.Label)

	node.Record.Capabilities[0] = "mutated"
	_, ok = e.SelectNode("missing")
	assert.False(t, ok)

	assert.Equal(t, before.Nodes, e.Snapshot().Nodes)
}

func TestNewEngine_RejectsDuplicates(t *testing.T) {
	dir := directory.New()

	_, err := NewEngine(dir, []domain.AgentNode{buyerNode(), buyerNode()}, testConfig())
	assert.Error(t, err)

	dup := supplierNode("other", "chips")
	dup.Record.Identity.DID = buyerNode().Record.Identity.DID
	_, err = NewEngine(dir, []domain.AgentNode{buyerNode(), dup}, testConfig())
	assert.Error(t, err)

	_, err = NewEngine(nil, nil, testConfig())
	assert.Error(t, err)
}

func TestRun_SeededJitterIsReproducible(t *testing.T) {
	cfg := testConfig()
	cfg.JitterMax = 25
	nodes := []domain.AgentNode{buyerNode(), supplierNode("a", "chips"), supplierNode("b", "chips"), carrierNode("ship")}

	labels := func() []string {
		var seen []string
		e := newTestEngine(t, cfg, nodes, WithObserver(ObserverFunc(func(ev Event) {
			for _, edge := range ev.Snapshot.Edges {
				if edge.Type == domain.EdgeNegotiate {
					seen = append(seen, edge.ID+"="+edge.Label)
				}
			}
		})))
		_, err := e.Run(context.Background())
		require.NoError(t, err)
		return seen
	}

	assert.Equal(t, labels(), labels())
}
