package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xela07ax/nexusflow/internal/domain"
	"github.com/xela07ax/nexusflow/internal/engine"
)

func TestRenderSnapshot_ChronologicalLedger(t *testing.T) {
	snap := engine.Snapshot{
		RunID:   "run-1",
		Outcome: engine.OutcomeCompleted,
		Nodes:   []domain.AgentNode{{ID: "buyer-01", Role: domain.RoleBuyer, Label: "Buyer", Status: domain.StatusSuccess}},
		Edges:   []domain.RelationEdge{{ID: "e", From: "buyer-01", To: "supplier-a", Type: domain.EdgeContract, Label: "signed"}},
		Logs: []domain.LogEntry{
			{ID: 2, Source: "system", Severity: domain.SeveritySuccess, Message: "second"},
			{ID: 1, Source: "buyer-01", Severity: domain.SeverityAction, Message: "first"},
		},
	}

	var buf bytes.Buffer
	renderSnapshot(&buf, snap)
	out := buf.String()

	assert.Contains(t, out, "run run-1 finished: completed")
	assert.Contains(t, out, "signed")
	assert.Less(t, strings.Index(out, "first"), strings.Index(out, "second"))
}

func TestReadLine(t *testing.T) {
	line, err := readLine(strings.NewReader("  hunter2 \n"))
	assert.NoError(t, err)
	assert.Equal(t, "hunter2", line)

	line, err = readLine(strings.NewReader("no-newline"))
	assert.NoError(t, err)
	assert.Equal(t, "no-newline", line)
}

func TestOutcomeLabel(t *testing.T) {
	assert.Equal(t, "not started", outcomeLabel(engine.OutcomeNone))
	assert.Equal(t, "no_logistics", outcomeLabel(engine.OutcomeNoLogistics))
}
