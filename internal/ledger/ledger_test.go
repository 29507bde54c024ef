package ledger

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/nexusflow/internal/domain"
)

func TestLedger_BoundedNewestFirst(t *testing.T) {
	l := New(DefaultCapacity)

	for i := 1; i <= 60; i++ {
		l.Append(domain.SourceSystem, fmt.Sprintf("msg-%d", i), domain.SeverityInfo, nil)
	}

	entries := l.Entries()
	require.Len(t, entries, 50)
	assert.Equal(t, 50, l.Len())

	// Первая — самая новая (60-я), последняя — 11-я
	assert.Equal(t, "msg-60", entries[0].Message)
	assert.Equal(t, int64(60), entries[0].ID)
	assert.Equal(t, "msg-11", entries[49].Message)

	for i := 1; i < len(entries); i++ {
		assert.Greater(t, entries[i-1].ID, entries[i].ID, "ids must be strictly decreasing")
	}
}

func TestLedger_PartialFill(t *testing.T) {
	l := New(5)
	l.Append("buyer-01", "first", domain.SeverityAction, nil)
	l.Append("network", "second", domain.SeverityQuery, nil)

	entries := l.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "second", entries[0].Message)
	assert.Equal(t, "first", entries[1].Message)
	assert.Equal(t, 5, l.Capacity())
}

func TestLedger_EntriesIsCopy(t *testing.T) {
	l := New(3)
	l.Append(domain.SourceSystem, "original", domain.SeverityInfo, nil)

	got := l.Entries()
	got[0].Message = "changed"

	assert.Equal(t, "original", l.Entries()[0].Message)
}

func TestLedger_UsesClock(t *testing.T) {
	at := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	l := NewWithClock(0, func() time.Time { return at })

	e := l.Append(domain.SourceSystem, "tick", domain.SeverityInfo, map[string]string{"k": "v"})
	assert.Equal(t, at, e.Timestamp)
	assert.Equal(t, DefaultCapacity, l.Capacity())
	assert.Equal(t, map[string]string{"k": "v"}, e.Payload)
}
