package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xela07ax/nexusflow/internal/directory"
	"github.com/xela07ax/nexusflow/internal/domain"
	"github.com/xela07ax/nexusflow/internal/engine"
	"github.com/xela07ax/nexusflow/internal/protocol"
	"github.com/xela07ax/nexusflow/internal/reliability"
)

type memStorage struct {
	mu      sync.Mutex
	batches [][]Entry
	failN   int
}

func (m *memStorage) WriteBatch(_ context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failN > 0 {
		m.failN--
		return errors.New("db unavailable")
	}
	m.batches = append(m.batches, entries)
	return nil
}

func (m *memStorage) all() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for _, b := range m.batches {
		out = append(out, b...)
	}
	return out
}

type emptyFinder struct{}

func (emptyFinder) Find(directory.Query) []domain.AgentRecord { return nil }

func logEvent(runID string, seq int64, payload any) engine.Event {
	return engine.Event{
		Kind:  engine.EventLog,
		Phase: engine.PhaseNegotiation,
		RunID: runID,
		Entry: &domain.LogEntry{
			ID:        seq,
			Timestamp: time.Now(),
			Source:    "supplier-a",
			Message:   "offer",
			Severity:  domain.SeverityInfo,
			Payload:   payload,
		},
	}
}

func TestJournal_FlushesOnStop(t *testing.T) {
	store := &memStorage{}
	j := NewJournal(store, Options{BatchSize: 100, FlushInterval: time.Hour}, nil, nil)
	j.Start()

	for i := int64(1); i <= 5; i++ {
		j.Notify(logEvent("run-1", i, nil))
	}
	j.Stop()

	entries := store.all()
	require.Len(t, entries, 5)
	assert.Equal(t, int64(1), entries[0].Seq)
	assert.Equal(t, "run-1", entries[0].RunID)
	assert.Equal(t, "negotiation", entries[0].Phase)
	assert.NotEmpty(t, entries[0].ID)
}

func TestJournal_BatchesBySize(t *testing.T) {
	store := &memStorage{}
	j := NewJournal(store, Options{BatchSize: 2, FlushInterval: time.Hour}, nil, nil)
	j.Start()

	for i := int64(1); i <= 5; i++ {
		j.Notify(logEvent("run-1", i, nil))
	}
	j.Stop()

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.batches, 3)
	assert.Len(t, store.batches[0], 2)
	assert.Len(t, store.batches[2], 1)
}

func TestJournal_IgnoresStateEvents(t *testing.T) {
	store := &memStorage{}
	j := NewJournal(store, DefaultOptions(), nil, nil)
	j.Start()

	j.Notify(engine.Event{Kind: engine.EventState, Phase: engine.PhaseIntent})
	j.Stop()

	assert.Empty(t, store.all())
}

func TestJournal_DropsAfterStop(t *testing.T) {
	store := &memStorage{}
	j := NewJournal(store, DefaultOptions(), nil, nil)
	j.Start()
	j.Stop()
	j.Stop()

	j.Notify(logEvent("run-1", 1, nil))
	assert.Equal(t, int64(1), j.Dropped())
	assert.Empty(t, store.all())
}

func TestJournal_DropsOnOverflow(t *testing.T) {
	store := &memStorage{}
	// Воркер не запущен, канал на одну запись
	j := NewJournal(store, Options{BufferSize: 1}, nil, nil)

	j.Log(Entry{Seq: 1})
	j.Log(Entry{Seq: 2})
	assert.Equal(t, int64(1), j.Dropped())
}

func TestFromLog_SerializesEnvelope(t *testing.T) {
	codec := protocol.NewCodecWithIDs(func() string { return "req_1" })
	ev := logEvent("run-1", 7, codec.CreateIntent("chips", 10, "2026-12-31"))

	entry := FromLog(ev.RunID, string(ev.Phase), *ev.Entry)
	assert.Equal(t, int64(7), entry.Seq)
	assert.Equal(t, "info", entry.Severity)
	assert.Contains(t, string(entry.Payload), `"method":"supply.procure"`)

	empty := FromLog("run-1", "intent", domain.LogEntry{ID: 1})
	assert.Nil(t, empty.Payload)
}

func TestReliableStorage_RetriesTransientFailures(t *testing.T) {
	store := &memStorage{failN: 2}
	s := reliability.DefaultSettings("journal")
	s.RetryDelay = time.Millisecond
	rs := NewReliableStorage(store, reliability.New(s, nil, nil))

	err := rs.WriteBatch(context.Background(), []Entry{{Seq: 1}})
	require.NoError(t, err)
	assert.Len(t, store.all(), 1)
}

func TestJournal_ObservesEngineRun(t *testing.T) {
	store := &memStorage{}
	j := NewJournal(store, DefaultOptions(), nil, nil)
	j.Start()

	// Пустой каталог: транзакция завершится сразу, но журнал получит записи
	e, err := engine.NewEngine(emptyFinder{}, nil, engine.Config{}, engine.WithPacer(engine.NoDelay{}), engine.WithObserver(j))
	require.NoError(t, err)
	_, err = e.Run(context.Background())
	require.NoError(t, err)
	j.Stop()

	entries := store.all()
	require.NotEmpty(t, entries)
	assert.Equal(t, e.Snapshot().RunID, entries[0].RunID)
}
