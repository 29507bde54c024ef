package notify

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/nexusflow/internal/engine"
)

func dialHub(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_SendsSnapshotThenEvents(t *testing.T) {
	snap := engine.Snapshot{RunID: "run-0", Phase: engine.PhaseIdle}
	h := NewHub(func() engine.Snapshot { return snap }, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	conn := dialHub(t, h)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var first engine.Event
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, engine.EventState, first.Kind)
	assert.Equal(t, "run-0", first.Snapshot.RunID)

	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	h.Notify(engine.Event{Kind: engine.EventState, Phase: engine.PhaseNegotiation, RunID: "run-1"})

	var second engine.Event
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, engine.PhaseNegotiation, second.Phase)
	assert.Equal(t, "run-1", second.RunID)
}

func TestHub_UnregistersOnClose(t *testing.T) {
	h := NewHub(func() engine.Snapshot { return engine.Snapshot{} }, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	conn := dialHub(t, h)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return h.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
