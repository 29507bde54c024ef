// Package notify доставляет события движка наружу: WebSocket для слоя
// отображения и Redis Pub/Sub для других процессов.
package notify

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xela07ax/nexusflow/internal/engine"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	clientBuffer   = 64
	broadcastQueue = 256
)

type client struct {
	conn *websocket.Conn
	send chan engine.Event
}

// Hub рассылает события движка всем подключенным WebSocket-клиентам.
// Notify не блокирует движок: при переполнении очереди событие теряется,
// медленный клиент отключается.
type Hub struct {
	snapshot func() engine.Snapshot
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}

	broadcast chan engine.Event
}

func NewHub(snapshot func() engine.Snapshot, logger *zap.Logger) *Hub {
	return &Hub{
		snapshot: snapshot,
		logger:   logger.With(zap.String("mod", "ws_hub")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients:   make(map[*client]struct{}),
		broadcast: make(chan engine.Event, broadcastQueue),
	}
}

// Notify реализует engine.Observer.
func (h *Hub) Notify(ev engine.Event) {
	select {
	case h.broadcast <- ev:
	default:
		h.logger.Warn("ws broadcast queue full, event dropped", zap.String("type", string(ev.Kind)))
	}
}

// Run раздает события клиентам до отмены ctx, затем закрывает все соединения.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return
		case ev := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- ev:
				default:
					// Клиент не успевает читать
					close(c.send)
					delete(h.clients, c)
					h.logger.Warn("slow ws client dropped", zap.String("remote", c.conn.RemoteAddr().String()))
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP апгрейдит соединение, отправляет текущий снимок и подписывает клиента.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade error", zap.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan engine.Event, clientBuffer)}

	snap := h.snapshot()
	c.send <- engine.Event{Kind: engine.EventState, Phase: snap.Phase, RunID: snap.RunID, Snapshot: snap}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("ws client connected", zap.Int("total", total))

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		close(c.send)
		delete(h.clients, c)
	}
	total := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("ws client disconnected", zap.Int("total", total))
}

// readPump только держит соединение и ловит закрытие: входящих команд по WS нет.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				h.logger.Debug("websocket write error", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
