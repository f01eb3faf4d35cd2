package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/tphakala/logwatch/internal/alerting"
	"github.com/tphakala/logwatch/internal/logger"
	"github.com/tphakala/logwatch/internal/observability"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = (streamPongWait * 9) / 10 // must be < pongWait
	streamMaxMsgSize = 512                       // clients only send control frames
	// streamClientBuffer is how many events may queue for one client before
	// it is considered too slow and disconnected.
	streamClientBuffer = 64
)

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Browsers always send Origin on upgrade; reject cross-site pages.
		// Non-browser clients may omit it.
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

type streamClient struct {
	conn   *websocket.Conn
	remote string
	send   chan []byte
}

// Hub fans alert events out to websocket clients.
type Hub struct {
	metrics *observability.Metrics
	log     logger.Logger

	mu      sync.Mutex
	clients map[*streamClient]struct{}
	closed  bool
}

// NewHub creates an empty hub.
func NewHub(m *observability.Metrics, log logger.Logger) *Hub {
	return &Hub{
		metrics: m,
		log:     log,
		clients: make(map[*streamClient]struct{}),
	}
}

// Broadcast implements alerting.AlertEventHandler. It never blocks: a
// client whose queue is full is disconnected.
func (h *Hub) Broadcast(event *alerting.AlertEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.log.Error("failed to encode alert event for stream", logger.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- payload:
		default:
			h.log.Warn("dropping slow alert stream client",
				logger.String("remote", client.remote))
			h.removeLocked(client)
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for client := range h.clients {
		h.removeLocked(client)
	}
}

func (h *Hub) register(client *streamClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[client] = struct{}{}
	h.metrics.WebsocketClients(len(h.clients))
	return true
}

func (h *Hub) unregister(client *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client)
}

// removeLocked closes the client's queue, which makes its writer send a
// close frame and drop the connection.
func (h *Hub) removeLocked(client *streamClient) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	h.metrics.WebsocketClients(len(h.clients))
}

// ServeWS upgrades the request and streams alert events as JSON text
// messages until either side closes.
func (h *Hub) ServeWS(ctx echo.Context) error {
	conn, err := streamUpgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.log.Warn("failed to upgrade alert stream", logger.Error(err))
		return nil
	}

	client := &streamClient{
		conn:   conn,
		remote: conn.RemoteAddr().String(),
		send:   make(chan []byte, streamClientBuffer),
	}
	if !h.register(client) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(streamWriteWait))
		_ = conn.Close()
		return nil
	}
	h.log.Debug("alert stream client connected", logger.String("remote", client.remote))

	var wg sync.WaitGroup
	wg.Go(func() { h.writePump(client) })
	h.readPump(client)
	h.unregister(client)
	wg.Wait()

	h.log.Debug("alert stream client disconnected", logger.String("remote", client.remote))
	// The connection is hijacked; echo must not write a response.
	return nil
}

// readPump discards client messages and keeps the read deadline alive via
// pongs. It returns when the connection fails or is closed.
func (h *Hub) readPump(client *streamClient) {
	conn := client.conn
	conn.SetReadLimit(streamMaxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the connection's only writer.
func (h *Hub) writePump(client *streamClient) {
	conn := client.conn
	ticker := time.NewTicker(streamPingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case payload, ok := <-client.send:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
