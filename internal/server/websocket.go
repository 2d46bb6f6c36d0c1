package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/randalmurphal/duckling/internal/events"
	"github.com/randalmurphal/duckling/internal/task"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 50 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Clients only send small
	// control messages.
	maxMessageSize = 4 * 1024
)

// WSMessage is one frame on the /ws feed. Type is "task_update" for bus
// events, "pong" in reply to client pings, and "error" otherwise.
type WSMessage struct {
	Type   string      `json:"type"`
	TaskID int64       `json:"task_id,omitempty"`
	Status task.Status `json:"status,omitempty"`
	Task   *task.Task  `json:"task,omitempty"`
	Time   *time.Time  `json:"time,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// wsHandler upgrades /ws requests and fans task updates out to every
// connected client.
type wsHandler struct {
	upgrader    websocket.Upgrader
	engine      TaskService
	connections map[*websocket.Conn]*wsConnection
	mu          sync.RWMutex
	logger      *slog.Logger
}

// wsConnection tracks a single WebSocket connection. The id is the event
// bus subscription id, which doubles as the connection identity in logs.
type wsConnection struct {
	id      string
	conn    *websocket.Conn
	updates <-chan events.TaskUpdate
	send    chan []byte
	done    chan struct{}
}

func newWSHandler(engine TaskService, logger *slog.Logger) *wsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &wsHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		engine:      engine,
		connections: make(map[*websocket.Conn]*wsConnection),
		logger:      logger,
	}
}

// ServeHTTP handles WebSocket upgrade requests. Every connection gets the
// full task-update feed; there is no per-task subscription protocol.
func (h *wsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	id, updates := h.engine.Subscribe(0)
	wsConn := &wsConnection{
		id:      id,
		conn:    conn,
		updates: updates,
		send:    make(chan []byte, 256),
		done:    make(chan struct{}),
	}

	h.mu.Lock()
	h.connections[conn] = wsConn
	h.mu.Unlock()

	h.logger.Debug("websocket client connected", "conn_id", id)

	go h.readPump(wsConn)
	go h.writePump(wsConn)
	go h.forwardUpdates(wsConn)
}

// readPump reads messages from the WebSocket connection.
func (h *wsHandler) readPump(c *wsConnection) {
	defer func() {
		h.closeConnection(c)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("websocket read error", "conn_id", c.id, "error", err)
			}
			return
		}

		h.handleMessage(c, message)
	}
}

// writePump writes messages to the WebSocket connection.
func (h *wsHandler) writePump(c *wsConnection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// Flush any queued messages as separate frames.
			n := len(c.send)
			for i := 0; i < n; i++ {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.conn.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					return
				}
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes incoming WebSocket messages. The only supported
// client message is an application-level ping.
func (h *wsHandler) handleMessage(c *wsConnection, data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.sendError(c, "invalid message format")
		return
	}

	switch msg.Type {
	case "ping":
		h.sendJSON(c, WSMessage{Type: "pong"})
	default:
		h.sendError(c, "unknown message type: "+msg.Type)
	}
}

// forwardUpdates pushes bus updates to the connection until it closes.
func (h *wsHandler) forwardUpdates(c *wsConnection) {
	for {
		select {
		case <-c.done:
			return
		case update, ok := <-c.updates:
			if !ok {
				return
			}
			t := update.Time
			h.sendJSON(c, WSMessage{
				Type:   "task_update",
				TaskID: update.TaskID,
				Status: update.Status,
				Task:   update.Task,
				Time:   &t,
			})
		}
	}
}

// closeConnection cleans up a WebSocket connection.
func (h *wsHandler) closeConnection(c *wsConnection) {
	h.mu.Lock()
	_, exists := h.connections[c.conn]
	if !exists {
		h.mu.Unlock()
		return
	}
	delete(h.connections, c.conn)
	h.mu.Unlock()

	h.engine.Unsubscribe(c.id)

	select {
	case <-c.done:
	default:
		close(c.done)
	}

	_ = c.conn.Close()
	h.logger.Debug("websocket client disconnected", "conn_id", c.id)
}

// sendJSON sends a JSON message to a connection. Slow consumers have
// messages dropped rather than blocking the sender; clients recover by
// refetching state on reconnect.
func (h *wsHandler) sendJSON(c *wsConnection, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal websocket message", "error", err)
		return
	}

	select {
	case c.send <- data:
	default:
		h.logger.Warn("websocket send buffer full, dropping message", "conn_id", c.id)
	}
}

// sendError sends an error message to a connection.
func (h *wsHandler) sendError(c *wsConnection, message string) {
	h.sendJSON(c, WSMessage{Type: "error", Error: message})
}

// ConnectionCount returns the number of active connections.
func (h *wsHandler) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Close closes all connections.
func (h *wsHandler) Close() {
	h.mu.Lock()
	conns := make([]*wsConnection, 0, len(h.connections))
	for _, c := range h.connections {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		h.closeConnection(c)
	}
}
