package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/fieldgate/internal/device"
	"github.com/nerrad567/fieldgate/internal/infrastructure/config"
	"github.com/nerrad567/fieldgate/internal/infrastructure/logging"
	"github.com/nerrad567/fieldgate/internal/metrics"
)

// WebSocket message types.
const (
	WSTypeDeviceAdd    = string(device.EventAdd)
	WSTypeDeviceRemove = string(device.EventRemove)
	WSTypeDeviceChange = string(device.EventChange)
	WSTypePing         = "ping"
	WSTypePong         = "pong"

	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 256

	defaultWriteTimeout = 10 * time.Second
)

// WSMessage is the envelope of every subscriber message.
type WSMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// DeviceLister provides the snapshot sent to new subscribers.
type DeviceLister interface {
	GetDevices() []device.Device
}

// Hub fans registry events out to websocket subscribers.
//
// Every broadcast re-arms a single keep-alive timer; when it fires a ping is
// broadcast. Slow subscribers whose queue is full miss messages rather than
// stall the hub.
type Hub struct {
	cfg     config.WebSocketConfig
	devices DeviceLister
	logger  *logging.Logger

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
	closed  bool

	pingMu    sync.Mutex
	pingTimer *time.Timer
	pingOff   bool
}

// WSClient represents a connected websocket subscriber.
type WSClient struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a hub. devices may be nil, in which case new subscribers
// receive an empty snapshot.
func NewHub(cfg config.WebSocketConfig, devices DeviceLister, logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Hub{
		cfg:     cfg,
		devices: devices,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run arms the keep-alive timer and blocks until ctx is cancelled, then
// closes the hub.
func (h *Hub) Run(ctx context.Context) {
	h.schedulePing()
	<-ctx.Done()
	h.Close()
}

// Close stops the keep-alive timer and disconnects every subscriber.
// It is safe to call more than once.
func (h *Hub) Close() {
	h.pingMu.Lock()
	h.pingOff = true
	if h.pingTimer != nil {
		h.pingTimer.Stop()
	}
	h.pingMu.Unlock()

	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.closeAll()
}

// HandleEvent broadcasts a registry event. It is registered with
// Registry.Subscribe.
func (h *Hub) HandleEvent(ev device.Event) {
	switch ev.Kind {
	case device.EventAdd:
		h.Broadcast(WSTypeDeviceAdd, []device.Device{ev.Device})
	case device.EventRemove:
		h.Broadcast(WSTypeDeviceRemove, map[string]any{"device": ev.Device.Address})
	case device.EventChange:
		h.Broadcast(WSTypeDeviceChange, map[string]any{
			"device":  ev.Device.Address,
			"changes": ev.Changes,
		})
	}
}

// Register adds a client and queues the device snapshot as its first
// message. The snapshot is taken under the hub lock so no broadcast can
// slip between it and the client joining.
func (h *Hub) Register(client *WSClient) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}

	devices := []device.Device{}
	if h.devices != nil {
		devices = h.devices.GetDevices()
	}
	data, err := json.Marshal(WSMessage{Type: WSTypeDeviceAdd, Data: devices})
	if err == nil {
		client.send <- data
	} else {
		h.logger.Error("failed to marshal device snapshot", "error", err)
	}

	h.clients[client] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	metrics.WSSubscribers.Set(float64(count))
	h.logger.Debug("websocket client connected", "client", client.id, "clients", count)
	return true
}

// Unregister removes a client from the hub.
// Only the goroutine that successfully removes the client from the map
// closes the send channel, preventing double-close panics during shutdown.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	count := len(h.clients)
	h.mu.Unlock()

	if existed {
		close(client.send)
		metrics.WSSubscribers.Set(float64(count))
	}
	h.logger.Debug("websocket client disconnected", "client", client.id, "clients", count)
}

// Broadcast sends {type, data} to every subscriber and re-arms the
// keep-alive timer.
func (h *Hub) Broadcast(msgType string, data any) {
	payload, err := json.Marshal(WSMessage{Type: msgType, Data: data})
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "type", msgType, "error", err)
		return
	}

	// Snapshot client list under hub lock, then release before sending
	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		client.trySend(payload)
	}
	metrics.WSBroadcastsTotal.WithLabelValues(msgType).Inc()
	if len(clients) > 0 {
		h.logger.Debug("broadcast sent", "type", msgType, "recipients", len(clients))
	}

	h.schedulePing()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// schedulePing (re)starts the keep-alive timer.
func (h *Hub) schedulePing() {
	interval := time.Duration(h.cfg.PingInterval) * time.Second
	if interval <= 0 {
		return
	}

	h.pingMu.Lock()
	defer h.pingMu.Unlock()
	if h.pingOff {
		return
	}
	if h.pingTimer == nil {
		h.pingTimer = time.AfterFunc(interval, h.ping)
		return
	}
	h.pingTimer.Reset(interval)
}

func (h *Hub) ping() {
	h.Broadcast(WSTypePing, nil)
}

// closeAll disconnects all clients and closes their send channels
// so writePump goroutines can exit cleanly.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
	metrics.WSSubscribers.Set(0)
}

// handleWebSocket upgrades the HTTP connection to a websocket subscriber.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		id:   uuid.NewString(),
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, wsSendBufferSize),
	}
	if !s.hub.Register(client) {
		conn.Close()
		return
	}
	s.logger.Info("websocket client connected",
		"client", client.id,
		"remote", r.RemoteAddr,
		"request_id", r.Context().Value(ctxKeyRequestID),
	)

	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg)
}

// readPump reads messages from the websocket connection until it fails.
func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	connectedAt := time.Now()
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
		c.hub.logger.Info("websocket client closed",
			"client", c.id,
			"duration_s", time.Since(connectedAt).Seconds(),
		)
	}()

	if cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	}

	for {
		msgType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "client", c.id, "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "client", c.id, "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		c.handleMessage(message)
	}
}

// writePump writes queued messages to the websocket connection.
func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	defer c.conn.Close()

	writeTimeout := time.Duration(cfg.WriteTimeout) * time.Second
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}

	for message := range c.send {
		//nolint:errcheck // Best-effort deadline; write error caught below
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}

	// Hub closed the channel
	//nolint:errcheck // Best-effort close message
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
		time.Now().Add(writeTimeout))
}

// handleMessage answers keep-alive pings. Everything else is ignored.
func (c *WSClient) handleMessage(data []byte) {
	if string(data) == WSTypePing {
		c.trySend([]byte(WSTypePong))
		return
	}

	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if msg.Type == WSTypePing {
		c.sendMessage(WSMessage{Type: WSTypePong})
	}
}

// trySend attempts to send data to the client's send channel.
// It silently handles closed channels (client disconnected during broadcast)
// and full buffers (slow client).
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
	default:
		// Client buffer full, skip
	}
}

// sendMessage marshals msg and queues it for this client only.
func (c *WSClient) sendMessage(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.trySend(data)
}
