package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/solarlog-collector/internal/collector"
	"github.com/nerrad567/solarlog-collector/internal/decode"
	"github.com/nerrad567/solarlog-collector/internal/infrastructure/config"
	"github.com/nerrad567/solarlog-collector/internal/infrastructure/logging"
)

// Message types of the live feed protocol.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	wsSendBufferSize = 256
)

// Live feed channels a client may subscribe to.
const (
	ChannelMeasurementRecorded = "measurement.recorded"
	ChannelDeviceUnreachable   = "device.unreachable"
	ChannelCycleCompleted      = "cycle.completed"
)

var knownChannels = []string{
	ChannelMeasurementRecorded,
	ChannelDeviceUnreachable,
	ChannelCycleCompleted,
}

// noDevice marks events that are not tied to one inverter.
const noDevice = 0

// WSMessage is the envelope of every frame in both directions.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// inboundMessage is a client frame with its payload left undecoded.
type inboundMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// WSSubscribePayload is the payload of subscribe and unsubscribe frames.
//
// DeviceIDs narrows measurement and unreachable events to the listed
// inverters. An empty list on subscribe clears the filter. On unsubscribe
// it removes ids from the filter.
type WSSubscribePayload struct {
	Channels  []string `json:"channels"`
	DeviceIDs []int    `json:"device_ids,omitempty"`
}

// Hub fans collector events out to WebSocket clients. It implements
// collector.Observer so the scheduler can feed it directly.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex

	dropped atomic.Uint64
}

// WSClient is one connected feed consumer.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu            sync.RWMutex
	subscriptions map[string]struct{}
	devices       map[int]struct{} // nil means every device
	closed        bool             // send is closed; guarded by mu
}

// sendResult is the outcome of a non-blocking queue attempt.
type sendResult int

const (
	sendQueued sendResult = iota
	sendFull
	sendClosed
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a new WebSocket hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

// Unregister removes a client. Only the call that actually removes it
// closes the send channel.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	n := len(h.clients)
	h.mu.Unlock()

	if existed {
		client.closeSend()
		h.logger.Debug("websocket client disconnected", "clients", n)
	}
}

// Broadcast sends an event to every client subscribed to channel.
func (h *Hub) Broadcast(channel string, payload any) {
	h.broadcast(channel, noDevice, payload)
}

// broadcast delivers an event, honouring per-client device filters when
// deviceID identifies an inverter.
func (h *Hub) broadcast(channel string, deviceID int, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "channel", channel, "error", err)
		return
	}

	// Client locks are never taken while holding the hub lock.
	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	sent := 0
	for _, client := range clients {
		if !client.wants(channel, deviceID) {
			continue
		}
		switch client.trySend(data) {
		case sendQueued:
			sent++
		case sendFull:
			h.dropped.Add(1)
		case sendClosed:
			// Unregistered after the snapshot above; not a drop.
		}
	}
	if sent > 0 {
		h.logger.Debug("broadcast sent", "channel", channel, "recipients", sent)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many events were discarded because a client's send
// buffer was full.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
		delete(h.clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		client.closeSend()
		if client.conn != nil {
			client.conn.Close()
		}
	}
}

var _ collector.Observer = (*Hub)(nil)

// MeasurementRecorded implements collector.Observer.
func (h *Hub) MeasurementRecorded(ev collector.MeasurementEvent) {
	h.broadcast(ChannelMeasurementRecorded, ev.Measurement.DeviceID, collector.NewDeviceStatePayload(ev))
}

// DeviceUnreachable implements collector.Observer.
func (h *Hub) DeviceUnreachable(ev collector.UnreachableEvent) {
	h.broadcast(ChannelDeviceUnreachable, ev.DeviceID, ev)
}

// CycleCompleted implements collector.Observer.
func (h *Hub) CycleCompleted(summary collector.CycleSummary) {
	h.broadcast(ChannelCycleCompleted, noDevice, summary)
}

// handleWebSocket upgrades the request and starts the client pumps.
// The feed is read-only; clients choose what they receive by subscribing.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
	}
	s.hub.Register(client)

	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg)
}

func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	deadline := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(deadline)) }

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	extend() //nolint:errcheck // a failed deadline surfaces as a read error
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		// Application pings keep the connection alive for clients that
		// ignore protocol-level pings.
		extend() //nolint:errcheck // see above
		c.handleMessage(message)
	}
}

func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		//nolint:errcheck // a failed deadline surfaces as a write error
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				write(websocket.CloseMessage, nil) //nolint:errcheck // closing anyway
				return
			}
			if err := write(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes one client frame.
func (c *WSClient) handleMessage(data []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeSubscribe:
		c.updateSubscriptions(msg, true)
	case WSTypeUnsubscribe:
		c.updateSubscriptions(msg, false)
	case WSTypePing:
		c.sendResponse(msg.ID, WSTypePong, nil)
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// updateSubscriptions applies a subscribe or unsubscribe frame. Unknown
// channels or out-of-range device ids reject the whole frame.
func (c *WSClient) updateSubscriptions(msg inboundMessage, subscribe bool) {
	var sub WSSubscribePayload
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &sub); err != nil {
			c.sendError(msg.ID, "invalid "+msg.Type+" payload")
			return
		}
	}
	for _, ch := range sub.Channels {
		if !slices.Contains(knownChannels, ch) {
			c.sendError(msg.ID, "unknown channel: "+ch)
			return
		}
	}
	for _, id := range sub.DeviceIDs {
		if id < decode.MinDeviceID || id > decode.MaxDeviceID {
			c.sendError(msg.ID, errBadDeviceID.Error())
			return
		}
	}

	c.mu.Lock()
	for _, ch := range sub.Channels {
		if subscribe {
			c.subscriptions[ch] = struct{}{}
		} else {
			delete(c.subscriptions, ch)
		}
	}
	switch {
	case subscribe && len(sub.DeviceIDs) == 0:
		c.devices = nil
	case subscribe:
		c.devices = make(map[int]struct{}, len(sub.DeviceIDs))
		for _, id := range sub.DeviceIDs {
			c.devices[id] = struct{}{}
		}
	case c.devices != nil:
		for _, id := range sub.DeviceIDs {
			delete(c.devices, id)
		}
	}
	c.mu.Unlock()

	key := "unsubscribed"
	if subscribe {
		key = "subscribed"
		c.hub.logger.Debug("websocket client subscribed", "channels", sub.Channels, "device_ids", sub.DeviceIDs)
	}
	c.sendResponse(msg.ID, WSTypeResponse, map[string]any{
		key:          sub.Channels,
		"device_ids": sub.DeviceIDs,
	})
}

// trySend queues data without blocking.
func (c *WSClient) trySend(data []byte) sendResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return sendClosed
	}
	select {
	case c.send <- data:
		return sendQueued
	default:
		return sendFull
	}
}

// closeSend closes the send channel once. Senders holding the read lock
// finish before it closes.
func (c *WSClient) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// wants reports whether the client receives channel events for deviceID.
func (c *WSClient) wants(channel string, deviceID int) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.subscriptions[channel]; !ok {
		return false
	}
	if deviceID == noDevice || c.devices == nil {
		return true
	}
	_, ok := c.devices[deviceID]
	return ok
}

func (c *WSClient) sendResponse(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *WSClient) sendError(id, message string) {
	c.sendResponse(id, WSTypeError, map[string]string{"message": message})
}
