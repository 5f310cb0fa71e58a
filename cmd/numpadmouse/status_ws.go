package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ============================================================================
// Status WebSocket: hub + per-client pumps + broadcaster
// ============================================================================
//
// Messages are JSON text frames with an envelope: {type, ts, data}.
// The first message on connect is "state_init" with the engine state.
// Slow clients are disconnected when their send buffer fills.
//
// ============================================================================

// wsDirectionChangedData is the JSON `data` payload for "direction_changed".
type wsDirectionChangedData struct {
	Direction string `json:"direction"`
	Active    bool   `json:"active"`
}

// wsNumLockChangedData is the JSON `data` payload for "numlock_changed".
type wsNumLockChangedData struct {
	On bool `json:"on"`
}

// wsMotionData is the JSON `data` payload for "motion".
type wsMotionData struct {
	DX int32 `json:"dx"`
	DY int32 `json:"dy"`
}

// wsOutboundEvent is a pre-typed, externally-consumable status event.
type wsOutboundEvent struct {
	Type string
	Data any
	At   time.Time
}

// envelope is the wire format envelope for WS messages.
type envelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

// ============================================================================
// Hub
// ============================================================================

type Hub struct {
	logger *slog.Logger

	// Buffered broadcast channel for already-serialized JSON frames.
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.Mutex
	clients map[*Client]struct{}

	sendBuf int
}

type HubConfig struct {
	// SendBuf is the per-client outbound queue size.
	SendBuf int

	// BroadcastBuf is the hub inbound broadcast queue size.
	BroadcastBuf int
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, cfg HubConfig) *Hub {
	sendBuf := cfg.SendBuf
	if sendBuf <= 0 {
		sendBuf = 32
	}
	bcastBuf := cfg.BroadcastBuf
	if bcastBuf <= 0 {
		bcastBuf = 128
	}

	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, bcastBuf),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		clients:    make(map[*Client]struct{}),
		sendBuf:    sendBuf,
	}
}

// Run processes hub events until ctx is canceled.
// It disconnects all clients on shutdown.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Debug("ws hub starting")

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("ws hub stopping (context canceled)")
			h.closeAllClients()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws client registered", "remote_addr", c.remoteAddr, "clients", n)

		case c := <-h.unregister:
			h.removeClient(c, "unregister")

		case msg := <-h.broadcast:
			// Collect slow clients first, then remove them after we unlock.
			var slow []*Client

			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.Unlock()

			for _, c := range slow {
				h.removeClient(c, "slow_client")
			}
		}
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		safeCloseChan(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) removeClient(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	// Closing send signals writePump to exit.
	safeCloseChan(c.send)

	h.logger.Info("ws client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
}

func safeCloseChan(ch chan []byte) {
	defer func() {
		_ = recover() // ignore "close of closed channel"
	}()
	close(ch)
}

// BroadcastBytes enqueues a pre-serialized JSON frame for broadcast.
// It never blocks; if the hub queue is full it drops the message.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("ws hub broadcast queue full, dropping message", "bytes", len(msg))
	}
}

// ============================================================================
// Client
// ============================================================================

type Client struct {
	hub *Hub

	conn *websocket.Conn
	send chan []byte

	remoteAddr string
	logger     *slog.Logger
}

// NewClient creates a client with a buffered send channel.
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string, logger *slog.Logger) *Client {
	sendBuf := 32
	if hub != nil && hub.sendBuf > 0 {
		sendBuf = hub.sendBuf
	}
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBuf),
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

// wsMotionCoalesceWindow is the window over which motion reports are summed
// before being broadcast. At a 10ms tick this keeps clients at ~20 frames/s.
const wsMotionCoalesceWindow = 50 * time.Millisecond

// closeStatus extracts a websocket close code / text when possible.
func closeStatus(err error) (code int, text string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

func (c *Client) logExit(pump string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	if code, text, ok := closeStatus(err); ok {
		c.logger.Info("ws "+pump+" exiting (close)", "remote_addr", c.remoteAddr, "code", code, "reason", text)
		return
	}
	c.logger.Info("ws "+pump+" exiting", "remote_addr", c.remoteAddr, "error", err)
}

// writePump writes messages from the send queue to the websocket.
// It exits on write error or when send is closed.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed: hub is disconnecting us.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logExit("writePump", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logExit("writePump", err)
				return
			}
		}
	}
}

// readPump reads and discards incoming messages to detect disconnects and
// handle control frames. It unregisters the client on exit.
func (c *Client) readPump() {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.logExit("readPump", err)
			if c.hub != nil {
				c.hub.unregister <- c
			}
			return
		}
	}
}

// ============================================================================
// HTTP Handler
// ============================================================================

type StatusServer struct {
	logger *slog.Logger
	hub    *Hub

	// state provides the snapshot sent as state_init.
	state func() EngineState
}

// NewStatusServer constructs the status components. Register the handler on
// a mux, then run hub.Run(ctx) and RunBroadcaster.
func NewStatusServer(logger *slog.Logger, state func() EngineState, cfg HubConfig) *StatusServer {
	return &StatusServer{
		logger: logger,
		hub:    NewHub(logger, cfg),
		state:  state,
	}
}

func (s *StatusServer) Hub() *Hub { return s.hub }

// Register registers the WS handler on the provided mux.
func (s *StatusServer) Register(mux *http.ServeMux, path string) {
	mux.HandleFunc(path, s.handleStatusWS)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStatusWS upgrades, queues state_init and registers the client.
func (s *StatusServer) handleStatusWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn, r.RemoteAddr, s.logger)

	// Queue state_init before registering so it is always the first frame.
	if msg, err := marshalStateInit(s.state()); err == nil {
		client.send <- msg
	} else {
		s.logger.Warn("ws state_init marshal failed", "error", err)
	}

	s.hub.register <- client

	// The pumps outlive the request; their lifetime is managed by the hub
	// and by websocket read/write errors.
	go client.writePump()
	go client.readPump()
}

func marshalStateInit(st EngineState) ([]byte, error) {
	ts := st.At
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return json.Marshal(envelope{Type: "state_init", Ts: &ts, Data: st})
}

// ============================================================================
// Broadcaster
// ============================================================================

// RunBroadcaster reads engine broadcasts, marshals them and broadcasts them to
// all hub clients. Motion is summed and flushed at most once per
// wsMotionCoalesceWindow; other events flush pending motion and go out at once.
func RunBroadcaster(ctx context.Context, hub *Hub, src <-chan StatusBroadcast, logger *slog.Logger) {
	if hub == nil || src == nil {
		return
	}

	var pending *wsMotionData
	var pendingAt time.Time
	var timer *time.Timer
	var timerCh <-chan time.Time

	send := func(ev wsOutboundEvent) {
		ts := ev.At
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		msg, err := json.Marshal(envelope{Type: ev.Type, Ts: &ts, Data: ev.Data})
		if err != nil {
			logger.Warn("ws broadcaster marshal failed", "error", err, "type", ev.Type)
			return
		}
		hub.BroadcastBytes(msg)
	}

	flushMotion := func() {
		if pending == nil {
			return
		}
		if ev, ok := convertBroadcast(BroadcastMotion{DX: pending.DX, DY: pending.DY, At: pendingAt}); ok {
			send(ev)
		}
		pending = nil
	}

	stopTimer := func() {
		if timer != nil {
			timer.Stop()
		}
		timer = nil
		timerCh = nil
	}

	for {
		select {
		case <-ctx.Done():
			flushMotion()
			stopTimer()
			return

		case <-timerCh:
			flushMotion()
			stopTimer()

		case b, ok := <-src:
			if !ok {
				flushMotion()
				stopTimer()
				logger.Debug("ws broadcaster stopping (source ended)")
				return
			}

			if m, isMotion := b.(BroadcastMotion); isMotion {
				if pending == nil {
					pending = &wsMotionData{}
				}
				pending.DX += m.DX
				pending.DY += m.DY
				pendingAt = m.At
				if timer == nil {
					timer = time.NewTimer(wsMotionCoalesceWindow)
					timerCh = timer.C
				}
				continue
			}

			ev, ok := convertBroadcast(b)
			if !ok {
				continue
			}
			flushMotion()
			stopTimer()
			send(ev)
		}
	}
}

func convertBroadcast(b StatusBroadcast) (wsOutboundEvent, bool) {
	switch ev := b.(type) {
	case BroadcastDirectionChanged:
		return wsOutboundEvent{
			Type: "direction_changed",
			Data: wsDirectionChangedData{Direction: ev.Direction.String(), Active: ev.Active},
			At:   ev.At,
		}, true

	case BroadcastNumLockChanged:
		return wsOutboundEvent{
			Type: "numlock_changed",
			Data: wsNumLockChangedData{On: ev.On},
			At:   ev.At,
		}, true

	case BroadcastMotion:
		return wsOutboundEvent{
			Type: "motion",
			Data: wsMotionData{DX: ev.DX, DY: ev.DY},
			At:   ev.At,
		}, true

	default:
		return wsOutboundEvent{}, false
	}
}
