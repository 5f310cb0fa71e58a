package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// These hub tests construct Clients with a nil websocket.Conn and never
// require real writes. Slow-client eviction calls conn.Close(); the hub
// guards against nil.

func newTestHub(t *testing.T, sendBuf int, broadcastBuf int) *Hub {
	t.Helper()
	return NewHub(discardLogger(), HubConfig{
		SendBuf:      sendBuf,
		BroadcastBuf: broadcastBuf,
	})
}

func newTestClient(hub *Hub, name string, buf int) *Client {
	return &Client{
		hub:        hub,
		send:       make(chan []byte, buf),
		remoteAddr: name,
		logger:     discardLogger(),
	}
}

func registerAndWait(t *testing.T, hub *Hub, c *Client) {
	t.Helper()
	hub.register <- c
	waitUntil(t, 500*time.Millisecond, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		_, ok := hub.clients[c]
		return ok
	}, c.remoteAddr+" not registered in time")
}

func startHub(t *testing.T, hub *Hub) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Errorf("timeout waiting for hub to stop")
		}
	})
	return cancel
}

func recvFrame(t *testing.T, c *Client) envelope {
	t.Helper()
	select {
	case msg := <-c.send:
		var env envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			t.Fatalf("bad frame %q: %v", msg, err)
		}
		return env
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for frame on %s", c.remoteAddr)
		return envelope{}
	}
}

func TestHub_BroadcastDeliveredToAllClients(t *testing.T) {
	hub := newTestHub(t, 4, 8)
	startHub(t, hub)

	c1 := newTestClient(hub, "c1", 4)
	c2 := newTestClient(hub, "c2", 4)
	registerAndWait(t, hub, c1)
	registerAndWait(t, hub, c2)

	msg := []byte(`{"type":"numlock_changed","data":{"on":true}}`)

	// Send directly: BroadcastBytes may drop if the queue is momentarily full.
	hub.broadcast <- msg

	for _, c := range []*Client{c1, c2} {
		select {
		case got := <-c.send:
			if string(got) != string(msg) {
				t.Fatalf("%s got %q, want %q", c.remoteAddr, got, msg)
			}
		case <-time.After(500 * time.Millisecond):
			t.Fatalf("timeout waiting for %s to receive broadcast", c.remoteAddr)
		}
	}
}

func TestHub_SlowClientDisconnectedOnFullSendBuffer(t *testing.T) {
	hub := newTestHub(t, 1, 8)
	startHub(t, hub)

	slow := newTestClient(hub, "slow", 1)
	fast := newTestClient(hub, "fast", 8)
	registerAndWait(t, hub, slow)
	registerAndWait(t, hub, fast)

	slow.send <- []byte(`"already queued"`)

	msg := []byte(`{"type":"motion","data":{"dx":1,"dy":0}}`)
	hub.broadcast <- msg

	select {
	case got := <-fast.send:
		if string(got) != string(msg) {
			t.Fatalf("fast client got %q, want %q", got, msg)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timeout waiting for fast client to receive broadcast")
	}

	// Drain the pre-filled frame, then expect the channel to be closed.
	select {
	case <-slow.send:
	default:
	}
	waitUntil(t, 750*time.Millisecond, func() bool {
		select {
		case _, ok := <-slow.send:
			return !ok
		default:
			return false
		}
	}, "expected slow send channel to be closed")
}

func TestBroadcaster_CoalescesMotion(t *testing.T) {
	hub := newTestHub(t, 8, 8)
	startHub(t, hub)
	c := newTestClient(hub, "c", 8)
	registerAndWait(t, hub, c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := make(chan StatusBroadcast, 8)
	go RunBroadcaster(ctx, hub, src, discardLogger())

	src <- BroadcastMotion{DX: 1, DY: 0}
	src <- BroadcastMotion{DX: 2, DY: -1}
	src <- BroadcastDirectionChanged{Direction: DirLeft, Active: true}

	env := recvFrame(t, c)
	if env.Type != "motion" {
		t.Fatalf("expected pending motion flushed first, got %q", env.Type)
	}
	data := env.Data.(map[string]any)
	if data["dx"] != float64(3) || data["dy"] != float64(-1) {
		t.Errorf("expected summed motion (3,-1), got %v", data)
	}

	env = recvFrame(t, c)
	if env.Type != "direction_changed" {
		t.Fatalf("expected direction_changed, got %q", env.Type)
	}
	data = env.Data.(map[string]any)
	if data["direction"] != "left" || data["active"] != true {
		t.Errorf("unexpected payload %v", data)
	}
}

func TestBroadcaster_FlushesMotionAfterWindow(t *testing.T) {
	hub := newTestHub(t, 8, 8)
	startHub(t, hub)
	c := newTestClient(hub, "c", 8)
	registerAndWait(t, hub, c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := make(chan StatusBroadcast, 8)
	go RunBroadcaster(ctx, hub, src, discardLogger())

	src <- BroadcastMotion{DX: 0, DY: 5}

	env := recvFrame(t, c)
	if env.Type != "motion" {
		t.Fatalf("expected motion, got %q", env.Type)
	}
	if dy := env.Data.(map[string]any)["dy"]; dy != float64(5) {
		t.Errorf("expected dy 5, got %v", dy)
	}
}

func TestStatusServer_StateInitFirst(t *testing.T) {
	state := func() EngineState {
		return EngineState{
			NumLock:    true,
			Directions: map[string]DirectionState{"up": {Active: true, HoldTicks: 7}},
		}
	}
	s := NewStatusServer(discardLogger(), state, HubConfig{})
	startHub(t, s.Hub())

	mux := http.NewServeMux()
	s.Register(mux, defaultStatusPath)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + defaultStatusPath
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var env struct {
		Type string      `json:"type"`
		Data EngineState `json:"data"`
	}
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read state_init: %v", err)
	}
	if env.Type != "state_init" || !env.Data.NumLock || env.Data.Directions["up"].HoldTicks != 7 {
		t.Fatalf("unexpected state_init %+v", env)
	}

	waitUntil(t, time.Second, func() bool {
		s.Hub().mu.Lock()
		defer s.Hub().mu.Unlock()
		return len(s.Hub().clients) == 1
	}, "client registered with hub")

	ev, _ := convertBroadcast(BroadcastNumLockChanged{On: false, At: time.Now()})
	msg, err := json.Marshal(envelope{Type: ev.Type, Data: ev.Data})
	if err != nil {
		t.Fatal(err)
	}
	s.Hub().BroadcastBytes(msg)

	var next envelope
	if err := conn.ReadJSON(&next); err != nil {
		t.Fatalf("read broadcast: %v", err)
	}
	if next.Type != "numlock_changed" {
		t.Errorf("expected numlock_changed, got %q", next.Type)
	}
}

func TestServeStatus_ShutsDownOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- serveStatus(ctx, ln, http.NewServeMux(), discardLogger()) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("status server did not stop")
	}
}

func TestConvertBroadcast_Motion(t *testing.T) {
	at := time.Now()
	ev, ok := convertBroadcast(BroadcastMotion{DX: -2, DY: 7, At: at})
	if !ok || ev.Type != "motion" {
		t.Fatalf("expected motion event, got %+v", ev)
	}
	if d := ev.Data.(wsMotionData); d.DX != -2 || d.DY != 7 || !ev.At.Equal(at) {
		t.Errorf("unexpected motion payload %+v", ev)
	}
}
