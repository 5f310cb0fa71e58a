package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// envelope matches the daemon's status frame: {type, ts, data}.
type envelope struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

func main() {
	var (
		wsURL = flag.String("ws", "ws://127.0.0.1:3002/ws/status", "numpadmouse status websocket URL")
		raw   = flag.Bool("raw", false, "Print frames as received instead of a summary")
	)
	flag.Parse()

	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	// Handle shutdown
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("connected! (press Ctrl+C to exit)")

	// Mutex to protect concurrent writes to websocket
	var writeMu sync.Mutex

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))

			if messageType != websocket.TextMessage {
				continue
			}
			if *raw {
				fmt.Printf("%s\n", message)
				continue
			}
			handleFrame(message)
		}
	}()

	select {
	case <-sigc:
		log.Printf("shutting down...")
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
}

// handleFrame prints one status frame in a compact, human-readable form.
func handleFrame(message []byte) {
	var env envelope
	if err := json.Unmarshal(message, &env); err != nil {
		fmt.Printf("[TEXT] %s\n", message)
		return
	}

	switch env.Type {
	case "state_init":
		var st struct {
			NumLock    bool `json:"numlock"`
			Directions map[string]struct {
				Active    bool   `json:"active"`
				HoldTicks uint64 `json:"hold_ticks"`
			} `json:"directions"`
		}
		if err := json.Unmarshal(env.Data, &st); err != nil {
			break
		}
		fmt.Printf("[INIT] numlock=%v", st.NumLock)
		for _, name := range []string{"up", "down", "left", "right"} {
			if d, ok := st.Directions[name]; ok && d.Active {
				fmt.Printf(" %s(%d)", name, d.HoldTicks)
			}
		}
		fmt.Println()
		return

	case "numlock_changed":
		var data struct {
			On bool `json:"on"`
		}
		if err := json.Unmarshal(env.Data, &data); err != nil {
			break
		}
		status := "OFF"
		if data.On {
			status = "ON"
		}
		fmt.Printf("[NUMLOCK] %s\n", status)
		return

	case "direction_changed":
		var data struct {
			Direction string `json:"direction"`
			Active    bool   `json:"active"`
		}
		if err := json.Unmarshal(env.Data, &data); err != nil {
			break
		}
		action := "released"
		if data.Active {
			action = "pressed"
		}
		fmt.Printf("[KEY] %s %s\n", data.Direction, action)
		return

	case "motion":
		var data struct {
			DX int32 `json:"dx"`
			DY int32 `json:"dy"`
		}
		if err := json.Unmarshal(env.Data, &data); err != nil {
			break
		}
		fmt.Printf("[MOTION] dx=%+d dy=%+d\n", data.DX, data.DY)
		return
	}

	fmt.Printf("[%s] %s\n", env.Type, env.Data)
}
