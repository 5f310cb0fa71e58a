package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sort"
	"time"
)

// ============================================================================
// numpadmouse-ctl - Command-line IPC Client
// ============================================================================
// Queries a running numpadmouse daemon over its Unix domain socket.
//
// Usage:
//   numpadmouse-ctl state
//   numpadmouse-ctl ping
//
// Options:
//   -socket PATH    Unix domain socket path (default: /tmp/numpadmouse.sock)
// ============================================================================

const defaultSocket = "/tmp/numpadmouse.sock"

// IPCRequest mirrors the daemon's request line.
type IPCRequest struct {
	Type string `json:"type"`
}

type DirectionState struct {
	Active    bool   `json:"active"`
	HoldTicks uint64 `json:"hold_ticks"`
}

type EngineState struct {
	NumLock    bool                      `json:"numlock"`
	Directions map[string]DirectionState `json:"directions"`
	At         time.Time                 `json:"at"`
}

// IPCResponse represents the daemon's response
type IPCResponse struct {
	Status string       `json:"status"`
	Error  string       `json:"error,omitempty"`
	State  *EngineState `json:"state,omitempty"`
}

func main() {
	socketPath := defaultSocket

	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	if args[0] == "-socket" || args[0] == "--socket" {
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: -socket requires an argument\n")
			os.Exit(1)
		}
		socketPath = args[1]
		args = args[2:]
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	var req IPCRequest
	switch args[0] {
	case "state", "get-state":
		req.Type = "get_state"

	case "ping":
		req.Type = "ping"

	case "help", "-h", "--help":
		printUsage()
		os.Exit(0)

	default:
		fmt.Fprintf(os.Stderr, "error: unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}

	resp, err := sendRequest(socketPath, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if resp.State == nil {
		fmt.Println("ok")
		return
	}
	printState(*resp.State)
}

func sendRequest(socketPath string, req IPCRequest) (IPCResponse, error) {
	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		return IPCResponse{}, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	data, err := json.Marshal(req)
	if err != nil {
		return IPCResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	// Line-delimited JSON
	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return IPCResponse{}, fmt.Errorf("send request: %w", err)
	}

	var response IPCResponse
	if err := json.NewDecoder(conn).Decode(&response); err != nil {
		return IPCResponse{}, fmt.Errorf("decode response: %w", err)
	}

	if response.Status == "error" {
		return IPCResponse{}, fmt.Errorf("daemon error: %s", response.Error)
	}
	return response, nil
}

func printState(st EngineState) {
	numlock := "off"
	if st.NumLock {
		numlock = "on (motion suppressed)"
	}
	fmt.Printf("numlock: %s\n", numlock)

	names := make([]string, 0, len(st.Directions))
	for name := range st.Directions {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		d := st.Directions[name]
		if d.Active {
			fmt.Printf("%-6s held for %d ticks\n", name+":", d.HoldTicks)
		} else {
			fmt.Printf("%-6s released\n", name+":")
		}
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `numpadmouse-ctl - Query the numpadmouse daemon via IPC

Usage:
  numpadmouse-ctl [options] <command>

Options:
  -socket PATH    Unix domain socket path (default: /tmp/numpadmouse.sock)

Commands:
  state, get-state    Show NumLock and per-direction hold state
  ping                Check that the daemon is answering
  help, -h, --help    Show this help message

Examples:
  numpadmouse-ctl state
  numpadmouse-ctl -socket /run/numpadmouse.sock ping
`)
}
