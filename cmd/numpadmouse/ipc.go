package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
)

// ============================================================================
// IPC Server - Unix Domain Socket Interface
// ============================================================================
// Read-only query interface for scripts and the numpadmouse-ctl tool.
//
// Protocol: Line-delimited JSON
//   - Client sends: {"type": "get_state"} or {"type": "ping"}
//   - Server responds: {"status": "ok", "state": {...}} or {"status": "error", "error": "msg"}
// ============================================================================

// IPCRequest is one line sent by a client.
type IPCRequest struct {
	Type string `json:"type"`
}

// IPCResponse represents the response sent back to IPC clients
type IPCResponse struct {
	Status string       `json:"status"`          // "ok" or "error"
	Error  string       `json:"error,omitempty"` // error message if status == "error"
	State  *EngineState `json:"state,omitempty"`
}

const (
	ipcRequestGetState = "get_state"
	ipcRequestPing     = "ping"
)

// runIPCServer serves IPC requests until ctx is canceled, at which point it
// closes the listener and exits.
func runIPCServer(ctx context.Context, socketPath string, state func() EngineState, logger *slog.Logger) error {
	// Remove existing socket file if it exists
	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer listener.Close()
	defer os.Remove(socketPath)

	if err := os.Chmod(socketPath, 0666); err != nil {
		return fmt.Errorf("chmod socket: %w", err)
	}

	logger.Info("IPC listening", "socket", socketPath)

	// Close the listener on shutdown. This unblocks Accept().
	stop := context.AfterFunc(ctx, func() {
		_ = listener.Close()
	})
	defer stop()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				logger.Debug("IPC listener closed")
				return nil
			}
			logger.Error("IPC accept error", "error", err)
			continue
		}

		go handleIPCConnection(conn, state, logger)
	}
}

// handleIPCConnection answers requests on one connection until it closes.
func handleIPCConnection(conn net.Conn, state func() EngineState, logger *slog.Logger) {
	defer conn.Close()

	logger.Debug("IPC connection", "remote_addr", conn.RemoteAddr())

	scanner := bufio.NewScanner(conn)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		logger.Debug("IPC received", "line", line)

		resp := answerIPC(line, state)
		if err := encoder.Encode(resp); err != nil {
			logger.Error("IPC failed to send response", "error", err)
			return
		}
	}

	logger.Debug("IPC connection closed")
}

func answerIPC(line string, state func() EngineState) IPCResponse {
	var req IPCRequest
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		return IPCResponse{Status: "error", Error: fmt.Sprintf("parse request: %v", err)}
	}

	switch req.Type {
	case ipcRequestPing:
		return IPCResponse{Status: "ok"}
	case ipcRequestGetState:
		s := state()
		return IPCResponse{Status: "ok", State: &s}
	default:
		return IPCResponse{Status: "error", Error: fmt.Sprintf("unknown request type %q", req.Type)}
	}
}
