package main

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type motion struct {
	dx, dy int32
}

// fakeSink is a test double for the virtual pointer.
type fakeSink struct {
	mu      sync.Mutex
	motions []motion
	err     error
}

func (s *fakeSink) emitMotion(dx, dy int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.motions = append(s.motions, motion{dx, dy})
	return nil
}

func (s *fakeSink) recorded() []motion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]motion(nil), s.motions...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func keyEvent(code uint16, value int32) inputEvent {
	return inputEvent{Type: EV_KEY, Code: code, Value: value}
}

func ledEvent(code uint16, value int32) inputEvent {
	return inputEvent{Type: EV_LED, Code: code, Value: value}
}

// testRig wires tracker, gate, dispatcher and emitter without any loops.
type testRig struct {
	tracker    *keyStateTracker
	gate       *numLockGate
	dispatcher *eventDispatcher
	emitter    *motionEmitter
	sink       *fakeSink
}

func newTestRig(t *testing.T, numLock bool) *testRig {
	t.Helper()
	tracker := newKeyStateTracker()
	gate := newNumLockGate(tracker, numLock)
	sink := &fakeSink{}
	return &testRig{
		tracker:    tracker,
		gate:       gate,
		dispatcher: newEventDispatcher(tracker, gate, nil, discardLogger()),
		emitter:    newMotionEmitter(tracker, newAccelConfig(AccelConfig{}), sink, nil),
		sink:       sink,
	}
}

func (r *testRig) tick(t *testing.T) motion {
	t.Helper()
	dx, dy, err := r.emitter.tick()
	if err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	return motion{dx, dy}
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout: %s", msg)
}
