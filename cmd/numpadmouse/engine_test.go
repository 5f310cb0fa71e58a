//go:build linux

package main

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestEngine_RunEmitsMotion(t *testing.T) {
	sink := &fakeSink{}
	eng := newEngine(engineConfig{TickInterval: time.Millisecond}, sink, nil, discardLogger())

	src, w := newPipeSource(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- eng.run(ctx, []*os.File{src}) }()

	if _, err := w.Write(encodeEvents(keyEvent(KEY_KP4, evValuePress))); err != nil {
		t.Fatal(err)
	}

	waitUntil(t, 2*time.Second, func() bool {
		for _, m := range sink.recorded() {
			if m.dx < 0 && m.dy == 0 {
				return true
			}
		}
		return false
	}, "left motion emitted")

	st := eng.state()
	if st.NumLock || !st.Directions["left"].Active {
		t.Errorf("unexpected state %+v", st)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil after cancel, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop")
	}

	if err := eng.emitNeutral(); err != nil {
		t.Fatal(err)
	}
	rec := sink.recorded()
	if last := rec[len(rec)-1]; last != (motion{}) {
		t.Errorf("expected final neutral report, got %+v", last)
	}
}

func TestEngine_SourceFailureStopsBothLoops(t *testing.T) {
	sink := &fakeSink{}
	eng := newEngine(engineConfig{TickInterval: time.Millisecond}, sink, nil, discardLogger())

	src, w := newPipeSource(t)
	done := make(chan error, 1)
	go func() { done <- eng.run(context.Background(), []*os.File{src}) }()

	waitUntil(t, time.Second, func() bool { return len(sink.recorded()) > 0 }, "ticks running")
	w.Close()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected error after keyboard hangup")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop after source failure")
	}
}

func TestEngine_InitialNumLockBlocks(t *testing.T) {
	eng := newEngine(engineConfig{InitialNumLock: true}, &fakeSink{}, nil, discardLogger())
	if eng.interval != defaultTickIntervalMS*time.Millisecond {
		t.Errorf("expected default interval, got %v", eng.interval)
	}

	eng.dispatcher.handle(keyEvent(KEY_KP8, evValuePress))
	st := eng.state()
	if !st.NumLock || st.Directions["up"].Active {
		t.Errorf("expected numlock on and no activation, got %+v", st)
	}
	if len(st.Directions) != numDirections {
		t.Errorf("expected %d directions, got %d", numDirections, len(st.Directions))
	}
}
