package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
)

// engineConfig is the resolved configuration of the motion engine.
type engineConfig struct {
	TickInterval   time.Duration
	Accel          AccelConfig
	InitialNumLock bool
}

// engine owns the shared movement state and runs the dispatch and tick loops.
type engine struct {
	tracker    *keyStateTracker
	gate       *numLockGate
	dispatcher *eventDispatcher
	emitter    *motionEmitter

	interval time.Duration
	logger   *slog.Logger
}

func newEngine(cfg engineConfig, sink pointerSink, bus *statusBus, logger *slog.Logger) *engine {
	interval := cfg.TickInterval
	if interval <= 0 {
		interval = defaultTickIntervalMS * time.Millisecond
	}

	tracker := newKeyStateTracker()
	gate := newNumLockGate(tracker, cfg.InitialNumLock)

	return &engine{
		tracker:    tracker,
		gate:       gate,
		dispatcher: newEventDispatcher(tracker, gate, bus, logger),
		emitter:    newMotionEmitter(tracker, newAccelConfig(cfg.Accel), sink, bus),
		interval:   interval,
		logger:     logger,
	}
}

// run starts both loops and blocks until both have returned.
//
// The first fatal error cancels the other loop and is returned. Cancellation
// of ctx stops both loops and run returns nil. sources are closed on return.
func (e *engine) run(ctx context.Context, sources []*os.File) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runDispatchLoop(gctx, sources, e.dispatcher, e.logger)
	})
	g.Go(func() error {
		return runTickLoop(gctx, e.emitter, e.interval, e.logger)
	})

	return g.Wait()
}

// emitNeutral writes a single (0,0) motion report.
func (e *engine) emitNeutral() error {
	return e.emitter.sink.emitMotion(0, 0)
}

// EngineState is an externally-consumable view of the engine.
type EngineState struct {
	NumLock    bool                      `json:"numlock"`
	Directions map[string]DirectionState `json:"directions"`
	At         time.Time                 `json:"at"`
}

// state returns a consistent view of the direction states and the gate.
func (e *engine) state() EngineState {
	snap := e.tracker.snapshot()
	dirs := make(map[string]DirectionState, numDirections)
	for _, d := range allDirections {
		dirs[d.String()] = snap[d]
	}
	return EngineState{
		NumLock:    e.gate.isBlocking(),
		Directions: dirs,
		At:         time.Now().UTC(),
	}
}
