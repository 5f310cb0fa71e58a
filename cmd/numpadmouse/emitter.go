package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// pointerSink is the virtual pointer device that receives relative motion.
// emitMotion must write dx, dy and a sync marker as one unit.
type pointerSink interface {
	emitMotion(dx, dy int32) error
}

// computeDisplacement converts a snapshot into a net displacement.
//
// Active directions contribute accel.step(HoldTicks). When both directions of
// an axis are active, both contributions on that axis are zero.
func computeDisplacement(s MovementSnapshot, accel AccelConfig) (dx, dy int32) {
	var steps [numDirections]int32
	for _, d := range allDirections {
		if s[d].Active {
			steps[d] = accel.step(s[d].HoldTicks)
		}
	}

	if s[DirUp].Active && s[DirDown].Active {
		steps[DirUp], steps[DirDown] = 0, 0
	}
	if s[DirLeft].Active && s[DirRight].Active {
		steps[DirLeft], steps[DirRight] = 0, 0
	}

	dx = steps[DirRight] - steps[DirLeft]
	dy = steps[DirDown] - steps[DirUp]
	return dx, dy
}

// motionEmitter turns the tracked key state into pointer motion once per tick.
type motionEmitter struct {
	tracker *keyStateTracker
	accel   AccelConfig
	sink    pointerSink
	bus     *statusBus
}

func newMotionEmitter(tracker *keyStateTracker, accel AccelConfig, sink pointerSink, bus *statusBus) *motionEmitter {
	return &motionEmitter{
		tracker: tracker,
		accel:   accel,
		sink:    sink,
		bus:     bus,
	}
}

// tick advances hold counters, computes the displacement from one snapshot
// and writes it to the sink. A neutral (0,0) is still written.
func (e *motionEmitter) tick() (dx, dy int32, err error) {
	e.tracker.tickAllActive()
	snap := e.tracker.snapshot()

	dx, dy = computeDisplacement(snap, e.accel)
	if err := e.sink.emitMotion(dx, dy); err != nil {
		return dx, dy, fmt.Errorf("emit motion (%d,%d): %w", dx, dy, err)
	}

	if dx != 0 || dy != 0 {
		e.bus.publish(BroadcastMotion{DX: dx, DY: dy, At: time.Now()})
	}
	return dx, dy, nil
}

// runTickLoop drives the emitter every interval until ctx is canceled.
// A failed emission is fatal and returned to the caller.
func runTickLoop(ctx context.Context, e *motionEmitter, interval time.Duration, logger *slog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("tick loop stopping (context canceled)")
			return nil

		case <-ticker.C:
			if _, _, err := e.tick(); err != nil {
				return err
			}
		}
	}
}
