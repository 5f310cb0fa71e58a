package main

import (
	"log/slog"
	"time"
)

// eventDispatcher routes raw keyboard events to the key state tracker and
// the NumLock gate. It performs no I/O beyond non-blocking status publishing.
type eventDispatcher struct {
	tracker *keyStateTracker
	gate    *numLockGate
	bus     *statusBus
	logger  *slog.Logger
}

func newEventDispatcher(tracker *keyStateTracker, gate *numLockGate, bus *statusBus, logger *slog.Logger) *eventDispatcher {
	return &eventDispatcher{
		tracker: tracker,
		gate:    gate,
		bus:     bus,
		logger:  logger,
	}
}

// keyDirection maps a keypad key code to its direction.
func keyDirection(code uint16) (Direction, bool) {
	switch code {
	case KEY_KP8:
		return DirUp, true
	case KEY_KP2:
		return DirDown, true
	case KEY_KP4:
		return DirLeft, true
	case KEY_KP6:
		return DirRight, true
	default:
		return 0, false
	}
}

// handle processes a single input event.
func (d *eventDispatcher) handle(ev inputEvent) {
	switch ev.Type {
	case EV_KEY:
		d.handleKey(ev)
	case EV_LED:
		if ev.Code == LED_NUML {
			d.handleNumLock(ev.Value != 0)
		}
	}
}

// handleBatch processes events in order.
func (d *eventDispatcher) handleBatch(events []inputEvent) {
	for _, ev := range events {
		d.handle(ev)
	}
}

func (d *eventDispatcher) handleKey(ev inputEvent) {
	dir, ok := keyDirection(ev.Code)
	if !ok {
		return
	}
	if d.gate.isBlocking() {
		return
	}

	var active bool
	switch ev.Value {
	case evValuePress:
		active = true
	case evValueRelease:
		active = false
	default:
		// Autorepeat carries no new information.
		return
	}

	if d.tracker.setActive(dir, active) {
		d.logger.Debug("direction changed", "direction", dir, "active", active)
		d.bus.publish(BroadcastDirectionChanged{Direction: dir, Active: active, At: time.Now()})
	}
}

func (d *eventDispatcher) handleNumLock(on bool) {
	if !d.gate.onLedEvent(on) {
		return
	}
	d.logger.Debug("numlock changed", "on", on)
	d.bus.publish(BroadcastNumLockChanged{On: on, At: time.Now()})
}
