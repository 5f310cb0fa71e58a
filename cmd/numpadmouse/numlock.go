package main

import "sync/atomic"

// numLockGate suspends directional tracking while the NumLock LED is on.
//
// Only the dispatch loop calls onLedEvent; isBlocking may be called from anywhere.
type numLockGate struct {
	on      atomic.Bool
	tracker *keyStateTracker
}

func newNumLockGate(tracker *keyStateTracker, initial bool) *numLockGate {
	g := &numLockGate{tracker: tracker}
	if initial {
		g.engage()
	}
	return g
}

// onLedEvent applies a NumLock LED report. Returns true if the gate changed.
//
// Off->On forces every direction inactive (which resets its hold count).
// On->Off only clears the flag; directions stay inactive until pressed again.
func (g *numLockGate) onLedEvent(isOn bool) bool {
	if isOn {
		if g.on.Load() {
			return false
		}
		g.engage()
		return true
	}
	return g.on.Swap(false)
}

func (g *numLockGate) engage() {
	g.on.Store(true)
	g.tracker.resetAll()
}

// isBlocking reports whether key events are currently suppressed.
func (g *numLockGate) isBlocking() bool {
	return g.on.Load()
}
