package main

import "sync"

// Direction is one of the four pointer directions driven by the keypad.
type Direction int

const (
	DirUp Direction = iota
	DirDown
	DirLeft
	DirRight

	numDirections = 4
)

var allDirections = [numDirections]Direction{DirUp, DirDown, DirLeft, DirRight}

func (d Direction) String() string {
	switch d {
	case DirUp:
		return "up"
	case DirDown:
		return "down"
	case DirLeft:
		return "left"
	case DirRight:
		return "right"
	default:
		return "unknown"
	}
}

// DirectionState is the hold state of one direction.
type DirectionState struct {
	Active    bool   `json:"active"`
	HoldTicks uint64 `json:"hold_ticks"`
}

// MovementSnapshot is a consistent copy of all four DirectionStates.
type MovementSnapshot [numDirections]DirectionState

// keyStateTracker holds per-direction hold state.
//
// Thread-safe: the dispatch loop writes via setActive while the tick loop
// calls tickAllActive and snapshot. One mutex guards all four directions so
// a snapshot never mixes values from before and after an update.
type keyStateTracker struct {
	mu     sync.Mutex
	states MovementSnapshot
}

func newKeyStateTracker() *keyStateTracker {
	return &keyStateTracker{}
}

// setActive sets a direction's active flag. HoldTicks is reset only when the
// flag actually changes. Returns true if it changed.
func (t *keyStateTracker) setActive(d Direction, active bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := &t.states[d]
	if s.Active == active {
		return false
	}
	s.Active = active
	s.HoldTicks = 0
	return true
}

// resetAll marks every direction inactive with a zero hold count in one
// critical section. Returns true if any direction was active.
func (t *keyStateTracker) resetAll() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	changed := false
	for i := range t.states {
		if t.states[i].Active {
			changed = true
		}
		t.states[i] = DirectionState{}
	}
	return changed
}

// tickAllActive advances the hold counter of every active direction by one.
func (t *keyStateTracker) tickAllActive() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.states {
		if t.states[i].Active {
			t.states[i].HoldTicks++
		}
	}
}

// snapshot returns a copy of the current state of all directions.
func (t *keyStateTracker) snapshot() MovementSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.states
}
