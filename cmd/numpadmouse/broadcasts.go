package main

import "time"

// StatusBroadcast is a state change published by the engine for status clients.
type StatusBroadcast interface {
	broadcastMarker()
}

// BroadcastNumLockChanged is published when the NumLock gate flips.
type BroadcastNumLockChanged struct {
	On bool
	At time.Time
}

func (BroadcastNumLockChanged) broadcastMarker() {}

// BroadcastDirectionChanged is published when a direction is pressed or released.
type BroadcastDirectionChanged struct {
	Direction Direction
	Active    bool
	At        time.Time
}

func (BroadcastDirectionChanged) broadcastMarker() {}

// BroadcastMotion is published for every non-zero emitted displacement.
type BroadcastMotion struct {
	DX int32
	DY int32
	At time.Time
}

func (BroadcastMotion) broadcastMarker() {}

// statusBus carries broadcasts from the engine loops to the status broadcaster.
// publish never blocks; a nil bus discards everything.
type statusBus struct {
	ch chan StatusBroadcast
}

func newStatusBus(size int) *statusBus {
	if size <= 0 {
		size = 256
	}
	return &statusBus{ch: make(chan StatusBroadcast, size)}
}

func (b *statusBus) publish(ev StatusBroadcast) {
	if b == nil {
		return
	}
	select {
	case b.ch <- ev:
	default:
	}
}

// events returns the receive side, or nil for a nil bus.
func (b *statusBus) events() <-chan StatusBroadcast {
	if b == nil {
		return nil
	}
	return b.ch
}
