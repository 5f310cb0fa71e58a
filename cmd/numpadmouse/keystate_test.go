package main

import (
	"sync"
	"testing"
)

func TestKeyState_InitiallyNeutral(t *testing.T) {
	tr := newKeyStateTracker()
	for _, d := range allDirections {
		if s := tr.snapshot()[d]; s.Active || s.HoldTicks != 0 {
			t.Errorf("%s: expected inactive with 0 ticks, got %+v", d, s)
		}
	}
}

func TestKeyState_TickOnlyActive(t *testing.T) {
	tr := newKeyStateTracker()
	tr.setActive(DirUp, true)
	tr.setActive(DirRight, true)

	for i := 0; i < 5; i++ {
		tr.tickAllActive()
	}

	s := tr.snapshot()
	if s[DirUp].HoldTicks != 5 || s[DirRight].HoldTicks != 5 {
		t.Errorf("expected 5 ticks on active directions, got up=%d right=%d", s[DirUp].HoldTicks, s[DirRight].HoldTicks)
	}
	if s[DirDown].HoldTicks != 0 || s[DirLeft].HoldTicks != 0 {
		t.Errorf("inactive directions must not tick, got down=%d left=%d", s[DirDown].HoldTicks, s[DirLeft].HoldTicks)
	}
}

func TestKeyState_ResetOnTransition(t *testing.T) {
	tr := newKeyStateTracker()
	tr.setActive(DirLeft, true)
	tr.tickAllActive()
	tr.tickAllActive()

	if !tr.setActive(DirLeft, false) {
		t.Fatal("expected release to report a change")
	}
	if s := tr.snapshot()[DirLeft]; s.Active || s.HoldTicks != 0 {
		t.Fatalf("after release expected {false 0}, got %+v", s)
	}

	if !tr.setActive(DirLeft, true) {
		t.Fatal("expected press to report a change")
	}
	if s := tr.snapshot()[DirLeft]; !s.Active || s.HoldTicks != 0 {
		t.Fatalf("after press expected {true 0}, got %+v", s)
	}
}

func TestKeyState_SameValueKeepsTicks(t *testing.T) {
	tr := newKeyStateTracker()
	tr.setActive(DirDown, true)
	tr.tickAllActive()
	tr.tickAllActive()
	tr.tickAllActive()

	if tr.setActive(DirDown, true) {
		t.Error("setting the same value must not report a change")
	}
	if got := tr.snapshot()[DirDown].HoldTicks; got != 3 {
		t.Errorf("expected hold ticks to stay at 3, got %d", got)
	}
}

func TestKeyState_SnapshotIsCopy(t *testing.T) {
	tr := newKeyStateTracker()
	tr.setActive(DirUp, true)
	snap := tr.snapshot()

	tr.tickAllActive()
	if snap[DirUp].HoldTicks != 0 {
		t.Errorf("snapshot changed after tick: %+v", snap[DirUp])
	}
}

// TestKeyState_Concurrent exercises the dispatch and tick paths together.
// Run with -race.
func TestKeyState_Concurrent(t *testing.T) {
	tr := newKeyStateTracker()
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			d := allDirections[i%numDirections]
			tr.setActive(d, i%2 == 0)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.tickAllActive()
			_ = tr.snapshot()
		}
	}()
	wg.Wait()

	for _, d := range allDirections {
		if s := tr.snapshot()[d]; !s.Active && s.HoldTicks != 0 {
			t.Errorf("%s: inactive direction has %d ticks", d, s.HoldTicks)
		}
	}
}

func TestKeyState_ResetAll(t *testing.T) {
	tr := newKeyStateTracker()
	if tr.resetAll() {
		t.Error("reset of a neutral tracker must not report a change")
	}

	tr.setActive(DirUp, true)
	tr.setActive(DirLeft, true)
	tr.tickAllActive()
	if !tr.resetAll() {
		t.Error("expected reset to report a change")
	}
	if snap := tr.snapshot(); snap != (MovementSnapshot{}) {
		t.Errorf("expected all directions neutral, got %+v", snap)
	}
}
