package connectivity

import (
	"testing"
)

// TestManualObserverInitialState verifies the constructor's initial state.
func TestManualObserverInitialState(t *testing.T) {
	if !NewManualObserver(true).IsOnline() {
		t.Error("Expected online")
	}
	if NewManualObserver(false).IsOnline() {
		t.Error("Expected offline")
	}
}

// TestManualObserverTransitionFires verifies callbacks fire only on the
// offline-to-online edge.
func TestManualObserverTransitionFires(t *testing.T) {
	observer := NewManualObserver(false)

	fired := 0
	observer.OnOnline(func() { fired++ })

	observer.SetOnline(true)
	if fired != 1 {
		t.Errorf("Expected 1 firing after going online, got %d", fired)
	}

	// Already online; no edge.
	observer.SetOnline(true)
	if fired != 1 {
		t.Errorf("Expected no firing when already online, got %d", fired)
	}

	// Going offline never fires.
	observer.SetOnline(false)
	if fired != 1 {
		t.Errorf("Expected no firing when going offline, got %d", fired)
	}

	// A second full cycle fires again.
	observer.SetOnline(true)
	if fired != 2 {
		t.Errorf("Expected 2 firings after second transition, got %d", fired)
	}
}

// TestManualObserverUnsubscribe verifies a removed callback no longer fires.
func TestManualObserverUnsubscribe(t *testing.T) {
	observer := NewManualObserver(false)

	fired := 0
	unsub := observer.OnOnline(func() { fired++ })
	unsub()

	observer.SetOnline(true)
	if fired != 0 {
		t.Errorf("Expected no firing after unsubscribe, got %d", fired)
	}
}

// TestManualObserverMultipleSubscribers verifies fan-out and independent
// unsubscription.
func TestManualObserverMultipleSubscribers(t *testing.T) {
	observer := NewManualObserver(false)

	a, b := 0, 0
	unsubA := observer.OnOnline(func() { a++ })
	observer.OnOnline(func() { b++ })

	observer.SetOnline(true)
	unsubA()
	observer.SetOnline(false)
	observer.SetOnline(true)

	if a != 1 {
		t.Errorf("Expected a fired once, got %d", a)
	}
	if b != 2 {
		t.Errorf("Expected b fired twice, got %d", b)
	}
}

// TestManualObserverReentrantSubscribe verifies a callback may register
// another callback without deadlocking.
func TestManualObserverReentrantSubscribe(t *testing.T) {
	observer := NewManualObserver(false)

	nested := false
	observer.OnOnline(func() {
		observer.OnOnline(func() { nested = true })
	})

	observer.SetOnline(true)
	observer.SetOnline(false)
	observer.SetOnline(true)

	if !nested {
		t.Error("Expected nested subscription to fire on the next transition")
	}
}
