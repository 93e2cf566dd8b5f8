// Package connectivity reports the engine's online/offline state and
// notifies subscribers when the backend becomes reachable again.
package connectivity

import (
	"sync"
)

// Unsubscribe removes a previously registered callback.
type Unsubscribe func()

// Observer surfaces a boolean online/offline signal. Implementations wrap a
// platform reachability primitive or a periodic probe against the backend.
type Observer interface {
	// IsOnline reports the current connectivity state.
	IsOnline() bool

	// OnOnline registers a callback fired on each offline-to-online
	// transition. The returned function unsubscribes it.
	OnOnline(fn func()) Unsubscribe
}

// ManualObserver is an Observer whose state is driven explicitly, either by
// the embedding runtime's network events or by tests.
type ManualObserver struct {
	mu        sync.Mutex
	online    bool
	nextSubID int
	subs      map[int]func()
}

// NewManualObserver creates a ManualObserver with the given initial state.
func NewManualObserver(online bool) *ManualObserver {
	return &ManualObserver{
		online: online,
		subs:   make(map[int]func()),
	}
}

// IsOnline reports the current state.
func (o *ManualObserver) IsOnline() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.online
}

// SetOnline updates the state. Callbacks fire only on an offline-to-online
// transition, after the lock is released.
func (o *ManualObserver) SetOnline(online bool) {
	o.mu.Lock()
	wentOnline := online && !o.online
	o.online = online
	var fns []func()
	if wentOnline {
		fns = make([]func(), 0, len(o.subs))
		for _, fn := range o.subs {
			fns = append(fns, fn)
		}
	}
	o.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// OnOnline registers a transition callback.
func (o *ManualObserver) OnOnline(fn func()) Unsubscribe {
	o.mu.Lock()
	defer o.mu.Unlock()

	id := o.nextSubID
	o.nextSubID++
	o.subs[id] = fn

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.subs, id)
	}
}
