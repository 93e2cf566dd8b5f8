package sync

import (
	"context"
	"sync"
	"time"

	"github.com/robolabel/annosync/internal/connectivity"
	"github.com/robolabel/annosync/internal/errors"
	"github.com/robolabel/annosync/internal/logging"
)

const (
	// DefaultInterval is the periodic processing cadence.
	DefaultInterval = 30 * time.Second

	// DefaultReconnectDelay gives the network stack a moment to settle
	// between the went-online signal and the triggered cycle.
	DefaultReconnectDelay = 1 * time.Second
)

// Listener receives the result of each completed processing cycle.
type Listener func(*SyncResult)

// Manager orchestrates when the processor runs: an immediate cycle on start,
// a fixed interval, a cycle shortly after reconnect, and manual triggers.
// All scheduling sources funnel into the same single-flight guarded Process,
// so at most one cycle is ever active.
type Manager struct {
	processor      *Processor
	observer       connectivity.Observer
	interval       time.Duration
	reconnectDelay time.Duration

	mu             sync.Mutex
	isRunning      bool
	inFlight       bool
	lastSyncTime   time.Time
	stopCh         chan struct{}
	unsubscribe    connectivity.Unsubscribe
	nextListenerID int
	listeners      map[int]Listener

	wg sync.WaitGroup
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithInterval overrides the periodic processing cadence.
func WithInterval(d time.Duration) ManagerOption {
	return func(m *Manager) { m.interval = d }
}

// WithReconnectDelay overrides the post-reconnect settle delay.
func WithReconnectDelay(d time.Duration) ManagerOption {
	return func(m *Manager) { m.reconnectDelay = d }
}

// NewManager creates a Manager.
func NewManager(processor *Processor, observer connectivity.Observer, opts ...ManagerOption) *Manager {
	m := &Manager{
		processor:      processor,
		observer:       observer,
		interval:       DefaultInterval,
		reconnectDelay: DefaultReconnectDelay,
		listeners:      make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins scheduled processing: one immediate cycle, then the interval
// loop, plus a cycle after each reconnect. Idempotent; a second Start while
// running is a no-op. The context threads through to in-flight cycles, so
// cancelling it aborts a cycle mid-drain.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.isRunning {
		m.mu.Unlock()
		return
	}
	m.isRunning = true
	m.stopCh = make(chan struct{})
	stopCh := m.stopCh
	m.mu.Unlock()

	m.unsubscribe = m.observer.OnOnline(func() {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-time.After(m.reconnectDelay):
			}
			m.Process(ctx)
		}()
	})

	m.wg.Add(1)
	go m.intervalLoop(ctx, stopCh)

	logging.Info("Sync manager started",
		map[string]interface{}{"interval_seconds": m.interval.Seconds()})
}

// Stop cancels the interval and unsubscribes from connectivity events. It
// does not abort a cycle already in flight; cancel the Start context for
// that.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.isRunning {
		m.mu.Unlock()
		return
	}
	m.isRunning = false
	close(m.stopCh)
	m.mu.Unlock()

	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}

	m.wg.Wait()

	logging.Info("Sync manager stopped", nil)
}

// intervalLoop runs the immediate first cycle and then the periodic ones.
func (m *Manager) intervalLoop(ctx context.Context, stopCh chan struct{}) {
	defer m.wg.Done()

	m.Process(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			m.Process(ctx)
		}
	}
}

// Process runs one cycle now. If a cycle is already running the call is a
// true no-op returning a zero-valued result; callers must not assume their
// invocation ran.
func (m *Manager) Process(ctx context.Context) *SyncResult {
	m.mu.Lock()
	if m.inFlight {
		m.mu.Unlock()
		logging.Debug("Sync cycle already in flight, skipping", nil)
		return zeroResult()
	}
	m.inFlight = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight = false
		m.mu.Unlock()
	}()

	result, err := m.processor.Process(ctx)
	if err != nil {
		logging.ErrorWithCode("Sync cycle failed", string(errors.ErrSyncFailed), err, nil)
		if result == nil {
			result = &SyncResult{Success: false, Errors: []string{err.Error()}}
		}
	}

	if result.Success && result.SyncedCount > 0 {
		m.mu.Lock()
		m.lastSyncTime = time.Now()
		m.mu.Unlock()
	}

	m.notify(result)
	return result
}

// AddListener registers a cycle-result listener and returns its unsubscribe
// function.
func (m *Manager) AddListener(fn Listener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextListenerID
	m.nextListenerID++
	m.listeners[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// notify fans a result out to listeners. A panicking listener is logged and
// never aborts the cycle or starves other listeners.
func (m *Manager) notify(result *SyncResult) {
	m.mu.Lock()
	fns := make([]Listener, 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logging.Error("Sync listener panicked", nil,
						map[string]interface{}{"panic": r})
				}
			}()
			fn(result)
		}()
	}
}

// Status is a point-in-time snapshot of the manager.
type Status struct {
	IsRunning    bool       `json:"is_running"`
	IsOnline     bool       `json:"is_online"`
	InFlight     bool       `json:"in_flight"`
	LastSyncTime *time.Time `json:"last_sync_time,omitempty"`
}

// GetStatus returns the current manager status.
func (m *Manager) GetStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := Status{
		IsRunning: m.isRunning,
		IsOnline:  m.observer.IsOnline(),
		InFlight:  m.inFlight,
	}
	if !m.lastSyncTime.IsZero() {
		t := m.lastSyncTime
		status.LastSyncTime = &t
	}
	return status
}

// IsRunning reports whether scheduled processing is active.
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isRunning
}
