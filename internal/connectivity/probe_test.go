package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// healthServer serves a switchable health endpoint.
type healthServer struct {
	*httptest.Server
	status atomic.Int32
}

func newHealthServer(t *testing.T, status int) *healthServer {
	t.Helper()

	hs := &healthServer{}
	hs.status.Store(int32(status))
	hs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(hs.status.Load()))
	}))
	t.Cleanup(hs.Close)
	return hs
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

// TestProbeGoesOnline verifies a healthy endpoint flips the state online and
// fires the transition callback.
func TestProbeGoesOnline(t *testing.T) {
	server := newHealthServer(t, http.StatusOK)

	probe := NewProbeObserver(ProbeConfig{
		URL:      server.URL,
		Interval: 10 * time.Millisecond,
	})
	if probe.IsOnline() {
		t.Error("Expected offline before first probe")
	}

	var fired atomic.Bool
	probe.OnOnline(func() { fired.Store(true) })

	probe.Start(context.Background())
	defer probe.Stop()

	if !waitFor(t, 2*time.Second, probe.IsOnline) {
		t.Fatal("Probe never went online")
	}
	if !fired.Load() {
		t.Error("Expected transition callback to fire")
	}
}

// TestProbeGoesOffline verifies server errors flip the state back offline.
func TestProbeGoesOffline(t *testing.T) {
	server := newHealthServer(t, http.StatusOK)

	probe := NewProbeObserver(ProbeConfig{
		URL:      server.URL,
		Interval: 10 * time.Millisecond,
	})
	probe.Start(context.Background())
	defer probe.Stop()

	if !waitFor(t, 2*time.Second, probe.IsOnline) {
		t.Fatal("Probe never went online")
	}

	server.status.Store(http.StatusInternalServerError)
	if !waitFor(t, 2*time.Second, func() bool { return !probe.IsOnline() }) {
		t.Fatal("Probe never went offline after server errors")
	}
}

// TestProbeUnreachableStaysOffline verifies a dead endpoint keeps the state
// offline.
func TestProbeUnreachableStaysOffline(t *testing.T) {
	server := newHealthServer(t, http.StatusOK)
	url := server.URL
	server.Close()

	probe := NewProbeObserver(ProbeConfig{
		URL:      url,
		Interval: 10 * time.Millisecond,
		Timeout:  100 * time.Millisecond,
	})
	probe.Start(context.Background())
	defer probe.Stop()

	time.Sleep(50 * time.Millisecond)
	if probe.IsOnline() {
		t.Error("Expected offline against unreachable endpoint")
	}
}

// TestProbeStartStop verifies lifecycle idempotence.
func TestProbeStartStop(t *testing.T) {
	server := newHealthServer(t, http.StatusOK)

	probe := NewProbeObserver(ProbeConfig{
		URL:      server.URL,
		Interval: 10 * time.Millisecond,
	})

	ctx := context.Background()
	probe.Start(ctx)
	probe.Start(ctx)
	probe.Stop()
	probe.Stop()
}
