package connectivity

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/robolabel/annosync/internal/logging"
)

// ProbeObserver derives connectivity by polling a backend health endpoint.
// Any 2xx or 3xx response counts as online; request errors and server errors
// count as offline. Transitions to online fire registered callbacks.
type ProbeObserver struct {
	url      string
	interval time.Duration
	client   *http.Client

	inner *ManualObserver

	mu        sync.Mutex
	isRunning bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// ProbeConfig holds probe settings.
type ProbeConfig struct {
	URL      string        // health endpoint, e.g. http://backend/api/health
	Interval time.Duration // default 10s
	Timeout  time.Duration // per-probe request timeout, default 5s
}

// NewProbeObserver creates a ProbeObserver. The state starts offline until
// the first successful probe.
func NewProbeObserver(cfg ProbeConfig) *ProbeObserver {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &ProbeObserver{
		url:      cfg.URL,
		interval: cfg.Interval,
		client:   &http.Client{Timeout: cfg.Timeout},
		inner:    NewManualObserver(false),
	}
}

// IsOnline reports the state as of the last probe.
func (p *ProbeObserver) IsOnline() bool {
	return p.inner.IsOnline()
}

// OnOnline registers a transition callback.
func (p *ProbeObserver) OnOnline(fn func()) Unsubscribe {
	return p.inner.OnOnline(fn)
}

// Start begins probing. Idempotent.
func (p *ProbeObserver) Start(ctx context.Context) {
	p.mu.Lock()
	if p.isRunning {
		p.mu.Unlock()
		return
	}
	p.isRunning = true
	p.stopCh = make(chan struct{})
	p.mu.Unlock()

	p.wg.Add(1)
	go p.probeLoop(ctx)
}

// Stop halts probing and waits for the loop to exit.
func (p *ProbeObserver) Stop() {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return
	}
	p.isRunning = false
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *ProbeObserver) probeLoop(ctx context.Context) {
	defer p.wg.Done()

	// Probe immediately so the state settles before the first tick.
	p.probe(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.probe(ctx)
		}
	}
}

func (p *ProbeObserver) probe(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		p.inner.SetOnline(false)
		return
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if p.inner.IsOnline() {
			logging.Warn("Connectivity probe failed, going offline",
				map[string]interface{}{"url": p.url})
		}
		p.inner.SetOnline(false)
		return
	}
	resp.Body.Close()

	online := resp.StatusCode < 400
	if online && !p.inner.IsOnline() {
		logging.Info("Connectivity probe succeeded, going online",
			map[string]interface{}{"url": p.url})
	}
	p.inner.SetOnline(online)
}
