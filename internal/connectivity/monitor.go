// Package connectivity tracks whether the remote calendar endpoint is
// reachable. The engine consults a Probe before every remote step; while
// offline no remote-mutating call may be attempted, even with a cached token.
package connectivity

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"
)

// Probe reports the current connectivity state. It is injected into the sync
// engine so tests can simulate offline conditions deterministically.
type Probe interface {
	Offline() bool
}

// Static is a fixed-state probe for tests and forced-offline operation.
type Static bool

// Offline implements Probe.
func (s Static) Offline() bool { return bool(s) }

const (
	defaultCheckInterval = 30 * time.Second
	probeTimeout         = 5 * time.Second
)

// Monitor periodically probes an HTTP endpoint and tracks online/offline
// transitions.
type Monitor struct {
	checkURL   string
	interval   time.Duration
	httpClient *http.Client

	mu        sync.RWMutex
	offline   bool
	changedAt time.Time
	listeners []func(offline bool)

	stopCh  chan struct{}
	stopped sync.Once
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithInterval overrides the probe interval.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		m.interval = d
	}
}

// WithHTTPClient overrides the probing HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Monitor) {
		m.httpClient = c
	}
}

// NewMonitor creates a monitor probing the given URL. The monitor starts in
// the online state; the first probe corrects it if needed.
func NewMonitor(checkURL string, opts ...Option) *Monitor {
	m := &Monitor{
		checkURL:   checkURL,
		interval:   defaultCheckInterval,
		httpClient: &http.Client{Timeout: probeTimeout},
		changedAt:  time.Now().UTC(),
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Offline implements Probe.
func (m *Monitor) Offline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.offline
}

// ChangedAt returns when the state last transitioned.
func (m *Monitor) ChangedAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.changedAt
}

// OnChange registers a callback invoked on every online/offline transition.
func (m *Monitor) OnChange(fn func(offline bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// SetOffline forces the state, firing listeners on a transition.
func (m *Monitor) SetOffline(offline bool) {
	m.mu.Lock()
	if m.offline == offline {
		m.mu.Unlock()
		return
	}
	m.offline = offline
	m.changedAt = time.Now().UTC()
	listeners := make([]func(bool), len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	if offline {
		log.Printf("Connectivity lost: remote operations are gated")
	} else {
		log.Printf("Connectivity restored")
	}

	for _, fn := range listeners {
		fn(offline)
	}
}

// Start begins the background probe loop. It returns immediately.
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		m.check(ctx)
		for {
			select {
			case <-ticker.C:
				m.check(ctx)
			case <-m.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop terminates the probe loop.
func (m *Monitor) Stop() {
	m.stopped.Do(func() { close(m.stopCh) })
}

// check performs one reachability probe.
func (m *Monitor) check(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.checkURL, nil)
	if err != nil {
		m.SetOffline(true)
		return
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		m.SetOffline(true)
		return
	}
	resp.Body.Close()

	// Any HTTP response means the network path is up; auth and protocol
	// errors are the engine's concern, not connectivity.
	m.SetOffline(false)
}
