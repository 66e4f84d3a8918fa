package stockx

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// NetworkStatus is the reachability state reported by a Monitor.
type NetworkStatus string

const (
	StatusOnline      NetworkStatus = "online"
	StatusOffline     NetworkStatus = "offline"
	StatusServerError NetworkStatus = "server_error"
)

// Connectivity reports current network reachability. The gateway consults it
// to classify transport failures; the catalog consults it before attempting
// live fetches.
type Connectivity interface {
	Connected() bool
}

// StaticConnectivity is a fixed-answer oracle, useful in tests and tooling.
type StaticConnectivity bool

func (s StaticConnectivity) Connected() bool { return bool(s) }

// AlwaysOnline is the default oracle: assume reachable, let transport errors
// tell us otherwise.
var AlwaysOnline = StaticConnectivity(true)

// Monitor polls a liveness endpoint and tracks reachability over time.
// Subscribers are invoked on status changes only.
type Monitor struct {
	probeURL string
	client   *http.Client
	interval time.Duration

	mu     sync.RWMutex
	status NetworkStatus
	subs   []func(NetworkStatus)

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewMonitor creates a Monitor probing probeURL every interval. Call Start
// to begin polling and Stop to tear it down.
func NewMonitor(probeURL string, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{
		probeURL: probeURL,
		client:   &http.Client{Timeout: probeTimeout},
		interval: interval,
		status:   StatusOnline,
		stopCh:   make(chan struct{}),
	}
}

func (m *Monitor) Connected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status == StatusOnline
}

// Status returns the last observed network status.
func (m *Monitor) Status() NetworkStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Subscribe registers fn to be called whenever the status changes.
func (m *Monitor) Subscribe(fn func(NetworkStatus)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// Start begins the polling loop.
func (m *Monitor) Start() {
	go m.loop()
}

// Stop ends the polling loop. Safe to call more than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		m.probe()
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
		}
	}
}

func (m *Monitor) probe() {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	status := StatusOnline
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.probeURL, nil)
	if err != nil {
		status = StatusServerError
	} else {
		resp, err := m.client.Do(req)
		switch {
		case err != nil:
			status = StatusOffline
		case resp.StatusCode >= 500:
			resp.Body.Close()
			status = StatusServerError
		default:
			resp.Body.Close()
		}
	}
	m.setStatus(status)
}

func (m *Monitor) setStatus(status NetworkStatus) {
	m.mu.Lock()
	if m.status == status {
		m.mu.Unlock()
		return
	}
	m.status = status
	subs := make([]func(NetworkStatus), len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	for _, fn := range subs {
		fn(status)
	}
}
