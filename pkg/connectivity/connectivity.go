// Package connectivity observes network reachability and reports
// edge-triggered online/offline transitions to the coordinator.
package connectivity

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Prober answers a single reachability question.
type Prober interface {
	// Probe reports whether the network is currently reachable.
	Probe(ctx context.Context) bool
}

// ProbeFunc adapts a function to the Prober interface.
type ProbeFunc func(ctx context.Context) bool

func (f ProbeFunc) Probe(ctx context.Context) bool { return f(ctx) }

// DialProber probes reachability by opening a TCP connection.
type DialProber struct {
	// Address is the dial target, e.g. "1.1.1.1:443".
	Address string

	// Timeout bounds each attempt.
	Timeout time.Duration
}

func (p DialProber) Probe(ctx context.Context) bool {
	d := net.Dialer{Timeout: p.Timeout}
	conn, err := d.DialContext(ctx, "tcp", p.Address)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// DefaultInterval is the default monitoring interval.
const DefaultInterval = 2 * time.Second

// Monitor polls a Prober and emits a transition whenever reachability flips.
type Monitor struct {
	prober   Prober
	interval time.Duration
	log      *slog.Logger

	online atomic.Bool

	mu          sync.Mutex
	cancel      context.CancelFunc
	transitions chan bool
	done        chan struct{}
}

// NewMonitor creates a Monitor. The initial state is assumed online until the
// first probe says otherwise.
func NewMonitor(p Prober, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	m := &Monitor{
		prober:   p,
		interval: interval,
		log:      slog.Default().With("component", "connectivity"),
	}
	m.online.Store(true)
	return m
}

// Online reports the last observed reachability.
func (m *Monitor) Online() bool { return m.online.Load() }

// Transitions returns the transition stream of the current run, or nil when
// stopped. Each value is the new reachability state.
func (m *Monitor) Transitions() <-chan bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitions
}

// Start begins monitoring. Idempotent while running.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.transitions = make(chan bool, 4)
	m.done = make(chan struct{})
	go m.loop(ctx, m.transitions, m.done)
}

// Stop halts monitoring. Idempotent and safe before Start.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.cancel = nil
	m.transitions = nil
	m.done = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (m *Monitor) loop(ctx context.Context, transitions chan<- bool, done chan<- struct{}) {
	defer close(done)
	defer close(transitions)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		online := m.prober.Probe(ctx)
		if online == m.online.Load() {
			continue
		}
		m.online.Store(online)
		m.log.Info("reachability changed", "online", online)
		select {
		case transitions <- online:
		case <-ctx.Done():
			return
		}
	}
}
