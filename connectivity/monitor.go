package connectivity

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Event is a trigger for revalidating fetched data
type Event int

const (
	// Reconnect fires when the API becomes reachable again
	Reconnect Event = iota + 1
	// Focus fires when a browser reports that the console regained visibility
	Focus
)

func (e Event) String() string {
	switch e {
	case Reconnect:
		return "reconnect"
	case Focus:
		return "focus"
	default:
		return "unknown"
	}
}

// Status reports whether the remote API is reachable
type Status interface {
	Online() bool
}

// Static is a fixed Status
type Static bool

func (s Static) Online() bool { return bool(s) }

// Monitor probes the API origin and tracks whether it is reachable.
// It starts optimistic: the API counts as online until a probe fails.
type Monitor struct {
	probeURL string
	interval time.Duration
	http     *http.Client

	mu        sync.RWMutex
	online    bool
	listeners map[int]chan Event
	nextID    int
}

func NewMonitor(probeURL string, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Monitor{
		probeURL:  probeURL,
		interval:  interval,
		http:      &http.Client{Timeout: interval},
		online:    true,
		listeners: make(map[int]chan Event),
	}
}

func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Run probes until ctx is done
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}

// Probe performs one reachability check. Any HTTP answer, even an error status, counts as online.
func (m *Monitor) Probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.probeURL, nil)
	if err != nil {
		m.SetOnline(false)
		return false
	}
	resp, err := m.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return m.Online()
		}
		m.SetOnline(false)
		return false
	}
	resp.Body.Close()
	m.SetOnline(true)
	return true
}

// SetOnline records reachability and emits Reconnect on an offline to online edge
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	was := m.online
	m.online = online
	m.mu.Unlock()

	switch {
	case !was && online:
		log.Info().Str("probe", m.probeURL).Msg("API reachable again")
		m.emit(Reconnect)
	case was && !online:
		log.Warn().Str("probe", m.probeURL).Msg("API unreachable")
	}
}

// Focus emits a Focus event
func (m *Monitor) Focus() {
	m.emit(Focus)
}

// Subscribe returns a channel of events and a function that releases it.
// Slow subscribers miss events rather than block the monitor.
func (m *Monitor) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 4)
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = ch
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
			close(ch)
		})
	}
}

func (m *Monitor) emit(e Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ch := range m.listeners {
		select {
		case ch <- e:
		default:
		}
	}
}
