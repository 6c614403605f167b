package changefeed

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"feedsync/internal/core"
)

type State int

const (
	StateConnecting State = iota
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

var channelState = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "feedsync_channel_state",
	Help: "Push channel state per entity kind: 0 connecting, 1 connected, 2 disconnected.",
}, []string{"kind"})

// Transition is one supervisor state change, fanned out to observers such
// as the poll-fallback driver.
type Transition struct {
	Kind core.EntityKind
	From State
	To   State
}

// Supervisor tracks one subscription's health. Disconnected is reachable
// from both other states on any subscription error; while disconnected the
// poller substitutes full reloads for push delivery.
type Supervisor struct {
	kind core.EntityKind

	mu       sync.Mutex
	state    State
	watchers []chan<- Transition
}

func NewSupervisor(kind core.EntityKind) *Supervisor {
	channelState.WithLabelValues(string(kind)).Set(float64(StateConnecting))
	return &Supervisor{kind: kind}
}

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Watch registers a transition observer. Sends are best-effort; a full
// watcher channel misses intermediate transitions but can always read the
// current state.
func (s *Supervisor) Watch(ch chan<- Transition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, ch)
}

func (s *Supervisor) To(next State) {
	s.mu.Lock()
	prev := s.state
	if prev == next {
		s.mu.Unlock()
		return
	}
	s.state = next
	watchers := s.watchers
	s.mu.Unlock()

	channelState.WithLabelValues(string(s.kind)).Set(float64(next))

	t := Transition{Kind: s.kind, From: prev, To: next}
	for _, ch := range watchers {
		select {
		case ch <- t:
		default:
		}
	}
}
