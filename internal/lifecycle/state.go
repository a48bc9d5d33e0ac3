package lifecycle

import "time"

// Phase is a lifecycle state.
type Phase int

// Lifecycle phases.
const (
	PhaseRegistered Phase = iota
	PhaseLoading
	PhaseConnected
	PhaseStreaming
	PhaseRetryWait
	PhaseClosed
)

var phaseNames = [...]string{
	PhaseRegistered: "registered",
	PhaseLoading:    "loading",
	PhaseConnected:  "connected",
	PhaseStreaming:  "streaming",
	PhaseRetryWait:  "retry_wait",
	PhaseClosed:     "closed",
}

// String returns the phase name used in logs, metrics and the API.
func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Phases lists every phase in state-machine order.
func Phases() []Phase {
	return []Phase{PhaseRegistered, PhaseLoading, PhaseConnected, PhaseStreaming, PhaseRetryWait, PhaseClosed}
}

// Healthy reports whether the adapter is delivering data.
func (p Phase) Healthy() bool {
	return p == PhaseConnected || p == PhaseStreaming
}

// State is an immutable snapshot of one adapter's lifecycle.
type State struct {
	Name           string        `json:"name"`
	Type           string        `json:"type"`
	Prefix         string        `json:"prefix"`
	Phase          Phase         `json:"phase"`
	RetryCount     int           `json:"retry_count"`
	NextRetryDelay time.Duration `json:"next_retry_delay"`
	LastError      string        `json:"last_error,omitempty"`
	LastConnected  time.Time     `json:"last_connected,omitzero"`
	PhaseSince     time.Time     `json:"phase_since"`
	SignalsLoaded  int           `json:"signals_loaded"`
	EventsReceived uint64        `json:"events_received"`
}
