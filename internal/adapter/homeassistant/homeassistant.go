package homeassistant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/signalhub/internal/adapter"
	"github.com/nerrad567/signalhub/internal/infrastructure/config"
	"github.com/nerrad567/signalhub/internal/signal"
)

// Type is the registry key for this adapter.
const Type = "homeassistant"

const (
	statesPath    = "/api/states"
	websocketPath = "/api/websocket"

	stateUnavailable = "unavailable"
	stateUnknown     = "unknown"
)

// entityState is one entry of /api/states and an event's new_state.
type entityState struct {
	EntityID    string     `json:"entity_id"`
	State       string     `json:"state"`
	Attributes  attributes `json:"attributes"`
	LastUpdated time.Time  `json:"last_updated"`
}

type attributes struct {
	Unit string `json:"unit_of_measurement"`
}

// Adapter reads entity states from Home Assistant.
type Adapter struct {
	adapter.Identity

	baseURL string
	wsURL   string
	token   string
	client  *http.Client
	dialer  *websocket.Dialer
	timeout time.Duration
	logger  adapter.Logger
	now     func() time.Time

	connected atomic.Bool
	closed    atomic.Bool

	mu      sync.Mutex
	streams map[*eventStream]struct{}
}

// New is the registry factory for Home Assistant adapters.
func New(cfg config.AdapterConfig, deps adapter.Deps) (adapter.Adapter, error) {
	return newAdapter(cfg, deps)
}

func newAdapter(cfg config.AdapterConfig, deps adapter.Deps) (*Adapter, error) {
	base, ws, err := parseURLs(cfg.HomeAssistant.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: adapter %s: homeassistant.url: %w", adapter.ErrInvalidConfig, cfg.Name, err)
	}
	if cfg.HomeAssistant.Token == "" {
		return nil, fmt.Errorf("%w: adapter %s: homeassistant.token is required", adapter.ErrInvalidConfig, cfg.Name)
	}

	timeout := deps.OperationTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Adapter{
		Identity: adapter.NewIdentity(cfg.Name, Type, cfg.Prefix),
		baseURL:  base,
		wsURL:    ws,
		token:    cfg.HomeAssistant.Token,
		client:   deps.Client(),
		dialer:   &websocket.Dialer{HandshakeTimeout: timeout},
		timeout:  timeout,
		logger:   deps.LoggerOrNoop(),
		now:      time.Now,
		streams:  make(map[*eventStream]struct{}),
	}, nil
}

// parseURLs validates the base URL and derives the websocket endpoint.
func parseURLs(raw string) (base, ws string, err error) {
	if raw == "" {
		return "", "", errors.New("is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", "", fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return "", "", errors.New("host is required")
	}
	base = strings.TrimSuffix(raw, "/")
	u.Path = strings.TrimSuffix(u.Path, "/") + websocketPath
	return base, u.String(), nil
}

// toSignal maps an entity state to a signal. ok is false for entities
// without a usable state.
func (a *Adapter) toSignal(e entityState) (signal.Signal, bool) {
	if e.EntityID == "" || e.State == "" || e.State == stateUnavailable || e.State == stateUnknown {
		return signal.Signal{}, false
	}

	value := signal.ParseValue(e.State)
	unit := ""
	if value.IsNumber() {
		unit = e.Attributes.Unit
	}
	ts := e.LastUpdated
	if ts.IsZero() {
		ts = a.now()
	}
	return signal.Signal{
		ID:        a.SignalID(e.EntityID),
		Value:     value,
		Unit:      unit,
		Timestamp: ts,
		Source:    a.Name(),
	}, true
}

// FetchSignals returns every entity with a usable state.
func (a *Adapter) FetchSignals(ctx context.Context) (map[string]signal.Signal, error) {
	if a.closed.Load() {
		return nil, adapter.ErrClosed
	}

	var states []entityState
	if err := adapter.GetJSON(ctx, a.client, a.baseURL+statesPath, a.token, &states); err != nil {
		a.connected.Store(false)
		return nil, err
	}

	out := make(map[string]signal.Signal, len(states))
	for _, e := range states {
		if sig, ok := a.toSignal(e); ok {
			out[sig.ID] = sig
		}
	}
	a.connected.Store(true)

	a.logger.Debug("home assistant states loaded", "entities", len(states), "signals", len(out))
	return out, nil
}

// IsConnected reports whether the last request or stream succeeded.
func (a *Adapter) IsConnected() bool {
	return a.connected.Load() && !a.closed.Load()
}

func (a *Adapter) track(s *eventStream) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed.Load() {
		return false
	}
	a.streams[s] = struct{}{}
	return true
}

func (a *Adapter) forget(s *eventStream) {
	a.mu.Lock()
	delete(a.streams, s)
	a.mu.Unlock()
}

// Close ends every open stream. Idempotent.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed.Swap(true) {
		a.mu.Unlock()
		return nil
	}
	streams := make([]*eventStream, 0, len(a.streams))
	for s := range a.streams {
		streams = append(streams, s)
	}
	a.mu.Unlock()

	for _, s := range streams {
		_ = s.Close()
	}
	a.connected.Store(false)
	a.client.CloseIdleConnections()
	return nil
}
