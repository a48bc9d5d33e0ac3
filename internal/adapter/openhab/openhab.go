package openhab

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

	"github.com/nerrad567/signalhub/internal/adapter"
	"github.com/nerrad567/signalhub/internal/infrastructure/config"
	"github.com/nerrad567/signalhub/internal/signal"
)

// Type is the registry key for this adapter.
const Type = "openhab"

// REST paths.
const (
	itemsPath  = "/rest/items?fields=name,type,state,lastStateChange"
	eventsPath = "/rest/events?topics=openhab/items/*/statechanged"
)

// item is the subset of an openHAB item the adapter reads.
type item struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	State string `json:"state"`

	// LastStateChange is epoch milliseconds; only newer servers send it.
	LastStateChange int64 `json:"lastStateChange"`
}

// changedAt returns when the item state last changed, or fallback when
// the server does not report it.
func (it item) changedAt(fallback time.Time) time.Time {
	if it.LastStateChange > 0 {
		return time.UnixMilli(it.LastStateChange).UTC()
	}
	return fallback
}

// Adapter reads item states from an openHAB server.
type Adapter struct {
	adapter.Identity

	baseURL      string
	token        string
	client       *http.Client
	streamClient *http.Client
	logger       adapter.Logger
	now          func() time.Time

	connected atomic.Bool
	closed    atomic.Bool

	mu        sync.Mutex
	itemTypes map[string]string
	streams   map[*eventStream]struct{}
}

// New is the registry factory for openHAB adapters.
func New(cfg config.AdapterConfig, deps adapter.Deps) (adapter.Adapter, error) {
	return newAdapter(cfg, deps)
}

func newAdapter(cfg config.AdapterConfig, deps adapter.Deps) (*Adapter, error) {
	base, err := parseBaseURL(cfg.OpenHAB.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: adapter %s: openhab.url: %w", adapter.ErrInvalidConfig, cfg.Name, err)
	}
	return &Adapter{
		Identity:     adapter.NewIdentity(cfg.Name, Type, cfg.Prefix),
		baseURL:      base,
		token:        cfg.OpenHAB.Token,
		client:       deps.Client(),
		streamClient: deps.StreamingClient(),
		logger:       deps.LoggerOrNoop(),
		now:          time.Now,
		itemTypes:    make(map[string]string),
		streams:      make(map[*eventStream]struct{}),
	}, nil
}

// parseBaseURL validates an http(s) URL and strips any trailing slash.
func parseBaseURL(raw string) (string, error) {
	if raw == "" {
		return "", errors.New("is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("host is required")
	}
	return strings.TrimSuffix(raw, "/"), nil
}

// FetchSignals returns every item with a value as a signal, stamped with
// the item's last state change when the server reports one and with the
// fetch time otherwise.
func (a *Adapter) FetchSignals(ctx context.Context) (map[string]signal.Signal, error) {
	if a.closed.Load() {
		return nil, adapter.ErrClosed
	}

	var items []item
	if err := adapter.GetJSON(ctx, a.client, a.baseURL+itemsPath, a.token, &items); err != nil {
		a.connected.Store(false)
		return nil, err
	}

	now := a.now()
	types := make(map[string]string, len(items))
	out := make(map[string]signal.Signal, len(items))
	skipped := 0
	for _, it := range items {
		if it.Name == "" {
			continue
		}
		types[it.Name] = it.Type
		if !hasValue(it.State) {
			skipped++
			continue
		}
		value, unit := parseState(it.State, numericItemTypes[baseType(it.Type)])
		id := a.SignalID(it.Name)
		out[id] = signal.Signal{ID: id, Value: value, Unit: unit, Timestamp: it.changedAt(now), Source: a.Name()}
	}

	a.mu.Lock()
	a.itemTypes = types
	a.mu.Unlock()
	a.connected.Store(true)

	a.logger.Debug("openhab items loaded", "items", len(items), "signals", len(out), "without_state", skipped)
	return out, nil
}

// itemNumeric reports whether the last snapshot typed name as numeric.
func (a *Adapter) itemNumeric(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return numericItemTypes[baseType(a.itemTypes[name])]
}

// SubscribeEvents opens the SSE event stream. ctx bounds only the
// connection setup; the stream lives until Close.
func (a *Adapter) SubscribeEvents(ctx context.Context) (adapter.EventStream, error) {
	if a.closed.Load() {
		return nil, adapter.ErrClosed
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	stopSetup := context.AfterFunc(ctx, cancel)

	req, err := adapter.NewRequest(streamCtx, http.MethodGet, a.baseURL+eventsPath, a.token)
	if err != nil {
		stopSetup()
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := adapter.Do(a.streamClient, req)
	stopSetup()
	if err != nil {
		cancel()
		a.connected.Store(false)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%w: event stream content type %q", adapter.ErrProtocol, ct)
	}

	s := newEventStream(a, resp.Body, cancel)
	a.mu.Lock()
	a.streams[s] = struct{}{}
	a.mu.Unlock()
	if a.closed.Load() {
		s.Close()
		return nil, adapter.ErrClosed
	}

	a.connected.Store(true)
	go s.read()
	return s, nil
}

func (a *Adapter) forget(s *eventStream) {
	a.mu.Lock()
	delete(a.streams, s)
	a.mu.Unlock()
}

// IsConnected reports whether the last request or stream succeeded.
func (a *Adapter) IsConnected() bool {
	return a.connected.Load() && !a.closed.Load()
}

// Close ends every open stream. Idempotent.
func (a *Adapter) Close() error {
	if a.closed.Swap(true) {
		return nil
	}
	a.mu.Lock()
	streams := make([]*eventStream, 0, len(a.streams))
	for s := range a.streams {
		streams = append(streams, s)
	}
	a.mu.Unlock()

	for _, s := range streams {
		s.Close()
	}
	a.connected.Store(false)
	a.client.CloseIdleConnections()
	return nil
}
