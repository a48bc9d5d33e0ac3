package openhab

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/signalhub/internal/adapter"
	"github.com/nerrad567/signalhub/internal/infrastructure/config"
	"github.com/nerrad567/signalhub/internal/signal"
	"github.com/nerrad567/signalhub/internal/store"
)

// =============================================================================
// Fake openHAB server
// =============================================================================

type fakeServer struct {
	*httptest.Server

	mu         sync.Mutex
	items      string
	itemsCode  int
	authHeader string
	events     chan string
	streamOpen chan struct{}
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	f := &fakeServer{
		itemsCode:  http.StatusOK,
		events:     make(chan string, 16),
		streamOpen: make(chan struct{}, 4),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/items", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.authHeader = r.Header.Get("Authorization")
		code, body := f.itemsCode, f.items
		f.mu.Unlock()

		if r.URL.Query().Get("fields") != "name,type,state,lastStateChange" {
			http.Error(w, "missing fields", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_, _ = io.WriteString(w, body)
	})
	mux.HandleFunc("/rest/events", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("topics") != "openhab/items/*/statechanged" {
			http.Error(w, "bad topics", http.StatusBadRequest)
			return
		}
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()
		f.streamOpen <- struct{}{}

		for {
			select {
			case <-r.Context().Done():
				return
			case raw, ok := <-f.events:
				if !ok || raw == "" {
					return
				}
				_, _ = io.WriteString(w, raw)
				flusher.Flush()
			}
		}
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeServer) setItems(code int, body string) {
	f.mu.Lock()
	f.itemsCode, f.items = code, body
	f.mu.Unlock()
}

// stateEvent renders an ItemStateChangedEvent as an SSE message.
func stateEvent(item, stateType, value string) string {
	payload := fmt.Sprintf(`{"type":%q,"value":%q,"oldType":"UnDef","oldValue":"NULL"}`, stateType, value)
	return fmt.Sprintf("event: message\ndata: {\"topic\":\"openhab/items/%s/statechanged\",\"payload\":%q,\"type\":\"ItemStateChangedEvent\"}\n\n",
		item, payload)
}

func newTestAdapter(t *testing.T, f *fakeServer) *Adapter {
	t.Helper()
	a, err := newAdapter(config.AdapterConfig{
		Name:    "openhab",
		Type:    Type,
		Prefix:  "oh",
		OpenHAB: config.OpenHABConfig{URL: f.URL + "/", Token: "secret"},
	}, adapter.Deps{OperationTimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("newAdapter() error = %v", err)
	}
	fixed := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return fixed }
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func next(t *testing.T, s adapter.EventStream) (signal.Signal, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.Next(ctx)
}

const itemsJSON = `[
	{"name":"Kitchen_Temp","type":"Number:Temperature","state":"20.5 °C"},
	{"name":"Hall_Light","type":"Switch","state":"ON"},
	{"name":"Bedroom_Dimmer","type":"Dimmer","state":"40"},
	{"name":"Blind","type":"Rollershutter","state":"NULL"},
	{"name":"Door","type":"Contact","state":"UNDEF"},
	{"name":"Avg_Temp","type":"Group:Number:Temperature:AVG","state":"19 °C"},
	{"name":"Label","type":"String","state":"42"}
]`

// =============================================================================
// Construction
// =============================================================================

func TestNew_InvalidURL(t *testing.T) {
	for _, raw := range []string{"", "ftp://host", "http://", "://bad"} {
		_, err := New(config.AdapterConfig{Name: "x", Prefix: "x", OpenHAB: config.OpenHABConfig{URL: raw}}, adapter.Deps{})
		if !errors.Is(err, adapter.ErrInvalidConfig) {
			t.Errorf("New(url=%q) error = %v, want ErrInvalidConfig", raw, err)
		}
	}
}

// =============================================================================
// Snapshot
// =============================================================================

func TestFetchSignals(t *testing.T) {
	f := newFakeServer(t)
	f.setItems(http.StatusOK, itemsJSON)
	a := newTestAdapter(t, f)

	snap, err := a.FetchSignals(context.Background())
	if err != nil {
		t.Fatalf("FetchSignals() error = %v", err)
	}
	if len(snap) != 5 {
		t.Fatalf("snapshot has %d signals, want 5: %v", len(snap), snap)
	}

	tests := []struct {
		id     string
		text   string
		number bool
		unit   string
	}{
		{"oh:Kitchen_Temp", "20.5", true, "°C"},
		{"oh:Hall_Light", "ON", false, ""},
		{"oh:Bedroom_Dimmer", "40", true, ""},
		{"oh:Avg_Temp", "19", true, "°C"},
		{"oh:Label", "42", false, ""},
	}
	for _, tt := range tests {
		sig, ok := snap[tt.id]
		if !ok {
			t.Errorf("%s missing from snapshot", tt.id)
			continue
		}
		if sig.Value.Text() != tt.text || sig.Value.IsNumber() != tt.number || sig.Unit != tt.unit {
			t.Errorf("%s = %q number=%v unit=%q, want %q number=%v unit=%q",
				tt.id, sig.Value.Text(), sig.Value.IsNumber(), sig.Unit, tt.text, tt.number, tt.unit)
		}
		if sig.Source != "openhab" || sig.Timestamp.IsZero() {
			t.Errorf("%s source=%q timestamp=%v", tt.id, sig.Source, sig.Timestamp)
		}
	}

	f.mu.Lock()
	auth := f.authHeader
	f.mu.Unlock()
	if got := auth; got != "Bearer secret" {
		t.Errorf("Authorization = %q, want Bearer secret", got)
	}
	if !a.IsConnected() {
		t.Error("IsConnected() = false after successful fetch")
	}
}

func TestFetchSignals_LastStateChange(t *testing.T) {
	changed := time.Date(2026, 2, 28, 21, 15, 0, 0, time.UTC)
	f := newFakeServer(t)
	f.setItems(http.StatusOK, fmt.Sprintf(`[
		{"name":"Kitchen_Temp","type":"Number:Temperature","state":"20.5 °C","lastStateChange":%d},
		{"name":"Hall_Light","type":"Switch","state":"ON"}
	]`, changed.UnixMilli()))
	a := newTestAdapter(t, f)

	snap, err := a.FetchSignals(context.Background())
	if err != nil {
		t.Fatalf("FetchSignals() error = %v", err)
	}
	if got := snap["oh:Kitchen_Temp"].Timestamp; !got.Equal(changed) {
		t.Errorf("Kitchen_Temp timestamp = %v, want %v", got, changed)
	}
	if got := snap["oh:Hall_Light"].Timestamp; !got.Equal(a.now()) {
		t.Errorf("Hall_Light timestamp = %v, want fetch time %v", got, a.now())
	}
}

func TestFetchSignals_ResyncUnchangedNotNotified(t *testing.T) {
	f := newFakeServer(t)
	f.setItems(http.StatusOK, itemsJSON)
	a := newTestAdapter(t, f)

	clock := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	a.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	s := store.New(store.Config{})
	load := func() int {
		t.Helper()
		snap, err := a.FetchSignals(context.Background())
		if err != nil {
			t.Fatalf("FetchSignals() error = %v", err)
		}
		list := make([]signal.Signal, 0, len(snap))
		for _, sig := range snap {
			list = append(list, sig)
		}
		changed, _ := s.Reconcile(a.Name(), list)
		return changed
	}

	if changed := load(); changed != 5 {
		t.Fatalf("first load changed = %d, want 5", changed)
	}

	sub := s.Subscribe(context.Background())
	defer sub.Close()

	if changed := load(); changed != 0 {
		t.Errorf("resync changed = %d, want 0", changed)
	}
	select {
	case sig := <-sub.C:
		t.Errorf("unexpected notification after unchanged resync: %+v", sig)
	default:
	}
}

func TestFetchSignals_Errors(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		body    string
		wantErr error
	}{
		{"server error", http.StatusInternalServerError, "boom", adapter.ErrConnectivity},
		{"unauthorised", http.StatusUnauthorized, "", adapter.ErrConnectivity},
		{"not json", http.StatusOK, "<html>", adapter.ErrProtocol},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeServer(t)
			f.setItems(tt.code, tt.body)
			a := newTestAdapter(t, f)

			if _, err := a.FetchSignals(context.Background()); !errors.Is(err, tt.wantErr) {
				t.Errorf("FetchSignals() error = %v, want %v", err, tt.wantErr)
			}
			if a.IsConnected() {
				t.Error("IsConnected() = true after failed fetch")
			}
		})
	}
}

func TestFetchSignals_Unreachable(t *testing.T) {
	f := newFakeServer(t)
	a := newTestAdapter(t, f)
	f.Close()

	if _, err := a.FetchSignals(context.Background()); !errors.Is(err, adapter.ErrConnectivity) {
		t.Errorf("FetchSignals() error = %v, want ErrConnectivity", err)
	}
}

// =============================================================================
// Event stream
// =============================================================================

func TestSubscribeEvents(t *testing.T) {
	f := newFakeServer(t)
	f.setItems(http.StatusOK, itemsJSON)
	a := newTestAdapter(t, f)
	if _, err := a.FetchSignals(context.Background()); err != nil {
		t.Fatalf("FetchSignals() error = %v", err)
	}

	s, err := a.SubscribeEvents(context.Background())
	if err != nil {
		t.Fatalf("SubscribeEvents() error = %v", err)
	}
	defer s.Close()
	<-f.streamOpen

	f.events <- ": keepalive comment\n\n"
	f.events <- "event: alive\ndata: {\"type\":\"ALIVE\",\"interval\":10}\n\n"
	f.events <- stateEvent("Kitchen_Temp", "Quantity", "21.5 °C")
	f.events <- stateEvent("Door", "OpenClosed", "UNDEF")
	f.events <- stateEvent("Hall_Light", "OnOff", "OFF")
	// Decimal state on a Dimmer relies on the snapshot's item type as well.
	f.events <- stateEvent("Bedroom_Dimmer", "Percent", "55")

	want := []struct {
		id   string
		text string
		unit string
	}{
		{"oh:Kitchen_Temp", "21.5", "°C"},
		{"oh:Hall_Light", "OFF", ""},
		{"oh:Bedroom_Dimmer", "55", ""},
	}
	for _, w := range want {
		sig, err := next(t, s)
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if sig.ID != w.id || sig.Value.Text() != w.text || sig.Unit != w.unit {
			t.Errorf("event = %s %q %q, want %s %q %q", sig.ID, sig.Value.Text(), sig.Unit, w.id, w.text, w.unit)
		}
	}
	if !a.IsConnected() {
		t.Error("IsConnected() = false while streaming")
	}
}

func TestSubscribeEvents_MalformedEventIsProtocolError(t *testing.T) {
	f := newFakeServer(t)
	a := newTestAdapter(t, f)

	s, err := a.SubscribeEvents(context.Background())
	if err != nil {
		t.Fatalf("SubscribeEvents() error = %v", err)
	}
	defer s.Close()
	<-f.streamOpen

	f.events <- "data: {not json\n\n"
	if _, err := next(t, s); !errors.Is(err, adapter.ErrProtocol) {
		t.Errorf("Next() error = %v, want ErrProtocol", err)
	}
}

func TestSubscribeEvents_ServerEndsStream(t *testing.T) {
	f := newFakeServer(t)
	a := newTestAdapter(t, f)

	s, err := a.SubscribeEvents(context.Background())
	if err != nil {
		t.Fatalf("SubscribeEvents() error = %v", err)
	}
	defer s.Close()
	<-f.streamOpen

	f.events <- "" // handler returns, response ends
	if _, err := next(t, s); !errors.Is(err, io.EOF) {
		t.Errorf("Next() error = %v, want io.EOF", err)
	}
	if a.IsConnected() {
		t.Error("IsConnected() = true after stream ended")
	}
}

func TestSubscribeEvents_CloseUnblocksNext(t *testing.T) {
	f := newFakeServer(t)
	a := newTestAdapter(t, f)

	s, err := a.SubscribeEvents(context.Background())
	if err != nil {
		t.Fatalf("SubscribeEvents() error = %v", err)
	}
	<-f.streamOpen

	errc := make(chan error, 1)
	go func() {
		_, err := s.Next(context.Background())
		errc <- err
	}()
	time.Sleep(10 * time.Millisecond)

	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	select {
	case err := <-errc:
		if !errors.Is(err, adapter.ErrClosed) {
			t.Errorf("Next() error = %v, want ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Next() not unblocked by Close")
	}

	if _, err := a.SubscribeEvents(context.Background()); !errors.Is(err, adapter.ErrClosed) {
		t.Errorf("SubscribeEvents() after Close error = %v, want ErrClosed", err)
	}
}

func TestSubscribeEvents_CancelledContext(t *testing.T) {
	f := newFakeServer(t)
	a := newTestAdapter(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := a.SubscribeEvents(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("SubscribeEvents() error = %v, want context.Canceled", err)
	}
}

// =============================================================================
// Parsing helpers
// =============================================================================

func TestReadSSE(t *testing.T) {
	input := "retry: 1000\n" +
		": comment\n" +
		"event: message\n" +
		"data: line one\n" +
		"data:line two\n" +
		"\n" +
		"\n" +
		"data: second\n" +
		"\n" +
		"data: unterminated"

	var got []sseMessage
	err := readSSE(strings.NewReader(input), func(m sseMessage) error {
		got = append(got, m)
		return nil
	})
	if err != nil {
		t.Fatalf("readSSE() error = %v", err)
	}
	want := []sseMessage{
		{event: "message", data: "line one\nline two"},
		{data: "second"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d messages, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("message %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestParseState(t *testing.T) {
	tests := []struct {
		state   string
		numeric bool
		text    string
		isNum   bool
		unit    string
	}{
		{"20.5 °C", true, "20.5", true, "°C"},
		{"1013.2 hPa", true, "1013.2", true, "hPa"},
		{"75", true, "75", true, ""},
		{"NaN", true, "NaN", false, ""},
		{"ON", false, "ON", false, ""},
		{"42", false, "42", false, ""},
		{"garbage value", true, "garbage value", false, ""},
	}
	for _, tt := range tests {
		v, unit := parseState(tt.state, tt.numeric)
		if v.Text() != tt.text || v.IsNumber() != tt.isNum || unit != tt.unit {
			t.Errorf("parseState(%q, %v) = %q number=%v unit=%q", tt.state, tt.numeric, v.Text(), v.IsNumber(), unit)
		}
	}
}

func TestBaseType(t *testing.T) {
	tests := map[string]string{
		"Number:Temperature":           "Number",
		"Group:Number:Temperature:AVG": "Number",
		"Switch":                       "Switch",
		"Group":                        "Group",
	}
	for in, want := range tests {
		if got := baseType(in); got != want {
			t.Errorf("baseType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestItemFromTopic(t *testing.T) {
	if name, ok := itemFromTopic("openhab/items/Kitchen_Temp/statechanged"); !ok || name != "Kitchen_Temp" {
		t.Errorf("itemFromTopic() = %q, %v", name, ok)
	}
	for _, bad := range []string{"openhab/things/x/status", "openhab/items//statechanged", "x"} {
		if _, ok := itemFromTopic(bad); ok {
			t.Errorf("itemFromTopic(%q) ok = true", bad)
		}
	}
}
