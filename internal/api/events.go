package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/nerrad567/signalhub/internal/signal"
)

// sseKeepAlive is how often an idle SSE stream sends a comment line.
const sseKeepAlive = 15 * time.Second

// SSE event names.
const (
	sseEventSnapshot = "snapshot"
	sseEventSignal   = "signal"
)

// handleEvents streams signal changes as Server-Sent Events.
//
// The stream opens with one "snapshot" event carrying the current signals,
// followed by a "signal" event per change. The subscription is taken before
// the snapshot, so no change between the two is lost; a change may appear
// in both. The optional source query parameter filters by adapter.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	if len(source) > maxQueryParamLen {
		writeBadRequest(w, "query parameter too long")
		return
	}

	rc := http.NewResponseController(w)
	// The server write timeout would otherwise cut the stream.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Debug("sse: clearing write deadline failed", "error", err)
	}

	ctx := r.Context()
	sub := s.signals.Subscribe(ctx)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	snapshot := make([]signal.Signal, 0)
	for _, sig := range s.signals.GetAll() {
		if source == "" || sig.Source == source {
			snapshot = append(snapshot, sig)
		}
	}
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].ID < snapshot[j].ID })

	if err := writeSSE(w, sseEventSnapshot, snapshot); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		return
	}

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-sub.C:
			if !ok {
				return
			}
			if source != "" && sig.Source != source {
				continue
			}
			if err := writeSSE(w, sseEventSignal, sig); err != nil {
				return
			}
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// writeSSE writes one event frame. JSON never contains a raw newline, so
// the payload always fits a single data line.
func writeSSE(w http.ResponseWriter, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
