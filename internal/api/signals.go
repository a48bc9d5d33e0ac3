package api

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/signalhub/internal/history"
	"github.com/nerrad567/signalhub/internal/signal"
)

// maxQueryParamLen bounds ids and filters taken from the URL.
const maxQueryParamLen = 512

// signalIDParam returns the decoded {id} path segment.
// Ids contain ':' and may contain '/' when escaped by the client.
func signalIDParam(r *http.Request) (string, bool) {
	raw := chi.URLParam(r, "id")
	id, err := url.PathUnescape(raw)
	if err != nil || id == "" || len(id) > maxQueryParamLen {
		return "", false
	}
	return id, true
}

// handleListSignals returns every current signal sorted by id.
//
// Query parameters:
//   - source: only signals owned by this adapter
//   - prefix: only signals in this id namespace
func (s *Server) handleListSignals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	source := q.Get("source")
	prefix := q.Get("prefix")
	if len(source) > maxQueryParamLen || len(prefix) > maxQueryParamLen {
		writeBadRequest(w, "query parameter too long")
		return
	}

	all := s.signals.GetAll()
	out := make([]signal.Signal, 0, len(all))
	for _, sig := range all {
		if source != "" && sig.Source != source {
			continue
		}
		if prefix != "" && !signal.HasPrefix(sig.ID, prefix) {
			continue
		}
		out = append(out, sig)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	writeJSON(w, http.StatusOK, map[string]any{
		"signals": out,
		"count":   len(out),
	})
}

// handleGetSignal returns one signal.
func (s *Server) handleGetSignal(w http.ResponseWriter, r *http.Request) {
	id, ok := signalIDParam(r)
	if !ok {
		writeBadRequest(w, "invalid signal ID")
		return
	}

	sig, found := s.signals.Get(id)
	if !found {
		writeNotFound(w, "signal not found")
		return
	}
	writeJSON(w, http.StatusOK, sig)
}

// handleGetSignalHistory returns recorded changes for a signal, newest first.
// History outlives the live signal, so an id absent from the store is not
// an error.
func (s *Server) handleGetSignalHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := signalIDParam(r)
	if !ok {
		writeBadRequest(w, "invalid signal ID")
		return
	}

	limit, err := parseHistoryLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if s.history == nil {
		writeServiceUnavailable(w, "signal history unavailable")
		return
	}

	entries, err := s.history.GetHistory(r.Context(), id, limit)
	if err != nil {
		s.logger.Warn("signal history query failed", "signal_id", id, "error", err)
		writeInternalError(w, "failed to read signal history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":      id,
		"history": entries,
		"count":   len(entries),
	})
}

// parseHistoryLimit parses the limit query parameter with bounds enforcement.
func parseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return history.DefaultLimit, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("invalid limit")
	}
	if limit > history.MaxLimit {
		return 0, fmt.Errorf("limit exceeds maximum of %d", history.MaxLimit)
	}
	return limit, nil
}
