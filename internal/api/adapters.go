package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/signalhub/internal/lifecycle"
)

// adapterView is the API shape of a lifecycle.State.
type adapterView struct {
	Name                  string    `json:"name"`
	Type                  string    `json:"type"`
	Prefix                string    `json:"prefix"`
	Phase                 string    `json:"phase"`
	Healthy               bool      `json:"healthy"`
	RetryCount            int       `json:"retry_count"`
	NextRetryDelaySeconds float64   `json:"next_retry_delay_seconds"`
	LastError             string    `json:"last_error,omitempty"`
	LastConnected         time.Time `json:"last_connected,omitzero"`
	PhaseSince            time.Time `json:"phase_since"`
	SignalsLoaded         int       `json:"signals_loaded"`
	EventsReceived        uint64    `json:"events_received"`
}

func newAdapterView(st lifecycle.State) adapterView {
	return adapterView{
		Name:                  st.Name,
		Type:                  st.Type,
		Prefix:                st.Prefix,
		Phase:                 st.Phase.String(),
		Healthy:               st.Phase.Healthy(),
		RetryCount:            st.RetryCount,
		NextRetryDelaySeconds: st.NextRetryDelay.Seconds(),
		LastError:             st.LastError,
		LastConnected:         st.LastConnected,
		PhaseSince:            st.PhaseSince,
		SignalsLoaded:         st.SignalsLoaded,
		EventsReceived:        st.EventsReceived,
	}
}

// handleListAdapters returns every adapter's lifecycle state in config order.
func (s *Server) handleListAdapters(w http.ResponseWriter, _ *http.Request) {
	states := s.adapters.States()
	out := make([]adapterView, 0, len(states))
	for _, st := range states {
		out = append(out, newAdapterView(st))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"adapters": out,
		"count":    len(out),
	})
}

// handleGetAdapter returns one adapter's lifecycle state.
func (s *Server) handleGetAdapter(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	st, ok := s.adapters.State(name)
	if !ok {
		writeNotFound(w, "adapter not found")
		return
	}
	writeJSON(w, http.StatusOK, newAdapterView(st))
}
