package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics is the /api/v1/system response.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     WSMetrics      `json:"websocket"`
	Store         StoreMetrics   `json:"store"`
	Adapters      map[string]int `json:"adapters_by_phase"`
	Database      *DBMetrics     `json:"database,omitempty"`
	MQTT          *MQTTMetrics   `json:"mqtt,omitempty"`
}

// DBMetrics contains history database pool statistics.
type DBMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// MQTTMetrics contains MQTT client state.
type MQTTMetrics struct {
	Connected     bool `json:"connected"`
	Subscriptions int  `json:"subscriptions"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// StoreMetrics contains Signal Store statistics.
type StoreMetrics struct {
	Signals     int `json:"signals"`
	Subscribers int `json:"subscribers"`
}

// handleSystem returns a JSON summary of runtime, store and adapter state.
// Prometheus scrapes /metrics instead.
func (s *Server) handleSystem(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	byPhase := make(map[string]int)
	for _, st := range s.adapters.States() {
		byPhase[st.Phase.String()]++
	}

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{ConnectedClients: s.hub.ClientCount()},
		Store: StoreMetrics{
			Signals:     s.signals.Len(),
			Subscribers: s.signals.SubscriberCount(),
		},
		Adapters: byPhase,
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = &DBMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}
	if s.mqtt != nil {
		metrics.MQTT = &MQTTMetrics{
			Connected:     s.mqtt.IsConnected(),
			Subscriptions: s.mqtt.SubscriptionCount(),
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
