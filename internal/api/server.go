package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/signalhub/internal/history"
	"github.com/nerrad567/signalhub/internal/infrastructure/config"
	"github.com/nerrad567/signalhub/internal/infrastructure/logging"
	"github.com/nerrad567/signalhub/internal/lifecycle"
	"github.com/nerrad567/signalhub/internal/signal"
	"github.com/nerrad567/signalhub/internal/store"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// SignalReader is the read side of the Signal Store. *store.Store satisfies it.
type SignalReader interface {
	Get(id string) (signal.Signal, bool)
	GetAll() map[string]signal.Signal
	Subscribe(ctx context.Context) *store.Subscription
	Len() int
	SubscriberCount() int
}

// AdapterStatus reports adapter lifecycle state. *supervisor.Supervisor satisfies it.
type AdapterStatus interface {
	States() []lifecycle.State
	State(name string) (lifecycle.State, bool)
}

// HistoryReader serves recorded signal history. *history.Repository satisfies it.
type HistoryReader interface {
	GetHistory(ctx context.Context, id string, limit int) ([]history.Entry, error)
}

// PoolStats reports connection pool statistics. *database.DB satisfies it.
type PoolStats interface {
	Stats() sql.DBStats
}

// BrokerStatus reports MQTT connection state. *mqtt.Client satisfies it.
type BrokerStatus interface {
	IsConnected() bool
	SubscriptionCount() int
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	Signals  SignalReader
	Adapters AdapterStatus
	History  HistoryReader // optional; history endpoint returns 503 without it
	Metrics  http.Handler  // optional; served at /metrics
	Database PoolStats     // optional; reported by /api/v1/system
	MQTT     BrokerStatus  // optional; reported by /api/v1/system
	Version  string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	signals   SignalReader
	adapters  AdapterStatus
	history   HistoryReader
	metrics   http.Handler
	db        PoolStats
	mqtt      BrokerStatus
	version   string
	startTime time.Time

	server   *http.Server
	listener net.Listener
	hub      *Hub
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, signal reader, adapter status)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Signals == nil {
		return nil, fmt.Errorf("signal reader is required")
	}
	if deps.Adapters == nil {
		return nil, fmt.Errorf("adapter status is required")
	}

	return &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		signals:   deps.Signals,
		adapters:  deps.Adapters,
		history:   deps.History,
		metrics:   deps.Metrics,
		db:        deps.Database,
		mqtt:      deps.MQTT,
		version:   deps.Version,
		startTime: time.Now(),
		hub:       NewHub(deps.WS, deps.Logger),
	}, nil
}

// Start binds the listener and serves in the background.
//
// It starts the WebSocket hub and the store relay that fans signal changes
// out to WebSocket clients. The server can be stopped with Close().
//
// Parameters:
//   - ctx: Parent context for the hub and relay goroutines
//
// Returns:
//   - error: If the listener cannot be bound (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding API listener: %w", err)
	}
	s.listener = ln

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.hub.Run(srvCtx)
	go s.relaySignals(srvCtx)

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
		BaseContext:       func(net.Listener) context.Context { return srvCtx },
	}

	go func() {
		defer close(s.done)
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", ln.Addr().String(),
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", ln.Addr().String())
			err = s.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It cancels SSE streams and WebSocket clients, then waits up to 10
// seconds for in-flight requests to complete.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancels the hub, the relay and every request context (SSE streams).
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	<-s.done
	return nil
}

// HealthCheck verifies the API server is running.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}

// relaySignals fans store notifications out to WebSocket subscribers.
func (s *Server) relaySignals(ctx context.Context) {
	sub := s.signals.Subscribe(ctx)
	defer sub.Close()

	for sig := range sub.C {
		s.hub.BroadcastSignal(sig)
	}
}
