package adapter

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/signalhub/internal/infrastructure/config"
)

// Logger defines the logging interface used by adapters.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NoopLogger is a logger that does nothing.
type NoopLogger struct{}

func (NoopLogger) Debug(string, ...any) {}
func (NoopLogger) Info(string, ...any)  {}
func (NoopLogger) Warn(string, ...any)  {}
func (NoopLogger) Error(string, ...any) {}

// Deps carries shared collaborators handed to every factory.
type Deps struct {
	// Logger receives adapter logs. Nil means no logging.
	Logger Logger

	// HTTPClient is used by HTTP-based adapters. Nil means a client with
	// Timeout set to OperationTimeout.
	HTTPClient *http.Client

	// OperationTimeout bounds single upstream requests.
	OperationTimeout time.Duration
}

// LoggerOrNoop returns d.Logger or a no-op logger.
func (d Deps) LoggerOrNoop() Logger {
	if d.Logger == nil {
		return NoopLogger{}
	}
	return d.Logger
}

// Client returns d.HTTPClient or a new client bounded by OperationTimeout.
// Streaming adapters should not use the bounded client for long-lived
// requests; see StreamingClient.
func (d Deps) Client() *http.Client {
	if d.HTTPClient != nil {
		return d.HTTPClient
	}
	return &http.Client{Timeout: d.OperationTimeout}
}

// StreamingClient returns a client without an overall timeout, sharing
// the transport of d.HTTPClient when one is set.
func (d Deps) StreamingClient() *http.Client {
	if d.HTTPClient != nil {
		return &http.Client{Transport: d.HTTPClient.Transport}
	}
	return &http.Client{}
}

// Factory builds an Adapter from its configuration.
// It validates connection parameters and returns ErrInvalidConfig for
// problems; it must not contact the upstream.
type Factory func(cfg config.AdapterConfig, deps Deps) (Adapter, error)

// Registry maps adapter type strings to factories.
//
// A Registry is built explicitly at process start and passed to the
// supervisor. All methods are thread-safe.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	deps      Deps
}

// NewRegistry creates an empty registry whose factories receive deps.
func NewRegistry(deps Deps) *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		deps:      deps,
	}
}

// Register adds a factory for adapterType.
// Returns ErrDuplicateType if the type is already registered.
func (r *Registry) Register(adapterType string, f Factory) error {
	if adapterType == "" || f == nil {
		return fmt.Errorf("%w: empty type or nil factory", ErrInvalidConfig)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[adapterType]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateType, adapterType)
	}
	r.factories[adapterType] = f
	return nil
}

// Types returns the registered types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Build resolves cfg.Type and constructs the adapter.
//
// Returns:
//   - Adapter: the constructed, not yet connected adapter
//   - error: ErrUnknownType for unregistered types, or the factory's error
func (r *Registry) Build(cfg config.AdapterConfig) (Adapter, error) {
	r.mu.RLock()
	f, ok := r.factories[cfg.Type]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q (adapter %s)", ErrUnknownType, cfg.Type, cfg.Name)
	}

	a, err := f(cfg, r.deps)
	if err != nil {
		return nil, fmt.Errorf("building adapter %s: %w", cfg.Name, err)
	}
	return a, nil
}
