package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/signalhub/internal/adapter"
	"github.com/nerrad567/signalhub/internal/infrastructure/config"
	"github.com/nerrad567/signalhub/internal/lifecycle"
)

// ErrDuplicateAdapter is returned when two adapters share a name.
var ErrDuplicateAdapter = errors.New("supervisor: duplicate adapter name")

// Logger defines the logging interface used by the Supervisor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options holds Supervisor collaborators.
type Options struct {
	// Registry resolves adapter types. Required.
	Registry *adapter.Registry

	// Adapters is the ordered adapter list; disabled entries are skipped.
	Adapters []config.AdapterConfig

	// Lifecycle supplies default retry policy and timeouts.
	Lifecycle config.LifecycleConfig

	// Store receives snapshots and events. Required.
	Store lifecycle.Writer

	// Observer receives lifecycle activity (metrics). Optional.
	Observer lifecycle.Observer

	// Logger is the supervisor's own logger. Optional.
	Logger Logger

	// LoggerFor returns a per-adapter logger. Optional; defaults to Logger.
	LoggerFor func(name, adapterType string) lifecycle.Logger

	// Wait overrides the lifecycle backoff sleep (tests). Optional.
	Wait lifecycle.WaitFunc
}

// entry tracks one managed adapter.
type entry struct {
	mgr     *lifecycle.Manager
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
	stopped bool
}

// Supervisor owns the lifecycle managers keyed by adapter name.
//
// Thread Safety: All methods are safe for concurrent use.
type Supervisor struct {
	logger  Logger
	order   []string
	entries map[string]*entry

	mu      sync.Mutex
	baseCtx context.Context
}

// New resolves every enabled adapter and builds its lifecycle manager.
//
// Returns an error wrapping adapter.ErrUnknownType, adapter.ErrInvalidConfig,
// lifecycle.ErrInvalidRetryPolicy or ErrDuplicateAdapter; in that case no
// manager has started and every adapter built so far has been closed.
func New(opts Options) (*Supervisor, error) {
	if opts.Registry == nil || opts.Store == nil {
		return nil, fmt.Errorf("%w: registry and store are required", lifecycle.ErrInvalidOptions)
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	loggerFor := opts.LoggerFor
	if loggerFor == nil {
		loggerFor = func(string, string) lifecycle.Logger { return logger }
	}

	s := &Supervisor{
		logger:  logger,
		entries: make(map[string]*entry),
	}

	var built []adapter.Adapter
	abort := func(err error) (*Supervisor, error) {
		for _, a := range built {
			if cerr := a.Close(); cerr != nil {
				logger.Warn("closing adapter after failed startup", "adapter", a.Name(), "error", cerr)
			}
		}
		return nil, err
	}

	for _, cfg := range opts.Adapters {
		if !cfg.IsEnabled() {
			logger.Info("adapter disabled, skipping", "adapter", cfg.Name, "type", cfg.Type)
			continue
		}
		if _, exists := s.entries[cfg.Name]; exists {
			return abort(fmt.Errorf("%w: %s", ErrDuplicateAdapter, cfg.Name))
		}

		a, err := opts.Registry.Build(cfg)
		if err != nil {
			return abort(err)
		}
		built = append(built, a)

		mgr, err := lifecycle.New(lifecycle.Options{
			Adapter:          a,
			Store:            opts.Store,
			Retry:            lifecycle.PolicyFromConfig(cfg.EffectiveRetry(opts.Lifecycle)),
			OperationTimeout: opts.Lifecycle.OperationTimeout,
			ProbeInterval:    opts.Lifecycle.ProbeInterval,
			Logger:           loggerFor(cfg.Name, cfg.Type),
			Observer:         opts.Observer,
			Wait:             opts.Wait,
		})
		if err != nil {
			return abort(err)
		}

		s.entries[cfg.Name] = &entry{mgr: mgr, done: make(chan struct{})}
		s.order = append(s.order, cfg.Name)
	}

	logger.Info("adapters resolved", "count", len(s.order))
	return s, nil
}

// Names returns the managed adapter names in configuration order.
func (s *Supervisor) Names() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Start runs every manager that has not been started yet. Managers run
// until ctx is cancelled or Stop is called.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.baseCtx = ctx
	for _, name := range s.order {
		s.startLocked(name)
	}
	s.logger.Info("supervisor started", "adapters", len(s.order))
}

// StartAdapter starts one manager. Starting an unknown, running or stopped
// adapter is a no-op. Start must have been called first to supply the
// base context; otherwise context.Background is used.
func (s *Supervisor) StartAdapter(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startLocked(name)
}

func (s *Supervisor) startLocked(name string) {
	e, ok := s.entries[name]
	if !ok || e.started || e.stopped {
		return
	}
	base := s.baseCtx
	if base == nil {
		base = context.Background()
	}

	ctx, cancel := context.WithCancel(base)
	e.cancel = cancel
	e.started = true

	go func() {
		defer close(e.done)
		if err := e.mgr.Run(ctx); err != nil {
			s.logger.Error("adapter manager exited with error", "adapter", name, "error", err)
		}
	}()
}

// StopAdapter cancels one manager and waits for it to reach Closed,
// bounded by ctx. Stopping an unknown or never-started adapter is a no-op.
func (s *Supervisor) StopAdapter(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.entries[name]
	if !ok || !e.started {
		s.mu.Unlock()
		return nil
	}
	e.stopped = true
	e.cancel()
	s.mu.Unlock()

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stopping adapter %s: %w", name, ctx.Err())
	}
}

// Stop cancels every manager and waits, bounded by ctx, for all of them to
// reach Closed. Managers that never started have their adapter closed
// directly. Safe to call more than once.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	var waiting []string
	for _, name := range s.order {
		e := s.entries[name]
		e.stopped = true
		if e.started {
			e.cancel()
			waiting = append(waiting, name)
			continue
		}
		if err := e.mgr.Close(); err != nil {
			s.logger.Warn("closing unstarted adapter", "adapter", name, "error", err)
		}
	}
	s.mu.Unlock()

	var g errgroup.Group
	for _, name := range waiting {
		e := s.entries[name]
		g.Go(func() error {
			select {
			case <-e.done:
				return nil
			case <-ctx.Done():
				return fmt.Errorf("adapter %s did not close: %w", name, ctx.Err())
			}
		})
	}

	err := g.Wait()
	if err != nil {
		s.logger.Error("supervisor stop incomplete", "error", err)
		return err
	}
	s.logger.Info("supervisor stopped", "adapters", len(s.order))
	return nil
}

// States returns every adapter's lifecycle state in configuration order.
func (s *Supervisor) States() []lifecycle.State {
	out := make([]lifecycle.State, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.entries[name].mgr.State())
	}
	return out
}

// State returns one adapter's lifecycle state.
func (s *Supervisor) State(name string) (lifecycle.State, bool) {
	e, ok := s.entries[name]
	if !ok {
		return lifecycle.State{}, false
	}
	return e.mgr.State(), true
}
