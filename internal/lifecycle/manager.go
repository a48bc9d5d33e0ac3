package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/signalhub/internal/adapter"
	"github.com/nerrad567/signalhub/internal/signal"
)

// Manager defaults.
const (
	// DefaultOperationTimeout bounds adapter I/O when Options leaves it unset.
	DefaultOperationTimeout = 30 * time.Second
)

// Logger defines the logging interface used by the Manager.
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

// Writer is the part of the Signal Store a Manager writes to.
// It is satisfied by *store.Store.
type Writer interface {
	Reconcile(source string, snapshot []signal.Signal) (changed, removed int)
	Publish(sig signal.Signal) bool
}

// Observer receives lifecycle activity. Satisfied by *metrics.Collector.
type Observer interface {
	AdapterPhase(adapter, phase string)
	AdapterRetry(adapter string, delay time.Duration)
}

type noopObserver struct{}

func (noopObserver) AdapterPhase(string, string)         {}
func (noopObserver) AdapterRetry(string, time.Duration) {}

// WaitFunc blocks for d or until ctx is done, returning ctx.Err() in the
// latter case.
type WaitFunc func(ctx context.Context, d time.Duration) error

// Options holds Manager collaborators and settings.
type Options struct {
	Adapter adapter.Adapter
	Store   Writer

	// Retry is the backoff policy. Zero value means DefaultRetryPolicy.
	Retry RetryPolicy

	// OperationTimeout bounds FetchSignals, SubscribeEvents and Close.
	OperationTimeout time.Duration

	// ProbeInterval is how often IsConnected is polled while the stream is
	// open. Zero disables probing.
	ProbeInterval time.Duration

	Logger   Logger
	Observer Observer

	// Wait replaces the backoff sleep (tests). Default waits on a timer.
	Wait WaitFunc

	// Now replaces the clock (tests). Default time.Now.
	Now func() time.Time
}

// Manager drives one adapter through the lifecycle state machine.
//
// Run is the only writer of the manager's state; State may be called from
// any goroutine.
type Manager struct {
	adapter   adapter.Adapter
	store     Writer
	policy    RetryPolicy
	opTimeout time.Duration
	probe     time.Duration
	logger    Logger
	observer  Observer
	wait      WaitFunc
	now       func() time.Time

	// cur is the writer-owned state; published is what readers see.
	mu        sync.Mutex
	cur       State
	published atomic.Pointer[State]

	running   atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New creates a Manager in the Registered phase.
//
// Returns ErrInvalidOptions when Adapter or Store is nil, and
// ErrInvalidRetryPolicy when the policy does not validate.
func New(opts Options) (*Manager, error) {
	if opts.Adapter == nil || opts.Store == nil {
		return nil, fmt.Errorf("%w: adapter and store are required", ErrInvalidOptions)
	}
	if opts.Retry == (RetryPolicy{}) {
		opts.Retry = DefaultRetryPolicy()
	}
	if err := opts.Retry.Validate(); err != nil {
		return nil, fmt.Errorf("adapter %s: %w", opts.Adapter.Name(), err)
	}
	if opts.OperationTimeout <= 0 {
		opts.OperationTimeout = DefaultOperationTimeout
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}
	if opts.Wait == nil {
		opts.Wait = sleep
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	m := &Manager{
		adapter:   opts.Adapter,
		store:     opts.Store,
		policy:    opts.Retry,
		opTimeout: opts.OperationTimeout,
		probe:     opts.ProbeInterval,
		logger:    opts.Logger,
		observer:  opts.Observer,
		wait:      opts.Wait,
		now:       opts.Now,
		cur: State{
			Name:           opts.Adapter.Name(),
			Type:           opts.Adapter.Type(),
			Prefix:         opts.Adapter.Prefix(),
			Phase:          PhaseRegistered,
			NextRetryDelay: opts.Retry.InitialDelay,
			PhaseSince:     opts.Now(),
		},
	}
	m.publish()
	m.observer.AdapterPhase(m.cur.Name, PhaseRegistered.String())
	return m, nil
}

// Name returns the managed adapter's name.
func (m *Manager) Name() string { return m.adapter.Name() }

// Policy returns the manager's retry policy.
func (m *Manager) Policy() RetryPolicy { return m.policy }

// State returns a copy of the current lifecycle state.
func (m *Manager) State() State {
	return *m.published.Load()
}

// Run drives the state machine until ctx is cancelled, then closes the
// adapter exactly once and enters Closed. It returns nil on cancellation.
//
// Run may be called only once.
func (m *Manager) Run(ctx context.Context) error {
	if m.closed.Load() {
		return ErrManagerClosed
	}
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer m.Close() //nolint:errcheck // close error is logged

	m.logger.Info("adapter lifecycle starting",
		"initial_retry_delay", m.policy.InitialDelay,
		"max_retry_delay", m.policy.MaxDelay,
		"retry_backoff_factor", m.policy.BackoffFactor,
	)

	for {
		err := m.attempt(ctx)
		if ctx.Err() != nil {
			return nil
		}

		delay := m.fail(err)
		if werr := m.wait(ctx, delay); werr != nil || ctx.Err() != nil {
			return nil
		}

		m.update(func(s *State) {
			s.NextRetryDelay = m.policy.Next(delay)
		})
	}
}

// attempt runs Loading → Connected → Streaming once and returns the error
// that ended it.
func (m *Manager) attempt(ctx context.Context) error {
	m.setPhase(PhaseLoading)

	snapshot, err := await(ctx, m.opTimeout, m.adapter.FetchSignals, nil)
	if err != nil {
		return fmt.Errorf("loading snapshot: %w", err)
	}

	signals := m.normaliseSnapshot(snapshot)
	if err := ctx.Err(); err != nil {
		return err
	}
	changed, removed := m.store.Reconcile(m.adapter.Name(), signals)

	m.update(func(s *State) {
		s.RetryCount = 0
		s.NextRetryDelay = m.policy.InitialDelay
		s.LastError = ""
		s.LastConnected = m.now()
		s.SignalsLoaded = len(signals)
	})
	m.setPhase(PhaseConnected)
	m.logger.Info("adapter snapshot loaded",
		"signals", len(signals),
		"changed", changed,
		"removed", removed,
	)

	stream, err := await(ctx, m.opTimeout, m.adapter.SubscribeEvents, func(s adapter.EventStream) {
		_ = s.Close()
	})
	if err != nil {
		return fmt.Errorf("opening event stream: %w", err)
	}
	defer stream.Close() //nolint:errcheck // best effort

	return m.consume(ctx, stream)
}

// nextResult is one EventStream.Next outcome.
type nextResult struct {
	sig signal.Signal
	err error
}

// consume applies stream events to the store until the stream fails,
// ends, the liveness probe fails, or ctx is cancelled.
func (m *Manager) consume(ctx context.Context, stream adapter.EventStream) error {
	pumpCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan nextResult)
	go func() {
		for {
			sig, err := stream.Next(pumpCtx)
			select {
			case results <- nextResult{sig: sig, err: err}:
			case <-pumpCtx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	var probe <-chan time.Time
	if m.probe > 0 {
		ticker := time.NewTicker(m.probe)
		defer ticker.Stop()
		probe = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case r := <-results:
			if r.err != nil {
				if errors.Is(r.err, io.EOF) {
					return fmt.Errorf("%w: event stream ended", adapter.ErrConnectivity)
				}
				return fmt.Errorf("event stream: %w", r.err)
			}

			sig, err := m.normaliseEvent(r.sig)
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}

			if m.State().Phase != PhaseStreaming {
				m.setPhase(PhaseStreaming)
			}
			m.store.Publish(sig)
			m.update(func(s *State) { s.EventsReceived++ })

		case <-probe:
			if !m.adapter.IsConnected() {
				return fmt.Errorf("%w: liveness probe failed", adapter.ErrConnectivity)
			}
		}
	}
}

// normaliseSnapshot stamps Source and drops entries outside the adapter's
// prefix namespace.
func (m *Manager) normaliseSnapshot(snapshot map[string]signal.Signal) []signal.Signal {
	out := make([]signal.Signal, 0, len(snapshot))
	for key, sig := range snapshot {
		if sig.ID == "" {
			sig.ID = key
		}
		if !signal.HasPrefix(sig.ID, m.adapter.Prefix()) {
			m.logger.Warn("dropping snapshot signal outside adapter prefix", "id", sig.ID)
			continue
		}
		if !sig.Value.IsValid() {
			m.logger.Warn("dropping snapshot signal without value", "id", sig.ID)
			continue
		}
		sig.Source = m.adapter.Name()
		out = append(out, sig)
	}
	return out
}

// normaliseEvent validates a live event. Malformed events are protocol
// errors and are never forwarded.
func (m *Manager) normaliseEvent(sig signal.Signal) (signal.Signal, error) {
	if !signal.HasPrefix(sig.ID, m.adapter.Prefix()) {
		return signal.Signal{}, fmt.Errorf("%w: event id %q outside prefix %q",
			adapter.ErrProtocol, sig.ID, m.adapter.Prefix())
	}
	if !sig.Value.IsValid() {
		return signal.Signal{}, fmt.Errorf("%w: event %q has no value", adapter.ErrProtocol, sig.ID)
	}
	sig.Source = m.adapter.Name()
	return sig, nil
}

// fail records a failed attempt, enters RetryWait and returns the delay
// to wait before the next attempt.
func (m *Manager) fail(err error) time.Duration {
	var delay time.Duration
	m.update(func(s *State) {
		s.RetryCount++
		s.LastError = err.Error()
		delay = s.NextRetryDelay
	})
	m.setPhase(PhaseRetryWait)
	m.observer.AdapterRetry(m.adapter.Name(), delay)

	st := m.State()
	m.logger.Warn("adapter failed, retrying",
		"error", err,
		"retry_count", st.RetryCount,
		"retry_in", delay,
	)
	return delay
}

// Close releases the adapter exactly once and enters Closed.
// Safe to call on a manager that never ran and from multiple goroutines.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.closed.Store(true)

		_, err := await(context.Background(), m.opTimeout, func(context.Context) (struct{}, error) {
			return struct{}{}, m.adapter.Close()
		}, nil)
		if err != nil {
			m.closeErr = fmt.Errorf("closing adapter %s: %w", m.adapter.Name(), err)
			m.logger.Error("adapter close failed", "error", err)
		}

		m.setPhase(PhaseClosed)
		m.logger.Info("adapter lifecycle closed")
	})
	return m.closeErr
}

func (m *Manager) setPhase(p Phase) {
	changed := false
	m.update(func(s *State) {
		if s.Phase != p {
			s.Phase = p
			s.PhaseSince = m.now()
			changed = true
		}
	})
	if changed {
		m.observer.AdapterPhase(m.adapter.Name(), p.String())
		m.logger.Debug("adapter phase changed", "phase", p.String())
	}
}

// update applies fn to the writer-owned state and publishes a copy.
func (m *Manager) update(fn func(*State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.cur)
	m.publishLocked()
}

func (m *Manager) publish() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishLocked()
}

func (m *Manager) publishLocked() {
	snapshot := m.cur
	m.published.Store(&snapshot)
}

// await runs op with a timeout derived from ctx. If the deadline passes
// before op returns, await returns immediately; a late successful result
// is handed to discard so it can be released.
//
// Cancellation of ctx is returned as ctx.Err(); an expired timeout is an
// adapter.ErrConnectivity.
func await[T any](ctx context.Context, timeout time.Duration, op func(context.Context) (T, error), discard func(T)) (T, error) {
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := op(opCtx)
		done <- result{v: v, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && ctx.Err() != nil {
			var zero T
			return zero, ctx.Err()
		}
		return r.v, r.err
	case <-opCtx.Done():
		if discard != nil {
			go func() {
				if r := <-done; r.err == nil {
					discard(r.v)
				}
			}()
		}
		var zero T
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, fmt.Errorf("%w: operation timed out after %s", adapter.ErrConnectivity, timeout)
	}
}

// sleep is the default WaitFunc.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
