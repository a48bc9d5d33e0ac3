package sink

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/signalhub/internal/signal"
)

// DefaultDrainTimeout bounds how long Run keeps handling buffered signals
// after its context is cancelled.
const DefaultDrainTimeout = 5 * time.Second

// ErrSkipped is returned by a Handler that deliberately ignores a signal.
// The Forwarder neither logs nor counts it.
var ErrSkipped = errors.New("sink: signal skipped")

// Logger is the logging surface sinks need.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Observer receives the outcome of each sink write.
// *metrics.Collector satisfies it.
type Observer interface {
	SinkWrite(sink string, err error)
}

type noopObserver struct{}

func (noopObserver) SinkWrite(string, error) {}

// Handler delivers one signal to an external system.
type Handler interface {
	Handle(ctx context.Context, sig signal.Signal) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, sig signal.Signal) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, sig signal.Signal) error {
	return f(ctx, sig)
}

// Forwarder drains a notification channel into a Handler.
type Forwarder struct {
	name         string
	handler      Handler
	logger       Logger
	observer     Observer
	drainTimeout time.Duration
}

// NewForwarder creates a forwarder. name labels logs and metrics.
func NewForwarder(name string, handler Handler) *Forwarder {
	return &Forwarder{
		name:         name,
		handler:      handler,
		logger:       noopLogger{},
		observer:     noopObserver{},
		drainTimeout: DefaultDrainTimeout,
	}
}

// Name returns the sink name.
func (f *Forwarder) Name() string { return f.name }

// SetLogger sets the logger. Must be called before Run.
func (f *Forwarder) SetLogger(logger Logger) {
	if logger != nil {
		f.logger = logger
	}
}

// SetObserver sets the write observer. Must be called before Run.
func (f *Forwarder) SetObserver(o Observer) {
	if o != nil {
		f.observer = o
	}
}

// Run hands every signal received on sigs to the handler until sigs is
// closed. Once ctx is cancelled the signals still buffered in sigs are
// handled under a fresh context, for at most DefaultDrainTimeout, until
// sigs closes. A store subscription bound to the same ctx closes on its own.
func (f *Forwarder) Run(ctx context.Context, sigs <-chan signal.Signal) {
	f.logger.Debug("sink forwarder started", "sink", f.name)
	defer f.logger.Debug("sink forwarder stopped", "sink", f.name)

	for {
		select {
		case <-ctx.Done():
			f.drain(sigs)
			return
		case sig, ok := <-sigs:
			if !ok {
				return
			}
			if ctx.Err() != nil {
				f.drain(sigs, sig)
				return
			}
			f.forward(ctx, sig)
		}
	}
}

// drain handles pending and then what is left in sigs after cancellation.
func (f *Forwarder) drain(sigs <-chan signal.Signal, pending ...signal.Signal) {
	ctx, cancel := context.WithTimeout(context.Background(), f.drainTimeout)
	defer cancel()

	for _, sig := range pending {
		f.forward(ctx, sig)
	}
	n := len(pending)
	for {
		select {
		case sig, ok := <-sigs:
			if !ok {
				if n > 0 {
					f.logger.Debug("sink drained", "sink", f.name, "signals", n)
				}
				return
			}
			f.forward(ctx, sig)
			n++
		case <-ctx.Done():
			f.logger.Warn("sink drain timed out", "sink", f.name, "signals", n)
			return
		}
	}
}

func (f *Forwarder) forward(ctx context.Context, sig signal.Signal) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("sink handler panicked", "sink", f.name, "signal_id", sig.ID, "panic", r)
		}
	}()

	err := f.handler.Handle(ctx, sig)
	if errors.Is(err, ErrSkipped) {
		return
	}
	f.observer.SinkWrite(f.name, err)
	if err != nil {
		f.logger.Warn("sink write failed", "sink", f.name, "signal_id", sig.ID, "error", err)
	}
}
