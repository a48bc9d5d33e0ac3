package history

import (
	"context"
	"time"

	"github.com/nerrad567/signalhub/internal/signal"
)

// Recorder defaults.
const (
	DefaultRetention     = 7 * 24 * time.Hour
	DefaultPruneInterval = time.Hour

	// writeTimeout bounds each insert and prune statement.
	writeTimeout = 5 * time.Second

	// drainTimeout bounds recording of buffered signals after cancellation.
	drainTimeout = 5 * time.Second
)

// Logger is the logging surface the recorder needs.
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

// Observer receives the outcome of each history write.
// *metrics.Collector satisfies it.
type Observer interface {
	SinkWrite(sink string, err error)
}

type noopObserver struct{}

func (noopObserver) SinkWrite(string, error) {}

// sinkName labels history writes in metrics and logs.
const sinkName = "history"

// RecorderConfig tunes retention for a Recorder.
type RecorderConfig struct {
	// Retention is how long rows are kept. Default: 168h
	Retention time.Duration

	// PruneInterval is how often rows older than Retention are deleted.
	// Default: 1h
	PruneInterval time.Duration
}

// Recorder writes store notifications into a Repository and prunes it.
type Recorder struct {
	repo         *Repository
	cfg          RecorderConfig
	logger       Logger
	observer     Observer
	drainTimeout time.Duration
}

// NewRecorder creates a recorder. Zero config fields take their defaults.
func NewRecorder(repo *Repository, cfg RecorderConfig) *Recorder {
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.PruneInterval <= 0 {
		cfg.PruneInterval = DefaultPruneInterval
	}
	return &Recorder{
		repo:         repo,
		cfg:          cfg,
		logger:       noopLogger{},
		observer:     noopObserver{},
		drainTimeout: drainTimeout,
	}
}

// SetLogger sets the logger. Must be called before Run.
func (r *Recorder) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// SetObserver sets the write observer. Must be called before Run.
func (r *Recorder) SetObserver(o Observer) {
	if o != nil {
		r.observer = o
	}
}

// Run records every signal received on sigs until sigs is closed, pruning
// once at start and then every PruneInterval. Write errors are logged and
// never stop the loop. After ctx is cancelled, signals still buffered in
// sigs are recorded under a fresh bounded context until sigs closes.
func (r *Recorder) Run(ctx context.Context, sigs <-chan signal.Signal) {
	ticker := time.NewTicker(r.cfg.PruneInterval)
	defer ticker.Stop()

	r.prune(ctx)
	for {
		select {
		case <-ctx.Done():
			r.drain(sigs)
			return
		case sig, ok := <-sigs:
			if !ok {
				return
			}
			if ctx.Err() != nil {
				r.drain(sigs, sig)
				return
			}
			r.record(ctx, sig)
		case <-ticker.C:
			r.prune(ctx)
		}
	}
}

// drain records pending and then what is left in sigs after cancellation.
func (r *Recorder) drain(sigs <-chan signal.Signal, pending ...signal.Signal) {
	ctx, cancel := context.WithTimeout(context.Background(), r.drainTimeout)
	defer cancel()

	for _, sig := range pending {
		r.record(ctx, sig)
	}
	n := len(pending)
	for {
		select {
		case sig, ok := <-sigs:
			if !ok {
				if n > 0 {
					r.logger.Debug("signal history drained", "signals", n)
				}
				return
			}
			r.record(ctx, sig)
			n++
		case <-ctx.Done():
			r.logger.Warn("signal history drain timed out", "signals", n)
			return
		}
	}
}

func (r *Recorder) record(ctx context.Context, sig signal.Signal) {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	err := r.repo.Record(wctx, sig)
	r.observer.SinkWrite(sinkName, err)
	if err != nil && ctx.Err() == nil {
		r.logger.Warn("recording signal history failed", "signal_id", sig.ID, "error", err)
	}
}

func (r *Recorder) prune(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	n, err := r.repo.Prune(pctx, r.cfg.Retention)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Warn("pruning signal history failed", "error", err)
		}
		return
	}
	if n > 0 {
		r.logger.Debug("pruned signal history", "rows", n, "retention", r.cfg.Retention)
	}
}
