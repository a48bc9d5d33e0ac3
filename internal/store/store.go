package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/signalhub/internal/signal"
)

// DefaultBufferSize is the per-subscriber delivery buffer used when
// Config.BufferSize is not positive.
const DefaultBufferSize = 256

// Logger defines the logging interface used by the Store.
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

// Observer receives store activity counters.
// It is satisfied by *metrics.Collector; nil means no observation.
// Methods run with the store lock held and must not call back into the store.
type Observer interface {
	// SignalPublished is called once per accepted change.
	SignalPublished(source string)

	// NotificationDropped is called when a subscriber buffer overflows
	// and its oldest pending notification is discarded.
	NotificationDropped()

	// SubscribersChanged reports the current subscriber count.
	SubscribersChanged(count int)
}

type noopObserver struct{}

func (noopObserver) SignalPublished(string) {}
func (noopObserver) NotificationDropped()   {}
func (noopObserver) SubscribersChanged(int) {}

// Config holds store settings.
type Config struct {
	// BufferSize is the bounded delivery buffer per subscriber.
	BufferSize int
}

// Store is the in-memory source of truth for current signal state.
//
// Writers (lifecycle managers) call Publish, SetMany and Reconcile.
// Readers call Get, GetAll and Subscribe. All methods are safe for
// concurrent use; callers never need external locking.
//
// Notifications are delivered while the write lock is held, so every
// subscriber observes changes in the order the store accepted them.
// Delivery never blocks: when a subscriber's buffer is full the oldest
// pending notification for that subscriber is discarded (drop-oldest).
type Store struct {
	mu      sync.RWMutex
	signals map[string]signal.Signal
	subs    map[string]*Subscription

	bufferSize int
	now        func() time.Time

	logger   Logger
	observer Observer
}

// New creates an empty store.
func New(cfg Config) *Store {
	size := cfg.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Store{
		signals:    make(map[string]signal.Signal),
		subs:       make(map[string]*Subscription),
		bufferSize: size,
		now:        time.Now,
		logger:     noopLogger{},
		observer:   noopObserver{},
	}
}

// SetLogger sets the logger for the store.
// Must be called before the store is shared.
func (s *Store) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// SetObserver sets the activity observer (typically Prometheus metrics).
// Must be called before the store is shared.
func (s *Store) SetObserver(o Observer) {
	if o == nil {
		o = noopObserver{}
	}
	s.observer = o
}

// Get returns the latest known value for id.
func (s *Store) Get(id string) (signal.Signal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sig, ok := s.signals[id]
	return sig, ok
}

// GetAll returns a point-in-time copy of every signal, keyed by id.
// The copy is taken under one read lock, so no batch is ever seen half-applied.
func (s *Store) GetAll() map[string]signal.Signal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]signal.Signal, len(s.signals))
	for id, sig := range s.signals {
		out[id] = sig
	}
	return out
}

// GetBySource returns a copy of the signals owned by source.
func (s *Store) GetBySource(source string) map[string]signal.Signal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]signal.Signal)
	for id, sig := range s.signals {
		if sig.Source == source {
			out[id] = sig
		}
	}
	return out
}

// Len returns the number of signals held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.signals)
}

// SubscriberCount returns the number of open subscriptions.
func (s *Store) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Publish upserts a single signal and notifies subscribers when its
// value, unit or timestamp changed. It reports whether a change was accepted.
//
// An update for an id owned by a different source is ignored. A timestamp
// older than the stored one is clamped so per-id timestamps never go backwards.
func (s *Store) Publish(sig signal.Signal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked(sig)
}

// SetMany merges a batch of signals atomically. Readers see either none
// or all of the batch. It returns the number of signals that changed.
func (s *Store) SetMany(signals []signal.Signal) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	for _, sig := range signals {
		if s.applyLocked(sig) {
			changed++
		}
	}
	return changed
}

// Reconcile replaces the full signal set of one source.
//
// Every signal in the snapshot is upserted with Source forced to source,
// and signals previously owned by source that are absent from the
// snapshot are removed, all within one critical section.
//
// A snapshot entry whose value and unit match the stored signal keeps the
// stored timestamp, so resyncing an unchanged source notifies nobody.
// Removals are not notified; consumers see them through Get and GetAll.
//
// Returns:
//   - changed: signals added or modified (each notified to subscribers)
//   - removed: stale signals of source that were deleted
func (s *Store) Reconcile(source string, snapshot []signal.Signal) (changed, removed int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(snapshot))
	for _, sig := range snapshot {
		sig.Source = source
		seen[sig.ID] = struct{}{}
		if cur, ok := s.signals[sig.ID]; ok && cur.Source == source &&
			cur.Value.Equal(sig.Value) && cur.Unit == sig.Unit {
			continue
		}
		if s.applyLocked(sig) {
			changed++
		}
	}

	for id, cur := range s.signals {
		if cur.Source != source {
			continue
		}
		if _, ok := seen[id]; !ok {
			delete(s.signals, id)
			removed++
		}
	}

	if removed > 0 {
		s.logger.Debug("removed stale signals", "source", source, "count", removed)
	}
	return changed, removed
}

// applyLocked upserts sig and fans it out. Caller holds s.mu for writing.
func (s *Store) applyLocked(sig signal.Signal) bool {
	if sig.ID == "" || !sig.Value.IsValid() {
		s.logger.Warn("rejecting invalid signal", "id", sig.ID, "source", sig.Source)
		return false
	}
	if sig.Timestamp.IsZero() {
		sig.Timestamp = s.now()
	}

	if cur, ok := s.signals[sig.ID]; ok {
		if cur.Source != sig.Source {
			s.logger.Warn("ignoring update for signal owned by another source",
				"id", sig.ID, "owner", cur.Source, "source", sig.Source)
			return false
		}
		if sig.Timestamp.Before(cur.Timestamp) {
			sig.Timestamp = cur.Timestamp
		}
		if cur.Equal(sig) {
			return false
		}
	}

	s.signals[sig.ID] = sig
	s.observer.SignalPublished(sig.Source)

	for _, sub := range s.subs {
		if sub.deliver(sig) {
			s.observer.NotificationDropped()
		}
	}
	return true
}

// Subscribe registers a new consumer. The subscriber receives every change
// accepted after this call, with no replay. The subscription is released
// when ctx is cancelled or Close is called, whichever comes first.
func (s *Store) Subscribe(ctx context.Context) *Subscription {
	ch := make(chan signal.Signal, s.bufferSize)
	sub := &Subscription{
		ID:    uuid.NewString(),
		C:     ch,
		ch:    ch,
		store: s,
	}

	s.mu.Lock()
	s.subs[sub.ID] = sub
	count := len(s.subs)
	s.observer.SubscribersChanged(count)
	s.mu.Unlock()

	s.logger.Debug("subscriber added", "subscription_id", sub.ID, "subscribers", count)

	sub.setStop(context.AfterFunc(ctx, sub.Close))
	return sub
}

// unsubscribe removes sub and closes its channel under the write lock so
// no delivery can race with the close.
func (s *Store) unsubscribe(sub *Subscription) {
	s.mu.Lock()
	delete(s.subs, sub.ID)
	close(sub.ch)
	count := len(s.subs)
	s.observer.SubscribersChanged(count)
	s.mu.Unlock()

	s.logger.Debug("subscriber removed",
		"subscription_id", sub.ID,
		"subscribers", count,
		"dropped", sub.Dropped(),
	)
}
