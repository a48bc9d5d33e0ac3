// Package adaptertest provides a scriptable in-memory Adapter for tests of
// packages that drive adapters (lifecycle, supervisor, api).
package adaptertest

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/signalhub/internal/adapter"
	"github.com/nerrad567/signalhub/internal/signal"
)

// Type is the adapter type reported by fake adapters.
const Type = "fake"

// FetchFunc produces one snapshot result.
type FetchFunc func(ctx context.Context) (map[string]signal.Signal, error)

// Adapter is a scriptable adapter.Adapter.
//
// Snapshot results are consumed in order from the queue; when the queue is
// empty the last result is repeated. Every successful SubscribeEvents call
// hands the new Stream to the Streams channel so the test can drive it.
type Adapter struct {
	adapter.Identity

	mu            sync.Mutex
	fetchQueue    []FetchFunc
	lastFetch     FetchFunc
	subscribeErrs []error

	fetchCalls     atomic.Int32
	subscribeCalls atomic.Int32
	closeCalls     atomic.Int32
	connected      atomic.Bool

	// Streams receives every stream opened by SubscribeEvents.
	Streams chan *Stream
}

// New creates a fake adapter that is connected and returns an empty snapshot.
func New(name, prefix string) *Adapter {
	a := &Adapter{
		Identity: adapter.NewIdentity(name, Type, prefix),
		lastFetch: func(context.Context) (map[string]signal.Signal, error) {
			return map[string]signal.Signal{}, nil
		},
		Streams: make(chan *Stream, 16),
	}
	a.connected.Store(true)
	return a
}

// QueueSnapshot appends a successful snapshot result.
func (a *Adapter) QueueSnapshot(signals ...signal.Signal) *Adapter {
	snap := make(map[string]signal.Signal, len(signals))
	for _, s := range signals {
		snap[s.ID] = s
	}
	return a.QueueFetch(func(context.Context) (map[string]signal.Signal, error) {
		out := make(map[string]signal.Signal, len(snap))
		for k, v := range snap {
			out[k] = v
		}
		return out, nil
	})
}

// QueueFetchError appends a failing snapshot result.
func (a *Adapter) QueueFetchError(err error) *Adapter {
	return a.QueueFetch(func(context.Context) (map[string]signal.Signal, error) {
		return nil, err
	})
}

// QueueFetch appends an arbitrary snapshot behaviour.
func (a *Adapter) QueueFetch(f FetchFunc) *Adapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fetchQueue = append(a.fetchQueue, f)
	return a
}

// QueueSubscribeError makes the next SubscribeEvents call fail with err.
func (a *Adapter) QueueSubscribeError(err error) *Adapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.subscribeErrs = append(a.subscribeErrs, err)
	return a
}

// SetConnected sets the IsConnected result.
func (a *Adapter) SetConnected(v bool) { a.connected.Store(v) }

// FetchCalls returns how many times FetchSignals was called.
func (a *Adapter) FetchCalls() int { return int(a.fetchCalls.Load()) }

// SubscribeCalls returns how many times SubscribeEvents was called.
func (a *Adapter) SubscribeCalls() int { return int(a.subscribeCalls.Load()) }

// CloseCalls returns how many times Close was called.
func (a *Adapter) CloseCalls() int { return int(a.closeCalls.Load()) }

// FetchSignals implements adapter.Adapter.
func (a *Adapter) FetchSignals(ctx context.Context) (map[string]signal.Signal, error) {
	a.fetchCalls.Add(1)

	a.mu.Lock()
	f := a.lastFetch
	if len(a.fetchQueue) > 0 {
		f = a.fetchQueue[0]
		a.fetchQueue = a.fetchQueue[1:]
		a.lastFetch = f
	}
	a.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f(ctx)
}

// SubscribeEvents implements adapter.Adapter.
func (a *Adapter) SubscribeEvents(ctx context.Context) (adapter.EventStream, error) {
	a.subscribeCalls.Add(1)

	a.mu.Lock()
	var err error
	if len(a.subscribeErrs) > 0 {
		err = a.subscribeErrs[0]
		a.subscribeErrs = a.subscribeErrs[1:]
	}
	a.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := NewStream()
	select {
	case a.Streams <- s:
	default:
	}
	return s, nil
}

// IsConnected implements adapter.Adapter.
func (a *Adapter) IsConnected() bool { return a.connected.Load() }

// Close implements adapter.Adapter.
func (a *Adapter) Close() error {
	a.closeCalls.Add(1)
	a.connected.Store(false)
	return nil
}

type item struct {
	sig signal.Signal
	err error
}

// Stream is a scriptable adapter.EventStream.
type Stream struct {
	items     chan item
	closed    chan struct{}
	closeOnce sync.Once
}

// NewStream creates an open stream.
func NewStream() *Stream {
	return &Stream{
		items:  make(chan item, 64),
		closed: make(chan struct{}),
	}
}

// Emit queues an event. Returns false if the stream was closed.
func (s *Stream) Emit(sig signal.Signal) bool {
	return s.push(item{sig: sig})
}

// Fail queues a stream error.
func (s *Stream) Fail(err error) bool {
	return s.push(item{err: err})
}

// End queues a normal end of stream (io.EOF).
func (s *Stream) End() bool {
	return s.push(item{err: io.EOF})
}

// Closed is closed when the consumer closes the stream.
func (s *Stream) Closed() <-chan struct{} { return s.closed }

func (s *Stream) push(it item) bool {
	select {
	case <-s.closed:
		return false
	default:
	}
	select {
	case s.items <- it:
		return true
	case <-s.closed:
		return false
	}
}

// Next implements adapter.EventStream.
func (s *Stream) Next(ctx context.Context) (signal.Signal, error) {
	select {
	case it := <-s.items:
		return it.sig, it.err
	case <-s.closed:
		return signal.Signal{}, adapter.ErrClosed
	case <-ctx.Done():
		return signal.Signal{}, ctx.Err()
	}
}

// Close implements adapter.EventStream.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}
