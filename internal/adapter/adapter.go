package adapter

import (
	"context"

	"github.com/nerrad567/signalhub/internal/signal"
)

// Adapter is the capability contract consumed by the lifecycle manager.
//
// Implementations must be safe for concurrent use: IsConnected and Close
// may be called while FetchSignals or an EventStream is in flight.
type Adapter interface {
	// Name is unique across configured adapters and is stamped as each
	// signal's Source.
	Name() string

	// Type is the registry key, e.g. "openhab".
	Type() string

	// Prefix namespaces this adapter's signal ids.
	Prefix() string

	// FetchSignals returns the full current snapshot keyed by signal id.
	// Fails with ErrConnectivity if the upstream is unreachable.
	FetchSignals(ctx context.Context) (map[string]signal.Signal, error)

	// SubscribeEvents opens a new live event stream. Each call opens a
	// fresh stream; the previous one should already be closed.
	SubscribeEvents(ctx context.Context) (EventStream, error)

	// IsConnected is a best-effort liveness probe.
	IsConnected() bool

	// Close releases adapter resources. Idempotent.
	Close() error
}

// EventStream is a lazy sequence of live signal updates.
type EventStream interface {
	// Next blocks until the next event. It returns io.EOF when the upstream
	// ends the stream normally, an ErrConnectivity or ErrProtocol wrapped
	// error on failure, and ctx.Err() when ctx is cancelled.
	Next(ctx context.Context) (signal.Signal, error)

	// Close releases the stream. Idempotent; unblocks a pending Next.
	Close() error
}

// Identity holds the immutable identity fields shared by all adapters.
// Embed it to satisfy Name, Type and Prefix.
type Identity struct {
	name        string
	adapterType string
	prefix      string
}

// NewIdentity creates an Identity.
func NewIdentity(name, adapterType, prefix string) Identity {
	return Identity{name: name, adapterType: adapterType, prefix: prefix}
}

// Name returns the adapter name.
func (i Identity) Name() string { return i.name }

// Type returns the adapter type.
func (i Identity) Type() string { return i.adapterType }

// Prefix returns the signal id prefix.
func (i Identity) Prefix() string { return i.prefix }

// SignalID builds a namespaced id for a platform-local name.
func (i Identity) SignalID(local string) string {
	return signal.ID(i.prefix, local)
}
