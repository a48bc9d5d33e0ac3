package adapter

import "errors"

// Domain errors for adapters.
var (
	// ErrConnectivity is returned when the upstream platform is unreachable,
	// times out, or drops the connection. Recovered by retry.
	ErrConnectivity = errors.New("adapter: connectivity failure")

	// ErrProtocol is returned when an otherwise-connected upstream sends a
	// payload that cannot be translated into a signal.
	ErrProtocol = errors.New("adapter: protocol error")

	// ErrUnknownType is returned by the registry for an unregistered type.
	ErrUnknownType = errors.New("adapter: unknown adapter type")

	// ErrInvalidConfig is returned when an adapter's connection parameters
	// are missing or malformed.
	ErrInvalidConfig = errors.New("adapter: invalid configuration")

	// ErrClosed is returned by operations on a closed adapter or stream.
	ErrClosed = errors.New("adapter: closed")

	// ErrDuplicateType is returned when a type is registered twice.
	ErrDuplicateType = errors.New("adapter: type already registered")
)
