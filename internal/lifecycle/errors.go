package lifecycle

import "errors"

// Domain errors for the lifecycle package.
var (
	// ErrInvalidRetryPolicy is returned when retry parameters are unusable.
	ErrInvalidRetryPolicy = errors.New("lifecycle: invalid retry policy")

	// ErrInvalidOptions is returned when a Manager is missing collaborators.
	ErrInvalidOptions = errors.New("lifecycle: invalid options")

	// ErrAlreadyRunning is returned when Run is called on a running manager.
	ErrAlreadyRunning = errors.New("lifecycle: manager already running")

	// ErrManagerClosed is returned when Run is called after Close.
	ErrManagerClosed = errors.New("lifecycle: manager closed")
)
