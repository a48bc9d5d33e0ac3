// Package supervisor owns the set of adapter lifecycle managers.
//
// Construction resolves every configured adapter through the explicit
// adapter registry and builds its lifecycle manager. Any failure (unknown
// type, invalid connection parameters, invalid retry policy) aborts
// construction before a single manager starts, and adapters built so far
// are closed.
//
// Start runs every manager concurrently and independently. Stop cancels
// them all and waits, bounded by the caller's context, for each one to
// reach Closed.
package supervisor
