// Package lifecycle implements the per-adapter connection state machine.
//
// One Manager drives one adapter through:
//
//	Registered → Loading → Connected → Streaming
//	                 ↑                      │
//	                 └──── RetryWait ←──────┘
//
// with Closed reachable from every non-terminal phase.
//
//   - Loading fetches a full snapshot and reconciles it into the store.
//   - Connected opens the live event stream; the first event moves the
//     manager to Streaming.
//   - Any snapshot, stream-open, stream or liveness failure moves to
//     RetryWait, which waits the current backoff delay and always returns
//     to Loading. Streaming is never resumed without a fresh snapshot.
//   - Cancelling the Run context moves straight to Closed. Cancellation is
//     not a failure and never increments the retry count.
//
// The Manager is the single writer of its State. Readers get immutable
// copies through State.
package lifecycle
