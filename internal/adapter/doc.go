// Package adapter defines the capability contract every smart-home platform
// adapter implements, the adapter error taxonomy, and the explicit factory
// registry used to resolve configured adapter types at startup.
//
// # Contract
//
// An Adapter exposes identity (Name, Type, Prefix), a full snapshot
// (FetchSignals), a live event stream (SubscribeEvents), a best-effort
// liveness probe (IsConnected) and an idempotent Close. Adapters translate
// platform payloads into signal.Signal values; they never write to the
// store themselves. The lifecycle manager owns retry, ordering and store
// writes.
//
// # Errors
//
// Implementations wrap ErrConnectivity for unreachable or dropped upstreams
// and ErrProtocol for malformed payloads. Context cancellation is returned
// as the context's own error and is never wrapped as a connectivity failure.
//
// # Registry
//
// There is no package-level registry. A Registry is constructed at process
// start (see package builtin) and handed to the supervisor, which resolves
// every configured adapter before any lifecycle manager starts.
package adapter
