// Package api implements the read-only HTTP API for signalhub.
//
// This package provides:
//   - REST endpoints for current signals, signal history and adapter state
//   - A Server-Sent Events stream of signal changes
//   - A WebSocket hub with channel subscriptions ("signals", "signals.<source>")
//   - The Prometheus /metrics endpoint
//   - Middleware stack (request ID, logging, recovery, CORS)
//
// # Architecture
//
// The server depends only on a SignalReader (the Signal Store's read side),
// an AdapterStatus provider (the supervisor) and an optional HistoryReader.
// It never talks to adapters. One store subscription feeds every WebSocket
// client; each SSE request opens its own subscription.
//
// # Backpressure
//
// Store subscriptions drop the oldest pending notification when a consumer
// falls behind. WebSocket clients with a full send buffer skip the message.
// A client that needs exact state re-reads GET /api/v1/signals.
package api
