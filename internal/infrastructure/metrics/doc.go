// Package metrics provides the Prometheus collectors for signalhub.
//
// A Collector is created once at startup against a registry and handed to
// the components it observes. It satisfies the small observer interfaces
// declared by the store, lifecycle and sink packages, so those packages
// never import Prometheus directly.
//
// # Exposed series
//
//	signalhub_signals_published_total{source}
//	signalhub_notifications_dropped_total
//	signalhub_subscribers
//	signalhub_adapter_phase{adapter,phase}
//	signalhub_adapter_retries_total{adapter}
//	signalhub_adapter_retry_delay_seconds{adapter}
//	signalhub_sink_writes_total{sink,result}
//
// The HTTP handler is mounted at /metrics by the api package.
package metrics
