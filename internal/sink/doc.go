// Package sink forwards Signal Store notifications to external systems.
//
// A Forwarder drains one store subscription and hands each Signal to a
// Handler. Handler errors are logged and counted; they never stop the loop
// and never reach the store or the adapters.
//
// Two handlers are provided:
//   - Telemetry writes numeric signals to InfluxDB as "signal" points
//   - Republisher publishes every signal as retained JSON on
//     {prefix}/state/{id} over MQTT
//
// Usage:
//
//	fwd := sink.NewForwarder("influxdb", sink.NewTelemetry(influx))
//	fwd.SetLogger(log.Component("sink"))
//	go fwd.Run(ctx, hub.Subscribe(ctx).C)
package sink
