// Package mqtt implements the MQTT source adapter.
//
// The adapter subscribes to one topic filter on a platform's broker. Each
// message topic, minus the literal part of the filter, becomes the local
// signal name: with filter "sensors/#" the topic "sensors/kitchen/temp"
// maps to "<prefix>:kitchen/temp".
//
// Payloads are either a JSON object {"value":…, "unit":…, "timestamp":…}
// or a bare scalar such as 21.5 or ON. Empty payloads clear a retained
// topic and are not signals.
//
// The snapshot is the set of retained values the broker replays on
// subscribe, collected for a settle window. Live messages arriving after
// the window are buffered for the next event stream; a lost broker
// connection or a full buffer ends that stream with an error so the
// lifecycle manager resyncs.
package mqtt
