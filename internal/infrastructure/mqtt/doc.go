// Package mqtt provides MQTT client connectivity for signalhub.
//
// This package manages:
//   - Connection to an MQTT broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Optional Last Will and Testament (LWT) on a status topic
//
// Two components share it: the MQTT source adapter, which subscribes to a
// topic filter on a platform's broker, and the state republisher sink,
// which publishes retained signal state under a configurable prefix.
//
//	Platform broker → mqtt.Client → MQTT adapter → Signal Store
//	Signal Store → state republisher → mqtt.Client → broker
//
// # Security Considerations
//
//   - Enable TLS for brokers reached over untrusted networks (cfg.Broker.TLS)
//   - Credentials are validated against the broker ACL
//
// # Usage
//
//	topics := mqtt.Topics{Prefix: "signalhub"}
//	client, err := mqtt.Connect(cfg.MQTT.MQTTConfig, topics.SystemStatus())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.PublishRetained(topics.State("oh:Temp"), payload)
package mqtt
