// Package homeassistant implements the Home Assistant source adapter.
//
// Snapshot: GET {url}/api/states with a long-lived access token. Entities
// in the unavailable or unknown state are skipped; numeric states become
// numbers carrying the entity's unit_of_measurement.
//
// Stream: the websocket API at {url}/api/websocket. After the auth
// handshake the adapter subscribes to state_changed events and maps each
// event's new_state to a signal.
package homeassistant
