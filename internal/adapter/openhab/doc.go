// Package openhab implements the openHAB source adapter.
//
// Snapshot: GET {url}/rest/items. Items in NULL or UNDEF state are
// skipped. Number, Dimmer and Rollershutter items become numbers, and a
// dimensioned state such as "20.5 °C" is split into value and unit. Other
// item types keep their state text.
//
// Stream: GET {url}/rest/events?topics=openhab/items/*/statechanged as
// Server-Sent Events. Each ItemStateChangedEvent becomes one signal update.
package openhab
