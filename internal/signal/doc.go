// Package signal defines the normalised signal model shared by adapters,
// the signal store and transport consumers.
//
// A Signal carries a scalar Value (number or string), an optional unit,
// the time of its last change and the name of the adapter that owns it.
// Signal ids are namespaced by the owning adapter's prefix:
//
//	oh:LivingRoom_Temperature
//	ha:sensor.kitchen_humidity
//
// Values never carry raw platform payloads; adapters convert with
// ParseValue or the Number/String constructors.
package signal
