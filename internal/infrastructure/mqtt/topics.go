package mqtt

import "strings"

// DefaultTopicPrefix is the root of every topic signalhub publishes.
const DefaultTopicPrefix = "signalhub"

// Topics builds signalhub topics under Prefix.
//
//	topics := mqtt.Topics{Prefix: "signalhub"}
//	topics.State("oh:Kitchen_Temp") // "signalhub/state/oh:Kitchen_Temp"
type Topics struct {
	Prefix string
}

func (t Topics) root() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// State returns the retained state topic for a signal id.
//
// Example: signalhub/state/ha:sensor.kitchen
func (t Topics) State(id string) string {
	return t.root() + "/state/" + id
}

// SystemStatus returns the retained online/offline status topic.
func (t Topics) SystemStatus() string {
	return t.root() + "/system/status"
}

// Match reports whether topic matches the subscription filter, following
// MQTT wildcard rules: + matches one level, a trailing # matches any
// remaining levels including none.
func Match(filter, topic string) bool {
	fl := strings.Split(filter, "/")
	tl := strings.Split(topic, "/")

	for i, f := range fl {
		if f == "#" {
			return i == len(fl)-1
		}
		if i >= len(tl) {
			return false
		}
		if f != "+" && f != tl[i] {
			return false
		}
	}
	return len(fl) == len(tl)
}

// FilterBase returns the literal levels of filter before its first
// wildcard, including the trailing slash. "sensors/+/temp" gives "sensors/".
func FilterBase(filter string) string {
	levels := strings.Split(filter, "/")
	var b strings.Builder
	for _, l := range levels {
		if l == "+" || l == "#" {
			break
		}
		b.WriteString(l)
		b.WriteByte('/')
	}
	base := b.String()
	if len(base) > len(filter) {
		// No wildcard: the filter is a single exact topic.
		return ""
	}
	return base
}
