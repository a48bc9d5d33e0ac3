package openhab

import (
	"strings"

	"github.com/nerrad567/signalhub/internal/signal"
)

// States openHAB uses for items without a value.
const (
	stateNull  = "NULL"
	stateUndef = "UNDEF"
)

// numericItemTypes are item base types whose state is a number.
var numericItemTypes = map[string]bool{
	"Number":        true,
	"Dimmer":        true,
	"Rollershutter": true,
}

// numericEventTypes are state types carried by statechanged events.
var numericEventTypes = map[string]bool{
	"Decimal":  true,
	"Quantity": true,
	"Percent":  true,
}

// baseType returns the item base type: "Number:Temperature" gives
// "Number" and "Group:Number:AVG" gives "Number".
func baseType(itemType string) string {
	itemType = strings.TrimPrefix(itemType, "Group:")
	if i := strings.IndexByte(itemType, ':'); i >= 0 {
		return itemType[:i]
	}
	return itemType
}

// hasValue reports whether an openHAB state carries a value.
func hasValue(state string) bool {
	return state != "" && state != stateNull && state != stateUndef
}

// parseState converts a state string into a value and unit. When numeric
// is set the state is split at the first space into number and unit;
// states that do not parse stay text.
func parseState(state string, numeric bool) (signal.Value, string) {
	if !numeric {
		return signal.String(state), ""
	}

	num, unit, _ := strings.Cut(strings.TrimSpace(state), " ")
	if v := signal.ParseValue(num); v.IsNumber() {
		return v, strings.TrimSpace(unit)
	}
	return signal.String(state), ""
}
