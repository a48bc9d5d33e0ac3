package mqtt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/signalhub/internal/adapter"
	"github.com/nerrad567/signalhub/internal/signal"
)

// errEmptyPayload marks a zero-length message, which clears a retained topic.
var errEmptyPayload = errors.New("mqtt: empty payload")

// envelope is the structured payload form.
type envelope struct {
	Value     json.RawMessage `json:"value"`
	Unit      string          `json:"unit"`
	Timestamp time.Time       `json:"timestamp"`
}

// decodePayload turns a message payload into a value, unit and timestamp.
// A zero timestamp means the payload carried none.
func decodePayload(raw []byte) (signal.Value, string, time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return signal.Value{}, "", time.Time{}, errEmptyPayload
	}

	switch raw[0] {
	case '{':
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return signal.Value{}, "", time.Time{}, fmt.Errorf("%w: invalid JSON payload: %w", adapter.ErrProtocol, err)
		}
		v, err := decodeScalar(env.Value)
		if err != nil {
			return signal.Value{}, "", time.Time{}, err
		}
		unit := env.Unit
		if !v.IsNumber() {
			unit = ""
		}
		return v, unit, env.Timestamp, nil

	case '"', '[':
		v, err := decodeScalar(raw)
		return v, "", time.Time{}, err

	default:
		v := signal.ParseValue(string(raw))
		if !v.IsValid() {
			return signal.Value{}, "", time.Time{}, fmt.Errorf("%w: unusable payload", adapter.ErrProtocol)
		}
		return v, "", time.Time{}, nil
	}
}

// decodeScalar decodes a JSON number, string or boolean.
func decodeScalar(raw json.RawMessage) (signal.Value, error) {
	raw = bytes.TrimSpace(raw)
	switch string(raw) {
	case "", "null":
		return signal.Value{}, fmt.Errorf("%w: payload has no value", adapter.ErrProtocol)
	case "true", "false":
		return signal.String(string(raw)), nil
	}

	var v signal.Value
	if err := v.UnmarshalJSON(raw); err != nil {
		return signal.Value{}, fmt.Errorf("%w: %w", adapter.ErrProtocol, err)
	}
	return v, nil
}
