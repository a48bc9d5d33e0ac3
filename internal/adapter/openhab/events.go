package openhab

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/nerrad567/signalhub/internal/adapter"
	"github.com/nerrad567/signalhub/internal/signal"
)

// maxEventSize bounds one SSE line.
const maxEventSize = 1 << 20

const eventStateChanged = "ItemStateChangedEvent"

// busEvent is one openHAB event bus message.
type busEvent struct {
	Topic   string `json:"topic"`
	Payload string `json:"payload"`
	Type    string `json:"type"`
}

// statePayload is the payload of an ItemStateChangedEvent.
type statePayload struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// sseMessage is one dispatched Server-Sent Event.
type sseMessage struct {
	event string
	data  string
}

// readSSE parses Server-Sent Events from r and calls fn for each message.
// It returns fn's first error, the read error, or nil at end of input.
func readSSE(r io.Reader, fn func(sseMessage) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxEventSize)

	var msg sseMessage
	var data []string
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			if len(data) > 0 {
				msg.data = strings.Join(data, "\n")
				if err := fn(msg); err != nil {
					return err
				}
			}
			msg = sseMessage{}
			data = data[:0]
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "data":
			data = append(data, value)
		case "event":
			msg.event = value
		}
	}
	return sc.Err()
}

// itemFromTopic extracts the item name from "openhab/items/{name}/statechanged".
func itemFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[1] != "items" || parts[2] == "" {
		return "", false
	}
	return parts[2], true
}

// decodeEvent turns an SSE message into a signal. ok is false for
// messages that carry no signal update.
func (a *Adapter) decodeEvent(msg sseMessage) (sig signal.Signal, ok bool, err error) {
	if msg.event != "" && msg.event != "message" {
		return signal.Signal{}, false, nil
	}

	var ev busEvent
	if err := json.Unmarshal([]byte(msg.data), &ev); err != nil {
		return signal.Signal{}, false, fmt.Errorf("%w: invalid event: %w", adapter.ErrProtocol, err)
	}
	if ev.Type != eventStateChanged {
		return signal.Signal{}, false, nil
	}

	name, found := itemFromTopic(ev.Topic)
	if !found {
		return signal.Signal{}, false, fmt.Errorf("%w: unexpected event topic %q", adapter.ErrProtocol, ev.Topic)
	}

	var p statePayload
	if err := json.Unmarshal([]byte(ev.Payload), &p); err != nil {
		return signal.Signal{}, false, fmt.Errorf("%w: invalid payload for %s: %w", adapter.ErrProtocol, name, err)
	}
	if !hasValue(p.Value) {
		return signal.Signal{}, false, nil
	}

	numeric := numericEventTypes[p.Type] || a.itemNumeric(name)
	value, unit := parseState(p.Value, numeric)
	return signal.Signal{
		ID:        a.SignalID(name),
		Value:     value,
		Unit:      unit,
		Timestamp: a.now(),
		Source:    a.Name(),
	}, true, nil
}

// eventStream delivers decoded events from one SSE response.
type eventStream struct {
	owner  *Adapter
	body   io.ReadCloser
	cancel context.CancelFunc

	items    chan signal.Signal
	stop     chan struct{}
	stopOnce sync.Once
	finished chan struct{}
	err      error
}

func newEventStream(owner *Adapter, body io.ReadCloser, cancel context.CancelFunc) *eventStream {
	return &eventStream{
		owner:    owner,
		body:     body,
		cancel:   cancel,
		items:    make(chan signal.Signal),
		stop:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

// errStopped ends the read loop after Close.
var errStopped = errors.New("openhab: stream stopped")

func (s *eventStream) read() {
	err := readSSE(s.body, func(msg sseMessage) error {
		sig, ok, err := s.owner.decodeEvent(msg)
		if err != nil || !ok {
			return err
		}
		select {
		case s.items <- sig:
			return nil
		case <-s.stop:
			return errStopped
		}
	})

	select {
	case <-s.stop:
		err = adapter.ErrClosed
	default:
		switch {
		case err == nil:
			err = io.EOF
		case errors.Is(err, adapter.ErrProtocol):
		default:
			err = fmt.Errorf("%w: event stream: %w", adapter.ErrConnectivity, err)
		}
		s.owner.connected.Store(false)
	}
	s.err = err
	close(s.finished)
}

// Next returns the next state change.
func (s *eventStream) Next(ctx context.Context) (signal.Signal, error) {
	select {
	case <-s.stop:
		return signal.Signal{}, adapter.ErrClosed
	default:
	}
	select {
	case <-ctx.Done():
		return signal.Signal{}, ctx.Err()
	case sig := <-s.items:
		return sig, nil
	case <-s.finished:
		return signal.Signal{}, s.err
	case <-s.stop:
		return signal.Signal{}, adapter.ErrClosed
	}
}

// Close aborts the request. Idempotent.
func (s *eventStream) Close() error {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.cancel()
		s.body.Close()
		s.owner.forget(s)
	})
	return nil
}
