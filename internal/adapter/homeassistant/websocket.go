package homeassistant

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/signalhub/internal/adapter"
	"github.com/nerrad567/signalhub/internal/signal"
)

// Websocket API message types.
const (
	msgAuthRequired = "auth_required"
	msgAuth         = "auth"
	msgAuthOK       = "auth_ok"
	msgAuthInvalid  = "auth_invalid"
	msgSubscribe    = "subscribe_events"
	msgResult       = "result"
	msgEvent        = "event"

	eventStateChanged = "state_changed"

	// subscribeID is the request id of the single subscription per stream.
	subscribeID = 1

	maxMessageSize = 4 << 20
)

// wsMessage covers every inbound message the adapter reads.
type wsMessage struct {
	ID      int             `json:"id"`
	Type    string          `json:"type"`
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Error   *wsError        `json:"error"`
	Event   json.RawMessage `json:"event"`
}

type wsError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type authRequest struct {
	Type        string `json:"type"`
	AccessToken string `json:"access_token"`
}

type subscribeRequest struct {
	ID        int    `json:"id"`
	Type      string `json:"type"`
	EventType string `json:"event_type"`
}

type stateChangedEvent struct {
	EventType string `json:"event_type"`
	Data      struct {
		EntityID string       `json:"entity_id"`
		NewState *entityState `json:"new_state"`
	} `json:"data"`
}

// SubscribeEvents dials the websocket API, authenticates and subscribes to
// state_changed. ctx bounds only the setup; the stream lives until Close.
func (a *Adapter) SubscribeEvents(ctx context.Context) (adapter.EventStream, error) {
	if a.closed.Load() {
		return nil, adapter.ErrClosed
	}

	conn, resp, err := a.dialer.DialContext(ctx, a.wsURL, nil)
	if err != nil {
		a.connected.Store(false)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if resp != nil {
			return nil, fmt.Errorf("%w: websocket dial: status %d: %w", adapter.ErrConnectivity, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("%w: websocket dial: %w", adapter.ErrConnectivity, err)
	}
	conn.SetReadLimit(maxMessageSize)

	stopSetup := context.AfterFunc(ctx, func() { conn.Close() })
	deadline := time.Now().Add(a.timeout)
	_ = conn.SetReadDeadline(deadline)
	_ = conn.SetWriteDeadline(deadline)

	err = a.handshake(conn)
	if !stopSetup() {
		conn.Close()
		return nil, ctx.Err()
	}
	if err != nil {
		conn.Close()
		a.connected.Store(false)
		return nil, err
	}
	_ = conn.SetReadDeadline(time.Time{})
	_ = conn.SetWriteDeadline(time.Time{})

	s := newEventStream(a, conn)
	if !a.track(s) {
		conn.Close()
		return nil, adapter.ErrClosed
	}
	a.connected.Store(true)
	go s.read()

	a.logger.Debug("home assistant event subscription active", "url", a.wsURL)
	return s, nil
}

// handshake runs auth and the state_changed subscription.
func (a *Adapter) handshake(conn *websocket.Conn) error {
	var msg wsMessage
	if err := readMessage(conn, &msg); err != nil {
		return err
	}
	if msg.Type != msgAuthRequired {
		return fmt.Errorf("%w: expected %s, got %q", adapter.ErrProtocol, msgAuthRequired, msg.Type)
	}

	if err := conn.WriteJSON(authRequest{Type: msgAuth, AccessToken: a.token}); err != nil {
		return fmt.Errorf("%w: sending auth: %w", adapter.ErrConnectivity, err)
	}
	if err := readMessage(conn, &msg); err != nil {
		return err
	}
	switch msg.Type {
	case msgAuthOK:
	case msgAuthInvalid:
		return fmt.Errorf("%w: authentication rejected: %s", adapter.ErrConnectivity, msg.Message)
	default:
		return fmt.Errorf("%w: unexpected auth reply %q", adapter.ErrProtocol, msg.Type)
	}

	req := subscribeRequest{ID: subscribeID, Type: msgSubscribe, EventType: eventStateChanged}
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("%w: sending subscribe: %w", adapter.ErrConnectivity, err)
	}
	for {
		msg = wsMessage{}
		if err := readMessage(conn, &msg); err != nil {
			return err
		}
		if msg.Type != msgResult || msg.ID != subscribeID {
			continue
		}
		if !msg.Success {
			reason := "unknown error"
			if msg.Error != nil {
				reason = msg.Error.Code + ": " + msg.Error.Message
			}
			return fmt.Errorf("%w: subscribe rejected: %s", adapter.ErrProtocol, reason)
		}
		return nil
	}
}

// readMessage reads one JSON message, classifying failures.
func readMessage(conn *websocket.Conn, msg *wsMessage) error {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("%w: websocket read: %w", adapter.ErrConnectivity, err)
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("%w: invalid message: %w", adapter.ErrProtocol, err)
	}
	return nil
}

// eventStream delivers state changes from one websocket connection.
type eventStream struct {
	owner *Adapter
	conn  *websocket.Conn

	items    chan signal.Signal
	stop     chan struct{}
	stopOnce sync.Once
	finished chan struct{}
	err      error
}

func newEventStream(owner *Adapter, conn *websocket.Conn) *eventStream {
	return &eventStream{
		owner:    owner,
		conn:     conn,
		items:    make(chan signal.Signal),
		stop:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

func (s *eventStream) read() {
	err := s.loop()

	select {
	case <-s.stop:
		err = adapter.ErrClosed
	default:
		s.owner.connected.Store(false)
	}
	s.err = err
	close(s.finished)
}

func (s *eventStream) loop() error {
	for {
		var msg wsMessage
		if err := readMessage(s.conn, &msg); err != nil {
			return err
		}
		if msg.Type != msgEvent || msg.ID != subscribeID {
			continue
		}

		var ev stateChangedEvent
		if err := json.Unmarshal(msg.Event, &ev); err != nil {
			return fmt.Errorf("%w: invalid event: %w", adapter.ErrProtocol, err)
		}
		if ev.EventType != eventStateChanged || ev.Data.NewState == nil {
			continue
		}
		sig, ok := s.owner.toSignal(*ev.Data.NewState)
		if !ok {
			continue
		}

		select {
		case s.items <- sig:
		case <-s.stop:
			return adapter.ErrClosed
		}
	}
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

// Close sends a close frame and drops the connection. Idempotent.
func (s *eventStream) Close() error {
	s.stopOnce.Do(func() {
		close(s.stop)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		s.conn.Close()
		s.owner.forget(s)
	})
	return nil
}
