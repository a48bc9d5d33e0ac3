package mqtt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/signalhub/internal/adapter"
	"github.com/nerrad567/signalhub/internal/infrastructure/config"
	broker "github.com/nerrad567/signalhub/internal/infrastructure/mqtt"
	"github.com/nerrad567/signalhub/internal/signal"
)

// Type is the registry key for this adapter.
const Type = "mqtt"

// Defaults applied when the adapter config leaves them unset.
const (
	DefaultSettleTime = 2 * time.Second
	DefaultBufferSize = 1024
	defaultPort       = 1883
)

// Conn is the subset of the broker client the adapter uses.
type Conn interface {
	Subscribe(topic string, qos byte, handler broker.MessageHandler) error
	Unsubscribe(topic string) error
	HasSubscription(topic string) bool
	IsConnected() bool
	SetOnDisconnect(callback func(err error))
	Close() error
}

// Dialer opens a broker connection.
type Dialer func(cfg config.MQTTConfig) (Conn, error)

func dialBroker(cfg config.MQTTConfig) (Conn, error) {
	c, err := broker.Connect(cfg, "")
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Adapter reads signals from an MQTT topic filter.
type Adapter struct {
	adapter.Identity

	cfg    config.MQTTAdapterConfig
	base   string
	dial   Dialer
	logger adapter.Logger
	now    func() time.Time

	mu         sync.Mutex
	conn       Conn
	collecting bool
	last       map[string]signal.Signal
	pending    *stream
	active     *stream
	closed     bool
}

// New is the registry factory for MQTT adapters.
func New(cfg config.AdapterConfig, deps adapter.Deps) (adapter.Adapter, error) {
	return NewWithDialer(cfg, deps, dialBroker)
}

// NewWithDialer builds an adapter that connects through dial.
func NewWithDialer(cfg config.AdapterConfig, deps adapter.Deps, dial Dialer) (*Adapter, error) {
	mc := cfg.MQTT
	if mc.Topic == "" {
		return nil, fmt.Errorf("%w: adapter %s: mqtt.topic is required", adapter.ErrInvalidConfig, cfg.Name)
	}
	if mc.Broker.Host == "" {
		return nil, fmt.Errorf("%w: adapter %s: mqtt.broker.host is required", adapter.ErrInvalidConfig, cfg.Name)
	}
	if mc.QoS < 0 || mc.QoS > 2 {
		return nil, fmt.Errorf("%w: adapter %s: mqtt.qos must be 0, 1, or 2", adapter.ErrInvalidConfig, cfg.Name)
	}
	if mc.Broker.Port == 0 {
		mc.Broker.Port = defaultPort
	}
	if mc.Broker.ClientID == "" {
		mc.Broker.ClientID = "signalhub-" + cfg.Name
	}
	if mc.SettleTime <= 0 {
		mc.SettleTime = DefaultSettleTime
	}
	if mc.BufferSize <= 0 {
		mc.BufferSize = DefaultBufferSize
	}

	return &Adapter{
		Identity: adapter.NewIdentity(cfg.Name, Type, cfg.Prefix),
		cfg:      mc,
		base:     broker.FilterBase(mc.Topic),
		dial:     dial,
		logger:   deps.LoggerOrNoop(),
		now:      time.Now,
	}, nil
}

// FetchSignals resubscribes to the topic filter and returns the retained
// values delivered within the settle window.
func (a *Adapter) FetchSignals(ctx context.Context) (map[string]signal.Signal, error) {
	conn, err := a.connect()
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.collecting = true
	a.last = make(map[string]signal.Signal)
	if a.pending != nil {
		a.pending.fail(fmt.Errorf("%w: superseded by resync", adapter.ErrClosed))
		a.pending = nil
	}
	a.mu.Unlock()

	// Unsubscribing first makes the broker replay retained messages.
	_ = conn.Unsubscribe(a.cfg.Topic)
	if err := conn.Subscribe(a.cfg.Topic, byte(a.cfg.QoS), a.handle); err != nil {
		a.stopCollecting()
		return nil, fmt.Errorf("%w: subscribe %s: %w", adapter.ErrConnectivity, a.cfg.Topic, err)
	}

	timer := time.NewTimer(a.cfg.SettleTime)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		a.stopCollecting()
		return nil, ctx.Err()
	case <-timer.C:
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, adapter.ErrClosed
	}
	snapshot := a.last
	a.last = nil
	a.collecting = false
	a.pending = newStream(a, a.cfg.BufferSize)

	a.logger.Debug("mqtt snapshot collected", "topic", a.cfg.Topic, "signals", len(snapshot))
	return snapshot, nil
}

func (a *Adapter) stopCollecting() {
	a.mu.Lock()
	a.collecting = false
	a.last = nil
	a.mu.Unlock()
}

// connect returns the live connection, dialling a new one if needed.
func (a *Adapter) connect() (Conn, error) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil, adapter.ErrClosed
	}
	if a.conn != nil && a.conn.IsConnected() {
		conn := a.conn
		a.mu.Unlock()
		return conn, nil
	}
	stale := a.conn
	a.conn = nil
	a.mu.Unlock()

	if stale != nil {
		_ = stale.Close()
	}

	conn, err := a.dial(a.cfg.MQTTConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", adapter.ErrConnectivity, err)
	}
	conn.SetOnDisconnect(a.handleDisconnect)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		_ = conn.Close()
		return nil, adapter.ErrClosed
	}
	a.conn = conn
	a.logger.Info("connected to mqtt broker", "broker", broker.BrokerURL(a.cfg.MQTTConfig))
	return conn, nil
}

// handle routes one broker message into the snapshot or the live stream.
// Messages outside the configured filter are ignored.
func (a *Adapter) handle(topic string, payload []byte, _ bool) error {
	if !broker.Match(a.cfg.Topic, topic) {
		a.logger.Debug("ignoring mqtt message outside topic filter", "topic", topic, "filter", a.cfg.Topic)
		return nil
	}
	id := a.SignalID(a.localName(topic))

	value, unit, ts, err := decodePayload(payload)
	if errors.Is(err, errEmptyPayload) {
		a.mu.Lock()
		if a.collecting {
			delete(a.last, id)
		}
		a.mu.Unlock()
		return nil
	}
	if err != nil {
		a.logger.Warn("skipping mqtt message", "topic", topic, "error", err)
		return nil
	}
	if ts.IsZero() {
		ts = a.now()
	}
	sig := signal.Signal{ID: id, Value: value, Unit: unit, Timestamp: ts, Source: a.Name()}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.collecting {
		a.last[id] = sig
		return nil
	}
	s := a.active
	if s == nil {
		s = a.pending
	}
	if s != nil {
		s.push(sig)
	}
	return nil
}

func (a *Adapter) localName(topic string) string {
	if a.base != "" && strings.HasPrefix(topic, a.base) && len(topic) > len(a.base) {
		return topic[len(a.base):]
	}
	return topic
}

func (a *Adapter) handleDisconnect(err error) {
	a.logger.Warn("mqtt broker connection lost", "error", err)
	lost := fmt.Errorf("%w: broker connection lost: %v", adapter.ErrConnectivity, err)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active != nil {
		a.active.fail(lost)
	}
	if a.pending != nil {
		a.pending.fail(lost)
	}
}

// SubscribeEvents hands out the stream armed by the last snapshot, so no
// message between snapshot and subscribe is lost.
func (a *Adapter) SubscribeEvents(_ context.Context) (adapter.EventStream, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, adapter.ErrClosed
	}
	if a.conn == nil || !a.conn.IsConnected() {
		return nil, fmt.Errorf("%w: not connected to broker", adapter.ErrConnectivity)
	}

	s := a.pending
	a.pending = nil
	if s == nil {
		s = newStream(a, a.cfg.BufferSize)
	}
	if a.active != nil {
		a.active.fail(fmt.Errorf("%w: superseded by new stream", adapter.ErrClosed))
	}
	a.active = s
	return s, nil
}

// IsConnected reports whether the broker connection is up and the topic
// subscription is registered.
func (a *Adapter) IsConnected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn != nil && a.conn.IsConnected() && a.conn.HasSubscription(a.cfg.Topic)
}

// Close ends any stream and disconnects. Idempotent.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	conn := a.conn
	a.conn = nil
	if a.active != nil {
		a.active.fail(adapter.ErrClosed)
	}
	if a.pending != nil {
		a.pending.fail(adapter.ErrClosed)
	}
	a.mu.Unlock()

	if conn == nil {
		return nil
	}
	_ = conn.Unsubscribe(a.cfg.Topic)
	return conn.Close()
}

func (a *Adapter) detach(s *stream) {
	a.mu.Lock()
	if a.active == s {
		a.active = nil
	}
	if a.pending == s {
		a.pending = nil
	}
	a.mu.Unlock()
}

// stream is a bounded queue of live messages. Overflow fails the stream.
type stream struct {
	owner *Adapter
	ch    chan signal.Signal
	done  chan struct{}
	once  sync.Once
	err   error
}

func newStream(owner *Adapter, size int) *stream {
	return &stream{
		owner: owner,
		ch:    make(chan signal.Signal, size),
		done:  make(chan struct{}),
	}
}

func (s *stream) push(sig signal.Signal) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.ch <- sig:
	default:
		s.fail(fmt.Errorf("%w: event buffer overflow (%d queued)", adapter.ErrConnectivity, cap(s.ch)))
	}
}

func (s *stream) fail(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.done)
	})
}

// Next returns the next queued message, or the error that ended the stream.
func (s *stream) Next(ctx context.Context) (signal.Signal, error) {
	select {
	case <-s.done:
		return signal.Signal{}, s.err
	default:
	}
	select {
	case <-ctx.Done():
		return signal.Signal{}, ctx.Err()
	case <-s.done:
		return signal.Signal{}, s.err
	case sig := <-s.ch:
		return sig, nil
	}
}

// Close ends the stream. Idempotent.
func (s *stream) Close() error {
	s.fail(adapter.ErrClosed)
	s.owner.detach(s)
	return nil
}
