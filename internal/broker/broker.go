// Package broker implements the telemetry/command pub-sub hub (C10):
// topic-routed publication to subscribers, subscription filtering,
// per-subscriber backpressure, an optional external message-bus bridge,
// and command routing to either a simulated aircraft or a serial link.
//
// Grounded on the CrossDomainEventBus / UnifiedControlPlane pattern in
// internal/controlplane/unified.go and internal/controlplane/events.go:
// this package keeps that file's constructed-not-singleton wiring and its
// NATS bridge, generalised from a single process-wide event bus into a
// per-subscriber fan-out with bounded, priority-aware queues (spec §4.1),
// which the teacher's single shared channel does not provide.
package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/asgard/groundctl/internal/wire"
)

// AircraftRouter is how the broker reaches simulated aircraft owned by the
// simulator host (C8).
type AircraftRouter interface {
	HasAircraft(aircraftID string) bool
	DeliverCommand(aircraftID string, cmd wire.Command) error
}

// LinkRouter is how the broker reaches a physical airframe over its
// serial link (C9).
type LinkRouter interface {
	HasLink(aircraftID string) bool
	WriteCommand(aircraftID string, cmd wire.Command) error
}

// ExternalBus bridges local publications to an external message broker.
// See externalbus.go for the NATS-backed implementation.
type ExternalBus interface {
	Connected() bool
	Forward(topic string, payload interface{}) error
	Subscribe(root string, onMessage func(topic string, payload []byte)) error
	Close()
}

// Subscriber is the broker-facing half of a subscriber session, backed by
// an egressQueue; the transport layer (C11) drives it through Subscribe,
// Unsubscribe and Recv.
type Subscriber struct {
	id       string
	patterns map[string]struct{}
	queue    *egressQueue
	mu       sync.Mutex
}

func newSubscriber(id string, queueCapacity int) *Subscriber {
	return &Subscriber{
		id:       id,
		patterns: make(map[string]struct{}),
		queue:    newEgressQueue(queueCapacity),
	}
}

// ID returns the subscriber's session id.
func (s *Subscriber) ID() string { return s.id }

// Subscribe adds a topic pattern to the subscriber's subscription set.
// Idempotent (property R2).
func (s *Subscriber) Subscribe(pattern string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patterns[pattern] = struct{}{}
}

// Unsubscribe removes a topic pattern.
func (s *Subscriber) Unsubscribe(pattern string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.patterns, pattern)
}

func (s *Subscriber) matches(topic string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return AnyMatch(s.patterns, topic)
}

// Recv blocks until the next envelope addressed to this subscriber, or
// returns ok=false once the subscriber has been closed and drained.
func (s *Subscriber) Recv() (Envelope, bool) { return s.queue.pop() }

// QueueDepth reports the current backlog size, for health reporting.
func (s *Subscriber) QueueDepth() int { return s.queue.len() }

// Health is a point-in-time snapshot for the external health endpoint.
type Health struct {
	Status               string    `json:"status"`
	Timestamp             time.Time `json:"timestamp"`
	Subscribers           int       `json:"subscribers"`
	SerialLinks           int       `json:"serialLinks"`
	ExternalBusConnected  bool      `json:"externalBusConnected"`
}

// Config configures the broker's backpressure behavior.
type Config struct {
	QueueCapacity int // default 1024, per spec §4.1
}

// Broker is the concurrent pub/sub hub mediating serial links, the
// simulator host, an optional external bus, and subscribers.
type Broker struct {
	cfg Config

	mu          sync.RWMutex
	subscribers map[string]*Subscriber

	aircraft AircraftRouter
	links    LinkRouter
	bus      ExternalBus

	metrics *Metrics
	logger  *logrus.Logger
}

// New constructs a Broker. aircraft and links may be nil if that routing
// destination is not wired up (e.g. a broker-only test harness); bus may
// be nil when no external bus is configured.
func New(cfg Config, aircraft AircraftRouter, links LinkRouter, bus ExternalBus, metrics *Metrics) *Broker {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 1024
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	b := &Broker{
		cfg:         cfg,
		subscribers: make(map[string]*Subscriber),
		aircraft:    aircraft,
		links:       links,
		bus:         bus,
		metrics:     metrics,
		logger:      logrus.New(),
	}
	if bus != nil {
		for _, root := range []string{"telemetry", "commands", "status", "alerts"} {
			root := root
			if err := bus.Subscribe(root, b.onBusMessage(root)); err != nil {
				b.logger.WithField("root", root).Warnf("external bus subscribe failed: %v", err)
			}
		}
	}
	return b
}

func (b *Broker) onBusMessage(root string) func(topic string, payload []byte) {
	return func(topic string, payload []byte) {
		b.publishRaw(topic, string(payload), false)
	}
}

// NewSession registers a new subscriber session and returns its handle.
// The caller (transport layer) is responsible for closing it on
// disconnect.
func (b *Broker) NewSession() *Subscriber {
	sub := newSubscriber(uuid.NewString(), b.cfg.QueueCapacity)
	b.mu.Lock()
	b.subscribers[sub.id] = sub
	b.mu.Unlock()
	b.metrics.SubscriberConnected()
	return sub
}

// CloseSession removes a subscriber and releases its queue.
func (b *Broker) CloseSession(sub *Subscriber) {
	b.mu.Lock()
	delete(b.subscribers, sub.id)
	b.mu.Unlock()
	sub.queue.close()
	b.metrics.SubscriberDisconnected()
}

// Publish delivers message to every matching subscriber and, if
// connected, to the external bus. critical marks messages that must never
// be dropped under backpressure (spec §4.1): critical/emergency alerts
// and commands.
func (b *Broker) Publish(topic string, message interface{}, critical bool) {
	b.publishRaw(topic, message, critical)
}

func (b *Broker) publishRaw(topic string, message interface{}, critical bool) {
	if b.bus != nil && b.bus.Connected() {
		if err := b.bus.Forward(topic, message); err != nil {
			b.logger.Warnf("external bus forward failed: %v", err)
		}
	}

	env := Envelope{Type: "publish", Topic: topic, Message: message}

	b.mu.RLock()
	targets := make([]*Subscriber, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		if sub.matches(topic) {
			targets = append(targets, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		if disconnect := sub.queue.push(env, critical); disconnect {
			b.logger.WithField("subscriber_id", sub.id).Warn("queue saturated with non-droppable messages, disconnecting")
			b.CloseSession(sub)
			continue
		}
		b.metrics.Published(topic)
	}
}

// Inject is the operator-facing test bypass of spec §4.1: it republishes
// body under paparazzi/<topicSuffix>.
func (b *Broker) Inject(topicSuffix string, body interface{}) {
	b.Publish("paparazzi/"+topicSuffix, body, false)
}

// RoutingError is returned by DeliverCommand when no destination could be
// found for the command (property P6).
type RoutingError struct {
	Destination string
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("broker: no route to aircraft %q", e.Destination)
}

// DeliverCommand validates cmd, echoes it to subscribers watching
// commands/<destination> (ordered before the actual delivery per spec
// §5's ordering guarantee), then routes it to exactly one destination: a
// local simulated aircraft if one matches, else an open serial link, else
// returns a RoutingError so the caller can reply with error{code:no_route}.
func (b *Broker) DeliverCommand(ctx context.Context, cmd wire.Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	critical := cmd.Priority == wire.PriorityEmergency || cmd.Priority == wire.PriorityHigh

	if b.aircraft != nil && b.aircraft.HasAircraft(cmd.Destination) {
		b.publishRaw("commands/"+cmd.Destination, cmd, critical)
		b.metrics.CommandRouted("simulator")
		return b.aircraft.DeliverCommand(cmd.Destination, cmd)
	}

	if b.links != nil && b.links.HasLink(cmd.Destination) {
		b.publishRaw("commands/"+cmd.Destination, cmd, critical)
		b.metrics.CommandRouted("serial")
		return b.links.WriteCommand(cmd.Destination, cmd)
	}

	b.metrics.CommandRouted("no_route")
	return &RoutingError{Destination: cmd.Destination}
}

// Health returns a point-in-time snapshot of broker state.
func (b *Broker) Health() Health {
	b.mu.RLock()
	subs := len(b.subscribers)
	b.mu.RUnlock()

	links := 0
	if lh, ok := b.links.(interface{ Count() int }); ok {
		links = lh.Count()
	}

	connected := b.bus != nil && b.bus.Connected()

	status := "ok"
	if !connected && b.bus != nil {
		status = "degraded"
	}

	return Health{
		Status:               status,
		Timestamp:            time.Now().UTC(),
		Subscribers:          subs,
		SerialLinks:          links,
		ExternalBusConnected: connected,
	}
}

// Shutdown drains each subscriber's egress queue for up to drainFor
// before closing every session, per spec §5's cooperative shutdown.
func (b *Broker) Shutdown(drainFor time.Duration) {
	b.mu.RLock()
	subs := make([]*Subscriber, 0, len(b.subscribers))
	for _, s := range b.subscribers {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	deadline := time.Now().Add(drainFor)
	for _, s := range subs {
		for s.QueueDepth() > 0 && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
		b.CloseSession(s)
	}
	if b.bus != nil {
		b.bus.Close()
	}
}
