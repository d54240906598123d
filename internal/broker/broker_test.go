package broker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asgard/groundctl/internal/broker"
	"github.com/asgard/groundctl/internal/wire"
)

// testMetrics returns a Metrics instance registered against a fresh
// registry, so each test can construct its own Broker without colliding
// with prometheus's default registry (which panics on re-registration).
func testMetrics() *broker.Metrics {
	return broker.NewMetricsWithRegisterer(prometheus.NewRegistry())
}

type fakeAircraft struct {
	mu       sync.Mutex
	ids      map[string]bool
	received []wire.Command
}

func newFakeAircraft(ids ...string) *fakeAircraft {
	m := make(map[string]bool)
	for _, id := range ids {
		m[id] = true
	}
	return &fakeAircraft{ids: m}
}

func (f *fakeAircraft) HasAircraft(id string) bool { return f.ids[id] }

func (f *fakeAircraft) DeliverCommand(id string, cmd wire.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, cmd)
	return nil
}

type noLinks struct{}

func (noLinks) HasLink(string) bool                    { return false }
func (noLinks) WriteCommand(string, wire.Command) error { return nil }

func TestNewSessionReceivesWelcomeFreeSubscriptionByDefault(t *testing.T) {
	b := broker.New(broker.Config{}, newFakeAircraft(), noLinks{}, nil, testMetrics())
	sub := b.NewSession()
	defer b.CloseSession(sub)

	b.Publish("telemetry/uas-1", "hello", false)

	select {
	case <-time.After(50 * time.Millisecond):
	default:
	}
	assert.Equal(t, 0, sub.QueueDepth())
}

func TestSubscribeDeliversMatchingTopic(t *testing.T) {
	b := broker.New(broker.Config{}, newFakeAircraft(), noLinks{}, nil, testMetrics())
	sub := b.NewSession()
	defer b.CloseSession(sub)

	sub.Subscribe("telemetry/*")
	b.Publish("telemetry/uas-1", "payload", false)

	env, ok := sub.Recv()
	require.True(t, ok)
	assert.Equal(t, "telemetry/uas-1", env.Topic)
}

func TestSubscribeIsIdempotent(t *testing.T) {
	b := broker.New(broker.Config{}, newFakeAircraft(), noLinks{}, nil, testMetrics())
	sub := b.NewSession()
	defer b.CloseSession(sub)

	sub.Subscribe("telemetry/*")
	sub.Subscribe("telemetry/*")
	b.Publish("telemetry/uas-1", "payload", false)

	_, ok := sub.Recv()
	require.True(t, ok)
	assert.Equal(t, 0, sub.QueueDepth())
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := broker.New(broker.Config{}, newFakeAircraft(), noLinks{}, nil, testMetrics())
	sub := b.NewSession()
	defer b.CloseSession(sub)

	sub.Subscribe("telemetry/*")
	sub.Unsubscribe("telemetry/*")
	b.Publish("telemetry/uas-1", "payload", false)

	assert.Equal(t, 0, sub.QueueDepth())
}

func TestDeliverCommandRoutesToAircraftAndEchoesFirst(t *testing.T) {
	aircraft := newFakeAircraft("uas-1")
	b := broker.New(broker.Config{}, aircraft, noLinks{}, nil, testMetrics())

	sub := b.NewSession()
	defer b.CloseSession(sub)
	sub.Subscribe("commands/*")

	cmd := wire.Command{Destination: "uas-1", CommandType: wire.CommandMissionStart, Priority: wire.PriorityNormal}
	require.NoError(t, b.DeliverCommand(context.Background(), cmd))

	env, ok := sub.Recv()
	require.True(t, ok)
	assert.Equal(t, "commands/uas-1", env.Topic)

	aircraft.mu.Lock()
	defer aircraft.mu.Unlock()
	require.Len(t, aircraft.received, 1)
	assert.Equal(t, wire.CommandMissionStart, aircraft.received[0].CommandType)
}

func TestDeliverCommandWithNoRouteReturnsRoutingError(t *testing.T) {
	b := broker.New(broker.Config{}, newFakeAircraft(), noLinks{}, nil, testMetrics())

	cmd := wire.Command{Destination: "unknown", CommandType: wire.CommandMissionStart, Priority: wire.PriorityNormal}
	err := b.DeliverCommand(context.Background(), cmd)

	require.Error(t, err)
	var routeErr *broker.RoutingError
	assert.ErrorAs(t, err, &routeErr)
}

func TestDeliverCommandRejectsInvalidCommand(t *testing.T) {
	b := broker.New(broker.Config{}, newFakeAircraft(), noLinks{}, nil, testMetrics())

	cmd := wire.Command{CommandType: wire.CommandMissionStart}
	err := b.DeliverCommand(context.Background(), cmd)
	assert.Error(t, err)
}

func TestBackpressureDropsOldestNonCritical(t *testing.T) {
	b := broker.New(broker.Config{QueueCapacity: 2}, newFakeAircraft(), noLinks{}, nil, testMetrics())
	sub := b.NewSession()
	defer b.CloseSession(sub)
	sub.Subscribe("telemetry/*")

	b.Publish("telemetry/uas-1", "first", false)
	b.Publish("telemetry/uas-1", "second", false)
	b.Publish("telemetry/uas-1", "third", false)

	env1, ok := sub.Recv()
	require.True(t, ok)
	assert.Equal(t, "second", env1.Message)

	env2, ok := sub.Recv()
	require.True(t, ok)
	assert.Equal(t, "third", env2.Message)
}

func TestBackpressureEvictsNonCriticalToAdmitCritical(t *testing.T) {
	b := broker.New(broker.Config{QueueCapacity: 1}, newFakeAircraft(), noLinks{}, nil, testMetrics())
	sub := b.NewSession()
	defer b.CloseSession(sub)
	sub.Subscribe("alerts/*")

	b.Publish("alerts/uas-1", "routine", false)
	b.Publish("alerts/uas-1", "emergency", true)

	env, ok := sub.Recv()
	require.True(t, ok)
	assert.Equal(t, "emergency", env.Message)
}

func TestBackpressureNeverDropsCriticalAtHead(t *testing.T) {
	b := broker.New(broker.Config{QueueCapacity: 2}, newFakeAircraft(), noLinks{}, nil, testMetrics())
	sub := b.NewSession()
	defer b.CloseSession(sub)
	sub.Subscribe("alerts/*")

	b.Publish("alerts/uas-1", "critical-one", true)
	b.Publish("alerts/uas-1", "routine-one", false)
	b.Publish("alerts/uas-1", "routine-two", false)
	b.Publish("alerts/uas-1", "routine-three", false)

	env1, ok := sub.Recv()
	require.True(t, ok)
	assert.Equal(t, "critical-one", env1.Message)

	env2, ok := sub.Recv()
	require.True(t, ok)
	assert.Equal(t, "routine-three", env2.Message)
}

func TestHealthReportsSubscriberCount(t *testing.T) {
	b := broker.New(broker.Config{}, newFakeAircraft(), noLinks{}, nil, testMetrics())
	sub1 := b.NewSession()
	sub2 := b.NewSession()
	defer b.CloseSession(sub1)
	defer b.CloseSession(sub2)

	h := b.Health()
	assert.Equal(t, 2, h.Subscribers)
	assert.Equal(t, "ok", h.Status)
}

func TestCloseSessionStopsRecv(t *testing.T) {
	b := broker.New(broker.Config{}, newFakeAircraft(), noLinks{}, nil, testMetrics())
	sub := b.NewSession()

	b.CloseSession(sub)

	_, ok := sub.Recv()
	assert.False(t, ok)
}
