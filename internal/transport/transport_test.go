package transport_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/asgard/groundctl/internal/broker"
	"github.com/asgard/groundctl/internal/transport"
	"github.com/asgard/groundctl/internal/wire"
)

type noAircraft struct{}

func (noAircraft) HasAircraft(string) bool                  { return false }
func (noAircraft) DeliverCommand(string, wire.Command) error { return nil }

type noLinks struct{}

func (noLinks) HasLink(string) bool                    { return false }
func (noLinks) WriteCommand(string, wire.Command) error { return nil }

func newTestServer(t *testing.T) (*httptest.Server, *broker.Broker) {
	t.Helper()
	metrics := broker.NewMetricsWithRegisterer(prometheus.NewRegistry())
	brk := broker.New(broker.Config{QueueCapacity: 16}, noAircraft{}, noLinks{}, nil, metrics)
	srv := transport.NewServer(brk)
	ts := httptest.NewServer(http.HandlerFunc(srv.ServeHTTP))
	return ts, brk
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func TestServeHTTPSendsWelcomeEnvelope(t *testing.T) {
	ts, _ := newTestServer(t)
	defer ts.Close()
	conn := dial(t, ts)
	defer conn.Close()

	var env broker.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	require.Equal(t, "welcome", env.Type)
}

func TestSubscribeThenPublishDeliversEnvelope(t *testing.T) {
	ts, brk := newTestServer(t)
	defer ts.Close()
	conn := dial(t, ts)
	defer conn.Close()

	var welcome broker.Envelope
	require.NoError(t, conn.ReadJSON(&welcome))

	require.NoError(t, conn.WriteJSON(transport.InboundEnvelope{Type: "subscribe", Topic: "telemetry/*"}))

	time.Sleep(20 * time.Millisecond)
	brk.Publish("telemetry/uas-1", map[string]string{"id": "uas-1"}, false)

	var env broker.Envelope
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&env))
	require.Equal(t, "telemetry/uas-1", env.Topic)
}

func TestPingReceivesPong(t *testing.T) {
	ts, _ := newTestServer(t)
	defer ts.Close()
	conn := dial(t, ts)
	defer conn.Close()

	var welcome broker.Envelope
	require.NoError(t, conn.ReadJSON(&welcome))

	require.NoError(t, conn.WriteJSON(transport.InboundEnvelope{Type: "ping"}))

	var env broker.Envelope
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&env))
	require.Equal(t, "pong", env.Type)
}

func TestThreeMalformedFramesClosesConnection(t *testing.T) {
	ts, _ := newTestServer(t)
	defer ts.Close()
	conn := dial(t, ts)
	defer conn.Close()

	var welcome broker.Envelope
	require.NoError(t, conn.ReadJSON(&welcome))

	for i := 0; i < 3; i++ {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
		var env broker.Envelope
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_ = conn.ReadJSON(&env)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}

func TestUnknownCommandDestinationReturnsNoRouteError(t *testing.T) {
	ts, _ := newTestServer(t)
	defer ts.Close()
	conn := dial(t, ts)
	defer conn.Close()

	var welcome broker.Envelope
	require.NoError(t, conn.ReadJSON(&welcome))

	cmd := wire.Command{
		Destination: "uas-404",
		CommandType: wire.CommandMissionStart,
		Priority:    wire.PriorityNormal,
	}
	data, err := json.Marshal(cmd)
	require.NoError(t, err)

	in := transport.InboundEnvelope{Type: "command", Data: data}
	require.NoError(t, conn.WriteJSON(in))

	var env broker.Envelope
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&env))
	require.Equal(t, "error", env.Type)
	msg, ok := env.Message.(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "no_route", msg["code"])
}
