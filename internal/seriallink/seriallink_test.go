package seriallink_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asgard/groundctl/internal/seriallink"
	"github.com/asgard/groundctl/internal/wire"
)

type recordingHandler struct {
	telemetry []wire.Telemetry
	alerts    []wire.SafetyAlert
}

func (h *recordingHandler) OnTelemetry(aircraftID string, t wire.Telemetry) {
	h.telemetry = append(h.telemetry, t)
}

func (h *recordingHandler) OnLinkAlert(alert wire.SafetyAlert) {
	h.alerts = append(h.alerts, alert)
}

func TestJSONParserRoundTripsTelemetry(t *testing.T) {
	original := wire.Telemetry{AircraftID: "uas-1", MessageID: 7}
	data, err := json.Marshal(original)
	require.NoError(t, err)

	decoded, err := seriallink.JSONParser(data)
	require.NoError(t, err)
	assert.Equal(t, original.AircraftID, decoded.AircraftID)
	assert.Equal(t, original.MessageID, decoded.MessageID)
}

func TestJSONParserLeavesMissingFieldsForNormalization(t *testing.T) {
	data := []byte(`{"messageId":7}`)

	decoded, err := seriallink.JSONParser(data)
	require.NoError(t, err)
	assert.Equal(t, "", decoded.AircraftID)
	assert.True(t, decoded.Timestamp.IsZero())
}

func TestNormalizeTelemetryBackfillsAircraftIDAndTimestamp(t *testing.T) {
	bare := wire.Telemetry{MessageID: 7}
	normalized := seriallink.NormalizeTelemetry(bare, "uas-1")
	assert.Equal(t, "uas-1", normalized.AircraftID)
	assert.False(t, normalized.Timestamp.IsZero())
}

func TestNormalizeTelemetryPreservesExistingFields(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	full := wire.Telemetry{AircraftID: "uas-2", Timestamp: ts}
	normalized := seriallink.NormalizeTelemetry(full, "uas-1")
	assert.Equal(t, "uas-2", normalized.AircraftID)
	assert.Equal(t, ts, normalized.Timestamp)
}

func TestJSONFormatterAppendsNewline(t *testing.T) {
	cmd := wire.Command{Destination: "uas-1", CommandType: wire.CommandMissionStart, Priority: wire.PriorityNormal}
	data, err := seriallink.JSONFormatter(cmd)
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), data[len(data)-1])
}

func TestWriteCommandFailsWhenNotConnected(t *testing.T) {
	l := seriallink.New(seriallink.Config{AircraftID: "uas-1", PortName: "/dev/null-test"}, &recordingHandler{})
	err := l.WriteCommand(wire.Command{Destination: "uas-1", CommandType: wire.CommandMissionStart, Priority: wire.PriorityNormal})
	assert.Error(t, err)
}

func TestConnectedIsFalseBeforeRun(t *testing.T) {
	l := seriallink.New(seriallink.Config{AircraftID: "uas-1", PortName: "/dev/null-test"}, &recordingHandler{})
	assert.False(t, l.Connected())
}

func TestRouterReflectsAddedLinkAndRejectsWriteWhileDisconnected(t *testing.T) {
	r := seriallink.NewRouter()
	l := seriallink.New(seriallink.Config{AircraftID: "uas-1", PortName: "/dev/null-test", WarnTimeout: time.Millisecond, DisconnectAfter: time.Millisecond}, &recordingHandler{})

	r.Add(l)
	assert.True(t, r.HasLink("uas-1"))
	assert.Equal(t, 1, r.Count())

	err := r.WriteCommand("uas-1", wire.Command{Destination: "uas-1", CommandType: wire.CommandMissionStart, Priority: wire.PriorityNormal})
	assert.Error(t, err)
}

func TestRouterWriteCommandReturnsErrorForUnknownAircraft(t *testing.T) {
	r := seriallink.NewRouter()
	err := r.WriteCommand("unknown", wire.Command{Destination: "unknown", CommandType: wire.CommandMissionStart, Priority: wire.PriorityNormal})
	assert.Error(t, err)
}
