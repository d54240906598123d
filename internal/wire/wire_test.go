package wire_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/asgard/groundctl/internal/wire"
)

func TestPositionValidate(t *testing.T) {
	assert.NoError(t, wire.Position{Latitude: 45, Longitude: -122, Altitude: 100}.Validate())
	assert.Error(t, wire.Position{Latitude: 91, Longitude: 0}.Validate())
	assert.Error(t, wire.Position{Latitude: 0, Longitude: 181}.Validate())
}

func TestSystemHealthValidate(t *testing.T) {
	assert.NoError(t, wire.SystemHealth{Battery: 50, GPSSatellites: 8}.Validate())
	assert.Error(t, wire.SystemHealth{Battery: 150}.Validate())
	assert.Error(t, wire.SystemHealth{Battery: 50, GPSSatellites: -1}.Validate())
	assert.Error(t, wire.SystemHealth{Battery: 50, CPULoad: 200}.Validate())

	fuel := 150.0
	assert.Error(t, wire.SystemHealth{Battery: 50, Fuel: &fuel}.Validate())
}

func TestTelemetryValidateRequiresAircraftID(t *testing.T) {
	tel := wire.Telemetry{
		Position:     wire.Position{Latitude: 1, Longitude: 1},
		SystemHealth: wire.SystemHealth{Battery: 90},
	}
	assert.Error(t, tel.Validate())

	tel.AircraftID = "uas-1"
	assert.NoError(t, tel.Validate())
}

func TestFlightPlanValidate(t *testing.T) {
	base := wire.FlightPlan{
		ID: "plan-1",
		Waypoints: []wire.Waypoint{
			{ID: 0, Type: wire.WaypointTakeoff, Position: wire.Position{Latitude: 1, Longitude: 1}},
			{ID: 1, Type: wire.WaypointWaypoint, Position: wire.Position{Latitude: 2, Longitude: 2}},
		},
		Parameters: wire.FlightPlanParameters{CruiseAltitude: 100, MaxAltitude: 200},
	}
	assert.NoError(t, base.Validate())

	noWaypoints := base
	noWaypoints.Waypoints = nil
	assert.Error(t, noWaypoints.Validate())

	badStart := base
	badStart.Waypoints = []wire.Waypoint{
		{ID: 0, Type: wire.WaypointWaypoint, Position: wire.Position{Latitude: 1, Longitude: 1}},
	}
	assert.Error(t, badStart.Validate())

	exceedsMax := base
	exceedsMax.Parameters.CruiseAltitude = 300
	assert.Error(t, exceedsMax.Validate())

	twoHomes := base
	twoHomes.Waypoints = append(twoHomes.Waypoints,
		wire.Waypoint{ID: 2, Type: wire.WaypointHome},
		wire.Waypoint{ID: 3, Type: wire.WaypointHome},
	)
	assert.Error(t, twoHomes.Validate())
}

func TestFlightPlanHome(t *testing.T) {
	plan := wire.FlightPlan{
		Waypoints: []wire.Waypoint{
			{ID: 0, Type: wire.WaypointTakeoff},
			{ID: 1, Type: wire.WaypointHome},
		},
	}
	home, ok := plan.Home()
	assert.True(t, ok)
	assert.Equal(t, 1, home.ID)

	noHome := wire.FlightPlan{Waypoints: []wire.Waypoint{{ID: 0, Type: wire.WaypointTakeoff}}}
	_, ok = noHome.Home()
	assert.False(t, ok)
}

func TestCommandValidate(t *testing.T) {
	cmd := wire.Command{Destination: "uas-1", CommandType: wire.CommandMissionStart, Priority: wire.PriorityNormal}
	assert.NoError(t, cmd.Validate())

	noDestination := cmd
	noDestination.Destination = ""
	assert.Error(t, noDestination.Validate())

	badType := cmd
	badType.CommandType = "not_a_real_command"
	assert.Error(t, badType.Validate())

	emergencyNoAck := wire.Command{Destination: "uas-1", CommandType: wire.CommandEmergencyLand, Priority: wire.PriorityEmergency}
	assert.Error(t, emergencyNoAck.Validate())

	emergencyNoAck.RequiresAck = true
	assert.NoError(t, emergencyNoAck.Validate())
}

func TestFlightEnvelopeValidate(t *testing.T) {
	valid := wire.FlightEnvelope{
		Airspeed: wire.AirspeedEnvelope{Min: 5, Cruise: 15, Max: 25},
		Altitude: wire.AltitudeEnvelope{Min: 0, Cruise: 100, Max: 500},
	}
	assert.NoError(t, valid.Validate())

	invalid := valid
	invalid.Airspeed.Cruise = 30
	assert.Error(t, invalid.Validate())
}
