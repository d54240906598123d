// Package telemetry assembles the per-tick state of flightdynamics,
// gpsmodel and environment into a single canonical wire.Telemetry record
// (C7), and derives wire.SafetyAlert events from that state. Grounded on
// the housekeeping/battery-drain section of
// internal/simulation/flight/jsbsim.go's updateSystemHealth, generalised
// into a standalone per-aircraft generator the simulator host can call
// once per tick instead of that file's method on a monolithic simulation
// struct.
package telemetry

import (
	"fmt"
	"math"
	"time"

	"github.com/asgard/groundctl/internal/environment"
	"github.com/asgard/groundctl/internal/flightdynamics"
	"github.com/asgard/groundctl/internal/gpsmodel"
	"github.com/asgard/groundctl/internal/wire"
)

// BatteryParams controls the linear-plus-load battery drain model.
type BatteryParams struct {
	DrainPerSecond     float64 // baseline %/s at zero throttle
	ThrottleDrainScale float64 // extra %/s at full throttle
}

// DefaultBatteryParams mirrors jsbsim.go's battery decay reference rates,
// scaled to drain a full battery over a multi-hour sUAS flight.
func DefaultBatteryParams() BatteryParams {
	return BatteryParams{DrainPerSecond: 0.0015, ThrottleDrainScale: 0.004}
}

// Generator produces Telemetry and SafetyAlert records for one aircraft.
type Generator struct {
	aircraftID string
	battery    BatteryParams

	messageID uint64
	batteryPct float64

	activeAlerts map[string]bool
}

// New constructs a Generator for aircraftID, starting with a full
// battery.
func New(aircraftID string, battery BatteryParams) *Generator {
	return &Generator{
		aircraftID:   aircraftID,
		battery:      battery,
		batteryPct:   100,
		activeAlerts: make(map[string]bool),
	}
}

// Tick drains the battery by dt seconds at the given throttle setting.
// Battery never falls below 0.
func (g *Generator) Tick(dt, throttle float64) {
	drain := g.battery.DrainPerSecond + g.battery.ThrottleDrainScale*throttle
	g.batteryPct -= drain * dt
	if g.batteryPct < 0 {
		g.batteryPct = 0
	}
}

// Battery returns the current battery percentage.
func (g *Generator) Battery() float64 { return g.batteryPct }

// Build assembles a Telemetry record from the current subsystem states.
// now is passed in rather than read from time.Now so callers (and tests)
// control the timestamp.
func (g *Generator) Build(now time.Time, fd *flightdynamics.Model, fix gpsmodel.Fix, reportedLat, reportedLon, reportedAlt float64, env environment.State, datalinkRSSI, cpuLoad float64) wire.Telemetry {
	g.messageID++

	var fuel *float64
	aq := &wire.AirQuality{PM25: 0, AQI: 0}
	envRecord := &wire.Environmental{
		Temperature:   env.Atmosphere.Temperature,
		Humidity:      env.Atmosphere.Humidity,
		Pressure:      env.Atmosphere.Pressure,
		WindSpeed:     env.Wind.Speed,
		WindDirection: env.Wind.Direction,
		AirQuality:    aq,
	}

	return wire.Telemetry{
		Timestamp:  now,
		AircraftID: g.aircraftID,
		MessageID:  g.messageID,
		Position: wire.Position{
			Latitude:  reportedLat,
			Longitude: reportedLon,
			Altitude:  reportedAlt,
		},
		Attitude: wire.Attitude{
			Roll:  degrees(fd.State.Roll),
			Pitch: degrees(fd.State.Pitch),
			Yaw:   fd.State.HeadingDegrees(),
		},
		Speed: wire.Speed{
			Airspeed:      fd.State.Airspeed(),
			Groundspeed:   groundspeed(fd.State.Velocity),
			VerticalSpeed: fd.State.Velocity.Z,
		},
		SystemHealth: wire.SystemHealth{
			Battery:       g.batteryPct,
			Fuel:          fuel,
			GPSSatellites: fix.VisibleCount,
			GPSAccuracy:   fix.AccuracyMeters,
			DatalinkRSSI:  datalinkRSSI,
			CPULoad:       cpuLoad,
			Temperature:   env.Atmosphere.Temperature,
		},
		Environmental: envRecord,
	}
}

// DeriveAlerts checks t and fix against the fixed thresholds of spec §4.8
// and returns any SafetyAlert whose condition is newly true or still
// true. Each alert category gets a stable ID so repeated alerts coalesce
// on a dashboard instead of spamming new IDs every tick.
func (g *Generator) DeriveAlerts(t wire.Telemetry, fix gpsmodel.Fix, windSpeed float64) []wire.SafetyAlert {
	var alerts []wire.SafetyAlert

	check := func(key string, active bool, level wire.AlertLevel, category wire.AlertCategory, message string) {
		if !active {
			delete(g.activeAlerts, key)
			return
		}
		g.activeAlerts[key] = true
		alerts = append(alerts, wire.SafetyAlert{
			ID:         fmt.Sprintf("%s-%s", g.aircraftID, key),
			Timestamp:  t.Timestamp,
			AircraftID: g.aircraftID,
			Level:      level,
			Category:   category,
			Message:    message,
		})
	}

	check("battery_low", t.SystemHealth.Battery < 20, wire.AlertWarning, wire.CategorySystem,
		fmt.Sprintf("battery at %.1f%%", t.SystemHealth.Battery))
	check("battery_critical", t.SystemHealth.Battery < 10, wire.AlertCritical, wire.CategorySystem,
		fmt.Sprintf("battery critical at %.1f%%", t.SystemHealth.Battery))
	check("gps_low_sats_warning", fix.VisibleCount < 6 && fix.VisibleCount >= 4, wire.AlertWarning, wire.CategoryNavigation,
		fmt.Sprintf("only %d satellites visible", fix.VisibleCount))
	check("gps_low_sats_critical", fix.VisibleCount < 4, wire.AlertCritical, wire.CategoryNavigation,
		fmt.Sprintf("only %d satellites visible", fix.VisibleCount))
	check("high_wind", windSpeed > 15 && windSpeed <= 25, wire.AlertCaution, wire.CategoryWeather,
		fmt.Sprintf("wind speed %.1f m/s exceeds 15 m/s", windSpeed))
	check("high_wind_critical", windSpeed > 25, wire.AlertCritical, wire.CategoryWeather,
		fmt.Sprintf("wind speed %.1f m/s exceeds 25 m/s", windSpeed))
	check("low_altitude", t.Position.Altitude < 10 && t.Position.Altitude > 0, wire.AlertCaution, wire.CategoryNavigation,
		fmt.Sprintf("altitude %.1f m below 10 m floor", t.Position.Altitude))

	return alerts
}

func degrees(radians float64) float64 {
	d := radians * 180 / math.Pi
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	return d
}

func groundspeed(v flightdynamics.Vector3) float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y)
}
