// Package gpsmodel turns a simulated aircraft's true position into a
// reported position with satellite visibility, DOP, and fix-type
// semantics, per spec §4.5. Grounded on the per-tick evolved-state pattern
// used throughout internal/simulation/flight/jsbsim.go (struct of state,
// Tick-style mutator, seedable randomness) — no satellite-visibility GPS
// receiver model exists elsewhere in the corpus; internal/platform/satellite
// models orbiting-satellite SGP4 propagation, a different problem (ground
// station tracking a spacecraft, not a receiver counting overhead GPS SVs).
package gpsmodel

import (
	"math"
	"math/rand"
)

const satelliteCount = 32

// FixType is the quality of the most recent position solution.
type FixType string

const (
	FixNone FixType = "none"
	Fix2D   FixType = "2d"
	Fix3D   FixType = "3d"
	FixDGPS FixType = "dgps"
	FixRTK  FixType = "rtk"
)

// Satellite is one member of the simulated constellation.
type Satellite struct {
	ID        int
	Elevation float64 // degrees
	Azimuth   float64 // degrees
	SNR       float64 // dB-Hz
	Healthy   bool
}

func (s Satellite) visible() bool {
	return s.Elevation > 15 && s.Healthy && s.SNR > 30
}

// Fix is the receiver's computed position-quality snapshot for one tick.
type Fix struct {
	Type           FixType
	VisibleCount   int
	HDOP           float64
	VDOP           float64
	AccuracyMeters float64
}

// Model simulates a GPS receiver aboard one aircraft.
type Model struct {
	rng        *rand.Rand
	satellites [satelliteCount]Satellite

	mode            FixType // forced dgps/rtk, or "" for auto none/2d/3d
	baseStationDist float64 // km, for dgps eligibility

	updateHz      float64
	sinceUpdate   float64
	haveLastFix   bool
	lastLat       float64
	lastLon       float64
	lastAltOffset float64
}

// Config seeds a GPS Model.
type Config struct {
	Seed     int64
	UpdateHz float64 // default 10
}

// New creates a GPS Model with a full constellation distributed across the
// sky.
func New(cfg Config) *Model {
	m := &Model{
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		updateHz: cfg.UpdateHz,
	}
	if m.updateHz <= 0 {
		m.updateHz = 10
	}
	for i := 0; i < satelliteCount; i++ {
		m.satellites[i] = Satellite{
			ID:        i + 1,
			Elevation: m.rng.Float64() * 90,
			Azimuth:   m.rng.Float64() * 360,
			Healthy:   true,
		}
		m.satellites[i].SNR = 35 + (m.satellites[i].Elevation/90)*15
	}
	return m
}

// Tick evolves the constellation by dt seconds per spec §4.5.
func (m *Model) Tick(dt float64) {
	m.sinceUpdate += dt
	for i := range m.satellites {
		sat := &m.satellites[i]
		sat.Azimuth += 0.5 / 60 * dt
		sat.Azimuth = math.Mod(sat.Azimuth, 360)

		sat.Elevation += (m.rng.Float64() - 0.5) * 0.05 * dt
		sat.Elevation = clamp(sat.Elevation, 0, 90)

		noise := (m.rng.Float64()*2 - 1) * 5
		sat.SNR = clamp(35+(sat.Elevation/90)*15+noise, 20, 50)

		if m.rng.Float64() < 1.0/10000 {
			sat.Healthy = !sat.Healthy
		}
	}
}

// ForceMode forces dgps or rtk mode. baseStationDistKm is only consulted
// for dgps, which requires a base station within 100 km.
func (m *Model) ForceMode(mode FixType, baseStationDistKm float64) {
	m.mode = mode
	m.baseStationDist = baseStationDistKm
}

// ClearForcedMode returns the model to automatic none/2d/3d fix typing.
func (m *Model) ClearForcedMode() {
	m.mode = ""
}

// visibleSatellites returns the count and mean elevation of visible SVs.
func (m *Model) visibleSatellites() (count int, meanElev float64) {
	for _, sat := range m.satellites {
		if sat.visible() {
			count++
			meanElev += sat.Elevation
		}
	}
	if count > 0 {
		meanElev /= float64(count)
	}
	return count, meanElev
}

// Resolve computes the current Fix and a reported position derived from
// truLat/trueLon/trueAlt, applying the fix-type, DOP and random-walk error
// model of spec §4.5. It may be called every tick: a new reported position
// is drawn only once 1/UpdateHz seconds of Tick time have accumulated, and
// between updates the last reported position is returned. With no fix the
// reported position stays at the last one (property P4).
func (m *Model) Resolve(trueLat, trueLon, trueAlt float64) (Fix, float64, float64, float64) {
	count, meanElev := m.visibleSatellites()

	var fixType FixType
	switch {
	case count < 4:
		fixType = FixNone
	case count == 4:
		fixType = Fix2D
	default:
		fixType = Fix3D
	}

	baseAccuracy := 3.0
	if m.mode == FixDGPS && m.baseStationDist < 100 {
		fixType = FixDGPS
		baseAccuracy = 1.0
	} else if m.mode == FixRTK {
		fixType = FixRTK
		baseAccuracy = 0.02
	}

	if fixType == FixNone {
		fix := Fix{Type: FixNone, VisibleCount: count, HDOP: 0, VDOP: 0, AccuracyMeters: 999}
		if m.haveLastFix {
			return fix, m.lastLat, m.lastLon, m.lastAltOffset
		}
		m.haveLastFix = true
		m.lastLat, m.lastLon, m.lastAltOffset = trueLat, trueLon, trueAlt
		return fix, trueLat, trueLon, trueAlt
	}

	hdop := (4 / math.Sqrt(float64(count))) * (1 + (45-meanElev)/45)
	vdop := 1.5 * hdop
	accuracy := baseAccuracy * hdop

	due := m.sinceUpdate >= 1.0/m.updateHz
	if !due && m.haveLastFix {
		fix := Fix{Type: fixType, VisibleCount: count, HDOP: hdop, VDOP: vdop, AccuracyMeters: accuracy}
		return fix, m.lastLat, m.lastLon, m.lastAltOffset
	}
	m.sinceUpdate = 0

	magnitude := accuracy
	bearing := m.rng.Float64() * 2 * math.Pi
	dEast := magnitude * math.Cos(bearing)
	dNorth := magnitude * math.Sin(bearing)

	const earthRadius = 6371000.0
	dLat := (dNorth / earthRadius) * (180 / math.Pi)
	dLon := (dEast / (earthRadius * math.Cos(trueLat*math.Pi/180))) * (180 / math.Pi)

	reportedLat := trueLat + dLat
	reportedLon := trueLon + dLon
	reportedAlt := trueAlt + magnitude*1.5*(m.rng.Float64()*2-1)

	m.haveLastFix = true
	m.lastLat, m.lastLon, m.lastAltOffset = reportedLat, reportedLon, reportedAlt

	return Fix{Type: fixType, VisibleCount: count, HDOP: hdop, VDOP: vdop, AccuracyMeters: accuracy}, reportedLat, reportedLon, reportedAlt
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
