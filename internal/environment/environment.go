// Package environment evolves wind, atmosphere, visibility and
// precipitation state for one simulated aircraft. Grounded on the
// WeatherConditions struct and weatherUpdateLoop in
// internal/simulation/flight/jsbsim.go, generalised from a single global
// weather snapshot into a seedable, altitude-aware, per-aircraft model as
// required by spec §4.4.
package environment

import (
	"math"
	"math/rand"
)

// Precipitation enumerates the precipitation state of the environment.
type Precipitation string

const (
	PrecipNone Precipitation = "none"
	PrecipRain Precipitation = "rain"
)

// Wind is the current wind state.
type Wind struct {
	Speed      float64 // m/s, sea-level reference
	Direction  float64 // degrees [0,360)
	Gusts      float64 // m/s
	Turbulence float64 // [0,1]
}

// Atmosphere is the current thermodynamic state, sea-level reference.
type Atmosphere struct {
	Temperature float64 // Celsius
	Pressure    float64 // hPa
	Humidity    float64 // [0,100]
	Density     float64 // kg/m^3
}

// Visibility describes how far and how high one can see.
type Visibility struct {
	RangeMeters float64
	CeilingM    float64
}

// State is the complete environment snapshot at a point in time.
type State struct {
	Wind          Wind
	Atmosphere    Atmosphere
	Visibility    Visibility
	Precipitation Precipitation
	PrecipIntensity float64 // [0,1]
}

// Model evolves environment State over time for one aircraft. It is
// seedable so tests can reproduce a run deterministically (spec §9
// "Determinism for tests").
type Model struct {
	rng *rand.Rand

	baseWindSpeed     float64
	baseWindDirection float64
	baseTurbulence    float64
	weatherAmplitude  float64

	t float64 // seconds of simulated time, advances by Δt each Tick

	state State
}

// Config seeds the base climatology a Model evolves around.
type Config struct {
	Seed              int64
	BaseWindSpeed     float64
	BaseWindDirection float64
	BaseTurbulence    float64
	WeatherAmplitude  float64 // temperature sinusoid amplitude, °C
}

// DefaultConfig returns typical fair-weather mid-latitude defaults.
func DefaultConfig(seed int64) Config {
	return Config{
		Seed:              seed,
		BaseWindSpeed:     3,
		BaseWindDirection: 270,
		BaseTurbulence:    0.1,
		WeatherAmplitude:  10,
	}
}

// New creates an environment Model from Config.
func New(cfg Config) *Model {
	m := &Model{
		rng:               rand.New(rand.NewSource(cfg.Seed)),
		baseWindSpeed:     cfg.BaseWindSpeed,
		baseWindDirection: cfg.BaseWindDirection,
		baseTurbulence:    cfg.BaseTurbulence,
		weatherAmplitude:  cfg.WeatherAmplitude,
	}
	m.state = State{
		Wind: Wind{Speed: cfg.BaseWindSpeed, Direction: cfg.BaseWindDirection, Turbulence: cfg.BaseTurbulence},
		Atmosphere: Atmosphere{
			Temperature: 15,
			Pressure:    1013.25,
			Humidity:    50,
		},
		Visibility: Visibility{RangeMeters: 10000, CeilingM: 3000},
	}
	m.state.Atmosphere.Density = airDensity(m.state.Atmosphere.Temperature, m.state.Atmosphere.Pressure, m.state.Atmosphere.Humidity)
	return m
}

// Tick advances the model by dt seconds per spec §4.4's evolution rules.
func (m *Model) Tick(dt float64) {
	m.t += dt
	t := m.t

	windSpeed := m.baseWindSpeed + 2*math.Sin(2*math.Pi*0.1*t) + 1*math.Sin(2*math.Pi*0.3*t)
	if windSpeed < 0 {
		windSpeed = 0
	}
	m.state.Wind.Speed = windSpeed

	dir := m.baseWindDirection + 15*math.Sin(2*math.Pi*0.05*t)
	m.state.Wind.Direction = wrap360(dir)

	if m.rng.Float64() < 0.01 {
		m.state.Wind.Gusts = windSpeed * (1.2 + m.rng.Float64()*0.8)
	} else {
		m.state.Wind.Gusts -= 5 * dt
		if m.state.Wind.Gusts < 0 {
			m.state.Wind.Gusts = 0
		}
	}

	turb := m.baseTurbulence + (m.rng.Float64()*0.1 - 0.05)
	m.state.Wind.Turbulence = clamp(turb, 0, 1)

	m.state.Atmosphere.Temperature = 15 + m.weatherAmplitude*math.Sin(0.001*t)
	m.state.Atmosphere.Pressure = 1013.25 + 20*math.Sin(0.0005*t)
	humidity := 50 + 30*math.Sin(0.0003*t+1)
	m.state.Atmosphere.Humidity = clamp(humidity, 10, 90)
	m.state.Atmosphere.Density = airDensity(m.state.Atmosphere.Temperature, m.state.Atmosphere.Pressure, m.state.Atmosphere.Humidity)

	if m.state.Atmosphere.Humidity > 85 {
		over := m.state.Atmosphere.Humidity - 85
		m.state.Visibility.RangeMeters = math.Max(1000, 10000-over*600)
	} else {
		m.state.Visibility.RangeMeters = 10000
	}

	weatherCycleIndex := math.Sin(0.0002*t + 2.1)
	if weatherCycleIndex < -0.7 && m.state.Atmosphere.Humidity > 80 {
		m.state.Precipitation = PrecipRain
		m.state.PrecipIntensity = clamp((-0.7-weatherCycleIndex)/0.3, 0, 1)
	} else {
		m.state.Precipitation = PrecipNone
		m.state.PrecipIntensity = 0
	}
}

// AtAltitude returns the environment State adjusted for altitude (meters
// AGL) per spec §4.4's "Altitude lookups".
func (m *Model) AtAltitude(altitudeMeters float64) State {
	s := m.state

	windScale := math.Min(2, 1+altitudeMeters/1000)
	s.Wind.Speed *= windScale
	s.Wind.Gusts *= windScale

	switch {
	case altitudeMeters <= 3000:
		s.Wind.Turbulence *= 1.0 + (altitudeMeters/3000)*0.5
	case altitudeMeters >= 5000 && altitudeMeters <= 15000:
		s.Wind.Turbulence *= 1.3
	}
	s.Wind.Turbulence = clamp(s.Wind.Turbulence, 0, 1)

	const lapseRate = 0.0065
	seaLevelTempK := s.Atmosphere.Temperature + 273.15
	tempK := seaLevelTempK - lapseRate*altitudeMeters
	s.Atmosphere.Temperature = tempK - 273.15

	const exponent = 5.2561
	s.Atmosphere.Pressure = s.Atmosphere.Pressure * math.Pow(1-lapseRate*altitudeMeters/seaLevelTempK, exponent)
	s.Atmosphere.Density = airDensity(s.Atmosphere.Temperature, s.Atmosphere.Pressure, s.Atmosphere.Humidity)

	return s
}

// IsFlightSafe implements spec §4.4's safety predicate.
func (s State) IsFlightSafe() bool {
	return s.Wind.Speed <= 15 &&
		s.Wind.Gusts <= 20 &&
		s.Visibility.RangeMeters >= 5000 &&
		s.PrecipIntensity <= 0.5 &&
		s.Wind.Turbulence <= 0.7
}

// airDensity computes density from the ideal-gas law using virtual
// temperature to account for humidity, per the Glossary's density
// reference.
func airDensity(tempC, pressureHPa, humidityPct float64) float64 {
	tempK := tempC + 273.15
	const satVaporCoeff = 6.1078
	satVaporPressure := satVaporCoeff * math.Pow(10, 7.5*tempC/(tempC+237.3))
	vaporPressure := (humidityPct / 100) * satVaporPressure
	dryPressure := pressureHPa - vaporPressure

	const rDry = 287.05   // J/(kg*K)
	const rVapor = 461.495 // J/(kg*K)

	return (dryPressure*100)/(rDry*tempK) + (vaporPressure*100)/(rVapor*tempK)
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

func wrap360(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}
