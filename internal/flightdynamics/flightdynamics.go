// Package flightdynamics integrates a 6-DoF rigid-body model for a single
// simulated aircraft, fixed-wing or rotorcraft. Grounded on the
// updateFlightDynamics step and clamp/lerp helpers in
// internal/simulation/flight/jsbsim.go, generalised from that file's
// simplified 2D point-mass update into the full force/moment model spec
// §4.6 requires (gravity, drag, lift, thrust, body-axis moments,
// semi-implicit Euler, ground contact with hard-landing behavior).
package flightdynamics

import "math"

const gravity = 9.81

// AircraftType selects which aerodynamic terms apply.
type AircraftType string

const (
	FixedWing  AircraftType = "fixed_wing"
	Rotorcraft AircraftType = "rotorcraft"
)

// Params are the per-airframe physical constants.
type Params struct {
	Type       AircraftType
	Mass       float64 // kg
	DragCoeff  float64 // Cd
	LiftCoeff  float64 // CL, fixed-wing only
	WingArea   float64 // m^2, S
	MaxThrust  float64 // N
}

// DefaultFixedWingParams is a small fixed-wing UAS similar in scale to the
// teacher's 1000 kg/5000 N reference numbers, scaled down to a sUAS.
func DefaultFixedWingParams() Params {
	return Params{
		Type:      FixedWing,
		Mass:      25,
		DragCoeff: 0.035,
		LiftCoeff: 1.2,
		WingArea:  1.5,
		MaxThrust: 90,
	}
}

// Controls are the setpoints driving the model, written either through
// SetControls (the simulator host's navigation step) or through
// ApplyEmergencyLand (an emergency_land command).
type Controls struct {
	Throttle float64 // [0,1]
	Aileron  float64 // [-1,1]
	Elevator float64 // [-1,1]
	Rudder   float64 // [-1,1]
}

// Vector3 is a world-frame vector, x east, y north, z up.
type Vector3 struct {
	X, Y, Z float64
}

// State is the full rigid-body state of one aircraft.
type State struct {
	Latitude  float64
	Longitude float64
	Altitude  float64 // meters AGL

	Velocity     Vector3 // m/s, body-relative-to-world, x east y north z up
	Acceleration Vector3

	// Attitude in radians: roll/yaw wrapped to (-pi,pi], pitch clamped to
	// [-pi/2,pi/2].
	Roll, Pitch, Yaw          float64
	RollRate, PitchRate, YawRate float64

	Controls Controls

	onGround bool
}

// Model wraps Params + State and exposes the Tick used by the simulator
// host.
type Model struct {
	Params Params
	State  State
}

// New creates a Model at the given geodetic origin with level attitude at
// rest.
func New(params Params, lat, lon, altitude float64) *Model {
	return &Model{
		Params: params,
		State: State{
			Latitude:  lat,
			Longitude: lon,
			Altitude:  altitude,
		},
	}
}

// SetControls applies new control setpoints, clamped to their valid
// ranges.
func (m *Model) SetControls(c Controls) {
	m.State.Controls = Controls{
		Throttle: clamp(c.Throttle, 0, 1),
		Aileron:  clamp(c.Aileron, -1, 1),
		Elevator: clamp(c.Elevator, -1, 1),
		Rudder:   clamp(c.Rudder, -1, 1),
	}
}

// ApplyEmergencyLand sets the emergency-land control profile per spec
// §4.6: throttle=0.2, elevator=+0.3.
func (m *Model) ApplyEmergencyLand() {
	m.State.Controls.Throttle = 0.2
	m.State.Controls.Elevator = 0.3
}

// Tick advances the rigid body by dt seconds using semi-implicit Euler
// integration over the force model in spec §4.6.
func (m *Model) Tick(dt float64, airDensity float64) {
	s := &m.State
	p := m.Params

	v := s.Velocity
	speed := math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)

	force := Vector3{}

	// Gravity
	force.Z -= p.Mass * gravity

	// Drag, opposes velocity
	if speed > 1e-6 {
		dragMag := p.DragCoeff * 0.5 * airDensity * speed * speed
		force.X -= dragMag * v.X / speed
		force.Y -= dragMag * v.Y / speed
		force.Z -= dragMag * v.Z / speed
	}

	// Lift, fixed-wing only, rotated by roll into vertical/horizontal
	// components
	if p.Type == FixedWing {
		liftMag := p.LiftCoeff * math.Sin(s.Pitch) * p.WingArea * 0.5 * airDensity * speed * speed
		force.Z += liftMag * math.Cos(s.Roll)
		force.Y += liftMag * math.Sin(s.Roll)
	}

	// Thrust along body x axis, rotated by yaw and pitch into world frame
	thrustMag := s.Controls.Throttle * p.MaxThrust
	force.X += thrustMag * math.Cos(s.Yaw) * math.Cos(s.Pitch)
	force.Y += thrustMag * math.Sin(s.Yaw) * math.Cos(s.Pitch)
	force.Z += thrustMag * math.Sin(s.Pitch)

	accel := Vector3{
		X: force.X / p.Mass,
		Y: force.Y / p.Mass,
		Z: force.Z / p.Mass,
	}
	s.Acceleration = accel

	s.Velocity.X += accel.X * dt
	s.Velocity.Y += accel.Y * dt
	s.Velocity.Z += accel.Z * dt

	// Moments: scale by control-effectiveness factor min(1, V/20)
	effectiveness := math.Min(1, speed/20)
	rollMoment := s.Controls.Aileron * 10 * effectiveness
	pitchMoment := s.Controls.Elevator * 8 * effectiveness
	yawMoment := s.Controls.Rudder * 6 * effectiveness

	s.RollRate = (s.RollRate + rollMoment*dt) * 0.95
	s.PitchRate = (s.PitchRate + pitchMoment*dt) * 0.95
	s.YawRate = (s.YawRate + yawMoment*dt) * 0.95

	s.Roll = wrapPi(s.Roll + s.RollRate*dt)
	s.Pitch = clamp(s.Pitch+s.PitchRate*dt, -math.Pi/2, math.Pi/2)
	s.Yaw = wrapPi(s.Yaw + s.YawRate*dt)

	// Position update, flat-earth approximation
	const metersPerDegree = 111320.0
	dLatDeg := (s.Velocity.Y * dt) / metersPerDegree
	dLonDeg := (s.Velocity.X * dt) / (metersPerDegree * math.Cos(s.Latitude*math.Pi/180))
	s.Latitude += dLatDeg
	s.Longitude += dLonDeg
	s.Altitude += s.Velocity.Z * dt

	m.applyGroundContact()
}

func (m *Model) applyGroundContact() {
	s := &m.State
	if s.Altitude > 0 {
		s.onGround = false
		return
	}

	s.Altitude = 0
	if s.Velocity.Z < -2 {
		s.Velocity.X *= 0.1
		s.Velocity.Y *= 0.1
		s.Velocity.Z = 0
	} else if s.Velocity.Z < 0 {
		s.Velocity.Z = 0
	}
	s.onGround = true
}

// OnGround reports whether the last tick ended in ground contact.
func (m *Model) OnGround() bool { return m.State.onGround }

// Airspeed returns the magnitude of the body velocity vector.
func (s State) Airspeed() float64 {
	return math.Sqrt(s.Velocity.X*s.Velocity.X + s.Velocity.Y*s.Velocity.Y + s.Velocity.Z*s.Velocity.Z)
}

// HeadingDegrees returns yaw converted to a compass heading in [0,360).
func (s State) HeadingDegrees() float64 {
	deg := s.Yaw * 180 / math.Pi
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
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

func wrapPi(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}
