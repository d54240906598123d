// Package flightplan sequences a loaded wire.FlightPlan into navigation
// commands for one simulated aircraft: waypoint arrival, circling,
// cross-track correction, and end-of-plan policy. Grounded on the
// processNavigation/CalculateSteeringCommand loop in
// Pricilla/internal/navigation/navigator.go and the updateAutopilot
// waypoint-arrival check in internal/simulation/flight/jsbsim.go,
// generalised from those files' single in-process loop into the
// synchronous per-tick Step the simulator host drives (spec §5 requires
// the tick loop to own all state and never suspend on its own timers).
package flightplan

import (
	"fmt"
	"math"

	"github.com/asgard/groundctl/internal/geo"
	"github.com/asgard/groundctl/internal/wire"
)

const waypointReachedRadius = 50.0 // meters, spec §4.7

// EndAction decides what happens after the last waypoint is reached.
type EndAction string

const (
	EndReturnHome EndAction = "return_home"
	EndRepeat     EndAction = "repeat"
	EndHold       EndAction = "hold"
)

// NavigationCommand is what the executor hands to the flight-dynamics
// model each tick.
type NavigationCommand struct {
	HeadingDegrees  float64
	AltitudeMeters  float64
	AirspeedMS      float64
}

// WaypointReached is appended to the executor's log each time a waypoint
// is reached, so property P5 can be checked against the full run.
type WaypointReached struct {
	WaypointID int
	Index      int
}

// Executor drives one aircraft's FlightPlan.
type Executor struct {
	plan      wire.FlightPlan
	endAction EndAction

	currentIndex int
	circling     bool
	circleCenter wire.Position
	circleRadius float64
	circleSign   float64 // +1 or -1 turn direction

	crossTrackError float64
	distanceToTarget float64
	bearingToTarget  float64

	safetyDowngrade bool

	log []WaypointReached
}

// safetyDowngradeScale is how much cruise speed is cut when the
// environment's safety predicate goes false mid-leg, grounded on the
// DecisionState/ReplanRequired slowdown in
// internal/simulation/flight/autonomous.go, narrowed here to a single
// scalar rather than a full replan.
const safetyDowngradeScale = 0.7

// SetSafetyDowngrade toggles the cruise-speed downgrade applied by
// navigationCommand. The simulator host calls this once per tick with
// the current environment.State.IsFlightSafe() result.
func (e *Executor) SetSafetyDowngrade(active bool) {
	e.safetyDowngrade = active
}

// New creates an Executor with no plan loaded.
func New(endAction EndAction) *Executor {
	if endAction == "" {
		endAction = EndHold
	}
	return &Executor{endAction: endAction}
}

// ErrNoHomeWaypoint is returned by EmergencyReturnToHome when the loaded
// plan carries no home waypoint. Per spec §9's Open Questions, emergency
// RTH must fail loudly rather than guess a zero-initialised home.
var ErrNoHomeWaypoint = fmt.Errorf("flightplan: no home waypoint in plan")

// Load replaces the current plan and resets navigation state to the
// start, identically to loading the same plan twice followed by
// SkipToWaypoint(0) (property R3).
func (e *Executor) Load(plan wire.FlightPlan) error {
	if err := plan.Validate(); err != nil {
		return err
	}
	e.plan = plan
	e.plan.Waypoints = append([]wire.Waypoint{}, plan.Waypoints...)
	e.SkipToWaypoint(0)
	return nil
}

// SkipToWaypoint jumps the executor to waypoint index i without
// re-validating the plan.
func (e *Executor) SkipToWaypoint(i int) {
	if i < 0 {
		i = 0
	}
	if len(e.plan.Waypoints) > 0 && i >= len(e.plan.Waypoints) {
		i = len(e.plan.Waypoints) - 1
	}
	e.currentIndex = i
	e.circling = false
	e.crossTrackError = 0
	e.distanceToTarget = 0
}

// CurrentWaypointIndex returns the index of the waypoint currently being
// pursued.
func (e *Executor) CurrentWaypointIndex() int { return e.currentIndex }

// Log returns the waypoint-reached events recorded so far.
func (e *Executor) Log() []WaypointReached { return append([]WaypointReached{}, e.log...) }

// CrossTrackError returns the signed perpendicular distance from the
// current leg, meters.
func (e *Executor) CrossTrackError() float64 { return e.crossTrackError }

// DistanceToTarget returns the straight-line distance to the current
// target, meters.
func (e *Executor) DistanceToTarget() float64 { return e.distanceToTarget }

// Step advances the executor by one tick given the aircraft's current
// position, and returns the navigation command to apply plus any
// waypoints reached this tick. Cruise speed comes from the plan's
// parameters (15 m/s when unset); landing waypoints use 12 m/s.
func (e *Executor) Step(currentLat, currentLon, currentAlt float64) (NavigationCommand, []WaypointReached, error) {
	if len(e.plan.Waypoints) == 0 {
		return NavigationCommand{}, nil, fmt.Errorf("flightplan: no plan loaded")
	}

	target := e.plan.Waypoints[e.currentIndex]

	e.distanceToTarget = geo.Distance(currentLat, currentLon, target.Position.Latitude, target.Position.Longitude)
	e.bearingToTarget = geo.Bearing(currentLat, currentLon, target.Position.Latitude, target.Position.Longitude)

	var reached []WaypointReached

	if target.Type == wire.WaypointCircle && e.circling {
		centerDist := geo.Distance(currentLat, currentLon, e.circleCenter.Latitude, e.circleCenter.Longitude)
		e.crossTrackError = centerDist - e.circleRadius
	} else if e.currentIndex > 0 {
		prev := e.plan.Waypoints[e.currentIndex-1]
		e.crossTrackError = geo.CrossTrack(prev.Position.Latitude, prev.Position.Longitude, target.Position.Latitude, target.Position.Longitude, currentLat, currentLon)
	} else {
		e.crossTrackError = 0
	}

	if target.Type == wire.WaypointCircle {
		radius := 100.0
		if target.Radius != nil {
			radius = *target.Radius
		}
		if !e.circling && e.distanceToTarget <= waypointReachedRadius {
			e.circling = true
			e.circleCenter = target.Position
			e.circleRadius = radius
			e.circleSign = 1
		}
	} else if e.distanceToTarget <= waypointReachedRadius {
		wp := WaypointReached{WaypointID: target.ID, Index: e.currentIndex}
		e.log = append(e.log, wp)
		reached = append(reached, wp)
		e.advance()
	}

	cmd := e.navigationCommand(target, currentAlt)
	return cmd, reached, nil
}

// advance moves currentIndex to the next waypoint, applying the
// end-of-plan policy once the last waypoint has been consumed.
func (e *Executor) advance() {
	e.circling = false
	e.currentIndex++
	if e.currentIndex < len(e.plan.Waypoints) {
		return
	}
	switch e.endAction {
	case EndReturnHome:
		e.currentIndex = 0
	case EndRepeat:
		e.currentIndex = 0
	case EndHold:
		e.currentIndex = len(e.plan.Waypoints) - 1
	default:
		e.currentIndex = len(e.plan.Waypoints) - 1
	}
}

func (e *Executor) navigationCommand(target wire.Waypoint, currentAlt float64) NavigationCommand {
	cruiseSpeed := e.plan.Parameters.CruiseSpeed
	if cruiseSpeed <= 0 {
		cruiseSpeed = 15
	}
	approachSpeed := 12.0
	speed := cruiseSpeed
	if target.Type == wire.WaypointLanding {
		speed = approachSpeed
	}
	if e.safetyDowngrade {
		speed *= safetyDowngradeScale
	}

	altitude := target.Position.Altitude

	var heading float64
	if e.circling {
		tangent := geo.WrapDegrees(e.bearingToTarget + 90*e.circleSign)
		radiusError := e.crossTrackError
		correction := math.Atan2(radiusError, e.circleRadius) * 180 / math.Pi
		heading = geo.WrapDegrees(tangent - correction)
	} else {
		correction := math.Atan2(e.crossTrackError, math.Max(50, e.distanceToTarget)) * 180 / math.Pi
		heading = geo.WrapDegrees(e.bearingToTarget - correction)
	}

	return NavigationCommand{
		HeadingDegrees: heading,
		AltitudeMeters: altitude,
		AirspeedMS:     speed,
	}
}

// EmergencyReturnToHome jumps the executor to the plan's home waypoint.
// Per spec §9, if the plan has no home waypoint this fails rather than
// assuming a zero-initialised origin.
func (e *Executor) EmergencyReturnToHome() error {
	home, ok := e.plan.Home()
	_ = home
	if !ok {
		return ErrNoHomeWaypoint
	}
	for i, wp := range e.plan.Waypoints {
		if wp.Type == wire.WaypointHome {
			e.SkipToWaypoint(i)
			return nil
		}
	}
	return ErrNoHomeWaypoint
}

// EmergencyLand sets the current target's effective altitude to 0 by
// overwriting the in-flight target waypoint's altitude (and marking it a
// landing waypoint) in the executor's own copy of the plan, for the
// remainder of this plan. The plan value passed to Load is not modified,
// since Load copies its waypoints.
func (e *Executor) EmergencyLand() {
	if len(e.plan.Waypoints) == 0 {
		return
	}
	e.plan.Waypoints[e.currentIndex].Position.Altitude = 0
	e.plan.Waypoints[e.currentIndex].Type = wire.WaypointLanding
}
