// Package simhost owns the set of simulated aircraft and drives their
// fixed-rate tick loop: flight dynamics, GPS, environment, flight-plan
// execution, telemetry generation and alert derivation, all published
// through a broker.Broker. Grounded on the simulation goroutine and
// ticker in internal/simulation/flight/jsbsim.go's Run method,
// generalised from that file's single hard-coded aircraft into a
// map-of-aircraft host that the broker's AircraftRouter interface can
// address by ID, and from its free-running timer into the
// context/cancel/WaitGroup cooperative-shutdown pattern spec §5
// requires.
package simhost

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/asgard/groundctl/internal/environment"
	"github.com/asgard/groundctl/internal/flightdynamics"
	"github.com/asgard/groundctl/internal/flightplan"
	"github.com/asgard/groundctl/internal/gpsmodel"
	"github.com/asgard/groundctl/internal/telemetry"
	"github.com/asgard/groundctl/internal/wire"
)

// Publisher is the narrow slice of broker.Broker the host needs, so tests
// can substitute a recording fake without constructing a full Broker.
type Publisher interface {
	Publish(topic string, message interface{}, critical bool)
}

// DefaultTickRateHz is the simulation rate used when New is not given an
// explicit configured rate, matching spec §4.9's documented default.
const DefaultTickRateHz = 50

// Status is the lifecycle state of one aircraft.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusRunning  Status = "running"
	StatusStopped  Status = "stopped"
	StatusEmergency Status = "emergency"
)

// aircraft bundles one simulated airframe's full subsystem stack.
type aircraft struct {
	id     string
	status Status

	dynamics *flightdynamics.Model
	gps      *gpsmodel.Model
	env      *environment.Model
	exec     *flightplan.Executor
	gen      *telemetry.Generator

	lastFix       gpsmodel.Fix
	lastReportLat float64
	lastReportLon float64
	lastReportAlt float64

	unsafe   bool
	lastTick time.Time
}

// Host owns every simulated aircraft and the tick goroutine driving them.
type Host struct {
	pub        Publisher
	tickRateHz float64

	mu       sync.RWMutex
	aircraft map[string]*aircraft
	nextSeed int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Host publishing through pub, ticking at
// DefaultTickRateHz. Use NewWithTickRate to configure a different rate.
func New(pub Publisher) *Host {
	return NewWithTickRate(pub, DefaultTickRateHz)
}

// NewWithTickRate constructs a Host publishing through pub at the given
// tick rate, per spec §4.9's configurable simulation rate.
func NewWithTickRate(pub Publisher, tickRateHz float64) *Host {
	if tickRateHz <= 0 {
		tickRateHz = DefaultTickRateHz
	}
	return &Host{pub: pub, tickRateHz: tickRateHz, aircraft: make(map[string]*aircraft)}
}

// Create registers a new idle aircraft at the given origin. id must be
// unique; seed, if zero, is derived from a monotonically increasing
// internal counter so repeated Create calls in a test still produce
// distinct-but-deterministic sequences.
func (h *Host) Create(id string, aircraftType flightdynamics.AircraftType, lat, lon, altitude float64, seed int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.aircraft[id]; exists {
		return fmt.Errorf("simhost: aircraft %q already exists", id)
	}

	if seed == 0 {
		h.nextSeed++
		seed = h.nextSeed
	}

	params := flightdynamics.DefaultFixedWingParams()
	params.Type = aircraftType

	h.aircraft[id] = &aircraft{
		id:       id,
		status:   StatusIdle,
		dynamics: flightdynamics.New(params, lat, lon, altitude),
		gps:      gpsmodel.New(gpsmodel.Config{Seed: seed}),
		env:      environment.New(environment.DefaultConfig(seed)),
		exec:     flightplan.New(flightplan.EndHold),
		gen:      telemetry.New(id, telemetry.DefaultBatteryParams()),
	}
	return nil
}

// AircraftSummary is one aircraft's entry in List.
type AircraftSummary struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
}

// List returns a summary of every registered aircraft, per spec §4.9's
// "list" operation.
func (h *Host) List() []AircraftSummary {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]AircraftSummary, 0, len(h.aircraft))
	for id, a := range h.aircraft {
		out = append(out, AircraftSummary{ID: id, Status: a.status})
	}
	return out
}

// SystemStatus is the per-aircraft coordination snapshot Health returns,
// grounded on internal/controlplane/coordinator.go's SystemStatus/
// HealthStatus shape, narrowed to the state and last-tick time the
// simulator host tracks.
type SystemStatus struct {
	ID       string    `json:"id"`
	Status   Status    `json:"status"`
	LastTick time.Time `json:"lastTick"`
	Unsafe   bool      `json:"unsafe"`
}

// Health returns a SystemStatus snapshot for every registered aircraft,
// whatever its status.
func (h *Host) Health() []SystemStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]SystemStatus, 0, len(h.aircraft))
	for id, a := range h.aircraft {
		out = append(out, SystemStatus{ID: id, Status: a.status, LastTick: a.lastTick, Unsafe: a.unsafe})
	}
	return out
}

// Delete removes an aircraft. It is a no-op if id is not registered.
func (h *Host) Delete(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.aircraft, id)
}

// Start transitions an aircraft to running. It does not check that a
// flight plan is loaded; without one the executor yields no navigation
// command and the controls keep their last setpoints.
func (h *Host) Start(id string) error {
	a, err := h.get(id)
	if err != nil {
		return err
	}
	h.mu.Lock()
	a.status = StatusRunning
	h.mu.Unlock()
	return nil
}

// Stop transitions an aircraft to stopped; its tick loop continues to run
// but flight-plan navigation no longer advances.
func (h *Host) Stop(id string) error {
	a, err := h.get(id)
	if err != nil {
		return err
	}
	h.mu.Lock()
	a.status = StatusStopped
	h.mu.Unlock()
	return nil
}

// LoadFlightPlan validates and loads plan into the named aircraft's
// executor.
func (h *Host) LoadFlightPlan(id string, plan wire.FlightPlan) error {
	a, err := h.get(id)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return a.exec.Load(plan)
}

// HasAircraft implements broker.AircraftRouter.
func (h *Host) HasAircraft(aircraftID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.aircraft[aircraftID]
	return ok
}

// DeliverCommand implements broker.AircraftRouter: it applies cmd to the
// named aircraft's control/navigation state, per spec §4.9's per-command
// semantics.
func (h *Host) DeliverCommand(aircraftID string, cmd wire.Command) error {
	a, err := h.get(aircraftID)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	switch cmd.CommandType {
	case wire.CommandMissionStart:
		a.status = StatusRunning
	case wire.CommandMissionPause:
		a.status = StatusStopped
	case wire.CommandMissionAbort:
		a.status = StatusStopped
		a.exec.SkipToWaypoint(0)
	case wire.CommandReturnToHome:
		a.status = StatusEmergency
		if err := a.exec.EmergencyReturnToHome(); err != nil {
			return err
		}
	case wire.CommandEmergencyLand:
		a.status = StatusEmergency
		a.exec.EmergencyLand()
		a.dynamics.ApplyEmergencyLand()
	case wire.CommandFlightPlanUpload:
		plan, err := decodeFlightPlan(cmd.Parameters)
		if err != nil {
			return err
		}
		return a.exec.Load(plan)
	case wire.CommandWaypointUpdate:
		idx, err := decodeWaypointIndex(cmd.Parameters)
		if err != nil {
			return err
		}
		a.exec.SkipToWaypoint(idx)
	case wire.CommandParameterSet:
		// Parameter adjustments are applied by the caller reading
		// Parameters directly; no aircraft-side state change is required
		// beyond acknowledging the command, which DeliverCommand's caller
		// (broker) already does via the echo publish.
	}
	return nil
}

func decodeFlightPlan(params map[string]interface{}) (wire.FlightPlan, error) {
	raw, ok := params["flightPlan"]
	if !ok {
		return wire.FlightPlan{}, fmt.Errorf("simhost: flight_plan_upload missing flightPlan parameter")
	}
	plan, ok := raw.(wire.FlightPlan)
	if !ok {
		return wire.FlightPlan{}, fmt.Errorf("simhost: flight_plan_upload parameter is not a wire.FlightPlan")
	}
	return plan, nil
}

func decodeWaypointIndex(params map[string]interface{}) (int, error) {
	raw, ok := params["index"]
	if !ok {
		return 0, fmt.Errorf("simhost: waypoint_update missing index parameter")
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("simhost: waypoint_update index has unexpected type %T", raw)
	}
}

func (h *Host) get(id string) (*aircraft, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	a, ok := h.aircraft[id]
	if !ok {
		return nil, fmt.Errorf("simhost: no such aircraft %q", id)
	}
	return a, nil
}

// Run starts the fixed-rate tick loop and blocks until ctx is cancelled,
// per spec §5's "tick loop is the sole mutator of aircraft state"
// invariant. Callers should run it in its own goroutine.
func (h *Host) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel

	h.wg.Add(1)
	defer h.wg.Done()

	dt := 1.0 / h.tickRateHz
	ticker := time.NewTicker(time.Duration(float64(time.Second) * dt))
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-runCtx.Done():
			return
		case now := <-ticker.C:
			elapsed := now.Sub(last).Seconds()
			last = now
			h.tickAll(elapsed)
		}
	}
}

// Shutdown cancels the tick loop and waits for it to exit.
func (h *Host) Shutdown() {
	if h.cancel != nil {
		h.cancel()
	}
	h.wg.Wait()
}

func (h *Host) tickAll(dt float64) {
	h.mu.Lock()
	ids := make([]string, 0, len(h.aircraft))
	for id := range h.aircraft {
		ids = append(ids, id)
	}
	h.mu.Unlock()

	for _, id := range ids {
		h.tickOne(id, dt)
	}
}

func (h *Host) tickOne(id string, dt float64) {
	h.mu.Lock()
	a, ok := h.aircraft[id]
	if !ok {
		h.mu.Unlock()
		return
	}

	a.env.Tick(dt)
	envState := a.env.AtAltitude(a.dynamics.State.Altitude)

	unsafe := !envState.IsFlightSafe()
	a.exec.SetSafetyDowngrade(unsafe)
	var safetyAlert *wire.SafetyAlert
	if unsafe && !a.unsafe {
		safetyAlert = &wire.SafetyAlert{
			ID:         fmt.Sprintf("%s-mission-safety", id),
			AircraftID: id,
			Level:      wire.AlertCaution,
			Category:   wire.CategoryMission,
			Message:    "conditions unsafe for cruise speed, downgrading",
		}
	}
	a.unsafe = unsafe

	if a.status == StatusRunning || a.status == StatusEmergency {
		cmd, _, err := a.exec.Step(a.dynamics.State.Latitude, a.dynamics.State.Longitude, a.dynamics.State.Altitude)
		if err == nil {
			a.dynamics.SetControls(controlsFromNavigation(a.dynamics.State, cmd))
		}
	}

	a.dynamics.Tick(dt, envState.Atmosphere.Density)
	a.gps.Tick(dt)

	fix, lat, lon, alt := a.gps.Resolve(a.dynamics.State.Latitude, a.dynamics.State.Longitude, a.dynamics.State.Altitude)
	a.lastFix, a.lastReportLat, a.lastReportLon, a.lastReportAlt = fix, lat, lon, alt

	a.gen.Tick(dt, a.dynamics.State.Controls.Throttle)
	rec := a.gen.Build(time.Now().UTC(), a.dynamics, fix, lat, lon, alt, envState, -60, 25)
	alerts := a.gen.DeriveAlerts(rec, fix, envState.Wind.Speed)
	if safetyAlert != nil {
		safetyAlert.Timestamp = rec.Timestamp
		alerts = append(alerts, *safetyAlert)
	}
	a.lastTick = rec.Timestamp

	h.mu.Unlock()

	h.pub.Publish("telemetry/"+id, rec, false)
	for _, alert := range alerts {
		critical := alert.Level == wire.AlertCritical || alert.Level == wire.AlertEmergency
		h.pub.Publish("alerts/"+id, alert, critical)
	}
}

// controlsFromNavigation converts an executor's navigation command into
// raw control surface setpoints via a simple proportional scheme,
// grounded on the applyNavigationCommands step in
// internal/simulation/flight/jsbsim.go.
func controlsFromNavigation(state flightdynamics.State, cmd flightplan.NavigationCommand) flightdynamics.Controls {
	headingError := wrapSigned180(cmd.HeadingDegrees - state.HeadingDegrees())
	altitudeError := cmd.AltitudeMeters - state.Altitude
	speedError := cmd.AirspeedMS - state.Airspeed()

	return flightdynamics.Controls{
		Throttle: clamp01(0.5+speedError*0.02),
		Aileron:  clamp11(headingError * 0.02),
		Elevator: clamp11(altitudeError * 0.01),
		Rudder:   clamp11(headingError * 0.005),
	}
}

func wrapSigned180(deg float64) float64 {
	for deg > 180 {
		deg -= 360
	}
	for deg < -180 {
		deg += 360
	}
	return deg
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clamp11(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
