// Package wire defines the validated shapes shared by the telemetry broker
// and the flight simulator: Telemetry, Command, and the records they embed.
package wire

import (
	"fmt"
	"time"
)

// Position is a geodetic fix. Altitude is AGL unless a record explicitly
// carries a reference.
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
}

func (p Position) Validate() error {
	if p.Latitude < -90 || p.Latitude > 90 {
		return fmt.Errorf("wire: latitude %.6f out of range", p.Latitude)
	}
	if p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("wire: longitude %.6f out of range", p.Longitude)
	}
	return nil
}

// Attitude is the Euler orientation of an airframe, degrees in [0,360).
type Attitude struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// Speed bundles airspeed, groundspeed and vertical speed, m/s. Positive
// vertical speed is climb.
type Speed struct {
	Airspeed      float64 `json:"airspeed"`
	Groundspeed   float64 `json:"groundspeed"`
	VerticalSpeed float64 `json:"verticalSpeed"`
}

// SystemHealth carries the airframe's housekeeping telemetry.
type SystemHealth struct {
	Battery       float64  `json:"battery"`
	Fuel          *float64 `json:"fuel,omitempty"`
	GPSSatellites int      `json:"gpsSatellites"`
	GPSAccuracy   float64  `json:"gpsAccuracy"`
	DatalinkRSSI  float64  `json:"datalinkRssi"`
	CPULoad       float64  `json:"cpuLoad"`
	Temperature   float64  `json:"temperature"`
}

func (s SystemHealth) Validate() error {
	if s.Battery < 0 || s.Battery > 100 {
		return fmt.Errorf("wire: battery %.2f out of range", s.Battery)
	}
	if s.Fuel != nil && (*s.Fuel < 0 || *s.Fuel > 100) {
		return fmt.Errorf("wire: fuel %.2f out of range", *s.Fuel)
	}
	if s.GPSSatellites < 0 {
		return fmt.Errorf("wire: gpsSatellites %d negative", s.GPSSatellites)
	}
	if s.GPSAccuracy < 0 {
		return fmt.Errorf("wire: gpsAccuracy %.2f negative", s.GPSAccuracy)
	}
	if s.CPULoad < 0 || s.CPULoad > 100 {
		return fmt.Errorf("wire: cpuLoad %.2f out of range", s.CPULoad)
	}
	return nil
}

// AirQuality is an optional tuple carried inside Environmental.
type AirQuality struct {
	PM25 float64 `json:"pm25"`
	AQI  float64 `json:"aqi"`
}

// Environmental is the optional weather snapshot attached to a Telemetry
// record.
type Environmental struct {
	Temperature   float64     `json:"temperature"`
	Humidity      float64     `json:"humidity"`
	Pressure      float64     `json:"pressure"`
	WindSpeed     float64     `json:"windSpeed"`
	WindDirection float64     `json:"windDirection"`
	AirQuality    *AirQuality `json:"airQuality,omitempty"`
}

func (e Environmental) Validate() error {
	if e.Humidity < 0 || e.Humidity > 100 {
		return fmt.Errorf("wire: humidity %.2f out of range", e.Humidity)
	}
	if e.WindSpeed < 0 {
		return fmt.Errorf("wire: windSpeed %.2f negative", e.WindSpeed)
	}
	if e.WindDirection < 0 || e.WindDirection >= 360 {
		return fmt.Errorf("wire: windDirection %.2f out of range", e.WindDirection)
	}
	return nil
}

// Telemetry is one immutable record published under telemetry/<aircraftId>.
type Telemetry struct {
	Timestamp     time.Time      `json:"timestamp"`
	AircraftID    string         `json:"aircraftId"`
	MessageID     uint64         `json:"messageId"`
	Position      Position       `json:"position"`
	Attitude      Attitude       `json:"attitude"`
	Speed         Speed          `json:"speed"`
	SystemHealth  SystemHealth   `json:"systemHealth"`
	Environmental *Environmental `json:"environmental,omitempty"`
}

func (t Telemetry) Validate() error {
	if t.AircraftID == "" {
		return fmt.Errorf("wire: telemetry aircraftId empty")
	}
	if err := t.Position.Validate(); err != nil {
		return err
	}
	if err := t.SystemHealth.Validate(); err != nil {
		return err
	}
	if t.Environmental != nil {
		if err := t.Environmental.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// WaypointType enumerates the role a Waypoint plays in a FlightPlan.
type WaypointType string

const (
	WaypointTakeoff  WaypointType = "takeoff"
	WaypointWaypoint WaypointType = "waypoint"
	WaypointSurvey   WaypointType = "survey"
	WaypointCircle   WaypointType = "circle"
	WaypointLanding  WaypointType = "landing"
	WaypointHome     WaypointType = "home"
)

// Waypoint is one leg of a FlightPlan.
type Waypoint struct {
	ID       int          `json:"id"`
	Name     string       `json:"name,omitempty"`
	Position Position     `json:"position"`
	Type     WaypointType `json:"type"`
	Actions  []string     `json:"actions,omitempty"`
	Radius   *float64     `json:"radius,omitempty"`
	Duration *float64     `json:"duration,omitempty"`
}

// WeatherLimits bounds the flyable weather envelope of a FlightPlan.
type WeatherLimits struct {
	MaxWind        float64 `json:"maxWind"`
	MinVisibility  float64 `json:"minVisibility"`
	MinTemperature float64 `json:"minTemperature"`
	MaxTemperature float64 `json:"maxTemperature"`
}

// FlightPlanParameters carries the operational defaults and limits a
// FlightPlan is executed under.
type FlightPlanParameters struct {
	CruiseSpeed    float64       `json:"cruiseSpeed"`
	CruiseAltitude float64       `json:"cruiseAltitude"`
	MaxAltitude    float64       `json:"maxAltitude"`
	FuelLimit      *float64      `json:"fuelLimit,omitempty"`
	BatteryLimit   *float64      `json:"batteryLimit,omitempty"`
	WeatherLimits  WeatherLimits `json:"weatherLimits"`
}

// FlightPlan is an ordered sequence of waypoints plus execution parameters.
type FlightPlan struct {
	ID         string               `json:"id"`
	Name       string               `json:"name"`
	AircraftID string               `json:"aircraftId"`
	Waypoints  []Waypoint           `json:"waypoints"`
	Parameters FlightPlanParameters `json:"parameters"`
	CreatedAt  time.Time            `json:"createdAt"`
	UpdatedAt  time.Time            `json:"updatedAt"`
}

func (p FlightPlan) Validate() error {
	if len(p.Waypoints) == 0 {
		return fmt.Errorf("wire: flight plan %s has no waypoints", p.ID)
	}
	if p.Parameters.CruiseAltitude > p.Parameters.MaxAltitude {
		return fmt.Errorf("wire: cruiseAltitude %.1f exceeds maxAltitude %.1f", p.Parameters.CruiseAltitude, p.Parameters.MaxAltitude)
	}
	first := p.Waypoints[0].Type
	if first != WaypointTakeoff && first != WaypointHome {
		return fmt.Errorf("wire: flight plan %s must start with takeoff or home, got %s", p.ID, first)
	}
	homeCount := 0
	for _, wp := range p.Waypoints {
		if wp.Type == WaypointHome {
			homeCount++
		}
	}
	if homeCount > 1 {
		return fmt.Errorf("wire: flight plan %s has %d home waypoints, at most one allowed", p.ID, homeCount)
	}
	return nil
}

// Home returns the plan's home waypoint, if any.
func (p FlightPlan) Home() (Waypoint, bool) {
	for _, wp := range p.Waypoints {
		if wp.Type == WaypointHome {
			return wp, true
		}
	}
	return Waypoint{}, false
}

// Turbulence levels used by FlightEnvelope.Weather.
type TurbulenceLevel string

const (
	TurbulenceLight    TurbulenceLevel = "light"
	TurbulenceModerate TurbulenceLevel = "moderate"
	TurbulenceSevere   TurbulenceLevel = "severe"
)

// AirspeedEnvelope bounds an aircraft type's flyable airspeed.
type AirspeedEnvelope struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Cruise float64 `json:"cruise"`
}

// AltitudeEnvelope bounds an aircraft type's flyable altitude.
type AltitudeEnvelope struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Cruise float64 `json:"cruise"`
}

// WeatherEnvelope bounds the weather an aircraft type may fly in.
type WeatherEnvelope struct {
	MaxWindSpeed   float64         `json:"maxWindSpeed"`
	MinVisibility  float64         `json:"minVisibility"`
	MaxTurbulence  TurbulenceLevel `json:"maxTurbulence"`
}

// FlightEnvelope is the structural flight-capability limit of an aircraft
// type, independent of any particular FlightPlan.
type FlightEnvelope struct {
	Airspeed  AirspeedEnvelope `json:"airspeed"`
	Altitude  AltitudeEnvelope `json:"altitude"`
	BankAngle struct {
		Max float64 `json:"max"`
	} `json:"bankAngle"`
	Weather WeatherEnvelope `json:"weather"`
}

func (e FlightEnvelope) Validate() error {
	if !(e.Airspeed.Min < e.Airspeed.Cruise && e.Airspeed.Cruise < e.Airspeed.Max) {
		return fmt.Errorf("wire: flight envelope airspeed must satisfy min < cruise < max")
	}
	if !(e.Altitude.Min < e.Altitude.Cruise && e.Altitude.Cruise < e.Altitude.Max) {
		return fmt.Errorf("wire: flight envelope altitude must satisfy min < cruise < max")
	}
	return nil
}

// CommandType enumerates the kinds of command a subscriber may issue.
type CommandType string

const (
	CommandWaypointUpdate   CommandType = "waypoint_update"
	CommandFlightPlanUpload CommandType = "flight_plan_upload"
	CommandParameterSet     CommandType = "parameter_set"
	CommandMissionStart     CommandType = "mission_start"
	CommandMissionPause     CommandType = "mission_pause"
	CommandMissionAbort     CommandType = "mission_abort"
	CommandReturnToHome     CommandType = "return_to_home"
	CommandEmergencyLand    CommandType = "emergency_land"
)

// Priority orders delivery and queue-drop precedence for a Command.
type Priority string

const (
	PriorityLow       Priority = "low"
	PriorityNormal    Priority = "normal"
	PriorityHigh      Priority = "high"
	PriorityEmergency Priority = "emergency"
)

// Command is the message carried back from a subscriber to an aircraft.
// Its per-commandType arguments stay in the free-form Parameters map after
// decoding; there are no typed per-command fields, and the receiver reads
// the keys it needs (simhost reads "index" for waypoint_update and
// "flightPlan" for flight_plan_upload).
type Command struct {
	Timestamp       time.Time              `json:"timestamp"`
	Source          string                 `json:"source"`
	Destination     string                 `json:"destination"`
	CommandType     CommandType            `json:"commandType"`
	Parameters      map[string]interface{} `json:"parameters,omitempty"`
	Priority        Priority               `json:"priority"`
	RequiresAck     bool                   `json:"requiresAck"`
}

func (c Command) Validate() error {
	if c.Destination == "" {
		return fmt.Errorf("wire: command destination empty")
	}
	switch c.CommandType {
	case CommandWaypointUpdate, CommandFlightPlanUpload, CommandParameterSet,
		CommandMissionStart, CommandMissionPause, CommandMissionAbort,
		CommandReturnToHome, CommandEmergencyLand:
	default:
		return fmt.Errorf("wire: unknown commandType %q", c.CommandType)
	}
	if c.Priority == PriorityEmergency && !c.RequiresAck {
		return fmt.Errorf("wire: emergency priority command must requireAck")
	}
	return nil
}

// AlertLevel is the severity of a SafetyAlert.
type AlertLevel string

const (
	AlertInfo      AlertLevel = "info"
	AlertWarning   AlertLevel = "warning"
	AlertCaution   AlertLevel = "caution"
	AlertCritical  AlertLevel = "critical"
	AlertEmergency AlertLevel = "emergency"
)

// AlertCategory classifies the subsystem a SafetyAlert pertains to.
type AlertCategory string

const (
	CategorySystem        AlertCategory = "system"
	CategoryNavigation    AlertCategory = "navigation"
	CategoryWeather       AlertCategory = "weather"
	CategoryFuel          AlertCategory = "fuel"
	CategoryCommunication AlertCategory = "communication"
	CategoryMission       AlertCategory = "mission"
)

// SafetyAlert is a side-published diagnostic event. Alerts carry a stable
// ID so repeated alerts coalesce on a dashboard.
type SafetyAlert struct {
	ID           string                 `json:"id"`
	Timestamp    time.Time              `json:"timestamp"`
	AircraftID   string                 `json:"aircraftId"`
	Level        AlertLevel             `json:"level"`
	Category     AlertCategory          `json:"category"`
	Message      string                 `json:"message"`
	Data         map[string]interface{} `json:"data,omitempty"`
	Acknowledged bool                   `json:"acknowledged"`
}
