// Package seriallink implements the physical-airframe codec (C9):
// newline-delimited JSON telemetry framing over a serial port, a
// pluggable command formatter, link-health timeout alerting, and
// reconnect with exponential backoff. Grounded on the
// serial.Mode/serial.Open pattern in
// Valkyrie/internal/actuators/mavlink_protocol.go's OpenSerialPort, kept
// as a direct go.bug.st/serial dependency rather than a stdlib io.Reader
// abstraction, since that is the corpus's own way of talking to a
// physical link.
package seriallink

import (
	"bufio"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"

	"github.com/asgard/groundctl/internal/wire"
)

// Parser decodes an opaque line read from the link into a
// wire.Telemetry record. Production deployments supply one matching
// their airframe's on-wire telemetry shape; tests can supply a stub.
type Parser func(line []byte) (wire.Telemetry, error)

// Formatter encodes a wire.Command for transmission over the link.
type Formatter func(cmd wire.Command) ([]byte, error)

// JSONParser decodes newline-delimited JSON Telemetry records, the
// default framing spec §4.10 names.
func JSONParser(line []byte) (wire.Telemetry, error) {
	var t wire.Telemetry
	if err := json.Unmarshal(line, &t); err != nil {
		return wire.Telemetry{}, fmt.Errorf("seriallink: decode telemetry: %w", err)
	}
	return t, nil
}

// NormalizeTelemetry backfills the aircraftId/timestamp fields a wire
// record read off a serial link may omit, per spec §4.3/§6: a codec may
// leave these blank and rely on the link to fill them in from its own
// configuration and clock.
func NormalizeTelemetry(t wire.Telemetry, aircraftID string) wire.Telemetry {
	if t.AircraftID == "" {
		t.AircraftID = aircraftID
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}
	return t
}

// JSONFormatter encodes a Command as a single newline-terminated JSON
// line.
func JSONFormatter(cmd wire.Command) ([]byte, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("seriallink: encode command: %w", err)
	}
	return append(data, '\n'), nil
}

// Handler receives decoded telemetry and link-health events from a Link.
type Handler interface {
	OnTelemetry(aircraftID string, t wire.Telemetry)
	OnLinkAlert(alert wire.SafetyAlert)
}

// Config configures one serial Link.
type Config struct {
	AircraftID string
	PortName   string
	BaudRate   int

	Parser    Parser
	Formatter Formatter

	WarnTimeout     time.Duration // default 5s, spec §4.10
	DisconnectAfter time.Duration // default 15s, spec §4.10
}

func (c *Config) applyDefaults() {
	if c.Parser == nil {
		c.Parser = JSONParser
	}
	if c.Formatter == nil {
		c.Formatter = JSONFormatter
	}
	if c.WarnTimeout <= 0 {
		c.WarnTimeout = 5 * time.Second
	}
	if c.DisconnectAfter <= 0 {
		c.DisconnectAfter = 15 * time.Second
	}
	if c.BaudRate <= 0 {
		c.BaudRate = 57600
	}
}

// Link manages one physical airframe's serial connection, reconnecting
// with exponential backoff (1s,2s,4s,8s, capped at 30s) when the port
// drops.
type Link struct {
	cfg     Config
	handler Handler
	logger  *logrus.Logger

	mu        sync.Mutex
	port      serial.Port
	connected bool
	lastRecv  time.Time

	stop chan struct{}
	done chan struct{}
}

// New constructs a Link. Call Run to open the port and begin reading.
func New(cfg Config, handler Handler) *Link {
	cfg.applyDefaults()
	return &Link{
		cfg:     cfg,
		handler: handler,
		logger:  logrus.New(),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// AircraftID returns the aircraft this link serves, for broker.LinkRouter
// lookups.
func (l *Link) AircraftID() string { return l.cfg.AircraftID }

// Connected reports whether the port is currently open.
func (l *Link) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

// Run opens the port and reads telemetry lines until Close is called,
// reconnecting on failure with exponential backoff.
func (l *Link) Run() {
	defer close(l.done)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-l.stop:
			return
		default:
		}

		port, err := l.open()
		if err != nil {
			l.logger.WithFields(logrus.Fields{
				"aircraft_id": l.cfg.AircraftID,
				"port":        l.cfg.PortName,
				"retry_in":    backoff,
			}).Warnf("open failed: %v", err)
			select {
			case <-time.After(backoff):
			case <-l.stop:
				return
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		backoff = time.Second
		l.readUntilError(port)
	}
}

func (l *Link) open() (serial.Port, error) {
	mode := &serial.Mode{
		BaudRate: l.cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(l.cfg.PortName, mode)
	if err != nil {
		return nil, fmt.Errorf("seriallink: open %s: %w", l.cfg.PortName, err)
	}

	l.mu.Lock()
	l.port = port
	l.connected = true
	l.lastRecv = time.Now()
	l.mu.Unlock()

	return port, nil
}

func (l *Link) readUntilError(port serial.Port) {
	defer func() {
		l.mu.Lock()
		l.connected = false
		l.port = nil
		l.mu.Unlock()
		port.Close()
	}()

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(port)
		for scanner.Scan() {
			line := append([]byte{}, scanner.Bytes()...)
			select {
			case lines <- line:
			case <-l.stop:
				return
			}
		}
		readErr <- scanner.Err()
	}()

	healthTicker := time.NewTicker(time.Second)
	defer healthTicker.Stop()

	warned := false
	for {
		select {
		case <-l.stop:
			return
		case line := <-lines:
			l.mu.Lock()
			l.lastRecv = time.Now()
			l.mu.Unlock()

			t, err := l.cfg.Parser(line)
			if err != nil {
				l.logger.WithField("aircraft_id", l.cfg.AircraftID).Warnf("parse error: %v", err)
				continue
			}
			t = NormalizeTelemetry(t, l.cfg.AircraftID)

			if warned {
				warned = false
				l.handler.OnLinkAlert(wire.SafetyAlert{
					AircraftID: l.cfg.AircraftID,
					Level:      wire.AlertInfo,
					Category:   wire.CategoryCommunication,
					Message:    fmt.Sprintf("link %s recovered", l.cfg.AircraftID),
				})
			}

			l.handler.OnTelemetry(l.cfg.AircraftID, t)

		case <-readErr:
			return

		case <-healthTicker.C:
			l.mu.Lock()
			since := time.Since(l.lastRecv)
			l.mu.Unlock()

			if since >= l.cfg.DisconnectAfter {
				l.handler.OnLinkAlert(wire.SafetyAlert{
					AircraftID: l.cfg.AircraftID,
					Level:      wire.AlertCritical,
					Category:   wire.CategoryCommunication,
					Message:    fmt.Sprintf("link %s silent for %s, disconnecting", l.cfg.AircraftID, since.Round(time.Second)),
				})
				return
			}
			if since >= l.cfg.WarnTimeout && !warned {
				warned = true
				l.handler.OnLinkAlert(wire.SafetyAlert{
					AircraftID: l.cfg.AircraftID,
					Level:      wire.AlertWarning,
					Category:   wire.CategoryCommunication,
					Message:    fmt.Sprintf("link %s silent for %s", l.cfg.AircraftID, since.Round(time.Second)),
				})
			}
		}
	}
}

// WriteCommand encodes and writes cmd to the open port. Returns an error
// if the port is not currently connected.
func (l *Link) WriteCommand(cmd wire.Command) error {
	l.mu.Lock()
	port := l.port
	l.mu.Unlock()

	if port == nil {
		return fmt.Errorf("seriallink: %s not connected", l.cfg.AircraftID)
	}

	data, err := l.cfg.Formatter(cmd)
	if err != nil {
		return err
	}
	_, err = port.Write(data)
	return err
}

// Close stops the read loop and closes the port.
func (l *Link) Close() {
	close(l.stop)
	<-l.done
}

// Router aggregates multiple Links behind the broker.LinkRouter
// interface.
type Router struct {
	mu    sync.RWMutex
	links map[string]*Link
}

// NewRouter constructs an empty Router.
func NewRouter() *Router {
	return &Router{links: make(map[string]*Link)}
}

// Add registers a Link with the router.
func (r *Router) Add(l *Link) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.links[l.AircraftID()] = l
}

// Remove unregisters and closes the link for aircraftID, if present.
func (r *Router) Remove(aircraftID string) {
	r.mu.Lock()
	l, ok := r.links[aircraftID]
	delete(r.links, aircraftID)
	r.mu.Unlock()
	if ok {
		l.Close()
	}
}

// HasLink implements broker.LinkRouter.
func (r *Router) HasLink(aircraftID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.links[aircraftID]
	return ok
}

// WriteCommand implements broker.LinkRouter.
func (r *Router) WriteCommand(aircraftID string, cmd wire.Command) error {
	r.mu.RLock()
	l, ok := r.links[aircraftID]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("seriallink: no link for %q", aircraftID)
	}
	return l.WriteCommand(cmd)
}

// Count reports the number of registered links, for broker.Health.
func (r *Router) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.links)
}
