// Package transport implements the full-duplex subscriber connection
// (C11): welcome/subscribe/unsubscribe/command/ping-pong envelopes over a
// gorilla/websocket connection, fed by a broker.Subscriber's egress
// queue. Grounded on the upgrader/read-pump/write-pump split in
// internal/api/realtime/broadcaster.go (HandleWebSocket's two goroutines
// plus a ping ticker), generalised from that file's single broadcast-only
// Event envelope into the five envelope types spec §6 names, with the
// malformed-frame counting and three-strikes close spec §4.2 requires.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/asgard/groundctl/internal/broker"
	"github.com/asgard/groundctl/internal/wire"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	maxMalformed = 3
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// InboundEnvelope is the shape of a message a subscriber may send.
type InboundEnvelope struct {
	Type  string          `json:"type"`
	Topic string          `json:"topic,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Server upgrades HTTP connections to subscriber sessions against a
// broker.Broker.
type Server struct {
	brk    *broker.Broker
	logger *logrus.Logger
}

// NewServer constructs a transport Server bound to brk.
func NewServer(brk *broker.Broker) *Server {
	return &Server{brk: brk, logger: logrus.New()}
}

// ServeHTTP handles GET /ws: upgrades the connection and runs the
// session until it disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnf("upgrade error: %v", err)
		return
	}

	sub := s.brk.NewSession()
	defer s.brk.CloseSession(sub)

	welcome := broker.Envelope{Type: "welcome", Message: map[string]interface{}{
		"timestamp": time.Now().UTC(),
	}}
	if err := writeEnvelope(conn, welcome); err != nil {
		conn.Close()
		return
	}

	done := make(chan struct{})
	go s.writePump(conn, sub, done)
	s.readPump(conn, sub, done)
}

// writePump drains the subscriber's egress queue onto the socket and
// sends periodic pings, mirroring the ticker goroutine in
// internal/api/realtime/broadcaster.go's HandleWebSocket.
func (s *Server) writePump(conn *websocket.Conn, sub *broker.Subscriber, done chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer conn.Close()

	msgCh := make(chan broker.Envelope)
	go func() {
		defer close(msgCh)
		for {
			env, ok := sub.Recv()
			if !ok {
				return
			}
			select {
			case msgCh <- env:
			case <-done:
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case env, ok := <-msgCh:
			if !ok {
				return
			}
			if err := writeEnvelope(conn, env); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) readPump(conn *websocket.Conn, sub *broker.Subscriber, done chan struct{}) {
	defer close(done)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	malformed := 0
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.WithField("subscriber_id", sub.ID()).Warnf("read error: %v", err)
			}
			return
		}

		var in InboundEnvelope
		if err := json.Unmarshal(data, &in); err != nil {
			malformed++
			writeEnvelope(conn, errEnvelope("malformed", "invalid JSON"))
			if malformed >= maxMalformed {
				return
			}
			continue
		}

		if ok := s.dispatch(conn, sub, in); !ok {
			malformed++
			if malformed >= maxMalformed {
				return
			}
			continue
		}
		malformed = 0
	}
}

func (s *Server) dispatch(conn *websocket.Conn, sub *broker.Subscriber, in InboundEnvelope) bool {
	switch in.Type {
	case "subscribe":
		if in.Topic == "" {
			writeEnvelope(conn, errEnvelope("malformed", "subscribe requires topic"))
			return false
		}
		sub.Subscribe(in.Topic)
		return true

	case "unsubscribe":
		if in.Topic == "" {
			writeEnvelope(conn, errEnvelope("malformed", "unsubscribe requires topic"))
			return false
		}
		sub.Unsubscribe(in.Topic)
		return true

	case "ping":
		writeEnvelope(conn, broker.Envelope{Type: "pong", Message: map[string]interface{}{
			"timestamp": time.Now().UTC(),
		}})
		return true

	case "command":
		var cmd wire.Command
		if err := json.Unmarshal(in.Data, &cmd); err != nil {
			writeEnvelope(conn, errEnvelope("malformed", "invalid command body"))
			return false
		}
		if err := cmd.Validate(); err != nil {
			writeEnvelope(conn, errEnvelope("invalid_command", err.Error()))
			return false
		}
		if err := s.brk.DeliverCommand(context.Background(), cmd); err != nil {
			var routeErr *broker.RoutingError
			if errors.As(err, &routeErr) {
				writeEnvelope(conn, errEnvelope("no_route", err.Error()))
			} else {
				writeEnvelope(conn, errEnvelope("invalid_command", err.Error()))
			}
			return false
		}
		return true

	default:
		writeEnvelope(conn, errEnvelope("malformed", "unknown envelope type "+in.Type))
		return false
	}
}

func errEnvelope(code, details string) broker.Envelope {
	return broker.Envelope{Type: "error", Message: map[string]interface{}{
		"code":    code,
		"details": details,
	}}
}

func writeEnvelope(conn *websocket.Conn, env broker.Envelope) error {
	env.Message = withTimestamp(env.Message)
	return conn.WriteJSON(env)
}

func withTimestamp(msg interface{}) interface{} {
	m, ok := msg.(map[string]interface{})
	if !ok {
		return msg
	}
	if _, has := m["timestamp"]; !has {
		m["timestamp"] = time.Now().UTC()
	}
	return m
}
