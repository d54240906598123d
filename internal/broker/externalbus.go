package broker

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// NATSBus bridges the broker to an external paparazzi/ topic tree over
// NATS. Grounded on subscribeToNATSEvents in
// internal/controlplane/unified.go: that method wires fixed
// asgard.security.> / asgard.dtn.> subjects into the control plane's
// event bus; this type generalises it to the four topic roots spec §4.1
// names and makes reconnect a first-class, externally observable state
// (Connected()) rather than relying on nats.go's default reconnect logic
// alone.
type NATSBus struct {
	mu      sync.RWMutex
	conn    *nats.Conn
	connErr error
	url     string
	logger  *logrus.Logger
}

// DialNATS connects to url. Connection loss is non-fatal per spec §4.1:
// the returned NATSBus keeps reporting Connected()==false and nats.go's
// own client retries in the background.
func DialNATS(url string) *NATSBus {
	b := &NATSBus{url: url, logger: logrus.New()}
	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			b.logger.Warnf("nats disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			b.logger.WithField("url", url).Info("nats reconnected")
		}),
	}
	conn, err := nats.Connect(url, opts...)
	b.mu.Lock()
	b.conn, b.connErr = conn, err
	b.mu.Unlock()
	if err != nil {
		b.logger.WithField("url", url).Warnf("nats connect failed, continuing local-only: %v", err)
	}
	return b
}

// Connected reports whether the bridge currently has a live connection.
func (b *NATSBus) Connected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.conn != nil && b.conn.IsConnected()
}

// Forward publishes payload to paparazzi/<topic> on the external bus.
func (b *NATSBus) Forward(topic string, payload interface{}) error {
	b.mu.RLock()
	conn := b.conn
	b.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("broker: nats not connected")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("broker: marshal for nats: %w", err)
	}
	return conn.Publish(natsSubject(topic), data)
}

// Subscribe bridges inbound messages under paparazzi/<root>.> back into
// the local publish path via onMessage.
func (b *NATSBus) Subscribe(root string, onMessage func(topic string, payload []byte)) error {
	b.mu.RLock()
	conn := b.conn
	b.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("broker: nats not connected")
	}
	subject := natsSubject(root) + ".>"
	_, err := conn.Subscribe(subject, func(m *nats.Msg) {
		topic := strings.TrimPrefix(m.Subject, "paparazzi.")
		topic = strings.ReplaceAll(topic, ".", "/")
		onMessage(topic, m.Data)
	})
	return err
}

// Close drains and closes the NATS connection.
func (b *NATSBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		b.conn.Close()
	}
}

// natsSubject maps a slash-separated topic to a NATS dot-separated
// subject rooted at paparazzi, matching the wire-bridge naming in spec
// §6 ("External bus bridge").
func natsSubject(topic string) string {
	return "paparazzi." + strings.ReplaceAll(topic, "/", ".")
}
