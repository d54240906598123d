// Package main runs the groundctl telemetry broker and flight simulator:
// an in-process aircraft host, a pub/sub broker bridging subscribers and
// an optional NATS external bus, and the HTTP surface that fronts both.
// Grounded on cmd/nysus/main.go's flag parsing, tracing bootstrap, and
// signal-driven graceful shutdown.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/asgard/groundctl/internal/broker"
	"github.com/asgard/groundctl/internal/config"
	"github.com/asgard/groundctl/internal/httpapi"
	"github.com/asgard/groundctl/internal/seriallink"
	"github.com/asgard/groundctl/internal/simhost"
	"github.com/asgard/groundctl/internal/wire"
)

func main() {
	logger := logrus.New()

	configFile := flag.String("config", "", "path to a config file (yaml/json/toml, optional)")
	addr := flag.String("addr", "", "HTTP server address, overrides config")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logger.Warnf("log_level %q not recognised, keeping default: %v", cfg.LogLevel, err)
	} else {
		logger.SetLevel(level)
	}

	logger.Info("=== groundctl telemetry broker & flight simulator ===")
	logger.WithField("addr", cfg.HTTPAddr).Info("HTTP server configured")

	shutdownTracing, err := initTracing(context.Background())
	if err != nil {
		logger.Warnf("tracing disabled: %v", err)
	} else {
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				logger.Warnf("tracing shutdown error: %v", err)
			}
		}()
	}

	var bus broker.ExternalBus
	if cfg.NATSURL != "" {
		nb := broker.DialNATS(cfg.NATSURL)
		bus = nb
		defer nb.Close()
	}

	metrics := broker.NewMetrics()

	var brk *broker.Broker
	pub := publisherFunc(func(topic string, message interface{}, critical bool) {
		brk.Publish(topic, message, critical)
	})
	host := simhost.NewWithTickRate(pub, cfg.TickRateHz)

	linkRouter := seriallink.NewRouter()
	for _, lc := range cfg.SerialLinks {
		link := seriallink.New(seriallink.Config{
			AircraftID: lc.AircraftID,
			PortName:   lc.Port,
			BaudRate:   lc.BaudRate,
		}, linkHandler{aircraftID: lc.AircraftID, pub: pub})
		linkRouter.Add(link)
		go link.Run()
	}

	brk = broker.New(broker.Config{QueueCapacity: cfg.QueueCapacity}, host, linkRouter, bus, metrics)

	runCtx, cancel := context.WithCancel(context.Background())
	go host.Run(runCtx)

	router := httpapi.NewRouter(brk, host, cfg.AllowInject)
	server := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		logger.WithField("addr", cfg.HTTPAddr).Info("starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("HTTP server error: %v", err)
		}
	}()

	logger.Info("groundctl is ready and accepting connections")
	logger.WithFields(logrus.Fields{
		"health":    "GET /health",
		"metrics":   "GET /metrics",
		"inject":    "POST /inject/{topicSuffix}",
		"simulator": "POST /sim/aircraft, /sim/aircraft/{id}/start|stop|plan|command",
		"websocket": "WS /ws",
	}).Info("endpoints")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down groundctl...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("HTTP server shutdown error: %v", err)
	}

	brk.Shutdown(5 * time.Second)

	cancel()
	host.Shutdown()

	for _, lc := range cfg.SerialLinks {
		linkRouter.Remove(lc.AircraftID)
	}

	logger.Info("groundctl stopped")
}

type publisherFunc func(topic string, message interface{}, critical bool)

func (f publisherFunc) Publish(topic string, message interface{}, critical bool) {
	f(topic, message, critical)
}

// linkHandler bridges a seriallink.Link's decoded telemetry and link-health
// alerts onto the broker's publish path.
type linkHandler struct {
	aircraftID string
	pub        publisherFunc
}

func (h linkHandler) OnTelemetry(aircraftID string, t wire.Telemetry) {
	h.pub("telemetry/"+aircraftID, t, false)
}

func (h linkHandler) OnLinkAlert(alert wire.SafetyAlert) {
	critical := alert.Level == wire.AlertCritical || alert.Level == wire.AlertEmergency
	h.pub("alerts/"+h.aircraftID, alert, critical)
}
