package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/asgard/groundctl/internal/broker"
	"github.com/asgard/groundctl/internal/flightdynamics"
	"github.com/asgard/groundctl/internal/simhost"
	"github.com/asgard/groundctl/internal/transport"
	"github.com/asgard/groundctl/internal/wire"
)

// NewRouter builds the full HTTP surface of spec §6: GET /ws,
// POST /inject/{topicSuffix}, GET /health, GET /metrics, and the
// simulator-control group under /sim. allowInject gates the inject
// endpoint per spec §6's "SHOULD be behind an operator flag" note.
func NewRouter(brk *broker.Broker, host *simhost.Host, allowInject bool) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	ws := transport.NewServer(brk)
	r.Get("/ws", ws.ServeHTTP)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		success(w, http.StatusOK, healthResponse{
			Broker:   brk.Health(),
			Aircraft: host.Health(),
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	if allowInject {
		r.Post("/inject/{topicSuffix}", func(w http.ResponseWriter, r *http.Request) {
			suffix := chi.URLParam(r, "topicSuffix")
			body, err := io.ReadAll(r.Body)
			if err != nil {
				sendError(w, http.StatusBadRequest, "bad_request", "could not read body")
				return
			}
			var payload interface{}
			if len(body) > 0 {
				if err := json.Unmarshal(body, &payload); err != nil {
					sendError(w, http.StatusBadRequest, "bad_request", "body is not valid JSON")
					return
				}
			}
			brk.Inject(suffix, payload)
			success(w, http.StatusAccepted, nil)
		})
	}

	r.Route("/sim", func(r chi.Router) {
		r.Get("/aircraft", listAircraft(host))
		r.Post("/aircraft", createAircraft(host))
		r.Delete("/aircraft/{id}", deleteAircraft(host))
		r.Post("/aircraft/{id}/start", startAircraft(host))
		r.Post("/aircraft/{id}/stop", stopAircraft(host))
		r.Post("/aircraft/{id}/plan", loadPlan(host))
		r.Post("/aircraft/{id}/command", sendCommand(brk))
	})

	return r
}

// healthResponse combines the broker's connection-level health with the
// simulator host's per-aircraft SystemStatus snapshot, per SPEC_FULL.md's
// supplemented "per-aircraft coordination snapshot" feature.
type healthResponse struct {
	Broker   broker.Health          `json:"broker"`
	Aircraft []simhost.SystemStatus `json:"aircraft"`
}

type createAircraftRequest struct {
	ID        string  `json:"id"`
	Type      string  `json:"type"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
	Seed      int64   `json:"seed,omitempty"`
}

func listAircraft(host *simhost.Host) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		success(w, http.StatusOK, host.List())
	}
}

func createAircraft(host *simhost.Host) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createAircraftRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			sendError(w, http.StatusBadRequest, "bad_request", "invalid request body")
			return
		}
		if req.ID == "" {
			sendError(w, http.StatusBadRequest, "bad_request", "id is required")
			return
		}
		if err := host.Create(req.ID, aircraftTypeOrDefault(req.Type), req.Latitude, req.Longitude, req.Altitude, req.Seed); err != nil {
			sendError(w, http.StatusConflict, "conflict", err.Error())
			return
		}
		success(w, http.StatusCreated, map[string]string{"id": req.ID})
	}
}

func deleteAircraft(host *simhost.Host) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		host.Delete(chi.URLParam(r, "id"))
		success(w, http.StatusNoContent, nil)
	}
}

func startAircraft(host *simhost.Host) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := host.Start(chi.URLParam(r, "id")); err != nil {
			sendError(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
		success(w, http.StatusOK, nil)
	}
}

func stopAircraft(host *simhost.Host) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := host.Stop(chi.URLParam(r, "id")); err != nil {
			sendError(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
		success(w, http.StatusOK, nil)
	}
}

func loadPlan(host *simhost.Host) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var plan wire.FlightPlan
		if err := json.NewDecoder(r.Body).Decode(&plan); err != nil {
			sendError(w, http.StatusBadRequest, "bad_request", "invalid flight plan body")
			return
		}
		if err := host.LoadFlightPlan(chi.URLParam(r, "id"), plan); err != nil {
			sendError(w, http.StatusBadRequest, "invalid_plan", err.Error())
			return
		}
		success(w, http.StatusOK, nil)
	}
}

func sendCommand(brk *broker.Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var cmd wire.Command
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
			sendError(w, http.StatusBadRequest, "bad_request", "invalid command body")
			return
		}
		cmd.Destination = chi.URLParam(r, "id")
		if err := brk.DeliverCommand(r.Context(), cmd); err != nil {
			sendError(w, http.StatusBadRequest, "invalid_command", err.Error())
			return
		}
		success(w, http.StatusAccepted, nil)
	}
}

func aircraftTypeOrDefault(t string) flightdynamics.AircraftType {
	if t == "rotorcraft" {
		return flightdynamics.Rotorcraft
	}
	return flightdynamics.FixedWing
}
