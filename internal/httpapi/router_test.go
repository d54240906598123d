package httpapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asgard/groundctl/internal/broker"
	"github.com/asgard/groundctl/internal/httpapi"
	"github.com/asgard/groundctl/internal/simhost"
	"github.com/asgard/groundctl/internal/wire"
)

type noAircraft struct{}

func (noAircraft) HasAircraft(string) bool                   { return false }
func (noAircraft) DeliverCommand(string, wire.Command) error { return nil }

type noLinks struct{}

func (noLinks) HasLink(string) bool                    { return false }
func (noLinks) WriteCommand(string, wire.Command) error { return nil }

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	metrics := broker.NewMetricsWithRegisterer(prometheus.NewRegistry())
	brk := broker.New(broker.Config{QueueCapacity: 16}, noAircraft{}, noLinks{}, nil, metrics)
	host := simhost.New(brk)
	return httpapi.NewRouter(brk, host, true)
}

func newTestRouterInjectDisabled(t *testing.T) http.Handler {
	t.Helper()
	metrics := broker.NewMetricsWithRegisterer(prometheus.NewRegistry())
	brk := broker.New(broker.Config{QueueCapacity: 16}, noAircraft{}, noLinks{}, nil, metrics)
	host := simhost.New(brk)
	return httpapi.NewRouter(brk, host, false)
}

func TestHealthEndpointReturnsOK(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
}

func TestCreateAircraftRequiresID(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/sim/aircraft", bytes.NewBufferString(`{"type":"fixed_wing"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateAircraftThenStartSucceeds(t *testing.T) {
	router := newTestRouter(t)

	createReq := httptest.NewRequest(http.MethodPost, "/sim/aircraft", bytes.NewBufferString(
		`{"id":"uas-1","type":"fixed_wing","latitude":47.6,"longitude":-122.3,"altitude":50}`))
	createRec := httptest.NewRecorder()
	router.ServeHTTP(createRec, createReq)
	require.Equal(t, http.StatusCreated, createRec.Code)

	planBody := `{
		"id": "plan-1",
		"waypoints": [
			{"id":0,"type":"home","position":{"latitude":47.6,"longitude":-122.3,"altitude":0}},
			{"id":1,"type":"waypoint","position":{"latitude":47.601,"longitude":-122.3,"altitude":100}},
			{"id":2,"type":"landing","position":{"latitude":47.602,"longitude":-122.3,"altitude":0}}
		],
		"parameters": {"cruiseSpeed":15,"cruiseAltitude":100,"maxAltitude":200}
	}`
	planReq := httptest.NewRequest(http.MethodPost, "/sim/aircraft/uas-1/plan", bytes.NewBufferString(planBody))
	planRec := httptest.NewRecorder()
	router.ServeHTTP(planRec, planReq)
	require.Equal(t, http.StatusOK, planRec.Code)

	startReq := httptest.NewRequest(http.MethodPost, "/sim/aircraft/uas-1/start", nil)
	startRec := httptest.NewRecorder()
	router.ServeHTTP(startRec, startReq)
	assert.Equal(t, http.StatusOK, startRec.Code)
}

func TestStartUnknownAircraftReturnsNotFound(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/sim/aircraft/unknown/start", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSendCommandToUnknownDestinationReturnsBadRequest(t *testing.T) {
	router := newTestRouter(t)
	cmdBody := `{"commandType":"mission_start","priority":"normal"}`
	req := httptest.NewRequest(http.MethodPost, "/sim/aircraft/uas-404/command", bytes.NewBufferString(cmdBody))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInjectPublishesArbitraryPayload(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/inject/test-topic", bytes.NewBufferString(`{"foo":"bar"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestInjectRouteNotRegisteredWhenDisabled(t *testing.T) {
	router := newTestRouterInjectDisabled(t)
	req := httptest.NewRequest(http.MethodPost, "/inject/test-topic", bytes.NewBufferString(`{"foo":"bar"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAircraftReturnsCreatedAircraft(t *testing.T) {
	router := newTestRouter(t)

	createReq := httptest.NewRequest(http.MethodPost, "/sim/aircraft", bytes.NewBufferString(
		`{"id":"uas-1","type":"fixed_wing","latitude":47.6,"longitude":-122.3,"altitude":50}`))
	createRec := httptest.NewRecorder()
	router.ServeHTTP(createRec, createReq)
	require.Equal(t, http.StatusCreated, createRec.Code)

	listReq := httptest.NewRequest(http.MethodGet, "/sim/aircraft", nil)
	listRec := httptest.NewRecorder()
	router.ServeHTTP(listRec, listReq)

	assert.Equal(t, http.StatusOK, listRec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &body))
	data, ok := body["data"].([]interface{})
	require.True(t, ok)
	require.Len(t, data, 1)
}

func TestMetricsEndpointExposesPrometheusFormat(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
