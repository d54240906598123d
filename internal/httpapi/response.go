// Package httpapi wires the HTTP surface named in spec §6: health,
// inject, simulator control, metrics, and the websocket upgrade. The
// response envelope is carried over near-verbatim from
// internal/api/response/response.go; the router construction follows
// internal/api/router.go's middleware stack and chi.Route grouping.
package httpapi

import (
	"encoding/json"
	"net/http"
)

// Response is the standard JSON envelope for non-streaming endpoints.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error describes a failed request.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func success(w http.ResponseWriter, status int, data interface{}) {
	sendJSON(w, status, Response{Success: true, Data: data})
}

func sendError(w http.ResponseWriter, status int, code, message string) {
	sendJSON(w, status, Response{Success: false, Error: &Error{Code: code, Message: message, Status: status}})
}

func sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
