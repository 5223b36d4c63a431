package server

import (
	"encoding/json"
	"net/http"
	"time"
)

// Response represents a standard API response wrapper used by the health
// endpoint.
type Response struct {
	Status    string      `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// healthyResponse creates a successful health check response.
func healthyResponse(data interface{}) Response {
	return Response{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Encoding failures at this point cannot be reported to the client.
	_ = json.NewEncoder(w).Encode(data)
}

// ErrorResponse is the JSON body for error replies.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Error writes a JSON error response with the given status code.
func Error(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorResponse{Error: msg})
}
