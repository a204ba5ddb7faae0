// Package httputil holds small JSON response helpers for the stub API.
package httputil

import (
	"encoding/json"
	"log"
	"net/http"
)

// APIError mirrors the upstream platform's error envelope so clients
// exercise the same classification paths against the stub.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
	Details any    `json:"details,omitempty"`
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[httputil] JSON encode error: %v", err)
	}
}

// OK writes a 200 response with the given data.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// Error writes the platform-style error envelope.
func Error(w http.ResponseWriter, status int, message, apiStatus string) {
	JSON(w, status, map[string]APIError{"error": {Code: status, Message: message, Status: apiStatus}})
}

// BadRequest writes a 400 error.
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, message, "INVALID_ARGUMENT")
}

// NotFound writes a 404 error.
func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, message, "NOT_FOUND")
}
