package handlers

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse writes a JSON error body of the form {"error": code, "message": msg}.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes data as an uncacheable JSON response.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// allowRead rejects anything but GET and HEAD with 405. It reports whether
// the request may proceed.
func allowRead(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return true
	}
	w.Header().Set("Allow", "GET, HEAD")
	_ = ErrorResponse(w, http.StatusMethodNotAllowed, "method_not_allowed", "only GET and HEAD are supported")
	return false
}
