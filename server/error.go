package server

import (
	"net/http"

	json "github.com/goccy/go-json"
)

// ErrorResponse is the error envelope returned by every failing endpoint.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a human message and a stable kind string.
type ErrorDetail struct {
	Message string `json:"message"`
	Kind    string `json:"kind"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Message: message, Kind: kind}})
}
