package httpapi

import (
	"encoding/json"
	"net/http"
)

// envelope is the uniform response shape:
//
//	{"success":true,"message":"...","data":{...}}
//	{"success":false,"error":{"message":"...","statusCode":401}}
type envelope struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Data    any            `json:"data,omitempty"`
	Error   *errorEnvelope `json:"error,omitempty"`
}

type errorEnvelope struct {
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{
		Success: false,
		Error:   &errorEnvelope{Message: message, StatusCode: status},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
