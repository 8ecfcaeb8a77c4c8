package httpx

import (
	"encoding/json"
	"net/http"
)

type successEnvelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// WriteJSON writes data inside the canonical success envelope.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	writeEnvelope(w, status, successEnvelope{Success: true, Data: data})
}

// WriteMessage writes a data-free success envelope with a human message.
func WriteMessage(w http.ResponseWriter, status int, message string) {
	writeEnvelope(w, status, successEnvelope{Success: true, Message: sanitize(message, 512)})
}

func writeEnvelope(w http.ResponseWriter, status int, envelope successEnvelope) {
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope)
}
