package api

import (
	"encoding/json"
	"net/http"
)

// Envelope is the success body shape: {"success":true,"data":...}.
type Envelope struct {
	Success    bool   `json:"success"`
	Message    string `json:"message,omitempty"`
	Data       any    `json:"data,omitempty"`
	Pagination any    `json:"pagination,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// OK writes a success envelope.
func OK(w http.ResponseWriter, status int, message string, data any) {
	WriteJSON(w, status, Envelope{Success: true, Message: message, Data: data})
}

// Page writes a success envelope carrying pagination metadata.
func Page(w http.ResponseWriter, data, pagination any) {
	WriteJSON(w, http.StatusOK, Envelope{Success: true, Data: data, Pagination: pagination})
}
