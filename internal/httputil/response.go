package httputil

import (
	"encoding/json"
	"log"
	"net/http"
)

// Envelope is the body of every /api response.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// WriteJSON writes data as JSON with the given status code, without an envelope.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode json response: %v", err)
	}
}

// WriteJSONOK writes data as a bare 200 OK JSON response.
func WriteJSONOK(w http.ResponseWriter, data interface{}) {
	WriteJSON(w, http.StatusOK, data)
}

// WriteData writes {"success":true,"data":data}.
func WriteData(w http.ResponseWriter, status int, data interface{}) {
	WriteJSON(w, status, Envelope{Success: true, Data: data})
}

// WriteDataOK writes a successful envelope with 200 OK.
func WriteDataOK(w http.ResponseWriter, data interface{}) {
	WriteData(w, http.StatusOK, data)
}

// WriteJSONError writes {"success":false,"error":msg}.
func WriteJSONError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, Envelope{Success: false, Error: msg})
}

// MethodNotAllowed writes a 405 Method Not Allowed response.
func MethodNotAllowed(w http.ResponseWriter) {
	WriteJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// BadRequest writes a 400 Bad Request response with the given message.
func BadRequest(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusBadRequest, msg)
}

// InternalServerError writes a 500 Internal Server Error response.
func InternalServerError(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusInternalServerError, msg)
}

// NotFound writes a 404 Not Found response.
func NotFound(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusNotFound, msg)
}

// BadGateway writes a 502 response, used when an upstream device fails.
func BadGateway(w http.ResponseWriter, msg string) {
	WriteJSONError(w, http.StatusBadGateway, msg)
}
