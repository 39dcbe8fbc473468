package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %s, want application/json", ct)
	}
	var resp map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestWriteJSONError(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSONError(rec, http.StatusBadRequest, "test error")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	resp := decodeEnvelope(t, rec)
	if resp["success"] != false {
		t.Errorf("success = %v, want false", resp["success"])
	}
	if resp["error"] != "test error" {
		t.Errorf("error = %v, want 'test error'", resp["error"])
	}
	if _, ok := resp["data"]; ok {
		t.Error("error envelope must not carry data")
	}
}

func TestWriteData(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteData(rec, http.StatusCreated, map[string]int{"id": 7})

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	resp := decodeEnvelope(t, rec)
	if resp["success"] != true {
		t.Errorf("success = %v, want true", resp["success"])
	}
	data, ok := resp["data"].(map[string]interface{})
	if !ok || data["id"] != float64(7) {
		t.Errorf("data = %v, want {id: 7}", resp["data"])
	}
	if _, ok := resp["error"]; ok {
		t.Error("success envelope must not carry an error")
	}
}

func TestWriteDataOK(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteDataOK(rec, []string{"a"})
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestWriteJSONOK_NoEnvelope(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSONOK(rec, map[string]string{"message": "hello"})

	resp := decodeEnvelope(t, rec)
	if resp["message"] != "hello" {
		t.Errorf("message = %v, want hello", resp["message"])
	}
	if _, ok := resp["success"]; ok {
		t.Error("WriteJSONOK must not wrap the payload")
	}
}

func TestErrorHelpers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		write  func(w http.ResponseWriter)
		status int
		msg    string
	}{
		{"method not allowed", MethodNotAllowed, http.StatusMethodNotAllowed, "method not allowed"},
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "invalid input") }, http.StatusBadRequest, "invalid input"},
		{"internal", func(w http.ResponseWriter) { InternalServerError(w, "boom") }, http.StatusInternalServerError, "boom"},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "missing") }, http.StatusNotFound, "missing"},
		{"bad gateway", func(w http.ResponseWriter) { BadGateway(w, "camera offline") }, http.StatusBadGateway, "camera offline"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			tt.write(rec)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if resp := decodeEnvelope(t, rec); resp["error"] != tt.msg {
				t.Errorf("error = %v, want %q", resp["error"], tt.msg)
			}
		})
	}
}
