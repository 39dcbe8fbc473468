package httputil

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewClient(t *testing.T) {
	if c := NewClient(5 * time.Second); c.Timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", c.Timeout)
	}
	if c := NewClient(-time.Second); c.Timeout != 0 {
		t.Errorf("negative timeout should become 0, got %v", c.Timeout)
	}
}

func TestGet_StandardClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		w.Write([]byte("snapshot"))
	}))
	defer server.Close()

	resp, err := Get(context.Background(), NewClient(time.Second), server.URL)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	body, err := ReadBody(resp, 1024)
	if err != nil {
		t.Fatalf("ReadBody failed: %v", err)
	}
	if string(body) != "snapshot" {
		t.Errorf("got body %q", string(body))
	}
}

func TestReadBody_Limit(t *testing.T) {
	mock := NewMockHTTPClient().AddResponse(http.StatusOK, strings.Repeat("x", 11))

	resp, err := Get(context.Background(), mock, "http://camera.local/snap.jpg")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if _, err := ReadBody(resp, 10); !errors.Is(err, ErrBodyTooLarge) {
		t.Errorf("expected ErrBodyTooLarge, got %v", err)
	}
}

func TestReadBody_ExactLimit(t *testing.T) {
	mock := NewMockHTTPClient().AddResponse(http.StatusOK, strings.Repeat("x", 10))

	resp, err := Get(context.Background(), mock, "http://camera.local/snap.jpg")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	body, err := ReadBody(resp, 10)
	if err != nil {
		t.Fatalf("ReadBody failed: %v", err)
	}
	if len(body) != 10 {
		t.Errorf("got %d bytes, want 10", len(body))
	}
}

func TestMockHTTPClient_Responses(t *testing.T) {
	h := make(http.Header)
	h.Set("Content-Type", "image/jpeg")
	mock := NewMockHTTPClient().
		AddResponse(http.StatusOK, "first").
		AddResponseWithHeader(http.StatusNotFound, "second", h)

	for i, want := range []struct {
		status int
		body   string
		ct     string
	}{
		{http.StatusOK, "first", ""},
		{http.StatusNotFound, "second", "image/jpeg"},
		{http.StatusOK, "", ""}, // queue exhausted
	} {
		resp, err := Get(context.Background(), mock, "http://example.com")
		if err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != want.status || string(body) != want.body || resp.Header.Get("Content-Type") != want.ct {
			t.Errorf("request %d: got %d %q %q", i, resp.StatusCode, body, resp.Header.Get("Content-Type"))
		}
	}
	if mock.RequestCount() != 3 {
		t.Errorf("got %d requests, want 3", mock.RequestCount())
	}
}

func TestMockHTTPClient_Errors(t *testing.T) {
	refused := errors.New("connection refused")
	mock := NewMockHTTPClient().AddErrorResponse(refused)
	if _, err := Get(context.Background(), mock, "http://example.com"); !errors.Is(err, refused) {
		t.Errorf("expected queued error, got %v", err)
	}

	mock.DefaultError = errors.New("network down")
	if _, err := Get(context.Background(), mock, "http://example.com"); err == nil || err.Error() != "network down" {
		t.Errorf("expected default error, got %v", err)
	}
}

func TestMockHTTPClient_CanceledContext(t *testing.T) {
	mock := NewMockHTTPClient().AddResponse(http.StatusOK, "never")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Get(ctx, mock, "http://example.com"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if mock.RequestCount() != 1 {
		t.Errorf("expected the request to be recorded, got %d", mock.RequestCount())
	}
}

func TestMockHTTPClient_DoFunc(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.DoFunc = func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusTeapot,
			Body:       io.NopCloser(strings.NewReader(req.URL.Path)),
		}, nil
	}

	resp, err := Get(context.Background(), mock, "http://example.com/teapot")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusTeapot || string(body) != "/teapot" {
		t.Errorf("got %d %q", resp.StatusCode, body)
	}
}

func TestMockHTTPClient_GetRequestAndReset(t *testing.T) {
	mock := NewMockHTTPClient().AddResponse(http.StatusOK, "")
	Get(context.Background(), mock, "http://example.com/a")

	if r := mock.GetRequest(0); r == nil || r.URL.Path != "/a" {
		t.Errorf("unexpected request %v", r)
	}
	if mock.GetRequest(1) != nil || mock.GetRequest(-1) != nil {
		t.Error("out of range requests should be nil")
	}

	mock.Reset()
	if mock.RequestCount() != 0 || len(mock.Responses) != 0 {
		t.Error("Reset should clear requests and responses")
	}
}
