package httputil

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func doGet(t *testing.T, c HTTPClient, url string) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	return c.Do(req)
}

func TestStandardClient_Wraps(t *testing.T) {
	customClient := &http.Client{}
	client := NewStandardClient(customClient)

	if client.Client != customClient {
		t.Error("expected custom client to be wrapped")
	}
}

func TestStandardClient_NilDefaults(t *testing.T) {
	client := NewStandardClient(nil)
	if client.Client != http.DefaultClient {
		t.Error("expected nil to wrap http.DefaultClient")
	}
}

func TestStandardClient_Do(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "pong")
	}))
	defer srv.Close()

	resp, err := doGet(t, NewStandardClient(nil), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "pong" {
		t.Errorf("got body %q, want %q", body, "pong")
	}
}

func TestMockHTTPClient_QueuedResponses(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, "first")
	mock.AddResponse(http.StatusNotFound, "second")

	resp1, err := doGet(t, mock, "http://example.com/1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp1.StatusCode != http.StatusOK {
		t.Errorf("got status %d, want %d", resp1.StatusCode, http.StatusOK)
	}
	body, _ := io.ReadAll(resp1.Body)
	resp1.Body.Close()
	if string(body) != "first" {
		t.Errorf("got body %q, want %q", body, "first")
	}

	resp2, _ := doGet(t, mock, "http://example.com/2")
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("got status %d, want %d", resp2.StatusCode, http.StatusNotFound)
	}

	// Past the queue: empty 200.
	resp3, _ := doGet(t, mock, "http://example.com/3")
	if resp3.StatusCode != http.StatusOK {
		t.Errorf("got status %d, want %d", resp3.StatusCode, http.StatusOK)
	}
}

func TestMockHTTPClient_RecordsRequests(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, "{}")

	req, err := http.NewRequest(http.MethodPost, "http://example.com/api", strings.NewReader(`{"name": "test"}`))
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if _, err := mock.Do(req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if mock.RequestCount() != 1 {
		t.Fatalf("got %d requests, want 1", mock.RequestCount())
	}
	got := mock.GetRequest(0)
	if got.Method != http.MethodPost {
		t.Errorf("got method %q, want POST", got.Method)
	}
	if got.Header.Get("Content-Type") != "application/json" {
		t.Errorf("got Content-Type %q", got.Header.Get("Content-Type"))
	}
	if mock.GetRequest(5) != nil {
		t.Error("out-of-range request should be nil")
	}
}

func TestMockHTTPClient_AddErrorResponse(t *testing.T) {
	expectedErr := errors.New("connection refused")
	mock := NewMockHTTPClient()
	mock.AddErrorResponse(expectedErr)

	_, err := doGet(t, mock, "http://example.com/api")
	if !errors.Is(err, expectedErr) {
		t.Errorf("got error %v, want %v", err, expectedErr)
	}
}

func TestMockHTTPClient_DefaultError(t *testing.T) {
	expectedErr := errors.New("network down")
	mock := NewMockHTTPClient()
	mock.DefaultError = expectedErr

	_, err := doGet(t, mock, "http://example.com/api")
	if !errors.Is(err, expectedErr) {
		t.Errorf("got error %v, want %v", err, expectedErr)
	}
}

func TestMockHTTPClient_DoFunc(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.DoFunc = func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusTeapot,
			Body:       io.NopCloser(strings.NewReader("custom")),
			Header:     make(http.Header),
		}, nil
	}

	resp, err := doGet(t, mock, "http://example.com/api")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusTeapot {
		t.Errorf("got status %d, want %d", resp.StatusCode, http.StatusTeapot)
	}
}

func TestMockHTTPClient_Reset(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, "x")
	if _, err := doGet(t, mock, "http://example.com/api"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mock.Reset()
	if mock.RequestCount() != 0 {
		t.Errorf("got %d requests after reset, want 0", mock.RequestCount())
	}
	if len(mock.Responses) != 0 {
		t.Errorf("got %d responses after reset, want 0", len(mock.Responses))
	}
}
