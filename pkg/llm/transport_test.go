package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestTransport(apiKey string) *HTTPTransport {
	t := NewHTTPTransport(apiKey, 5*time.Second, nil)
	t.RetryDelay = time.Millisecond
	return t
}

func serverProfile(url string, style AuthStyle) EndpointProfile {
	return EndpointProfile{BaseURL: url, RequiresAuth: style != AuthNone, AuthStyle: style}
}

func probeReq() Request {
	limit := probeTokenLimit
	temp := DefaultTemperature
	return Request{
		Model:               "test-model",
		Messages:            []Message{{Role: "user", Content: probeMessage}},
		Temperature:         &temp,
		MaxCompletionTokens: &limit,
	}
}

func TestHTTPTransportSendsBearerAuth(t *testing.T) {
	var gotAuth, gotVendor string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotVendor = r.Header.Get("api-key")
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Expected Content-Type application/json, got %s", r.Header.Get("Content-Type"))
		}
		w.Write([]byte(completionBody("OK")))
	}))
	defer server.Close()

	transport := newTestTransport("sk-test-1234567890")
	status, _, err := transport.Do(context.Background(), serverProfile(server.URL, AuthBearer), probeReq())
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if status != http.StatusOK {
		t.Errorf("Expected 200, got %d", status)
	}
	if gotAuth != "Bearer sk-test-1234567890" {
		t.Errorf("Expected bearer header, got %q", gotAuth)
	}
	if gotVendor != "" {
		t.Errorf("Bearer style must not also send api-key, got %q", gotVendor)
	}
}

func TestHTTPTransportSendsVendorHeader(t *testing.T) {
	var gotAuth, gotVendor string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotVendor = r.Header.Get("api-key")
		w.Write([]byte(completionBody("OK")))
	}))
	defer server.Close()

	transport := newTestTransport("azure-key")
	_, _, err := transport.Do(context.Background(), serverProfile(server.URL, AuthVendorHeader), probeReq())
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if gotVendor != "azure-key" {
		t.Errorf("Expected api-key header, got %q", gotVendor)
	}
	if gotAuth != "" {
		t.Errorf("Vendor style must not also send Authorization, got %q", gotAuth)
	}
}

func TestHTTPTransportSendsNoAuthHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" || r.Header.Get("api-key") != "" {
			t.Error("No-auth profile must not send credential headers")
		}
		w.Write([]byte(completionBody("OK")))
	}))
	defer server.Close()

	transport := newTestTransport("unused-key")
	if _, _, err := transport.Do(context.Background(), serverProfile(server.URL, AuthNone), probeReq()); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
}

func TestHTTPTransportPostsToCompletionsPath(t *testing.T) {
	var gotPath string
	var gotBody Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(completionBody("OK")))
	}))
	defer server.Close()

	transport := newTestTransport("k")
	profile := serverProfile(server.URL+"/v1", AuthNone)
	if _, _, err := transport.Do(context.Background(), profile, probeReq()); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if gotPath != "/v1/chat/completions" {
		t.Errorf("Expected /v1/chat/completions, got %s", gotPath)
	}
	if gotBody.Model != "test-model" || len(gotBody.Messages) != 1 {
		t.Errorf("Request body not preserved: %+v", gotBody)
	}
	if gotBody.MaxCompletionTokens == nil || gotBody.MaxTokens != nil {
		t.Error("Exactly the modern token field must be on the wire")
	}
}

func TestHTTPTransportRetriesTransientStatus(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(completionBody("OK")))
	}))
	defer server.Close()

	transport := newTestTransport("k")
	status, _, err := transport.Do(context.Background(), serverProfile(server.URL, AuthNone), probeReq())
	if err != nil {
		t.Fatalf("Do failed after retries: %v", err)
	}
	if status != http.StatusOK {
		t.Errorf("Expected eventual 200, got %d", status)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestHTTPTransportDoesNotRetryClientErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad request"}}`))
	}))
	defer server.Close()

	transport := newTestTransport("k")
	status, body, err := transport.Do(context.Background(), serverProfile(server.URL, AuthNone), probeReq())
	if err != nil {
		t.Fatalf("4xx must be returned, not retried as an error: %v", err)
	}
	if status != http.StatusBadRequest || attempts != 1 {
		t.Errorf("Expected one attempt with 400, got status=%d attempts=%d", status, attempts)
	}
	if len(body) == 0 {
		t.Error("Body must be returned for classification")
	}
}

func TestHTTPTransportExhaustionReturnsTransportError(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	transport := newTestTransport("k")
	transport.MaxRetries = 1
	_, _, err := transport.Do(context.Background(), serverProfile(server.URL, AuthNone), probeReq())

	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("Expected TransportError after exhaustion, got %v", err)
	}
	if terr.Attempts != 2 || attempts != 2 {
		t.Errorf("Expected 2 attempts, got terr=%d server=%d", terr.Attempts, attempts)
	}
}

func TestHTTPTransportHonorsCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	transport := newTestTransport("k")
	transport.RetryDelay = time.Minute // cancellation must interrupt the backoff sleep

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, _, err := transport.Do(ctx, serverProfile(server.URL, AuthNone), probeReq())
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Transport did not unwind on cancellation")
	}
}
