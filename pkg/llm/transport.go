package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Transport delivers one chat-completion request and reports the raw HTTP
// status and body. Implementations own transient retry and backoff; the
// detection protocol above never retries network failures itself.
type Transport interface {
	Do(ctx context.Context, profile EndpointProfile, req Request) (status int, body []byte, err error)
}

// TransportError is returned when the transport's retry policy is exhausted.
type TransportError struct {
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

const (
	defaultMaxRetries = 2
	defaultRetryDelay = 500 * time.Millisecond
)

// HTTPTransport posts chat-completion requests over net/http. Transient
// failures (network errors, 429, 5xx) are retried with exponential backoff
// before giving up with a TransportError. Credentials are attached according
// to the endpoint profile's auth style.
type HTTPTransport struct {
	Client     *http.Client
	APIKey     string
	UserAgent  string
	MaxRetries int           // extra attempts after the first; <0 disables retry
	RetryDelay time.Duration // base backoff, doubled per attempt
	Logger     *slog.Logger
}

// NewHTTPTransport creates a transport with the given timeout and key.
func NewHTTPTransport(apiKey string, timeout time.Duration, logger *slog.Logger) *HTTPTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPTransport{
		Client:     &http.Client{Timeout: timeout},
		APIKey:     apiKey,
		MaxRetries: defaultMaxRetries,
		RetryDelay: defaultRetryDelay,
		Logger:     logger,
	}
}

// Do implements Transport.
func (t *HTTPTransport) Do(ctx context.Context, profile EndpointProfile, req Request) (int, []byte, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	retries := t.MaxRetries
	if retries < 0 {
		retries = 0
	}
	delay := t.RetryDelay
	if delay <= 0 {
		delay = defaultRetryDelay
	}

	attempts := retries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			t.Logger.Debug("retrying request",
				"attempt", attempt,
				"delay", delay,
				"last_error", lastErr)
			if err := sleepContext(ctx, delay); err != nil {
				return 0, nil, err
			}
			delay *= 2
		}

		status, body, err := t.send(ctx, profile, payload)
		if err != nil {
			if ctx.Err() != nil {
				return 0, nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		if retryableStatus(status) {
			lastErr = fmt.Errorf("endpoint returned HTTP %d", status)
			if attempt == attempts {
				return status, body, &TransportError{Attempts: attempts, Err: lastErr}
			}
			continue
		}
		return status, body, nil
	}

	return 0, nil, &TransportError{Attempts: attempts, Err: lastErr}
}

func (t *HTTPTransport) send(ctx context.Context, profile EndpointProfile, payload []byte) (int, []byte, error) {
	endpoint := profile.CompletionsURL()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if t.UserAgent != "" {
		httpReq.Header.Set("User-Agent", t.UserAgent)
	}
	switch profile.AuthStyle {
	case AuthBearer:
		httpReq.Header.Set("Authorization", "Bearer "+t.APIKey)
	case AuthVendorHeader:
		httpReq.Header.Set("api-key", t.APIKey)
	case AuthNone:
		// no credential header
	}

	t.Logger.Debug("sending request",
		"url", endpoint,
		"auth_style", profile.AuthStyle.String(),
		"api_key", maskKey(t.APIKey),
		"request_size", len(payload))

	resp, err := t.Client.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}

	t.Logger.Debug("received response",
		"status_code", resp.StatusCode,
		"response_size", len(body))

	return resp.StatusCode, body, nil
}

func retryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		529:
		return true
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
