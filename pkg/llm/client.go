package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ParameterStore persists detected parameters after a successful detection
// or self-heal. Write-through: this package never reads it back within the
// same call.
type ParameterStore interface {
	SaveDetectedParameters(endpoint, model string, params DetectedParameters) error
}

// Result is a successful generation.
type Result struct {
	Content string
	Model   string
	Usage   Usage // zero value when the endpoint reported no usage
}

// ClientConfig wires a Client.
type ClientConfig struct {
	Profile   EndpointProfile
	Model     string
	MaxTokens int
	Store     ParameterStore      // optional
	Seed      *DetectedParameters // shape persisted by an earlier session, optional
	Logger    *slog.Logger
}

// Client performs generation calls with the currently detected parameters
// and self-heals once per call when the cached shape goes stale (typically
// after the endpoint's underlying model changed).
type Client struct {
	transport Transport
	profile   EndpointProfile
	model     string
	maxTokens int
	store     ParameterStore
	logger    *slog.Logger

	// Single in-memory cache; one CLI invocation has no concurrent callers.
	params *DetectedParameters
	seed   *DetectedParameters
}

// NewClient creates a generation client.
func NewClient(transport Transport, cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		transport: transport,
		profile:   cfg.Profile,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		store:     cfg.Store,
		seed:      cfg.Seed,
		logger:    logger,
	}
}

// DetectedParameters returns the currently cached shape, or nil before the
// first successful detection.
func (c *Client) DetectedParameters() *DetectedParameters {
	if c.params == nil {
		return nil
	}
	p := *c.params
	return &p
}

// Generate performs one generation call. The first call for a model detects
// parameters lazily; later calls reuse the cache. On a recoverable failure
// (unsupported parameter or value) the cache is discarded, detection reruns,
// and the original request is retried exactly once.
func (c *Client) Generate(ctx context.Context, messages []Message) (Result, error) {
	params, err := c.ensureDetected(ctx)
	if err != nil {
		return Result{}, err
	}

	result, cerr, err := c.attempt(ctx, messages, params)
	if err == nil && cerr == nil {
		return result, nil
	}
	if err != nil {
		return Result{}, err
	}

	switch cerr.Kind {
	case KindUnsupportedParameter, KindUnsupportedValue:
		return c.selfHeal(ctx, messages, cerr)
	case KindAuthentication:
		return Result{}, protocolError(ErrAuthentication, cerr, "check the configured API key")
	case KindContextLength:
		return Result{}, protocolError(ErrContextLength, cerr, "staged diff is too large for this model")
	default:
		// Surface unfamiliar providers verbatim so the user can diagnose.
		return Result{}, cerr
	}
}

// selfHeal discards the stale shape, re-detects, and retries once.
func (c *Client) selfHeal(ctx context.Context, messages []Message, first *ClassifiedError) (Result, error) {
	c.logger.Info("cached request shape went stale, re-detecting",
		"model", c.model,
		"kind", first.Kind.String(),
		"field", first.Field)

	c.params = nil
	detector := NewDetector(c.transport, c.profile, c.model, c.logger)
	params, err := detector.Detect(ctx)
	if err != nil {
		if errors.Is(err, ErrAuthentication) || errors.Is(err, context.Canceled) {
			return Result{}, err
		}
		return Result{}, &ProtocolError{Err: ErrSelfHealing, Cause: first,
			Detail: fmt.Sprintf("re-detection failed: %v", err)}
	}
	c.cacheAndPersist(params)

	result, cerr, err := c.attempt(ctx, messages, params)
	if err != nil {
		return Result{}, err
	}
	if cerr != nil {
		// Two consecutive failures for one call; do not loop further.
		return Result{}, protocolError(ErrSelfHealing, cerr, "retry with re-detected parameters failed")
	}

	c.logger.Info("self-heal succeeded",
		"token_field", params.TokenFieldStyle.FieldName(),
		"temperature", params.Temperature)
	return result, nil
}

// attempt issues one real request. It returns (result, nil, nil) on success,
// (_, classified, nil) on an endpoint rejection, and (_, nil, err) on
// transport failure or cancellation.
func (c *Client) attempt(ctx context.Context, messages []Message, params DetectedParameters) (Result, *ClassifiedError, error) {
	req := params.NewRequest(c.model, messages, c.maxTokens)

	status, body, err := c.transport.Do(ctx, c.profile, req)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, nil, ctx.Err()
		}
		return Result{}, nil, ClassifyTransport(err, "generate")
	}

	if status >= 200 && status < 300 {
		resp, derr := decodeResponse(body)
		if derr != nil {
			return Result{}, nil, derr
		}
		content := resp.Content()
		if content == "" {
			return Result{}, nil, fmt.Errorf("endpoint returned an empty completion")
		}
		return Result{
			Content: content,
			Model:   resp.Model,
			Usage:   resp.Usage,
		}, nil, nil
	}

	return Result{}, Classify(status, body, "generate"), nil
}

// ensureDetected returns the cached shape, running detection on first use.
// A shape persisted by an earlier session seeds the first probe, so an
// unchanged endpoint re-verifies in a single round.
func (c *Client) ensureDetected(ctx context.Context) (DetectedParameters, error) {
	if c.params != nil {
		return *c.params, nil
	}

	detector := NewDetector(c.transport, c.profile, c.model, c.logger)
	params, err := detector.DetectFrom(ctx, c.seed)
	if err != nil {
		return DetectedParameters{}, err
	}
	c.cacheAndPersist(params)
	return params, nil
}

func (c *Client) cacheAndPersist(params DetectedParameters) {
	p := params
	c.params = &p

	if c.store == nil {
		return
	}
	if err := c.store.SaveDetectedParameters(c.profile.BaseURL, c.model, params); err != nil {
		// Persistence is best-effort; the in-memory cache still serves this run.
		c.logger.Warn("failed to persist detected parameters", "error", err)
	}
}

// Verified reports whether the cached shape was verified within maxAge.
func (c *Client) Verified(maxAge time.Duration) bool {
	return c.params != nil && time.Since(c.params.LastVerifiedAt) <= maxAge
}
