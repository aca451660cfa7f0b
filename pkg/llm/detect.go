package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	// DefaultTemperature is the first temperature probed. Commit-message
	// generation wants low-variance output, and most dialects accept it.
	DefaultTemperature = 0.2

	// fallbackTemperature is used when a provider rejects the temperature
	// without a parseable hint. Reasoning-style models accept only their
	// default, which is 1.
	fallbackTemperature = 1.0

	// maxProbeRounds bounds the detection loop. The happy path converges in
	// one round, each recoverable error class consumes at most one more.
	maxProbeRounds = 4

	// probeTokenLimit keeps probe requests nearly free while still leaving
	// room for a non-empty completion.
	probeTokenLimit = 16

	probeMessage = "Reply with the single word OK."
)

// probeShape is one candidate request shape. Tracking attempted shapes keeps
// a detection run from re-trying something the endpoint already rejected.
type probeShape struct {
	style       TokenFieldStyle
	temperature float64
}

// Detector converges on a request shape an endpoint provably accepts. It
// issues minimal probe requests and narrows the shape from classified
// errors; it never guesses blindly and never retries a failed shape.
type Detector struct {
	transport Transport
	profile   EndpointProfile
	model     string
	logger    *slog.Logger
}

// NewDetector creates a detector for one endpoint and model.
func NewDetector(transport Transport, profile EndpointProfile, model string, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		transport: transport,
		profile:   profile,
		model:     model,
		logger:    logger,
	}
}

// Detect runs the convergence protocol from the default shape: modern token
// field first (the current majority standard; legacy is the fallback, not
// the default), temperature 0.2.
func (d *Detector) Detect(ctx context.Context) (DetectedParameters, error) {
	return d.DetectFrom(ctx, nil)
}

// DetectFrom runs the protocol starting from a previously detected shape
// when one is supplied. A successful first probe then returns the prior
// style and temperature unchanged — detection is stable, not merely
// convergent — with only the verification timestamp refreshed.
func (d *Detector) DetectFrom(ctx context.Context, prior *DetectedParameters) (DetectedParameters, error) {
	shape := probeShape{style: TokenFieldModern, temperature: DefaultTemperature}
	if prior != nil {
		shape = probeShape{style: prior.TokenFieldStyle, temperature: prior.Temperature}
	}

	attempted := make(map[probeShape]bool)

	for round := 1; round <= maxProbeRounds; round++ {
		if attempted[shape] {
			return DetectedParameters{}, protocolError(ErrParameterDetection, nil,
				fmt.Sprintf("shape %s/temperature %g already rejected", shape.style, shape.temperature))
		}
		attempted[shape] = true

		d.logger.Debug("probing endpoint",
			"round", round,
			"model", d.model,
			"token_field", shape.style.FieldName(),
			"temperature", shape.temperature)

		req := d.probeRequest(shape)
		status, body, err := d.transport.Do(ctx, d.profile, req)
		if err != nil {
			if ctx.Err() != nil {
				return DetectedParameters{}, ctx.Err()
			}
			cerr := ClassifyTransport(err, "probe")
			return DetectedParameters{}, protocolError(ErrParameterDetection, cerr, "transport gave up")
		}

		if status >= 200 && status < 300 {
			resp, derr := decodeResponse(body)
			if derr != nil || resp.Content() == "" {
				return DetectedParameters{}, protocolError(ErrParameterDetection, nil,
					"endpoint accepted the probe but returned no completion")
			}
			d.logger.Debug("detection converged",
				"rounds", round,
				"token_field", shape.style.FieldName(),
				"temperature", shape.temperature)
			return DetectedParameters{
				TokenFieldStyle: shape.style,
				Temperature:     shape.temperature,
				LastVerifiedAt:  time.Now().UTC(),
			}, nil
		}

		cerr := Classify(status, body, "probe")
		d.logger.Debug("probe rejected",
			"round", round,
			"kind", cerr.Kind.String(),
			"field", cerr.Field,
			"status", status)

		next, fatal := d.nextShape(shape, cerr)
		if fatal != nil {
			return DetectedParameters{}, fatal
		}
		shape = next
	}

	return DetectedParameters{}, protocolError(ErrParameterDetection, nil,
		fmt.Sprintf("no accepted shape within %d probe rounds", maxProbeRounds))
}

// nextShape maps a classified probe failure to either an adjusted shape or a
// fatal error. This is the branch table of the convergence protocol.
func (d *Detector) nextShape(current probeShape, cerr *ClassifiedError) (probeShape, error) {
	switch cerr.Kind {
	case KindAuthentication:
		// No request shape fixes a bad credential; stop immediately.
		return probeShape{}, protocolError(ErrAuthentication, cerr,
			"check the configured API key")

	case KindUnsupportedParameter:
		if current.style == TokenFieldModern && cerr.Field == TokenFieldModern.FieldName() {
			current.style = TokenFieldLegacy
			return current, nil
		}
		return probeShape{}, protocolError(ErrParameterDetection, cerr,
			"endpoint rejects both token field styles")

	case KindUnsupportedValue:
		if cerr.Field == "temperature" {
			current.temperature = nextTemperature(current.temperature, cerr)
			return current, nil
		}
		return probeShape{}, protocolError(ErrParameterDetection, cerr,
			"unsupported value outside the adjustable parameters")

	case KindContextLength:
		// The probe is a single short message; an endpoint that cannot fit
		// it is pathological and nothing here can shrink further.
		return probeShape{}, protocolError(ErrParameterDetection, cerr,
			"probe request exceeded the context window")

	default:
		return probeShape{}, protocolError(ErrParameterDetection, cerr,
			"unrecognized endpoint error")
	}
}

// nextTemperature picks the next temperature from the provider's hint. The
// result always stays within the closed range [0, 2], and within the
// narrower range the provider stated when it stated one.
func nextTemperature(current float64, cerr *ClassifiedError) float64 {
	switch {
	case cerr.Suggested != nil:
		return clampTemperature(*cerr.Suggested, 0, 2)

	case cerr.RangeLow != nil && cerr.RangeHigh != nil:
		low, high := *cerr.RangeLow, *cerr.RangeHigh
		v := clampTemperature(current, low, high)
		if v == current {
			// Current value is inside the stated range yet was rejected;
			// the range text was informational. Fall back to the reasoning
			// default, still honoring the stated bounds.
			v = clampTemperature(fallbackTemperature, low, high)
		}
		return clampTemperature(v, 0, 2)

	default:
		return fallbackTemperature
	}
}

func clampTemperature(v, low, high float64) float64 {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}

func (d *Detector) probeRequest(shape probeShape) Request {
	params := DetectedParameters{
		TokenFieldStyle: shape.style,
		Temperature:     shape.temperature,
	}
	return params.NewRequest(d.model, []Message{{Role: "user", Content: probeMessage}}, probeTokenLimit)
}
