package llm

import (
	"context"
	"errors"
	"testing"
)

func TestClassifyNestedErrorShape(t *testing.T) {
	body := []byte(`{"error":{"type":"invalid_request_error","message":"Unrecognized request argument: max_completion_tokens"}}`)
	cerr := Classify(400, body, "probe")

	if cerr.Kind != KindUnsupportedParameter {
		t.Fatalf("Expected unsupported_parameter, got %s", cerr.Kind)
	}
	if cerr.Field != "max_completion_tokens" {
		t.Errorf("Expected field max_completion_tokens, got %q", cerr.Field)
	}
	if cerr.Message != "Unrecognized request argument: max_completion_tokens" {
		t.Errorf("Message not preserved verbatim: %q", cerr.Message)
	}
}

func TestClassifyFlatMessageShape(t *testing.T) {
	body := []byte(`{"message":"Invalid API key provided"}`)
	cerr := Classify(400, body, "probe")

	if cerr.Kind != KindAuthentication {
		t.Errorf("Expected authentication, got %s", cerr.Kind)
	}
	if cerr.Message != "Invalid API key provided" {
		t.Errorf("Flat message shape not parsed: %q", cerr.Message)
	}
}

func TestClassifyPlainTextBody(t *testing.T) {
	cerr := Classify(500, []byte("upstream worker crashed"), "generate")

	if cerr.Kind != KindUnknown {
		t.Errorf("Expected unknown, got %s", cerr.Kind)
	}
	if cerr.Message != "upstream worker crashed" {
		t.Errorf("Raw body must become the message, got %q", cerr.Message)
	}
	if cerr.Status != 500 {
		t.Errorf("Expected status 500, got %d", cerr.Status)
	}
}

func TestClassifyAuthByStatus(t *testing.T) {
	for _, status := range []int{401, 403} {
		cerr := Classify(status, []byte(`{"error":{"message":"nope"}}`), "probe")
		if cerr.Kind != KindAuthentication {
			t.Errorf("Status %d: expected authentication, got %s", status, cerr.Kind)
		}
	}
}

func TestClassifyTemperatureSpellings(t *testing.T) {
	// Providers disagree on wording; both spellings must classify the same.
	tests := []struct {
		name string
		body string
	}{
		{"spaced", `{"error":{"message":"temperature: unsupported value for this model"}}`},
		{"underscore", `{"error":{"type":"invalid_request_error","message":"unsupported_value: temperature"}}`},
		{"range", `{"error":{"message":"temperature must be between 0 and 1"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cerr := Classify(400, []byte(tt.body), "probe")
			if cerr.Kind != KindUnsupportedValue {
				t.Errorf("Expected unsupported_value, got %s", cerr.Kind)
			}
			if cerr.Field != "temperature" {
				t.Errorf("Expected field temperature, got %q", cerr.Field)
			}
		})
	}
}

func TestClassifyTemperatureRangeHint(t *testing.T) {
	body := []byte(`{"error":{"message":"temperature must be between 0 and 1"}}`)
	cerr := Classify(400, body, "probe")

	if cerr.RangeLow == nil || cerr.RangeHigh == nil {
		t.Fatal("Expected a parsed range hint")
	}
	if *cerr.RangeLow != 0 || *cerr.RangeHigh != 1 {
		t.Errorf("Expected range [0, 1], got [%g, %g]", *cerr.RangeLow, *cerr.RangeHigh)
	}
	if cerr.Suggested != nil {
		t.Error("Range messages must not also yield an exact suggestion")
	}
}

func TestClassifyTemperatureExactHint(t *testing.T) {
	body := []byte(`{"error":{"message":"Unsupported value: temperature must be 1 for this model"}}`)
	cerr := Classify(400, body, "probe")

	if cerr.Suggested == nil {
		t.Fatal("Expected an exact suggestion")
	}
	if *cerr.Suggested != 1 {
		t.Errorf("Expected suggestion 1, got %g", *cerr.Suggested)
	}
}

func TestClassifyContextLength(t *testing.T) {
	tests := []string{
		`{"error":{"code":"context_length_exceeded","message":"context_length_exceeded"}}`,
		`{"error":{"message":"This model's maximum context length is 8192 tokens"}}`,
	}
	for _, body := range tests {
		cerr := Classify(400, []byte(body), "generate")
		if cerr.Kind != KindContextLength {
			t.Errorf("Body %q: expected context_length, got %s", body, cerr.Kind)
		}
	}
}

func TestClassifyTypedErrorGuardsTokenFieldMatch(t *testing.T) {
	// A non-invalid-request type mentioning the field name must not be
	// mistaken for an unsupported parameter.
	body := []byte(`{"error":{"type":"server_error","message":"unsupported parameter max_completion_tokens caused an internal failure"}}`)
	cerr := Classify(500, body, "probe")
	if cerr.Kind == KindUnsupportedParameter {
		t.Error("server_error type must not classify as unsupported_parameter")
	}
}

func TestClassifyEmptyBody(t *testing.T) {
	cerr := Classify(502, nil, "probe")
	if cerr.Kind != KindUnknown {
		t.Errorf("Expected unknown for an empty body, got %s", cerr.Kind)
	}
}

func TestClassifyTransportExhaustion(t *testing.T) {
	err := &TransportError{Attempts: 3, Err: errors.New("endpoint returned HTTP 503")}
	cerr := ClassifyTransport(err, "probe")
	if cerr.Kind != KindTransientNetwork {
		t.Errorf("Expected transient_network, got %s", cerr.Kind)
	}
}

func TestClassifyTransportDeadline(t *testing.T) {
	cerr := ClassifyTransport(context.DeadlineExceeded, "generate")
	if cerr.Kind != KindTransientNetwork {
		t.Errorf("Expected transient_network for a deadline, got %s", cerr.Kind)
	}
}
