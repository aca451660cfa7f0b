package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// ErrorKind is the canonical taxonomy for failed endpoint calls.
type ErrorKind int

const (
	// KindUnknown is the fallback when nothing matched. It carries the raw
	// provider message and is as important as the matched kinds: the match
	// table below is best-effort substring matching, never exhaustive.
	KindUnknown ErrorKind = iota
	// KindAuthentication is a rejected or missing credential.
	KindAuthentication
	// KindUnsupportedParameter means the endpoint rejected a request field
	// outright (typically max_completion_tokens on a legacy dialect).
	KindUnsupportedParameter
	// KindUnsupportedValue means a field was accepted but its value was not
	// (typically temperature on reasoning models).
	KindUnsupportedValue
	// KindContextLength means the request exceeded the model's context.
	KindContextLength
	// KindTransientNetwork is a network-layer failure (timeout, refused,
	// reset) after the transport's own retry policy gave up.
	KindTransientNetwork
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindUnsupportedParameter:
		return "unsupported_parameter"
	case KindUnsupportedValue:
		return "unsupported_value"
	case KindContextLength:
		return "context_length"
	case KindTransientNetwork:
		return "transient_network"
	default:
		return "unknown"
	}
}

// ClassifiedError is the normalized form of a failed call. Created fresh per
// failure, never persisted.
type ClassifiedError struct {
	Kind    ErrorKind
	Field   string // offending request field, when identifiable
	Status  int    // HTTP status, 0 for network-layer failures
	Message string // provider message, verbatim
	Context string // human-readable label of the operation that failed

	// Temperature hints parsed from the provider message, when present.
	Suggested *float64 // "must be N"
	RangeLow  *float64 // "must be between X and Y"
	RangeHigh *float64
}

func (e *ClassifiedError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s (HTTP %d): %s", e.Context, e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Context, e.Kind, e.Message)
}

// Wire shapes seen in practice. Shape A nests the detail under "error",
// shape B is a flat message. Anything else is treated as plain text.
type errorEnvelope struct {
	Error   *errorDetail `json:"error"`
	Message string       `json:"message"`
}

type errorDetail struct {
	Message string          `json:"message"`
	Type    string          `json:"type"`
	Code    json.RawMessage `json:"code"`
}

var (
	tempRangePattern = regexp.MustCompile(`(?i)must be between\s+(-?\d+(?:\.\d+)?)\s+and\s+(-?\d+(?:\.\d+)?)`)
	tempExactPattern = regexp.MustCompile(`(?i)must be\s+(-?\d+(?:\.\d+)?)`)
)

// Substring markers per kind. All matching is done on lowercased text, and
// both underscore and spaced spellings are listed: providers do not agree on
// wording and there is no shared machine-readable code to rely on.
var (
	authMarkers = []string{
		"invalid api key",
		"invalid_api_key",
		"incorrect api key",
		"invalid authentication",
		"unauthorized",
		"no auth credentials",
	}
	unsupportedParamMarkers = []string{
		"unsupported parameter",
		"unsupported_parameter",
		"unrecognized request argument",
		"unknown parameter",
		"unknown field",
		"is not supported",
	}
	unsupportedValueMarkers = []string{
		"unsupported value",
		"unsupported_value",
		"must be between",
		"must be ",
		"does not support",
	}
	contextMarkers = []string{
		"context_length_exceeded",
		"maximum context length",
		"context window",
		"too many tokens",
	}
)

func containsAny(text string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// Classify normalizes a failed HTTP response into a ClassifiedError.
// Pure function of (status, body); the label only annotates messages.
func Classify(status int, body []byte, label string) *ClassifiedError {
	message, errType := parseErrorBody(body)
	lower := strings.ToLower(message)

	cerr := &ClassifiedError{
		Kind:    KindUnknown,
		Status:  status,
		Message: message,
		Context: label,
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden || containsAny(lower, authMarkers):
		cerr.Kind = KindAuthentication

	case isUnsupportedTokenField(lower, errType):
		cerr.Kind = KindUnsupportedParameter
		if strings.Contains(lower, TokenFieldModern.FieldName()) {
			cerr.Field = TokenFieldModern.FieldName()
		} else {
			cerr.Field = TokenFieldLegacy.FieldName()
		}

	case strings.Contains(lower, "temperature") && containsAny(lower, unsupportedValueMarkers):
		cerr.Kind = KindUnsupportedValue
		cerr.Field = "temperature"
		parseTemperatureHints(message, cerr)

	case containsAny(lower, contextMarkers):
		cerr.Kind = KindContextLength
	}

	return cerr
}

func isUnsupportedTokenField(lower, errType string) bool {
	mentionsField := strings.Contains(lower, TokenFieldModern.FieldName()) ||
		strings.Contains(lower, TokenFieldLegacy.FieldName())
	if !mentionsField {
		return false
	}
	if !containsAny(lower, unsupportedParamMarkers) {
		return false
	}
	// When the provider sends a typed error, require the invalid-request
	// type; untyped shapes fall back to the markers alone.
	if errType != "" && errType != "invalid_request_error" {
		return false
	}
	return true
}

// parseErrorBody tries shape A, then shape B, then raw text.
func parseErrorBody(body []byte) (message, errType string) {
	text := strings.TrimSpace(string(body))
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil {
		if env.Error != nil && env.Error.Message != "" {
			return env.Error.Message, env.Error.Type
		}
		if env.Message != "" {
			return env.Message, ""
		}
	}
	return text, ""
}

// parseTemperatureHints extracts a numeric hint from messages like
// "temperature must be between 0 and 1" or "only the default (1) value is
// supported"-style "must be 1" phrasings. Range is checked first: the exact
// pattern would otherwise match the lower bound of a range.
func parseTemperatureHints(message string, cerr *ClassifiedError) {
	if m := tempRangePattern.FindStringSubmatch(message); m != nil {
		low, errLow := strconv.ParseFloat(m[1], 64)
		high, errHigh := strconv.ParseFloat(m[2], 64)
		if errLow == nil && errHigh == nil {
			cerr.RangeLow = &low
			cerr.RangeHigh = &high
		}
		return
	}
	if m := tempExactPattern.FindStringSubmatch(message); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			cerr.Suggested = &v
		}
	}
}

// ClassifyTransport normalizes a network-layer error from the transport.
// Context cancellation is deliberately not classified; callers check ctx
// first and unwind without further rounds.
func ClassifyTransport(err error, label string) *ClassifiedError {
	kind := KindUnknown

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTransientNetwork
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTransientNetwork
	case errors.Is(err, unix.ECONNREFUSED),
		errors.Is(err, unix.ECONNRESET),
		errors.Is(err, unix.EPIPE):
		kind = KindTransientNetwork
	}

	var terr *TransportError
	if errors.As(err, &terr) {
		kind = KindTransientNetwork
	}

	return &ClassifiedError{
		Kind:    kind,
		Message: err.Error(),
		Context: label,
	}
}
